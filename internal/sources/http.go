package sources

import (
	"context"
	"net/http"
	"net/url"

	"github.com/joelkehle/trendsim/internal/simulation"
)

// LifecycleClient queries the trend lifecycle service.
type LifecycleClient struct{ c *Client }

func NewLifecycleClient(c *Client) *LifecycleClient { return &LifecycleClient{c: c} }

func (l *LifecycleClient) QueryLifecycle(ctx context.Context, trendID string) (simulation.LifecycleData, error) {
	var out simulation.LifecycleData
	err := l.c.DoJSON(ctx, http.MethodGet, "/v1/trends/"+url.PathEscape(trendID)+"/lifecycle", nil, &out)
	if err != nil {
		return simulation.LifecycleData{}, err
	}
	if out.TrendID == "" {
		out.TrendID = trendID
	}
	if out.Source == "" {
		out.Source = "live"
	}
	return out, nil
}

// RiskClient queries the trend risk service.
type RiskClient struct{ c *Client }

func NewRiskClient(c *Client) *RiskClient { return &RiskClient{c: c} }

func (r *RiskClient) QueryRisk(ctx context.Context, trendID string) (simulation.RiskData, error) {
	var out simulation.RiskData
	err := r.c.DoJSON(ctx, http.MethodGet, "/v1/trends/"+url.PathEscape(trendID)+"/risk", nil, &out)
	if err != nil {
		return simulation.RiskData{}, err
	}
	if out.TrendID == "" {
		out.TrendID = trendID
	}
	if out.Source == "" {
		out.Source = "live"
	}
	return out, nil
}

type AttributionClient struct{ c *Client }

func NewAttributionClient(c *Client) *AttributionClient { return &AttributionClient{c: c} }

func (a *AttributionClient) Attribute(ctx context.Context, req simulation.AttributionRequest) (simulation.AttributionResponse, error) {
	var out simulation.AttributionResponse
	if err := a.c.DoJSON(ctx, http.MethodPost, "/v1/attribution", req, &out); err != nil {
		return simulation.AttributionResponse{}, err
	}
	return out, nil
}
