package sources

import (
	"context"
	"math"

	"github.com/joelkehle/trendsim/internal/simulation"
)

// ReferenceAttribution is a deterministic stand-in for the attribution
// service. ROI follows engagement and reach growth, discounted by the log of
// the budget in thousands.
type ReferenceAttribution struct{}

func (ReferenceAttribution) Attribute(ctx context.Context, req simulation.AttributionRequest) (simulation.AttributionResponse, error) {
	if err := ctx.Err(); err != nil {
		return simulation.AttributionResponse{}, err
	}
	eng, reach := req.EngagementGrowthRange, req.ReachGrowthRange
	lo := eng.Min*1.2 + reach.Min*0.3 - budgetDrag(req.Budget.Max)
	hi := eng.Max*1.5 + reach.Max*0.4 - budgetDrag(req.Budget.Min)
	if lo > hi {
		lo, hi = hi, lo
	}

	conf := simulation.ConfidenceLow
	switch w := eng.Width(); {
	case w < 30:
		conf = simulation.ConfidenceHigh
	case w < 60:
		conf = simulation.ConfidenceMedium
	}
	return simulation.AttributionResponse{
		ROIPercentRange: simulation.RangeValue{Min: lo, Max: hi},
		Confidence:      conf,
	}, nil
}

func budgetDrag(budget float64) float64 {
	if budget < 1000 {
		budget = 1000
	}
	return 10 * math.Log10(budget/1000)
}
