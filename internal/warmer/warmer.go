// Package warmer periodically re-queries lifecycle and risk data for every
// stored trend so that last-known snapshots exist before an outage.
package warmer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joelkehle/trendsim/internal/metrics"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type TrendLister interface {
	TrendIDs(ctx context.Context) ([]string, error)
}

type Report struct {
	Trends    int `json:"trends"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

type Warmer struct {
	Cron        *cron.Cron
	trends      TrendLister
	lifecycle   simulation.LifecycleSource
	risk        simulation.RiskSource
	metrics     *metrics.Registry
	timeout     time.Duration
	concurrency int
}

// New expects lifecycle and risk to be the snapshot-recording sources.
func New(trends TrendLister, lifecycle simulation.LifecycleSource, risk simulation.RiskSource, reg *metrics.Registry) *Warmer {
	return &Warmer{
		Cron:        cron.New(),
		trends:      trends,
		lifecycle:   lifecycle,
		risk:        risk,
		metrics:     reg,
		timeout:     5 * time.Second,
		concurrency: 4,
	}
}

// Register schedules RunOnce with a standard five-field cron spec.
func (w *Warmer) Register(spec string) error {
	if _, err := w.Cron.AddFunc(spec, func() {
		if _, err := w.RunOnce(context.Background()); err != nil {
			log.Error().Err(err).Msg("snapshot warm-up failed")
		}
	}); err != nil {
		return fmt.Errorf("register warm-up %q: %w", spec, err)
	}
	return nil
}

func (w *Warmer) Start() {
	w.Cron.Start()
	log.Info().Int("jobs", len(w.Cron.Entries())).Msg("snapshot warmer started")
}

// Stop waits for a running job to finish.
func (w *Warmer) Stop() {
	<-w.Cron.Stop().Done()
	log.Info().Msg("snapshot warmer stopped")
}

// errServedSnapshot marks an answer that came from the snapshot cache rather
// than the live collaborator, so nothing was refreshed.
var errServedSnapshot = errors.New("live query failed, last-known snapshot served")

func (w *Warmer) RunOnce(ctx context.Context) (Report, error) {
	ids, err := w.trends.TrendIDs(ctx)
	if err != nil {
		w.metrics.WarmRun("error")
		return Report{}, fmt.Errorf("list trends: %w", err)
	}

	var refreshed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, w.timeout)
			defer cancel()
			lc, lerr := w.lifecycle.QueryLifecycle(qctx, id)
			if lerr == nil && lc.LastKnown {
				lerr = errServedSnapshot
			}
			rk, rerr := w.risk.QueryRisk(qctx, id)
			if rerr == nil && rk.LastKnown {
				rerr = errServedSnapshot
			}
			if lerr != nil || rerr != nil {
				failed.Add(1)
				log.Warn().Str("trend_id", id).AnErr("lifecycle", lerr).AnErr("risk", rerr).Msg("snapshot warm-up incomplete")
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Trends: len(ids), Refreshed: int(refreshed.Load()), Failed: int(failed.Load())}
	result := "ok"
	if rep.Failed > 0 {
		result = "partial"
	}
	w.metrics.WarmRun(result)
	log.Info().Int("trends", rep.Trends).Int("refreshed", rep.Refreshed).Int("failed", rep.Failed).Msg("snapshot warm-up finished")
	return rep, nil
}
