package sources

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/joelkehle/trendsim/internal/metrics"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/rs/zerolog/log"
)

const (
	lifecycleKind = "lifecycle"
	riskKind      = "risk"
)

func snapshotKey(kind, trendID string) string { return kind + ":" + trendID }

// CachedLifecycle records every live lifecycle answer and serves the last
// known one, flagged LastKnown, when the live call fails.
type CachedLifecycle struct {
	Live      simulation.LifecycleSource
	Snapshots SnapshotStore
	Metrics   *metrics.Registry
}

func (c *CachedLifecycle) QueryLifecycle(ctx context.Context, trendID string) (simulation.LifecycleData, error) {
	data, err := c.Live.QueryLifecycle(ctx, trendID)
	if err == nil {
		remember(ctx, c.Snapshots, snapshotKey(lifecycleKind, trendID), data)
		return data, nil
	}
	var snap simulation.LifecycleData
	if !recall(ctx, c.Snapshots, snapshotKey(lifecycleKind, trendID), &snap) {
		return simulation.LifecycleData{}, err
	}
	log.Warn().Err(err).Str("trend_id", trendID).Time("as_of", snap.AsOf).Msg("serving last-known lifecycle snapshot")
	c.Metrics.SnapshotFallback(lifecycleKind)
	snap.LastKnown = true
	snap.Source = "snapshot"
	return snap, nil
}

type CachedRisk struct {
	Live      simulation.RiskSource
	Snapshots SnapshotStore
	Metrics   *metrics.Registry
}

func (c *CachedRisk) QueryRisk(ctx context.Context, trendID string) (simulation.RiskData, error) {
	data, err := c.Live.QueryRisk(ctx, trendID)
	if err == nil {
		remember(ctx, c.Snapshots, snapshotKey(riskKind, trendID), data)
		return data, nil
	}
	var snap simulation.RiskData
	if !recall(ctx, c.Snapshots, snapshotKey(riskKind, trendID), &snap) {
		return simulation.RiskData{}, err
	}
	log.Warn().Err(err).Str("trend_id", trendID).Time("as_of", snap.AsOf).Msg("serving last-known risk snapshot")
	c.Metrics.SnapshotFallback(riskKind)
	snap.LastKnown = true
	snap.Source = "snapshot"
	return snap, nil
}

func remember(ctx context.Context, store SnapshotStore, key string, v any) {
	if store == nil {
		return
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := store.Store(ctx, key, blob); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("snapshot store failed")
	}
}

func recall(ctx context.Context, store SnapshotStore, key string, v any) bool {
	if store == nil {
		return false
	}
	// The live call may have consumed the caller's deadline; the snapshot
	// read gets its own chance.
	blob, err := store.Load(context.WithoutCancel(ctx), key)
	if err != nil {
		if !errors.Is(err, ErrNoSnapshot) {
			log.Warn().Err(err).Str("key", key).Msg("snapshot load failed")
		}
		return false
	}
	if err := json.Unmarshal(blob, v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("snapshot decode failed")
		return false
	}
	return true
}
