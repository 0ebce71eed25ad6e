package main

import (
	"errors"
	"fmt"

	"github.com/joelkehle/trendsim/internal/config"
	"github.com/joelkehle/trendsim/internal/events"
	"github.com/joelkehle/trendsim/internal/metrics"
	"github.com/joelkehle/trendsim/internal/runner"
	"github.com/joelkehle/trendsim/internal/scenariostore"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/joelkehle/trendsim/internal/sources"
	"github.com/rs/zerolog/log"
)

// deps is everything a long-running command needs. close releases it in
// reverse order of acquisition.
type deps struct {
	reg       *metrics.Registry
	sources   simulation.Sources
	store     *scenariostore.Store
	publisher events.Publisher
	runner    *runner.Runner
	closers   []func() error
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn().Err(err).Msg("shutdown step failed")
		}
	}
}

func endpoint(name string, e config.EndpointConfig, apiKey string) sources.ClientConfig {
	return sources.ClientConfig{
		Name:          name,
		BaseURL:       e.BaseURL,
		Timeout:       e.Timeout,
		RatePerSecond: e.RatePerSecond,
		Burst:         e.Burst,
		MaxAttempts:   e.MaxAttempts,
		APIKey:        apiKey,
	}
}

// openSnapshots picks redis when an address is configured.
func openSnapshots(c config.Config) (sources.SnapshotStore, func() error) {
	if c.Redis.Addr == "" {
		return sources.NewMemorySnapshots(), func() error { return nil }
	}
	client := sources.DialRedis(c.Redis.Addr, c.Redis.Password, c.Redis.DB)
	return sources.NewRedisSnapshots(client, c.Redis.Prefix, c.Redis.SnapshotTTL), client.Close
}

// buildSources resolves each collaborator: HTTP when a base URL is set
// (lifecycle and risk behind the snapshot cache), otherwise the fixture file
// for lifecycle and risk and the reference model for attribution.
func buildSources(c config.Config, reg *metrics.Registry, snapshots sources.SnapshotStore) (simulation.Sources, error) {
	col := c.Collaborators
	var (
		src     simulation.Sources
		fixture *sources.Fixture
	)
	if col.FixturePath != "" {
		f, err := sources.LoadFixture(col.FixturePath)
		if err != nil {
			return simulation.Sources{}, err
		}
		fixture = f
	}

	switch {
	case col.Lifecycle.BaseURL != "":
		live := sources.NewLifecycleClient(sources.NewClient(endpoint("lifecycle", col.Lifecycle, col.APIKey), reg))
		src.Lifecycle = &sources.CachedLifecycle{Live: live, Snapshots: snapshots, Metrics: reg}
	case fixture != nil:
		src.Lifecycle = fixture
	default:
		return simulation.Sources{}, errors.New("no lifecycle source: set collaborators.lifecycle.base_url or collaborators.fixture_path")
	}

	switch {
	case col.Risk.BaseURL != "":
		live := sources.NewRiskClient(sources.NewClient(endpoint("risk", col.Risk, col.APIKey), reg))
		src.Risk = &sources.CachedRisk{Live: live, Snapshots: snapshots, Metrics: reg}
	case fixture != nil:
		src.Risk = fixture
	default:
		return simulation.Sources{}, errors.New("no risk source: set collaborators.risk.base_url or collaborators.fixture_path")
	}

	if col.Attribution.BaseURL != "" {
		src.Attribution = sources.NewAttributionClient(sources.NewClient(endpoint("attribution", col.Attribution, col.APIKey), reg))
	} else {
		log.Info().Msg("attribution base_url unset, using reference attribution model")
		src.Attribution = sources.ReferenceAttribution{}
	}
	return src, nil
}

func openPublisher(c config.Config, reg *metrics.Registry) (events.Publisher, error) {
	if len(c.Kafka.Brokers) == 0 {
		return events.Noop{}, nil
	}
	return events.NewKafkaPublisher(c.Kafka.Brokers, c.Kafka.Topic, reg)
}

// openDeps wires store, collaborators, publisher and runner. withStore=false
// skips the scenario database for ad-hoc runs.
func openDeps(c config.Config, withStore bool) (*deps, error) {
	d := &deps{reg: metrics.New()}
	snapshots, closeSnapshots := openSnapshots(c)
	d.closers = append(d.closers, closeSnapshots)

	src, err := buildSources(c, d.reg, snapshots)
	if err != nil {
		d.close()
		return nil, err
	}
	d.sources = src

	r := &runner.Runner{
		Simulator: simulation.NewPipeline(c.SimulationConfig(), src),
		Events:    events.Noop{},
		Metrics:   d.reg,
	}
	if withStore {
		store, err := scenariostore.Open(c.Store.Driver, c.Store.DSN)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("open scenario store: %w", err)
		}
		d.store = store
		d.closers = append(d.closers, store.Close)
		r.Scenarios = store

		pub, err := openPublisher(c, d.reg)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("open event publisher: %w", err)
		}
		d.publisher = pub
		d.closers = append(d.closers, pub.Close)
		r.Events = pub
	}
	d.runner = r
	return d, nil
}
