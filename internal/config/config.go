// Package config loads trendsim settings from an optional YAML file and
// TRENDSIM_* environment variables. Anything left unset keeps its default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/trendsim/internal/simulation"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Store         StoreConfig         `yaml:"store"`
	Collaborators CollaboratorsConfig `yaml:"collaborators"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Warmer        WarmerConfig        `yaml:"warmer"`
	Agent         AgentConfig         `yaml:"agent"`
	Simulation    SimulationConfig    `yaml:"simulation"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type EndpointConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	MaxAttempts   int           `yaml:"max_attempts"`
}

type CollaboratorsConfig struct {
	Lifecycle   EndpointConfig `yaml:"lifecycle"`
	Risk        EndpointConfig `yaml:"risk"`
	Attribution EndpointConfig `yaml:"attribution"`
	APIKey      string         `yaml:"api_key"`
	// FixturePath serves lifecycle and risk from a YAML file instead of HTTP.
	FixturePath string `yaml:"fixture_path"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Prefix      string        `yaml:"prefix"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

type WarmerConfig struct {
	Schedule string `yaml:"schedule"`
}

type AgentConfig struct {
	BusURL  string `yaml:"bus_url"`
	AgentID string `yaml:"agent_id"`
	Secret  string `yaml:"secret"`
}

type SimulationConfig struct {
	Thresholds simulation.Thresholds `yaml:"thresholds"`
	Defaults   AssumptionDefaults    `yaml:"defaults"`
}

type AssumptionDefaults struct {
	EngagementTrend      string `yaml:"engagement_trend"`
	CreatorParticipation string `yaml:"creator_participation"`
	MarketNoise          string `yaml:"market_noise"`
}

func Default() Config {
	sim := simulation.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:   LogConfig{Level: "info", Format: "console"},
		Store: StoreConfig{Driver: "sqlite", DSN: "trendsim.db"},
		Collaborators: CollaboratorsConfig{
			Lifecycle:   EndpointConfig{Timeout: 3 * time.Second, RatePerSecond: 20, Burst: 5, MaxAttempts: 3},
			Risk:        EndpointConfig{Timeout: 3 * time.Second, RatePerSecond: 20, Burst: 5, MaxAttempts: 3},
			Attribution: EndpointConfig{Timeout: 5 * time.Second, RatePerSecond: 10, Burst: 2, MaxAttempts: 2},
		},
		Redis:     RedisConfig{Prefix: "trendsim:snapshot:", SnapshotTTL: 30 * 24 * time.Hour},
		Kafka:     KafkaConfig{Topic: "trendsim.simulation.completed"},
		Telemetry: TelemetryConfig{ServiceName: "trendsim", SampleRatio: 1},
		Warmer:    WarmerConfig{Schedule: "*/15 * * * *"},
		Agent:     AgentConfig{BusURL: "http://localhost:8080", AgentID: "campaign-simulator"},
		Simulation: SimulationConfig{
			Thresholds: sim.Thresholds,
			Defaults: AssumptionDefaults{
				EngagementTrend:      string(sim.Defaults.EngagementTrend),
				CreatorParticipation: string(sim.Defaults.CreatorParticipation),
				MarketNoise:          string(sim.Defaults.MarketNoise),
			},
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies env.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		blob, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(blob, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("TRENDSIM_ADDR", &cfg.Server.Addr)
	str("TRENDSIM_LOG_LEVEL", &cfg.Log.Level)
	str("TRENDSIM_LOG_FORMAT", &cfg.Log.Format)
	str("TRENDSIM_DB_DRIVER", &cfg.Store.Driver)
	str("TRENDSIM_DB_DSN", &cfg.Store.DSN)
	str("TRENDSIM_LIFECYCLE_URL", &cfg.Collaborators.Lifecycle.BaseURL)
	str("TRENDSIM_RISK_URL", &cfg.Collaborators.Risk.BaseURL)
	str("TRENDSIM_ATTRIBUTION_URL", &cfg.Collaborators.Attribution.BaseURL)
	str("TRENDSIM_COLLABORATOR_API_KEY", &cfg.Collaborators.APIKey)
	str("TRENDSIM_FIXTURE", &cfg.Collaborators.FixturePath)
	str("TRENDSIM_REDIS_ADDR", &cfg.Redis.Addr)
	str("TRENDSIM_REDIS_PASSWORD", &cfg.Redis.Password)
	str("TRENDSIM_KAFKA_TOPIC", &cfg.Kafka.Topic)
	str("TRENDSIM_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	str("TRENDSIM_WARM_SCHEDULE", &cfg.Warmer.Schedule)
	str("TRENDSIM_BUS_URL", &cfg.Agent.BusURL)
	str("TRENDSIM_AGENT_ID", &cfg.Agent.AgentID)
	str("TRENDSIM_AGENT_SECRET", &cfg.Agent.Secret)

	if v, ok := lookup("TRENDSIM_KAFKA_BROKERS"); ok && strings.TrimSpace(v) != "" {
		cfg.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	if v, ok := lookup("TRENDSIM_REDIS_DB"); ok && strings.TrimSpace(v) != "" {
		db, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("TRENDSIM_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = db
	}
	if v, ok := lookup("TRENDSIM_QUERY_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("TRENDSIM_QUERY_TIMEOUT: %w", err)
		}
		cfg.Simulation.Thresholds.QueryTimeout = d
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	t := c.Simulation.Thresholds
	if t.LowCoverage > t.HighCoverage {
		errs = append(errs, errors.New("simulation.thresholds.low_coverage exceeds high_coverage"))
	}
	if t.ImpactMediumAt > t.ImpactHighAt {
		errs = append(errs, errors.New("simulation.thresholds.impact_medium_at exceeds impact_high_at"))
	}
	if t.BudgetFloor > t.BudgetCeiling {
		errs = append(errs, errors.New("simulation.thresholds.budget_floor exceeds budget_ceiling"))
	}
	d := c.Simulation.Defaults
	if !simulation.EngagementTrend(d.EngagementTrend).Valid() {
		errs = append(errs, fmt.Errorf("simulation.defaults.engagement_trend %q is not a known value", d.EngagementTrend))
	}
	if !simulation.CreatorParticipation(d.CreatorParticipation).Valid() {
		errs = append(errs, fmt.Errorf("simulation.defaults.creator_participation %q is not a known value", d.CreatorParticipation))
	}
	if !simulation.MarketNoise(d.MarketNoise).Valid() {
		errs = append(errs, fmt.Errorf("simulation.defaults.market_noise %q is not a known value", d.MarketNoise))
	}
	return errors.Join(errs...)
}

// SimulationConfig merges the configured overrides onto the built-in tables.
func (c Config) SimulationConfig() simulation.Config {
	sim := simulation.DefaultConfig()
	sim.Thresholds = c.Simulation.Thresholds
	sim.Defaults = simulation.Assumptions{
		EngagementTrend:      simulation.EngagementTrend(c.Simulation.Defaults.EngagementTrend),
		CreatorParticipation: simulation.CreatorParticipation(c.Simulation.Defaults.CreatorParticipation),
		MarketNoise:          simulation.MarketNoise(c.Simulation.Defaults.MarketNoise),
	}
	return sim
}
