// Package scenariostore persists submitted scenarios, every revision of them,
// and the last simulation response per scenario. SQLite and Postgres share one
// schema; queries are written with ? placeholders and rebound per driver.
package scenariostore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joelkehle/trendsim/internal/simulation"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("scenario not found")
	ErrExists   = errors.New("scenario already exists")
)

// Fixed-width so text comparison orders like time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Scenario struct {
	ID             string                    `json:"scenario_id"`
	Version        int                       `json:"version"`
	TrendID        string                    `json:"trend_id"`
	LifecycleStage simulation.LifecycleStage `json:"lifecycle_stage"`
	Input          simulation.ScenarioInput  `json:"input"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// Record is a scenario together with its most recent simulation, if any.
type Record struct {
	Scenario
	LastResult    *simulation.SimulationResponse `json:"last_result,omitempty"`
	LastRunAt     *time.Time                     `json:"last_run_at,omitempty"`
	ResultVersion int                            `json:"result_version,omitempty"`
}

type Filter struct {
	TrendID        string
	LifecycleStage simulation.LifecycleStage
	CreatedFrom    time.Time
	CreatedTo      time.Time
	Limit          int
}

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS scenarios (
	scenario_id     TEXT PRIMARY KEY,
	trend_id        TEXT NOT NULL,
	lifecycle_stage TEXT NOT NULL,
	version         INTEGER NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS scenarios_trend_idx ON scenarios (trend_id);

CREATE TABLE IF NOT EXISTS scenario_versions (
	scenario_id TEXT NOT NULL,
	version     INTEGER NOT NULL,
	input       TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (scenario_id, version)
);

CREATE TABLE IF NOT EXISTS scenario_results (
	scenario_id TEXT PRIMARY KEY,
	version     INTEGER NOT NULL,
	response    TEXT NOT NULL,
	ran_at      TEXT NOT NULL
);
`

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects with driver "sqlite" (dsn is a file path) or "postgres".
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case "sqlite", "":
		db, err = sqlx.Open("sqlite", dsn+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case "postgres":
		db, err = sqlx.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unsupported scenario store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) stamp() string { return s.now().UTC().Format(timeLayout) }

type scenarioRow struct {
	ID             string `db:"scenario_id"`
	TrendID        string `db:"trend_id"`
	LifecycleStage string `db:"lifecycle_stage"`
	Version        int    `db:"version"`
	Input          string `db:"input"`
	CreatedAt      string `db:"created_at"`
	UpdatedAt      string `db:"updated_at"`
}

func (r scenarioRow) scenario() (Scenario, error) {
	var in simulation.ScenarioInput
	if err := json.Unmarshal([]byte(r.Input), &in); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario %s v%d: %w", r.ID, r.Version, err)
	}
	return Scenario{
		ID:             r.ID,
		Version:        r.Version,
		TrendID:        r.TrendID,
		LifecycleStage: simulation.LifecycleStage(r.LifecycleStage),
		Input:          in,
		CreatedAt:      parseTime(r.CreatedAt),
		UpdatedAt:      parseTime(r.UpdatedAt),
	}, nil
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Create stores version 1 of a scenario. A caller-supplied scenario_id is
// kept; otherwise one is generated.
func (s *Store) Create(ctx context.Context, in simulation.ScenarioInput) (Scenario, error) {
	if in.ScenarioID == "" {
		in.ScenarioID = uuid.NewString()
	}
	blob, err := json.Marshal(in)
	if err != nil {
		return Scenario{}, fmt.Errorf("encode scenario: %w", err)
	}
	now := s.stamp()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Scenario{}, err
	}
	defer tx.Rollback()

	var n int
	if err := tx.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM scenarios WHERE scenario_id = ?`), in.ScenarioID); err != nil {
		return Scenario{}, err
	}
	if n > 0 {
		return Scenario{}, ErrExists
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO scenarios (scenario_id, trend_id, lifecycle_stage, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`),
		in.ScenarioID, in.TrendContext.TrendID, string(in.TrendContext.LifecycleStage), now, now); err != nil {
		return Scenario{}, fmt.Errorf("insert scenario: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO scenario_versions (scenario_id, version, input, created_at) VALUES (?, 1, ?, ?)`),
		in.ScenarioID, string(blob), now); err != nil {
		return Scenario{}, fmt.Errorf("insert scenario version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Scenario{}, err
	}
	return Scenario{
		ID:             in.ScenarioID,
		Version:        1,
		TrendID:        in.TrendContext.TrendID,
		LifecycleStage: in.TrendContext.LifecycleStage,
		Input:          in,
		CreatedAt:      parseTime(now),
		UpdatedAt:      parseTime(now),
	}, nil
}

// Update records a new version. Earlier versions stay readable via Versions.
func (s *Store) Update(ctx context.Context, id string, in simulation.ScenarioInput) (Scenario, error) {
	in.ScenarioID = id
	blob, err := json.Marshal(in)
	if err != nil {
		return Scenario{}, fmt.Errorf("encode scenario: %w", err)
	}
	now := s.stamp()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Scenario{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.db.Rebind(`UPDATE scenarios SET version = version + 1, trend_id = ?, lifecycle_stage = ?, updated_at = ?
		WHERE scenario_id = ?`),
		in.TrendContext.TrendID, string(in.TrendContext.LifecycleStage), now, id)
	if err != nil {
		return Scenario{}, fmt.Errorf("update scenario: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Scenario{}, ErrNotFound
	}
	var head struct {
		Version   int    `db:"version"`
		CreatedAt string `db:"created_at"`
	}
	if err := tx.GetContext(ctx, &head, s.db.Rebind(`SELECT version, created_at FROM scenarios WHERE scenario_id = ?`), id); err != nil {
		return Scenario{}, err
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO scenario_versions (scenario_id, version, input, created_at) VALUES (?, ?, ?, ?)`),
		id, head.Version, string(blob), now); err != nil {
		return Scenario{}, fmt.Errorf("insert scenario version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Scenario{}, err
	}
	return Scenario{
		ID:             id,
		Version:        head.Version,
		TrendID:        in.TrendContext.TrendID,
		LifecycleStage: in.TrendContext.LifecycleStage,
		Input:          in,
		CreatedAt:      parseTime(head.CreatedAt),
		UpdatedAt:      parseTime(now),
	}, nil
}

const selectCurrent = `SELECT s.scenario_id, s.trend_id, s.lifecycle_stage, s.version, v.input, s.created_at, s.updated_at
	FROM scenarios s JOIN scenario_versions v ON v.scenario_id = s.scenario_id AND v.version = s.version`

// Get returns the current version and the last stored result.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	var row scenarioRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectCurrent+` WHERE s.scenario_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get scenario: %w", err)
	}
	sc, err := row.scenario()
	if err != nil {
		return Record{}, err
	}
	rec := Record{Scenario: sc}

	var result struct {
		Version  int    `db:"version"`
		Response string `db:"response"`
		RanAt    string `db:"ran_at"`
	}
	err = s.db.GetContext(ctx, &result, s.db.Rebind(`SELECT version, response, ran_at FROM scenario_results WHERE scenario_id = ?`), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return rec, nil
	case err != nil:
		return Record{}, fmt.Errorf("get scenario result: %w", err)
	}
	var resp simulation.SimulationResponse
	if err := json.Unmarshal([]byte(result.Response), &resp); err != nil {
		return Record{}, fmt.Errorf("decode scenario result: %w", err)
	}
	ranAt := parseTime(result.RanAt)
	rec.LastResult = &resp
	rec.LastRunAt = &ranAt
	rec.ResultVersion = result.Version
	return rec, nil
}

// List returns current versions, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Scenario, error) {
	var (
		where []string
		args  []any
	)
	if f.TrendID != "" {
		where = append(where, "s.trend_id = ?")
		args = append(args, f.TrendID)
	}
	if f.LifecycleStage != "" {
		where = append(where, "s.lifecycle_stage = ?")
		args = append(args, string(f.LifecycleStage))
	}
	if !f.CreatedFrom.IsZero() {
		where = append(where, "s.created_at >= ?")
		args = append(args, f.CreatedFrom.UTC().Format(timeLayout))
	}
	if !f.CreatedTo.IsZero() {
		where = append(where, "s.created_at <= ?")
		args = append(args, f.CreatedTo.UTC().Format(timeLayout))
	}
	q := selectCurrent
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY s.created_at DESC, s.scenario_id"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	var rows []scenarioRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	out := make([]Scenario, 0, len(rows))
	for _, r := range rows {
		sc, err := r.scenario()
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// Versions returns every stored revision, oldest first.
func (s *Store) Versions(ctx context.Context, id string) ([]Scenario, error) {
	var rows []scenarioRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT s.scenario_id, s.trend_id, s.lifecycle_stage, v.version, v.input, s.created_at, v.created_at AS updated_at
		FROM scenario_versions v JOIN scenarios s ON s.scenario_id = v.scenario_id
		WHERE v.scenario_id = ? ORDER BY v.version`), id)
	if err != nil {
		return nil, fmt.Errorf("list scenario versions: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	out := make([]Scenario, 0, len(rows))
	for _, r := range rows {
		sc, err := r.scenario()
		if err != nil {
			return nil, err
		}
		// trend and stage on the head row reflect the latest revision
		sc.TrendID = sc.Input.TrendContext.TrendID
		sc.LifecycleStage = sc.Input.TrendContext.LifecycleStage
		out = append(out, sc)
	}
	return out, nil
}

// SaveResult replaces the stored result for a scenario version.
func (s *Store) SaveResult(ctx context.Context, id string, version int, resp simulation.SimulationResponse) error {
	blob, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO scenario_results (scenario_id, version, response, ran_at)
		SELECT scenario_id, ?, ?, ? FROM scenarios WHERE scenario_id = ?
		ON CONFLICT (scenario_id) DO UPDATE SET version = excluded.version, response = excluded.response, ran_at = excluded.ran_at`),
		version, string(blob), s.stamp(), id)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TrendIDs lists the distinct trends referenced by current scenario versions.
func (s *Store) TrendIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT trend_id FROM scenarios ORDER BY trend_id`); err != nil {
		return nil, fmt.Errorf("list trend ids: %w", err)
	}
	return ids, nil
}
