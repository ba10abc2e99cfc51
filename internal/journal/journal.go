// Package journal keeps a write-only SQLite record of an evacuation run:
// one row per presentation snapshot and one per evacuated agent. It is for
// after-action analysis; nothing is ever loaded back into a simulation.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/evacuation-simulator/internal/crowd"
	"github.com/signalsfoundry/evacuation-simulator/internal/sim"
)

// Run identifies the run a journal writes to.
type Run struct {
	ID       string
	Scenario string
	Floor    string
	Seed     int64
	Started  time.Time
}

// SnapshotRecord is one journalled presentation snapshot.
type SnapshotRecord struct {
	Tick           int64   `db:"tick"`
	ElapsedMillis  int64   `db:"elapsed_ms"`
	Agents         int     `db:"agents"`
	Evacuated      int     `db:"evacuated"`
	Spawned        int     `db:"spawned"`
	Replans        int     `db:"replans"`
	PathFailures   int     `db:"path_failures"`
	AverageDensity float64 `db:"avg_density"`
	PeakDensity    float64 `db:"peak_density"`
	FireSources    int     `db:"fire_sources"`
	RiskCells      int     `db:"risk_cells"`
	FiresJSON      string  `db:"fires_json"`
}

// ExitCount is the number of agents that left through one evacuation point.
type ExitCount struct {
	Destination string `db:"destination"`
	Agents      int    `db:"agents"`
}

// Journal wraps a SQLite connection scoped to one run.
type Journal struct {
	conn *sqlx.DB
	run  Run
}

// Open opens or creates the journal at path and registers run.
func Open(ctx context.Context, path string, run Run) (*Journal, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	conn.SetMaxOpenConns(1)

	j := &Journal{conn: conn, run: run}
	if err := j.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if run.Started.IsZero() {
		j.run.Started = time.Now()
	}
	if _, err := conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, scenario, floor, seed, started_at) VALUES (?, ?, ?, ?, ?)`,
		j.run.ID, j.run.Scenario, j.run.Floor, j.run.Seed, j.run.Started.UTC().Format(time.RFC3339Nano),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

// Run returns the run this journal writes to.
func (j *Journal) Run() Run {
	return j.run
}

func (j *Journal) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		floor TEXT NOT NULL,
		seed INTEGER NOT NULL,
		started_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		evacuated INTEGER NOT NULL,
		spawned INTEGER NOT NULL,
		replans INTEGER NOT NULL,
		path_failures INTEGER NOT NULL,
		avg_density REAL NOT NULL,
		peak_density REAL NOT NULL,
		fire_sources INTEGER NOT NULL,
		risk_cells INTEGER NOT NULL,
		fires_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS evacuations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		class TEXT NOT NULL,
		destination TEXT NOT NULL,
		tick INTEGER NOT NULL,
		spawned_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_run_tick ON snapshots(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_evacuations_run ON evacuations(run_id);
	`
	_, err := j.conn.ExecContext(ctx, schema)
	return err
}

// Present journals the statistics and fire state of snap.
func (j *Journal) Present(ctx context.Context, snap sim.Snapshot) error {
	fires, err := json.Marshal(snap.Fires)
	if err != nil {
		return fmt.Errorf("encode fires: %w", err)
	}
	st := snap.Stats
	_, err = j.conn.ExecContext(ctx, `INSERT INTO snapshots
		(run_id, tick, elapsed_ms, agents, evacuated, spawned, replans, path_failures,
		 avg_density, peak_density, fire_sources, risk_cells, fires_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.run.ID, int64(snap.Tick), snap.Elapsed.Milliseconds(), st.Agents, st.Evacuated, st.Spawned,
		st.Replans, st.PathFailures, st.AverageDensity, st.PeakDensity, st.FireSources, st.RiskCells,
		string(fires),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot at tick %d: %w", snap.Tick, err)
	}
	return nil
}

// RecordEvacuations journals evacuation events in one transaction.
func (j *Journal) RecordEvacuations(ctx context.Context, events []crowd.Evacuation) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := j.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO evacuations
		(run_id, agent_id, class, destination, tick, spawned_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, j.run.ID, ev.AgentID.String(), ev.Class.String(),
			ev.Destination, int64(ev.Tick), int64(ev.SpawnedAt)); err != nil {
			return fmt.Errorf("insert evacuation %s: %w", ev.AgentID, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit snapshots of the current run, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	var out []SnapshotRecord
	err := j.conn.SelectContext(ctx, &out, `SELECT tick, elapsed_ms, agents, evacuated, spawned, replans,
		path_failures, avg_density, peak_density, fire_sources, risk_cells, fires_json
		FROM snapshots WHERE run_id = ? ORDER BY tick DESC, id DESC LIMIT ?`, j.run.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	return out, nil
}

// ExitUsage counts evacuations per destination for the current run, busiest
// exit first.
func (j *Journal) ExitUsage(ctx context.Context) ([]ExitCount, error) {
	var out []ExitCount
	err := j.conn.SelectContext(ctx, &out, `SELECT destination, COUNT(*) AS agents
		FROM evacuations WHERE run_id = ? GROUP BY destination ORDER BY agents DESC, destination`, j.run.ID)
	if err != nil {
		return nil, fmt.Errorf("select exit usage: %w", err)
	}
	return out, nil
}
