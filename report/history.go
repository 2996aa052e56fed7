package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/openfluke/heat3d/params"
	"github.com/openfluke/heat3d/solver"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	backend TEXT NOT NULL,
	nx INTEGER NOT NULL,
	ny INTEGER NOT NULL,
	nz INTEGER NOT NULL,
	dt REAL NOT NULL,
	max_iterations INTEGER NOT NULL,
	output_frequency INTEGER NOT NULL,
	started_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS steps (
	run_id TEXT NOT NULL REFERENCES runs(id),
	iteration INTEGER NOT NULL,
	sim_time REAL NOT NULL,
	variation REAL NOT NULL,
	wall_ms REAL NOT NULL,
	PRIMARY KEY (run_id, iteration)
);
CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id);
`

// History persists step reports in a SQLite database.
type History struct {
	db *sql.DB
}

// OpenHistory opens or creates the database at path.
func OpenHistory(path string) (*History, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

// Run is one recorded simulation.
type Run struct {
	ID      uuid.UUID
	Backend string
	Params  params.Parameters
	Started time.Time
}

// BeginRun records a new run and returns its identifier.
func (h *History) BeginRun(ctx context.Context, backend string, p params.Parameters) (uuid.UUID, error) {
	id := uuid.New()
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO runs (id, backend, nx, ny, nz, dt, max_iterations, output_frequency, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), backend, p.NX, p.NY, p.NZ, p.DT, p.MaxIterations, p.OutputFrequency, time.Now().UnixNano())
	if err != nil {
		return uuid.Nil, fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

// Record stores one step report of run.
func (h *History) Record(ctx context.Context, run uuid.UUID, r solver.StepReport) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO steps (run_id, iteration, sim_time, variation, wall_ms) VALUES (?, ?, ?, ?, ?)`,
		run.String(), r.Iteration, r.SimTime, r.Variation, r.StepWallMillis())
	if err != nil {
		return fmt.Errorf("record step %d: %w", r.Iteration, err)
	}
	return nil
}

// Sink adapts Record to a solver.Sink.
func (h *History) Sink(ctx context.Context, run uuid.UUID) solver.Sink {
	return func(r solver.StepReport) error {
		return h.Record(ctx, run, r)
	}
}

// Steps returns the recorded reports of run in iteration order.
func (h *History) Steps(ctx context.Context, run uuid.UUID) ([]solver.StepReport, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT iteration, sim_time, variation, wall_ms FROM steps WHERE run_id = ? ORDER BY iteration`,
		run.String())
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var out []solver.StepReport
	for rows.Next() {
		var (
			r  solver.StepReport
			ms float64
		)
		if err := rows.Scan(&r.Iteration, &r.SimTime, &r.Variation, &ms); err != nil {
			return nil, err
		}
		r.StepWallTime = time.Duration(ms * float64(time.Millisecond))
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs lists recorded runs, newest first.
func (h *History) Runs(ctx context.Context) ([]Run, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, backend, nx, ny, nz, dt, max_iterations, output_frequency, started_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			id                  string
			r                   Run
			nx, ny, nz          int
			dt                  float64
			iters, outFrequency int
			started             int64
		)
		if err := rows.Scan(&id, &r.Backend, &nx, &ny, &nz, &dt, &iters, &outFrequency, &started); err != nil {
			return nil, err
		}
		r.Started = time.Unix(0, started).UTC()
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		if r.Params, err = params.New(nx, ny, nz, dt, iters, outFrequency); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Tee fans a report out to several sinks, stopping at the first error.
func Tee(sinks ...solver.Sink) solver.Sink {
	return func(r solver.StepReport) error {
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s(r); err != nil {
				return err
			}
		}
		return nil
	}
}
