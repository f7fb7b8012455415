// Package monitoring records pipeline lineage: which runs touched a document
// and what every stage did. Lineage rides in a per-document SQLite file next
// to the artifacts, so shipping an output directory ships its history.
package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	document         TEXT NOT NULL,
	plan_fingerprint TEXT NOT NULL,
	started_at       TIMESTAMP NOT NULL,
	completed_at     TIMESTAMP,
	status           TEXT NOT NULL DEFAULT 'running'
);

CREATE TABLE IF NOT EXISTS stage_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	stage       TEXT NOT NULL,
	expected    INTEGER NOT NULL,
	reused      TEXT NOT NULL,
	produced    TEXT NOT NULL,
	failed      TEXT NOT NULL,
	missing     TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	recorded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stage_runs_run ON stage_runs(run_id);
`

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusPartial   RunStatus = "partial"
)

// Lineage writes and reads the per-document lineage database.
type Lineage struct {
	db     *sql.DB
	logger *observability.Logger
}

// OpenLineage opens (creating if needed) the lineage database at path.
func OpenLineage(path string, logger *observability.Logger) (*Lineage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, domain.IOError("failed to open lineage database", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, domain.IOError("failed to migrate lineage schema", err)
	}
	return &Lineage{db: db, logger: logger.WithOperation("lineage")}, nil
}

// Close releases the database handle.
func (l *Lineage) Close() error {
	return l.db.Close()
}

// BeginRun records the start of a pipeline run and returns its ID.
func (l *Lineage) BeginRun(ctx context.Context, doc domain.DocumentID, planFingerprint string) (string, error) {
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, document, plan_fingerprint, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		id, string(doc), planFingerprint, time.Now().UTC(), RunStatusRunning)
	if err != nil {
		return "", domain.IOError("failed to record run start", err)
	}
	return id, nil
}

// RecordStage appends one stage report to the run.
func (l *Lineage) RecordStage(ctx context.Context, runID string, report *domain.StageReport) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO stage_runs (run_id, stage, expected, reused, produced, failed, missing, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, string(report.Stage), report.Expected,
		encodeInts(report.Reused), encodeInts(report.Produced),
		encodeInts(report.Failed), encodeInts(report.Missing),
		report.Duration.Milliseconds(), time.Now().UTC())
	if err != nil {
		return domain.IOError(fmt.Sprintf("failed to record %s stage", report.Stage), err)
	}
	return nil
}

// CompleteRun marks the run finished with the given status.
func (l *Lineage) CompleteRun(ctx context.Context, runID string, status RunStatus) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET completed_at = ?, status = ? WHERE id = ?`,
		time.Now().UTC(), status, runID)
	if err != nil {
		return domain.IOError("failed to record run completion", err)
	}
	return nil
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID              string     `json:"id"`
	Document        string     `json:"document"`
	PlanFingerprint string     `json:"plan_fingerprint"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Status          RunStatus  `json:"status"`
}

// StageRecord is one recorded stage report.
type StageRecord struct {
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage"`
	Expected   int       `json:"expected"`
	Reused     []int     `json:"reused"`
	Produced   []int     `json:"produced"`
	Failed     []int     `json:"failed"`
	Missing    []int     `json:"missing"`
	DurationMS int64     `json:"duration_ms"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Runs returns every recorded run, most recent first.
func (l *Lineage) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, document, plan_fingerprint, started_at, completed_at, status FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, domain.IOError("failed to query runs", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Document, &r.PlanFingerprint, &r.StartedAt, &r.CompletedAt, &r.Status); err != nil {
			return nil, domain.IOError("failed to scan run", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StageRuns returns the stage reports recorded for one run, in order.
func (l *Lineage) StageRuns(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, stage, expected, reused, produced, failed, missing, duration_ms, recorded_at
		 FROM stage_runs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, domain.IOError("failed to query stage runs", err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var s StageRecord
		var reused, produced, failed, missing string
		if err := rows.Scan(&s.RunID, &s.Stage, &s.Expected, &reused, &produced, &failed, &missing, &s.DurationMS, &s.RecordedAt); err != nil {
			return nil, domain.IOError("failed to scan stage run", err)
		}
		s.Reused = decodeInts(reused)
		s.Produced = decodeInts(produced)
		s.Failed = decodeInts(failed)
		s.Missing = decodeInts(missing)
		out = append(out, s)
	}
	return out, rows.Err()
}

func encodeInts(v []int) string {
	if v == nil {
		v = []int{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func decodeInts(s string) []int {
	var v []int
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return []int{}
	}
	return v
}
