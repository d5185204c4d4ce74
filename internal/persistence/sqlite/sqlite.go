// Package sqlite stores runs in a single local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"example.com/runlog/internal/domain"
	"example.com/runlog/internal/observability"
)

const runColumns = `run_id, user_id, run_type, run_date, avg_bpm, max_bpm, duration_seconds, distance_km, avg_spm, notes, created_at, updated_at`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		run_type TEXT NOT NULL,
		run_date TEXT NOT NULL,
		avg_bpm INTEGER,
		max_bpm INTEGER,
		duration_seconds REAL,
		distance_km REAL,
		avg_spm INTEGER,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_user_date_idx ON runs (user_id, run_date DESC, created_at DESC)`,
}

// Repository implements domain.RunRepository on database/sql.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite file at path and prepares the schema.
func Open(ctx context.Context, path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	repo, err := NewRepository(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewRepository wraps an existing handle and creates the schema when missing.
func NewRepository(ctx context.Context, db *sql.DB) (*Repository, error) {
	r := &Repository{db: db}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// List returns the owner's runs, newest date first.
func (r *Repository) List(ctx context.Context, ownerID string) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE user_id = ? ORDER BY run_date DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Get returns nil when the owner has no run with that ID.
func (r *Repository) Get(ctx context.Context, ownerID, runID string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE user_id = ? AND run_id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, ownerID, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// Insert persists a new run.
func (r *Repository) Insert(ctx context.Context, run domain.Run) error {
	query := `INSERT INTO runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.UserID,
		string(run.Type),
		run.Date.String(),
		intArg(run.AvgBPM),
		intArg(run.MaxBPM),
		floatArg(run.DurationSeconds),
		floatArg(run.DistanceKM),
		intArg(run.AvgSPM),
		stringArg(run.Notes),
		formatTime(run.CreatedAt),
		formatTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	observability.RecordRunWritten(observability.OperationInsert, run.CreatedAt)
	return nil
}

// Update replaces the editable columns of an existing run.
func (r *Repository) Update(ctx context.Context, run domain.Run) (bool, error) {
	query := `UPDATE runs SET run_type = ?, run_date = ?, avg_bpm = ?, max_bpm = ?, duration_seconds = ?,
		distance_km = ?, avg_spm = ?, notes = ?, updated_at = ?
		WHERE user_id = ? AND run_id = ?`

	res, err := r.db.ExecContext(ctx, query,
		string(run.Type),
		run.Date.String(),
		intArg(run.AvgBPM),
		intArg(run.MaxBPM),
		floatArg(run.DurationSeconds),
		floatArg(run.DistanceKM),
		intArg(run.AvgSPM),
		stringArg(run.Notes),
		formatTime(run.UpdatedAt),
		run.UserID,
		run.ID,
	)
	if err != nil {
		return false, fmt.Errorf("update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	observability.RecordRunWritten(observability.OperationUpdate, run.UpdatedAt)
	return true, nil
}

// Delete removes a single run owned by ownerID.
func (r *Repository) Delete(ctx context.Context, ownerID, runID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE user_id = ? AND run_id = ?`, ownerID, runID)
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	observability.RecordRunWritten(observability.OperationDelete, time.Now().UTC())
	return true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.Run, error) {
	var (
		run                  domain.Run
		runType, runDate     string
		avgBPM, maxBPM, spm  sql.NullInt64
		duration, distance   sql.NullFloat64
		notes                sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&run.ID, &run.UserID, &runType, &runDate, &avgBPM, &maxBPM, &duration, &distance, &spm, &notes, &createdAt, &updatedAt); err != nil {
		return domain.Run{}, err
	}

	date, err := domain.ParseDate(runDate)
	if err != nil {
		return domain.Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.Run{}, fmt.Errorf("run %s created_at: %w", run.ID, err)
	}
	if run.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return domain.Run{}, fmt.Errorf("run %s updated_at: %w", run.ID, err)
	}

	run.Type = domain.Category(runType)
	run.Date = date
	run.AvgBPM = nullInt(avgBPM)
	run.MaxBPM = nullInt(maxBPM)
	run.AvgSPM = nullInt(spm)
	run.DurationSeconds = nullFloat(duration)
	run.DistanceKM = nullFloat(distance)
	if notes.Valid {
		run.Notes = &notes.String
	}
	return run, nil
}

// timeLayout is fixed width so that text order matches time order. Reads
// still use RFC3339Nano, which accepts it.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intArg(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringArg(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
