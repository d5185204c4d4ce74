// Package postgres stores runs in PostgreSQL and records run events in the outbox table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/runlog/internal/domain"
	"example.com/runlog/internal/events"
	"example.com/runlog/internal/observability"
)

const runColumns = `run_id, user_id, run_type, run_date, avg_bpm, max_bpm, duration_seconds, distance_km, avg_spm, notes, created_at, updated_at`

// Repository provides Postgres-backed persistence for runs and outbox events.
type Repository struct {
	pool   *pgxpool.Pool
	outbox bool
}

// Option configures optional behaviour for the Repository.
type Option func(*Repository)

// WithOutbox toggles recording of run events alongside each write.
func WithOutbox(enabled bool) Option {
	return func(r *Repository) {
		r.outbox = enabled
	}
}

// NewRepository constructs a Repository. Outbox recording is on by default.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool, outbox: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// inOwnerTx runs fn in a transaction whose row-level-security identity is ownerID.
func (r *Repository) inOwnerTx(ctx context.Context, ownerID string, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", ownerID); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// List returns the owner's runs ordered by date, newest first.
func (r *Repository) List(ctx context.Context, ownerID string) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + `
        FROM runs WHERE user_id=$1
        ORDER BY run_date DESC, created_at DESC`

	var results []domain.Run
	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()

		results = make([]domain.Run, 0)
		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				return err
			}
			results = append(results, run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Get retrieves a run by ID. It returns nil when the owner has no such run.
func (r *Repository) Get(ctx context.Context, ownerID, runID string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE user_id=$1 AND run_id::text=$2`

	var found *domain.Run
	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		run, err := scanRun(tx.QueryRow(ctx, query, ownerID, runID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = &run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Insert persists the run and records a run.created event inside a single transaction.
func (r *Repository) Insert(ctx context.Context, run domain.Run) error {
	const stmt = `INSERT INTO runs (` + runColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	err := r.inOwnerTx(ctx, run.UserID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, stmt,
			run.ID,
			run.UserID,
			string(run.Type),
			run.Date.Time(),
			run.AvgBPM,
			run.MaxBPM,
			run.DurationSeconds,
			run.DistanceKM,
			run.AvgSPM,
			run.Notes,
			run.CreatedAt,
			run.UpdatedAt,
		); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, run.UserID, run.ID, events.TypeRunCreated, run.ID, events.RunCreated{
			RunSnapshot: events.SnapshotOf(run),
			OccurredAt:  run.CreatedAt,
		})
	})
	if err != nil {
		return err
	}
	observability.RecordRunWritten(observability.OperationInsert, run.CreatedAt)
	return nil
}

// Update replaces the editable columns of a run and records a run.updated event.
func (r *Repository) Update(ctx context.Context, run domain.Run) (bool, error) {
	const stmt = `UPDATE runs SET run_type=$3, run_date=$4, avg_bpm=$5, max_bpm=$6, duration_seconds=$7,
            distance_km=$8, avg_spm=$9, notes=$10, updated_at=$11
        WHERE user_id=$1 AND run_id::text=$2`

	var updated bool
	err := r.inOwnerTx(ctx, run.UserID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt,
			run.UserID,
			run.ID,
			string(run.Type),
			run.Date.Time(),
			run.AvgBPM,
			run.MaxBPM,
			run.DurationSeconds,
			run.DistanceKM,
			run.AvgSPM,
			run.Notes,
			run.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		updated = true
		dedupe := fmt.Sprintf("%s:%d", run.ID, run.UpdatedAt.UnixNano())
		return r.insertOutbox(ctx, tx, run.UserID, run.ID, events.TypeRunUpdated, dedupe, events.RunUpdated{
			RunSnapshot: events.SnapshotOf(run),
			OccurredAt:  run.UpdatedAt,
		})
	})
	if err != nil {
		return false, err
	}
	if updated {
		observability.RecordRunWritten(observability.OperationUpdate, run.UpdatedAt)
	}
	return updated, nil
}

// Delete removes one run and records a run.deleted event.
func (r *Repository) Delete(ctx context.Context, ownerID, runID string) (bool, error) {
	const stmt = `DELETE FROM runs WHERE user_id=$1 AND run_id::text=$2`

	now := time.Now().UTC()
	var deleted bool
	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt, ownerID, runID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		deleted = true
		return r.insertOutbox(ctx, tx, ownerID, runID, events.TypeRunDeleted, runID, events.RunDeleted{
			RunID:      runID,
			UserID:     ownerID,
			OccurredAt: now,
		})
	})
	if err != nil {
		return false, err
	}
	if deleted {
		observability.RecordRunWritten(observability.OperationDelete, now)
	}
	return deleted, nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, userID, runID, eventType, dedupeSuffix string, payload interface{}) error {
	if !r.outbox {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		userID,
		"run",
		runID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		userID,
		body,
		fmt.Sprintf("%s:%s", eventType, dedupeSuffix),
	)
	return err
}

func scanRun(row pgx.Row) (domain.Run, error) {
	var (
		run     domain.Run
		runType string
		runDate time.Time
	)
	if err := row.Scan(&run.ID, &run.UserID, &runType, &runDate, &run.AvgBPM, &run.MaxBPM, &run.DurationSeconds, &run.DistanceKM, &run.AvgSPM, &run.Notes, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return domain.Run{}, err
	}
	run.Type = domain.Category(runType)
	run.Date = domain.DateOf(runDate)
	return run, nil
}

// EventMetadata describes how to route an outbox event. Runs are keyed by
// owner so each user's events stay ordered within a partition.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeRunCreated: {Topic: events.Topic, SchemaSubject: events.SchemaSubject},
	events.TypeRunUpdated: {Topic: events.Topic, SchemaSubject: events.SchemaSubject},
	events.TypeRunDeleted: {Topic: events.Topic, SchemaSubject: events.SchemaSubject},
}
