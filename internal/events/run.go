// Package events defines the run lifecycle payloads published through the outbox.
package events

import (
	"time"

	"example.com/runlog/internal/domain"
)

// Event types recorded in the outbox.
const (
	TypeRunCreated = "run.created"
	TypeRunUpdated = "run.updated"
	TypeRunDeleted = "run.deleted"
)

// Topic carries every run event, keyed by the owning user id.
const Topic = "run_events"

// SchemaSubject is the registry subject for Topic record values.
const SchemaSubject = Topic + "-value"

// Types lists the run event types in lifecycle order.
func Types() []string {
	return []string{TypeRunCreated, TypeRunUpdated, TypeRunDeleted}
}

// IsKnown reports whether eventType is one of Types.
func IsKnown(eventType string) bool {
	switch eventType {
	case TypeRunCreated, TypeRunUpdated, TypeRunDeleted:
		return true
	}
	return false
}

// RunSnapshot is the full state of a run at the time of the event.
type RunSnapshot struct {
	RunID           string    `json:"run_id"`
	UserID          string    `json:"user_id"`
	Type            string    `json:"type"`
	Date            string    `json:"date"`
	AvgBPM          *int      `json:"avg_bpm"`
	MaxBPM          *int      `json:"max_bpm"`
	DurationSeconds *float64  `json:"duration_seconds"`
	DistanceKM      *float64  `json:"distance_km"`
	AvgSPM          *int      `json:"avg_spm"`
	Notes           *string   `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RunCreated is emitted when a run is first logged.
type RunCreated struct {
	RunSnapshot
	OccurredAt time.Time `json:"occurred_at"`
}

// RunUpdated is emitted after a full-record replacement.
type RunUpdated struct {
	RunSnapshot
	OccurredAt time.Time `json:"occurred_at"`
}

// RunDeleted is emitted when a run is removed.
type RunDeleted struct {
	RunID      string    `json:"run_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SnapshotOf captures run for an event payload.
func SnapshotOf(run domain.Run) RunSnapshot {
	return RunSnapshot{
		RunID:           run.ID,
		UserID:          run.UserID,
		Type:            string(run.Type),
		Date:            run.Date.String(),
		AvgBPM:          run.AvgBPM,
		MaxBPM:          run.MaxBPM,
		DurationSeconds: run.DurationSeconds,
		DistanceKM:      run.DistanceKM,
		AvgSPM:          run.AvgSPM,
		Notes:           run.Notes,
		CreatedAt:       run.CreatedAt,
		UpdatedAt:       run.UpdatedAt,
	}
}
