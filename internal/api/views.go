package api

import (
	"encoding/json"
	"net/http"
	"time"

	"example.com/runlog/internal/domain"
	"example.com/runlog/internal/export"
	"example.com/runlog/internal/pace"
)

// RunView exposes a run with its raw fields and derived display strings.
type RunView struct {
	ID              string      `json:"id"`
	Type            string      `json:"type"`
	Date            domain.Date `json:"date"`
	AvgBPM          *int        `json:"avg_bpm"`
	MaxBPM          *int        `json:"max_bpm"`
	DurationSeconds *float64    `json:"duration_seconds"`
	DistanceKM      *float64    `json:"distance_km"`
	AvgSPM          *int        `json:"avg_spm"`
	Notes           *string     `json:"notes"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	DateDisplay     string      `json:"date_display"`
	DistanceDisplay string      `json:"distance_display"`
	DurationDisplay string      `json:"duration_display"`
	PaceDisplay     string      `json:"pace_display"`
}

// ColumnView describes one column of the run table.
type ColumnView struct {
	Key    string `json:"key"`
	Header string `json:"header"`
}

// ListRunsResponse packages list results with the table layout.
type ListRunsResponse struct {
	Items   []RunView    `json:"items"`
	Columns []ColumnView `json:"columns"`
}

type errorResponse struct {
	Type   string              `json:"type"`
	Detail string              `json:"detail"`
	Errors []domain.FieldError `json:"errors,omitempty"`
}

func toRunView(run domain.Run) RunView {
	return RunView{
		ID:              run.ID,
		Type:            string(run.Type),
		Date:            run.Date,
		AvgBPM:          run.AvgBPM,
		MaxBPM:          run.MaxBPM,
		DurationSeconds: run.DurationSeconds,
		DistanceKM:      run.DistanceKM,
		AvgSPM:          run.AvgSPM,
		Notes:           run.Notes,
		CreatedAt:       run.CreatedAt,
		UpdatedAt:       run.UpdatedAt,
		DateDisplay:     export.FormatDate(run.Date),
		DistanceDisplay: export.FormatDistance(run.DistanceKM),
		DurationDisplay: pace.FormatDuration(run.DurationSeconds),
		PaceDisplay:     pace.ComputePace(run.DurationSeconds, run.DistanceKM),
	}
}

func columnViews() []ColumnView {
	cols := domain.Columns()
	out := make([]ColumnView, 0, len(cols))
	for _, col := range cols {
		out = append(out, ColumnView{Key: string(col.Key), Header: col.Header})
	}
	return out
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Type: code, Detail: detail})
}

func writeValidationError(w http.ResponseWriter, fields []domain.FieldError) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Type:   "validation_failed",
		Detail: "run failed validation",
		Errors: fields,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
