package domain

import (
	"fmt"
	"math"
	"strings"
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ValidationError aggregates the field errors found in one input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "invalid run: " + strings.Join(parts, "; ")
}

// Validate checks the data-model invariants: known type, a date, and
// non-negative numbers, with counts capped at MaxCount. Max BPM below avg BPM is accepted.
func (in RunInput) Validate() []FieldError {
	var errs []FieldError

	if in.Type == "" {
		errs = append(errs, FieldError{"type", "required"})
	} else if !in.Type.Valid() {
		errs = append(errs, FieldError{"type", fmt.Sprintf("unknown run type %q", string(in.Type))})
	}

	if in.Date.IsZero() {
		errs = append(errs, FieldError{"date", "required (YYYY-MM-DD)"})
	}

	errs = appendIntError(errs, "avg_bpm", in.AvgBPM)
	errs = appendIntError(errs, "max_bpm", in.MaxBPM)
	errs = appendIntError(errs, "avg_spm", in.AvgSPM)
	errs = appendFloatError(errs, "duration", in.DurationSeconds)
	errs = appendFloatError(errs, "distance", in.DistanceKM)

	return errs
}

// Normalize drops empty notes so that "" and absent mean the same thing.
func (in RunInput) Normalize() RunInput {
	if in.Notes != nil && *in.Notes == "" {
		in.Notes = nil
	}
	return in
}

// MaxCount bounds the integer fields so every store can hold them in a 32-bit column.
const MaxCount = math.MaxInt32

func appendIntError(errs []FieldError, field string, v *int) []FieldError {
	switch {
	case v == nil:
	case *v < 0:
		errs = append(errs, FieldError{field, "must be >= 0"})
	case *v > MaxCount:
		errs = append(errs, FieldError{field, fmt.Sprintf("must be <= %d", MaxCount)})
	}
	return errs
}

func appendFloatError(errs []FieldError, field string, v *float64) []FieldError {
	if v == nil {
		return errs
	}
	switch {
	case math.IsNaN(*v) || math.IsInf(*v, 0):
		errs = append(errs, FieldError{field, "must be a finite number"})
	case *v < 0:
		errs = append(errs, FieldError{field, "must be >= 0"})
	}
	return errs
}
