package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category is one of the fixed run types a record may carry.
type Category string

const (
	CategoryEasyRun   Category = "Easy Run"
	CategoryLongRun   Category = "Long Run"
	CategoryTempoRun  Category = "Tempo Run"
	CategoryInterval  Category = "Interval"
	CategoryFartlek   Category = "Fartlek"
	CategoryRecovery  Category = "Recovery"
	CategoryRace      Category = "Race"
	CategoryTrail     Category = "Trail"
	CategoryTreadmill Category = "Treadmill"
)

var categories = []Category{
	CategoryEasyRun,
	CategoryLongRun,
	CategoryTempoRun,
	CategoryInterval,
	CategoryFartlek,
	CategoryRecovery,
	CategoryRace,
	CategoryTrail,
	CategoryTreadmill,
}

// Categories returns the closed set of run types in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c belongs to the category set.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory maps raw input onto a known category.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.TrimSpace(raw))
	if !c.Valid() {
		return "", fmt.Errorf("unknown run type %q", raw)
	}
	return c, nil
}

const dateLayout = "2006-01-02"

// Date is a calendar day without time of day. The zero value means unset.
type Date struct {
	t time.Time
}

// NewDate builds the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day t falls on, evaluated in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses the YYYY-MM-DD form.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return Date{t: t}, nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return d.t }

// Before orders dates chronologically.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// Equal reports whether both values name the same day.
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// MarshalJSON renders the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD" or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Run is one logged running session owned by a single user.
type Run struct {
	ID              string
	UserID          string
	Type            Category
	Date            Date
	AvgBPM          *int
	MaxBPM          *int
	DurationSeconds *float64
	DistanceKM      *float64
	AvgSPM          *int
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RunInput carries the user-editable part of a run, used for both create and replace.
type RunInput struct {
	Type            Category
	Date            Date
	AvgBPM          *int
	MaxBPM          *int
	DurationSeconds *float64
	DistanceKM      *float64
	AvgSPM          *int
	Notes           *string
}

// Apply overwrites every editable field of r with the input.
func (in RunInput) Apply(r *Run) {
	r.Type = in.Type
	r.Date = in.Date
	r.AvgBPM = in.AvgBPM
	r.MaxBPM = in.MaxBPM
	r.DurationSeconds = in.DurationSeconds
	r.DistanceKM = in.DistanceKM
	r.AvgSPM = in.AvgSPM
	r.Notes = in.Notes
}

// ColumnKey identifies one displayed attribute of a run.
type ColumnKey string

const (
	ColumnType     ColumnKey = "type"
	ColumnDate     ColumnKey = "date"
	ColumnAvgBPM   ColumnKey = "avg_bpm"
	ColumnMaxBPM   ColumnKey = "max_bpm"
	ColumnDistance ColumnKey = "distance"
	ColumnDuration ColumnKey = "duration"
	ColumnPace     ColumnKey = "pace"
	ColumnAvgSPM   ColumnKey = "avg_spm"
	ColumnNotes    ColumnKey = "notes"
)

// Column pairs a display key with its table header.
type Column struct {
	Key    ColumnKey
	Header string
}

var columns = []Column{
	{Key: ColumnType, Header: "Type"},
	{Key: ColumnDate, Header: "Date"},
	{Key: ColumnAvgBPM, Header: "Avg BPM"},
	{Key: ColumnMaxBPM, Header: "Max BPM"},
	{Key: ColumnDistance, Header: "Distance"},
	{Key: ColumnDuration, Header: "Duration"},
	{Key: ColumnPace, Header: "Pace"},
	{Key: ColumnAvgSPM, Header: "Avg SPM"},
	{Key: ColumnNotes, Header: "Notes"},
}

// Columns lists the displayed run attributes in table order. Tables and
// exports build their layout from this list.
func Columns() []Column {
	out := make([]Column, len(columns))
	copy(out, columns)
	return out
}
