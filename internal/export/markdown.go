// Package export serialises run logs into a Markdown table and hands the
// result to a download surface (an HTTP response or a local file).
package export

import (
	"strconv"
	"strings"
	"time"

	"example.com/runlog/internal/domain"
	"example.com/runlog/internal/pace"
)

// ContentType is the MIME type of an exported run log.
const ContentType = "text/markdown; charset=utf-8"

// DisplayDateLayout renders dates as e.g. "Mar 10, 2024", independent of locale.
const DisplayDateLayout = "Jan 2, 2006"

var notesEscaper = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// ToMarkdown renders runs as a Markdown table in the order given. The columns
// come from domain.Columns. An empty slice yields just the header and separator.
func ToMarkdown(runs []domain.Run) string {
	cols := domain.Columns()

	lines := make([]string, 0, len(runs)+2)
	header := make([]string, len(cols))
	separator := make([]string, len(cols))
	for i, col := range cols {
		header[i] = col.Header
		separator[i] = "---"
	}
	lines = append(lines, row(header), row(separator))

	cells := make([]string, len(cols))
	for _, run := range runs {
		for i, col := range cols {
			cells[i] = Cell(run, col.Key)
		}
		lines = append(lines, row(cells))
	}
	return strings.Join(lines, "\n")
}

// Cell renders a single column of a run for display.
func Cell(run domain.Run, key domain.ColumnKey) string {
	switch key {
	case domain.ColumnType:
		return string(run.Type)
	case domain.ColumnDate:
		return FormatDate(run.Date)
	case domain.ColumnAvgBPM:
		return formatInt(run.AvgBPM)
	case domain.ColumnMaxBPM:
		return formatInt(run.MaxBPM)
	case domain.ColumnDistance:
		return FormatDistance(run.DistanceKM)
	case domain.ColumnDuration:
		return pace.FormatDuration(run.DurationSeconds)
	case domain.ColumnPace:
		return pace.ComputePace(run.DurationSeconds, run.DistanceKM)
	case domain.ColumnAvgSPM:
		return formatInt(run.AvgSPM)
	case domain.ColumnNotes:
		return EscapeNotes(run.Notes)
	}
	return pace.NoValue
}

// FormatDate renders a calendar day with DisplayDateLayout.
func FormatDate(d domain.Date) string {
	if d.IsZero() {
		return pace.NoValue
	}
	return d.Time().Format(DisplayDateLayout)
}

// FormatDistance renders kilometers with the shortest exact decimal and a unit suffix.
func FormatDistance(km *float64) string {
	if km == nil {
		return pace.NoValue
	}
	return strconv.FormatFloat(*km, 'f', -1, 64) + " km"
}

// EscapeNotes makes free text safe for a single table cell: pipes are escaped
// first, then every line break collapses to one space.
func EscapeNotes(notes *string) string {
	if notes == nil {
		return pace.NoValue
	}
	escaped := strings.ReplaceAll(*notes, "|", `\|`)
	return notesEscaper.Replace(escaped)
}

// Filename names an export produced on the given day, e.g. "runs-2024-03-10.md".
func Filename(day time.Time) string {
	return "runs-" + day.UTC().Format("2006-01-02") + ".md"
}

func formatInt(v *int) string {
	if v == nil {
		return pace.NoValue
	}
	return strconv.Itoa(*v)
}

func row(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}
