package domain

import (
	"fmt"
	"sort"
	"strings"

	"example.com/runlog/internal/pace"
)

// SortSpec selects the list ordering. The zero value keeps the store order (date, newest first).
type SortSpec struct {
	Key       ColumnKey
	Ascending bool
}

// IsDefault reports whether s matches the store's own ordering.
func (s SortSpec) IsDefault() bool {
	return (s.Key == "" || s.Key == ColumnDate) && !s.Ascending
}

// ParseSortSpec reads the sort and order query values. Notes cannot be sorted on.
func ParseSortSpec(key, order string) (SortSpec, error) {
	spec := SortSpec{Key: ColumnKey(strings.ToLower(strings.TrimSpace(key)))}
	if spec.Key == "" {
		spec.Key = ColumnDate
	}
	if _, ok := sortValue[spec.Key]; !ok && spec.Key != ColumnType && spec.Key != ColumnDate {
		return SortSpec{}, fmt.Errorf("cannot sort by %q", key)
	}

	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "desc":
	case "asc":
		spec.Ascending = true
	default:
		return SortSpec{}, fmt.Errorf("order must be asc or desc, got %q", order)
	}
	return spec, nil
}

var sortValue = map[ColumnKey]func(Run) (float64, bool){
	ColumnAvgBPM:   func(r Run) (float64, bool) { return intValue(r.AvgBPM) },
	ColumnMaxBPM:   func(r Run) (float64, bool) { return intValue(r.MaxBPM) },
	ColumnAvgSPM:   func(r Run) (float64, bool) { return intValue(r.AvgSPM) },
	ColumnDistance: func(r Run) (float64, bool) { return floatValue(r.DistanceKM) },
	ColumnDuration: func(r Run) (float64, bool) { return floatValue(r.DurationSeconds) },
	ColumnPace: func(r Run) (float64, bool) {
		return pace.PaceSeconds(r.DurationSeconds, r.DistanceKM)
	},
}

// SortRuns orders runs in place. Ties keep their current relative order and
// runs missing the sorted value always go last.
func SortRuns(runs []Run, spec SortSpec) {
	sort.SliceStable(runs, func(i, j int) bool {
		switch spec.Key {
		case ColumnType:
			if runs[i].Type == runs[j].Type {
				return false
			}
			return (runs[i].Type < runs[j].Type) == spec.Ascending
		case ColumnDate, "":
			if runs[i].Date.Equal(runs[j].Date) {
				return false
			}
			return runs[i].Date.Before(runs[j].Date) == spec.Ascending
		}

		value := sortValue[spec.Key]
		if value == nil {
			return false
		}
		a, aok := value(runs[i])
		b, bok := value(runs[j])
		switch {
		case !aok && !bok:
			return false
		case !aok:
			return false
		case !bok:
			return true
		case a == b:
			return false
		}
		return (a < b) == spec.Ascending
	})
}

func intValue(v *int) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return float64(*v), true
}

func floatValue(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}
