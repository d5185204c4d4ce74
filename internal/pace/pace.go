// Package pace derives display strings for run durations and per-kilometer pace.
//
// Durations are rounded to the nearest whole second before being split into
// minutes and seconds, so the seconds field is always in [00, 59].
package pace

import (
	"math"
	"strconv"
)

// NoValue stands in for a metric that was not recorded or cannot be derived.
const NoValue = "-"

// FormatDuration renders seconds as "M:SS". Minutes are unbounded and not padded.
// Absent, negative or non-finite input yields NoValue.
func FormatDuration(seconds *float64) string {
	if seconds == nil {
		return NoValue
	}
	return formatSeconds(*seconds)
}

// ComputePace renders the time needed per kilometer as "M:SS". It yields
// NoValue unless both inputs are present and distance is greater than zero.
func ComputePace(durationSeconds, distanceKM *float64) string {
	perKM, ok := PaceSeconds(durationSeconds, distanceKM)
	if !ok {
		return NoValue
	}
	return formatSeconds(perKM)
}

// PaceSeconds returns the unrounded seconds per kilometer.
func PaceSeconds(durationSeconds, distanceKM *float64) (float64, bool) {
	if durationSeconds == nil || distanceKM == nil || *distanceKM <= 0 {
		return 0, false
	}
	perKM := *durationSeconds / *distanceKM
	if math.IsNaN(perKM) || math.IsInf(perKM, 0) {
		return 0, false
	}
	return perKM, true
}

func formatSeconds(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return NoValue
	}
	// Kept in float64; int64 would wrap above 2^63. Abs clears -0.
	total := math.Abs(math.Round(v))
	secs := math.Mod(total, 60)
	minutes := math.Floor(total / 60)

	buf := make([]byte, 0, 8)
	buf = strconv.AppendFloat(buf, minutes, 'f', 0, 64)
	buf = append(buf, ':')
	if secs < 10 {
		buf = append(buf, '0')
	}
	buf = strconv.AppendFloat(buf, secs, 'f', 0, 64)
	return string(buf)
}
