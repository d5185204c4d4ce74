package pace

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var durationPattern = regexp.MustCompile(`^\d+:\d{2}$`)

// TestFormatDurationReconstructsRoundedSeconds verifies the "M:SS" shape and
// that minutes*60+seconds equals the input rounded to the nearest second.
func TestFormatDurationReconstructsRoundedSeconds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("duration decodes to the rounded input", prop.ForAll(
		func(s float64) bool {
			out := FormatDuration(&s)
			if !durationPattern.MatchString(out) {
				return false
			}
			parts := strings.SplitN(out, ":", 2)
			minutes, err := strconv.ParseInt(parts[0], 10, 64)
			if err != nil {
				return false
			}
			secs, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil || secs > 59 {
				return false
			}
			return minutes*60+secs == int64(math.Round(s))
		},
		gen.Float64Range(0, 1e15),
	))

	properties.TestingRun(t)
}

// TestFormatDurationShapeHoldsForEveryFiniteInput covers values past the int64 range.
func TestFormatDurationShapeHoldsForEveryFiniteInput(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("duration is M:SS", prop.ForAll(
		func(s float64) bool {
			return durationPattern.MatchString(FormatDuration(&s))
		},
		gen.Float64Range(0, math.MaxFloat64),
	))

	properties.Property("pace is M:SS or the sentinel", prop.ForAll(
		func(d, km float64) bool {
			out := ComputePace(&d, &km)
			return out == NoValue || durationPattern.MatchString(out)
		},
		gen.Float64Range(0, math.MaxFloat64),
		gen.Float64Range(1e-300, 1e-3),
	))

	properties.TestingRun(t)
}

// TestComputePaceNeverDividesByZero verifies a zero or absent distance always yields the sentinel.
func TestComputePaceNeverDividesByZero(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("zero distance yields sentinel", prop.ForAll(
		func(d float64) bool {
			zero := 0.0
			return ComputePace(&d, &zero) == NoValue && ComputePace(&d, nil) == NoValue && ComputePace(nil, &d) == NoValue
		},
		gen.Float64Range(0, 1e6),
	))

	properties.Property("pace output is deterministic", prop.ForAll(
		func(d, km float64) bool {
			return ComputePace(&d, &km) == ComputePace(&d, &km)
		},
		gen.Float64Range(0, 1e6),
		gen.Float64Range(0.01, 500),
	))

	properties.TestingRun(t)
}
