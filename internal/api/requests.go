package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"example.com/runlog/internal/domain"
)

// RunRequest is the JSON payload for POST /v1/runs and PUT /v1/runs/{id}.
// Omitted or null optional fields are stored as absent.
type RunRequest struct {
	Type            string   `json:"type"`
	Date            string   `json:"date"`
	AvgBPM          *int     `json:"avg_bpm"`
	MaxBPM          *int     `json:"max_bpm"`
	DurationSeconds *float64 `json:"duration_seconds"`
	DistanceKM      *float64 `json:"distance_km"`
	AvgSPM          *int     `json:"avg_spm"`
	Notes           *string  `json:"notes"`
}

// decodeRunInput reads a JSON or form-encoded body. It writes the error
// response itself and reports false when the body cannot become a RunInput.
func decodeRunInput(w http.ResponseWriter, r *http.Request) (domain.RunInput, bool) {
	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "invalid Content-Type")
			return domain.RunInput{}, false
		}
		mediaType = parsed
	}

	var (
		input  domain.RunInput
		fields []domain.FieldError
	)
	switch mediaType {
	case "application/json":
		var req RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBodyError(w, err)
			return domain.RunInput{}, false
		}
		input, fields = req.toInput()
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			writeBodyError(w, err)
			return domain.RunInput{}, false
		}
		input, fields = formInput(r.PostForm)
	default:
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json or application/x-www-form-urlencoded")
		return domain.RunInput{}, false
	}

	if len(fields) > 0 {
		writeValidationError(w, mergeFieldErrors(fields, input.Validate()))
		return domain.RunInput{}, false
	}
	return input, true
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
}

func (req RunRequest) toInput() (domain.RunInput, []domain.FieldError) {
	input := domain.RunInput{
		Type:            domain.Category(strings.TrimSpace(req.Type)),
		AvgBPM:          req.AvgBPM,
		MaxBPM:          req.MaxBPM,
		DurationSeconds: req.DurationSeconds,
		DistanceKM:      req.DistanceKM,
		AvgSPM:          req.AvgSPM,
		Notes:           req.Notes,
	}

	var fields []domain.FieldError
	if strings.TrimSpace(req.Date) != "" {
		date, err := domain.ParseDate(req.Date)
		if err != nil {
			fields = append(fields, domain.FieldError{Field: "date", Msg: err.Error()})
		}
		input.Date = date
	}
	return input, fields
}

// formInput coerces form values. Empty values mean absent; values that do not
// parse as numbers are reported as field errors.
func formInput(form url.Values) (domain.RunInput, []domain.FieldError) {
	c := formCoercer{form: form}
	input := domain.RunInput{
		Type:            domain.Category(strings.TrimSpace(form.Get("type"))),
		Date:            c.dateField("date"),
		AvgBPM:          c.intField("avg_bpm", "avg_bpm"),
		MaxBPM:          c.intField("max_bpm", "max_bpm"),
		DurationSeconds: c.floatField("duration_seconds", "duration"),
		DistanceKM:      c.floatField("distance_km", "distance"),
		AvgSPM:          c.intField("avg_spm", "avg_spm"),
	}
	if notes := form.Get("notes"); notes != "" {
		input.Notes = &notes
	}
	return input, c.errs
}

type formCoercer struct {
	form url.Values
	errs []domain.FieldError
}

func (c *formCoercer) value(key string) (string, bool) {
	raw := strings.TrimSpace(c.form.Get(key))
	return raw, raw != ""
}

func (c *formCoercer) intField(key, field string) *int {
	raw, ok := c.value(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.errs = append(c.errs, domain.FieldError{Field: field, Msg: "must be a whole number"})
		return nil
	}
	return &v
}

func (c *formCoercer) floatField(key, field string) *float64 {
	raw, ok := c.value(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.errs = append(c.errs, domain.FieldError{Field: field, Msg: "must be a number"})
		return nil
	}
	return &v
}

func (c *formCoercer) dateField(key string) domain.Date {
	raw, ok := c.value(key)
	if !ok {
		return domain.Date{}
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		c.errs = append(c.errs, domain.FieldError{Field: "date", Msg: err.Error()})
		return domain.Date{}
	}
	return d
}

// mergeFieldErrors keeps coercion errors and adds model errors for fields not already reported.
func mergeFieldErrors(coercion, model []domain.FieldError) []domain.FieldError {
	seen := make(map[string]struct{}, len(coercion))
	out := make([]domain.FieldError, 0, len(coercion)+len(model))
	for _, f := range coercion {
		seen[f.Field] = struct{}{}
		out = append(out, f)
	}
	for _, f := range model {
		if _, dup := seen[f.Field]; dup {
			continue
		}
		out = append(out, f)
	}
	return out
}
