package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/runlog/internal/auth"
	"example.com/runlog/internal/domain"
	"example.com/runlog/internal/persistence/memory"
)

var exportDay = time.Date(2024, time.March, 12, 18, 0, 0, 0, time.UTC)

type countingRepo struct {
	domain.RunRepository
	calls int
	err   error
}

func (c *countingRepo) List(ctx context.Context, ownerID string) ([]domain.Run, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.RunRepository.List(ctx, ownerID)
}

func (c *countingRepo) Insert(ctx context.Context, run domain.Run) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	return c.RunRepository.Insert(ctx, run)
}

func newTestHandler(seed ...domain.Run) (http.Handler, *countingRepo) {
	repo := &countingRepo{RunRepository: memory.NewRepository(seed...)}
	service := domain.NewService(repo)
	handler := NewHandler(service, WithClock(func() time.Time { return exportDay }))

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, repo
}

func withClaims(req *http.Request, subject string, scopes ...string) *http.Request {
	granted := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		granted[scope] = struct{}{}
	}
	claims := &auth.Claims{Subject: subject, Scopes: granted}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func raceRun() domain.Run {
	avg, peak, spm := 160, 182, 172
	dur, dist := 5400.0, 21.1
	created := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	return domain.Run{
		ID:              "run-race",
		UserID:          "user-1",
		Type:            domain.CategoryRace,
		Date:            domain.NewDate(2024, time.March, 10),
		AvgBPM:          &avg,
		MaxBPM:          &peak,
		DurationSeconds: &dur,
		DistanceKM:      &dist,
		AvgSPM:          &spm,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func easyRun() domain.Run {
	dur := 1800.0
	notes := "legs | heavy\nslow"
	created := time.Date(2024, time.March, 1, 7, 0, 0, 0, time.UTC)
	return domain.Run{
		ID:              "run-easy",
		UserID:          "user-1",
		Type:            domain.CategoryEasyRun,
		Date:            domain.NewDate(2024, time.March, 1),
		DurationSeconds: &dur,
		Notes:           &notes,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestUnauthenticatedRequestsNeverReachStore(t *testing.T) {
	h, repo := newTestHandler(raceRun())

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/v1/runs", nil),
		httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"type":"Race","date":"2024-03-10"}`)),
		httptest.NewRequest(http.MethodGet, "/v1/runs/export", nil),
		httptest.NewRequest(http.MethodDelete, "/v1/runs/run-race", nil),
	} {
		rec := do(t, h, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, req.Method+" "+req.URL.Path)
	}
	require.Zero(t, repo.calls)
}

func TestMissingScopeIsForbidden(t *testing.T) {
	h, repo := newTestHandler()

	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"type":"Race","date":"2024-03-10"}`)), "user-1", auth.ScopeRunsRead)
	rec := do(t, h, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Zero(t, repo.calls)
}

func TestListRunsReturnsViewsAndColumns(t *testing.T) {
	h, _ := newTestHandler(raceRun(), easyRun())

	rec := do(t, h, withClaims(httptest.NewRequest(http.MethodGet, "/v1/runs", nil), "user-1", auth.ScopeRunsWrite))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListRunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	require.Equal(t, "run-race", resp.Items[0].ID)

	race := resp.Items[0]
	require.Equal(t, "Mar 10, 2024", race.DateDisplay)
	require.Equal(t, "90:00", race.DurationDisplay)
	require.Equal(t, "4:16", race.PaceDisplay)
	require.Equal(t, "21.1 km", race.DistanceDisplay)

	easy := resp.Items[1]
	require.Equal(t, "-", easy.PaceDisplay)
	require.Nil(t, easy.DistanceKM)

	require.Len(t, resp.Columns, len(domain.Columns()))
	require.Equal(t, "Avg BPM", resp.Columns[2].Header)
}

func TestListRunsSortsByQuery(t *testing.T) {
	h, _ := newTestHandler(raceRun(), easyRun())

	rec := do(t, h, withClaims(httptest.NewRequest(http.MethodGet, "/v1/runs?sort=duration&order=asc", nil), "user-1", auth.ScopeRunsRead))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListRunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "run-easy", resp.Items[0].ID)

	rec = do(t, h, withClaims(httptest.NewRequest(http.MethodGet, "/v1/runs?sort=notes", nil), "user-1", auth.ScopeRunsRead))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRunFromJSON(t *testing.T) {
	h, _ := newTestHandler()

	body := `{"type":"Tempo Run","date":"2024-04-02","avg_bpm":171,"duration_seconds":1500,"distance_km":5,"notes":""}`
	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(body)), "user-9", auth.ScopeRunsWrite)
	req.Header.Set("Content-Type", "application/json")
	rec := do(t, h, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.NotEmpty(t, view.ID)
	require.Equal(t, "/v1/runs/"+view.ID, rec.Header().Get("Location"))
	require.Equal(t, "Tempo Run", view.Type)
	require.Equal(t, "5:00", view.PaceDisplay)
	require.Nil(t, view.Notes)
	require.Nil(t, view.MaxBPM)

	rec = do(t, h, withClaims(httptest.NewRequest(http.MethodGet, "/v1/runs/"+view.ID, nil), "user-9", auth.ScopeRunsRead))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateRunFromFormCoercesEmptyToAbsent(t *testing.T) {
	h, _ := newTestHandler()

	form := "type=Trail&date=2024-05-04&avg_bpm=&max_bpm=175&duration_seconds=3600&distance_km=&avg_spm=&notes="
	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(form)), "user-1", auth.ScopeRunsWrite)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := do(t, h, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Nil(t, view.AvgBPM)
	require.Equal(t, 175, *view.MaxBPM)
	require.Nil(t, view.DistanceKM)
	require.Nil(t, view.Notes)
	require.Equal(t, "60:00", view.DurationDisplay)
	require.Equal(t, "-", view.PaceDisplay)
}

func TestCreateRunRejectsNonNumericForm(t *testing.T) {
	h, repo := newTestHandler()

	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader("type=Jog&date=2024-05-04&avg_bpm=abc")), "user-1", auth.ScopeRunsWrite)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := do(t, h, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "validation_failed", resp.Type)
	fields := map[string]bool{}
	for _, f := range resp.Errors {
		fields[f.Field] = true
	}
	require.True(t, fields["avg_bpm"])
	require.True(t, fields["type"])
	require.Zero(t, repo.calls)
}

func TestCreateRunRejectsInvalidModel(t *testing.T) {
	h, _ := newTestHandler()

	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"type":"Race","distance_km":-3}`)), "user-1", auth.ScopeRunsWrite)
	rec := do(t, h, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 2)
}

func TestCreateRunRejectsCountsAboveBound(t *testing.T) {
	h, repo := newTestHandler()

	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"type":"Race","date":"2024-03-10","avg_bpm":2147483648}`)), "user-1", auth.ScopeRunsWrite)
	rec := do(t, h, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	require.Equal(t, "avg_bpm", resp.Errors[0].Field)
	require.Zero(t, repo.calls)
}

func TestCreateRunWithHugeDurationKeepsDisplayShape(t *testing.T) {
	h, _ := newTestHandler()

	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"type":"Race","date":"2024-03-10","duration_seconds":1e19,"distance_km":5}`)), "user-1", auth.ScopeRunsWrite)
	rec := do(t, h, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "166666666666666656:40", view.DurationDisplay)
	require.Regexp(t, `^\d+:\d{2}$`, view.PaceDisplay)
}

func TestCreateRunRejectsMalformedBodies(t *testing.T) {
	h, _ := newTestHandler()

	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"type":`)), "user-1", auth.ScopeRunsWrite)
	require.Equal(t, http.StatusBadRequest, do(t, h, req).Code)

	req = withClaims(httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`<run/>`)), "user-1", auth.ScopeRunsWrite)
	req.Header.Set("Content-Type", "application/xml")
	require.Equal(t, http.StatusUnsupportedMediaType, do(t, h, req).Code)
}

func TestCreateRunStoreFailureIs500(t *testing.T) {
	h, repo := newTestHandler()
	repo.err = errors.New("connection reset")

	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"type":"Race","date":"2024-03-10"}`)), "user-1", auth.ScopeRunsWrite)
	rec := do(t, h, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "connection reset")
}

func TestUpdateRunReplacesRecord(t *testing.T) {
	h, _ := newTestHandler(raceRun())

	req := withClaims(httptest.NewRequest(http.MethodPut, "/v1/runs/run-race", strings.NewReader(`{"type":"Long Run","date":"2024-03-10","distance_km":21.1}`)), "user-1", auth.ScopeRunsWrite)
	rec := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var view RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "Long Run", view.Type)
	require.Nil(t, view.AvgBPM, "full replacement drops omitted fields")
	require.Nil(t, view.DurationSeconds)

	req = withClaims(httptest.NewRequest(http.MethodPut, "/v1/runs/run-race", strings.NewReader(`{"type":"Race","date":"2024-03-10"}`)), "user-2", auth.ScopeRunsWrite)
	require.Equal(t, http.StatusNotFound, do(t, h, req).Code)
}

func TestDeleteRun(t *testing.T) {
	h, _ := newTestHandler(raceRun(), easyRun())

	rec := do(t, h, withClaims(httptest.NewRequest(http.MethodDelete, "/v1/runs/run-race", nil), "user-2", auth.ScopeRunsWrite))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, withClaims(httptest.NewRequest(http.MethodDelete, "/v1/runs/run-race", nil), "user-1", auth.ScopeRunsWrite))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, withClaims(httptest.NewRequest(http.MethodGet, "/v1/runs/run-race", nil), "user-1", auth.ScopeRunsRead))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, withClaims(httptest.NewRequest(http.MethodGet, "/v1/runs/run-easy", nil), "user-1", auth.ScopeRunsRead))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestExportRunsDownloadsMarkdown(t *testing.T) {
	h, _ := newTestHandler(raceRun(), easyRun())

	rec := do(t, h, withClaims(httptest.NewRequest(http.MethodGet, "/v1/runs/export", nil), "user-1", auth.ScopeRunsRead))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, "attachment; filename=runs-2024-03-12.md", rec.Header().Get("Content-Disposition"))

	want := strings.Join([]string{
		"| Type | Date | Avg BPM | Max BPM | Distance | Duration | Pace | Avg SPM | Notes |",
		"| --- | --- | --- | --- | --- | --- | --- | --- | --- |",
		"| Race | Mar 10, 2024 | 160 | 182 | 21.1 km | 90:00 | 4:16 | 172 | - |",
		`| Easy Run | Mar 1, 2024 | - | - | - | 30:00 | - | - | legs \| heavy slow |`,
	}, "\n")
	require.Equal(t, want, rec.Body.String())
}

func TestExportEmptyLogIsNoContent(t *testing.T) {
	h, _ := newTestHandler(raceRun())

	rec := do(t, h, withClaims(httptest.NewRequest(http.MethodGet, "/v1/runs/export", nil), "user-2", auth.ScopeRunsRead))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Header().Get("Content-Disposition"))
	require.Zero(t, rec.Body.Len())
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler()
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
