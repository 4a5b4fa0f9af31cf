package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfstats/internal/config"
	"shelfstats/internal/enrich"
	apierrors "shelfstats/internal/errors"
	custommw "shelfstats/internal/middleware"
	"shelfstats/internal/services"
)

const sampleCSV = `Book Id,Title,Author,My Rating,Average Rating,Number of Pages,Year Published,Date Read,Exclusive Shelf
1,The Hobbit,J.R.R. Tolkien,5,4.28,310,1937,2024/01/15,read
2,Dune,Frank Herbert,4,4.27,412,1965,2024/01/16,read
3,Later,Stephen King,0,3.90,248,2021,,to-read
`

// stubFetcher resolves every identifier to a fixed genre list.
type stubFetcher struct{ genres []string }

func (f *stubFetcher) FetchGenres(ctx context.Context, ids []string, progress func(done, total int)) (map[string][]string, enrich.Report) {
	out := make(map[string][]string, len(ids))
	for i, id := range ids {
		out[id] = f.genres
		if progress != nil {
			progress(i+1, len(ids))
		}
	}
	return out, enrich.Report{Attempted: len(ids), Found: len(ids)}
}

type testEnv struct {
	router     chi.Router
	store      *services.SessionStore
	enrichment *services.EnrichmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	errorHandler := apierrors.NewErrorHandler(logger, false)

	sessionCfg := config.SessionConfig{
		IdleTTL:       time.Hour,
		SweepInterval: time.Minute,
		MaxSessions:   16,
		DefaultTopN:   10,
		MaxTopN:       100,
	}

	store := services.NewSessionStore(sessionCfg, logger)
	insightsSvc := services.NewInsightsService(logger, nil)
	enrichmentSvc := services.NewEnrichmentService(&stubFetcher{genres: []string{"Fantasy"}}, nil, logger, nil)

	sessions := NewSessionHandler(store, insightsSvc, logger, errorHandler)
	insightsH := NewInsightsHandler(insightsSvc, sessionCfg, logger, errorHandler)
	enrichH := NewEnrichHandler(enrichmentSvc, logger, errorHandler)
	exportH := NewExportHandler(logger, errorHandler)

	r := chi.NewRouter()
	r.Use(custommw.RequestID)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", sessions.Create)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Use(sessions.SessionCtx)
			r.Delete("/", sessions.Delete)
			r.Get("/summary", sessions.Summary)
			r.Get("/streak", sessions.Streak)
			r.Get("/charts/books-per-year", insightsH.BooksPerYear)
			r.Get("/books/top-authors", insightsH.TopAuthors)
			r.Get("/books/published-in", insightsH.BooksPublishedIn)
			r.Post("/enrich", enrichH.Start)
			r.Get("/enrich", enrichH.Status)
			r.Delete("/enrich", enrichH.Cancel)
			r.Get("/export", exportH.ExportCSV)
			r.Get("/report.xlsx", exportH.ExportReport)
		})
	})

	return &testEnv{router: r, store: store, enrichment: enrichmentSvc}
}

func (env *testEnv) upload(t *testing.T, csv string) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "export.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func (env *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestSessionUploadAndSummary(t *testing.T) {
	env := newTestEnv(t)
	id := env.upload(t, sampleCSV)

	rec := env.get(t, "/api/sessions/"+id+"/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	// The to-read row is filtered out at import.
	assert.Equal(t, float64(2), summary["total_books"])
	assert.InDelta(t, 4.5, summary["avg_personal_rating"], 1e-9)
}

func TestSessionUpload_MissingColumns(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "export.csv")
	require.NoError(t, err)
	part.Write([]byte("Title,Author\nDune,Frank Herbert\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, apierrors.TypeSchema, problem["type"])
	assert.NotEmpty(t, problem["missing_columns"])
}

func TestSessionUpload_NoFile(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("other", "x")
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownSessionReturnsProblem(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/api/sessions/does-not-exist/summary")

	require.Equal(t, http.StatusNotFound, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, apierrors.TypeSessionNotFound, problem["type"])
}

func TestProblemCarriesRequestID(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/does-not-exist/summary", nil)
	req.Header.Set("X-Request-ID", "req-12345")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "req-12345", problem["trace_id"])
}

func TestListParamValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.upload(t, sampleCSV)

	for _, bad := range []string{"0", "-3", "101", "abc"} {
		rec := env.get(t, "/api/sessions/"+id+"/books/top-authors?n="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "n=%s", bad)
	}

	rec := env.get(t, "/api/sessions/"+id+"/books/top-authors?n=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var counts []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Len(t, counts, 1)
}

func TestBooksPublishedIn(t *testing.T) {
	env := newTestEnv(t)
	id := env.upload(t, sampleCSV)

	rec := env.get(t, "/api/sessions/"+id+"/books/published-in?year=1965")
	require.Equal(t, http.StatusOK, rec.Code)
	var books []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0]["title"])

	rec = env.get(t, "/api/sessions/"+id+"/books/published-in?year=oops")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnrichLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.upload(t, sampleCSV)

	// No run yet.
	rec := env.get(t, "/api/sessions/"+id+"/enrich")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierrors.TypeEnrichmentMissing, decodeProblem(t, rec)["type"])

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/enrich", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		status, err := env.enrichment.Status(id)
		return err == nil && status.State == services.RunStateCompleted
	}, 2*time.Second, 5*time.Millisecond)

	rec = env.get(t, "/api/sessions/"+id+"/enrich")
	require.Equal(t, http.StatusOK, rec.Code)
	var status services.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, services.RunStateCompleted, status.State)
	assert.Equal(t, 2, status.Report.Found)
}

func TestExportCSVRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	id := env.upload(t, sampleCSV)

	rec := env.get(t, "/api/sessions/"+id+"/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	body := rec.Body.Bytes()
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, body[:3])
	assert.Contains(t, string(body), "The Hobbit")

	// The export re-imports as a new session with the same row count.
	again := env.upload(t, string(body))
	rec = env.get(t, "/api/sessions/"+again+"/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, float64(2), summary["total_books"])
}

func TestExportReportContentType(t *testing.T) {
	env := newTestEnv(t)
	id := env.upload(t, sampleCSV)

	rec := env.get(t, "/api/sessions/"+id+"/report.xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotZero(t, rec.Body.Len())
}

func TestSessionDelete(t *testing.T) {
	env := newTestEnv(t)
	id := env.upload(t, sampleCSV)

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/sessions/%s", id), nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.get(t, "/api/sessions/"+id+"/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
