package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rickyyue315/winmaxreturn/internal/analysis"
	"github.com/rickyyue315/winmaxreturn/internal/archive"
	"github.com/rickyyue315/winmaxreturn/internal/cache"
	"github.com/rickyyue315/winmaxreturn/internal/inventory"
	"github.com/rickyyue315/winmaxreturn/internal/launcher"
)

// noopLogger returns a slog.Logger that discards all output — keeps test output clean.
func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Test doubles ---

// fakeAnalyzer is a test double that implements AnalyzerService.
type fakeAnalyzer struct {
	result *analysis.Result
	err    error
	// calls counts Run invocations so cache-hit tests can assert the
	// engine was bypassed.
	calls int
}

func (f *fakeAnalyzer) Run(_ context.Context, records []inventory.Record, mode analysis.Mode) (*analysis.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &analysis.Result{Mode: mode, RecordCount: len(records)}, nil
}

// fakeArchive is a test double that implements RunArchive.
type fakeArchive struct {
	runs    []archive.Run
	saveErr error
	listErr error
}

func (f *fakeArchive) SaveRun(_ context.Context, source string, result *analysis.Result) (*archive.Run, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	run := archive.Run{ID: fmt.Sprintf("run-%d", len(f.runs)+1), Source: source, Mode: string(result.Mode)}
	f.runs = append(f.runs, run)
	return &run, nil
}

func (f *fakeArchive) GetRun(_ context.Context, id string) (*archive.Run, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, archive.ErrNotFound
}

func (f *fakeArchive) ListRuns(_ context.Context, _ int) ([]archive.Run, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.runs, nil
}

// fakeCache is a test double that implements ResultCache.
type fakeCache struct {
	entries map[string]*analysis.Result
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*analysis.Result{}}
}

func (f *fakeCache) Get(_ context.Context, key string) (*analysis.Result, error) {
	if r, ok := f.entries[key]; ok {
		return r, nil
	}
	return nil, cache.ErrMiss
}

func (f *fakeCache) Set(_ context.Context, key string, result *analysis.Result) error {
	f.entries[key] = result
	return nil
}

// fakeProber is a test double for the deep-health probes.
type fakeProber struct {
	result launcher.ProbeResult
}

func (f *fakeProber) Probe(_ context.Context) launcher.ProbeResult { return f.result }

// --- Helpers ---

// snapshotBytes builds a minimal valid snapshot workbook.
func snapshotBytes(t *testing.T) []byte {
	t.Helper()

	f := excelize.NewFile()
	header := []any{
		inventory.ColArticle, inventory.ColDescription, inventory.ColOM,
		inventory.ColRPType, inventory.ColSite, inventory.ColNetStock,
		inventory.ColPendingReceived, inventory.ColSafetyStock,
		inventory.ColLastMonthSold, inventory.ColMTDSold,
	}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	rows := [][]any{
		{"106545309001", "Facial Mask 10pcs", "Candy", "ND", "H001", 10, 0, 5, 3, 2},
		{"106545309002", "Hand Cream", "Candy", "RF", "H002", 20, 2, 5, 1, 1},
	}
	for i, row := range rows {
		row := row
		require.NoError(t, f.SetSheetRow("Sheet1", fmt.Sprintf("A%d", i+2), &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// multipartBody builds a multipart form with the snapshot under "file" and
// the given mode field.
func multipartBody(t *testing.T, snapshot []byte, mode string) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "snapshot.xlsx")
	require.NoError(t, err)
	_, err = part.Write(snapshot)
	require.NoError(t, err)
	if mode != "" {
		require.NoError(t, w.WriteField("mode", mode))
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func testHandler() *Handler {
	return NewHandler(&fakeAnalyzer{}, nil, nil, nil, "web/index.html", 100000)
}

// newTestEngine builds a minimal Gin engine with only the given handler — no
// middleware — for isolated handler testing.
func newTestEngine(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, h)
	return r
}

func postUpload(t *testing.T, engine *gin.Engine, path string, snapshot []byte, mode string) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, snapshot, mode)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	engine.ServeHTTP(w, req)
	return w
}

// --- Analyze handler ---

func TestAnalyze_200WithValidUpload(t *testing.T) {
	t.Parallel()

	handler := testHandler()
	engine := newTestEngine(http.MethodPost, "/api/v1/analyze", handler.Analyze)

	w := postUpload(t, engine, "/api/v1/analyze", snapshotBytes(t), "both")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		RunID  string          `json:"runId"`
		Cached bool            `json:"cached"`
		Result analysis.Result `json:"result"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.False(t, body.Cached)
	assert.Empty(t, body.RunID, "no archive configured, no run id")
	assert.Equal(t, analysis.ModeBoth, body.Result.Mode)
	assert.Equal(t, 2, body.Result.RecordCount)
}

func TestAnalyze_400OnUnknownMode(t *testing.T) {
	t.Parallel()

	handler := testHandler()
	engine := newTestEngine(http.MethodPost, "/api/v1/analyze", handler.Analyze)

	w := postUpload(t, engine, "/api/v1/analyze", snapshotBytes(t), "everything")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyze_400OnMissingFile(t *testing.T) {
	t.Parallel()

	handler := testHandler()
	engine := newTestEngine(http.MethodPost, "/api/v1/analyze", handler.Analyze)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("mode", "both"))
	require.NoError(t, w.Close())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyze_400OnGarbageWorkbook(t *testing.T) {
	t.Parallel()

	handler := testHandler()
	engine := newTestEngine(http.MethodPost, "/api/v1/analyze", handler.Analyze)

	w := postUpload(t, engine, "/api/v1/analyze", []byte("this is not an xlsx"), "both")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyze_422OnMissingColumns(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	header := []any{"Article", "Site"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	row := []any{"106545309001", "H001"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &row))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	handler := testHandler()
	engine := newTestEngine(http.MethodPost, "/api/v1/analyze", handler.Analyze)

	w := postUpload(t, engine, "/api/v1/analyze", buf.Bytes(), "both")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAnalyze_ArchivesRun(t *testing.T) {
	t.Parallel()

	arch := &fakeArchive{}
	handler := NewHandler(&fakeAnalyzer{}, arch, nil, nil, "web/index.html", 100000)
	engine := newTestEngine(http.MethodPost, "/api/v1/analyze", handler.Analyze)

	w := postUpload(t, engine, "/api/v1/analyze", snapshotBytes(t), "both")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "run-1", body["runId"])

	require.Len(t, arch.runs, 1)
	assert.Equal(t, "snapshot.xlsx", arch.runs[0].Source)
}

func TestAnalyze_ArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	arch := &fakeArchive{saveErr: errors.New("disk full")}
	handler := NewHandler(&fakeAnalyzer{}, arch, nil, nil, "web/index.html", 100000)
	engine := newTestEngine(http.MethodPost, "/api/v1/analyze", handler.Analyze)

	w := postUpload(t, engine, "/api/v1/analyze", snapshotBytes(t), "both")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "", body["runId"])
}

func TestAnalyze_CacheHitBypassesEngine(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	rc := newFakeCache()
	handler := NewHandler(analyzer, nil, rc, nil, "web/index.html", 100000)
	engine := newTestEngine(http.MethodPost, "/api/v1/analyze", handler.Analyze)

	snapshot := snapshotBytes(t)

	w := postUpload(t, engine, "/api/v1/analyze", snapshot, "both")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, analyzer.calls)

	// Same snapshot and mode again: served from the cache.
	w = postUpload(t, engine, "/api/v1/analyze", snapshot, "both")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, analyzer.calls, "second request must hit the cache")

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, true, body["cached"])

	// A different mode is a different key.
	w = postUpload(t, engine, "/api/v1/analyze", snapshot, "nd_only")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, analyzer.calls)
}

func TestAnalyze_500OnEngineFailure(t *testing.T) {
	t.Parallel()

	handler := NewHandler(&fakeAnalyzer{err: errors.New("boom")}, nil, nil, nil, "web/index.html", 100000)
	engine := newTestEngine(http.MethodPost, "/api/v1/analyze", handler.Analyze)

	w := postUpload(t, engine, "/api/v1/analyze", snapshotBytes(t), "both")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// --- Report handler ---

func TestReport_ReturnsAttachment(t *testing.T) {
	t.Parallel()

	handler := testHandler()
	engine := newTestEngine(http.MethodPost, "/api/v1/report", handler.Report)

	w := postUpload(t, engine, "/api/v1/report", snapshotBytes(t), "both")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, contentTypeXLSX, w.Header().Get("Content-Type"))
	disposition := w.Header().Get("Content-Disposition")
	assert.Contains(t, disposition, "attachment")
	assert.Contains(t, disposition, time.Now().Format("20060102"))

	// The body must be a readable workbook.
	wb, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close() //nolint:errcheck
	assert.Contains(t, wb.GetSheetList(), "Summary")
}

func TestReport_400OnUnknownMode(t *testing.T) {
	t.Parallel()

	handler := testHandler()
	engine := newTestEngine(http.MethodPost, "/api/v1/report", handler.Report)

	w := postUpload(t, engine, "/api/v1/report", snapshotBytes(t), "bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Runs handlers ---

func TestListRuns_503WithoutArchive(t *testing.T) {
	t.Parallel()

	handler := testHandler()
	engine := newTestEngine(http.MethodGet, "/api/v1/runs", handler.ListRuns)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListRuns_ReturnsArchivedRuns(t *testing.T) {
	t.Parallel()

	arch := &fakeArchive{runs: []archive.Run{
		{ID: "run-1", Source: "a.xlsx"},
		{ID: "run-2", Source: "b.xlsx"},
	}}
	handler := NewHandler(&fakeAnalyzer{}, arch, nil, nil, "web/index.html", 100000)
	engine := newTestEngine(http.MethodGet, "/api/v1/runs", handler.ListRuns)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Runs []archive.Run `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Len(t, body.Runs, 2)
}

func TestGetRun_404ForUnknownID(t *testing.T) {
	t.Parallel()

	handler := NewHandler(&fakeAnalyzer{}, &fakeArchive{}, nil, nil, "web/index.html", 100000)
	engine := newTestEngine(http.MethodGet, "/api/v1/runs/:id", handler.GetRun)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/nope", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRun_ReturnsRun(t *testing.T) {
	t.Parallel()

	arch := &fakeArchive{runs: []archive.Run{{ID: "run-7", Source: "c.xlsx"}}}
	handler := NewHandler(&fakeAnalyzer{}, arch, nil, nil, "web/index.html", 100000)
	engine := newTestEngine(http.MethodGet, "/api/v1/runs/:id", handler.GetRun)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-7", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var run archive.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&run))
	assert.Equal(t, "c.xlsx", run.Source)
}

// --- Health handlers ---

func TestHealth_AlwaysReturns200(t *testing.T) {
	t.Parallel()

	handler := testHandler()
	engine := newTestEngine(http.MethodGet, "/health", handler.Health)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "shallow", body["mode"])
}

func TestDeepHealth_200WhenAllHealthy(t *testing.T) {
	t.Parallel()

	probes := []launcher.Prober{
		&fakeProber{result: launcher.ProbeResult{Name: "archive", OK: true}},
		&fakeProber{result: launcher.ProbeResult{Name: "result-cache", OK: true}},
	}
	handler := NewHandler(&fakeAnalyzer{}, nil, nil, probes, "web/index.html", 100000)
	engine := newTestEngine(http.MethodGet, "/health/deep", handler.DeepHealth)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/deep", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestDeepHealth_503WhenAnyUnhealthy(t *testing.T) {
	t.Parallel()

	probes := []launcher.Prober{
		&fakeProber{result: launcher.ProbeResult{Name: "archive", OK: true}},
		&fakeProber{result: launcher.ProbeResult{Name: "result-cache", OK: false, Error: "connection refused"}},
	}
	handler := NewHandler(&fakeAnalyzer{}, nil, nil, probes, "web/index.html", 100000)
	engine := newTestEngine(http.MethodGet, "/health/deep", handler.DeepHealth)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/deep", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body["status"])
}

// --- Ready handler ---

func TestReady_503BeforeLaunchCompletes(t *testing.T) {
	t.Parallel()

	handler := testHandler()
	engine := newTestEngine(http.MethodGet, "/ready", handler.Ready)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReady_200AfterMarkReady(t *testing.T) {
	t.Parallel()

	handler := testHandler()
	handler.MarkReady()
	engine := newTestEngine(http.MethodGet, "/ready", handler.Ready)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, true, body["ready"])
}

// --- RequestLogger middleware ---

func TestRequestLogger_SeverityTracksStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	engine := gin.New()
	engine.Use(RequestLogger(logger))
	engine.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	engine.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	cases := []struct {
		path      string
		wantLevel string
	}{
		{"/ok", "INFO"},
		{"/bad", "WARN"},
		{"/boom", "ERROR"},
	}

	for _, tc := range cases {
		buf.Reset()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		engine.ServeHTTP(w, req)

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line), "path %s", tc.path)
		assert.Equal(t, tc.wantLevel, line["level"], "path %s", tc.path)
		assert.Equal(t, tc.path, line["route"])
		assert.Equal(t, http.MethodGet, line["method"])
	}
}

// --- Recovery middleware ---

func TestRecoveryMiddleware_Returns500OnPanic(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.Use(Recovery(noopLogger()))
	engine.GET("/panic", func(c *gin.Context) {
		panic("intentional test panic")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "error", body["status"])
}
