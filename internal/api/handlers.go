package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickyyue315/winmaxreturn/internal/analysis"
	"github.com/rickyyue315/winmaxreturn/internal/archive"
	"github.com/rickyyue315/winmaxreturn/internal/cache"
	"github.com/rickyyue315/winmaxreturn/internal/inventory"
	"github.com/rickyyue315/winmaxreturn/internal/launcher"
	"github.com/rickyyue315/winmaxreturn/internal/report"
)

// maxUploadBytes caps the size of an uploaded snapshot workbook.
const maxUploadBytes = 32 << 20

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AnalyzerService is the subset of *analysis.Engine used by the HTTP
// handlers. Declaring it as an interface allows test doubles to be injected.
type AnalyzerService interface {
	Run(ctx context.Context, records []inventory.Record, mode analysis.Mode) (*analysis.Result, error)
}

// RunArchive is the subset of *archive.Store used by the HTTP handlers.
type RunArchive interface {
	SaveRun(ctx context.Context, source string, result *analysis.Result) (*archive.Run, error)
	GetRun(ctx context.Context, id string) (*archive.Run, error)
	ListRuns(ctx context.Context, limit int) ([]archive.Run, error)
}

// ResultCache is the subset of *cache.ResultCache used by the HTTP handlers.
type ResultCache interface {
	Get(ctx context.Context, key string) (*analysis.Result, error)
	Set(ctx context.Context, key string, result *analysis.Result) error
}

// Handler holds the dependencies shared across all HTTP handlers. The
// archive and cache fields may be nil when those dependencies are not
// configured; the handlers degrade accordingly.
type Handler struct {
	analyzer   AnalyzerService
	archive    RunArchive
	cache      ResultCache
	probes     []launcher.Prober
	entryAsset string
	salesCap   int
	ready      atomic.Bool
}

// NewHandler wires the handler dependencies. probes are the backing
// dependencies surfaced through the deep-health endpoint; pass only the
// configured ones.
func NewHandler(analyzer AnalyzerService, arch RunArchive, rc ResultCache, probes []launcher.Prober, entryAsset string, salesCap int) *Handler {
	return &Handler{
		analyzer:   analyzer,
		archive:    arch,
		cache:      rc,
		probes:     probes,
		entryAsset: entryAsset,
		salesCap:   salesCap,
	}
}

// MarkReady flips the readiness probe to 200. Called once the launch
// sequence has completed.
func (h *Handler) MarkReady() {
	h.ready.Store(true)
}

// Index handles GET /.
// It serves the upload page the launch sequence verified at startup.
func (h *Handler) Index(c *gin.Context) {
	c.File(h.entryAsset)
}

// Analyze handles POST /api/v1/analyze.
// It accepts a multipart snapshot workbook plus a mode form field and
// returns the analysis result as JSON.
func (h *Handler) Analyze(c *gin.Context) {
	result, runID, cached := h.analyzeUpload(c)
	if result == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runId":  runID,
		"cached": cached,
		"result": result,
	})
}

// Report handles POST /api/v1/report.
// Same input as Analyze, but the response is the recommendation workbook
// as an xlsx attachment.
func (h *Handler) Report(c *gin.Context) {
	result, _, _ := h.analyzeUpload(c)
	if result == nil {
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, result); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "building report: " + err.Error()})
		return
	}

	filename := report.Filename(time.Now())
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentTypeXLSX, buf.Bytes())
}

// analyzeUpload parses the multipart upload, consults the cache, and runs
// the analysis. On failure it writes the error response and returns a nil
// result. The returned run id is empty when the archive is unavailable or
// the result came from the cache.
func (h *Handler) analyzeUpload(c *gin.Context) (*analysis.Result, string, bool) {
	mode, err := analysis.ParseMode(c.PostForm("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return nil, "", false
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "missing file field"})
		return nil, "", false
	}
	if fh.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "uploaded file exceeds size limit"})
		return nil, "", false
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "unreadable upload: " + err.Error()})
		return nil, "", false
	}
	defer f.Close() //nolint:errcheck

	snapshot, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "reading upload: " + err.Error()})
		return nil, "", false
	}

	ctx := c.Request.Context()

	var key string
	if h.cache != nil {
		key = cache.Key(snapshot, mode)
		if hit, err := h.cache.Get(ctx, key); err == nil {
			return hit, "", true
		} else if !errors.Is(err, cache.ErrMiss) {
			slog.WarnContext(ctx, "cache lookup failed", "err", err)
		}
	}

	records, err := inventory.ReadWorkbook(bytes.NewReader(snapshot), h.salesCap)
	if err != nil {
		var missing *inventory.MissingColumnsError
		code := http.StatusBadRequest
		if errors.As(err, &missing) || errors.Is(err, inventory.ErrNoData) {
			code = http.StatusUnprocessableEntity
		}
		c.JSON(code, gin.H{"status": "error", "error": err.Error()})
		return nil, "", false
	}

	result, err := h.analyzer.Run(ctx, records, mode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return nil, "", false
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, key, result); err != nil {
			slog.WarnContext(ctx, "cache store failed", "err", err)
		}
	}

	var runID string
	if h.archive != nil {
		run, err := h.archive.SaveRun(ctx, fh.Filename, result)
		if err != nil {
			slog.WarnContext(ctx, "archiving run failed", "err", err)
		} else {
			runID = run.ID
		}
	}

	return result, runID, false
}

// ListRuns handles GET /api/v1/runs.
// It returns archived run summaries, newest first. 503 when the archive
// is unavailable.
func (h *Handler) ListRuns(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "archive unavailable"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := h.archive.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun handles GET /api/v1/runs/:id.
// It returns one archived run with its full result. 404 for unknown ids.
func (h *Handler) GetRun(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "archive unavailable"})
		return
	}

	run, err := h.archive.GetRun(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, archive.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "run not found"})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
	default:
		c.JSON(http.StatusOK, run)
	}
}

// Health handles GET /health.
// It always returns 200, this is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It probes the configured backing dependencies and returns 200 only when
// every probe is OK.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := make(map[string]launcher.ProbeResult, len(h.probes))
	allOK := true
	for _, p := range h.probes {
		res := p.Probe(c.Request.Context())
		probes[res.Name] = res
		if !res.OK {
			allOK = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// It returns 200 only after the launch sequence has completed; 503 otherwise.
func (h *Handler) Ready(c *gin.Context) {
	if h.ready.Load() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
