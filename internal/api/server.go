package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine  *gin.Engine
	handler *Handler
}

// NewRouter constructs a Router with the full middleware chain and all
// routes registered. The middleware order is fixed:
//  1. Recovery — panic → 500
//  2. Trace — trace context per request
//  3. RequestLogger — structured request/response logging
func NewRouter(h *Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(slog.Default()))
	engine.Use(Trace("winmaxreturn"))
	engine.Use(RequestLogger(slog.Default()))

	engine.GET("/", h.Index)

	v1 := engine.Group("/api/v1")
	v1.POST("/analyze", h.Analyze)
	v1.POST("/report", h.Report)
	v1.GET("/runs", h.ListRuns)
	v1.GET("/runs/:id", h.GetRun)

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)

	return &Router{engine: engine, handler: h}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// MarkReady flips the readiness probe to 200.
func (r *Router) MarkReady() {
	r.handler.MarkReady()
}
