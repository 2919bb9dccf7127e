package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickyyue315/winmaxreturn/internal/analysis"
	"github.com/rickyyue315/winmaxreturn/internal/api"
	"github.com/rickyyue315/winmaxreturn/internal/archive"
	"github.com/rickyyue315/winmaxreturn/internal/cache"
	"github.com/rickyyue315/winmaxreturn/internal/config"
	"github.com/rickyyue315/winmaxreturn/internal/fetch"
	"github.com/rickyyue315/winmaxreturn/internal/launcher"
	"github.com/rickyyue315/winmaxreturn/internal/telemetry"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE and referenced by
// up.go, analyze.go, and selftest.go.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	engine       *analysis.Engine
	store        *archive.Store
	cache        *cache.ResultCache
	fetcher      *fetch.Fetcher
	sequencer    *launcher.Sequencer
	router       *api.Router
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Opens the run archive (degrades to disabled on failure)
//  3. Creates the optional result cache and dataset fetcher
//  4. Creates the analysis engine and launch sequencer
//  5. Creates the HTTP router
//
// The archive, cache, and fetcher are optional; their nil concrete
// pointers must never be assigned into non-nil interface values, so the
// wiring below guards every conversion.
func buildAppContext(cfg *config.Config) (*AppContext, error) {
	app := &AppContext{
		cfg:    cfg,
		engine: analysis.New(cfg.Analysis),
	}

	// OTEL is best-effort: a missing collector must never block startup.
	// When OTLPEndpoint is empty, telemetry is disabled entirely.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Info("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(
			context.Background(),
			cfg.Telemetry.OTLPEndpoint,
			cfg.Telemetry.ServiceName,
			cfg.Telemetry.OTLPInsecure,
		)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
		}
	}

	if !cfg.Archive.Disabled {
		store, err := archive.NewStore(cfg.Archive.Dir)
		if err != nil {
			slog.Warn("run archive unavailable", "err", err)
		} else {
			app.store = store
		}
	}

	app.cache = cache.New(cfg.Cache)
	app.fetcher = fetch.New(cfg.Fetch)

	var (
		archiveProber  launcher.Prober
		cacheProber    launcher.Prober
		datasetFetcher launcher.DatasetFetcher
		arch           api.RunArchive
		rc             api.ResultCache
		probes         []launcher.Prober
	)
	if app.store != nil {
		archiveProber = app.store
		arch = app.store
		probes = append(probes, app.store)
	}
	if app.cache != nil {
		cacheProber = app.cache
		rc = app.cache
		probes = append(probes, app.cache)
	}
	if app.fetcher != nil {
		datasetFetcher = app.fetcher
		probes = append(probes, app.fetcher)
	}

	app.sequencer = launcher.New(cfg, app.engine, archiveProber, cacheProber, datasetFetcher)

	handler := api.NewHandler(app.engine, arch, rc, probes, cfg.Launcher.EntryAsset, cfg.Analysis.SalesCap)
	app.router = api.NewRouter(handler)

	return app, nil
}

// Close releases the app's long-lived resources. Safe to call once per
// process, typically deferred by the subcommand RunE.
func (a *AppContext) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("closing archive", "err", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("closing cache", "err", err)
		}
	}
	if a.otelProvider != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelProvider.Shutdown(shutCtx); err != nil {
			slog.Warn("OTEL shutdown error", "err", err)
		}
	}
}
