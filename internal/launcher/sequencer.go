// Package launcher implements the startup sequence: runtime report,
// dependency preparation, file checks, self-check, in that order. The
// only fatal condition is a missing entry asset; everything else warns
// and continues.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/rickyyue315/winmaxreturn/internal/analysis"
	"github.com/rickyyue315/winmaxreturn/internal/config"
)

// Step names, in execution order.
const (
	StepRuntime      = "runtime"
	StepDependencies = "dependencies"
	StepEntryAsset   = "entry-asset"
	StepDataset      = "dataset"
	StepSelfCheck    = "self-check"
)

// ErrEntryAssetMissing aborts the sequence; the process must exit 1
// without starting the server.
var ErrEntryAssetMissing = errors.New("entry asset missing")

// Prober is satisfied by *archive.Store and *cache.ResultCache.
type Prober interface {
	Probe(ctx context.Context) ProbeResult
}

// DatasetFetcher is satisfied by *fetch.Fetcher.
type DatasetFetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Sequencer runs the launch steps. Archive, cache, and fetcher are
// optional; pass nil for dependencies that are not configured.
type Sequencer struct {
	cfg     *config.Config
	engine  *analysis.Engine
	archive Prober
	cache   Prober
	fetcher DatasetFetcher
}

// New constructs a Sequencer.
func New(cfg *config.Config, engine *analysis.Engine, archive, cache Prober, fetcher DatasetFetcher) *Sequencer {
	return &Sequencer{
		cfg:     cfg,
		engine:  engine,
		archive: archive,
		cache:   cache,
		fetcher: fetcher,
	}
}

// Run executes the launch sequence and returns its report. A non-nil
// error is returned only for the fatal entry-asset condition; the report
// then contains the steps executed up to and including the failure.
func (s *Sequencer) Run(ctx context.Context) (*LaunchReport, error) {
	report := &LaunchReport{Status: StatusOK}
	add := func(step StepResult) {
		logStep(ctx, step)
		report.Steps = append(report.Steps, step)
		if step.Status == StatusWarn && report.Status == StatusOK {
			report.Status = StatusWarn
		}
		if step.Status == StatusError {
			report.Status = StatusError
		}
	}

	add(StepResult{
		Name:   StepRuntime,
		Status: StatusOK,
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	add(s.prepareDependencies(ctx))

	if _, err := os.Stat(s.cfg.Launcher.EntryAsset); err != nil {
		add(StepResult{
			Name:   StepEntryAsset,
			Status: StatusError,
			Error:  fmt.Sprintf("required entry asset %s is missing", s.cfg.Launcher.EntryAsset),
		})
		return report, fmt.Errorf("%w: %s", ErrEntryAssetMissing, s.cfg.Launcher.EntryAsset)
	}
	add(StepResult{Name: StepEntryAsset, Status: StatusOK, Detail: s.cfg.Launcher.EntryAsset})

	add(s.checkDataset(ctx))

	if s.cfg.Launcher.SkipSelfTest {
		add(StepResult{Name: StepSelfCheck, Status: StatusSkipped})
	} else {
		add(s.runSelfCheck(ctx))
	}

	return report, nil
}

// prepareDependencies creates the data directory and probes the archive
// and cache. All failures degrade to warnings: the service can analyse
// uploads without either dependency.
func (s *Sequencer) prepareDependencies(ctx context.Context) StepResult {
	step := StepResult{Name: StepDependencies, Status: StatusOK}

	if err := os.MkdirAll(s.cfg.Archive.Dir, 0o755); err != nil {
		step.Status = StatusWarn
		step.Error = fmt.Sprintf("creating data directory: %v", err)
		return step
	}

	var degraded []string
	for _, p := range []Prober{s.archive, s.cache} {
		if p == nil {
			continue
		}
		if probe := p.Probe(ctx); !probe.OK {
			degraded = append(degraded, fmt.Sprintf("%s: %s", probe.Name, probe.Error))
		}
	}
	if len(degraded) > 0 {
		step.Status = StatusWarn
		step.Detail = "degraded dependencies"
		step.Error = fmt.Sprintf("%v", degraded)
	}
	return step
}

// checkDataset verifies the optional default dataset, attempting a
// best-effort download when a fetcher is configured. Missing data is
// never fatal: users can still upload snapshots through the UI.
func (s *Sequencer) checkDataset(ctx context.Context) StepResult {
	path := s.cfg.Launcher.DataFile
	if _, err := os.Stat(path); err == nil {
		return StepResult{Name: StepDataset, Status: StatusOK, Detail: path}
	}

	if s.fetcher != nil {
		data, err := s.fetcher.Fetch(ctx)
		if err == nil {
			err = os.WriteFile(path, data, 0o644)
		}
		if err == nil {
			return StepResult{Name: StepDataset, Status: StatusOK, Detail: path + " (downloaded)"}
		}
		return StepResult{
			Name:   StepDataset,
			Status: StatusWarn,
			Error:  fmt.Sprintf("default dataset %s missing and download failed: %v", path, err),
		}
	}

	return StepResult{
		Name:   StepDataset,
		Status: StatusWarn,
		Error:  fmt.Sprintf("default dataset %s missing; analysis requires an upload", path),
	}
}

// runSelfCheck exercises the analysis engine against the built-in
// fixture. Failures are reported but do not gate the launch.
func (s *Sequencer) runSelfCheck(ctx context.Context) StepResult {
	checks := SelfCheck(ctx, s.engine, s.cfg.Analysis.ReceiveSite)

	failed := 0
	for _, c := range checks {
		if !c.OK {
			failed++
			slog.WarnContext(ctx, "self-check failed", "check", c.Name, "detail", c.Detail)
		}
	}

	step := StepResult{Name: StepSelfCheck, Status: StatusOK, Detail: fmt.Sprintf("%d checks", len(checks))}
	if failed > 0 {
		step.Status = StatusError
		step.Error = fmt.Sprintf("%d of %d checks failed", failed, len(checks))
	}
	return step
}

func logStep(ctx context.Context, step StepResult) {
	switch step.Status {
	case StatusOK, StatusSkipped:
		slog.InfoContext(ctx, "launch step", "step", step.Name, "status", step.Status, "detail", step.Detail)
	case StatusWarn:
		slog.WarnContext(ctx, "launch step degraded", "step", step.Name, "err", step.Error)
	default:
		slog.ErrorContext(ctx, "launch step failed", "step", step.Name, "err", step.Error)
	}
}
