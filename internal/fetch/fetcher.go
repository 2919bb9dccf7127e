// Package fetch downloads the default inventory snapshot from a remote
// export endpoint, guarded by a circuit breaker.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rickyyue315/winmaxreturn/internal/config"
	"github.com/rickyyue315/winmaxreturn/internal/launcher"
)

const probeName = "dataset-export"

// maxSnapshotBytes caps downloads; inventory exports run to a few MB.
const maxSnapshotBytes = 64 << 20

// httpDoer is the subset of *http.Client the fetcher uses; tests inject
// a fake.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads the remote snapshot. A nil *Fetcher is valid and
// means no export URL is configured.
type Fetcher struct {
	cfg    config.FetchConfig
	cb     *gobreaker.CircuitBreaker
	client httpDoer
}

// newBreaker returns a gobreaker configured to trip after 3 consecutive
// failures and reset after 30 seconds in the open state.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// New constructs a Fetcher, or nil when cfg.URL is empty.
func New(cfg config.FetchConfig) *Fetcher {
	if cfg.URL == "" {
		return nil
	}
	return &Fetcher{
		cfg:    cfg,
		cb:     newBreaker(probeName),
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Fetch downloads the snapshot. After 3 consecutive failures the breaker
// opens and subsequent calls fail immediately until the reset timeout.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", f.cfg.URL, err)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching %s: unexpected status %d", f.cfg.URL, resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes+1))
		if err != nil {
			return nil, fmt.Errorf("reading snapshot body: %w", err)
		}
		if len(data) > maxSnapshotBytes {
			return nil, errors.New("snapshot exceeds size limit")
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

// Probe issues a HEAD request against the export endpoint for the
// deep-health check.
func (f *Fetcher) Probe(ctx context.Context) launcher.ProbeResult {
	start := time.Now()

	_, err := f.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.cfg.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil, nil
	})

	result := launcher.ProbeResult{
		Name:      probeName,
		OK:        err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}
