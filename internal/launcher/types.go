package launcher

// Status values used across LaunchReport and StepResult.
const (
	StatusOK      = "ok"
	StatusWarn    = "warn"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// LaunchReport is the aggregate result of a full launch sequence. Steps
// appear in execution order; a fatal step is the last entry.
type LaunchReport struct {
	Status string       `json:"status"` // "ok", "warn", "error"
	Steps  []StepResult `json:"steps"`
}

// StepResult represents the outcome of a single launch step.
type StepResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "error", "skipped"
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ProbeResult is returned by the Probe methods of the backing
// dependencies (archive, cache, dataset fetcher) and surfaced through
// the deep-health endpoint.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}
