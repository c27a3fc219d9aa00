package research

import (
	"time"

	rerr "prospect/internal/errors"
)

// Status is the terminal status of a worker. The zero value means the
// worker has not finished yet.
type Status string

const (
	// StatusCompleted: the policy signaled sufficiency with zero failed units.
	StatusCompleted Status = "completed"

	// StatusPartiallyCompleted: the budget ran out with at least one finding,
	// or the run mixed successes and failures.
	StatusPartiallyCompleted Status = "partially_completed"

	// StatusFailed: every unit failed, a fatal class ended the loop early,
	// or the deadline cancelled the worker.
	StatusFailed Status = "failed"
)

// Terminal reports whether s is one of the three terminal statuses.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartiallyCompleted, StatusFailed:
		return true
	}
	return false
}

// Usable reports whether a worker with this status contributed findings
// the synthesizer should render.
func (s Status) Usable() bool {
	return s == StatusCompleted || s == StatusPartiallyCompleted
}

// String returns the status identifier.
func (s Status) String() string {
	return string(s)
}

// ErrResultFrozen is returned for mutations after a result became terminal.
var ErrResultFrozen = rerr.New("worker result is frozen")

// Finding is one piece of collected research. Findings are strictly ordered
// by invocation order within their worker.
type Finding struct {
	// Content is the collected text.
	Content string `json:"content"`

	// Source is the citation URL when the producing tool had one.
	Source string `json:"source,omitempty"`

	// Tool names the tool that produced this finding.
	Tool string `json:"tool"`

	// Timestamp is when the finding was collected.
	Timestamp time.Time `json:"timestamp"`
}

// WorkerResult accumulates one worker's research. It is owned by exactly
// one worker goroutine until frozen; the supervisor reads it only after
// the worker has returned.
type WorkerResult struct {
	// Domain this result belongs to.
	Domain Domain `json:"domain"`

	// Findings in invocation order.
	Findings []Finding `json:"findings"`

	// Status is set exactly once, at finalization.
	Status Status `json:"status"`

	// Failure describes why the worker did not complete cleanly.
	// Nil for StatusCompleted.
	Failure *rerr.Descriptor `json:"failure,omitempty"`

	// Summary is the compressed per-domain research summary, empty when
	// compression was unavailable or failed.
	Summary string `json:"summary,omitempty"`

	// Attempts counts task units consumed, successes and failures alike.
	Attempts int `json:"attempts"`

	// FailureCount counts failed task units.
	FailureCount int `json:"failure_count"`

	// StartedAt and EndedAt bound the worker's run.
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`

	frozen bool
}

// NewWorkerResult creates an empty, unfrozen result for a domain.
func NewWorkerResult(domain Domain) *WorkerResult {
	return &WorkerResult{
		Domain:    domain,
		StartedAt: time.Now(),
	}
}

// Append adds a finding in invocation order. Appends after finalization
// are rejected.
func (r *WorkerResult) Append(f Finding) error {
	if r.frozen {
		return ErrResultFrozen
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	r.Findings = append(r.Findings, f)
	return nil
}

// Finalize freezes the result with its terminal status and counters.
// A second finalization is rejected; the first outcome stands.
func (r *WorkerResult) Finalize(status Status, failure *rerr.Descriptor, attempts, failures int) error {
	if r.frozen {
		return ErrResultFrozen
	}
	if !status.Terminal() {
		return rerr.New("finalize requires a terminal status")
	}
	r.Status = status
	r.Failure = failure
	r.Attempts = attempts
	r.FailureCount = failures
	r.EndedAt = time.Now()
	r.frozen = true
	return nil
}

// SetSummary records the compressed research summary. Allowed only before
// finalization; a failed compression simply leaves it empty.
func (r *WorkerResult) SetSummary(summary string) error {
	if r.frozen {
		return ErrResultFrozen
	}
	r.Summary = summary
	return nil
}

// Terminal reports whether the result has been finalized.
func (r *WorkerResult) Terminal() bool {
	return r.frozen && r.Status.Terminal()
}

// FindingCount returns the number of collected findings.
func (r *WorkerResult) FindingCount() int {
	return len(r.Findings)
}

// Elapsed returns the worker's run duration, zero if not finished.
func (r *WorkerResult) Elapsed() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// PlaceholderResult builds the frozen Failed/DeadlineExceeded result the
// supervisor substitutes for a worker that never reported. It carries no
// findings; a cooperatively cancelled worker finalizes its own result and
// keeps what it collected.
func PlaceholderResult(domain Domain) *WorkerResult {
	now := time.Now()
	return &WorkerResult{
		Domain: domain,
		Status: StatusFailed,
		Failure: &rerr.Descriptor{
			Class:  rerr.ClassDeadlineExceeded,
			Detail: "worker did not complete before the research deadline",
		},
		StartedAt: now,
		EndedAt:   now,
		frozen:    true,
	}
}
