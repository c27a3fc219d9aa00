// Package worker runs the bounded research loop for one domain. Each
// iteration is one task unit: the decision policy picks a tool invocation,
// the registry executes it, a success appends a Finding and a failure
// counts toward the failure rate. The loop stops on sufficiency, budget
// exhaustion, a fatal failure class, or deadline cancellation, and always
// freezes a terminal WorkerResult. Task units never retry internally; a
// worker never lets a tool problem escape as a panic or a raw error.
package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	rerr "prospect/internal/errors"
	"prospect/internal/llm"
	"prospect/internal/logging"
	"prospect/internal/research"
	"prospect/internal/tools"
)

// State tracks a worker through its lifecycle. Terminal states mirror the
// WorkerResult status values.
type State string

const (
	StateIdle               State = "idle"
	StateIterating          State = "iterating"
	StateCompleted          State = "completed"
	StatePartiallyCompleted State = "partially_completed"
	StateFailed             State = "failed"
)

// defaultToolTimeout bounds a single task unit's external call.
const defaultToolTimeout = 30 * time.Second

// ProgressUpdate is a point-in-time snapshot of one worker's progress.
type ProgressUpdate struct {
	Domain   research.Domain
	State    State
	Attempt  int
	Budget   int
	Findings int
	Failures int
	Tool     string
	Message  string
}

// ProgressFunc receives progress updates. Callbacks are invoked from the
// worker's own goroutine and must not block.
type ProgressFunc func(ProgressUpdate)

// Worker researches one domain within an iteration budget. Construct with
// New, optionally attach a summarizer and progress callback, then call Run
// once. Findings and counters are touched only by Run's goroutine; the
// mutex guards the state and callback fields observable from outside.
type Worker struct {
	spec     research.WorkerSpec
	policy   DecisionPolicy
	registry *tools.Registry

	client      llm.Client
	toolTimeout time.Duration

	mu       sync.RWMutex
	state    State
	progress ProgressFunc
}

// New builds a worker for the given spec. The policy decides instructions,
// the registry executes them.
func New(spec research.WorkerSpec, policy DecisionPolicy, registry *tools.Registry) (*Worker, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker spec: %w", err)
	}
	if policy == nil {
		return nil, fmt.Errorf("worker %s: decision policy is required", spec.Domain)
	}
	if registry == nil {
		return nil, fmt.Errorf("worker %s: tool registry is required", spec.Domain)
	}
	return &Worker{
		spec:        spec,
		policy:      policy,
		registry:    registry,
		toolTimeout: defaultToolTimeout,
		state:       StateIdle,
	}, nil
}

// SetSummarizer attaches the client used to compress findings into a
// per-domain summary at finalization. Without one, raw findings feed the
// synthesizer directly.
func (w *Worker) SetSummarizer(client llm.Client) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.client = client
}

// SetToolTimeout bounds each task unit's external call. Zero or negative
// disables the per-unit timeout; the run deadline still applies.
func (w *Worker) SetToolTimeout(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.toolTimeout = d
}

// SetProgressCallback registers a callback for live progress reporting.
func (w *Worker) SetProgressCallback(fn ProgressFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.progress = fn
}

// Domain returns the research domain this worker covers.
func (w *Worker) Domain() research.Domain {
	return w.spec.Domain
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(state State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
}

func (w *Worker) reportProgress(update ProgressUpdate) {
	w.mu.RLock()
	callback := w.progress
	w.mu.RUnlock()

	if callback != nil {
		callback(update)
	}
}

// Run executes the research loop to a terminal WorkerResult. It never
// returns nil and never propagates an error: tool failures, policy
// failures, and cancellation all land in the result's status and failure
// descriptor, with collected findings preserved. Run is single-use.
func (w *Worker) Run(ctx context.Context) (final *research.WorkerResult) {
	w.setState(StateIterating)
	result := research.NewWorkerResult(w.spec.Domain)

	var (
		attempts    int
		failures    int
		lastFailure *rerr.Descriptor
		policyErr   error
	)

	defer func() {
		if r := recover(); r != nil {
			// If a policy or tool panics, return a failed result so the
			// supervisor is never left waiting on this domain.
			logging.WorkerError("%s worker recovered from panic: %v", w.spec.Domain, r)
			failure := &rerr.Descriptor{
				Class:  rerr.ClassUnknown,
				Detail: fmt.Sprintf("worker aborted: %v", r),
			}
			final = w.finalize(ctx, result, research.StatusFailed, failure, attempts, failures)
		}
	}()

	logging.Worker("%s worker starting: subject=%q budget=%d tools=%v",
		w.spec.Domain, w.spec.Request.Subject, w.spec.IterationBudget, w.spec.AllowedTools)
	logging.Audit().WorkerStart(w.spec.Domain.String(), w.spec.IterationBudget)
	w.reportProgress(ProgressUpdate{
		Domain:  w.spec.Domain,
		State:   StateIterating,
		Budget:  w.spec.IterationBudget,
		Message: fmt.Sprintf("Researching %s", strings.ToLower(w.spec.Domain.Title())),
	})

	for attempts < w.spec.IterationBudget {
		// Cancellation is cooperative at task unit boundaries.
		if ctx.Err() != nil {
			return w.finalize(ctx, result, research.StatusFailed, deadlineFailure(), attempts, failures)
		}

		instr, err := w.policy.NextInstruction(result.Findings, w.spec.Request)
		if err != nil {
			policyErr = err
			break
		}

		attempts++
		w.reportProgress(ProgressUpdate{
			Domain:   w.spec.Domain,
			State:    StateIterating,
			Attempt:  attempts,
			Budget:   w.spec.IterationBudget,
			Findings: result.FindingCount(),
			Failures: failures,
			Tool:     instr.Tool,
			Message:  fmt.Sprintf("Calling %s (%d/%d)", instr.Tool, attempts, w.spec.IterationBudget),
		})

		res, err := w.executeUnit(ctx, instr)
		if err != nil {
			failures++
			lastFailure = rerr.Describe(err)
			logging.WorkerWarn("%s worker unit %d failed: tool=%s class=%s err=%v",
				w.spec.Domain, attempts, instr.Tool, lastFailure.Class, err)
			if rerr.IsFatal(err) {
				return w.finalize(ctx, result, research.StatusFailed, lastFailure, attempts, failures)
			}
			continue
		}

		finding := research.Finding{
			Content: res.Result,
			Source:  findingSource(instr),
			Tool:    instr.Tool,
		}
		if err := result.Append(finding); err != nil {
			logging.WorkerError("%s worker could not record finding: %v", w.spec.Domain, err)
			break
		}
		logging.WorkerDebug("%s worker unit %d: %s returned %d chars",
			w.spec.Domain, attempts, instr.Tool, len(res.Result))
		w.reportProgress(ProgressUpdate{
			Domain:   w.spec.Domain,
			State:    StateIterating,
			Attempt:  attempts,
			Budget:   w.spec.IterationBudget,
			Findings: result.FindingCount(),
			Failures: failures,
			Tool:     instr.Tool,
			Message:  fmt.Sprintf("Collected %d findings", result.FindingCount()),
		})

		if w.policy.IsSufficient(result.Findings) {
			status := research.StatusCompleted
			if failures > 0 {
				status = research.StatusPartiallyCompleted
			}
			return w.finalize(ctx, result, status, nil, attempts, failures)
		}
	}

	// Budget exhausted, or the policy stopped issuing instructions.
	switch {
	case result.FindingCount() > 0:
		return w.finalize(ctx, result, research.StatusPartiallyCompleted, nil, attempts, failures)
	case lastFailure != nil:
		return w.finalize(ctx, result, research.StatusFailed, lastFailure, attempts, failures)
	default:
		failure := &rerr.Descriptor{Class: rerr.ClassUnknown, Detail: "no task units were attempted"}
		if policyErr != nil {
			failure = rerr.Describe(policyErr)
		}
		return w.finalize(ctx, result, research.StatusFailed, failure, attempts, failures)
	}
}

// executeUnit performs exactly one task unit. An instruction naming a tool
// outside the spec's allowed set is rejected here without an external call;
// it still consumed its budget slot in Run.
func (w *Worker) executeUnit(ctx context.Context, instr Instruction) (*tools.ToolResult, error) {
	if !w.spec.AllowsTool(instr.Tool) {
		err := rerr.NewToolError(instr.Tool, rerr.ClassToolRejected,
			fmt.Errorf("tool not allowed for domain %s", w.spec.Domain))
		return &tools.ToolResult{
			ToolName: instr.Tool,
			Error:    err,
			Class:    rerr.ClassToolRejected,
		}, err
	}

	unitCtx := ctx
	if w.toolTimeout > 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeout(ctx, w.toolTimeout)
		defer cancel()
	}

	return w.registry.Execute(unitCtx, instr.Tool, instr.Args)
}

// finalize compresses findings when possible, freezes the result, and
// emits the terminal log, audit, and progress events.
func (w *Worker) finalize(ctx context.Context, result *research.WorkerResult, status research.Status, failure *rerr.Descriptor, attempts, failures int) *research.WorkerResult {
	if ctx.Err() == nil && result.FindingCount() > 0 {
		w.compress(ctx, result)
	}

	if err := result.Finalize(status, failure, attempts, failures); err != nil {
		logging.WorkerError("%s worker finalize: %v", w.spec.Domain, err)
	}
	w.setState(stateFor(status))

	logging.Worker("%s worker terminal: status=%s findings=%d attempts=%d failures=%d in %v",
		w.spec.Domain, status, result.FindingCount(), attempts, failures,
		result.Elapsed().Round(time.Millisecond))
	logging.Audit().WorkerComplete(w.spec.Domain.String(), status.String(),
		result.FindingCount(), result.Elapsed().Milliseconds())
	if status == research.StatusFailed && failure != nil {
		logging.Audit().WorkerError(w.spec.Domain.String(), failure.Err())
	}

	w.reportProgress(ProgressUpdate{
		Domain:   w.spec.Domain,
		State:    stateFor(status),
		Attempt:  attempts,
		Budget:   w.spec.IterationBudget,
		Findings: result.FindingCount(),
		Failures: failures,
		Message:  terminalMessage(status, result.FindingCount()),
	})
	return result
}

func stateFor(status research.Status) State {
	switch status {
	case research.StatusCompleted:
		return StateCompleted
	case research.StatusPartiallyCompleted:
		return StatePartiallyCompleted
	default:
		return StateFailed
	}
}

func terminalMessage(status research.Status, findings int) string {
	switch status {
	case research.StatusCompleted:
		return fmt.Sprintf("Done: %d findings", findings)
	case research.StatusPartiallyCompleted:
		return fmt.Sprintf("Partial: %d findings", findings)
	default:
		return "Failed"
	}
}

// findingSource pulls a citation out of the instruction arguments: the
// fetched URL when present, otherwise the search query.
func findingSource(instr Instruction) string {
	if u, ok := instr.Args["url"].(string); ok && u != "" {
		return u
	}
	if q, ok := instr.Args["query"].(string); ok && q != "" {
		return q
	}
	return ""
}

func deadlineFailure() *rerr.Descriptor {
	return &rerr.Descriptor{
		Class:  rerr.ClassDeadlineExceeded,
		Detail: "cancelled at the research deadline",
	}
}
