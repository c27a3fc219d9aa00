// Package supervisor runs one company research request end to end. Run
// validates the request, plans the run, fans out one worker per research
// domain, joins them when they finish or the deadline fires, and hands the
// assembled state to synthesis.
//
// The only fatal error is an invalid request, raised before anything
// launches. Past that point every failure degrades into the report: a
// worker that never reports becomes a deadline placeholder, synthesis
// falls back to its deterministic renderer, and an archive write failure
// is logged and published but never returned.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"prospect/internal/config"
	rerr "prospect/internal/errors"
	"prospect/internal/llm"
	"prospect/internal/logging"
	"prospect/internal/policy"
	"prospect/internal/research"
	"prospect/internal/synthesis"
	"prospect/internal/tools"
	rtools "prospect/internal/tools/research"
	"prospect/internal/worker"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// stragglerGrace bounds how long the join waits for workers to observe
// cancellation once the research deadline has fired.
const stragglerGrace = 2 * time.Second

// defaultIterationBudget is used when the configured budget is not positive.
const defaultIterationBudget = 6

// Archiver persists finished runs.
type Archiver interface {
	SaveRun(ctx context.Context, report research.Report, state *research.AggregateState) error
}

// PolicyFactory builds the decision policy driving one worker.
type PolicyFactory func(spec research.WorkerSpec) worker.DecisionPolicy

// Supervisor owns the research run lifecycle. Construct with New, wire the
// optional collaborators, then call Run. A Supervisor carries no per-run
// state and may be reused across runs.
type Supervisor struct {
	cfg      *config.Config
	registry *tools.Registry

	client    llm.Client
	planner   *policy.Planner
	rendering synthesis.RenderingPolicy
	embedder  synthesis.Embedder
	policies  PolicyFactory
	archive   Archiver
	events    chan<- Event
	progress  worker.ProgressFunc
}

// New builds a supervisor over the given config and tool registry. Without
// further wiring it runs fully offline: default plan, raw findings, the
// deterministic markdown report.
func New(cfg *config.Config, registry *tools.Registry) (*Supervisor, error) {
	if cfg == nil {
		return nil, rerr.New("supervisor requires a config")
	}
	if registry == nil {
		return nil, rerr.New("supervisor requires a tool registry")
	}
	return &Supervisor{
		cfg:      cfg,
		registry: registry,
		planner:  policy.NewPlanner(nil),
	}, nil
}

// SetClient wires the LLM used for planning, per-domain compression, and
// report synthesis.
func (s *Supervisor) SetClient(client llm.Client) {
	s.client = client
	s.planner = policy.NewPlanner(client)
}

// SetRenderingPolicy overrides how the final report is rendered.
func (s *Supervisor) SetRenderingPolicy(p synthesis.RenderingPolicy) {
	s.rendering = p
}

// SetEmbedder wires near-duplicate collapse for the markdown renderer.
func (s *Supervisor) SetEmbedder(e synthesis.Embedder) {
	s.embedder = e
}

// SetPolicyFactory overrides how per-worker decision policies are built.
func (s *Supervisor) SetPolicyFactory(f PolicyFactory) {
	s.policies = f
}

// SetArchiver wires run persistence.
func (s *Supervisor) SetArchiver(a Archiver) {
	s.archive = a
}

// SetEventChannel wires lifecycle event publication. Sends never block;
// events are dropped when the channel is full.
func (s *Supervisor) SetEventChannel(ch chan<- Event) {
	s.events = ch
}

// SetProgressCallback receives per-worker progress snapshots. The callback
// runs on worker goroutines and must not block.
func (s *Supervisor) SetProgressCallback(fn worker.ProgressFunc) {
	s.progress = fn
}

// Run executes one research request and returns the report. The request
// is re-validated here; an invalid one aborts before any worker launches
// or tool call happens. Every later failure degrades into the report.
func (s *Supervisor) Run(ctx context.Context, req research.Request) (research.Report, error) {
	runID := uuid.NewString()

	req, err := research.NewRequest(req.Subject, req.Context)
	if err != nil {
		logging.Audit().RunAbort(runID, err)
		return research.Report{}, err
	}

	start := time.Now()
	logging.Audit().RunStart(runID, req.Subject, len(research.Domains()))
	logging.Supervisor("run %s: researching %q", runID, req.Subject)
	s.emit(Event{Type: EventRunStarted, RunID: runID, Message: req.Subject})

	plan := s.planner.Plan(ctx, req)
	s.emit(Event{Type: EventPlanReady, RunID: runID,
		Message: fmt.Sprintf("%d objectives", len(plan.Objectives))})

	specs := s.buildSpecs(req, plan)
	results := s.runWorkers(ctx, runID, specs)
	state := research.NewAggregateState(specs, results)
	logging.Supervisor("run %s: workers joined, %d findings across %d domains",
		runID, state.TotalFindings(), state.Len())

	s.emit(Event{Type: EventSynthesisStarted, RunID: runID})
	synthCtx, cancel := context.WithTimeout(ctx, s.cfg.GetSynthesisTimeout())
	defer cancel()
	report := s.synthesizer(plan, req).Synthesize(synthCtx, runID, req, state)

	logging.Audit().RunComplete(runID, report.Degraded, time.Since(start).Milliseconds())
	s.emit(Event{Type: EventReportReady, RunID: runID,
		Message: fmt.Sprintf("%d findings", state.TotalFindings())})

	if s.archive != nil {
		if err := s.archive.SaveRun(ctx, report, state); err != nil {
			logging.SupervisorWarn("run %s: archive write failed: %v", runID, err)
			s.emit(Event{Type: EventArchiveFailed, RunID: runID, Message: err.Error()})
		}
	}

	return report, nil
}

// buildSpecs issues one work order per research domain, in launch order.
func (s *Supervisor) buildSpecs(req research.Request, plan *policy.ResearchPlan) []research.WorkerSpec {
	budget := s.cfg.Research.IterationBudget
	if budget < 1 {
		budget = defaultIterationBudget
	}

	domains := research.Domains()
	specs := make([]research.WorkerSpec, 0, len(domains))
	for _, d := range domains {
		specs = append(specs, research.WorkerSpec{
			Domain:          d,
			Request:         req,
			IterationBudget: budget,
			AllowedTools:    allowedTools(d),
			Focus:           plan.FocusFor(d),
		})
	}
	return specs
}

// allowedTools is the tool surface for one domain. Culture additionally
// gets the values search.
func allowedTools(d research.Domain) []string {
	names := []string{rtools.NameWebSearch, rtools.NamePageFetch, rtools.NameReflect}
	if d == research.DomainCulture {
		names = append(names, rtools.NameCompanyValuesSearch)
	}
	return names
}

// policyFor builds the decision policy for one spec.
func (s *Supervisor) policyFor(spec research.WorkerSpec) worker.DecisionPolicy {
	if s.policies != nil {
		return s.policies(spec)
	}
	return policy.NewFocusQueue(spec.Domain, spec.Request, spec.Focus, policy.FocusQueueConfig{
		FetchTool:   rtools.NamePageFetch,
		MinFindings: s.cfg.Research.MinFindings,
	})
}

// runWorkers fans out one worker per spec under the research deadline and
// collects their results. Each result slot is written at most once, under
// the mutex; a worker that never reports leaves its slot empty and becomes
// a placeholder during aggregate assembly.
func (s *Supervisor) runWorkers(ctx context.Context, runID string, specs []research.WorkerSpec) map[research.Domain]*research.WorkerResult {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.GetDeadline())
	defer cancel()

	var mu sync.Mutex
	results := make(map[research.Domain]*research.WorkerResult, len(specs))

	eg, egCtx := errgroup.WithContext(runCtx)
	for _, spec := range specs {
		w, err := worker.New(spec, s.policyFor(spec), s.registry)
		if err != nil {
			logging.SupervisorError("run %s: %s worker not launched: %v", runID, spec.Domain, err)
			continue
		}
		if s.client != nil {
			w.SetSummarizer(s.client)
		}
		w.SetToolTimeout(s.cfg.GetToolTimeout())
		w.SetProgressCallback(s.workerProgress(runID))

		eg.Go(func() error {
			result := w.Run(egCtx)
			mu.Lock()
			if _, dup := results[result.Domain]; !dup {
				results[result.Domain] = result
			}
			mu.Unlock()
			return nil
		})
	}

	s.waitForWorkers(runCtx, runID, eg)

	mu.Lock()
	defer mu.Unlock()
	snapshot := make(map[research.Domain]*research.WorkerResult, len(results))
	for d, r := range results {
		snapshot[d] = r
	}
	return snapshot
}

// waitForWorkers blocks until every worker goroutine has returned. Workers
// observe cancellation at their loop tops, so once the deadline fires the
// wait is bounded by a short grace period; a straggler past it indicates a
// stuck tool call and the run proceeds with whatever results landed.
func (s *Supervisor) waitForWorkers(runCtx context.Context, runID string, eg *errgroup.Group) {
	done := make(chan struct{})
	go func() {
		_ = eg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-runCtx.Done():
	}

	select {
	case <-done:
	case <-time.After(stragglerGrace):
		logging.SupervisorWarn("run %s: deadline passed with workers still settling", runID)
	}
}

// workerProgress bridges worker progress into the caller's callback and
// the event stream. Returns nil when neither is wired.
func (s *Supervisor) workerProgress(runID string) worker.ProgressFunc {
	if s.progress == nil && s.events == nil {
		return nil
	}
	return func(u worker.ProgressUpdate) {
		if s.progress != nil {
			s.progress(u)
		}
		s.emit(Event{
			Type:     EventWorkerUpdate,
			RunID:    runID,
			Domain:   u.Domain,
			Message:  u.Message,
			Progress: &u,
		})
	}
}

// synthesizer picks the rendering stack for this run. An explicit policy
// wins; otherwise an LLM client renders against the plan's brief, and
// without a client the deterministic markdown renderer carries the run.
func (s *Supervisor) synthesizer(plan *policy.ResearchPlan, req research.Request) *synthesis.Synthesizer {
	if s.rendering != nil {
		return synthesis.New(s.rendering)
	}
	if s.client != nil {
		r := synthesis.NewLLMRenderer(s.client)
		r.SetBrief(plan.Brief(req))
		return synthesis.New(r)
	}
	return synthesis.New(synthesis.NewMarkdownRenderer(s.embedder))
}
