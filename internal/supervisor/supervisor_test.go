package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"prospect/internal/config"
	rerr "prospect/internal/errors"
	"prospect/internal/research"
	"prospect/internal/tools"
	rtools "prospect/internal/tools/research"
	"prospect/internal/worker"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// opencensus, a transitive dependency of the genai SDK, starts a stats
// worker goroutine in its package init; it is not started by the code
// under test and never exits, so goleak must ignore it.
var ignoreOpenCensusInit = goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start")

// testConfig trims the default timeouts down to test scale.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Research.IterationBudget = 4
	cfg.Research.Deadline = "5s"
	cfg.Research.ToolTimeout = "2s"
	cfg.Research.SynthesisTimeout = "2s"
	cfg.Research.MinFindings = 2
	return cfg
}

// searchRegistry registers a web search stub that counts invocations.
func searchRegistry(t *testing.T, calls *atomic.Int64) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:        rtools.NameWebSearch,
		Description: "stub search",
		Category:    tools.CategorySearch,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			if calls != nil {
				calls.Add(1)
			}
			return fmt.Sprintf("search results for %v", args["query"]), nil
		},
	})
	return reg
}

func searchInstr(query string) worker.Instruction {
	return worker.Instruction{Tool: rtools.NameWebSearch, Args: map[string]any{"query": query}}
}

// queuePolicy issues a fixed instruction sequence and, when sufficientAt
// is positive, declares sufficiency once that many findings are in.
type queuePolicy struct {
	instrs       []worker.Instruction
	next         int
	sufficientAt int
}

func (p *queuePolicy) NextInstruction(findings []research.Finding, req research.Request) (worker.Instruction, error) {
	if p.next >= len(p.instrs) {
		return worker.Instruction{}, worker.ErrPolicyExhausted
	}
	instr := p.instrs[p.next]
	p.next++
	return instr, nil
}

func (p *queuePolicy) IsSufficient(findings []research.Finding) bool {
	return p.sufficientAt > 0 && len(findings) >= p.sufficientAt
}

// searchesFactory gives every domain a two-search queue that completes.
func searchesFactory(spec research.WorkerSpec) worker.DecisionPolicy {
	return &queuePolicy{
		instrs: []worker.Instruction{
			searchInstr(string(spec.Domain) + " query one"),
			searchInstr(string(spec.Domain) + " query two"),
		},
		sufficientAt: 2,
	}
}

func TestNew_RequiresConfigAndRegistry(t *testing.T) {
	if _, err := New(nil, tools.NewRegistry()); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := New(testConfig(), nil); err == nil {
		t.Fatal("expected error for nil registry")
	}
	s, err := New(testConfig(), tools.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestRun_AllWorkersComplete(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	var calls atomic.Int64
	sup, err := New(testConfig(), searchRegistry(t, &calls))
	require.NoError(t, err)
	sup.SetPolicyFactory(searchesFactory)

	report, err := sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)

	require.NotEmpty(t, report.RunID)
	require.False(t, report.Degraded)
	require.Len(t, report.Domains, 3)
	for _, d := range research.Domains() {
		require.Equal(t, research.StatusCompleted, report.StatusOf(d))
	}
	require.EqualValues(t, 6, calls.Load())
	require.Contains(t, report.Markdown, "# Company Research Report: Acme Corp")
	require.Contains(t, report.Markdown, "search results for history query one")
}

func TestRun_EmptySubjectFailsBeforeLaunch(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	var calls atomic.Int64
	sup, err := New(testConfig(), searchRegistry(t, &calls))
	require.NoError(t, err)
	sup.SetPolicyFactory(searchesFactory)

	_, err = sup.Run(context.Background(), research.Request{Subject: "   "})
	require.ErrorIs(t, err, rerr.ErrInvalidRequest)
	require.Zero(t, calls.Load())
}

func TestRun_MixedOutcomes(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	reg := searchRegistry(t, nil)
	reg.MustRegister(&tools.Tool{
		Name:        rtools.NameCompanyValuesSearch,
		Description: "always down",
		Category:    tools.CategorySearch,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", rerr.NewToolError(rtools.NameCompanyValuesSearch,
				rerr.ClassToolUnavailable, errors.New("values provider down"))
		},
	})

	sup, err := New(testConfig(), reg)
	require.NoError(t, err)
	sup.SetPolicyFactory(func(spec research.WorkerSpec) worker.DecisionPolicy {
		switch spec.Domain {
		case research.DomainHistory:
			return &queuePolicy{
				instrs:       []worker.Instruction{searchInstr("h1"), searchInstr("h2")},
				sufficientAt: 2,
			}
		case research.DomainFuture:
			return &queuePolicy{instrs: []worker.Instruction{searchInstr("f1")}}
		default:
			return &queuePolicy{instrs: []worker.Instruction{
				{Tool: rtools.NameCompanyValuesSearch, Args: map[string]any{"query": "c1"}},
				{Tool: rtools.NameCompanyValuesSearch, Args: map[string]any{"query": "c2"}},
			}}
		}
	})

	report, err := sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)

	require.False(t, report.Degraded)
	require.Equal(t, research.StatusCompleted, report.StatusOf(research.DomainHistory))
	require.Equal(t, research.StatusPartiallyCompleted, report.StatusOf(research.DomainFuture))
	require.Equal(t, research.StatusFailed, report.StatusOf(research.DomainCulture))
	require.Contains(t, report.Markdown, "_Research failed: tool_unavailable")
}

func TestRun_RepeatedRequestYieldsIdenticalStatuses(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	sup, err := New(testConfig(), searchRegistry(t, nil))
	require.NoError(t, err)
	sup.SetPolicyFactory(func(spec research.WorkerSpec) worker.DecisionPolicy {
		switch spec.Domain {
		case research.DomainHistory:
			return &queuePolicy{
				instrs:       []worker.Instruction{searchInstr("h1"), searchInstr("h2")},
				sufficientAt: 2,
			}
		case research.DomainFuture:
			return &queuePolicy{instrs: []worker.Instruction{searchInstr("f1")}}
		default:
			// Culture gets a policy that yields nothing, so the worker fails.
			return &queuePolicy{}
		}
	})

	req := research.Request{Subject: "Acme Corp"}
	first, err := sup.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := sup.Run(context.Background(), req)
	require.NoError(t, err)

	require.NotEqual(t, first.RunID, second.RunID)
	require.Equal(t, research.StatusCompleted, first.StatusOf(research.DomainHistory))
	require.Equal(t, research.StatusPartiallyCompleted, first.StatusOf(research.DomainFuture))
	require.Equal(t, research.StatusFailed, first.StatusOf(research.DomainCulture))
	for _, d := range research.Domains() {
		require.Equal(t, first.StatusOf(d), second.StatusOf(d), "status for %s", d)
	}
}

func TestRun_AllWorkersFailedProducesDegradedReport(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:        rtools.NameWebSearch,
		Description: "always down",
		Category:    tools.CategorySearch,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", rerr.NewToolError(rtools.NameWebSearch,
				rerr.ClassToolUnavailable, errors.New("search outage"))
		},
	})

	sup, err := New(testConfig(), reg)
	require.NoError(t, err)
	sup.SetPolicyFactory(searchesFactory)

	report, err := sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)

	require.True(t, report.Degraded)
	require.Len(t, report.Domains, 3)
	require.Contains(t, report.Markdown, "No research findings available due to processing errors.")
	for _, ds := range report.Domains {
		require.Equal(t, research.StatusFailed, ds.Status)
		require.Zero(t, ds.Findings)
	}
}

func TestRun_DeadlinePreservesFindings(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	reg := searchRegistry(t, nil)
	reg.MustRegister(&tools.Tool{
		Name:        rtools.NamePageFetch,
		Description: "stalls until cancelled",
		Category:    tools.CategoryFetch,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	})

	cfg := testConfig()
	cfg.Research.Deadline = "150ms"

	sup, err := New(cfg, reg)
	require.NoError(t, err)
	sup.SetPolicyFactory(func(spec research.WorkerSpec) worker.DecisionPolicy {
		return &queuePolicy{instrs: []worker.Instruction{
			searchInstr(string(spec.Domain) + " quick"),
			{Tool: rtools.NamePageFetch, Args: map[string]any{"url": "https://example.com/slow"}},
			searchInstr(string(spec.Domain) + " never reached"),
		}}
	})

	report, err := sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)

	require.Len(t, report.Domains, 3)
	for _, ds := range report.Domains {
		require.Equal(t, research.StatusFailed, ds.Status)
		require.Equal(t, 1, ds.Findings)
		require.Contains(t, ds.Failure, "deadline_exceeded")
	}
	require.Contains(t, report.Markdown, "search results for history quick")
}

func TestRun_StuckWorkerBecomesPlaceholder(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	gate := make(chan struct{})
	defer close(gate)

	reg := searchRegistry(t, nil)
	reg.MustRegister(&tools.Tool{
		Name:        rtools.NameCompanyValuesSearch,
		Description: "ignores cancellation",
		Category:    tools.CategorySearch,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			<-gate
			return "late", nil
		},
	})

	cfg := testConfig()
	cfg.Research.Deadline = "100ms"

	sup, err := New(cfg, reg)
	require.NoError(t, err)
	sup.SetPolicyFactory(func(spec research.WorkerSpec) worker.DecisionPolicy {
		if spec.Domain == research.DomainCulture {
			return &queuePolicy{instrs: []worker.Instruction{
				{Tool: rtools.NameCompanyValuesSearch, Args: map[string]any{"query": "values"}},
			}}
		}
		return &queuePolicy{
			instrs:       []worker.Instruction{searchInstr(string(spec.Domain) + " quick")},
			sufficientAt: 1,
		}
	})

	report, err := sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)

	require.Len(t, report.Domains, 3)
	require.Equal(t, research.StatusCompleted, report.StatusOf(research.DomainHistory))
	require.Equal(t, research.StatusCompleted, report.StatusOf(research.DomainFuture))
	require.Equal(t, research.StatusFailed, report.StatusOf(research.DomainCulture))
	require.Contains(t, report.Markdown, "did not complete before the research deadline")
}

func TestRun_BudgetCapsToolCalls(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	var calls atomic.Int64
	cfg := testConfig()
	cfg.Research.IterationBudget = 2

	sup, err := New(cfg, searchRegistry(t, &calls))
	require.NoError(t, err)
	sup.SetPolicyFactory(func(spec research.WorkerSpec) worker.DecisionPolicy {
		instrs := make([]worker.Instruction, 0, 10)
		for i := 0; i < 10; i++ {
			instrs = append(instrs, searchInstr(fmt.Sprintf("%s query %d", spec.Domain, i)))
		}
		return &queuePolicy{instrs: instrs}
	})

	report, err := sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)

	require.EqualValues(t, 6, calls.Load())
	for _, ds := range report.Domains {
		require.Equal(t, research.StatusPartiallyCompleted, ds.Status)
		require.Equal(t, 2, ds.Findings)
	}
}

func TestRun_CancelledContextStillReturnsReport(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	var calls atomic.Int64
	sup, err := New(testConfig(), searchRegistry(t, &calls))
	require.NoError(t, err)
	sup.SetPolicyFactory(searchesFactory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := sup.Run(ctx, research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)

	require.True(t, report.Degraded)
	require.Zero(t, calls.Load())
	require.Len(t, report.Domains, 3)
}

type recordingArchive struct {
	mu     sync.Mutex
	report *research.Report
	state  *research.AggregateState
	err    error
	calls  int
}

func (a *recordingArchive) SaveRun(ctx context.Context, report research.Report, state *research.AggregateState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.report = &report
	a.state = state
	return a.err
}

func TestRun_FinishedRunIsArchived(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	sup, err := New(testConfig(), searchRegistry(t, nil))
	require.NoError(t, err)
	sup.SetPolicyFactory(searchesFactory)

	archive := &recordingArchive{}
	sup.SetArchiver(archive)

	report, err := sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)

	archive.mu.Lock()
	defer archive.mu.Unlock()
	require.Equal(t, 1, archive.calls)
	require.Equal(t, report.RunID, archive.report.RunID)
	require.Equal(t, 3, archive.state.Len())
	require.Equal(t, 6, archive.state.TotalFindings())
}

func TestRun_ArchiveFailureDoesNotFailRun(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	sup, err := New(testConfig(), searchRegistry(t, nil))
	require.NoError(t, err)
	sup.SetPolicyFactory(searchesFactory)

	archive := &recordingArchive{err: errors.New("disk full")}
	sup.SetArchiver(archive)

	events := make(chan Event, 64)
	sup.SetEventChannel(events)

	report, err := sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)
	require.False(t, report.Degraded)

	var archiveFailed bool
	for len(events) > 0 {
		if ev := <-events; ev.Type == EventArchiveFailed {
			archiveFailed = true
			require.Contains(t, ev.Message, "disk full")
		}
	}
	require.True(t, archiveFailed)
}

func TestRun_EmitsLifecycleEvents(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	sup, err := New(testConfig(), searchRegistry(t, nil))
	require.NoError(t, err)
	sup.SetPolicyFactory(searchesFactory)

	events := make(chan Event, 128)
	sup.SetEventChannel(events)

	report, err := sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)

	seen := map[EventType]int{}
	workerDomains := map[research.Domain]bool{}
	for len(events) > 0 {
		ev := <-events
		seen[ev.Type]++
		require.Equal(t, report.RunID, ev.RunID)
		if ev.Type == EventWorkerUpdate {
			workerDomains[ev.Domain] = true
			require.NotNil(t, ev.Progress)
		}
	}
	require.Equal(t, 1, seen[EventRunStarted])
	require.Equal(t, 1, seen[EventPlanReady])
	require.Equal(t, 1, seen[EventSynthesisStarted])
	require.Equal(t, 1, seen[EventReportReady])
	require.Len(t, workerDomains, 3)
}

func TestRun_FullEventChannelDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	sup, err := New(testConfig(), searchRegistry(t, nil))
	require.NoError(t, err)
	sup.SetPolicyFactory(searchesFactory)

	events := make(chan Event, 1)
	sup.SetEventChannel(events)

	_, err = sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestRun_ProgressCallbackSeesAllDomains(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	sup, err := New(testConfig(), searchRegistry(t, nil))
	require.NoError(t, err)
	sup.SetPolicyFactory(searchesFactory)

	var mu sync.Mutex
	domains := map[research.Domain]bool{}
	sup.SetProgressCallback(func(u worker.ProgressUpdate) {
		mu.Lock()
		domains[u.Domain] = true
		mu.Unlock()
	})

	_, err = sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, domains, 3)
}

func TestRun_DefaultPoliciesRunOffline(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensusInit)

	reg := searchRegistry(t, nil)
	reg.MustRegister(&tools.Tool{
		Name:        rtools.NameCompanyValuesSearch,
		Description: "stub values search",
		Category:    tools.CategorySearch,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("values results for %v", args["query"]), nil
		},
	})
	reg.MustRegister(&tools.Tool{
		Name:        rtools.NameReflect,
		Description: "stub reflect",
		Category:    tools.CategoryReflect,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "noted", nil
		},
	})

	sup, err := New(testConfig(), reg)
	require.NoError(t, err)

	report, err := sup.Run(context.Background(), research.Request{Subject: "Acme Corp"})
	require.NoError(t, err)

	require.False(t, report.Degraded)
	require.Len(t, report.Domains, 3)
	for _, ds := range report.Domains {
		require.True(t, ds.Status.Usable(), "domain %s ended %s", ds.Domain, ds.Status)
	}
	require.Contains(t, report.Markdown, "Acme Corp")
}
