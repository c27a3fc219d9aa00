package research

import (
	"testing"

	rerr "prospect/internal/errors"
)

func specsForAllDomains(t *testing.T) []WorkerSpec {
	t.Helper()
	req, err := NewRequest("Example Corp", "")
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	specs := make([]WorkerSpec, 0, len(Domains()))
	for _, d := range Domains() {
		specs = append(specs, WorkerSpec{Domain: d, Request: req, IterationBudget: 6})
	}
	return specs
}

func finalized(t *testing.T, domain Domain, status Status, findings int) *WorkerResult {
	t.Helper()
	r := NewWorkerResult(domain)
	for i := 0; i < findings; i++ {
		if err := r.Append(Finding{Content: "fact", Tool: "web_search"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	var failure *rerr.Descriptor
	failures := 0
	if status == StatusFailed {
		failure = &rerr.Descriptor{Class: rerr.ClassToolUnavailable, Detail: "provider down"}
		failures = findings + 1
	}
	if err := r.Finalize(status, failure, findings+failures, failures); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	return r
}

func TestWorkerResult_AppendOrder(t *testing.T) {
	r := NewWorkerResult(DomainHistory)
	for _, content := range []string{"first", "second", "third"} {
		if err := r.Append(Finding{Content: content, Tool: "web_search"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if r.FindingCount() != 3 {
		t.Fatalf("expected 3 findings, got %d", r.FindingCount())
	}
	for i, want := range []string{"first", "second", "third"} {
		if r.Findings[i].Content != want {
			t.Errorf("finding %d = %q, want %q", i, r.Findings[i].Content, want)
		}
	}
	if r.Findings[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be filled")
	}
}

func TestWorkerResult_FrozenRejectsMutation(t *testing.T) {
	r := NewWorkerResult(DomainHistory)
	r.Append(Finding{Content: "kept", Tool: "web_search"})

	if err := r.Finalize(StatusCompleted, nil, 1, 0); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !r.Terminal() {
		t.Fatal("expected terminal after finalize")
	}

	if err := r.Append(Finding{Content: "late", Tool: "web_search"}); err != ErrResultFrozen {
		t.Errorf("expected ErrResultFrozen on append, got %v", err)
	}
	if err := r.SetSummary("late summary"); err != ErrResultFrozen {
		t.Errorf("expected ErrResultFrozen on summary, got %v", err)
	}
	if err := r.Finalize(StatusFailed, nil, 2, 2); err != ErrResultFrozen {
		t.Errorf("expected ErrResultFrozen on refinalize, got %v", err)
	}

	// The first outcome stands
	if r.Status != StatusCompleted || r.FindingCount() != 1 {
		t.Errorf("frozen result mutated: status=%s findings=%d", r.Status, r.FindingCount())
	}
}

func TestWorkerResult_FinalizeRequiresTerminalStatus(t *testing.T) {
	r := NewWorkerResult(DomainFuture)
	if err := r.Finalize(Status(""), nil, 0, 0); err == nil {
		t.Error("expected error for non-terminal status")
	}
	if r.Terminal() {
		t.Error("result should not freeze on rejected finalize")
	}
}

func TestPlaceholderResult(t *testing.T) {
	p := PlaceholderResult(DomainCulture)

	if !p.Terminal() {
		t.Error("placeholder must be terminal")
	}
	if p.Status != StatusFailed {
		t.Errorf("placeholder status = %s, want failed", p.Status)
	}
	if p.Failure == nil || p.Failure.Class != rerr.ClassDeadlineExceeded {
		t.Errorf("placeholder failure = %+v, want deadline_exceeded", p.Failure)
	}
	if p.FindingCount() != 0 {
		t.Error("placeholder carries no findings")
	}
}

func TestAggregateState_CardinalityInvariant(t *testing.T) {
	specs := specsForAllDomains(t)

	// Only one worker reported; the other two slots must still exist.
	results := map[Domain]*WorkerResult{
		DomainHistory: finalized(t, DomainHistory, StatusCompleted, 3),
	}

	state := NewAggregateState(specs, results)

	if state.Len() != len(specs) {
		t.Fatalf("expected %d entries, got %d", len(specs), state.Len())
	}
	for _, d := range Domains() {
		r := state.Get(d)
		if r == nil {
			t.Fatalf("missing entry for %s", d)
		}
		if !r.Terminal() {
			t.Errorf("entry for %s is not terminal", d)
		}
	}

	// Unreported domains carry the deadline placeholder
	for _, d := range []Domain{DomainFuture, DomainCulture} {
		r := state.Get(d)
		if r.Status != StatusFailed {
			t.Errorf("%s status = %s, want failed", d, r.Status)
		}
		if r.Failure == nil || r.Failure.Class != rerr.ClassDeadlineExceeded {
			t.Errorf("%s failure = %+v, want deadline placeholder", d, r.Failure)
		}
	}

	// The reported domain keeps its actual result
	if got := state.Get(DomainHistory); got.Status != StatusCompleted || got.FindingCount() != 3 {
		t.Errorf("history result replaced: %+v", got)
	}
}

func TestAggregateState_NonTerminalReplacedByPlaceholder(t *testing.T) {
	specs := specsForAllDomains(t)

	results := map[Domain]*WorkerResult{
		DomainHistory: NewWorkerResult(DomainHistory), // never finalized
		DomainFuture:  finalized(t, DomainFuture, StatusCompleted, 2),
		DomainCulture: finalized(t, DomainCulture, StatusCompleted, 2),
	}

	state := NewAggregateState(specs, results)
	if got := state.Get(DomainHistory); got.Status != StatusFailed {
		t.Errorf("non-terminal result should become placeholder, got %s", got.Status)
	}
}

func TestAggregateState_DropsUnlaunchedDomains(t *testing.T) {
	req, _ := NewRequest("Example Corp", "")
	specs := []WorkerSpec{{Domain: DomainHistory, Request: req, IterationBudget: 6}}

	results := map[Domain]*WorkerResult{
		DomainHistory: finalized(t, DomainHistory, StatusCompleted, 1),
		DomainCulture: finalized(t, DomainCulture, StatusCompleted, 1),
	}

	state := NewAggregateState(specs, results)
	if state.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", state.Len())
	}
	if state.Get(DomainCulture) != nil {
		t.Error("unlaunched domain should not appear")
	}
}

func TestAggregateState_LaunchOrderPreserved(t *testing.T) {
	specs := specsForAllDomains(t)
	state := NewAggregateState(specs, nil)

	domains := state.Domains()
	for i, spec := range specs {
		if domains[i] != spec.Domain {
			t.Errorf("position %d = %s, want %s", i, domains[i], spec.Domain)
		}
	}

	results := state.Results()
	for i, spec := range specs {
		if results[i].Domain != spec.Domain {
			t.Errorf("result position %d = %s, want %s", i, results[i].Domain, spec.Domain)
		}
	}
}

func TestAggregateState_AllFailedAndUsable(t *testing.T) {
	specs := specsForAllDomains(t)

	// Nothing reported: all placeholders, all failed
	state := NewAggregateState(specs, nil)
	if !state.AllFailed() {
		t.Error("expected AllFailed with only placeholders")
	}
	if state.AnyUsable() {
		t.Error("expected no usable results")
	}

	// One partial success flips both
	results := map[Domain]*WorkerResult{
		DomainFuture: finalized(t, DomainFuture, StatusPartiallyCompleted, 2),
	}
	state = NewAggregateState(specs, results)
	if state.AllFailed() {
		t.Error("one partial completion should clear AllFailed")
	}
	if !state.AnyUsable() {
		t.Error("partial completion with findings should be usable")
	}
	if state.TotalFindings() != 2 {
		t.Errorf("TotalFindings = %d, want 2", state.TotalFindings())
	}
}

func TestStatusSummaryAndReport(t *testing.T) {
	specs := specsForAllDomains(t)
	results := map[Domain]*WorkerResult{
		DomainHistory: finalized(t, DomainHistory, StatusCompleted, 3),
		DomainFuture:  finalized(t, DomainFuture, StatusFailed, 0),
	}
	state := NewAggregateState(specs, results)

	summary := state.StatusSummary()
	if len(summary) != 3 {
		t.Fatalf("expected 3 summary entries, got %d", len(summary))
	}
	if summary[0].Domain != DomainHistory || summary[0].Status != StatusCompleted || summary[0].Findings != 3 {
		t.Errorf("unexpected history summary: %+v", summary[0])
	}
	if summary[1].Failure == "" {
		t.Error("failed domain should carry its failure description")
	}

	req, _ := NewRequest("Example Corp", "")
	report := NewReport("run-123", req, "# Report", state)
	if report.Degraded {
		t.Error("report with a completed domain should not be degraded")
	}
	if report.StatusOf(DomainFuture) != StatusFailed {
		t.Errorf("StatusOf(future) = %s", report.StatusOf(DomainFuture))
	}
	if report.StatusOf(Domain("finance")) != "" {
		t.Error("unknown domain should return empty status")
	}

	// All placeholders degrade the report
	degraded := NewReport("run-456", req, "", NewAggregateState(specs, nil))
	if !degraded.Degraded {
		t.Error("all-failed state should degrade the report")
	}
}

func TestStatus_Helpers(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusPartiallyCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("terminal statuses misreported")
	}
	if Status("").Terminal() {
		t.Error("zero status is not terminal")
	}
	if !StatusCompleted.Usable() || !StatusPartiallyCompleted.Usable() {
		t.Error("usable statuses misreported")
	}
	if StatusFailed.Usable() {
		t.Error("failed is not usable")
	}
}
