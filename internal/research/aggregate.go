package research

// AggregateState is the supervisor's assembled view of a run: one
// WorkerResult per launched spec, in launch order. Construction enforces
// the cardinality invariant; consumers can rely on every domain being
// present and terminal.
type AggregateState struct {
	domains []Domain
	results map[Domain]*WorkerResult
}

// NewAggregateState assembles the per-domain results for the launched
// specs. A spec whose worker never reported, or reported a non-terminal
// result, gets a Failed/DeadlineExceeded placeholder. Results for domains
// no spec launched are dropped.
func NewAggregateState(specs []WorkerSpec, results map[Domain]*WorkerResult) *AggregateState {
	state := &AggregateState{
		domains: make([]Domain, 0, len(specs)),
		results: make(map[Domain]*WorkerResult, len(specs)),
	}

	for _, spec := range specs {
		if _, dup := state.results[spec.Domain]; dup {
			continue
		}
		state.domains = append(state.domains, spec.Domain)

		result := results[spec.Domain]
		if result == nil || !result.Terminal() {
			result = PlaceholderResult(spec.Domain)
		}
		state.results[spec.Domain] = result
	}

	return state
}

// Domains returns the launched domains in launch order.
func (a *AggregateState) Domains() []Domain {
	out := make([]Domain, len(a.domains))
	copy(out, a.domains)
	return out
}

// Get returns the result for a domain, or nil for a domain never launched.
func (a *AggregateState) Get(domain Domain) *WorkerResult {
	return a.results[domain]
}

// Results returns all results in launch order.
func (a *AggregateState) Results() []*WorkerResult {
	out := make([]*WorkerResult, 0, len(a.domains))
	for _, d := range a.domains {
		out = append(out, a.results[d])
	}
	return out
}

// Len returns the number of launched domains.
func (a *AggregateState) Len() int {
	return len(a.domains)
}

// AllFailed reports whether every worker ended Failed.
func (a *AggregateState) AllFailed() bool {
	if len(a.domains) == 0 {
		return true
	}
	for _, d := range a.domains {
		if a.results[d].Status != StatusFailed {
			return false
		}
	}
	return true
}

// AnyUsable reports whether at least one worker contributed renderable
// findings.
func (a *AggregateState) AnyUsable() bool {
	for _, d := range a.domains {
		r := a.results[d]
		if r.Status.Usable() && r.FindingCount() > 0 {
			return true
		}
	}
	return false
}

// TotalFindings counts findings across all domains.
func (a *AggregateState) TotalFindings() int {
	total := 0
	for _, d := range a.domains {
		total += a.results[d].FindingCount()
	}
	return total
}

// StatusSummary returns the ordered per-domain completion summary carried
// onto the Report.
func (a *AggregateState) StatusSummary() []DomainStatus {
	out := make([]DomainStatus, 0, len(a.domains))
	for _, d := range a.domains {
		r := a.results[d]
		ds := DomainStatus{
			Domain:   d,
			Status:   r.Status,
			Findings: r.FindingCount(),
		}
		if r.Failure != nil {
			ds.Failure = r.Failure.String()
		}
		out = append(out, ds)
	}
	return out
}
