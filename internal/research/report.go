package research

import "time"

// DomainStatus is one line of the per-domain completion summary.
type DomainStatus struct {
	Domain   Domain `json:"domain"`
	Status   Status `json:"status"`
	Findings int    `json:"findings"`
	Failure  string `json:"failure,omitempty"`
}

// Report is the terminal artifact of a run. Immutable once constructed.
type Report struct {
	// RunID identifies the run, uuid-derived.
	RunID string `json:"run_id"`

	// Request is the request this report answers.
	Request Request `json:"request"`

	// Markdown is the rendered report body.
	Markdown string `json:"markdown"`

	// Domains is the ordered per-domain completion summary.
	Domains []DomainStatus `json:"domains"`

	// Degraded marks a report produced with no usable research.
	Degraded bool `json:"degraded"`

	// CreatedAt is when the report was assembled.
	CreatedAt time.Time `json:"created_at"`
}

// NewReport assembles the immutable report artifact.
func NewReport(runID string, req Request, markdown string, state *AggregateState) Report {
	return Report{
		RunID:     runID,
		Request:   req,
		Markdown:  markdown,
		Domains:   state.StatusSummary(),
		Degraded:  state.AllFailed(),
		CreatedAt: time.Now(),
	}
}

// StatusOf returns the status recorded for a domain, or empty when the
// domain is not on the report.
func (r Report) StatusOf(domain Domain) Status {
	for _, ds := range r.Domains {
		if ds.Domain == domain {
			return ds.Status
		}
	}
	return ""
}
