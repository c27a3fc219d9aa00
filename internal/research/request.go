// Package research defines the domain model for company research runs:
// the Request being researched, the fixed research Domains, per-worker
// Findings and WorkerResults, the AggregateState assembled by the
// supervisor, and the final Report.
//
// WorkerResults are single-writer: exactly one worker mutates its result,
// and the supervisor reads it only after the worker goroutine has returned.
// AggregateState construction is the one place the per-domain cardinality
// invariant is enforced: every launched spec gets exactly one entry,
// synthesized as a deadline placeholder when the worker never reported.
package research

import (
	"fmt"
	"strings"

	rerr "prospect/internal/errors"
)

// Request describes what to research. Immutable once constructed.
type Request struct {
	// Subject is the company name. Never empty on a validated Request.
	Subject string `json:"subject"`

	// Context optionally carries the target role or a job posting used to
	// slant the research.
	Context string `json:"context,omitempty"`
}

// NewRequest validates and builds a Request. An empty or blank subject is
// the one fatal input error; nothing launches for it.
func NewRequest(subject, context string) (Request, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Request{}, fmt.Errorf("%w: subject is empty", rerr.ErrInvalidRequest)
	}
	return Request{
		Subject: subject,
		Context: strings.TrimSpace(context),
	}, nil
}

// Domain identifies one research area. The set is fixed; requests cannot
// extend it.
type Domain string

const (
	DomainHistory Domain = "history"
	DomainFuture  Domain = "future"
	DomainCulture Domain = "culture"
)

// Domains returns all research domains in launch order.
func Domains() []Domain {
	return []Domain{DomainHistory, DomainFuture, DomainCulture}
}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainHistory, DomainFuture, DomainCulture:
		return true
	}
	return false
}

// String returns the domain identifier.
func (d Domain) String() string {
	return string(d)
}

// Title returns the report section heading for the domain.
func (d Domain) Title() string {
	switch d {
	case DomainHistory:
		return "Company History and Background"
	case DomainFuture:
		return "Future Prospects and Strategy"
	case DomainCulture:
		return "Company Culture and Work Environment"
	}
	return string(d)
}

// WorkerSpec is the work order issued to one worker.
type WorkerSpec struct {
	// Domain the worker researches.
	Domain Domain `json:"domain"`

	// Request being researched.
	Request Request `json:"request"`

	// IterationBudget caps task unit invocations for this worker.
	IterationBudget int `json:"iteration_budget"`

	// AllowedTools lists the tool names the worker may invoke.
	// Instructions outside this set are rejected without an external call.
	AllowedTools []string `json:"allowed_tools"`

	// Focus carries the research plan's focus questions for this domain.
	Focus []string `json:"focus,omitempty"`
}

// Validate checks the spec is executable.
func (s WorkerSpec) Validate() error {
	if !s.Domain.Valid() {
		return fmt.Errorf("invalid domain: %q", s.Domain)
	}
	if s.IterationBudget < 1 {
		return fmt.Errorf("iteration budget must be positive, got %d", s.IterationBudget)
	}
	return nil
}

// AllowsTool reports whether the spec permits invoking the named tool.
func (s WorkerSpec) AllowsTool(name string) bool {
	for _, t := range s.AllowedTools {
		if t == name {
			return true
		}
	}
	return false
}
