package research

import (
	"testing"

	rerr "prospect/internal/errors"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("Example Corp", "Senior Go Engineer")
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if req.Subject != "Example Corp" {
		t.Errorf("Subject = %q", req.Subject)
	}
	if req.Context != "Senior Go Engineer" {
		t.Errorf("Context = %q", req.Context)
	}
}

func TestNewRequest_TrimsWhitespace(t *testing.T) {
	req, err := NewRequest("  Example Corp  ", "  role  ")
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if req.Subject != "Example Corp" || req.Context != "role" {
		t.Errorf("expected trimmed fields, got %+v", req)
	}
}

func TestNewRequest_EmptySubject(t *testing.T) {
	tests := []string{"", "   ", "\t\n"}
	for _, subject := range tests {
		_, err := NewRequest(subject, "context")
		if err == nil {
			t.Fatalf("expected error for subject %q", subject)
		}
		if !rerr.Is(err, rerr.ErrInvalidRequest) {
			t.Errorf("expected ErrInvalidRequest, got %v", err)
		}
		if rerr.Classify(err) != rerr.ClassInvalidRequest {
			t.Errorf("expected invalid_request class, got %s", rerr.Classify(err))
		}
		if !rerr.IsFatal(err) {
			t.Error("invalid request must be fatal")
		}
	}
}

func TestDomains_LaunchOrder(t *testing.T) {
	domains := Domains()
	want := []Domain{DomainHistory, DomainFuture, DomainCulture}
	if len(domains) != len(want) {
		t.Fatalf("expected %d domains, got %d", len(want), len(domains))
	}
	for i, d := range want {
		if domains[i] != d {
			t.Errorf("domain %d = %s, want %s", i, domains[i], d)
		}
	}
}

func TestDomain_Valid(t *testing.T) {
	for _, d := range Domains() {
		if !d.Valid() {
			t.Errorf("%s should be valid", d)
		}
	}
	if Domain("finance").Valid() {
		t.Error("unknown domain should be invalid")
	}
	if Domain("").Valid() {
		t.Error("empty domain should be invalid")
	}
}

func TestWorkerSpec_Validate(t *testing.T) {
	req, _ := NewRequest("Example Corp", "")

	spec := WorkerSpec{Domain: DomainHistory, Request: req, IterationBudget: 6}
	if err := spec.Validate(); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}

	bad := WorkerSpec{Domain: "finance", Request: req, IterationBudget: 6}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for invalid domain")
	}

	zero := WorkerSpec{Domain: DomainHistory, Request: req, IterationBudget: 0}
	if err := zero.Validate(); err == nil {
		t.Error("expected error for zero budget")
	}
}

func TestWorkerSpec_AllowsTool(t *testing.T) {
	spec := WorkerSpec{AllowedTools: []string{"web_search", "reflect"}}
	if !spec.AllowsTool("web_search") {
		t.Error("expected web_search allowed")
	}
	if spec.AllowsTool("page_fetch") {
		t.Error("expected page_fetch disallowed")
	}
}
