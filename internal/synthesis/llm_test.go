package synthesis

import (
	"context"
	"fmt"
	"strings"
	"testing"

	rerr "prospect/internal/errors"
	"prospect/internal/research"
	rtools "prospect/internal/tools/research"
)

// stubClient replies with a fixed body and records the last prompts.
type stubClient struct {
	reply  string
	err    error
	calls  int
	system string
	user   string
}

func (c *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *stubClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.calls++
	c.system = systemPrompt
	c.user = userPrompt
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func mixedState(t *testing.T) *research.AggregateState {
	t.Helper()

	history := research.NewWorkerResult(research.DomainHistory)
	if err := history.Append(research.Finding{Content: "raw history finding", Tool: rtools.NameWebSearch}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := history.SetSummary("Acme grew from a garage startup to 4000 employees."); err != nil {
		t.Fatalf("SetSummary failed: %v", err)
	}
	if err := history.Finalize(research.StatusCompleted, nil, 1, 0); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	return stateOf(t,
		history,
		finishedResult(t, research.DomainFuture, research.StatusCompleted, nil,
			research.Finding{Content: "Berlin expansion planned for next year.", Tool: rtools.NameWebSearch},
			research.Finding{Content: "noted: verify the timeline", Tool: rtools.NameReflect}),
		finishedResult(t, research.DomainCulture, research.StatusFailed,
			&rerr.Descriptor{Class: rerr.ClassToolUnavailable, Detail: "search provider down"}),
	)
}

func TestLLMRenderer_PromptCarriesResearch(t *testing.T) {
	client := &stubClient{reply: "\n# Acme Corp Report\n\nBody.\n"}
	r := NewLLMRenderer(client)

	body, err := r.Render(context.Background(), testRequest(t), mixedState(t))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if body != "# Acme Corp Report\n\nBody." {
		t.Errorf("body = %q, want the trimmed reply", body)
	}
	if client.calls != 1 {
		t.Fatalf("client called %d times, want 1", client.calls)
	}

	if !strings.Contains(client.user, "<Research Brief>") {
		t.Error("prompt missing the research brief block")
	}
	if !strings.Contains(client.user, "Company research for Acme Corp") {
		t.Error("prompt missing the derived brief")
	}
	if !strings.Contains(client.user, "Acme grew from a garage startup") {
		t.Error("prompt missing the compressed history summary")
	}
	if strings.Contains(client.user, "raw history finding") {
		t.Error("prompt carries raw findings for a summarized domain")
	}
	if !strings.Contains(client.user, "Berlin expansion planned") {
		t.Error("prompt missing the raw future findings")
	}
	if strings.Contains(client.user, "noted: verify the timeline") {
		t.Error("prompt carries a reflection note")
	}
	if !strings.Contains(client.user, "## "+research.DomainCulture.Title()) {
		t.Error("prompt omits the failed domain's block")
	}
	if !strings.Contains(client.user, "(No findings were collected for this area.)") {
		t.Error("prompt does not name the failed domain's gap")
	}
	if !strings.Contains(client.system, "job seekers") {
		t.Errorf("system prompt = %q", client.system)
	}
}

func TestLLMRenderer_SetBrief(t *testing.T) {
	client := &stubClient{reply: "report"}
	r := NewLLMRenderer(client)
	r.SetBrief("Company research for Acme Corp - Staff Engineer position")

	if _, err := r.Render(context.Background(), testRequest(t), mixedState(t)); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(client.user, "Staff Engineer position") {
		t.Error("prompt missing the overridden brief")
	}
}

func TestLLMRenderer_ErrorPropagates(t *testing.T) {
	client := &stubClient{err: fmt.Errorf("model unavailable")}
	r := NewLLMRenderer(client)

	_, err := r.Render(context.Background(), testRequest(t), mixedState(t))
	if err == nil {
		t.Fatal("Render succeeded with a failing client")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Errorf("err = %v, want the client failure wrapped", err)
	}
}

func TestLLMRenderer_EmptyReplyErrors(t *testing.T) {
	client := &stubClient{reply: "  \n\t "}
	r := NewLLMRenderer(client)

	if _, err := r.Render(context.Background(), testRequest(t), mixedState(t)); err == nil {
		t.Fatal("Render accepted a blank report body")
	}
}

func TestLLMRenderer_NilClientErrors(t *testing.T) {
	r := NewLLMRenderer(nil)
	if _, err := r.Render(context.Background(), testRequest(t), mixedState(t)); err == nil {
		t.Fatal("Render succeeded without a client")
	}
}
