// Package synthesis renders the terminal report from the aggregated
// worker results. The synthesizer never fails: an all-failed run yields a
// minimal degraded report, and a rendering policy error falls back to the
// deterministic markdown renderer with the failure noted in the body.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"prospect/internal/logging"
	"prospect/internal/research"
)

// RenderingPolicy turns the aggregate state into the report body. Policies
// are injected at synthesizer construction; errors trigger the fallback
// renderer rather than surfacing to the caller.
type RenderingPolicy interface {
	Render(ctx context.Context, req research.Request, state *research.AggregateState) (string, error)
}

// Synthesizer assembles the terminal Report from the assembled state.
type Synthesizer struct {
	policy   RenderingPolicy
	fallback *MarkdownRenderer
}

// New builds a synthesizer. A nil policy selects the deterministic
// markdown renderer.
func New(policy RenderingPolicy) *Synthesizer {
	fallback := NewMarkdownRenderer(nil)
	if policy == nil {
		policy = fallback
	}
	return &Synthesizer{policy: policy, fallback: fallback}
}

// Synthesize renders one report. Every launched domain lands on it:
// usable domains as rendered sections, failed ones as status notes.
func (s *Synthesizer) Synthesize(ctx context.Context, runID string, req research.Request, state *research.AggregateState) research.Report {
	start := time.Now()
	logging.Synthesis("rendering report: subject=%q domains=%d findings=%d",
		req.Subject, state.Len(), state.TotalFindings())

	var body string
	fellBack := false
	switch {
	case state.AllFailed():
		logging.SynthesisWarn("every worker failed, producing degraded report")
		body = degradedBody(req, state)
		fellBack = true
	default:
		rendered, err := s.policy.Render(ctx, req, state)
		if err != nil {
			logging.SynthesisWarn("rendering policy failed, falling back to section renderer: %v", err)
			rendered, _ = s.fallback.Render(ctx, req, state)
			rendered += fmt.Sprintf("\n*Note: Report generation encountered an error: %v*\n", err)
			fellBack = true
		}
		body = rendered
	}

	report := research.NewReport(runID, req, body, state)
	logging.Audit().SynthesisDone(runID, fellBack, time.Since(start).Milliseconds())
	logging.Synthesis("report ready: run=%s chars=%d degraded=%v", runID, len(body), report.Degraded)
	return report
}

// degradedBody is the minimal report for a run that collected nothing
// usable. The status list keeps every domain visible on the report.
func degradedBody(req research.Request, state *research.AggregateState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Company Research Report: %s\n\n", req.Subject)
	sb.WriteString("No research findings available due to processing errors.\n")

	sb.WriteString("\n## Research Status\n\n")
	for _, ds := range state.StatusSummary() {
		fmt.Fprintf(&sb, "- %s: %s", ds.Domain.Title(), ds.Status)
		if ds.Failure != "" {
			fmt.Fprintf(&sb, " (%s)", ds.Failure)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
