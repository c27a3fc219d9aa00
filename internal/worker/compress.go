package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"prospect/internal/logging"
	"prospect/internal/research"
	"prospect/internal/tools"
)

// compressSystemPrompt instructs the model to clean up raw tool output
// without losing substance. The %s is today's date.
const compressSystemPrompt = `You are a research assistant cleaning up findings gathered about a company. Today's date is %s.

The findings below come from web searches and page fetches. Rewrite them in a cleaner format without losing information: preserve every relevant statement, fact, name, number, and date. If several findings state the same thing, state it once and note the agreement. Do not add information that is not in the findings and do not editorialize.

Keep inline source references where a finding names its source, and end with a "Sources" section listing each unique source once, numbered sequentially.

Structure the output as:
**Findings**
**Sources**`

// compressUserTemplate frames the raw findings for one domain.
const compressUserTemplate = `Research domain: %s
Company: %s
%s
Raw findings, in collection order:
%s
Clean up these findings while preserving all information and sources. They will feed the final report for this domain.`

// compress collapses the collected findings into a summary via one LLM
// call. Failure is absorbed: the summary stays empty and the raw findings
// feed the synthesizer directly. Reflection notes guide the loop but carry
// no external information, so they are excluded from the input.
func (w *Worker) compress(ctx context.Context, result *research.WorkerResult) {
	w.mu.RLock()
	client := w.client
	w.mu.RUnlock()
	if client == nil {
		return
	}

	findings := w.substantiveFindings(result.Findings)
	if len(findings) == 0 {
		return
	}

	start := time.Now()
	system := fmt.Sprintf(compressSystemPrompt, time.Now().Format("January 2, 2006"))
	summary, err := client.CompleteWithSystem(ctx, system, compressUserPrompt(w.spec, findings))
	if err != nil {
		logging.WorkerWarn("%s worker compression failed, keeping raw findings: %v", w.spec.Domain, err)
		return
	}
	if err := result.SetSummary(summary); err != nil {
		logging.WorkerWarn("%s worker could not set summary: %v", w.spec.Domain, err)
		return
	}
	logging.WorkerDebug("%s worker compressed %d findings in %v",
		w.spec.Domain, len(findings), time.Since(start).Round(time.Millisecond))
}

// substantiveFindings drops findings produced by reflection-category tools.
func (w *Worker) substantiveFindings(findings []research.Finding) []research.Finding {
	out := make([]research.Finding, 0, len(findings))
	for _, f := range findings {
		if t := w.registry.Get(f.Tool); t != nil && t.Category == tools.CategoryReflect {
			continue
		}
		out = append(out, f)
	}
	return out
}

func compressUserPrompt(spec research.WorkerSpec, findings []research.Finding) string {
	var context string
	if spec.Request.Context != "" {
		context = fmt.Sprintf("Candidate context: %s\n", spec.Request.Context)
	}

	var b strings.Builder
	for i, f := range findings {
		fmt.Fprintf(&b, "\n--- Finding %d (tool: %s", i+1, f.Tool)
		if f.Source != "" {
			fmt.Fprintf(&b, ", source: %s", f.Source)
		}
		b.WriteString(") ---\n")
		b.WriteString(f.Content)
		b.WriteString("\n")
	}

	return fmt.Sprintf(compressUserTemplate,
		strings.ToLower(spec.Domain.Title()), spec.Request.Subject, context, b.String())
}
