package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"prospect/internal/llm"
	"prospect/internal/logging"
	"prospect/internal/research"
	rtools "prospect/internal/tools/research"
)

const renderSystemPrompt = `You are an expert at synthesizing company research into comprehensive reports for job seekers.`

const renderUserTemplate = `Based on all the research conducted, create a comprehensive, well-structured answer to the overall research brief:
<Research Brief>
%s
</Research Brief>

Today's date is %s.

Here are the findings from the research that you conducted:
<Findings>
%s
</Findings>

Create a detailed report that:
1. Is well-organized with proper headings (# for title, ## for sections, ### for subsections)
2. Includes specific facts and insights from the research
3. References relevant sources using [Title](URL) format
4. Provides a balanced, thorough analysis for a job seeker deciding whether to pursue this company
5. Mentions any research areas that could not be completed instead of silently skipping them
6. Ends with a "### Sources" section listing each referenced link, numbered sequentially without gaps

Do not refer to yourself and do not comment on the writing process. Just write the report in markdown.`

// LLMRenderer asks the model for the final report. Any failure surfaces
// as an error so the synthesizer can fall back to the section renderer.
type LLMRenderer struct {
	client llm.Client
	brief  string
}

// NewLLMRenderer builds the renderer around a completion client.
func NewLLMRenderer(client llm.Client) *LLMRenderer {
	return &LLMRenderer{client: client}
}

var _ RenderingPolicy = (*LLMRenderer)(nil)

// SetBrief overrides the research brief carried into the prompt. Without
// one, a brief is derived from the request subject.
func (r *LLMRenderer) SetBrief(brief string) {
	r.brief = brief
}

// Render produces the report body from one completion call.
func (r *LLMRenderer) Render(ctx context.Context, req research.Request, state *research.AggregateState) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("no rendering client configured")
	}

	blocks := findingsBlocks(state)
	if blocks == "" {
		return "", fmt.Errorf("no research material to render")
	}

	brief := r.brief
	if brief == "" {
		brief = fmt.Sprintf("Company research for %s", req.Subject)
	}

	start := time.Now()
	body, err := r.client.CompleteWithSystem(ctx, renderSystemPrompt,
		fmt.Sprintf(renderUserTemplate, brief, time.Now().Format("January 2, 2006"), blocks))
	if err != nil {
		return "", fmt.Errorf("report generation: %w", err)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("report generation returned an empty body")
	}

	logging.SynthesisDebug("llm report rendered in %v (%d chars)",
		time.Since(start).Round(time.Millisecond), len(body))
	return body, nil
}

// findingsBlocks assembles the per-domain research fed to the model: the
// compressed summary when one exists, raw substantive findings otherwise.
// Domains with nothing collected still get a block so the report can name
// the gap.
func findingsBlocks(state *research.AggregateState) string {
	var blocks []string
	for _, result := range state.Results() {
		content := domainContent(result)
		if content == "" {
			content = "(No findings were collected for this area.)"
		}
		if note := statusNote(result); note != "" {
			content += "\n" + note
		}
		blocks = append(blocks, fmt.Sprintf("## %s\n%s", result.Domain.Title(), content))
	}
	return strings.Join(blocks, "\n\n")
}

func domainContent(result *research.WorkerResult) string {
	if result.Summary != "" {
		return strings.TrimSpace(result.Summary)
	}
	var parts []string
	for _, f := range result.Findings {
		if f.Tool == rtools.NameReflect {
			continue
		}
		parts = append(parts, strings.TrimSpace(f.Content))
	}
	return strings.Join(parts, "\n\n")
}
