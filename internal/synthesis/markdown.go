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

// Near-duplicate thresholds. Embedding similarity catches paraphrases of
// the same material; the lexical fallback only catches near-verbatim
// overlap, so it runs tighter than a classifier would.
const (
	duplicateCosine  = 0.95
	duplicateJaccard = 0.85
)

// Embedder produces comparable vectors for near-duplicate detection.
// llm.Embedder satisfies it; nil selects the lexical comparison.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// MarkdownRenderer is the deterministic rendering policy: one section per
// domain in launch order, compressed summaries preferred over raw
// findings, status notes for anything short of clean completion, and an
// aggregated sources list. Render never returns an error.
type MarkdownRenderer struct {
	embedder Embedder
}

// NewMarkdownRenderer builds the renderer. The embedder is optional.
func NewMarkdownRenderer(embedder Embedder) *MarkdownRenderer {
	return &MarkdownRenderer{embedder: embedder}
}

var _ RenderingPolicy = (*MarkdownRenderer)(nil)

// Render assembles the report body.
func (r *MarkdownRenderer) Render(ctx context.Context, req research.Request, state *research.AggregateState) (string, error) {
	kept := r.keptFindings(ctx, state)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Company Research Report: %s\n\n", req.Subject)
	fmt.Fprintf(&sb, "*Prepared for a job seeker. Generated %s.*\n",
		time.Now().Format("January 2, 2006"))

	for _, result := range state.Results() {
		fmt.Fprintf(&sb, "\n## %s\n\n", result.Domain.Title())
		writeDomainBody(&sb, result, kept[result.Domain])
	}

	if sources := sourceURLs(state); len(sources) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for i, u := range sources {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, u)
		}
	}
	return sb.String(), nil
}

func writeDomainBody(sb *strings.Builder, result *research.WorkerResult, kept []research.Finding) {
	switch {
	case result.Summary != "":
		sb.WriteString(strings.TrimSpace(result.Summary) + "\n")
	case len(kept) > 0:
		for i, f := range kept {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(strings.TrimSpace(f.Content) + "\n")
		}
	default:
		sb.WriteString("No findings were collected for this area.\n")
	}

	if note := statusNote(result); note != "" {
		sb.WriteString("\n" + note + "\n")
	}
}

// statusNote is the caveat attached to a domain section when its research
// did not complete cleanly.
func statusNote(result *research.WorkerResult) string {
	switch result.Status {
	case research.StatusPartiallyCompleted:
		if result.FailureCount > 0 {
			return fmt.Sprintf("_Partial coverage: %d of %d research steps failed._",
				result.FailureCount, result.Attempts)
		}
		return "_Partial coverage: the research loop ended before this area was fully explored._"
	case research.StatusFailed:
		if result.Failure != nil {
			return fmt.Sprintf("_Research failed: %s._", result.Failure)
		}
		return "_Research failed._"
	}
	return ""
}

// keptFindings selects the substantive findings each domain renders raw,
// with near-duplicates collapsed across domains. Domains rendering a
// compressed summary contribute nothing here.
func (r *MarkdownRenderer) keptFindings(ctx context.Context, state *research.AggregateState) map[research.Domain][]research.Finding {
	type ref struct {
		domain  research.Domain
		finding research.Finding
	}
	var refs []ref
	for _, result := range state.Results() {
		if result.Summary != "" {
			continue
		}
		for _, f := range result.Findings {
			if f.Tool == rtools.NameReflect {
				continue
			}
			refs = append(refs, ref{result.Domain, f})
		}
	}
	if len(refs) == 0 {
		return nil
	}

	contents := make([]string, len(refs))
	for i, rf := range refs {
		contents[i] = rf.finding.Content
	}
	dup := r.duplicateMarks(ctx, contents)

	kept := make(map[research.Domain][]research.Finding, state.Len())
	dropped := 0
	for i, rf := range refs {
		if dup[i] {
			dropped++
			continue
		}
		kept[rf.domain] = append(kept[rf.domain], rf.finding)
	}
	if dropped > 0 {
		logging.SynthesisDebug("collapsed %d near-duplicate findings", dropped)
	}
	return kept
}

// duplicateMarks flags entries that near-duplicate an earlier entry. The
// first occurrence always survives.
func (r *MarkdownRenderer) duplicateMarks(ctx context.Context, contents []string) []bool {
	dup := make([]bool, len(contents))
	if len(contents) < 2 {
		return dup
	}

	if r.embedder != nil {
		vectors, err := r.embedder.EmbedBatch(ctx, contents)
		if err == nil && len(vectors) == len(contents) {
			for i := 1; i < len(vectors); i++ {
				for j := 0; j < i; j++ {
					if dup[j] {
						continue
					}
					if llm.Cosine(vectors[i], vectors[j]) >= duplicateCosine {
						dup[i] = true
						break
					}
				}
			}
			return dup
		}
		logging.SynthesisWarn("embedding dedupe unavailable, comparing lexically: %v", err)
	}

	for i := 1; i < len(contents); i++ {
		for j := 0; j < i; j++ {
			if dup[j] {
				continue
			}
			if lexicalSimilarity(contents[i], contents[j]) >= duplicateJaccard {
				dup[i] = true
				break
			}
		}
	}
	return dup
}

// lexicalSimilarity is the token-set Jaccard index of two texts.
func lexicalSimilarity(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?()[]{}*#\"'`")
		if len(tok) > 2 {
			set[tok] = struct{}{}
		}
	}
	return set
}

// sourceURLs harvests citation URLs from the collected findings in launch
// order, duplicates dropped. Search results embed their URLs in content
// lines; fetches carry theirs on the finding itself.
func sourceURLs(state *research.AggregateState) []string {
	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if !strings.HasPrefix(u, "http") {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, result := range state.Results() {
		for _, f := range result.Findings {
			add(f.Source)
			for _, line := range strings.Split(f.Content, "\n") {
				if strings.HasPrefix(line, "**URL:** ") {
					add(strings.TrimPrefix(line, "**URL:** "))
				}
			}
		}
	}
	return urls
}
