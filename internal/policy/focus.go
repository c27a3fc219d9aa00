package policy

import (
	"fmt"
	"strings"

	"prospect/internal/research"
	rtools "prospect/internal/tools/research"
	"prospect/internal/worker"
)

// fetchMaxLength caps page fetches issued by focus queues so a single
// fetched page cannot dominate the compression input.
const fetchMaxLength = 8000

// FocusQueueConfig tunes a focus-queue policy. The zero value selects the
// registered tool names and a minimum of three substantive findings;
// fetching stays off unless FetchTool is set.
type FocusQueueConfig struct {
	SearchTool  string
	ValuesTool  string
	ReflectTool string
	FetchTool   string
	MinFindings int
}

func (c FocusQueueConfig) normalize() FocusQueueConfig {
	if c.SearchTool == "" {
		c.SearchTool = rtools.NameWebSearch
	}
	if c.ValuesTool == "" {
		c.ValuesTool = rtools.NameCompanyValuesSearch
	}
	if c.ReflectTool == "" {
		c.ReflectTool = rtools.NameReflect
	}
	if c.MinFindings <= 0 {
		c.MinFindings = 3
	}
	return c
}

// FocusQueuePolicy is a deterministic DecisionPolicy that walks a fixed
// queue of focus searches, recording a reflection note after every
// collected finding before moving on. When a fetch tool is configured it
// follows the first result URL it sees, once. Culture queues lead with the
// values search.
//
// The policy derives its pacing from the findings slice alone: a failed
// task unit appends nothing, so the queue simply advances to the next
// search without an orphan reflection.
type FocusQueuePolicy struct {
	domain      research.Domain
	queue       []worker.Instruction
	next        int
	reflectTool string
	fetchTool   string
	minFindings int
	fetchDone   bool
}

var _ worker.DecisionPolicy = (*FocusQueuePolicy)(nil)

// NewFocusQueue builds the policy for one domain from the plan's focus
// queries. An empty focus list falls back to the default plan's queries
// for that domain.
func NewFocusQueue(domain research.Domain, req research.Request, focus []string, cfg FocusQueueConfig) *FocusQueuePolicy {
	cfg = cfg.normalize()
	if len(focus) == 0 {
		focus = DefaultPlan(req, nil).FocusFor(domain)
	}

	queue := make([]worker.Instruction, 0, len(focus)+1)
	if domain == research.DomainCulture {
		// The values search slants the query itself; hand it the bare subject.
		queue = append(queue, worker.Instruction{
			Tool: cfg.ValuesTool,
			Args: map[string]any{"query": req.Subject},
		})
	}
	for _, q := range focus {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		queue = append(queue, worker.Instruction{
			Tool: cfg.SearchTool,
			Args: map[string]any{"query": q},
		})
	}

	return &FocusQueuePolicy{
		domain:      domain,
		queue:       queue,
		reflectTool: cfg.ReflectTool,
		fetchTool:   cfg.FetchTool,
		minFindings: cfg.MinFindings,
	}
}

// NextInstruction returns the next tool invocation, or
// worker.ErrPolicyExhausted once the queue is spent.
func (p *FocusQueuePolicy) NextInstruction(findings []research.Finding, req research.Request) (worker.Instruction, error) {
	// Reflect on every collected finding before the next collection step.
	if n := len(findings); n > 0 && findings[n-1].Tool != p.reflectTool {
		return worker.Instruction{
			Tool: p.reflectTool,
			Args: map[string]any{"reflection": p.reflectionNote(findings)},
		}, nil
	}

	if p.fetchTool != "" && !p.fetchDone {
		if pageURL := topResultURL(findings, p.reflectTool, p.fetchTool); pageURL != "" {
			p.fetchDone = true
			return worker.Instruction{
				Tool: p.fetchTool,
				Args: map[string]any{"url": pageURL, "max_length": fetchMaxLength},
			}, nil
		}
	}

	if p.next < len(p.queue) {
		instr := p.queue[p.next]
		p.next++
		return instr, nil
	}
	return worker.Instruction{}, worker.ErrPolicyExhausted
}

// IsSufficient is satisfied once enough substantive findings are in.
// Reflection notes do not count toward the minimum.
func (p *FocusQueuePolicy) IsSufficient(findings []research.Finding) bool {
	return p.substantiveCount(findings) >= p.minFindings
}

func (p *FocusQueuePolicy) substantiveCount(findings []research.Finding) int {
	count := 0
	for _, f := range findings {
		if f.Tool != p.reflectTool {
			count++
		}
	}
	return count
}

func (p *FocusQueuePolicy) reflectionNote(findings []research.Finding) string {
	collected := p.substantiveCount(findings)
	if p.next < len(p.queue) {
		nextQuery, _ := p.queue[p.next].Args["query"].(string)
		return fmt.Sprintf(
			"Collected %d findings for %s research so far. Next focus: %s. Note what is still missing before searching.",
			collected, p.domain, nextQuery)
	}
	return fmt.Sprintf(
		"Collected %d findings for %s research; the focus queue is complete. Assess whether the material answers the research focus.",
		collected, p.domain)
}

// topResultURL pulls the first result URL out of the most recent
// substantive finding. Search findings list results top first, so the
// first URL line is the strongest hit.
func topResultURL(findings []research.Finding, reflectTool, fetchTool string) string {
	for i := len(findings) - 1; i >= 0; i-- {
		f := findings[i]
		if f.Tool == reflectTool || f.Tool == fetchTool {
			continue
		}
		for _, line := range strings.Split(f.Content, "\n") {
			if !strings.HasPrefix(line, "**URL:** ") {
				continue
			}
			if pageURL := strings.TrimSpace(strings.TrimPrefix(line, "**URL:** ")); pageURL != "" {
				return pageURL
			}
		}
	}
	return ""
}
