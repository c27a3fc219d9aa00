package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	rerr "prospect/internal/errors"
	"prospect/internal/llm"
	"prospect/internal/logging"
	"prospect/internal/research"
)

const analyzeSystemPrompt = `You are an expert at analyzing job descriptions to extract key information for company research.`

const analyzeUserTemplate = `Analyze the following job description and extract key information:

Job Description:
%s

Extract the job title, department, key responsibilities, required skills, company values mentioned, and seniority level. This information will be used to tailor company research for this specific role.

Respond with JSON only, using exactly these keys:
{"job_title": "", "department": "", "key_responsibilities": [], "required_skills": [], "company_values_mentioned": [], "seniority_level": ""}`

const planSystemPrompt = `You are an expert research planner specializing in company analysis for job seekers.`

// Planner derives the research plan for a request. With no client it
// returns the deterministic default plan; with one, it runs up to two
// structured completions (role analysis, then planning) and falls back to
// the default plan whenever a call fails or comes back malformed.
type Planner struct {
	client llm.Client
}

// NewPlanner builds a planner. A nil client is valid and disables the
// LLM-refined path.
func NewPlanner(client llm.Client) *Planner {
	return &Planner{client: client}
}

// Plan always returns a usable plan; planning failures degrade to the
// default plan rather than erroring.
func (p *Planner) Plan(ctx context.Context, req research.Request) *ResearchPlan {
	analysis := p.analyzeJobContext(ctx, req)
	return p.buildPlan(ctx, req, analysis)
}

// analyzeJobContext extracts a role profile from the request context.
// Returns nil when there is nothing to analyze or the analysis fails;
// planning proceeds without it either way.
func (p *Planner) analyzeJobContext(ctx context.Context, req research.Request) *JobAnalysis {
	if p.client == nil || req.Context == "" {
		return nil
	}

	raw, err := p.client.CompleteWithSystem(ctx, analyzeSystemPrompt,
		fmt.Sprintf(analyzeUserTemplate, req.Context))
	if err != nil {
		logging.PlannerWarn("job context analysis failed, continuing without it: %v", err)
		return nil
	}

	var analysis JobAnalysis
	if err := decodeStructured(raw, &analysis); err != nil {
		logging.PlannerWarn("job context analysis malformed, continuing without it: %v", err)
		return nil
	}
	if analysis.JobTitle != "" {
		logging.Planner("role context: %s", analysis.JobTitle)
	}
	return &analysis
}

func (p *Planner) buildPlan(ctx context.Context, req research.Request, analysis *JobAnalysis) *ResearchPlan {
	if p.client == nil {
		return DefaultPlan(req, analysis)
	}

	raw, err := p.client.CompleteWithSystem(ctx, planSystemPrompt, planUserPrompt(req, analysis))
	if err != nil {
		logging.PlannerWarn("research planning failed, using default plan: %v", err)
		return DefaultPlan(req, analysis)
	}

	var plan ResearchPlan
	if err := decodeStructured(raw, &plan); err != nil {
		logging.PlannerWarn("research plan malformed, using default plan: %v", err)
		return DefaultPlan(req, analysis)
	}

	// Backfill anything the model left empty so every domain has a queue.
	def := DefaultPlan(req, analysis)
	if len(plan.Objectives) == 0 {
		plan.Objectives = def.Objectives
	}
	if len(plan.HistoryFocus) == 0 {
		plan.HistoryFocus = def.HistoryFocus
	}
	if len(plan.FutureFocus) == 0 {
		plan.FutureFocus = def.FutureFocus
	}
	if len(plan.CultureFocus) == 0 {
		plan.CultureFocus = def.CultureFocus
	}
	plan.Analysis = analysis

	logging.Planner("research plan ready: %d objectives, focus %d/%d/%d",
		len(plan.Objectives), len(plan.HistoryFocus), len(plan.FutureFocus), len(plan.CultureFocus))
	return &plan
}

func planUserPrompt(req research.Request, analysis *JobAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a comprehensive company research plan for a job seeker:\n\nCompany: %s\n", req.Subject)
	if analysis != nil {
		if analysis.JobTitle != "" {
			fmt.Fprintf(&b, "Job Title: %s\n", analysis.JobTitle)
		}
		if analysis.Department != "" {
			fmt.Fprintf(&b, "Department: %s\n", analysis.Department)
		}
		if analysis.SeniorityLevel != "" {
			fmt.Fprintf(&b, "Seniority Level: %s\n", analysis.SeniorityLevel)
		}
	}
	b.WriteString(`
Plan research objectives and focus web search queries for three specialized research areas:
1. history (company history and background)
2. future (strategic plans and growth prospects)
3. culture (values, work environment, employee satisfaction)

Give each focus list 3-5 concrete search queries. Consider any job-specific context to tailor the research appropriately.

Respond with JSON only, using exactly these keys:
{"research_objectives": [], "history_focus": [], "future_focus": [], "culture_focus": [], "job_specific_considerations": []}`)
	return b.String()
}

// decodeStructured parses a model response into v, tolerating markdown
// wrappers and prose around the JSON object.
func decodeStructured(raw string, v any) error {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return fmt.Errorf("%w: no JSON object in response", rerr.ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("%w: %v", rerr.ErrMalformedResponse, err)
	}
	return nil
}

// extractJSON returns the first brace-balanced JSON object in response.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(response); i++ {
		switch response[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
