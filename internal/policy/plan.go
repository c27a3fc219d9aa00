// Package policy ships the decision logic that drives research workers: a
// planner deriving a research plan from the request (LLM-backed, with a
// deterministic fallback), and focus-queue decision policies seeded from
// that plan. The focus queues run fully deterministically; the LLM only
// refines what they search for.
package policy

import (
	"fmt"

	"prospect/internal/research"
)

// JobAnalysis is the role profile extracted from a job posting carried in
// the request context. All fields are optional; the zero value means the
// posting said nothing usable.
type JobAnalysis struct {
	JobTitle            string   `json:"job_title"`
	Department          string   `json:"department,omitempty"`
	KeyResponsibilities []string `json:"key_responsibilities,omitempty"`
	RequiredSkills      []string `json:"required_skills,omitempty"`
	ValuesMentioned     []string `json:"company_values_mentioned,omitempty"`
	SeniorityLevel      string   `json:"seniority_level,omitempty"`
}

// ResearchPlan carries the per-domain focus queries that seed worker specs
// and focus-queue policies.
type ResearchPlan struct {
	Objectives        []string `json:"research_objectives"`
	HistoryFocus      []string `json:"history_focus"`
	FutureFocus       []string `json:"future_focus"`
	CultureFocus      []string `json:"culture_focus"`
	JobConsiderations []string `json:"job_specific_considerations,omitempty"`

	// Analysis is the role profile the plan was built from, when the
	// request context held a job posting.
	Analysis *JobAnalysis `json:"job_analysis,omitempty"`
}

// Brief is the one-line research brief carried into report synthesis.
func (p *ResearchPlan) Brief(req research.Request) string {
	brief := fmt.Sprintf("Company research for %s", req.Subject)
	if p.Analysis != nil && p.Analysis.JobTitle != "" {
		brief += fmt.Sprintf(" - %s position", p.Analysis.JobTitle)
	}
	return brief
}

// FocusFor returns the plan's focus queries for one domain.
func (p *ResearchPlan) FocusFor(domain research.Domain) []string {
	switch domain {
	case research.DomainHistory:
		return p.HistoryFocus
	case research.DomainFuture:
		return p.FutureFocus
	case research.DomainCulture:
		return p.CultureFocus
	}
	return nil
}

// DefaultPlan is the deterministic plan used when no LLM is configured or
// structured planning fails. The focus queries cover the same ground the
// specialized research areas always cover; role context, when present,
// only annotates the objectives.
func DefaultPlan(req research.Request, analysis *JobAnalysis) *ResearchPlan {
	subject := req.Subject
	plan := &ResearchPlan{
		Objectives: []string{
			fmt.Sprintf("Comprehensive analysis of %s for job seekers", subject),
		},
		HistoryFocus: []string{
			fmt.Sprintf("%s company history founding story", subject),
			fmt.Sprintf("%s key milestones acquisitions timeline", subject),
			fmt.Sprintf("%s leadership changes management evolution", subject),
			fmt.Sprintf("%s financial performance major events", subject),
			fmt.Sprintf("%s market position competitive landscape", subject),
		},
		FutureFocus: []string{
			fmt.Sprintf("%s strategic plans roadmap announcements", subject),
			fmt.Sprintf("%s expansion new markets product launches", subject),
			fmt.Sprintf("%s funding investment growth prospects", subject),
			fmt.Sprintf("%s research development innovation plans", subject),
			fmt.Sprintf("%s industry trends outlook", subject),
		},
		CultureFocus: []string{
			fmt.Sprintf("%s employee reviews and ratings", subject),
			fmt.Sprintf("%s work-life balance benefits perks", subject),
			fmt.Sprintf("%s diversity equity inclusion practices", subject),
			fmt.Sprintf("%s management style organizational structure", subject),
		},
		Analysis: analysis,
	}

	if analysis != nil && analysis.JobTitle != "" {
		plan.Objectives = append(plan.Objectives,
			fmt.Sprintf("Assess fit for the %s role", analysis.JobTitle))
		plan.JobConsiderations = append(plan.JobConsiderations,
			fmt.Sprintf("Weigh findings against the %s position", analysis.JobTitle))
	}
	return plan
}
