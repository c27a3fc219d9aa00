package worker

import (
	rerr "prospect/internal/errors"
	"prospect/internal/research"
)

// Instruction names one tool invocation a decision policy wants executed.
type Instruction struct {
	// Tool is the registry name of the tool to invoke.
	Tool string

	// Args holds the invocation arguments, keyed by schema property name.
	Args map[string]any
}

// DecisionPolicy drives a worker's iteration loop. NextInstruction picks
// the next tool invocation from the findings accumulated so far plus the
// request; IsSufficient judges when the domain has been researched enough
// to stop before the budget runs out.
//
// A policy instance belongs to exactly one worker and is called from that
// worker's goroutine only. Implementations must not mutate the findings
// slice they are handed.
type DecisionPolicy interface {
	NextInstruction(findings []research.Finding, req research.Request) (Instruction, error)
	IsSufficient(findings []research.Finding) bool
}

// ErrPolicyExhausted signals that a policy has no further instructions to
// issue. The worker settles on whatever findings it holds instead of
// treating this as a task unit failure.
var ErrPolicyExhausted = rerr.New("decision policy has no further instructions")
