package engine

import (
	"context"
)

// Reasoner is the natural-language decision collaborator. Its responses are
// inherently nondeterministic and are treated as untrusted structured data:
// every payload is validated against a fixed schema before use, and a
// malformed response surfaces as a parse error, never a silent coercion.
type Reasoner interface {
	// ParseGoals decomposes a request into a candidate goal set with
	// types, parameters, and declared dependencies.
	ParseGoals(ctx context.Context, requestText string) (*GoalGraphSpec, error)

	// SelectStrategy proposes parameters for a goal from prior outputs.
	// Consulted only when a goal declares no parameters of its own.
	SelectStrategy(ctx context.Context, goal *Goal, priorOutputs map[string]map[string]string) (*StrategyHint, error)

	// EvaluateGoal scores an action result. Consulted only when a goal
	// declares no criteria; the engine clamps the response by its own
	// ambiguity rules.
	EvaluateGoal(ctx context.Context, goal *Goal, result *ActionResult) (*EvaluationResult, error)

	// ClassifyFailure proposes a failure class. Consulted only when the
	// tool supplied no structured code and no known signature matches.
	ClassifyFailure(ctx context.Context, goal *Goal, actionErr *EngineError, history []FailureRecord) (*FailureHint, error)
}

// Tool is the uniform action-execution collaborator (CLI delegate, API
// client, IaC engine). It must honor context cancellation; its output is
// redacted by the executor before persistence.
type Tool interface {
	// Name identifies the tool in results and history.
	Name() string

	// Execute runs one action and returns its raw result. A returned
	// error should be an *EngineError carrying a structured tool code.
	Execute(ctx context.Context, spec ActionSpec) (*RawResult, error)
}

// GoalGraphSpec is the reasoner's candidate decomposition of a request.
// Validated field-by-field before a GoalGraph is built from it.
type GoalGraphSpec struct {
	// Goals is the candidate goal list.
	Goals []GoalSpec `json:"goals" validate:"required,min=1,dive"`
}

// GoalSpec is one candidate goal from the reasoner.
type GoalSpec struct {
	// ID is the goal identifier, unique within the graph.
	ID string `json:"id" validate:"required"`

	// Type is the goal type. Must be one of the closed type set.
	Type string `json:"type" validate:"required"`

	// Name is the human-readable goal name.
	Name string `json:"name" validate:"required"`

	// Parameters are the initial goal parameters.
	Parameters map[string]string `json:"parameters,omitempty"`

	// DependsOn lists IDs of goals that must be achieved first.
	DependsOn []string `json:"depends_on,omitempty"`

	// Criteria are the declared success criteria.
	Criteria []CriterionSpec `json:"criteria,omitempty" validate:"dive"`
}

// CriterionSpec is one candidate success criterion from the reasoner.
type CriterionSpec struct {
	// Name is the criterion label.
	Name string `json:"name" validate:"required"`

	// Check is the programmatic check specification.
	Check string `json:"check" validate:"required"`

	// Hard marks a must-pass criterion.
	Hard bool `json:"hard,omitempty"`
}

// StrategyHint is the reasoner's parameter proposal for a goal.
type StrategyHint struct {
	// StrategyID names the proposed strategy.
	StrategyID string `json:"strategy_id" validate:"required"`

	// Parameters are the proposed parameters.
	Parameters map[string]string `json:"parameters" validate:"required"`
}

// FailureHint is the reasoner's failure classification proposal.
type FailureHint struct {
	// Classification is the proposed failure class.
	Classification string `json:"classification" validate:"required"`

	// Reason explains the proposal.
	Reason string `json:"reason,omitempty"`
}
