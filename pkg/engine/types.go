package engine

import (
	"time"
)

// Goal represents a unit of work with a type, parameters, dependencies, and
// a lifecycle status. Goals are created once per run by the parser and
// mutated only by the orchestrator.
type Goal struct {
	// ID is the unique identifier for this goal.
	ID string `json:"id"`

	// Type is the goal type driving strategy dispatch.
	Type GoalType `json:"type"`

	// Name is the human-readable name of the goal.
	Name string `json:"name"`

	// Parameters are the current parameters for the goal. Values may
	// reference dependency outputs as ${<goal-id>.<output-key>}.
	Parameters map[string]string `json:"parameters,omitempty"`

	// DependencyIDs lists goal IDs that must be achieved before this goal.
	DependencyIDs []string `json:"dependency_ids,omitempty"`

	// Criteria are the declared success criteria for evaluation.
	Criteria []Criterion `json:"criteria,omitempty"`

	// Status is the current lifecycle status.
	Status GoalStatus `json:"status"`

	// Level is the topological level assigned at graph construction.
	Level int `json:"level"`

	// Outputs holds values produced by the achieved goal, consumable by
	// dependents through parameter references.
	Outputs map[string]string `json:"outputs,omitempty"`

	// Confidence is the evaluation confidence of the latest attempt, in [0,1].
	Confidence float64 `json:"confidence"`

	// Attempts is the total number of execution attempts so far.
	Attempts int `json:"attempts"`

	// Evidence lists the verified criteria backing an achieved status.
	Evidence []string `json:"evidence,omitempty"`

	// BlockedBy lists the goal IDs whose failure blocked this goal.
	BlockedBy []string `json:"blocked_by,omitempty"`

	// TransientAttempts counts retries consumed from the transient budget.
	TransientAttempts int `json:"transient_attempts"`

	// RecoverableAttempts counts alternatives consumed from the
	// recoverable budget.
	RecoverableAttempts int `json:"recoverable_attempts"`

	// ConfigurationAttempts counts the single alternative a configuration
	// failure is granted.
	ConfigurationAttempts int `json:"configuration_attempts"`

	// TriedAlternatives records parameter values already attempted, for
	// the final report.
	TriedAlternatives []string `json:"tried_alternatives,omitempty"`

	// LastError is the classified error of the latest failed attempt.
	LastError *EngineError `json:"last_error,omitempty"`
}

// Criterion is a declared success criterion the evaluator can check against
// an action result.
type Criterion struct {
	// Name is a short human-readable label for the criterion.
	Name string `json:"name"`

	// Check is the programmatic check specification. Known forms:
	// "exit_zero", "resource_id_present", "output_contains:<substr>",
	// "output_json_has:<key>". Anything else is counted as assumed.
	Check string `json:"check"`

	// Hard marks a criterion whose failure fails the goal outright once
	// recovery is exhausted.
	Hard bool `json:"hard,omitempty"`
}

// ActionSpec describes one delegated action for the tool collaborator.
type ActionSpec struct {
	// GoalID is the goal this action serves.
	GoalID string `json:"goal_id"`

	// Command is the executable or remote command to invoke.
	Command string `json:"command"`

	// Args are the command arguments, fully resolved.
	Args []string `json:"args,omitempty"`

	// Timeout bounds this action. Zero means the executor default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// RawResult is the tool collaborator's uniform execution result.
type RawResult struct {
	// Stdout is the captured standard output, unredacted.
	Stdout string `json:"stdout"`

	// Stderr is the captured standard error, unredacted.
	Stderr string `json:"stderr"`

	// ExitCode is the process or remote command exit code.
	ExitCode int `json:"exit_code"`

	// Duration is how long the action took.
	Duration time.Duration `json:"duration"`

	// ResourceID is the identifier of the created or touched resource,
	// when the tool could extract one.
	ResourceID string `json:"resource_id,omitempty"`
}

// ActionResult is the executor's redacted record of one attempt.
type ActionResult struct {
	// GoalID is the goal this result belongs to.
	GoalID string `json:"goal_id"`

	// Success indicates the tool reported a clean execution.
	Success bool `json:"success"`

	// ToolUsed names the tool collaborator that executed the action.
	ToolUsed string `json:"tool_used"`

	// RawOutput is the combined redacted output. Secrets are stripped
	// before this value is stored or logged.
	RawOutput string `json:"raw_output"`

	// ExitCode is the action exit code.
	ExitCode int `json:"exit_code"`

	// ResourceID is the created resource identifier, if any.
	ResourceID string `json:"resource_id,omitempty"`

	// Duration is how long the action took.
	Duration time.Duration `json:"duration"`

	// Error is the classified failure, if the action failed.
	Error *EngineError `json:"error,omitempty"`
}

// EvaluationResult scores an action result against a goal's criteria.
type EvaluationResult struct {
	// Status is the evaluated goal status for this attempt.
	Status GoalStatus `json:"status"`

	// Confidence is the discrete confidence score in [0,1].
	Confidence float64 `json:"confidence"`

	// CriteriaMet lists criteria verified programmatically.
	CriteriaMet []string `json:"criteria_met,omitempty"`

	// CriteriaFailed lists criteria that were checked and failed.
	CriteriaFailed []string `json:"criteria_failed,omitempty"`

	// CriteriaAssumed lists criteria that could not be checked.
	CriteriaAssumed []string `json:"criteria_assumed,omitempty"`
}

// FailureRecord is the recovery engine's classification and decision for one
// failed attempt.
type FailureRecord struct {
	// GoalID is the failed goal.
	GoalID string `json:"goal_id"`

	// AttemptNumber is the attempt that failed, starting at 1.
	AttemptNumber int `json:"attempt_number"`

	// Classification is the failure class.
	Classification FailureClass `json:"classification"`

	// Decision is the recovery action.
	Decision RecoveryDecision `json:"decision"`

	// Delay is the backoff before the next attempt, for retry decisions.
	Delay time.Duration `json:"delay,omitempty"`

	// AdjustedParameters is the mutated parameter set for adjustment
	// decisions.
	AdjustedParameters map[string]string `json:"adjusted_parameters,omitempty"`

	// AdjustedParameter names the single parameter that was mutated.
	AdjustedParameter string `json:"adjusted_parameter,omitempty"`

	// Reason is a human-readable explanation of the decision.
	Reason string `json:"reason,omitempty"`
}

// PreflightResult reports whether a goal's parameter references resolved.
type PreflightResult struct {
	// Ready is true when every reference resolved.
	Ready bool `json:"ready"`

	// MissingRefs lists unresolvable references when not ready.
	MissingRefs []string `json:"missing_refs,omitempty"`
}

// ResolvedAction is the strategy selector's output for a ready goal.
type ResolvedAction struct {
	// Parameters is the fully resolved parameter set used for the attempt.
	Parameters map[string]string `json:"parameters"`

	// Spec is the concrete action handed to the executor.
	Spec ActionSpec `json:"spec"`
}

// ExecutionPlan is the ordered batch view of a goal graph, assuming every
// goal succeeds. Produced for plan preview; the live scheduler recomputes
// the frontier after every batch instead.
type ExecutionPlan struct {
	// Batches is the ordered list of goal ID groups. Goals within one
	// batch have no ordering relative to each other.
	Batches [][]string `json:"batches"`
}

// Config bounds a single orchestration run.
type Config struct {
	// MaxConcurrency bounds parallel goal execution within a batch.
	MaxConcurrency int `json:"max_concurrency"`

	// ActionTimeout is the per-action timeout.
	ActionTimeout time.Duration `json:"action_timeout"`

	// MaxTransientRetries bounds retry_backoff attempts per goal.
	MaxTransientRetries int `json:"max_transient_retries"`

	// MaxParameterAlternatives bounds adjust_parameters attempts per goal.
	MaxParameterAlternatives int `json:"max_parameter_alternatives"`

	// BackoffSchedule is the delay before transient retry N (1-based).
	// Attempts beyond the schedule reuse the last entry.
	BackoffSchedule []time.Duration `json:"backoff_schedule"`

	// IterationSlack pads the global iteration cap of
	// total_goals x max_attempts_per_goal.
	IterationSlack int `json:"iteration_slack"`
}

// DefaultConfig returns the production run configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:           10,
		ActionTimeout:            300 * time.Second,
		MaxTransientRetries:      3,
		MaxParameterAlternatives: 3,
		BackoffSchedule: []time.Duration{
			30 * time.Second,
			60 * time.Second,
			120 * time.Second,
		},
		IterationSlack: 5,
	}
}

// maxAttemptsPerGoal is the worst case attempt count for one goal: the
// first attempt plus both recovery budgets plus the configuration
// alternative.
func (c Config) maxAttemptsPerGoal() int {
	return 1 + c.MaxTransientRetries + c.MaxParameterAlternatives + 1
}

// backoffFor returns the delay before the given 1-based transient retry.
func (c Config) backoffFor(retry int) time.Duration {
	if len(c.BackoffSchedule) == 0 {
		return 0
	}
	if retry < 1 {
		retry = 1
	}
	if retry > len(c.BackoffSchedule) {
		retry = len(c.BackoffSchedule)
	}
	return c.BackoffSchedule[retry-1]
}

// FinalReport is the sole error-reporting surface of a run.
type FinalReport struct {
	// RunID identifies the orchestration run.
	RunID string `json:"run_id"`

	// Request is the original natural-language request.
	Request string `json:"request,omitempty"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`

	// Achieved lists goals that need no user action.
	Achieved []GoalReport `json:"achieved,omitempty"`

	// Partial lists goals that ended with unverified success.
	Partial []GoalReport `json:"partial,omitempty"`

	// Failed lists goals needing manual intervention.
	Failed []GoalReport `json:"failed,omitempty"`

	// Blocked lists goals that never got a chance to run.
	Blocked []GoalReport `json:"blocked,omitempty"`

	// Aborted lists goals abandoned by cancellation or the iteration cap.
	Aborted []GoalReport `json:"aborted,omitempty"`

	// Summary provides counts per final status.
	Summary ReportSummary `json:"summary"`
}

// GoalReport is the per-goal slice of the final report.
type GoalReport struct {
	// GoalID is the reported goal.
	GoalID string `json:"goal_id"`

	// Name is the goal's human-readable name.
	Name string `json:"name"`

	// Type is the goal type.
	Type GoalType `json:"type"`

	// Status is the goal's final status.
	Status GoalStatus `json:"status"`

	// Confidence is the final evaluation confidence.
	Confidence float64 `json:"confidence"`

	// Attempts is the total attempt count.
	Attempts int `json:"attempts"`

	// ResourceID is the provisioned resource, for achieved goals.
	ResourceID string `json:"resource_id,omitempty"`

	// Evidence lists verified criteria, for achieved goals.
	Evidence []string `json:"evidence,omitempty"`

	// TriedAlternatives lists exhausted parameter values, for failed goals.
	TriedAlternatives []string `json:"tried_alternatives,omitempty"`

	// SuggestedAction is the manual step the user should take, for failed
	// goals.
	SuggestedAction string `json:"suggested_action,omitempty"`

	// BlockedBy lists the blocking goal IDs, for blocked goals.
	BlockedBy []string `json:"blocked_by,omitempty"`

	// Error is the final error message, for failed goals.
	Error string `json:"error,omitempty"`
}

// ReportSummary provides statistics about a run.
type ReportSummary struct {
	// Total is the total number of goals.
	Total int `json:"total"`

	// Achieved is the number of achieved goals.
	Achieved int `json:"achieved"`

	// Partial is the number of partial goals.
	Partial int `json:"partial"`

	// Failed is the number of failed goals.
	Failed int `json:"failed"`

	// Blocked is the number of blocked goals.
	Blocked int `json:"blocked"`

	// Aborted is the number of aborted goals.
	Aborted int `json:"aborted"`
}
