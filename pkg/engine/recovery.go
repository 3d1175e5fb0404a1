package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/azimuth-ai/azimuth/pkg/telemetry"
)

// failureSignature is one entry of the closed fallback table used when the
// tool supplied no structured error code.
type failureSignature struct {
	fragment string
	class    FailureClass
}

// failureSignatures maps known error text to failure classes. Consulted in
// order, only as a fallback; structured tool codes always win.
var failureSignatures = []failureSignature{
	{"too many requests", FailureClassTransient},
	{"rate limit", FailureClassTransient},
	{"timed out", FailureClassTransient},
	{"timeout", FailureClassTransient},
	{"service unavailable", FailureClassTransient},
	{"already exists", FailureClassRecoverable},
	{"already taken", FailureClassRecoverable},
	{"not available", FailureClassRecoverable},
	{"conflict", FailureClassRecoverable},
	{"quota", FailureClassRecoverable},
	{"authorization failed", FailureClassPermission},
	{"permission denied", FailureClassPermission},
	{"access denied", FailureClassPermission},
	{"forbidden", FailureClassPermission},
	{"invalid", FailureClassConfiguration},
	{"bad request", FailureClassConfiguration},
	{"not found", FailureClassConfiguration},
}

// toolCodeClasses maps structured tool error codes to failure classes.
var toolCodeClasses = map[string]FailureClass{
	ErrCodeActionTimeout:  FailureClassTransient,
	ToolCodeTimeout:       FailureClassTransient,
	ToolCodeThrottled:     FailureClassTransient,
	ToolCodeNameTaken:     FailureClassRecoverable,
	ToolCodeQuotaExceeded: FailureClassRecoverable,
	ToolCodeAuthDenied:    FailureClassPermission,
	ToolCodeInvalidConfig: FailureClassConfiguration,
	ToolCodeNotFound:      FailureClassConfiguration,
}

// regionAlternatives is the bounded candidate list for location adjustments.
var regionAlternatives = []string{"eastus", "westus2", "westeurope", "centralus"}

// sizeAlternatives is the bounded candidate list for VM size adjustments.
var sizeAlternatives = []string{"Standard_B2s", "Standard_B2ms", "Standard_D2s_v5", "Standard_DS1_v2"}

// FailureRecoveryEngine classifies failures and decides between retry,
// parameter adjustment, alternative approach, and abort. Transient and
// recoverable budgets are tracked independently: exhausting one never
// consumes the other, and each class aborts only once its own budget is
// spent.
type FailureRecoveryEngine struct {
	cfg      Config
	cache    *LearnedConstraintsCache
	reasoner Reasoner
}

// NewFailureRecoveryEngine creates a recovery engine reading (never
// writing) the learned constraints cache.
func NewFailureRecoveryEngine(cfg Config, cache *LearnedConstraintsCache, reasoner Reasoner) *FailureRecoveryEngine {
	return &FailureRecoveryEngine{cfg: cfg, cache: cache, reasoner: reasoner}
}

// Classify produces the failure record for one failed attempt. The record's
// decision is applied by the orchestrator, which owns all goal and cache
// mutation.
func (r *FailureRecoveryEngine) Classify(
	ctx context.Context,
	goal *Goal,
	actionErr *EngineError,
	history []FailureRecord,
) *FailureRecord {
	record := &FailureRecord{
		GoalID:        goal.ID,
		AttemptNumber: goal.Attempts,
	}

	record.Classification = r.classify(ctx, goal, actionErr, history)

	switch record.Classification {
	case FailureClassTransient:
		if goal.TransientAttempts < r.cfg.MaxTransientRetries {
			record.Decision = DecisionRetryBackoff
			record.Delay = r.cfg.backoffFor(goal.TransientAttempts + 1)
			record.Reason = fmt.Sprintf("transient failure, retry %d/%d after %s",
				goal.TransientAttempts+1, r.cfg.MaxTransientRetries, record.Delay)
		} else {
			record.Decision = DecisionAbort
			record.Reason = "transient retry budget exhausted"
		}

	case FailureClassRecoverable:
		if goal.RecoverableAttempts < r.cfg.MaxParameterAlternatives {
			r.proposeAdjustment(goal, record)
		} else {
			record.Decision = DecisionAbort
			record.Reason = "parameter alternative budget exhausted"
		}

	case FailureClassPermission:
		record.Decision = DecisionAbort
		record.Reason = "permission failure, user action required"

	case FailureClassConfiguration:
		if goal.ConfigurationAttempts < 1 {
			r.proposeAdjustment(goal, record)
			if record.Decision == DecisionAbort {
				record.Reason = "configuration failure with no viable alternative"
			}
		} else {
			record.Decision = DecisionAbort
			record.Reason = "configuration alternative already attempted"
		}

	default:
		record.Decision = DecisionAbort
		record.Reason = "unrecoverable failure"
	}

	return record
}

// classify resolves the failure class: structured tool code first, then the
// closed signature table, then a validated reasoner hint, defaulting to
// unrecoverable.
func (r *FailureRecoveryEngine) classify(
	ctx context.Context,
	goal *Goal,
	actionErr *EngineError,
	history []FailureRecord,
) FailureClass {
	if actionErr == nil {
		return FailureClassUnrecoverable
	}

	if actionErr.Class != "" {
		return actionErr.Class
	}
	if class, ok := toolCodeClasses[actionErr.Code]; ok {
		return class
	}

	text := strings.ToLower(actionErr.Error())
	for _, sig := range failureSignatures {
		if strings.Contains(text, sig.fragment) {
			return sig.class
		}
	}

	if r.reasoner != nil {
		if hint, err := r.reasoner.ClassifyFailure(ctx, goal, actionErr, history); err == nil && hint != nil {
			class := FailureClass(hint.Classification)
			if class.Validate() == nil {
				telemetry.FromContext(ctx).NewComponentLogger("recovery").
					WithGoalID(goal.ID).
					Debugf("classified %s via reasoner: %s", actionErr.Code, class)
				return class
			}
		}
	}

	return FailureClassUnrecoverable
}

// proposeAdjustment fills the record with a mutated parameter set, skipping
// values the constraints cache already knows to fail. Name variants are an
// adjust_parameters decision; switching region or size is an
// alternative_approach. With no viable candidate left the record aborts.
func (r *FailureRecoveryEngine) proposeAdjustment(goal *Goal, record *FailureRecord) {
	if value, ok := goal.Parameters["name"]; ok && value != "" {
		if candidate := r.nextNameCandidate(goal, value); candidate != "" {
			record.Decision = DecisionAdjustParameters
			record.AdjustedParameter = "name"
			record.AdjustedParameters = cloneParams(goal.Parameters)
			record.AdjustedParameters["name"] = candidate
			record.Reason = fmt.Sprintf("name %q rejected, trying %q", value, candidate)
			return
		}
	}

	for param, candidates := range map[string][]string{
		"location": regionAlternatives,
		"size":     sizeAlternatives,
	} {
		current, ok := goal.Parameters[param]
		if !ok || current == "" {
			continue
		}
		if candidate := r.nextListCandidate(goal.Type, param, current, candidates); candidate != "" {
			record.Decision = DecisionAlternativeApproach
			record.AdjustedParameter = param
			record.AdjustedParameters = cloneParams(goal.Parameters)
			record.AdjustedParameters[param] = candidate
			record.Reason = fmt.Sprintf("switching %s from %q to %q", param, current, candidate)
			return
		}
	}

	record.Decision = DecisionAbort
	record.Reason = "no untried parameter alternative remains"
}

// nextNameCandidate returns the next numeric-suffix name variant not yet
// known to fail, or "".
func (r *FailureRecoveryEngine) nextNameCandidate(goal *Goal, current string) string {
	base := strings.TrimRight(current, "0123456789")
	if base == "" {
		base = current
	}
	for i := 2; i <= 9; i++ {
		candidate := fmt.Sprintf("%s%d", base, i)
		if candidate == current {
			continue
		}
		if r.cache.HasFailed(goal.Type, "name", candidate) {
			continue
		}
		return candidate
	}
	return ""
}

// nextListCandidate returns the first candidate from the bounded list that
// differs from current and is not known to fail, or "".
func (r *FailureRecoveryEngine) nextListCandidate(goalType GoalType, param, current string, candidates []string) string {
	for _, candidate := range candidates {
		if candidate == current {
			continue
		}
		if r.cache.HasFailed(goalType, param, candidate) {
			continue
		}
		return candidate
	}
	return ""
}

// cloneParams copies a parameter map.
func cloneParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
