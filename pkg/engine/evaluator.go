package engine

import (
	"context"
	"encoding/json"
	"strings"
)

// GoalEvaluator scores an action result against a goal's declared success
// criteria. Scoring is a pure function of (goal, result): criteria are
// checked programmatically and the discrete confidence scale is assigned
// from how many were verified versus assumed. Ambiguity is never promoted
// to achieved; it defaults to partial.
type GoalEvaluator struct {
	reasoner Reasoner
}

// NewGoalEvaluator creates an evaluator. The reasoner is consulted only
// for goals with no declared criteria, and its response is clamped by the
// same ambiguity rules.
func NewGoalEvaluator(reasoner Reasoner) *GoalEvaluator {
	return &GoalEvaluator{reasoner: reasoner}
}

// Evaluate scores one attempt. Achieved requires confidence >= 0.8 and no
// failed criteria; some criteria met with none failed below that threshold
// is partial; a failed criterion fails the attempt.
func (e *GoalEvaluator) Evaluate(ctx context.Context, goal *Goal, result *ActionResult) *EvaluationResult {
	if len(goal.Criteria) == 0 {
		return e.evaluateWithoutCriteria(ctx, goal, result)
	}

	eval := &EvaluationResult{}
	existenceOnly := true
	for _, c := range goal.Criteria {
		verdict, checkable := checkCriterion(c, result)
		switch {
		case !checkable:
			eval.CriteriaAssumed = append(eval.CriteriaAssumed, c.Name)
		case verdict:
			eval.CriteriaMet = append(eval.CriteriaMet, c.Name)
			if !isExistenceCheck(c.Check) {
				existenceOnly = false
			}
		default:
			eval.CriteriaFailed = append(eval.CriteriaFailed, c.Name)
		}
	}

	met := len(eval.CriteriaMet)
	assumed := len(eval.CriteriaAssumed)

	switch {
	case len(eval.CriteriaFailed) > 0:
		eval.Status = GoalStatusFailed
		eval.Confidence = ConfidenceNone

	case !result.Success && met > 0:
		// Criteria matched on output the tool reported as a failure.
		eval.Status = GoalStatusPartial
		eval.Confidence = ConfidenceConflicting

	case !result.Success:
		eval.Status = GoalStatusFailed
		eval.Confidence = ConfidenceNone

	case assumed == 0:
		eval.Status = GoalStatusAchieved
		eval.Confidence = ConfidenceAllVerified

	case met > assumed:
		eval.Status = GoalStatusAchieved
		eval.Confidence = ConfidenceMostVerified

	case met > 0 && existenceOnly:
		eval.Status = GoalStatusPartial
		eval.Confidence = ConfidenceExistenceOnly

	default:
		eval.Status = GoalStatusPartial
		eval.Confidence = ConfidencePartialEvidence
	}

	return eval
}

// evaluateWithoutCriteria handles goals with no declared criteria. The
// reasoner's opinion is consulted when available but never upgraded past
// what the action result itself supports.
func (e *GoalEvaluator) evaluateWithoutCriteria(ctx context.Context, goal *Goal, result *ActionResult) *EvaluationResult {
	base := &EvaluationResult{Status: GoalStatusPartial, Confidence: ConfidencePartialEvidence}
	switch {
	case !result.Success:
		base.Status = GoalStatusFailed
		base.Confidence = ConfidenceNone
	case result.ResourceID != "":
		base.Confidence = ConfidenceExistenceOnly
	}

	if e.reasoner == nil || !result.Success {
		return base
	}

	hint, err := e.reasoner.EvaluateGoal(ctx, goal, result)
	if err != nil || hint == nil {
		return base
	}
	// Without verified criteria, achieved is not on the table and the
	// confidence cannot exceed existence-level.
	if hint.Status == GoalStatusAchieved {
		hint.Status = GoalStatusPartial
	}
	if hint.Confidence > ConfidenceExistenceOnly {
		hint.Confidence = ConfidenceExistenceOnly
	}
	if hint.Confidence < 0 {
		hint.Confidence = 0
	}
	if hint.Status != GoalStatusPartial && hint.Status != GoalStatusFailed {
		return base
	}
	return hint
}

// checkCriterion evaluates one criterion against the result. The second
// return value is false when the check form is unknown, in which case the
// criterion is assumed rather than verified.
func checkCriterion(c Criterion, result *ActionResult) (verdict, checkable bool) {
	check := c.Check
	switch {
	case check == "exit_zero":
		return result.ExitCode == 0, true

	case check == "resource_id_present":
		return result.ResourceID != "", true

	case strings.HasPrefix(check, "output_contains:"):
		want := strings.TrimPrefix(check, "output_contains:")
		return strings.Contains(result.RawOutput, want), true

	case strings.HasPrefix(check, "output_json_has:"):
		key := strings.TrimPrefix(check, "output_json_has:")
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(result.RawOutput), &decoded); err != nil {
			return false, true
		}
		_, ok := decoded[key]
		return ok, true

	default:
		return false, false
	}
}

// isExistenceCheck reports whether a check only confirms the resource
// exists rather than verifying its configuration.
func isExistenceCheck(check string) bool {
	return check == "exit_zero" || check == "resource_id_present"
}
