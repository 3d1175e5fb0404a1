package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/azimuth-ai/azimuth/pkg/telemetry"
)

// ActionExecutor invokes the tool collaborator for one goal with a bounded
// timeout and mandatory secret redaction. It never interprets results; that
// is the evaluator's job.
type ActionExecutor struct {
	defaultTimeout time.Duration
}

// NewActionExecutor creates an executor with the given default per-action
// timeout. A non-positive timeout falls back to the engine default of 300s.
func NewActionExecutor(defaultTimeout time.Duration) *ActionExecutor {
	if defaultTimeout <= 0 {
		defaultTimeout = 300 * time.Second
	}
	return &ActionExecutor{defaultTimeout: defaultTimeout}
}

// Execute runs one resolved action through the tool. All captured output is
// passed through the redaction filter before being stored; a deadline hit
// is reported as an action timeout, which classifies as transient.
func (e *ActionExecutor) Execute(ctx context.Context, goal *Goal, action *ResolvedAction, tool Tool) *ActionResult {
	log := telemetry.FromContext(ctx).NewComponentLogger("executor").
		WithGoalID(goal.ID).WithGoalType(string(goal.Type))

	timeout := action.Spec.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := tool.Execute(execCtx, action.Spec)
	elapsed := time.Since(start)

	result := &ActionResult{
		GoalID:   goal.ID,
		ToolUsed: tool.Name(),
		Duration: elapsed,
	}
	if raw != nil {
		result.ExitCode = raw.ExitCode
		result.ResourceID = raw.ResourceID
		result.RawOutput = RedactSecrets(combineOutput(raw.Stdout, raw.Stderr))
		if raw.Duration > 0 {
			result.Duration = raw.Duration
		}
	}

	switch {
	case err == nil && (raw == nil || raw.ExitCode == 0):
		result.Success = true
		log.Debugf("action succeeded in %s", elapsed)

	case deadlineHit(execCtx, err):
		result.Error = NewActionTimeoutError(goal.ID, err)
		log.Warnf("action timed out after %s", timeout)

	case err != nil:
		actionErr := AsEngineError(err)
		if actionErr.GoalID == "" {
			actionErr.GoalID = goal.ID
		}
		actionErr.Message = RedactSecrets(actionErr.Message)
		result.Error = actionErr
		log.WithError(actionErr).Debug("action failed")

	default:
		// Tool returned no error but a non-zero exit code.
		result.Error = NewActionError(goal.ID, ErrCodeAction,
			"command exited non-zero", nil).WithDetail("exit_code", raw.ExitCode)
		log.Debugf("action exited with code %d", raw.ExitCode)
	}

	return result
}

// deadlineHit reports whether the error chain or context indicates the
// per-action deadline expired.
func deadlineHit(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// combineOutput joins stdout and stderr for the history record.
func combineOutput(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}
