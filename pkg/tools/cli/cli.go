// Package cli implements the local command-line action tool. It shells out
// to allowlisted provider CLIs, captures their output, and maps known
// provider errors to structured tool codes.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/azimuth-ai/azimuth/pkg/engine"
	"github.com/azimuth-ai/azimuth/pkg/telemetry"
)

// Tool executes actions through local provider CLIs.
type Tool struct {
	allowed map[string]bool
}

// New creates a CLI tool restricted to the given binaries.
func New(allowedBinaries []string) *Tool {
	allowed := make(map[string]bool, len(allowedBinaries))
	for _, bin := range allowedBinaries {
		allowed[bin] = true
	}
	return &Tool{allowed: allowed}
}

// Name implements engine.Tool.
func (t *Tool) Name() string {
	return "cli"
}

// Execute runs the command locally. The command must be on the allowlist;
// cancellation kills the process through the context.
func (t *Tool) Execute(ctx context.Context, spec engine.ActionSpec) (*engine.RawResult, error) {
	if !t.allowed[spec.Command] {
		return nil, engine.NewActionError(spec.GoalID, engine.ToolCodeInvalidConfig,
			fmt.Sprintf("command %q is not allowlisted", spec.Command), nil)
	}

	log := telemetry.FromContext(ctx).NewComponentLogger("tool.cli").WithGoalID(spec.GoalID)
	log.Debugf("executing %s with %d args", spec.Command, len(spec.Args))

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	result := &engine.RawResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}
	result.ResourceID = extractResourceID(result.Stdout)

	if runErr == nil {
		return result, nil
	}

	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.ExitCode = -1
		return result, engine.NewActionTimeoutError(spec.GoalID, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, classifyStderr(spec.GoalID, result.Stderr, runErr)
	}

	// The binary could not be started at all.
	return result, engine.NewActionError(spec.GoalID, engine.ToolCodeExecFailed,
		fmt.Sprintf("failed to start %s", spec.Command), runErr)
}

// classifyStderr maps provider CLI error text to structured tool codes so
// the recovery engine never has to sniff strings itself.
func classifyStderr(goalID, stderr string, cause error) *engine.EngineError {
	text := strings.ToLower(stderr)

	switch {
	case strings.Contains(text, "too many requests"), strings.Contains(text, "429"),
		strings.Contains(text, "throttl"):
		return withClass(engine.NewActionError(goalID, engine.ToolCodeThrottled,
			"provider throttled the request", cause), engine.FailureClassTransient)

	case strings.Contains(text, "timed out"), strings.Contains(text, "gateway timeout"):
		return withClass(engine.NewActionError(goalID, engine.ToolCodeTimeout,
			"provider request timed out", cause), engine.FailureClassTransient)

	case strings.Contains(text, "already exists"), strings.Contains(text, "already taken"),
		strings.Contains(text, "name not available"), strings.Contains(text, "nameunavailable"):
		return withClass(engine.NewActionError(goalID, engine.ToolCodeNameTaken,
			"resource name is taken", cause), engine.FailureClassRecoverable)

	case strings.Contains(text, "quota"), strings.Contains(text, "exceeding approved"):
		return withClass(engine.NewActionError(goalID, engine.ToolCodeQuotaExceeded,
			"quota exceeded in the requested location", cause), engine.FailureClassRecoverable)

	case strings.Contains(text, "authorizationfailed"), strings.Contains(text, "permission denied"),
		strings.Contains(text, "forbidden"), strings.Contains(text, "access denied"),
		strings.Contains(text, "please run 'az login'"):
		return withClass(engine.NewActionError(goalID, engine.ToolCodeAuthDenied,
			"provider rejected the credentials", cause), engine.FailureClassPermission)

	case strings.Contains(text, "invalid"), strings.Contains(text, "bad request"),
		strings.Contains(text, "unrecognized arguments"):
		return withClass(engine.NewActionError(goalID, engine.ToolCodeInvalidConfig,
			"provider rejected the parameters", cause), engine.FailureClassConfiguration)

	case strings.Contains(text, "not found"), strings.Contains(text, "could not be found"):
		return withClass(engine.NewActionError(goalID, engine.ToolCodeNotFound,
			"referenced resource not found", cause), engine.FailureClassConfiguration)

	default:
		return engine.NewActionError(goalID, engine.ToolCodeExecFailed,
			"command failed", cause)
	}
}

func withClass(err *engine.EngineError, class engine.FailureClass) *engine.EngineError {
	err.Class = class
	return err
}

// extractResourceID pulls the resource identifier out of JSON CLI output.
// Provider CLIs report it as "id" at the top level or under "newVM" style
// wrappers; only the top-level key is trusted.
func extractResourceID(stdout string) string {
	trimmed := strings.TrimSpace(stdout)
	if !strings.HasPrefix(trimmed, "{") {
		return ""
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return ""
	}
	if id, ok := decoded["id"].(string); ok {
		return id
	}
	return ""
}
