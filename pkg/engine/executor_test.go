package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func testAction(goalID string) *ResolvedAction {
	return &ResolvedAction{
		Parameters: map[string]string{"name": goalID},
		Spec:       ActionSpec{GoalID: goalID, Command: "az", Args: []string{"group", "create"}},
	}
}

func TestExecuteSuccess(t *testing.T) {
	goal := newTestGoal("rg", GoalTypeResourceGroup)
	tool := newFakeTool()

	result := NewActionExecutor(time.Second).Execute(context.Background(), goal, testAction("rg"), tool)
	if !result.Success {
		t.Fatalf("expected success, got error %v", result.Error)
	}
	if result.ResourceID != "res-rg" {
		t.Errorf("resource ID = %q, want res-rg", result.ResourceID)
	}
	if result.ToolUsed != "fake" {
		t.Errorf("tool = %q, want fake", result.ToolUsed)
	}
}

func TestExecuteTimeoutClassifiesTransient(t *testing.T) {
	goal := newTestGoal("rg", GoalTypeResourceGroup)
	tool := newFakeTool()
	tool.script("rg", toolResponse{block: true})

	action := testAction("rg")
	action.Spec.Timeout = 20 * time.Millisecond

	result := NewActionExecutor(time.Second).Execute(context.Background(), goal, action, tool)
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error == nil || result.Error.Code != ErrCodeActionTimeout {
		t.Fatalf("error = %v, want %s", result.Error, ErrCodeActionTimeout)
	}
	if result.Error.Class != FailureClassTransient {
		t.Errorf("timeout class = %s, want transient", result.Error.Class)
	}
}

func TestExecuteRedactsOutput(t *testing.T) {
	goal := newTestGoal("st", GoalTypeStorage)
	tool := newFakeTool()
	tool.script("st", toolResponse{result: &RawResult{
		Stdout: `created with accountKey=AbC123xyz`,
	}})

	result := NewActionExecutor(time.Second).Execute(context.Background(), goal, testAction("st"), tool)
	if strings.Contains(result.RawOutput, "AbC123xyz") {
		t.Errorf("secret survived in stored output: %q", result.RawOutput)
	}
}

func TestExecuteRedactsErrorMessage(t *testing.T) {
	goal := newTestGoal("st", GoalTypeStorage)
	tool := newFakeTool()
	tool.script("st", toolResponse{
		result: &RawResult{ExitCode: 1},
		err: NewActionError("st", ToolCodeExecFailed,
			"auth failed with password=hunter2", nil),
	})

	result := NewActionExecutor(time.Second).Execute(context.Background(), goal, testAction("st"), tool)
	if result.Error == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(result.Error.Message, "hunter2") {
		t.Errorf("secret survived in error message: %q", result.Error.Message)
	}
}

func TestExecuteNonZeroExitWithoutError(t *testing.T) {
	goal := newTestGoal("rg", GoalTypeResourceGroup)
	tool := newFakeTool()
	tool.script("rg", toolResponse{result: &RawResult{ExitCode: 3, Stderr: "boom"}})

	result := NewActionExecutor(time.Second).Execute(context.Background(), goal, testAction("rg"), tool)
	if result.Success {
		t.Fatal("non-zero exit must not be success")
	}
	if result.Error == nil || result.Error.Code != ErrCodeAction {
		t.Fatalf("error = %v, want %s", result.Error, ErrCodeAction)
	}
}

func TestExecuteWrapsPlainErrors(t *testing.T) {
	goal := newTestGoal("rg", GoalTypeResourceGroup)
	tool := newFakeTool()
	tool.script("rg", toolResponse{result: &RawResult{ExitCode: 1}, err: errors.New("boom")})

	result := NewActionExecutor(time.Second).Execute(context.Background(), goal, testAction("rg"), tool)
	if result.Error == nil {
		t.Fatal("expected error")
	}
	if result.Error.GoalID != "rg" {
		t.Errorf("goal ID not filled in: %q", result.Error.GoalID)
	}
}

func TestExecuteCombinesOutput(t *testing.T) {
	goal := newTestGoal("rg", GoalTypeResourceGroup)
	tool := newFakeTool()
	tool.script("rg", toolResponse{result: &RawResult{Stdout: "out\n", Stderr: "err\n"}})

	result := NewActionExecutor(time.Second).Execute(context.Background(), goal, testAction("rg"), tool)
	if result.RawOutput != "out\nerr" {
		t.Errorf("combined output = %q", result.RawOutput)
	}
}
