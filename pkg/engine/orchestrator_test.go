package engine

import (
	"context"
	"testing"
	"time"
)

func runOrchestrator(t *testing.T, tool Tool, goals ...*Goal) (*ExecutionOrchestrator, *FinalReport, *GoalGraph) {
	t.Helper()
	graph, err := NewGoalGraph(goals)
	if err != nil {
		t.Fatalf("NewGoalGraph failed: %v", err)
	}
	orch := NewExecutionOrchestrator(testConfig(), nil, tool)
	report := orch.Run(context.Background(), "test request", graph)
	return orch, report, graph
}

func TestRunAllAchieved(t *testing.T) {
	rg := newTestGoal("rg", GoalTypeResourceGroup)
	vnet := newTestGoal("vnet", GoalTypeNetwork, "rg")
	storage := newTestGoal("storage", GoalTypeStorage, "rg")
	vm := newTestGoal("vm", GoalTypeVM, "vnet", "storage")
	vm.Parameters["resource_group"] = "${rg.name}"

	_, report, graph := runOrchestrator(t, newFakeTool(), rg, vnet, storage, vm)

	if report.Summary.Achieved != 4 {
		t.Fatalf("achieved = %d, want 4\n%s", report.Summary.Achieved, report.Render())
	}
	for _, goal := range graph.Goals() {
		if goal.Status != GoalStatusAchieved {
			t.Errorf("goal %s = %s, want achieved", goal.ID, goal.Status)
		}
		if goal.Attempts != 1 {
			t.Errorf("goal %s took %d attempts, want 1", goal.ID, goal.Attempts)
		}
	}
	if vm.Outputs["resource_group"] != "rg" {
		t.Errorf("reference not expanded into vm outputs: %v", vm.Outputs)
	}
}

func TestRunDependencyOrdering(t *testing.T) {
	rg := newTestGoal("rg", GoalTypeResourceGroup)
	vnet := newTestGoal("vnet", GoalTypeNetwork, "rg")
	tool := newFakeTool()

	runOrchestrator(t, tool, rg, vnet)

	tool.mu.Lock()
	defer tool.mu.Unlock()
	if len(tool.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(tool.calls))
	}
	if tool.calls[0].GoalID != "rg" || tool.calls[1].GoalID != "vnet" {
		t.Errorf("execution order = [%s %s], want [rg vnet]",
			tool.calls[0].GoalID, tool.calls[1].GoalID)
	}
}

func TestRunIndependentGoalsSurvivePermissionFailure(t *testing.T) {
	goals := []*Goal{
		newTestGoal("a", GoalTypeResourceGroup),
		newTestGoal("b", GoalTypeNetwork),
		newTestGoal("c", GoalTypeStorage),
		newTestGoal("d", GoalTypeFirewallRule),
		newTestGoal("e", GoalTypeRepository),
	}
	tool := newFakeTool()
	tool.script("c", toolResponse{
		result: &RawResult{ExitCode: 1, Stderr: "AuthorizationFailed"},
		err:    NewActionError("c", ToolCodeAuthDenied, "authorization failed", nil),
	})

	_, report, graph := runOrchestrator(t, tool, goals...)

	if report.Summary.Achieved != 4 {
		t.Errorf("achieved = %d, want 4", report.Summary.Achieved)
	}
	if report.Summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", report.Summary.Failed)
	}
	if report.Summary.Blocked != 0 {
		t.Errorf("blocked = %d, want 0", report.Summary.Blocked)
	}
	if graph.Goal("c").Attempts != 1 {
		t.Errorf("permission failure retried: %d attempts", graph.Goal("c").Attempts)
	}
}

func TestRunFailureBlocksDependentsTransitively(t *testing.T) {
	a := newTestGoal("a", GoalTypeResourceGroup)
	b := newTestGoal("b", GoalTypeNetwork, "a")
	c := newTestGoal("c", GoalTypeVM, "b")
	tool := newFakeTool()
	tool.script("a", toolResponse{
		result: &RawResult{ExitCode: 1},
		err:    NewActionError("a", ToolCodeAuthDenied, "authorization failed", nil),
	})

	_, report, graph := runOrchestrator(t, tool, a, b, c)

	if report.Summary.Failed != 1 || report.Summary.Blocked != 2 {
		t.Fatalf("failed=%d blocked=%d, want 1 and 2", report.Summary.Failed, report.Summary.Blocked)
	}
	if got := graph.Goal("b").BlockedBy; len(got) != 1 || got[0] != "a" {
		t.Errorf("b blocked by %v, want [a]", got)
	}
	if tool.callCount("b") != 0 || tool.callCount("c") != 0 {
		t.Error("blocked goals must never execute")
	}
}

func TestRunTransientRetriesThenSucceeds(t *testing.T) {
	rg := newTestGoal("rg", GoalTypeResourceGroup)
	tool := newFakeTool()
	throttled := toolResponse{
		result: &RawResult{ExitCode: 1, Stderr: "too many requests"},
		err:    NewActionError("rg", ToolCodeThrottled, "throttled", nil),
	}
	tool.script("rg", throttled)
	tool.script("rg", throttled)

	orch, report, graph := runOrchestrator(t, tool, rg)

	if report.Summary.Achieved != 1 {
		t.Fatalf("achieved = %d, want 1\n%s", report.Summary.Achieved, report.Render())
	}
	if graph.Goal("rg").Attempts != 3 {
		t.Errorf("attempts = %d, want 3", graph.Goal("rg").Attempts)
	}

	retries := 0
	for _, e := range orch.History().Entries() {
		if e.Kind == HistoryKindRecovery && e.Decision == DecisionRetryBackoff {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("retry decisions = %d, want 2", retries)
	}
}

func TestRunTransientBudgetExhausted(t *testing.T) {
	rg := newTestGoal("rg", GoalTypeResourceGroup)
	tool := newFakeTool()
	throttled := toolResponse{
		result: &RawResult{ExitCode: 1},
		err:    NewActionError("rg", ToolCodeThrottled, "throttled", nil),
	}
	for i := 0; i < 4; i++ {
		tool.script("rg", throttled)
	}

	_, report, graph := runOrchestrator(t, tool, rg)

	if report.Summary.Failed != 1 {
		t.Fatalf("failed = %d, want 1", report.Summary.Failed)
	}
	// First attempt plus three budgeted retries.
	if graph.Goal("rg").Attempts != 4 {
		t.Errorf("attempts = %d, want 4", graph.Goal("rg").Attempts)
	}
}

func TestRunNameConflictLearnsConstraint(t *testing.T) {
	st := newTestGoal("st", GoalTypeStorage)
	st.Parameters["name"] = "webdata"
	tool := newFakeTool()
	tool.script("st", toolResponse{
		result: &RawResult{ExitCode: 1, Stderr: "StorageAccountAlreadyTaken"},
		err:    NewActionError("st", ToolCodeNameTaken, "name is already taken", nil),
	})

	orch, report, graph := runOrchestrator(t, tool, st)

	if report.Summary.Achieved != 1 {
		t.Fatalf("achieved = %d, want 1\n%s", report.Summary.Achieved, report.Render())
	}
	if got := graph.Goal("st").Parameters["name"]; got != "webdata2" {
		t.Errorf("final name = %q, want webdata2", got)
	}
	if !orch.Constraints().HasFailed(GoalTypeStorage, "name", "webdata") {
		t.Error("failed name missing from constraints cache")
	}

	// The failed value is recorded before the adjusted attempt runs.
	var recoverySeq, secondAttemptSeq int
	for _, e := range orch.History().Entries() {
		if e.Kind == HistoryKindRecovery && e.Decision == DecisionAdjustParameters {
			recoverySeq = e.Seq
		}
		if e.Kind == HistoryKindAttempt && e.Attempt == 2 {
			secondAttemptSeq = e.Seq
		}
	}
	if recoverySeq == 0 || secondAttemptSeq == 0 || recoverySeq >= secondAttemptSeq {
		t.Errorf("recovery seq %d should precede second attempt seq %d", recoverySeq, secondAttemptSeq)
	}
}

func TestRunPartialGoalBlocksDependents(t *testing.T) {
	a := newTestGoal("a", GoalTypeResourceGroup)
	a.Criteria = []Criterion{
		{Name: "created", Check: "exit_zero"},
		{Name: "replicated", Check: "manual_check_a"},
		{Name: "tagged", Check: "manual_check_b"},
	}
	b := newTestGoal("b", GoalTypeNetwork, "a")

	_, report, graph := runOrchestrator(t, newFakeTool(), a, b)

	if graph.Goal("a").Status != GoalStatusPartial {
		t.Fatalf("a = %s, want partial", graph.Goal("a").Status)
	}
	if graph.Goal("b").Status != GoalStatusBlocked {
		t.Fatalf("b = %s, want blocked", graph.Goal("b").Status)
	}
	if report.Summary.Partial != 1 || report.Summary.Blocked != 1 {
		t.Errorf("summary = %+v", report.Summary)
	}
}

func TestRunCancellationAbortsGoals(t *testing.T) {
	a := newTestGoal("a", GoalTypeResourceGroup)
	b := newTestGoal("b", GoalTypeNetwork, "a")
	tool := newFakeTool()
	tool.script("a", toolResponse{block: true})

	graph := mustGraph(a, b)
	orch := NewExecutionOrchestrator(testConfig(), nil, tool)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	report := orch.Run(ctx, "test request", graph)

	if report.Summary.Aborted != 2 {
		t.Fatalf("aborted = %d, want 2\n%s", report.Summary.Aborted, report.Render())
	}
	if report.Summary.Achieved != 0 {
		t.Errorf("achieved = %d, want 0", report.Summary.Achieved)
	}
}

func TestRunRetrySurvivesBusyWorkers(t *testing.T) {
	a := newTestGoal("a", GoalTypeResourceGroup)
	b := newTestGoal("b", GoalTypeStorage)
	tool := newFakeTool()
	tool.script("a", toolResponse{
		result: &RawResult{ExitCode: 1, Stderr: "too many requests"},
		err:    NewActionError("a", ToolCodeThrottled, "throttled", nil),
	})
	tool.script("b", toolResponse{
		delay: 50 * time.Millisecond,
		result: &RawResult{
			Stdout:     `{"id": "res-b"}`,
			ResourceID: "res-b",
		},
	})

	// One worker: b occupies it while a's retry backoff expires, so the
	// retry must wait for the slot instead of being dropped.
	cfg := testConfig()
	cfg.MaxConcurrency = 1

	graph := mustGraph(a, b)
	orch := NewExecutionOrchestrator(cfg, nil, tool)
	report := orch.Run(context.Background(), "test request", graph)

	if report.Summary.Achieved != 2 {
		t.Fatalf("achieved = %d, want 2\n%s", report.Summary.Achieved, report.Render())
	}
	if a.Attempts != 2 {
		t.Errorf("a attempts = %d, want 2", a.Attempts)
	}
	if tool.callCount("a") != 2 {
		t.Errorf("a executed %d times, want 2", tool.callCount("a"))
	}
}

func TestRunCleanExecutionWithFailedCriterion(t *testing.T) {
	rg := newTestGoal("rg", GoalTypeResourceGroup)
	rg.Criteria = []Criterion{
		{Name: "replicated", Check: "output_contains:replication complete"},
	}

	_, report, graph := runOrchestrator(t, newFakeTool(), rg)

	if report.Summary.Failed != 1 {
		t.Fatalf("failed = %d, want 1\n%s", report.Summary.Failed, report.Render())
	}
	goal := graph.Goal("rg")
	if goal.Attempts != 1 {
		t.Errorf("conflicting signals retried: %d attempts", goal.Attempts)
	}
	if ErrorCode(goal.LastError) != ErrCodeEvaluationAmbiguous {
		t.Errorf("last error = %v, want %s", goal.LastError, ErrCodeEvaluationAmbiguous)
	}
}

func TestRunBlockedByOmitsAchievedDependencies(t *testing.T) {
	done := newTestGoal("done", GoalTypeResourceGroup)
	done.Status = GoalStatusAchieved
	stuck := newTestGoal("stuck", GoalTypeNetwork)
	stuck.Status = GoalStatusInProgress
	app := newTestGoal("app", GoalTypeVM, "done", "stuck")

	graph := mustGraph(done, stuck, app)
	orch := NewExecutionOrchestrator(testConfig(), nil, newFakeTool())
	orch.settleRemaining(graph, map[string]bool{}, false)

	if app.Status != GoalStatusBlocked {
		t.Fatalf("app = %s, want blocked", app.Status)
	}
	if len(app.BlockedBy) != 1 || app.BlockedBy[0] != "stuck" {
		t.Errorf("app blocked by %v, want [stuck]", app.BlockedBy)
	}
}

func TestRunParallelismBounded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrency = 2

	goals := make([]*Goal, 0, 6)
	tool := newFakeTool()
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		goals = append(goals, newTestGoal(id, GoalTypeResourceGroup))
		tool.script(id, toolResponse{
			delay: 10 * time.Millisecond,
			result: &RawResult{
				Stdout:     `{"id": "res"}`,
				ResourceID: "res",
			},
		})
	}

	graph := mustGraph(goals...)
	orch := NewExecutionOrchestrator(cfg, nil, tool)
	report := orch.Run(context.Background(), "test request", graph)

	if report.Summary.Achieved != 6 {
		t.Fatalf("achieved = %d, want 6", report.Summary.Achieved)
	}
}

func TestRunEvaluationEntriesInHistory(t *testing.T) {
	rg := newTestGoal("rg", GoalTypeResourceGroup)
	orch, _, _ := runOrchestrator(t, newFakeTool(), rg)

	var kinds []HistoryEntryKind
	for _, e := range orch.History().ForGoal("rg") {
		kinds = append(kinds, e.Kind)
	}
	want := []HistoryEntryKind{HistoryKindAttempt, HistoryKindEvaluation, HistoryKindStatus}
	if len(kinds) != len(want) {
		t.Fatalf("history kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("history kinds = %v, want %v", kinds, want)
		}
	}
}
