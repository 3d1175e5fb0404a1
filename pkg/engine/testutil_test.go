package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeReasoner returns canned answers for each interface method.
type fakeReasoner struct {
	parseSpec    *GoalGraphSpec
	parseErr     error
	strategy     *StrategyHint
	strategyErr  error
	evaluation   *EvaluationResult
	evaluationErr error
	failure      *FailureHint
	failureErr   error
}

func (f *fakeReasoner) ParseGoals(context.Context, string) (*GoalGraphSpec, error) {
	return f.parseSpec, f.parseErr
}

func (f *fakeReasoner) SelectStrategy(context.Context, *Goal, map[string]map[string]string) (*StrategyHint, error) {
	return f.strategy, f.strategyErr
}

func (f *fakeReasoner) EvaluateGoal(context.Context, *Goal, *ActionResult) (*EvaluationResult, error) {
	return f.evaluation, f.evaluationErr
}

func (f *fakeReasoner) ClassifyFailure(context.Context, *Goal, *EngineError, []FailureRecord) (*FailureHint, error) {
	return f.failure, f.failureErr
}

// toolResponse scripts one attempt's outcome in fakeTool.
type toolResponse struct {
	result *RawResult
	err    error
	delay  time.Duration
	block  bool
}

// fakeTool answers attempts from per-goal response queues. Goals with no
// scripted responses succeed with a synthetic resource ID.
type fakeTool struct {
	mu        sync.Mutex
	responses map[string][]toolResponse
	calls     []ActionSpec
}

func newFakeTool() *fakeTool {
	return &fakeTool{responses: make(map[string][]toolResponse)}
}

func (f *fakeTool) script(goalID string, resp toolResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[goalID] = append(f.responses[goalID], resp)
}

func (f *fakeTool) Name() string { return "fake" }

func (f *fakeTool) Execute(ctx context.Context, spec ActionSpec) (*RawResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	var resp toolResponse
	queue := f.responses[spec.GoalID]
	if len(queue) > 0 {
		resp = queue[0]
		f.responses[spec.GoalID] = queue[1:]
	} else {
		resp = toolResponse{result: &RawResult{
			Stdout:     fmt.Sprintf(`{"id": "res-%s", "provisioningState": "Succeeded"}`, spec.GoalID),
			ResourceID: "res-" + spec.GoalID,
		}}
	}
	f.mu.Unlock()

	if resp.block {
		<-ctx.Done()
		return &RawResult{ExitCode: -1}, ctx.Err()
	}
	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-ctx.Done():
			return &RawResult{ExitCode: -1}, ctx.Err()
		}
	}
	return resp.result, resp.err
}

func (f *fakeTool) callCount(goalID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.GoalID == goalID {
			n++
		}
	}
	return n
}

// newTestGoal builds a pending goal with sensible defaults.
func newTestGoal(id string, goalType GoalType, deps ...string) *Goal {
	return &Goal{
		ID:            id,
		Type:          goalType,
		Name:          id,
		Parameters:    map[string]string{"name": id, "location": "eastus"},
		DependencyIDs: deps,
		Criteria: []Criterion{
			{Name: "created", Check: "exit_zero"},
			{Name: "has id", Check: "resource_id_present"},
		},
		Status: GoalStatusPending,
	}
}

// mustGraph builds a graph or fails the calling test via panic.
func mustGraph(goals ...*Goal) *GoalGraph {
	graph, err := NewGoalGraph(goals)
	if err != nil {
		panic(err)
	}
	return graph
}

// testConfig is DefaultConfig with millisecond backoff so retry tests run
// fast.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ActionTimeout = 2 * time.Second
	cfg.BackoffSchedule = []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 15 * time.Millisecond}
	return cfg
}
