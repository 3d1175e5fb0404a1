package engine

import (
	"reflect"
	"testing"
)

func TestNextGroupFrontier(t *testing.T) {
	rg := newTestGoal("rg", GoalTypeResourceGroup)
	vnet := newTestGoal("vnet", GoalTypeNetwork, "rg")
	storage := newTestGoal("storage", GoalTypeStorage, "rg")
	graph := mustGraph(rg, vnet, storage)
	s := NewDependencyScheduler()

	group := s.NextGroup(graph, nil)
	if len(group) != 1 || group[0].ID != "rg" {
		t.Fatalf("initial frontier = %v, want [rg]", groupIDs(group))
	}

	rg.Status = GoalStatusAchieved
	group = s.NextGroup(graph, nil)
	want := []string{"storage", "vnet"}
	if !reflect.DeepEqual(groupIDs(group), want) {
		t.Fatalf("frontier after rg = %v, want %v", groupIDs(group), want)
	}
}

func TestNextGroupSkipsActiveAndSettled(t *testing.T) {
	a := newTestGoal("a", GoalTypeResourceGroup)
	b := newTestGoal("b", GoalTypeNetwork)
	c := newTestGoal("c", GoalTypeStorage)
	a.Status = GoalStatusInProgress
	b.Status = GoalStatusAchieved
	graph := mustGraph(a, b, c)

	group := NewDependencyScheduler().NextGroup(graph, nil)
	if len(group) != 1 || group[0].ID != "c" {
		t.Fatalf("frontier = %v, want [c]", groupIDs(group))
	}
}

func TestNextGroupRetriesPartialUnlessExhausted(t *testing.T) {
	a := newTestGoal("a", GoalTypeResourceGroup)
	a.Status = GoalStatusPartial
	graph := mustGraph(a)
	s := NewDependencyScheduler()

	if group := s.NextGroup(graph, nil); len(group) != 1 {
		t.Fatalf("partial goal with budget should be schedulable, got %v", groupIDs(group))
	}
	if group := s.NextGroup(graph, map[string]bool{"a": true}); len(group) != 0 {
		t.Fatalf("exhausted partial goal must not be rescheduled, got %v", groupIDs(group))
	}
}

func TestBlockedGoalsTransitive(t *testing.T) {
	a := newTestGoal("a", GoalTypeResourceGroup)
	b := newTestGoal("b", GoalTypeNetwork, "a")
	c := newTestGoal("c", GoalTypeVM, "b")
	d := newTestGoal("d", GoalTypeStorage)
	a.Status = GoalStatusFailed
	graph := mustGraph(a, b, c, d)

	blocked := NewDependencyScheduler().BlockedGoals(graph, nil)
	if !reflect.DeepEqual(blocked["b"], []string{"a"}) {
		t.Errorf("b blocked by %v, want [a]", blocked["b"])
	}
	if !reflect.DeepEqual(blocked["c"], []string{"b"}) {
		t.Errorf("c blocked by %v, want [b]", blocked["c"])
	}
	if _, ok := blocked["d"]; ok {
		t.Error("independent goal d must not be blocked")
	}
}

func TestBlockedGoalsExhaustedPartialDependency(t *testing.T) {
	a := newTestGoal("a", GoalTypeResourceGroup)
	b := newTestGoal("b", GoalTypeNetwork, "a")
	a.Status = GoalStatusPartial
	graph := mustGraph(a, b)
	s := NewDependencyScheduler()

	// With budget left the partial dependency may still achieve.
	if blocked := s.BlockedGoals(graph, nil); len(blocked) != 0 {
		t.Fatalf("nothing should be blocked yet, got %v", blocked)
	}

	// At end of budget a partial dependency never unblocks dependents.
	blocked := s.BlockedGoals(graph, map[string]bool{"a": true})
	if !reflect.DeepEqual(blocked["b"], []string{"a"}) {
		t.Fatalf("b blocked by %v, want [a]", blocked["b"])
	}
}

func TestPlanMatchesLevels(t *testing.T) {
	a := newTestGoal("a", GoalTypeResourceGroup)
	b := newTestGoal("b", GoalTypeNetwork, "a")
	c := newTestGoal("c", GoalTypeStorage, "a")
	graph := mustGraph(a, b, c)

	plan := NewDependencyScheduler().Plan(graph)
	want := [][]string{{"a"}, {"b", "c"}}
	if !reflect.DeepEqual(plan.Batches, want) {
		t.Fatalf("plan batches = %v, want %v", plan.Batches, want)
	}
}

func groupIDs(group []*Goal) []string {
	ids := make([]string, 0, len(group))
	for _, g := range group {
		ids = append(ids, g.ID)
	}
	return ids
}
