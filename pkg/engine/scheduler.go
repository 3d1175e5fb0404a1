package engine

import (
	"sort"
)

// DependencyScheduler computes dependency-respecting execution groups. It
// reads goal statuses but never mutates them; status transitions are the
// orchestrator's job.
type DependencyScheduler struct{}

// NewDependencyScheduler creates a scheduler.
func NewDependencyScheduler() *DependencyScheduler {
	return &DependencyScheduler{}
}

// NextGroup returns the current frontier: every pending or retryable
// partial goal whose dependencies are all achieved. Goals already scheduled
// in this pass (ready or in_progress) are not returned again. Partial goals
// listed in exhausted have spent their recovery budgets and are not
// rescheduled. An empty group with unsettled goals remaining means
// scheduling is stuck; those goals should be blocked.
func (s *DependencyScheduler) NextGroup(graph *GoalGraph, exhausted map[string]bool) []*Goal {
	var group []*Goal
	for _, goal := range graph.Goals() {
		if goal.Status != GoalStatusPending && goal.Status != GoalStatusPartial {
			continue
		}
		if exhausted[goal.ID] {
			continue
		}
		if s.dependenciesAchieved(graph, goal) {
			group = append(group, goal)
		}
	}
	sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
	return group
}

// dependenciesAchieved reports whether every dependency reached achieved.
func (s *DependencyScheduler) dependenciesAchieved(graph *GoalGraph, goal *Goal) bool {
	for _, depID := range goal.DependencyIDs {
		dep := graph.Goal(depID)
		if dep == nil || dep.Status != GoalStatusAchieved {
			return false
		}
	}
	return true
}

// BlockedGoals returns the schedulable-no-more goals: unsettled goals with
// some dependency that reached a terminal non-achieved state, settled as
// partial, or became blocked itself, paired with the offending dependency
// IDs. A failed dependency blocks its dependents; it never silently
// unblocks them.
func (s *DependencyScheduler) BlockedGoals(graph *GoalGraph, exhausted map[string]bool) map[string][]string {
	blocked := make(map[string][]string)

	// Fixed point over transitive blockage.
	changed := true
	for changed {
		changed = false
		for _, goal := range graph.Goals() {
			if goal.Status.IsSettled() {
				continue
			}
			if goal.Status == GoalStatusPartial && exhausted[goal.ID] {
				continue
			}
			if _, done := blocked[goal.ID]; done {
				continue
			}
			var blockers []string
			for _, depID := range goal.DependencyIDs {
				dep := graph.Goal(depID)
				switch {
				case dep.Status.IsTerminal() && dep.Status != GoalStatusAchieved:
					blockers = append(blockers, depID)
				case dep.Status == GoalStatusBlocked:
					blockers = append(blockers, depID)
				case dep.Status == GoalStatusPartial && exhausted[depID]:
					// A partial dependency at end of budgets does not
					// unblock its dependents.
					blockers = append(blockers, depID)
				default:
					if _, isBlocked := blocked[depID]; isBlocked {
						blockers = append(blockers, depID)
					}
				}
			}
			if len(blockers) > 0 {
				sort.Strings(blockers)
				blocked[goal.ID] = blockers
				changed = true
			}
		}
	}

	return blocked
}

// Plan computes the full batch schedule assuming every goal succeeds: the
// topological levels of the graph. Used for plan preview; live scheduling
// recomputes the frontier after each batch instead.
func (s *DependencyScheduler) Plan(graph *GoalGraph) *ExecutionPlan {
	levels := graph.Levels()
	batches := make([][]string, 0, len(levels))
	for _, level := range levels {
		batches = append(batches, append([]string{}, level...))
	}
	return &ExecutionPlan{Batches: batches}
}
