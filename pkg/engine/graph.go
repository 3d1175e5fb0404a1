package engine

import (
	"fmt"
	"sort"
	"strings"
)

// GoalGraph is the DAG of all goals for one run. Acyclicity is checked once
// at construction; a cycle is a hard construction error, never a runtime
// retry case. The graph is the single piece of run-wide mutable state and
// is mutated only by the orchestrator.
type GoalGraph struct {
	// goals maps goal IDs to goals.
	goals map[string]*Goal

	// order preserves insertion order for deterministic iteration.
	order []string

	// dependents maps a goal ID to the IDs that depend on it.
	dependents map[string][]string

	// levels maps topological level to goal IDs at that level.
	levels [][]string
}

// NewGoalGraph builds and validates a goal graph. It verifies IDs are unique,
// every declared dependency exists, and the graph is acyclic, then computes
// topological levels for parallel execution.
func NewGoalGraph(goals []*Goal) (*GoalGraph, error) {
	g := &GoalGraph{
		goals:      make(map[string]*Goal, len(goals)),
		order:      make([]string, 0, len(goals)),
		dependents: make(map[string][]string),
	}

	for _, goal := range goals {
		if goal.ID == "" {
			return nil, NewValidationError("goal has empty ID", nil)
		}
		if _, exists := g.goals[goal.ID]; exists {
			return nil, NewValidationError(fmt.Sprintf("duplicate goal ID: %s", goal.ID), nil)
		}
		if goal.Status == "" {
			goal.Status = GoalStatusPending
		}
		g.goals[goal.ID] = goal
		g.order = append(g.order, goal.ID)
	}

	for _, goal := range g.ordered() {
		for _, depID := range goal.DependencyIDs {
			if _, exists := g.goals[depID]; !exists {
				return nil, NewValidationError(
					fmt.Sprintf("goal %s depends on unknown goal %s", goal.ID, depID), nil,
				)
			}
			g.dependents[depID] = append(g.dependents[depID], goal.ID)
		}
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		return nil, NewCyclicDependencyError(strings.Join(cycle, " -> "))
	}

	if err := g.computeLevels(); err != nil {
		return nil, err
	}

	return g, nil
}

// findCycle performs DFS over dependency edges and returns the first cycle
// found as an ID path, or nil.
func (g *GoalGraph) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var walk func(id string, path []string) []string
	walk = func(id string, path []string) []string {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, dep := range g.dependents[id] {
			if !visited[dep] {
				if cycle := walk(dep, path); cycle != nil {
					return cycle
				}
			} else if onStack[dep] {
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				return append(append([]string{}, path[start:]...), dep)
			}
		}

		onStack[id] = false
		return nil
	}

	for _, id := range g.order {
		if !visited[id] {
			if cycle := walk(id, nil); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// computeLevels assigns topological levels with Kahn's algorithm. Goals at
// the same level have no dependencies on each other.
func (g *GoalGraph) computeLevels() error {
	inDegree := make(map[string]int, len(g.goals))
	for id, goal := range g.goals {
		inDegree[id] = len(goal.DependencyIDs)
	}

	current := make([]string, 0)
	for _, id := range g.order {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}
	if len(current) == 0 && len(g.goals) > 0 {
		return NewInternalError("no root goals found after cycle check", nil)
	}

	processed := 0
	for len(current) > 0 {
		level := len(g.levels)
		sort.Strings(current)
		g.levels = append(g.levels, current)
		processed += len(current)

		next := make([]string, 0)
		for _, id := range current {
			g.goals[id].Level = level
			for _, dep := range g.dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if processed != len(g.goals) {
		return NewInternalError("failed to level all goals, possible cycle", nil)
	}
	return nil
}

// Goal returns the goal with the given ID, or nil.
func (g *GoalGraph) Goal(id string) *Goal {
	return g.goals[id]
}

// Len returns the number of goals in the graph.
func (g *GoalGraph) Len() int {
	return len(g.goals)
}

// ordered returns all goals in insertion order.
func (g *GoalGraph) ordered() []*Goal {
	goals := make([]*Goal, 0, len(g.order))
	for _, id := range g.order {
		goals = append(goals, g.goals[id])
	}
	return goals
}

// Goals returns all goals in insertion order.
func (g *GoalGraph) Goals() []*Goal {
	return g.ordered()
}

// Dependents returns the IDs of goals depending on the given goal.
func (g *GoalGraph) Dependents(id string) []string {
	return g.dependents[id]
}

// Depth returns the number of topological levels.
func (g *GoalGraph) Depth() int {
	return len(g.levels)
}

// Levels returns the topological levels as ordered goal ID groups.
func (g *GoalGraph) Levels() [][]string {
	return g.levels
}

// Unsettled returns goals that are neither terminal nor blocked.
func (g *GoalGraph) Unsettled() []*Goal {
	var out []*Goal
	for _, goal := range g.ordered() {
		if !goal.Status.IsSettled() {
			out = append(out, goal)
		}
	}
	return out
}

// Outputs collects the outputs of every achieved goal, keyed by goal ID.
func (g *GoalGraph) Outputs() map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, goal := range g.ordered() {
		if goal.Status == GoalStatusAchieved && len(goal.Outputs) > 0 {
			out[goal.ID] = goal.Outputs
		}
	}
	return out
}
