package engine

import (
	"sort"
	"sync"
)

// ConstraintOutcome records how a tried parameter value turned out.
type ConstraintOutcome string

const (
	// OutcomeFailed marks a value that caused a failure (e.g. a taken name).
	OutcomeFailed ConstraintOutcome = "failed"

	// OutcomeSucceeded marks a value that worked.
	OutcomeSucceeded ConstraintOutcome = "succeeded"
)

// ConstraintObservation is one tried value with its outcome.
type ConstraintObservation struct {
	// Value is the parameter value that was tried.
	Value string `json:"value"`

	// Outcome is how the attempt with this value ended.
	Outcome ConstraintOutcome `json:"outcome"`
}

// LearnedConstraintsCache is the run-scoped, append-only record of tried
// parameter values per (goal type, parameter name). It prevents repeating
// known-failed values such as a taken resource name. Writes go through the
// orchestrator's serialized path only; concurrent strategy and recovery
// calls read it freely.
type LearnedConstraintsCache struct {
	mu      sync.RWMutex
	entries map[string][]ConstraintObservation
}

// NewLearnedConstraintsCache creates an empty cache for one run.
func NewLearnedConstraintsCache() *LearnedConstraintsCache {
	return &LearnedConstraintsCache{
		entries: make(map[string][]ConstraintObservation),
	}
}

// Record appends an observation. Append-only: existing observations are
// never rewritten, so the tried order is preserved for reporting.
func (c *LearnedConstraintsCache) Record(goalType GoalType, param, value string, outcome ConstraintOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := constraintKey(goalType, param)
	c.entries[key] = append(c.entries[key], ConstraintObservation{Value: value, Outcome: outcome})
}

// HasFailed reports whether the value is already known to fail for the
// given goal type and parameter.
func (c *LearnedConstraintsCache) HasFailed(goalType GoalType, param, value string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, obs := range c.entries[constraintKey(goalType, param)] {
		if obs.Value == value && obs.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

// Tried returns the observations for a (goal type, parameter) pair in the
// order they were recorded.
func (c *LearnedConstraintsCache) Tried(goalType GoalType, param string) []ConstraintObservation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obs := c.entries[constraintKey(goalType, param)]
	out := make([]ConstraintObservation, len(obs))
	copy(out, obs)
	return out
}

// FailedValues returns the known-failed values for a (goal type, parameter)
// pair, sorted for deterministic reporting.
func (c *LearnedConstraintsCache) FailedValues(goalType GoalType, param string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, obs := range c.entries[constraintKey(goalType, param)] {
		if obs.Outcome == OutcomeFailed {
			out = append(out, obs.Value)
		}
	}
	sort.Strings(out)
	return out
}

func constraintKey(goalType GoalType, param string) string {
	return string(goalType) + ":" + param
}
