package engine

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/azimuth-ai/azimuth/pkg/telemetry"
)

// GoalParser turns a request plus a reasoner response into a validated
// acyclic goal graph. Parse failures abort the run before any execution,
// since no valid plan exists.
type GoalParser struct {
	reasoner Reasoner
	validate *validator.Validate
}

// NewGoalParser creates a goal parser backed by the given reasoner.
func NewGoalParser(reasoner Reasoner) *GoalParser {
	return &GoalParser{
		reasoner: reasoner,
		validate: validator.New(),
	}
}

// Parse decomposes the request into a goal graph. It validates the
// reasoner's candidate set against the fixed schema, rejects unknown goal
// types and dangling dependencies, and fails on a cycle.
func (p *GoalParser) Parse(ctx context.Context, requestText string) (*GoalGraph, error) {
	log := telemetry.FromContext(ctx).NewComponentLogger("parser")

	if requestText == "" {
		return nil, NewParseError("empty request", nil)
	}

	spec, err := p.reasoner.ParseGoals(ctx, requestText)
	if err != nil {
		return nil, NewParseError("reasoner failed to decompose request", err)
	}
	if spec == nil || len(spec.Goals) == 0 {
		return nil, NewParseError("reasoner returned no goals", nil)
	}

	if err := p.validate.Struct(spec); err != nil {
		return nil, NewParseError("reasoner output failed schema validation", err)
	}

	goals := make([]*Goal, 0, len(spec.Goals))
	for _, gs := range spec.Goals {
		goal, err := p.buildGoal(gs)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}

	graph, err := NewGoalGraph(goals)
	if err != nil {
		if IsCyclicDependencyError(err) {
			return nil, err
		}
		return nil, NewParseError("reasoner output produced an invalid graph", err)
	}

	log.Debugf("parsed %d goals across %d levels", graph.Len(), graph.Depth())
	return graph, nil
}

// buildGoal converts one validated goal spec into a pending goal.
func (p *GoalParser) buildGoal(gs GoalSpec) (*Goal, error) {
	goalType := GoalType(gs.Type)
	if err := goalType.Validate(); err != nil {
		return nil, NewParseError(fmt.Sprintf("goal %s has unknown type %q", gs.ID, gs.Type), err)
	}

	criteria := make([]Criterion, 0, len(gs.Criteria))
	for _, cs := range gs.Criteria {
		criteria = append(criteria, Criterion{Name: cs.Name, Check: cs.Check, Hard: cs.Hard})
	}

	params := make(map[string]string, len(gs.Parameters))
	for k, v := range gs.Parameters {
		params[k] = v
	}

	return &Goal{
		ID:            gs.ID,
		Type:          goalType,
		Name:          gs.Name,
		Parameters:    params,
		DependencyIDs: append([]string{}, gs.DependsOn...),
		Criteria:      criteria,
		Status:        GoalStatusPending,
	}, nil
}
