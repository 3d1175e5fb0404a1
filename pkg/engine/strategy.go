package engine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// outputRefPattern matches ${<goal-id>.<output-key>} parameter references.
var outputRefPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_.-]+)\.([A-Za-z0-9_-]+)\}`)

// StrategySelector resolves a ready goal's concrete parameters from prior
// goal outputs and maps its type to a delegated command. Dispatch on goal
// types is an exhaustive switch over the closed type set, so adding a type
// is a compile-visible change here.
type StrategySelector struct {
	reasoner Reasoner
}

// NewStrategySelector creates a selector. The reasoner is consulted only
// for goals that declare no parameters of their own; its proposal is
// validated before use.
func NewStrategySelector(reasoner Reasoner) *StrategySelector {
	return &StrategySelector{reasoner: reasoner}
}

// Resolve produces the action for a goal, expanding output references from
// priorOutputs. It returns a not-ready preflight result when a reference
// cannot be resolved yet; the goal is deferred one tick, not failed. The
// scheduler should already guarantee dependency completion, so an unready
// preflight is a defensive second check.
func (s *StrategySelector) Resolve(
	ctx context.Context,
	goal *Goal,
	priorOutputs map[string]map[string]string,
) (*ResolvedAction, *PreflightResult, error) {
	params := goal.Parameters
	if len(params) == 0 && s.reasoner != nil {
		hinted, err := s.hintedParameters(ctx, goal, priorOutputs)
		if err != nil {
			return nil, nil, err
		}
		params = hinted
	}

	resolved, missing := expandReferences(params, priorOutputs)
	if len(missing) > 0 {
		return nil, &PreflightResult{Ready: false, MissingRefs: missing}, nil
	}

	spec, err := s.buildSpec(goal, resolved)
	if err != nil {
		return nil, nil, err
	}

	return &ResolvedAction{Parameters: resolved, Spec: *spec}, &PreflightResult{Ready: true}, nil
}

// hintedParameters asks the reasoner for a parameter proposal and validates
// it as untrusted input.
func (s *StrategySelector) hintedParameters(
	ctx context.Context,
	goal *Goal,
	priorOutputs map[string]map[string]string,
) (map[string]string, error) {
	hint, err := s.reasoner.SelectStrategy(ctx, goal, priorOutputs)
	if err != nil {
		return nil, NewValidationError("reasoner strategy selection failed", err).WithGoal(goal.ID)
	}
	if hint == nil || hint.StrategyID == "" || len(hint.Parameters) == 0 {
		return nil, NewValidationError("reasoner returned an empty strategy", nil).WithGoal(goal.ID)
	}
	return hint.Parameters, nil
}

// expandReferences substitutes ${goal.key} references and reports the ones
// that do not resolve.
func expandReferences(
	params map[string]string,
	priorOutputs map[string]map[string]string,
) (map[string]string, []string) {
	resolved := make(map[string]string, len(params))
	var missing []string

	for name, value := range params {
		expanded := outputRefPattern.ReplaceAllStringFunc(value, func(ref string) string {
			m := outputRefPattern.FindStringSubmatch(ref)
			outputs, ok := priorOutputs[m[1]]
			if !ok {
				missing = append(missing, ref)
				return ref
			}
			v, ok := outputs[m[2]]
			if !ok {
				missing = append(missing, ref)
				return ref
			}
			return v
		})
		resolved[name] = expanded
	}

	sort.Strings(missing)
	return resolved, missing
}

// buildSpec maps the goal type to its delegated command. The switch is
// exhaustive over GoalType; the default arm is unreachable for parsed goals
// and guards against unvalidated construction.
func (s *StrategySelector) buildSpec(goal *Goal, params map[string]string) (*ActionSpec, error) {
	name := paramOr(params, "name", goal.Name)
	location := paramOr(params, "location", "eastus")

	var args []string
	switch goal.Type {
	case GoalTypeResourceGroup:
		args = []string{"group", "create", "--name", name, "--location", location, "--output", "json"}

	case GoalTypeNetwork:
		args = []string{
			"network", "vnet", "create",
			"--name", name,
			"--resource-group", paramOr(params, "resource_group", name+"-rg"),
			"--location", location,
			"--address-prefix", paramOr(params, "address_prefix", "10.0.0.0/16"),
			"--subnet-name", paramOr(params, "subnet", "default"),
			"--output", "json",
		}

	case GoalTypeVM:
		args = []string{
			"vm", "create",
			"--name", name,
			"--resource-group", paramOr(params, "resource_group", name+"-rg"),
			"--image", paramOr(params, "image", "Ubuntu2204"),
			"--size", paramOr(params, "size", "Standard_B2s"),
			"--location", location,
			"--output", "json",
		}

	case GoalTypeStorage:
		args = []string{
			"storage", "account", "create",
			"--name", strings.ToLower(strings.ReplaceAll(name, "-", "")),
			"--resource-group", paramOr(params, "resource_group", name+"-rg"),
			"--location", location,
			"--sku", paramOr(params, "sku", "Standard_LRS"),
			"--output", "json",
		}

	case GoalTypeDNSRecord:
		args = []string{
			"network", "dns", "record-set", "a", "add-record",
			"--zone-name", paramOr(params, "zone", ""),
			"--resource-group", paramOr(params, "resource_group", ""),
			"--record-set-name", name,
			"--ipv4-address", paramOr(params, "address", ""),
			"--output", "json",
		}

	case GoalTypeFirewallRule:
		args = []string{
			"network", "nsg", "rule", "create",
			"--name", name,
			"--nsg-name", paramOr(params, "nsg", ""),
			"--resource-group", paramOr(params, "resource_group", ""),
			"--priority", paramOr(params, "priority", "1000"),
			"--destination-port-ranges", paramOr(params, "port", "22"),
			"--access", paramOr(params, "access", "Allow"),
			"--output", "json",
		}

	case GoalTypeRepository:
		return &ActionSpec{
			GoalID:  goal.ID,
			Command: "gh",
			Args: []string{
				"repo", "create", name,
				"--" + paramOr(params, "visibility", "private"),
			},
		}, nil

	default:
		return nil, NewInternalError(
			fmt.Sprintf("no strategy for goal type %q", goal.Type), nil,
		).WithGoal(goal.ID)
	}

	return &ActionSpec{GoalID: goal.ID, Command: "az", Args: args}, nil
}

// paramOr returns the named parameter or a fallback.
func paramOr(params map[string]string, name, fallback string) string {
	if v, ok := params[name]; ok && v != "" {
		return v
	}
	return fallback
}
