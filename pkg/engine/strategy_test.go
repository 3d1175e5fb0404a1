package engine

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestResolveExpandsReferences(t *testing.T) {
	goal := newTestGoal("vm", GoalTypeVM)
	goal.Parameters = map[string]string{
		"name":           "web-vm",
		"resource_group": "${rg.name}",
		"location":       "${rg.location}",
	}
	outputs := map[string]map[string]string{
		"rg": {"name": "web-rg", "location": "westus2"},
	}

	action, preflight, err := NewStrategySelector(nil).Resolve(context.Background(), goal, outputs)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !preflight.Ready {
		t.Fatalf("expected ready preflight, missing %v", preflight.MissingRefs)
	}
	if action.Parameters["resource_group"] != "web-rg" {
		t.Errorf("resource_group = %q, want web-rg", action.Parameters["resource_group"])
	}
	if action.Parameters["location"] != "westus2" {
		t.Errorf("location = %q, want westus2", action.Parameters["location"])
	}
}

func TestResolveMissingReference(t *testing.T) {
	goal := newTestGoal("vm", GoalTypeVM)
	goal.Parameters = map[string]string{"resource_group": "${rg.name}"}

	action, preflight, err := NewStrategySelector(nil).Resolve(context.Background(), goal, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if action != nil {
		t.Error("no action should be produced for an unready goal")
	}
	if preflight.Ready {
		t.Fatal("expected not-ready preflight")
	}
	if !reflect.DeepEqual(preflight.MissingRefs, []string{"${rg.name}"}) {
		t.Errorf("missing refs = %v", preflight.MissingRefs)
	}
}

func TestResolveBuildsSpecPerType(t *testing.T) {
	tests := []struct {
		goalType    GoalType
		wantCommand string
		wantArg     string
	}{
		{GoalTypeResourceGroup, "az", "group"},
		{GoalTypeNetwork, "az", "vnet"},
		{GoalTypeVM, "az", "vm"},
		{GoalTypeStorage, "az", "storage"},
		{GoalTypeDNSRecord, "az", "dns"},
		{GoalTypeFirewallRule, "az", "nsg"},
		{GoalTypeRepository, "gh", "repo"},
	}

	for _, tt := range tests {
		t.Run(string(tt.goalType), func(t *testing.T) {
			goal := newTestGoal("g", tt.goalType)
			action, _, err := NewStrategySelector(nil).Resolve(context.Background(), goal, nil)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if action.Spec.Command != tt.wantCommand {
				t.Errorf("command = %q, want %q", action.Spec.Command, tt.wantCommand)
			}
			joined := strings.Join(action.Spec.Args, " ")
			if !strings.Contains(joined, tt.wantArg) {
				t.Errorf("args %q missing %q", joined, tt.wantArg)
			}
		})
	}
}

func TestResolveConsultsReasonerWithoutParameters(t *testing.T) {
	goal := newTestGoal("rg", GoalTypeResourceGroup)
	goal.Parameters = nil
	reasoner := &fakeReasoner{strategy: &StrategyHint{
		StrategyID: "default",
		Parameters: map[string]string{"name": "hinted-rg", "location": "westeurope"},
	}}

	action, preflight, err := NewStrategySelector(reasoner).Resolve(context.Background(), goal, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !preflight.Ready {
		t.Fatal("expected ready preflight")
	}
	if action.Parameters["name"] != "hinted-rg" {
		t.Errorf("name = %q, want hinted-rg", action.Parameters["name"])
	}
}

func TestResolveRejectsEmptyStrategyHint(t *testing.T) {
	goal := newTestGoal("rg", GoalTypeResourceGroup)
	goal.Parameters = nil
	reasoner := &fakeReasoner{strategy: &StrategyHint{}}

	_, _, err := NewStrategySelector(reasoner).Resolve(context.Background(), goal, nil)
	if ErrorCode(err) != ErrCodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveStorageNameNormalization(t *testing.T) {
	goal := newTestGoal("st", GoalTypeStorage)
	goal.Parameters = map[string]string{"name": "Web-Data-01"}

	action, _, err := NewStrategySelector(nil).Resolve(context.Background(), goal, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	joined := strings.Join(action.Spec.Args, " ")
	if !strings.Contains(joined, "webdata01") {
		t.Errorf("storage account name not normalized: %q", joined)
	}
}
