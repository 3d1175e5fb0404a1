package engine

import (
	"encoding/json"
	"fmt"
)

// GoalStatus represents the lifecycle status of a goal.
type GoalStatus string

const (
	// GoalStatusPending indicates the goal has not been scheduled yet.
	GoalStatusPending GoalStatus = "pending"

	// GoalStatusReady indicates every dependency is achieved and the goal
	// is part of the current execution group.
	GoalStatusReady GoalStatus = "ready"

	// GoalStatusInProgress indicates the goal is currently executing.
	GoalStatusInProgress GoalStatus = "in_progress"

	// GoalStatusAchieved indicates the goal completed with its success
	// criteria verified. Terminal and sticky.
	GoalStatusAchieved GoalStatus = "achieved"

	// GoalStatusPartial indicates some criteria were met but verification
	// was incomplete. A partial goal may re-enter in_progress on retry.
	GoalStatusPartial GoalStatus = "partial"

	// GoalStatusFailed indicates the goal failed after recovery was
	// exhausted. Terminal and sticky.
	GoalStatusFailed GoalStatus = "failed"

	// GoalStatusBlocked indicates a dependency failed so the goal never
	// got a chance to run.
	GoalStatusBlocked GoalStatus = "blocked"

	// GoalStatusAborted indicates the goal was abandoned by cancellation
	// or the global iteration cap. Terminal and sticky.
	GoalStatusAborted GoalStatus = "aborted"
)

// IsTerminal returns true if the status is final and sticky. A partial or
// blocked goal is settled for the run but is not sticky-terminal.
func (s GoalStatus) IsTerminal() bool {
	return s == GoalStatusAchieved || s == GoalStatusFailed || s == GoalStatusAborted
}

// IsSettled returns true if the goal will not be scheduled again this run.
func (s GoalStatus) IsSettled() bool {
	return s.IsTerminal() || s == GoalStatusBlocked
}

// IsActive returns true if the goal is scheduled or executing.
func (s GoalStatus) IsActive() bool {
	return s == GoalStatusReady || s == GoalStatusInProgress
}

// Validate checks if the goal status is valid.
func (s GoalStatus) Validate() error {
	switch s {
	case GoalStatusPending, GoalStatusReady, GoalStatusInProgress,
		GoalStatusAchieved, GoalStatusPartial, GoalStatusFailed,
		GoalStatusBlocked, GoalStatusAborted:
		return nil
	default:
		return fmt.Errorf("invalid goal status: %s", s)
	}
}

// GoalType is the closed set of goal types the engine can execute.
// Strategy dispatch on goal types is exhaustive; an unknown type is
// rejected at parse time, never discovered mid-run.
type GoalType string

const (
	// GoalTypeResourceGroup provisions a resource group / project container.
	GoalTypeResourceGroup GoalType = "resource_group"

	// GoalTypeNetwork provisions a virtual network and subnet.
	GoalTypeNetwork GoalType = "network"

	// GoalTypeVM provisions a virtual machine.
	GoalTypeVM GoalType = "vm"

	// GoalTypeStorage provisions a storage account.
	GoalTypeStorage GoalType = "storage"

	// GoalTypeDNSRecord creates or updates a DNS record.
	GoalTypeDNSRecord GoalType = "dns_record"

	// GoalTypeFirewallRule opens or restricts a network security rule.
	GoalTypeFirewallRule GoalType = "firewall_rule"

	// GoalTypeRepository prepares a source repository for the workload.
	GoalTypeRepository GoalType = "repository"
)

// Validate checks if the goal type is one of the known types.
func (t GoalType) Validate() error {
	switch t {
	case GoalTypeResourceGroup, GoalTypeNetwork, GoalTypeVM, GoalTypeStorage,
		GoalTypeDNSRecord, GoalTypeFirewallRule, GoalTypeRepository:
		return nil
	default:
		return fmt.Errorf("invalid goal type: %s", t)
	}
}

// FailureClass classifies an execution failure for recovery logic.
type FailureClass string

const (
	// FailureClassTransient indicates timeouts and throttling; safe to
	// retry with backoff.
	FailureClassTransient FailureClass = "transient"

	// FailureClassRecoverable indicates name conflicts and similar state
	// collisions that a parameter adjustment can route around.
	FailureClassRecoverable FailureClass = "recoverable"

	// FailureClassPermission indicates an authorization failure that only
	// the user can resolve. Never retried.
	FailureClassPermission FailureClass = "permission"

	// FailureClassConfiguration indicates invalid input that gets exactly
	// one alternative-parameter attempt.
	FailureClassConfiguration FailureClass = "configuration"

	// FailureClassUnrecoverable indicates a failure with no known recovery.
	FailureClassUnrecoverable FailureClass = "unrecoverable"
)

// Validate checks if the failure class is valid.
func (c FailureClass) Validate() error {
	switch c {
	case FailureClassTransient, FailureClassRecoverable, FailureClassPermission,
		FailureClassConfiguration, FailureClassUnrecoverable:
		return nil
	default:
		return fmt.Errorf("invalid failure class: %s", c)
	}
}

// RecoveryDecision is the action the recovery engine takes for a failure.
type RecoveryDecision string

const (
	// DecisionRetryBackoff retries the same parameters after a delay.
	DecisionRetryBackoff RecoveryDecision = "retry_backoff"

	// DecisionAdjustParameters retries with a mutated parameter set.
	DecisionAdjustParameters RecoveryDecision = "adjust_parameters"

	// DecisionAlternativeApproach retries with a strategy-level alternative
	// (different region or size rather than a name variant).
	DecisionAlternativeApproach RecoveryDecision = "alternative_approach"

	// DecisionAbort gives up on this goal. Its dependents become blocked.
	DecisionAbort RecoveryDecision = "abort"
)

// Validate checks if the recovery decision is valid.
func (d RecoveryDecision) Validate() error {
	switch d {
	case DecisionRetryBackoff, DecisionAdjustParameters,
		DecisionAlternativeApproach, DecisionAbort:
		return nil
	default:
		return fmt.Errorf("invalid recovery decision: %s", d)
	}
}

// Discrete confidence scale. Evaluation assigns exactly one of these values
// based on how many success criteria were verified programmatically.
const (
	// ConfidenceAllVerified means every declared criterion was verified.
	ConfidenceAllVerified = 1.0

	// ConfidenceMostVerified means the majority of criteria were verified
	// and the rest had to be assumed.
	ConfidenceMostVerified = 0.8

	// ConfidenceExistenceOnly means only the resource's existence could be
	// confirmed.
	ConfidenceExistenceOnly = 0.6

	// ConfidencePartialEvidence means a minority of criteria were verified.
	ConfidencePartialEvidence = 0.4

	// ConfidenceConflicting means the signals disagree (for example
	// criteria matched on output from a reported failure).
	ConfidenceConflicting = 0.2

	// ConfidenceNone means clear failure.
	ConfidenceNone = 0.0
)

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s GoalStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *GoalStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = GoalStatus(str)
	return s.Validate()
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (t GoalType) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (t *GoalType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*t = GoalType(str)
	return t.Validate()
}
