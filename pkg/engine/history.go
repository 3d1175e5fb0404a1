package engine

import (
	"sync"
	"time"
)

// HistoryEntryKind distinguishes the record types in the execution history.
type HistoryEntryKind string

const (
	// HistoryKindAttempt records one action execution.
	HistoryKindAttempt HistoryEntryKind = "attempt"

	// HistoryKindEvaluation records the scoring of an attempt.
	HistoryKindEvaluation HistoryEntryKind = "evaluation"

	// HistoryKindRecovery records a failure classification and decision.
	HistoryKindRecovery HistoryEntryKind = "recovery"

	// HistoryKindStatus records a goal status transition.
	HistoryKindStatus HistoryEntryKind = "status"
)

// HistoryEntry is one append-only record of the run. Raw output stored here
// has already passed through the redaction filter.
type HistoryEntry struct {
	Seq       int              `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	Kind      HistoryEntryKind `json:"kind"`
	GoalID    string           `json:"goal_id"`

	// Attempt fields.
	Attempt int           `json:"attempt,omitempty"`
	Tool    string        `json:"tool,omitempty"`
	Output  string        `json:"output,omitempty"`
	Exit    int           `json:"exit,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`

	// Evaluation fields.
	Status     GoalStatus `json:"status,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`

	// Recovery fields.
	Classification FailureClass     `json:"classification,omitempty"`
	Decision       RecoveryDecision `json:"decision,omitempty"`
	Reason         string           `json:"reason,omitempty"`
}

// ExecutionHistory is the append-only log of everything the engine did
// during one run. Entries carry a monotonically increasing sequence number
// so interleaved goal activity stays ordered.
type ExecutionHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
	seq     int
	now     func() time.Time
}

// NewExecutionHistory creates an empty history.
func NewExecutionHistory() *ExecutionHistory {
	return &ExecutionHistory{now: time.Now}
}

func (h *ExecutionHistory) append(entry HistoryEntry) HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	entry.Seq = h.seq
	entry.Timestamp = h.now()
	h.entries = append(h.entries, entry)
	return entry
}

// RecordAttempt logs one action execution with its redacted output.
func (h *ExecutionHistory) RecordAttempt(goal *Goal, result *ActionResult) HistoryEntry {
	return h.append(HistoryEntry{
		Kind:    HistoryKindAttempt,
		GoalID:  goal.ID,
		Attempt: goal.Attempts,
		Tool:    result.ToolUsed,
		Output:  result.RawOutput,
		Exit:    result.ExitCode,
		Elapsed: result.Duration,
	})
}

// RecordEvaluation logs the scoring of an attempt.
func (h *ExecutionHistory) RecordEvaluation(goalID string, eval *EvaluationResult) HistoryEntry {
	return h.append(HistoryEntry{
		Kind:       HistoryKindEvaluation,
		GoalID:     goalID,
		Status:     eval.Status,
		Confidence: eval.Confidence,
	})
}

// RecordRecovery logs a failure classification and the decision taken.
func (h *ExecutionHistory) RecordRecovery(record *FailureRecord) HistoryEntry {
	return h.append(HistoryEntry{
		Kind:           HistoryKindRecovery,
		GoalID:         record.GoalID,
		Attempt:        record.AttemptNumber,
		Classification: record.Classification,
		Decision:       record.Decision,
		Reason:         record.Reason,
	})
}

// RecordStatus logs a goal status transition.
func (h *ExecutionHistory) RecordStatus(goalID string, status GoalStatus, reason string) HistoryEntry {
	return h.append(HistoryEntry{
		Kind:   HistoryKindStatus,
		GoalID: goalID,
		Status: status,
		Reason: reason,
	})
}

// Entries returns a copy of the log in sequence order.
func (h *ExecutionHistory) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// ForGoal returns the entries for one goal in sequence order.
func (h *ExecutionHistory) ForGoal(goalID string) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []HistoryEntry
	for _, e := range h.entries {
		if e.GoalID == goalID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (h *ExecutionHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
