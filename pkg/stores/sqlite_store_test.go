package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/azimuth-ai/azimuth/pkg/engine"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleReport(runID string, startedAt time.Time) *engine.FinalReport {
	return &engine.FinalReport{
		RunID:       runID,
		Request:     "create a vm with storage",
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(42 * time.Second),
		Duration:    42 * time.Second,
		Achieved: []engine.GoalReport{
			{GoalID: "rg", Status: engine.GoalStatusAchieved, Confidence: 1.0, Attempts: 1},
		},
		Failed: []engine.GoalReport{
			{GoalID: "vm", Status: engine.GoalStatusFailed, Attempts: 4, Error: "quota exceeded"},
		},
		Summary: engine.ReportSummary{Total: 2, Achieved: 1, Failed: 1},
	}
}

func sampleHistory() []engine.HistoryEntry {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return []engine.HistoryEntry{
		{Seq: 1, Timestamp: now, Kind: engine.HistoryKindAttempt, GoalID: "rg", Attempt: 1, Tool: "cli", Output: `{"id": "res-rg"}`, Elapsed: 1200 * time.Millisecond},
		{Seq: 2, Timestamp: now, Kind: engine.HistoryKindEvaluation, GoalID: "rg", Status: engine.GoalStatusAchieved, Confidence: 1.0},
		{Seq: 3, Timestamp: now, Kind: engine.HistoryKindRecovery, GoalID: "vm", Attempt: 1, Classification: engine.FailureClassRecoverable, Decision: engine.DecisionAlternativeApproach, Reason: "quota"},
		{Seq: 4, Timestamp: now, Kind: engine.HistoryKindStatus, GoalID: "vm", Status: engine.GoalStatusFailed, Reason: "budget exhausted"},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	report := sampleReport("run-1", time.Now().UTC())

	if err := store.SaveRun(ctx, report, sampleHistory()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	rec, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if rec.ID != "run-1" || rec.Request != "create a vm with storage" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Total != 2 || rec.Achieved != 1 || rec.Failed != 1 {
		t.Errorf("summary counts = total %d achieved %d failed %d", rec.Total, rec.Achieved, rec.Failed)
	}
	if rec.Duration != 42*time.Second {
		t.Errorf("duration = %s, want 42s", rec.Duration)
	}
	if rec.ReportJSON == "" {
		t.Error("report JSON not persisted")
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"run-old", "run-mid", "run-new"} {
		report := sampleReport(id, base.Add(time.Duration(i)*time.Minute))
		if err := store.SaveRun(ctx, report, nil); err != nil {
			t.Fatalf("SaveRun %s failed: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-new" || runs[1].ID != "run-mid" {
		t.Errorf("order = [%s %s], want newest first", runs[0].ID, runs[1].ID)
	}
}

func TestGetHistoryRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	want := sampleHistory()

	if err := store.SaveRun(ctx, sampleReport("run-h", time.Now().UTC()), want); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := store.GetHistory(ctx, "run-h")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Seq != want[i].Seq || got[i].Kind != want[i].Kind || got[i].GoalID != want[i].GoalID {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if got[0].Output != `{"id": "res-rg"}` {
		t.Errorf("output = %q", got[0].Output)
	}
	if got[2].Decision != engine.DecisionAlternativeApproach {
		t.Errorf("decision = %s", got[2].Decision)
	}
}

func TestSaveRunDuplicateIDFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	report := sampleReport("run-dup", time.Now().UTC())

	if err := store.SaveRun(ctx, report, nil); err != nil {
		t.Fatalf("first SaveRun failed: %v", err)
	}
	if err := store.SaveRun(ctx, report, nil); err == nil {
		t.Fatal("duplicate run ID must fail")
	}
}
