package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// BuildFinalReport assembles the run's sole error-reporting surface: what
// was achieved with what evidence, what failed and why, what the user should
// do about it, and what never got a chance to run.
func BuildFinalReport(runID, request string, graph *GoalGraph, start, end time.Time) *FinalReport {
	report := &FinalReport{
		RunID:       runID,
		Request:     request,
		StartedAt:   start,
		CompletedAt: end,
		Duration:    end.Sub(start),
	}

	for _, goal := range graph.Goals() {
		gr := GoalReport{
			GoalID:     goal.ID,
			Name:       goal.Name,
			Type:       goal.Type,
			Status:     goal.Status,
			Confidence: goal.Confidence,
			Attempts:   goal.Attempts,
		}

		switch goal.Status {
		case GoalStatusAchieved:
			gr.ResourceID = goal.Outputs["resource_id"]
			gr.Evidence = goal.Evidence
			report.Achieved = append(report.Achieved, gr)
			report.Summary.Achieved++

		case GoalStatusPartial:
			gr.Evidence = goal.Evidence
			gr.SuggestedAction = "verify the resource state manually"
			if goal.LastError != nil {
				gr.Error = goal.LastError.Message
			}
			report.Partial = append(report.Partial, gr)
			report.Summary.Partial++

		case GoalStatusFailed:
			gr.TriedAlternatives = goal.TriedAlternatives
			if goal.LastError != nil {
				gr.Error = goal.LastError.Message
				gr.SuggestedAction = suggestedAction(goal.LastError)
			}
			report.Failed = append(report.Failed, gr)
			report.Summary.Failed++

		case GoalStatusBlocked:
			gr.BlockedBy = goal.BlockedBy
			gr.SuggestedAction = "resolve the blocking goals and rerun"
			report.Blocked = append(report.Blocked, gr)
			report.Summary.Blocked++

		case GoalStatusAborted:
			report.Aborted = append(report.Aborted, gr)
			report.Summary.Aborted++
		}
		report.Summary.Total++
	}

	sortReports(report.Achieved)
	sortReports(report.Partial)
	sortReports(report.Failed)
	sortReports(report.Blocked)
	sortReports(report.Aborted)
	return report
}

func sortReports(reports []GoalReport) {
	sort.Slice(reports, func(i, j int) bool { return reports[i].GoalID < reports[j].GoalID })
}

// suggestedAction maps a failure class to the manual step that resolves it.
func suggestedAction(err *EngineError) string {
	switch err.Class {
	case FailureClassPermission:
		return "grant the required role or re-authenticate, then rerun"
	case FailureClassTransient:
		return "the service did not stabilize within the retry budget; rerun later"
	case FailureClassRecoverable:
		return "all automatic alternatives were exhausted; pick parameters manually"
	case FailureClassConfiguration:
		return "review and correct the goal parameters"
	default:
		if IsPreflightError(err) {
			return "declare a goal that produces the missing references, then rerun"
		}
		return "inspect the execution history for this goal"
	}
}

// Render formats the report as operator-facing text.
func (r *FinalReport) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	if r.Request != "" {
		fmt.Fprintf(&b, "Request: %s\n", r.Request)
	}
	fmt.Fprintf(&b, "Goals: %d total, %d achieved, %d partial, %d failed, %d blocked, %d aborted\n",
		r.Summary.Total, r.Summary.Achieved, r.Summary.Partial,
		r.Summary.Failed, r.Summary.Blocked, r.Summary.Aborted)

	renderSection(&b, "Achieved", r.Achieved, func(g GoalReport) string {
		line := fmt.Sprintf("confidence %.1f, %d attempt(s)", g.Confidence, g.Attempts)
		if g.ResourceID != "" {
			line += ", resource " + g.ResourceID
		}
		if len(g.Evidence) > 0 {
			line += ", verified: " + strings.Join(g.Evidence, ", ")
		}
		return line
	})

	renderSection(&b, "Partial (verify manually)", r.Partial, func(g GoalReport) string {
		line := fmt.Sprintf("confidence %.1f", g.Confidence)
		if g.Error != "" {
			line += ", last error: " + g.Error
		}
		return line
	})

	renderSection(&b, "Failed", r.Failed, func(g GoalReport) string {
		line := g.Error
		if len(g.TriedAlternatives) > 0 {
			line += fmt.Sprintf(" (tried: %s)", strings.Join(g.TriedAlternatives, ", "))
		}
		if g.SuggestedAction != "" {
			line += "\n      action: " + g.SuggestedAction
		}
		return line
	})

	renderSection(&b, "Blocked", r.Blocked, func(g GoalReport) string {
		return "blocked by " + strings.Join(g.BlockedBy, ", ")
	})

	renderSection(&b, "Aborted", r.Aborted, func(g GoalReport) string {
		return fmt.Sprintf("%d attempt(s) before abort", g.Attempts)
	})

	return b.String()
}

func renderSection(b *strings.Builder, title string, reports []GoalReport, detail func(GoalReport) string) {
	if len(reports) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, g := range reports {
		fmt.Fprintf(b, "  %s (%s): %s\n", g.GoalID, g.Type, detail(g))
	}
}
