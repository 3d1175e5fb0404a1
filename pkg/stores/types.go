package stores

import (
	"time"
)

// RunRecord is one persisted orchestration run.
type RunRecord struct {
	// ID is the run identifier.
	ID string `json:"id"`

	// Request is the original natural-language request.
	Request string `json:"request"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`

	// Total is the goal count.
	Total int `json:"total"`

	// Achieved is the achieved goal count.
	Achieved int `json:"achieved"`

	// Partial is the partial goal count.
	Partial int `json:"partial"`

	// Failed is the failed goal count.
	Failed int `json:"failed"`

	// Blocked is the blocked goal count.
	Blocked int `json:"blocked"`

	// Aborted is the aborted goal count.
	Aborted int `json:"aborted"`

	// ReportJSON is the full final report, serialized.
	ReportJSON string `json:"report_json"`
}
