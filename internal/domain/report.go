package domain

import "time"

// Report is a frozen snapshot of aggregated metrics for a project.
// It never mutates after creation, even if the project's pipelines are
// re-run later.
type Report struct {
	ID               string
	ProjectID        string
	BatchExecutionID string
	GeneratedAt      time.Time
	Results          []BatchResult
}
