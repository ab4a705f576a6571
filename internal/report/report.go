// Package report freezes a completed batch execution's aggregated
// results into an immutable Report snapshot.
package report

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/brandlens/perception-orchestrator/internal/domain"
	"github.com/brandlens/perception-orchestrator/internal/notify"
	"github.com/brandlens/perception-orchestrator/internal/store"
)

// ErrExecutionNotCompleted is returned when the source execution is not
// in the completed state
var ErrExecutionNotCompleted = errors.New("execution not completed")

// Generator builds report snapshots from completed executions. Two
// triggers exist: automatic after a full batch, which also sends a
// notification, and manual on operator request, which does not.
type Generator struct {
	store    *store.Store
	notifier notify.Notifier
}

// NewGenerator creates a report generator. A nil notifier disables the
// automatic-trigger notification.
func NewGenerator(st *store.Store, notifier notify.Notifier) *Generator {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Generator{store: st, notifier: notifier}
}

// Generate snapshots a completed execution into a new report. This is
// the manual trigger; no notification is sent.
func (g *Generator) Generate(executionID string, types ...domain.PipelineType) (*domain.Report, error) {
	return g.generate(executionID, types)
}

// GenerateAuto is the automatic trigger chained to full-batch
// completion. It additionally notifies the configured channel; a
// notification failure never fails the report.
func (g *Generator) GenerateAuto(executionID string) (*domain.Report, error) {
	r, err := g.generate(executionID, nil)
	if err != nil {
		return nil, err
	}

	if err := g.notifier.Send(notify.Notification{
		Title:     "Analysis report generated",
		Message:   fmt.Sprintf("Report %s covers %d pipelines", r.ID, len(r.Results)),
		Type:      notify.NotifySuccess,
		ProjectID: r.ProjectID,
		ReportID:  r.ID,
	}); err != nil {
		log.Printf("[report] notification failed for %s: %v", r.ID, err)
	}
	return r, nil
}

func (g *Generator) generate(executionID string, types []domain.PipelineType) (*domain.Report, error) {
	exec, err := g.store.GetExecution(executionID)
	if err != nil {
		return nil, fmt.Errorf("load execution: %w", err)
	}
	if exec.Status != domain.ExecutionCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrExecutionNotCompleted, executionID, exec.Status)
	}

	results := exec.FinalResults
	if len(types) > 0 {
		results = nil
		for _, t := range types {
			if r := exec.Result(t); r != nil {
				results = append(results, *r)
			}
		}
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("execution %s has no results to report", executionID)
	}

	// Deep-copy payloads so later writes to the execution cannot reach
	// into the snapshot
	frozen := make([]domain.BatchResult, len(results))
	for i, r := range results {
		payload := make([]byte, len(r.Payload))
		copy(payload, r.Payload)
		frozen[i] = domain.BatchResult{
			PipelineType: r.PipelineType,
			Payload:      payload,
			CreatedAt:    r.CreatedAt,
		}
	}

	report := &domain.Report{
		ID:               uuid.NewString(),
		ProjectID:        exec.ProjectID,
		BatchExecutionID: exec.ID,
		GeneratedAt:      time.Now().UTC(),
		Results:          frozen,
	}
	if err := g.store.SaveReport(report); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}

	log.Printf("[report] generated %s from execution %s (%d results)", report.ID, exec.ID, len(frozen))
	return report, nil
}
