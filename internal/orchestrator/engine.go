// Package orchestrator drives batch analysis runs: it owns the
// execution lifecycle, fans pipelines out under concurrency control and
// publishes state-transition events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brandlens/perception-orchestrator/internal/config"
	"github.com/brandlens/perception-orchestrator/internal/dispatch"
	"github.com/brandlens/perception-orchestrator/internal/domain"
	"github.com/brandlens/perception-orchestrator/internal/events"
	"github.com/brandlens/perception-orchestrator/internal/gate"
	"github.com/brandlens/perception-orchestrator/internal/prompts"
	"github.com/brandlens/perception-orchestrator/internal/provider"
	"github.com/brandlens/perception-orchestrator/internal/report"
	"github.com/brandlens/perception-orchestrator/internal/store"
)

var (
	// ErrProjectNotFound is returned when the project does not exist
	ErrProjectNotFound = errors.New("project not found")
	// ErrPromptSetMissing is returned when a project has no usable prompt set
	ErrPromptSetMissing = errors.New("prompt set missing")
	// ErrUnknownPipeline is returned for a pipeline type outside the four analyzers
	ErrUnknownPipeline = errors.New("unknown pipeline type")
)

// Engine coordinates pipeline runs for projects. One engine serves all
// projects; per-run state lives in the BatchExecution each run owns.
type Engine struct {
	cfg        *config.Config
	store      *store.Store
	bus        *events.Bus
	gate       *gate.Gate
	dispatcher *dispatch.Dispatcher
	generator  *prompts.Generator
	reports    *report.Generator
}

// New creates an engine. Gate limits are validated here so a
// misconfigured gate fails construction, not a run.
func New(cfg *config.Config, st *store.Store, bus *events.Bus, registry *provider.Registry, reports *report.Generator) (*Engine, error) {
	g, err := gate.New(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("concurrency gate: %w", err)
	}

	return &Engine{
		cfg:        cfg,
		store:      st,
		bus:        bus,
		gate:       g,
		dispatcher: dispatch.New(registry),
		generator:  prompts.NewGenerator(cfg.General.TemplateDir),
		reports:    reports,
	}, nil
}

// Gate exposes the concurrency gate for status inspection
func (e *Engine) Gate() *gate.Gate { return e.gate }

// RunPipeline runs a single pipeline type for a project and returns the
// finished execution
func (e *Engine) RunPipeline(ctx context.Context, projectID string, t domain.PipelineType) (*domain.BatchExecution, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, t)
	}
	return e.run(ctx, projectID, []domain.PipelineType{t})
}

// RunFullBatch runs all four pipeline types for a project. On success a
// report snapshot is generated automatically.
func (e *Engine) RunFullBatch(ctx context.Context, projectID string) (*domain.BatchExecution, error) {
	return e.run(ctx, projectID, domain.AllPipelineTypes)
}

// ListExecutions returns a project's executions, newest first
func (e *Engine) ListExecutions(projectID string) ([]*domain.BatchExecution, error) {
	return e.store.ListExecutions(projectID)
}

// GetExecution returns one execution with its results
func (e *Engine) GetExecution(id string) (*domain.BatchExecution, error) {
	return e.store.GetExecution(id)
}

// GenerateReportFromBatch is the manual report trigger
func (e *Engine) GenerateReportFromBatch(executionID string) (*domain.Report, error) {
	return e.reports.Generate(executionID)
}

// RegeneratePromptSet rebuilds a project's prompt set from the templates
// and announces readiness on the bus
func (e *Engine) RegeneratePromptSet(projectID string) (*domain.PromptSet, error) {
	project, err := e.store.GetProject(projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		return nil, err
	}

	generated, err := e.generator.Generate(project)
	if err != nil {
		return nil, fmt.Errorf("generate prompts: %w", err)
	}

	set, err := e.store.ReplacePromptSet(projectID, generated)
	if err != nil {
		return nil, fmt.Errorf("store prompt set: %w", err)
	}

	e.bus.Publish(domain.BatchEvent{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		EventType:   domain.EventPromptSetReady,
		Message:     fmt.Sprintf("prompt set v%d ready", set.Version),
		Timestamp:   time.Now().UTC(),
	})

	log.Printf("[orchestrator] prompt set v%d generated for %s", set.Version, project.ID)
	return set, nil
}

// run creates the execution, validates preconditions, fans the requested
// pipelines out and settles the execution into a terminal state.
func (e *Engine) run(ctx context.Context, projectID string, types []domain.PipelineType) (*domain.BatchExecution, error) {
	exec := &domain.BatchExecution{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		ExecutedAt: time.Now().UTC(),
		Status:     domain.ExecutionRunning,
	}
	if err := e.store.CreateExecution(exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	full := len(types) > 1
	batchType := types[0]
	if full {
		batchType = domain.PipelineFull
	}

	project, set, err := e.preflight(projectID, types)
	if err != nil {
		return e.fail(exec, project, batchType, err)
	}

	e.publish(exec, project, domain.BatchEvent{
		EventType:    domain.EventBatchStarted,
		PipelineType: batchType,
		Message:      fmt.Sprintf("batch started (%d pipelines)", len(types)),
	})

	// Caller disconnection must not cancel in-flight provider calls;
	// results are persisted regardless.
	runCtx := context.WithoutCancel(ctx)

	pipeErrs := make([]error, len(types))
	var group errgroup.Group
	for i, t := range types {
		i, t := i, t
		group.Go(func() error {
			if err := e.runPipeline(runCtx, exec, project, set, t); err != nil {
				log.Printf("[orchestrator] pipeline %s failed for execution %s: %v", t, exec.ID, err)
				pipeErrs[i] = fmt.Errorf("%s: %w", t, err)
			}
			return nil
		})
	}
	group.Wait()

	if err := errors.Join(pipeErrs...); err != nil {
		return e.fail(exec, project, batchType, err)
	}

	if err := e.store.TransitionExecution(exec.ID, domain.ExecutionCompleted, ""); err != nil {
		return nil, fmt.Errorf("complete execution: %w", err)
	}
	e.publish(exec, project, domain.BatchEvent{
		EventType:    domain.EventBatchCompleted,
		PipelineType: batchType,
		Message:      "batch completed",
	}.WithProgress(100))

	if full && e.reports != nil {
		if _, err := e.reports.GenerateAuto(exec.ID); err != nil {
			log.Printf("[orchestrator] automatic report for %s failed: %v", exec.ID, err)
		}
	}

	return e.store.GetExecution(exec.ID)
}

// preflight validates everything a run needs before any pipeline starts
func (e *Engine) preflight(projectID string, types []domain.PipelineType) (*domain.Project, *domain.PromptSet, error) {
	project, err := e.store.GetProject(projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		return nil, nil, fmt.Errorf("load project: %w", err)
	}

	set, err := e.store.GetPromptSet(projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return project, nil, fmt.Errorf("%w: project %s", ErrPromptSetMissing, projectID)
		}
		return project, nil, fmt.Errorf("load prompt set: %w", err)
	}

	for _, t := range types {
		if len(set.For(t)) == 0 {
			return project, set, fmt.Errorf("%w: no %s prompts", ErrPromptSetMissing, t)
		}
	}
	return project, set, nil
}

// fail settles the execution as failed and emits batch_failed. The
// original error is returned to the caller alongside the execution.
func (e *Engine) fail(exec *domain.BatchExecution, project *domain.Project, batchType domain.PipelineType, cause error) (*domain.BatchExecution, error) {
	if err := e.store.TransitionExecution(exec.ID, domain.ExecutionFailed, cause.Error()); err != nil {
		log.Printf("[orchestrator] could not mark execution %s failed: %v", exec.ID, err)
	}
	e.publish(exec, project, domain.BatchEvent{
		EventType:    domain.EventBatchFailed,
		PipelineType: batchType,
		Message:      "batch failed",
		Error:        cause.Error(),
	})

	settled, err := e.store.GetExecution(exec.ID)
	if err != nil {
		settled = exec
	}
	return settled, cause
}

// publish stamps identity and time onto the event and puts it on the bus
func (e *Engine) publish(exec *domain.BatchExecution, project *domain.Project, event domain.BatchEvent) {
	event.BatchExecutionID = exec.ID
	event.ProjectID = exec.ProjectID
	if project != nil {
		event.ProjectName = project.Name
	}
	event.Timestamp = time.Now().UTC()
	e.bus.Publish(event)
}
