package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/brandlens/perception-orchestrator/internal/aggregate"
	"github.com/brandlens/perception-orchestrator/internal/dispatch"
	"github.com/brandlens/perception-orchestrator/internal/domain"
	"github.com/brandlens/perception-orchestrator/internal/prompts"
)

// runPipeline drives one pipeline type for one execution: fan-out per
// (prompt, model, run) under the gate, unordered collection, sorted
// aggregation, persistence. Per-item provider failures never fail the
// pipeline; only the loop's own plumbing can.
func (e *Engine) runPipeline(ctx context.Context, exec *domain.BatchExecution, project *domain.Project, set *domain.PromptSet, t domain.PipelineType) error {
	promptList := set.For(t)
	if len(promptList) == 0 {
		return fmt.Errorf("%w: no %s prompts", ErrPromptSetMissing, t)
	}

	systemPrompt, err := prompts.SystemPrompt(t, project.Brand, project.Competitors)
	if err != nil {
		return err
	}

	analyzer := e.cfg.AnalyzerFor(t)
	models := project.EnabledModels
	if len(models) == 0 {
		models = []domain.ModelRef{analyzer.Primary}
	}
	runs := analyzer.RunsPerModel
	if runs < 1 {
		runs = 1
	}
	total := len(promptList) * len(models) * runs

	e.publish(exec, project, domain.BatchEvent{
		EventType:    domain.EventPipelineStarted,
		PipelineType: t,
		Message:      fmt.Sprintf("dispatching %d calls", total),
	}.WithProgress(0))
	log.Printf("[runner] %s: %d prompts x %d models x %d runs for execution %s",
		t, len(promptList), len(models), runs, exec.ID)

	// A single feeder acquires permits in (promptIndex, model, run)
	// order so calls enter the gate in that order; completion stays
	// unordered.
	settled := make(chan domain.RawResponse)
	go func() {
		var wg sync.WaitGroup
		for promptIndex, prompt := range promptList {
			for _, model := range models {
				for run := 0; run < runs; run++ {
					call := dispatch.Call{
						PipelineType: t,
						PromptIndex:  promptIndex,
						RunIndex:     run,
						SystemPrompt: systemPrompt,
						UserPrompt:   prompt,
						Primary:      model,
						Fallback:     analyzer.Fallback,
						Timeout:      analyzer.CallTimeout,
					}
					permit, err := e.gate.Acquire(ctx, t)
					if err != nil {
						settled <- dispatch.FailedResponse(project.ID, call, err)
						continue
					}
					wg.Add(1)
					go func() {
						defer wg.Done()
						defer permit.Release()
						settled <- e.dispatcher.Dispatch(ctx, project.ID, call)
					}()
				}
			}
		}
		wg.Wait()
		close(settled)
	}()

	// Single collector keeps the progress stream monotonic
	responses := make([]domain.RawResponse, 0, total)
	for r := range settled {
		responses = append(responses, r)
		e.publish(exec, project, domain.BatchEvent{
			EventType:    domain.EventPipelineProgress,
			PipelineType: t,
			Message:      fmt.Sprintf("%d/%d calls settled", len(responses), total),
		}.WithProgress(len(responses) * 100 / total))
	}

	// Completion order is unordered; sort before aggregation so the
	// summary is deterministic
	aggregate.SortResponses(responses)

	aggregator, err := aggregate.ForType(t, project.Brand)
	if err != nil {
		return e.failPipeline(exec, project, t, err)
	}
	payload, err := aggregator.Aggregate(responses)
	if err != nil {
		return e.failPipeline(exec, project, t, fmt.Errorf("aggregate: %w", err))
	}

	if err := e.store.SaveRawResponses(exec.ID, responses); err != nil {
		return e.failPipeline(exec, project, t, fmt.Errorf("save raw responses: %w", err))
	}
	if err := e.store.UpsertResult(exec.ID, domain.BatchResult{
		PipelineType: t,
		Payload:      payload,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return e.failPipeline(exec, project, t, fmt.Errorf("save result: %w", err))
	}

	e.publish(exec, project, domain.BatchEvent{
		EventType:    domain.EventPipelineCompleted,
		PipelineType: t,
		Message:      fmt.Sprintf("%d responses aggregated", len(responses)),
	}.WithProgress(100))
	return nil
}

// failPipeline emits the pipeline's terminal failure event and passes
// the cause up to the batch
func (e *Engine) failPipeline(exec *domain.BatchExecution, project *domain.Project, t domain.PipelineType, cause error) error {
	e.publish(exec, project, domain.BatchEvent{
		EventType:    domain.EventPipelineFailed,
		PipelineType: t,
		Message:      "pipeline failed",
		Error:        cause.Error(),
	})
	return cause
}
