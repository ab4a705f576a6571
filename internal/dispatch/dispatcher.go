package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/brandlens/perception-orchestrator/internal/domain"
	"github.com/brandlens/perception-orchestrator/internal/provider"
)

// Call is one (prompt, model-slot, run) dispatch. Primary is the slot's
// enabled model; Fallback is the analyzer-configured substitute tried at
// most once when the primary call fails.
type Call struct {
	PipelineType domain.PipelineType
	PromptIndex  int
	RunIndex     int

	SystemPrompt string
	UserPrompt   string

	Primary  domain.ModelRef
	Fallback domain.ModelRef
	Timeout  time.Duration
}

// Dispatcher issues single completion calls with failover. It holds no
// mutable state; one instance serves all pipelines concurrently.
type Dispatcher struct {
	registry *provider.Registry
}

// New creates a dispatcher over the given provider registry
func New(registry *provider.Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch runs one call: primary first, fallback exactly once on
// failure. It always returns a RawResponse; a double failure is recorded
// in the response's Error field with neutral extracted defaults, never
// propagated as an error. Provider/Model stay the slot's identity even
// when the fallback answers, so slots sharing a fallback never collide
// in the raw log; the answering model is recorded separately.
func (d *Dispatcher) Dispatch(ctx context.Context, projectID string, call Call) domain.RawResponse {
	resp := domain.RawResponse{
		ProjectID:    projectID,
		PipelineType: call.PipelineType,
		PromptIndex:  call.PromptIndex,
		RunIndex:     call.RunIndex,
		Provider:     call.Primary.Provider,
		Model:        call.Primary.Model,
	}

	comp, primaryErr := d.complete(ctx, call.Primary, call)
	if primaryErr == nil {
		resp.AnsweredProvider = call.Primary.Provider
		resp.AnsweredModel = call.Primary.Model
		extract(&resp, comp)
		return resp
	}

	if call.Fallback.Model == "" {
		log.Printf("[dispatcher] %s prompt %d run %d: %s failed, no fallback configured: %v",
			call.PipelineType, call.PromptIndex, call.RunIndex, call.Primary, primaryErr)
		resp.Error = primaryErr.Error()
		neutralDefaults(&resp)
		return resp
	}

	log.Printf("[dispatcher] %s prompt %d run %d: %s failed (%v), retrying with %s",
		call.PipelineType, call.PromptIndex, call.RunIndex, call.Primary, primaryErr, call.Fallback)

	comp, fallbackErr := d.complete(ctx, call.Fallback, call)
	if fallbackErr == nil {
		resp.AnsweredProvider = call.Fallback.Provider
		resp.AnsweredModel = call.Fallback.Model
		extract(&resp, comp)
		return resp
	}

	log.Printf("[dispatcher] %s prompt %d run %d: fallback %s also failed: %v",
		call.PipelineType, call.PromptIndex, call.RunIndex, call.Fallback, fallbackErr)
	resp.Error = fmt.Sprintf("primary %s: %v; fallback %s: %v",
		call.Primary, primaryErr, call.Fallback, fallbackErr)
	neutralDefaults(&resp)
	return resp
}

// FailedResponse records a call that could not be attempted at all,
// with the same neutral defaults a double failure gets
func FailedResponse(projectID string, call Call, err error) domain.RawResponse {
	resp := domain.RawResponse{
		ProjectID:    projectID,
		PipelineType: call.PipelineType,
		PromptIndex:  call.PromptIndex,
		RunIndex:     call.RunIndex,
		Provider:     call.Primary.Provider,
		Model:        call.Primary.Model,
		Error:        err.Error(),
	}
	neutralDefaults(&resp)
	return resp
}

// complete issues one provider call under the per-call timeout. The
// timeout context is derived fresh per attempt so the fallback gets its
// own full budget.
func (d *Dispatcher) complete(ctx context.Context, ref domain.ModelRef, call Call) (*provider.Completion, error) {
	client, err := d.registry.ForProvider(ref.Provider)
	if err != nil {
		return nil, err
	}

	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}

	return client.Complete(ctx, provider.Request{
		SystemPrompt: call.SystemPrompt,
		UserPrompt:   call.UserPrompt,
		Model:        ref.Model,
	})
}
