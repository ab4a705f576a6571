package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brandlens/perception-orchestrator/internal/domain"
	"github.com/brandlens/perception-orchestrator/internal/provider"
)

// fakeClient scripts per-model outcomes
type fakeClient struct {
	responses map[string]*provider.Completion
	errs      map[string]error
	calls     []string
	block     bool
}

func (f *fakeClient) Complete(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	f.calls = append(f.calls, req.Model)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err, ok := f.errs[req.Model]; ok {
		return nil, err
	}
	if comp, ok := f.responses[req.Model]; ok {
		return comp, nil
	}
	return &provider.Completion{Text: `{"answer":"ok","mentioned":true}`}, nil
}

func newTestDispatcher(c *fakeClient) *Dispatcher {
	reg := provider.NewRegistry()
	reg.Register("openai", c)
	return New(reg)
}

func spontaneousCall() Call {
	return Call{
		PipelineType: domain.PipelineSpontaneous,
		PromptIndex:  0,
		RunIndex:     0,
		SystemPrompt: "sys",
		UserPrompt:   "what tools come to mind?",
		Primary:      domain.ModelRef{Provider: "openai", Model: "gpt-4o"},
		Fallback:     domain.ModelRef{Provider: "openai", Model: "gpt-4o-mini"},
	}
}

func TestDispatch_PrimarySuccess(t *testing.T) {
	client := &fakeClient{
		responses: map[string]*provider.Completion{
			"gpt-4o": {Text: `{"answer":"Acme leads","mentioned":true,"topOfMind":["Acme","Globex"]}`},
		},
	}
	d := newTestDispatcher(client)

	resp := d.Dispatch(context.Background(), "proj-1", spontaneousCall())

	if resp.Error != "" {
		t.Fatalf("Error = %q, want empty", resp.Error)
	}
	if resp.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", resp.Model)
	}
	if resp.AnsweredModel != "gpt-4o" {
		t.Errorf("AnsweredModel = %q, want gpt-4o", resp.AnsweredModel)
	}
	if !resp.Mentioned {
		t.Error("Mentioned = false, want true")
	}
	if len(resp.TopOfMind) != 2 {
		t.Errorf("TopOfMind = %v, want 2 entries", resp.TopOfMind)
	}
	if len(client.calls) != 1 {
		t.Errorf("calls = %v, want primary only", client.calls)
	}
}

func TestDispatch_FallbackKeepsSlotIdentity(t *testing.T) {
	client := &fakeClient{
		errs: map[string]error{"gpt-4o": errors.New("rate limited")},
		responses: map[string]*provider.Completion{
			"gpt-4o-mini": {Text: `{"answer":"fine","mentioned":true}`},
		},
	}
	d := newTestDispatcher(client)

	resp := d.Dispatch(context.Background(), "proj-1", spontaneousCall())

	if resp.Error != "" {
		t.Fatalf("Error = %q, want empty after fallback success", resp.Error)
	}
	if resp.Provider != "openai" || resp.Model != "gpt-4o" {
		t.Errorf("slot identity = %s/%s, want openai/gpt-4o", resp.Provider, resp.Model)
	}
	if resp.AnsweredModel != "gpt-4o-mini" {
		t.Errorf("AnsweredModel = %q, want gpt-4o-mini", resp.AnsweredModel)
	}
	if !resp.Mentioned {
		t.Error("Mentioned = false, want true")
	}
	want := []string{"gpt-4o", "gpt-4o-mini"}
	if len(client.calls) != 2 || client.calls[0] != want[0] || client.calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", client.calls, want)
	}
}

// Two slots falling back to the same model must stay distinguishable,
// or the raw log would collapse them into one row.
func TestDispatch_SharedFallbackKeepsSlotsDistinct(t *testing.T) {
	client := &fakeClient{
		errs: map[string]error{
			"gpt-4o":  errors.New("outage"),
			"gpt-4.1": errors.New("outage"),
		},
		responses: map[string]*provider.Completion{
			"gpt-4o-mini": {Text: `{"answer":"fine","mentioned":true}`},
		},
	}
	d := newTestDispatcher(client)

	callA := spontaneousCall()
	callB := spontaneousCall()
	callB.Primary = domain.ModelRef{Provider: "openai", Model: "gpt-4.1"}

	respA := d.Dispatch(context.Background(), "proj-1", callA)
	respB := d.Dispatch(context.Background(), "proj-1", callB)

	if respA.Model == respB.Model {
		t.Errorf("both slots recorded identity %q, want distinct slot identities", respA.Model)
	}
	if respA.AnsweredModel != "gpt-4o-mini" || respB.AnsweredModel != "gpt-4o-mini" {
		t.Errorf("AnsweredModel = %q / %q, want gpt-4o-mini for both",
			respA.AnsweredModel, respB.AnsweredModel)
	}
}

func TestDispatch_DoubleFailureNeutralDefaults(t *testing.T) {
	client := &fakeClient{
		errs: map[string]error{
			"gpt-4o":      errors.New("timeout"),
			"gpt-4o-mini": errors.New("timeout"),
		},
	}
	d := newTestDispatcher(client)

	call := spontaneousCall()
	resp := d.Dispatch(context.Background(), "proj-1", call)

	if resp.Error == "" {
		t.Fatal("Error not set after double failure")
	}
	if !strings.Contains(resp.Error, "gpt-4o") || !strings.Contains(resp.Error, "gpt-4o-mini") {
		t.Errorf("Error = %q, want both identities recorded", resp.Error)
	}
	if resp.Mentioned {
		t.Error("Mentioned should default to false")
	}
	if resp.Sentiment != domain.SentimentNeutral {
		t.Errorf("Sentiment = %q, want neutral default", resp.Sentiment)
	}
	if resp.Winner != "" || resp.AttributeScores != nil {
		t.Error("winner and attribute scores should be neutral")
	}
	if resp.AnsweredModel != "" {
		t.Errorf("AnsweredModel = %q, want empty when no call succeeded", resp.AnsweredModel)
	}
	// Exactly one fallback attempt, never more
	if len(client.calls) != 2 {
		t.Errorf("calls = %v, want exactly 2", client.calls)
	}
}

func TestDispatch_NoFallbackConfigured(t *testing.T) {
	client := &fakeClient{errs: map[string]error{"gpt-4o": errors.New("boom")}}
	d := newTestDispatcher(client)

	call := spontaneousCall()
	call.Fallback = domain.ModelRef{}
	resp := d.Dispatch(context.Background(), "proj-1", call)

	if resp.Error == "" {
		t.Fatal("Error not set")
	}
	if len(client.calls) != 1 {
		t.Errorf("calls = %v, want 1", client.calls)
	}
}

func TestDispatch_TimeoutTriggersFallback(t *testing.T) {
	slow := &fakeClient{block: true}
	fast := &fakeClient{
		responses: map[string]*provider.Completion{
			"backup": {Text: `{"answer":"ok","mentioned":false}`},
		},
	}
	reg := provider.NewRegistry()
	reg.Register("slow", slow)
	reg.Register("fast", fast)
	d := New(reg)

	call := spontaneousCall()
	call.Primary = domain.ModelRef{Provider: "slow", Model: "stuck"}
	call.Fallback = domain.ModelRef{Provider: "fast", Model: "backup"}
	call.Timeout = 20 * time.Millisecond

	start := time.Now()
	resp := d.Dispatch(context.Background(), "proj-1", call)

	if resp.Error != "" {
		t.Fatalf("Error = %q, want fallback to rescue the call", resp.Error)
	}
	if resp.Model != "stuck" {
		t.Errorf("Model = %q, want the slot identity stuck", resp.Model)
	}
	if resp.AnsweredModel != "backup" {
		t.Errorf("AnsweredModel = %q, want backup", resp.AnsweredModel)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("dispatch took %v, timeout not applied", elapsed)
	}
}

func TestDispatch_UnknownProviderIsCallError(t *testing.T) {
	d := New(provider.NewRegistry())

	resp := d.Dispatch(context.Background(), "proj-1", spontaneousCall())
	if resp.Error == "" {
		t.Fatal("Error not set for unknown provider")
	}
}

func TestDispatch_SentimentExtraction(t *testing.T) {
	client := &fakeClient{
		responses: map[string]*provider.Completion{
			"gpt-4o": {Text: "```json\n{\"answer\":\"good\",\"sentiment\":\"Positive\",\"accuracy\":0.8}\n```"},
		},
	}
	d := newTestDispatcher(client)

	call := spontaneousCall()
	call.PipelineType = domain.PipelineSentiment
	resp := d.Dispatch(context.Background(), "proj-1", call)

	if resp.Malformed {
		t.Fatal("fenced JSON marked malformed")
	}
	if resp.Sentiment != domain.SentimentPositive {
		t.Errorf("Sentiment = %q, want positive", resp.Sentiment)
	}
	if resp.Accuracy != 0.8 {
		t.Errorf("Accuracy = %v, want 0.8", resp.Accuracy)
	}
}

func TestDispatch_AccuracyScoresCarryModelIdentity(t *testing.T) {
	client := &fakeClient{
		responses: map[string]*provider.Completion{
			"gpt-4o": {Text: `{"answer":"x","attributeScores":[{"attribute":"innovation","score":0.9}]}`},
		},
	}
	d := newTestDispatcher(client)

	call := spontaneousCall()
	call.PipelineType = domain.PipelineAccuracy
	resp := d.Dispatch(context.Background(), "proj-1", call)

	if len(resp.AttributeScores) != 1 {
		t.Fatalf("AttributeScores = %v", resp.AttributeScores)
	}
	if resp.AttributeScores[0].Model != "openai/gpt-4o" {
		t.Errorf("Model = %q, want openai/gpt-4o", resp.AttributeScores[0].Model)
	}
}

func TestDispatch_UnparsableBodyMarkedMalformed(t *testing.T) {
	client := &fakeClient{
		responses: map[string]*provider.Completion{
			"gpt-4o": {Text: "Sorry, I cannot answer that."},
		},
	}
	d := newTestDispatcher(client)

	resp := d.Dispatch(context.Background(), "proj-1", spontaneousCall())

	if !resp.Malformed {
		t.Fatal("Malformed not set for prose body")
	}
	if resp.Error != "" {
		t.Errorf("Error = %q, want empty (call itself succeeded)", resp.Error)
	}
	if resp.ResponseText == "" {
		t.Error("raw text must be retained for the audit log")
	}
}

func TestDispatch_ProviderMetadataPassthrough(t *testing.T) {
	client := &fakeClient{
		responses: map[string]*provider.Completion{
			"gpt-4o": {
				Text:          `{"answer":"ok","mentioned":true,"citations":["https://a.example/1"]}`,
				Citations:     []string{"https://b.example/2"},
				ToolUsage:     []string{"web_search"},
				UsedWebSearch: true,
			},
		},
	}
	d := newTestDispatcher(client)

	resp := d.Dispatch(context.Background(), "proj-1", spontaneousCall())

	if !resp.UsedWebSearch {
		t.Error("UsedWebSearch not passed through")
	}
	if len(resp.ToolUsage) != 1 {
		t.Errorf("ToolUsage = %v", resp.ToolUsage)
	}
	if len(resp.Citations) != 2 {
		t.Errorf("Citations = %v, want provider + body merged", resp.Citations)
	}
	if resp.Citations[0] != "https://b.example/2" {
		t.Errorf("Citations[0] = %q, want provider metadata first", resp.Citations[0])
	}
}
