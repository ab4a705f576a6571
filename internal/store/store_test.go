package store

import (
	"errors"
	"testing"
	"time"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_ProjectRoundTrip(t *testing.T) {
	s := newTestStore(t)

	p := &domain.Project{
		ID:          "proj-1",
		Name:        "Acme Corp",
		Brand:       "Acme",
		Competitors: []string{"Globex", "Initech"},
		EnabledModels: []domain.ModelRef{
			{Provider: "openai", Model: "gpt-4o"},
			{Provider: "openai", Model: "gpt-4o-mini"},
		},
	}
	if err := s.UpsertProject(p); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetProject("proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Brand != "Acme" {
		t.Errorf("Brand = %q, want Acme", got.Brand)
	}
	if len(got.Competitors) != 2 || got.Competitors[0] != "Globex" {
		t.Errorf("Competitors = %v", got.Competitors)
	}
	if len(got.EnabledModels) != 2 {
		t.Errorf("EnabledModels count = %d, want 2", len(got.EnabledModels))
	}

	if _, err := s.GetProject("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProject(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_PromptSetReplaceWholesale(t *testing.T) {
	s := newTestStore(t)

	first := map[domain.PipelineType][]string{
		domain.PipelineSpontaneous: {"q1", "q2"},
		domain.PipelineSentiment:   {"q3"},
	}
	set, err := s.ReplacePromptSet("proj-1", first)
	if err != nil {
		t.Fatal(err)
	}
	if set.Version != 1 {
		t.Errorf("Version = %d, want 1", set.Version)
	}

	second := map[domain.PipelineType][]string{
		domain.PipelineSpontaneous: {"new-q1"},
	}
	set, err = s.ReplacePromptSet("proj-1", second)
	if err != nil {
		t.Fatal(err)
	}
	if set.Version != 2 {
		t.Errorf("Version after regeneration = %d, want 2", set.Version)
	}

	got, err := s.GetPromptSet("proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.For(domain.PipelineSpontaneous)) != 1 || got.For(domain.PipelineSpontaneous)[0] != "new-q1" {
		t.Errorf("spontaneous prompts = %v, want [new-q1]", got.For(domain.PipelineSpontaneous))
	}
	// Old sentiment prompts were replaced wholesale
	if len(got.For(domain.PipelineSentiment)) != 0 {
		t.Errorf("sentiment prompts = %v, want none", got.For(domain.PipelineSentiment))
	}

	if _, err := s.GetPromptSet("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPromptSet(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_PromptSetOrderPreserved(t *testing.T) {
	s := newTestStore(t)

	prompts := map[domain.PipelineType][]string{
		domain.PipelineComparison: {"first", "second", "third"},
	}
	if _, err := s.ReplacePromptSet("proj-1", prompts); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPromptSet("proj-1")
	if err != nil {
		t.Fatal(err)
	}
	list := got.For(domain.PipelineComparison)
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if list[i] != w {
			t.Errorf("prompt[%d] = %q, want %q", i, list[i], w)
		}
	}
}

func TestStore_ExecutionLifecycle(t *testing.T) {
	s := newTestStore(t)

	exec := &domain.BatchExecution{
		ID:         "exec-1",
		ProjectID:  "proj-1",
		ExecutedAt: time.Now().UTC(),
		Status:     domain.ExecutionRunning,
	}
	if err := s.CreateExecution(exec); err != nil {
		t.Fatal(err)
	}

	result := domain.BatchResult{
		PipelineType: domain.PipelineSentiment,
		Payload:      []byte(`{"overallSentiment":"positive"}`),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.UpsertResult("exec-1", result); err != nil {
		t.Fatal(err)
	}

	// Upsert by pipeline type replaces, never duplicates
	result.Payload = []byte(`{"overallSentiment":"neutral"}`)
	if err := s.UpsertResult("exec-1", result); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetExecution("exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.FinalResults) != 1 {
		t.Fatalf("FinalResults count = %d, want 1", len(got.FinalResults))
	}
	if string(got.FinalResults[0].Payload) != `{"overallSentiment":"neutral"}` {
		t.Errorf("payload not upserted: %s", got.FinalResults[0].Payload)
	}

	if err := s.TransitionExecution("exec-1", domain.ExecutionCompleted, ""); err != nil {
		t.Fatal(err)
	}

	got, _ = s.GetExecution("exec-1")
	if got.Status != domain.ExecutionCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
}

func TestStore_TerminalExecutionRejectsWrites(t *testing.T) {
	s := newTestStore(t)

	exec := &domain.BatchExecution{
		ID: "exec-1", ProjectID: "proj-1",
		ExecutedAt: time.Now().UTC(), Status: domain.ExecutionRunning,
	}
	s.CreateExecution(exec)
	if err := s.TransitionExecution("exec-1", domain.ExecutionFailed, "prompt set missing"); err != nil {
		t.Fatal(err)
	}

	// No reverse or repeat transitions
	if err := s.TransitionExecution("exec-1", domain.ExecutionCompleted, ""); !errors.Is(err, ErrTerminal) {
		t.Errorf("second transition error = %v, want ErrTerminal", err)
	}

	// No result writes once terminal
	err := s.UpsertResult("exec-1", domain.BatchResult{
		PipelineType: domain.PipelineSentiment,
		Payload:      []byte(`{}`),
		CreatedAt:    time.Now().UTC(),
	})
	if !errors.Is(err, ErrTerminal) {
		t.Errorf("UpsertResult on terminal error = %v, want ErrTerminal", err)
	}

	if err := s.TransitionExecution("missing", domain.ExecutionCompleted, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("TransitionExecution(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_TransitionRejectsNonTerminal(t *testing.T) {
	s := newTestStore(t)
	if err := s.TransitionExecution("x", domain.ExecutionRunning, ""); err == nil {
		t.Error("expected error transitioning to running")
	}
}

func TestStore_ListExecutionsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().UTC()
	for i, id := range []string{"exec-old", "exec-new"} {
		s.CreateExecution(&domain.BatchExecution{
			ID: id, ProjectID: "proj-1",
			ExecutedAt: base.Add(time.Duration(i) * time.Minute),
			Status:     domain.ExecutionRunning,
		})
	}
	s.CreateExecution(&domain.BatchExecution{
		ID: "exec-other", ProjectID: "proj-2",
		ExecutedAt: base, Status: domain.ExecutionRunning,
	})

	execs, err := s.ListExecutions("proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 2 {
		t.Fatalf("count = %d, want 2", len(execs))
	}
	if execs[0].ID != "exec-new" {
		t.Errorf("first = %s, want exec-new", execs[0].ID)
	}
}

func TestStore_RawResponsesRoundTrip(t *testing.T) {
	s := newTestStore(t)

	responses := []domain.RawResponse{
		{
			ProjectID: "proj-1", PipelineType: domain.PipelineSpontaneous,
			PromptIndex: 0, Provider: "openai", Model: "gpt-4o", RunIndex: 0,
			ResponseText: "answer a", Mentioned: true,
			TopOfMind: []string{"Acme", "Globex"},
			Citations: []string{"https://example.com/x"}, UsedWebSearch: true,
		},
		{
			ProjectID: "proj-1", PipelineType: domain.PipelineSpontaneous,
			PromptIndex: 1, Provider: "openai", Model: "gpt-4o", RunIndex: 0,
			Error: "provider timeout",
		},
		{
			ProjectID: "proj-1", PipelineType: domain.PipelineSpontaneous,
			PromptIndex: 2, Provider: "openai", Model: "gpt-4o", RunIndex: 0,
			ResponseText: "not json", Malformed: true,
		},
	}
	if err := s.SaveRawResponses("exec-1", responses); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListRawResponses("exec-1", domain.PipelineSpontaneous)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("count = %d, want 3", len(got))
	}
	if !got[0].Mentioned || len(got[0].TopOfMind) != 2 || !got[0].UsedWebSearch {
		t.Errorf("extracted fields lost: %+v", got[0])
	}
	if got[1].Error != "provider timeout" {
		t.Errorf("Error = %q, want provider timeout", got[1].Error)
	}
	if !got[2].Malformed {
		t.Error("malformed flag lost")
	}
}

// Two model slots answered by the same fallback are distinct rows: the
// slot identity keys the row, the answering model rides alongside.
func TestStore_RawResponsesSharedFallbackKeepsBothSlots(t *testing.T) {
	s := newTestStore(t)

	responses := []domain.RawResponse{
		{
			ProjectID: "proj-1", PipelineType: domain.PipelineSentiment,
			PromptIndex: 0, Provider: "openai", Model: "gpt-4o", RunIndex: 0,
			AnsweredProvider: "openai", AnsweredModel: "gpt-4o-mini",
			ResponseText: "slot A via fallback", Sentiment: domain.SentimentPositive,
		},
		{
			ProjectID: "proj-1", PipelineType: domain.PipelineSentiment,
			PromptIndex: 0, Provider: "openai", Model: "gpt-4.1", RunIndex: 0,
			AnsweredProvider: "openai", AnsweredModel: "gpt-4o-mini",
			ResponseText: "slot B via fallback", Sentiment: domain.SentimentNegative,
		},
	}
	if err := s.SaveRawResponses("exec-1", responses); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListRawResponses("exec-1", domain.PipelineSentiment)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("count = %d, want 2 rows, one per slot", len(got))
	}
	for _, r := range got {
		if r.AnsweredModel != "gpt-4o-mini" {
			t.Errorf("AnsweredModel = %q, want gpt-4o-mini", r.AnsweredModel)
		}
	}
	if got[0].Model == got[1].Model {
		t.Errorf("both rows carry slot %q, want distinct slots", got[0].Model)
	}
}

func TestStore_ReportRoundTrip(t *testing.T) {
	s := newTestStore(t)

	r := &domain.Report{
		ID:               "rep-1",
		ProjectID:        "proj-1",
		BatchExecutionID: "exec-1",
		GeneratedAt:      time.Now().UTC(),
		Results: []domain.BatchResult{
			{PipelineType: domain.PipelineSpontaneous, Payload: []byte(`{"mentionRate":0.5}`), CreatedAt: time.Now().UTC()},
		},
	}
	if err := s.SaveReport(r); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetReport("rep-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Results) != 1 || got.Results[0].PipelineType != domain.PipelineSpontaneous {
		t.Errorf("Results = %+v", got.Results)
	}

	// Reports are insert-only; saving the same ID again must fail
	if err := s.SaveReport(r); err == nil {
		t.Error("expected error re-saving report with same ID")
	}

	list, err := s.ListReports("proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("ListReports count = %d, want 1", len(list))
	}
}
