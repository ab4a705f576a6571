package report

import (
	"errors"
	"testing"
	"time"

	"github.com/brandlens/perception-orchestrator/internal/domain"
	"github.com/brandlens/perception-orchestrator/internal/notify"
	"github.com/brandlens/perception-orchestrator/internal/store"
)

type recordingNotifier struct {
	sent []notify.Notification
}

func (r *recordingNotifier) Send(n notify.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

func setup(t *testing.T, status domain.ExecutionStatus) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	exec := &domain.BatchExecution{
		ID: "exec-1", ProjectID: "proj-1",
		ExecutedAt: time.Now().UTC(), Status: domain.ExecutionRunning,
	}
	if err := st.CreateExecution(exec); err != nil {
		t.Fatal(err)
	}
	for _, pt := range []domain.PipelineType{domain.PipelineSpontaneous, domain.PipelineSentiment} {
		err := st.UpsertResult("exec-1", domain.BatchResult{
			PipelineType: pt,
			Payload:      []byte(`{"metric":1}`),
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if status != domain.ExecutionRunning {
		if err := st.TransitionExecution("exec-1", status, ""); err != nil {
			t.Fatal(err)
		}
	}
	return st
}

func TestGenerate_ManualSnapshotsAllResults(t *testing.T) {
	st := setup(t, domain.ExecutionCompleted)
	notifier := &recordingNotifier{}
	g := NewGenerator(st, notifier)

	r, err := g.Generate("exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if r.BatchExecutionID != "exec-1" || r.ProjectID != "proj-1" {
		t.Errorf("report references wrong execution: %+v", r)
	}
	if len(r.Results) != 2 {
		t.Errorf("Results count = %d, want 2", len(r.Results))
	}
	if len(notifier.sent) != 0 {
		t.Errorf("manual trigger must not notify, sent %d", len(notifier.sent))
	}

	got, err := st.GetReport(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Results) != 2 {
		t.Errorf("persisted Results count = %d, want 2", len(got.Results))
	}
}

func TestGenerate_SubsetOfTypes(t *testing.T) {
	st := setup(t, domain.ExecutionCompleted)
	g := NewGenerator(st, nil)

	r, err := g.Generate("exec-1", domain.PipelineSentiment)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Results) != 1 || r.Results[0].PipelineType != domain.PipelineSentiment {
		t.Errorf("Results = %+v, want sentiment only", r.Results)
	}
}

func TestGenerateAuto_Notifies(t *testing.T) {
	st := setup(t, domain.ExecutionCompleted)
	notifier := &recordingNotifier{}
	g := NewGenerator(st, notifier)

	r, err := g.GenerateAuto("exec-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(notifier.sent))
	}
	if notifier.sent[0].ReportID != r.ID {
		t.Errorf("notification ReportID = %q, want %q", notifier.sent[0].ReportID, r.ID)
	}
}

func TestGenerate_RejectsNonCompleted(t *testing.T) {
	st := setup(t, domain.ExecutionRunning)
	g := NewGenerator(st, nil)

	if _, err := g.Generate("exec-1"); !errors.Is(err, ErrExecutionNotCompleted) {
		t.Errorf("error = %v, want ErrExecutionNotCompleted", err)
	}
}

func TestGenerate_ImmuneToLaterReRuns(t *testing.T) {
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	st.CreateExecution(&domain.BatchExecution{
		ID: "exec-1", ProjectID: "proj-1",
		ExecutedAt: time.Now().UTC(), Status: domain.ExecutionRunning,
	})
	st.UpsertResult("exec-1", domain.BatchResult{
		PipelineType: domain.PipelineComparison,
		Payload:      []byte(`{"winRate":0.6}`),
		CreatedAt:    time.Now().UTC(),
	})
	st.TransitionExecution("exec-1", domain.ExecutionCompleted, "")

	g := NewGenerator(st, nil)
	r, err := g.Generate("exec-1")
	if err != nil {
		t.Fatal(err)
	}

	// A later run writes a fresh execution; the old report must not move
	st.CreateExecution(&domain.BatchExecution{
		ID: "exec-2", ProjectID: "proj-1",
		ExecutedAt: time.Now().UTC(), Status: domain.ExecutionRunning,
	})
	st.UpsertResult("exec-2", domain.BatchResult{
		PipelineType: domain.PipelineComparison,
		Payload:      []byte(`{"winRate":0.9}`),
		CreatedAt:    time.Now().UTC(),
	})

	got, err := st.GetReport(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Results[0].Payload) != `{"winRate":0.6}` {
		t.Errorf("report payload changed: %s", got.Results[0].Payload)
	}
}
