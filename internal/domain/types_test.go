package domain

import "testing"

func TestExecutionStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to ExecutionStatus
		want     bool
	}{
		{ExecutionRunning, ExecutionCompleted, true},
		{ExecutionRunning, ExecutionFailed, true},
		{ExecutionRunning, ExecutionRunning, false},
		{ExecutionCompleted, ExecutionFailed, false},
		{ExecutionCompleted, ExecutionRunning, false},
		{ExecutionFailed, ExecutionCompleted, false},
		{ExecutionFailed, ExecutionRunning, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestExecutionStatus_Terminal(t *testing.T) {
	if ExecutionRunning.Terminal() {
		t.Error("running should not be terminal")
	}
	if !ExecutionCompleted.Terminal() {
		t.Error("completed should be terminal")
	}
	if !ExecutionFailed.Terminal() {
		t.Error("failed should be terminal")
	}
}

func TestPipelineType_Valid(t *testing.T) {
	for _, pt := range AllPipelineTypes {
		if !pt.Valid() {
			t.Errorf("%s should be valid", pt)
		}
	}
	if PipelineFull.Valid() {
		t.Error("full is an event-only type, not runnable")
	}
	if PipelineType("unknown").Valid() {
		t.Error("unknown type should not be valid")
	}
}

func TestBatchExecution_Result(t *testing.T) {
	exec := &BatchExecution{
		FinalResults: []BatchResult{
			{PipelineType: PipelineSentiment, Payload: []byte(`{}`)},
		},
	}

	if exec.Result(PipelineSentiment) == nil {
		t.Error("expected sentiment result")
	}
	if exec.Result(PipelineComparison) != nil {
		t.Error("expected no comparison result")
	}
}
