package domain

// PipelineType identifies one of the four analysis kinds
type PipelineType string

const (
	PipelineSpontaneous PipelineType = "spontaneous"
	PipelineSentiment   PipelineType = "sentiment"
	PipelineComparison  PipelineType = "comparison"
	PipelineAccuracy    PipelineType = "accuracy"

	// PipelineFull is only valid in batch-level events, never as a runnable type
	PipelineFull PipelineType = "full"
)

// AllPipelineTypes lists the runnable pipeline types in dispatch order
var AllPipelineTypes = []PipelineType{
	PipelineSpontaneous,
	PipelineSentiment,
	PipelineComparison,
	PipelineAccuracy,
}

// Valid reports whether t is a runnable pipeline type
func (t PipelineType) Valid() bool {
	switch t {
	case PipelineSpontaneous, PipelineSentiment, PipelineComparison, PipelineAccuracy:
		return true
	}
	return false
}

// ExecutionStatus represents the lifecycle state of a batch execution
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status accepts no further transitions
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// CanTransition reports whether s may move to next.
// The only legal transitions are running→completed and running→failed.
func (s ExecutionStatus) CanTransition(next ExecutionStatus) bool {
	return s == ExecutionRunning && next.Terminal()
}

// Sentiment labels for the sentiment pipeline
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// EventType identifies a batch event on the bus
type EventType string

const (
	EventBatchStarted      EventType = "batch_started"
	EventPipelineStarted   EventType = "pipeline_started"
	EventPipelineProgress  EventType = "pipeline_progress"
	EventPipelineCompleted EventType = "pipeline_completed"
	EventPipelineFailed    EventType = "pipeline_failed"
	EventBatchCompleted    EventType = "batch_completed"
	EventBatchFailed       EventType = "batch_failed"
	EventPromptSetReady    EventType = "promptset_ready"
)
