package domain

import "time"

// BatchExecution is one orchestrated run of one or more pipeline types
// for a project. It is owned exclusively by the orchestration run that
// created it until persisted; thereafter it is read-mostly.
type BatchExecution struct {
	ID           string
	ProjectID    string
	ExecutedAt   time.Time
	Status       ExecutionStatus
	Error        string
	FinalResults []BatchResult
}

// Result returns the result for the given pipeline type, if present
func (e *BatchExecution) Result(t PipelineType) *BatchResult {
	for i := range e.FinalResults {
		if e.FinalResults[i].PipelineType == t {
			return &e.FinalResults[i]
		}
	}
	return nil
}

// BatchResult holds the serialized summary for one pipeline type.
// At most one entry per pipeline type exists per execution; a single-type
// re-run upserts by pipeline type, never duplicates.
type BatchResult struct {
	PipelineType PipelineType
	Payload      []byte // JSON-encoded pipeline summary
	CreatedAt    time.Time
}

// AttributeScore is one normalized accuracy judgment for an attribute by a model
type AttributeScore struct {
	Attribute string  `json:"attribute"`
	Model     string  `json:"model"`
	Score     float64 `json:"score"` // normalized to [0,1]
}

// RawResponse is a single raw provider call outcome plus its extracted
// structured fields. Identity within an execution is
// (PipelineType, PromptIndex, Provider/Model, RunIndex), where
// Provider/Model name the enabled model slot the call was issued for.
// The slot identity never changes on failover, so two slots sharing a
// fallback keep distinct rows in the raw log.
type RawResponse struct {
	ProjectID    string
	PipelineType PipelineType
	PromptIndex  int
	RunIndex     int

	// Provider and Model are the slot identity: the enabled model the
	// call was issued for, regardless of which model answered
	Provider string
	Model    string

	// AnsweredProvider and AnsweredModel identify the model that
	// actually produced the response. They differ from the slot when
	// the fallback answered; both are empty when no call succeeded.
	AnsweredProvider string
	AnsweredModel    string

	ResponseText string

	// Extracted fields; which are meaningful depends on PipelineType
	Mentioned       bool
	TopOfMind       []string
	Sentiment       string
	Accuracy        float64
	Winner          string
	Differentiators []string
	AttributeScores []AttributeScore

	// Provider metadata, passed through unmodified when supplied
	Citations     []string
	ToolUsage     []string
	UsedWebSearch bool

	// Error is set when both primary and fallback calls failed.
	// Extracted fields then carry pipeline-neutral defaults.
	Error string

	// Malformed marks a response whose structured payload could not be
	// parsed. The item is kept in the raw log but excluded from
	// aggregation denominators.
	Malformed bool
}
