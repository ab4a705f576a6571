package domain

import "time"

// BatchEvent is an ephemeral state-transition notification pushed to
// subscribers. It is not primary state; durable readers must consult the
// persisted BatchExecution instead.
type BatchEvent struct {
	BatchExecutionID string       `json:"batchExecutionId"`
	ProjectID        string       `json:"projectId"`
	ProjectName      string       `json:"projectName"`
	EventType        EventType    `json:"eventType"`
	PipelineType     PipelineType `json:"pipelineType,omitempty"`
	Message          string       `json:"message"`
	Timestamp        time.Time    `json:"timestamp"`
	Progress         *int         `json:"progress,omitempty"` // 0-100
	Error            string       `json:"error,omitempty"`
}

// WithProgress returns a copy of the event with progress set
func (e BatchEvent) WithProgress(p int) BatchEvent {
	e.Progress = &p
	return e
}
