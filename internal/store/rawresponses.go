package store

import (
	"encoding/json"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// extractedFields is the JSON column holding the structured part of a
// raw response. The identity columns stay relational for the uniqueness
// constraint; everything else travels as one document.
type extractedFields struct {
	Mentioned       bool                    `json:"mentioned,omitempty"`
	TopOfMind       []string                `json:"topOfMind,omitempty"`
	Sentiment       string                  `json:"sentiment,omitempty"`
	Accuracy        float64                 `json:"accuracy,omitempty"`
	Winner          string                  `json:"winner,omitempty"`
	Differentiators []string                `json:"differentiators,omitempty"`
	AttributeScores []domain.AttributeScore `json:"attributeScores,omitempty"`
	Citations       []string                `json:"citations,omitempty"`
	ToolUsage       []string                `json:"toolUsage,omitempty"`
	UsedWebSearch   bool                    `json:"usedWebSearch,omitempty"`
}

// SaveRawResponses persists a pipeline's raw responses in one
// transaction. Every response is kept, including error-bearing and
// malformed ones: the raw log is the audit trail.
func (s *Store) SaveRawResponses(executionID string, responses []domain.RawResponse) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range responses {
		extracted, err := json.Marshal(extractedFields{
			Mentioned:       r.Mentioned,
			TopOfMind:       r.TopOfMind,
			Sentiment:       r.Sentiment,
			Accuracy:        r.Accuracy,
			Winner:          r.Winner,
			Differentiators: r.Differentiators,
			AttributeScores: r.AttributeScores,
			Citations:       r.Citations,
			ToolUsage:       r.ToolUsage,
			UsedWebSearch:   r.UsedWebSearch,
		})
		if err != nil {
			return err
		}

		malformed := 0
		if r.Malformed {
			malformed = 1
		}

		_, err = tx.Exec(`
			INSERT INTO raw_responses
				(execution_id, pipeline_type, prompt_index, provider, model, run_index,
				 answered_provider, answered_model, response_text, extracted, error, malformed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(execution_id, pipeline_type, prompt_index, provider, model, run_index)
			DO UPDATE SET
				answered_provider = excluded.answered_provider,
				answered_model = excluded.answered_model,
				response_text = excluded.response_text,
				extracted = excluded.extracted,
				error = excluded.error,
				malformed = excluded.malformed
		`, executionID, string(r.PipelineType), r.PromptIndex, r.Provider, r.Model, r.RunIndex,
			r.AnsweredProvider, r.AnsweredModel, r.ResponseText, string(extracted), r.Error, malformed)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListRawResponses returns an execution's raw responses for one pipeline
// type in deterministic (promptIndex, provider, model, runIndex) order.
func (s *Store) ListRawResponses(executionID string, t domain.PipelineType) ([]domain.RawResponse, error) {
	rows, err := s.db.Query(`
		SELECT pipeline_type, prompt_index, provider, model, run_index,
		       answered_provider, answered_model, response_text, extracted, error, malformed
		FROM raw_responses
		WHERE execution_id = ? AND pipeline_type = ?
		ORDER BY prompt_index, provider, model, run_index
	`, executionID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []domain.RawResponse
	for rows.Next() {
		var r domain.RawResponse
		var pt, extracted string
		var malformed int
		if err := rows.Scan(&pt, &r.PromptIndex, &r.Provider, &r.Model, &r.RunIndex,
			&r.AnsweredProvider, &r.AnsweredModel,
			&r.ResponseText, &extracted, &r.Error, &malformed); err != nil {
			return nil, err
		}
		r.PipelineType = domain.PipelineType(pt)
		r.Malformed = malformed != 0

		var fields extractedFields
		if err := json.Unmarshal([]byte(extracted), &fields); err != nil {
			return nil, err
		}
		r.Mentioned = fields.Mentioned
		r.TopOfMind = fields.TopOfMind
		r.Sentiment = fields.Sentiment
		r.Accuracy = fields.Accuracy
		r.Winner = fields.Winner
		r.Differentiators = fields.Differentiators
		r.AttributeScores = fields.AttributeScores
		r.Citations = fields.Citations
		r.ToolUsage = fields.ToolUsage
		r.UsedWebSearch = fields.UsedWebSearch

		responses = append(responses, r)
	}
	return responses, rows.Err()
}
