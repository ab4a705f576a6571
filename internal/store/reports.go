package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

type storedResult struct {
	PipelineType string          `json:"pipelineType"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// SaveReport persists a frozen report snapshot. Reports are insert-only;
// there is deliberately no update path.
func (s *Store) SaveReport(r *domain.Report) error {
	stored := make([]storedResult, 0, len(r.Results))
	for _, res := range r.Results {
		stored = append(stored, storedResult{
			PipelineType: string(res.PipelineType),
			Payload:      json.RawMessage(res.Payload),
			CreatedAt:    res.CreatedAt,
		})
	}
	results, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO reports (id, project_id, execution_id, generated_at, results)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.ProjectID, r.BatchExecutionID, r.GeneratedAt, string(results))
	return err
}

// GetReport retrieves a report by ID
func (s *Store) GetReport(id string) (*domain.Report, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, execution_id, generated_at, results
		FROM reports WHERE id = ?
	`, id)
	return scanReport(row)
}

// ListReports returns a project's reports, newest first
func (s *Store) ListReports(projectID string) ([]*domain.Report, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, execution_id, generated_at, results
		FROM reports
		WHERE project_id = ?
		ORDER BY generated_at DESC, id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func scanReport(row rowScanner) (*domain.Report, error) {
	var r domain.Report
	var results string

	err := row.Scan(&r.ID, &r.ProjectID, &r.BatchExecutionID, &r.GeneratedAt, &results)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var stored []storedResult
	if err := json.Unmarshal([]byte(results), &stored); err != nil {
		return nil, err
	}
	for _, sr := range stored {
		r.Results = append(r.Results, domain.BatchResult{
			PipelineType: domain.PipelineType(sr.PipelineType),
			Payload:      []byte(sr.Payload),
			CreatedAt:    sr.CreatedAt,
		})
	}
	return &r, nil
}
