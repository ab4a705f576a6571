package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// CreateExecution persists a new batch execution in running state
func (s *Store) CreateExecution(exec *domain.BatchExecution) error {
	_, err := s.db.Exec(`
		INSERT INTO batch_executions (id, project_id, executed_at, status, error)
		VALUES (?, ?, ?, ?, ?)
	`, exec.ID, exec.ProjectID, exec.ExecutedAt, string(exec.Status), exec.Error)
	return err
}

// TransitionExecution moves an execution from running to a terminal
// status. The WHERE clause enforces the forward-only state machine: a
// terminal execution accepts no further transition.
func (s *Store) TransitionExecution(id string, status domain.ExecutionStatus, errMsg string) error {
	if !status.Terminal() {
		return fmt.Errorf("cannot transition to non-terminal status %q", status)
	}

	res, err := s.db.Exec(`
		UPDATE batch_executions SET status = ?, error = ?
		WHERE id = ? AND status = ?
	`, string(status), errMsg, id, string(domain.ExecutionRunning))
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var current string
		err := s.db.QueryRow(`SELECT status FROM batch_executions WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: status is %s", ErrTerminal, current)
	}
	return nil
}

// UpsertResult writes one pipeline's summary, keyed by
// (execution, pipelineType). A single-pipeline re-run replaces the prior
// entry instead of duplicating it. Writes against terminal executions
// are rejected.
func (s *Store) UpsertResult(executionID string, result domain.BatchResult) error {
	var status string
	err := s.db.QueryRow(`SELECT status FROM batch_executions WHERE id = ?`, executionID).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if domain.ExecutionStatus(status).Terminal() {
		return fmt.Errorf("%w: status is %s", ErrTerminal, status)
	}

	_, err = s.db.Exec(`
		INSERT INTO batch_results (execution_id, pipeline_type, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(execution_id, pipeline_type) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at
	`, executionID, string(result.PipelineType), string(result.Payload), result.CreatedAt)
	return err
}

// GetExecution retrieves an execution with its results
func (s *Store) GetExecution(id string) (*domain.BatchExecution, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, executed_at, status, error
		FROM batch_executions WHERE id = ?
	`, id)

	var exec domain.BatchExecution
	var status string
	err := row.Scan(&exec.ID, &exec.ProjectID, &exec.ExecutedAt, &status, &exec.Error)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	exec.Status = domain.ExecutionStatus(status)

	results, err := s.resultsFor(id)
	if err != nil {
		return nil, err
	}
	exec.FinalResults = results
	return &exec, nil
}

// ListExecutions returns a project's executions, newest first
func (s *Store) ListExecutions(projectID string) ([]*domain.BatchExecution, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, executed_at, status, error
		FROM batch_executions
		WHERE project_id = ?
		ORDER BY executed_at DESC, id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*domain.BatchExecution
	for rows.Next() {
		var exec domain.BatchExecution
		var status string
		if err := rows.Scan(&exec.ID, &exec.ProjectID, &exec.ExecutedAt, &status, &exec.Error); err != nil {
			return nil, err
		}
		exec.Status = domain.ExecutionStatus(status)
		execs = append(execs, &exec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, exec := range execs {
		results, err := s.resultsFor(exec.ID)
		if err != nil {
			return nil, err
		}
		exec.FinalResults = results
	}
	return execs, nil
}

func (s *Store) resultsFor(executionID string) ([]domain.BatchResult, error) {
	rows, err := s.db.Query(`
		SELECT pipeline_type, payload, created_at
		FROM batch_results
		WHERE execution_id = ?
		ORDER BY pipeline_type
	`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.BatchResult
	for rows.Next() {
		var r domain.BatchResult
		var pt, payload string
		var createdAt time.Time
		if err := rows.Scan(&pt, &payload, &createdAt); err != nil {
			return nil, err
		}
		r.PipelineType = domain.PipelineType(pt)
		r.Payload = []byte(payload)
		r.CreatedAt = createdAt
		results = append(results, r)
	}
	return results, rows.Err()
}
