package store

import (
	"fmt"
	"time"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// ReplacePromptSet replaces a project's entire prompt set in one
// transaction and bumps the version. Prompt sets are immutable once
// generated; regeneration is always wholesale.
func (s *Store) ReplacePromptSet(projectID string, prompts map[domain.PipelineType][]string) (*domain.PromptSet, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRow(`
		SELECT COALESCE(MAX(version), 0) FROM prompt_sets WHERE project_id = ?
	`, projectID).Scan(&version)
	if err != nil {
		return nil, err
	}
	version++

	if _, err := tx.Exec(`DELETE FROM prompt_sets WHERE project_id = ?`, projectID); err != nil {
		return nil, err
	}

	generatedAt := time.Now().UTC()
	for pt, list := range prompts {
		for i, prompt := range list {
			_, err := tx.Exec(`
				INSERT INTO prompt_sets (project_id, version, generated_at, pipeline_type, idx, prompt)
				VALUES (?, ?, ?, ?, ?, ?)
			`, projectID, version, generatedAt, string(pt), i, prompt)
			if err != nil {
				return nil, fmt.Errorf("insert prompt %s[%d]: %w", pt, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.PromptSet{
		ProjectID:   projectID,
		Version:     version,
		GeneratedAt: generatedAt,
		Prompts:     prompts,
	}, nil
}

// GetPromptSet retrieves a project's current prompt set
func (s *Store) GetPromptSet(projectID string) (*domain.PromptSet, error) {
	rows, err := s.db.Query(`
		SELECT version, generated_at, pipeline_type, idx, prompt
		FROM prompt_sets WHERE project_id = ?
		ORDER BY pipeline_type, idx
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := &domain.PromptSet{
		ProjectID: projectID,
		Prompts:   make(map[domain.PipelineType][]string),
	}
	found := false
	for rows.Next() {
		var pt, prompt string
		var idx int
		if err := rows.Scan(&set.Version, &set.GeneratedAt, &pt, &idx, &prompt); err != nil {
			return nil, err
		}
		found = true
		set.Prompts[domain.PipelineType(pt)] = append(set.Prompts[domain.PipelineType(pt)], prompt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return set, nil
}
