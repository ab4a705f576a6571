package store

import (
	"database/sql"
	"encoding/json"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// UpsertProject inserts or updates a project record
func (s *Store) UpsertProject(p *domain.Project) error {
	competitors, err := json.Marshal(p.Competitors)
	if err != nil {
		return err
	}
	models, err := json.Marshal(p.EnabledModels)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO projects (id, name, brand, competitors, enabled_models)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			brand = excluded.brand,
			competitors = excluded.competitors,
			enabled_models = excluded.enabled_models
	`, p.ID, p.Name, p.Brand, string(competitors), string(models))
	return err
}

// GetProject retrieves a project by ID
func (s *Store) GetProject(id string) (*domain.Project, error) {
	row := s.db.QueryRow(`
		SELECT id, name, brand, competitors, enabled_models
		FROM projects WHERE id = ?
	`, id)
	return scanProject(row)
}

// ListProjects returns all projects ordered by name
func (s *Store) ListProjects() ([]*domain.Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, brand, competitors, enabled_models
		FROM projects ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var p domain.Project
	var competitors, models string

	err := row.Scan(&p.ID, &p.Name, &p.Brand, &competitors, &models)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(competitors), &p.Competitors); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(models), &p.EnabledModels); err != nil {
		return nil, err
	}
	return &p, nil
}
