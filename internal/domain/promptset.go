package domain

import "time"

// PromptSet holds the ordered prompt lists for a project, one list per
// pipeline type. A set is immutable once generated and replaced wholesale
// on regeneration.
type PromptSet struct {
	ProjectID   string
	Version     int
	GeneratedAt time.Time
	Prompts     map[PipelineType][]string
}

// For returns the ordered prompts for the given pipeline type
func (p *PromptSet) For(t PipelineType) []string {
	if p == nil {
		return nil
	}
	return p.Prompts[t]
}

// Project is the minimal project record the engine needs: identity for
// events and brand context for prompt generation. Project administration
// lives outside this service.
type Project struct {
	ID            string
	Name          string
	Brand         string
	Competitors   []string
	EnabledModels []ModelRef
}

// ModelRef names a (provider, model) pair
type ModelRef struct {
	Provider string `json:"provider" toml:"provider"`
	Model    string `json:"model" toml:"model"`
}

// String returns the canonical provider/model identity
func (m ModelRef) String() string {
	return m.Provider + "/" + m.Model
}
