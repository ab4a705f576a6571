package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// TemplateMeta holds frontmatter metadata for a prompt template
type TemplateMeta struct {
	Pipeline    string `yaml:"pipeline"`
	Order       int    `yaml:"order"`
	Description string `yaml:"description"`
}

// TemplateData is the substitution context for prompt templates
type TemplateData struct {
	Brand       string
	Competitors string
}

// Generator produces a project's prompt set from markdown templates with
// YAML frontmatter. Templates in the override directory shadow embedded
// defaults with the same filename.
type Generator struct {
	overrideDir string
}

// NewGenerator creates a generator. overrideDir may be empty to use only
// the embedded defaults.
func NewGenerator(overrideDir string) *Generator {
	return &Generator{overrideDir: overrideDir}
}

type loadedTemplate struct {
	name string
	meta TemplateMeta
	body string
}

// Generate builds the ordered prompt lists for every pipeline type.
// The result replaces any previous set wholesale.
func (g *Generator) Generate(project *domain.Project) (map[domain.PipelineType][]string, error) {
	templates, err := g.loadAll()
	if err != nil {
		return nil, err
	}

	data := TemplateData{
		Brand:       project.Brand,
		Competitors: strings.Join(project.Competitors, ", "),
	}

	out := make(map[domain.PipelineType][]string)
	for _, lt := range templates {
		pt := domain.PipelineType(lt.meta.Pipeline)
		if !pt.Valid() {
			return nil, fmt.Errorf("template %s: unknown pipeline %q", lt.name, lt.meta.Pipeline)
		}

		tmpl, err := template.New(lt.name).Parse(lt.body)
		if err != nil {
			return nil, fmt.Errorf("compile template %s: %w", lt.name, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("execute template %s: %w", lt.name, err)
		}

		prompt := strings.TrimSpace(buf.String())
		if prompt == "" {
			continue
		}
		out[pt] = append(out[pt], prompt)
	}

	for _, pt := range domain.AllPipelineTypes {
		if len(out[pt]) == 0 {
			return nil, fmt.Errorf("no prompt templates for pipeline %s", pt)
		}
	}

	return out, nil
}

// loadAll returns all templates ordered by (pipeline, order, filename)
func (g *Generator) loadAll() ([]loadedTemplate, error) {
	byName := make(map[string][]byte)

	entries, err := fs.ReadDir(embeddedFS, "templates")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		data, err := fs.ReadFile(embeddedFS, filepath.Join("templates", entry.Name()))
		if err != nil {
			return nil, err
		}
		byName[entry.Name()] = data
	}

	// Override directory shadows embedded defaults by filename
	if g.overrideDir != "" {
		overrides, err := os.ReadDir(g.overrideDir)
		if err == nil {
			for _, entry := range overrides {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
					continue
				}
				data, err := os.ReadFile(filepath.Join(g.overrideDir, entry.Name()))
				if err != nil {
					return nil, err
				}
				byName[entry.Name()] = data
			}
		}
	}

	var templates []loadedTemplate
	for name, content := range byName {
		meta, body, err := parseFrontmatter(content)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if meta == nil {
			return nil, fmt.Errorf("template %s has no frontmatter", name)
		}
		templates = append(templates, loadedTemplate{name: name, meta: *meta, body: body})
	}

	sort.Slice(templates, func(i, j int) bool {
		a, b := templates[i], templates[j]
		if a.meta.Pipeline != b.meta.Pipeline {
			return a.meta.Pipeline < b.meta.Pipeline
		}
		if a.meta.Order != b.meta.Order {
			return a.meta.Order < b.meta.Order
		}
		return a.name < b.name
	})

	return templates, nil
}

// parseFrontmatter splits content into frontmatter and body
func parseFrontmatter(content []byte) (*TemplateMeta, string, error) {
	str := string(content)

	if !strings.HasPrefix(str, "---\n") {
		return nil, str, nil
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return nil, str, nil
	}

	frontmatter := str[4 : 4+end]
	body := str[4+end+5:]

	var meta TemplateMeta
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}

	return &meta, body, nil
}
