package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownProvider is returned when no client is registered for a name
var ErrUnknownProvider = errors.New("unknown provider")

// Request is one completion request to a language-model provider
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
}

// Completion is the provider's raw answer plus call metadata. Metadata is
// passed through unmodified when the provider supplies it.
type Completion struct {
	Text          string
	Citations     []string
	ToolUsage     []string
	UsedWebSearch bool
}

// Client issues completion calls against one provider. Implementations
// must honor context cancellation and deadlines.
type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Registry resolves provider names to clients
type Registry struct {
	clients map[string]Client
}

// NewRegistry creates a registry with the given named clients
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client under a provider name
func (r *Registry) Register(name string, c Client) {
	r.clients[name] = c
}

// ForProvider returns the client registered under name
func (r *Registry) ForProvider(name string) (Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return c, nil
}
