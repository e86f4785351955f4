package prompt

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds loaded prompts. Each pipeline owns its own instance.
type Registry struct {
	prompts map[string]*PromptTemplate
	mu      sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{prompts: make(map[string]*PromptTemplate)}
}

// Default returns a registry preloaded with the embedded prompts.
func Default() (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadFS(embedded, embeddedRoot); err != nil {
		return nil, fmt.Errorf("failed to load embedded prompts: %w", err)
	}
	return r, nil
}

// Register adds or replaces a prompt template.
func (r *Registry) Register(pt *PromptTemplate) error {
	if pt.ID == "" {
		return fmt.Errorf("prompt ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prompts[pt.ID] = pt
	return nil
}

func (r *Registry) GetPrompt(id string) (*PromptTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.prompts[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("prompt not found: %s", id)
}

// Render returns the system prompt and the rendered user prompt for id.
func (r *Registry) Render(id string, vars Vars) (string, string, error) {
	pt, err := r.GetPrompt(id)
	if err != nil {
		return "", "", err
	}
	user, err := RenderUserPrompt(pt, vars)
	if err != nil {
		return "", "", fmt.Errorf("render %s: %w", id, err)
	}
	return pt.SystemPrompt, user, nil
}

// Require fails if any of ids is not registered.
func (r *Registry) Require(ids ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, id := range ids {
		if _, ok := r.prompts[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing prompts: %v", missing)
	}
	return nil
}

// ListByCategory returns the prompts of one category ordered by ID.
func (r *Registry) ListByCategory(category string) []*PromptTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*PromptTemplate
	for _, pt := range r.prompts {
		if pt.Category == category {
			result = append(result, pt)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prompts)
}
