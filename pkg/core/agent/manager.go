package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/llm"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
)

// Roles the pipeline routes to a provider.
const (
	RoleStructurer     = "structurer"
	RoleVerifier       = "verifier"
	RoleUnitClassifier = "unit_classifier"
)

type Config struct {
	ActiveProvider string                 `yaml:"active_provider"`
	Agents         map[string]AgentConfig `yaml:"agents"`
}

type AgentConfig struct {
	Provider    string   `yaml:"provider"` // Optional override
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	Description string   `yaml:"description"`
}

type Manager struct {
	config    Config
	providers map[string]llm.Provider
}

// NewManager routes roles over an explicit provider set.
func NewManager(config Config, providers map[string]llm.Provider) *Manager {
	return &Manager{config: config, providers: providers}
}

// NewManagerFromSettings builds every provider the config references, using
// settings[name] for credentials and endpoints.
func NewManagerFromSettings(config Config, settings map[string]llm.Settings) (*Manager, error) {
	names := map[string]bool{config.ActiveProvider: true}
	for _, a := range config.Agents {
		if a.Provider != "" {
			names[a.Provider] = true
		}
	}
	providers := make(map[string]llm.Provider, len(names))
	for name := range names {
		if name == "" {
			continue
		}
		p, err := llm.NewProvider(name, settings[name])
		if err != nil {
			return nil, err
		}
		providers[name] = p
	}
	return NewManager(config, providers), nil
}

// GetProvider resolves a role: agent override first, then the active provider.
func (m *Manager) GetProvider(role string) (llm.Provider, error) {
	if agentConfig, ok := m.config.Agents[role]; ok && agentConfig.Provider != "" {
		if p, ok := m.providers[agentConfig.Provider]; ok {
			return p, nil
		}
		return nil, fmt.Errorf("provider %s for role %s not configured", agentConfig.Provider, role)
	}
	if p, ok := m.providers[m.config.ActiveProvider]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no provider for role %s (active=%q, known=%v)", role, m.config.ActiveProvider, m.providerNames())
}

func (m *Manager) providerNames() []string {
	names := make([]string, 0, len(m.providers))
	for k := range m.providers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ExecutePrompt handles instruction adaptation before sending to the model
func (m *Manager) ExecutePrompt(ctx context.Context, role string, rawPrompt string, rawSystemPrompt string, options map[string]interface{}) (string, error) {
	provider, err := m.GetProvider(role)
	if err != nil {
		return "", err
	}

	opts := make(map[string]interface{}, len(options)+2)
	if ac, ok := m.config.Agents[role]; ok {
		if ac.Model != "" {
			opts["model"] = ac.Model
		}
		if ac.Temperature != nil {
			opts["temperature"] = *ac.Temperature
		}
	}
	for k, v := range options {
		opts[k] = v
	}

	logger.FromContext(ctx).Debug("executing prompt", "role", role, "provider", fmt.Sprintf("%T", provider))

	adaptedSystemPrompt := provider.AdaptInstructions(rawSystemPrompt)
	return provider.GenerateResponse(ctx, rawPrompt, adaptedSystemPrompt, opts)
}

func (m *Manager) GetActiveProvider() string {
	return m.config.ActiveProvider
}

// Generator returns a role-bound adapter exposing Generate(ctx, system, user).
func (m *Manager) Generator(role string) *RoleGenerator {
	return &RoleGenerator{manager: m, role: role}
}

// RoleGenerator sends every request to the provider routed for one role and
// always asks for JSON output.
type RoleGenerator struct {
	manager *Manager
	role    string
}

func (g *RoleGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.manager.ExecutePrompt(ctx, g.role, userPrompt, systemPrompt, map[string]interface{}{"json": true})
}

// Role reports the routed role.
func (g *RoleGenerator) Role() string {
	return g.role
}
