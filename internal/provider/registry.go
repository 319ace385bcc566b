package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dexto-ai/dexto-core/pkg/types"
)

// ProviderConfig is the Go-native shape of one entry in the "providers"
// section of the Core's configuration, generalized from the single
// "llm: {provider, model, apiKey, ...}" selection into a pool the Registry
// can pick from by name. It replaces the flat `types.ProviderConfig`,
// which carried TUI/TypeScript-compatibility fields (`Options`, `Whitelist`)
// this module has no front-end to serve.
type ProviderConfig struct {
	// Npm names the provider backend to construct: one of NpmAnthropic,
	// NpmOpenAI, NpmOpenAICompatible, or empty to infer from the map key
	// (e.g. "anthropic", "openai", "ark").
	Npm       string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Disable   bool
}

// Registry manages all available providers.
type Registry struct {
	mu           sync.RWMutex
	providers    map[string]Provider
	defaultModel string // "provider/model", mirrors the config llm.model field
	log          zerolog.Logger
}

// NewRegistry creates a new provider registry. defaultModel, if non-empty,
// is the "provider/model" string DefaultModel prefers.
func NewRegistry(defaultModel string, log zerolog.Logger) *Registry {
	return &Registry{
		providers:    make(map[string]Provider),
		defaultModel: defaultModel,
		log:          log.With().Str("component", "provider_registry").Logger(),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all available providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, model := range provider.Models() {
		if model.ID == modelID {
			return &model, nil
		}
	}

	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns all models from all providers.
func (r *Registry) AllModels() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []types.Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}

	// Sort by quality/priority
	sort.Slice(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})

	return models
}

// DefaultModel returns the default model.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.defaultModel != "" {
		providerID, modelID := ParseModelString(r.defaultModel)
		return r.GetModel(providerID, modelID)
	}

	// Default to Claude Sonnet if available
	model, err := r.GetModel("anthropic", "claude-sonnet-4-20250514")
	if err == nil {
		return model, nil
	}

	// Fall back to first available model
	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// modelPriority returns sorting priority for models.
func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gpt-5"):
		return 100
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "claude-3-5"):
		return 75
	case strings.Contains(modelID, "gemini-2"):
		return 70
	default:
		return 50
	}
}

// Npm package to provider type mapping
const (
	NpmOpenAI           = "@ai-sdk/openai"
	NpmOpenAICompatible = "@ai-sdk/openai-compatible"
	NpmAnthropic        = "@ai-sdk/anthropic"
)

// InitializeProviders builds a Registry from the Core-native provider pool
// (keyed by provider name, e.g. "anthropic", "openai", "ark"), falling back
// to ANTHROPIC_API_KEY/OPENAI_API_KEY for any provider name not already
// present in providers, matching the original auto-registration behavior.
func InitializeProviders(ctx context.Context, providers map[string]ProviderConfig, defaultModel string, log zerolog.Logger) (*Registry, error) {
	registry := NewRegistry(defaultModel, log)

	configuredProviders := make(map[string]bool)

	for name, cfg := range providers {
		if cfg.Disable {
			continue
		}

		configuredProviders[name] = true

		npm := cfg.Npm
		if npm == "" {
			npm = inferNpmFromProviderName(name)
		}

		maxTokens := cfg.MaxTokens

		var p Provider
		var err error

		switch npm {
		case NpmAnthropic:
			if cfg.APIKey != "" {
				if maxTokens == 0 {
					maxTokens = 8192
				}
				p, err = NewAnthropicProvider(ctx, &AnthropicConfig{
					ID:        name,
					APIKey:    cfg.APIKey,
					BaseURL:   cfg.BaseURL,
					Model:     cfg.Model,
					MaxTokens: maxTokens,
				})
			}

		case NpmOpenAI, NpmOpenAICompatible:
			// OpenAI-compatible may not require an API key for local models.
			if cfg.APIKey != "" || cfg.BaseURL != "" {
				if maxTokens == 0 {
					maxTokens = 4096
				}
				p, err = NewOpenAIProvider(ctx, &OpenAIConfig{
					ID:        name,
					APIKey:    cfg.APIKey,
					BaseURL:   cfg.BaseURL,
					Model:     cfg.Model,
					MaxTokens: maxTokens,
				})
			}

		default:
			if name == "ark" && cfg.APIKey != "" {
				if maxTokens == 0 {
					maxTokens = 4096
				}
				p, err = NewArkProvider(ctx, &ArkConfig{
					APIKey:    cfg.APIKey,
					BaseURL:   cfg.BaseURL,
					Model:     cfg.Model,
					MaxTokens: maxTokens,
				})
			}
		}

		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("provider registry: failed to construct configured provider")
			continue
		}
		if p != nil {
			registry.Register(p)
		}
	}

	if !configuredProviders["anthropic"] {
		if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
			p, err := NewAnthropicProvider(ctx, &AnthropicConfig{
				ID:        "anthropic",
				APIKey:    apiKey,
				MaxTokens: 8192,
			})
			if err != nil {
				log.Warn().Err(err).Msg("provider registry: auto-register anthropic from ANTHROPIC_API_KEY failed")
			} else if p != nil {
				registry.Register(p)
				log.Info().Msg("provider registry: auto-registered anthropic from ANTHROPIC_API_KEY")
			}
		}
	}

	if !configuredProviders["openai"] {
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			p, err := NewOpenAIProvider(ctx, &OpenAIConfig{
				ID:        "openai",
				APIKey:    apiKey,
				MaxTokens: 4096,
			})
			if err != nil {
				log.Warn().Err(err).Msg("provider registry: auto-register openai from OPENAI_API_KEY failed")
			} else if p != nil {
				registry.Register(p)
				log.Info().Msg("provider registry: auto-registered openai from OPENAI_API_KEY")
			}
		}
	}

	return registry, nil
}

// inferNpmFromProviderName maps well-known provider names to npm packages.
func inferNpmFromProviderName(name string) string {
	switch name {
	case "anthropic", "claude":
		return NpmAnthropic
	case "openai":
		return NpmOpenAI
	default:
		return ""
	}
}
