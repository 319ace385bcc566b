// Package config defines the Core's Go-native configuration shape (the
// abstract "{ llm, mcpServers, storage, sessions }" document) and a
// bootstrap loader for it. The Core itself does not parse configuration on
// behalf of a caller - that is a front-end's job - but a
// front-end (or the agentcore-demo CLI) needs a plain struct tree to
// construct and hand to the composition root, plus Load/path-resolution
// machinery to build one from an optional on-disk bootstrap file.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dexto-ai/dexto-core/internal/mcp"
	"github.com/dexto-ai/dexto-core/internal/permission"
	"github.com/dexto-ai/dexto-core/internal/provider"
	storageprovider "github.com/dexto-ai/dexto-core/internal/storage/provider"
)

// Config is the Core's native, in-process configuration shape.
type Config struct {
	LLM         LLMConfig                          `json:"llm"`
	Providers   map[string]provider.ProviderConfig `json:"providers,omitempty"`
	MCPServers  map[string]mcp.Config               `json:"mcpServers,omitempty"`
	Storage     storageprovider.FactoryConfig       `json:"storage"`
	Sessions    SessionsConfig                       `json:"sessions"`
	Permissions permission.AgentPermissions          `json:"permissions"`
}

// LLMConfig is the "llm" section: provider, model, apiKey, router,
// maxIterations, maxTokens, systemPrompt.
type LLMConfig struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	APIKey        string  `json:"apiKey,omitempty"`
	Router        string  `json:"router,omitempty"` // "vercel" | "in-built"
	MaxIterations int     `json:"maxIterations,omitempty"`
	MaxTokens     int     `json:"maxTokens,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	SystemPrompt  string  `json:"systemPrompt,omitempty"`
}

// SessionsConfig is the "sessions" section: maxSessions (default 100),
// sessionTTL (default 3600000ms).
type SessionsConfig struct {
	MaxSessions int           `json:"maxSessions,omitempty"`
	SessionTTL  time.Duration `json:"sessionTTLMillis,omitempty"`
}

// Default returns the zero-value Config filled in with every
// spec-mandated default (router defaults aside, which need a provider
// choice this package can't make for the caller).
func Default() Config {
	return Config{
		LLM: LLMConfig{
			MaxIterations: 50,
		},
		Storage: storageprovider.FactoryConfig{
			Default: storageprovider.BackendConfig{Type: "memory"},
		},
		Sessions: SessionsConfig{
			MaxSessions: 100,
			SessionTTL:  time.Hour,
		},
		Permissions: permission.DefaultAgentPermissions(),
	}
}

// Load builds a Config starting from Default(), then merging in (in
// ascending priority) a global bootstrap file (~/.config/dexto/
// dexto.json(c)), a project bootstrap file (<directory>/.dexto/
// dexto.json(c)), and environment variable overrides. A missing
// bootstrap file is not an error - the Core runs fine on defaults plus env
// vars alone, which is the common case for the agentcore-demo CLI.
func Load(directory string) (*Config, error) {
	cfg := Default()

	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "dexto.json"), &cfg)
	loadConfigFile(filepath.Join(globalPath, "dexto.jsonc"), &cfg)

	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".dexto", "dexto.json"), &cfg)
		loadConfigFile(filepath.Join(directory, ".dexto", "dexto.jsonc"), &cfg)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// loadConfigFile loads a single bootstrap file and merges it into cfg. A
// missing or unparseable file is skipped rather than treated as fatal -
// the bootstrap file is optional.
func loadConfigFile(path string, cfg *Config) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	data = stripJSONComments(data)

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return
	}

	mergeConfig(cfg, &fileConfig)
}

// stripJSONComments removes // and /* */ comments from JSONC.
func stripJSONComments(data []byte) []byte {
	singleLine := regexp.MustCompile(`//.*$`)
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = singleLine.ReplaceAll(line, nil)
	}
	data = bytes.Join(lines, []byte("\n"))

	multiLine := regexp.MustCompile(`/\*[\s\S]*?\*/`)
	return multiLine.ReplaceAll(data, nil)
}

// mergeConfig merges source into target: scalars overwrite when non-zero,
// maps merge key by key with source winning on collision. The permissions
// section is not merged: target keeps its permissions unchanged.
func mergeConfig(target, source *Config) {
	if source.LLM.Provider != "" {
		target.LLM.Provider = source.LLM.Provider
	}
	if source.LLM.Model != "" {
		target.LLM.Model = source.LLM.Model
	}
	if source.LLM.APIKey != "" {
		target.LLM.APIKey = source.LLM.APIKey
	}
	if source.LLM.Router != "" {
		target.LLM.Router = source.LLM.Router
	}
	if source.LLM.MaxIterations != 0 {
		target.LLM.MaxIterations = source.LLM.MaxIterations
	}
	if source.LLM.MaxTokens != 0 {
		target.LLM.MaxTokens = source.LLM.MaxTokens
	}
	if source.LLM.Temperature != 0 {
		target.LLM.Temperature = source.LLM.Temperature
	}
	if source.LLM.SystemPrompt != "" {
		target.LLM.SystemPrompt = source.LLM.SystemPrompt
	}

	if source.Providers != nil {
		if target.Providers == nil {
			target.Providers = make(map[string]provider.ProviderConfig)
		}
		for name, p := range source.Providers {
			target.Providers[name] = p
		}
	}

	if source.MCPServers != nil {
		if target.MCPServers == nil {
			target.MCPServers = make(map[string]mcp.Config)
		}
		for name, c := range source.MCPServers {
			target.MCPServers[name] = c
		}
	}

	if source.Storage.Default.Type != "" {
		target.Storage.Default = source.Storage.Default
	}
	if source.Storage.Override != nil {
		if target.Storage.Override == nil {
			target.Storage.Override = make(map[string]storageprovider.BackendConfig)
		}
		for purpose, bc := range source.Storage.Override {
			target.Storage.Override[purpose] = bc
		}
	}

	if source.Sessions.MaxSessions != 0 {
		target.Sessions.MaxSessions = source.Sessions.MaxSessions
	}
	if source.Sessions.SessionTTL != 0 {
		target.Sessions.SessionTTL = source.Sessions.SessionTTL
	}
}

// applyEnvOverrides applies environment variable overrides for provider API
// keys and the default model.
func applyEnvOverrides(cfg *Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"google":    "GOOGLE_API_KEY",
		"bedrock":   "AWS_ACCESS_KEY_ID",
	}

	for name, envVar := range providerEnvMap {
		apiKey := os.Getenv(envVar)
		if apiKey == "" {
			continue
		}
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]provider.ProviderConfig)
		}
		p := cfg.Providers[name]
		if p.APIKey == "" {
			p.APIKey = apiKey
			cfg.Providers[name] = p
		}
	}

	if model := os.Getenv("DEXTO_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
}

// Save writes cfg as indented JSON to path, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
