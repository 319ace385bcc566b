package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dexto-ai/dexto-core/internal/mcp"
	"github.com/dexto-ai/dexto-core/internal/provider"
	storageprovider "github.com/dexto-ai/dexto-core/internal/storage/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	oldXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Unsetenv("XDG_CONFIG_HOME")
	t.Cleanup(func() {
		os.Setenv("HOME", oldHome)
		if oldXDG != "" {
			os.Setenv("XDG_CONFIG_HOME", oldXDG)
		}
	})
	return tmpDir
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LLM.MaxIterations != 50 {
		t.Errorf("expected default MaxIterations 50, got %d", cfg.LLM.MaxIterations)
	}
	if cfg.Sessions.MaxSessions != 100 {
		t.Errorf("expected default MaxSessions 100, got %d", cfg.Sessions.MaxSessions)
	}
	if cfg.Sessions.SessionTTL != time.Hour {
		t.Errorf("expected default SessionTTL 1h, got %v", cfg.Sessions.SessionTTL)
	}
	if cfg.Storage.Default.Type == "" {
		t.Error("expected a default storage backend type")
	}
}

func TestLoadNoBootstrapFile(t *testing.T) {
	isolateHome(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.LLM.MaxIterations)
	assert.Equal(t, 100, cfg.Sessions.MaxSessions)
}

func TestLoadProjectBootstrapFile(t *testing.T) {
	isolateHome(t)
	projectDir := t.TempDir()

	bootstrap := `{
		"llm": {
			"provider": "anthropic",
			"model": "claude-sonnet-4-20250514",
			"maxIterations": 25
		},
		"providers": {
			"anthropic": {
				"Model": "claude-sonnet-4-20250514",
				"APIKey": "sk-ant-test"
			}
		}
	}`

	configDir := filepath.Join(projectDir, ".dexto")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "dexto.json"), []byte(bootstrap), 0644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.Model)
	assert.Equal(t, 25, cfg.LLM.MaxIterations)
	require.Contains(t, cfg.Providers, "anthropic")
	assert.Equal(t, "sk-ant-test", cfg.Providers["anthropic"].APIKey)
}

func TestLoadJSONCBootstrapFile(t *testing.T) {
	isolateHome(t)
	projectDir := t.TempDir()

	bootstrap := `{
		// line comment
		"llm": {
			"model": "claude-sonnet-4-20250514" /* inline comment */
		}
	}`

	configDir := filepath.Join(projectDir, ".dexto")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "dexto.jsonc"), []byte(bootstrap), 0644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.Model)
}

func TestLoadGlobalThenProjectPrecedence(t *testing.T) {
	home := isolateHome(t)
	projectDir := t.TempDir()

	globalDir := filepath.Join(home, ".config", "dexto")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "dexto.json"),
		[]byte(`{"llm": {"model": "global-model", "provider": "anthropic"}}`), 0644))

	projectConfigDir := filepath.Join(projectDir, ".dexto")
	require.NoError(t, os.MkdirAll(projectConfigDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(projectConfigDir, "dexto.json"),
		[]byte(`{"llm": {"model": "project-model"}}`), 0644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)

	assert.Equal(t, "project-model", cfg.LLM.Model)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestEnvVarOverride(t *testing.T) {
	isolateHome(t)
	os.Setenv("DEXTO_MODEL", "env-model")
	defer os.Unsetenv("DEXTO_MODEL")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.LLM.Model)
}

func TestEnvVarProviderAPIKey(t *testing.T) {
	isolateHome(t)
	os.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Contains(t, cfg.Providers, "anthropic")
	assert.Equal(t, "sk-ant-env", cfg.Providers["anthropic"].APIKey)
}

func TestEnvVarDoesNotOverrideBootstrapAPIKey(t *testing.T) {
	isolateHome(t)
	projectDir := t.TempDir()

	configDir := filepath.Join(projectDir, ".dexto")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "dexto.json"),
		[]byte(`{"providers": {"anthropic": {"APIKey": "from-file"}}}`), 0644))

	os.Setenv("ANTHROPIC_API_KEY", "from-env")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Providers["anthropic"].APIKey)
}

func TestMCPServersBootstrap(t *testing.T) {
	isolateHome(t)
	projectDir := t.TempDir()

	bootstrap := `{
		"mcpServers": {
			"filesystem": {
				"Enabled": true,
				"Type": "stdio",
				"Command": ["npx", "-y", "@modelcontextprotocol/server-filesystem"],
				"Timeout": 5000
			}
		}
	}`

	configDir := filepath.Join(projectDir, ".dexto")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "dexto.json"), []byte(bootstrap), 0644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)

	fs, ok := cfg.MCPServers["filesystem"]
	require.True(t, ok)
	assert.True(t, fs.Enabled)
	assert.Equal(t, mcp.TransportTypeStdio, fs.Type)
	assert.Equal(t, 5000, fs.Timeout)
}

func TestStorageBootstrap(t *testing.T) {
	isolateHome(t)
	projectDir := t.TempDir()

	bootstrap := `{
		"storage": {
			"Default": {"Type": "sqlite"},
			"Override": {
				"sessions": {"Type": "memory"}
			}
		}
	}`

	configDir := filepath.Join(projectDir, ".dexto")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "dexto.json"), []byte(bootstrap), 0644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)

	assert.EqualValues(t, "sqlite", cfg.Storage.Default.Type)
	require.Contains(t, cfg.Storage.Override, "sessions")
	assert.EqualValues(t, "memory", cfg.Storage.Override["sessions"].Type)
}

func TestMergeConfigFunction(t *testing.T) {
	t.Run("merges provider pools", func(t *testing.T) {
		target := &Config{
			Providers: map[string]provider.ProviderConfig{
				"anthropic": {Model: "claude"},
			},
		}
		source := &Config{
			Providers: map[string]provider.ProviderConfig{
				"openai": {Model: "gpt-5"},
			},
		}

		mergeConfig(target, source)

		assert.Len(t, target.Providers, 2)
		assert.Equal(t, "claude", target.Providers["anthropic"].Model)
		assert.Equal(t, "gpt-5", target.Providers["openai"].Model)
	})

	t.Run("source wins on key collision", func(t *testing.T) {
		target := &Config{
			Providers: map[string]provider.ProviderConfig{
				"openai": {APIKey: "old-key"},
			},
		}
		source := &Config{
			Providers: map[string]provider.ProviderConfig{
				"openai": {APIKey: "new-key"},
			},
		}

		mergeConfig(target, source)
		assert.Equal(t, "new-key", target.Providers["openai"].APIKey)
	})

	t.Run("does not overwrite scalars with zero values", func(t *testing.T) {
		target := &Config{LLM: LLMConfig{Model: "claude-sonnet-4"}}
		source := &Config{LLM: LLMConfig{Provider: "anthropic"}}

		mergeConfig(target, source)

		assert.Equal(t, "claude-sonnet-4", target.LLM.Model)
		assert.Equal(t, "anthropic", target.LLM.Provider)
	})

	t.Run("merges storage overrides", func(t *testing.T) {
		target := &Config{
			Storage: storageprovider.FactoryConfig{
				Default: storageprovider.BackendConfig{Type: "memory"},
			},
		}
		source := &Config{
			Storage: storageprovider.FactoryConfig{
				Override: map[string]storageprovider.BackendConfig{
					"sessions": {Type: "sqlite"},
				},
			},
		}

		mergeConfig(target, source)

		assert.EqualValues(t, "memory", target.Storage.Default.Type)
		require.Contains(t, target.Storage.Override, "sessions")
	})
}

func TestApplyEnvOverridesFunction(t *testing.T) {
	t.Run("DEXTO_MODEL overrides config", func(t *testing.T) {
		os.Setenv("DEXTO_MODEL", "env-override-model")
		defer os.Unsetenv("DEXTO_MODEL")

		cfg := &Config{LLM: LLMConfig{Model: "config-model"}}
		applyEnvOverrides(cfg)

		assert.Equal(t, "env-override-model", cfg.LLM.Model)
	})

	t.Run("provider API key env vars populate the pool", func(t *testing.T) {
		os.Setenv("OPENAI_API_KEY", "sk-openai-env")
		defer os.Unsetenv("OPENAI_API_KEY")

		cfg := &Config{}
		applyEnvOverrides(cfg)

		require.Contains(t, cfg.Providers, "openai")
		assert.Equal(t, "sk-openai-env", cfg.Providers["openai"].APIKey)
	})
}

func TestSaveAndReload(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dexto.json")

	cfg := Default()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "claude-sonnet-4-20250514"

	require.NoError(t, Save(&cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "claude-sonnet-4-20250514")
}

func TestStripJSONComments(t *testing.T) {
	input := []byte(`{
		// comment
		"a": 1, /* block
		comment */
		"b": 2 // trailing
	}`)

	stripped := stripJSONComments(input)
	assert.NotContains(t, string(stripped), "comment")
}
