// Package commands provides the CLI commands for the agentcore-demo
// composition root.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dexto-ai/dexto-core/internal/agentcore"
	"github.com/dexto-ai/dexto-core/internal/chatsession"
	"github.com/dexto-ai/dexto-core/internal/config"
	"github.com/dexto-ai/dexto-core/internal/event"
	"github.com/dexto-ai/dexto-core/internal/history"
	"github.com/dexto-ai/dexto-core/internal/logging"
	"github.com/dexto-ai/dexto-core/internal/mcp"
	"github.com/dexto-ai/dexto-core/internal/nativetool"
	"github.com/dexto-ai/dexto-core/internal/permission"
	"github.com/dexto-ai/dexto-core/internal/provider"
	"github.com/dexto-ai/dexto-core/internal/sessionmgr"
	"github.com/dexto-ai/dexto-core/internal/storage/pathresolver"
	storageprovider "github.com/dexto-ai/dexto-core/internal/storage/provider"
)

var (
	flagProvider string
	flagModel    string
	flagAPIKey   string
	flagWorkDir  string
	flagPrintLog bool
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "agentcore-demo",
	Short: "Manual exercise harness for the agentcore library",
	Long: `agentcore-demo wires the Agent Façade together over the Core's
storage, provider, MCP, native-tool, and session-manager collaborators so
the library can be driven from a terminal. It is a demo harness, not a
front-end.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logCfg := logging.DefaultConfig()
		logCfg.Level = logging.ParseLevel(flagLogLevel)
		logCfg.Pretty = flagPrintLog
		if !flagPrintLog {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "anthropic", "LLM provider name (configured llm.provider)")
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "claude-sonnet-4-20250514", "Model id (configured llm.model)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Provider API key; falls back to <PROVIDER>_API_KEY env var")
	rootCmd.PersistentFlags().StringVar(&flagWorkDir, "work-dir", "", "Working directory for native tools and storage-root detection (default: cwd)")
	rootCmd.PersistentFlags().BoolVar(&flagPrintLog, "print-logs", false, "Print structured logs to stderr")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// buildAgent composes every Core collaborator per SPEC_FULL.md §4's module
// map into one Agent Façade, starting from the CLI's flags/environment.
func buildAgent(ctx context.Context) (*agentcore.Agent, func(), error) {
	log := logging.Logger

	workDir := flagWorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, nil, fmt.Errorf("agentcore-demo: getwd: %w", err)
		}
		workDir = wd
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, nil, fmt.Errorf("agentcore-demo: load config: %w", err)
	}
	if flagProvider != "" {
		cfg.LLM.Provider = flagProvider
	}
	if flagModel != "" {
		cfg.LLM.Model = flagModel
	}
	if flagAPIKey != "" {
		if cfg.Providers == nil {
			cfg.Providers = map[string]provider.ProviderConfig{}
		}
		p := cfg.Providers[cfg.LLM.Provider]
		p.APIKey = flagAPIKey
		p.Model = cfg.LLM.Model
		cfg.Providers[cfg.LLM.Provider] = p
	}

	storageCtx, err := pathresolver.Resolve(pathresolver.Options{StartDir: workDir, IsDevelopment: true})
	if err != nil {
		return nil, nil, fmt.Errorf("agentcore-demo: resolve storage root: %w", err)
	}

	factory, err := storageprovider.NewFactory(storageCtx, cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("agentcore-demo: storage factory: %w", err)
	}

	sessProvider, err := factory.SessionFor(ctx, "sessions")
	if err != nil {
		return nil, nil, fmt.Errorf("agentcore-demo: session storage: %w", err)
	}

	kv, err := factory.KVFor(ctx, "allowedTools")
	if err != nil {
		return nil, nil, fmt.Errorf("agentcore-demo: allowedTools storage: %w", err)
	}

	h := history.New(factory)
	globalBus := event.New(log)

	mcpMgr := mcp.NewManager(log)
	if len(cfg.MCPServers) > 0 {
		configs := make(map[string]*mcp.Config, len(cfg.MCPServers))
		for name := range cfg.MCPServers {
			c := cfg.MCPServers[name]
			configs[name] = &c
		}
		if err := mcpMgr.InitializeFromConfig(ctx, configs, mcp.ModeLenient); err != nil {
			log.Warn().Err(err).Msg("agentcore-demo: some MCP servers failed to connect")
		}
	}

	permChecker := permission.NewChecker(kv, globalBus)
	natives := nativetool.New(nativetool.Options{
		WorkDir:         workDir,
		PermChecker:     permChecker,
		BashPermissions: cfg.Permissions.Bash,
		ExternalDir:     cfg.Permissions.ExternalDir,
	}, log)

	registry, err := provider.InitializeProviders(ctx, cfg.Providers, cfg.LLM.Provider+"/"+cfg.LLM.Model, log)
	if err != nil {
		return nil, nil, fmt.Errorf("agentcore-demo: initialize providers: %w", err)
	}

	completion := provider.NewCompletionService(registry, provider.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Router:      cfg.LLM.Router,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, log)

	newSession := func(ctx context.Context, id string) (*chatsession.Session, error) {
		return chatsession.New(chatsession.Options{
			ID:            id,
			GlobalBus:     globalBus,
			History:       h,
			Completion:    completion,
			ToolSources:   []chatsession.ToolSource{natives, mcpMgr},
			SystemPrompt:  cfg.LLM.SystemPrompt,
			MaxIterations: cfg.LLM.MaxIterations,
			Log:           log,
		}), nil
	}

	mgr := sessionmgr.New(sessionmgr.Options{
		GlobalBus:       globalBus,
		SessionProvider: sessProvider,
		NewSession:      newSession,
		MaxSessions:     cfg.Sessions.MaxSessions,
		SessionTTL:      cfg.Sessions.SessionTTL,
		Log:             log,
	})
	if err := mgr.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("agentcore-demo: init session manager: %w", err)
	}

	cleanup := func() { mgr.Cleanup(context.Background()) }
	return agentcore.New(mgr, globalBus, log), cleanup, nil
}
