package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"goalpilot/internal/config"
	"goalpilot/internal/embedding"
	"goalpilot/internal/goal"
	"goalpilot/internal/logging"
	"goalpilot/internal/notify"
	"goalpilot/internal/provider"
	"goalpilot/internal/retrieval"
	"goalpilot/internal/storage"
	"goalpilot/internal/tools"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	workspace string
	inMemory  bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "goalpilot",
	Short: "goalpilot - autonomous goal-execution engine",
	Long: `goalpilot runs natural-language goals through a plan/act loop:
a language-model planner chooses the next action, a tool executor runs
it, and the outcome is recorded durably so the loop survives restarts.

State lives under .goalpilot/ in the workspace.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve workspace: %w", err)
			}
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// engine bundles the wired components a command operates on.
type engine struct {
	cfg         *config.Config
	cfgPath     string
	port        storage.Port
	store       *goal.Store
	index       *retrieval.Index
	router      *provider.Router
	registry    *tools.Registry
	broadcaster *notify.Broadcaster
}

// buildEngine wires storage, goal store, retrieval index, router and
// tool registry from the workspace config.
func buildEngine(ctx context.Context) (*engine, error) {
	cfgPath := config.DefaultUserConfigPath(workspace)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Provider.LoadRolesYAML(filepath.Join(workspace, ".goalpilot", "roles.yaml")); err != nil {
		logger.Warn("roles file ignored", zap.Error(err))
	}

	var port storage.Port
	if inMemory {
		port = storage.NewMemoryPort()
	} else {
		dbPath := filepath.Join(workspace, ".goalpilot", "goalpilot.db")
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
		port, err = storage.NewSQLitePort(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open state database: %w", err)
		}
	}

	engineImpl, err := embedding.NewEngine(cfg.Retrieval.Embedding)
	if err != nil {
		logger.Warn("embedding engine unavailable, retrieval uses hash fallback", zap.Error(err))
		engineImpl = nil
	}

	index := retrieval.New(engineImpl, port, retrieval.Config{
		Capacity:          cfg.Retrieval.Capacity,
		CacheSize:         cfg.Retrieval.CacheSize,
		CacheKeyPrefixLen: cfg.Retrieval.CacheKeyPrefixLen,
	})
	if err := index.Load(ctx); err != nil {
		logger.Warn("retrieval index starts empty", zap.Error(err))
	}

	broadcaster := notify.NewBroadcaster(16)
	store := goal.NewStore(port, broadcaster, goal.StoreConfig{
		RetryDelay: cfg.Loop.RetryDelay,
	})
	if _, err := store.Init(ctx); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("initialize goal store: %w", err)
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)

	return &engine{
		cfg:         cfg,
		cfgPath:     cfgPath,
		port:        port,
		store:       store,
		index:       index,
		router:      provider.NewRouterWithDefaults(cfg.Provider),
		registry:    registry,
		broadcaster: broadcaster,
	}, nil
}

// shutdown persists the retrieval index and releases the port.
func (e *engine) shutdown(ctx context.Context) {
	if err := e.index.Persist(ctx); err != nil {
		logger.Warn("persist retrieval index", zap.Error(err))
	}
	if err := e.port.Close(); err != nil {
		logger.Warn("close storage", zap.Error(err))
	}
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: cwd)")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "memory", false, "use in-memory state (nothing survives exit)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(knowledgeCmd)
	rootCmd.AddCommand(providersCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
