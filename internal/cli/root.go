package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/attention/internal/config"
	"github.com/lazypower/attention/internal/engine"
	"github.com/lazypower/attention/internal/logging"
	"github.com/lazypower/attention/internal/scaling"
	"github.com/lazypower/attention/internal/store"
)

var (
	configPath string
	dbFlag     string
	levelFlag  string

	cfg    = config.Default()
	logger = zap.NewNop()
	table  = scaling.Defaults()
)

var rootCmd = &cobra.Command{
	Use:   "attention",
	Short: "Interest scoring for interaction histories",
	Long: `Attention turns a stream of interaction events into a compact history and a
degree of interest per element. Histories are kept in a local SQLite database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.attention/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "database path (default ~/.attention/attention.db)")
	rootCmd.PersistentFlags().StringVar(&levelFlag, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(contextsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(durationsCmd)
	rootCmd.AddCommand(scalingCmd)
}

// setup resolves configuration from file, environment and flags, in that
// order, then builds the logger and the scaling table.
func setup() error {
	path := configPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".attention", "config.yaml")
		}
	}

	c, err := config.Load(path)
	if err != nil {
		return err
	}
	c.ApplyEnv()
	if dbFlag != "" {
		c.Database.Path = dbFlag
	}
	if levelFlag != "" {
		c.Logging.Level = levelFlag
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logging.New(c.Logging)
	if err != nil {
		return err
	}
	t, err := scaling.FromConfig(c.Scaling)
	if err != nil {
		return err
	}

	cfg, logger, table = c, l, t
	return nil
}

// openDB opens the configured database for CLI commands.
func openDB() (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(dbPath)
}

// openEngine opens the database and restores every persisted context.
func openEngine(ctx context.Context) (*engine.Engine, error) {
	db, err := openDB()
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	eng := engine.New(db, table, logger)
	if _, err := eng.LoadAll(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return eng, nil
}
