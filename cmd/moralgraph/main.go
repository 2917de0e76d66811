package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agenthands/moralgraph/internal/app"
	"github.com/agenthands/moralgraph/internal/config"
	"github.com/agenthands/moralgraph/internal/logger"
	"github.com/agenthands/moralgraph/internal/store"
)

var (
	cfgPath      string
	storeBackend string
	storeDSN     string
	verbose      bool

	cfg  *config.Config
	logg *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "moralgraph",
	Short: "Consolidate generated moral graphs into canonical graphs",
	Long: `moralgraph imports generated values cards and upgrade edges, and
deduplicates them into a canonical moral graph: one card per value, one
context per kind of choice, one edge per upgrade.

Every deduplication run is versioned and can be resumed after a crash.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = app.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		if storeBackend != "" {
			cfg.Store.Backend = storeBackend
		}
		if storeDSN != "" {
			cfg.Store.DSN = storeDSN
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		logg, err = logger.New(cfg.Log.Mode, cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logg != nil {
			logg.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config/config.toml", "Path to the TOML configuration")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "", "Store backend: memgraph, postgres, sqlite or memory")
	rootCmd.PersistentFlags().StringVar(&storeDSN, "dsn", "", "DSN for the postgres and sqlite backends")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext is cancelled on SIGINT and SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore(ctx context.Context) (store.Store, error) {
	st, err := app.OpenStore(ctx, cfg, logg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	return st, nil
}

// resolveGeneration returns id, or the latest imported generation when id
// is zero.
func resolveGeneration(ctx context.Context, st store.Store, id int64) (int64, error) {
	if id != 0 {
		return id, nil
	}
	latest, err := st.LatestGenerationID(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return 0, errors.New("no generation found, import one first")
	}
	return latest, err
}
