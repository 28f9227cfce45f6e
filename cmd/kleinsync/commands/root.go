// Package commands implements the CLI commands for kleinsync.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/kleinsync/internal/browser"
	"github.com/jmylchreest/kleinsync/internal/config"
	"github.com/jmylchreest/kleinsync/internal/credentials"
	"github.com/jmylchreest/kleinsync/internal/logger"
	"github.com/jmylchreest/kleinsync/internal/selectors"
	"github.com/jmylchreest/kleinsync/internal/store"
	"github.com/jmylchreest/kleinsync/internal/syncer"
)

var (
	cfgFile string
	initErr error
)

var rootCmd = &cobra.Command{
	Use:   "kleinsync",
	Short: "Sync classifieds inbox messages into a database",
	Long: `Kleinsync logs into classifieds accounts with a headless browser,
reads every conversation in the inbox and stores the messages,
keyed so that repeated runs never create duplicates.

Examples:
  # Sync every active account once
  kleinsync sync --all

  # Sync a single account and print the report as JSON
  kleinsync sync --account 3f2a... --format json

  # Reply on a stored conversation
  kleinsync reply --conversation 8c1e... --body "Ist noch da."

  # Keep syncing every 15 minutes
  kleinsync daemon --interval 15m`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.kleinsync.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "suppress progress output")
	flags.Bool("log-json", false, "log as JSON")
	flags.String("store", "", "message store: postgres, memory")
	flags.String("selectors", "", "selector table override (YAML)")

	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("log_json", flags.Lookup("log-json"))
	_ = viper.BindPFlag("store", flags.Lookup("store"))
	_ = viper.BindPFlag("selectors_file", flags.Lookup("selectors"))
}

func initConfig() {
	if initErr = config.LoadDotEnv(); initErr != nil {
		return
	}
	initErr = config.Init(viper.GetViper(), cfgFile)
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logError("%v", err)
	}
	return err
}

// loadConfig resolves the configuration and initializes the logger.
func loadConfig() (*config.Config, error) {
	if initErr != nil {
		return nil, initErr
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{
		Debug: cfg.Debug,
		Quiet: cfg.Quiet,
		JSON:  cfg.LogJSON,
	})
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case "memory":
		logger.Warn("using the in-memory store, nothing is persisted")
		return store.NewMemory(), nil
	default:
		if err := cfg.RequirePostgres(); err != nil {
			return nil, err
		}
		pg, err := store.Connect(ctx, cfg.Database.URL, store.PoolOptions{
			MaxConns:        cfg.Database.MaxConns,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
}

func loadSelectors(cfg *config.Config) (*selectors.Table, error) {
	if cfg.SelectorsFile == "" {
		return selectors.Default(), nil
	}
	logger.Debug("loading selector table", "path", cfg.SelectorsFile)
	return selectors.Load(cfg.SelectorsFile)
}

func newCipher(cfg *config.Config) (*credentials.Cipher, error) {
	c, err := credentials.New(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%w (set ENCRYPTION_KEY)", err)
	}
	return c, nil
}

// newSyncer wires the store, the cipher and a chromedp session factory.
// The caller owns the returned store.
func newSyncer(ctx context.Context, cfg *config.Config) (*syncer.Syncer, store.Store, error) {
	cipher, err := newCipher(cfg)
	if err != nil {
		return nil, nil, err
	}
	table, err := loadSelectors(cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	bc := cfg.BrowserConfig()
	launcher := browser.NewChromeLauncher(bc)
	sessions := func() syncer.Session {
		return browser.NewSession(launcher, table, bc)
	}

	s := syncer.New(st, cipher, sessions,
		syncer.WithAccountDelay(cfg.Sync.AccountDelay),
		syncer.WithConversationDelay(cfg.Sync.ConversationDelay),
		syncer.WithAccountTimeout(cfg.Sync.AccountTimeout),
	)
	return s, st, nil
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
