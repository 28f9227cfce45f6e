package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/kleinsync/internal/domain"
	"github.com/jmylchreest/kleinsync/internal/logger"
	"github.com/jmylchreest/kleinsync/internal/syncer"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync all active accounts on an interval",
	Long: `Run a batch sync immediately and then once per interval until
interrupted. A run that overlaps the next tick delays it; ticks are
never queued.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().Duration("interval", 15*time.Minute, "time between batch syncs (minimum 1m)")
	_ = viper.BindPFlag("sync.interval", daemonCmd.Flags().Lookup("interval"))
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, st, err := newSyncer(ctx, cfg)
	if err != nil {
		logger.Error("failed to set up sync", "error", err)
		return err
	}
	defer st.Close()

	logger.Info("daemon started", "interval", cfg.Sync.Interval)
	err = schedule(ctx, cfg.Sync.Interval, func(ctx context.Context) {
		batch(ctx, s)
	})
	logger.Info("daemon stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// schedule calls run now and then on every tick until ctx is done.
func schedule(ctx context.Context, interval time.Duration, run func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func batch(ctx context.Context, s *syncer.Syncer) {
	start := time.Now()
	results, err := s.SyncAll(ctx)
	if err != nil {
		logger.Warn("batch sync ended early", "error", err)
	}

	failed, messages := 0, 0
	for _, r := range results {
		messages += r.Messages
		if r.Status == domain.SyncError {
			failed++
			logger.Warn("account sync failed", "account", r.AccountID, "name", r.AccountName, "error", r.Error)
		}
	}
	logger.Info("batch done",
		"accounts", len(results),
		"failed", failed,
		"messages", messages,
		"duration", time.Since(start).Round(time.Millisecond))
}
