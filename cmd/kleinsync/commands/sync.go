package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/kleinsync/internal/domain"
	"github.com/jmylchreest/kleinsync/internal/logger"
	"github.com/jmylchreest/kleinsync/internal/output"
	"github.com/jmylchreest/kleinsync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync inbox messages for one or all active accounts",
	Long: `Log into each account, walk every conversation in the inbox and
store its messages. A failing conversation is skipped; a failing account
is recorded in its sync log and the batch moves on.

Examples:
  kleinsync sync --all
  kleinsync sync --account 3f2a... --format json`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	flags := syncCmd.Flags()
	flags.StringP("account", "a", "", "account id to sync")
	flags.Bool("all", false, "sync every active account")
	addFormatFlag(syncCmd, output.FormatText)

	syncCmd.MarkFlagsMutuallyExclusive("account", "all")
	syncCmd.MarkFlagsOneRequired("account", "all")
}

func runSync(cmd *cobra.Command, args []string) error {
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

	var (
		results  []syncer.AccountResult
		batchErr error
	)
	if id, _ := cmd.Flags().GetString("account"); id != "" {
		results = []syncer.AccountResult{syncByID(ctx, s, id)}
	} else {
		results, batchErr = s.SyncAll(ctx)
		if batchErr != nil && len(results) == 0 {
			logger.Error("sync failed", "error", batchErr)
			return batchErr
		}
	}

	// Partial results are still reported when the batch was interrupted.
	if err := writeSyncReport(cmd, results); err != nil {
		return err
	}
	if batchErr != nil {
		logger.Warn("batch interrupted", "error", batchErr)
		return batchErr
	}
	return reportFailures(results)
}

func syncByID(ctx context.Context, s *syncer.Syncer, id string) syncer.AccountResult {
	res, err := s.SyncAccountByID(ctx, id)
	row := syncer.AccountResult{
		AccountID:     id,
		Status:        domain.SyncSuccess,
		Conversations: res.ConversationsSeen,
		Messages:      res.MessagesSynced,
	}
	if err != nil {
		row.Status = domain.SyncError
		row.Error = err.Error()
		if syncer.IsCredentialError(err) {
			logger.Warn("check the stored credentials", "account", id, "error", err)
		}
	}
	return row
}

func writeSyncReport(cmd *cobra.Command, results []syncer.AccountResult) error {
	w, closeFn, err := openWriter(cmd)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := w.Write(syncRow{r}); err != nil {
			_ = closeFn()
			return err
		}
	}
	return closeFn()
}

func reportFailures(results []syncer.AccountResult) error {
	failed, messages := 0, 0
	for _, r := range results {
		messages += r.Messages
		if r.Status == domain.SyncError {
			failed++
		}
	}
	logInfo("Synced %d messages across %d accounts", messages, len(results)-failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d accounts failed", failed, len(results))
	}
	return nil
}
