package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/kleinsync/internal/logger"
	"github.com/jmylchreest/kleinsync/internal/output"
)

var replyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Send a reply on a stored conversation",
	Long: `Log in as the conversation's account, post the reply on its thread
and store the sent message.

The body is read from stdin when --body is omitted.

Examples:
  kleinsync reply --conversation 8c1e... --body "Ist noch da."
  echo "Abholung morgen?" | kleinsync reply -c 8c1e...`,
	RunE: runReply,
}

func init() {
	rootCmd.AddCommand(replyCmd)

	flags := replyCmd.Flags()
	flags.StringP("conversation", "c", "", "stored conversation id (required)")
	flags.StringP("body", "b", "", "reply text (default: read stdin)")
	addFormatFlag(replyCmd, output.FormatJSON)

	_ = replyCmd.MarkFlagRequired("conversation")
}

func runReply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	body, _ := cmd.Flags().GetString("body")
	if body == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read reply from stdin: %w", err)
		}
		body = strings.TrimSpace(string(data))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, st, err := newSyncer(ctx, cfg)
	if err != nil {
		logger.Error("failed to set up reply", "error", err)
		return err
	}
	defer st.Close()

	conversationID, _ := cmd.Flags().GetString("conversation")
	msg, err := s.ReplyToConversation(ctx, conversationID, body)
	if err != nil {
		logger.Error("reply failed", "conversation", conversationID, "error", err)
		return err
	}

	w, closeFn, err := openWriter(cmd)
	if err != nil {
		return err
	}
	if err := w.Write(messageRow{msg}); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}
