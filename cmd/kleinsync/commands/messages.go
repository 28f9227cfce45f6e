package commands

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/kleinsync/internal/output"
)

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Print the stored messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runMessages,
}

func init() {
	rootCmd.AddCommand(messagesCmd)
	addFormatFlag(messagesCmd, output.FormatText)
}

func runMessages(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.GetConversation(ctx, args[0]); err != nil {
		return err
	}
	msgs, err := st.ListMessages(ctx, args[0])
	if err != nil {
		return err
	}

	w, closeFn, err := openWriter(cmd)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := w.Write(messageRow{m}); err != nil {
			_ = closeFn()
			return err
		}
	}
	return closeFn()
}
