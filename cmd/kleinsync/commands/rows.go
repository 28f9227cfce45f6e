package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/kleinsync/internal/domain"
	"github.com/jmylchreest/kleinsync/internal/output"
	"github.com/jmylchreest/kleinsync/internal/syncer"
)

func addFormatFlag(cmd *cobra.Command, def output.Format) {
	cmd.Flags().String("format", string(def), fmt.Sprintf("output format: %v", output.Formats))
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
}

// openWriter creates the writer selected by --format and --output. The
// returned close func closes both the writer and any output file.
func openWriter(cmd *cobra.Command) (output.Writer, func() error, error) {
	formatStr, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(formatStr)
	if err != nil {
		return nil, nil, err
	}

	var dst io.Writer = cmd.OutOrStdout()
	var file *os.File
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		file, err = os.Create(path) //#nosec G304 -- operator-supplied output path
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create output file: %w", err)
		}
		dst = file
	}

	w, err := output.NewWriter(dst, format)
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, nil, err
	}

	closeFn := func() error {
		err := w.Close()
		if file != nil {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}
	return w, closeFn, nil
}

// syncRow is one line of a sync report.
type syncRow struct {
	syncer.AccountResult `yaml:",inline"`
}

func (r syncRow) Header() []string {
	return []string{"ACCOUNT", "NAME", "STATUS", "CONVERSATIONS", "MESSAGES", "ERROR"}
}

func (r syncRow) Cells() []string {
	return []string{
		r.AccountID,
		r.AccountName,
		string(r.Status),
		strconv.Itoa(r.Conversations),
		strconv.Itoa(r.Messages),
		r.Error,
	}
}

// accountRow is an account with its most recent sync attempt.
type accountRow struct {
	domain.Account `yaml:",inline"`
	LastStatus     domain.SyncStatus `json:"last_status,omitempty" yaml:"last_status,omitempty"`
	LastError      string            `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

func (r accountRow) Header() []string {
	return []string{"ID", "NAME", "EMAIL", "ACTIVE", "LAST SYNC", "STATUS"}
}

func (r accountRow) Cells() []string {
	lastSync := "never"
	if r.LastSyncedAt != nil {
		lastSync = humanize.Time(*r.LastSyncedAt)
	}
	return []string{
		r.ID,
		r.Name,
		r.Email,
		strconv.FormatBool(r.Active),
		lastSync,
		string(r.LastStatus),
	}
}

// messageRow is a stored message.
type messageRow struct {
	domain.Message `yaml:",inline"`
}

func (r messageRow) Header() []string {
	return []string{"TIME", "FROM", "TO", "READ", "BODY"}
}

func (r messageRow) Cells() []string {
	return []string{
		r.Timestamp.Local().Format(time.DateTime),
		r.Sender,
		r.Recipient,
		strconv.FormatBool(r.Read),
		truncate(r.Body, 60),
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
