package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/kleinsync/internal/domain"
	"github.com/jmylchreest/kleinsync/internal/output"
	"github.com/jmylchreest/kleinsync/internal/store"
	"github.com/jmylchreest/kleinsync/internal/syncer"
)

// --- Schedule Tests ---

func TestSchedule_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runs := 0

	err := schedule(ctx, time.Hour, func(context.Context) {
		runs++
		cancel()
	})

	if err != context.Canceled {
		t.Errorf("schedule() error = %v, want context.Canceled", err)
	}
	if runs != 1 {
		t.Errorf("expected one immediate run, got %d", runs)
	}
}

func TestSchedule_Ticks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runs := 0

	_ = schedule(ctx, 5*time.Millisecond, func(context.Context) {
		runs++
		if runs == 3 {
			cancel()
		}
	})

	if runs != 3 {
		t.Errorf("expected 3 runs, got %d", runs)
	}
}

// --- Row Tests ---

func TestRows_TextOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	w, err := output.NewWriter(buf, output.FormatText)
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Write(syncRow{syncer.AccountResult{AccountID: "a1", AccountName: "Shop", Status: domain.SyncSuccess, Conversations: 2, Messages: 5}})
	_ = w.Write(syncRow{syncer.AccountResult{AccountID: "a2", AccountName: "Flohmarkt", Status: domain.SyncError, Error: "login failed"}})
	_ = w.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %q", buf.String())
	}
	if !strings.Contains(lines[2], "login failed") {
		t.Errorf("error column missing: %q", lines[2])
	}
}

func TestAccountRow_NeverSynced(t *testing.T) {
	cells := accountRow{Account: domain.Account{ID: "a1", Name: "Shop", Active: true}}.Cells()
	if cells[4] != "never" {
		t.Errorf("LAST SYNC = %q, want never", cells[4])
	}
	at := time.Now().Add(-2 * time.Hour)
	cells = accountRow{Account: domain.Account{LastSyncedAt: &at}}.Cells()
	if cells[4] != "2 hours ago" {
		t.Errorf("LAST SYNC = %q", cells[4])
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"kurz", 10, "kurz"},
		{"zeile eins\nzeile zwei", 40, "zeile eins zeile zwei"},
		{"Grüße aus München", 6, "Grüße…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

// --- Input Tests ---

func TestReadSecret(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"geheim123\n", "geheim123", false},
		{"geheim123\r\nrest", "geheim123", false},
		{"no-newline", "no-newline", false},
		{"", "", true},
		{"\n", "", true},
	}
	for _, tt := range tests {
		got, err := readSecret(strings.NewReader(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("readSecret(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("readSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToggleAccount(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	a, _ := st.CreateAccount(ctx, domain.Account{Name: "Shop", Email: "s@example.com", Active: true})

	if err := toggleAccount(ctx, st, a.ID, false); err != nil {
		t.Fatal(err)
	}
	if got, _ := st.GetAccount(ctx, a.ID); got.Active {
		t.Error("account should be inactive")
	}
	if err := toggleAccount(ctx, st, "missing", true); err == nil {
		t.Error("expected error for unknown account")
	}
}

// --- Writer Tests ---

func TestOpenWriter_RejectsUnknownFormat(t *testing.T) {
	cmd := &cobra.Command{}
	addFormatFlag(cmd, output.FormatText)
	_ = cmd.Flags().Set("format", "xml")

	if _, _, err := openWriter(cmd); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestOpenWriter_File(t *testing.T) {
	cmd := &cobra.Command{}
	addFormatFlag(cmd, output.FormatJSON)
	path := t.TempDir() + "/report.json"
	_ = cmd.Flags().Set("output", path)

	w, closeFn, err := openWriter(cmd)
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Write(syncRow{syncer.AccountResult{AccountID: "a1"}})
	if err := closeFn(); err != nil {
		t.Fatalf("close error = %v", err)
	}
}
