package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmylchreest/kleinsync/internal/domain"
)

var t0 = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

func seedAccount(t *testing.T, m *Memory, active bool) domain.Account {
	t.Helper()
	a, err := m.CreateAccount(context.Background(), domain.Account{
		Name:              "Shop",
		Email:             "seller@example.com",
		EncryptedPassword: "ciphertext",
		Active:            active,
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	return a
}

// --- Account Tests ---

func TestMemory_Accounts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	active := seedAccount(t, m, true)
	seedAccount(t, m, false)

	if active.ID == "" {
		t.Fatal("CreateAccount should assign an ID")
	}

	all, _ := m.ListAccounts(ctx)
	if len(all) != 2 {
		t.Errorf("expected 2 accounts, got %d", len(all))
	}
	act, _ := m.ActiveAccounts(ctx)
	if len(act) != 1 || act[0].ID != active.ID {
		t.Errorf("expected only the active account, got %+v", act)
	}

	creds, err := m.AccountCredentials(ctx, active.ID)
	if err != nil {
		t.Fatal(err)
	}
	if creds.Email != "seller@example.com" || creds.Ciphertext != "ciphertext" {
		t.Errorf("unexpected credentials: %+v", creds)
	}

	if err := m.SetAccountActive(ctx, active.ID, false); err != nil {
		t.Fatal(err)
	}
	if act, _ := m.ActiveAccounts(ctx); len(act) != 0 {
		t.Error("deactivated account should not be listed as active")
	}
}

func TestMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.GetAccount(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetAccount: expected ErrNotFound, got %v", err)
	}
	if _, err := m.GetConversation(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetConversation: expected ErrNotFound, got %v", err)
	}
	if _, err := m.LatestSyncLog(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("LatestSyncLog: expected ErrNotFound, got %v", err)
	}
	if err := m.UpdateLastSyncedAt(ctx, "missing", t0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateLastSyncedAt: expected ErrNotFound, got %v", err)
	}
}

// --- Upsert Tests ---

func TestMemory_UpsertConversation_KeyedByPartner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := seedAccount(t, m, true)

	first, _ := m.UpsertConversation(ctx, domain.ConversationUpsert{
		AccountID: a.ID, PartnerName: "Anna", LastMessageAt: t0, UnreadCount: 1,
	})
	second, _ := m.UpsertConversation(ctx, domain.ConversationUpsert{
		AccountID: a.ID, PartnerName: "Anna", LastMessageAt: t0.Add(time.Hour), UnreadCount: 0, ThreadURL: "/t/1",
	})

	if first.ID != second.ID {
		t.Error("same partner should map to the same conversation")
	}
	if m.ConversationCount() != 1 {
		t.Errorf("expected 1 conversation, got %d", m.ConversationCount())
	}
	got, _ := m.GetConversation(ctx, first.ID)
	if got.UnreadCount != 0 || got.ThreadURL != "/t/1" || !got.LastMessageAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("conversation should carry the latest values, got %+v", got)
	}

	other, _ := m.UpsertConversation(ctx, domain.ConversationUpsert{AccountID: "acc-2", PartnerName: "Anna"})
	if other.ID == first.ID {
		t.Error("same partner under another account is a different conversation")
	}
}

func TestMemory_UpsertMessage_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := seedAccount(t, m, true)
	conv, _ := m.UpsertConversation(ctx, domain.ConversationUpsert{AccountID: a.ID, PartnerName: "Anna"})

	in := domain.MessageUpsert{
		AccountID: a.ID, ConversationID: conv.ID, Sender: "Anna", Body: "Hallo",
		Timestamp: t0, ExternalID: "m-1",
	}
	first, _ := m.UpsertMessage(ctx, in)
	in.Read = true
	second, _ := m.UpsertMessage(ctx, in)

	if first.ID != second.ID {
		t.Error("same external id should map to the same message")
	}
	if m.MessageCount() != 1 {
		t.Errorf("expected 1 message, got %d", m.MessageCount())
	}

	msgs, _ := m.ListMessages(ctx, conv.ID)
	if len(msgs) != 1 || !msgs[0].Read {
		t.Errorf("message should carry the latest read flag, got %+v", msgs)
	}
}

func TestMemory_UpsertMessage_UnknownConversation(t *testing.T) {
	m := NewMemory()
	_, err := m.UpsertMessage(context.Background(), domain.MessageUpsert{ConversationID: "nope", ExternalID: "x"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_ListMessages_OrderedByTimestamp(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	conv, _ := m.UpsertConversation(ctx, domain.ConversationUpsert{AccountID: "a", PartnerName: "Anna"})

	_, _ = m.UpsertMessage(ctx, domain.MessageUpsert{AccountID: "a", ConversationID: conv.ID, ExternalID: "late", Timestamp: t0.Add(time.Hour)})
	_, _ = m.UpsertMessage(ctx, domain.MessageUpsert{AccountID: "a", ConversationID: conv.ID, ExternalID: "early", Timestamp: t0})

	msgs, _ := m.ListMessages(ctx, conv.ID)
	if len(msgs) != 2 || msgs[0].ExternalID != "early" {
		t.Errorf("expected oldest first, got %+v", msgs)
	}
}

// --- Sync Log Tests ---

func TestMemory_SyncLogs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := seedAccount(t, m, true)

	older, _ := m.CreateSyncLog(ctx, a.ID, t0)
	newer, _ := m.CreateSyncLog(ctx, a.ID, t0.Add(time.Minute))
	if older.Status != domain.SyncRunning {
		t.Errorf("new log should be running, got %s", older.Status)
	}

	if err := m.UpdateSyncLog(ctx, newer.ID, domain.SyncError, 3, "boom", t0.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}

	latest, err := m.LatestSyncLog(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != newer.ID || latest.Status != domain.SyncError || latest.MessagesSynced != 3 || latest.ErrorMessage != "boom" {
		t.Errorf("unexpected latest log: %+v", latest)
	}
	if latest.CompletedAt == nil || !latest.CompletedAt.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("CompletedAt = %v", latest.CompletedAt)
	}
}
