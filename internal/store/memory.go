package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/kleinsync/internal/domain"
)

type partnerKey struct{ accountID, partner string }
type externalKey struct{ accountID, externalID string }

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	accounts      map[string]domain.Account
	accountOrder  []string
	conversations map[string]domain.Conversation
	byPartner     map[partnerKey]string
	messages      map[string]domain.Message
	byExternal    map[externalKey]string
	messageOrder  []string
	syncLogs      map[string]domain.SyncLog
	syncLogOrder  []string
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		accounts:      make(map[string]domain.Account),
		conversations: make(map[string]domain.Conversation),
		byPartner:     make(map[partnerKey]string),
		messages:      make(map[string]domain.Message),
		byExternal:    make(map[externalKey]string),
		syncLogs:      make(map[string]domain.SyncLog),
	}
}

func (m *Memory) ActiveAccounts(ctx context.Context) ([]domain.Account, error) {
	all, err := m.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, a := range all {
		if a.Active {
			active = append(active, a)
		}
	}
	return active, nil
}

// ListAccounts returns accounts in creation order.
func (m *Memory) ListAccounts(context.Context) ([]domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Account, 0, len(m.accountOrder))
	for _, id := range m.accountOrder {
		out = append(out, m.accounts[id])
	}
	return out, nil
}

func (m *Memory) GetAccount(_ context.Context, id string) (domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return domain.Account{}, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// CreateAccount stores a. An empty ID is replaced with a new UUID.
func (m *Memory) CreateAccount(_ context.Context, a domain.Account) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := m.accounts[a.ID]; exists {
		return domain.Account{}, fmt.Errorf("account %s already exists", a.ID)
	}
	m.accounts[a.ID] = a
	m.accountOrder = append(m.accountOrder, a.ID)
	return a, nil
}

func (m *Memory) SetAccountActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	a.Active = active
	m.accounts[id] = a
	return nil
}

func (m *Memory) AccountCredentials(ctx context.Context, id string) (domain.Credentials, error) {
	a, err := m.GetAccount(ctx, id)
	if err != nil {
		return domain.Credentials{}, err
	}
	return domain.Credentials{Email: a.Email, Ciphertext: a.EncryptedPassword}, nil
}

func (m *Memory) UpdateLastSyncedAt(_ context.Context, accountID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	a.LastSyncedAt = &at
	m.accounts[accountID] = a
	return nil
}

func (m *Memory) GetConversation(_ context.Context, id string) (domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (m *Memory) UpsertConversation(_ context.Context, in domain.ConversationUpsert) (domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := partnerKey{in.AccountID, in.PartnerName}
	id, ok := m.byPartner[key]
	if !ok {
		id = uuid.NewString()
		m.byPartner[key] = id
	}

	c := domain.Conversation{
		ID:            id,
		AccountID:     in.AccountID,
		PartnerName:   in.PartnerName,
		LastMessageAt: in.LastMessageAt,
		UnreadCount:   in.UnreadCount,
		ListingTitle:  in.ListingTitle,
		ListingURL:    in.ListingURL,
		ThreadURL:     in.ThreadURL,
	}
	m.conversations[id] = c
	return c, nil
}

func (m *Memory) UpsertMessage(_ context.Context, in domain.MessageUpsert) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[in.ConversationID]; !ok {
		return domain.Message{}, fmt.Errorf("conversation %s: %w", in.ConversationID, domain.ErrNotFound)
	}

	key := externalKey{in.AccountID, in.ExternalID}
	id, ok := m.byExternal[key]
	if !ok {
		id = uuid.NewString()
		m.byExternal[key] = id
		m.messageOrder = append(m.messageOrder, id)
	}

	msg := domain.Message{
		ID:             id,
		AccountID:      in.AccountID,
		ConversationID: in.ConversationID,
		Sender:         in.Sender,
		Recipient:      in.Recipient,
		Subject:        in.Subject,
		Body:           in.Body,
		Timestamp:      in.Timestamp,
		Read:           in.Read,
		ExternalID:     in.ExternalID,
		AttachmentURL:  in.AttachmentURL,
	}
	m.messages[id] = msg
	return msg, nil
}

// ListMessages returns a conversation's messages oldest first.
func (m *Memory) ListMessages(_ context.Context, conversationID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Message
	for _, id := range m.messageOrder {
		if msg := m.messages[id]; msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) CreateSyncLog(_ context.Context, accountID string, startedAt time.Time) (domain.SyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := domain.SyncLog{
		ID:        uuid.NewString(),
		AccountID: accountID,
		StartedAt: startedAt,
		Status:    domain.SyncRunning,
	}
	m.syncLogs[l.ID] = l
	m.syncLogOrder = append(m.syncLogOrder, l.ID)
	return l, nil
}

func (m *Memory) UpdateSyncLog(_ context.Context, id string, status domain.SyncStatus, messagesSynced int, errMsg string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.syncLogs[id]
	if !ok {
		return fmt.Errorf("sync log %s: %w", id, domain.ErrNotFound)
	}
	l.Status = status
	l.MessagesSynced = messagesSynced
	l.ErrorMessage = errMsg
	l.CompletedAt = &completedAt
	m.syncLogs[id] = l
	return nil
}

// LatestSyncLog returns the most recently started log for accountID.
func (m *Memory) LatestSyncLog(_ context.Context, accountID string) (domain.SyncLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		latest domain.SyncLog
		found  bool
	)
	for _, id := range m.syncLogOrder {
		l := m.syncLogs[id]
		if l.AccountID != accountID {
			continue
		}
		if !found || !l.StartedAt.Before(latest.StartedAt) {
			latest, found = l, true
		}
	}
	if !found {
		return domain.SyncLog{}, fmt.Errorf("sync log for account %s: %w", accountID, domain.ErrNotFound)
	}
	return latest, nil
}

// MessageCount returns the number of stored messages.
func (m *Memory) MessageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// ConversationCount returns the number of stored conversations.
func (m *Memory) ConversationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}

// Close is a no-op.
func (m *Memory) Close() {}
