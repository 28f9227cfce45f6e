// Package store persists accounts, conversations, messages and sync logs.
//
// Conversations are reconciled on (account, partner name) and messages on
// (account, external message id); re-applying the same upsert never creates
// a second row.
package store

import (
	"context"
	"time"

	"github.com/jmylchreest/kleinsync/internal/domain"
)

// Store is the persistence the sync core depends on. Lookups that match
// nothing return an error wrapping domain.ErrNotFound.
type Store interface {
	ActiveAccounts(ctx context.Context) ([]domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	GetAccount(ctx context.Context, id string) (domain.Account, error)
	CreateAccount(ctx context.Context, a domain.Account) (domain.Account, error)
	SetAccountActive(ctx context.Context, id string, active bool) error
	AccountCredentials(ctx context.Context, id string) (domain.Credentials, error)
	UpdateLastSyncedAt(ctx context.Context, accountID string, at time.Time) error

	GetConversation(ctx context.Context, id string) (domain.Conversation, error)
	UpsertConversation(ctx context.Context, c domain.ConversationUpsert) (domain.Conversation, error)

	UpsertMessage(ctx context.Context, m domain.MessageUpsert) (domain.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	CreateSyncLog(ctx context.Context, accountID string, startedAt time.Time) (domain.SyncLog, error)
	UpdateSyncLog(ctx context.Context, id string, status domain.SyncStatus, messagesSynced int, errMsg string, completedAt time.Time) error
	LatestSyncLog(ctx context.Context, accountID string) (domain.SyncLog, error)

	Close()
}
