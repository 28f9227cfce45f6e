package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmylchreest/kleinsync/internal/domain"
)

// PoolOptions tunes the connection pool. Zero values keep the defaults.
type PoolOptions struct {
	MaxConns        int32
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration
}

// Postgres is a Store backed by a pgx pool. The accounts, conversations,
// messages and sync_logs tables are provisioned outside this package.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, opts PoolOptions) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres: database url not configured")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	cfg.MaxConns = 4
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	cfg.MaxConnLifetime = time.Hour
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

const accountColumns = `id::text, account_name, email, password, is_active, last_synced_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.EncryptedPassword, &a.Active, &a.LastSyncedAt)
	return a, err
}

func (p *Postgres) queryAccounts(ctx context.Context, query string, args ...any) ([]domain.Account, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read accounts: %w", err)
	}
	return out, nil
}

func (p *Postgres) ActiveAccounts(ctx context.Context) ([]domain.Account, error) {
	return p.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE is_active ORDER BY created_at`)
}

func (p *Postgres) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return p.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
}

func (p *Postgres) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	a, err := scanAccount(p.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1::uuid`, id))
	if err != nil {
		return domain.Account{}, notFound("account", id, err)
	}
	return a, nil
}

func (p *Postgres) CreateAccount(ctx context.Context, a domain.Account) (domain.Account, error) {
	out, err := scanAccount(p.pool.QueryRow(ctx, `
		INSERT INTO accounts (account_name, email, password, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING `+accountColumns,
		a.Name, a.Email, a.EncryptedPassword, a.Active))
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: create account: %w", err)
	}
	return out, nil
}

func (p *Postgres) SetAccountActive(ctx context.Context, id string, active bool) error {
	ct, err := p.pool.Exec(ctx,
		`UPDATE accounts SET is_active = $2, updated_at = now() WHERE id = $1::uuid`, id, active)
	if err != nil {
		return fmt.Errorf("postgres: update account: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (p *Postgres) AccountCredentials(ctx context.Context, id string) (domain.Credentials, error) {
	var c domain.Credentials
	err := p.pool.QueryRow(ctx,
		`SELECT email, password FROM accounts WHERE id = $1::uuid`, id).Scan(&c.Email, &c.Ciphertext)
	if err != nil {
		return domain.Credentials{}, notFound("account", id, err)
	}
	return c, nil
}

func (p *Postgres) UpdateLastSyncedAt(ctx context.Context, accountID string, at time.Time) error {
	ct, err := p.pool.Exec(ctx,
		`UPDATE accounts SET last_synced_at = $2, updated_at = now() WHERE id = $1::uuid`, accountID, at)
	if err != nil {
		return fmt.Errorf("postgres: update last_synced_at: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	return nil
}

const conversationColumns = `id::text, account_id::text, partner_name, last_message_at, unread_count,
	COALESCE(listing_title, ''), COALESCE(listing_url, ''), COALESCE(thread_url, '')`

func scanConversation(row pgx.Row) (domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(&c.ID, &c.AccountID, &c.PartnerName, &c.LastMessageAt, &c.UnreadCount,
		&c.ListingTitle, &c.ListingURL, &c.ThreadURL)
	return c, err
}

func (p *Postgres) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	c, err := scanConversation(p.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1::uuid`, id))
	if err != nil {
		return domain.Conversation{}, notFound("conversation", id, err)
	}
	return c, nil
}

func (p *Postgres) UpsertConversation(ctx context.Context, in domain.ConversationUpsert) (domain.Conversation, error) {
	c, err := scanConversation(p.pool.QueryRow(ctx, `
		INSERT INTO conversations (account_id, partner_name, last_message_at, unread_count, listing_title, listing_url, thread_url)
		VALUES ($1::uuid, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		ON CONFLICT (account_id, partner_name)
		DO UPDATE SET last_message_at = EXCLUDED.last_message_at,
		              unread_count = EXCLUDED.unread_count,
		              listing_title = EXCLUDED.listing_title,
		              listing_url = EXCLUDED.listing_url,
		              thread_url = EXCLUDED.thread_url,
		              updated_at = now()
		RETURNING `+conversationColumns,
		in.AccountID, in.PartnerName, in.LastMessageAt, in.UnreadCount, in.ListingTitle, in.ListingURL, in.ThreadURL))
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("postgres: upsert conversation: %w", err)
	}
	return c, nil
}

const messageColumns = `id::text, account_id::text, conversation_id::text, sender, recipient,
	COALESCE(subject, ''), body, "timestamp", is_read, external_message_id, COALESCE(attachment_url, '')`

func scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.AccountID, &m.ConversationID, &m.Sender, &m.Recipient,
		&m.Subject, &m.Body, &m.Timestamp, &m.Read, &m.ExternalID, &m.AttachmentURL)
	return m, err
}

func (p *Postgres) UpsertMessage(ctx context.Context, in domain.MessageUpsert) (domain.Message, error) {
	m, err := scanMessage(p.pool.QueryRow(ctx, `
		INSERT INTO messages (account_id, conversation_id, sender, recipient, subject, body, "timestamp", is_read, external_message_id, attachment_url)
		VALUES ($1::uuid, $2::uuid, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''))
		ON CONFLICT (account_id, external_message_id)
		DO UPDATE SET conversation_id = EXCLUDED.conversation_id,
		              sender = EXCLUDED.sender,
		              recipient = EXCLUDED.recipient,
		              subject = EXCLUDED.subject,
		              body = EXCLUDED.body,
		              "timestamp" = EXCLUDED."timestamp",
		              is_read = EXCLUDED.is_read,
		              attachment_url = EXCLUDED.attachment_url
		RETURNING `+messageColumns,
		in.AccountID, in.ConversationID, in.Sender, in.Recipient, in.Subject, in.Body,
		in.Timestamp, in.Read, in.ExternalID, in.AttachmentURL))
	if err != nil {
		return domain.Message{}, fmt.Errorf("postgres: upsert message: %w", err)
	}
	return m, nil
}

func (p *Postgres) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1::uuid ORDER BY "timestamp" ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read messages: %w", err)
	}
	return out, nil
}

const syncLogColumns = `id::text, account_id::text, sync_started_at, sync_completed_at, status,
	messages_synced, COALESCE(error_message, '')`

func scanSyncLog(row pgx.Row) (domain.SyncLog, error) {
	var (
		l      domain.SyncLog
		status string
	)
	err := row.Scan(&l.ID, &l.AccountID, &l.StartedAt, &l.CompletedAt, &status, &l.MessagesSynced, &l.ErrorMessage)
	l.Status = domain.SyncStatus(status)
	return l, err
}

func (p *Postgres) CreateSyncLog(ctx context.Context, accountID string, startedAt time.Time) (domain.SyncLog, error) {
	l, err := scanSyncLog(p.pool.QueryRow(ctx, `
		INSERT INTO sync_logs (account_id, sync_started_at, status, messages_synced)
		VALUES ($1::uuid, $2, $3, 0)
		RETURNING `+syncLogColumns,
		accountID, startedAt, string(domain.SyncRunning)))
	if err != nil {
		return domain.SyncLog{}, fmt.Errorf("postgres: create sync log: %w", err)
	}
	return l, nil
}

func (p *Postgres) UpdateSyncLog(ctx context.Context, id string, status domain.SyncStatus, messagesSynced int, errMsg string, completedAt time.Time) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE sync_logs
		SET status = $2, messages_synced = $3, error_message = NULLIF($4, ''), sync_completed_at = $5
		WHERE id = $1::uuid`,
		id, string(status), messagesSynced, errMsg, completedAt)
	if err != nil {
		return fmt.Errorf("postgres: update sync log: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("sync log %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (p *Postgres) LatestSyncLog(ctx context.Context, accountID string) (domain.SyncLog, error) {
	l, err := scanSyncLog(p.pool.QueryRow(ctx, `
		SELECT `+syncLogColumns+` FROM sync_logs
		WHERE account_id = $1::uuid
		ORDER BY sync_started_at DESC
		LIMIT 1`, accountID))
	if err != nil {
		return domain.SyncLog{}, notFound("sync log for account", accountID, err)
	}
	return l, nil
}

// notFound maps pgx.ErrNoRows onto domain.ErrNotFound.
func notFound(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return fmt.Errorf("postgres: load %s %s: %w", kind, id, err)
}

var _ Store = (*Postgres)(nil)
var _ Store = (*Memory)(nil)
