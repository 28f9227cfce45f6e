// Package syncer reconciles one account's inbox into the store: log in,
// enumerate conversations, fetch each thread and upsert what it finds.
//
// A sync attempt is bounded by one sync log row. Failures inside a single
// conversation are logged and skipped; failures before the conversation
// loop (decryption, login, inbox listing) fail the attempt. The browser
// session is always closed before a sync returns.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jmylchreest/kleinsync/internal/domain"
	"github.com/jmylchreest/kleinsync/internal/logger"
	"github.com/jmylchreest/kleinsync/internal/store"
)

// Session is the browser-side surface a sync needs. *browser.Session
// implements it.
type Session interface {
	Login(ctx context.Context, email, password string) error
	ListConversations(ctx context.Context) ([]domain.ConversationSummary, error)
	ListMessages(ctx context.Context, locator string) ([]domain.MessageRecord, error)
	SendMessage(ctx context.Context, locator, body string) error
	Close() error
}

// SessionFactory returns a fresh, unused session.
type SessionFactory func() Session

// Decrypter opens stored password ciphertexts.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Result summarises one successful sync attempt.
type Result struct {
	AccountID         string `json:"account_id" yaml:"account_id"`
	ConversationsSeen int    `json:"conversations_seen" yaml:"conversations_seen"`
	MessagesSynced    int    `json:"messages_synced" yaml:"messages_synced"`
	SyncLogID         string `json:"sync_log_id" yaml:"sync_log_id"`
}

// AccountResult is one row of a batch run.
type AccountResult struct {
	AccountID     string            `json:"account_id" yaml:"account_id"`
	AccountName   string            `json:"account_name" yaml:"account_name"`
	Status        domain.SyncStatus `json:"status" yaml:"status"`
	Conversations int               `json:"conversations" yaml:"conversations"`
	Messages      int               `json:"messages" yaml:"messages"`
	Error         string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// Default pauses between accounts and between conversations.
const (
	DefaultAccountDelay      = 2 * time.Second
	DefaultConversationDelay = time.Second
)

// Option configures a Syncer.
type Option func(*Syncer)

// WithAccountDelay sets the pause between accounts in SyncAll.
func WithAccountDelay(d time.Duration) Option {
	return func(s *Syncer) { s.accountDelay = d }
}

// WithConversationDelay sets the pause between conversations.
func WithConversationDelay(d time.Duration) Option {
	return func(s *Syncer) { s.conversationDelay = d }
}

// WithAccountTimeout bounds each account's attempt in SyncAll. Zero means
// no bound beyond the caller's context.
func WithAccountTimeout(d time.Duration) Option {
	return func(s *Syncer) { s.accountTimeout = d }
}

// WithClock sets the clock used for sync log and sent-message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// Syncer runs sync attempts and replies.
type Syncer struct {
	store      store.Store
	decrypter  Decrypter
	newSession SessionFactory
	validate   *validator.Validate

	accountDelay      time.Duration
	conversationDelay time.Duration
	accountTimeout    time.Duration
	now               func() time.Time
	sleep             func(ctx context.Context, d time.Duration) error
}

// New creates a Syncer.
func New(st store.Store, decrypter Decrypter, sessions SessionFactory, opts ...Option) *Syncer {
	s := &Syncer{
		store:             st,
		decrypter:         decrypter,
		newSession:        sessions,
		validate:          validator.New(),
		accountDelay:      DefaultAccountDelay,
		conversationDelay: DefaultConversationDelay,
		now:               time.Now,
		sleep:             sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncAccountByID loads an account and syncs it. Inactive accounts are
// rejected with domain.ErrAccountInactive.
func (s *Syncer) SyncAccountByID(ctx context.Context, id string) (Result, error) {
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !account.Active {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrAccountInactive, id)
	}
	return s.SyncAccount(ctx, account)
}

// SyncAccount runs one sync attempt for account. It returns an error only
// when the attempt as a whole failed; the sync log records the outcome
// either way.
func (s *Syncer) SyncAccount(ctx context.Context, account domain.Account) (Result, error) {
	log := logger.With("account_id", account.ID, "account", account.Name)
	res := Result{AccountID: account.ID}

	syncLog, err := s.store.CreateSyncLog(ctx, account.ID, s.now())
	if err != nil {
		return res, fmt.Errorf("failed to create sync log: %w", err)
	}
	res.SyncLogID = syncLog.ID

	log.Info("sync started", "sync_log_id", syncLog.ID)
	start := time.Now()

	if err := s.run(ctx, log, account, &res); err != nil {
		log.Error("sync failed", "error", err, "messages", res.MessagesSynced)
		s.finalize(ctx, log, syncLog.ID, domain.SyncError, res.MessagesSynced, err.Error())
		return res, err
	}

	s.finalize(ctx, log, syncLog.ID, domain.SyncSuccess, res.MessagesSynced, "")
	if err := s.store.UpdateLastSyncedAt(ctx, account.ID, s.now()); err != nil {
		log.Warn("failed to update last synced time", "error", err)
	}

	log.Info("sync finished",
		"conversations", res.ConversationsSeen,
		"messages", res.MessagesSynced,
		"duration", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (s *Syncer) run(ctx context.Context, log *slog.Logger, account domain.Account, res *Result) error {
	creds, err := s.store.AccountCredentials(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	password, err := s.decrypter.Decrypt(creds.Ciphertext)
	if err != nil {
		return err
	}

	session := s.newSession()
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("failed to close browser session", "error", err)
		}
	}()

	if err := session.Login(ctx, creds.Email, password); err != nil {
		return err
	}

	summaries, err := session.ListConversations(ctx)
	if err != nil {
		return err
	}
	res.ConversationsSeen = len(summaries)
	log.Debug("inbox listed", "conversations", len(summaries))

	for i, summary := range summaries {
		if i > 0 && s.conversationDelay > 0 {
			if err := s.sleep(ctx, s.conversationDelay); err != nil {
				return err
			}
		}

		n, err := s.syncConversation(ctx, session, account.ID, summary)
		res.MessagesSynced += n
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("conversation skipped",
				"partner", summary.PartnerName,
				"thread", summary.ThreadURL,
				"synced", n,
				"error", err)
		}
	}

	return nil
}

// syncConversation reconciles one conversation and its messages, returning
// how many messages were upserted before any failure.
func (s *Syncer) syncConversation(ctx context.Context, session Session, accountID string, summary domain.ConversationSummary) (int, error) {
	conv, err := s.store.UpsertConversation(ctx, domain.ConversationUpsert{
		AccountID:     accountID,
		PartnerName:   summary.PartnerName,
		LastMessageAt: summary.LastMessageAt,
		UnreadCount:   summary.UnreadCount,
		ListingTitle:  summary.ListingTitle,
		ListingURL:    summary.ListingURL,
		ThreadURL:     summary.ThreadURL,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert conversation: %w", err)
	}

	records, err := session.ListMessages(ctx, summary.ThreadURL)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, rec := range records {
		if rec.Recipient == "" {
			rec.Recipient = conv.PartnerName
		}
		if rec.Sender == "" {
			rec.Sender = conv.PartnerName
		}
		if _, err := s.store.UpsertMessage(ctx, domain.NewMessageUpsert(accountID, conv.ID, rec)); err != nil {
			return synced, fmt.Errorf("failed to upsert message %s: %w", rec.ExternalID, err)
		}
		synced++
	}
	return synced, nil
}

func (s *Syncer) finalize(ctx context.Context, log *slog.Logger, id string, status domain.SyncStatus, messages int, errMsg string) {
	// The attempt may have ended because ctx did; the log row still needs closing.
	if err := s.store.UpdateSyncLog(context.WithoutCancel(ctx), id, status, messages, errMsg, s.now()); err != nil {
		log.Error("failed to finalize sync log", "sync_log_id", id, "error", err)
	}
}

// SyncAll syncs every active account in turn, pausing between accounts.
// A failing account is reported in its row and does not stop the batch;
// only a cancelled ctx or a failed account listing ends it early.
func (s *Syncer) SyncAll(ctx context.Context) ([]AccountResult, error) {
	accounts, err := s.store.ActiveAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}

	logger.Info("batch sync started", "accounts", len(accounts))
	results := make([]AccountResult, 0, len(accounts))

	for i, account := range accounts {
		if i > 0 && s.accountDelay > 0 {
			if err := s.sleep(ctx, s.accountDelay); err != nil {
				return results, err
			}
		}

		results = append(results, s.syncOne(ctx, account))
	}

	ok := 0
	for _, r := range results {
		if r.Status == domain.SyncSuccess {
			ok++
		}
	}
	logger.Info("batch sync finished", "accounts", len(results), "succeeded", ok, "failed", len(results)-ok)
	return results, nil
}

func (s *Syncer) syncOne(ctx context.Context, account domain.Account) AccountResult {
	if s.accountTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.accountTimeout)
		defer cancel()
	}

	row := AccountResult{AccountID: account.ID, AccountName: account.Name}
	res, err := s.SyncAccount(ctx, account)
	row.Conversations = res.ConversationsSeen
	row.Messages = res.MessagesSynced
	if err != nil {
		row.Status = domain.SyncError
		row.Error = err.Error()
		return row
	}
	row.Status = domain.SyncSuccess
	return row
}

type replyInput struct {
	Locator string `validate:"required"`
	Body    string `validate:"required,max=5000"`
}

// SendReply logs in with creds and posts body to the thread at locator. The
// returned record is for the caller to persist; its Recipient is empty.
func (s *Syncer) SendReply(ctx context.Context, locator, body string, creds domain.Credentials) (domain.MessageRecord, error) {
	if err := s.validate.Struct(replyInput{Locator: locator, Body: body}); err != nil {
		return domain.MessageRecord{}, fmt.Errorf("invalid reply: %w", err)
	}

	password, err := s.decrypter.Decrypt(creds.Ciphertext)
	if err != nil {
		return domain.MessageRecord{}, err
	}

	session := s.newSession()
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close browser session", "error", err)
		}
	}()

	if err := session.Login(ctx, creds.Email, password); err != nil {
		return domain.MessageRecord{}, err
	}
	if err := session.SendMessage(ctx, locator, body); err != nil {
		return domain.MessageRecord{}, err
	}

	logger.Info("reply sent", "email", creds.Email, "thread", locator)
	return domain.MessageRecord{
		Sender:      creds.Email,
		Body:        body,
		Timestamp:   s.now(),
		ExternalID:  "sent-" + uuid.NewString(),
		Read:        true,
		FromAccount: true,
	}, nil
}

// ReplyToConversation sends body on a stored conversation and persists the
// sent message against it.
func (s *Syncer) ReplyToConversation(ctx context.Context, conversationID, body string) (domain.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if conv.ThreadURL == "" {
		return domain.Message{}, fmt.Errorf("%w: conversation %s has no thread locator", domain.ErrSendFailed, conv.ID)
	}
	creds, err := s.store.AccountCredentials(ctx, conv.AccountID)
	if err != nil {
		return domain.Message{}, err
	}

	rec, err := s.SendReply(ctx, conv.ThreadURL, body, creds)
	if err != nil {
		return domain.Message{}, err
	}
	rec.Recipient = conv.PartnerName

	msg, err := s.store.UpsertMessage(ctx, domain.NewMessageUpsert(conv.AccountID, conv.ID, rec))
	if err != nil {
		return domain.Message{}, fmt.Errorf("reply sent but not stored: %w", err)
	}
	return msg, nil
}

// IsCredentialError reports whether err means the stored credentials
// should be re-checked.
func IsCredentialError(err error) bool {
	return errors.Is(err, domain.ErrLoginFailed) || errors.Is(err, domain.ErrDecryptionFailed)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
