// Package domain defines the records kleinsync reconciles and the errors
// shared across the scraper, the store and the sync orchestrator.
package domain

import "time"

// Account is one external login on the classifieds site.
// EncryptedPassword holds ciphertext produced by the credentials package;
// the plaintext never appears on this type.
type Account struct {
	ID                string     `json:"id" yaml:"id"`
	Name              string     `json:"name" yaml:"name"`
	Email             string     `json:"email" yaml:"email"`
	EncryptedPassword string     `json:"-" yaml:"-"`
	Active            bool       `json:"active" yaml:"active"`
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty" yaml:"last_synced_at,omitempty"`
}

// Credentials is what the store hands to the core for a login: the email
// and the still-encrypted password.
type Credentials struct {
	Email      string
	Ciphertext string
}

// Conversation is a thread with one counterpart, keyed by (AccountID, PartnerName).
type Conversation struct {
	ID            string    `json:"id" yaml:"id"`
	AccountID     string    `json:"account_id" yaml:"account_id"`
	PartnerName   string    `json:"partner_name" yaml:"partner_name"`
	LastMessageAt time.Time `json:"last_message_at" yaml:"last_message_at"`
	UnreadCount   int       `json:"unread_count" yaml:"unread_count"`
	ListingTitle  string    `json:"listing_title,omitempty" yaml:"listing_title,omitempty"`
	ListingURL    string    `json:"listing_url,omitempty" yaml:"listing_url,omitempty"`
	ThreadURL     string    `json:"thread_url" yaml:"thread_url"`
}

// Message is one message within a conversation, keyed by (AccountID, ExternalID).
type Message struct {
	ID             string    `json:"id" yaml:"id"`
	AccountID      string    `json:"account_id" yaml:"account_id"`
	ConversationID string    `json:"conversation_id" yaml:"conversation_id"`
	Sender         string    `json:"sender" yaml:"sender"`
	Recipient      string    `json:"recipient" yaml:"recipient"`
	Subject        string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Body           string    `json:"body" yaml:"body"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	Read           bool      `json:"read" yaml:"read"`
	ExternalID     string    `json:"external_id" yaml:"external_id"`
	AttachmentURL  string    `json:"attachment_url,omitempty" yaml:"attachment_url,omitempty"`
}

// SyncStatus is the state of a sync log row.
type SyncStatus string

const (
	SyncRunning SyncStatus = "running"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// SyncLog records one sync attempt for one account.
type SyncLog struct {
	ID             string     `json:"id" yaml:"id"`
	AccountID      string     `json:"account_id" yaml:"account_id"`
	StartedAt      time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Status         SyncStatus `json:"status" yaml:"status"`
	MessagesSynced int        `json:"messages_synced" yaml:"messages_synced"`
	ErrorMessage   string     `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// ConversationSummary is one inbox row as extracted from the page.
type ConversationSummary struct {
	PartnerName   string
	Preview       string
	LastMessageAt time.Time
	UnreadCount   int
	ListingTitle  string
	ListingURL    string
	ThreadURL     string // required; rows without one are never emitted
}

// MessageRecord is one message as extracted from a thread page.
type MessageRecord struct {
	Sender        string
	Recipient     string
	Body          string
	Timestamp     time.Time
	ExternalID    string
	Read          bool
	AttachmentURL string
	FromAccount   bool // sent by the logged-in account
}

// ConversationUpsert carries the fields reconciled on (AccountID, PartnerName).
type ConversationUpsert struct {
	AccountID     string
	PartnerName   string
	LastMessageAt time.Time
	UnreadCount   int
	ListingTitle  string
	ListingURL    string
	ThreadURL     string
}

// MessageUpsert carries the fields reconciled on (AccountID, ExternalID).
type MessageUpsert struct {
	AccountID      string
	ConversationID string
	Sender         string
	Recipient      string
	Subject        string
	Body           string
	Timestamp      time.Time
	Read           bool
	ExternalID     string
	AttachmentURL  string
}

// NewMessageUpsert maps an extracted record onto a conversation.
func NewMessageUpsert(accountID, conversationID string, rec MessageRecord) MessageUpsert {
	return MessageUpsert{
		AccountID:      accountID,
		ConversationID: conversationID,
		Sender:         rec.Sender,
		Recipient:      rec.Recipient,
		Body:           rec.Body,
		Timestamp:      rec.Timestamp,
		Read:           rec.Read,
		ExternalID:     rec.ExternalID,
		AttachmentURL:  rec.AttachmentURL,
	}
}
