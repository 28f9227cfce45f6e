package domain

import "errors"

// Error types for distinguishing failure reasons.
// Check with errors.Is(err, domain.ErrLoginFailed).
var (
	// ErrElementNotFound indicates no locator for a logical element resolved in time.
	ErrElementNotFound = errors.New("element not found")
	// ErrLoginFailed indicates the site rejected the credentials or never showed a session.
	ErrLoginFailed = errors.New("login failed")
	// ErrNavigationTimeout indicates a navigation or DOM wait exceeded its deadline.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrExtraction indicates a single page item could not be turned into a record.
	ErrExtraction = errors.New("extraction error")
	// ErrDecryptionFailed indicates a ciphertext was foreign, truncated or tampered with.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrSendFailed indicates a reply could not be submitted.
	ErrSendFailed = errors.New("send failed")
	// ErrSessionState indicates a browser session operation was called in the wrong state.
	ErrSessionState = errors.New("invalid session state")
	// ErrAccountInactive indicates a sync was requested for a deactivated account.
	ErrAccountInactive = errors.New("account inactive")
	// ErrNotFound indicates a store lookup matched no row.
	ErrNotFound = errors.New("not found")
)
