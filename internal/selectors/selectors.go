// Package selectors holds the versioned mapping from logical page elements
// to CSS locators. Updating the table is the only change needed when the
// site's markup moves; each element keeps an ordered list of alternates.
package selectors

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Element is a logical page element name.
type Element string

const (
	LoginEmail    Element = "login.email"
	LoginPassword Element = "login.password"
	LoginSubmit   Element = "login.submit"
	LoginError    Element = "login.error"
	SessionMarker Element = "session.marker"

	InboxRow          Element = "inbox.row"
	InboxLink         Element = "inbox.link"
	InboxPartner      Element = "inbox.partner"
	InboxPreview      Element = "inbox.preview"
	InboxTimestamp    Element = "inbox.timestamp"
	InboxUnread       Element = "inbox.unread"
	InboxListingTitle Element = "inbox.listing_title"
	InboxListingURL   Element = "inbox.listing_url"

	ThreadMessage      Element = "thread.message"
	ThreadSender       Element = "thread.sender"
	ThreadBody         Element = "thread.body"
	ThreadTimestamp    Element = "thread.timestamp"
	ThreadSentMarker   Element = "thread.sent_marker"
	ThreadUnreadMarker Element = "thread.unread_marker"
	ThreadAttachment   Element = "thread.attachment"
	ThreadReply        Element = "thread.reply"
	ThreadSend         Element = "thread.send"
)

// Required lists every element a table must define.
var Required = []Element{
	LoginEmail, LoginPassword, LoginSubmit, LoginError, SessionMarker,
	InboxRow, InboxLink, InboxPartner, InboxPreview, InboxTimestamp,
	InboxUnread, InboxListingTitle, InboxListingURL,
	ThreadMessage, ThreadSender, ThreadBody, ThreadTimestamp,
	ThreadSentMarker, ThreadUnreadMarker, ThreadAttachment, ThreadReply, ThreadSend,
}

// URLs are the fixed entry points of the site.
type URLs struct {
	Base  string `yaml:"base" validate:"required,url"`
	Login string `yaml:"login" validate:"required,url"`
	Inbox string `yaml:"inbox" validate:"required,url"`
}

// Table is a read-only selector table. Treat values returned by Default
// and Load as immutable once handed to a session.
type Table struct {
	Version  string               `yaml:"version" validate:"required"`
	URLs     URLs                 `yaml:"urls"`
	Elements map[Element][]string `yaml:"elements" validate:"required,dive,min=1,dive,required"`
}

// Default returns the built-in table for kleinanzeigen.de.
func Default() *Table {
	return &Table{
		Version: "2026-02",
		URLs: URLs{
			Base:  "https://www.kleinanzeigen.de",
			Login: "https://www.kleinanzeigen.de/m-einloggen.html",
			Inbox: "https://www.kleinanzeigen.de/m-nachrichten.html",
		},
		Elements: map[Element][]string{
			LoginEmail:    {"#login-email", `input[name="email"]`},
			LoginPassword: {"#login-password", `input[name="password"]`},
			LoginSubmit:   {"#login-submit", `button[type="submit"]`},
			LoginError:    {".messagebox--error", ".error-banner", ".alert-error"},
			SessionMarker: {`a[href*="logout"]`, ".user-menu"},

			InboxRow:          {".conversation-item", `[data-testid="conversation-item"]`},
			InboxLink:         {"a.conversation-link", "a[href]"},
			InboxPartner:      {".conversation-partner-name"},
			InboxPreview:      {".conversation-last-message"},
			InboxTimestamp:    {".conversation-timestamp"},
			InboxUnread:       {".unread-badge"},
			InboxListingTitle: {".conversation-listing-title"},
			InboxListingURL:   {".conversation-listing-link"},

			ThreadMessage:      {".message-item", `[data-testid="message"]`},
			ThreadSender:       {".message-sender"},
			ThreadBody:         {".message-body"},
			ThreadTimestamp:    {".message-timestamp"},
			ThreadSentMarker:   {".message-sent"},
			ThreadUnreadMarker: {".unread"},
			ThreadAttachment:   {".message-attachment"},
			ThreadReply:        {"#reply-message", `textarea[name="message"]`},
			ThreadSend:         {"#send-message-button", `button[type="submit"]`},
		},
	}
}

// Load reads a YAML table from path. Elements missing from the file are
// filled from the default table so an override only has to name what changed.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- operator-supplied selector file
	if err != nil {
		return nil, fmt.Errorf("failed to read selector file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML table and merges it over the default.
func Parse(data []byte) (*Table, error) {
	var override Table
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse selector table: %w", err)
	}

	t := Default()
	if override.Version != "" {
		t.Version = override.Version
	}
	if override.URLs.Base != "" {
		t.URLs.Base = override.URLs.Base
	}
	if override.URLs.Login != "" {
		t.URLs.Login = override.URLs.Login
	}
	if override.URLs.Inbox != "" {
		t.URLs.Inbox = override.URLs.Inbox
	}
	for el, locs := range override.Elements {
		t.Elements[el] = locs
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Marshal encodes the table as YAML.
func (t *Table) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

// Validate checks that every required element has at least one locator
// and that the URLs are absolute.
func (t *Table) Validate() error {
	if err := validator.New().Struct(t); err != nil {
		return fmt.Errorf("invalid selector table: %w", err)
	}
	var missing []string
	for _, el := range Required {
		if len(t.Elements[el]) == 0 {
			missing = append(missing, string(el))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid selector table: missing elements: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Candidates returns the ordered locators for el.
func (t *Table) Candidates(el Element) []string {
	return t.Elements[el]
}

// Find returns the matches of the first candidate for el that matches
// anything under s. The returned selection is empty when none match.
func (t *Table) Find(s *goquery.Selection, el Element) *goquery.Selection {
	for _, loc := range t.Elements[el] {
		if found := s.Find(loc); found.Length() > 0 {
			return found
		}
	}
	return s.Slice(0, 0)
}

// Is reports whether s itself matches any candidate for el.
func (t *Table) Is(s *goquery.Selection, el Element) bool {
	for _, loc := range t.Elements[el] {
		if s.Is(loc) {
			return true
		}
	}
	return false
}

// ResolveURL makes a thread locator absolute against the base URL.
func (t *Table) ResolveURL(locator string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return "", fmt.Errorf("invalid locator %q: %w", locator, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(t.URLs.Base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
