package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/kleinsync/internal/selectors"
)

var now = time.Date(2026, time.March, 15, 10, 45, 30, 0, time.UTC)

// readTestdata reads a file from the testdata directory
func readTestdata(t *testing.T, filename string) string {
	t.Helper()
	path := filepath.Join("testdata", filename)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read testdata %s: %v", filename, err)
	}
	return string(data)
}

func mustParse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := Parse(html)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return doc
}

// --- ExtractConversations Tests ---

func TestExtractConversations_PrimaryMarkup(t *testing.T) {
	doc := mustParse(t, readTestdata(t, "inbox.html"))

	got := ExtractConversations(doc, selectors.Default(), now)
	if len(got) != 2 {
		t.Fatalf("expected 2 conversations (broken row skipped), got %d", len(got))
	}

	anna := got[0]
	if anna.PartnerName != "Anna K." {
		t.Errorf("PartnerName = %q", anna.PartnerName)
	}
	if anna.ThreadURL != "/m-nachrichten-lesen.html?id=1001" {
		t.Errorf("ThreadURL = %q", anna.ThreadURL)
	}
	if anna.Preview != "Ist das Fahrrad noch da?" {
		t.Errorf("Preview = %q", anna.Preview)
	}
	if !anna.LastMessageAt.Equal(now.Add(-2 * time.Hour)) {
		t.Errorf("LastMessageAt = %v", anna.LastMessageAt)
	}
	if anna.UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", anna.UnreadCount)
	}
	if anna.ListingTitle != "Damenfahrrad 28 Zoll" {
		t.Errorf("ListingTitle = %q", anna.ListingTitle)
	}
	if anna.ListingURL != "https://www.kleinanzeigen.de/s-anzeige/damenfahrrad/123" {
		t.Errorf("ListingURL = %q", anna.ListingURL)
	}

	bernd := got[1]
	if bernd.PartnerName != "Bernd" {
		t.Errorf("PartnerName should be trimmed, got %q", bernd.PartnerName)
	}
	if bernd.UnreadCount != 0 {
		t.Errorf("missing badge should give 0, got %d", bernd.UnreadCount)
	}
	want := time.Date(2026, time.March, 14, 14, 30, 0, 0, time.UTC)
	if !bernd.LastMessageAt.Equal(want) {
		t.Errorf("LastMessageAt = %v, want %v", bernd.LastMessageAt, want)
	}
	if bernd.ListingURL != "" || bernd.ListingTitle != "" {
		t.Error("listing fields should be empty when absent")
	}
}

func TestExtractConversations_AlternateMarkup(t *testing.T) {
	doc := mustParse(t, readTestdata(t, "inbox_alt.html"))

	got := ExtractConversations(doc, selectors.Default(), now)
	if len(got) != 2 {
		t.Fatalf("expected 2 conversations (row without partner skipped), got %d", len(got))
	}

	if got[0].PartnerName != "Carla" || got[0].UnreadCount != 99 {
		t.Errorf("unexpected first row: %+v", got[0])
	}
	want := time.Date(2026, time.February, 12, 18, 40, 0, 0, time.UTC)
	if !got[0].LastMessageAt.Equal(want) {
		t.Errorf("LastMessageAt = %v, want %v", got[0].LastMessageAt, want)
	}

	if got[1].ThreadURL != "https://www.kleinanzeigen.de/m-nachrichten-lesen.html?id=2003" {
		t.Errorf("absolute thread URL should be kept, got %q", got[1].ThreadURL)
	}
	if !got[1].LastMessageAt.Equal(now) {
		t.Errorf("unparseable timestamp should fall back to now, got %v", got[1].LastMessageAt)
	}
	if got[1].UnreadCount != 0 {
		t.Errorf("non-numeric badge should give 0, got %d", got[1].UnreadCount)
	}
}

func TestExtractConversations_EmptyInbox(t *testing.T) {
	doc := mustParse(t, `<html><body><p>Keine Nachrichten</p></body></html>`)

	if got := ExtractConversations(doc, selectors.Default(), now); len(got) != 0 {
		t.Errorf("expected no conversations, got %d", len(got))
	}
}

func TestExtractConversations_CustomTable(t *testing.T) {
	table := selectors.Default()
	table.Elements[selectors.InboxRow] = []string{"tr.thread"}
	table.Elements[selectors.InboxPartner] = []string{"td.who"}

	doc := mustParse(t, `<table>
<tr class="thread"><td class="who">Eva</td><td><a href="/t/1">open</a></td></tr>
</table>`)

	got := ExtractConversations(doc, table, now)
	if len(got) != 1 || got[0].PartnerName != "Eva" || got[0].ThreadURL != "/t/1" {
		t.Errorf("unexpected result with swapped table: %+v", got)
	}
}

// --- ExtractMessages Tests ---

func TestExtractMessages_Thread(t *testing.T) {
	doc := mustParse(t, readTestdata(t, "thread.html"))

	got := ExtractMessages(doc, selectors.Default(), "seller@example.com", now)
	if len(got) != 4 {
		t.Fatalf("expected 4 messages (empty one skipped), got %d", len(got))
	}

	first := got[0]
	if first.ExternalID != "m-501" {
		t.Errorf("ExternalID = %q", first.ExternalID)
	}
	if first.Sender != "Anna K." || first.Recipient != "seller@example.com" {
		t.Errorf("unexpected direction: %s -> %s", first.Sender, first.Recipient)
	}
	if first.FromAccount || !first.Read {
		t.Errorf("first message should be incoming and read: %+v", first)
	}
	if !first.Timestamp.Equal(time.Date(2026, time.March, 15, 9, 15, 0, 0, time.UTC)) {
		t.Errorf("Timestamp = %v", first.Timestamp)
	}

	sent := got[1]
	if sent.ExternalID != "msg-2026-03-15T09:40:00Z-1" {
		t.Errorf("synthetic ExternalID = %q", sent.ExternalID)
	}
	if !sent.FromAccount {
		t.Error("sent-marker item should be from the account")
	}
	if sent.Sender != "seller@example.com" || sent.Recipient != "Anna K." {
		t.Errorf("unexpected direction: %s -> %s", sent.Sender, sent.Recipient)
	}

	withAttachment := got[2]
	if withAttachment.ExternalID != "m-503" || withAttachment.Read {
		t.Errorf("m-503 should be unread: %+v", withAttachment)
	}
	if withAttachment.AttachmentURL != "https://img.example.com/keller.jpg" {
		t.Errorf("AttachmentURL = %q", withAttachment.AttachmentURL)
	}

	byEmail := got[3]
	if byEmail.ExternalID != "m-505" || !byEmail.FromAccount {
		t.Errorf("sender matching account email should be outgoing: %+v", byEmail)
	}
	if byEmail.Recipient != "Anna K." {
		t.Errorf("Recipient = %q", byEmail.Recipient)
	}
	if !byEmail.Timestamp.Equal(time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("datetime attribute should win, got %v", byEmail.Timestamp)
	}
}

func TestExtractMessages_EmailMatchIgnoresCase(t *testing.T) {
	doc := mustParse(t, `<div class="message-item" data-message-id="x1">
<span class="message-sender">Seller@Example.com</span>
<p class="message-body">hi</p></div>`)

	got := ExtractMessages(doc, selectors.Default(), "seller@example.com", now)
	if len(got) != 1 || !got[0].FromAccount {
		t.Fatalf("expected one outgoing message, got %+v", got)
	}
	if got[0].Recipient != "" {
		t.Errorf("no counterpart visible, recipient should be empty, got %q", got[0].Recipient)
	}
}

func TestExtractMessages_AttachmentOnly(t *testing.T) {
	doc := mustParse(t, `<div class="message-item" data-message-id="p1">
<span class="message-sender">Felix</span>
<img class="message-attachment" src="https://img.example.com/a.png"></div>`)

	got := ExtractMessages(doc, selectors.Default(), "seller@example.com", now)
	if len(got) != 1 {
		t.Fatalf("attachment-only message should be kept, got %d", len(got))
	}
	if got[0].Body != "" || got[0].AttachmentURL != "https://img.example.com/a.png" {
		t.Errorf("unexpected record: %+v", got[0])
	}
}

func TestExtractMessages_EmptyThread(t *testing.T) {
	doc := mustParse(t, `<div id="message-thread"></div>`)

	if got := ExtractMessages(doc, selectors.Default(), "seller@example.com", now); len(got) != 0 {
		t.Errorf("expected no messages, got %d", len(got))
	}
}

func TestExtractMessages_StableSyntheticIDs(t *testing.T) {
	html := readTestdata(t, "thread.html")

	a := ExtractMessages(mustParse(t, html), selectors.Default(), "seller@example.com", now)
	b := ExtractMessages(mustParse(t, html), selectors.Default(), "seller@example.com", now)

	for i := range a {
		if a[i].ExternalID != b[i].ExternalID {
			t.Errorf("ExternalID changed between runs: %q vs %q", a[i].ExternalID, b[i].ExternalID)
		}
	}
}

func TestExtractMessages_RelativeTimeSyntheticIDStable(t *testing.T) {
	html := `<div class="message-item">
<span class="message-sender">Anna K.</span>
<span class="message-timestamp">vor 2 Stunden</span>
<p class="message-body">Noch da?</p></div>`
	first := time.Date(2026, time.March, 15, 10, 45, 10, 0, time.UTC)

	a := ExtractMessages(mustParse(t, html), selectors.Default(), "seller@example.com", first)
	b := ExtractMessages(mustParse(t, html), selectors.Default(), "seller@example.com", first.Add(20*time.Second))

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected one message per run, got %d and %d", len(a), len(b))
	}
	if a[0].ExternalID != b[0].ExternalID {
		t.Errorf("ExternalID changed between syncs: %q vs %q", a[0].ExternalID, b[0].ExternalID)
	}
	if a[0].ExternalID != "msg-2026-03-15T08:45:00Z-0" {
		t.Errorf("ExternalID = %q", a[0].ExternalID)
	}
}

func TestExtractMessages_SkipsEmptyItems(t *testing.T) {
	doc := mustParse(t, `<div class="message-item" data-message-id="e1">
<span class="message-sender">Anna K.</span><p class="message-body">Hallo</p></div>
<div class="message-item" data-message-id="e2">
<span class="message-sender">Anna K.</span><span class="message-timestamp">Heute 10:05</span></div>
<div class="message-item">
<span class="message-sender">Anna K.</span><span class="message-timestamp">Heute 10:10</span>
<p class="message-body">Noch da?</p></div>`)

	got := ExtractMessages(doc, selectors.Default(), "seller@example.com", now)
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d: %+v", len(got), got)
	}
	if got[0].ExternalID != "e1" {
		t.Errorf("first message = %q, want e1", got[0].ExternalID)
	}
	// The skipped item still counts towards the synthetic index.
	if got[1].ExternalID != "msg-2026-03-15T10:10:00Z-2" || got[1].Body != "Noch da?" {
		t.Errorf("unexpected second message: %+v", got[1])
	}
}

// --- Helper Tests ---

func TestUnreadCount(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"3", 3},
		{" 12 ", 12},
		{"99+", 99},
		{"neu", 0},
		{"", 0},
		{"99999999999999999999999", 0},
	}
	for _, tt := range tests {
		if got := unreadCount(tt.raw); got != tt.want {
			t.Errorf("unreadCount(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestSyntheticID(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	ts := time.Date(2026, time.March, 15, 10, 40, 0, 0, berlin)

	if got := SyntheticID(ts, 7); got != "msg-2026-03-15T09:40:00Z-7" {
		t.Errorf("SyntheticID() = %q", got)
	}
	if got := SyntheticID(ts.Add(42*time.Second), 7); got != "msg-2026-03-15T09:40:00Z-7" {
		t.Errorf("SyntheticID() should drop seconds, got %q", got)
	}
}
