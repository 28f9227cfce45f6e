// Package parser turns rendered inbox and thread pages into conversation
// summaries and message records. It works on goquery documents so the
// same code runs against live page HTML and saved fixtures.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/kleinsync/internal/domain"
	"github.com/jmylchreest/kleinsync/internal/logger"
	"github.com/jmylchreest/kleinsync/internal/selectors"
	"github.com/jmylchreest/kleinsync/internal/timestamp"
)

var digitsPattern = regexp.MustCompile(`\d+`)

// Parse builds a document from rendered HTML.
func Parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	return doc, nil
}

// ExtractConversations returns one summary per inbox row, in page order.
// Rows without a thread link or partner name are logged and skipped.
func ExtractConversations(doc *goquery.Document, t *selectors.Table, now time.Time) []domain.ConversationSummary {
	var out []domain.ConversationSummary

	t.Find(doc.Selection, selectors.InboxRow).Each(func(i int, row *goquery.Selection) {
		summary, err := extractRow(row, t, now)
		if err != nil {
			logger.Warn("skipping conversation row", "index", i, "error", err)
			return
		}
		out = append(out, summary)
	})

	return out
}

func extractRow(row *goquery.Selection, t *selectors.Table, now time.Time) (domain.ConversationSummary, error) {
	link := t.Find(row, selectors.InboxLink).First()
	href := strings.TrimSpace(link.AttrOr("href", ""))
	if href == "" {
		return domain.ConversationSummary{}, fmt.Errorf("%w: row has no thread link", domain.ErrExtraction)
	}

	partner := text(t.Find(row, selectors.InboxPartner))
	if partner == "" {
		return domain.ConversationSummary{}, fmt.Errorf("%w: row %s has no partner name", domain.ErrExtraction, href)
	}

	summary := domain.ConversationSummary{
		PartnerName:   partner,
		Preview:       text(t.Find(row, selectors.InboxPreview)),
		LastMessageAt: timeOf(t.Find(row, selectors.InboxTimestamp), now),
		UnreadCount:   unreadCount(text(t.Find(row, selectors.InboxUnread))),
		ListingTitle:  text(t.Find(row, selectors.InboxListingTitle)),
		ThreadURL:     href,
	}

	if listing := strings.TrimSpace(t.Find(row, selectors.InboxListingURL).First().AttrOr("href", "")); listing != "" {
		if abs, err := t.ResolveURL(listing); err == nil {
			summary.ListingURL = abs
		} else {
			summary.ListingURL = listing
		}
	}

	return summary, nil
}

// ExtractMessages returns the records of a thread page in page order.
// accountEmail identifies messages sent by the logged-in account. When no
// counterpart is visible on the page, records sent by the account carry an
// empty Recipient.
func ExtractMessages(doc *goquery.Document, t *selectors.Table, accountEmail string, now time.Time) []domain.MessageRecord {
	type item struct {
		index      int
		sender     string
		body       string
		attachment string
		id         string
		ts         time.Time
		ours       bool
		unread     bool
	}

	var items []item
	counterpart := ""

	t.Find(doc.Selection, selectors.ThreadMessage).Each(func(i int, s *goquery.Selection) {
		it := item{
			index:      i,
			sender:     text(t.Find(s, selectors.ThreadSender)),
			body:       text(t.Find(s, selectors.ThreadBody)),
			attachment: attachmentURL(t.Find(s, selectors.ThreadAttachment).First()),
			id:         strings.TrimSpace(s.AttrOr("data-message-id", "")),
			ts:         timeOf(t.Find(s, selectors.ThreadTimestamp), now),
			unread:     t.Is(s, selectors.ThreadUnreadMarker),
		}
		it.ours = t.Is(s, selectors.ThreadSentMarker) ||
			(accountEmail != "" && strings.EqualFold(it.sender, accountEmail))

		if !it.ours && it.sender != "" && counterpart == "" {
			counterpart = it.sender
		}

		if it.body == "" && it.attachment == "" {
			logger.Warn("skipping message",
				"index", i,
				"error", fmt.Errorf("%w: message has neither body nor attachment", domain.ErrExtraction))
			return
		}
		items = append(items, it)
	})

	out := make([]domain.MessageRecord, 0, len(items))
	for _, it := range items {
		rec := domain.MessageRecord{
			Body:          it.body,
			Timestamp:     it.ts,
			ExternalID:    it.id,
			Read:          !it.unread,
			AttachmentURL: it.attachment,
			FromAccount:   it.ours,
		}
		if rec.ExternalID == "" {
			rec.ExternalID = SyntheticID(it.ts, it.index)
		}

		if it.ours {
			rec.Sender = accountEmail
			rec.Recipient = counterpart
		} else {
			rec.Sender = it.sender
			if rec.Sender == "" {
				rec.Sender = counterpart
			}
			rec.Recipient = accountEmail
		}
		out = append(out, rec)
	}

	return out
}

// SyntheticID is the external id given to messages the site renders
// without one. Timestamps are only minute-precise, so seconds are dropped.
func SyntheticID(ts time.Time, index int) string {
	return fmt.Sprintf("msg-%s-%d", ts.UTC().Truncate(time.Minute).Format(time.RFC3339), index)
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.First().Text()), " ")
}

// timeOf prefers a machine-readable datetime attribute over the display text.
func timeOf(s *goquery.Selection, now time.Time) time.Time {
	s = s.First()
	if dt, ok := s.Attr("datetime"); ok {
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(dt)); err == nil {
			return parsed.In(now.Location())
		}
	}
	return timestamp.Normalize(s.Text(), now)
}

func unreadCount(raw string) int {
	m := digitsPattern.FindString(raw)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func attachmentURL(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"href", "src", "data-src"} {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}
