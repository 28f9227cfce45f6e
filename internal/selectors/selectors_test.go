package selectors

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("failed to parse html: %v", err)
	}
	return doc
}

// --- Default Table Tests ---

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default table should validate: %v", err)
	}
}

func TestDefault_EveryRequiredElementHasCandidates(t *testing.T) {
	table := Default()
	for _, el := range Required {
		if len(table.Candidates(el)) == 0 {
			t.Errorf("element %s has no candidates", el)
		}
	}
}

func TestDefault_ReturnsIndependentCopies(t *testing.T) {
	a := Default()
	a.Elements[InboxRow] = []string{".changed"}

	b := Default()
	if b.Candidates(InboxRow)[0] == ".changed" {
		t.Error("Default() should not share state between calls")
	}
}

// --- Validate Tests ---

func TestValidate_MissingElement(t *testing.T) {
	table := Default()
	delete(table.Elements, ThreadSend)

	err := table.Validate()
	if err == nil {
		t.Fatal("expected error for missing element")
	}
	if !strings.Contains(err.Error(), string(ThreadSend)) {
		t.Errorf("error should name the missing element, got %v", err)
	}
}

func TestValidate_EmptyCandidateList(t *testing.T) {
	table := Default()
	table.Elements[LoginEmail] = []string{}

	if err := table.Validate(); err == nil {
		t.Fatal("expected error for empty candidate list")
	}
}

func TestValidate_EmptyLocator(t *testing.T) {
	table := Default()
	table.Elements[LoginEmail] = []string{"#login-email", ""}

	if err := table.Validate(); err == nil {
		t.Fatal("expected error for empty locator")
	}
}

func TestValidate_RelativeURL(t *testing.T) {
	table := Default()
	table.URLs.Login = "/m-einloggen.html"

	if err := table.Validate(); err == nil {
		t.Fatal("expected error for relative login URL")
	}
}

// --- Parse / Load Tests ---

func TestParse_OverridesOnlyNamedElements(t *testing.T) {
	data := []byte(`
version: "2026-05"
elements:
  inbox.row:
    - ".thread-row"
    - "li[data-thread]"
`)
	table, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if table.Version != "2026-05" {
		t.Errorf("expected version 2026-05, got %q", table.Version)
	}
	rows := table.Candidates(InboxRow)
	if len(rows) != 2 || rows[0] != ".thread-row" || rows[1] != "li[data-thread]" {
		t.Errorf("unexpected inbox.row candidates: %v", rows)
	}
	if table.Candidates(LoginEmail)[0] != "#login-email" {
		t.Error("unnamed elements should keep default candidates")
	}
	if table.URLs.Base != Default().URLs.Base {
		t.Error("unnamed URLs should keep defaults")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("elements: [unclosed")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestParse_EmptyOverrideList(t *testing.T) {
	data := []byte(`
elements:
  thread.reply: []
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected validation error for empty list")
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "selectors.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if table.Version != Default().Version {
		t.Errorf("version mismatch: %q", table.Version)
	}
	if len(table.Elements) != len(Default().Elements) {
		t.Errorf("expected %d elements, got %d", len(Default().Elements), len(table.Elements))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// --- Find / Is Tests ---

func TestFind_FallsBackToAlternate(t *testing.T) {
	doc := mustDoc(t, `<ul><li data-testid="conversation-item">a</li><li data-testid="conversation-item">b</li></ul>`)

	rows := Default().Find(doc.Selection, InboxRow)
	if rows.Length() != 2 {
		t.Errorf("expected 2 rows via alternate locator, got %d", rows.Length())
	}
}

func TestFind_PrefersPrimary(t *testing.T) {
	doc := mustDoc(t, `<div><li class="conversation-item">primary</li><li data-testid="conversation-item">alt</li></div>`)

	rows := Default().Find(doc.Selection, InboxRow)
	if rows.Length() != 1 || rows.Text() != "primary" {
		t.Errorf("expected only the primary match, got %d %q", rows.Length(), rows.Text())
	}
}

func TestFind_NoMatch(t *testing.T) {
	doc := mustDoc(t, `<div>nothing here</div>`)

	rows := Default().Find(doc.Selection, InboxRow)
	if rows.Length() != 0 {
		t.Errorf("expected empty selection, got %d", rows.Length())
	}
	if rows.Text() != "" {
		t.Error("empty selection should have no text")
	}
}

func TestIs(t *testing.T) {
	doc := mustDoc(t, `<div class="message-item message-sent">x</div><div class="message-item">y</div>`)
	items := doc.Find(".message-item")

	table := Default()
	if !table.Is(items.Eq(0), ThreadSentMarker) {
		t.Error("first item should match the sent marker")
	}
	if table.Is(items.Eq(1), ThreadSentMarker) {
		t.Error("second item should not match the sent marker")
	}
}

// --- ResolveURL Tests ---

func TestResolveURL(t *testing.T) {
	table := Default()

	tests := []struct {
		locator string
		want    string
	}{
		{"/m-nachrichten-lesen.html?id=42", "https://www.kleinanzeigen.de/m-nachrichten-lesen.html?id=42"},
		{"https://www.kleinanzeigen.de/m-nachrichten-lesen.html?id=7", "https://www.kleinanzeigen.de/m-nachrichten-lesen.html?id=7"},
		{"  /m-nachrichten-lesen.html?id=1  ", "https://www.kleinanzeigen.de/m-nachrichten-lesen.html?id=1"},
	}

	for _, tt := range tests {
		got, err := table.ResolveURL(tt.locator)
		if err != nil {
			t.Errorf("ResolveURL(%q) error = %v", tt.locator, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveURL(%q) = %q, want %q", tt.locator, got, tt.want)
		}
	}
}

func TestResolveURL_Invalid(t *testing.T) {
	if _, err := Default().ResolveURL("://bad"); err == nil {
		t.Fatal("expected error for invalid locator")
	}
}
