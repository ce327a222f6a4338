package parser

import (
	"reflect"
	"strings"
	"testing"

	"github.com/starford/vocanote/internal/models"
)

func TestSplit_BlankLineRuns(t *testing.T) {
	body := "first line\nstill first\n\n\n  second  \n \n\t\nthird\n\n"
	got := Split(body)
	want := []string{"first line\nstill first", "second", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %q, want %q", got, want)
	}
}

func TestSplit_EmptyBody(t *testing.T) {
	for _, body := range []string{"", "   ", "\n\n\n", " \t\n \n"} {
		if got := Split(body); len(got) != 0 {
			t.Errorf("Split(%q) = %q, want empty", body, got)
		}
	}
}

func TestSplit_CRLF(t *testing.T) {
	got := Split("a\r\n\r\nb")
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Split = %q", got)
	}
}

func TestJoinSplitRoundTrip(t *testing.T) {
	notes := [][]string{
		{"one"},
		{"one", "two", "three"},
		{"multi\nline", "next"},
		{"unicode é ✓", "last"},
	}
	for _, texts := range notes {
		ps := make([]models.Paragraph, len(texts))
		for i, tx := range texts {
			ps[i] = NewParagraph(tx, 1)
		}
		got := Split(Join(ps))
		if !reflect.DeepEqual(got, texts) {
			t.Errorf("round trip %q -> %q", texts, got)
		}
	}
}

func TestMerge_IndexAligned(t *testing.T) {
	old := []models.Paragraph{
		{ID: "p1", Text: "alpha", Timestamp: 100},
		{ID: "p2", Text: "beta", Timestamp: 200},
	}
	got := Merge(old, []string{"alpha", "beta edited", "gamma"}, 999)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "p1" || got[0].Timestamp != 100 {
		t.Errorf("first paragraph lost identity: %+v", got[0])
	}
	if got[1].ID != "p2" || got[1].Text != "beta edited" || got[1].Timestamp != 200 {
		t.Errorf("second paragraph = %+v", got[1])
	}
	if got[2].ID == "" || got[2].ID == "p1" || got[2].ID == "p2" || got[2].Timestamp != 999 {
		t.Errorf("third paragraph should be fresh: %+v", got[2])
	}
}

func TestMerge_Shrinks(t *testing.T) {
	old := []models.Paragraph{{ID: "p1", Text: "a"}, {ID: "p2", Text: "b"}}
	got := Merge(old, []string{"z"}, 5)
	if len(got) != 1 || got[0].ID != "p1" || got[0].Text != "z" {
		t.Errorf("Merge = %+v", got)
	}
	if got := Merge(old, nil, 5); len(got) != 0 {
		t.Errorf("Merge with no texts = %+v", got)
	}
}

func TestDeriveTitle(t *testing.T) {
	if got := DeriveTitle("short note"); got != "short note" {
		t.Errorf("DeriveTitle = %q", got)
	}
	exact := strings.Repeat("x", TitleLength)
	if got := DeriveTitle(exact); got != exact {
		t.Errorf("exact length should not be truncated: %q", got)
	}
	long := "The quick brown fox jumps over the lazy dog"
	if got := DeriveTitle(long); got != "The quick brown fox jumps over..." {
		t.Errorf("DeriveTitle = %q", got)
	}
	runes := strings.Repeat("é", 40)
	if got := DeriveTitle(runes); got != strings.Repeat("é", 30)+"..." {
		t.Errorf("rune-aware truncation failed: %q", got)
	}
}

func TestMarkdownRoundTrip(t *testing.T) {
	n := &models.Note{
		ID:         "n1",
		Title:      "Groceries",
		Paragraphs: []models.Paragraph{{ID: "a", Text: "milk"}, {ID: "b", Text: "eggs"}},
		CreatedAt:  1_700_000_000_000,
		UpdatedAt:  1_700_000_100_000,
	}
	data, err := RenderMarkdown(n, "Home")
	if err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	doc, err := ParseMarkdown(data)
	if err != nil {
		t.Fatalf("ParseMarkdown: %v", err)
	}
	if doc.Title != "Groceries" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.Frontmatter["folder"] != "Home" {
		t.Errorf("folder = %v", doc.Frontmatter["folder"])
	}
	if got := Split(doc.Body); !reflect.DeepEqual(got, []string{"milk", "eggs"}) {
		t.Errorf("body paragraphs = %q", got)
	}
}

func TestParseMarkdown_HeadingTitle(t *testing.T) {
	doc, err := ParseMarkdown([]byte("# Just a heading\nSome text.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", doc.Frontmatter)
	}
	if doc.Title != "Just a heading" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.Body != "Some text.\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParseMarkdown_InvalidYAMLFallback(t *testing.T) {
	doc, err := ParseMarkdown([]byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
}
