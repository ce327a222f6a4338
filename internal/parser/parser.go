// Package parser converts between a note's paragraph list and its editable
// body text, and renders notes to and from Markdown with YAML frontmatter.
package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/starford/vocanote/internal/models"
)

// Separator joins paragraphs into body text.
const Separator = "\n\n"

// TitleLength is the number of runes kept when a title is derived from a transcript.
const TitleLength = 30

var blankRunRe = regexp.MustCompile(`\n\s*\n`)

// Join renders paragraphs as body text.
func Join(ps []models.Paragraph) string {
	texts := make([]string, len(ps))
	for i, p := range ps {
		texts[i] = p.Text
	}
	return strings.Join(texts, Separator)
}

// Split breaks body text into paragraph texts on runs of blank lines,
// trimming each block and dropping empty ones. A blank body yields nil.
func Split(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var out []string
	for _, block := range blankRunRe.Split(body, -1) {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	return out
}

// Merge rebuilds a paragraph list from texts, reusing identity by position:
// texts[i] keeps old[i]'s ID and timestamp when old has an i-th entry, and
// gets a fresh ID stamped with now otherwise.
func Merge(old []models.Paragraph, texts []string, now models.Millis) []models.Paragraph {
	out := make([]models.Paragraph, len(texts))
	for i, text := range texts {
		if i < len(old) {
			out[i] = models.Paragraph{ID: old[i].ID, Text: text, Timestamp: old[i].Timestamp}
			continue
		}
		out[i] = NewParagraph(text, now)
	}
	return out
}

// NewParagraph mints a paragraph with a fresh ID.
func NewParagraph(text string, now models.Millis) models.Paragraph {
	return models.Paragraph{ID: xid.New().String(), Text: text, Timestamp: now}
}

// DeriveTitle takes the first TitleLength runes of text, adding "..." when
// anything was cut.
func DeriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= TitleLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:TitleLength]) + "..."
}
