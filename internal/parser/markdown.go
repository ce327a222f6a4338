package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/vocanote/internal/models"
)

// Document is a Markdown note split into frontmatter and body.
type Document struct {
	Frontmatter map[string]interface{}
	Title       string
	Body        string
}

type frontmatter struct {
	Title   string `yaml:"title"`
	ID      string `yaml:"id,omitempty"`
	Folder  string `yaml:"folder,omitempty"`
	Created string `yaml:"created,omitempty"`
	Updated string `yaml:"updated,omitempty"`
}

// RenderMarkdown writes n as a Markdown file with YAML frontmatter. folderName
// may be empty.
func RenderMarkdown(n *models.Note, folderName string) ([]byte, error) {
	fm := frontmatter{
		Title:   n.Title,
		ID:      n.ID,
		Folder:  folderName,
		Created: n.CreatedAt.Time().Format(time.RFC3339),
		Updated: n.UpdatedAt.Time().Format(time.RFC3339),
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(head)
	buf.WriteString("---\n\n")
	buf.WriteString(Join(n.Paragraphs))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// ParseMarkdown extracts frontmatter and body from raw Markdown. When there is
// no title in the frontmatter the first "# " heading is used and removed from
// the body.
func ParseMarkdown(data []byte) (*Document, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	title := ""
	if t, ok := fm["title"].(string); ok {
		title = strings.TrimSpace(t)
	}
	if title == "" {
		title, body = headingTitle(body)
	}
	return &Document{Frontmatter: fm, Title: title, Body: body}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data), nil
	}
	return fm, body, nil
}

func headingTitle(body string) (string, string) {
	lines := strings.SplitN(body, "\n", 2)
	first := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(first, "# ") {
		return "", body
	}
	rest := ""
	if len(lines) == 2 {
		rest = lines[1]
	}
	return strings.TrimSpace(strings.TrimPrefix(first, "# ")), rest
}
