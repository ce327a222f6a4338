package notestore

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/starford/vocanote/internal/apperr"
	"github.com/starford/vocanote/internal/models"
	"github.com/starford/vocanote/internal/parser"
)

//go:embed schema/notes.schema.json
var exportSchema []byte

const exportSchemaURL = "https://vocanote.dev/schema/notes.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(exportSchema))
	if err != nil {
		return nil, fmt.Errorf("notestore: parse export schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(exportSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("notestore: add export schema: %w", err)
	}
	return c.Compile(exportSchemaURL)
})

// ExportAll writes every note as an indented JSON array.
func (s *Store) ExportAll(w io.Writer) error {
	s.mu.Lock()
	notes := cloneNotes(s.notes)
	s.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(notes); err != nil {
		return fmt.Errorf("notestore: export: %w", err)
	}
	return nil
}

type importedParagraph struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Timestamp *models.Millis `json:"timestamp"`
}

type importedNote struct {
	ID         string              `json:"id"`
	Title      string              `json:"title"`
	Paragraphs []importedParagraph `json:"paragraphs"`
	FolderID   *string             `json:"folder_id"`
	CreatedAt  *models.Millis      `json:"createdAt"`
	UpdatedAt  *models.Millis      `json:"updatedAt"`
}

// ParseExport validates and decodes an export document without touching any
// store. Missing ids are minted and missing timestamps set to now.
func ParseExport(r io.Reader, now models.Millis, newID func() string) ([]*models.Note, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("notestore: read import: %w", err)
	}
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.InvalidFormat(fmt.Sprintf("import is not valid JSON: %v", err))
	}
	if err := sch.Validate(inst); err != nil {
		return nil, apperr.InvalidFormat(fmt.Sprintf("import does not match the export format: %v", err))
	}

	var raw []importedNote
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperr.InvalidFormat(fmt.Sprintf("import is not a list of notes: %v", err))
	}

	out := make([]*models.Note, 0, len(raw))
	for _, in := range raw {
		n := &models.Note{
			ID:         in.ID,
			Title:      in.Title,
			FolderID:   in.FolderID,
			CreatedAt:  orNow(in.CreatedAt, now),
			UpdatedAt:  orNow(in.UpdatedAt, now),
			Paragraphs: make([]models.Paragraph, 0, len(in.Paragraphs)),
		}
		if n.ID == "" {
			n.ID = newID()
		}
		for _, p := range in.Paragraphs {
			para := parser.NewParagraph(p.Text, orNow(p.Timestamp, now))
			if p.ID != "" {
				para.ID = p.ID
			}
			n.Paragraphs = append(n.Paragraphs, para)
		}
		out = append(out, n)
	}
	return out, nil
}

func orNow(m *models.Millis, now models.Millis) models.Millis {
	if m == nil {
		return now
	}
	return *m
}

// ImportAll merges an export document into the store. Imported notes win
// over existing notes with the same id, and the first of several imported
// notes sharing an id wins over the rest. A malformed document changes
// nothing. It returns the number of notes imported.
func (s *Store) ImportAll(r io.Reader) (int, error) {
	imported, err := ParseExport(r, s.now(), s.newID)
	if err != nil {
		return 0, err
	}

	count := 0
	err = s.mutate(func(fx *effects) error {
		if !s.loaded {
			return apperr.ErrNotLoaded
		}
		count = s.merge(fx, imported)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ImportNote files one note built from title and body. Unlike Create it
// leaves the current note and the undo slot alone, so background imports do
// not disturb an edit in progress. An empty title is derived from the
// first paragraph.
func (s *Store) ImportNote(title, body string) (*models.Note, error) {
	now := s.now()
	blocks := parser.Split(body)
	title = strings.TrimSpace(title)
	if title == "" && len(blocks) > 0 {
		title = parser.DeriveTitle(blocks[0])
	}
	n := &models.Note{
		ID:         s.newID(),
		Title:      title,
		Paragraphs: parser.Merge(nil, blocks, now),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var out *models.Note
	err := s.mutate(func(fx *effects) error {
		if !s.loaded {
			return apperr.ErrNotLoaded
		}
		s.merge(fx, []*models.Note{n})
		out = n.Clone()
		return nil
	})
	return out, err
}

// merge puts imported notes in front of the collection. An imported note
// replaces a local note with the same id, and the first of several imported
// notes sharing an id wins. A replacement is stamped like an edit so its
// updatedAt never goes backwards and the remote store accepts it.
func (s *Store) merge(fx *effects, imported []*models.Note) int {
	count := 0
	seen := make(map[string]struct{}, len(imported)+len(s.notes))
	merged := make([]*models.Note, 0, len(imported)+len(s.notes))
	for _, n := range imported {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		// Unknown folders would leave notes no cascade can reach.
		if n.FolderID != nil && s.folderIndex(*n.FolderID) < 0 {
			n.FolderID = nil
		}
		if i := s.noteIndex(n.ID); i >= 0 {
			n.UpdatedAt = max(s.now(), s.notes[i].UpdatedAt, n.UpdatedAt)
		}
		s.undo.ClearFor(n.ID)
		merged = append(merged, n)
		s.persistNote(fx, n)
		count++
	}
	for _, n := range s.notes {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		merged = append(merged, n)
	}
	s.notes = merged
	if s.noteIndex(s.currentID) < 0 && len(s.notes) > 0 {
		s.setCurrent(fx, s.notes[0].ID)
	}
	fx.emit(EventNotesChanged, "")
	return count
}
