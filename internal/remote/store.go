// Package remote is the boundary to the row-oriented remote store that
// persists notes, folders and identity mappings.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/vocanote/internal/models"
)

// NoteRow is the stored shape of a note. Timestamps are ISO-8601 strings and
// paragraphs a JSON array.
type NoteRow struct {
	ID         string
	UserID     string
	FolderID   *string
	Title      string
	Paragraphs string
	CreatedAt  string
	UpdatedAt  string
}

// FolderRow is the stored shape of a folder.
type FolderRow struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt string
}

// UserRow maps an authenticated identity to the internal user id.
type UserRow struct {
	ID         string
	AuthUserID string
}

// NoteRepository persists notes. Every call is scoped by user id.
type NoteRepository interface {
	// ListNotes returns userID's notes ordered by updated_at descending.
	ListNotes(ctx context.Context, userID string) ([]NoteRow, error)
	// UpsertNote inserts the row or replaces it when its updated_at is not older.
	UpsertNote(ctx context.Context, row NoteRow) error
	// DeleteNote removes the note only if it belongs to userID.
	DeleteNote(ctx context.Context, id, userID string) error
}

// FolderRepository persists folders.
type FolderRepository interface {
	ListFolders(ctx context.Context, userID string) ([]FolderRow, error)
	UpsertFolder(ctx context.Context, row FolderRow) error
	DeleteFolder(ctx context.Context, id, userID string) error
}

// UserRepository persists identity mappings.
type UserRepository interface {
	// FindUserByAuthID returns apperr.ErrNotFound when no mapping exists.
	FindUserByAuthID(ctx context.Context, authUserID string) (*UserRow, error)
	// InsertUser returns apperr.ErrConflict when the identity is already mapped.
	InsertUser(ctx context.Context, row UserRow) error
}

// Store is the full remote surface.
type Store interface {
	NoteRepository
	FolderRepository
	UserRepository
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders m as an ISO-8601 UTC string with millisecond precision.
// The fixed width keeps stored values ordered lexicographically.
func FormatTime(m models.Millis) string {
	return m.Time().Format(timeLayout)
}

// ParseTime parses an ISO-8601 string into epoch milliseconds.
func ParseTime(s string) (models.Millis, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("remote: parse time %q: %w", s, err)
	}
	return models.MillisOf(t), nil
}

// NoteToRow converts n into its stored shape owned by userID.
func NoteToRow(n *models.Note, userID string) (NoteRow, error) {
	paragraphs, err := json.Marshal(models.CloneParagraphs(n.Paragraphs))
	if err != nil {
		return NoteRow{}, fmt.Errorf("remote: marshal paragraphs: %w", err)
	}
	return NoteRow{
		ID:         n.ID,
		UserID:     userID,
		FolderID:   n.FolderID,
		Title:      n.Title,
		Paragraphs: string(paragraphs),
		CreatedAt:  FormatTime(n.CreatedAt),
		UpdatedAt:  FormatTime(n.UpdatedAt),
	}, nil
}

// RowToNote converts a stored row back into a note.
func RowToNote(row NoteRow) (*models.Note, error) {
	n := &models.Note{
		ID:       row.ID,
		Title:    row.Title,
		FolderID: row.FolderID,
	}
	if row.Paragraphs != "" {
		if err := json.Unmarshal([]byte(row.Paragraphs), &n.Paragraphs); err != nil {
			return nil, fmt.Errorf("remote: note %s paragraphs: %w", row.ID, err)
		}
	}
	n.Paragraphs = models.CloneParagraphs(n.Paragraphs)
	var err error
	if n.CreatedAt, err = ParseTime(row.CreatedAt); err != nil {
		return nil, err
	}
	if n.UpdatedAt, err = ParseTime(row.UpdatedAt); err != nil {
		return nil, err
	}
	return n, nil
}

// FolderToRow converts f into its stored shape owned by userID.
func FolderToRow(f *models.Folder, userID string) FolderRow {
	return FolderRow{
		ID:        f.ID,
		UserID:    userID,
		Name:      f.Name,
		CreatedAt: FormatTime(f.CreatedAt),
	}
}

// RowToFolder converts a stored row back into a folder.
func RowToFolder(row FolderRow) (*models.Folder, error) {
	created, err := ParseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &models.Folder{ID: row.ID, Name: row.Name, CreatedAt: created}, nil
}
