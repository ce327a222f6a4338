// Package models defines the domain types for vocanote.
package models

import "time"

// Millis is a wall-clock instant in epoch milliseconds, the unit the client
// keeps in memory and writes to export files.
type Millis int64

// MillisOf converts t to epoch milliseconds.
func MillisOf(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

// Time returns m as a UTC time.Time.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

// Paragraph is one block of a note body.
type Paragraph struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp Millis `json:"timestamp"`
}

// Note is a titled, ordered list of paragraphs, optionally filed in a folder.
type Note struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Paragraphs []Paragraph `json:"paragraphs"`
	FolderID   *string     `json:"folder_id"`
	CreatedAt  Millis      `json:"createdAt"`
	UpdatedAt  Millis      `json:"updatedAt"`
}

// Clone returns a deep copy of n.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	c.Paragraphs = CloneParagraphs(n.Paragraphs)
	if n.FolderID != nil {
		f := *n.FolderID
		c.FolderID = &f
	}
	return &c
}

// InFolder reports whether n is filed under folderID.
func (n *Note) InFolder(folderID string) bool {
	return n.FolderID != nil && *n.FolderID == folderID
}

// CloneParagraphs copies ps into a fresh slice. A nil input yields an empty,
// non-nil slice so JSON output is always an array.
func CloneParagraphs(ps []Paragraph) []Paragraph {
	out := make([]Paragraph, len(ps))
	copy(out, ps)
	return out
}

// Folder groups notes.
type Folder struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt Millis `json:"created_at"`
}

// User maps an external authenticated identity to the internal key that
// owns notes and folders.
type User struct {
	ID         string `json:"id"`
	AuthUserID string `json:"auth_user_id"`
}
