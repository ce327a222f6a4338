package notestore

import "github.com/starford/vocanote/internal/models"

// Snapshot is the state of one note before an edit.
type Snapshot struct {
	NoteID     string
	Title      string
	Paragraphs []models.Paragraph
}

// UndoBuffer holds at most one snapshot. It is not safe for concurrent use;
// the Store guards it with its own mutex.
type UndoBuffer struct {
	slot *Snapshot
}

// Take overwrites the slot with a deep copy of n's title and paragraphs.
func (b *UndoBuffer) Take(n *models.Note) {
	b.slot = &Snapshot{
		NoteID:     n.ID,
		Title:      n.Title,
		Paragraphs: models.CloneParagraphs(n.Paragraphs),
	}
}

// Pop consumes the snapshot.
func (b *UndoBuffer) Pop() (Snapshot, bool) {
	if b.slot == nil {
		return Snapshot{}, false
	}
	s := *b.slot
	b.slot = nil
	return s, true
}

// Clear empties the slot.
func (b *UndoBuffer) Clear() {
	b.slot = nil
}

// ClearFor empties the slot if it holds a snapshot of noteID.
func (b *UndoBuffer) ClearFor(noteID string) {
	if b.slot != nil && b.slot.NoteID == noteID {
		b.slot = nil
	}
}

// Pending reports whether a snapshot is waiting.
func (b *UndoBuffer) Pending() bool {
	return b.slot != nil
}
