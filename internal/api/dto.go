package api

import (
	"github.com/starford/vocanote/internal/dictation"
	"github.com/starford/vocanote/internal/models"
	"github.com/starford/vocanote/internal/parser"
	"github.com/starford/vocanote/internal/session"
)

// NoteResponse is a note together with its joined body text.
type NoteResponse struct {
	*models.Note
	Body string `json:"body" example:"First paragraph\n\nSecond paragraph"`
}

func noteResponse(n *models.Note) NoteResponse {
	return NoteResponse{Note: n, Body: parser.Join(n.Paragraphs)}
}

// NoteListResponse is the sidebar view.
type NoteListResponse struct {
	Notes         []NoteResponse `json:"notes" validate:"required"`
	CurrentID     string         `json:"currentId,omitempty" example:"4f6c1b1e-7d3a-4b8e-9a51-2f0c7d1e9b42"`
	Filter        *string        `json:"filter"`
	SelectionMode bool           `json:"selectionMode"`
	Selected      []string       `json:"selected" validate:"required"`
	CanUndo       bool           `json:"canUndo"`
}

// CreateNoteRequest is the (optional) request body for creating a note.
type CreateNoteRequest struct {
	FolderID *string `json:"folderId"`
}

// TitleRequest replaces a note's title.
type TitleRequest struct {
	Title string `json:"title" example:"Groceries"`
}

// BodyRequest replaces a note's body.
type BodyRequest struct {
	Body string `json:"body" example:"milk\n\neggs"`
}

// FolderRefRequest names a folder, or none when FolderID is null.
type FolderRefRequest struct {
	FolderID *string `json:"folderId"`
}

// BulkDeleteRequest lists notes to delete.
type BulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required"`
}

// DeleteResponse reports how many notes a delete removed.
type DeleteResponse struct {
	Deleted int `json:"deleted" example:"3"`
}

// FolderRequest creates or renames a folder.
type FolderRequest struct {
	Name string `json:"name" example:"Work" validate:"required"`
}

// SelectionModeRequest turns selection mode on or off.
type SelectionModeRequest struct {
	On bool `json:"on"`
}

// ToggleResponse reports whether a note is now selected.
type ToggleResponse struct {
	Selected bool `json:"selected"`
}

// SelectionRequest is an editor selection-change event. The range is in rune
// offsets into value.
type SelectionRequest = dictation.Selection

// StartDictationResponse reports whether a replacement range was captured.
type StartDictationResponse struct {
	Captured bool `json:"captured"`
}

// FinishDictationRequest carries the recorded audio.
type FinishDictationRequest struct {
	Audio    string `json:"audio" validate:"required"`
	MimeType string `json:"mimeType" example:"audio/webm"`
}

// DictationResponse is the note written by a dictation, if any.
type DictationResponse struct {
	Note *NoteResponse `json:"note"`
}

// OverlayResponse describes the captured range while recording.
type OverlayResponse struct {
	Active bool   `json:"active"`
	State  string `json:"state" example:"recording"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Value  string `json:"value"`
}

// TranscriptRequest appends already-transcribed text.
type TranscriptRequest struct {
	Text string `json:"text" validate:"required"`
}

// ImportResponse reports how many notes an import merged.
type ImportResponse struct {
	Imported int `json:"imported" example:"12"`
}

// UndoResponse is the restored note.
type UndoResponse struct {
	Note NoteResponse `json:"note"`
}

// SessionResponse is the outcome of identity resolution.
type SessionResponse = session.Resolution
