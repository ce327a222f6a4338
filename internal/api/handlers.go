package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vocanote/internal/models"
	"github.com/starford/vocanote/internal/notestore"
	"github.com/starford/vocanote/internal/parser"
	"github.com/starford/vocanote/internal/update"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// confirmed carries the request's ?confirm=true onto the context the store's
// confirmer reads.
func confirmed(r *http.Request) (bool, *http.Request) {
	ok := r.URL.Query().Get("confirm") == "true"
	return ok, r.WithContext(notestore.WithConfirmation(r.Context(), ok))
}

func confirmationRequired(w http.ResponseWriter) {
	writeJSON(w, http.StatusConflict, errorBody("confirmation required"))
}

// StartSession handles POST /api/session.
//
//	@Summary		Resolve the caller to a user and load their notes
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session [post]
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.StartSession(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, "start session", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes newest first
//	@Tags			notes
//	@Produce		json
//	@Param			folder	query		string	false	"Only notes in this folder (overrides the active filter)"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	store := h.svc.Notes
	if !store.Loaded() {
		writeJSON(w, http.StatusConflict, errorBody("session not started"))
		return
	}

	var notes []*models.Note
	if folder := r.URL.Query().Get("folder"); folder != "" {
		for _, n := range store.Notes() {
			if n.InFolder(folder) {
				notes = append(notes, n)
			}
		}
	} else {
		notes = store.Visible()
	}

	resp := NoteListResponse{
		Notes:         make([]NoteResponse, 0, len(notes)),
		Filter:        store.Filter(),
		SelectionMode: store.SelectionMode(),
		Selected:      store.Selected(),
		CanUndo:       store.CanUndo(),
	}
	for _, n := range notes {
		resp.Notes = append(resp.Notes, noteResponse(n))
	}
	if cur, ok := store.Current(); ok {
		resp.CurrentID = cur.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Notes.Note(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse(n))
}

// NoteMarkdown handles GET /api/notes/{id}/markdown.
func (h *Handler) NoteMarkdown(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Notes.Note(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	folder := ""
	if n.FolderID != nil {
		for _, f := range h.svc.Notes.Folders() {
			if f.ID == *n.FolderID {
				folder = f.Name
			}
		}
	}
	data, err := parser.RenderMarkdown(n, folder)
	if err != nil {
		writeError(w, "render markdown", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create an empty note and make it current
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	false	"Target folder"
//	@Success		201		{object}	NoteResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.Notes.Create(req.FolderID)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, noteResponse(n))
}

// UpdateTitle handles PUT /api/notes/{id}/title.
func (h *Handler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.Notes.UpdateTitle(chi.URLParam(r, "id"), req.Title)
	if err != nil {
		writeError(w, "update title", err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse(n))
}

// UpdateBody handles PUT /api/notes/{id}/body.
//
//	@Summary		Replace a note's body, keeping paragraph identity by position
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Note id"
//	@Param			body	body		BodyRequest	true	"New body"
//	@Success		200		{object}	NoteResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/body [put]
func (h *Handler) UpdateBody(w http.ResponseWriter, r *http.Request) {
	var req BodyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.Notes.UpdateBody(chi.URLParam(r, "id"), req.Body)
	if err != nil {
		writeError(w, "update body", err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse(n))
}

// MoveNote handles PUT /api/notes/{id}/folder.
func (h *Handler) MoveNote(w http.ResponseWriter, r *http.Request) {
	var req FolderRefRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.Notes.MoveToFolder(chi.URLParam(r, "id"), req.FolderID)
	if err != nil {
		writeError(w, "move note", err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse(n))
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id		path	string	true	"Note id"
//	@Param			confirm	query	bool	true	"Must be true"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	_, r = confirmed(r)
	ok, err := h.svc.Notes.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	if !ok {
		confirmationRequired(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteNotes handles POST /api/notes/delete.
func (h *Handler) DeleteNotes(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ok, r := confirmed(r)
	if !ok {
		confirmationRequired(w)
		return
	}
	n, err := h.svc.Notes.DeleteMany(r.Context(), req.IDs)
	if err != nil {
		writeError(w, "delete notes", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// SelectNote handles POST /api/notes/{id}/select.
func (h *Handler) SelectNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Notes.Select(id); err != nil {
		writeError(w, "select note", err)
		return
	}
	n, err := h.svc.Notes.Note(id)
	if err != nil {
		writeError(w, "select note", err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse(n))
}

// ToggleSelected handles POST /api/notes/{id}/toggle.
func (h *Handler) ToggleSelected(w http.ResponseWriter, r *http.Request) {
	on, err := h.svc.Notes.ToggleSelected(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "toggle selection", err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{Selected: on})
}

// SetSelectionMode handles PUT /api/selection-mode.
func (h *Handler) SetSelectionMode(w http.ResponseWriter, r *http.Request) {
	var req SelectionModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.svc.Notes.SetSelectionMode(req.On)
	w.WriteHeader(http.StatusNoContent)
}

// Undo handles POST /api/undo.
//
//	@Summary		Restore the note edited last to its state before that edit
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	UndoResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/undo [post]
func (h *Handler) Undo(w http.ResponseWriter, _ *http.Request) {
	n, ok := h.svc.Notes.Undo()
	if !ok {
		writeJSON(w, http.StatusConflict, errorBody("nothing to undo"))
		return
	}
	writeJSON(w, http.StatusOK, UndoResponse{Note: noteResponse(n)})
}

// ListFolders handles GET /api/folders.
func (h *Handler) ListFolders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"folders": h.svc.Notes.Folders(),
		"filter":  h.svc.Notes.Filter(),
	})
}

// CreateFolder handles POST /api/folders.
//
//	@Summary		Create a folder
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FolderRequest	true	"Folder name"
//	@Success		201		{object}	models.Folder
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req FolderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f, err := h.svc.Notes.CreateFolder(req.Name)
	if err != nil {
		writeError(w, "create folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// RenameFolder handles PUT /api/folders/{id}.
func (h *Handler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	var req FolderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f, err := h.svc.Notes.RenameFolder(chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, "rename folder", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteFolder handles DELETE /api/folders/{id}. The folder's notes go with it.
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	_, r = confirmed(r)
	n, ok, err := h.svc.Notes.DeleteFolder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "delete folder", err)
		return
	}
	if !ok {
		confirmationRequired(w)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// SetFilter handles PUT /api/filter. A null folderId shows every note.
func (h *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	var req FolderRefRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Notes.SetFilter(req.FolderID); err != nil {
		writeError(w, "set filter", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handles GET /api/export.
//
//	@Summary		Download every note as a JSON array
//	@Tags			transfer
//	@Produce		json
//	@Success		200
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="vocanote-export.json"`)
	if err := h.svc.Notes.ExportAll(w); err != nil {
		writeError(w, "export", err)
	}
}

// Import handles POST /api/import with an export document as the body.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	n, err := h.svc.Notes.ImportAll(r.Body)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Imported: n})
}

// CheckUpdate handles GET /api/update. The manifest is only consulted once a
// session has been started.
//
//	@Summary		Check for a newer bundle
//	@Tags			update
//	@Produce		json
//	@Success		200	{object}	update.Status
//	@Security		BearerAuth
//	@Router			/update [get]
func (h *Handler) CheckUpdate(w http.ResponseWriter, r *http.Request) {
	if h.svc.Notes.Loaded() {
		h.svc.Updates.CheckForUpdate(r.Context())
	}
	writeJSON(w, http.StatusOK, h.svc.Updates.Status())
}

// ApplyUpdate handles POST /api/update/apply. Without a body the manifest
// found by the last check is applied.
func (h *Handler) ApplyUpdate(w http.ResponseWriter, r *http.Request) {
	var m update.Manifest
	if !decodeJSON(w, r, &m) {
		return
	}
	if m.Version == "" && m.URL == "" {
		avail := h.svc.Updates.Status().Available
		if avail == nil {
			writeJSON(w, http.StatusConflict, errorBody("no update available"))
			return
		}
		m = *avail
	}
	if err := h.svc.Updates.ApplyUpdate(r.Context(), m); err != nil {
		writeError(w, "apply update", err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.svc.Updates.Status())
}
