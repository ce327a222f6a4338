package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, auth AuthOptions, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	dh := NewDictationHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth))

	r.Post("/session", h.StartSession)

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/delete", h.DeleteNotes)
	r.Get("/notes/{id}", h.GetNote)
	r.Get("/notes/{id}/markdown", h.NoteMarkdown)
	r.Put("/notes/{id}/title", h.UpdateTitle)
	r.Put("/notes/{id}/body", h.UpdateBody)
	r.Put("/notes/{id}/folder", h.MoveNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Post("/notes/{id}/select", h.SelectNote)
	r.Post("/notes/{id}/toggle", h.ToggleSelected)
	r.Put("/selection-mode", h.SetSelectionMode)
	r.Post("/undo", h.Undo)

	// Folders.
	r.Get("/folders", h.ListFolders)
	r.Post("/folders", h.CreateFolder)
	r.Put("/folders/{id}", h.RenameFolder)
	r.Delete("/folders/{id}", h.DeleteFolder)
	r.Put("/filter", h.SetFilter)

	// Dictation.
	r.Post("/selection", dh.ObserveSelection)
	r.Post("/dictation/start", dh.Start)
	r.Post("/dictation/cancel", dh.Cancel)
	r.Post("/dictation/finish", dh.Finish)
	r.Get("/dictation/overlay", dh.Overlay)
	r.Post("/transcript", dh.AppendTranscript)
	r.Post("/dictation/live/start", dh.LiveStart)
	r.Post("/dictation/live/audio", dh.LiveAudio)
	r.Post("/dictation/live/stop", dh.LiveStop)

	// Export / import.
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)

	// Updates.
	r.Get("/update", h.CheckUpdate)
	r.Post("/update/apply", h.ApplyUpdate)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
