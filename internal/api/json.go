package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/starford/vocanote/internal/apperr"
	"github.com/starford/vocanote/internal/dictation"
	"github.com/starford/vocanote/internal/transcribe"
	"github.com/starford/vocanote/internal/update"
)

const maxBodyBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeError maps domain errors to status codes. Anything unrecognised is
// logged and reported as 500.
func writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrInvalidFormat):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotLoaded),
		errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrAlreadyExists),
		errors.Is(err, dictation.ErrBusy),
		errors.Is(err, dictation.ErrNotRecording),
		errors.Is(err, dictation.ErrCancelled),
		errors.Is(err, update.ErrInProgress),
		errors.Is(err, transcribe.ErrLiveActive),
		errors.Is(err, ErrLiveIdle):
		status = http.StatusConflict
	case errors.Is(err, transcribe.ErrTranscription):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	msg := err.Error()
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	writeJSON(w, status, errorBody(msg))
}
