package api

import (
	"encoding/base64"
	"io"
	"mime"
	"net/http"
	"strings"
)

const maxAudioBytes = 50 << 20 // 50 MB

// DictationHandler drives the recorder and the selection engine.
type DictationHandler struct {
	svc *Service
}

// NewDictationHandler creates a handler over svc's recorder.
func NewDictationHandler(svc *Service) *DictationHandler {
	return &DictationHandler{svc: svc}
}

// ObserveSelection handles POST /api/selection. The editor reports every
// selection change so a range survives the focus loss of pressing record.
func (h *DictationHandler) ObserveSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.svc.Recorder.Engine().ObserveSelection(req)
	w.WriteHeader(http.StatusNoContent)
}

// Start handles POST /api/dictation/start. The body is the live selection at
// the moment recording begins and may be empty.
//
//	@Summary		Start a dictation
//	@Tags			dictation
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SelectionRequest	false	"Live editor selection"
//	@Success		200		{object}	StartDictationResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dictation/start [post]
func (h *DictationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	captured, err := h.svc.Recorder.Start(req)
	if err != nil {
		writeError(w, "start dictation", err)
		return
	}
	writeJSON(w, http.StatusOK, StartDictationResponse{Captured: captured})
}

// Cancel handles POST /api/dictation/cancel.
func (h *DictationHandler) Cancel(w http.ResponseWriter, _ *http.Request) {
	h.svc.Recorder.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// Finish handles POST /api/dictation/finish. Audio arrives either as JSON
// {audio, mimeType} with base64 audio, or as multipart/form-data with the
// recording in the "file" field.
//
//	@Summary		Stop recording, transcribe and write the transcript
//	@Tags			dictation
//	@Accept			json,mpfd
//	@Produce		json
//	@Param			body	body		FinishDictationRequest	false	"Recorded audio"
//	@Param			file	formData	file					false	"Recorded audio"
//	@Success		200		{object}	DictationResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dictation/finish [post]
func (h *DictationHandler) Finish(w http.ResponseWriter, r *http.Request) {
	req, ok := readAudio(w, r)
	if !ok {
		return
	}
	n, err := h.svc.Recorder.Finish(r.Context(), req.Audio, req.MimeType)
	if err != nil {
		writeError(w, "finish dictation", err)
		return
	}
	resp := DictationResponse{}
	if n != nil {
		nr := noteResponse(n)
		resp.Note = &nr
	}
	writeJSON(w, http.StatusOK, resp)
}

func readAudio(w http.ResponseWriter, r *http.Request) (FinishDictationRequest, bool) {
	var req FinishDictationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if !decodeJSON(w, r, &req) {
			return req, false
		}
		return req, true
	}

	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return req, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return req, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return req, false
	}
	req.Audio = base64.StdEncoding.EncodeToString(data)
	req.MimeType = r.FormValue("mimeType")
	if req.MimeType == "" {
		req.MimeType = header.Header.Get("Content-Type")
	}
	if req.MimeType == "" || strings.HasPrefix(req.MimeType, "application/octet-stream") {
		req.MimeType = "audio/webm"
	}
	return req, true
}

// Overlay handles GET /api/dictation/overlay: the range to highlight while
// recording, if one was captured.
func (h *DictationHandler) Overlay(w http.ResponseWriter, _ *http.Request) {
	resp := OverlayResponse{State: string(h.svc.Recorder.State())}
	if rng, value, ok := h.svc.Recorder.Engine().Overlay(); ok {
		resp.Active = true
		resp.Start, resp.End, resp.Value = rng.Start, rng.End, value
	}
	writeJSON(w, http.StatusOK, resp)
}

// AppendTranscript handles POST /api/transcript. Text from a live session is
// appended to the current note, creating one when none is open.
func (h *DictationHandler) AppendTranscript(w http.ResponseWriter, r *http.Request) {
	var req TranscriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.Notes.AppendTranscript(req.Text)
	if err != nil {
		writeError(w, "append transcript", err)
		return
	}
	resp := DictationResponse{}
	if n != nil {
		nr := noteResponse(n)
		resp.Note = &nr
	}
	writeJSON(w, http.StatusOK, resp)
}
