package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// UploadTrackRequest is the body of POST /api/upload. The audio payload
// travels base64-encoded inside the JSON body.
type UploadTrackRequest struct {
	FileName    string `json:"fileName"`
	AudioBase64 string `json:"audioBase64"`
}

// UploadTrackHandler accepts a user-provided mp3 and runs it through the
// ingestion pipeline. The request body is capped so an oversized upload
// fails fast instead of being buffered in full.
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSizeBytes)

	var req UploadTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit.")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.FileName) == "" || req.AudioBase64 == "" {
		writeError(w, http.StatusBadRequest, "fileName and audioBase64 are required.")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audioBase64 is not valid base64.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.IngestTimeout)
	defer cancel()

	result, err := h.pipeline.SubmitUpload(ctx, identity.UserID, req.FileName, audio)
	if err != nil {
		writeError(w, statusForIngestError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}
