package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"clipfm/logger"
)

// SubmitTrackRequest is the body of POST /api/tracks.
type SubmitTrackRequest struct {
	SourceURL string `json:"sourceUrl"`
}

// SubmitTrackHandler accepts a link and runs it through the ingestion
// pipeline. The run is bounded by the configured ingest timeout rather
// than the request deadline alone.
func (h *APIHandler) SubmitTrackHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req SubmitTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.SourceURL) == "" {
		writeError(w, http.StatusBadRequest, "sourceUrl is required.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.IngestTimeout)
	defer cancel()

	result, err := h.pipeline.SubmitLink(ctx, identity.UserID, req.SourceURL)
	if err != nil {
		writeError(w, statusForIngestError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetTracksHandler lists the user's tracks in stable display order,
// serving from the library cache when possible.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if cached := h.library.GetTracks(r.Context(), identity.UserID); cached != nil {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	tracks, err := h.trackRepo.GetTracksByUserID(r.Context(), identity.UserID)
	if err != nil {
		logger.Error("failed to list tracks",
			logger.String("userId", identity.UserID),
			logger.ErrorField(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to list tracks")
		return
	}

	h.library.SetTracks(r.Context(), identity.UserID, tracks)
	writeJSON(w, http.StatusOK, tracks)
}

// RenameTrackRequest is the body of PATCH /api/tracks/{id}.
type RenameTrackRequest struct {
	Name string `json:"name"`
}

// RenameTrackHandler updates a track's display name.
func (h *APIHandler) RenameTrackHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	trackID := mux.Vars(r)["id"]

	var req RenameTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required.")
		return
	}

	if err := h.trackRepo.RenameTrack(r.Context(), identity.UserID, trackID, name); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "Track not found.")
			return
		}
		logger.Error("failed to rename track",
			logger.String("trackId", trackID),
			logger.ErrorField(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to rename track")
		return
	}

	if track, err := h.trackRepo.GetTrackByID(r.Context(), identity.UserID, trackID); err == nil && track != nil {
		h.library.TrackChanged(r.Context(), identity.UserID, track)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteTrackHandler removes a track record and its stored audio. Blob
// removal is best-effort; the record is authoritative.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	trackID := mux.Vars(r)["id"]

	track, err := h.trackRepo.GetTrackByID(r.Context(), identity.UserID, trackID)
	if err != nil {
		logger.Error("failed to load track for delete",
			logger.String("trackId", trackID),
			logger.ErrorField(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to delete track")
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "Track not found.")
		return
	}

	if track.BlobPath != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		h.blobs.RemoveTrackAudio(ctx, track.BlobPath)
		cancel()
	}

	if err := h.trackRepo.DeleteTrack(r.Context(), identity.UserID, trackID); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "Track not found.")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete track")
		return
	}

	// Playlists hold weak references; drop the dangling id.
	if err := h.playlists.RemoveTrackFromAll(r.Context(), identity.UserID, trackID); err != nil {
		logger.Warn("failed to prune track from playlists",
			logger.String("trackId", trackID),
			logger.ErrorField(err),
		)
	}

	h.library.TrackDeleted(r.Context(), identity.UserID, trackID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
