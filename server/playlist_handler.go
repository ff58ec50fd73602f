package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"clipfm/logger"
)

// PlaylistRequest carries a playlist name for create and rename.
type PlaylistRequest struct {
	Name string `json:"name"`
}

// CreatePlaylistHandler creates an empty playlist.
func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req PlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required.")
		return
	}
	if len(name) > 100 {
		writeError(w, http.StatusBadRequest, "name is too long.")
		return
	}

	playlist, err := h.playlists.Create(r.Context(), identity.UserID, name)
	if err != nil {
		logger.Error("failed to create playlist", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create playlist")
		return
	}
	writeJSON(w, http.StatusCreated, playlist)
}

// GetPlaylistsHandler lists the user's playlists in creation order.
func (h *APIHandler) GetPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlists, err := h.playlists.GetAllByUserID(r.Context(), identity.UserID)
	if err != nil {
		logger.Error("failed to list playlists", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to list playlists")
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

// RenamePlaylistHandler updates a playlist's name.
func (h *APIHandler) RenamePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlistID := mux.Vars(r)["id"]

	var req PlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required.")
		return
	}

	if err := h.playlists.Rename(r.Context(), identity.UserID, playlistID, name); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "Playlist not found.")
			return
		}
		logger.Error("failed to rename playlist",
			logger.String("playlistId", playlistID),
			logger.ErrorField(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to rename playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeletePlaylistHandler removes a playlist. Tracks themselves are
// untouched; a playlist only holds references.
func (h *APIHandler) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlistID := mux.Vars(r)["id"]

	if err := h.playlists.Delete(r.Context(), identity.UserID, playlistID); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "Playlist not found.")
			return
		}
		logger.Error("failed to delete playlist",
			logger.String("playlistId", playlistID),
			logger.ErrorField(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to delete playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// AddPlaylistTrackHandler appends a track reference to a playlist. The
// track must exist and belong to the user; adding it twice is a no-op.
func (h *APIHandler) AddPlaylistTrackHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)
	playlistID := vars["id"]
	trackID := vars["trackId"]

	track, err := h.trackRepo.GetTrackByID(r.Context(), identity.UserID, trackID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to add track")
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "Track not found.")
		return
	}

	if err := h.playlists.AddTrack(r.Context(), identity.UserID, playlistID, trackID); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "Playlist not found.")
			return
		}
		logger.Error("failed to add track to playlist",
			logger.String("playlistId", playlistID),
			logger.String("trackId", trackID),
			logger.ErrorField(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to add track")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RemovePlaylistTrackHandler drops a track reference from a playlist.
func (h *APIHandler) RemovePlaylistTrackHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)
	playlistID := vars["id"]
	trackID := vars["trackId"]

	if err := h.playlists.RemoveTrack(r.Context(), identity.UserID, playlistID, trackID); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "Playlist not found.")
			return
		}
		logger.Error("failed to remove track from playlist",
			logger.String("playlistId", playlistID),
			logger.String("trackId", trackID),
			logger.ErrorField(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to remove track")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
