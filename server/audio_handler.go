package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"clipfm/logger"
	"clipfm/storage"
)

// AudioHandler proxies normalized audio out of MinIO. Playback URLs
// carry a per-object token minted at upload time; the player fetches
// them without an Authorization header, so the token is the credential.
func (h *APIHandler) AudioHandler(w http.ResponseWriter, r *http.Request) {
	objectPath := strings.TrimPrefix(r.URL.Path, "/audio/")
	if objectPath == "" || strings.Contains(objectPath, "..") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Token required", http.StatusForbidden)
		return
	}

	client := storage.GetMinioClient()
	if client == nil {
		http.Error(w, "Storage not available", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if !h.blobs.ValidateToken(ctx, objectPath, token) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	object, err := client.GetObject(ctx, h.cfg.MinioBucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("error serving audio from minio",
			logger.String("object", objectPath),
			logger.ErrorField(err),
		)
	}
}
