package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"clipfm/cache"
	"clipfm/config"
	"clipfm/core/auth"
	"clipfm/core/ingest"
	"clipfm/repository"
	"clipfm/storage"
)

// APIHandler handles all API requests.
type APIHandler struct {
	cfg       *config.Config
	verifier  *auth.Verifier
	pipeline  *ingest.Pipeline
	trackRepo repository.TrackRepository
	playlists repository.PlaylistRepository
	library   *cache.LibraryCache
	blobs     *storage.MinioStore
	queues    *submissionQueues
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	cfg *config.Config,
	verifier *auth.Verifier,
	pipeline *ingest.Pipeline,
	trackRepo repository.TrackRepository,
	playlists repository.PlaylistRepository,
	library *cache.LibraryCache,
	blobs *storage.MinioStore,
) *APIHandler {
	return &APIHandler{
		cfg:       cfg,
		verifier:  verifier,
		pipeline:  pipeline,
		trackRepo: trackRepo,
		playlists: playlists,
		library:   library,
		blobs:     blobs,
		queues:    newSubmissionQueues(context.Background()),
	}
}

type contextKey string

const identityKey contextKey = "identity"

// AuthMiddleware checks the bearer credential and the email allow-list,
// then stores the verified identity on the request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		identity, err := h.verifier.Verify(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrNotAuthorized) {
				writeError(w, http.StatusForbidden, "Your account is not authorized to use this app.")
				return
			}
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// IdentityFromContext extracts the verified identity from the request context.
func IdentityFromContext(ctx context.Context) (*auth.Identity, error) {
	identity, ok := ctx.Value(identityKey).(*auth.Identity)
	if !ok {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusForIngestError maps the ingestion failure taxonomy onto HTTP
// statuses. Anything unrecognized is an internal error.
func statusForIngestError(err error) int {
	switch {
	case errors.Is(err, ingest.ErrInvalidInput),
		errors.Is(err, ingest.ErrUnsupportedSource),
		errors.Is(err, ingest.ErrUnresolvableContentID),
		errors.Is(err, ingest.ErrDurationExceeded):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ingest.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// isNotFound matches the two repositories' not-found signals.
func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, gorm.ErrRecordNotFound)
}
