package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"clipfm/core/ingest"
	"clipfm/core/queue"
	"clipfm/logger"
)

// submissionQueues holds one submission queue per user, created lazily.
// Each user's pasted links drain in order through a single consumer
// without blocking other users.
type submissionQueues struct {
	ctx context.Context

	mu     sync.Mutex
	queues map[string]*queue.SubmissionQueue
}

func newSubmissionQueues(ctx context.Context) *submissionQueues {
	return &submissionQueues{ctx: ctx, queues: make(map[string]*queue.SubmissionQueue)}
}

func (s *submissionQueues) forUser(userID string, submit queue.SubmitFunc) *queue.SubmissionQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[userID]
	if !ok {
		q = queue.New(s.ctx, submit, func(n queue.Notification) {
			if n.Err != nil {
				return
			}
			logger.Info("queued submission finished",
				logger.String("userId", userID),
				logger.String("url", n.URL),
				logger.String("status", n.Result.Status),
			)
		})
		s.queues[userID] = q
	}
	return q
}

// BulkSubmitRequest is the body of POST /api/tracks/bulk.
type BulkSubmitRequest struct {
	SourceURLs []string `json:"sourceUrls"`
}

// BulkSubmitResponse reports how many links were accepted onto the queue.
type BulkSubmitResponse struct {
	Queued  int `json:"queued"`
	Pending int `json:"pending"`
}

// BulkSubmitHandler accepts a batch of links and enqueues them for
// in-order ingestion. The request returns as soon as the links are
// queued; outcomes surface through the library event feed as each
// track is created and resolved.
func (h *APIHandler) BulkSubmitHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req BulkSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	urls := make([]string, 0, len(req.SourceURLs))
	for _, u := range req.SourceURLs {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	if len(urls) == 0 {
		writeError(w, http.StatusBadRequest, "sourceUrls is required.")
		return
	}

	userID := identity.UserID
	q := h.queues.forUser(userID, func(ctx context.Context, url string) (*ingest.Result, error) {
		ctx, cancel := context.WithTimeout(ctx, h.cfg.IngestTimeout)
		defer cancel()
		return h.pipeline.SubmitLink(ctx, userID, url)
	})

	pending := q.Enqueue(urls...)
	writeJSON(w, http.StatusAccepted, BulkSubmitResponse{Queued: len(urls), Pending: pending})
}
