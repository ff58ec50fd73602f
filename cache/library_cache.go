package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"clipfm/logger"
	"clipfm/model"
)

// libraryTTL bounds how long a cached track list is served before the
// database is consulted again.
const libraryTTL = 5 * time.Minute

// Track event actions.
const (
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// TrackEvent is published whenever a track record changes state, so
// observers see transitions the instant they are written.
type TrackEvent struct {
	Type    string       `json:"type"` // always "track"
	Action  string       `json:"action"`
	Track   *model.Track `json:"track,omitempty"`
	TrackID string       `json:"trackId,omitempty"`
}

// LibraryCache caches per-user track lists in Redis and fans out track
// lifecycle events over pub/sub.
type LibraryCache struct {
	rdb *redis.Client
}

// NewLibraryCache creates a LibraryCache.
func NewLibraryCache(rdb *redis.Client) *LibraryCache {
	return &LibraryCache{rdb: rdb}
}

func libraryKey(userID string) string {
	return fmt.Sprintf("library:tracks:%s", userID)
}

// EventChannel is the per-user pub/sub channel for track events.
func EventChannel(userID string) string {
	return fmt.Sprintf("library:events:%s", userID)
}

// GetTracks returns the cached track list, or nil on a miss.
func (c *LibraryCache) GetTracks(ctx context.Context, userID string) []*model.Track {
	if c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, libraryKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("library cache read failed", logger.ErrorField(err))
		}
		return nil
	}
	var tracks []*model.Track
	if err := json.Unmarshal(raw, &tracks); err != nil {
		logger.Warn("library cache unmarshal failed", logger.ErrorField(err))
		return nil
	}
	return tracks
}

// SetTracks stores the track list.
func (c *LibraryCache) SetTracks(ctx context.Context, userID string, tracks []*model.Track) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(tracks)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, libraryKey(userID), raw, libraryTTL).Err(); err != nil {
		logger.Warn("library cache write failed", logger.ErrorField(err))
	}
}

// Invalidate drops the cached track list.
func (c *LibraryCache) Invalidate(ctx context.Context, userID string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, libraryKey(userID)).Err(); err != nil {
		logger.Warn("library cache invalidate failed", logger.ErrorField(err))
	}
}

// TrackChanged invalidates the cached list and publishes the transition.
// Cache and notification failures are never allowed to fail the write
// they observe.
func (c *LibraryCache) TrackChanged(ctx context.Context, userID string, track *model.Track) {
	c.Invalidate(ctx, userID)

	if c.rdb == nil {
		return
	}
	payload, err := json.Marshal(TrackEvent{Type: "track", Action: ActionUpdated, Track: track, TrackID: track.ID})
	if err != nil {
		return
	}
	if err := c.rdb.Publish(ctx, EventChannel(userID), payload).Err(); err != nil {
		logger.Warn("track event publish failed",
			logger.String("trackId", track.ID),
			logger.ErrorField(err),
		)
	}
}

// TrackDeleted invalidates the cached list and publishes the removal.
func (c *LibraryCache) TrackDeleted(ctx context.Context, userID, trackID string) {
	c.Invalidate(ctx, userID)

	if c.rdb == nil {
		return
	}
	payload, err := json.Marshal(TrackEvent{Type: "track", Action: ActionDeleted, TrackID: trackID})
	if err != nil {
		return
	}
	if err := c.rdb.Publish(ctx, EventChannel(userID), payload).Err(); err != nil {
		logger.Warn("track event publish failed",
			logger.String("trackId", trackID),
			logger.ErrorField(err),
		)
	}
}

// Subscribe opens a pub/sub subscription on the user's event channel, or
// returns nil when Redis is absent. The caller owns the returned
// subscription and must close it.
func (c *LibraryCache) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Subscribe(ctx, EventChannel(userID))
}
