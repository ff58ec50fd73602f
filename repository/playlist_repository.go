package repository

import (
	"context"
	"time"

	"clipfm/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlaylistRepository defines playlist data access.
type PlaylistRepository interface {
	Create(ctx context.Context, userID, name string) (*model.Playlist, error)
	GetByID(ctx context.Context, userID, playlistID string) (*model.Playlist, error)
	GetAllByUserID(ctx context.Context, userID string) ([]*model.Playlist, error)
	Rename(ctx context.Context, userID, playlistID, name string) error
	Delete(ctx context.Context, userID, playlistID string) error

	// AddTrack and RemoveTrack are idempotent: adding a present id or
	// removing an absent one is a no-op, not an error.
	AddTrack(ctx context.Context, userID, playlistID, trackID string) error
	RemoveTrack(ctx context.Context, userID, playlistID, trackID string) error
	// RemoveTrackFromAll drops a track id from every playlist of the user,
	// used when the track itself is deleted.
	RemoveTrackFromAll(ctx context.Context, userID, trackID string) error
}

// gormPlaylistRepository is the GORM implementation.
type gormPlaylistRepository struct {
	db *gorm.DB
}

// NewGormPlaylistRepository creates a GORM playlist repository.
func NewGormPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &gormPlaylistRepository{db: db}
}

// Create creates an empty playlist.
func (r *gormPlaylistRepository) Create(ctx context.Context, userID, name string) (*model.Playlist, error) {
	playlist := &model.Playlist{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     name,
		TrackIDs: model.TrackIDSet{},
	}
	if err := r.db.WithContext(ctx).Create(playlist).Error; err != nil {
		return nil, err
	}
	return playlist, nil
}

// GetByID returns the user's playlist, or nil when absent.
func (r *gormPlaylistRepository) GetByID(ctx context.Context, userID, playlistID string) (*model.Playlist, error) {
	var playlist model.Playlist
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", playlistID, userID).
		First(&playlist).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &playlist, nil
}

// GetAllByUserID lists the user's playlists in creation order.
func (r *gormPlaylistRepository) GetAllByUserID(ctx context.Context, userID string) ([]*model.Playlist, error) {
	var playlists []*model.Playlist
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&playlists).Error
	return playlists, err
}

// Rename updates a playlist name.
func (r *gormPlaylistRepository) Rename(ctx context.Context, userID, playlistID, name string) error {
	res := r.db.WithContext(ctx).Model(&model.Playlist{}).
		Where("id = ? AND user_id = ?", playlistID, userID).
		Updates(map[string]interface{}{
			"name":       name,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a playlist. Referenced tracks are untouched.
func (r *gormPlaylistRepository) Delete(ctx context.Context, userID, playlistID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", playlistID, userID).
		Delete(&model.Playlist{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddTrack adds a track id to the playlist set if not already present.
func (r *gormPlaylistRepository) AddTrack(ctx context.Context, userID, playlistID, trackID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var playlist model.Playlist
		if err := tx.Where("id = ? AND user_id = ?", playlistID, userID).First(&playlist).Error; err != nil {
			return err
		}
		if playlist.TrackIDs.Contains(trackID) {
			return nil
		}
		playlist.TrackIDs = append(playlist.TrackIDs, trackID)
		return tx.Model(&playlist).Updates(map[string]interface{}{
			"track_ids":  playlist.TrackIDs,
			"updated_at": time.Now(),
		}).Error
	})
}

// RemoveTrack removes a track id from the playlist set if present.
func (r *gormPlaylistRepository) RemoveTrack(ctx context.Context, userID, playlistID, trackID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var playlist model.Playlist
		if err := tx.Where("id = ? AND user_id = ?", playlistID, userID).First(&playlist).Error; err != nil {
			return err
		}
		if !playlist.TrackIDs.Contains(trackID) {
			return nil
		}
		kept := make(model.TrackIDSet, 0, len(playlist.TrackIDs)-1)
		for _, id := range playlist.TrackIDs {
			if id != trackID {
				kept = append(kept, id)
			}
		}
		return tx.Model(&playlist).Updates(map[string]interface{}{
			"track_ids":  kept,
			"updated_at": time.Now(),
		}).Error
	})
}

// RemoveTrackFromAll removes a track id from every playlist of the user.
func (r *gormPlaylistRepository) RemoveTrackFromAll(ctx context.Context, userID, trackID string) error {
	playlists, err := r.GetAllByUserID(ctx, userID)
	if err != nil {
		return err
	}
	for _, p := range playlists {
		if !p.TrackIDs.Contains(trackID) {
			continue
		}
		if err := r.RemoveTrack(ctx, userID, p.ID, trackID); err != nil {
			return err
		}
	}
	return nil
}
