package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clipfm/db"
	"clipfm/model"
)

const trackColumns = `id, user_id, source, source_url, content_id, name, blob_path, playable_url,
	duration_seconds, rms, status, error_message, ordinal, created_at, updated_at`

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrackByID(ctx context.Context, userID, trackID string) (*model.Track, error)
	GetTracksByUserID(ctx context.Context, userID string) ([]*model.Track, error)
	// FindActiveByContentID returns the user's processing or ready track for
	// a content id, or nil. Error records do not block re-submission.
	FindActiveByContentID(ctx context.Context, userID, contentID string) (*model.Track, error)
	// CountActiveTracks counts the user's processing and ready tracks.
	CountActiveTracks(ctx context.Context, userID string) (int, error)
	MarkTrackReady(ctx context.Context, trackID, name, blobPath, playableURL string, durationSeconds, rms float64) error
	MarkTrackError(ctx context.Context, trackID, message string) error
	RenameTrack(ctx context.Context, userID, trackID, name string) error
	DeleteTrack(ctx context.Context, userID, trackID string) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	query := `INSERT INTO tracks (id, user_id, source, source_url, content_id, name, blob_path, playable_url,
	           duration_seconds, rms, status, error_message, ordinal, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	track.CreatedAt = now
	track.UpdatedAt = now
	_, err = stmt.ExecContext(ctx,
		track.ID, track.UserID, track.Source, track.SourceURL, track.ContentID, track.Name,
		track.BlobPath, track.PlayableURL, track.DurationSeconds, track.RMS,
		track.Status, track.ErrorMessage, track.Ordinal, now, now)
	if err != nil {
		return fmt.Errorf("failed to execute CreateTrack: %w", err)
	}
	return nil
}

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	var sourceURL, contentID, blobPath, playableURL, errorMessage sql.NullString
	err := row.Scan(&track.ID, &track.UserID, &track.Source, &sourceURL, &contentID, &track.Name,
		&blobPath, &playableURL, &track.DurationSeconds, &track.RMS,
		&track.Status, &errorMessage, &track.Ordinal, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	track.SourceURL = sourceURL.String
	track.ContentID = contentID.String
	track.BlobPath = blobPath.String
	track.PlayableURL = playableURL.String
	track.ErrorMessage = errorMessage.String
	return track, nil
}

// GetTrackByID retrieves one of the user's tracks by id.
func (r *mysqlTrackRepository) GetTrackByID(ctx context.Context, userID, trackID string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = ? AND id = ?`
	track, err := scanTrack(r.DB.QueryRowContext(ctx, query, userID, trackID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %s: %w", trackID, err)
	}
	return track, nil
}

// GetTracksByUserID retrieves all tracks for a user in stable display order.
func (r *mysqlTrackRepository) GetTracksByUserID(ctx context.Context, userID string) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE user_id = ? ORDER BY ordinal ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for user %s: %w", userID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetTracksByUserID: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetTracksByUserID: %w", err)
	}

	return tracks, nil
}

// FindActiveByContentID looks up a non-terminal-error track for dedup.
func (r *mysqlTrackRepository) FindActiveByContentID(ctx context.Context, userID, contentID string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks
	           WHERE user_id = ? AND content_id = ? AND status IN (?, ?) LIMIT 1`
	track, err := scanTrack(r.DB.QueryRowContext(ctx, query, userID, contentID,
		model.TrackStatusProcessing, model.TrackStatusReady))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track by content id %s: %w", contentID, err)
	}
	return track, nil
}

// CountActiveTracks counts processing and ready tracks for quota enforcement.
func (r *mysqlTrackRepository) CountActiveTracks(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM tracks WHERE user_id = ? AND status IN (?, ?)`
	var count int
	err := r.DB.QueryRowContext(ctx, query, userID,
		model.TrackStatusProcessing, model.TrackStatusReady).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tracks for user %s: %w", userID, err)
	}
	return count, nil
}

// MarkTrackReady finalizes a successful ingestion run.
func (r *mysqlTrackRepository) MarkTrackReady(ctx context.Context, trackID, name, blobPath, playableURL string, durationSeconds, rms float64) error {
	query := `UPDATE tracks SET name = ?, blob_path = ?, playable_url = ?, duration_seconds = ?, rms = ?,
	           status = ?, error_message = NULL, updated_at = ? WHERE id = ?`
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for MarkTrackReady: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, name, blobPath, playableURL, durationSeconds, rms,
		model.TrackStatusReady, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to execute MarkTrackReady for track %s: %w", trackID, err)
	}
	return nil
}

// MarkTrackError records a failed ingestion run.
func (r *mysqlTrackRepository) MarkTrackError(ctx context.Context, trackID, message string) error {
	query := `UPDATE tracks SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for MarkTrackError: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, model.TrackStatusError, message, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to execute MarkTrackError for track %s: %w", trackID, err)
	}
	return nil
}

// RenameTrack updates a track's display name.
func (r *mysqlTrackRepository) RenameTrack(ctx context.Context, userID, trackID, name string) error {
	query := `UPDATE tracks SET name = ?, updated_at = ? WHERE user_id = ? AND id = ?`
	res, err := r.DB.ExecContext(ctx, query, name, time.Now(), userID, trackID)
	if err != nil {
		return fmt.Errorf("failed to execute RenameTrack for track %s: %w", trackID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteTrack removes a track row.
func (r *mysqlTrackRepository) DeleteTrack(ctx context.Context, userID, trackID string) error {
	query := `DELETE FROM tracks WHERE user_id = ? AND id = ?`
	res, err := r.DB.ExecContext(ctx, query, userID, trackID)
	if err != nil {
		return fmt.Errorf("failed to execute DeleteTrack for track %s: %w", trackID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
