package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"clipfm/config"
	"clipfm/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio initializes the MinIO client and ensures the bucket exists.
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("created bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	logger.Info("MinIO client initialized",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket),
	)
	return nil
}

// GetMinioClient returns the MinIO client instance.
func GetMinioClient() *minio.Client {
	return minioClient
}

// MinioStore uploads and removes track audio objects.
type MinioStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinioStore creates a MinioStore over the initialized client.
func NewMinioStore(cfg *config.Config) *MinioStore {
	return &MinioStore{
		client:        minioClient,
		bucket:        cfg.MinioBucket,
		publicBaseURL: cfg.PublicBaseURL,
	}
}

// TrackObjectPath is the deterministic per-user-per-track object path.
func TrackObjectPath(userID, trackID string) string {
	return fmt.Sprintf("users/%s/tracks/%s.wav", userID, trackID)
}

// UploadTrackAudio uploads a local WAV file to the object path and returns
// the playable URL. The URL embeds a freshly minted download token which is
// also stored as object metadata and checked when the object is served.
func (s *MinioStore) UploadTrackAudio(ctx context.Context, localPath, objectPath string) (string, error) {
	token := uuid.NewString()
	_, err := s.client.FPutObject(ctx, s.bucket, objectPath, localPath, minio.PutObjectOptions{
		ContentType:  "audio/wav",
		UserMetadata: map[string]string{"download-token": token},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}

	playableURL := fmt.Sprintf("%s/audio/%s?token=%s", s.publicBaseURL, objectPath, url.QueryEscape(token))
	return playableURL, nil
}

// RemoveTrackAudio deletes a track object. Best-effort: a missing object
// is not an error.
func (s *MinioStore) RemoveTrackAudio(ctx context.Context, objectPath string) {
	if err := s.client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		logger.Warn("failed to remove track object",
			logger.String("path", objectPath),
			logger.ErrorField(err),
		)
	}
}

// ValidateToken checks a download token against the object's metadata.
func (s *MinioStore) ValidateToken(ctx context.Context, objectPath, token string) bool {
	if token == "" {
		return false
	}
	info, err := s.client.StatObject(ctx, s.bucket, objectPath, minio.StatObjectOptions{})
	if err != nil {
		return false
	}
	return info.UserMetadata["Download-Token"] == token
}
