// Package ingest drives a submitted link or upload through the track
// lifecycle: processing at creation, then exactly one transition to ready
// or error. Both end states are terminal; re-submission creates or reuses
// another record, never resurrects one.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipfm/config"
	"clipfm/core/resolver"
	"clipfm/core/toolchain"
	"clipfm/logger"
	"clipfm/model"
	"clipfm/repository"
	"clipfm/storage"
)

// errorMessageLimit bounds the durable error text on a failed record.
const errorMessageLimit = 500

// Submission statuses returned to the caller.
const (
	StatusReady     = "ready"
	StatusDuplicate = "duplicate"
)

// Result is the synchronous outcome of a submission.
type Result struct {
	TrackID string `json:"id"`
	Status  string `json:"status"`
}

// BlobStore is the durable audio storage collaborator.
type BlobStore interface {
	UploadTrackAudio(ctx context.Context, localPath, objectPath string) (string, error)
	RemoveTrackAudio(ctx context.Context, objectPath string)
}

// Notifier makes track state transitions externally observable the moment
// they are written.
type Notifier interface {
	TrackChanged(ctx context.Context, userID string, track *model.Track)
}

// Pipeline orchestrates ingestion runs. Runs are independent and
// stateless; the metadata store is the only synchronization point, so the
// dedup and quota checks are read-then-write and best-effort under two
// near-simultaneous submissions of the same link by the same user.
type Pipeline struct {
	cfg        *config.Config
	resolver   *resolver.Resolver
	downloader *toolchain.Downloader
	ffmpeg     *toolchain.FFmpeg
	tracks     repository.TrackRepository
	blobs      BlobStore
	notifier   Notifier
}

// NewPipeline creates a Pipeline.
func NewPipeline(
	cfg *config.Config,
	urlResolver *resolver.Resolver,
	downloader *toolchain.Downloader,
	ffmpeg *toolchain.FFmpeg,
	tracks repository.TrackRepository,
	blobs BlobStore,
	notifier Notifier,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		resolver:   urlResolver,
		downloader: downloader,
		ffmpeg:     ffmpeg,
		tracks:     tracks,
		blobs:      blobs,
		notifier:   notifier,
	}
}

// SubmitLink ingests a submitted link for the user.
//
// Failures before the record exists (resolution, dedup, quota) surface
// only as the returned error. Once the processing record is created, any
// failure is also written to the record as the durable error signal
// before being re-raised.
func (p *Pipeline) SubmitLink(ctx context.Context, userID, rawURL string) (*Result, error) {
	resolved, err := p.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	existing, err := p.tracks.FindActiveByContentID(ctx, userID, resolved.ContentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Info("duplicate submission",
			logger.String("userId", userID),
			logger.String("contentId", resolved.ContentID),
			logger.String("trackId", existing.ID),
		)
		return &Result{TrackID: existing.ID, Status: StatusDuplicate}, nil
	}

	if err := p.checkQuota(ctx, userID); err != nil {
		return nil, err
	}

	track := &model.Track{
		ID:        uuid.NewString(),
		UserID:    userID,
		Source:    model.TrackSourceLink,
		SourceURL: resolved.ResolvedURL,
		ContentID: resolved.ContentID,
		Name:      resolved.ContentID, // placeholder until the downloader reports a title
		RMS:       model.RMSFloor,
		Status:    model.TrackStatusProcessing,
		Ordinal:   time.Now().UnixMilli(),
	}
	if err := p.tracks.CreateTrack(ctx, track); err != nil {
		return nil, err
	}
	p.notify(ctx, userID, track)

	if err := p.withWorkDir(track.ID, func(workDir string) error {
		return p.runLink(ctx, track, workDir)
	}); err != nil {
		p.failTrack(ctx, track, err)
		return nil, err
	}

	p.notify(ctx, userID, track)
	return &Result{TrackID: track.ID, Status: StatusReady}, nil
}

// runLink executes the download/transcode/upload stages for a link track.
func (p *Pipeline) runLink(ctx context.Context, track *model.Track, workDir string) error {
	title, err := p.downloader.Download(ctx, track.SourceURL, workDir)
	if err != nil {
		return err
	}
	if title == "" {
		title = track.ContentID
	}

	rawFile, err := toolchain.LocateOutput(workDir)
	if err != nil {
		return err
	}
	if rawFile == "" {
		return ErrDownloadProducedNoFile
	}

	duration := p.ffmpeg.ProbeDuration(ctx, rawFile, workDir)

	outFile := filepath.Join(workDir, "out.wav")
	rms, err := p.ffmpeg.TranscodeWithLoudness(ctx, rawFile, outFile, workDir)
	if err != nil {
		return err
	}

	objectPath := storage.TrackObjectPath(track.UserID, track.ID)
	playableURL, err := p.blobs.UploadTrackAudio(ctx, outFile, objectPath)
	if err != nil {
		return err
	}

	if err := p.tracks.MarkTrackReady(ctx, track.ID, title, objectPath, playableURL, duration, rms); err != nil {
		return err
	}

	track.Name = title
	track.BlobPath = objectPath
	track.PlayableURL = playableURL
	track.DurationSeconds = duration
	track.RMS = rms
	track.Status = model.TrackStatusReady

	logger.Info("track ready",
		logger.String("trackId", track.ID),
		logger.String("userId", track.UserID),
		logger.Float64("durationSeconds", duration),
		logger.Float64("rms", rms),
	)
	return nil
}

// SubmitUpload ingests a directly uploaded audio file. Uploads carry no
// content id and skip the dedup check, but are validated against the
// supported container and the duration cap.
func (p *Pipeline) SubmitUpload(ctx context.Context, userID, fileName string, audio []byte) (*Result, error) {
	if fileName == "" || len(audio) == 0 {
		return nil, fmt.Errorf("%w: fileName and audio are required", ErrInvalidInput)
	}
	if !strings.HasSuffix(strings.ToLower(fileName), ".mp3") {
		return nil, fmt.Errorf("%w: only MP3 files are supported", ErrInvalidInput)
	}

	if err := p.checkQuota(ctx, userID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName)))
	if name == "" {
		name = "Uploaded Track"
	}

	track := &model.Track{
		ID:      uuid.NewString(),
		UserID:  userID,
		Source:  model.TrackSourceUpload,
		Name:    name,
		RMS:     model.RMSFloor,
		Status:  model.TrackStatusProcessing,
		Ordinal: time.Now().UnixMilli(),
	}
	if err := p.tracks.CreateTrack(ctx, track); err != nil {
		return nil, err
	}
	p.notify(ctx, userID, track)

	if err := p.withWorkDir(track.ID, func(workDir string) error {
		return p.runUpload(ctx, track, workDir, fileName, audio)
	}); err != nil {
		p.failTrack(ctx, track, err)
		return nil, err
	}

	p.notify(ctx, userID, track)
	return &Result{TrackID: track.ID, Status: StatusReady}, nil
}

// runUpload executes the decode/transcode/upload stages for an upload.
func (p *Pipeline) runUpload(ctx context.Context, track *model.Track, workDir, fileName string, audio []byte) error {
	ext := filepath.Ext(fileName)
	if ext == "" {
		ext = ".mp3"
	}
	rawFile := filepath.Join(workDir, "raw"+ext)
	if err := os.WriteFile(rawFile, audio, 0600); err != nil {
		return fmt.Errorf("failed to write uploaded audio: %w", err)
	}

	// The cap is checked against the decoded file, before any upload cost.
	duration := p.ffmpeg.ProbeDuration(ctx, rawFile, workDir)
	maxSeconds := p.cfg.MaxUploadDuration.Seconds()
	if duration > maxSeconds {
		return fmt.Errorf("%w: audio must be under %.0f minutes, this file is %.1f minutes long",
			ErrDurationExceeded, maxSeconds/60, duration/60)
	}

	outFile := filepath.Join(workDir, "out.wav")
	rms, err := p.ffmpeg.TranscodeWithLoudness(ctx, rawFile, outFile, workDir)
	if err != nil {
		return err
	}

	objectPath := storage.TrackObjectPath(track.UserID, track.ID)
	playableURL, err := p.blobs.UploadTrackAudio(ctx, outFile, objectPath)
	if err != nil {
		return err
	}

	if err := p.tracks.MarkTrackReady(ctx, track.ID, track.Name, objectPath, playableURL, duration, rms); err != nil {
		return err
	}

	track.BlobPath = objectPath
	track.PlayableURL = playableURL
	track.DurationSeconds = duration
	track.RMS = rms
	track.Status = model.TrackStatusReady
	return nil
}

// checkQuota refuses a new record once the user's processing and ready
// count reaches the cap. The cap is enforced at creation time only, never
// retroactively.
func (p *Pipeline) checkQuota(ctx context.Context, userID string) error {
	count, err := p.tracks.CountActiveTracks(ctx, userID)
	if err != nil {
		return err
	}
	if count >= p.cfg.MaxTracksPerUser {
		return fmt.Errorf("%w (limit %d)", ErrQuotaExceeded, p.cfg.MaxTracksPerUser)
	}
	return nil
}

// withWorkDir runs fn with a scoped working directory owned exclusively by
// this run. Removal is unconditional on every exit path, and a removal
// failure never masks fn's error.
func (p *Pipeline) withWorkDir(trackID string, fn func(workDir string) error) error {
	workDir := filepath.Join(p.cfg.TempDir, "ingest-"+trackID)
	if err := os.MkdirAll(workDir, 0700); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to remove working directory",
				logger.String("dir", workDir),
				logger.ErrorField(err),
			)
		}
	}()
	return fn(workDir)
}

// failTrackTimeout bounds the detached error-state write in failTrack.
const failTrackTimeout = 10 * time.Second

// failTrack records a failed run on the track. The durable record is the
// error signal for asynchronous observers; a secondary failure writing it
// is swallowed because the caller already receives the original error.
//
// The write runs detached from the run's context: the cause is often that
// very context expiring (ingest timeout, client disconnect), and the
// error state must still land or the record is stuck in processing,
// shadowing re-submissions and holding a quota slot.
func (p *Pipeline) failTrack(ctx context.Context, track *model.Track, cause error) {
	message := cause.Error()
	if len(message) > errorMessageLimit {
		message = message[:errorMessageLimit]
	}

	logger.Error("ingestion failed",
		logger.String("trackId", track.ID),
		logger.String("userId", track.UserID),
		logger.ErrorField(cause),
	)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTrackTimeout)
	defer cancel()

	if err := p.tracks.MarkTrackError(ctx, track.ID, message); err != nil {
		logger.Warn("failed to write error state",
			logger.String("trackId", track.ID),
			logger.ErrorField(err),
		)
		return
	}
	track.Status = model.TrackStatusError
	track.ErrorMessage = message
	p.notify(ctx, track.UserID, track)
}

func (p *Pipeline) notify(ctx context.Context, userID string, track *model.Track) {
	if p.notifier != nil {
		p.notifier.TrackChanged(ctx, userID, track)
	}
}
