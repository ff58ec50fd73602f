package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipfm/config"
	"clipfm/core/resolver"
	"clipfm/core/toolchain"
	"clipfm/model"
)

// fakeTrackRepo is an in-memory TrackRepository. With strictCtx set,
// writes on an expired context fail the way database/sql does.
type fakeTrackRepo struct {
	tracks map[string]*model.Track

	strictCtx bool
	createErr error
	countErr  error
	readyErr  error
	errorErr  error
}

func newFakeTrackRepo() *fakeTrackRepo {
	return &fakeTrackRepo{tracks: make(map[string]*model.Track)}
}

func (r *fakeTrackRepo) CreateTrack(ctx context.Context, track *model.Track) error {
	if r.strictCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	if r.createErr != nil {
		return r.createErr
	}
	cp := *track
	r.tracks[track.ID] = &cp
	return nil
}

func (r *fakeTrackRepo) GetTrackByID(ctx context.Context, userID, trackID string) (*model.Track, error) {
	t, ok := r.tracks[trackID]
	if !ok || t.UserID != userID {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTrackRepo) GetTracksByUserID(ctx context.Context, userID string) ([]*model.Track, error) {
	var out []*model.Track
	for _, t := range r.tracks {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTrackRepo) FindActiveByContentID(ctx context.Context, userID, contentID string) (*model.Track, error) {
	for _, t := range r.tracks {
		if t.UserID == userID && t.ContentID == contentID &&
			(t.Status == model.TrackStatusProcessing || t.Status == model.TrackStatusReady) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTrackRepo) CountActiveTracks(ctx context.Context, userID string) (int, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	n := 0
	for _, t := range r.tracks {
		if t.UserID == userID &&
			(t.Status == model.TrackStatusProcessing || t.Status == model.TrackStatusReady) {
			n++
		}
	}
	return n, nil
}

func (r *fakeTrackRepo) MarkTrackReady(ctx context.Context, trackID, name, blobPath, playableURL string, durationSeconds, rms float64) error {
	if r.strictCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	if r.readyErr != nil {
		return r.readyErr
	}
	t := r.tracks[trackID]
	t.Name = name
	t.BlobPath = blobPath
	t.PlayableURL = playableURL
	t.DurationSeconds = durationSeconds
	t.RMS = rms
	t.Status = model.TrackStatusReady
	return nil
}

func (r *fakeTrackRepo) MarkTrackError(ctx context.Context, trackID, message string) error {
	if r.strictCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	if r.errorErr != nil {
		return r.errorErr
	}
	t := r.tracks[trackID]
	t.Status = model.TrackStatusError
	t.ErrorMessage = message
	return nil
}

func (r *fakeTrackRepo) RenameTrack(ctx context.Context, userID, trackID, name string) error {
	t, ok := r.tracks[trackID]
	if !ok || t.UserID != userID {
		return errors.New("not found")
	}
	t.Name = name
	return nil
}

func (r *fakeTrackRepo) DeleteTrack(ctx context.Context, userID, trackID string) error {
	delete(r.tracks, trackID)
	return nil
}

// fakeBlobStore records uploads without touching the network.
type fakeBlobStore struct {
	uploaded  []string
	uploadErr error
}

func (b *fakeBlobStore) UploadTrackAudio(ctx context.Context, localPath, objectPath string) (string, error) {
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	b.uploaded = append(b.uploaded, objectPath)
	return "https://example.test/audio/" + objectPath + "?token=t", nil
}

func (b *fakeBlobStore) RemoveTrackAudio(ctx context.Context, objectPath string) {}

// fakeNotifier records every published state.
type fakeNotifier struct {
	statuses []string
}

func (n *fakeNotifier) TrackChanged(ctx context.Context, userID string, track *model.Track) {
	n.statuses = append(n.statuses, track.Status)
}

// toolchainRunner simulates yt-dlp and ffmpeg. yt-dlp writes a raw file
// into the working directory; ffmpeg answers with canned diagnostics.
type toolchainRunner struct {
	title        string
	writeRawFile bool
	durationLine string
	rmsLine      string

	downloadErr  error
	transcodeErr error
}

func (r *toolchainRunner) Run(ctx context.Context, bin string, args []string, dir string) (*toolchain.Output, error) {
	switch {
	case strings.Contains(bin, "yt-dlp"):
		if r.downloadErr != nil {
			return nil, r.downloadErr
		}
		if r.writeRawFile {
			if err := os.WriteFile(filepath.Join(dir, "raw.m4a"), []byte("audio"), 0600); err != nil {
				return nil, err
			}
		}
		return &toolchain.Output{Stdout: r.title + "\n"}, nil
	case containsArg(args, "null"):
		return &toolchain.Output{Stderr: r.durationLine}, nil
	default:
		if r.transcodeErr != nil {
			return nil, r.transcodeErr
		}
		return &toolchain.Output{Stderr: r.rmsLine}, nil
	}
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		MaxTracksPerUser:  25,
		MaxUploadDuration: 5 * time.Minute,
		TempDir:           t.TempDir(),
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, runner toolchain.Runner, repo *fakeTrackRepo, blobs *fakeBlobStore, notifier *fakeNotifier) *Pipeline {
	t.Helper()
	return NewPipeline(
		cfg,
		resolver.New(),
		toolchain.NewDownloader(runner, "yt-dlp", ""),
		toolchain.NewFFmpeg(runner, "ffmpeg"),
		repo,
		blobs,
		notifier,
	)
}

func happyRunner() *toolchainRunner {
	return &toolchainRunner{
		title:        "Catchy Song",
		writeRawFile: true,
		durationLine: "Duration: 00:00:45.50, start: 0\n",
		rmsLine:      "RMS level dB: -20.0\n",
	}
}

const testLinkURL = "https://www.tiktok.com/@someone/video/7312345678901234567"

func TestSubmitLinkSuccess(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	blobs := &fakeBlobStore{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, cfg, happyRunner(), repo, blobs, notifier)

	result, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, result.Status)

	track := repo.tracks[result.TrackID]
	require.NotNil(t, track)
	assert.Equal(t, model.TrackStatusReady, track.Status)
	assert.Equal(t, "Catchy Song", track.Name)
	assert.Equal(t, "7312345678901234567", track.ContentID)
	assert.Equal(t, model.TrackSourceLink, track.Source)
	assert.InDelta(t, 45.5, track.DurationSeconds, 1e-9)
	assert.InDelta(t, 0.1, track.RMS, 1e-6)
	assert.NotEmpty(t, track.PlayableURL)
	assert.NotZero(t, track.Ordinal)

	// Observers see the processing record first, then the ready one.
	assert.Equal(t, []string{model.TrackStatusProcessing, model.TrackStatusReady}, notifier.statuses)
	require.Len(t, blobs.uploaded, 1)
	assert.Equal(t, fmt.Sprintf("users/user-1/tracks/%s.wav", result.TrackID), blobs.uploaded[0])

	// The scoped working directory is gone.
	entries, err := os.ReadDir(cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmitLinkDuplicate(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, cfg, happyRunner(), repo, &fakeBlobStore{}, notifier)

	first, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.NoError(t, err)

	second, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, first.TrackID, second.TrackID)
	assert.Len(t, repo.tracks, 1)
}

func TestSubmitLinkDuplicateScopedToUser(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	p := newTestPipeline(t, cfg, happyRunner(), repo, &fakeBlobStore{}, &fakeNotifier{})

	_, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.NoError(t, err)

	result, err := p.SubmitLink(context.Background(), "user-2", testLinkURL)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, result.Status)
	assert.Len(t, repo.tracks, 2)
}

func TestSubmitLinkErrorRecordDoesNotBlockResubmission(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	runner := happyRunner()
	runner.downloadErr = errors.New("network down")
	p := newTestPipeline(t, cfg, runner, repo, &fakeBlobStore{}, &fakeNotifier{})

	_, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.Error(t, err)

	runner.downloadErr = nil
	result, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, result.Status)
}

func TestSubmitLinkQuota(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	p := newTestPipeline(t, cfg, happyRunner(), repo, &fakeBlobStore{}, &fakeNotifier{})

	for i := 0; i < cfg.MaxTracksPerUser; i++ {
		repo.tracks[fmt.Sprintf("t%d", i)] = &model.Track{
			ID:     fmt.Sprintf("t%d", i),
			UserID: "user-1",
			Status: model.TrackStatusReady,
		}
	}

	_, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// One slot under the cap still goes through.
	delete(repo.tracks, "t0")
	result, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, result.Status)
}

func TestSubmitLinkErrorRecordsDoNotCountAgainstQuota(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	p := newTestPipeline(t, cfg, happyRunner(), repo, &fakeBlobStore{}, &fakeNotifier{})

	for i := 0; i < cfg.MaxTracksPerUser; i++ {
		repo.tracks[fmt.Sprintf("t%d", i)] = &model.Track{
			ID:     fmt.Sprintf("t%d", i),
			UserID: "user-1",
			Status: model.TrackStatusError,
		}
	}

	result, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, result.Status)
}

func TestSubmitLinkDownloadFailure(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	notifier := &fakeNotifier{}
	runner := happyRunner()
	runner.downloadErr = &toolchain.ToolError{
		Bin:        "yt-dlp",
		Err:        errors.New("exit status 1"),
		StderrTail: "ERROR: unable to download",
	}
	p := newTestPipeline(t, cfg, runner, repo, &fakeBlobStore{}, notifier)

	_, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.Error(t, err)

	// The record survives in the error state with the cause recorded.
	require.Len(t, repo.tracks, 1)
	for _, track := range repo.tracks {
		assert.Equal(t, model.TrackStatusError, track.Status)
		assert.Contains(t, track.ErrorMessage, "yt-dlp failed")
		assert.LessOrEqual(t, len(track.ErrorMessage), 500)
	}
	assert.Equal(t, []string{model.TrackStatusProcessing, model.TrackStatusError}, notifier.statuses)

	entries, err := os.ReadDir(cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmitLinkErrorMessageTruncated(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	runner := happyRunner()
	runner.downloadErr = errors.New(strings.Repeat("x", 2000))
	p := newTestPipeline(t, cfg, runner, repo, &fakeBlobStore{}, &fakeNotifier{})

	_, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.Error(t, err)

	for _, track := range repo.tracks {
		assert.Len(t, track.ErrorMessage, 500)
	}
}

func TestSubmitLinkNoOutputFile(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	runner := happyRunner()
	runner.writeRawFile = false
	p := newTestPipeline(t, cfg, runner, repo, &fakeBlobStore{}, &fakeNotifier{})

	_, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	assert.ErrorIs(t, err, ErrDownloadProducedNoFile)
}

func TestSubmitLinkEmptyTitleFallsBackToContentID(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	runner := happyRunner()
	runner.title = ""
	p := newTestPipeline(t, cfg, runner, repo, &fakeBlobStore{}, &fakeNotifier{})

	result, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.NoError(t, err)
	assert.Equal(t, "7312345678901234567", repo.tracks[result.TrackID].Name)
}

func TestSubmitLinkUploadFailure(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	blobs := &fakeBlobStore{uploadErr: errors.New("minio unavailable")}
	p := newTestPipeline(t, cfg, happyRunner(), repo, blobs, &fakeNotifier{})

	_, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.Error(t, err)
	for _, track := range repo.tracks {
		assert.Equal(t, model.TrackStatusError, track.Status)
		assert.Contains(t, track.ErrorMessage, "minio unavailable")
	}
}

func TestSubmitLinkRejectsBadURLs(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, cfg, happyRunner(), repo, &fakeBlobStore{}, notifier)

	_, err := p.SubmitLink(context.Background(), "user-1", "https://example.com/watch")
	assert.ErrorIs(t, err, ErrUnsupportedSource)

	_, err = p.SubmitLink(context.Background(), "user-1", "nope")
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Pre-record failures never create a record or publish anything.
	assert.Empty(t, repo.tracks)
	assert.Empty(t, notifier.statuses)
}

func TestSubmitUploadSuccess(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, cfg, happyRunner(), repo, &fakeBlobStore{}, notifier)

	result, err := p.SubmitUpload(context.Background(), "user-1", "My Mix.mp3", []byte("mp3 bytes"))
	require.NoError(t, err)
	assert.Equal(t, StatusReady, result.Status)

	track := repo.tracks[result.TrackID]
	require.NotNil(t, track)
	assert.Equal(t, "My Mix", track.Name)
	assert.Equal(t, model.TrackSourceUpload, track.Source)
	assert.Empty(t, track.ContentID)
	assert.Equal(t, model.TrackStatusReady, track.Status)
}

func TestSubmitUploadValidation(t *testing.T) {
	cfg := testConfig(t)
	p := newTestPipeline(t, cfg, happyRunner(), newFakeTrackRepo(), &fakeBlobStore{}, &fakeNotifier{})

	_, err := p.SubmitUpload(context.Background(), "user-1", "", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.SubmitUpload(context.Background(), "user-1", "track.mp3", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.SubmitUpload(context.Background(), "user-1", "track.wav", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmitUploadDurationCap(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	runner := happyRunner()
	runner.durationLine = "Duration: 00:10:00.00, start: 0\n"
	blobs := &fakeBlobStore{}
	p := newTestPipeline(t, cfg, runner, repo, blobs, &fakeNotifier{})

	_, err := p.SubmitUpload(context.Background(), "user-1", "long.mp3", []byte("x"))
	require.ErrorIs(t, err, ErrDurationExceeded)

	// The cap fires before any upload happens, and the record carries it.
	assert.Empty(t, blobs.uploaded)
	for _, track := range repo.tracks {
		assert.Equal(t, model.TrackStatusError, track.Status)
		assert.Contains(t, track.ErrorMessage, "minutes")
	}
}

func TestSubmitLinkCreateFailure(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	repo.createErr = errors.New("db down")
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, cfg, happyRunner(), repo, &fakeBlobStore{}, notifier)

	_, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.Error(t, err)
	assert.Empty(t, notifier.statuses)
}

func TestSubmitLinkCountFailure(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	repo.countErr = errors.New("db down")
	p := newTestPipeline(t, cfg, happyRunner(), repo, &fakeBlobStore{}, &fakeNotifier{})

	_, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.Error(t, err)
	assert.Empty(t, repo.tracks)
}

func TestSubmitLinkMarkReadyFailure(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	repo.readyErr = errors.New("db down")
	p := newTestPipeline(t, cfg, happyRunner(), repo, &fakeBlobStore{}, &fakeNotifier{})

	_, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.Error(t, err)
	for _, track := range repo.tracks {
		assert.Equal(t, model.TrackStatusError, track.Status)
	}
}

func TestFailTrackSecondaryFailureSwallowed(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	repo.errorErr = errors.New("db also down")
	runner := happyRunner()
	runner.downloadErr = errors.New("network down")
	p := newTestPipeline(t, cfg, runner, repo, &fakeBlobStore{}, &fakeNotifier{})

	// The caller gets the original cause, not the write failure.
	_, err := p.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
}

// hangingRunner blocks the download until the run's context expires, the
// way a hung downloader does under the ingest timeout.
type hangingRunner struct{}

func (hangingRunner) Run(ctx context.Context, bin string, args []string, dir string) (*toolchain.Output, error) {
	<-ctx.Done()
	return nil, &toolchain.ToolError{Bin: bin, Err: ctx.Err()}
}

func TestTimeoutStillRecordsErrorState(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	repo.strictCtx = true
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, cfg, hangingRunner{}, repo, &fakeBlobStore{}, notifier)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.SubmitLink(ctx, "user-1", testLinkURL)
	require.Error(t, err)

	// The expired run context must not take the error-state write with it;
	// a record stuck in processing would shadow every re-submission and
	// hold a quota slot.
	require.Len(t, repo.tracks, 1)
	for _, track := range repo.tracks {
		assert.Equal(t, model.TrackStatusError, track.Status)
		assert.NotEmpty(t, track.ErrorMessage)
	}
	assert.Equal(t, []string{model.TrackStatusProcessing, model.TrackStatusError}, notifier.statuses)

	// The same link goes through once the downloader behaves again.
	retry := newTestPipeline(t, cfg, happyRunner(), repo, &fakeBlobStore{}, &fakeNotifier{})
	result, err := retry.SubmitLink(context.Background(), "user-1", testLinkURL)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, result.Status)
}

func TestCancellationStillRecordsErrorState(t *testing.T) {
	cfg := testConfig(t)
	repo := newFakeTrackRepo()
	repo.strictCtx = true
	p := newTestPipeline(t, cfg, hangingRunner{}, repo, &fakeBlobStore{}, &fakeNotifier{})

	// A client disconnect cancels the request context mid-run.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := p.SubmitLink(ctx, "user-1", testLinkURL)
	require.Error(t, err)
	for _, track := range repo.tracks {
		assert.Equal(t, model.TrackStatusError, track.Status)
	}
}

func TestSubmitUploadAtCapBoundary(t *testing.T) {
	cfg := testConfig(t)
	runner := happyRunner()
	runner.durationLine = "Duration: 00:05:00.00, start: 0\n"
	p := newTestPipeline(t, cfg, runner, newFakeTrackRepo(), &fakeBlobStore{}, &fakeNotifier{})

	// Exactly at the cap is allowed; the cap is strictly greater-than.
	result, err := p.SubmitUpload(context.Background(), "user-1", "edge.mp3", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, StatusReady, result.Status)
}
