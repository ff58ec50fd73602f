package model

import "time"

// Track lifecycle statuses. A track enters processing exactly once at
// creation; ready and error are both terminal.
const (
	TrackStatusProcessing = "processing"
	TrackStatusReady      = "ready"
	TrackStatusError      = "error"
)

// Track sources.
const (
	TrackSourceLink   = "link"
	TrackSourceUpload = "upload"
)

// RMSFloor is the linear RMS value treated as silent/unknown loudness.
const RMSFloor = 0.001

// Track represents one audio track in a user's library.
type Track struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Source string `json:"source"` // link or upload

	// SourceURL and ContentID are empty for uploads.
	SourceURL string `json:"sourceUrl,omitempty"`
	ContentID string `json:"contentId,omitempty"`

	// Name defaults to the content id (links) or the filename stem
	// (uploads) until the downloader reports a real title. User-editable.
	Name string `json:"name"`

	// BlobPath and PlayableURL are set only once the track is ready.
	BlobPath    string `json:"-"`
	PlayableURL string `json:"playableUrl,omitempty"`

	DurationSeconds float64 `json:"durationSeconds"`
	// RMS is the linear loudness estimate in [0.001, 1.0].
	RMS float64 `json:"rms"`

	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Ordinal is the stable sort key (creation time, millis); ties break on ID.
	Ordinal int64 `json:"ordinal"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
