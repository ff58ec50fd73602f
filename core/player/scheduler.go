// Package player selects what plays next and how loud. The scheduler is
// event-driven and single-owner: every mutation happens synchronously in
// response to a discrete trigger (user action, timer tick, media-end
// event), so it is not safe for concurrent use and never needs to be.
package player

import (
	"math"
	"math/rand"
	"time"

	"clipfm/model"
)

// Speeds is the playback-rate cycle.
var Speeds = []float64{1, 1.5, 2, 0.5}

// gainFloor keeps attenuation audible: no track is ever scaled below 5%.
const gainFloor = 0.05

// restartThresholdSeconds: previous-track restarts the current track once
// this much has elapsed, instead of moving back.
const restartThresholdSeconds = 3

// Progress describes the current position within the loaded track.
type Progress struct {
	ElapsedSeconds float64
	TotalSeconds   float64
	Percent        float64
}

// Scheduler maintains playback position and policy over a view-set of
// ready tracks.
type Scheduler struct {
	rng *rand.Rand

	tracks []*model.Track
	gains  []float64

	current int // -1 means nothing loaded
	playing bool
	shuffle bool
	loop    bool

	speedIdx int

	elapsed       float64
	mediaDuration float64 // raw duration reported by the media element

	// generation invalidates end-of-media signals from superseded tracks.
	generation uint64
}

// New creates a Scheduler. rng may be nil, in which case a time-seeded
// source is used; tests inject a deterministic one.
func New(rng *rand.Rand) *Scheduler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{rng: rng, current: -1}
}

// SetViewSet replaces the track list the scheduler operates over and
// recomputes per-track gains. Switching view-sets always stops playback
// and clears the position; an index into the old set means nothing in the
// new one.
func (s *Scheduler) SetViewSet(tracks []*model.Track) {
	s.Stop()
	s.tracks = tracks
	s.gains = computeGains(tracks)
}

// computeGains attenuates every track toward the quietest one in the set:
// gain = min(1.0, max(0.05, minRMS/rms)). Runs once per view-set change,
// not per tick.
func computeGains(tracks []*model.Track) []float64 {
	if len(tracks) == 0 {
		return nil
	}
	minRMS := math.Inf(1)
	for _, t := range tracks {
		minRMS = math.Min(minRMS, trackRMS(t))
	}
	gains := make([]float64, len(tracks))
	for i, t := range tracks {
		ratio := minRMS / trackRMS(t)
		gains[i] = math.Min(1.0, math.Max(gainFloor, ratio))
	}
	return gains
}

func trackRMS(t *model.Track) float64 {
	if t.RMS <= 0 {
		return model.RMSFloor
	}
	return t.RMS
}

// Gain returns the normalization gain for the track at index i.
func (s *Scheduler) Gain(i int) float64 {
	if i < 0 || i >= len(s.gains) {
		return 1.0
	}
	return s.gains[i]
}

// Tracks returns the current view-set.
func (s *Scheduler) Tracks() []*model.Track {
	return s.tracks
}

// Current returns the loaded index, or -1.
func (s *Scheduler) Current() int {
	return s.current
}

// IsPlaying reports the play/pause flag.
func (s *Scheduler) IsPlaying() bool {
	return s.playing
}

// Generation identifies the currently loaded track instance; end-of-media
// callbacks must present it back, and stale ones are ignored.
func (s *Scheduler) Generation() uint64 {
	return s.generation
}

// Load makes the track at index current and optionally starts playback.
// Returns the track, or nil when the index is out of range.
func (s *Scheduler) Load(index int, autoplay bool) *model.Track {
	if index < 0 || index >= len(s.tracks) {
		return nil
	}
	s.current = index
	s.elapsed = 0
	s.mediaDuration = 0
	s.generation++
	if autoplay {
		s.playing = true
	}
	return s.tracks[index]
}

// TogglePlay flips play/pause. With nothing loaded it loads the first
// track. Returns the track that should be playing, or nil.
func (s *Scheduler) TogglePlay() *model.Track {
	if len(s.tracks) == 0 {
		return nil
	}
	if s.current == -1 {
		return s.Load(0, true)
	}
	s.playing = !s.playing
	return s.tracks[s.current]
}

// Next advances to the next track under the shuffle policy.
func (s *Scheduler) Next() *model.Track {
	if len(s.tracks) == 0 {
		return nil
	}
	return s.Load(s.nextIndex(s.current), true)
}

// Prev restarts the current track when more than the threshold has
// elapsed, otherwise moves to the previous index, wrapping.
func (s *Scheduler) Prev() *model.Track {
	if len(s.tracks) == 0 {
		return nil
	}
	if s.current >= 0 && s.elapsed > restartThresholdSeconds {
		s.elapsed = 0
		return s.tracks[s.current]
	}
	n := len(s.tracks)
	return s.Load((s.current-1+n)%n, true)
}

// nextIndex picks the successor of idx. Under shuffle with more than one
// track it is uniform over the set excluding idx, so the same track never
// plays twice in a row; a single track selects itself.
func (s *Scheduler) nextIndex(idx int) int {
	n := len(s.tracks)
	if s.shuffle && n > 1 {
		r := s.rng.Intn(n - 1)
		if r >= idx {
			r++
		}
		return r
	}
	return (idx + 1) % n
}

// OnTrackEnded handles a natural end-of-track signal. Signals carrying a
// stale generation come from a superseded track and are dropped. Loop
// restarts the same track; otherwise the next index is selected.
// The boolean reports whether the signal was acted on.
func (s *Scheduler) OnTrackEnded(generation uint64) (*model.Track, bool) {
	if generation != s.generation || s.current == -1 {
		return nil, false
	}
	if s.loop {
		s.elapsed = 0
		return s.tracks[s.current], true
	}
	return s.Next(), true
}

// Seek maps a fractional position in [0,1] onto the authoritative track
// duration, falling back to the raw media duration when unset. Returns
// the absolute position in seconds.
func (s *Scheduler) Seek(fraction float64) float64 {
	if s.current == -1 {
		return 0
	}
	fraction = math.Min(1, math.Max(0, fraction))
	s.elapsed = fraction * s.totalSeconds()
	return s.elapsed
}

// Tick records the element-reported position and duration and returns the
// updated progress.
func (s *Scheduler) Tick(elapsedSeconds, mediaDurationSeconds float64) Progress {
	s.elapsed = elapsedSeconds
	s.mediaDuration = mediaDurationSeconds
	return s.Progress()
}

// Progress returns the current progress snapshot.
func (s *Scheduler) Progress() Progress {
	total := s.totalSeconds()
	pct := 0.0
	if total > 0 {
		pct = math.Min(s.elapsed/total*100, 100)
	}
	return Progress{ElapsedSeconds: s.elapsed, TotalSeconds: total, Percent: pct}
}

func (s *Scheduler) totalSeconds() float64 {
	if s.current == -1 {
		return 0
	}
	if d := s.tracks[s.current].DurationSeconds; d > 0 {
		return d
	}
	return s.mediaDuration
}

// CycleSpeed advances the playback-rate cycle and returns the new speed.
func (s *Scheduler) CycleSpeed() float64 {
	s.speedIdx = (s.speedIdx + 1) % len(Speeds)
	return Speeds[s.speedIdx]
}

// Speed returns the current playback rate.
func (s *Scheduler) Speed() float64 {
	return Speeds[s.speedIdx]
}

// ToggleShuffle flips the shuffle flag.
func (s *Scheduler) ToggleShuffle() bool {
	s.shuffle = !s.shuffle
	return s.shuffle
}

// ToggleLoop flips the loop flag.
func (s *Scheduler) ToggleLoop() bool {
	s.loop = !s.loop
	return s.loop
}

// Stop pauses playback and clears the position.
func (s *Scheduler) Stop() {
	s.playing = false
	s.current = -1
	s.elapsed = 0
	s.mediaDuration = 0
	s.generation++
}
