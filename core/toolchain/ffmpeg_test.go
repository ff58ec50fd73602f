package toolchain

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records invocations and replays canned outputs.
type fakeRunner struct {
	calls   [][]string
	outputs []*Output
	errs    []error
}

func (r *fakeRunner) Run(ctx context.Context, bin string, args []string, dir string) (*Output, error) {
	call := append([]string{bin}, args...)
	r.calls = append(r.calls, call)
	i := len(r.calls) - 1
	var out *Output
	var err error
	if i < len(r.outputs) {
		out = r.outputs[i]
	}
	if i < len(r.errs) {
		err = r.errs[i]
	}
	return out, err
}

const ffmpegBanner = `Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'raw.mp4':
  Duration: 00:01:23.45, start: 0.000000, bitrate: 128 kb/s
`

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"typical", "Duration: 00:01:23.45, start: 0", 83.45},
		{"hours", "Duration: 01:02:03.00", 3723},
		{"zero", "Duration: 00:00:00.00", 0},
		{"absent", "no duration here", 0},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseDuration(tt.input), 1e-9)
		})
	}
}

func TestParseRMS(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"minus 20 dB", "RMS level dB: -20.0", 0.1},
		{"zero dB", "RMS level dB: 0.0", 1.0},
		{"very quiet clamps to floor", "RMS level dB: -90.0", 0.001},
		{"absent uses floor", "no rms here", 0.001},
		{"non-numeric uses floor", "RMS level dB: -inf", 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseRMS(tt.input), 1e-6)
		})
	}
}

func TestParseRMSNeverBelowFloor(t *testing.T) {
	for db := -120.0; db <= 0; db += 7.5 {
		got := ParseRMS("RMS level dB: " + strconv.FormatFloat(db, 'f', 2, 64))
		assert.GreaterOrEqual(t, got, 0.001)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestProbeDurationParsesFromToolError(t *testing.T) {
	runner := &fakeRunner{
		errs: []error{&ToolError{Bin: "ffmpeg", Err: errors.New("exit status 1"), StderrTail: ffmpegBanner}},
	}
	f := NewFFmpeg(runner, "ffmpeg")

	got := f.ProbeDuration(context.Background(), "raw.mp4", "/tmp")
	assert.InDelta(t, 83.45, got, 1e-9)
}

func TestProbeDurationSuccess(t *testing.T) {
	runner := &fakeRunner{outputs: []*Output{{Stderr: ffmpegBanner}}}
	f := NewFFmpeg(runner, "ffmpeg")

	got := f.ProbeDuration(context.Background(), "raw.mp4", "/tmp")
	assert.InDelta(t, 83.45, got, 1e-9)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"ffmpeg", "-i", "raw.mp4", "-f", "null", "-"}, runner.calls[0])
}

func TestTranscodeWithLoudness(t *testing.T) {
	runner := &fakeRunner{outputs: []*Output{{Stderr: "RMS level dB: -20.0\n"}}}
	f := NewFFmpeg(runner, "ffmpeg")

	rms, err := f.TranscodeWithLoudness(context.Background(), "raw.mp4", "out.wav", "/tmp")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rms, 1e-6)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		"ffmpeg",
		"-i", "raw.mp4",
		"-acodec", "pcm_s16le",
		"-ar", "44100",
		"-af", "astats=metadata=1:reset=1",
		"-y",
		"out.wav",
	}, runner.calls[0])
}

func TestTranscodeWithLoudnessPropagatesError(t *testing.T) {
	toolErr := &ToolError{Bin: "ffmpeg", Err: errors.New("exit status 1"), StderrTail: "boom"}
	runner := &fakeRunner{errs: []error{toolErr}}
	f := NewFFmpeg(runner, "ffmpeg")

	_, err := f.TranscodeWithLoudness(context.Background(), "raw.mp4", "out.wav", "/tmp")
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "boom", te.StderrTail)
}
