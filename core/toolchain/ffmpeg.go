package toolchain

import (
	"context"
	"math"
	"regexp"
	"strconv"

	"clipfm/logger"
)

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):([\d.]+)`)
	rmsRe      = regexp.MustCompile(`RMS level dB:\s*([-\d.]+)`)
)

// rmsFloor is the linear RMS reported when measurement is missing or
// non-finite; it reads as silent/unknown downstream.
const rmsFloor = 0.001

// FFmpeg wraps the decode/encode binary.
type FFmpeg struct {
	runner Runner
	path   string
}

// NewFFmpeg creates an FFmpeg adapter.
func NewFFmpeg(runner Runner, path string) *FFmpeg {
	return &FFmpeg{runner: runner, path: path}
}

// ProbeDuration decodes the input against a null output to make ffmpeg
// print the container duration, and parses it from the combined output.
// Duration is best-effort telemetry: unparseable output yields 0, not an
// error.
func (f *FFmpeg) ProbeDuration(ctx context.Context, inputFile, dir string) float64 {
	args := []string{"-i", inputFile, "-f", "null", "-"}
	out, err := f.runner.Run(ctx, f.path, args, dir)

	// ffmpeg prints the Duration banner before any failure, so the output
	// is parsed even on a non-zero exit.
	combined := ""
	if out != nil {
		combined = out.Stdout + out.Stderr
	} else if toolErr, ok := err.(*ToolError); ok {
		combined = toolErr.StderrTail
	}

	return ParseDuration(combined)
}

// TranscodeWithLoudness transcodes the input to 16-bit 44.1kHz PCM WAV
// while running the loudness-analysis filter in the same invocation, and
// returns the parsed linear RMS.
func (f *FFmpeg) TranscodeWithLoudness(ctx context.Context, inputFile, outputFile, dir string) (float64, error) {
	args := []string{
		"-i", inputFile,
		"-acodec", "pcm_s16le",
		"-ar", "44100",
		"-af", "astats=metadata=1:reset=1",
		"-y",
		outputFile,
	}
	out, err := f.runner.Run(ctx, f.path, args, dir)
	if err != nil {
		return 0, err
	}
	return ParseRMS(out.Stderr), nil
}

// ParseDuration extracts HH:MM:SS.ms from ffmpeg output and returns
// seconds, or 0 when absent.
func ParseDuration(combined string) float64 {
	m := durationRe.FindStringSubmatch(combined)
	if m == nil {
		return 0
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.ParseFloat(m[3], 64)
	return float64(hours)*3600 + float64(minutes)*60 + seconds
}

// ParseRMS extracts the "RMS level dB" figure from the astats diagnostic
// stream and converts it to linear amplitude. Missing or non-finite values
// clamp to the floor; loudness measurement is never fatal.
func ParseRMS(stderr string) float64 {
	m := rmsRe.FindStringSubmatch(stderr)
	if m == nil {
		return rmsFloor
	}
	db, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsInf(db, 0) || math.IsNaN(db) {
		logger.Debug("unparseable RMS level, using floor", logger.String("raw", m[1]))
		return rmsFloor
	}
	return math.Max(rmsFloor, math.Pow(10, db/20))
}
