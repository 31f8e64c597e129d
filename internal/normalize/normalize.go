// Package normalize converts uploaded audio into the 16 kHz mono WAV format
// the transcriber expects. Browsers deliver chunks as WebM/Opus or OGG;
// ffmpeg handles the container and codec zoo so the rest of the pipeline
// only ever sees PCM.
//
// Normalization is best effort by contract: callers fall back to the
// original bytes when ffmpeg is missing or fails, and the transcriber's own
// WAV decoder copes with whatever arrives.
package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// targetSampleRate matches the whisper.cpp input format.
	targetSampleRate = 16000

	defaultTimeout = 30 * time.Second
)

// ErrFFmpegNotFound is returned when the ffmpeg binary is not on PATH.
var ErrFFmpegNotFound = errors.New("ffmpeg binary not found")

// Segment is one piece of a split recording.
type Segment struct {
	// Audio is a complete 16 kHz mono WAV file.
	Audio []byte

	// DurationSeconds is the segment's play time.
	DurationSeconds float64
}

// FFmpeg shells out to ffmpeg and ffprobe for audio conversion. The zero
// value is not usable; construct with [New].
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// Option is a functional option for configuring an FFmpeg.
type Option func(*FFmpeg)

// WithBinary overrides the ffmpeg binary path. Defaults to "ffmpeg" looked
// up on PATH.
func WithBinary(path string) Option {
	return func(f *FFmpeg) { f.ffmpegPath = path }
}

// WithProbeBinary overrides the ffprobe binary path. Defaults to "ffprobe".
func WithProbeBinary(path string) Option {
	return func(f *FFmpeg) { f.ffprobePath = path }
}

// WithTimeout bounds each subprocess invocation. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(f *FFmpeg) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// New returns an FFmpeg runner. The binaries are resolved lazily at call
// time, so constructing one on a machine without ffmpeg is fine as long as
// it is never used.
func New(opts ...Option) *FFmpeg {
	f := &FFmpeg{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		timeout:     defaultTimeout,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Available reports whether the ffmpeg binary can be resolved.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.ffmpegPath)
	return err == nil
}

// Normalize converts audio, in any container ffmpeg understands, to a
// 16 kHz mono 16-bit PCM WAV file.
func (f *FFmpeg) Normalize(ctx context.Context, audio []byte) ([]byte, error) {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return nil, fmt.Errorf("normalize: %w", ErrFFmpegNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffmpegPath, normalizeArgs()...)
	cmd.Stdin = bytes.NewReader(audio)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("normalize: ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	if out.Len() == 0 {
		return nil, errors.New("normalize: ffmpeg produced no output")
	}
	return out.Bytes(), nil
}

// Duration returns the play time of the recording in seconds, via ffprobe.
func (f *FFmpeg) Duration(ctx context.Context, audio []byte) (float64, error) {
	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return 0, fmt.Errorf("normalize: %w", ErrFFmpegNotFound)
	}

	// ffprobe needs a seekable input for most containers.
	path, cleanup, err := tempAudioFile(audio)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffprobePath, probeArgs(path)...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("normalize: ffprobe: %w: %s", err, lastLine(stderr.String()))
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("normalize: parse duration %q: %w", out.String(), err)
	}
	return secs, nil
}

// Split cuts a full recording into normalized WAV segments of at most
// segmentSeconds each. The final segment carries the remainder. Used when a
// whole meeting recording is uploaded after the fact instead of live chunks.
func (f *FFmpeg) Split(ctx context.Context, audio []byte, segmentSeconds float64) ([]Segment, error) {
	if segmentSeconds <= 0 {
		return nil, fmt.Errorf("normalize: segment length %.2fs must be positive", segmentSeconds)
	}

	total, err := f.Duration(ctx, audio)
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, errors.New("normalize: recording has no duration")
	}

	path, cleanup, err := tempAudioFile(audio)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var segments []Segment
	for offset := 0.0; offset < total; offset += segmentSeconds {
		length := segmentSeconds
		if remaining := total - offset; remaining < length {
			length = remaining
		}

		wav, err := f.extract(ctx, path, offset, length)
		if err != nil {
			return nil, fmt.Errorf("normalize: segment at %.1fs: %w", offset, err)
		}
		segments = append(segments, Segment{Audio: wav, DurationSeconds: length})
	}
	return segments, nil
}

// extract transcodes one time slice of the input file to 16 kHz mono WAV.
func (f *FFmpeg) extract(ctx context.Context, path string, offset, length float64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffmpegPath, extractArgs(path, offset, length)...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	return out.Bytes(), nil
}

// normalizeArgs is the pipe-to-pipe conversion argument list.
func normalizeArgs() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-ar", strconv.Itoa(targetSampleRate),
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	}
}

// probeArgs asks ffprobe for the container duration as a bare number.
func probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// extractArgs cuts [offset, offset+length) and converts it in one pass.
// Seeking before -i is fast and accurate enough for minute-scale segments.
func extractArgs(path string, offset, length float64) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-t", strconv.FormatFloat(length, 'f', 3, 64),
		"-i", path,
		"-ar", strconv.Itoa(targetSampleRate),
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	}
}

// tempAudioFile writes audio to a temp file and returns its path and a
// cleanup function.
func tempAudioFile(audio []byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "convoke-audio-*")
	if err != nil {
		return "", nil, fmt.Errorf("normalize: temp dir: %w", err)
	}
	path := filepath.Join(dir, "input")
	if err := os.WriteFile(path, audio, 0o600); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("normalize: write temp file: %w", err)
	}
	return path, func() { os.RemoveAll(dir) }, nil
}

// lastLine returns the final non-empty line of s, which for ffmpeg stderr
// is usually the actual error.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
