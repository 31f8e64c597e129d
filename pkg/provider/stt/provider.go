// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider transcribes one self-contained audio recording per call.
// Meetings are chunked upstream, so providers see short segments (typically
// 10 to 60 seconds) and may be called concurrently for independent chunks.
// How much actual parallelism an implementation allows is up to it: the
// whisper.cpp-backed provider serialises inference through a small worker
// pool because native inference is expensive.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrTranscriptionFailed is the sentinel wrapped by provider errors when a
// recording could not be transcribed. Callers use errors.Is to distinguish
// transcription failures from programming errors.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Request describes one transcription call.
type Request struct {
	// Audio is the complete recording, either a RIFF/WAV container with
	// 16-bit PCM payload or raw 16 kHz mono 16-bit little-endian PCM.
	Audio []byte

	// Language is the ISO 639-1 language code for recognition (e.g. "en",
	// "sv"). An empty string uses the provider default.
	Language string

	// ContextPrompt is free-form text that primes the recogniser with
	// domain vocabulary, such as the meeting intent and participant names.
	// Providers that cannot use a prompt ignore it.
	ContextPrompt string
}

// Provider transcribes complete audio recordings.
type Provider interface {
	// Transcribe converts the recording in req to text. It blocks until
	// transcription completes, ctx is done, or the provider fails. Errors
	// from the recognition engine wrap [ErrTranscriptionFailed].
	Transcribe(ctx context.Context, req Request) (string, error)

	// Close releases provider resources such as loaded native models.
	// Transcribe must not be called after Close.
	Close() error
}
