// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription service (the OpenAI audio API or a
// local whisper.cpp model) behind a single whole-utterance call: the turn
// pipeline hands over one complete utterance and receives one transcript.
// There is no partial/streaming transcription — each turn processes a
// complete utterance by design.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Request carries one complete utterance to transcribe.
type Request struct {
	// WAV is the utterance encoded as a single-channel RIFF/WAVE payload
	// (see audio.EncodeWAV). Providers that want raw samples decode it.
	WAV []byte

	// SampleRate is the capture rate in Hz of the encoded audio.
	SampleRate int

	// Language is an optional BCP-47 recognition hint (e.g., "en", "hi").
	// Empty lets the provider auto-detect, if supported.
	Language string
}

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	// Text is the transcribed speech, whitespace-trimmed.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64
}

// Provider is the abstraction over any STT backend.
//
// Transcribe blocks until the full transcript is available or ctx is done.
// An empty or garbled service response must surface as an error, not as an
// empty transcript.
type Provider interface {
	Transcribe(ctx context.Context, req Request) (*Transcript, error)
}
