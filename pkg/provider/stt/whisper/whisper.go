// Package whisper provides an STT provider backed by the whisper.cpp CGO
// bindings, so transcription runs fully locally without network access.
//
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/stt"
)

// whisper.cpp models are trained on 16 kHz mono audio.
const requiredSampleRate = 16000

const defaultLanguage = "en"

// Compile-time check that *Provider satisfies [stt.Provider].
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using a locally loaded whisper.cpp model.
// The model is loaded once at construction and shared across calls; each
// Transcribe call creates its own inference context, so the provider is safe
// for concurrent use.
type Provider struct {
	model    whisperlib.Model
	language string

	// closeOnce guards the model teardown.
	closeOnce sync.Once
	closeErr  error
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithLanguage sets the transcription language code (e.g., "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New loads the whisper.cpp model from modelPath. The caller must call
// Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Safe to call more than once.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		if p.model != nil {
			p.closeErr = p.model.Close()
		}
	})
	return p.closeErr
}

// Transcribe implements stt.Provider. It decodes the WAV payload, runs
// whisper.cpp inference on a fresh context, and concatenates the resulting
// segments.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	samples, rate, err := audio.DecodeWAV(req.WAV)
	if err != nil {
		return nil, fmt.Errorf("whisper: decode payload: %w", err)
	}
	if rate != requiredSampleRate {
		return nil, fmt.Errorf("whisper: sample rate %d not supported (model requires %d)", rate, requiredSampleRate)
	}
	if len(samples) == 0 {
		return nil, errors.New("whisper: empty audio payload")
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	// Each whisper context is single-use and not thread-safe; the model
	// itself can be shared across goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("whisper: set language %q: %w", lang, err)
	}

	if err := wctx.Process(toFloat32(samples), nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		return nil, errors.New("whisper: transcription returned empty text")
	}
	return &stt.Transcript{Text: text}, nil
}

// toFloat32 converts 16-bit samples to float32 normalised to [-1.0, 1.0],
// the input format whisper.cpp expects.
func toFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
