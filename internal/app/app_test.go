package app

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/audio"
	audiomock "github.com/MrWong99/parley/pkg/audio/mock"
	"github.com/MrWong99/parley/pkg/provider/llm"
	llmmock "github.com/MrWong99/parley/pkg/provider/llm/mock"
	"github.com/MrWong99/parley/pkg/provider/stt"
	sttmock "github.com/MrWong99/parley/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/parley/pkg/provider/tts/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// speechThenSilence scripts one complete utterance: voiced blocks followed by
// enough silence to trip the endpointer at the default 1.5 s threshold.
func speechThenSilence(voiced, silent int) []audio.Block {
	blocks := make([]audio.Block, 0, voiced+silent)
	loud := make([]int16, 1024)
	for i := range loud {
		loud[i] = 1000
	}
	for i := 0; i < voiced; i++ {
		blocks = append(blocks, audio.Block{Samples: loud, SampleRate: 16000})
	}
	for i := 0; i < silent; i++ {
		blocks = append(blocks, audio.Block{Samples: make([]int16, 1024), SampleRate: 16000})
	}
	return blocks
}

func runApp(t *testing.T, a *App) error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(context.Background()) }()
	select {
	case err := <-errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestNewRequiresProviders(t *testing.T) {
	t.Parallel()

	if _, err := New(&config.Config{}, nil); err == nil {
		t.Error("New accepted nil providers")
	}
	if _, err := New(&config.Config{}, &Providers{LLM: &llmmock.Provider{}, TTS: &ttsmock.Provider{}}); err == nil {
		t.Error("New accepted missing stt provider")
	}
	if _, err := New(nil, &Providers{}); err == nil {
		t.Error("New accepted nil config")
	}
}

func TestRunWithoutSurfacesFails(t *testing.T) {
	t.Parallel()

	a, err := New(&config.Config{}, &Providers{
		STT: &sttmock.Provider{},
		LLM: &llmmock.Provider{},
		TTS: &ttsmock.Provider{},
	}, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if err := a.Run(context.Background()); err == nil {
		t.Error("Run succeeded with no server address and no source")
	}
}

func TestCaptureLoopRunsOneTurn(t *testing.T) {
	t.Parallel()

	// 20 voiced blocks of speech, then 24 silent blocks (24 × 64 ms > 1.5 s).
	src := &audiomock.Source{Blocks: speechThenSilence(20, 24), Rate: 16000}
	player := &audiomock.Player{}
	sttP := &sttmock.Provider{Transcript: &stt.Transcript{Text: "what are your opening hours"}}
	llmP := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "we are open all day"}}
	ttsP := &ttsmock.Provider{Chunks: [][]byte{{1, 2, 3}}}

	a, err := New(&config.Config{}, &Providers{
		STT:    sttP,
		LLM:    llmP,
		TTS:    ttsP,
		Player: player,
		Source: src,
	}, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if err := runApp(t, a); err != nil {
		t.Fatalf("Run: %v", err)
	}

	hist := a.Session().History()
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
	if hist[0].UserText != "what are your opening hours" || hist[0].BotText != "we are open all day" {
		t.Errorf("turn texts = %q / %q", hist[0].UserText, hist[0].BotText)
	}
	if len(player.Played) != 1 {
		t.Errorf("played chunks = %d, want 1", len(player.Played))
	}
}

func TestSpokenGoodbyeStopsRun(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{
		Blocks: speechThenSilence(5, 24),
		Rate:   16000,
		// Reached only if the goodbye command failed to stop the loop.
		ReadErr: errors.New("capture loop kept reading after goodbye"),
	}
	sttP := &sttmock.Provider{Transcript: &stt.Transcript{Text: "goodbye"}}
	llmP := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "unused"}}

	a, err := New(&config.Config{}, &Providers{
		STT:    sttP,
		LLM:    llmP,
		TTS:    &ttsmock.Provider{},
		Source: src,
	}, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if err := runApp(t, a); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if llmP.CallCount() != 0 {
		t.Errorf("llm called %d times for a goodbye command", llmP.CallCount())
	}
	if got := a.Session().Len(); got != 0 {
		t.Errorf("history length = %d, want command excluded", got)
	}
}

func TestCommandsCanBeDisabled(t *testing.T) {
	t.Parallel()

	disabled := false
	cfg := &config.Config{}
	cfg.Agent.Commands = &disabled

	src := &audiomock.Source{Blocks: speechThenSilence(5, 24), Rate: 16000}
	sttP := &sttmock.Provider{Transcript: &stt.Transcript{Text: "goodbye"}}
	llmP := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "see you soon"}}

	a, err := New(cfg, &Providers{
		STT:    sttP,
		LLM:    llmP,
		TTS:    &ttsmock.Provider{},
		Source: src,
	}, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if err := runApp(t, a); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if llmP.CallCount() != 1 {
		t.Errorf("llm calls = %d, want goodbye treated as speech", llmP.CallCount())
	}
	if got := a.Session().Len(); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}
}

func TestShutdownClosesProviders(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{Rate: 16000}
	player := &audiomock.Player{}

	a, err := New(&config.Config{}, &Providers{
		STT:    &sttmock.Provider{},
		LLM:    &llmmock.Provider{},
		TTS:    &ttsmock.Provider{},
		Player: player,
		Source: src,
	}, WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !player.Closed {
		t.Error("player not closed")
	}
	if !src.Closed {
		t.Error("source not closed")
	}

	// Idempotent.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
