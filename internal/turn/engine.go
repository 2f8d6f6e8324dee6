package turn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// DefaultStageTimeout bounds each pipeline stage when no explicit timeout is
// configured.
const DefaultStageTimeout = 30 * time.Second

// DefaultPersona is the system prompt used when none is configured.
const DefaultPersona = "You are a friendly bilingual customer support agent. " +
	"Keep replies short, warm, and conversational."

// CommandFilter classifies a transcript as a spoken control command. When ok
// is true, the pipeline stops after transcription and command is recorded on
// the turn instead of generating a reply.
type CommandFilter func(transcript string) (command string, ok bool)

// Engine runs the transcribe → generate → synthesise pipeline.
//
// An Engine is safe for concurrent use, but callers are expected to
// serialise turns — the session layer admits at most one pending turn.
type Engine struct {
	stt    stt.Provider
	llm    llm.Provider
	tts    tts.Provider
	player audio.Player

	persona      string
	voice        tts.VoiceProfile
	language     string
	stageTimeout time.Duration
	commands     CommandFilter
	metrics      *observe.Metrics
}

// Option is a functional option for [NewEngine].
type Option func(*Engine)

// WithPersona overrides the system prompt sent to the reply model.
func WithPersona(persona string) Option {
	return func(e *Engine) {
		if persona != "" {
			e.persona = persona
		}
	}
}

// WithVoice sets the voice profile used for synthesis.
func WithVoice(v tts.VoiceProfile) Option {
	return func(e *Engine) { e.voice = v }
}

// WithLanguage sets the transcription language hint (ISO 639-1).
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithStageTimeout bounds each pipeline stage. Zero or negative values keep
// the default.
func WithStageTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stageTimeout = d
		}
	}
}

// WithCommandFilter installs a spoken command filter checked between the
// transcription and generation stages.
func WithCommandFilter(f CommandFilter) Option {
	return func(e *Engine) { e.commands = f }
}

// WithMetrics overrides the metrics instance used for stage instrumentation.
// Tests pass a Metrics backed by a manual reader.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an Engine over the three stage providers and the
// playback sink. All four collaborators are required.
func NewEngine(sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, player audio.Player, opts ...Option) (*Engine, error) {
	if sttP == nil || llmP == nil || ttsP == nil || player == nil {
		return nil, fmt.Errorf("turn: all providers and the player must be non-nil")
	}
	e := &Engine{
		stt:          sttP,
		llm:          llmP,
		tts:          ttsP,
		player:       player,
		persona:      DefaultPersona,
		stageTimeout: DefaultStageTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e, nil
}

// Run processes one utterance through all three stages and returns the
// resulting terminal Turn. It never returns a pending turn.
//
// The utterance's sample storage is released exactly once on every exit
// path. Cancellation of ctx is observed between stages; a stage already in
// flight runs to its own completion or timeout.
func (e *Engine) Run(ctx context.Context, utt *audio.Utterance) *Turn {
	defer utt.Release()

	t := &Turn{
		ID:        uuid.NewString(),
		Seq:       utt.Seq(),
		Status:    StatusPending,
		StartedAt: time.Now(),
	}

	ctx, span := observe.StartSpan(ctx, "turn.run")
	defer span.End()
	log := observe.Logger(ctx).With("turn_id", t.ID, "seq", t.Seq)

	// Stage 1: transcribe.
	userText, err := e.transcribe(ctx, utt)
	if err != nil {
		return e.fail(ctx, t, log, fmt.Errorf("%w: %w", ErrTranscription, err))
	}
	t.UserText = userText
	log.Debug("utterance transcribed", "chars", len(userText))

	if e.commands != nil {
		if cmd, ok := e.commands(userText); ok {
			t.Command = cmd
			return e.intercept(ctx, t, log)
		}
	}

	if err := ctx.Err(); err != nil {
		return e.fail(ctx, t, log, fmt.Errorf("%w: %w", ErrGeneration, err))
	}

	// Stage 2: generate.
	botText, err := e.generate(ctx, userText)
	if err != nil {
		return e.fail(ctx, t, log, fmt.Errorf("%w: %w", ErrGeneration, err))
	}
	t.BotText = botText
	log.Debug("reply generated", "chars", len(botText))

	if err := ctx.Err(); err != nil {
		// Both texts exist; cancellation only skips playback.
		t.Err = fmt.Errorf("%w: %w", ErrSynthesis, err)
		return e.complete(ctx, t, log)
	}

	// Stage 3: synthesise and play. Non-fatal: the exchange already
	// happened in text form, losing audio output does not undo it.
	if err := e.speak(ctx, botText); err != nil {
		t.Err = fmt.Errorf("%w: %w", ErrSynthesis, err)
		log.Warn("reply synthesis failed", "error", err)
	}

	return e.complete(ctx, t, log)
}

// transcribe runs stage 1 with its own timeout and instrumentation.
func (e *Engine) transcribe(ctx context.Context, utt *audio.Utterance) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "turn.transcribe")
	defer span.End()

	wav, err := audio.EncodeWAV(utt.Samples(), utt.SampleRate())
	if err != nil {
		return "", err
	}

	start := time.Now()
	tr, err := e.stt.Transcribe(ctx, stt.Request{
		WAV:        wav,
		SampleRate: utt.SampleRate(),
		Language:   e.language,
	})
	e.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		e.metrics.RecordProviderError(ctx, "stt", "transcribe")
		return "", err
	}
	if tr == nil || tr.Text == "" {
		e.metrics.RecordProviderError(ctx, "stt", "transcribe")
		return "", fmt.Errorf("empty transcript")
	}
	return tr.Text, nil
}

// generate runs stage 2 with its own timeout and instrumentation. No prior
// conversation history is sent; each turn is a single-shot exchange.
func (e *Engine) generate(ctx context.Context, userText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "turn.generate")
	defer span.End()

	start := time.Now()
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: e.persona,
		Messages:     []llm.Message{{Role: "user", Content: userText}},
	})
	e.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		e.metrics.RecordProviderError(ctx, "llm", "complete")
		return "", err
	}
	if resp == nil || resp.Content == "" {
		e.metrics.RecordProviderError(ctx, "llm", "complete")
		return "", fmt.Errorf("empty reply")
	}
	return resp.Content, nil
}

// speak runs stage 3 with its own timeout and instrumentation.
func (e *Engine) speak(ctx context.Context, botText string) error {
	ctx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "turn.speak")
	defer span.End()

	start := time.Now()
	pcm, err := e.tts.Synthesize(ctx, tts.Request{
		Text:  botText,
		Voice: e.voice,
	})
	if err != nil {
		e.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
		e.metrics.RecordProviderError(ctx, "tts", "synthesize")
		return err
	}

	err = e.player.Play(ctx, pcm, e.tts.OutputRate())
	e.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		// The player drains pcm on error, but guard against implementations
		// that return early.
		go audio.Drain(pcm)
		e.metrics.RecordProviderError(ctx, "tts", "play")
		return err
	}
	return nil
}

// fail finalises t as failed with the given classified error.
func (e *Engine) fail(ctx context.Context, t *Turn, log *slog.Logger, err error) *Turn {
	t.Err = err
	t.Status = StatusFailed
	t.FinishedAt = time.Now()
	e.metrics.RecordTurn(ctx, string(StatusFailed), t.FinishedAt.Sub(t.StartedAt).Seconds())
	log.Error("turn failed", "error", err)
	return t
}

// intercept finalises t as a recognised spoken command; stages 2 and 3 are
// skipped.
func (e *Engine) intercept(ctx context.Context, t *Turn, log *slog.Logger) *Turn {
	t.Status = StatusIntercepted
	t.FinishedAt = time.Now()
	e.metrics.RecordTurn(ctx, string(StatusIntercepted), t.FinishedAt.Sub(t.StartedAt).Seconds())
	log.Info("spoken command recognised", "command", t.Command)
	return t
}

// complete finalises t as completed.
func (e *Engine) complete(ctx context.Context, t *Turn, log *slog.Logger) *Turn {
	t.Status = StatusCompleted
	t.FinishedAt = time.Now()
	e.metrics.RecordTurn(ctx, string(StatusCompleted), t.FinishedAt.Sub(t.StartedAt).Seconds())
	log.Info("turn completed", "duration", t.FinishedAt.Sub(t.StartedAt))
	return t
}
