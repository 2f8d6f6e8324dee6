// Package app wires all Parley subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture surfaces until the context is
// cancelled or the user says goodbye, and Shutdown tears everything down
// in order.
//
// For testing, inject mock providers through the Providers struct; every
// slot is an interface.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/endpoint"
	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/server"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/turn"
	"github.com/MrWong99/parley/internal/voicecmd"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// Providers holds one interface value per pipeline slot. STT, LLM, and TTS
// are required; the rest are optional. Populated by main.go via the config
// registry.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider

	// Player receives synthesised replies. Nil discards playback audio.
	Player audio.Player

	// Source, when non-nil, drives the blocking push-to-talk capture loop
	// alongside the HTTP server.
	Source audio.Source
}

// App owns all subsystem lifetimes and orchestrates the Parley voice loop.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	engine *turn.Engine
	sess   *session.Session
	filter *voicecmd.Filter
	srv    *server.Server
	epCfg  endpoint.Config

	mu   sync.Mutex
	quit context.CancelFunc

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics injects a metrics instance instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCommandFilter replaces the default spoken command filter.
func WithCommandFilter(f *voicecmd.Filter) Option {
	return func(a *App) { a.filter = f }
}

// New creates an App by wiring all subsystems together: command filter, turn
// engine, session, health probes, and the HTTP server when a listen address
// is configured.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: stt, llm, and tts providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		epCfg: endpoint.Config{
			SampleRate:      cfg.Audio.SampleRate,
			BlockSize:       cfg.Audio.BlockSize,
			EnergyThreshold: cfg.Audio.EnergyThreshold,
			SilenceDuration: cfg.Audio.SilenceDuration.Duration(),
		},
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	player := providers.Player
	if player == nil {
		player = audio.Discard()
	}
	a.closers = append(a.closers, player.Close)
	if providers.Source != nil {
		a.closers = append(a.closers, providers.Source.Close)
	}

	engineOpts := []turn.Option{
		turn.WithPersona(cfg.Agent.Persona),
		turn.WithLanguage(cfg.Agent.Language),
		turn.WithVoice(tts.VoiceProfile{
			ID:           cfg.Agent.Voice.VoiceID,
			Instructions: cfg.Agent.Voice.Instructions,
			SpeedFactor:  cfg.Agent.Voice.SpeedFactor,
		}),
		turn.WithStageTimeout(cfg.Agent.StageTimeout.Duration()),
		turn.WithMetrics(a.metrics),
	}
	if cfg.Agent.CommandsEnabled() {
		if a.filter == nil {
			a.filter = voicecmd.New()
		}
		engineOpts = append(engineOpts, turn.WithCommandFilter(a.checkCommand))
	}

	engine, err := turn.NewEngine(providers.STT, providers.LLM, providers.TTS, player, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: build engine: %w", err)
	}
	a.engine = engine

	a.sess = session.New(engine,
		session.WithMetrics(a.metrics),
		session.WithCommandHook(a.handleCommand),
	)
	a.closers = append(a.closers, func() error {
		a.sess.Close()
		return nil
	})

	if cfg.Server.ListenAddr != "" {
		h := health.New(
			health.NewCheck("session", func(context.Context) error {
				return nil
			}),
		)
		srv, err := server.New(cfg.Server.ListenAddr, a.sess, a.epCfg,
			server.WithMetrics(a.metrics),
			server.WithHealth(h),
		)
		if err != nil {
			return nil, fmt.Errorf("app: build server: %w", err)
		}
		a.srv = srv
	}

	return a, nil
}

// Session exposes the conversation session, mainly for tests and the CLI
// startup summary.
func (a *App) Session() *session.Session { return a.sess }

// checkCommand adapts the voicecmd filter to the engine's filter signature.
func (a *App) checkCommand(transcript string) (string, bool) {
	action, ok := a.filter.Check(transcript)
	if !ok {
		return "", false
	}
	switch action {
	case voicecmd.ActionClear:
		return turn.CommandClear, true
	case voicecmd.ActionQuit:
		return turn.CommandQuit, true
	}
	return "", false
}

// handleCommand reacts to intercepted spoken commands. The session already
// applied "clear" to its own history.
func (a *App) handleCommand(cmd string) {
	if cmd != turn.CommandQuit {
		return
	}
	slog.Info("goodbye command received, stopping")
	a.mu.Lock()
	quit := a.quit
	a.mu.Unlock()
	if quit != nil {
		quit()
	}
}

// Run starts the configured capture surfaces and blocks until ctx is
// cancelled, the user says goodbye, or a surface fails. A graceful stop
// returns nil.
func (a *App) Run(ctx context.Context) error {
	if a.srv == nil && a.providers.Source == nil {
		return errors.New("app: no capture surface configured (set server.listen_addr or provide an audio source)")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.quit = cancel
	a.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	if a.srv != nil {
		g.Go(func() error { return a.srv.Run(ctx) })
	}
	if a.providers.Source != nil {
		g.Go(func() error { return a.captureLoop(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// captureLoop is the blocking push-to-talk loop: record one utterance, run
// one turn, wait for it, repeat. The session's one-pending-turn rule is
// naturally satisfied because the loop is sequential.
func (a *App) captureLoop(ctx context.Context) error {
	rec, err := endpoint.NewRecorder(a.providers.Source, a.epCfg)
	if err != nil {
		return fmt.Errorf("app: build recorder: %w", err)
	}

	log := slog.Default()
	log.Info("capture loop started", "sample_rate", a.providers.Source.SampleRate())

	for {
		utt, err := rec.Record(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, endpoint.ErrNoAudio) {
				log.Info("capture source ended")
				return nil
			}
			return fmt.Errorf("app: capture: %w", err)
		}
		a.metrics.Utterances.Add(ctx, 1)

		done, err := a.sess.StartTurn(ctx, utt)
		if err != nil {
			// Cannot happen while the loop is sequential, but a shared
			// session may be busy with an HTTP-submitted turn.
			log.Warn("turn rejected", "error", err)
			continue
		}

		select {
		case t, ok := <-done:
			if !ok {
				continue
			}
			switch t.Status {
			case turn.StatusCompleted:
				log.Info("exchange", "user", t.UserText, "bot", t.BotText)
			case turn.StatusIntercepted:
				// Logged by the engine; the hook may be stopping us.
			default:
				log.Warn("turn failed", "error", t.Err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
