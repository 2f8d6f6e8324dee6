// Package session maintains the state of one ongoing conversation: the
// ordered history of completed turns and the busy flag that admits at most
// one in-flight turn at a time.
package session

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/turn"
	"github.com/MrWong99/parley/pkg/audio"
)

// Runner processes one utterance into a terminal turn. Implemented by
// [turn.Engine]; tests substitute a stub.
type Runner interface {
	Run(ctx context.Context, utt *audio.Utterance) *turn.Turn
}

// Session is a single conversation. It owns the append-only turn history
// and enforces the one-pending-turn rule: while a turn is in flight, new
// submissions and Clear are rejected with [turn.ErrBusy].
//
// All methods are safe for concurrent use.
type Session struct {
	runner  Runner
	metrics *observe.Metrics
	hook    func(command string)

	mu     sync.Mutex
	turns  []turn.Turn
	busy   bool
	cancel context.CancelFunc
}

// Option is a functional option for [New].
type Option func(*Session)

// WithMetrics overrides the metrics instance. Tests pass an isolated one.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithCommandHook installs a callback invoked, outside the session lock,
// whenever a turn resolves as an intercepted spoken command. The session
// handles [turn.CommandClear] itself; the hook lets the caller act on the
// rest (e.g. [turn.CommandQuit] ending the capture loop).
func WithCommandHook(hook func(command string)) Option {
	return func(s *Session) { s.hook = hook }
}

// New creates a Session that processes turns through runner.
func New(runner Runner, opts ...Option) *Session {
	s := &Session{runner: runner}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.metrics.ActiveSessions.Add(context.Background(), 1)
	return s
}

// StartTurn submits an utterance for processing. It returns [turn.ErrBusy]
// without touching the history when another turn is still pending; the
// rejected utterance is released, since ownership was already handed over.
//
// On success the turn runs in a background goroutine. The returned channel
// delivers the terminal turn exactly once and is then closed; by the time it
// delivers, the turn has been appended to the history and the session is no
// longer busy.
func (s *Session) StartTurn(ctx context.Context, utt *audio.Utterance) (<-chan *turn.Turn, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		s.metrics.RejectedTurns.Add(ctx, 1)
		utt.Release()
		return nil, turn.ErrBusy
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.busy = true
	s.cancel = cancel
	s.mu.Unlock()
	s.metrics.BusySessions.Add(ctx, 1)

	done := make(chan *turn.Turn, 1)
	go func() {
		defer cancel()
		t := s.runner.Run(turnCtx, utt)

		s.mu.Lock()
		switch {
		case t.Status == turn.StatusIntercepted && t.Command == turn.CommandClear:
			// A spoken "clear conversation" resets the history in place of
			// becoming part of it.
			s.turns = nil
		case t.Status == turn.StatusIntercepted:
			// Other commands leave the history untouched.
		default:
			s.turns = append(s.turns, *t)
		}
		s.busy = false
		s.cancel = nil
		s.mu.Unlock()
		s.metrics.BusySessions.Add(context.Background(), -1)

		if t.Status == turn.StatusIntercepted && s.hook != nil {
			s.hook(t.Command)
		}

		done <- t
		close(done)
	}()
	return done, nil
}

// History returns a snapshot copy of all terminal turns in order.
func (s *Session) History() []turn.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]turn.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of terminal turns in the history.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// IsBusy reports whether a turn is currently pending.
func (s *Session) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Clear empties the history. It returns [turn.ErrBusy] while a turn is
// pending: the pending turn's eventual append must not race a reset, and a
// user asking to clear mid-turn almost certainly wants the in-flight
// exchange gone too, so they should cancel first. Clearing an already empty
// session is a no-op.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return turn.ErrBusy
	}
	s.turns = nil
	return nil
}

// Cancel aborts the in-flight turn, if any. The turn resolves as failed and
// is appended to the history like any other terminal turn. Calling Cancel
// on an idle session is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close marks the session as finished for gauge accounting.
func (s *Session) Close() {
	s.Cancel()
	s.metrics.ActiveSessions.Add(context.Background(), -1)
}
