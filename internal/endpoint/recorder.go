package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/parley/pkg/audio"
)

// ErrNoAudio is returned by [Recorder.Record] when the capture source ends
// before producing any audio at all.
var ErrNoAudio = errors.New("endpoint: capture source produced no audio")

// Recorder runs the blocking capture loop: it reads blocks from an
// [audio.Source], feeds them through an [Endpointer], and returns each
// completed utterance with a monotonically increasing sequence number.
//
// A Recorder drives exactly one source and must be used from a single
// goroutine; the capture loop is a blocking producer by design.
type Recorder struct {
	src audio.Source
	ep  *Endpointer
	seq atomic.Uint64
	log *slog.Logger
}

// NewRecorder creates a Recorder over src. The endpointer config's sample
// rate is forced to the source's rate so silence accounting stays correct.
func NewRecorder(src audio.Source, cfg Config) (*Recorder, error) {
	if src == nil {
		return nil, errors.New("endpoint: source must not be nil")
	}
	cfg.SampleRate = src.SampleRate()
	ep, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &Recorder{src: src, ep: ep, log: slog.Default()}, nil
}

// Record blocks until one complete utterance has been captured, then
// transfers ownership of it to the caller.
//
// If ctx is cancelled or the source fails before the utterance completes,
// the partially accumulated buffer is discarded — there is no flush-on-stop.
// A source that ends without ever producing audio yields [ErrNoAudio].
func (r *Recorder) Record(ctx context.Context) (*audio.Utterance, error) {
	for {
		block, err := r.src.ReadBlock(ctx)
		if err != nil {
			empty := r.ep.BufferedSamples() == 0
			r.ep.Reset()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, io.EOF) && empty {
				return nil, ErrNoAudio
			}
			return nil, fmt.Errorf("endpoint: read block: %w", err)
		}

		if r.ep.Feed(block) == Complete {
			utt := r.ep.Take(r.seq.Add(1))
			r.log.Debug("utterance complete",
				"seq", utt.Seq(),
				"samples", len(utt.Samples()),
				"duration", utt.Duration(),
			)
			return utt, nil
		}
	}
}
