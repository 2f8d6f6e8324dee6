package endpoint

import (
	"testing"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

// ── helpers ──────────────────────────────────────────────────────────────────

// voicedBlock returns a block whose every sample is amp, giving an L2 energy
// of amp·√n — comfortably above any test threshold for amp ≥ 200.
func voicedBlock(n int, amp int16) audio.Block {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = amp
	}
	return audio.Block{Samples: samples, SampleRate: 16000}
}

func silentBlock(n int) audio.Block {
	return audio.Block{Samples: make([]int16, n), SampleRate: 16000}
}

func mustNew(t *testing.T, cfg Config) *Endpointer {
	t.Helper()
	ep, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ep
}

// ── Endpointer ───────────────────────────────────────────────────────────────

func TestFeedSilenceCompletesExactlyOnThreshold(t *testing.T) {
	t.Parallel()

	// 1024 samples @ 16 kHz = 64 ms per block; 1.5 s needs ⌈23.4⌉ = 24 blocks.
	ep := mustNew(t, Config{
		SampleRate:      16000,
		BlockSize:       1024,
		EnergyThreshold: 1000,
		SilenceDuration: 1500 * time.Millisecond,
	})

	for i := range 23 {
		if d := ep.Feed(silentBlock(1024)); d != Continue {
			t.Fatalf("block %d: decision = %v, want continue", i, d)
		}
	}
	if d := ep.Feed(silentBlock(1024)); d != Complete {
		t.Fatalf("24th silent block: decision = %v, want complete", d)
	}
}

func TestFeedVoicedBlockResetsSilenceRun(t *testing.T) {
	t.Parallel()

	ep := mustNew(t, Config{
		SampleRate:      16000,
		BlockSize:       1024,
		EnergyThreshold: 1000,
		SilenceDuration: 1500 * time.Millisecond,
	})

	// 22 silent blocks ≈ 1.408 s — just short of the 1.5 s requirement.
	for range 22 {
		if d := ep.Feed(silentBlock(1024)); d != Continue {
			t.Fatal("silence completed too early")
		}
	}

	// One voiced block cancels the entire silence run.
	if d := ep.Feed(voicedBlock(1024, 5000)); d != Continue {
		t.Fatalf("voiced block: decision = %v, want continue", d)
	}

	// Silence must restart from zero: 23 more blocks are not enough…
	for i := range 23 {
		if d := ep.Feed(silentBlock(1024)); d != Continue {
			t.Fatalf("restarted silence completed early at block %d", i)
		}
	}
	// …and the 24th completes.
	if d := ep.Feed(silentBlock(1024)); d != Complete {
		t.Fatal("silence did not complete after full restart")
	}
}

func TestFeedEnergyExactlyAtThresholdIsSpeech(t *testing.T) {
	t.Parallel()

	// Single-sample blocks make the energy exactly equal to the amplitude.
	ep := mustNew(t, Config{
		SampleRate:      16000,
		BlockSize:       1,
		EnergyThreshold: 500,
		SilenceDuration: time.Millisecond,
	})

	// Accumulate some silence, then hit the threshold exactly.
	ep.Feed(audio.Block{Samples: []int16{100}, SampleRate: 16000})
	ep.Feed(audio.Block{Samples: []int16{500}, SampleRate: 16000}) // energy == threshold → speech

	// The accumulator was reset, so the next silent block starts from zero.
	if d := ep.Feed(audio.Block{Samples: []int16{0}, SampleRate: 16000}); d != Continue {
		t.Fatalf("decision = %v, want continue after threshold-equal block", d)
	}
}

func TestFeedBuffersTrailingSilence(t *testing.T) {
	t.Parallel()

	ep := mustNew(t, Config{
		SampleRate:      16000,
		BlockSize:       1024,
		EnergyThreshold: 1000,
		SilenceDuration: 1500 * time.Millisecond,
	})

	for range 20 {
		ep.Feed(voicedBlock(1024, 5000))
	}
	for range 24 {
		ep.Feed(silentBlock(1024))
	}

	// All 44 blocks buffered — voiced and silent alike.
	if got, want := ep.BufferedSamples(), 44*1024; got != want {
		t.Fatalf("buffered samples = %d, want %d", got, want)
	}
}

func TestTakeTransfersOwnershipAndResets(t *testing.T) {
	t.Parallel()

	ep := mustNew(t, Config{})
	ep.Feed(voicedBlock(1024, 5000))

	utt := ep.Take(3)
	if utt.Seq() != 3 {
		t.Fatalf("Seq() = %d, want 3", utt.Seq())
	}
	if len(utt.Samples()) != 1024 {
		t.Fatalf("utterance samples = %d, want 1024", len(utt.Samples()))
	}
	if utt.SampleRate() != DefaultSampleRate {
		t.Fatalf("utterance rate = %d, want %d", utt.SampleRate(), DefaultSampleRate)
	}
	if ep.BufferedSamples() != 0 {
		t.Fatal("endpointer kept samples after Take")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	ep := mustNew(t, Config{})
	if ep.cfg.SampleRate != DefaultSampleRate ||
		ep.cfg.BlockSize != DefaultBlockSize ||
		ep.cfg.EnergyThreshold != DefaultEnergyThreshold ||
		ep.cfg.SilenceDuration != DefaultSilenceDuration {
		t.Fatalf("defaults not applied: %+v", ep.cfg)
	}
}

func TestNewRejectsNegativeValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative sample rate", Config{SampleRate: -1}},
		{"negative block size", Config{BlockSize: -1}},
		{"negative threshold", Config{EnergyThreshold: -0.5}},
		{"negative silence duration", Config{SilenceDuration: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected config validation error")
			}
		})
	}
}
