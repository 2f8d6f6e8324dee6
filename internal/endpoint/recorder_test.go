package endpoint

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
	audiomock "github.com/MrWong99/parley/pkg/audio/mock"
)

func TestRecordEndToEnd(t *testing.T) {
	t.Parallel()

	// 20 voiced blocks then 24 silent blocks: completion lands on the 24th
	// silent block (24 × 1024/16000 ≈ 1.536 s ≥ 1.5 s).
	var blocks []audio.Block
	for range 20 {
		blocks = append(blocks, voicedBlock(1024, 5000))
	}
	for range 24 {
		blocks = append(blocks, silentBlock(1024))
	}

	src := &audiomock.Source{Blocks: blocks, Rate: 16000}
	rec, err := NewRecorder(src, Config{
		EnergyThreshold: 1000,
		BlockSize:       1024,
		SilenceDuration: 1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	utt, err := rec.Record(context.Background())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got, want := len(utt.Samples()), 44*1024; got != want {
		t.Fatalf("utterance length = %d, want %d", got, want)
	}
	if utt.Seq() != 1 {
		t.Fatalf("first utterance seq = %d, want 1", utt.Seq())
	}
	if src.Reads != 44 {
		t.Fatalf("source reads = %d, want 44 (no extra blocks consumed)", src.Reads)
	}
}

func TestRecordSequenceNumbersAreMonotonic(t *testing.T) {
	t.Parallel()

	// Two utterances back to back; 1 ms of silence is one silent block.
	blocks := []audio.Block{
		voicedBlock(1024, 5000), silentBlock(1024),
		voicedBlock(1024, 5000), silentBlock(1024),
	}
	src := &audiomock.Source{Blocks: blocks, Rate: 16000}
	rec, err := NewRecorder(src, Config{SilenceDuration: time.Millisecond})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	first, err := rec.Record(context.Background())
	if err != nil {
		t.Fatalf("first Record: %v", err)
	}
	second, err := rec.Record(context.Background())
	if err != nil {
		t.Fatalf("second Record: %v", err)
	}
	if first.Seq() != 1 || second.Seq() != 2 {
		t.Fatalf("sequence numbers = %d, %d; want 1, 2", first.Seq(), second.Seq())
	}
}

func TestRecordDiscardsPartialBufferOnSourceEnd(t *testing.T) {
	t.Parallel()

	// Source ends mid-utterance — the partial buffer must be discarded.
	src := &audiomock.Source{Blocks: []audio.Block{voicedBlock(1024, 5000)}, Rate: 16000}
	rec, err := NewRecorder(src, Config{})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	_, err = rec.Record(context.Background())
	if err == nil {
		t.Fatal("expected error when source ends before completion")
	}
	if !errors.Is(err, io.EOF) {
		t.Fatalf("error = %v, want wrapped io.EOF", err)
	}
	if rec.ep.BufferedSamples() != 0 {
		t.Fatal("partial buffer not discarded")
	}
}

func TestRecordNoAudioAtAll(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{Rate: 16000}
	rec, err := NewRecorder(src, Config{})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	_, err = rec.Record(context.Background())
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("error = %v, want ErrNoAudio", err)
	}
}

func TestRecordHonoursContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &audiomock.Source{Blocks: []audio.Block{voicedBlock(1024, 5000)}, Rate: 16000}
	rec, err := NewRecorder(src, Config{})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	_, err = rec.Record(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestNewRecorderNilSource(t *testing.T) {
	t.Parallel()

	if _, err := NewRecorder(nil, Config{}); err == nil {
		t.Fatal("expected error for nil source")
	}
}
