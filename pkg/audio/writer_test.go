package audio

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestWriterPlayerWritesAllChunks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWriterPlayer(&buf)

	pcm := make(chan []byte, 3)
	pcm <- []byte{1, 2}
	pcm <- []byte{3, 4}
	pcm <- []byte{5}
	close(pcm)

	if err := p.Play(context.Background(), pcm, 24000); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if got := buf.Bytes(); !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("written = %v", got)
	}
}

func TestWriterPlayerDrainsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Discard()
	pcm := make(chan []byte)

	if err := p.Play(ctx, pcm, 24000); !errors.Is(err, context.Canceled) {
		t.Fatalf("Play err = %v, want context.Canceled", err)
	}

	// The drain goroutine left behind must absorb late sends so the producer
	// never blocks.
	done := make(chan struct{})
	go func() {
		defer close(done)
		pcm <- []byte{10}
		close(pcm)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer leaked: channel never drained")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("device gone") }

func TestWriterPlayerWrapsWriteError(t *testing.T) {
	t.Parallel()

	p := NewWriterPlayer(failingWriter{})
	pcm := make(chan []byte, 1)
	pcm <- []byte{1}
	close(pcm)

	if err := p.Play(context.Background(), pcm, 24000); err == nil {
		t.Fatal("Play returned nil for failing writer")
	}
}
