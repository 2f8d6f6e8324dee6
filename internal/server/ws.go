package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/MrWong99/parley/internal/endpoint"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/turn"
	"github.com/MrWong99/parley/pkg/audio"
)

// maxOpusFrameSamples is the decode buffer size per channel. 5760 covers the
// longest Opus frame (120 ms) at 48 kHz, so every legal frame fits.
const maxOpusFrameSamples = 5760

// wsEvent is the JSON message sent to the browser.
type wsEvent struct {
	Type    string    `json:"type"` // "turn", "busy", "error", "cleared"
	Turn    *turnView `json:"turn,omitempty"`
	Message string    `json:"message,omitempty"`
}

// wsControl is the JSON control message received from the browser as a text
// frame. Binary frames carry Opus-encoded audio.
type wsControl struct {
	Type string `json:"type"` // "clear", "cancel"
}

// handleStream is the live capture endpoint. The browser sends Opus frames
// as binary messages; they are decoded to PCM, endpointed, and each
// completed utterance is run through the session. Terminal turns are pushed
// back as JSON text messages.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	ep, err := endpoint.New(s.epCfg)
	if err != nil {
		log.Error("endpointer config invalid", "error", err)
		return
	}
	dec, err := gopus.NewDecoder(ep.SampleRate(), 1)
	if err != nil {
		log.Error("opus decoder init failed", "error", err)
		return
	}

	log.Info("capture stream opened")

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			// Normal closure or client gone; partial utterances are
			// discarded, matching the capture-stop contract.
			log.Debug("capture stream closed", "error", err)
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}

		switch typ {
		case websocket.MessageBinary:
			s.feedOpusFrame(ctx, conn, ep, dec, data)
		case websocket.MessageText:
			s.handleControl(ctx, conn, data)
		}
	}
}

// feedOpusFrame decodes one Opus frame, feeds it to the endpointer, and
// starts a turn when the utterance completes.
func (s *Server) feedOpusFrame(ctx context.Context, conn *websocket.Conn, ep *endpoint.Endpointer, dec *gopus.Decoder, frame []byte) {
	log := observe.Logger(ctx)

	samples, err := dec.Decode(frame, maxOpusFrameSamples, false)
	if err != nil {
		s.sendEvent(ctx, conn, wsEvent{Type: "error", Message: "opus decode failed"})
		return
	}

	decision := ep.Feed(audio.Block{Samples: samples, SampleRate: ep.SampleRate()})
	if decision != endpoint.Complete {
		return
	}

	utt := ep.Take(s.seq.Add(1))
	s.metrics.Utterances.Add(ctx, 1)
	log.Debug("utterance endpointed", "seq", utt.Seq(), "duration", utt.Duration())

	done, err := s.sess.StartTurn(ctx, utt)
	if err != nil {
		if errors.Is(err, turn.ErrBusy) {
			s.sendEvent(ctx, conn, wsEvent{Type: "busy", Message: turn.ErrBusy.Error()})
			return
		}
		s.sendEvent(ctx, conn, wsEvent{Type: "error", Message: err.Error()})
		return
	}

	// Deliver the result without blocking the capture loop; the session
	// rejects overlapping turns on its own.
	go func() {
		select {
		case t, ok := <-done:
			if !ok {
				return
			}
			v := viewOf(t)
			s.sendEvent(ctx, conn, wsEvent{Type: "turn", Turn: &v})
		case <-ctx.Done():
		}
	}()
}

// handleControl applies a browser control message to the session.
func (s *Server) handleControl(ctx context.Context, conn *websocket.Conn, data []byte) {
	var ctl wsControl
	if err := json.Unmarshal(data, &ctl); err != nil {
		s.sendEvent(ctx, conn, wsEvent{Type: "error", Message: "bad control message"})
		return
	}

	switch ctl.Type {
	case "clear":
		if err := s.sess.Clear(); err != nil {
			s.sendEvent(ctx, conn, wsEvent{Type: "busy", Message: err.Error()})
			return
		}
		s.sendEvent(ctx, conn, wsEvent{Type: "cleared"})
	case "cancel":
		s.sess.Cancel()
	default:
		s.sendEvent(ctx, conn, wsEvent{Type: "error", Message: "unknown control type"})
	}
}

// sendEvent marshals ev and writes it as a text frame. Write errors are
// ignored; the read loop notices the broken connection.
func (s *Server) sendEvent(ctx context.Context, conn *websocket.Conn, ev wsEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
