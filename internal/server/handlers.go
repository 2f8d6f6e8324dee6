package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/turn"
	"github.com/MrWong99/parley/pkg/audio"
)

// handleUpload accepts a multipart form with an "audio" WAV file, runs it
// through the session as one utterance, and responds with the terminal turn.
// The endpointer is bypassed: an upload is by definition already a complete
// utterance.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio form file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read audio: "+err.Error())
		return
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "decode wav: "+err.Error())
		return
	}
	if len(samples) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio")
		return
	}

	utt := audio.NewUtterance(s.seq.Add(1), rate, samples)
	s.metrics.Utterances.Add(ctx, 1)

	done, err := s.sess.StartTurn(ctx, utt)
	if err != nil {
		if errors.Is(err, turn.ErrBusy) {
			writeError(w, http.StatusConflict, turn.ErrBusy.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	select {
	case t := <-done:
		log.Debug("upload turn finished", "turn_id", t.ID, "status", t.Status)
		writeJSON(w, http.StatusOK, viewOf(t))
	case <-ctx.Done():
		// The turn keeps running and lands in the history; the client just
		// stopped waiting for it.
		writeError(w, http.StatusRequestTimeout, "client went away before the turn finished")
	}
}

// handleHistory returns the session's turn history.
func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	hist := s.sess.History()
	views := make([]turnView, len(hist))
	for i := range hist {
		views[i] = viewOf(&hist[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"busy":  s.sess.IsBusy(),
		"turns": views,
	})
}

// handleClear empties the session history. Returns 409 while a turn is
// pending.
func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.sess.Clear(); err != nil {
		if errors.Is(err, turn.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleCancel aborts the in-flight turn, if any.
func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	s.sess.Cancel()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
