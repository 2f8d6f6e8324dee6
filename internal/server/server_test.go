package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/parley/internal/endpoint"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/turn"
	"github.com/MrWong99/parley/pkg/audio"
)

// echoRunner resolves every utterance into a completed turn that echoes the
// utterance length, optionally blocking until released.
type echoRunner struct {
	mu    sync.Mutex
	block chan struct{}
}

func (r *echoRunner) Run(ctx context.Context, utt *audio.Utterance) *turn.Turn {
	defer utt.Release()

	r.mu.Lock()
	block := r.block
	r.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return &turn.Turn{Seq: utt.Seq(), Status: turn.StatusFailed, Err: ctx.Err()}
		}
	}
	return &turn.Turn{
		ID:       "t-1",
		Seq:      utt.Seq(),
		UserText: "hello",
		BotText:  "hi there",
		Status:   turn.StatusCompleted,
	}
}

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

func newTestServer(t *testing.T, r session.Runner) *Server {
	t.Helper()
	m := testMetrics(t)
	sess := session.New(r, session.WithMetrics(m))
	t.Cleanup(sess.Close)

	s, err := New(":0", sess, endpoint.Config{}, WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// wavUpload builds a multipart body holding one WAV file under the "audio"
// field.
func wavUpload(t *testing.T, samples []int16, rate int) (*bytes.Buffer, string) {
	t.Helper()
	wav, err := audio.EncodeWAV(samples, rate)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "utterance.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(wav); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadRunsTurn(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &echoRunner{})
	handler := s.Handler()

	body, ct := wavUpload(t, make([]int16, 16000), 16000)
	req := httptest.NewRequest("POST", "/v1/turns", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var v turnView
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Status != "completed" || v.UserText != "hello" || v.BotText != "hi there" {
		t.Errorf("turn view = %+v", v)
	}
	if v.Seq != 1 {
		t.Errorf("seq = %d, want 1", v.Seq)
	}
}

func TestUploadRejectsMissingFile(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &echoRunner{})
	req := httptest.NewRequest("POST", "/v1/turns", bytes.NewBufferString("not multipart"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadRejectsBadWAV(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &echoRunner{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("audio", "junk.wav")
	fw.Write([]byte("this is not audio"))
	mw.Close()

	req := httptest.NewRequest("POST", "/v1/turns", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadConflictWhileBusy(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	r := &echoRunner{block: block}
	s := newTestServer(t, r)
	handler := s.Handler()

	// Occupy the session directly with a blocked turn.
	ch, err := s.sess.StartTurn(context.Background(), audio.NewUtterance(99, 16000, make([]int16, 64)))
	if err != nil {
		t.Fatalf("StartTurn: %v", err)
	}

	body, ct := wavUpload(t, make([]int16, 1024), 16000)
	req := httptest.NewRequest("POST", "/v1/turns", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}

	close(block)
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("blocked turn never finished")
	}
}

func TestHistoryAndClear(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &echoRunner{})
	handler := s.Handler()

	// Run one turn so the history is non-empty.
	body, ct := wavUpload(t, make([]int16, 1024), 16000)
	req := httptest.NewRequest("POST", "/v1/turns", body)
	req.Header.Set("Content-Type", ct)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var hist struct {
		Busy  bool       `json:"busy"`
		Turns []turnView `json:"turns"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if hist.Busy {
		t.Error("busy = true, want false")
	}
	if len(hist.Turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(hist.Turns))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/clear", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/history", nil))
	hist.Turns = nil
	if err := json.NewDecoder(rec.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Turns) != 0 {
		t.Errorf("turns after clear = %d, want 0", len(hist.Turns))
	}
}

func TestClearConflictWhileBusy(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	s := newTestServer(t, &echoRunner{block: block})
	handler := s.Handler()

	ch, err := s.sess.StartTurn(context.Background(), audio.NewUtterance(1, 16000, make([]int16, 64)))
	if err != nil {
		t.Fatalf("StartTurn: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/clear", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}

	close(block)
	<-ch
}

func TestProbeAndMetricsRoutes(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &echoRunner{})
	handler := s.Handler()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestStreamControlMessages(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &echoRunner{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + ts.URL[len("http"):] + "/v1/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"clear"}`)); err != nil {
		t.Fatalf("write control: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev wsEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Type != "cleared" {
		t.Errorf("event type = %q, want cleared", ev.Type)
	}
}
