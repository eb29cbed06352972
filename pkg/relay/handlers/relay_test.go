package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/config"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/pipeline"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/session"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/sessions"
)

// echoSink answers every final transcript with one token and an end-of-turn
// marker, the smallest useful pipeline.
type echoSink struct {
	tr      *session.Transport
	cancels chan struct{}
}

func (s *echoSink) PushFrame(ctx context.Context, frame pipeline.Frame) error {
	tf, ok := frame.(pipeline.TranscriptionFrame)
	if !ok {
		return nil
	}
	out := s.tr.Outbound()
	if err := out.ProcessFrame(ctx, pipeline.TextFrame{Text: "You said: " + tf.Text}); err != nil {
		return err
	}
	return out.ProcessFrame(ctx, pipeline.ResponseEndFrame{})
}

func (s *echoSink) Cancel(context.Context) error {
	select {
	case s.cancels <- struct{}{}:
	default:
	}
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Addr:                ":0",
		Interruptible:       true,
		HandshakeTimeout:    2 * time.Second,
		WriteTimeout:        2 * time.Second,
		ShutdownGracePeriod: 2 * time.Second,
		MaxJSONMessageBytes: 64 * 1024,
	}
}

func newRelayServer(t *testing.T, lc *Lifecycle, calls *sessions.Tracker) (*httptest.Server, *echoSink) {
	t.Helper()
	sink := &echoSink{cancels: make(chan struct{}, 1)}
	h := RelayHandler{
		Config:    testConfig(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Lifecycle: lc,
		Calls:     calls,
		NewSink: func(tr *session.Transport) pipeline.Sink {
			sink.tr = tr
			return sink
		},
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, sink
}

func dialRelay(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return got
}

func TestRelayHandler_EchoesFinalPrompt(t *testing.T) {
	calls := sessions.NewTracker()
	srv, _ := newRelayServer(t, &Lifecycle{}, calls)
	conn := dialRelay(t, srv)

	setup := `{"type":"setup","sessionId":"VX1","callSid":"CA1","from":"+15550001111","to":"+15550002222"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(setup)); err != nil {
		t.Fatalf("write setup: %v", err)
	}
	prompt := `{"type":"prompt","voicePrompt":"hello there","last":true}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(prompt)); err != nil {
		t.Fatalf("write prompt: %v", err)
	}

	first := readJSON(t, conn)
	if first["type"] != "text" || first["token"] != "You said: hello there" {
		t.Fatalf("first message = %v", first)
	}
	second := readJSON(t, conn)
	if second["type"] != "text" || second["last"] != true {
		t.Fatalf("second message = %v", second)
	}
}

func TestRelayHandler_PeerDisconnectCancelsSinkAndUnregisters(t *testing.T) {
	calls := sessions.NewTracker()
	srv, sink := newRelayServer(t, &Lifecycle{}, calls)
	conn := dialRelay(t, srv)

	setup := `{"type":"setup","sessionId":"VX1","callSid":"CA1"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(setup)); err != nil {
		t.Fatalf("write setup: %v", err)
	}
	waitFor(t, func() bool { return calls.Count() == 1 })

	conn.Close()

	select {
	case <-sink.cancels:
	case <-time.After(2 * time.Second):
		t.Fatal("sink was not canceled after the peer disconnected")
	}
	waitFor(t, func() bool { return calls.Count() == 0 })
}

func TestRelayHandler_MethodNotAllowed(t *testing.T) {
	srv, _ := newRelayServer(t, &Lifecycle{}, sessions.NewTracker())

	resp, err := http.Post(srv.URL, "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestRelayHandler_DrainingRefusesNewCalls(t *testing.T) {
	lc := &Lifecycle{}
	lc.SetDraining(true)
	srv, _ := newRelayServer(t, lc, sessions.NewTracker())

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial should fail while draining")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("resp = %+v", resp)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
