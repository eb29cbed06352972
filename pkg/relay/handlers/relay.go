package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/config"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/pipeline"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/session"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/sessions"
)

// SinkFactory builds the pipeline sink for one call. It receives the call's
// transport so the sink can speak back through Outbound.
type SinkFactory func(tr *session.Transport) pipeline.Sink

// RelayHandler upgrades ConversationRelay WebSocket connections and runs one
// transport per call until the peer hangs up or the server drains.
type RelayHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Lifecycle *Lifecycle
	Calls     *sessions.Tracker
	NewSink   SinkFactory
	Callbacks session.Callbacks
}

func (h RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		http.Error(w, "server is draining", http.StatusServiceUnavailable)
		return
	}
	if h.NewSink == nil {
		http.Error(w, "no pipeline is configured", http.StatusInternalServerError)
		return
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.HandshakeTimeout,
		// Twilio connects server-to-server without an Origin header.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connID := uuid.NewString()
	logger = logger.With("conn_id", connID)

	interruptible := h.Config.Interruptible
	tr, err := session.New(session.Deps{
		Conn:          conn,
		Logger:        logger,
		Callbacks:     h.Callbacks,
		Interruptible: &interruptible,
		Config: session.Config{
			WriteTimeout: h.Config.WriteTimeout,
			ReadLimit:    h.Config.MaxJSONMessageBytes,
		},
	})
	if err != nil {
		logger.Error("transport init failed", "error", err)
		return
	}
	tr.SetSink(h.NewSink(tr))

	ctx := r.Context()
	if err := tr.Start(ctx); err != nil {
		logger.Error("transport start failed", "error", err)
		return
	}

	unregister := h.Calls.Register(connID, sessions.Handle{
		Cancel:     func() { _ = tr.Cancel(ctx) },
		EndSession: tr.Outbound().SendEndSession,
	})
	defer unregister()

	select {
	case <-tr.Done():
	case <-ctx.Done():
	}
	if err := tr.Stop(ctx); err != nil {
		logger.Warn("transport stop failed", "error", err)
	}
	logger.Info("call finished", "session_id", tr.SessionID(), "call_sid", tr.CallSID())
}
