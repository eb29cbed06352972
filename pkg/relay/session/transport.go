// Package session implements the ConversationRelay protocol bridge for one
// phone call: the inbound message-to-frame translator with its receive loop,
// the outbound frame-to-message translator with its helper sends, and the
// lifecycle state machine coordinating both with the pipeline's
// start/stop/cancel contract. Exactly one WebSocket connection carries the
// protocol for the lifetime of a session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/pipeline"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/protocol"
)

// Config holds per-session tunables. Zero values take defaults in New.
type Config struct {
	WriteTimeout time.Duration
	ReadLimit    int64
}

// Deps are the collaborators of one transport. Conn is required. Sink may be
// left nil and bound later with SetSink, but must be present before Start:
// the surrounding pipeline is usually constructed around the transport.
type Deps struct {
	Conn       Conn
	Logger     *slog.Logger
	Sink       pipeline.Sink
	Downstream pipeline.FrameSink
	Callbacks  Callbacks

	// Interruptible is the session-wide flag applied to every outbound text
	// token. nil means true.
	Interruptible *bool

	Config Config
	Now    func() time.Time
}

// Transport is one call's protocol bridge. Both bridges share one socket and
// one lifecycle; both reach PhaseClosed exactly once per session.
type Transport struct {
	logger   *slog.Logger
	lc       lifecycle
	state    State
	inbound  *Inbound
	outbound *Outbound
}

// New validates deps, applies defaults, and builds the two bridges. The
// transport starts in PhaseIdle; nothing touches the socket until Start.
func New(deps Deps) (*Transport, error) {
	if deps.Conn == nil {
		return nil, errors.New("connection is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.WriteTimeout <= 0 {
		deps.Config.WriteTimeout = 5 * time.Second
	}
	if deps.Config.ReadLimit <= 0 {
		deps.Config.ReadLimit = 64 * 1024
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	interruptible := true
	if deps.Interruptible != nil {
		interruptible = *deps.Interruptible
	}

	t := &Transport{logger: deps.Logger}
	t.inbound = &Inbound{
		conn:      deps.Conn,
		logger:    deps.Logger,
		lc:        &t.lc,
		state:     &t.state,
		callbacks: deps.Callbacks,
		readLimit: deps.Config.ReadLimit,
		now:       deps.Now,
		sink:      deps.Sink,
		loopDone:  make(chan struct{}),
	}
	t.outbound = &Outbound{
		conn:          deps.Conn,
		logger:        deps.Logger,
		lc:            &t.lc,
		interruptible: interruptible,
		writeTimeout:  deps.Config.WriteTimeout,
		downstream:    deps.Downstream,
	}
	return t, nil
}

// SetSink binds the pipeline sink. Must happen before Start.
func (t *Transport) SetSink(sink pipeline.Sink) {
	t.inbound.sink = sink
}

// Inbound returns the message-to-frame bridge.
func (t *Transport) Inbound() *Inbound { return t.inbound }

// Outbound returns the frame-to-message bridge.
func (t *Transport) Outbound() *Outbound { return t.outbound }

// Phase returns the current lifecycle phase.
func (t *Transport) Phase() Phase { return t.lc.current() }

// SessionID returns the session ID learned from setup, or "" before setup.
func (t *Transport) SessionID() string { return t.state.SessionID() }

// CallSID returns the call SID learned from setup, or "" before setup.
func (t *Transport) CallSID() string { return t.state.CallSID() }

// Setup returns the setup snapshot, or ok=false before the handshake.
func (t *Transport) Setup() (protocol.Setup, bool) { return t.state.Setup() }

// Done is closed once the receive loop has exited.
func (t *Transport) Done() <-chan struct{} { return t.inbound.Done() }

// Start maps the pipeline's start signal onto the inbound bridge. The
// outbound bridge needs no explicit start: it is purely reactive to frames
// and helper calls.
func (t *Transport) Start(ctx context.Context) error {
	return t.inbound.Start(ctx)
}

// Stop is the pipeline's graceful end signal. It drains the receive loop and
// closes the socket; calling it again (or after Cancel) is a no-op.
func (t *Transport) Stop(ctx context.Context) error {
	return t.inbound.shutdown(ctx)
}

// Cancel is the pipeline's abrupt end signal. With sends unqueued there is
// nothing to drain beyond what Stop does, so the paths converge; the
// distinction is kept at the API so callers express intent.
func (t *Transport) Cancel(ctx context.Context) error {
	return t.inbound.shutdown(ctx)
}
