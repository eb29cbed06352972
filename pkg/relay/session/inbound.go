package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/pipeline"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/protocol"
)

// Inbound owns the receive loop: one blocking read at a time, decode,
// dispatch. Disconnect detection and the lifecycle state machine live here.
type Inbound struct {
	conn      Conn
	logger    *slog.Logger
	lc        *lifecycle
	state     *State
	callbacks Callbacks
	readLimit int64
	now       func() time.Time

	sink pipeline.Sink // bound before Start

	loopDone       chan struct{}
	closeConn      sync.Once
	cancelPipeline sync.Once
	shutdownMu     sync.Mutex
}

// Start spawns the receive loop and returns immediately. It is valid only
// from PhaseIdle; any later call is a no-op.
func (in *Inbound) Start(ctx context.Context) error {
	if in.sink == nil {
		return errors.New("pipeline sink is required")
	}
	if !in.lc.transition(PhaseIdle, PhaseListening) {
		return nil
	}
	if in.readLimit > 0 {
		in.conn.SetReadLimit(in.readLimit)
	}
	go in.receiveLoop(ctx)
	return nil
}

// Done is closed when the receive loop has exited (or shutdown ran before
// the loop ever started).
func (in *Inbound) Done() <-chan struct{} {
	return in.loopDone
}

// SessionID returns the session ID learned from setup, or "" before setup.
func (in *Inbound) SessionID() string { return in.state.SessionID() }

// CallSID returns the call SID learned from setup, or "" before setup.
func (in *Inbound) CallSID() string { return in.state.CallSID() }

// shutdown drives Draining and then Closed. Cooperative: the socket is closed
// first so a pending blocking read unblocks, then the loop is awaited. The
// socket ends up closed even if the loop errored. Safe to call repeatedly.
func (in *Inbound) shutdown(ctx context.Context) error {
	in.shutdownMu.Lock()
	defer in.shutdownMu.Unlock()

	// Never started: close straight to terminal.
	if in.lc.transition(PhaseIdle, PhaseClosed) {
		in.closeConn.Do(func() { _ = in.conn.Close() })
		close(in.loopDone)
		return nil
	}

	in.lc.transition(PhaseListening, PhaseDraining)
	in.closeConn.Do(func() { _ = in.conn.Close() })

	select {
	case <-in.loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	in.lc.close()
	return nil
}

func (in *Inbound) receiveLoop(ctx context.Context) {
	defer close(in.loopDone)

	for {
		messageType, data, err := in.conn.ReadMessage()
		if err != nil {
			if in.lc.current() >= PhaseDraining {
				return
			}
			// Peer closed the socket while we were listening. This is an
			// unexpected termination, not a graceful end: escalate to the
			// pipeline as a cancellation, exactly once.
			in.logger.Info("websocket disconnected", "error", err)
			in.cancelPipeline.Do(func() {
				cancelCtx := context.WithoutCancel(ctx)
				if cancelErr := in.sink.Cancel(cancelCtx); cancelErr != nil {
					in.logger.Error("pipeline cancel failed", "error", cancelErr)
				}
			})
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		in.handleMessage(ctx, data)
	}
}

func (in *Inbound) handleMessage(ctx context.Context, data []byte) {
	msg, err := protocol.DecodeInbound(data)
	if err != nil {
		in.logger.Warn("dropping undecodable frame", "error", err, "raw", logTruncate(data))
		return
	}

	switch msg := msg.(type) {
	case protocol.Setup:
		in.handleSetup(ctx, msg)
	case protocol.Prompt:
		in.handlePrompt(ctx, msg)
	case protocol.Interrupt:
		if fn := in.callbacks.OnInterrupt; fn != nil {
			dispatch(ctx, in.logger, "interrupt", func(ctx context.Context) error { return fn(ctx, msg) })
		}
	case protocol.DTMF:
		if fn := in.callbacks.OnDTMF; fn != nil {
			dispatch(ctx, in.logger, "dtmf", func(ctx context.Context) error { return fn(ctx, msg) })
		}
	case protocol.ErrorMessage:
		in.handleError(ctx, msg)
	}
}

func (in *Inbound) handleSetup(ctx context.Context, msg protocol.Setup) {
	if previous := in.state.store(msg); previous != nil {
		in.logger.Warn("duplicate setup message; replacing session metadata",
			"session_id", msg.SessionID, "previous_session_id", previous.SessionID)
	}
	in.logger.Info("conversation relay setup",
		"session_id", msg.SessionID, "call_sid", msg.CallSID, "direction", msg.Direction)

	if fn := in.callbacks.OnSetup; fn != nil {
		dispatch(ctx, in.logger, "setup", func(ctx context.Context) error { return fn(ctx, msg) })
	}
}

func (in *Inbound) handlePrompt(ctx context.Context, msg protocol.Prompt) {
	// Interim transcripts are dropped; partial-transcript consumers are a
	// reserved extension point.
	if !msg.Last {
		return
	}
	if strings.TrimSpace(msg.VoicePrompt) == "" {
		return
	}
	frame := pipeline.TranscriptionFrame{
		Text:      msg.VoicePrompt,
		Timestamp: in.now(),
		Language:  msg.Lang,
	}
	if err := in.sink.PushFrame(ctx, frame); err != nil {
		in.logger.Error("transcription push failed", "error", err)
	}
}

func (in *Inbound) handleError(ctx context.Context, msg protocol.ErrorMessage) {
	in.logger.Error("conversation relay error", "description", msg.Description)

	if fn := in.callbacks.OnError; fn != nil {
		dispatch(ctx, in.logger, "error", func(ctx context.Context) error { return fn(ctx, msg) })
	}
	if err := in.sink.PushFrame(ctx, pipeline.ErrorFrame{Description: msg.Description}); err != nil {
		in.logger.Error("error frame push failed", "error", err)
	}
}

func logTruncate(data []byte) string {
	const limit = 100
	if len(data) <= limit {
		return string(data)
	}
	return string(data[:limit])
}
