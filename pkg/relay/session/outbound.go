package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/pipeline"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/protocol"
)

// Outbound translates pipeline frames into wire messages and exposes the
// helper sends that bypass the frame path. Writes to the shared socket are
// serialized under a mutex so frame-driven sends and helper sends never
// interleave.
type Outbound struct {
	conn          Conn
	logger        *slog.Logger
	lc            *lifecycle
	interruptible bool
	writeTimeout  time.Duration
	downstream    pipeline.FrameSink

	writeMu sync.Mutex
}

// PlayOptions are the optional knobs of SendPlay. Loop 0 means the protocol
// default of 1; a nil Interruptible inherits the session-wide flag.
type PlayOptions struct {
	Loop          int
	Interruptible *bool
	Preemptible   bool
}

// ProcessFrame delivers one pipeline frame. Text frames become token
// messages carrying the session interruptible flag; a response-end frame
// becomes the empty final token. Every frame, recognized or not, is then
// forwarded to the downstream sink so generic pipeline contracts (flush and
// sync markers, context aggregation) keep working.
func (out *Outbound) ProcessFrame(ctx context.Context, frame pipeline.Frame) error {
	switch f := frame.(type) {
	case pipeline.TextFrame:
		if err := out.send(protocol.TextToken{Token: f.Text, Interruptible: out.interruptible, Lang: f.Lang}); err != nil {
			return err
		}
	case pipeline.ResponseEndFrame:
		if err := out.send(protocol.TextToken{Last: true, Interruptible: false}); err != nil {
			return err
		}
	}
	if out.downstream != nil {
		return out.downstream.PushFrame(ctx, frame)
	}
	return nil
}

// SendEndSession asks the provider to end the call. The provider closes the
// socket in response; the inbound bridge's disconnect handling observes that,
// so this does not itself change the lifecycle phase. handoffData may be
// empty, in which case the field is omitted on the wire.
func (out *Outbound) SendEndSession(handoffData string) error {
	return out.send(protocol.End{HandoffData: handoffData})
}

// SendPlay plays a media URL to the caller.
func (out *Outbound) SendPlay(source string, opts PlayOptions) error {
	interruptible := out.interruptible
	if opts.Interruptible != nil {
		interruptible = *opts.Interruptible
	}
	return out.send(protocol.Play{
		Source:        source,
		Loop:          opts.Loop,
		Interruptible: &interruptible,
		Preemptible:   opts.Preemptible,
	})
}

// SendDigits sends DTMF tones on the call. Digits outside 0-9, #, *, w fail
// before any write.
func (out *Outbound) SendDigits(digits string) error {
	return out.send(protocol.SendDigits{Digits: digits})
}

// SendLanguage switches TTS and/or transcription language. At least one
// argument must be non-empty; otherwise it fails before touching the socket.
func (out *Outbound) SendLanguage(ttsLanguage, transcriptionLanguage string) error {
	return out.send(protocol.Language{
		TTSLanguage:           ttsLanguage,
		TranscriptionLanguage: transcriptionLanguage,
	})
}

func (out *Outbound) send(d protocol.Directive) error {
	payload, err := protocol.EncodeOutbound(d)
	if err != nil {
		return err
	}
	if out.lc.closed() {
		return ErrTransportClosed
	}

	out.writeMu.Lock()
	defer out.writeMu.Unlock()

	if out.writeTimeout > 0 {
		if err := out.conn.SetWriteDeadline(time.Now().Add(out.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if err := out.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write relay message: %w", err)
	}
	return nil
}
