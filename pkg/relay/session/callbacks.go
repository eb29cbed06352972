package session

import (
	"context"
	"log/slog"

	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/protocol"
)

// Callbacks holds at most one handler per event kind; each is optional.
// Handlers run inline on the receive loop and are awaited before the next
// message is read, so session metadata is always populated before any later
// event fires. A slow handler therefore delays inbound processing.
type Callbacks struct {
	OnSetup     func(ctx context.Context, setup protocol.Setup) error
	OnInterrupt func(ctx context.Context, interrupt protocol.Interrupt) error
	OnDTMF      func(ctx context.Context, dtmf protocol.DTMF) error
	OnError     func(ctx context.Context, msg protocol.ErrorMessage) error
}

// dispatch invokes one handler, isolating failures: an error or panic is
// logged and never reaches the receive loop.
func dispatch(ctx context.Context, logger *slog.Logger, event string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("callback panicked", "event", event, "panic", r)
		}
	}()
	if err := fn(ctx); err != nil {
		logger.Error("callback failed", "event", event, "error", err)
	}
}
