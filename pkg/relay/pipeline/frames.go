// Package pipeline defines the boundary between the relay transport and the
// surrounding conversation pipeline. The pipeline is an external collaborator:
// the transport pushes frames and control signals into a Sink, and the
// pipeline hands frames back for delivery to the caller. The transport only
// interprets the kinds defined here; every other frame passes through.
package pipeline

import (
	"context"
	"time"
)

// Frame is one item flowing through the conversation pipeline.
type Frame interface {
	frame()
}

// TextFrame is a token of assistant text on its way to the caller.
type TextFrame struct {
	Text string
	Lang string
}

func (TextFrame) frame() {}

// ResponseEndFrame marks the end of one assistant response. The transport
// turns it into an empty final token so the provider knows TTS input is
// complete.
type ResponseEndFrame struct{}

func (ResponseEndFrame) frame() {}

// TranscriptionFrame is a finalized caller utterance emitted by the inbound
// bridge. UserID is empty: the provider does not identify speakers.
type TranscriptionFrame struct {
	Text      string
	UserID    string
	Timestamp time.Time
	Language  string
}

func (TranscriptionFrame) frame() {}

// ErrorFrame surfaces a provider-reported session error to the pipeline.
type ErrorFrame struct {
	Description string
}

func (ErrorFrame) frame() {}

// ControlFrame carries a pipeline control marker (flush, sync, aggregation
// boundaries) that the transport forwards without interpreting. New upstream
// frame kinds ride through here instead of silently breaking the translator.
type ControlFrame struct {
	Name    string
	Payload any
}

func (ControlFrame) frame() {}

// FrameSink accepts frames pushed by the transport.
type FrameSink interface {
	PushFrame(ctx context.Context, frame Frame) error
}

// Sink is the upstream end of the pipeline. Cancel signals an unexpected
// session termination (peer disconnect); it is distinct from frame delivery
// because the pipeline must stop even when no frame can be produced.
type Sink interface {
	FrameSink
	Cancel(ctx context.Context) error
}
