package session

import (
	"sync/atomic"

	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/protocol"
)

// State holds the identifiers and metadata learned from the call-setup
// handshake. It is written by the receive loop and read from anywhere;
// readers must tolerate absence before setup arrives.
type State struct {
	setup atomic.Pointer[protocol.Setup]
}

// store records a setup snapshot and returns the previous one, if any.
// A non-nil previous snapshot means the provider sent setup twice, which is a
// protocol violation the caller should log (last write wins).
func (s *State) store(msg protocol.Setup) (previous *protocol.Setup) {
	return s.setup.Swap(&msg)
}

// Setup returns the setup snapshot, or ok=false before the handshake.
func (s *State) Setup() (setup protocol.Setup, ok bool) {
	p := s.setup.Load()
	if p == nil {
		return protocol.Setup{}, false
	}
	return *p, true
}

// SessionID returns the ConversationRelay session ID, or "" before setup.
func (s *State) SessionID() string {
	if p := s.setup.Load(); p != nil {
		return p.SessionID
	}
	return ""
}

// CallSID returns the Twilio call SID, or "" before setup.
func (s *State) CallSID() string {
	if p := s.setup.Load(); p != nil {
		return p.CallSID
	}
	return ""
}
