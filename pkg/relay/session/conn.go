package session

import (
	"errors"
	"time"
)

// Conn is the subset of *websocket.Conn the transport touches. The session
// socket has exactly one reader (the receive loop); writes are serialized by
// the outbound bridge.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// ErrTransportClosed is returned by every send attempted after the transport
// reached PhaseClosed.
var ErrTransportClosed = errors.New("relay transport is closed")
