package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/pipeline"
)

// fakeConn scripts the provider side of the socket: tests feed frames through
// deliver, simulate a peer hangup with peerClose, and inspect writes.
type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error

	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) deliver(raw string) {
	f.inbound <- []byte(raw)
}

// peerClose simulates the provider hanging up.
func (f *fakeConn) peerClose() {
	close(f.inbound)
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-f.closed:
		return 0, nil, net.ErrClosed
	case data, ok := <-f.inbound:
		if !ok {
			return 0, nil, errors.New("peer closed connection")
		}
		return websocket.TextMessage, data, nil
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	_ = messageType
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.writes = append(f.writes, buf)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) SetReadLimit(int64) {}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) snapshotWrites() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	for i, w := range f.writes {
		out[i] = string(w)
	}
	return out
}

// recordingSink collects what the transport pushes upstream.
type recordingSink struct {
	mu      sync.Mutex
	frames  []pipeline.Frame
	cancels int

	frameCh  chan pipeline.Frame
	cancelCh chan struct{}

	pushErr error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		frameCh:  make(chan pipeline.Frame, 16),
		cancelCh: make(chan struct{}, 4),
	}
}

func (s *recordingSink) PushFrame(_ context.Context, frame pipeline.Frame) error {
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	err := s.pushErr
	s.mu.Unlock()
	s.frameCh <- frame
	return err
}

func (s *recordingSink) Cancel(context.Context) error {
	s.mu.Lock()
	s.cancels++
	s.mu.Unlock()
	s.cancelCh <- struct{}{}
	return nil
}

func (s *recordingSink) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

func (s *recordingSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func waitFrame(t *testing.T, ch <-chan pipeline.Frame) pipeline.Frame {
	t.Helper()
	select {
	case frame := <-ch:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func expectQuiet(t *testing.T, ch <-chan pipeline.Frame) {
	t.Helper()
	select {
	case frame := <-ch:
		t.Fatalf("unexpected frame %T", frame)
	case <-time.After(50 * time.Millisecond):
	}
}
