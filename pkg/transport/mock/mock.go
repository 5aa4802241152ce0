// Package mock provides in-memory mock implementations of the
// [transport.Dialer] and [transport.Session] interfaces for use in unit
// tests.
//
// The session mock records every uplink chunk and lets tests drive the
// downlink via [Session.Emit]:
//
//	sess := mock.NewSession()
//	dialer := &mock.Dialer{DialResult: sess}
//	// ... start the component under test ...
//	sess.Emit(transport.AudioEvent{PCM: pcm})
//	sess.Finish(nil) // orderly remote closure
package mock

import (
	"context"
	"sync"

	"github.com/voxcall/voxcall/pkg/transport"
	"github.com/voxcall/voxcall/pkg/wire"
)

// Session is a mock implementation of [transport.Session].
type Session struct {
	mu sync.Mutex

	events chan transport.Event
	ended  bool
	errVal error

	// SendError is returned by SendMedia when non-nil.
	SendError error

	// CloseError is returned by Close.
	CloseError error

	// OnClose, when set, is called by Close. Lets a test record release
	// ordering across several mocks.
	OnClose func()

	// SentChunks records every chunk passed to SendMedia in order.
	SentChunks []wire.MediaChunk

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewSession creates a mock session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan transport.Event, 64)}
}

// SendMedia implements [transport.Session]. Records the chunk.
func (s *Session) SendMedia(chunk wire.MediaChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendError != nil {
		return s.SendError
	}
	s.SentChunks = append(s.SentChunks, chunk)
	return nil
}

// Events implements [transport.Session].
func (s *Session) Events() <-chan transport.Event { return s.events }

// Err implements [transport.Session].
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close implements [transport.Session]. Ends the session cleanly.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	s.finishLocked(nil)
	hook := s.OnClose
	err := s.CloseError
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

// Emit delivers one downlink event to the consumer. No-op after the session
// has ended.
func (s *Session) Emit(ev transport.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.events <- ev
}

// Finish ends the session as the remote side would: the event channel is
// closed and Err reports the given error (nil for an orderly closure).
func (s *Session) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(err)
}

func (s *Session) finishLocked(err error) {
	if s.ended {
		return
	}
	s.ended = true
	s.errVal = err
	close(s.events)
}

// CloseCalls returns how many times Close was called.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose
}

// Sent returns a copy of the chunks recorded so far.
func (s *Session) Sent() []wire.MediaChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.MediaChunk, len(s.SentChunks))
	copy(out, s.SentChunks)
	return out
}

// Dialer is a mock implementation of [transport.Dialer].
type Dialer struct {
	mu sync.Mutex

	// DialResult is returned by Dial. When nil and DialError is nil, a
	// fresh [*Session] is created per call.
	DialResult transport.Session

	// DialError is returned by Dial when non-nil.
	DialError error

	// DialCalls records the configs passed to Dial.
	DialCalls []transport.SessionConfig
}

// Dial implements [transport.Dialer].
func (d *Dialer) Dial(_ context.Context, cfg transport.SessionConfig) (transport.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialCalls = append(d.DialCalls, cfg)
	if d.DialError != nil {
		return nil, d.DialError
	}
	if d.DialResult == nil {
		return NewSession(), nil
	}
	return d.DialResult, nil
}
