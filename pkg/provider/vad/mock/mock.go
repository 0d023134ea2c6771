// Package mock provides scripted VAD engines for tests.
package mock

import (
	"sync"

	"github.com/MrWong99/frontdesk/pkg/provider/vad"
)

// NewSessionCall records one Engine.NewSession invocation.
type NewSessionCall struct {
	Cfg vad.Config
}

// Engine hands out Session, or a fresh silent Session when it is nil.
type Engine struct {
	mu sync.Mutex

	Session       vad.SessionHandle
	NewSessionErr error

	NewSessionCalls []NewSessionCall
}

var _ vad.Engine = (*Engine)(nil)

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	switch {
	case e.NewSessionErr != nil:
		return nil, e.NewSessionErr
	case e.Session != nil:
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session plays back Events one frame at a time and then repeats
// EventResult. ProcessFrameErr, when set, fails every frame.
type Session struct {
	mu sync.Mutex

	Events          []vad.VADEvent
	EventResult     vad.VADEvent
	ProcessFrameErr error
	CloseErr        error

	Frames         int
	ResetCallCount int
	CloseCallCount int
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame implements vad.SessionHandle.
func (s *Session) ProcessFrame([]byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames++
	if s.ProcessFrameErr != nil {
		return vad.VADEvent{}, s.ProcessFrameErr
	}
	if len(s.Events) == 0 {
		return s.EventResult, nil
	}
	ev := s.Events[0]
	s.Events = s.Events[1:]
	return ev, nil
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {
	s.mu.Lock()
	s.ResetCallCount++
	s.mu.Unlock()
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}
