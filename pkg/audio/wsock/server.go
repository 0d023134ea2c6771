// Package wsock provides a WebSocket call transport.
//
// A telephony gateway (or a browser test client) opens one WebSocket per
// phone call. The first message must be a JSON start event carrying the call
// metadata; after that the peer streams media events with base64 PCM and ends
// the call with a stop event or by closing the socket:
//
//	{"event":"start","call_id":"CA123","phone_number":"5550001","caller_name":"Ann"}
//	{"event":"media","sample_rate":8000,"channels":1,"payload":"<base64 PCM16LE>"}
//	{"event":"stop"}
//
// Synthesized speech travels the other way as binary messages, one
// [audio.OutputFrameBytes] PCM frame per message.
package wsock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/frontdesk/pkg/audio"
)

const (
	// DefaultStartTimeout bounds the wait for the start event.
	DefaultStartTimeout = 10 * time.Second

	defaultInputBuffer = 64
	maxMessageBytes    = 1 << 20
)

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithStartTimeout overrides [DefaultStartTimeout].
func WithStartTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.startTimeout = d
		}
	}
}

// WithInputBuffer sets how many inbound frames are buffered per call.
func WithInputBuffer(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.inputBuffer = n
		}
	}
}

// WithOriginPatterns allows cross-origin WebSocket handshakes from the given
// host patterns (see websocket.AcceptOptions).
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.accept.OriginPatterns = patterns }
}

// Server accepts calls over WebSocket and hands each one to a
// [audio.CallHandler]. It implements http.Handler.
//
// Server is safe for concurrent use.
type Server struct {
	handler      audio.CallHandler
	log          *slog.Logger
	startTimeout time.Duration
	inputBuffer  int
	accept       websocket.AcceptOptions

	ctx    context.Context
	cancel context.CancelFunc
}

var _ http.Handler = (*Server)(nil)

// NewServer returns a Server that dispatches calls to h.
func NewServer(h audio.CallHandler, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		handler:      h,
		log:          slog.Default(),
		startTimeout: DefaultStartTimeout,
		inputBuffer:  defaultInputBuffer,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register mounts the call endpoint on mux at GET /calls.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("GET /calls", s)
}

// Close cancels the context of every call in progress. Hijacked WebSocket
// connections are not tracked by http.Server.Shutdown, so call Close during
// shutdown.
func (s *Server) Close() {
	s.cancel()
}

// ServeHTTP upgrades the request, waits for the start event and blocks in the
// call handler until it returns.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &s.accept)
	if err != nil {
		s.log.Warn("wsock: accept", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	info, err := s.readStart(ctx, conn)
	if err != nil {
		s.log.Warn("wsock: call rejected", "remote", r.RemoteAddr, "err", err)
		_ = conn.Close(websocket.StatusPolicyViolation, "expected start event")
		return
	}

	log := s.log.With("call_id", info.ID)
	c := newCall(conn, info, s.inputBuffer, log)
	go c.readLoop(ctx)

	log.Info("call connected", "phone", info.PhoneNumber, "remote", r.RemoteAddr)
	s.handler.HandleCall(ctx, c)
	if err := c.Hangup(); err != nil {
		log.Debug("wsock: hangup", "err", err)
	}
	log.Info("call disconnected")
}

// readStart reads the first message, which must be a start event.
func (s *Server) readStart(ctx context.Context, conn *websocket.Conn) (audio.CallInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.startTimeout)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		return audio.CallInfo{}, fmt.Errorf("wsock: read start: %w", err)
	}
	if typ != websocket.MessageText {
		return audio.CallInfo{}, errors.New("wsock: first message is binary")
	}
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return audio.CallInfo{}, fmt.Errorf("wsock: decode start: %w", err)
	}
	if m.Event != eventStart {
		return audio.CallInfo{}, fmt.Errorf("wsock: first event is %q", m.Event)
	}

	info := audio.CallInfo{ID: m.CallID, PhoneNumber: m.PhoneNumber, CallerName: m.CallerName}
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.PhoneNumber == "" {
		info.PhoneNumber = audio.DefaultPhoneNumber
	}
	return info, nil
}
