package wsock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/frontdesk/pkg/audio"
)

const (
	eventStart = "start"
	eventMedia = "media"
	eventStop  = "stop"
)

// message is the JSON envelope of every text message from the peer.
type message struct {
	Event string `json:"event"`

	// start
	CallID      string `json:"call_id,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	CallerName  string `json:"caller_name,omitempty"`

	// media
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

// call is one WebSocket-backed [audio.Call].
type call struct {
	conn  *websocket.Conn
	info  audio.CallInfo
	input chan audio.AudioFrame
	log   *slog.Logger

	mu  sync.Mutex
	err error

	hangupOnce sync.Once
	hangupErr  error
	done       chan struct{}
}

var _ audio.Call = (*call)(nil)

func newCall(conn *websocket.Conn, info audio.CallInfo, buffer int, log *slog.Logger) *call {
	return &call{
		conn:  conn,
		info:  info,
		input: make(chan audio.AudioFrame, buffer),
		log:   log,
		done:  make(chan struct{}),
	}
}

func (c *call) Info() audio.CallInfo { return c.info }

func (c *call) Input() <-chan audio.AudioFrame { return c.input }

func (c *call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// WriteFrame sends pcm as one binary message.
func (c *call) WriteFrame(ctx context.Context, pcm []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("wsock: write frame: %w: call ended", audio.ErrTransport)
	default:
	}
	if err := c.conn.Write(ctx, websocket.MessageBinary, pcm); err != nil {
		return fmt.Errorf("wsock: write frame: %w: %w", audio.ErrTransport, err)
	}
	return nil
}

// Hangup closes the socket with a normal closure. Only the first call has an
// effect.
func (c *call) Hangup() error {
	c.hangupOnce.Do(func() {
		close(c.done)
		c.hangupErr = c.conn.Close(websocket.StatusNormalClosure, "call ended")
	})
	return c.hangupErr
}

func (c *call) hungUp() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readLoop delivers media events to the input channel until the peer stops,
// the socket fails or ctx is cancelled. It always closes the input channel.
func (c *call) readLoop(ctx context.Context) {
	defer close(c.input)

	var ts time.Duration
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			c.finish(ctx, err)
			return
		}
		if typ != websocket.MessageText {
			c.log.Debug("wsock: ignoring binary message", "bytes", len(data))
			continue
		}

		var m message
		if err := json.Unmarshal(data, &m); err != nil {
			c.log.Warn("wsock: malformed message", "err", err)
			continue
		}
		switch m.Event {
		case eventMedia:
			if !audio.SupportedFormat(m.SampleRate, m.Channels) {
				c.log.Warn("wsock: dropping media with unsupported format",
					"sample_rate", m.SampleRate, "channels", m.Channels)
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(m.Payload)
			if err != nil {
				c.log.Warn("wsock: bad media payload", "err", err)
				continue
			}
			frame := audio.AudioFrame{Data: pcm, SampleRate: m.SampleRate, Channels: m.Channels, Timestamp: ts}
			ts += audio.PCMDuration(len(pcm), m.SampleRate, m.Channels)
			select {
			case c.input <- frame:
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		case eventStop:
			c.log.Debug("wsock: stop event")
			return
		case eventStart:
			c.log.Warn("wsock: duplicate start event ignored")
		default:
			c.log.Debug("wsock: unknown event", "event", m.Event)
		}
	}
}

// finish records err unless it reports an orderly end of the call.
func (c *call) finish(ctx context.Context, err error) {
	if c.hungUp() || ctx.Err() != nil {
		return
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	c.mu.Lock()
	c.err = fmt.Errorf("wsock: read: %w: %w", audio.ErrTransport, err)
	c.mu.Unlock()
}
