package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linguachat/internal/logger"
)

const (
	connChunkBuffer = 64
	// StopCommand ends a recording from the client side.
	StopCommand = "stop"
)

// ConnDevice is a browser microphone streaming over a WebSocket: binary frames
// are audio chunks, a "stop" text frame or a close ends the input.
// The connection owner keeps writing to conn; ConnDevice only reads.
type ConnDevice struct {
	conn     *websocket.Conn
	maxChunk int64

	mu     sync.Mutex
	opened bool
}

func NewConnDevice(conn *websocket.Conn, maxChunk int64) *ConnDevice {
	return &ConnDevice{conn: conn, maxChunk: maxChunk}
}

func (d *ConnDevice) Open(ctx context.Context) (Stream, error) {
	if d.conn == nil {
		return nil, ErrNoDevice
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return nil, errors.New("capture: connection already streaming")
	}
	d.opened = true
	if d.maxChunk > 0 {
		d.conn.SetReadLimit(d.maxChunk)
	}
	s := &connStream{
		conn:   d.conn,
		chunks: make(chan []byte, connChunkBuffer),
		done:   make(chan struct{}),
	}
	go s.readLoop(ctx)
	return s, nil
}

type connStream struct {
	conn   *websocket.Conn
	chunks chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *connStream) Chunks() <-chan []byte { return s.chunks }

func (s *connStream) readLoop(ctx context.Context) {
	defer close(s.chunks)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !s.closed() {
				logger.Errorf("capture: ws read: %v", err)
			}
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			select {
			case s.chunks <- data:
			case <-s.done:
				return
			}
		case websocket.TextMessage:
			if strings.EqualFold(strings.TrimSpace(string(data)), StopCommand) {
				return
			}
		}
	}
}

func (s *connStream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close unblocks the pending read; the socket itself stays open for replies.
func (s *connStream) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return s.conn.SetReadDeadline(time.Now())
}
