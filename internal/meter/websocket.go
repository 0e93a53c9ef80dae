package meter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// receiveQueueSize buffers inbound frames between the reader goroutine
// and Receive. The meter emits a frame every ~2.5 seconds, so a small
// buffer absorbs dispatch hiccups without unbounded growth.
const receiveQueueSize = 16

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// WebsocketDialer opens websocket transports to a serial-to-websocket
// meter bridge. The zero value is ready to use.
type WebsocketDialer struct{}

// Dial connects to the bridge at endpoint (a ws:// URL) and starts the
// transport's reader goroutine.
func (WebsocketDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	t := &websocketTransport{
		conn:     conn,
		messages: make(chan []byte, receiveQueueSize),
		pong:     make(chan struct{}, 1),
		done:     newCloseOnce(),
	}

	conn.SetPongHandler(func(string) error {
		select {
		case t.pong <- struct{}{}:
		default:
		}
		return nil
	})

	go t.readLoop()

	return t, nil
}

// websocketTransport adapts a gorilla websocket connection to the
// Transport interface.
//
// A dedicated reader goroutine pushes messages onto a channel so that
// Receive can time out per call without poisoning the connection:
// gorilla read errors are sticky, so a read deadline cannot be used to
// implement a soft timeout.
type websocketTransport struct {
	conn     *websocket.Conn
	messages chan []byte
	pong     chan struct{}
	done     *closeOnce
}

// readLoop pumps inbound messages until the connection dies. Pong
// frames are handled by the pong handler during ReadMessage. The bridge
// only ever sends binary frames; anything else is skipped.
func (t *websocketTransport) readLoop() {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.Close()
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		select {
		case t.messages <- data:
		case <-t.done.Done():
			return
		}
	}
}

func (t *websocketTransport) Receive(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-t.messages:
		return data, nil
	case <-t.done.Done():
		// Drain anything the reader queued before it noticed the close.
		select {
		case data := <-t.messages:
			return data, nil
		default:
		}
		return nil, ErrTransportClosed
	case <-timer.C:
		return nil, ErrReceiveTimeout
	}
}

func (t *websocketTransport) Ping(timeout time.Duration) error {
	if t.Closed() {
		return ErrTransportClosed
	}

	// Discard a stale pong from an earlier probe.
	select {
	case <-t.pong:
	default:
	}

	deadline := time.Now().Add(timeout)
	if err := t.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("%w: ping write: %w", ErrTransportClosed, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.pong:
		return nil
	case <-t.done.Done():
		return ErrTransportClosed
	case <-timer.C:
		return ErrPingTimeout
	}
}

func (t *websocketTransport) Close() error {
	t.done.Close()
	return t.conn.Close()
}

func (t *websocketTransport) Closed() bool {
	select {
	case <-t.done.Done():
		return true
	default:
		return false
	}
}
