// Package client implements the Client Device Façade from spec.md §4.7: a
// high-level handle applications hold for a connected device, plus the
// Client that owns the connection to a server, correlates replies by
// message id, and fans out unsolicited notifications to every Device it
// has published.
//
// Grounded bit-for-bit on original_source/buttplug/src/client/device.rs:
// VibrateCommand/RotateCommand/LinearCommand convenience enums,
// device_connected/client_connected atomics, allowed_messages gate, and
// the send-expect-Ok request shape.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Connector is the transport a Client speaks the wire protocol over. A
// Connector carries already-framed wire arrays (spec.md §6) in both
// directions; it knows nothing about message ids or device semantics.
//
// Grounded on server/wsserver's readPump/writePump split, mirrored here
// for the dial side of the same websocket.
type Connector interface {
	// Send delivers one already-encoded wire array to the server.
	Send(ctx context.Context, data []byte) error
	// Receive blocks until the next wire array arrives from the server,
	// ctx is cancelled, or the connector is closed.
	Receive(ctx context.Context) ([]byte, error)
	// Close releases the underlying transport. Receive returns an error
	// after Close.
	Close() error
}

// WSConnector is a Connector backed by a client-mode gorilla/websocket
// connection, the dial-side counterpart of server/wsserver's Server.
type WSConnector struct {
	conn   *websocket.Conn
	closed chan struct{}
}

// DialWS connects to a server.wsserver-compatible endpoint and returns a
// ready-to-use Connector.
func DialWS(ctx context.Context, url string, header http.Header) (*WSConnector, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &WSConnector{conn: conn, closed: make(chan struct{})}, nil
}

func (c *WSConnector) Send(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConnector) Receive(ctx context.Context) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		_, data, err := c.conn.ReadMessage()
		done <- result{data, err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, websocket.ErrCloseSent
	}
}

func (c *WSConnector) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return c.conn.Close()
}

// ChannelConnector is an in-process Connector wired directly to a
// server.Loop's in/out byte channels, for an application embedding both
// the server and client in one binary without a real socket.
type ChannelConnector struct {
	out    chan<- []byte
	in     <-chan []byte
	closed chan struct{}
}

// NewChannelConnector builds a Connector that writes onto toServer and
// reads from fromServer. toServer and fromServer are a Loop.Run's in/out
// pair (or the reverse ends of them).
func NewChannelConnector(toServer chan<- []byte, fromServer <-chan []byte) *ChannelConnector {
	return &ChannelConnector{out: toServer, in: fromServer, closed: make(chan struct{})}
}

func (c *ChannelConnector) Send(ctx context.Context, data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return websocket.ErrCloseSent
	}
}

func (c *ChannelConnector) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, websocket.ErrCloseSent
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, websocket.ErrCloseSent
	}
}

func (c *ChannelConnector) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}
