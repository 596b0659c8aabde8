// Package wsserver upgrades incoming HTTP connections to websockets and
// drives one server.Loop per connection, translating between websocket
// frames and the byte-slice channels server.Loop.Run consumes.
//
// Grounded on katagun-webpa-common/device/manager.go's startPumps/readPump/
// writePump/pumpClose shape: a websocket.Upgrader, a read goroutine and a
// write goroutine per connection, a sync.Once-guarded close, and a ping
// ticker driven from the write side.
package wsserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/gorilla/websocket"
	"github.com/xmidt-org/idcp/devicemanager"
	"github.com/xmidt-org/idcp/internal/xlog"
	"github.com/xmidt-org/idcp/protocol"
	"github.com/xmidt-org/idcp/server"
)

// connBacklog bounds each connection's in/out channels, per spec.md §4.6's
// "bounded by the channel capacity" ordering note.
const connBacklog = 64

// wsPingPeriod is the websocket-layer keepalive interval, distinct from the
// wire protocol's own Ping message: this one guards the TCP connection
// itself against silent death, mirroring the teacher's pingTicker in
// writePump.
const wsPingPeriod = 30 * time.Second

// Server upgrades HTTP connections to websockets, one server.Loop per
// connection, all sharing the same Device Manager, Protocol Registry, and
// discovery Scanners.
type Server struct {
	Devices     *devicemanager.Manager
	Registry    *protocol.Registry
	Scanners    []server.Scanner
	PingTimeout time.Duration
	Logger      log.Logger
	Upgrader    websocket.Upgrader
}

// New constructs a Server ready to be mounted as an http.Handler.
func New(devices *devicemanager.Manager, registry *protocol.Registry, scanners []server.Scanner, pingTimeout time.Duration, logger log.Logger) *Server {
	return &Server{
		Devices:     devices,
		Registry:    registry,
		Scanners:    scanners,
		PingTimeout: pingTimeout,
		Logger:      logger,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		xlog.Error(s.Logger).Log(xlog.MessageKey, "websocket upgrade failed", xlog.ErrorKey, err)
		return
	}

	s.handleConnection(r.Context(), conn)
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan []byte, connBacklog)
	out := make(chan []byte, connBacklog)

	closeOnce := new(sync.Once)
	closeConn := func() { closeOnce.Do(func() { conn.Close() }) }
	defer closeConn()

	go s.readPump(conn, in, cancel)
	go s.writePump(connCtx, conn, out, closeConn)

	loop := server.NewLoop(s.Devices, s.Registry, s.Scanners, s.PingTimeout, s.Logger)
	if err := loop.Run(connCtx, in, out); err != nil {
		xlog.Info(s.Logger).Log(xlog.MessageKey, "loop exited", xlog.ErrorKey, err)
	}
}

// readPump decodes incoming websocket frames onto in until the connection
// errors, then closes in so Loop.Run observes EOF.
func (s *Server) readPump(conn *websocket.Conn, in chan<- []byte, cancel context.CancelFunc) {
	defer close(in)
	defer cancel()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		in <- data
	}
}

// writePump delivers outgoing frames from out to the websocket and sends a
// periodic websocket-layer ping to detect a dead TCP connection.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, out <-chan []byte, closeConn func()) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer closeConn()

	for {
		select {
		case <-ctx.Done():
			return

		case data, ok := <-out:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
