package notify

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slot-automator/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Stream serves the bus over WebSocket, one JSON message per notification
type Stream struct {
	bus      *Bus
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewStream creates a handler streaming bus. The dashboard is served from a
// different origin, so any origin is accepted.
func NewStream(bus *Bus, logger *logging.Logger) *Stream {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Stream{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.WithComponent("notify-stream"),
	}
}

// ServeHTTP upgrades the connection and pumps notifications until either side closes
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	s.logger.WithField("remote", r.RemoteAddr).Debug("notification subscriber connected")

	// reader: handles pongs and detects the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case n, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(n); err != nil {
				s.logger.WithError(err).Debug("notification write failed")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
