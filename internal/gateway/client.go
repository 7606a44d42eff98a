package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"grainbridge/internal/logging"
)

const (
	// writeWait bounds a single frame write to a client.
	writeWait = 10 * time.Second
	// pongWait is how long a client may stay silent before the read side
	// gives up on it.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so pings keep the deadline
	// fresh on idle connections.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageBytes caps inbound duplex messages. Batches of a few
	// hundred OSC requests fit comfortably.
	maxMessageBytes = 256 * 1024
)

// client is one connected duplex channel. All writes to the connection go
// through the send queue and the write pump; gorilla connections do not
// tolerate concurrent writers.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// trySend queues data without blocking. A full queue means the client is
// not keeping up; the caller decides whether that loses a push or an ack.
func (c *client) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump consumes inbound duplex messages until the connection drops.
// It runs on the HTTP handler goroutine.
func (s *Server) readPump(c *client) {
	defer s.removeClient(c)

	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.metrics.messagesIn.Inc()
		s.handleClientMessage(c, data)
	}
}

// writePump is the sole writer to the connection. It drains the send queue
// and keeps the connection alive with periodic pings.
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.removeClient(c)

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		case <-s.shutdown:
			return
		}
	}
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	_, present := s.clients[c.id]
	delete(s.clients, c.id)
	count := len(s.clients)
	s.clientsMu.Unlock()

	c.close()
	if !present {
		return
	}
	s.metrics.clientsConnected.Set(float64(count))
	s.logger.Debug("client disconnected",
		logging.String(logging.FieldClientID, c.id),
		logging.Int("clients", count))
}
