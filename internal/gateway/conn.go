package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lockin-app/lockin/internal/room"
)

// ConnectionConfig holds websocket timing and buffer settings.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default websocket settings.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Restrict in production.
			return true
		},
	}
}

// connection binds one websocket to one room subscription. The write pump is
// the only writer on the socket; the read pump feeds member intents to the
// timer authority.
type connection struct {
	userID  string
	podCode string
	ws      *websocket.Conn
	sub     *room.Subscriber
	svc     *Service
	send    chan []byte
}

// writePump forwards room events to the socket and keeps the connection
// alive with pings. Exits when the subscription or socket closes.
func (c *connection) writePump() {
	ticker := time.NewTicker(c.svc.connCfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.sub.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.Events():
			c.ws.SetWriteDeadline(time.Now().Add(c.svc.connCfg.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Str("pod_code", c.podCode).Msg("failed to marshal event")
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("pod_code", c.podCode).Msg("websocket write failed")
				return
			}

		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.svc.connCfg.WriteTimeout))
			if !ok {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.svc.connCfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes member messages and applies them as timer intents.
// Disconnecting a member only tears down its own subscription.
func (c *connection) readPump() {
	defer func() {
		c.sub.Close()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.svc.connCfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.svc.connCfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.svc.connCfg.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("pod_code", c.podCode).Str("user_id", c.userID).Msg("unexpected websocket close")
			}
			return
		}
		c.svc.handleIntent(c, raw)
		c.ws.SetReadDeadline(time.Now().Add(c.svc.connCfg.ReadTimeout))
	}
}
