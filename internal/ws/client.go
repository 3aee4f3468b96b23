package ws

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tetris_together/internal/replica"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 64 << 10
)

// Client is one websocket connection of a participant.
type Client struct {
	ID          string
	Participant int64
	Session     string
	Conn        *websocket.Conn
	Send        chan []byte

	Hub        *Hub
	Room       *Room
	Registered chan struct{}
	Done       chan struct{}
	log        *slog.Logger
}

func NewClient(participant int64, session string, conn *websocket.Conn, hub *Hub) *Client {
	id := uuid.NewString()
	return &Client{
		ID:          id,
		Participant: participant,
		Session:     session,
		Conn:        conn,
		Send:        make(chan []byte, 1024),
		Hub:         hub,
		Registered:  make(chan struct{}, 1),
		Done:        make(chan struct{}),
		log:         hub.log.With("session", session, "participant", participant, "conn", id),
	}
}

// Run joins the session room and pumps messages until the connection ends.
func (c *Client) Run() {
	c.Room = c.Hub.Join(c)
	if c.Room == nil {
		c.log.Warn("Client.Run: room closed before join")
		_ = c.Conn.Close()
		close(c.Done)
		return
	}

	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.OnDisconnect(c)
		_ = c.Conn.Close()
		close(c.Done)
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("Client.readPump: read error", "error", err)
			}
			return
		}

		var env replica.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.log.Warn("Client.readPump: bad envelope", "bytes", len(msg), "error", err)
			continue
		}
		switch env.Kind {
		case replica.KindValue, replica.KindAction, replica.KindKeyed:
		default:
			// leaves are announced by the relay only
			c.log.Warn("Client.readPump: rejected kind", "kind", env.Kind)
			continue
		}
		if !c.Room.Publish(c, env) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("Client.writePump: write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
