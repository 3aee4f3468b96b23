package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tetris_together/internal/logger"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsMaxMessageSize = 64 << 10
)

// WSTransport replicates a session through the relay server over a websocket.
// The relay orders envelopes, stamps the sender from the token and replays the
// session history on connect.
type WSTransport struct {
	conn        *websocket.Conn
	session     string
	participant int64
	log         *slog.Logger

	writeMu   sync.Mutex
	mu        sync.Mutex
	started   bool
	done      chan struct{}
	closeOnce sync.Once
}

// DialWS connects to the relay at rawURL (ws:// or wss://) as the holder of token.
func DialWS(ctx context.Context, rawURL, token, session string, participant int64, log *slog.Logger) (*WSTransport, error) {
	if log == nil {
		log = logger.Get()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("session", session)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	t := &WSTransport{
		conn:        conn,
		session:     session,
		participant: participant,
		log:         log.With("transport", "ws", "session", session),
		done:        make(chan struct{}),
	}
	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(wsWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	return t, nil
}

// Done is closed once the connection to the relay is gone.
func (t *WSTransport) Done() <-chan struct{} { return t.done }

func (t *WSTransport) Publish(ctx context.Context, env Envelope) error {
	if env.Sender != t.participant {
		return ErrForeignKey
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	env.Session = t.session

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("relay write: %w", err)
	}
	return nil
}

func (t *WSTransport) Subscribe(ctx context.Context, deliver func(Envelope)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return errors.New("ws transport: already subscribed")
	}
	t.started = true

	_ = t.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	go t.readPump(deliver)
	return nil
}

func (t *WSTransport) readPump(deliver func(Envelope)) {
	defer t.closeOnce.Do(func() { close(t.done) })

	for {
		_, msg, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Warn("WSTransport.readPump: connection lost", "error", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.log.Warn("WSTransport.readPump: bad frame", "error", err)
			continue
		}
		deliver(env)
	}
}

// Close says goodbye to the relay. The relay announces the departure to the others.
func (t *WSTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
	t.writeMu.Unlock()

	err := t.conn.Close()
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		t.closeOnce.Do(func() { close(t.done) })
	}
	<-t.done
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
