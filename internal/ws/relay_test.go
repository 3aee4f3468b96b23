package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tetris_together/internal/replica"
	"tetris_together/internal/service"
)

func startRelay(t *testing.T) (string, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("relay-test-secret")

	hub := NewHub(HubOptions{})
	r := gin.New()
	r.GET("/ws", HandleWS(hub, ""))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", hub
}

func token(t *testing.T, participant int64, session string) string {
	t.Helper()
	tok, err := service.GenerateJWT(participant, session)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return tok
}

type peer struct {
	s     *replica.Session
	score *replica.Value[int]
	drops *replica.PerUser[string]
}

func join(t *testing.T, url, session string, participant int64) *peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := replica.DialWS(ctx, url, token(t, participant, session), session, participant, nil)
	if err != nil {
		t.Fatalf("DialWS: %v", err)
	}
	s := replica.NewSession(session, participant, tr, nil)
	p := &peer{
		s:     s,
		score: replica.NewValue(s, "score", 0),
		drops: replica.NewPerUser(s, "dropping", ""),
	}
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRelayReplicatesSession(t *testing.T) {
	url, _ := startRelay(t)
	ctx := context.Background()

	a := join(t, url, "game-1", 1)
	b := join(t, url, "game-1", 2)

	if err := a.score.Set(ctx, 300); err != nil {
		t.Fatalf("Set: %v", err)
	}
	waitFor(t, "score on b", func() bool { return b.score.Get() == 300 })
	waitFor(t, "score on a", func() bool { return a.score.Get() == 300 })

	if err := b.drops.Mine().Set(ctx, "T"); err != nil {
		t.Fatalf("Slot.Set: %v", err)
	}
	waitFor(t, "b's drop on a", func() bool { v, ok := a.drops.Get(2); return ok && v == "T" })

	late := join(t, url, "game-1", 3)
	waitFor(t, "replay on late joiner", func() bool {
		v, _ := late.drops.Get(2)
		return late.score.Get() == 300 && v == "T"
	})

	if err := b.s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitFor(t, "leave on a", func() bool { _, ok := a.drops.Get(2); return !ok })
}

func TestRelayIsolatesSessions(t *testing.T) {
	url, hub := startRelay(t)
	ctx := context.Background()

	a := join(t, url, "game-a", 1)
	b := join(t, url, "game-b", 2)
	if err := a.score.Set(ctx, 100); err != nil {
		t.Fatalf("Set: %v", err)
	}
	waitFor(t, "own write", func() bool { return a.score.Get() == 100 })
	time.Sleep(50 * time.Millisecond)
	if b.score.Get() != 0 {
		t.Fatalf("write leaked into another session")
	}
	if _, ok := hub.Room("game-b"); !ok {
		t.Fatalf("expected a room per session")
	}
}

func TestRelayStampsSenderFromToken(t *testing.T) {
	url, _ := startRelay(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token(t, 5, "game-1"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	forged := replica.Envelope{Key: "dropping", Kind: replica.KindKeyed, Sender: 6, Payload: json.RawMessage(`"Z"`)}
	if err := conn.WriteJSON(forged); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var got replica.Envelope
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Sender != 5 || got.Session != "game-1" {
		t.Fatalf("expected sender stamped from token, got %+v", got)
	}
}

func TestRelayRejectsBadToken(t *testing.T) {
	url, _ := startRelay(t)
	httpURL := "http" + strings.TrimPrefix(url, "ws")

	cases := map[string]int{
		httpURL:                   http.StatusUnauthorized,
		httpURL + "?token=broken": http.StatusUnauthorized,
		httpURL + "?token=" + token(t, 1, "game-1") + "&session=game-2": http.StatusForbidden,
	}
	for u, want := range cases {
		res, err := http.Get(u)
		if err != nil {
			t.Fatalf("GET %s: %v", u, err)
		}
		res.Body.Close()
		if res.StatusCode != want {
			t.Fatalf("GET %s: expected %d got %d", u, want, res.StatusCode)
		}
	}
}
