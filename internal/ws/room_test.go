package ws

import (
	"encoding/json"
	"testing"
	"time"

	"tetris_together/internal/logger"
	"tetris_together/internal/replica"
)

func fakeClient(id string, participant int64) *Client {
	return &Client{ID: id, Participant: participant, Session: "s", Send: make(chan []byte, 16), Registered: make(chan struct{}, 1)}
}

func next(t *testing.T, c *Client) replica.Envelope {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		if !ok {
			t.Fatalf("client %s: send channel closed", c.ID)
		}
		var env replica.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("client %s: bad message %q: %v", c.ID, msg, err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("client %s: no message", c.ID)
	}
	return replica.Envelope{}
}

func TestRoomOrdersAndStampsSender(t *testing.T) {
	r := NewRoom("s", logger.Get())
	go r.Run()
	defer r.Close()

	a, b := fakeClient("a", 1), fakeClient("b", 2)
	r.register(a)
	r.register(b)

	r.Publish(a, replica.Envelope{Key: "score", Kind: replica.KindValue, Sender: 2, Payload: json.RawMessage(`100`)})
	r.Publish(b, replica.Envelope{Key: "score", Kind: replica.KindValue, Sender: 2, Payload: json.RawMessage(`300`)})

	for _, c := range []*Client{a, b} {
		first, second := next(t, c), next(t, c)
		if first.Sender != 1 || first.Order != 1 || string(first.Payload) != "100" {
			t.Fatalf("client %s: unexpected first envelope %+v", c.ID, first)
		}
		if second.Sender != 2 || second.Order != 2 || second.Session != "s" {
			t.Fatalf("client %s: unexpected second envelope %+v", c.ID, second)
		}
	}
}

func TestRoomReplaysHistoryToLateJoiner(t *testing.T) {
	r := NewRoom("s", logger.Get())
	go r.Run()
	defer r.Close()

	a := fakeClient("a", 1)
	r.register(a)
	r.Publish(a, replica.Envelope{Key: "score", Kind: replica.KindValue, Payload: json.RawMessage(`100`)})
	r.Publish(a, replica.Envelope{Key: "score", Kind: replica.KindValue, Payload: json.RawMessage(`400`)})
	r.Publish(a, replica.Envelope{Key: "dropping", Kind: replica.KindKeyed, Payload: json.RawMessage(`{}`)})
	next(t, a)
	next(t, a)
	next(t, a)

	late := fakeClient("late", 3)
	r.register(late)
	got := []replica.Envelope{next(t, late), next(t, late)}
	if string(got[0].Payload) != "400" || got[1].Key != "dropping" || got[1].Sender != 1 {
		t.Fatalf("unexpected replay %+v", got)
	}
}

func TestRoomParticipantsListedOnce(t *testing.T) {
	r := NewRoom("s", logger.Get())
	go r.Run()
	defer r.Close()

	r.register(fakeClient("b", 7))
	r.register(fakeClient("a1", 3))
	r.register(fakeClient("a2", 3))

	got := r.Participants()
	if len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Fatalf("expected [3 7], got %v", got)
	}
}

func TestRoomAnnouncesLeave(t *testing.T) {
	r := NewRoom("s", logger.Get())
	go r.Run()
	defer r.Close()

	a, b := fakeClient("a", 1), fakeClient("b", 2)
	b2 := fakeClient("b2", 2)
	r.register(a)
	r.register(b)
	r.register(b2)

	// the participant is still connected through b2
	r.unregister(b)
	r.unregister(b2)

	env := next(t, a)
	if env.Kind != replica.KindLeave || env.Sender != 2 {
		t.Fatalf("expected leave of 2, got %+v", env)
	}
	select {
	case msg := <-a.Send:
		t.Fatalf("expected a single leave, got %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
	if _, ok := <-b.Send; ok {
		t.Fatalf("expected b's send channel closed")
	}
}

func TestHubCleanupStaleRooms(t *testing.T) {
	h := NewHub(HubOptions{RoomTTL: time.Minute})
	defer h.Close()

	h.Rooms["idle"] = NewRoom("idle", h.log)
	busy := NewRoom("busy", h.log)
	busy.clients[fakeClient("a", 1)] = struct{}{}
	h.Rooms["busy"] = busy

	if n := h.cleanupStaleRooms(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Fatalf("expected 1 room removed, got %d", n)
	}
	if _, ok := h.Room("idle"); ok {
		t.Fatalf("idle room should be gone")
	}
	if _, ok := h.Room("busy"); !ok {
		t.Fatalf("busy room should stay")
	}
}

func TestHubStats(t *testing.T) {
	h := NewHub(HubOptions{})
	h.Join(fakeClient("a1", 1))
	h.Join(fakeClient("a2", 1))

	rooms, conns, closed := h.Stats()
	if rooms != 1 || conns != 2 || closed {
		t.Fatalf("unexpected stats rooms=%d conns=%d closed=%v", rooms, conns, closed)
	}

	h.Close()
	rooms, _, closed = h.Stats()
	if rooms != 0 || !closed {
		t.Fatalf("after close: rooms=%d closed=%v", rooms, closed)
	}
}
