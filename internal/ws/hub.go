package ws

import (
	"log/slog"
	"sync"
	"time"

	"tetris_together/internal/logger"
)

const (
	cleanupEvery = 10 * time.Minute
	// defaultRoomTTL is how long an empty room keeps its history for rejoining players.
	defaultRoomTTL = time.Hour
)

type HubOptions struct {
	RoomTTL time.Duration
	Logger  *slog.Logger
}

// Hub owns one Room per session id.
type Hub struct {
	Rooms map[string]*Room
	mu    sync.RWMutex

	roomTTL time.Duration
	log     *slog.Logger
	stop    chan struct{}
	once    sync.Once
}

func NewHub(opts HubOptions) *Hub {
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = defaultRoomTTL
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	return &Hub{
		Rooms:   make(map[string]*Room),
		roomTTL: opts.RoomTTL,
		log:     opts.Logger.With("component", "hub"),
		stop:    make(chan struct{}),
	}
}

// Join registers c in the room of its session, creating the room on first use.
func (h *Hub) Join(c *Client) *Room {
	h.mu.Lock()
	room, ok := h.Rooms[c.Session]
	if !ok {
		room = NewRoom(c.Session, h.log)
		h.Rooms[c.Session] = room
		h.log.Info("Hub.Join: created room", "session", c.Session, "rooms", len(h.Rooms))
		go room.Run()
	}
	h.mu.Unlock()

	if !room.register(c) {
		return nil
	}
	return room
}

// Room returns the room of session if it exists.
func (h *Hub) Room(session string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.Rooms[session]
	return r, ok
}

// Stats reports the open rooms, the live connections across them and whether the
// hub has been closed.
func (h *Hub) Stats() (rooms, conns int, closed bool) {
	select {
	case <-h.stop:
		closed = true
	default:
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.Rooms {
		conns += r.connections()
	}
	return len(h.Rooms), conns, closed
}

func (h *Hub) OnDisconnect(c *Client) {
	if c.Room == nil {
		return
	}
	c.Room.unregister(c)
}

// StartCleanup periodically drops rooms that have been empty longer than the TTL.
func (h *Hub) StartCleanup() {
	go func() {
		ticker := time.NewTicker(cleanupEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.cleanupStaleRooms(time.Now())
			case <-h.stop:
				return
			}
		}
	}()
}

func (h *Hub) cleanupStaleRooms(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, room := range h.Rooms {
		if room.idleSince(now) > h.roomTTL {
			delete(h.Rooms, id)
			room.Close()
			removed++
			h.log.Info("Hub.cleanup: removed stale room", "session", id)
		}
	}
	return removed
}

// Close stops the cleanup loop and every room.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.stop) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.Rooms {
		room.Close()
		delete(h.Rooms, id)
	}
}
