package ws

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"tetris_together/internal/replica"
)

const roomQueue = 256

type inbound struct {
	from *Client
	env  replica.Envelope
}

// Room relays the envelopes of one session. Run is the only goroutine that
// touches the history and the order counter, so every client receives the
// session in one order.
type Room struct {
	ID string

	Register   chan *Client
	Disconnect chan *Client
	Inbound    chan inbound

	mu        sync.RWMutex
	clients   map[*Client]struct{}
	createdAt time.Time
	emptyAt   time.Time

	history *replica.History
	order   uint64
	log     *slog.Logger

	quit      chan struct{}
	closeOnce sync.Once
}

func NewRoom(id string, log *slog.Logger) *Room {
	now := time.Now()
	return &Room{
		ID:         id,
		Register:   make(chan *Client, 16),
		Disconnect: make(chan *Client, 16),
		Inbound:    make(chan inbound, roomQueue),
		clients:    make(map[*Client]struct{}),
		createdAt:  now,
		emptyAt:    now,
		history:    replica.NewHistory(),
		log:        log.With("session", id),
		quit:       make(chan struct{}),
	}
}

func (r *Room) Run() {
	r.log.Debug("Room.Run: starting")
	for {
		select {
		case c := <-r.Register:
			r.handleRegister(c)
		case c := <-r.Disconnect:
			r.handleDisconnect(c)
		case in := <-r.Inbound:
			r.relay(in)
		case <-r.quit:
			r.mu.Lock()
			for c := range r.clients {
				r.drop(c)
			}
			r.mu.Unlock()
			r.log.Debug("Room.Run: stopped")
			return
		}
	}
}

func (r *Room) Close() {
	r.closeOnce.Do(func() { close(r.quit) })
}

// register hands c to Run and waits until its history replay is queued.
func (r *Room) register(c *Client) bool {
	select {
	case r.Register <- c:
	case <-r.quit:
		return false
	}
	select {
	case <-c.Registered:
		return true
	case <-r.quit:
		return false
	}
}

func (r *Room) unregister(c *Client) {
	select {
	case r.Disconnect <- c:
	case <-r.quit:
	}
}

// Publish queues an envelope from c. It reports false once the room is closed.
func (r *Room) Publish(c *Client, env replica.Envelope) bool {
	select {
	case r.Inbound <- inbound{from: c, env: env}:
		return true
	case <-r.quit:
		return false
	}
}

// Participants lists the connected participant ids, ascending. A participant with
// several connections appears once.
func (r *Room) Participants() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.clients))
	for c := range r.clients {
		ids = append(ids, c.Participant)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (r *Room) connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Room) idleSince(now time.Time) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.clients) > 0 {
		return 0
	}
	return now.Sub(r.emptyAt)
}

// handleRegister replays the retained history to the newcomer before it sees
// any live envelope.
func (r *Room) handleRegister(c *Client) {
	backlog := r.history.Snapshot()

	r.mu.Lock()
	r.clients[c] = struct{}{}
	count := len(r.clients)
	r.mu.Unlock()
	connectedClients.Inc()

	for _, env := range backlog {
		if !r.sendTo(c, env) {
			r.leaveIfGone(c.Participant)
			break
		}
	}
	r.log.Info("Room.handleRegister: joined", "participant", c.Participant, "conn", c.ID, "replayed", len(backlog), "clients", count)
	select {
	case c.Registered <- struct{}{}:
	default:
	}
}

func (r *Room) handleDisconnect(c *Client) {
	r.mu.Lock()
	if _, ok := r.clients[c]; !ok {
		r.mu.Unlock()
		return
	}
	r.drop(c)
	r.mu.Unlock()

	r.log.Info("Room.handleDisconnect: left", "participant", c.Participant, "conn", c.ID)
	r.leaveIfGone(c.Participant)
}

// leaveIfGone tells everyone that participant left once its last connection is gone.
func (r *Room) leaveIfGone(participant int64) {
	r.mu.RLock()
	for c := range r.clients {
		if c.Participant == participant {
			r.mu.RUnlock()
			return
		}
	}
	r.mu.RUnlock()
	r.relay(inbound{env: replica.Envelope{Kind: replica.KindLeave, Sender: participant}})
}

// drop removes c; r.mu must be held.
func (r *Room) drop(c *Client) {
	delete(r.clients, c)
	close(c.Send)
	connectedClients.Dec()
	if len(r.clients) == 0 {
		r.emptyAt = time.Now()
	}
}

func (r *Room) relay(in inbound) {
	env := in.env
	if in.from != nil {
		// identity comes from the token, never from the payload
		if env.Sender != in.from.Participant {
			r.log.Debug("Room.relay: restamped sender", "claimed", env.Sender, "participant", in.from.Participant)
		}
		env.Sender = in.from.Participant
	}
	env.Session = r.ID
	r.order++
	env.Order = r.order
	r.history.Record(env)
	relayedEnvelopes.WithLabelValues(string(env.Kind)).Inc()

	msg, err := json.Marshal(env)
	if err != nil {
		r.log.Error("Room.relay: marshal", "error", err)
		return
	}

	var dropped []int64
	r.mu.Lock()
	for c := range r.clients {
		select {
		case c.Send <- msg:
		default:
			// a client that cannot keep up would miss envelopes and diverge; it has to rejoin
			r.log.Warn("Room.relay: slow client dropped", "participant", c.Participant, "conn", c.ID)
			r.drop(c)
			slowClients.Inc()
			dropped = append(dropped, c.Participant)
		}
	}
	r.mu.Unlock()

	for _, id := range dropped {
		r.leaveIfGone(id)
	}
}

func (r *Room) sendTo(c *Client, env replica.Envelope) bool {
	msg, err := json.Marshal(env)
	if err != nil {
		r.log.Error("Room.sendTo: marshal", "error", err)
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		r.log.Warn("Room.sendTo: slow client dropped during replay", "participant", c.Participant)
		r.drop(c)
		slowClients.Inc()
		return false
	}
}
