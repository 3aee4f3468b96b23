package replica

import (
	"context"
	"sync"
)

// LocalBus connects replicas living in one process. Publishing delivers to every
// subscriber synchronously on the publishing goroutine; a publish made while a
// delivery is in progress is queued behind it, so all replicas observe one order.
type LocalBus struct {
	mu       sync.Mutex
	sessions map[string]*busSession
}

type busSession struct {
	history  *History
	order    uint64
	subs     []*BusConn
	queue    []busItem
	draining bool
}

type busItem struct {
	env    Envelope
	replay *BusConn
}

func NewLocalBus() *LocalBus {
	return &LocalBus{sessions: make(map[string]*busSession)}
}

// Connect returns the transport of one participant in session.
func (b *LocalBus) Connect(session string, participant int64) *BusConn {
	return &BusConn{bus: b, session: session, participant: participant}
}

// History exposes the retained envelopes of a session.
func (b *LocalBus) History(session string) []Envelope {
	b.mu.Lock()
	bs := b.sessionLocked(session)
	b.mu.Unlock()
	return bs.history.Snapshot()
}

func (b *LocalBus) sessionLocked(id string) *busSession {
	bs, ok := b.sessions[id]
	if !ok {
		bs = &busSession{history: NewHistory()}
		b.sessions[id] = bs
	}
	return bs
}

func (b *LocalBus) enqueue(session string, item busItem) {
	b.mu.Lock()
	bs := b.sessionLocked(session)
	bs.queue = append(bs.queue, item)
	if bs.draining {
		b.mu.Unlock()
		return
	}
	bs.draining = true

	for len(bs.queue) > 0 {
		it := bs.queue[0]
		bs.queue = bs.queue[1:]

		var envs []Envelope
		var targets []*BusConn
		if it.replay != nil {
			if it.replay.isClosed() {
				continue
			}
			envs = bs.history.Snapshot()
			targets = []*BusConn{it.replay}
			bs.subs = append(bs.subs, it.replay)
		} else {
			bs.order++
			it.env.Order = bs.order
			bs.history.Record(it.env)
			envs = []Envelope{it.env}
			targets = append([]*BusConn(nil), bs.subs...)
		}
		b.mu.Unlock()

		for _, c := range targets {
			for _, env := range envs {
				c.deliverEnvelope(env)
			}
		}

		b.mu.Lock()
	}
	bs.draining = false
	b.mu.Unlock()
}

func (b *LocalBus) remove(c *BusConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bs := b.sessionLocked(c.session)
	for i, sub := range bs.subs {
		if sub == c {
			bs.subs = append(bs.subs[:i], bs.subs[i+1:]...)
			return
		}
	}
}

// BusConn is one participant's Transport on a LocalBus.
type BusConn struct {
	bus         *LocalBus
	session     string
	participant int64

	mu      sync.Mutex
	deliver func(Envelope)
	closed  bool
}

func (c *BusConn) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if env.Sender != c.participant {
		return ErrForeignKey
	}
	env.Session = c.session
	c.bus.enqueue(c.session, busItem{env: env})
	return nil
}

func (c *BusConn) Subscribe(ctx context.Context, deliver func(Envelope)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.deliver = deliver
	c.mu.Unlock()

	c.bus.enqueue(c.session, busItem{replay: c})
	return nil
}

func (c *BusConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *BusConn) deliverEnvelope(env Envelope) {
	c.mu.Lock()
	fn, closed := c.deliver, c.closed
	c.mu.Unlock()
	if fn != nil && !closed {
		fn(env)
	}
}

// Close detaches the participant and tells the others it left.
func (c *BusConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.bus.remove(c)
	c.bus.enqueue(c.session, busItem{env: Envelope{Session: c.session, Kind: KindLeave, Sender: c.participant}})
	return nil
}
