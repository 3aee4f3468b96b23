package replica

import (
	"context"
	"fmt"
	"slices"

	"github.com/kamstrup/intmap"
)

// PerUser replicates one value per participant. Entries are keyed by the sender of
// each envelope, so a replica can only ever write its own entry.
type PerUser[T any] struct {
	s       *Session
	key     string
	codec   Codec[T]
	initial T

	values   *intmap.Map[int64, T]
	watchers []func(participant int64)
}

func NewPerUser[T any](s *Session, key string, initial T) *PerUser[T] {
	p := &PerUser[T]{
		s:       s,
		key:     key,
		codec:   JSONCodec[T]{},
		initial: initial,
		values:  intmap.New[int64, T](8),
	}
	s.register(key, p)
	return p
}

func (p *PerUser[T]) Key() string { return p.key }

// Mine returns the write capability for this replica's own entry.
func (p *PerUser[T]) Mine() *Slot[T] {
	return &Slot[T]{p: p, owner: p.s.participant}
}

func (p *PerUser[T]) Get(participant int64) (T, bool) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	return p.values.Get(participant)
}

// All copies the current entries.
func (p *PerUser[T]) All() map[int64]T {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	out := make(map[int64]T, p.values.Len())
	p.values.ForEach(func(id int64, v T) bool {
		out[id] = v
		return true
	})
	return out
}

// Participants lists the ids that currently have an entry, ascending.
func (p *PerUser[T]) Participants() []int64 {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	ids := make([]int64, 0, p.values.Len())
	p.values.ForEach(func(id int64, _ T) bool {
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)
	return ids
}

// Watch registers fn to run whenever an entry changes or disappears.
func (p *PerUser[T]) Watch(fn func(participant int64)) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.watchers = append(p.watchers, fn)
}

func (p *PerUser[T]) kind() Kind { return KindKeyed }

func (p *PerUser[T]) apply(env Envelope) func() {
	v, err := p.codec.Decode(env.Payload)
	if err != nil {
		p.s.log.Warn("PerUser.apply: bad payload", "key", p.key, "sender", env.Sender, "error", err)
		return nil
	}
	p.values.Put(env.Sender, v)
	return p.notify(env.Sender)
}

func (p *PerUser[T]) forget(participant int64) func() {
	if !p.values.Del(participant) {
		return nil
	}
	return p.notify(participant)
}

func (p *PerUser[T]) notify(participant int64) func() {
	if len(p.watchers) == 0 {
		return nil
	}
	watchers := append([]func(int64){}, p.watchers...)
	return func() {
		for _, w := range watchers {
			w(participant)
		}
	}
}

// Slot is the capability to read and write one participant's own entry.
type Slot[T any] struct {
	p     *PerUser[T]
	owner int64
}

func (sl *Slot[T]) Owner() int64 { return sl.owner }

// Get returns the owner's entry, or the initial value before the first write lands.
func (sl *Slot[T]) Get() T {
	if v, ok := sl.p.Get(sl.owner); ok {
		return v
	}
	return sl.p.initial
}

func (sl *Slot[T]) Set(ctx context.Context, v T) error {
	if sl.owner != sl.p.s.participant {
		return ErrForeignKey
	}
	data, err := sl.p.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("replica: encode %s: %w", sl.p.key, err)
	}
	return sl.p.s.publish(ctx, sl.p.key, KindKeyed, data, true)
}
