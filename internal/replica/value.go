package replica

import (
	"context"
	"fmt"
)

// Value is a last-writer-wins replicated field. Set broadcasts; the local copy only
// changes when the update comes back through the transport, so every replica
// applies writes in the same order.
type Value[T any] struct {
	s     *Session
	key   string
	codec Codec[T]

	val      T
	watchers []func(prev, next T)
}

func NewValue[T any](s *Session, key string, initial T) *Value[T] {
	v := &Value[T]{s: s, key: key, codec: JSONCodec[T]{}, val: initial}
	s.register(key, v)
	return v
}

func (v *Value[T]) Key() string { return v.key }

// Get returns the latest delivered value. Treat reference types as read-only.
func (v *Value[T]) Get() T {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.val
}

func (v *Value[T]) Set(ctx context.Context, val T) error {
	data, err := v.codec.Encode(val)
	if err != nil {
		return fmt.Errorf("replica: encode %s: %w", v.key, err)
	}
	return v.s.publish(ctx, v.key, KindValue, data, true)
}

// Watch registers fn to run after every delivered write, outside the session lock.
func (v *Value[T]) Watch(fn func(prev, next T)) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.watchers = append(v.watchers, fn)
}

func (v *Value[T]) kind() Kind { return KindValue }

func (v *Value[T]) apply(env Envelope) func() {
	next, err := v.codec.Decode(env.Payload)
	if err != nil {
		v.s.log.Warn("Value.apply: bad payload", "key", v.key, "sender", env.Sender, "error", err)
		return nil
	}
	prev := v.val
	v.val = next

	if len(v.watchers) == 0 {
		return nil
	}
	watchers := append([]func(prev, next T){}, v.watchers...)
	return func() {
		for _, w := range watchers {
			w(prev, next)
		}
	}
}

func (v *Value[T]) forget(int64) func() { return nil }
