package replica

import (
	"context"
	"fmt"
)

// ReducerFunc computes the next state from the current one. It must be pure:
// every replica runs it on its own copy and has to reach the same result.
type ReducerFunc[S, A any] func(state S, action A) S

// Absorber is implemented by actions whose resulting state does not depend on the
// previous one. Transports may then forget the actions recorded before it.
type Absorber interface {
	Absorbs() bool
}

// Reducer replicates a state by broadcasting actions instead of states.
type Reducer[S, A any] struct {
	s     *Session
	key   string
	fn    ReducerFunc[S, A]
	codec Codec[A]

	state     S
	observers []func(prev, next S, action A)
}

// NewReducer registers a reducer channel under key. A nil codec means JSON.
func NewReducer[S, A any](s *Session, key string, fn ReducerFunc[S, A], initial S, codec Codec[A]) *Reducer[S, A] {
	if codec == nil {
		codec = JSONCodec[A]{}
	}
	r := &Reducer[S, A]{s: s, key: key, fn: fn, codec: codec, state: initial}
	s.register(key, r)
	return r
}

func (r *Reducer[S, A]) Key() string { return r.key }

func (r *Reducer[S, A]) State() S {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.state
}

func (r *Reducer[S, A]) Dispatch(ctx context.Context, action A) error {
	data, err := r.codec.Encode(action)
	if err != nil {
		return fmt.Errorf("replica: encode %s action: %w", r.key, err)
	}
	absorbs := false
	if a, ok := any(action).(Absorber); ok {
		absorbs = a.Absorbs()
	}
	return r.s.publish(ctx, r.key, KindAction, data, absorbs)
}

// OnApply registers fn to run after each applied action, outside the session lock.
func (r *Reducer[S, A]) OnApply(fn func(prev, next S, action A)) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Reducer[S, A]) kind() Kind { return KindAction }

func (r *Reducer[S, A]) apply(env Envelope) func() {
	action, err := r.codec.Decode(env.Payload)
	if err != nil {
		// replicas running different reducers would silently drift apart
		panic(fmt.Sprintf("replica: %s: undecodable action from %d: %v", r.key, env.Sender, err))
	}
	prev := r.state
	r.state = r.fn(prev, action)

	if len(r.observers) == 0 {
		return nil
	}
	next := r.state
	observers := append([]func(prev, next S, action A){}, r.observers...)
	return func() {
		for _, o := range observers {
			o(prev, next, action)
		}
	}
}

func (r *Reducer[S, A]) forget(int64) func() { return nil }
