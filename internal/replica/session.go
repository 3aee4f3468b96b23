package replica

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"tetris_together/internal/logger"
)

// channel is one replicated key living inside a Session. apply and forget run with
// the session lock held and return an optional callback to run after it is released.
type channel interface {
	kind() Kind
	apply(env Envelope) func()
	forget(participant int64) func()
}

// Session is one replica of a shared game session. Values, reducers and per-user
// maps are registered on it before Open, then every delivered envelope is applied
// to the matching key.
type Session struct {
	id          string
	participant int64
	transport   Transport
	log         *slog.Logger

	mu       sync.RWMutex
	channels map[string]channel

	seq    atomic.Uint64
	opened atomic.Bool
	closed atomic.Bool
}

func NewSession(id string, participant int64, t Transport, log *slog.Logger) *Session {
	if log == nil {
		log = logger.Get()
	}
	return &Session{
		id:          id,
		participant: participant,
		transport:   t,
		log:         log.With("session", id, "participant", participant),
		channels:    make(map[string]channel),
	}
}

func (s *Session) ID() string { return s.id }

// Participant is the identity this replica writes as.
func (s *Session) Participant() int64 { return s.participant }

func (s *Session) Logger() *slog.Logger { return s.log }

func (s *Session) register(key string, ch channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.channels[key]; dup {
		panic(fmt.Sprintf("replica: key %q registered twice", key))
	}
	s.channels[key] = ch
}

// Open subscribes to the transport. Keys must be registered before Open so that
// replayed history reaches them.
func (s *Session) Open(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.opened.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.transport.Subscribe(ctx, s.deliver); err != nil {
		s.opened.Store(false)
		return fmt.Errorf("replica: subscribe %s: %w", s.id, err)
	}
	s.log.Debug("Session.Open: subscribed", "keys", len(s.channels))
	return nil
}

func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.log.Debug("Session.Close")
	return s.transport.Close()
}

func (s *Session) publish(ctx context.Context, key string, kind Kind, payload []byte, absorbs bool) error {
	if s.closed.Load() {
		return ErrClosed
	}
	env := Envelope{
		Session: s.id,
		Key:     key,
		Kind:    kind,
		Sender:  s.participant,
		Seq:     s.seq.Add(1),
		Absorbs: absorbs,
		Payload: payload,
	}
	if err := s.transport.Publish(ctx, env); err != nil {
		s.log.Warn("Session.publish: failed", "key", key, "seq", env.Seq, "error", err)
		return fmt.Errorf("replica: publish %s: %w", key, err)
	}
	return nil
}

func (s *Session) deliver(env Envelope) {
	if env.Session != "" && env.Session != s.id {
		s.log.Debug("Session.deliver: foreign session", "got", env.Session)
		return
	}
	for _, fn := range s.applyLocked(env) {
		fn()
	}
}

func (s *Session) applyLocked(env Envelope) []func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var notify []func()
	switch env.Kind {
	case KindLeave:
		for _, ch := range s.channels {
			if fn := ch.forget(env.Sender); fn != nil {
				notify = append(notify, fn)
			}
		}
	case KindValue, KindAction, KindKeyed:
		ch, ok := s.channels[env.Key]
		if !ok {
			s.log.Debug("Session.deliver: unregistered key", "key", env.Key)
			return nil
		}
		if ch.kind() != env.Kind {
			s.log.Warn("Session.deliver: kind mismatch", "key", env.Key, "want", ch.kind(), "got", env.Kind)
			return nil
		}
		if fn := ch.apply(env); fn != nil {
			notify = append(notify, fn)
		}
	default:
		s.log.Warn("Session.deliver: dropped envelope", "kind", env.Kind, "error", ErrUnknownKind)
	}
	return notify
}
