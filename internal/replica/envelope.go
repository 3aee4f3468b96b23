package replica

import (
	"context"
	"encoding/json"
	"errors"
)

// Kind tells a replica how to apply an envelope.
type Kind string

const (
	// KindValue overwrites a last-writer-wins value.
	KindValue Kind = "value"
	// KindAction is fed through a reducer on every replica.
	KindAction Kind = "action"
	// KindKeyed overwrites the sender's own entry of a per-participant map.
	KindKeyed Kind = "keyed"
	// KindLeave is emitted by the transport when a participant goes away.
	KindLeave Kind = "leave"
)

// Envelope is the unit that travels between replicas of one session. Order is
// stamped by transports that sequence a session centrally.
type Envelope struct {
	Session string          `json:"session"`
	Key     string          `json:"key,omitempty"`
	Kind    Kind            `json:"kind"`
	Sender  int64           `json:"sender"`
	Seq     uint64          `json:"seq"`
	Order   uint64          `json:"order,omitempty"`
	Absorbs bool            `json:"absorbs,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var (
	ErrClosed      = errors.New("replica: session closed")
	ErrForeignKey  = errors.New("replica: write to another participant's entry")
	ErrUnknownKind = errors.New("replica: unknown envelope kind")
)

// Transport carries envelopes between the replicas of a session. Publish must hand
// the envelope to every replica, the publisher included, and every replica must
// see the envelopes of a session in the same order.
type Transport interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe starts delivery. deliver is never called concurrently with itself.
	Subscribe(ctx context.Context, deliver func(Envelope)) error
	Close() error
}
