package replica

import (
	"slices"
	"sync"
)

// maxActionLog bounds the retained actions of one reducer key between absorbing actions.
const maxActionLog = 4096

type retained struct {
	n   uint64
	env Envelope
}

// History keeps what a late-joining replica needs to catch up: the last write of
// every value, the last entry of every participant, and the reducer actions since
// the last absorbing one.
type History struct {
	mu      sync.Mutex
	n       uint64
	values  map[string]retained
	keyed   map[string]map[int64]retained
	actions map[string][]retained
}

func NewHistory() *History {
	return &History{
		values:  make(map[string]retained),
		keyed:   make(map[string]map[int64]retained),
		actions: make(map[string][]retained),
	}
}

func (h *History) Record(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.n++
	entry := retained{n: h.n, env: env}

	switch env.Kind {
	case KindValue:
		h.values[env.Key] = entry
	case KindKeyed:
		m, ok := h.keyed[env.Key]
		if !ok {
			m = make(map[int64]retained)
			h.keyed[env.Key] = m
		}
		m[env.Sender] = entry
	case KindAction:
		log := h.actions[env.Key]
		if env.Absorbs {
			log = log[:0]
		}
		log = append(log, entry)
		if len(log) > maxActionLog {
			log = slices.Delete(log, 0, len(log)-maxActionLog)
		}
		h.actions[env.Key] = log
	case KindLeave:
		h.forgetLocked(env.Sender)
	}
}

// Forget drops every per-participant entry written by participant.
func (h *History) Forget(participant int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forgetLocked(participant)
}

func (h *History) forgetLocked(participant int64) {
	for _, m := range h.keyed {
		delete(m, participant)
	}
}

// Snapshot returns the retained envelopes in the order they were recorded.
func (h *History) Snapshot() []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	var all []retained
	for _, e := range h.values {
		all = append(all, e)
	}
	for _, m := range h.keyed {
		for _, e := range m {
			all = append(all, e)
		}
	}
	for _, log := range h.actions {
		all = append(all, log...)
	}
	slices.SortFunc(all, func(a, b retained) int {
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		}
		return 0
	})

	out := make([]Envelope, len(all))
	for i, e := range all {
		out[i] = e.env
	}
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.values)
	for _, m := range h.keyed {
		n += len(m)
	}
	for _, log := range h.actions {
		n += len(log)
	}
	return n
}
