package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryRetention(t *testing.T) {
	h := NewHistory()
	h.Record(Envelope{Key: "score", Kind: KindValue, Sender: 1, Seq: 1})
	h.Record(Envelope{Key: "board", Kind: KindAction, Sender: 1, Seq: 2})
	h.Record(Envelope{Key: "dropping", Kind: KindKeyed, Sender: 1, Seq: 3})
	h.Record(Envelope{Key: "dropping", Kind: KindKeyed, Sender: 2, Seq: 1})
	h.Record(Envelope{Key: "score", Kind: KindValue, Sender: 2, Seq: 2})
	h.Record(Envelope{Key: "board", Kind: KindAction, Sender: 2, Seq: 3})

	snap := h.Snapshot()
	var seqs [][2]int64
	for _, env := range snap {
		seqs = append(seqs, [2]int64{env.Sender, int64(env.Seq)})
	}
	// recording order, superseded value dropped
	assert.Equal(t, [][2]int64{{1, 2}, {1, 3}, {2, 1}, {2, 2}, {2, 3}}, seqs)
	assert.Equal(t, 5, h.Len())
}

func TestHistoryAbsorbingActionTruncatesLog(t *testing.T) {
	h := NewHistory()
	h.Record(Envelope{Key: "board", Kind: KindAction, Seq: 1})
	h.Record(Envelope{Key: "board", Kind: KindAction, Seq: 2})
	h.Record(Envelope{Key: "board", Kind: KindAction, Seq: 3, Absorbs: true})
	h.Record(Envelope{Key: "board", Kind: KindAction, Seq: 4})

	snap := h.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, uint64(3), snap[0].Seq)
	assert.Equal(t, uint64(4), snap[1].Seq)
}

func TestHistoryForget(t *testing.T) {
	h := NewHistory()
	h.Record(Envelope{Key: "dropping", Kind: KindKeyed, Sender: 1})
	h.Record(Envelope{Key: "dropping", Kind: KindKeyed, Sender: 2})
	h.Record(Envelope{Kind: KindLeave, Sender: 1})

	snap := h.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, int64(2), snap[0].Sender)

	h.Forget(2)
	assert.Zero(t, h.Len())
}
