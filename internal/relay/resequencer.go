package relay

import "github.com/park285/Cheese-CardDuel/pkg/dueldto"

// maxPending bounds how far ahead a Resequencer buffers before it gives up
// and asks for a snapshot.
const maxPending = 256

// Resequencer turns sequenced frames arriving in any order into a strictly
// increasing stream. Duplicates and frames at or below the last delivered
// sequence are dropped. Not safe for concurrent use.
type Resequencer struct {
	last    uint64
	pending map[uint64]dueldto.ServerMessage
}

// NewResequencer starts after last; the next deliverable frame is last+1.
func NewResequencer(last uint64) *Resequencer {
	return &Resequencer{last: last, pending: make(map[uint64]dueldto.ServerMessage)}
}

func (r *Resequencer) Last() uint64 { return r.last }

func (r *Resequencer) Pending() int { return len(r.pending) }

// Offer accepts one frame and returns whatever is now deliverable in order.
// ok is false when the buffer is full and the caller should resync.
func (r *Resequencer) Offer(m dueldto.ServerMessage) (ready []dueldto.ServerMessage, ok bool) {
	if m.Sequence <= r.last {
		return nil, true
	}
	if _, dup := r.pending[m.Sequence]; dup {
		return nil, true
	}
	if m.Sequence != r.last+1 && len(r.pending) >= maxPending {
		return nil, false
	}
	r.pending[m.Sequence] = m
	for {
		next, found := r.pending[r.last+1]
		if !found {
			return ready, true
		}
		delete(r.pending, r.last+1)
		r.last++
		ready = append(ready, next)
	}
}

// Reset moves the cursor to a snapshot at seq and discards frames it covers.
func (r *Resequencer) Reset(seq uint64) {
	r.last = seq
	for k := range r.pending {
		if k <= seq {
			delete(r.pending, k)
		}
	}
}
