package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-CardDuel/internal/match"
	"github.com/park285/Cheese-CardDuel/internal/obslog"
	"github.com/park285/Cheese-CardDuel/pkg/dueldto"
)

// DefaultQueueSize is the per-subscriber backlog before a resync is forced.
const DefaultQueueSize = 64

var ErrFeedClosed = errors.New("relay: feed closed")

// Egress writes one frame to a client connection.
type Egress interface {
	Send(ctx context.Context, m dueldto.ServerMessage) error
}

// SnapshotFunc returns a full state_snapshot frame for viewer.
type SnapshotFunc func(viewer string) dueldto.ServerMessage

// HintsFunc returns the hints for viewer after a commit, or nil.
type HintsFunc func(viewer string) *dueldto.Hints

// Feed fans one room's frames out to its subscribers. Publishing never blocks
// on a slow connection.
type Feed struct {
	roomID    string
	snapshot  SnapshotFunc
	queueSize int
	log       *zap.Logger

	mu     sync.RWMutex
	subs   map[string]*Subscriber
	closed bool
}

func NewFeed(roomID string, snapshot SnapshotFunc, queueSize int) *Feed {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Feed{
		roomID:    roomID,
		snapshot:  snapshot,
		queueSize: queueSize,
		log:       obslog.Named("relay").With(zap.String("room_id", roomID)),
		subs:      make(map[string]*Subscriber),
	}
}

// Attach registers a connection for viewer. The first frame it receives is a
// full snapshot. The subscriber stops when ctx ends, on Detach, or when a
// write fails.
func (f *Feed) Attach(ctx context.Context, viewer string, out Egress) (*Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFeedClosed
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Subscriber{
		ID:       uuid.NewString(),
		Viewer:   viewer,
		out:      out,
		queue:    make(chan dueldto.ServerMessage, f.queueSize),
		snapshot: f.snapshot,
		cancel:   cancel,
		done:     make(chan struct{}),
		log:      f.log.With(zap.String("viewer", viewer)),
	}
	s.enqueue(f.snapshot(viewer))
	f.subs[s.ID] = s
	go s.run(sctx)
	return s, nil
}

func (f *Feed) Detach(s *Subscriber) {
	if s == nil {
		return
	}
	f.mu.Lock()
	delete(f.subs, s.ID)
	f.mu.Unlock()
	s.cancel()
}

// Publish redacts c for every subscriber and hands it off.
func (f *Feed) Publish(c *match.Commit, after *match.State, hints HintsFunc) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	byViewer := make(map[string]dueldto.ServerMessage)
	for _, s := range f.subs {
		m, ok := byViewer[s.Viewer]
		if !ok {
			m = dueldto.ServerMessage{
				Type:     dueldto.TypeEvent,
				RoomID:   f.roomID,
				Sequence: c.Sequence,
				Events:   EventsFor(c, after, s.Viewer),
			}
			if hints != nil {
				m.Hints = hints(s.Viewer)
			}
			byViewer[s.Viewer] = m
		}
		s.enqueue(m)
	}
}

// Broadcast sends an unsequenced frame to everyone.
func (f *Feed) Broadcast(m dueldto.ServerMessage) {
	m.RoomID = f.roomID
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		s.enqueue(m)
	}
}

// Resync pushes a fresh snapshot to every subscriber.
func (f *Feed) Resync() {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		s.enqueue(f.snapshot(s.Viewer))
	}
}

// Connected reports whether viewer has at least one live connection.
func (f *Feed) Connected(viewer string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		if s.Viewer == viewer {
			return true
		}
	}
	return false
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close detaches every subscriber and refuses new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[string]*Subscriber)
	f.closed = true
	f.mu.Unlock()
	for _, s := range subs {
		s.cancel()
	}
}

// Subscriber is one connection's ordered outbound stream.
type Subscriber struct {
	ID     string
	Viewer string

	out      Egress
	queue    chan dueldto.ServerMessage
	overflow atomic.Bool
	snapshot SnapshotFunc
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	log      *zap.Logger
}

// Done is closed when the writer goroutine exits.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Err is valid after Done is closed.
func (s *Subscriber) Err() error {
	<-s.done
	return s.err
}

func (s *Subscriber) enqueue(m dueldto.ServerMessage) {
	select {
	case s.queue <- m:
	default:
		s.overflow.Store(true)
	}
}

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)
	seq := NewResequencer(0)
	for {
		select {
		case <-ctx.Done():
			s.err = ctx.Err()
			return
		case m := <-s.queue:
			if s.overflow.Swap(false) {
				s.drain()
				s.log.Warn("relay_overflow_resync")
				m = s.snapshot(s.Viewer)
			}
			if err := s.deliver(ctx, seq, m); err != nil {
				s.err = err
				s.log.Debug("relay_write_failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Subscriber) drain() {
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, seq *Resequencer, m dueldto.ServerMessage) error {
	switch {
	case m.Type == dueldto.TypeStateSnapshot:
		seq.Reset(m.Sequence)
		return s.out.Send(ctx, m)
	case m.Sequence == 0:
		return s.out.Send(ctx, m)
	}
	ready, ok := seq.Offer(m)
	if !ok {
		snap := s.snapshot(s.Viewer)
		seq.Reset(snap.Sequence)
		return s.out.Send(ctx, snap)
	}
	for _, r := range ready {
		if err := s.out.Send(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
