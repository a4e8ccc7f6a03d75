// Package turn owns the timers that drive a room: one phase timer and one
// grace timer per disconnected player.
package turn

import (
	"sync"
	"time"

	"github.com/park285/Cheese-CardDuel/internal/match"
)

// Key identifies the phase a timer was armed for. A firing timer whose key no
// longer matches the match state must be ignored by the receiver.
type Key struct {
	Turn     int
	Phase    match.Phase
	Sequence uint64
}

type Scheduler struct {
	mu       sync.Mutex
	phase    *time.Timer
	gen      uint64
	deadline time.Time
	graces   map[string]*time.Timer
	stopped  bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{graces: make(map[string]*time.Timer)}
}

// Arm cancels any pending phase timer and schedules fire after d.
func (s *Scheduler) Arm(k Key, d time.Duration, fire func(Key)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelLocked()
	s.gen++
	gen := s.gen
	s.deadline = time.Now().Add(d)
	s.phase = time.AfterFunc(d, func() {
		s.mu.Lock()
		live := gen == s.gen && !s.stopped
		if live {
			s.phase = nil
			s.deadline = time.Time{}
		}
		s.mu.Unlock()
		if live {
			fire(k)
		}
	})
}

// Cancel stops the phase timer. A callback already running is neutralised by
// the generation check.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.cancelLocked()
	s.gen++
	s.mu.Unlock()
}

func (s *Scheduler) cancelLocked() {
	if s.phase != nil {
		s.phase.Stop()
		s.phase = nil
	}
	s.deadline = time.Time{}
}

// Deadline reports when the armed phase timer fires; zero when none is armed.
func (s *Scheduler) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// StartGrace starts (or restarts) the disconnect grace timer for player.
func (s *Scheduler) StartGrace(player string, d time.Duration, fire func(player string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.graces[player]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		live := s.graces[player] == t && !s.stopped
		if live {
			delete(s.graces, player)
		}
		s.mu.Unlock()
		if live {
			fire(player)
		}
	})
	s.graces[player] = t
}

// CancelGrace reports whether a pending grace timer was cancelled.
func (s *Scheduler) CancelGrace(player string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.graces[player]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.graces, player)
	return true
}

func (s *Scheduler) GracePending(player string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.graces[player]
	return ok
}

// Stop cancels everything; later Arm/StartGrace calls are no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.cancelLocked()
	s.gen++
	for p, t := range s.graces {
		t.Stop()
		delete(s.graces, p)
	}
}
