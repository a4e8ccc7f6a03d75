package turn

import (
	"testing"
	"time"

	"github.com/park285/Cheese-CardDuel/internal/match"
)

func TestArmFires(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	got := make(chan Key, 1)
	k := Key{Turn: 3, Phase: match.PhaseCombat, Sequence: 9}
	s.Arm(k, 10*time.Millisecond, func(k Key) { got <- k })
	if s.Deadline().IsZero() {
		t.Fatalf("deadline not recorded")
	}
	select {
	case fired := <-got:
		if fired != k {
			t.Fatalf("fired %+v, want %+v", fired, k)
		}
	case <-time.After(time.Second):
		t.Fatalf("timer did not fire")
	}
}

func TestRearmCancelsPrevious(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	got := make(chan Key, 2)
	s.Arm(Key{Turn: 1, Phase: match.PhaseMain}, 20*time.Millisecond, func(k Key) { got <- k })
	s.Arm(Key{Turn: 1, Phase: match.PhaseCombat}, 40*time.Millisecond, func(k Key) { got <- k })

	select {
	case k := <-got:
		if k.Phase != match.PhaseCombat {
			t.Fatalf("stale timer fired for %s", k.Phase)
		}
	case <-time.After(time.Second):
		t.Fatalf("timer did not fire")
	}
	select {
	case k := <-got:
		t.Fatalf("unexpected second fire %+v", k)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestCancelPreventsFire(t *testing.T) {
	s := NewScheduler()
	fired := make(chan struct{}, 1)
	s.Arm(Key{}, 10*time.Millisecond, func(Key) { fired <- struct{}{} })
	s.Cancel()
	select {
	case <-fired:
		t.Fatalf("cancelled timer fired")
	case <-time.After(50 * time.Millisecond):
	}
	if !s.Deadline().IsZero() {
		t.Fatalf("deadline should reset on cancel")
	}
}

func TestGraceTimers(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	expired := make(chan string, 2)
	s.StartGrace("u1", 15*time.Millisecond, func(p string) { expired <- p })
	s.StartGrace("u2", 15*time.Millisecond, func(p string) { expired <- p })
	if !s.CancelGrace("u1") {
		t.Fatalf("expected pending grace for u1")
	}
	if s.CancelGrace("u1") {
		t.Fatalf("double cancel reported true")
	}
	select {
	case p := <-expired:
		if p != "u2" {
			t.Fatalf("expired %s", p)
		}
	case <-time.After(time.Second):
		t.Fatalf("grace did not expire")
	}
	if s.GracePending("u2") {
		t.Fatalf("grace still pending after firing")
	}
}

func TestStopDisablesScheduling(t *testing.T) {
	s := NewScheduler()
	s.Stop()
	fired := make(chan struct{}, 1)
	s.Arm(Key{}, time.Millisecond, func(Key) { fired <- struct{}{} })
	s.StartGrace("u1", time.Millisecond, func(string) { fired <- struct{}{} })
	select {
	case <-fired:
		t.Fatalf("stopped scheduler fired")
	case <-time.After(30 * time.Millisecond):
	}
}
