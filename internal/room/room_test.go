package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/mock/gomock"

	"github.com/park285/Cheese-CardDuel/internal/archive"
	"github.com/park285/Cheese-CardDuel/internal/archive/mocks"
	"github.com/park285/Cheese-CardDuel/internal/catalog"
	"github.com/park285/Cheese-CardDuel/internal/deck"
	"github.com/park285/Cheese-CardDuel/internal/match"
	"github.com/park285/Cheese-CardDuel/internal/relay"
	"github.com/park285/Cheese-CardDuel/pkg/dueldto"
)

type recorder struct {
	mu     sync.Mutex
	frames []dueldto.ServerMessage
}

func (r *recorder) Send(_ context.Context, m dueldto.ServerMessage) error {
	r.mu.Lock()
	r.frames = append(r.frames, m)
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []dueldto.ServerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dueldto.ServerMessage(nil), r.frames...)
}

func (r *recorder) has(typ string, pred func(dueldto.ServerMessage) bool) bool {
	for _, f := range r.snapshot() {
		if f.Type == typ && (pred == nil || pred(f)) {
			return true
		}
	}
	return false
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(t *testing.T, rules match.Rules, o ManagerOptions) *Manager {
	t.Helper()
	cards, err := catalog.NewStatic("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	o.Rules = rules
	m := NewManager(deck.NewStatic(true), deck.NewValidator(cards, rules), o)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

// readyRoom creates a room for alice and seats bob. Recorders may be nil.
func readyRoom(t *testing.T, m *Manager, alice, bob *recorder) *Room {
	t.Helper()
	ctx := context.Background()
	aOut, bOut := egress(alice), egress(bob)
	r, _, err := m.Create(ctx, "alice", "Alice", aOut)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := m.JoinRoom(ctx, r.ID, "bob", "Bob", bOut, false); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	return r
}

func egress(r *recorder) relay.Egress {
	if r == nil {
		return nil
	}
	return r
}

func mulliganBoth(t *testing.T, r *Room) *match.State {
	t.Helper()
	for _, p := range []string{"alice", "bob"} {
		if _, err := r.Submit(context.Background(), p, match.Action{Kind: match.ActMulligan}); err != nil {
			t.Fatalf("mulligan %s: %v", p, err)
		}
	}
	st := r.State()
	if st.Phase != match.PhaseMain || st.Turn != 1 {
		t.Fatalf("after mulligans: %s turn %d", st.Phase, st.Turn)
	}
	return st
}

func TestRoomLifecycleAndPlay(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, match.DefaultRules(), ManagerOptions{})
	alice, bob := &recorder{}, &recorder{}
	r := readyRoom(t, m, alice, bob)
	if r.Lifecycle() != Ready {
		t.Fatalf("lifecycle = %s", r.Lifecycle())
	}

	if err := m.StartMatch(ctx, r.ID, "bob"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("bob start err = %v", err)
	}
	if err := m.StartMatch(ctx, r.ID, "alice"); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if r.Lifecycle() != InMatch || r.State().Phase != match.PhaseMulligan {
		t.Fatalf("after start: %s / %s", r.Lifecycle(), r.State().Phase)
	}

	st := mulliganBoth(t, r)
	if st.Sequence != 2 {
		t.Fatalf("sequence = %d", st.Sequence)
	}
	active := st.Active
	other := st.Opponent(active).ID

	if rej := r.Precheck(other, match.Action{Kind: match.ActEndPhase, Sequence: st.Sequence}); rej == nil || rej.Kind != match.NotYourTurn {
		t.Fatalf("precheck = %v", rej)
	}
	_, err := r.Submit(ctx, active, match.Action{Kind: match.ActEndPhase, Sequence: 0})
	if rej, ok := match.AsRejection(err); !ok || rej.Kind != match.StaleAction {
		t.Fatalf("stale submit err = %v", err)
	}
	c, err := r.Submit(ctx, active, match.Action{Kind: match.ActEndPhase, Sequence: st.Sequence})
	if err != nil {
		t.Fatalf("end_phase: %v", err)
	}
	if c.Sequence != 3 || r.State().Phase != match.PhaseCombat {
		t.Fatalf("commit %d, phase %s", c.Sequence, r.State().Phase)
	}

	eventually(t, "event frame for sequence 3", func() bool {
		return alice.has(dueldto.TypeEvent, func(f dueldto.ServerMessage) bool { return f.Sequence == 3 })
	})
	frames := alice.snapshot()
	if frames[0].Type != dueldto.TypeRoomState {
		t.Fatalf("first frame = %s", frames[0].Type)
	}
	var last uint64
	for _, f := range frames {
		if f.Type == dueldto.TypeEvent {
			if f.Sequence <= last {
				t.Fatalf("events out of order: %d after %d", f.Sequence, last)
			}
			last = f.Sequence
		}
	}
}

func TestManagerSeatRules(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, match.DefaultRules(), ManagerOptions{MaxRooms: 2})
	r := readyRoom(t, m, nil, nil)

	_, _, err := m.JoinRoom(ctx, r.ID, "dave", "Dave", nil, false)
	if rej, ok := match.AsRejection(err); !ok || rej.Kind != match.RoomFull {
		t.Fatalf("third player err = %v", err)
	}

	other, _, err := m.Create(ctx, "carol", "Carol", nil)
	if err != nil {
		t.Fatalf("Create carol: %v", err)
	}
	_, _, err = m.JoinRoom(ctx, other.ID, "alice", "Alice", nil, false)
	if rej, ok := match.AsRejection(err); !ok || rej.Kind != match.AlreadyInMatch {
		t.Fatalf("double seat err = %v", err)
	}
	if _, _, err := m.Create(ctx, "erin", "Erin", nil); !errors.Is(err, ErrCapacity) {
		t.Fatalf("capacity err = %v", err)
	}

	watcher := &recorder{}
	if _, sub, err := m.JoinRoom(ctx, r.ID, "dave", "Dave", watcher, true); err != nil || sub == nil {
		t.Fatalf("observe: %v", err)
	}
	if err := m.StartMatch(ctx, r.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "observer snapshot", func() bool {
		return watcher.has(dueldto.TypeStateSnapshot, func(f dueldto.ServerMessage) bool {
			for _, p := range f.Snapshot.Players {
				if p.Hand != nil || p.HandCount != 5 {
					return false
				}
			}
			return f.Hints == nil
		})
	})

	if err := m.CloseRoom(ctx, r.ID, "alice"); err == nil {
		t.Fatal("creator closed a room mid-match")
	}
	if err := m.LeaveRoom(ctx, other.ID, "carol"); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	<-other.Done()
	if _, ok := m.Get(other.ID); ok {
		t.Fatal("empty room was not removed")
	}
	if _, ok := m.RoomOf("carol"); ok {
		t.Fatal("carol still indexed")
	}
}

func TestMulliganTimeoutKeepsHands(t *testing.T) {
	rules := match.DefaultRules()
	rules.PhaseTimeouts[match.PhaseMulligan] = 20 * time.Millisecond
	m := newTestManager(t, rules, ManagerOptions{})
	r := readyRoom(t, m, &recorder{}, &recorder{})
	if err := r.Start(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "main phase", func() bool { return r.State().Phase == match.PhaseMain })
	st := r.State()
	for _, p := range st.Players {
		if !p.Mulliganed || len(p.Hand) != rules.OpeningHand {
			t.Fatalf("%s: mulliganed=%v hand=%d", p.ID, p.Mulliganed, len(p.Hand))
		}
	}
	if st.Sequence != 2 {
		t.Fatalf("sequence = %d", st.Sequence)
	}
}

func TestMainTimeoutActsAsEndPhase(t *testing.T) {
	rules := match.DefaultRules()
	rules.PhaseTimeouts[match.PhaseMain] = 30 * time.Millisecond
	m := newTestManager(t, rules, ManagerOptions{})
	r := readyRoom(t, m, nil, nil)
	if err := r.Start(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	st := mulliganBoth(t, r)
	active := st.Active

	eventually(t, "combat phase", func() bool { return r.State().Phase == match.PhaseCombat })
	after := r.State()
	if after.Active != active || after.Turn != st.Turn || after.Sequence != st.Sequence+1 {
		t.Fatalf("after timeout: active=%s turn=%d sequence=%d", after.Active, after.Turn, after.Sequence)
	}
}

func TestRepeatedJoinGivesIdenticalSnapshots(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, match.DefaultRules(), ManagerOptions{})
	r := readyRoom(t, m, &recorder{}, &recorder{})
	if err := r.Start(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	first, second := &recorder{}, &recorder{}
	for _, out := range []*recorder{first, second} {
		if _, _, err := m.JoinRoom(ctx, r.ID, "alice", "Alice", out, false); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	eventually(t, "both snapshots", func() bool {
		return len(first.snapshot()) > 0 && len(second.snapshot()) > 0
	})
	a, _ := json.Marshal(first.snapshot()[0])
	b, _ := json.Marshal(second.snapshot()[0])
	if string(a) != string(b) {
		t.Fatalf("snapshots differ:\n%s\n%s", a, b)
	}
}

func TestGraceExpiryConcedesAndArchives(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	saved := make(chan *archive.Record, 1)
	repo.EXPECT().SaveMatch(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, rec *archive.Record) error {
		saved <- rec
		return nil
	})

	rules := match.DefaultRules()
	rules.DisconnectGrace = 20 * time.Millisecond
	m := newTestManager(t, rules, ManagerOptions{Archive: repo})
	alice := &recorder{}
	r := readyRoom(t, m, alice, nil) // bob is seated but never connects
	if err := r.Start(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}

	var rec *archive.Record
	select {
	case rec = <-saved:
	case <-time.After(3 * time.Second):
		t.Fatal("match was not archived")
	}
	if rec.Winner != "alice" || rec.Reason != match.ReasonDisconnect {
		t.Fatalf("winner=%q reason=%q", rec.Winner, rec.Reason)
	}
	final, err := rec.Final()
	if err != nil || !final.Finished() {
		t.Fatalf("replayed archive: %v finished=%v", err, final != nil && final.Finished())
	}
	if r.Lifecycle() != Finished {
		t.Fatalf("lifecycle = %s", r.Lifecycle())
	}
	eventually(t, "match_finished frame", func() bool {
		return alice.has(dueldto.TypeMatchFinished, func(f dueldto.ServerMessage) bool {
			return f.Finished.WinnerID == "alice" && f.Finished.Reason == match.ReasonDisconnect
		})
	})
	if _, ok := m.RoomOf("alice"); ok {
		t.Fatal("seat not released after the match")
	}
	r.Wait()
}

func TestReconnectCancelsGrace(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, match.DefaultRules(), ManagerOptions{})
	alice := &recorder{}
	r, sub, err := m.Create(ctx, "alice", "Alice", alice)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.JoinRoom(ctx, r.ID, "bob", "Bob", &recorder{}, false); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	if err := r.Disconnect(ctx, sub); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if !r.sched.GracePending("alice") || r.View().Seats[0].Connected {
		t.Fatal("disconnect did not start the grace period")
	}

	again := &recorder{}
	if _, _, err := m.JoinRoom(ctx, r.ID, "alice", "Alice", again, false); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if r.sched.GracePending("alice") || !r.View().Seats[0].Connected {
		t.Fatal("reconnect did not cancel the grace period")
	}
	eventually(t, "resume snapshot", func() bool {
		frames := again.snapshot()
		return len(frames) > 0 && frames[0].Type == dueldto.TypeStateSnapshot && len(frames[0].Snapshot.Players) == 2
	})
	first := again.snapshot()[0]
	for _, p := range first.Snapshot.Players {
		if p.ID == "alice" && len(p.Hand) != 5 {
			t.Fatalf("own hand hidden on resume: %+v", p)
		}
	}
	if first.Hints == nil || !first.Hints.CanMulligan {
		t.Fatalf("hints = %+v", first.Hints)
	}
}

func TestCheckpointRestoreReplays(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisCheckpoints(rdb, time.Hour)
	rules := match.DefaultRules()

	m1 := newTestManager(t, rules, ManagerOptions{Checkpoints: store})
	r := readyRoom(t, m1, nil, nil)
	if err := r.Start(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	want := mulliganBoth(t, r)
	eventually(t, "checkpoint at sequence 2", func() bool {
		cp, err := store.Load(ctx, r.ID)
		return err == nil && cp != nil && cp.Sequence == 2
	})
	if err := m1.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	m2 := newTestManager(t, rules, ManagerOptions{Checkpoints: store})
	n, err := m2.Restore(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Restore = %d, %v", n, err)
	}
	r2, ok := m2.Get(r.ID)
	if !ok {
		t.Fatal("room not restored")
	}
	wantJSON, _ := json.Marshal(want)
	gotJSON, _ := json.Marshal(r2.State())
	if string(wantJSON) != string(gotJSON) {
		t.Fatalf("restored state differs\nwant %s\ngot  %s", wantJSON, gotJSON)
	}
	for _, s := range r2.View().Seats {
		if s.Connected {
			t.Fatalf("%s restored as connected", s.UserID)
		}
	}
	if _, _, err := m2.Create(ctx, "alice", "Alice", nil); err == nil {
		t.Fatal("restored seat index not enforced")
	}
	got := r2.State()
	if _, err := r2.Submit(ctx, got.Active, match.Action{Kind: match.ActEndPhase, Sequence: got.Sequence}); err != nil {
		t.Fatalf("play after restore: %v", err)
	}
}

func TestRedisCheckpointsLatestWins(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisCheckpoints(rdb, time.Hour)

	if err := store.Save(ctx, &Checkpoint{RoomID: "r1", MatchID: "m1", Sequence: 5}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, &Checkpoint{RoomID: "r1", MatchID: "m1", Sequence: 3}); err != nil {
		t.Fatal(err)
	}
	cp, err := store.Load(ctx, "r1")
	if err != nil || cp.Sequence != 5 {
		t.Fatalf("older checkpoint overwrote newer: %+v %v", cp, err)
	}
	if err := store.Save(ctx, &Checkpoint{RoomID: "r1", MatchID: "m2", Sequence: 1}); err != nil {
		t.Fatal(err)
	}
	if cp, _ := store.Load(ctx, "r1"); cp.MatchID != "m2" {
		t.Fatalf("new match not stored: %+v", cp)
	}
	all, err := store.List(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("List = %d, %v", len(all), err)
	}
	if err := store.Delete(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if cp, err := store.Load(ctx, "r1"); cp != nil || err != nil {
		t.Fatalf("after delete: %+v %v", cp, err)
	}
}

// frozenRoom starts a match whose only spell breaks during resolution and
// plays it, leaving the room frozen at the mulligan state.
func frozenRoom(t *testing.T, rules match.Rules, o ManagerOptions, alice, bob *recorder) (*Manager, *Room, *match.State) {
	t.Helper()
	ctx := context.Background()
	cards, err := catalog.ParseStatic([]byte(`cards:
  - {id: hero, name: Hero, kind: hero, collectible: true}
  - {id: glitch, name: Glitch, kind: spell, cost: 0, collectible: true, abilities: [{trigger: on_play, effect: glitch, target: self}]}
`))
	if err != nil {
		t.Fatal(err)
	}
	rules.MaxCopies = rules.DeckSize
	decks := deck.NewStatic(false)
	for _, u := range []string{"alice", "bob"} {
		decks.Put(&deck.List{UserID: u, Name: "glitch", Entries: []deck.Entry{
			{CardID: "hero", Count: 1},
			{CardID: "glitch", Count: rules.DeckSize - 1},
		}})
	}
	o.Rules = rules
	o.Handlers = map[string]match.Handler{
		"glitch": func(*match.Context, match.StackEntry) (match.Outcome, error) {
			return match.Outcome{}, errors.New("card count drifted")
		},
	}
	m := NewManager(decks, deck.NewValidator(cards, rules).WithHandlers(o.Handlers), o)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	r := readyRoom(t, m, alice, bob)
	if err := r.Start(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	st := mulliganBoth(t, r)
	card := st.Player(st.Active).Hand[0]
	_, err = r.Submit(ctx, st.Active, match.Action{Kind: match.ActPlayCard, Card: card, Sequence: st.Sequence})
	if !errors.Is(err, match.ErrInvariant) {
		t.Fatalf("err = %v, want invariant violation", err)
	}
	return m, r, st
}

func TestInvariantViolationFreezesMatch(t *testing.T) {
	ctx := context.Background()
	alice := &recorder{}
	_, r, st := frozenRoom(t, match.DefaultRules(), ManagerOptions{}, alice, &recorder{})
	active := st.Active

	if !r.Frozen() || r.State().Sequence != st.Sequence {
		t.Fatalf("frozen=%v sequence=%d", r.Frozen(), r.State().Sequence)
	}
	_, err := r.Submit(ctx, active, match.Action{Kind: match.ActEndPhase, Sequence: st.Sequence})
	if rej, ok := match.AsRejection(err); !ok || rej.Kind != match.IllegalPhase {
		t.Fatalf("submit on frozen match: %v", err)
	}
	if rej := r.Precheck(active, match.Action{Kind: match.ActConcede}); rej != nil {
		t.Fatalf("precheck refused concede on a frozen match: %v", rej)
	}
	eventually(t, "diagnostic then resync", func() bool {
		seenDiag := false
		for _, f := range alice.snapshot() {
			if f.Type == dueldto.TypeDiagnostic {
				seenDiag = true
			}
			if seenDiag && f.Type == dueldto.TypeStateSnapshot && f.Sequence == st.Sequence {
				return true
			}
		}
		return false
	})
}

func TestConcedeEndsFrozenMatch(t *testing.T) {
	ctx := context.Background()
	m, r, st := frozenRoom(t, match.DefaultRules(), ManagerOptions{}, &recorder{}, &recorder{})
	loser := st.Active
	winner := st.Opponent(loser).ID

	if _, err := r.Submit(ctx, loser, match.Action{Kind: match.ActConcede}); err != nil {
		t.Fatalf("concede on frozen match: %v", err)
	}
	if r.Lifecycle() != Finished || r.State().Winner != winner || r.State().FinishReason != match.ReasonConcede {
		t.Fatalf("lifecycle=%s winner=%s reason=%s", r.Lifecycle(), r.State().Winner, r.State().FinishReason)
	}
	if _, _, err := m.Create(ctx, "alice", "Alice", nil); err != nil {
		t.Fatalf("seat still held after the frozen match ended: %v", err)
	}
}

func TestLeavingFrozenMatchConcedes(t *testing.T) {
	ctx := context.Background()
	m, r, _ := frozenRoom(t, match.DefaultRules(), ManagerOptions{}, &recorder{}, &recorder{})

	if err := m.LeaveRoom(ctx, r.ID, "bob"); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	if r.Lifecycle() != Finished || r.State().Winner != "alice" {
		t.Fatalf("lifecycle=%s winner=%s", r.Lifecycle(), r.State().Winner)
	}
	if _, ok := m.RoomOf("bob"); ok {
		t.Fatal("bob still indexed")
	}
}

func TestCreatorClosesFrozenMatch(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	saved := make(chan *archive.Record, 1)
	repo.EXPECT().SaveMatch(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, rec *archive.Record) error {
		saved <- rec
		return nil
	})
	m, r, st := frozenRoom(t, match.DefaultRules(), ManagerOptions{Archive: repo}, &recorder{}, &recorder{})

	if err := m.CloseRoom(ctx, r.ID, "bob"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("bob close err = %v", err)
	}
	if err := m.CloseRoom(ctx, r.ID, "alice"); err != nil {
		t.Fatalf("creator close on frozen match: %v", err)
	}
	<-r.Done()

	var rec *archive.Record
	select {
	case rec = <-saved:
	case <-time.After(3 * time.Second):
		t.Fatal("aborted match was not archived")
	}
	if rec.Winner != "" || rec.Reason != match.ReasonAborted || len(rec.Commits) != int(st.Sequence) {
		t.Fatalf("winner=%q reason=%q commits=%d", rec.Winner, rec.Reason, len(rec.Commits))
	}
	for _, u := range []string{"alice", "bob"} {
		if _, ok := m.RoomOf(u); ok {
			t.Fatalf("%s still indexed", u)
		}
	}
	r.Wait()
}

func TestFrozenMatchTimesOut(t *testing.T) {
	rules := match.DefaultRules()
	rules.FrozenTimeout = 30 * time.Millisecond
	alice := &recorder{}
	m, r, _ := frozenRoom(t, rules, ManagerOptions{}, alice, &recorder{})

	eventually(t, "frozen match aborted", func() bool { return r.Lifecycle() == Finished })
	eventually(t, "aborted frame", func() bool {
		return alice.has(dueldto.TypeMatchFinished, func(f dueldto.ServerMessage) bool {
			return f.Finished.Reason == match.ReasonAborted
		})
	})
	if _, _, err := m.Create(context.Background(), "bob", "Bob", nil); err != nil {
		t.Fatalf("seat still held after abort: %v", err)
	}
}
