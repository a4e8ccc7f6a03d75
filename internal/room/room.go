// Package room runs one actor goroutine per room. The actor is the only
// writer of the room's seats and match state; everything else talks to it
// through the inbox.
package room

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-CardDuel/internal/archive"
	"github.com/park285/Cheese-CardDuel/internal/deck"
	"github.com/park285/Cheese-CardDuel/internal/match"
	"github.com/park285/Cheese-CardDuel/internal/obslog"
	"github.com/park285/Cheese-CardDuel/internal/relay"
	"github.com/park285/Cheese-CardDuel/internal/turn"
	"github.com/park285/Cheese-CardDuel/pkg/dueldto"
)

const (
	defaultInboxSize = 64
	archiveTimeout   = 10 * time.Second
	storeTimeout     = 5 * time.Second
)

type Options struct {
	Rules       match.Rules
	Checkpoints CheckpointStore    // nil disables checkpoints
	Archive     archive.Repository // nil disables archiving
	InboxSize   int
	QueueSize   int // per-connection backlog, see relay.DefaultQueueSize

	// Extra card effects on top of the built-in ones. The deck validator
	// must be given the same table.
	Handlers map[string]match.Handler

	// Called on the actor goroutine; must not call back into the room.
	OnRelease func(roomID string, userIDs ...string)
	OnClosed  func(roomID string)
}

// JoinRequest seats a player (Deck set, lobby only), reconnects a seated
// player, or attaches an observer. Out may be nil to seat without a connection.
type JoinRequest struct {
	UserID string
	Name   string
	Deck   *deck.Instance
	Out    relay.Egress
}

type Room struct {
	ID string

	opts   Options
	log    *zap.Logger
	feed   *relay.Feed
	sched  *turn.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan func()
	quit   chan struct{}

	// actor-owned
	creatorID string
	life      Lifecycle
	seats     []*Session
	eng       *match.Engine
	initial   *match.State
	current   *match.State
	commits   []match.Commit
	frozen    bool
	startedAt time.Time
	armed     turn.Key

	pub       atomic.Pointer[published]
	cpPending atomic.Pointer[cpJob]
	cpSignal  chan struct{}
	bg        sync.WaitGroup
}

// published is the read-only view other goroutines may use without the inbox.
type published struct {
	life      Lifecycle
	room      dueldto.RoomView
	state     *match.State
	eng       *match.Engine
	connected map[string]bool
	deadline  time.Time
	frozen    bool
}

type cpJob struct {
	cp     *Checkpoint
	delete bool
}

func newRoom(id, creatorID string, opts Options) *Room {
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		ID:        id,
		creatorID: creatorID,
		opts:      opts,
		log:       obslog.Named("room").With(zap.String("room_id", id)),
		sched:     turn.NewScheduler(),
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan func(), opts.InboxSize),
		quit:      make(chan struct{}),
		life:      Waiting,
		cpSignal:  make(chan struct{}, 1),
	}
	r.feed = relay.NewFeed(id, r.snapshot, opts.QueueSize)
	return r
}

func (r *Room) start() {
	r.publish()
	if r.opts.Checkpoints != nil {
		r.bg.Add(1)
		go r.checkpointLoop()
	}
	go r.run()
}

func (r *Room) run() {
	defer func() {
		r.sched.Stop()
		r.feed.Close()
		close(r.quit)
	}()
	for {
		select {
		case fn := <-r.inbox:
			fn()
			if r.life == Closed {
				return
			}
		case <-r.ctx.Done():
			return
		}
	}
}

// do runs fn on the actor and waits for its result. Requests for one room
// are processed strictly in arrival order.
func (r *Room) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	select {
	case r.inbox <- func() { done <- fn() }:
	case <-r.quit:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-r.quit:
		select {
		case err := <-done:
			return err
		default:
			return ErrRoomClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post is used by timers; it never gives up while the room is alive.
func (r *Room) post(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.quit:
	}
}

// Done is closed once the actor has stopped.
func (r *Room) Done() <-chan struct{} { return r.quit }

// Stop halts the actor without closing the room; checkpoints are kept so the
// room can be restored later.
func (r *Room) Stop() { r.cancel() }

// Wait blocks until background checkpoint and archive writes finish.
func (r *Room) Wait() { r.bg.Wait() }

func (r *Room) Join(ctx context.Context, req JoinRequest) (*relay.Subscriber, error) {
	if req.UserID == "" {
		return nil, ErrInvalidArgs
	}
	var sub *relay.Subscriber
	err := r.do(ctx, func() error {
		var err error
		sub, err = r.join(req)
		return err
	})
	return sub, err
}

func (r *Room) join(req JoinRequest) (*relay.Subscriber, error) {
	now := time.Now()
	if s := r.seat(req.UserID); s != nil {
		s.LastSeen = now
		if req.Out != nil {
			s.Connected = true
		}
		if r.sched.CancelGrace(req.UserID) {
			r.log.Info("room_reconnect", zap.String("user_id", req.UserID))
		}
	} else {
		switch r.life {
		case Waiting, Ready:
			if req.Deck != nil {
				if len(r.seats) >= 2 {
					return nil, match.Reject(match.RoomFull, "room %s already has two players", r.ID)
				}
				r.seats = append(r.seats, &Session{
					UserID: req.UserID, Name: req.Name, Deck: req.Deck,
					Connected: req.Out != nil, LastSeen: now,
				})
				if len(r.seats) == 2 {
					r.life = Ready
				}
				r.log.Info("room_join", zap.String("user_id", req.UserID), zap.Int("seats", len(r.seats)))
			}
		case InMatch, Finished:
			if req.Deck != nil {
				return nil, match.Reject(match.RoomFull, "match in room %s already started", r.ID)
			}
		}
	}
	r.publish()
	var sub *relay.Subscriber
	if req.Out != nil {
		var err error
		if sub, err = r.feed.Attach(r.ctx, req.UserID, req.Out); err != nil {
			return nil, err
		}
	}
	r.broadcastRoom()
	return sub, nil
}

// Disconnect detaches one connection. A seated player left with no live
// connection during a match gets the disconnect grace period.
func (r *Room) Disconnect(ctx context.Context, sub *relay.Subscriber) error {
	if sub == nil {
		return nil
	}
	r.feed.Detach(sub)
	return r.do(ctx, func() error {
		if !r.feed.Connected(sub.Viewer) {
			r.disconnected(sub.Viewer)
		}
		return nil
	})
}

func (r *Room) disconnected(userID string) {
	s := r.seat(userID)
	if s == nil {
		return
	}
	s.Connected = false
	s.LastSeen = time.Now()
	if r.life == InMatch {
		r.sched.StartGrace(userID, r.opts.Rules.DisconnectGrace, r.graceExpired)
		r.log.Info("room_disconnect", zap.String("user_id", userID), zap.Duration("grace", r.opts.Rules.DisconnectGrace))
	}
	r.publish()
	r.broadcastRoom()
}

// Leave gives up a seat before or after a match. During a match it only
// marks the player disconnected; leaving a frozen match concedes it.
func (r *Room) Leave(ctx context.Context, userID string) error {
	return r.do(ctx, func() error {
		if r.seat(userID) == nil {
			return ErrNotSeated
		}
		if r.life == InMatch && r.frozen {
			_, err := r.resolve(userID, match.Action{Kind: match.ActConcede}, false)
			return err
		}
		if r.life == InMatch {
			r.disconnected(userID)
			return nil
		}
		r.seats = slices.DeleteFunc(r.seats, func(s *Session) bool { return s.UserID == userID })
		r.release(userID)
		if userID == r.creatorID && len(r.seats) > 0 {
			r.creatorID = r.seats[0].UserID
		}
		if r.life == Ready {
			r.life = Waiting
		}
		r.log.Info("room_leave", zap.String("user_id", userID), zap.Int("seats", len(r.seats)))
		if len(r.seats) == 0 {
			r.close("empty")
			return nil
		}
		r.publish()
		r.broadcastRoom()
		return nil
	})
}

// Start deals the match. Only the creator can start a ready room.
func (r *Room) Start(ctx context.Context, userID string) error {
	return r.do(ctx, func() error {
		if userID != r.creatorID {
			return ErrNotCreator
		}
		if r.life != Ready {
			return match.Reject(match.IllegalPhase, "room is %s", r.life)
		}
		a, b := r.seats[0], r.seats[1]
		defs := a.Deck.Defs.Merge(b.Deck.Defs)
		st, err := match.NewMatch(uuid.NewString(), rand.Uint64(), [2]match.Seat{a.Deck.Seat(a.Name), b.Deck.Seat(b.Name)}, defs, r.opts.Rules)
		if err != nil {
			return err
		}
		eng, err := match.NewEngineWith(defs, r.opts.Rules, r.opts.Handlers)
		if err != nil {
			return err
		}
		r.eng = eng
		r.initial, r.current, r.commits = st, st, nil
		r.life = InMatch
		r.startedAt = time.Now()
		for _, s := range r.seats {
			if !s.Connected {
				r.sched.StartGrace(s.UserID, r.opts.Rules.DisconnectGrace, r.graceExpired)
			}
		}
		r.rearm()
		r.publish()
		r.feed.Resync()
		r.broadcastRoom()
		r.checkpoint()
		r.log.Info("match_start", zap.String("match_id", st.MatchID), zap.String("first", st.Active), zap.Uint64("seed", st.Seed))
		return nil
	})
}

// Close destroys the room. The creator may close it outside a match or
// while the match is frozen; an empty userID is an administrative close and
// always succeeds. A match still in progress is aborted first.
func (r *Room) Close(ctx context.Context, userID string) error {
	return r.do(ctx, func() error {
		if userID != "" && userID != r.creatorID {
			return ErrNotCreator
		}
		if userID != "" && r.life == InMatch && !r.frozen {
			return match.Reject(match.IllegalPhase, "match in progress")
		}
		if r.life == InMatch {
			r.abort("closed")
		}
		r.close("closed")
		return nil
	})
}

func (r *Room) close(reason string) {
	ids := make([]string, 0, len(r.seats))
	for _, s := range r.seats {
		ids = append(ids, s.UserID)
	}
	r.release(ids...)
	r.life = Closed
	r.publish()
	r.dropCheckpoint()
	r.log.Info("room_closed", zap.String("reason", reason))
	if r.opts.OnClosed != nil {
		r.opts.OnClosed(r.ID)
	}
}

// Submit validates and resolves a against the latest state.
func (r *Room) Submit(ctx context.Context, userID string, a match.Action) (*match.Commit, error) {
	var c *match.Commit
	err := r.do(ctx, func() error {
		var err error
		c, err = r.resolve(userID, a, false)
		return err
	})
	return c, err
}

// Precheck validates against the last published state without entering the
// inbox. Submit re-validates; a nil result here is advisory.
func (r *Room) Precheck(userID string, a match.Action) *match.Rejection {
	p := r.pub.Load()
	if p.state == nil {
		return match.Reject(match.IllegalPhase, "no match in progress")
	}
	if p.frozen && a.Kind != match.ActConcede {
		return match.Reject(match.IllegalPhase, "match is frozen")
	}
	return p.eng.Validate(p.state, userID, a)
}

func (r *Room) resolve(player string, a match.Action, implicit bool) (*match.Commit, error) {
	if r.current == nil {
		return nil, match.Reject(match.IllegalPhase, "no match in progress")
	}
	if r.frozen && a.Kind != match.ActConcede {
		return nil, match.Reject(match.IllegalPhase, "match is frozen")
	}
	c, next, err := r.eng.Resolve(r.current, player, a, implicit)
	if err != nil {
		if errors.Is(err, match.ErrInvariant) {
			r.freeze(player, a, err)
		}
		return nil, err
	}
	r.accept(c, next)
	return c, nil
}

func (r *Room) accept(c *match.Commit, next *match.State) {
	r.current = next
	r.commits = append(r.commits, *c)
	if next.Finished() {
		r.life = Finished
		r.sched.Stop()
	} else {
		r.rearm()
	}
	r.publish()
	r.feed.Publish(c, next, r.hintsFor(next))
	r.checkpoint()
	if next.Finished() {
		r.finish()
	}
}

func (r *Room) finish() {
	st := r.current
	r.log.Info("match_finished",
		zap.String("match_id", st.MatchID),
		zap.String("winner", st.Winner),
		zap.String("reason", st.FinishReason),
		zap.Uint64("sequence", st.Sequence))
	r.feed.Broadcast(dueldto.ServerMessage{
		Type:     dueldto.TypeMatchFinished,
		Finished: &dueldto.Finished{WinnerID: st.Winner, Reason: st.FinishReason},
	})
	ids := make([]string, 0, len(r.seats))
	for _, s := range r.seats {
		ids = append(ids, s.UserID)
	}
	r.release(ids...)
	r.broadcastRoom()
	r.archive(r.record())
}

// abort ends a match that cannot continue. Nobody wins and the record keeps
// the commits up to the last good state.
func (r *Room) abort(cause string) {
	st := r.current
	r.life = Finished
	r.sched.Stop()
	r.log.Warn("match_aborted",
		zap.String("match_id", st.MatchID),
		zap.String("cause", cause),
		zap.Uint64("sequence", st.Sequence))
	ids := make([]string, 0, len(r.seats))
	for _, s := range r.seats {
		ids = append(ids, s.UserID)
	}
	r.release(ids...)
	r.publish()
	r.feed.Broadcast(dueldto.ServerMessage{
		Type:     dueldto.TypeMatchFinished,
		Finished: &dueldto.Finished{Reason: match.ReasonAborted},
	})
	r.broadcastRoom()
	rec := r.record()
	rec.Winner, rec.Reason = "", match.ReasonAborted
	if r.opts.Archive == nil {
		r.dropCheckpoint()
	}
	r.archive(rec)
}

func (r *Room) record() *archive.Record {
	st := r.current
	return &archive.Record{
		MatchID:    st.MatchID,
		RoomID:     r.ID,
		Players:    [2]string{st.Players[0].ID, st.Players[1].ID},
		Winner:     st.Winner,
		Reason:     st.FinishReason,
		Seed:       st.Seed,
		Initial:    r.initial,
		Commits:    slices.Clone(r.commits),
		StartedAt:  r.startedAt,
		FinishedAt: time.Now(),
	}
}

// archive saves rec in the background and drops the checkpoint once the
// record is safe.
func (r *Room) archive(rec *archive.Record) {
	if r.opts.Archive == nil {
		return
	}
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := r.opts.Archive.SaveMatch(ctx, rec); err != nil {
			r.log.Error("archive_failed", zap.String("match_id", rec.MatchID), zap.Error(err))
			return
		}
		if r.opts.Checkpoints != nil {
			if err := r.opts.Checkpoints.Delete(ctx, r.ID); err != nil {
				r.log.Warn("checkpoint_delete_failed", zap.Error(err))
			}
		}
	}()
}

// freeze stops the match after an invariant violation. The last good state
// stays authoritative and every client is resynchronised from it. Only a
// concession (explicit, by leaving or by grace expiry) or the creator's
// close can end it before the frozen timeout aborts it.
func (r *Room) freeze(player string, a match.Action, cause error) {
	r.frozen = true
	r.armFrozen()
	r.log.Error("match_frozen",
		zap.String("match_id", r.current.MatchID),
		zap.String("player", player),
		zap.String("action", string(a.Kind)),
		zap.Uint64("sequence", r.current.Sequence),
		zap.Error(cause))
	r.publish()
	r.feed.Broadcast(dueldto.ServerMessage{Type: dueldto.TypeDiagnostic, Detail: cause.Error()})
	r.feed.Resync()
	r.checkpoint()
}

func (r *Room) armFrozen() {
	r.armed = turn.Key{}
	d := r.opts.Rules.FrozenTimeout
	if d <= 0 {
		r.sched.Cancel()
		return
	}
	k := turn.Key{Turn: r.current.Turn, Phase: r.current.Phase, Sequence: r.current.Sequence}
	r.sched.Arm(k, d, func(turn.Key) {
		r.post(func() {
			if r.frozen && r.life == InMatch {
				r.abort("frozen_timeout")
			}
		})
	})
}

// rearm schedules the phase timer whenever the turn or phase changed.
func (r *Room) rearm() {
	k := turn.Key{Turn: r.current.Turn, Phase: r.current.Phase, Sequence: r.current.Sequence}
	if k.Turn == r.armed.Turn && k.Phase == r.armed.Phase {
		return
	}
	r.armed = k
	d := r.opts.Rules.PhaseTimeout(k.Phase)
	if d <= 0 {
		r.sched.Cancel()
		return
	}
	r.sched.Arm(k, d, func(k turn.Key) {
		r.post(func() { r.timeout(k) })
	})
}

// timeout acts for whoever the phase is waiting on: an implicit keep-all
// mulligan for each pending player, otherwise an implicit end_phase.
func (r *Room) timeout(k turn.Key) {
	st := r.current
	if st == nil || r.frozen || st.Finished() || st.Turn != k.Turn || st.Phase != k.Phase {
		return
	}
	r.log.Info("phase_timeout", zap.String("phase", string(k.Phase)), zap.Int("turn", k.Turn), zap.String("active", st.Active))
	if k.Phase == match.PhaseMulligan {
		for _, p := range st.Players {
			if p.Mulliganed {
				continue
			}
			if _, err := r.resolve(p.ID, match.Action{Kind: match.ActMulligan, Sequence: r.current.Sequence}, true); err != nil {
				r.log.Warn("implicit_action_failed", zap.String("player", p.ID), zap.Error(err))
			}
			if r.frozen || r.current.Phase != match.PhaseMulligan {
				break
			}
		}
	} else if _, err := r.resolve(st.Active, match.Action{Kind: match.ActEndPhase, Sequence: st.Sequence}, true); err != nil {
		r.log.Warn("implicit_action_failed", zap.String("player", st.Active), zap.Error(err))
	}
	if !r.frozen && !r.current.Finished() && r.current.Turn == k.Turn && r.current.Phase == k.Phase {
		r.armed = turn.Key{}
		r.rearm()
	}
}

func (r *Room) graceExpired(player string) {
	r.post(func() {
		s := r.seat(player)
		if s == nil || s.Connected || r.life != InMatch {
			return
		}
		r.log.Info("grace_expired", zap.String("user_id", player))
		if _, err := r.resolve(player, match.Action{Kind: match.ActConcede}, true); err != nil {
			r.log.Warn("implicit_concede_failed", zap.String("user_id", player), zap.Error(err))
		}
	})
}

func (r *Room) seat(userID string) *Session {
	for _, s := range r.seats {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}

func (r *Room) release(userIDs ...string) {
	if len(userIDs) > 0 && r.opts.OnRelease != nil {
		r.opts.OnRelease(r.ID, userIDs...)
	}
}

func (r *Room) hintsFor(st *match.State) relay.HintsFunc {
	return func(viewer string) *dueldto.Hints {
		if r.seat(viewer) == nil {
			return nil
		}
		return relay.HintsDTO(r.eng.Hints(st, viewer))
	}
}

func (r *Room) roomView() dueldto.RoomView {
	v := dueldto.RoomView{ID: r.ID, CreatorID: r.creatorID, State: string(r.life), Seats: []dueldto.SeatView{}}
	if r.current != nil {
		v.MatchID = r.current.MatchID
	}
	for _, s := range r.seats {
		v.Seats = append(v.Seats, dueldto.SeatView{UserID: s.UserID, Name: s.Name, Connected: s.Connected})
	}
	return v
}

func (r *Room) publish() {
	p := &published{
		life:      r.life,
		room:      r.roomView(),
		state:     r.current,
		eng:       r.eng,
		connected: make(map[string]bool, len(r.seats)),
		deadline:  r.sched.Deadline(),
		frozen:    r.frozen,
	}
	for _, s := range r.seats {
		p.connected[s.UserID] = s.Connected
	}
	r.pub.Store(p)
}

func (r *Room) broadcastRoom() {
	v := r.pub.Load().room
	r.feed.Broadcast(dueldto.ServerMessage{Type: dueldto.TypeRoomState, Room: &v})
}

// snapshot builds the frame a newly attached or resynchronised connection
// starts from.
func (r *Room) snapshot(viewer string) dueldto.ServerMessage {
	p := r.pub.Load()
	if p.state == nil {
		v := p.room
		return dueldto.ServerMessage{Type: dueldto.TypeRoomState, RoomID: r.ID, Room: &v}
	}
	v := relay.ViewFor(p.state, viewer)
	for i := range v.Players {
		v.Players[i].Connected = p.connected[v.Players[i].ID]
	}
	if !p.deadline.IsZero() {
		d := p.deadline
		v.Deadline = &d
	}
	var h *dueldto.Hints
	if _, seated := p.connected[viewer]; seated {
		h = relay.HintsDTO(p.eng.Hints(p.state, viewer))
	}
	return relay.SnapshotMessage(r.ID, v, h)
}

// Snapshot returns the current frame for viewer.
func (r *Room) Snapshot(viewer string) dueldto.ServerMessage { return r.snapshot(viewer) }

func (r *Room) View() dueldto.RoomView { return r.pub.Load().room }

func (r *Room) Lifecycle() Lifecycle { return r.pub.Load().life }

// State is the last published match state; nil before the match starts.
// Callers must treat it as read-only.
func (r *Room) State() *match.State { return r.pub.Load().state }

func (r *Room) Frozen() bool { return r.pub.Load().frozen }

func (r *Room) checkpoint() {
	if r.opts.Checkpoints == nil || r.current == nil {
		return
	}
	seats := make([]Session, 0, len(r.seats))
	for _, s := range r.seats {
		seats = append(seats, *s)
	}
	r.cpPending.Store(&cpJob{cp: &Checkpoint{
		RoomID:    r.ID,
		CreatorID: r.creatorID,
		MatchID:   r.current.MatchID,
		Sequence:  r.current.Sequence,
		Seats:     seats,
		Initial:   r.initial,
		Commits:   slices.Clone(r.commits),
		Frozen:    r.frozen,
		StartedAt: r.startedAt,
		SavedAt:   time.Now(),
	}})
	r.signalCheckpoint()
}

func (r *Room) dropCheckpoint() {
	if r.opts.Checkpoints == nil {
		return
	}
	r.cpPending.Store(&cpJob{delete: true})
	r.signalCheckpoint()
}

func (r *Room) signalCheckpoint() {
	select {
	case r.cpSignal <- struct{}{}:
	default:
	}
}

// checkpointLoop writes checkpoints one at a time; a newer pending
// checkpoint replaces an older one that was not written yet.
func (r *Room) checkpointLoop() {
	defer r.bg.Done()
	for {
		select {
		case <-r.cpSignal:
			r.flushCheckpoint()
		case <-r.quit:
			r.flushCheckpoint()
			return
		}
	}
}

func (r *Room) flushCheckpoint() {
	job := r.cpPending.Swap(nil)
	if job == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	var err error
	if job.delete {
		err = r.opts.Checkpoints.Delete(ctx, r.ID)
	} else {
		err = r.opts.Checkpoints.Save(ctx, job.cp)
	}
	if err != nil {
		r.log.Warn("checkpoint_failed", zap.Bool("delete", job.delete), zap.Error(err))
	}
}

// restore rebuilds a room from cp by replaying its commit log. Every seat
// starts disconnected with a fresh grace period.
func restore(cp *Checkpoint, opts Options) (*Room, error) {
	if cp.Initial == nil || len(cp.Seats) != 2 || cp.Seats[0].Deck == nil || cp.Seats[1].Deck == nil {
		return nil, errors.New("checkpoint is incomplete")
	}
	current, err := match.Replay(cp.Initial, cp.Commits)
	if err != nil {
		return nil, err
	}
	r := newRoom(cp.RoomID, cp.CreatorID, opts)
	defs := cp.Seats[0].Deck.Defs.Merge(cp.Seats[1].Deck.Defs)
	eng, err := match.NewEngineWith(defs, opts.Rules, opts.Handlers)
	if err != nil {
		return nil, err
	}
	r.eng = eng
	r.initial, r.current = cp.Initial, current
	r.commits = slices.Clone(cp.Commits)
	r.frozen = cp.Frozen
	r.startedAt = cp.StartedAt
	r.life = InMatch
	if current.Finished() {
		r.life = Finished
	}
	for i := range cp.Seats {
		s := cp.Seats[i]
		s.Connected = false
		r.seats = append(r.seats, &s)
	}
	if r.life == InMatch {
		for _, s := range r.seats {
			r.sched.StartGrace(s.UserID, opts.Rules.DisconnectGrace, r.graceExpired)
		}
		if r.frozen {
			r.armFrozen()
		} else {
			r.rearm()
		}
	}
	return r, nil
}
