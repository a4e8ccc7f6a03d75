package room

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-CardDuel/internal/archive"
	"github.com/park285/Cheese-CardDuel/internal/deck"
	"github.com/park285/Cheese-CardDuel/internal/match"
	"github.com/park285/Cheese-CardDuel/internal/obslog"
	"github.com/park285/Cheese-CardDuel/internal/relay"
)

// Manager owns every room in the process and the user → room seat index
// that enforces one active seat per user.
type Manager struct {
	decks     deck.Source
	validator *deck.Validator
	opts      Options
	maxRooms  int
	log       *zap.Logger

	mu     sync.RWMutex
	rooms  map[string]*Room
	byUser map[string]string
}

type ManagerOptions struct {
	Rules       match.Rules
	Checkpoints CheckpointStore
	Archive     archive.Repository
	MaxRooms    int // 0 means unlimited
	QueueSize   int
	Handlers    map[string]match.Handler
}

func NewManager(decks deck.Source, validator *deck.Validator, o ManagerOptions) *Manager {
	m := &Manager{
		decks:     decks,
		validator: validator,
		maxRooms:  o.MaxRooms,
		log:       obslog.Named("rooms"),
		rooms:     make(map[string]*Room),
		byUser:    make(map[string]string),
	}
	m.opts = Options{
		Rules:       o.Rules,
		Checkpoints: o.Checkpoints,
		Archive:     o.Archive,
		QueueSize:   o.QueueSize,
		Handlers:    o.Handlers,
		OnRelease:   m.release,
		OnClosed:    m.remove,
	}
	return m
}

// Create opens a room with userID in the first seat. out may be nil.
func (m *Manager) Create(ctx context.Context, userID, name string, out relay.Egress) (*Room, *relay.Subscriber, error) {
	if userID == "" {
		return nil, nil, ErrInvalidArgs
	}
	inst, err := m.loadDeck(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	id := uuid.NewString()

	m.mu.Lock()
	if m.maxRooms > 0 && len(m.rooms) >= m.maxRooms {
		m.mu.Unlock()
		return nil, nil, ErrCapacity
	}
	if other, busy := m.byUser[userID]; busy {
		m.mu.Unlock()
		return nil, nil, match.Reject(match.AlreadyInMatch, "already seated in room %s", other)
	}
	r := newRoom(id, userID, m.opts)
	m.rooms[id] = r
	m.byUser[userID] = id
	m.mu.Unlock()
	r.start()

	sub, err := r.Join(ctx, JoinRequest{UserID: userID, Name: name, Deck: inst, Out: out})
	if err != nil {
		_ = r.Close(context.Background(), "")
		return nil, nil, err
	}
	m.log.Info("room_create", zap.String("room_id", id), zap.String("creator_id", userID))
	return r, sub, nil
}

// JoinRoom seats userID, reconnects them when already seated here, or
// attaches them as an observer when observe is set. Deck lookup and
// validation run before the room actor is involved.
func (m *Manager) JoinRoom(ctx context.Context, roomID, userID, name string, out relay.Egress, observe bool) (*Room, *relay.Subscriber, error) {
	if roomID == "" || userID == "" {
		return nil, nil, ErrInvalidArgs
	}
	r, ok := m.Get(roomID)
	if !ok {
		return nil, nil, ErrRoomNotFound
	}

	m.mu.RLock()
	seatedIn, busy := m.byUser[userID]
	m.mu.RUnlock()
	if observe || seatedIn == roomID {
		sub, err := r.Join(ctx, JoinRequest{UserID: userID, Name: name, Out: out})
		return r, sub, err
	}
	if busy {
		return nil, nil, match.Reject(match.AlreadyInMatch, "already seated in room %s", seatedIn)
	}
	if r.Lifecycle() != Waiting {
		return nil, nil, match.Reject(match.RoomFull, "room %s is %s", roomID, r.Lifecycle())
	}

	inst, err := m.loadDeck(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !m.reserve(userID, roomID) {
		return nil, nil, match.Reject(match.AlreadyInMatch, "already seated in another room")
	}
	sub, err := r.Join(ctx, JoinRequest{UserID: userID, Name: name, Deck: inst, Out: out})
	if err != nil {
		m.release(roomID, userID)
		return nil, nil, err
	}
	return r, sub, nil
}

func (m *Manager) LeaveRoom(ctx context.Context, roomID, userID string) error {
	r, ok := m.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return r.Leave(ctx, userID)
}

func (m *Manager) StartMatch(ctx context.Context, roomID, userID string) error {
	r, ok := m.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return r.Start(ctx, userID)
}

func (m *Manager) CloseRoom(ctx context.Context, roomID, userID string) error {
	r, ok := m.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return r.Close(ctx, userID)
}

func (m *Manager) Get(roomID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

// RoomOf returns the room userID is seated in.
func (m *Manager) RoomOf(userID string) (*Room, bool) {
	m.mu.RLock()
	id, ok := m.byUser[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Restore rebuilds in-match rooms from stored checkpoints. Checkpoints of
// finished matches are archived and removed. It returns how many rooms were
// restored.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	store := m.opts.Checkpoints
	if store == nil {
		return 0, nil
	}
	cps, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, cp := range cps {
		if _, exists := m.Get(cp.RoomID); exists {
			continue
		}
		r, err := restore(cp, m.opts)
		if err != nil {
			m.log.Warn("restore_failed", zap.String("room_id", cp.RoomID), zap.Error(err))
			_ = store.Delete(ctx, cp.RoomID)
			continue
		}
		if r.current.Finished() {
			r.Stop()
			if err := m.archiveFinished(ctx, r); err != nil {
				m.log.Warn("restore_archive_failed", zap.String("room_id", cp.RoomID), zap.Error(err))
				continue
			}
			_ = store.Delete(ctx, cp.RoomID)
			continue
		}
		m.mu.Lock()
		m.rooms[r.ID] = r
		for _, s := range r.seats {
			m.byUser[s.UserID] = r.ID
		}
		m.mu.Unlock()
		r.start()
		n++
		m.log.Info("room_restored", zap.String("room_id", r.ID), zap.String("match_id", r.current.MatchID), zap.Uint64("sequence", r.current.Sequence))
	}
	return n, nil
}

func (m *Manager) archiveFinished(ctx context.Context, r *Room) error {
	if m.opts.Archive == nil {
		return nil
	}
	return m.opts.Archive.SaveMatch(ctx, r.record())
}

// Shutdown stops every actor and waits for pending writes. Checkpoints are
// left in place for Restore.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		for _, r := range rooms {
			r.Stop()
			<-r.Done()
			r.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loadDeck(ctx context.Context, userID string) (*deck.Instance, error) {
	list, err := m.decks.GetSavedDeck(ctx, userID)
	if errors.Is(err, deck.ErrNoDeck) {
		return nil, match.Reject(match.DeckInvalid, "no saved deck")
	}
	if err != nil {
		return nil, err
	}
	return m.validator.Validate(ctx, list)
}

func (m *Manager) reserve(userID, roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byUser[userID]; ok && cur != roomID {
		return false
	}
	m.byUser[userID] = roomID
	return true
}

func (m *Manager) release(roomID string, userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range userIDs {
		if m.byUser[u] == roomID {
			delete(m.byUser, u)
		}
	}
}

func (m *Manager) remove(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	for u, id := range m.byUser {
		if id == roomID {
			delete(m.byUser, u)
		}
	}
}
