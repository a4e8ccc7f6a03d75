// Package duelclient is a WebSocket client for the duel server with
// reconnect and per-room event ordering.
package duelclient

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-CardDuel/internal/relay"
	"github.com/park285/Cheese-CardDuel/pkg/dueldto"
)

var ErrNotConnected = errors.New("duelclient: not connected")

type callbackEntry struct {
	id       int
	callback MessageCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

type Client struct {
	wsURL string

	conn   *websocket.Conn
	state  State
	stateM sync.RWMutex

	msgCbs   []callbackEntry
	stateCbs []stateCallbackEntry
	nextCb   int
	cbM      sync.RWMutex

	inbox chan dueldto.ServerMessage

	// per-room ordering and the rooms to rejoin after a reconnect (value: observe)
	seqs  map[string]*relay.Resequencer
	rooms map[string]bool
	roomM sync.Mutex

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
	log            *zap.Logger
	reqSeq         atomic.Uint64
}

type Option func(*Client)

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headerProvider = h }
}

// WithUser sets the identity headers the gateway expects.
func WithUser(userID, name string) Option {
	return WithHeaderProvider(func() map[string]string {
		return map[string]string{"X-User-Id": userID, "X-User-Name": name}
	})
}

// WithReconnect enables reconnects; max <= 0 disables them.
func WithReconnect(max int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxReconnectAttempts = max
		c.reconnectDelay = delay
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

func WithInboxSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.inbox = make(chan dueldto.ServerMessage, n)
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(wsURL string, opts ...Option) *Client {
	c := &Client{
		wsURL:          wsURL,
		state:          StateDisconnected,
		reconnectDelay: 100 * time.Millisecond,
		pingInterval:   30 * time.Second,
		inbox:          make(chan dueldto.ServerMessage, 256),
		seqs:           make(map[string]*relay.Resequencer),
		rooms:          make(map[string]bool),
		stopCh:         make(chan struct{}),
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	return c
}

func (c *Client) Connect(ctx context.Context) error {
	switch c.State() {
	case StateConnected, StateConnecting:
		return nil
	}
	c.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := c.dial(dialCtx)
	if err != nil {
		c.setState(StateFailed)
		c.scheduleReconnect()
		return err
	}
	c.attach(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.buildHeaders(),
	})
	return conn, err
}

func (c *Client) attach(conn *websocket.Conn) {
	c.stateM.Lock()
	c.conn = conn
	c.stateM.Unlock()
	c.setState(StateConnected)

	c.wg.Add(2)
	go c.listen(conn)
	go c.pingLoop(conn)
}

func (c *Client) current() *websocket.Conn {
	c.stateM.RLock()
	defer c.stateM.RUnlock()
	return c.conn
}

func (c *Client) listen(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		var msg dueldto.ServerMessage
		if err := wsjson.Read(c.rootCtx, conn, &msg); err != nil {
			if c.isStopping() {
				return
			}
			c.log.Debug("duelclient_read_failed", zap.Error(err))
			c.drop(conn, websocket.StatusGoingAway, "reconnect")
			c.scheduleReconnect()
			return
		}
		for _, m := range c.order(msg) {
			c.deliver(m)
		}
	}
}

// order applies per-room sequencing to one incoming frame.
func (c *Client) order(m dueldto.ServerMessage) []dueldto.ServerMessage {
	c.roomM.Lock()
	defer c.roomM.Unlock()
	switch m.Type {
	case dueldto.TypeRoomClosed:
		delete(c.seqs, m.RoomID)
		delete(c.rooms, m.RoomID)
		return []dueldto.ServerMessage{m}
	case dueldto.TypeRoomState:
		// create_room is acknowledged with the request id
		if _, ok := c.rooms[m.RoomID]; !ok && m.RoomID != "" && m.RequestID != "" {
			c.rooms[m.RoomID] = false
		}
	}
	if m.RoomID == "" {
		return []dueldto.ServerMessage{m}
	}
	seq := c.seqs[m.RoomID]
	if seq == nil {
		seq = relay.NewResequencer(0)
		c.seqs[m.RoomID] = seq
	}
	if m.Type == dueldto.TypeStateSnapshot {
		seq.Reset(m.Sequence)
		return []dueldto.ServerMessage{m}
	}
	if m.Sequence == 0 {
		return []dueldto.ServerMessage{m}
	}
	ready, ok := seq.Offer(m)
	if !ok {
		roomID := m.RoomID
		go func() {
			ctx, cancel := context.WithTimeout(c.rootCtx, 5*time.Second)
			defer cancel()
			_, _ = c.Resync(ctx, roomID)
		}()
	}
	return ready
}

func (c *Client) deliver(m dueldto.ServerMessage) {
	c.cbM.RLock()
	callbacks := make([]callbackEntry, len(c.msgCbs))
	copy(callbacks, c.msgCbs)
	c.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(m)
		}
	}
	select {
	case c.inbox <- m:
	default:
		c.log.Warn("duelclient_inbox_full", zap.String("type", m.Type), zap.Uint64("sequence", m.Sequence))
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			if c.current() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(c.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				if c.isStopping() {
					return
				}
				// listen sees the closed conn and reconnects
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (c *Client) scheduleReconnect() {
	if c.maxReconnectAttempts <= 0 {
		c.setState(StateDisconnected)
		return
	}
	c.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(c.backoff(attempt)):
			}
			dialCtx, cancel := context.WithTimeout(c.rootCtx, 10*time.Second)
			conn, err := c.dial(dialCtx)
			cancel()
			if err != nil {
				continue
			}
			c.attach(conn)
			c.rejoin()
			return
		}
		c.setState(StateFailed)
	}()
}

// rejoin re-attaches to every room the client was in; the server answers
// each with a fresh snapshot.
func (c *Client) rejoin() {
	c.roomM.Lock()
	rooms := make(map[string]bool, len(c.rooms))
	for id, observe := range c.rooms {
		rooms[id] = observe
	}
	c.roomM.Unlock()
	for id, observe := range rooms {
		ctx, cancel := context.WithTimeout(c.rootCtx, 5*time.Second)
		if _, err := c.Send(ctx, dueldto.ClientMessage{Type: dueldto.TypeJoinRoom, RoomID: id, Observe: observe}); err != nil {
			c.log.Warn("duelclient_rejoin_failed", zap.String("room_id", id), zap.Error(err))
		}
		cancel()
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * c.reconnectDelay
}

// Send writes m, filling in a request id when it has none.
func (c *Client) Send(ctx context.Context, m dueldto.ClientMessage) (string, error) {
	conn := c.current()
	if conn == nil || c.State() != StateConnected {
		return "", ErrNotConnected
	}
	if m.RequestID == "" {
		m.RequestID = "r" + strconv.FormatUint(c.reqSeq.Add(1), 10)
	}
	switch m.Type {
	case dueldto.TypeJoinRoom:
		c.roomM.Lock()
		c.rooms[m.RoomID] = m.Observe
		c.roomM.Unlock()
	case dueldto.TypeLeaveRoom:
		c.roomM.Lock()
		delete(c.rooms, m.RoomID)
		delete(c.seqs, m.RoomID)
		c.roomM.Unlock()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return m.RequestID, wsjson.Write(ctx, conn, m)
}

func (c *Client) CreateRoom(ctx context.Context) (string, error) {
	return c.Send(ctx, dueldto.ClientMessage{Type: dueldto.TypeCreateRoom})
}

func (c *Client) JoinRoom(ctx context.Context, roomID string, observe bool) (string, error) {
	return c.Send(ctx, dueldto.ClientMessage{Type: dueldto.TypeJoinRoom, RoomID: roomID, Observe: observe})
}

func (c *Client) LeaveRoom(ctx context.Context, roomID string) (string, error) {
	return c.Send(ctx, dueldto.ClientMessage{Type: dueldto.TypeLeaveRoom, RoomID: roomID})
}

func (c *Client) StartMatch(ctx context.Context, roomID string) (string, error) {
	return c.Send(ctx, dueldto.ClientMessage{Type: dueldto.TypeStartMatch, RoomID: roomID})
}

func (c *Client) CloseRoom(ctx context.Context, roomID string) (string, error) {
	return c.Send(ctx, dueldto.ClientMessage{Type: dueldto.TypeCloseRoom, RoomID: roomID})
}

func (c *Client) Submit(ctx context.Context, roomID string, a dueldto.Action) (string, error) {
	return c.Send(ctx, dueldto.ClientMessage{Type: dueldto.TypeSubmitAction, RoomID: roomID, Action: &a})
}

func (c *Client) Resync(ctx context.Context, roomID string) (string, error) {
	return c.Send(ctx, dueldto.ClientMessage{Type: dueldto.TypeResync, RoomID: roomID})
}

// LastSequence is the last in-order sequence seen for roomID.
func (c *Client) LastSequence(roomID string) uint64 {
	c.roomM.Lock()
	defer c.roomM.Unlock()
	if seq := c.seqs[roomID]; seq != nil {
		return seq.Last()
	}
	return 0
}

// Next returns the next delivered frame.
func (c *Client) Next(ctx context.Context) (dueldto.ServerMessage, error) {
	select {
	case m := <-c.inbox:
		return m, nil
	case <-ctx.Done():
		return dueldto.ServerMessage{}, ctx.Err()
	}
}

// Await discards frames until match returns true.
func (c *Client) Await(ctx context.Context, match func(dueldto.ServerMessage) bool) (dueldto.ServerMessage, error) {
	for {
		m, err := c.Next(ctx)
		if err != nil {
			return m, err
		}
		if match(m) {
			return m, nil
		}
	}
}

func (c *Client) OnMessage(cb MessageCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCb++
	c.msgCbs = append(c.msgCbs, callbackEntry{id: c.nextCb, callback: cb})
	return c.nextCb
}

func (c *Client) RemoveMessageCallback(id int) {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	for i, cb := range c.msgCbs {
		if cb.id == id {
			c.msgCbs = append(c.msgCbs[:i], c.msgCbs[i+1:]...)
			break
		}
	}
}

func (c *Client) OnStateChange(cb StateCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCb++
	c.stateCbs = append(c.stateCbs, stateCallbackEntry{id: c.nextCb, callback: cb})
	return c.nextCb
}

func (c *Client) RemoveStateCallback(id int) {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	for i, cb := range c.stateCbs {
		if cb.id == id {
			c.stateCbs = append(c.stateCbs[:i], c.stateCbs[i+1:]...)
			break
		}
	}
}

func (c *Client) State() State {
	c.stateM.RLock()
	defer c.stateM.RUnlock()
	return c.state
}

func (c *Client) setState(state State) {
	c.stateM.Lock()
	c.state = state
	c.stateM.Unlock()

	c.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(c.stateCbs))
	copy(callbacks, c.stateCbs)
	c.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

// Drop closes the current connection as if the network failed; the client
// reconnects when reconnects are enabled.
func (c *Client) Drop() {
	if conn := c.current(); conn != nil {
		_ = conn.Close(websocket.StatusGoingAway, "drop")
	}
}

func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if conn := c.current(); conn != nil {
		c.drop(conn, websocket.StatusNormalClosure, "close")
	}
	c.rootCancel()
	c.setState(StateDisconnected)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (c *Client) drop(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	c.stateM.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.stateM.Unlock()
	_ = conn.Close(code, reason)
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Client) buildHeaders() http.Header {
	hdr := http.Header{}
	if c.headerProvider == nil {
		return hdr
	}
	for k, v := range c.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
