package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-CardDuel/internal/relay"
	"github.com/park285/Cheese-CardDuel/internal/room"
	"github.com/park285/Cheese-CardDuel/pkg/dueldto"
)

const writeQueueSize = 128

var errConnClosed = errors.New("connection closed")

// membership is one room this connection is attached to.
type membership struct {
	room *room.Room
	sub  *relay.Subscriber
	stop chan struct{}
}

// conn is one WebSocket client. It is the relay.Egress for every room the
// client attaches to; all frames funnel through writeCh into a single writer.
type conn struct {
	id     string
	userID string
	name   string
	srv    *Server
	ws     *websocket.Conn
	log    *zap.Logger

	writeCh chan dueldto.ServerMessage
	done    chan struct{}
	closed  atomic.Bool

	mu    sync.Mutex
	rooms map[string]*membership
}

func newConn(s *Server, ws *websocket.Conn, userID, name string) *conn {
	id := uuid.NewString()
	return &conn{
		id:      id,
		userID:  userID,
		name:    name,
		srv:     s,
		ws:      ws,
		log:     s.log.With(zap.String("conn_id", id), zap.String("user_id", userID)),
		writeCh: make(chan dueldto.ServerMessage, writeQueueSize),
		done:    make(chan struct{}),
		rooms:   make(map[string]*membership),
	}
}

func (c *conn) run(ctx context.Context) error {
	c.log.Info("ws_open")
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return c.readLoop(gctx) })
	eg.Go(func() error { return c.writeLoop(gctx) })
	eg.Go(func() error { return c.pingLoop(gctx) })
	err := eg.Wait()

	c.close(websocket.StatusNormalClosure, "")
	c.detachAll()
	c.log.Info("ws_close")
	return err
}

// Send queues m for the writer. It blocks while the queue is full.
func (c *conn) Send(ctx context.Context, m dueldto.ServerMessage) error {
	if m.Type == dueldto.TypeMatchFinished && m.Finished != nil && m.Detail == "" {
		m.Detail = c.srv.msgs.Finish(m.Finished.WinnerID, m.Finished.Reason)
	}
	select {
	case c.writeCh <- m:
		return nil
	case <-c.done:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) close(code websocket.StatusCode, reason string) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)
	_ = c.ws.Close(code, reason)
}

func (c *conn) readLoop(ctx context.Context) error {
	defer c.close(websocket.StatusNormalClosure, "")
	for {
		var msg dueldto.ClientMessage
		if err := wsjson.Read(ctx, c.ws, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		c.srv.dispatch(ctx, c, msg)
	}
}

func (c *conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case m := <-c.writeCh:
			wctx, cancel := context.WithTimeout(ctx, c.srv.opts.WriteTimeout)
			err := wsjson.Write(wctx, c.ws, m)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (c *conn) pingLoop(ctx context.Context) error {
	t := time.NewTicker(c.srv.opts.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				return err
			}
		}
	}
}

// attach records a room subscription and watches for the room closing.
func (c *conn) attach(r *room.Room, sub *relay.Subscriber) {
	if sub == nil {
		return
	}
	m := &membership{room: r, sub: sub, stop: make(chan struct{})}
	c.mu.Lock()
	prev := c.rooms[r.ID]
	c.rooms[r.ID] = m
	c.mu.Unlock()
	if prev != nil {
		close(prev.stop)
		// 같은 방에 새 구독이 붙었으니 이전 구독만 정리
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.srv.opts.WriteTimeout)
			defer cancel()
			_ = prev.room.Disconnect(ctx, prev.sub)
		}()
	}
	go c.watch(m)
}

func (c *conn) watch(m *membership) {
	select {
	case <-m.room.Done():
		if m.room.Lifecycle() == room.Closed {
			ctx, cancel := context.WithTimeout(context.Background(), c.srv.opts.WriteTimeout)
			_ = c.Send(ctx, dueldto.ServerMessage{
				Type:   dueldto.TypeRoomClosed,
				RoomID: m.room.ID,
				Detail: c.srv.msgs.Text("room.closed", map[string]any{"room": m.room.ID}, "room closed"),
			})
			cancel()
		}
		c.forget(m)
	case <-m.stop:
	case <-c.done:
	}
}

// lookup returns the live subscription for roomID, if any.
func (c *conn) lookup(roomID string) *membership {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[roomID]
}

func (c *conn) forget(m *membership) {
	c.mu.Lock()
	if c.rooms[m.room.ID] == m {
		delete(c.rooms, m.room.ID)
	}
	c.mu.Unlock()
}

// detach drops the subscription for roomID and reports the disconnect to the room.
func (c *conn) detach(ctx context.Context, roomID string) {
	c.mu.Lock()
	m := c.rooms[roomID]
	delete(c.rooms, roomID)
	c.mu.Unlock()
	if m == nil {
		return
	}
	close(m.stop)
	if err := m.room.Disconnect(ctx, m.sub); err != nil && !errors.Is(err, room.ErrRoomClosed) {
		c.log.Warn("room_disconnect_failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

func (c *conn) detachAll() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c.detach(ctx, id)
		cancel()
	}
}
