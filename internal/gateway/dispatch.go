package gateway

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/Cheese-CardDuel/internal/match"
	"github.com/park285/Cheese-CardDuel/internal/room"
	"github.com/park285/Cheese-CardDuel/pkg/dueldto"
)

var errBadRequest = errors.New("bad request")

// dispatch handles one client frame. Failures are reported back on the same
// connection; nothing here closes it.
func (s *Server) dispatch(ctx context.Context, c *conn, msg dueldto.ClientMessage) {
	var err error
	switch msg.Type {
	case dueldto.TypeCreateRoom:
		err = s.createRoom(ctx, c, msg)
	case dueldto.TypeJoinRoom:
		err = s.joinRoom(ctx, c, msg)
	case dueldto.TypeLeaveRoom:
		err = s.leaveRoom(ctx, c, msg)
	case dueldto.TypeStartMatch:
		err = s.rooms.StartMatch(ctx, msg.RoomID, c.userID)
	case dueldto.TypeCloseRoom:
		err = s.rooms.CloseRoom(ctx, msg.RoomID, c.userID)
	case dueldto.TypeSubmitAction:
		err = s.submit(ctx, c, msg)
	case dueldto.TypeResync:
		err = s.resync(ctx, c, msg)
	default:
		err = fmt.Errorf("%w: unknown message type %q", errBadRequest, msg.Type)
	}
	if err != nil {
		s.fail(ctx, c, msg, err)
	}
}

func (s *Server) createRoom(ctx context.Context, c *conn, msg dueldto.ClientMessage) error {
	r, sub, err := s.rooms.Create(ctx, c.userID, c.name, c)
	if err != nil {
		return err
	}
	c.attach(r, sub)
	v := r.View()
	return c.Send(ctx, dueldto.ServerMessage{Type: dueldto.TypeRoomState, RoomID: r.ID, RequestID: msg.RequestID, Room: &v})
}

func (s *Server) joinRoom(ctx context.Context, c *conn, msg dueldto.ClientMessage) error {
	if msg.RoomID == "" {
		return fmt.Errorf("%w: room_id required", errBadRequest)
	}
	r, sub, err := s.rooms.JoinRoom(ctx, msg.RoomID, c.userID, c.name, c, msg.Observe)
	if err != nil {
		return err
	}
	c.attach(r, sub)
	return nil
}

func (s *Server) leaveRoom(ctx context.Context, c *conn, msg dueldto.ClientMessage) error {
	err := s.rooms.LeaveRoom(ctx, msg.RoomID, c.userID)
	attached := c.lookup(msg.RoomID) != nil
	c.detach(ctx, msg.RoomID)
	// 관전자는 좌석이 없으니 구독 해제만으로 충분
	if errors.Is(err, room.ErrNotSeated) && attached {
		return nil
	}
	return err
}

func (s *Server) submit(ctx context.Context, c *conn, msg dueldto.ClientMessage) error {
	if msg.Action == nil {
		return fmt.Errorf("%w: action required", errBadRequest)
	}
	r, ok := s.rooms.Get(msg.RoomID)
	if !ok {
		return room.ErrRoomNotFound
	}
	a := toAction(*msg.Action)
	if rej := r.Precheck(c.userID, a); rej != nil {
		return rej
	}
	_, err := r.Submit(ctx, c.userID, a)
	if errors.Is(err, room.ErrRoomClosed) {
		return match.Reject(match.ConnectionLost, "room %s is no longer running", msg.RoomID)
	}
	return err
}

func (s *Server) resync(ctx context.Context, c *conn, msg dueldto.ClientMessage) error {
	r, ok := s.rooms.Get(msg.RoomID)
	if !ok {
		return room.ErrRoomNotFound
	}
	snap := r.Snapshot(c.userID)
	snap.RequestID = msg.RequestID
	return c.Send(ctx, snap)
}

func (s *Server) fail(ctx context.Context, c *conn, msg dueldto.ClientMessage, err error) {
	out := dueldto.ServerMessage{RoomID: msg.RoomID, RequestID: msg.RequestID}
	if rej, ok := match.AsRejection(err); ok {
		out.Type = dueldto.TypeActionRejected
		out.Rejection = &dueldto.Rejection{
			Kind:   string(rej.Kind),
			Detail: s.msgs.Reject(string(rej.Kind), rej.Detail),
		}
		c.log.Debug("request_rejected", zap.String("type", msg.Type), zap.String("kind", string(rej.Kind)), zap.String("detail", rej.Detail))
	} else {
		out.Type = dueldto.TypeError
		out.Detail = s.errorText(msg.RoomID, err)
	}
	if err := c.Send(ctx, out); err != nil && !errors.Is(err, errConnClosed) {
		c.log.Debug("reply_dropped", zap.Error(err))
	}
}

func (s *Server) errorText(roomID string, err error) string {
	data := map[string]any{"room": roomID, "detail": err.Error()}
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, room.ErrInvalidArgs):
		return s.msgs.Text("error.bad_request", data, err.Error())
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrRoomClosed):
		return s.msgs.Text("error.not_found", data, err.Error())
	case errors.Is(err, room.ErrNotSeated):
		return s.msgs.Text("error.not_seated", data, err.Error())
	case errors.Is(err, room.ErrNotCreator):
		return s.msgs.Text("error.not_creator", data, err.Error())
	case errors.Is(err, room.ErrCapacity):
		return s.msgs.Text("error.capacity", data, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err.Error()
	}
	s.log.Error("request_failed", zap.String("room_id", roomID), zap.Error(err))
	return s.msgs.Text("error.internal", data, "internal error")
}

func toAction(a dueldto.Action) match.Action {
	return match.Action{
		Kind:     match.ActionKind(a.Kind),
		Card:     a.Card,
		Target:   match.Target{Card: a.Target.Card, Player: a.Target.Player},
		Return:   a.Return,
		Sequence: a.Sequence,
	}
}
