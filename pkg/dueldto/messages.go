package dueldto

// Client -> server message types.
const (
	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeLeaveRoom    = "leave_room"
	TypeStartMatch   = "start_match"
	TypeCloseRoom    = "close_room"
	TypeSubmitAction = "submit_action"
	TypeResync       = "resync"
)

// Server -> client message types.
const (
	TypeRoomState      = "room_state"
	TypeStateSnapshot  = "state_snapshot"
	TypeEvent          = "event"
	TypeActionRejected = "action_rejected"
	TypeMatchFinished  = "match_finished"
	TypeDiagnostic     = "diagnostic"
	TypeRoomClosed     = "room_closed"
	TypeError          = "error"
)

type ClientMessage struct {
	Type      string  `json:"type"`
	RoomID    string  `json:"room_id,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
	Observe   bool    `json:"observe,omitempty"`
	Action    *Action `json:"action,omitempty"`
}

type Target struct {
	Card   string `json:"card,omitempty"`
	Player string `json:"player,omitempty"`
}

type Action struct {
	Kind     string   `json:"kind"`
	Card     string   `json:"card,omitempty"`
	Target   Target   `json:"target,omitempty"`
	Return   []string `json:"return,omitempty"`
	Sequence uint64   `json:"sequence"`
}

// ServerMessage is the single envelope for everything the server sends.
// Sequence is set on snapshots and events.
type ServerMessage struct {
	Type      string      `json:"type"`
	RoomID    string      `json:"room_id,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Sequence  uint64      `json:"sequence,omitempty"`
	Room      *RoomView   `json:"room,omitempty"`
	Snapshot  *MatchView  `json:"snapshot,omitempty"`
	Hints     *Hints      `json:"hints,omitempty"`
	Events    []EventView `json:"events,omitempty"`
	Rejection *Rejection  `json:"rejection,omitempty"`
	Finished  *Finished   `json:"finished,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

type Rejection struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

type Finished struct {
	WinnerID string `json:"winner_id,omitempty"`
	Reason   string `json:"reason"`
}

type RoomView struct {
	ID        string     `json:"id"`
	CreatorID string     `json:"creator_id"`
	State     string     `json:"state"`
	Seats     []SeatView `json:"seats"`
	MatchID   string     `json:"match_id,omitempty"`
}

type SeatView struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}
