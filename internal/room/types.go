package room

import (
	"time"

	"github.com/park285/Cheese-CardDuel/internal/deck"
)

// Lifecycle of a room. Closed is terminal.
type Lifecycle string

const (
	Waiting  Lifecycle = "waiting"
	Ready    Lifecycle = "ready"
	InMatch  Lifecycle = "in_match"
	Finished Lifecycle = "finished"
	Closed   Lifecycle = "closed"
)

// Session is one seated player.
type Session struct {
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	Deck      *deck.Instance `json:"deck"`
	Connected bool           `json:"connected"`
	LastSeen  time.Time      `json:"last_seen"`
}

// Errors
var (
	ErrInvalidArgs  = errf("invalid arguments")
	ErrRoomNotFound = errf("room not found")
	ErrRoomClosed   = errf("room closed")
	ErrNotCreator   = errf("only the room creator can do that")
	ErrNotSeated    = errf("user is not seated in this room")
	ErrCapacity     = errf("server room capacity reached")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
