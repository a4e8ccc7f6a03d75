package duelclient

import "github.com/park285/Cheese-CardDuel/pkg/dueldto"

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

type MessageCallback func(m dueldto.ServerMessage)

type StateCallback func(state State)

// HeaderProvider supplies handshake headers (e.g. X-User-Id) on every dial.
type HeaderProvider func() map[string]string
