package match

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a request was refused.
type ErrorKind string

const (
	NotYourTurn          ErrorKind = "NotYourTurn"
	IllegalPhase         ErrorKind = "IllegalPhase"
	InvalidTarget        ErrorKind = "InvalidTarget"
	InsufficientResource ErrorKind = "InsufficientResource"
	StaleAction          ErrorKind = "StaleAction"
	RoomFull             ErrorKind = "RoomFull"
	DeckInvalid          ErrorKind = "DeckInvalid"
	AlreadyInMatch       ErrorKind = "AlreadyInMatch"
	ConnectionLost       ErrorKind = "ConnectionLost"
)

// Rejection is a recoverable refusal. State is never modified when one is returned.
type Rejection struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + ": " + r.Detail
}

func Reject(kind ErrorKind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a *Rejection when it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// ErrInvariant marks a broken state invariant. The match must be frozen.
var ErrInvariant = errors.New("match invariant violated")

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
