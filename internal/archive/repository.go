// Package archive stores finished matches: the initial snapshot plus the
// ordered commit log, enough to replay any match exactly.
package archive

import (
	"context"
	"errors"
	"time"

	"github.com/park285/Cheese-CardDuel/internal/match"
)

//go:generate go tool mockgen -destination=./mocks/repository_mock.go -package=mocks . Repository

var ErrNotFound = errors.New("archive: match not found")

// Record is one archived match.
type Record struct {
	MatchID    string         `json:"match_id"`
	RoomID     string         `json:"room_id"`
	Players    [2]string      `json:"players"`
	Winner     string         `json:"winner,omitempty"`
	Reason     string         `json:"reason"`
	Seed       uint64         `json:"seed"`
	Initial    *match.State   `json:"initial"`
	Commits    []match.Commit `json:"commits"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Final rebuilds the end state by replaying the commit log.
func (r *Record) Final() (*match.State, error) {
	return match.Replay(r.Initial, r.Commits)
}

func (r *Record) Duration() time.Duration {
	d := r.FinishedAt.Sub(r.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

type Repository interface {
	SaveMatch(ctx context.Context, rec *Record) error
	GetMatch(ctx context.Context, matchID string) (*Record, error)
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]*Record, error)
}
