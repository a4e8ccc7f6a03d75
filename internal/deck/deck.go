// Package deck validates saved decks and freezes them for a match.
package deck

import (
	"context"
	"errors"

	"github.com/park285/Cheese-CardDuel/internal/catalog"
	"github.com/park285/Cheese-CardDuel/internal/match"
)

type Entry struct {
	CardID string `json:"card_id" yaml:"card_id"`
	Count  int    `json:"count" yaml:"count"`
}

// List is a saved deck as stored by the content service.
type List struct {
	UserID  string  `json:"user_id" yaml:"user_id"`
	Name    string  `json:"name" yaml:"name"`
	Entries []Entry `json:"entries" yaml:"entries"`
}

// Size counts cards with repetition.
func (l List) Size() int {
	n := 0
	for _, e := range l.Entries {
		n += e.Count
	}
	return n
}

// Source returns a user's saved deck.
type Source interface {
	GetSavedDeck(ctx context.Context, userID string) (*List, error)
}

var ErrNoDeck = errors.New("no saved deck")

// Instance is a validated deck copied for one match. It never changes after
// validation, even if the saved deck does.
type Instance struct {
	Owner string      `json:"owner"`
	Name  string      `json:"name"`
	Hero  string      `json:"hero"`
	Cards []string    `json:"cards"`
	Defs  catalog.Set `json:"defs"`
}

func (in *Instance) Seat(displayName string) match.Seat {
	return match.Seat{
		PlayerID: in.Owner,
		Name:     displayName,
		Hero:     in.Hero,
		Cards:    append([]string(nil), in.Cards...),
	}
}
