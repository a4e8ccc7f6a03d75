package match

import (
	"fmt"
	"math/rand/v2"

	"github.com/park285/Cheese-CardDuel/internal/catalog"
)

// Seat is one player's entry into a match: the hero plus the remaining deck cards.
type Seat struct {
	PlayerID string
	Name     string
	Hero     string
	Cards    []string
}

// NewMatch deals a fresh match. The shuffle and the first player derive from
// seed only, so the returned state is the replay origin.
func NewMatch(matchID string, seed uint64, seats [2]Seat, defs catalog.Set, rules Rules) (*State, error) {
	if seats[0].PlayerID == "" || seats[1].PlayerID == "" || seats[0].PlayerID == seats[1].PlayerID {
		return nil, fmt.Errorf("need two distinct players")
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	s := &State{
		MatchID:      matchID,
		Seed:         seed,
		Cards:        make(map[string]*CardInstance),
		Phase:        PhaseMulligan,
		Status:       StatusActive,
		InitialCount: rules.DeckSize,
	}
	for i, seat := range seats {
		if len(seat.Cards)+1 != rules.DeckSize {
			return nil, fmt.Errorf("seat %d: %d cards, want %d", i, len(seat.Cards)+1, rules.DeckSize)
		}
		p := &PlayerState{
			ID:      seat.PlayerID,
			Name:    seat.Name,
			Life:    rules.StartingLife,
			Deck:    []string{},
			Hand:    []string{},
			Board:   []string{},
			Discard: []string{},
		}
		heroDef, ok := defs.Get(seat.Hero)
		if !ok {
			return nil, fmt.Errorf("seat %d: unknown hero %s", i, seat.Hero)
		}
		hero := newInstance(fmt.Sprintf("p%d-00", i+1), heroDef, p.ID)
		hero.Zone = ZoneBoard
		s.Cards[hero.ID] = hero
		p.Board = append(p.Board, hero.ID)

		order := rng.Perm(len(seat.Cards))
		for n, idx := range order {
			def, ok := defs.Get(seat.Cards[idx])
			if !ok {
				return nil, fmt.Errorf("seat %d: unknown card %s", i, seat.Cards[idx])
			}
			c := newInstance(fmt.Sprintf("p%d-%02d", i+1, n+1), def, p.ID)
			s.Cards[c.ID] = c
			p.Deck = append(p.Deck, c.ID)
		}
		for n := 0; n < rules.OpeningHand; n++ {
			id := p.Deck[0]
			p.Deck = p.Deck[1:]
			s.Cards[id].Zone = ZoneHand
			p.Hand = append(p.Hand, id)
		}
		s.Players[i] = p
	}
	s.Active = s.Players[rng.IntN(2)].ID
	return s, nil
}

func newInstance(id string, def *catalog.Card, owner string) *CardInstance {
	return &CardInstance{
		ID:        id,
		DefID:     def.ID,
		Owner:     owner,
		Zone:      ZoneDeck,
		Attack:    def.Attack,
		Health:    def.Health,
		MaxHealth: def.Health,
	}
}
