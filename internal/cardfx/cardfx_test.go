package cardfx

import (
	"slices"
	"testing"

	"github.com/park285/Cheese-CardDuel/internal/catalog"
	"github.com/park285/Cheese-CardDuel/internal/match"
)

func TestDrainHitsOpponentAndHealsController(t *testing.T) {
	defs := catalog.NewSet(
		&catalog.Card{ID: "hero", Kind: catalog.KindHero, Collectible: true},
		&catalog.Card{ID: "siphon", Kind: catalog.KindSpell, Cost: 1, Collectible: true, Abilities: []catalog.Ability{
			{Trigger: catalog.OnPlay, Effect: EffectDrain, Target: catalog.TargetOpponent, Amount: 3},
		}},
	)
	rules := match.DefaultRules()
	eng, err := match.NewEngineWith(defs, rules, Handlers())
	if err != nil {
		t.Fatalf("NewEngineWith: %v", err)
	}
	seat := func(id string) match.Seat {
		cards := make([]string, rules.DeckSize-1)
		for i := range cards {
			cards[i] = "siphon"
		}
		return match.Seat{PlayerID: id, Name: id, Hero: "hero", Cards: cards}
	}
	s, err := match.NewMatch("m-drain", 3, [2]match.Seat{seat("alice"), seat("bob")}, defs, rules)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	for _, p := range []string{"alice", "bob"} {
		_, next, err := eng.Resolve(s, p, match.Action{Kind: match.ActMulligan}, false)
		if err != nil {
			t.Fatalf("mulligan %s: %v", p, err)
		}
		s = next
	}
	x := s.Active
	y := s.Opponent(x).ID
	s.Player(x).Life = 15
	s.Player(x).Resource = 1

	c, next, err := eng.Resolve(s, x, match.Action{Kind: match.ActPlayCard, Card: s.Player(x).Hand[0], Sequence: s.Sequence}, false)
	if err != nil {
		t.Fatalf("play siphon: %v", err)
	}
	var got []match.EventType
	for _, ev := range c.Events {
		got = append(got, ev.Type)
	}
	if want := []match.EventType{match.EvCardPlayed, match.EvDamage, match.EvHeal}; !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if next.Player(y).Life != 17 || next.Player(x).Life != 18 {
		t.Fatalf("life x=%d y=%d", next.Player(x).Life, next.Player(y).Life)
	}
	if !match.Supports(EffectDrain, Handlers()) {
		t.Fatal("drain not reported as supported")
	}
}
