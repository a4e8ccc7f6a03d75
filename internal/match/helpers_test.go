package match

import (
	"encoding/json"
	"testing"

	"github.com/park285/Cheese-CardDuel/internal/catalog"
)

func testDefs() catalog.Set {
	return catalog.NewSet(
		&catalog.Card{ID: "hero", Kind: catalog.KindHero, Collectible: true},
		&catalog.Card{ID: "squire", Kind: catalog.KindAlly, Cost: 2, Attack: 2, Health: 2, Collectible: true},
		&catalog.Card{ID: "brute", Kind: catalog.KindAlly, Cost: 3, Attack: 3, Health: 2, Collectible: true},
		&catalog.Card{ID: "wall", Kind: catalog.KindAlly, Cost: 2, Attack: 2, Health: 3, Collectible: true},
		&catalog.Card{ID: "imp", Kind: catalog.KindAlly, Cost: 1, Attack: 2, Health: 1, Collectible: true, Abilities: []catalog.Ability{
			{Trigger: catalog.OnDeath, Effect: "damage", Target: catalog.TargetOpponent, Amount: 1},
		}},
		&catalog.Card{ID: "keeper", Kind: catalog.KindAlly, Cost: 3, Attack: 1, Health: 4, Collectible: true, Abilities: []catalog.Ability{
			{Trigger: catalog.OnTurnEnd, Effect: "heal", Target: catalog.TargetSelf, Amount: 2},
		}},
		&catalog.Card{ID: "bolt", Kind: catalog.KindSpell, Cost: 2, Collectible: true, Abilities: []catalog.Ability{
			{Trigger: catalog.OnPlay, Effect: "damage", Target: catalog.TargetChosen, Amount: 3},
		}},
		&catalog.Card{ID: "pact", Kind: catalog.KindSpell, Cost: 1, Collectible: true, Abilities: []catalog.Ability{
			{Trigger: catalog.Delayed, Effect: "gain_resource", Target: catalog.TargetSelf, Amount: 2},
		}},
		&catalog.Card{ID: "caller", Kind: catalog.KindAlly, Cost: 2, Attack: 1, Health: 1, Collectible: true, Abilities: []catalog.Ability{
			{Trigger: catalog.OnPlay, Effect: "summon_token", Target: catalog.TargetSelf, Token: "spark"},
		}},
		&catalog.Card{ID: "spark", Kind: catalog.KindToken, Attack: 1, Health: 1},
		&catalog.Card{ID: "mystery", Kind: catalog.KindSpell, Collectible: true, Abilities: []catalog.Ability{
			{Trigger: catalog.OnPlay, Effect: "mystery"},
		}},
	)
}

var deckCycle = []string{"squire", "brute", "wall", "imp", "keeper", "bolt", "pact", "caller"}

func testSeat(id string) Seat {
	cards := make([]string, 39)
	for i := range cards {
		cards[i] = deckCycle[i%len(deckCycle)]
	}
	return Seat{PlayerID: id, Name: id, Hero: "hero", Cards: cards}
}

func startMatch(seed uint64) (*Engine, *State, error) {
	rules := DefaultRules()
	eng := NewEngine(testDefs(), rules)
	s, err := NewMatch("m-test", seed, [2]Seat{testSeat("alice"), testSeat("bob")}, eng.Defs(), rules)
	return eng, s, err
}

// started returns a match past the mulligan: x is the active player.
func started(t *testing.T) (eng *Engine, s *State, x, y string) {
	t.Helper()
	eng, s, err := startMatch(7)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	for _, pid := range []string{"alice", "bob"} {
		_, next, err := eng.Resolve(s, pid, Action{Kind: ActMulligan}, false)
		if err != nil {
			t.Fatalf("mulligan %s: %v", pid, err)
		}
		s = next
	}
	if s.Phase != PhaseMain || s.Turn != 1 {
		t.Fatalf("expected main phase of turn 1, got %s/%d", s.Phase, s.Turn)
	}
	x = s.Active
	y = s.Opponent(x).ID
	return eng, s, x, y
}

// stage moves a card of def owned by owner into zone, preferring the deck.
func stage(t *testing.T, s *State, owner, def string, to Zone) string {
	t.Helper()
	p := s.Player(owner)
	for _, from := range []Zone{ZoneDeck, ZoneHand} {
		for _, id := range *p.zone(from) {
			if s.Cards[id].DefID != def {
				continue
			}
			if from != to {
				if err := s.move(p, id, from, to, -1); err != nil {
					t.Fatalf("stage %s: %v", def, err)
				}
			}
			return id
		}
	}
	t.Fatalf("no %s left for %s", def, owner)
	return ""
}

// stageAs stages a spell from the deck and relabels it as def, for
// definitions that are not part of the test deck.
func stageAs(t *testing.T, s *State, owner, def string, to Zone) string {
	t.Helper()
	id := stage(t, s, owner, "pact", to)
	s.Cards[id].DefID = def
	return id
}

func resolveOK(t *testing.T, eng *Engine, s *State, player string, a Action) (*Commit, *State) {
	t.Helper()
	a.Sequence = s.Sequence
	c, next, err := eng.Resolve(s, player, a, false)
	if err != nil {
		t.Fatalf("Resolve %s by %s: %v", a.Kind, player, err)
	}
	return c, next
}

func snapshotJSON(t testingT, s *State) string {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	return string(b)
}

type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

func eventTypes(c *Commit) []EventType {
	out := make([]EventType, len(c.Events))
	for i, e := range c.Events {
		out[i] = e.Type
	}
	return out
}
