package match

import (
	"slices"

	"github.com/park285/Cheese-CardDuel/internal/catalog"
)

// Validate checks a against s without modifying anything. Checks run in a
// fixed order: turn ownership, sequence, phase, targets, cost, then combat
// eligibility. The first failure is returned.
func Validate(s *State, defs catalog.Set, rules Rules, player string, a Action) *Rejection {
	if s == nil || s.Finished() {
		return Reject(IllegalPhase, "match is finished")
	}
	p := s.Player(player)
	if p == nil {
		return Reject(NotYourTurn, "not a participant")
	}
	outOfTurn := rules.OutOfTurnAllowed(a.Kind)
	if !outOfTurn && s.Active != player {
		return Reject(NotYourTurn, "waiting for opponent")
	}
	if !outOfTurn && a.Sequence != s.Sequence {
		return Reject(StaleAction, "action built on sequence %d, current is %d", a.Sequence, s.Sequence)
	}
	if !rules.Allows(s.Phase, a.Kind) {
		return Reject(IllegalPhase, "%s not allowed during %s", a.Kind, s.Phase)
	}

	switch a.Kind {
	case ActMulligan:
		if p.Mulliganed {
			return Reject(IllegalPhase, "mulligan already chosen")
		}
		seen := make(map[string]bool, len(a.Return))
		for _, id := range a.Return {
			if seen[id] || !p.InHand(id) {
				return Reject(InvalidTarget, "card %s is not in hand", id)
			}
			seen[id] = true
		}
	case ActPlayCard:
		return validatePlay(s, defs, rules, p, a, true)
	case ActAttack:
		return validateAttack(s, defs, p, a)
	}
	return nil
}

func validatePlay(s *State, defs catalog.Set, rules Rules, p *PlayerState, a Action, checkTarget bool) *Rejection {
	if !p.InHand(a.Card) {
		return Reject(InvalidTarget, "card %s is not in hand", a.Card)
	}
	def, ok := defs.Get(s.Cards[a.Card].DefID)
	if !ok {
		return Reject(InvalidTarget, "card %s has no definition", a.Card)
	}
	switch def.Kind {
	case catalog.KindAlly, catalog.KindToken:
		hc := &Context{State: s, Defs: defs, Rules: rules}
		if hc.units(p) >= rules.BoardLimit {
			return Reject(InvalidTarget, "board is full")
		}
	case catalog.KindSpell:
	default:
		return Reject(InvalidTarget, "%s cards cannot be played", def.Kind)
	}
	if checkTarget {
		for _, ab := range def.AbilitiesFor(catalog.OnPlay) {
			if ab.Target != catalog.TargetChosen {
				continue
			}
			if rej := validateChosen(s, defs, p, ab, a.Target); rej != nil {
				return rej
			}
		}
	}
	if def.Cost > p.Resource {
		return Reject(InsufficientResource, "cost %d exceeds resource %d", def.Cost, p.Resource)
	}
	return nil
}

// validateChosen checks an explicit target against what the ability accepts.
func validateChosen(s *State, defs catalog.Set, p *PlayerState, ab catalog.Ability, t Target) *Rejection {
	if t.Player != "" && t.Card != "" {
		return Reject(InvalidTarget, "target either a card or a player")
	}
	if t.Player != "" {
		if ab.Effect == "buff" {
			return Reject(InvalidTarget, "%s needs a card target", ab.Effect)
		}
		if s.Player(t.Player) == nil {
			return Reject(InvalidTarget, "unknown player %s", t.Player)
		}
		return nil
	}
	c := s.Card(t.Card)
	if c == nil || c.Zone != ZoneBoard {
		return Reject(InvalidTarget, "target must be a card on the board")
	}
	if d, ok := defs.Get(c.DefID); ok && d.Kind == catalog.KindHero {
		return Reject(InvalidTarget, "heroes cannot be targeted")
	}
	if ab.Effect == "buff" && c.Owner != p.ID {
		return Reject(InvalidTarget, "buffs target your own cards")
	}
	return nil
}

func validateAttack(s *State, defs catalog.Set, p *PlayerState, a Action) *Rejection {
	att := s.Card(a.Card)
	if att == nil || att.Owner != p.ID || att.Zone != ZoneBoard {
		return Reject(InvalidTarget, "attacker %s is not on your board", a.Card)
	}
	opp := s.Opponent(p.ID)
	switch {
	case a.Target.Card != "" && a.Target.Player != "":
		return Reject(InvalidTarget, "target either a card or a player")
	case a.Target.Card != "":
		d := s.Card(a.Target.Card)
		if d == nil || d.Owner != opp.ID || d.Zone != ZoneBoard {
			return Reject(InvalidTarget, "defender %s is not on the opposing board", a.Target.Card)
		}
		if def, ok := defs.Get(d.DefID); ok && def.Kind == catalog.KindHero {
			return Reject(InvalidTarget, "heroes cannot be attacked")
		}
	case a.Target.Player != opp.ID:
		return Reject(InvalidTarget, "attacks must target the opponent")
	}

	if def, ok := defs.Get(att.DefID); !ok || !slices.Contains([]catalog.Kind{catalog.KindAlly, catalog.KindToken}, def.Kind) {
		return Reject(InvalidTarget, "%s cannot attack", a.Card)
	}
	if att.Acted {
		return Reject(InvalidTarget, "%s already attacked this turn", a.Card)
	}
	if att.Attack <= 0 {
		return Reject(InvalidTarget, "%s has no attack", a.Card)
	}
	return nil
}
