package match

// Hints lists what a player can do right now. It is advisory; Validate
// stays authoritative.
type Hints struct {
	Playable    []string `json:"playable,omitempty"`
	Attackers   []string `json:"attackers,omitempty"`
	CanEndPhase bool     `json:"can_end_phase"`
	CanMulligan bool     `json:"can_mulligan"`
}

func (e *Engine) Hints(s *State, player string) Hints {
	var h Hints
	p := s.Player(player)
	if p == nil || s.Finished() {
		return h
	}
	seq := s.Sequence
	h.CanMulligan = e.Validate(s, player, Action{Kind: ActMulligan, Sequence: seq}) == nil
	h.CanEndPhase = e.Validate(s, player, Action{Kind: ActEndPhase, Sequence: seq}) == nil
	if s.Active != player {
		return h
	}
	if e.rules.Allows(s.Phase, ActPlayCard) {
		for _, id := range p.Hand {
			if validatePlay(s, e.defs, e.rules, p, Action{Kind: ActPlayCard, Card: id}, false) == nil {
				h.Playable = append(h.Playable, id)
			}
		}
	}
	if e.rules.Allows(s.Phase, ActAttack) {
		opp := s.Opponent(player)
		for _, id := range p.Board {
			a := Action{Kind: ActAttack, Card: id, Target: Target{Player: opp.ID}, Sequence: seq}
			if e.Validate(s, player, a) == nil {
				h.Attackers = append(h.Attackers, id)
			}
		}
	}
	return h
}
