package match

import "slices"

// Apply performs the state change described by ev. It is the only code path
// that mutates a State, which is what makes replay exact.
func Apply(s *State, ev Event) error {
	pl := ev.Payload
	switch ev.Type {
	case EvMulligan:
		p := s.Player(pl.Player)
		if p == nil {
			return invariantf("mulligan: unknown player %s", pl.Player)
		}
		for _, id := range pl.Cards {
			if err := s.move(p, id, ZoneHand, ZoneDeck, -1); err != nil {
				return err
			}
		}
		for _, id := range pl.Drawn {
			if err := s.move(p, id, ZoneDeck, ZoneHand, -1); err != nil {
				return err
			}
		}
		p.Mulliganed = true

	case EvCardsDrawn:
		p := s.Player(pl.Player)
		if p == nil {
			return invariantf("draw: unknown player %s", pl.Player)
		}
		for _, id := range pl.Cards {
			if err := s.move(p, id, ZoneDeck, ZoneHand, -1); err != nil {
				return err
			}
		}
		p.Life = floor(p.Life - pl.Amount)

	case EvCardPlayed:
		p := s.Player(pl.Player)
		if p == nil {
			return invariantf("play: unknown player %s", pl.Player)
		}
		if err := s.move(p, pl.Card, ZoneHand, pl.Zone, -1); err != nil {
			return err
		}
		p.Resource = floor(p.Resource - pl.Cost)
		s.Cards[pl.Card].Acted = false
		s.Delayed = append(s.Delayed, pl.Delayed...)

	case EvCombat, EvDamage:
		if ev.Type == EvCombat {
			if c := s.Card(pl.Card); c != nil {
				c.Acted = true
			}
		}
		for _, h := range pl.Hits {
			if err := s.hit(h); err != nil {
				return err
			}
		}
		for _, d := range pl.Deaths {
			p := s.Player(d.Owner)
			if p == nil {
				return invariantf("death: unknown owner %s", d.Owner)
			}
			if err := s.move(p, d.Card, ZoneBoard, ZoneDiscard, -1); err != nil {
				return err
			}
		}

	case EvHeal:
		switch {
		case pl.Target.Card != "":
			c := s.Card(pl.Target.Card)
			if c == nil {
				return invariantf("heal: unknown card %s", pl.Target.Card)
			}
			c.Health += pl.Amount
		case pl.Target.Player != "":
			p := s.Player(pl.Target.Player)
			if p == nil {
				return invariantf("heal: unknown player %s", pl.Target.Player)
			}
			p.Life += pl.Amount
		}

	case EvBuff:
		if pl.Card == "" {
			return nil // fizzled
		}
		c := s.Card(pl.Card)
		if c == nil {
			return invariantf("buff: unknown card %s", pl.Card)
		}
		c.Attack = floor(c.Attack + pl.Attack)
		c.Health = floor(c.Health + pl.Health)
		c.MaxHealth = floor(c.MaxHealth + pl.Health)
		c.Modifiers = append(c.Modifiers, Modifier{Source: pl.Def, Attack: pl.Attack, Health: pl.Health})
		for _, d := range pl.Deaths {
			p := s.Player(d.Owner)
			if p == nil {
				return invariantf("death: unknown owner %s", d.Owner)
			}
			if err := s.move(p, d.Card, ZoneBoard, ZoneDiscard, -1); err != nil {
				return err
			}
		}

	case EvTokenSummoned:
		if pl.Card == "" {
			return nil
		}
		p := s.Player(pl.Player)
		if p == nil {
			return invariantf("token: unknown player %s", pl.Player)
		}
		if _, dup := s.Cards[pl.Card]; dup {
			return invariantf("token: id %s already used", pl.Card)
		}
		s.Cards[pl.Card] = &CardInstance{
			ID: pl.Card, DefID: pl.Def, Owner: p.ID, Zone: ZoneBoard,
			Attack: pl.Attack, Health: pl.Health, MaxHealth: pl.Health, Token: true,
		}
		p.Board = append(p.Board, pl.Card)
		s.TokenSeq++

	case EvResourceGained:
		p := s.Player(pl.Player)
		if p == nil {
			return invariantf("resource: unknown player %s", pl.Player)
		}
		p.Resource = floor(p.Resource + pl.Amount)

	case EvPhaseChanged:
		if len(s.Stack) > 0 {
			return invariantf("phase change %s->%s with %d pending entries", pl.From, pl.To, len(s.Stack))
		}
		if s.Phase != pl.From {
			return invariantf("phase change from %s but state is in %s", pl.From, s.Phase)
		}
		s.Phase = pl.To
		s.Active = pl.Active
		s.Turn = pl.Turn
		if pl.Refresh {
			p := s.Player(pl.Active)
			if p == nil {
				return invariantf("phase: unknown active player %s", pl.Active)
			}
			p.MaxResource = pl.MaxResource
			p.Resource = pl.Resource
			for _, id := range p.Board {
				s.Cards[id].Acted = false
			}
			s.Delayed = slices.DeleteFunc(s.Delayed, func(d DelayedTrigger) bool {
				return d.Entry.Controller == pl.Active && d.FireTurn <= pl.Turn
			})
		}

	case EvMatchFinished:
		s.Status = StatusFinished
		s.Winner = pl.Winner
		s.FinishReason = pl.Reason
		s.Stack = nil

	default:
		return invariantf("unknown event type %q", ev.Type)
	}
	return nil
}

// move relocates id between two zones of p. pos < 0 appends.
func (s *State) move(p *PlayerState, id string, from, to Zone, pos int) error {
	c := s.Card(id)
	if c == nil {
		return invariantf("move: unknown card %s", id)
	}
	if c.Owner != p.ID || c.Zone != from {
		return invariantf("move: card %s is %s/%s, want %s/%s", id, c.Owner, c.Zone, p.ID, from)
	}
	src, dst := p.zone(from), p.zone(to)
	if src == nil || dst == nil {
		return invariantf("move: bad zones %s -> %s", from, to)
	}
	i := slices.Index(*src, id)
	if i < 0 {
		return invariantf("move: card %s missing from %s", id, from)
	}
	*src = slices.Delete(*src, i, i+1)
	if pos < 0 || pos > len(*dst) {
		*dst = append(*dst, id)
	} else {
		*dst = slices.Insert(*dst, pos, id)
	}
	c.Zone = to
	return nil
}

func (s *State) hit(h Hit) error {
	switch {
	case h.Target.Card != "":
		c := s.Card(h.Target.Card)
		if c == nil {
			return invariantf("hit: unknown card %s", h.Target.Card)
		}
		c.Health = floor(c.Health - h.Amount)
	case h.Target.Player != "":
		p := s.Player(h.Target.Player)
		if p == nil {
			return invariantf("hit: unknown player %s", h.Target.Player)
		}
		p.Life = floor(p.Life - h.Amount)
	}
	return nil
}

func floor(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
