package relay

import (
	"github.com/park285/Cheese-CardDuel/internal/match"
	"github.com/park285/Cheese-CardDuel/pkg/dueldto"
)

// ViewFor renders s as viewer may see it. Hands of other players and every
// deck are reduced to counts; a viewer who is not seated sees counts only.
func ViewFor(s *match.State, viewer string) dueldto.MatchView {
	v := dueldto.MatchView{
		MatchID:  s.MatchID,
		Viewer:   viewer,
		Sequence: s.Sequence,
		Turn:     s.Turn,
		Phase:    string(s.Phase),
		Active:   s.Active,
		Status:   string(s.Status),
		Winner:   s.Winner,
		Reason:   s.FinishReason,
	}
	for _, p := range s.Players {
		if p == nil {
			continue
		}
		pv := dueldto.PlayerView{
			ID:          p.ID,
			Name:        p.Name,
			Life:        p.Life,
			Resource:    p.Resource,
			MaxResource: p.MaxResource,
			Mulliganed:  p.Mulliganed,
			HandCount:   len(p.Hand),
			DeckCount:   len(p.Deck),
			Board:       cardViews(s, p.Board),
			Discard:     cardViews(s, p.Discard),
		}
		if p.ID == viewer {
			pv.Hand = cardViews(s, p.Hand)
		}
		v.Players = append(v.Players, pv)
	}
	return v
}

func cardViews(s *match.State, ids []string) []dueldto.CardView {
	out := make([]dueldto.CardView, 0, len(ids))
	for _, id := range ids {
		if c := s.Card(id); c != nil {
			out = append(out, cardView(c))
		}
	}
	return out
}

func cardView(c *match.CardInstance) dueldto.CardView {
	return dueldto.CardView{ID: c.ID, DefID: c.DefID, Attack: c.Attack, Health: c.Health, Acted: c.Acted, Token: c.Token}
}

// EventsFor redacts a commit's events for viewer. after is the state the
// commit produced; it supplies stats for revealed cards.
func EventsFor(c *match.Commit, after *match.State, viewer string) []dueldto.EventView {
	out := make([]dueldto.EventView, 0, len(c.Events))
	for _, ev := range c.Events {
		out = append(out, eventFor(ev, after, viewer))
	}
	return out
}

func eventFor(ev match.Event, after *match.State, viewer string) dueldto.EventView {
	pl := ev.Payload
	v := dueldto.EventView{
		Index:  ev.Index,
		Type:   string(ev.Type),
		Player: pl.Player,
		Amount: pl.Amount,
		Winner: pl.Winner,
		Reason: pl.Reason,
	}
	own := pl.Player == viewer
	switch ev.Type {
	case match.EvMulligan:
		if own {
			v.Cards = append([]string(nil), pl.Cards...)
			v.Drawn = append([]string(nil), pl.Drawn...)
		} else {
			v.Count = len(pl.Cards)
		}
	case match.EvCardsDrawn:
		if own {
			v.Cards = append([]string(nil), pl.Cards...)
		} else {
			v.Count = len(pl.Cards)
		}
	case match.EvCardPlayed, match.EvTokenSummoned:
		if pl.Card != "" {
			cv := dueldto.CardView{ID: pl.Card, DefID: pl.Def, Attack: pl.Attack, Health: pl.Health, Token: ev.Type == match.EvTokenSummoned}
			if c := after.Card(pl.Card); c != nil {
				cv = cardView(c)
			}
			v.Card = &cv
		}
	case match.EvCombat, match.EvDamage:
		if pl.Card != "" {
			v.Card = &dueldto.CardView{ID: pl.Card}
		}
		for _, h := range pl.Hits {
			v.Hits = append(v.Hits, dueldto.Hit{Target: dueldto.Target(h.Target), Amount: h.Amount})
		}
		for _, d := range pl.Deaths {
			v.Deaths = append(v.Deaths, d.Card)
		}
	case match.EvHeal:
		if !pl.Target.Empty() {
			t := dueldto.Target(pl.Target)
			v.Target = &t
		}
	case match.EvBuff:
		if pl.Card != "" {
			v.Card = &dueldto.CardView{ID: pl.Card, DefID: pl.Def}
			v.Attack, v.Health = pl.Attack, pl.Health
		}
		for _, d := range pl.Deaths {
			v.Deaths = append(v.Deaths, d.Card)
		}
	case match.EvPhaseChanged:
		v.Phase = string(pl.To)
		v.Active = pl.Active
		v.Turn = pl.Turn
		v.Resource, v.MaxResource = pl.Resource, pl.MaxResource
	}
	return v
}

func HintsDTO(h match.Hints) *dueldto.Hints {
	return &dueldto.Hints{
		Playable:    append([]string(nil), h.Playable...),
		Attackers:   append([]string(nil), h.Attackers...),
		CanEndPhase: h.CanEndPhase,
		CanMulligan: h.CanMulligan,
	}
}

// SnapshotMessage wraps a view and optional hints as a state_snapshot frame.
func SnapshotMessage(roomID string, v dueldto.MatchView, h *dueldto.Hints) dueldto.ServerMessage {
	return dueldto.ServerMessage{Type: dueldto.TypeStateSnapshot, RoomID: roomID, Sequence: v.Sequence, Snapshot: &v, Hints: h}
}
