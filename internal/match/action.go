package match

import "github.com/park285/Cheese-CardDuel/internal/catalog"

type ActionKind string

const (
	ActMulligan ActionKind = "mulligan"
	ActPlayCard ActionKind = "play_card"
	ActAttack   ActionKind = "declare_attack"
	ActEndPhase ActionKind = "end_phase"
	ActEndTurn  ActionKind = "end_turn"
	ActConcede  ActionKind = "concede"
)

// Target names either a card instance or a player.
type Target struct {
	Card   string `json:"card,omitempty"`
	Player string `json:"player,omitempty"`
}

func (t Target) Empty() bool { return t.Card == "" && t.Player == "" }

// Action is a player's request. Sequence is the last state sequence the
// client observed.
type Action struct {
	Kind     ActionKind `json:"kind"`
	Card     string     `json:"card,omitempty"`
	Target   Target     `json:"target,omitempty"`
	Return   []string   `json:"return,omitempty"`
	Sequence uint64     `json:"sequence"`
}

// StackEntry is one pending unit of resolution.
type StackEntry struct {
	Effect     string          `json:"effect"`
	Source     string          `json:"source,omitempty"`
	Controller string          `json:"controller"`
	Target     Target          `json:"target,omitempty"`
	Ability    catalog.Ability `json:"ability,omitempty"`
	Trigger    catalog.Trigger `json:"trigger,omitempty"`
	Position   int             `json:"position"`
	Return     []string        `json:"return,omitempty"`
	Implicit   bool            `json:"implicit,omitempty"`
}

// Effect ids of the entries pushed for actions and phase flow.
const (
	EffectMulligan = "mulligan"
	EffectPlay     = "play"
	EffectAttack   = "attack"
	EffectPhase    = "phase"
	EffectEndTurn  = "end_turn"
	EffectConcede  = "concede"
)

func primaryEntry(player string, a Action, implicit bool) StackEntry {
	e := StackEntry{Controller: player, Source: a.Card, Target: a.Target, Implicit: implicit}
	switch a.Kind {
	case ActMulligan:
		e.Effect = EffectMulligan
		e.Return = cloneIDs(a.Return)
	case ActPlayCard:
		e.Effect = EffectPlay
	case ActAttack:
		e.Effect = EffectAttack
	case ActEndPhase:
		e.Effect = EffectPhase
	case ActEndTurn:
		e.Effect = EffectEndTurn
	case ActConcede:
		e.Effect = EffectConcede
	}
	return e
}
