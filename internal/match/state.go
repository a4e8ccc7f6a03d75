package match

import "slices"

type Zone string

const (
	ZoneDeck    Zone = "deck"
	ZoneHand    Zone = "hand"
	ZoneBoard   Zone = "board"
	ZoneDiscard Zone = "discard"
)

type Phase string

const (
	PhaseMulligan Phase = "mulligan"
	PhaseMain     Phase = "main"
	PhaseCombat   Phase = "combat"
	PhaseEnd      Phase = "end"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

type Modifier struct {
	Source string `json:"source,omitempty"`
	Attack int    `json:"attack"`
	Health int    `json:"health"`
}

// CardInstance is one physical card in a match. DefID points into the
// definition set and is never rewritten.
type CardInstance struct {
	ID        string     `json:"id"`
	DefID     string     `json:"def_id"`
	Owner     string     `json:"owner"`
	Zone      Zone       `json:"zone"`
	Attack    int        `json:"attack"`
	Health    int        `json:"health"`
	MaxHealth int        `json:"max_health"`
	Modifiers []Modifier `json:"modifiers,omitempty"`
	Acted     bool       `json:"acted"`
	Token     bool       `json:"token,omitempty"`
}

type PlayerState struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Life        int      `json:"life"`
	Resource    int      `json:"resource"`
	MaxResource int      `json:"max_resource"`
	Deck        []string `json:"deck"` // index 0 is the top
	Hand        []string `json:"hand"`
	Board       []string `json:"board"` // left to right
	Discard     []string `json:"discard"`
	Mulliganed  bool     `json:"mulliganed"`
}

func (p *PlayerState) zone(z Zone) *[]string {
	switch z {
	case ZoneDeck:
		return &p.Deck
	case ZoneHand:
		return &p.Hand
	case ZoneBoard:
		return &p.Board
	case ZoneDiscard:
		return &p.Discard
	}
	return nil
}

// BoardIndex returns the position of id on the board or -1.
func (p *PlayerState) BoardIndex(id string) int { return slices.Index(p.Board, id) }

func (p *PlayerState) InHand(id string) bool { return slices.Contains(p.Hand, id) }

// DelayedTrigger fires at the start of its controller's turn numbered FireTurn or later.
type DelayedTrigger struct {
	Entry    StackEntry `json:"entry"`
	FireTurn int        `json:"fire_turn"`
}

// State is the authoritative match state. Only Apply mutates it.
type State struct {
	MatchID      string                   `json:"match_id"`
	Seed         uint64                   `json:"seed"`
	Players      [2]*PlayerState          `json:"players"`
	Cards        map[string]*CardInstance `json:"cards"`
	Active       string                   `json:"active"`
	Phase        Phase                    `json:"phase"`
	Turn         int                      `json:"turn"`
	Sequence     uint64                   `json:"sequence"`
	Stack        []StackEntry             `json:"stack,omitempty"`
	Delayed      []DelayedTrigger         `json:"delayed,omitempty"`
	Status       Status                   `json:"status"`
	Winner       string                   `json:"winner,omitempty"`
	FinishReason string                   `json:"finish_reason,omitempty"`
	TokenSeq     int                      `json:"token_seq"`
	InitialCount int                      `json:"initial_count"`
}

func (s *State) Player(id string) *PlayerState {
	for _, p := range s.Players {
		if p != nil && p.ID == id {
			return p
		}
	}
	return nil
}

func (s *State) Opponent(id string) *PlayerState {
	switch {
	case s.Players[0] != nil && s.Players[0].ID == id:
		return s.Players[1]
	case s.Players[1] != nil && s.Players[1].ID == id:
		return s.Players[0]
	}
	return nil
}

func (s *State) Card(id string) *CardInstance {
	if id == "" {
		return nil
	}
	return s.Cards[id]
}

func (s *State) Finished() bool { return s.Status == StatusFinished }

// Clone deep-copies s. Nil and empty slices are preserved as they are.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	for i, p := range s.Players {
		if p == nil {
			continue
		}
		pc := *p
		pc.Deck = cloneIDs(p.Deck)
		pc.Hand = cloneIDs(p.Hand)
		pc.Board = cloneIDs(p.Board)
		pc.Discard = cloneIDs(p.Discard)
		cp.Players[i] = &pc
	}
	if s.Cards != nil {
		cp.Cards = make(map[string]*CardInstance, len(s.Cards))
		for id, c := range s.Cards {
			cc := *c
			if c.Modifiers != nil {
				cc.Modifiers = slices.Clone(c.Modifiers)
			}
			cp.Cards[id] = &cc
		}
	}
	if s.Stack != nil {
		cp.Stack = slices.Clone(s.Stack)
	}
	if s.Delayed != nil {
		cp.Delayed = slices.Clone(s.Delayed)
	}
	return &cp
}

func cloneIDs(in []string) []string {
	if in == nil {
		return nil
	}
	return slices.Clone(in)
}
