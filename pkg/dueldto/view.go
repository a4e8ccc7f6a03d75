package dueldto

import "time"

// MatchView is a match state as one recipient may see it.
type MatchView struct {
	MatchID  string       `json:"match_id"`
	Viewer   string       `json:"viewer"`
	Sequence uint64       `json:"sequence"`
	Turn     int          `json:"turn"`
	Phase    string       `json:"phase"`
	Active   string       `json:"active"`
	Status   string       `json:"status"`
	Winner   string       `json:"winner,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Deadline *time.Time   `json:"deadline,omitempty"`
	Players  []PlayerView `json:"players"`
}

type PlayerView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Life        int        `json:"life"`
	Resource    int        `json:"resource"`
	MaxResource int        `json:"max_resource"`
	Connected   bool       `json:"connected"`
	Mulliganed  bool       `json:"mulliganed"`
	Hand        []CardView `json:"hand,omitempty"` // only for the viewer's own seat
	HandCount   int        `json:"hand_count"`
	DeckCount   int        `json:"deck_count"`
	Board       []CardView `json:"board"`
	Discard     []CardView `json:"discard"`
}

type CardView struct {
	ID     string `json:"id"`
	DefID  string `json:"def_id"`
	Attack int    `json:"attack"`
	Health int    `json:"health"`
	Acted  bool   `json:"acted,omitempty"`
	Token  bool   `json:"token,omitempty"`
}

type Hints struct {
	Playable    []string `json:"playable,omitempty"`
	Attackers   []string `json:"attackers,omitempty"`
	CanEndPhase bool     `json:"can_end_phase"`
	CanMulligan bool     `json:"can_mulligan"`
}

type Hit struct {
	Target Target `json:"target"`
	Amount int    `json:"amount"`
}

// EventView is one applied event after redaction. Count replaces Cards when
// the recipient may not see which cards moved.
type EventView struct {
	Index       int       `json:"index"`
	Type        string    `json:"type"`
	Player      string    `json:"player,omitempty"`
	Card        *CardView `json:"card,omitempty"`
	Cards       []string  `json:"cards,omitempty"`
	Drawn       []string  `json:"drawn,omitempty"`
	Count       int       `json:"count,omitempty"`
	Target      *Target   `json:"target,omitempty"`
	Hits        []Hit     `json:"hits,omitempty"`
	Deaths      []string  `json:"deaths,omitempty"`
	Amount      int       `json:"amount,omitempty"`
	Attack      int       `json:"attack,omitempty"`
	Health      int       `json:"health,omitempty"`
	Phase       string    `json:"phase,omitempty"`
	Active      string    `json:"active,omitempty"`
	Turn        int       `json:"turn,omitempty"`
	Resource    int       `json:"resource,omitempty"`
	MaxResource int       `json:"max_resource,omitempty"`
	Winner      string    `json:"winner,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}
