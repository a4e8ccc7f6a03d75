package match

type EventType string

const (
	EvMulligan       EventType = "mulligan"
	EvCardsDrawn     EventType = "cards_drawn"
	EvCardPlayed     EventType = "card_played"
	EvCombat         EventType = "combat"
	EvDamage         EventType = "damage"
	EvHeal           EventType = "heal"
	EvBuff           EventType = "buff"
	EvTokenSummoned  EventType = "token_summoned"
	EvResourceGained EventType = "resource_gained"
	EvPhaseChanged   EventType = "phase_changed"
	EvMatchFinished  EventType = "match_finished"
)

// Hit is damage dealt to a card or a player.
type Hit struct {
	Target Target `json:"target"`
	Amount int    `json:"amount"`
}

// Death records a card leaving the board and where it stood.
type Death struct {
	Card     string `json:"card"`
	Owner    string `json:"owner"`
	Position int    `json:"position"`
}

// Payload carries everything Apply needs; it never consults definitions.
type Payload struct {
	Player      string           `json:"player,omitempty"`
	Card        string           `json:"card,omitempty"`
	Def         string           `json:"def,omitempty"`
	Cards       []string         `json:"cards,omitempty"`
	Drawn       []string         `json:"drawn,omitempty"`
	Cost        int              `json:"cost,omitempty"`
	Zone        Zone             `json:"zone,omitempty"`
	Position    int              `json:"position,omitempty"`
	Target      Target           `json:"target,omitempty"`
	Hits        []Hit            `json:"hits,omitempty"`
	Deaths      []Death          `json:"deaths,omitempty"`
	Amount      int              `json:"amount,omitempty"`
	Attack      int              `json:"attack,omitempty"`
	Health      int              `json:"health,omitempty"`
	From        Phase            `json:"from,omitempty"`
	To          Phase            `json:"to,omitempty"`
	Active      string           `json:"active,omitempty"`
	Turn        int              `json:"turn,omitempty"`
	Refresh     bool             `json:"refresh,omitempty"`
	Resource    int              `json:"resource,omitempty"`
	MaxResource int              `json:"max_resource,omitempty"`
	Delayed     []DelayedTrigger `json:"delayed,omitempty"`
	Winner      string           `json:"winner,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

// Event is one applied state change. Events are immutable once appended.
type Event struct {
	Index   int       `json:"index"`
	Type    EventType `json:"type"`
	Payload Payload   `json:"payload"`
}

// Commit groups the events produced by one accepted action.
type Commit struct {
	Sequence uint64  `json:"sequence"`
	Player   string  `json:"player"`
	Action   Action  `json:"action"`
	Implicit bool    `json:"implicit,omitempty"`
	Events   []Event `json:"events"`
}

// Finish reasons.
const (
	ReasonLife       = "life"
	ReasonConcede    = "concede"
	ReasonDisconnect = "disconnect"
	ReasonAborted    = "aborted" // frozen match ended without a winner
)
