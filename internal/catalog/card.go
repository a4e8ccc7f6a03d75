// Package catalog holds card definitions and the sources that resolve them.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
)

type Kind string

const (
	KindAlly  Kind = "ally"
	KindSpell Kind = "spell"
	KindHero  Kind = "hero"
	KindToken Kind = "token"
)

// Trigger names when an ability fires.
type Trigger string

const (
	OnPlay    Trigger = "on_play"
	OnDeath   Trigger = "on_death"
	OnTurnEnd Trigger = "on_turn_end"
	Delayed   Trigger = "delayed" // owner's next turn start
)

// TargetRule selects what an ability affects.
type TargetRule string

const (
	TargetSelf       TargetRule = "self"
	TargetOpponent   TargetRule = "opponent"
	TargetChosen     TargetRule = "chosen"
	TargetAllEnemies TargetRule = "all_enemies"
)

type Ability struct {
	Trigger Trigger    `yaml:"trigger" json:"trigger"`
	Effect  string     `yaml:"effect" json:"effect"`
	Target  TargetRule `yaml:"target,omitempty" json:"target,omitempty"`
	Amount  int        `yaml:"amount,omitempty" json:"amount,omitempty"`
	Attack  int        `yaml:"attack,omitempty" json:"attack,omitempty"`
	Health  int        `yaml:"health,omitempty" json:"health,omitempty"`
	Token   string     `yaml:"token,omitempty" json:"token,omitempty"`
}

// Card is an immutable definition. Values handed out by a Set are shared
// across rooms and must not be modified.
type Card struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Faction     string    `yaml:"faction,omitempty" json:"faction,omitempty"`
	Kind        Kind      `yaml:"kind" json:"kind"`
	Cost        int       `yaml:"cost" json:"cost"`
	Attack      int       `yaml:"attack,omitempty" json:"attack,omitempty"`
	Health      int       `yaml:"health,omitempty" json:"health,omitempty"`
	Collectible bool      `yaml:"collectible" json:"collectible"`
	Abilities   []Ability `yaml:"abilities,omitempty" json:"abilities,omitempty"`
}

func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Abilities = append([]Ability(nil), c.Abilities...)
	return &cp
}

// Neutral reports whether the card can go into a deck of any faction.
func (c *Card) Neutral() bool { return c.Faction == "" || c.Faction == "neutral" }

// AbilitiesFor returns the abilities of c fired by trigger t, in declaration order.
func (c *Card) AbilitiesFor(t Trigger) []Ability {
	var out []Ability
	for _, a := range c.Abilities {
		if a.Trigger == t {
			out = append(out, a)
		}
	}
	return out
}

var (
	ErrNotFound = errors.New("card not found")
)

// Source resolves card definitions. Implementations may block on I/O.
type Source interface {
	GetCard(ctx context.Context, id string) (*Card, error)
}

// Set is a read-only id -> definition table built once per match.
type Set struct {
	cards map[string]*Card
}

func NewSet(cards ...*Card) Set {
	s := Set{cards: make(map[string]*Card, len(cards))}
	for _, c := range cards {
		if c != nil {
			s.cards[c.ID] = c
		}
	}
	return s
}

func (s Set) Get(id string) (*Card, bool) {
	c, ok := s.cards[id]
	return c, ok
}

func (s Set) Len() int { return len(s.cards) }

// IDs returns the definition ids in sorted order.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s.cards))
	for id := range s.cards {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Merge returns a new Set holding the definitions of s and o.
func (s Set) Merge(o Set) Set {
	out := Set{cards: make(map[string]*Card, len(s.cards)+len(o.cards))}
	for id, c := range s.cards {
		out.cards[id] = c
	}
	for id, c := range o.cards {
		out.cards[id] = c
	}
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	list := make([]*Card, 0, len(s.cards))
	for _, id := range s.IDs() {
		list = append(list, s.cards[id])
	}
	return json.Marshal(list)
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var list []*Card
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*s = NewSet(list...)
	return nil
}
