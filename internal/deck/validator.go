package deck

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/park285/Cheese-CardDuel/internal/catalog"
	"github.com/park285/Cheese-CardDuel/internal/match"
)

// Validator checks deck legality against the rule table and a card source.
type Validator struct {
	cards   catalog.Source
	rules   match.Rules
	effects map[string]match.Handler
}

func NewValidator(cards catalog.Source, rules match.Rules) *Validator {
	return &Validator{cards: cards, rules: rules}
}

// WithHandlers makes the validator accept abilities resolved by the
// deployment's extra effect handlers. The map must be the one the rooms use.
func (v *Validator) WithHandlers(h map[string]match.Handler) *Validator {
	v.effects = h
	return v
}

// Validate returns a frozen Instance or a DeckInvalid rejection. Source
// failures other than unknown cards are returned as plain errors.
func (v *Validator) Validate(ctx context.Context, l *List) (*Instance, error) {
	if l == nil {
		return nil, match.Reject(match.DeckInvalid, "no deck")
	}
	if n := l.Size(); n != v.rules.DeckSize {
		return nil, match.Reject(match.DeckInvalid, "deck has %d cards, need exactly %d", n, v.rules.DeckSize)
	}

	counts := make(map[string]int)
	for _, e := range l.Entries {
		if e.Count <= 0 {
			return nil, match.Reject(match.DeckInvalid, "entry %s has count %d", e.CardID, e.Count)
		}
		counts[strings.TrimSpace(e.CardID)] += e.Count
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	defs := make(map[string]*catalog.Card, len(ids))
	names := make(map[string]int)
	var heroes []*catalog.Card
	for _, id := range ids {
		c, err := v.cards.GetCard(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, match.Reject(match.DeckInvalid, "unknown card %s", id)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve card %s: %w", id, err)
		}
		if c.Kind == catalog.KindToken || !c.Collectible {
			return nil, match.Reject(match.DeckInvalid, "%s is not in the legal card pool", id)
		}
		defs[id] = c
		names[c.Name] += counts[id]
		if c.Kind == catalog.KindHero {
			for i := 0; i < counts[id]; i++ {
				heroes = append(heroes, c)
			}
		}
	}
	for name, n := range names {
		if n > v.rules.MaxCopies {
			return nil, match.Reject(match.DeckInvalid, "%d copies of %s, at most %d allowed", n, name, v.rules.MaxCopies)
		}
	}
	if len(heroes) != 1 {
		return nil, match.Reject(match.DeckInvalid, "deck needs exactly one hero, found %d", len(heroes))
	}
	hero := heroes[0]
	for _, id := range ids {
		c := defs[id]
		if !c.Neutral() && c.Faction != hero.Faction {
			return nil, match.Reject(match.DeckInvalid, "%s (%s) does not match hero faction %s", id, c.Faction, hero.Faction)
		}
	}

	if err := v.resolveTokens(ctx, defs); err != nil {
		return nil, err
	}
	if err := v.checkAbilities(defs); err != nil {
		return nil, err
	}

	in := &Instance{Owner: l.UserID, Name: l.Name, Hero: hero.ID}
	for _, id := range ids {
		if id == hero.ID {
			continue
		}
		for i := 0; i < counts[id]; i++ {
			in.Cards = append(in.Cards, id)
		}
	}
	all := make([]*catalog.Card, 0, len(defs))
	for _, c := range defs {
		all = append(all, c)
	}
	in.Defs = catalog.NewSet(all...)
	return in, nil
}

// checkAbilities rejects cards (tokens included) whose abilities the engine
// cannot resolve or whose buffs would lower health.
func (v *Validator) checkAbilities(defs map[string]*catalog.Card) error {
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, ab := range defs[id].Abilities {
			if !match.Supports(ab.Effect, v.effects) {
				return match.Reject(match.DeckInvalid, "%s uses unsupported effect %q", id, ab.Effect)
			}
			if ab.Amount < 0 || ab.Health < 0 {
				return match.Reject(match.DeckInvalid, "%s has a negative %s amount", id, ab.Effect)
			}
		}
	}
	return nil
}

// resolveTokens adds definitions referenced by summon abilities.
func (v *Validator) resolveTokens(ctx context.Context, defs map[string]*catalog.Card) error {
	var pending []string
	for _, c := range defs {
		for _, ab := range c.Abilities {
			if ab.Token != "" {
				pending = append(pending, ab.Token)
			}
		}
	}
	for len(pending) > 0 {
		id := pending[0]
		pending = pending[1:]
		if _, ok := defs[id]; ok {
			continue
		}
		c, err := v.cards.GetCard(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			return match.Reject(match.DeckInvalid, "token %s is not defined", id)
		}
		if err != nil {
			return fmt.Errorf("resolve token %s: %w", id, err)
		}
		defs[id] = c
		for _, ab := range c.Abilities {
			if ab.Token != "" {
				pending = append(pending, ab.Token)
			}
		}
	}
	return nil
}
