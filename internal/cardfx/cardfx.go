// Package cardfx holds the card effects this deployment adds on top of the
// engine's built-in ones. Cards served by the content service may use them.
package cardfx

import (
	"fmt"

	"github.com/park285/Cheese-CardDuel/internal/catalog"
	"github.com/park285/Cheese-CardDuel/internal/match"
)

const EffectDrain = "drain"

// Handlers returns a fresh table; callers hand the same map to the deck
// validator and the room manager.
func Handlers() map[string]match.Handler {
	return map[string]match.Handler{
		EffectDrain: handleDrain,
	}
}

// handleDrain hits the opposing player for Amount and heals the controller
// by the same amount afterwards.
func handleDrain(hc *match.Context, e match.StackEntry) (match.Outcome, error) {
	opp := hc.State.Opponent(e.Controller)
	if opp == nil {
		return match.Outcome{}, fmt.Errorf("drain: no opponent for %s", e.Controller)
	}
	amount := max(e.Ability.Amount, 0)
	dmg := match.Event{Type: match.EvDamage, Payload: match.Payload{
		Player: e.Controller,
		Card:   e.Source,
		Amount: amount,
		Hits:   []match.Hit{{Target: match.Target{Player: opp.ID}, Amount: amount}},
	}}
	heal := match.StackEntry{
		Effect:     "heal",
		Source:     e.Source,
		Controller: e.Controller,
		Trigger:    e.Trigger,
		Ability:    catalog.Ability{Trigger: e.Ability.Trigger, Effect: "heal", Target: catalog.TargetSelf, Amount: amount},
	}
	return match.Outcome{Event: dmg, Then: []match.StackEntry{heal}}, nil
}
