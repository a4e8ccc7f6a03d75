package match

import (
	"fmt"
	"slices"

	"github.com/park285/Cheese-CardDuel/internal/catalog"
)

// Context is what a handler may read. Handlers must treat State as read-only.
type Context struct {
	State *State
	Defs  catalog.Set
	Rules Rules
}

// Outcome is a handler result. Triggers are ordered by the engine; Then
// entries sit beneath them and resolve in slice order.
type Outcome struct {
	Event    Event
	Triggers []StackEntry
	Then     []StackEntry
}

// Handler resolves one stack entry into exactly one event.
type Handler func(hc *Context, e StackEntry) (Outcome, error)

func builtinHandlers() map[string]Handler {
	return map[string]Handler{
		EffectMulligan:  handleMulligan,
		EffectPlay:      handlePlay,
		EffectAttack:    handleAttack,
		EffectPhase:     handlePhase,
		EffectEndTurn:   handleEndTurn,
		EffectConcede:   handleConcede,
		"damage":        handleDamage,
		"heal":          handleHeal,
		"draw":          handleDraw,
		"buff":          handleBuff,
		"summon_token":  handleSummonToken,
		"gain_resource": handleGainResource,
	}
}

func (hc *Context) def(c *CardInstance) *catalog.Card {
	if c == nil {
		return nil
	}
	d, _ := hc.Defs.Get(c.DefID)
	return d
}

func (hc *Context) isHero(c *CardInstance) bool {
	d := hc.def(c)
	return d != nil && d.Kind == catalog.KindHero
}

// units counts the board cards of p that occupy a board slot.
func (hc *Context) units(p *PlayerState) int {
	n := 0
	for _, id := range p.Board {
		if !hc.isHero(hc.State.Card(id)) {
			n++
		}
	}
	return n
}

func handleMulligan(hc *Context, e StackEntry) (Outcome, error) {
	s := hc.State
	p := s.Player(e.Controller)
	if p == nil {
		return Outcome{}, fmt.Errorf("mulligan: unknown player %s", e.Controller)
	}
	n := min(len(e.Return), len(p.Deck))
	out := Outcome{Event: Event{Type: EvMulligan, Payload: Payload{
		Player: p.ID,
		Cards:  cloneIDs(e.Return),
		Drawn:  slices.Clone(p.Deck[:n]),
	}}}
	if opp := s.Opponent(p.ID); opp != nil && opp.Mulliganed {
		out.Then = []StackEntry{{Effect: EffectPhase, Controller: s.Active}}
	}
	return out, nil
}

func handlePlay(hc *Context, e StackEntry) (Outcome, error) {
	s := hc.State
	p := s.Player(e.Controller)
	c := s.Card(e.Source)
	def := hc.def(c)
	if p == nil || def == nil {
		return Outcome{}, fmt.Errorf("play: unresolvable card %s", e.Source)
	}
	zone, pos := ZoneBoard, len(p.Board)
	if def.Kind == catalog.KindSpell {
		zone, pos = ZoneDiscard, len(p.Discard)
	}
	pl := Payload{Player: p.ID, Card: c.ID, Def: def.ID, Cost: def.Cost, Zone: zone, Position: pos}
	for _, ab := range def.AbilitiesFor(catalog.Delayed) {
		pl.Delayed = append(pl.Delayed, DelayedTrigger{
			Entry:    StackEntry{Effect: ab.Effect, Source: c.ID, Controller: p.ID, Ability: ab, Trigger: catalog.Delayed},
			FireTurn: s.Turn + 2,
		})
	}
	out := Outcome{Event: Event{Type: EvCardPlayed, Payload: pl}}
	for _, ab := range def.AbilitiesFor(catalog.OnPlay) {
		out.Triggers = append(out.Triggers, StackEntry{
			Effect: ab.Effect, Source: c.ID, Controller: p.ID, Target: e.Target,
			Ability: ab, Trigger: catalog.OnPlay, Position: pos,
		})
	}
	return out, nil
}

func handleAttack(hc *Context, e StackEntry) (Outcome, error) {
	s := hc.State
	att := s.Card(e.Source)
	owner := s.Player(e.Controller)
	opp := s.Opponent(e.Controller)
	if att == nil || owner == nil || opp == nil {
		return Outcome{}, fmt.Errorf("attack: unresolvable attacker %s", e.Source)
	}
	pl := Payload{Player: owner.ID, Card: att.ID, Target: e.Target}
	if e.Target.Card == "" {
		pl.Hits = []Hit{{Target: Target{Player: opp.ID}, Amount: att.Attack}}
		return Outcome{Event: Event{Type: EvCombat, Payload: pl}}, nil
	}
	def := s.Card(e.Target.Card)
	if def == nil {
		return Outcome{}, fmt.Errorf("attack: unknown defender %s", e.Target.Card)
	}
	// both hits land before either death is checked
	pl.Hits = []Hit{
		{Target: Target{Card: def.ID}, Amount: att.Attack},
		{Target: Target{Card: att.ID}, Amount: def.Attack},
	}
	if def.Health-att.Attack <= 0 {
		pl.Deaths = append(pl.Deaths, Death{Card: def.ID, Owner: opp.ID, Position: opp.BoardIndex(def.ID)})
	}
	if att.Health-def.Attack <= 0 {
		pl.Deaths = append(pl.Deaths, Death{Card: att.ID, Owner: owner.ID, Position: owner.BoardIndex(att.ID)})
	}
	return Outcome{Event: Event{Type: EvCombat, Payload: pl}, Triggers: hc.deathTriggers(pl.Deaths)}, nil
}

func (hc *Context) deathTriggers(deaths []Death) []StackEntry {
	var out []StackEntry
	for _, d := range deaths {
		def := hc.def(hc.State.Card(d.Card))
		if def == nil {
			continue
		}
		for _, ab := range def.AbilitiesFor(catalog.OnDeath) {
			out = append(out, StackEntry{
				Effect: ab.Effect, Source: d.Card, Controller: d.Owner,
				Ability: ab, Trigger: catalog.OnDeath, Position: d.Position,
			})
		}
	}
	return out
}

func handleEndTurn(hc *Context, e StackEntry) (Outcome, error) {
	s := hc.State
	if s.Phase == PhaseEnd {
		return handlePhase(hc, e)
	}
	out := hc.enterEnd()
	out.Then = []StackEntry{{Effect: EffectPhase, Controller: s.Active}}
	return out, nil
}

func (hc *Context) enterEnd() Outcome {
	s := hc.State
	out := Outcome{Event: Event{Type: EvPhaseChanged, Payload: Payload{
		From: s.Phase, To: PhaseEnd, Active: s.Active, Turn: s.Turn,
	}}}
	p := s.Player(s.Active)
	for i, id := range p.Board {
		def := hc.def(s.Card(id))
		if def == nil {
			continue
		}
		for _, ab := range def.AbilitiesFor(catalog.OnTurnEnd) {
			out.Triggers = append(out.Triggers, StackEntry{
				Effect: ab.Effect, Source: id, Controller: p.ID,
				Ability: ab, Trigger: catalog.OnTurnEnd, Position: i,
			})
		}
	}
	return out
}

func handlePhase(hc *Context, _ StackEntry) (Outcome, error) {
	s := hc.State
	switch s.Phase {
	case PhaseMulligan:
		return Outcome{Event: hc.turnStart(PhaseMulligan, s.Active, 1)}, nil
	case PhaseMain:
		return Outcome{Event: Event{Type: EvPhaseChanged, Payload: Payload{
			From: PhaseMain, To: PhaseCombat, Active: s.Active, Turn: s.Turn,
		}}}, nil
	case PhaseCombat:
		return hc.enterEnd(), nil
	case PhaseEnd:
		next := s.Opponent(s.Active)
		turn := s.Turn + 1
		out := Outcome{Event: hc.turnStart(PhaseEnd, next.ID, turn)}
		out.Then = []StackEntry{{
			Effect: "draw", Controller: next.ID,
			Ability: catalog.Ability{Effect: "draw", Target: catalog.TargetSelf, Amount: 1},
		}}
		for i, d := range s.Delayed {
			if d.Entry.Controller == next.ID && d.FireTurn <= turn {
				en := d.Entry
				en.Position = i
				out.Triggers = append(out.Triggers, en)
			}
		}
		return out, nil
	}
	return Outcome{}, fmt.Errorf("phase: unknown phase %q", s.Phase)
}

func (hc *Context) turnStart(from Phase, active string, turn int) Event {
	p := hc.State.Player(active)
	maxRes := min(p.MaxResource+1, hc.Rules.MaxResource)
	return Event{Type: EvPhaseChanged, Payload: Payload{
		From: from, To: PhaseMain, Active: active, Turn: turn,
		Refresh: true, Resource: maxRes, MaxResource: maxRes,
	}}
}

func handleConcede(hc *Context, e StackEntry) (Outcome, error) {
	opp := hc.State.Opponent(e.Controller)
	if opp == nil {
		return Outcome{}, fmt.Errorf("concede: unknown player %s", e.Controller)
	}
	reason := ReasonConcede
	if e.Implicit {
		reason = ReasonDisconnect
	}
	return Outcome{Event: Event{Type: EvMatchFinished, Payload: Payload{
		Player: e.Controller, Winner: opp.ID, Reason: reason,
	}}}, nil
}

// playerTarget resolves self/opponent rules to a player id.
func (hc *Context) playerTarget(e StackEntry) string {
	switch e.Ability.Target {
	case catalog.TargetOpponent:
		if opp := hc.State.Opponent(e.Controller); opp != nil {
			return opp.ID
		}
		return ""
	case catalog.TargetChosen:
		return e.Target.Player
	default:
		return e.Controller
	}
}

// onBoard reports whether the card is still on its owner's board.
func (hc *Context) onBoard(id string) bool {
	c := hc.State.Card(id)
	return c != nil && c.Zone == ZoneBoard
}

func handleDamage(hc *Context, e StackEntry) (Outcome, error) {
	s := hc.State
	amount := e.Ability.Amount
	pl := Payload{Player: e.Controller, Card: e.Source, Amount: amount}
	var cards []string
	switch {
	case e.Ability.Target == catalog.TargetAllEnemies:
		opp := s.Opponent(e.Controller)
		for _, id := range opp.Board {
			if !hc.isHero(s.Card(id)) {
				cards = append(cards, id)
			}
		}
	case e.Ability.Target == catalog.TargetChosen && e.Target.Card != "":
		if hc.onBoard(e.Target.Card) {
			cards = append(cards, e.Target.Card)
		}
	default:
		if id := hc.playerTarget(e); id != "" {
			pl.Hits = append(pl.Hits, Hit{Target: Target{Player: id}, Amount: amount})
		}
	}
	for _, id := range cards {
		c := s.Card(id)
		pl.Hits = append(pl.Hits, Hit{Target: Target{Card: id}, Amount: amount})
		if c.Health-amount <= 0 {
			owner := s.Player(c.Owner)
			pl.Deaths = append(pl.Deaths, Death{Card: id, Owner: owner.ID, Position: owner.BoardIndex(id)})
		}
	}
	return Outcome{Event: Event{Type: EvDamage, Payload: pl}, Triggers: hc.deathTriggers(pl.Deaths)}, nil
}

func handleHeal(hc *Context, e StackEntry) (Outcome, error) {
	s := hc.State
	pl := Payload{Player: e.Controller, Card: e.Source}
	if e.Ability.Target == catalog.TargetChosen && e.Target.Card != "" {
		if hc.onBoard(e.Target.Card) {
			c := s.Card(e.Target.Card)
			pl.Target = Target{Card: c.ID}
			pl.Amount = max(0, min(e.Ability.Amount, c.MaxHealth-c.Health))
		}
		return Outcome{Event: Event{Type: EvHeal, Payload: pl}}, nil
	}
	if id := hc.playerTarget(e); id != "" {
		p := s.Player(id)
		pl.Target = Target{Player: id}
		pl.Amount = max(0, min(e.Ability.Amount, hc.Rules.StartingLife-p.Life))
	}
	return Outcome{Event: Event{Type: EvHeal, Payload: pl}}, nil
}

func handleDraw(hc *Context, e StackEntry) (Outcome, error) {
	p := hc.State.Player(hc.playerTarget(e))
	if p == nil {
		return Outcome{}, fmt.Errorf("draw: unknown player for %s", e.Controller)
	}
	n := max(e.Ability.Amount, 1)
	k := min(n, len(p.Deck))
	return Outcome{Event: Event{Type: EvCardsDrawn, Payload: Payload{
		Player: p.ID,
		Cards:  slices.Clone(p.Deck[:k]),
		Amount: (n - k) * hc.Rules.FatigueDamage,
	}}}, nil
}

func handleBuff(hc *Context, e StackEntry) (Outcome, error) {
	target := e.Source
	if e.Ability.Target == catalog.TargetChosen {
		target = e.Target.Card
	}
	pl := Payload{Player: e.Controller, Attack: e.Ability.Attack, Health: e.Ability.Health}
	if src := hc.State.Card(e.Source); src != nil {
		pl.Def = src.DefID
	}
	if target != "" && hc.onBoard(target) && !hc.isHero(hc.State.Card(target)) {
		pl.Card = target
		if c := hc.State.Card(target); c.Health+pl.Health <= 0 {
			owner := hc.State.Player(c.Owner)
			pl.Deaths = append(pl.Deaths, Death{Card: target, Owner: owner.ID, Position: owner.BoardIndex(target)})
		}
	}
	return Outcome{Event: Event{Type: EvBuff, Payload: pl}, Triggers: hc.deathTriggers(pl.Deaths)}, nil
}

func handleSummonToken(hc *Context, e StackEntry) (Outcome, error) {
	s := hc.State
	def, ok := hc.Defs.Get(e.Ability.Token)
	if !ok {
		return Outcome{}, fmt.Errorf("summon_token: unknown token %q", e.Ability.Token)
	}
	p := s.Player(e.Controller)
	pl := Payload{Player: p.ID, Def: def.ID, Attack: def.Attack, Health: def.Health}
	if hc.units(p) < hc.Rules.BoardLimit {
		pl.Card = fmt.Sprintf("t-%d", s.TokenSeq+1)
		pl.Position = len(p.Board)
	}
	return Outcome{Event: Event{Type: EvTokenSummoned, Payload: pl}}, nil
}

func handleGainResource(hc *Context, e StackEntry) (Outcome, error) {
	p := hc.State.Player(e.Controller)
	if p == nil {
		return Outcome{}, fmt.Errorf("gain_resource: unknown player %s", e.Controller)
	}
	amount := max(0, min(e.Ability.Amount, hc.Rules.MaxResource-p.Resource))
	return Outcome{Event: Event{Type: EvResourceGained, Payload: Payload{Player: p.ID, Amount: amount}}}, nil
}
