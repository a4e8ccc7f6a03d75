package match

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/park285/Cheese-CardDuel/internal/catalog"
)

// maxEntriesPerAction bounds a single resolution; trigger loops beyond it are
// treated as a broken invariant.
const maxEntriesPerAction = 512

// Engine resolves validated actions against a fixed definition set and rule table.
type Engine struct {
	defs     catalog.Set
	rules    Rules
	handlers map[string]Handler
}

func NewEngine(defs catalog.Set, rules Rules) *Engine {
	return &Engine{defs: defs, rules: rules, handlers: builtinHandlers()}
}

// NewEngineWith is NewEngine plus the deployment's own card effects.
func NewEngineWith(defs catalog.Set, rules Rules, extra map[string]Handler) (*Engine, error) {
	e := NewEngine(defs, rules)
	ids := make([]string, 0, len(extra))
	for id := range extra {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := e.Register(id, extra[id]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Supports reports whether an ability effect id resolves with the built-in
// handlers or with extra.
func Supports(effect string, extra map[string]Handler) bool {
	if _, ok := builtinHandlers()[effect]; ok {
		return true
	}
	h, ok := extra[effect]
	return ok && h != nil
}

// Register adds a card effect handler. Built-in ids cannot be replaced.
func (e *Engine) Register(effect string, h Handler) error {
	if effect == "" || h == nil {
		return fmt.Errorf("register: empty effect id or handler")
	}
	if _, exists := e.handlers[effect]; exists {
		return fmt.Errorf("register: effect %q already registered", effect)
	}
	e.handlers[effect] = h
	return nil
}

func (e *Engine) Defs() catalog.Set { return e.defs }
func (e *Engine) Rules() Rules      { return e.rules }

// Validate runs the action validator with the engine's definitions and rules.
func (e *Engine) Validate(s *State, player string, a Action) *Rejection {
	return Validate(s, e.defs, e.rules, player, a)
}

// Resolve validates a and resolves it on a copy of s. On success it returns
// the commit and the new state; s itself is never modified. Errors are either
// a *Rejection or wrap ErrInvariant.
func (e *Engine) Resolve(s *State, player string, a Action, implicit bool) (*Commit, *State, error) {
	if rej := e.Validate(s, player, a); rej != nil {
		return nil, nil, rej
	}
	work := s.Clone()
	work.Stack = append(work.Stack, primaryEntry(player, a, implicit))
	hc := &Context{State: work, Defs: e.defs, Rules: e.rules}

	var events []Event
	for steps := 0; len(work.Stack) > 0; steps++ {
		if steps >= maxEntriesPerAction {
			return nil, nil, invariantf("resolution exceeded %d entries", maxEntriesPerAction)
		}
		entry := work.Stack[len(work.Stack)-1]
		work.Stack = work.Stack[:len(work.Stack)-1]

		h, ok := e.handlers[entry.Effect]
		if !ok {
			return nil, nil, invariantf("no handler for effect %q", entry.Effect)
		}
		out, err := h(hc, entry)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		ev := out.Event
		ev.Index = len(events)
		if err := Apply(work, ev); err != nil {
			return nil, nil, err
		}
		events = append(events, ev)
		if work.Finished() {
			break
		}
		if fin, ok := winCheck(work); ok {
			fin.Index = len(events)
			if err := Apply(work, fin); err != nil {
				return nil, nil, err
			}
			events = append(events, fin)
			break
		}
		e.push(work, out)
	}
	work.Stack = nil
	work.Sequence++
	if err := CheckInvariants(work); err != nil {
		return nil, nil, err
	}
	return &Commit{Sequence: work.Sequence, Player: player, Action: a, Implicit: implicit, Events: events}, work, nil
}

// push places Then entries beneath the ordered triggers so the first trigger
// resolves next.
func (e *Engine) push(s *State, out Outcome) {
	for i := len(out.Then) - 1; i >= 0; i-- {
		s.Stack = append(s.Stack, out.Then[i])
	}
	ts := slices.Clone(out.Triggers)
	e.orderTriggers(s, ts)
	for i := len(ts) - 1; i >= 0; i-- {
		s.Stack = append(s.Stack, ts[i])
	}
}

// orderTriggers sorts by rule-table priority, then board position left to
// right, then the active player's triggers first.
func (e *Engine) orderTriggers(s *State, ts []StackEntry) {
	rank := func(player string) int {
		if player == s.Active {
			return 0
		}
		return 1
	}
	slices.SortStableFunc(ts, func(a, b StackEntry) int {
		if c := cmp.Compare(e.rules.Priority(a.Trigger), e.rules.Priority(b.Trigger)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(rank(a.Controller), rank(b.Controller))
	})
}

// winCheck returns the finishing event when a player's life reached zero.
func winCheck(s *State) (Event, bool) {
	a, b := s.Players[0], s.Players[1]
	switch {
	case a.Life <= 0 && b.Life <= 0:
		return Event{Type: EvMatchFinished, Payload: Payload{Reason: ReasonLife}}, true
	case a.Life <= 0:
		return Event{Type: EvMatchFinished, Payload: Payload{Winner: b.ID, Reason: ReasonLife}}, true
	case b.Life <= 0:
		return Event{Type: EvMatchFinished, Payload: Payload{Winner: a.ID, Reason: ReasonLife}}, true
	}
	return Event{}, false
}
