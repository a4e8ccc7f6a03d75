package deck

import (
	"context"
	"errors"
	"testing"

	"github.com/park285/Cheese-CardDuel/internal/catalog"
	"github.com/park285/Cheese-CardDuel/internal/match"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	cards, err := catalog.NewStatic("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewValidator(cards, match.DefaultRules())
}

func starter(t *testing.T) *List {
	t.Helper()
	l, err := Starter("u1")
	if err != nil {
		t.Fatalf("Starter: %v", err)
	}
	return l
}

func TestStarterDeckIsValid(t *testing.T) {
	v := newValidator(t)
	in, err := v.Validate(context.Background(), starter(t))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if in.Hero != "ember_warden" || len(in.Cards) != 39 {
		t.Fatalf("hero=%s cards=%d", in.Hero, len(in.Cards))
	}
	if _, ok := in.Defs.Get("spark_token"); !ok {
		t.Fatalf("token definition not resolved")
	}
	seat := in.Seat("Alice")
	if seat.PlayerID != "u1" || seat.Name != "Alice" || len(seat.Cards) != 39 {
		t.Fatalf("seat = %+v", seat)
	}
}

func TestValidateRejections(t *testing.T) {
	v := newValidator(t)
	cases := []struct {
		name   string
		mutate func(l *List)
	}{
		{"39 cards", func(l *List) { l.Entries[1].Count = 2 }},
		{"41 cards", func(l *List) { l.Entries = append(l.Entries, Entry{CardID: "field_medic", Count: 1}) }},
		{"four copies", func(l *List) {
			l.Entries[1].Count = 4
			l.Entries[2].Count = 2
		}},
		{"unknown card", func(l *List) { l.Entries[1].CardID = "ghost_card" }},
		{"no hero", func(l *List) {
			l.Entries[0] = Entry{CardID: "field_medic", Count: 1}
		}},
		{"two heroes", func(l *List) {
			l.Entries[1].Count = 2
			l.Entries = append(l.Entries, Entry{CardID: "tide_oracle", Count: 1})
		}},
		{"token in deck", func(l *List) {
			l.Entries[1].Count = 2
			l.Entries = append(l.Entries, Entry{CardID: "spark_token", Count: 1})
		}},
		{"off-faction card", func(l *List) {
			l.Entries[1].Count = 2
			l.Entries = append(l.Entries, Entry{CardID: "tide_runner", Count: 1})
		}},
		{"zero count entry", func(l *List) { l.Entries = append(l.Entries, Entry{CardID: "field_medic", Count: 0}) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := starter(t)
			tc.mutate(l)
			_, err := v.Validate(context.Background(), l)
			rej, ok := match.AsRejection(err)
			if !ok || rej.Kind != match.DeckInvalid {
				t.Fatalf("expected DeckInvalid, got %v", err)
			}
		})
	}
}

type failingSource struct{}

func (failingSource) GetCard(context.Context, string) (*catalog.Card, error) {
	return nil, errors.New("content service down")
}

func TestSourceOutageIsNotARejection(t *testing.T) {
	v := NewValidator(failingSource{}, match.DefaultRules())
	_, err := v.Validate(context.Background(), starter(t))
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := match.AsRejection(err); ok {
		t.Fatalf("outage reported as DeckInvalid: %v", err)
	}
}

func TestStaticSource(t *testing.T) {
	ctx := context.Background()
	s := NewStatic(false)
	if _, err := s.GetSavedDeck(ctx, "nobody"); !errors.Is(err, ErrNoDeck) {
		t.Fatalf("expected ErrNoDeck, got %v", err)
	}
	custom := &List{UserID: "u2", Name: "mine", Entries: []Entry{{CardID: "ember_squire", Count: 3}}}
	s.Put(custom)
	custom.Entries[0].Count = 1
	got, err := s.GetSavedDeck(ctx, "u2")
	if err != nil || got.Entries[0].Count != 3 {
		t.Fatalf("stored deck aliased caller slice: %+v %v", got, err)
	}

	fb := NewStatic(true)
	l, err := fb.GetSavedDeck(ctx, "u3")
	if err != nil || l.UserID != "u3" || l.Size() != 40 {
		t.Fatalf("fallback deck: %+v %v", l, err)
	}
}

// patchedSource serves one replaced definition on top of the static pool.
type patchedSource struct {
	base catalog.Source
	card *catalog.Card
}

func (p patchedSource) GetCard(ctx context.Context, id string) (*catalog.Card, error) {
	if id == p.card.ID {
		return p.card, nil
	}
	return p.base.GetCard(ctx, id)
}

func patchedSquire(t *testing.T, ab catalog.Ability) catalog.Source {
	t.Helper()
	cards, err := catalog.NewStatic("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	c, err := cards.GetCard(context.Background(), "ember_squire")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	c = c.Clone()
	c.Abilities = []catalog.Ability{ab}
	return patchedSource{base: cards, card: c}
}

func TestValidateRejectsUnsupportedEffect(t *testing.T) {
	src := patchedSquire(t, catalog.Ability{Trigger: catalog.OnPlay, Effect: "glitch", Target: catalog.TargetSelf})

	_, err := NewValidator(src, match.DefaultRules()).Validate(context.Background(), starter(t))
	rej, ok := match.AsRejection(err)
	if !ok || rej.Kind != match.DeckInvalid {
		t.Fatalf("expected DeckInvalid, got %v", err)
	}

	extra := map[string]match.Handler{
		"glitch": func(hc *match.Context, e match.StackEntry) (match.Outcome, error) {
			return match.Outcome{}, nil
		},
	}
	if _, err := NewValidator(src, match.DefaultRules()).WithHandlers(extra).Validate(context.Background(), starter(t)); err != nil {
		t.Fatalf("registered effect rejected: %v", err)
	}
}

func TestValidateRejectsNegativeBuff(t *testing.T) {
	src := patchedSquire(t, catalog.Ability{Trigger: catalog.OnPlay, Effect: "buff", Target: catalog.TargetChosen, Health: -5})
	_, err := NewValidator(src, match.DefaultRules()).Validate(context.Background(), starter(t))
	rej, ok := match.AsRejection(err)
	if !ok || rej.Kind != match.DeckInvalid {
		t.Fatalf("expected DeckInvalid, got %v", err)
	}
}
