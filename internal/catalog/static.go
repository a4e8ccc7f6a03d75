package catalog

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

//go:embed cards.yaml
var defaultFiles embed.FS

type catalogFile struct {
	Cards []*Card `yaml:"cards"`
}

// Static serves definitions from the embedded card pool plus an optional
// override file. Entries of the override replace embedded ones by id.
type Static struct {
	cards map[string]*Card
}

func NewStatic(overrideFile string) (*Static, error) {
	s := &Static{cards: make(map[string]*Card)}
	raw, err := fs.ReadFile(defaultFiles, "cards.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded cards: %w", err)
	}
	if err := s.apply(raw); err != nil {
		return nil, fmt.Errorf("parse embedded cards: %w", err)
	}
	if strings.TrimSpace(overrideFile) != "" {
		b, err := os.ReadFile(overrideFile)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", overrideFile, err)
		}
		if err := s.apply(b); err != nil {
			return nil, fmt.Errorf("parse %s: %w", overrideFile, err)
		}
	}
	return s, nil
}

// ParseStatic builds a Static from raw YAML only, without the embedded pool.
func ParseStatic(raw []byte) (*Static, error) {
	s := &Static{cards: make(map[string]*Card)}
	if err := s.apply(raw); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Static) apply(raw []byte) error {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return err
	}
	for i, c := range f.Cards {
		if c == nil || strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("card #%d has no id", i)
		}
		switch c.Kind {
		case KindAlly, KindSpell, KindHero, KindToken:
		default:
			return fmt.Errorf("card %s: unknown kind %q", c.ID, c.Kind)
		}
		if c.Cost < 0 || c.Attack < 0 || c.Health < 0 {
			return fmt.Errorf("card %s: negative stats", c.ID)
		}
		s.cards[c.ID] = c
	}
	return nil
}

func (s *Static) GetCard(_ context.Context, id string) (*Card, error) {
	c, ok := s.cards[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// All returns every definition sorted by id.
func (s *Static) All() []*Card {
	out := make([]*Card, 0, len(s.cards))
	for _, c := range s.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
