package deck

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

//go:embed starter.yaml
var starterYAML []byte

// Starter returns the built-in development deck owned by userID.
func Starter(userID string) (*List, error) {
	var l List
	if err := yaml.Unmarshal(starterYAML, &l); err != nil {
		return nil, fmt.Errorf("parse starter deck: %w", err)
	}
	l.UserID = userID
	return &l, nil
}

// Static is an in-memory deck source used when no content service is configured.
// Users without a stored deck get the starter deck when fallback is enabled.
type Static struct {
	mu       sync.RWMutex
	decks    map[string]*List
	fallback bool
}

func NewStatic(fallback bool) *Static {
	return &Static{decks: make(map[string]*List), fallback: fallback}
}

func (s *Static) Put(l *List) {
	if l == nil {
		return
	}
	cp := *l
	cp.Entries = append([]Entry(nil), l.Entries...)
	s.mu.Lock()
	s.decks[strings.TrimSpace(l.UserID)] = &cp
	s.mu.Unlock()
}

func (s *Static) GetSavedDeck(_ context.Context, userID string) (*List, error) {
	s.mu.RLock()
	l, ok := s.decks[strings.TrimSpace(userID)]
	s.mu.RUnlock()
	if ok {
		cp := *l
		cp.Entries = append([]Entry(nil), l.Entries...)
		return &cp, nil
	}
	if !s.fallback {
		return nil, fmt.Errorf("%w: %s", ErrNoDeck, userID)
	}
	return Starter(userID)
}
