package match

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/park285/Cheese-CardDuel/internal/catalog"
	yaml "gopkg.in/yaml.v3"
)

// Rules is the tunable rule table. Zero values are filled from DefaultRules.
type Rules struct {
	DeckSize        int                     `yaml:"deck_size"`
	MaxCopies       int                     `yaml:"max_copies"`
	StartingLife    int                     `yaml:"starting_life"`
	OpeningHand     int                     `yaml:"opening_hand"`
	MaxResource     int                     `yaml:"max_resource"`
	BoardLimit      int                     `yaml:"board_limit"`
	FatigueDamage   int                     `yaml:"fatigue_damage"`
	PhaseTimeouts   map[Phase]time.Duration `yaml:"phase_timeouts"`
	DisconnectGrace time.Duration           `yaml:"disconnect_grace"`
	FrozenTimeout   time.Duration           `yaml:"frozen_timeout"` // a frozen match is aborted after this
	PhaseActions    map[Phase][]ActionKind  `yaml:"phase_actions"`
	OutOfTurn       []ActionKind            `yaml:"out_of_turn"`
	TriggerPriority map[catalog.Trigger]int `yaml:"trigger_priority"`
}

func DefaultRules() Rules {
	return Rules{
		DeckSize:      40,
		MaxCopies:     3,
		StartingLife:  20,
		OpeningHand:   5,
		MaxResource:   10,
		BoardLimit:    7,
		FatigueDamage: 1,
		PhaseTimeouts: map[Phase]time.Duration{
			PhaseMulligan: 30 * time.Second,
			PhaseMain:     90 * time.Second,
			PhaseCombat:   45 * time.Second,
			PhaseEnd:      15 * time.Second,
		},
		DisconnectGrace: 60 * time.Second,
		FrozenTimeout:   2 * time.Minute,
		PhaseActions: map[Phase][]ActionKind{
			PhaseMulligan: {ActMulligan, ActConcede},
			PhaseMain:     {ActPlayCard, ActEndPhase, ActEndTurn, ActConcede},
			PhaseCombat:   {ActAttack, ActEndPhase, ActEndTurn, ActConcede},
			PhaseEnd:      {ActEndPhase, ActEndTurn, ActConcede},
		},
		OutOfTurn: []ActionKind{ActMulligan, ActConcede},
		TriggerPriority: map[catalog.Trigger]int{
			catalog.OnDeath:   0,
			catalog.OnTurnEnd: 1,
			catalog.Delayed:   2,
			catalog.OnPlay:    3,
		},
	}
}

// LoadRules overlays the YAML file at path on DefaultRules. An empty path
// returns the defaults.
func LoadRules(path string) (Rules, error) {
	r := DefaultRules()
	if strings.TrimSpace(path) == "" {
		return r, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(raw)
}

func ParseRules(raw []byte) (Rules, error) {
	r := DefaultRules()
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

func (r Rules) Validate() error {
	var errs []error
	if r.DeckSize <= 0 {
		errs = append(errs, errors.New("deck_size must be positive"))
	}
	if r.MaxCopies <= 0 {
		errs = append(errs, errors.New("max_copies must be positive"))
	}
	if r.StartingLife <= 0 {
		errs = append(errs, errors.New("starting_life must be positive"))
	}
	if r.OpeningHand < 0 || r.OpeningHand >= r.DeckSize {
		errs = append(errs, errors.New("opening_hand out of range"))
	}
	if r.BoardLimit <= 0 {
		errs = append(errs, errors.New("board_limit must be positive"))
	}
	for _, ph := range []Phase{PhaseMulligan, PhaseMain, PhaseCombat, PhaseEnd} {
		if r.PhaseTimeouts[ph] <= 0 {
			errs = append(errs, fmt.Errorf("phase_timeouts.%s must be positive", ph))
		}
	}
	return errors.Join(errs...)
}

func (r Rules) Allows(ph Phase, k ActionKind) bool { return slices.Contains(r.PhaseActions[ph], k) }

func (r Rules) OutOfTurnAllowed(k ActionKind) bool { return slices.Contains(r.OutOfTurn, k) }

func (r Rules) PhaseTimeout(ph Phase) time.Duration { return r.PhaseTimeouts[ph] }

// Priority orders simultaneous triggers; lower fires first.
func (r Rules) Priority(t catalog.Trigger) int {
	if p, ok := r.TriggerPriority[t]; ok {
		return p
	}
	return len(r.TriggerPriority)
}
