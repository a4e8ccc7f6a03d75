package match

import "fmt"

// Replay applies log to a copy of initial. log must start right after the
// initial sequence and be gapless.
func Replay(initial *State, log []Commit) (*State, error) {
	s := initial.Clone()
	for _, c := range log {
		if c.Sequence != s.Sequence+1 {
			return nil, fmt.Errorf("replay: commit %d follows sequence %d", c.Sequence, s.Sequence)
		}
		for _, ev := range c.Events {
			if err := Apply(s, ev); err != nil {
				return nil, fmt.Errorf("replay: commit %d event %d: %w", c.Sequence, ev.Index, err)
			}
		}
		s.Sequence = c.Sequence
	}
	return s, nil
}
