package match

import (
	"testing"

	"pgregory.net/rapid"
)

// Random legal-ish play must conserve cards, advance the sequence by one per
// accepted action and replay to the identical state.
func TestRandomPlayConservesAndReplays(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		eng, s, err := startMatch(rapid.Uint64().Draw(rt, "seed"))
		if err != nil {
			rt.Fatalf("NewMatch: %v", err)
		}
		initial := s.Clone()
		var log []Commit

		steps := rapid.IntRange(1, 80).Draw(rt, "steps")
		for i := 0; i < steps && !s.Finished(); i++ {
			player, a := pickAction(rt, eng, s)
			c, next, err := eng.Resolve(s, player, a, false)
			if _, ok := AsRejection(err); ok {
				continue
			}
			if err != nil {
				rt.Fatalf("step %d %s: %v", i, a.Kind, err)
			}
			if c.Sequence != s.Sequence+1 || next.Sequence != c.Sequence {
				rt.Fatalf("sequence %d -> %d", s.Sequence, c.Sequence)
			}
			if err := CheckInvariants(next); err != nil {
				rt.Fatalf("invariants: %v", err)
			}
			log = append(log, *c)
			s = next
		}

		replayed, err := Replay(initial, log)
		if err != nil {
			rt.Fatalf("Replay: %v", err)
		}
		if snapshotJSON(rt, replayed) != snapshotJSON(rt, s) {
			rt.Fatalf("replay diverged after %d commits", len(log))
		}
	})
}

func pickAction(rt *rapid.T, eng *Engine, s *State) (string, Action) {
	if s.Phase == PhaseMulligan {
		for _, p := range s.Players {
			if p.Mulliganed {
				continue
			}
			n := rapid.IntRange(0, 2).Draw(rt, "return")
			return p.ID, Action{Kind: ActMulligan, Return: append([]string(nil), p.Hand[:n]...)}
		}
	}
	player := s.Active
	opp := s.Opponent(player)
	h := eng.Hints(s, player)
	seq := s.Sequence
	switch rapid.IntRange(0, 9).Draw(rt, "kind") {
	case 0:
		return player, Action{Kind: ActEndTurn, Sequence: seq}
	case 1, 2:
		return player, Action{Kind: ActEndPhase, Sequence: seq}
	case 3, 4, 5:
		if len(h.Playable) > 0 {
			id := rapid.SampledFrom(h.Playable).Draw(rt, "card")
			return player, Action{Kind: ActPlayCard, Card: id, Target: Target{Player: opp.ID}, Sequence: seq}
		}
	default:
		if len(h.Attackers) > 0 {
			id := rapid.SampledFrom(h.Attackers).Draw(rt, "attacker")
			target := Target{Player: opp.ID}
			if len(opp.Board) > 1 && rapid.Bool().Draw(rt, "at_card") {
				target = Target{Card: rapid.SampledFrom(opp.Board).Draw(rt, "defender")}
			}
			return player, Action{Kind: ActAttack, Card: id, Target: target, Sequence: seq}
		}
	}
	return player, Action{Kind: ActEndPhase, Sequence: seq}
}
