package match

// CheckInvariants verifies conservation and zone consistency. Any error wraps ErrInvariant.
func CheckInvariants(s *State) error {
	if len(s.Stack) != 0 {
		return invariantf("stack not empty at rest (%d)", len(s.Stack))
	}
	if s.Player(s.Active) == nil {
		return invariantf("active player %q is not seated", s.Active)
	}
	seen := make(map[string]bool, len(s.Cards))
	for _, p := range s.Players {
		if p.Life < 0 || p.Resource < 0 {
			return invariantf("player %s has negative life or resource", p.ID)
		}
		owned := 0
		for _, z := range []Zone{ZoneDeck, ZoneHand, ZoneBoard, ZoneDiscard} {
			for _, id := range *p.zone(z) {
				c := s.Cards[id]
				if c == nil {
					return invariantf("%s of %s lists unknown card %s", z, p.ID, id)
				}
				if seen[id] {
					return invariantf("card %s listed twice", id)
				}
				seen[id] = true
				if c.Owner != p.ID || c.Zone != z {
					return invariantf("card %s is %s/%s but listed in %s/%s", id, c.Owner, c.Zone, p.ID, z)
				}
				if c.Health < 0 {
					return invariantf("card %s has negative health", id)
				}
				if !c.Token {
					owned++
				}
			}
		}
		if owned != s.InitialCount {
			return invariantf("player %s holds %d cards, want %d", p.ID, owned, s.InitialCount)
		}
	}
	if len(seen) != len(s.Cards) {
		return invariantf("%d cards are in no zone", len(s.Cards)-len(seen))
	}
	return nil
}
