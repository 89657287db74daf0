package engine

import "sort"

// BuildPots computes the main pot plus side pots from seats' totalBet and
// status, following the level-by-level algorithm: distinct bet levels among
// contesting seats (active/all-in) each form a layer; every seat —
// including folded ones — contributes to a layer up to its own totalBet;
// only active/all-in seats at or above the layer are eligible to win it.
func BuildPots(seats []Seat) []Pot {
	levels := distinctLevels(seats)
	if len(levels) == 0 {
		return nil
	}

	pots := make([]Pot, 0, len(levels))
	prev := 0
	for _, level := range levels {
		amount := 0
		for _, s := range seats {
			amount += clampContribution(s.TotalBet, prev, level)
		}
		if amount == 0 {
			prev = level
			continue
		}

		eligible := make([]string, 0, len(seats))
		for _, s := range seats {
			if (s.Status == SeatActive || s.Status == SeatAllIn) && s.TotalBet >= level {
				eligible = append(eligible, s.ID)
			}
		}

		pots = append(pots, Pot{Amount: amount, Eligible: eligible})
		prev = level
	}
	return pots
}

// distinctLevels returns the sorted, deduplicated totalBet values of seats
// still contesting the pot. Folded seats never introduce a new level — the
// money they put in above the last contesting level is absorbed into
// whatever level it falls under.
func distinctLevels(seats []Seat) []int {
	seen := make(map[int]bool, len(seats))
	levels := make([]int, 0, len(seats))
	for _, s := range seats {
		if s.Status != SeatActive && s.Status != SeatAllIn {
			continue
		}
		if s.TotalBet <= 0 || seen[s.TotalBet] {
			continue
		}
		seen[s.TotalBet] = true
		levels = append(levels, s.TotalBet)
	}
	sort.Ints(levels)
	return levels
}

// clampContribution returns how much of totalBet falls within (prev, level].
func clampContribution(totalBet, prev, level int) int {
	upper := totalBet
	if upper > level {
		upper = level
	}
	lower := totalBet
	if lower > prev {
		lower = prev
	}
	return upper - lower
}

// UncontestedPots splits pots into those with exactly one eligible seat
// (returned uncalled, never counted as a "win") and those genuinely
// contested by more than one seat.
func UncontestedPots(pots []Pot) (uncontested, contested []Pot) {
	for _, p := range pots {
		if len(p.Eligible) <= 1 {
			uncontested = append(uncontested, p)
		} else {
			contested = append(contested, p)
		}
	}
	return uncontested, contested
}
