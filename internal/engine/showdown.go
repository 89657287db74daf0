package engine

import "holdem-core/pkg/poker"

// ProcessShowdown awards every pot and marks the hand's showdown complete.
// It is guarded by ShowdownDone: a second call is a no-op, which is what
// lets the table serializer retry a showdown after a persistence failure
// without risking a double payout.
func (h *Hand) ProcessShowdown() ([]Event, error) {
	if h.ShowdownDone {
		return nil, nil
	}

	pots := BuildPots(h.Seats)
	h.Pots = pots

	winnersByPot := make(map[int][]string, len(pots))
	winnerSet := make(map[string]bool)

	for i, pot := range pots {
		if len(pot.Eligible) <= 1 {
			// Uncontested: return the chips, no "winner" flag.
			if len(pot.Eligible) == 1 {
				h.creditSeat(pot.Eligible[0], pot.Amount)
			}
			continue
		}

		winners, err := h.bestHandHolders(pot.Eligible)
		if err != nil {
			return nil, err
		}

		share := pot.Amount / len(winners)
		remainder := pot.Amount % len(winners)
		ordered := orderClockwiseFromDealer(winners, h.Seats, h.DealerPosition)

		for idx, seatID := range ordered {
			amount := share
			if idx == 0 {
				amount += remainder
			}
			h.creditSeat(seatID, amount)
			winnerSet[seatID] = true
		}
		winnersByPot[i] = ordered
	}

	winners := make([]string, 0, len(winnerSet))
	for id := range winnerSet {
		winners = append(winners, id)
	}
	h.Winners = orderClockwiseFromDealer(winners, h.Seats, h.DealerPosition)

	h.Pot = 0
	h.ShowdownDone = true
	h.CurrentRound = RoundShowdown
	h.CurrentPlayer = nil

	event := Event{
		Kind:         EventShowdown,
		PotBreakdown: pots,
		WinnersByPot: winnersByPot,
	}
	h.appendEvent(event)

	return []Event{h.Events[len(h.Events)-1]}, nil
}

func (h *Hand) creditSeat(seatID string, amount int) {
	for i := range h.Seats {
		if h.Seats[i].ID == seatID {
			h.Seats[i].Chips += amount
			return
		}
	}
}

// bestHandHolders returns the seat IDs whose best 7-card hand ties for the
// maximum among eligible seats, compared with the rank-then-tiebreak
// comparator — never raw card values.
func (h *Hand) bestHandHolders(eligible []string) ([]string, error) {
	var best *poker.EvaluatedHand
	bestBySeat := make(map[string]*poker.EvaluatedHand, len(eligible))

	for _, seatID := range eligible {
		seat := h.seatByID(seatID)
		if seat == nil {
			continue
		}
		cards := append(append([]poker.Card{}, seat.HoleCards...), h.CommunityCards...)
		evaluated, err := poker.Evaluate7(cards)
		if err != nil {
			return nil, err
		}
		bestBySeat[seatID] = evaluated
		if best == nil || evaluated.Compare(best) > 0 {
			best = evaluated
		}
	}

	winners := make([]string, 0, 1)
	for seatID, evaluated := range bestBySeat {
		if evaluated.Compare(best) == 0 {
			winners = append(winners, seatID)
		}
	}
	return winners, nil
}

func (h *Hand) seatByID(id string) *Seat {
	for i := range h.Seats {
		if h.Seats[i].ID == id {
			return &h.Seats[i]
		}
	}
	return nil
}

// orderClockwiseFromDealer orders a set of seat IDs starting from the seat
// immediately clockwise of the dealer, wrapping around the table. This is
// the tie-break used both for assigning a pot's remainder chip and for
// reporting the winners list in a stable, dealer-relative order.
func orderClockwiseFromDealer(seatIDs []string, seats []Seat, dealerPosition int) []string {
	if len(seatIDs) <= 1 {
		return append([]string(nil), seatIDs...)
	}

	positionOf := make(map[string]int, len(seats))
	for i, s := range seats {
		positionOf[s.ID] = i
	}

	n := len(seats)
	ordered := append([]string(nil), seatIDs...)
	distanceFromDealer := func(seatID string) int {
		pos, ok := positionOf[seatID]
		if !ok {
			return n + 1
		}
		d := pos - dealerPosition
		if d <= 0 {
			d += n
		}
		return d
	}

	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && distanceFromDealer(ordered[j-1]) > distanceFromDealer(ordered[j]); j-- {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}
	return ordered
}
