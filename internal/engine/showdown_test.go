package engine

import (
	"testing"

	"holdem-core/pkg/poker"
)

func TestProcessShowdown_PairBeatsHighCard(t *testing.T) {
	// S2: community 3s Js 10c 4h 9s; Alice 6d 9c (pair of 9s); Bob 5d 7c (high card J).
	community := []poker.Card{
		poker.NewCard(poker.Rank3, poker.SuitSpades),
		poker.NewCard(poker.RankJ, poker.SuitSpades),
		poker.NewCard(poker.Rank10, poker.SuitClubs),
		poker.NewCard(poker.Rank4, poker.SuitHearts),
		poker.NewCard(poker.Rank9, poker.SuitSpades),
	}
	h := &Hand{
		DealerPosition: 0,
		CommunityCards: community,
		CurrentRound:   RoundRiver,
		Seats: []Seat{
			{
				ID:     "alice",
				Status: SeatActive,
				HoleCards: []poker.Card{
					poker.NewCard(poker.Rank6, poker.SuitDiamonds),
					poker.NewCard(poker.Rank9, poker.SuitClubs),
				},
				TotalBet: 100,
			},
			{
				ID:     "bob",
				Status: SeatActive,
				HoleCards: []poker.Card{
					poker.NewCard(poker.Rank5, poker.SuitDiamonds),
					poker.NewCard(poker.Rank7, poker.SuitClubs),
				},
				TotalBet: 100,
			},
		},
		Pot: 200,
	}

	events, err := h.ProcessShowdown()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventShowdown {
		t.Fatalf("expected one showdown event, got %+v", events)
	}
	if len(h.Winners) != 1 || h.Winners[0] != "alice" {
		t.Fatalf("expected alice to win, got %v", h.Winners)
	}
	if h.Seats[0].Chips != 200 {
		t.Fatalf("expected alice to hold 200 chips, got %d", h.Seats[0].Chips)
	}
	if h.Seats[1].Chips != 0 {
		t.Fatalf("expected bob to hold 0 chips, got %d", h.Seats[1].Chips)
	}
}

func TestProcessShowdown_Idempotent(t *testing.T) {
	h := &Hand{
		DealerPosition: 0,
		CommunityCards: []poker.Card{
			poker.NewCard(poker.Rank2, poker.SuitClubs),
			poker.NewCard(poker.Rank5, poker.SuitHearts),
			poker.NewCard(poker.Rank9, poker.SuitDiamonds),
			poker.NewCard(poker.RankJ, poker.SuitClubs),
			poker.NewCard(poker.RankA, poker.SuitSpades),
		},
		Seats: []Seat{
			{ID: "a", Status: SeatActive, HoleCards: []poker.Card{poker.NewCard(poker.RankK, poker.SuitHearts), poker.NewCard(poker.RankQ, poker.SuitHearts)}, TotalBet: 50},
			{ID: "b", Status: SeatActive, HoleCards: []poker.Card{poker.NewCard(poker.Rank3, poker.SuitClubs), poker.NewCard(poker.Rank4, poker.SuitClubs)}, TotalBet: 50},
		},
		Pot: 100,
	}

	if _, err := h.ProcessShowdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	aliceChipsAfterFirst := h.Seats[0].Chips
	bobChipsAfterFirst := h.Seats[1].Chips

	events, err := h.ProcessShowdown()
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if events != nil {
		t.Fatalf("expected second call to be a no-op, got events %+v", events)
	}
	if h.Seats[0].Chips != aliceChipsAfterFirst || h.Seats[1].Chips != bobChipsAfterFirst {
		t.Fatal("second processShowdown call changed chip counts: double payout")
	}
}

func TestProcessShowdown_SplitPotWithRemainder(t *testing.T) {
	// S6: tie on the river with an indivisible pot of 301; extra chip goes
	// to the earliest seat clockwise from the dealer.
	community := []poker.Card{
		poker.NewCard(poker.Rank2, poker.SuitClubs),
		poker.NewCard(poker.Rank5, poker.SuitHearts),
		poker.NewCard(poker.Rank9, poker.SuitDiamonds),
		poker.NewCard(poker.RankJ, poker.SuitClubs),
		poker.NewCard(poker.RankA, poker.SuitSpades),
	}
	h := &Hand{
		DealerPosition: 0,
		CommunityCards: community,
		Seats: []Seat{
			{ID: "dealer", Status: SeatActive, HoleCards: []poker.Card{poker.NewCard(poker.Rank7, poker.SuitSpades), poker.NewCard(poker.Rank8, poker.SuitSpades)}, TotalBet: 150},
			{ID: "other", Status: SeatActive, HoleCards: []poker.Card{poker.NewCard(poker.Rank7, poker.SuitHearts), poker.NewCard(poker.Rank8, poker.SuitHearts)}, TotalBet: 150},
			{ID: "folder", Status: SeatFolded, TotalBet: 1},
		},
		Pot: 301,
	}

	if _, err := h.ProcessShowdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := h.Seats[0].Chips + h.Seats[1].Chips
	if total != 301 {
		t.Fatalf("expected 301 chips distributed, got %d", total)
	}
	if h.Seats[0].Chips != 150 || h.Seats[1].Chips != 151 {
		t.Fatalf("expected the seat just clockwise of the dealer to get the extra chip: dealer=%d other=%d", h.Seats[0].Chips, h.Seats[1].Chips)
	}
}

func TestProcessShowdown_UncontestedSidePotNotMarkedWin(t *testing.T) {
	community := []poker.Card{
		poker.NewCard(poker.Rank2, poker.SuitClubs),
		poker.NewCard(poker.Rank5, poker.SuitHearts),
		poker.NewCard(poker.Rank9, poker.SuitDiamonds),
		poker.NewCard(poker.RankJ, poker.SuitClubs),
		poker.NewCard(poker.RankA, poker.SuitSpades),
	}
	h := &Hand{
		DealerPosition: 0,
		CommunityCards: community,
		Seats: []Seat{
			{ID: "alice", Status: SeatActive, HoleCards: []poker.Card{poker.NewCard(poker.RankK, poker.SuitHearts), poker.NewCard(poker.RankQ, poker.SuitHearts)}, TotalBet: 500},
			{ID: "bob", Status: SeatAllIn, HoleCards: []poker.Card{poker.NewCard(poker.Rank3, poker.SuitClubs), poker.NewCard(poker.Rank8, poker.SuitClubs)}, TotalBet: 200},
		},
		Pot: 700,
	}

	if _, err := h.ProcessShowdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.Winners) != 1 || h.Winners[0] != "alice" {
		t.Fatalf("expected alice as the only flagged winner, got %v", h.Winners)
	}
	if h.Seats[0].Chips != 700 {
		t.Fatalf("expected alice to hold all 700 chips (main pot win + uncontested side pot return), got %d", h.Seats[0].Chips)
	}
}
