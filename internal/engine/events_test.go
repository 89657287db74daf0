package engine

import (
	"reflect"
	"testing"

	"holdem-core/pkg/poker"
)

// TestReplayHand_ReconstructsFoldedHeadsUpHand exercises the S3 fold-win
// path: start a hand, fold one seat, then replay the resulting event log
// from the original seat snapshot and check the final chip stacks and
// winner agree with the live hand.
func TestReplayHand_ReconstructsFoldedHeadsUpHand(t *testing.T) {
	config := TableConfig{SmallBlind: 5, BigBlind: 10, StartingChips: 1000}
	startSeats := newSeats(1000, 1000)

	h, err := StartNewHand(startSeats, 1, -1, config, []byte("replay-seed-1"))
	if err != nil {
		t.Fatalf("unexpected error starting hand: %v", err)
	}

	firstActor := h.Seats[*h.CurrentPlayer].ID
	if _, err := h.ApplyAction(firstActor, ActionFold, 0); err != nil {
		t.Fatalf("unexpected error folding: %v", err)
	}

	if h.CurrentPlayer != nil {
		t.Fatal("expected hand to end after heads-up fold")
	}

	replayed, err := ReplayHand(h.Events, startSeats, config)
	if err != nil {
		t.Fatalf("unexpected error replaying: %v", err)
	}

	for i := range h.Seats {
		if replayed.Seats[i].Chips != h.Seats[i].Chips {
			t.Fatalf("seat %d chip mismatch: live=%d replayed=%d", i, h.Seats[i].Chips, replayed.Seats[i].Chips)
		}
	}
	if !reflect.DeepEqual(replayed.Winners, h.Winners) {
		t.Fatalf("winners mismatch: live=%v replayed=%v", h.Winners, replayed.Winners)
	}
}

// TestReplayHand_ReconstructsShowdownHand builds a hand straight to
// showdown (bypassing ApplyAction/AdvanceStreet, which is legal since Hand
// is a plain struct) and checks that replaying its event log from the
// pre-hand chip snapshot reproduces the same payout.
func TestReplayHand_ReconstructsShowdownHand(t *testing.T) {
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

	startSeats := []Seat{
		{ID: "alice", Chips: 0},
		{ID: "bob", Chips: 0},
	}

	if _, err := h.ProcessShowdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replayed, err := ReplayHand(h.Events, startSeats, TableConfig{})
	if err != nil {
		t.Fatalf("unexpected error replaying: %v", err)
	}

	if replayed.Seats[0].Chips != h.Seats[0].Chips || replayed.Seats[1].Chips != h.Seats[1].Chips {
		t.Fatalf("chip mismatch: live=%v replayed=%v", h.Seats, replayed.Seats)
	}
	if !reflect.DeepEqual(replayed.Winners, h.Winners) {
		t.Fatalf("winners mismatch: live=%v replayed=%v", h.Winners, replayed.Winners)
	}
}
