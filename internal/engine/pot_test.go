package engine

import "testing"

func TestBuildPots_ShortStackCallCreatesSidePot(t *testing.T) {
	// S1: Alice totalBet=500 (active), Bob totalBet=200 (all-in).
	seats := []Seat{
		{ID: "alice", Status: SeatActive, TotalBet: 500},
		{ID: "bob", Status: SeatAllIn, TotalBet: 200},
	}

	pots := BuildPots(seats)
	if len(pots) != 2 {
		t.Fatalf("expected 2 pots, got %d: %+v", len(pots), pots)
	}
	if pots[0].Amount != 400 || len(pots[0].Eligible) != 2 {
		t.Fatalf("unexpected main pot: %+v", pots[0])
	}
	if pots[1].Amount != 300 || len(pots[1].Eligible) != 1 || pots[1].Eligible[0] != "alice" {
		t.Fatalf("unexpected side pot: %+v", pots[1])
	}

	total := 0
	for _, p := range pots {
		total += p.Amount
	}
	if total != 700 {
		t.Fatalf("expected total pot 700, got %d", total)
	}
}

func TestBuildPots_FoldedSeatContributesButCannotWin(t *testing.T) {
	seats := []Seat{
		{ID: "alice", Status: SeatActive, TotalBet: 300},
		{ID: "bob", Status: SeatFolded, TotalBet: 300},
		{ID: "carol", Status: SeatActive, TotalBet: 300},
	}
	pots := BuildPots(seats)
	if len(pots) != 1 {
		t.Fatalf("expected 1 pot, got %d", len(pots))
	}
	if pots[0].Amount != 900 {
		t.Fatalf("expected pot of 900 (folded seat's chips still counted), got %d", pots[0].Amount)
	}
	for _, id := range pots[0].Eligible {
		if id == "bob" {
			t.Fatal("folded seat must not be eligible")
		}
	}
}

func TestBuildPots_ThreeWayAllInLevels(t *testing.T) {
	seats := []Seat{
		{ID: "a", Status: SeatAllIn, TotalBet: 100},
		{ID: "b", Status: SeatAllIn, TotalBet: 250},
		{ID: "c", Status: SeatActive, TotalBet: 400},
	}
	pots := BuildPots(seats)
	if len(pots) != 3 {
		t.Fatalf("expected 3 pots, got %d: %+v", len(pots), pots)
	}
	if pots[0].Amount != 300 || len(pots[0].Eligible) != 3 {
		t.Fatalf("unexpected pot 0: %+v", pots[0])
	}
	if pots[1].Amount != 300 || len(pots[1].Eligible) != 2 {
		t.Fatalf("unexpected pot 1: %+v", pots[1])
	}
	if pots[2].Amount != 150 || len(pots[2].Eligible) != 1 || pots[2].Eligible[0] != "c" {
		t.Fatalf("unexpected pot 2: %+v", pots[2])
	}
}

func TestBuildPots_SumEqualsTotalBet(t *testing.T) {
	seats := []Seat{
		{ID: "a", Status: SeatActive, TotalBet: 50},
		{ID: "b", Status: SeatFolded, TotalBet: 120},
		{ID: "c", Status: SeatAllIn, TotalBet: 80},
		{ID: "d", Status: SeatActive, TotalBet: 200},
	}
	pots := BuildPots(seats)

	wantTotal := 0
	for _, s := range seats {
		wantTotal += s.TotalBet
	}
	gotTotal := 0
	for _, p := range pots {
		gotTotal += p.Amount
	}
	if gotTotal != wantTotal {
		t.Fatalf("pot total %d != seat totalBet sum %d", gotTotal, wantTotal)
	}
}
