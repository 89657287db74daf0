// Package view derives sanitized projections from a table/hand snapshot.
// The engine never hides or reveals hole cards; that decision lives here,
// in one place, reading only from the snapshot and producing no side
// effects.
package view

import (
	"holdem-core/internal/engine"
	"holdem-core/pkg/poker"
)

// SeatView is one seat as shown to an observer: hole cards are present
// only when visibility rules permit, nil otherwise.
type SeatView struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Chips        int                 `json:"chips"`
	HoleCards    []poker.Card        `json:"holeCards,omitempty"`
	Status       engine.SeatStatus   `json:"status"`
	CurrentBet   int                 `json:"currentBet"`
	TotalBet     int                 `json:"totalBet"`
	LastAction   *engine.ActionKind  `json:"lastAction,omitempty"`
	ShowCards    bool                `json:"showCards"`
	Connected    bool                `json:"connected"`
	IsDealer     bool                `json:"isDealer"`
	IsSmallBlind bool                `json:"isSmallBlind"`
	IsBigBlind   bool                `json:"isBigBlind"`
}

// TableView is the public, observer-facing projection of a table+hand
// snapshot.
type TableView struct {
	TableID        string       `json:"tableId"`
	RoomCode       string       `json:"roomCode"`
	Revision       int          `json:"revision"`
	HandNumber     int          `json:"handNumber"`
	Seats          []SeatView   `json:"seats"`
	CommunityCards []poker.Card `json:"communityCards"`
	Pot            int          `json:"pot"`
	Pots           []engine.Pot `json:"pots"`
	CurrentRound   engine.Round `json:"currentRound"`
	CurrentPlayer  *int         `json:"currentPlayer,omitempty"`
	Winners        []string     `json:"winners,omitempty"`
}

// PlayerView is a TableView with one seat's own hole cards always visible
// to that seat, regardless of the table-wide visibility rules.
type PlayerView struct {
	TableView
	ViewerSeatID string `json:"viewerSeatId"`
}

// BuildTableView projects a Hand (plus table identity/revision) into the
// public table view. Hole cards are included for a seat iff the seat
// opted to show, the hand is at true showdown with two or more contesting
// seats, or the run-out condition holds (no seat is to act, at least one
// contesting seat is all-in, and at most one contesting seat still has chips).
func BuildTableView(tableID, roomCode string, revision int, h *engine.Hand) TableView {
	reveal := revealAll(h)

	seats := make([]SeatView, len(h.Seats))
	for i, s := range h.Seats {
		seats[i] = seatView(s, reveal || s.ShowCards)
	}

	return TableView{
		TableID:        tableID,
		RoomCode:       roomCode,
		Revision:       revision,
		HandNumber:     h.HandNumber,
		Seats:          seats,
		CommunityCards: append([]poker.Card(nil), h.CommunityCards...),
		Pot:            h.Pot,
		Pots:           append([]engine.Pot(nil), h.Pots...),
		CurrentRound:   h.CurrentRound,
		CurrentPlayer:  h.CurrentPlayer,
		Winners:        append([]string(nil), h.Winners...),
	}
}

// BuildPlayerView projects the same snapshot for a specific seat, adding
// that seat's own hole cards unconditionally on top of the table view's
// visibility rules.
func BuildPlayerView(tableID, roomCode string, revision int, h *engine.Hand, viewerSeatID string) PlayerView {
	table := BuildTableView(tableID, roomCode, revision, h)
	for i, s := range h.Seats {
		if s.ID == viewerSeatID {
			table.Seats[i] = seatView(s, true)
		}
	}
	return PlayerView{TableView: table, ViewerSeatID: viewerSeatID}
}

func seatView(s engine.Seat, showHoleCards bool) SeatView {
	v := SeatView{
		ID:           s.ID,
		Name:         s.Name,
		Chips:        s.Chips,
		Status:       s.Status,
		CurrentBet:   s.CurrentBet,
		TotalBet:     s.TotalBet,
		LastAction:   s.LastAction,
		ShowCards:    s.ShowCards,
		Connected:    s.Connected,
		IsDealer:     s.IsDealer,
		IsSmallBlind: s.IsSmallBlind,
		IsBigBlind:   s.IsBigBlind,
	}
	if showHoleCards {
		v.HoleCards = append([]poker.Card(nil), s.HoleCards...)
	}
	return v
}

// contestingSeats returns the seats still contesting the pot: active or
// all-in, excluding folded and out seats.
func contestingSeats(h *engine.Hand) []engine.Seat {
	var contesting []engine.Seat
	for _, s := range h.Seats {
		if s.Status == engine.SeatActive || s.Status == engine.SeatAllIn {
			contesting = append(contesting, s)
		}
	}
	return contesting
}

// revealAll reports whether every contesting seat's hole cards should be
// shown: a genuine multi-way showdown, or the run-out condition where
// action has finished early because at most one seat still has chips to act
// and everyone else is all-in. A hand that ended by a single seat
// folding out (one contesting seat left) is neither — that seat's cards
// stay hidden unless it opted to show.
func revealAll(h *engine.Hand) bool {
	contesting := contestingSeats(h)
	if len(contesting) < 2 {
		return false
	}

	if h.CurrentRound == engine.RoundShowdown && h.ShowdownDone {
		return true
	}

	if h.CurrentPlayer == nil && h.CurrentRound != engine.RoundShowdown {
		allIn, canAct := 0, 0
		for _, s := range contesting {
			if s.Status == engine.SeatAllIn {
				allIn++
			} else if s.Chips > 0 {
				canAct++
			}
		}
		return allIn > 0 && canAct <= 1
	}

	return false
}
