// Package table is the single-writer per-table serializer: every external
// operation against a table's current hand is submitted as a request on one
// channel and applied by one goroutine, in order, grounded in the teacher's
// Table.gameLoop/actions-channel pattern. This is what turns the pure,
// single-threaded internal/engine state machine into something many
// concurrent client connections can safely drive.
package table

import (
	"time"

	"holdem-core/internal/engine"
	"holdem-core/internal/view"
)

// requestKind tags a queued request so the serializer can dispatch on it and
// metrics can label latency by kind.
type requestKind string

const (
	kindStartHand     requestKind = "start_hand"
	kindStartNext     requestKind = "start_next_hand"
	kindPlayerAction  requestKind = "player_action"
	kindAdvanceRound  requestKind = "advance_round"
	kindRevealCard    requestKind = "reveal_card"
	kindJoinSeat      requestKind = "join_seat"
	kindLeaveSeat     requestKind = "leave_seat"
)

// Result is what a request resolves to: the revision number the request's
// effect was published under, and the table's current hand after the request
// (nil until the table's first hand has been dealt).
type Result struct {
	Revision int
	Hand     *engine.Hand
}

// request is the internal envelope placed on the serializer's queue. deadline
// is optional: a zero value means the request never expires while queued.
type request struct {
	kind     requestKind
	deadline time.Time

	// player_action
	seatID string
	action engine.ActionKind
	amount int

	// join_seat
	joinSeatID string
	joinName   string
	credential string
	joinChips  int
	position   int

	// leave_seat
	leaveSeatID string

	respond chan response
}

type response struct {
	result Result
	err    error
}

func (r *request) expired() bool {
	return !r.deadline.IsZero() && time.Now().After(r.deadline)
}

// StartHandRequest asks the serializer to deal the table's first hand.
type StartHandRequest struct {
	Deadline time.Time
}

// StartNextHandRequest asks the serializer to deal the next hand once the
// current one has completed.
type StartNextHandRequest struct {
	Deadline time.Time
}

// PlayerActionRequest is one seat's betting decision.
type PlayerActionRequest struct {
	SeatID   string
	Action   engine.ActionKind
	Amount   int
	Deadline time.Time
}

// AdvanceRoundRequest asks the serializer to move the hand to the next
// street once the current betting round is complete.
type AdvanceRoundRequest struct {
	Deadline time.Time
}

// RevealCardRequest asks the serializer to deal the next community card
// during an all-in runout, where no further player decision is possible.
type RevealCardRequest struct {
	Deadline time.Time
}

// JoinSeatRequest seats a new player between hands.
type JoinSeatRequest struct {
	SeatID         string
	Name           string
	CredentialHash string
	Chips          int
	Position       int
	Deadline       time.Time
}

// LeaveSeatRequest removes a seat between hands, or marks it disconnected
// mid-hand; a disconnected seat is not folded and keeps its place in the hand.
type LeaveSeatRequest struct {
	SeatID   string
	Deadline time.Time
}

// viewPublisher is the subset of *view.Hub the serializer needs; kept as an
// interface so tests can substitute a recording stub.
type viewPublisher interface {
	PublishTable(tableID string, number int, tableView view.TableView)
	PublishPlayer(tableID, viewerSeatID string, number int, playerView view.PlayerView)
}

var _ viewPublisher = (*view.Hub)(nil)
