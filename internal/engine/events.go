package engine

import (
	"time"

	"holdem-core/pkg/poker"
)

// EventKind tags an Event's payload shape.
type EventKind string

const (
	EventHandStart     EventKind = "hand_start"
	EventDeal          EventKind = "deal"
	EventPostBlind     EventKind = "post_blind"
	EventAction        EventKind = "action"
	EventDealCommunity EventKind = "deal_community"
	EventAdvanceRound  EventKind = "advance_round"
	EventShowdown      EventKind = "showdown"
	EventHandComplete  EventKind = "hand_complete"
)

// Event is a single hand-scoped, append-only record. SequenceNumber is
// monotonic within the hand; replaying events in sequence order
// reconstructs the hand's state exactly, so every event carries enough of
// its own context (round at apply, amount, resulting stack) to not depend
// on anything the replayer hasn't seen yet.
type Event struct {
	SequenceNumber int
	Kind           EventKind
	Timestamp      time.Time

	// HandStart
	HandNumber     int
	DealerPosition int
	DeckSeed       []byte
	BlindsPosted   []BlindPosted

	// Deal
	SeatIndex int
	Cards     []poker.Card

	// PostBlind
	BlindSeatID string
	BlindAmount int
	BlindKind   string // "small" | "big"

	// Action
	ActorSeatID   string
	ActionKind    ActionKind
	Amount        int
	RoundAtApply  Round
	ResultChips   int

	// DealCommunity
	CommunityRound Round

	// AdvanceRound
	FromRound Round
	ToRound   Round

	// Showdown
	PotBreakdown []Pot
	WinnersByPot map[int][]string

	// HandComplete
	StacksEnd map[string]int
}

// BlindPosted records one blind posting inside a HandStart event.
type BlindPosted struct {
	SeatID string
	Amount int
	Kind   string
}

func (h *Hand) nextSequence() int {
	return len(h.Events)
}

func (h *Hand) appendEvent(e Event) {
	e.SequenceNumber = h.nextSequence()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	h.Events = append(h.Events, e)
}

// ReplayHand reconstructs a hand's final state from its recorded events and
// the seat chip stacks as they stood immediately before HandStart. Each
// event already carries the context it needs (round at apply, amount,
// resulting chip count), so replay never has to re-derive betting legality
// — it only has to play the recorded facts back in order.
func ReplayHand(events []Event, seatsAtStart []Seat, config TableConfig) (*Hand, error) {
	if len(events) == 0 {
		return nil, newErr(KindInputValidation, "empty_event_log", "no events to replay")
	}

	h := &Hand{
		Seats:  make([]Seat, len(seatsAtStart)),
		config: config,
	}
	copy(h.Seats, seatsAtStart)
	for i := range h.Seats {
		h.Seats[i].HoleCards = nil
		h.Seats[i].CurrentBet = 0
		h.Seats[i].TotalBet = 0
		h.Seats[i].LastAction = nil
		if h.Seats[i].Chips > 0 {
			h.Seats[i].Status = SeatActive
		} else {
			h.Seats[i].Status = SeatOut
		}
	}

	indexByID := make(map[string]int, len(h.Seats))
	for i, s := range h.Seats {
		indexByID[s.ID] = i
	}

	for _, e := range events {
		switch e.Kind {
		case EventHandStart:
			h.HandNumber = e.HandNumber
			h.DealerPosition = e.DealerPosition
			h.DeckSeed = e.DeckSeed
			h.CurrentRound = RoundPreflop
			for _, b := range e.BlindsPosted {
				idx, ok := indexByID[b.SeatID]
				if !ok {
					continue
				}
				h.Seats[idx].Chips -= b.Amount
				h.Seats[idx].CurrentBet += b.Amount
				h.Seats[idx].TotalBet += b.Amount
				h.Pot += b.Amount
				if h.Seats[idx].Chips == 0 {
					h.Seats[idx].Status = SeatAllIn
				} else {
					h.Seats[idx].Status = SeatActive
				}
				if b.Kind == "big" {
					h.CurrentBet = h.Seats[idx].CurrentBet
					h.LastRaise = b.Amount
				}
			}
			first := firstToActPreflop(h.DealerPosition, h.Seats)
			if first >= 0 {
				h.CurrentPlayer = &first
			}

		case EventDeal:
			if e.SeatIndex >= 0 && e.SeatIndex < len(h.Seats) {
				h.Seats[e.SeatIndex].HoleCards = append([]poker.Card(nil), e.Cards...)
			}

		case EventAction:
			idx, ok := indexByID[e.ActorSeatID]
			if !ok {
				continue
			}
			kind := e.ActionKind
			h.Seats[idx].LastAction = &kind
			delta := h.Seats[idx].Chips - e.ResultChips
			h.Seats[idx].Chips = e.ResultChips
			h.Seats[idx].CurrentBet += delta
			h.Seats[idx].TotalBet += delta
			h.Pot += delta
			if e.ResultChips == 0 && kind != ActionFold && kind != ActionCheck {
				h.Seats[idx].Status = SeatAllIn
			}
			if kind == ActionFold {
				h.Seats[idx].Status = SeatFolded
			}
			if h.Seats[idx].CurrentBet > h.CurrentBet {
				h.CurrentBet = h.Seats[idx].CurrentBet
			}

		case EventDealCommunity:
			h.CommunityCards = append(h.CommunityCards, e.Cards...)

		case EventAdvanceRound:
			h.CurrentRound = e.ToRound
			for i := range h.Seats {
				h.Seats[i].CurrentBet = 0
				h.Seats[i].LastAction = nil
			}
			h.CurrentBet = 0
			h.LastRaise = 0
			h.IncompleteRaise = false

		case EventShowdown:
			h.Pots = e.PotBreakdown
			winnerSet := make(map[string]bool)
			for i, pot := range e.PotBreakdown {
				if len(pot.Eligible) <= 1 {
					if len(pot.Eligible) == 1 {
						h.creditSeat(pot.Eligible[0], pot.Amount)
					}
					continue
				}
				ordered := e.WinnersByPot[i]
				if len(ordered) == 0 {
					continue
				}
				share := pot.Amount / len(ordered)
				remainder := pot.Amount % len(ordered)
				for idx, seatID := range ordered {
					amount := share
					if idx == 0 {
						amount += remainder
					}
					h.creditSeat(seatID, amount)
					winnerSet[seatID] = true
				}
			}
			winners := make([]string, 0, len(winnerSet))
			for id := range winnerSet {
				winners = append(winners, id)
			}
			h.Winners = orderClockwiseFromDealer(winners, h.Seats, h.DealerPosition)
			h.Pot = 0
			h.ShowdownDone = true

		case EventHandComplete:
			if !h.ShowdownDone {
				// No Showdown event came first, so the hand ended on a fold:
				// the one seat still contesting the pot won it.
				for _, s := range h.Seats {
					if s.Status == SeatActive || s.Status == SeatAllIn {
						h.Winners = []string{s.ID}
						break
					}
				}
				h.Pot = 0
				h.ShowdownDone = true
			}
			h.CurrentRound = RoundShowdown
			h.CurrentPlayer = nil
			for id, chips := range e.StacksEnd {
				if idx, ok := indexByID[id]; ok {
					h.Seats[idx].Chips = chips
				}
			}
		}
	}

	h.Events = append([]Event(nil), events...)
	return h, nil
}
