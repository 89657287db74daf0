package engine

import "holdem-core/pkg/poker"

// StartNewHand builds a new Hand from the given seats (carried over from
// the previous hand, or fresh joins), rotating the dealer, posting blinds,
// dealing hole cards, and setting up the first seat to act. seats must be
// in stable table order; prevDealerPosition is -1 for the table's first
// hand ever.
func StartNewHand(seats []Seat, handNumber int, prevDealerPosition int, config TableConfig, deckSeed []byte) (*Hand, error) {
	eligible := 0
	for _, s := range seats {
		if s.Chips > 0 {
			eligible++
		}
	}
	if eligible < 2 {
		return nil, ErrNotEnoughPlayers
	}

	dealerPos := nextSeatWithChips(prevDealerPosition, seats)

	deck, err := poker.Shuffle(deckSeed, poker.NewDeck())
	if err != nil {
		return nil, err
	}

	h := &Hand{
		HandNumber:     handNumber,
		DealerPosition: dealerPos,
		Deck:           deck,
		Seats:          make([]Seat, len(seats)),
		CurrentRound:   RoundPreflop,
		DeckSeed:       deckSeed,
		config:         config,
	}
	copy(h.Seats, seats)
	for i := range h.Seats {
		h.Seats[i].HoleCards = nil
		h.Seats[i].CurrentBet = 0
		h.Seats[i].TotalBet = 0
		h.Seats[i].LastAction = nil
		h.Seats[i].IsDealer = false
		h.Seats[i].IsSmallBlind = false
		h.Seats[i].IsBigBlind = false
		if h.Seats[i].Chips > 0 {
			h.Seats[i].Status = SeatActive
		} else {
			h.Seats[i].Status = SeatOut
		}
	}
	h.Seats[dealerPos].IsDealer = true

	blinds := h.postBlinds(config)

	h.dealHoleCards()

	h.appendEvent(Event{
		Kind:           EventHandStart,
		HandNumber:     handNumber,
		DealerPosition: dealerPos,
		DeckSeed:       deckSeed,
		BlindsPosted:   blinds,
	})
	for i, s := range h.Seats {
		if s.Status == SeatOut {
			continue
		}
		h.appendEvent(Event{Kind: EventDeal, SeatIndex: i, Cards: s.HoleCards})
	}

	first := firstToActPreflop(dealerPos, h.Seats)
	if first >= 0 {
		h.CurrentPlayer = &first
	}

	return h, nil
}

func nextSeatWithChips(from int, seats []Seat) int {
	n := len(seats)
	for i := 1; i <= n; i++ {
		idx := (from + i) % n
		if seats[idx].Chips > 0 {
			return idx
		}
	}
	return 0
}

// postBlinds posts small and big blinds, each capped by the poster's stack.
// A short blind immediately yields all_in, matching the short-stack call
// rule applied to forced bets.
func (h *Hand) postBlinds(config TableConfig) []BlindPosted {
	n := len(h.Seats)
	var sbPos, bbPos int
	if n == 2 {
		sbPos = h.DealerPosition
		bbPos = (h.DealerPosition + 1) % n
	} else {
		sbPos = (h.DealerPosition + 1) % n
		bbPos = (h.DealerPosition + 2) % n
	}

	var posted []BlindPosted
	posted = append(posted, h.postBlind(sbPos, config.SmallBlind, "small"))
	h.Seats[sbPos].IsSmallBlind = true
	posted = append(posted, h.postBlind(bbPos, config.BigBlind, "big"))
	h.Seats[bbPos].IsBigBlind = true

	h.CurrentBet = h.Seats[bbPos].CurrentBet
	h.LastRaise = config.BigBlind
	return posted
}

func (h *Hand) postBlind(idx int, amount int, kind string) BlindPosted {
	seat := &h.Seats[idx]
	posted := amount
	if posted > seat.Chips {
		posted = seat.Chips
	}
	seat.Chips -= posted
	seat.CurrentBet += posted
	seat.TotalBet += posted
	h.Pot += posted
	if seat.Chips == 0 {
		seat.Status = SeatAllIn
	}
	return BlindPosted{SeatID: seat.ID, Amount: posted, Kind: kind}
}

// dealHoleCards deals two cards to every seat with chips, in table order
// starting at dealer+1, one card per seat per pass, two passes.
func (h *Hand) dealHoleCards() {
	n := len(h.Seats)
	cursor := 0
	for pass := 0; pass < 2; pass++ {
		for i := 1; i <= n; i++ {
			idx := (h.DealerPosition + i) % n
			if h.Seats[idx].Status == SeatOut {
				continue
			}
			h.Seats[idx].HoleCards = append(h.Seats[idx].HoleCards, h.Deck[cursor])
			cursor++
		}
	}
	h.DeckCursor = cursor
}

// firstToActPreflop returns the seat index that acts first preflop: in
// heads-up the dealer (who posts the small blind) acts first; with three or
// more seats, action starts at dealer+3 (under the gun).
func firstToActPreflop(dealerPos int, seats []Seat) int {
	n := len(seats)
	if n == 2 {
		// Heads-up: the dealer posts the small blind and acts first.
		return nextActiveFromInclusive(dealerPos, seats)
	}
	return nextActiveFrom((dealerPos+2)%n, seats)
}

// nextActiveFromInclusive is nextActiveFrom but considers from itself
// before searching forward.
func nextActiveFromInclusive(from int, seats []Seat) int {
	if seats[from].Status == SeatActive && seats[from].Chips > 0 {
		return from
	}
	return nextActiveFrom(from, seats)
}

// firstToActPostflop returns the first active seat clockwise after the
// dealer.
func firstToActPostflop(dealerPos int, seats []Seat) int {
	return nextActiveFrom(dealerPos, seats)
}

// nextActiveFrom returns the first seat at or after from+1 (wrapping) with
// status active and chips>0, or -1 if none exists.
func nextActiveFrom(from int, seats []Seat) int {
	n := len(seats)
	for i := 1; i <= n; i++ {
		idx := (from + i) % n
		if seats[idx].Status == SeatActive && seats[idx].Chips > 0 {
			return idx
		}
	}
	return -1
}

func (h *Hand) nonFoldedCount() int {
	n := 0
	for _, s := range h.Seats {
		if s.Status == SeatActive || s.Status == SeatAllIn {
			n++
		}
	}
	return n
}

// IsRoundComplete reports whether the current betting round has nothing
// left to decide: every active seat has acted and matched the current bet,
// or fewer than two seats remain contesting the pot.
func (h *Hand) IsRoundComplete() bool {
	if h.nonFoldedCount() < 2 {
		return true
	}
	for _, s := range h.Seats {
		if s.Status != SeatActive {
			continue
		}
		if s.LastAction == nil || s.CurrentBet != h.CurrentBet {
			return false
		}
	}
	return true
}

// ShouldAutoAdvance reports whether no further player decisions are
// possible this street or any future one.
func (h *Hand) ShouldAutoAdvance() bool {
	if h.nonFoldedCount() < 2 {
		return true
	}
	activeWithChips := 0
	var onlySeat *Seat
	for i := range h.Seats {
		s := &h.Seats[i]
		if s.Status == SeatActive && s.Chips > 0 {
			activeWithChips++
			onlySeat = s
		}
	}
	if activeWithChips == 0 {
		return true
	}
	if activeWithChips == 1 && onlySeat.CurrentBet == h.CurrentBet {
		return true
	}
	return false
}

// advanceAfterAction is invoked after every applied action to move
// currentPlayerPosition forward, apply the synthetic auto-check when the
// policy calls for it, or end the hand outright on a fold-to-one win.
func (h *Hand) advanceAfterAction(actorIdx int) {
	if h.nonFoldedCount() <= 1 {
		h.awardByFold()
		return
	}

	if h.ShouldAutoAdvance() {
		h.applyAutoCheckIfNeeded()
		h.CurrentPlayer = nil
		return
	}

	if h.IsRoundComplete() {
		h.CurrentPlayer = nil
		return
	}

	next := nextActiveFrom(actorIdx, h.Seats)
	if next < 0 {
		h.CurrentPlayer = nil
		return
	}
	h.CurrentPlayer = &next
}

// applyAutoCheckIfNeeded synthesizes a check for the sole remaining
// actionable seat when nobody has opened betting this street and every
// other contesting seat is already all-in: the seat's decision cannot
// change any outcome, but the event log still records a check so replay
// sees a fully closed betting round.
func (h *Hand) applyAutoCheckIfNeeded() {
	if h.CurrentBet != 0 {
		return
	}
	var soleActor *Seat
	soleIdx := -1
	count := 0
	for i := range h.Seats {
		s := &h.Seats[i]
		if s.Status == SeatActive && s.Chips > 0 {
			count++
			soleActor = s
			soleIdx = i
		}
	}
	if count != 1 || soleActor.LastAction != nil {
		return
	}

	checkKind := ActionCheck
	h.Seats[soleIdx].LastAction = &checkKind
	h.appendEvent(Event{
		Kind:         EventAction,
		ActorSeatID:  soleActor.ID,
		ActionKind:   ActionCheck,
		RoundAtApply: h.CurrentRound,
		ResultChips:  soleActor.Chips,
	})
}

// awardByFold ends the hand immediately when only one seat remains
// un-folded: that seat wins the entire pot without a showdown comparison.
func (h *Hand) awardByFold() {
	var winnerID string
	for _, s := range h.Seats {
		if s.Status == SeatActive || s.Status == SeatAllIn {
			winnerID = s.ID
			break
		}
	}
	if winnerID != "" {
		h.creditSeat(winnerID, h.Pot)
		h.Winners = []string{winnerID}
	}
	h.Pot = 0
	h.ShowdownDone = true
	h.CurrentRound = RoundShowdown
	h.CurrentPlayer = nil

	stacks := make(map[string]int, len(h.Seats))
	for _, s := range h.Seats {
		stacks[s.ID] = s.Chips
	}
	h.appendEvent(Event{Kind: EventHandComplete, StacksEnd: stacks})
}

func nextRound(r Round) Round {
	switch r {
	case RoundPreflop:
		return RoundFlop
	case RoundFlop:
		return RoundTurn
	case RoundTurn:
		return RoundRiver
	case RoundRiver:
		return RoundShowdown
	default:
		return RoundShowdown
	}
}

// AdvanceStreet moves the hand to the next round: resets per-street fields,
// deals the appropriate number of community cards, and sets up the first
// actor (or nil, if the new street is itself auto-advanceable).
func (h *Hand) AdvanceStreet() ([]Event, error) {
	if !h.IsRoundComplete() {
		return nil, ErrNotAutoAdvanceable
	}
	if h.CurrentRound == RoundShowdown {
		return nil, ErrNotAutoAdvanceable
	}

	from := h.CurrentRound
	to := nextRound(from)

	for i := range h.Seats {
		h.Seats[i].CurrentBet = 0
		h.Seats[i].LastAction = nil
	}
	h.CurrentBet = 0
	h.LastRaise = 0
	h.IncompleteRaise = false
	h.CurrentRound = to

	var dealt []poker.Card
	var n int
	switch to {
	case RoundFlop:
		n = 3
	case RoundTurn, RoundRiver:
		n = 1
	default:
		n = 0
	}
	if n > 0 {
		dealt = h.Deck[h.DeckCursor : h.DeckCursor+n]
		h.DeckCursor += n
		h.CommunityCards = append(h.CommunityCards, dealt...)
	}

	first := len(h.Events)
	h.appendEvent(Event{Kind: EventAdvanceRound, FromRound: from, ToRound: to})
	if n > 0 {
		h.appendEvent(Event{Kind: EventDealCommunity, CommunityRound: to, Cards: dealt})
	}

	if to != RoundShowdown {
		if h.ShouldAutoAdvance() {
			h.applyAutoCheckIfNeeded()
			h.CurrentPlayer = nil
		} else {
			first := firstToActPostflop(h.DealerPosition, h.Seats)
			if first < 0 {
				h.CurrentPlayer = nil
			} else {
				h.CurrentPlayer = &first
			}
		}
	}

	return append([]Event(nil), h.Events[first:]...), nil
}
