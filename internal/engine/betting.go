package engine

// ApplyAction validates and applies a single action against the acting
// seat. On success it returns the events appended to the hand's log, with
// their sequence numbers: the Action event first, followed by any event it
// triggered (a synthetic check, or the HandComplete of a fold win).
// Otherwise it returns a rule/precondition error. The hand is
// mutated in place — callers that need rollback-on-failure semantics should
// Clone the hand first, as the table serializer does.
func (h *Hand) ApplyAction(seatID string, kind ActionKind, amount int) ([]Event, error) {
	first := len(h.Events)
	if h.Poisoned {
		return nil, ErrTableFatallyPoisoned
	}
	if h.CurrentRound == RoundShowdown || h.CurrentPlayer == nil {
		return nil, ErrHandNotActive
	}

	idx, err := h.seatToAct(seatID)
	if err != nil {
		return nil, err
	}

	switch kind {
	case ActionFold:
		err = h.applyFold(idx)
	case ActionCheck:
		err = h.applyCheck(idx)
	case ActionCall:
		err = h.applyCall(idx)
	case ActionBet:
		err = h.applyBet(idx, amount)
	case ActionRaise:
		err = h.applyRaise(idx, amount)
	case ActionAllIn:
		err = h.applyAllIn(idx)
	default:
		return nil, ErrIllegalAction
	}
	if err != nil {
		return nil, err
	}

	recorded := kind
	h.Seats[idx].LastAction = &recorded

	event := Event{
		Kind:         EventAction,
		ActorSeatID:  seatID,
		ActionKind:   kind,
		Amount:       amount,
		RoundAtApply: h.CurrentRound,
		ResultChips:  h.Seats[idx].Chips,
	}
	h.appendEvent(event)

	h.advanceAfterAction(idx)

	return append([]Event(nil), h.Events[first:]...), nil
}

func (h *Hand) seatToAct(seatID string) (int, error) {
	if h.CurrentPlayer == nil {
		return 0, ErrHandNotActive
	}
	idx := *h.CurrentPlayer
	if idx < 0 || idx >= len(h.Seats) {
		return 0, ErrHandNotActive
	}
	seat := &h.Seats[idx]
	if seat.ID != seatID {
		return 0, ErrNotYourTurn
	}
	if seat.Status != SeatActive || seat.Chips <= 0 {
		return 0, ErrIllegalAction
	}
	return idx, nil
}

func (h *Hand) applyFold(idx int) error {
	h.Seats[idx].Status = SeatFolded
	return nil
}

func (h *Hand) applyCheck(idx int) error {
	seat := &h.Seats[idx]
	if seat.CurrentBet != h.CurrentBet {
		return ErrIllegalAction
	}
	return nil
}

func (h *Hand) applyCall(idx int) error {
	seat := &h.Seats[idx]
	if h.CurrentBet <= seat.CurrentBet {
		return ErrIllegalAction
	}
	if seat.Chips <= 0 {
		return ErrInsufficientChips
	}

	owe := h.CurrentBet - seat.CurrentBet
	amount := owe
	if amount > seat.Chips {
		amount = seat.Chips
	}

	seat.Chips -= amount
	seat.CurrentBet += amount
	seat.TotalBet += amount
	h.Pot += amount
	if seat.Chips == 0 {
		seat.Status = SeatAllIn
	}
	return nil
}

func (h *Hand) applyBet(idx int, amount int) error {
	seat := &h.Seats[idx]
	if h.CurrentBet != 0 {
		return ErrIllegalAction
	}
	if amount <= 0 {
		return newAmountErr(KindRuleViolation, "amount_below_minimum", "bet amount must be positive", 1, seat.Chips)
	}
	if amount > seat.Chips {
		return newAmountErr(KindRuleViolation, "amount_exceeds_stack", "bet amount exceeds chip stack", 1, seat.Chips)
	}
	isAllIn := amount == seat.Chips
	if !isAllIn && amount < h.config.BigBlind {
		return newAmountErr(KindRuleViolation, "amount_below_minimum", "bet must be at least the big blind", h.config.BigBlind, seat.Chips)
	}

	seat.Chips -= amount
	seat.CurrentBet += amount
	seat.TotalBet += amount
	h.Pot += amount
	h.CurrentBet = seat.CurrentBet
	h.LastRaise = amount
	// An opening bet always fully reopens the street: nobody has yet acted
	// against a bet this round, so there is nothing to leave closed.
	h.IncompleteRaise = false
	if isAllIn {
		seat.Status = SeatAllIn
	}
	return nil
}

func (h *Hand) applyRaise(idx int, amount int) error {
	seat := &h.Seats[idx]
	if h.CurrentBet == 0 {
		return ErrIllegalAction
	}
	if h.IncompleteRaise && seat.LastAction != nil {
		return ErrActionNotReopened
	}
	if amount <= 0 {
		return newAmountErr(KindRuleViolation, "amount_below_minimum", "raise amount must be positive", 1, seat.Chips)
	}

	callPortion := h.CurrentBet - seat.CurrentBet
	if callPortion < 0 {
		callPortion = 0
	}
	total := callPortion + amount
	if total > seat.Chips {
		return newAmountErr(KindRuleViolation, "amount_exceeds_stack", "raise exceeds chip stack", callPortion, seat.Chips)
	}

	isAllIn := total == seat.Chips
	isFullRaise := amount >= h.LastRaise
	if !isAllIn && !isFullRaise {
		return newAmountErr(KindRuleViolation, "amount_below_minimum", "raise is below the minimum legal raise", h.LastRaise, seat.Chips-callPortion)
	}

	seat.Chips -= total
	seat.CurrentBet += total
	seat.TotalBet += total
	h.Pot += total
	h.CurrentBet = seat.CurrentBet
	// An under-raise all-in does not reopen action: it does not update
	// lastRaise, and IncompleteRaise latches on so seats who already acted
	// this street are restricted to call or fold against it rather than
	// being allowed to raise again. A full raise clears the latch, since it
	// reopens the action for everyone.
	if isFullRaise {
		h.LastRaise = amount
		h.IncompleteRaise = false
	} else {
		h.IncompleteRaise = true
	}
	if isAllIn {
		seat.Status = SeatAllIn
	}
	return nil
}

func (h *Hand) applyAllIn(idx int) error {
	seat := &h.Seats[idx]
	amount := seat.Chips
	if amount <= 0 {
		return ErrInsufficientChips
	}

	if h.CurrentBet == 0 {
		return h.applyBet(idx, amount)
	}

	callPortion := h.CurrentBet - seat.CurrentBet
	if callPortion < 0 {
		callPortion = 0
	}
	if amount <= callPortion {
		return h.applyCall(idx)
	}
	raiseAmount := amount - callPortion
	return h.applyRaise(idx, raiseAmount)
}
