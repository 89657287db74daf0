package table

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"holdem-core/internal/engine"
	"holdem-core/internal/metrics"
	"holdem-core/internal/storage"
	"holdem-core/internal/storage/clickhouse"
	"holdem-core/internal/view"
	"holdem-core/pkg/poker"
	"holdem-core/pkg/rng"
)

// eventPublisher is the subset of *eventstream.EventProducer the serializer
// needs; kept as an interface so tests can substitute a recording stub
// without a live Kafka broker.
type eventPublisher interface {
	PublishBatch(tableID string, handNumber int, events []engine.Event) error
}

// analyticsSink is the subset of *clickhouse.Analytics the serializer needs
// to record one row per completed hand.
type analyticsSink interface {
	RecordHandCompletion(ctx context.Context, event clickhouse.HandCompletionEvent) error
}

// Table is a single table's serializer: one goroutine owns its hand state
// exclusively, consuming requests off one channel in order, the way the
// teacher's Table.gameLoop consumes actions. Every exported method is safe
// to call from any number of goroutines; none of them touch hand state
// directly.
type Table struct {
	id       string
	roomCode string
	config   engine.TableConfig

	store     storage.EventStore
	snapshot  storage.SnapshotStore
	events    eventPublisher
	hub       viewPublisher
	analytics analyticsSink
	rngSys    *rng.System

	requests chan *request
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu             sync.RWMutex
	seats          []engine.Seat
	hand           *engine.Hand
	dealerPosition int
	handNumber     int
	revision       int
	poisoned       bool
	handStartTotal int
	handStartedAt  time.Time
}

// Config holds everything needed to construct a Table.
type Config struct {
	TableID   string
	RoomCode  string
	Rules     engine.TableConfig
	Store     storage.EventStore
	Snapshot  storage.SnapshotStore
	Events    eventPublisher
	Hub       viewPublisher
	Analytics analyticsSink
	RNG       *rng.System
	Seats     []engine.Seat
}

// New constructs a table serializer and starts its goroutine. Callers must
// call Stop to release it.
func New(cfg Config) *Table {
	t := &Table{
		id:             cfg.TableID,
		roomCode:       cfg.RoomCode,
		config:         cfg.Rules,
		store:          cfg.Store,
		snapshot:       cfg.Snapshot,
		events:         cfg.Events,
		hub:            cfg.Hub,
		analytics:      cfg.Analytics,
		rngSys:         cfg.RNG,
		requests:       make(chan *request, 64),
		stopChan:       make(chan struct{}),
		seats:          append([]engine.Seat(nil), cfg.Seats...),
		dealerPosition: -1,
	}
	t.wg.Add(1)
	go t.loop()
	return t
}

// Stop drains and shuts down the serializer goroutine.
func (t *Table) Stop() {
	close(t.stopChan)
	t.wg.Wait()
}

func (t *Table) loop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.stopChan:
			return
		case req := <-t.requests:
			metrics.SetQueueDepth(t.id, len(t.requests))
			t.handle(req)
		}
	}
}

// submit enqueues a request and blocks for its response, honoring ctx
// cancellation and the table's own shutdown.
func (t *Table) submit(ctx context.Context, req *request) (Result, error) {
	req.respond = make(chan response, 1)
	select {
	case t.requests <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-t.stopChan:
		return Result{}, engine.ErrHandNotActive
	}

	select {
	case resp := <-req.respond:
		return resp.result, resp.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// handle dequeues exactly one request, applies it against the current hand,
// persists the resulting events, and publishes the new revision. It runs
// only on the serializer's own goroutine.
func (t *Table) handle(req *request) {
	start := time.Now()
	defer func() {
		metrics.RecordApply(string(req.kind), time.Since(start).Seconds())
	}()

	if req.expired() {
		req.respond <- response{err: engine.ErrHandNotActive}
		return
	}

	t.mu.Lock()
	if t.poisoned {
		t.mu.Unlock()
		req.respond <- response{err: engine.ErrTableFatallyPoisoned}
		return
	}

	// Snapshot everything apply() might mutate so a persistence failure can
	// roll the table back to exactly where it stood before this request,
	// the way engine.Seat.Clone's own doc comment describes: the serializer
	// keeps the prior snapshot around for exactly this purpose.
	prevHand := t.hand
	prevSeats := append([]engine.Seat(nil), t.seats...)
	prevHandNumber := t.handNumber
	prevDealerPosition := t.dealerPosition
	wasShowdownDone := prevHand != nil && prevHand.ShowdownDone
	if t.hand != nil {
		t.hand = t.hand.Clone()
	}
	rollback := func() {
		t.hand = prevHand
		t.seats = prevSeats
		t.handNumber = prevHandNumber
		t.dealerPosition = prevDealerPosition
	}

	events, result, err := t.apply(req)
	if err != nil {
		rollback()
		t.mu.Unlock()
		req.respond <- response{err: err}
		return
	}

	if fatal := t.checkChipConservation(); fatal != nil {
		// Fatal is never rolled back: the corrupted state is exactly what
		// operators need to see, and there is no legal path that produces
		// it, so recovering silently would hide the defect.
		t.poisoned = true
		if t.hand != nil {
			t.hand.Poisoned = true
		}
		t.mu.Unlock()
		metrics.RecordTablePoisoned()
		req.respond <- response{err: fatal}
		return
	}

	persistedRevision := false
	if len(events) > 0 {
		if perr := t.persist(events); perr != nil {
			rollback()
			t.mu.Unlock()
			req.respond <- response{err: perr}
			return
		}
		t.revision++
		persistedRevision = true
	}

	if serr := t.saveSnapshot(); serr != nil {
		// The rebuildable cache failed to save even though events were
		// already durable; roll the revision counter back with everything
		// else so a retried request lands on a consistent state.
		rollback()
		if persistedRevision {
			t.revision--
		}
		t.mu.Unlock()
		req.respond <- response{err: serr}
		return
	}
	result.Revision = t.revision

	tableView, playerViews := t.projectLocked()
	justCompleted := t.hand != nil && t.hand.ShowdownDone && !wasShowdownDone
	completedHand := t.hand
	startedAt := t.handStartedAt
	t.mu.Unlock()

	if justCompleted && t.analytics != nil {
		event := clickhouse.HandCompletionEventFromHand(t.id, completedHand, time.Since(startedAt).Milliseconds(), time.Now())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = t.analytics.RecordHandCompletion(ctx, event)
		cancel()
	}

	if t.hub != nil {
		t.hub.PublishTable(t.id, result.Revision, tableView)
		for seatID, pv := range playerViews {
			t.hub.PublishPlayer(t.id, seatID, result.Revision, pv)
		}
		metrics.RecordRevisionPublished(t.id)
	}

	req.respond <- response{result: result}
}

// apply dispatches a request against the current hand under the
// serializer's lock. It returns the events produced (for persistence) and
// the public Result.
func (t *Table) apply(req *request) ([]engine.Event, Result, error) {
	switch req.kind {
	case kindJoinSeat:
		return t.applyJoinSeat(req)
	case kindLeaveSeat:
		return t.applyLeaveSeat(req)
	case kindStartHand, kindStartNext:
		return t.applyStartHand()
	case kindPlayerAction:
		return t.applyPlayerAction(req)
	case kindAdvanceRound:
		return t.applyAdvanceRound()
	case kindRevealCard:
		return t.applyRevealCard()
	default:
		return nil, Result{}, engine.ErrIllegalAction
	}
}

func (t *Table) applyJoinSeat(req *request) ([]engine.Event, Result, error) {
	if t.hand != nil && !t.hand.ShowdownDone {
		return nil, Result{}, engine.ErrHandInProgress
	}
	if t.config.MaxSeats > 0 && len(t.seats) >= t.config.MaxSeats {
		return nil, Result{}, engine.ErrTableFull
	}
	for _, s := range t.seats {
		if s.ID == req.joinSeatID {
			return nil, Result{}, engine.ErrIllegalAction
		}
		if strings.EqualFold(s.Name, req.joinName) {
			return nil, Result{}, engine.ErrNameTaken
		}
	}
	seat := engine.Seat{
		ID:             req.joinSeatID,
		Name:           req.joinName,
		CredentialHash: req.credential,
		Chips:          req.joinChips,
		Status:         engine.SeatOut,
	}
	if req.position >= 0 && req.position < len(t.seats) {
		t.seats = append(t.seats[:req.position], append([]engine.Seat{seat}, t.seats[req.position:]...)...)
	} else {
		t.seats = append(t.seats, seat)
	}
	return nil, Result{Hand: t.hand}, nil
}

func (t *Table) applyLeaveSeat(req *request) ([]engine.Event, Result, error) {
	for i, s := range t.seats {
		if s.ID != req.leaveSeatID {
			continue
		}
		if t.hand == nil || t.hand.ShowdownDone {
			t.seats = append(t.seats[:i], t.seats[i+1:]...)
		} else {
			t.seats[i].Connected = false
		}
		return nil, Result{Hand: t.hand}, nil
	}
	return nil, Result{}, engine.ErrIllegalAction
}

func (t *Table) applyStartHand() ([]engine.Event, Result, error) {
	if t.hand != nil && !t.hand.ShowdownDone {
		return nil, Result{}, engine.ErrHandInProgress
	}
	if t.hand != nil {
		// Carry the completed hand's resulting chip counts back onto the
		// table's seat list by ID, rather than replacing it outright —
		// a seat that joined after the last hand started would otherwise
		// be dropped, since it never appeared in that hand's Seats.
		byID := make(map[string]engine.Seat, len(t.hand.Seats))
		for _, s := range t.hand.Seats {
			byID[s.ID] = s
		}
		for i, s := range t.seats {
			if updated, ok := byID[s.ID]; ok {
				t.seats[i].Chips = updated.Chips
			}
		}
		t.dealerPosition = t.hand.DealerPosition
	}

	seed, err := t.rngSys.RandomBytes(32)
	if err != nil {
		return nil, Result{}, engine.TransientError(err)
	}

	t.handNumber++
	hand, err := engine.StartNewHand(t.seats, t.handNumber, t.dealerPosition, t.config, seed)
	if err != nil {
		t.handNumber--
		return nil, Result{}, err
	}
	t.hand = hand
	t.handStartTotal = hand.ChipTotal()
	t.handStartedAt = time.Now()

	dealerID := ""
	if hand.DealerPosition >= 0 && hand.DealerPosition < len(hand.Seats) {
		dealerID = hand.Seats[hand.DealerPosition].ID
	}
	_ = t.rngSys.LogShuffle(t.id, strconv.Itoa(hand.HandNumber), dealerID, "", seed, cardIDs(poker.NewDeck()), cardIDs(hand.Deck))

	return hand.Events, Result{Hand: hand}, nil
}

// cardIDs maps a deck to its numeric card IDs for the shuffle audit trail,
// which records plain integers rather than poker.Card values.
func cardIDs(deck []poker.Card) []int {
	ids := make([]int, len(deck))
	for i, c := range deck {
		ids[i] = c.ID()
	}
	return ids
}

func (t *Table) applyPlayerAction(req *request) ([]engine.Event, Result, error) {
	if t.hand == nil {
		return nil, Result{}, engine.ErrHandNotActive
	}
	events, err := t.hand.ApplyAction(req.seatID, req.action, req.amount)
	if err != nil {
		return nil, Result{}, err
	}
	events = append(events, t.maybeProcessShowdown()...)
	return events, Result{Hand: t.hand}, nil
}

func (t *Table) applyAdvanceRound() ([]engine.Event, Result, error) {
	if t.hand == nil {
		return nil, Result{}, engine.ErrHandNotActive
	}
	if !t.hand.IsRoundComplete() {
		return nil, Result{}, engine.ErrNotAutoAdvanceable
	}
	events, err := t.hand.AdvanceStreet()
	if err != nil {
		return nil, Result{}, err
	}
	events = append(events, t.maybeProcessShowdown()...)
	return events, Result{Hand: t.hand}, nil
}

func (t *Table) applyRevealCard() ([]engine.Event, Result, error) {
	if t.hand == nil {
		return nil, Result{}, engine.ErrHandNotActive
	}
	if !t.hand.ShouldAutoAdvance() {
		return nil, Result{}, engine.ErrNotAllInRunout
	}
	events, err := t.hand.AdvanceStreet()
	if err != nil {
		return nil, Result{}, err
	}
	events = append(events, t.maybeProcessShowdown()...)
	return events, Result{Hand: t.hand}, nil
}

// maybeProcessShowdown runs the showdown comparison once a hand reaches the
// showdown street with more than one seat still contesting. ProcessShowdown
// is itself idempotent, so calling it when there is nothing to do is safe.
func (t *Table) maybeProcessShowdown() []engine.Event {
	if t.hand.CurrentRound != engine.RoundShowdown || t.hand.ShowdownDone {
		return nil
	}
	events, err := t.hand.ProcessShowdown()
	if err != nil {
		return nil
	}
	metrics.RecordShowdown("distributed")
	return events
}

// checkChipConservation compares the chip total against the snapshot taken
// at hand start. Any mismatch is a Fatal engine defect, never a retryable
// condition, and latches the table closed to further requests.
func (t *Table) checkChipConservation() error {
	if t.hand == nil {
		return nil
	}
	if t.hand.ChipTotal() != t.handStartTotal {
		return engine.ErrChipConservationViolated
	}
	return nil
}

const persistenceMaxAttempts = 2

// persist appends events to the event store and publishes them to the event
// stream, retrying once on a transient failure. A second failure is returned
// to the caller as-is; the table is not poisoned by a persistence failure,
// only by a Fatal engine invariant violation.
func (t *Table) persist(events []engine.Event) error {
	var lastErr error
	for attempt := 1; attempt <= persistenceMaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := t.store.AppendEvents(ctx, t.id, t.hand.HandNumber, events)
		cancel()
		if err == nil {
			if attempt > 1 {
				metrics.RecordPersistenceRetry(t.id, "succeeded")
			}
			if t.events != nil {
				// Publishing after a successful persist means a consumer
				// never observes an event that didn't make it to the
				// canonical store.
				_ = t.events.PublishBatch(t.id, t.hand.HandNumber, events)
			}
			return nil
		}
		lastErr = err
		if attempt < persistenceMaxAttempts {
			metrics.RecordPersistenceRetry(t.id, "retrying")
			time.Sleep(50 * time.Millisecond)
		}
	}
	metrics.RecordPersistenceRetry(t.id, "failed")
	return engine.TransientError(lastErr)
}

// saveSnapshot persists the table's membership — seat chips, names, and
// credential fingerprints — so a restarted process can resume without
// replaying every event the table has ever produced. It is the rebuildable
// cache; AppendEvents is the system of record.
func (t *Table) saveSnapshot() error {
	if t.snapshot == nil {
		return nil
	}

	seats := t.seats
	if t.hand != nil {
		seats = t.hand.Seats
	}
	records := make([]storage.SeatRecord, len(seats))
	for i, s := range seats {
		records[i] = storage.SeatRecord{
			TableID:        t.id,
			SeatID:         s.ID,
			Name:           s.Name,
			CredentialHash: s.CredentialHash,
			Chips:          s.Chips,
			Position:       i,
		}
	}

	tableRecord := &storage.TableRecord{
		TableID:       t.id,
		RoomCode:      t.roomCode,
		SmallBlind:    t.config.SmallBlind,
		BigBlind:      t.config.BigBlind,
		StartingChips: t.config.StartingChips,
		Status:        "active",
		CurrentHand:   t.handNumber,
	}

	var lastErr error
	for attempt := 1; attempt <= persistenceMaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := t.snapshot.SaveTable(ctx, tableRecord)
		if err == nil {
			err = t.snapshot.SaveSeats(ctx, t.id, records)
		}
		cancel()
		if err == nil {
			if attempt > 1 {
				metrics.RecordPersistenceRetry(t.id, "succeeded")
			}
			return nil
		}
		lastErr = err
		if attempt < persistenceMaxAttempts {
			metrics.RecordPersistenceRetry(t.id, "retrying")
			time.Sleep(50 * time.Millisecond)
		}
	}
	metrics.RecordPersistenceRetry(t.id, "failed")
	return engine.TransientError(lastErr)
}

// projectLocked builds the table view plus one player view per seat,
// connected or not. Must be called with t.mu held.
func (t *Table) projectLocked() (view.TableView, map[string]view.PlayerView) {
	var hand *engine.Hand
	if t.hand != nil {
		hand = t.hand
	} else {
		hand = &engine.Hand{Seats: t.seats}
	}

	tv := view.BuildTableView(t.id, t.roomCode, t.revision, hand)

	playerViews := make(map[string]view.PlayerView, len(hand.Seats))
	for _, s := range hand.Seats {
		playerViews[s.ID] = view.BuildPlayerView(t.id, t.roomCode, t.revision, hand, s.ID)
	}
	return tv, playerViews
}

// --- public API ---

// StartHand deals the table's first hand.
func (t *Table) StartHand(ctx context.Context, r StartHandRequest) (Result, error) {
	return t.submit(ctx, &request{kind: kindStartHand, deadline: r.Deadline})
}

// StartNextHand deals the next hand once the current one has completed.
func (t *Table) StartNextHand(ctx context.Context, r StartNextHandRequest) (Result, error) {
	return t.submit(ctx, &request{kind: kindStartNext, deadline: r.Deadline})
}

// SubmitAction applies one seat's betting decision.
func (t *Table) SubmitAction(ctx context.Context, r PlayerActionRequest) (Result, error) {
	return t.submit(ctx, &request{
		kind:     kindPlayerAction,
		seatID:   r.SeatID,
		action:   r.Action,
		amount:   r.Amount,
		deadline: r.Deadline,
	})
}

// AdvanceRound moves the hand to the next street once betting is complete.
func (t *Table) AdvanceRound(ctx context.Context, r AdvanceRoundRequest) (Result, error) {
	return t.submit(ctx, &request{kind: kindAdvanceRound, deadline: r.Deadline})
}

// RevealCard deals the next community card during an all-in runout.
func (t *Table) RevealCard(ctx context.Context, r RevealCardRequest) (Result, error) {
	return t.submit(ctx, &request{kind: kindRevealCard, deadline: r.Deadline})
}

// JoinSeat seats a new player between hands.
func (t *Table) JoinSeat(ctx context.Context, r JoinSeatRequest) (Result, error) {
	return t.submit(ctx, &request{
		kind:       kindJoinSeat,
		joinSeatID: r.SeatID,
		joinName:   r.Name,
		credential: r.CredentialHash,
		joinChips:  r.Chips,
		position:   r.Position,
		deadline:   r.Deadline,
	})
}

// LeaveSeat removes or disconnects a seat.
func (t *Table) LeaveSeat(ctx context.Context, r LeaveSeatRequest) (Result, error) {
	return t.submit(ctx, &request{
		kind:        kindLeaveSeat,
		leaveSeatID: r.SeatID,
		deadline:    r.Deadline,
	})
}

// Subscribe attaches a new table-view or player-view subscriber, delivering
// the current projection immediately.
func (t *Table) Subscribe(stream view.Stream, viewerSeatID string) *view.Subscription {
	t.mu.RLock()
	tv, playerViews := t.projectLocked()
	revision := t.revision
	t.mu.RUnlock()

	hub, ok := t.hub.(*view.Hub)
	if !ok {
		return nil
	}
	if stream == view.StreamPlayer {
		pv := playerViews[viewerSeatID]
		return hub.Subscribe(t.id, stream, viewerSeatID, view.Revision{Number: revision, View: pv})
	}
	return hub.Subscribe(t.id, stream, "", view.Revision{Number: revision, View: tv})
}
