package table

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"holdem-core/internal/engine"
	"holdem-core/internal/storage"
	"holdem-core/internal/view"
	"holdem-core/pkg/rng"
)

type fakeEventStore struct {
	mu     sync.Mutex
	events map[string][]engine.Event
	hands  map[string]*storage.HandRecord
	failN  int // AppendEvents fails this many times before succeeding
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		events: make(map[string][]engine.Event),
		hands:  make(map[string]*storage.HandRecord),
	}
}

func handKey(tableID string, handNumber int) string {
	return fmt.Sprintf("%s#%d", tableID, handNumber)
}

func (f *fakeEventStore) AppendEvents(ctx context.Context, tableID string, handNumber int, events []engine.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("simulated transient write failure")
	}
	key := handKey(tableID, handNumber)
	f.events[key] = append(f.events[key], events...)
	return nil
}

func (f *fakeEventStore) LoadEvents(ctx context.Context, tableID string, handNumber int) ([]engine.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[handKey(tableID, handNumber)], nil
}

func (f *fakeEventStore) LoadHandRecord(ctx context.Context, tableID string, handNumber int) (*storage.HandRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hands[handKey(tableID, handNumber)], nil
}

func (f *fakeEventStore) SaveHandRecord(ctx context.Context, record *storage.HandRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hands[handKey(record.TableID, record.HandNumber)] = record
	return nil
}

type fakeSnapshotStore struct {
	mu     sync.Mutex
	tables map[string]*storage.TableRecord
	seats  map[string][]storage.SeatRecord
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{
		tables: make(map[string]*storage.TableRecord),
		seats:  make(map[string][]storage.SeatRecord),
	}
}

func (f *fakeSnapshotStore) SaveTable(ctx context.Context, record *storage.TableRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[record.TableID] = record
	return nil
}

func (f *fakeSnapshotStore) LoadTable(ctx context.Context, tableID string) (*storage.TableRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[tableID], nil
}

func (f *fakeSnapshotStore) SaveSeats(ctx context.Context, tableID string, seats []storage.SeatRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seats[tableID] = seats
	return nil
}

func (f *fakeSnapshotStore) LoadSeats(ctx context.Context, tableID string) ([]storage.SeatRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seats[tableID], nil
}

type fakeEventPublisher struct {
	mu        sync.Mutex
	published int
}

func (f *fakeEventPublisher) PublishBatch(tableID string, handNumber int, events []engine.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published += len(events)
	return nil
}

func newTestRNG(t *testing.T) *rng.System {
	t.Helper()
	sys, err := rng.NewSystem(rng.NewAuditLogger())
	if err != nil {
		t.Fatalf("failed to build rng system: %v", err)
	}
	return sys
}

func newTestTable(t *testing.T, store *fakeEventStore, snap *fakeSnapshotStore, hub *view.Hub) *Table {
	t.Helper()
	tbl := New(Config{
		TableID:  "table-1",
		RoomCode: "ROOM1",
		Rules:    engine.TableConfig{SmallBlind: 5, BigBlind: 10, StartingChips: 1000},
		Store:    store,
		Snapshot: snap,
		Events:   &fakeEventPublisher{},
		Hub:      hub,
		RNG:      newTestRNG(t),
		Seats: []engine.Seat{
			{ID: "alice", Chips: 1000},
			{ID: "bob", Chips: 1000},
		},
	})
	t.Cleanup(tbl.Stop)
	return tbl
}

func TestTable_StartHand_DealsAndPersists(t *testing.T) {
	store := newFakeEventStore()
	snap := newFakeSnapshotStore()
	hub := view.NewHub()
	tbl := newTestTable(t, store, snap, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := tbl.StartHand(ctx, StartHandRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", result.Revision)
	}
	if result.Hand == nil || len(result.Hand.Seats) != 2 {
		t.Fatalf("expected a dealt hand with 2 seats, got %+v", result.Hand)
	}

	events, _ := store.LoadEvents(ctx, "table-1", 1)
	if len(events) == 0 {
		t.Fatal("expected hand-start events to be persisted")
	}
	if len(snap.seats["table-1"]) != 2 {
		t.Fatalf("expected 2 seats in snapshot, got %d", len(snap.seats["table-1"]))
	}
}

func TestTable_SubmitAction_AdvancesRevisionAndAppliesFold(t *testing.T) {
	store := newFakeEventStore()
	snap := newFakeSnapshotStore()
	hub := view.NewHub()
	tbl := newTestTable(t, store, snap, hub)
	ctx := context.Background()

	started, err := tbl.StartHand(ctx, StartHandRequest{})
	if err != nil {
		t.Fatalf("unexpected error starting hand: %v", err)
	}
	actorIdx := *started.Hand.CurrentPlayer
	actorID := started.Hand.Seats[actorIdx].ID

	result, err := tbl.SubmitAction(ctx, PlayerActionRequest{SeatID: actorID, Action: engine.ActionFold})
	if err != nil {
		t.Fatalf("unexpected error folding: %v", err)
	}
	if result.Revision != 2 {
		t.Fatalf("expected revision 2 after fold, got %d", result.Revision)
	}
	if len(result.Hand.Winners) != 1 {
		t.Fatalf("expected the hand to end by fold with one winner, got %v", result.Hand.Winners)
	}
}

func TestTable_SubmitAction_NotYourTurnRejected(t *testing.T) {
	store := newFakeEventStore()
	snap := newFakeSnapshotStore()
	hub := view.NewHub()
	tbl := newTestTable(t, store, snap, hub)
	ctx := context.Background()

	started, err := tbl.StartHand(ctx, StartHandRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	actorIdx := *started.Hand.CurrentPlayer
	otherID := started.Hand.Seats[1-actorIdx].ID

	_, err = tbl.SubmitAction(ctx, PlayerActionRequest{SeatID: otherID, Action: engine.ActionCheck})
	if err != engine.ErrNotYourTurn {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
}

func TestTable_ExpiredDeadlineRejectedBeforeApply(t *testing.T) {
	store := newFakeEventStore()
	snap := newFakeSnapshotStore()
	hub := view.NewHub()
	tbl := newTestTable(t, store, snap, hub)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	_, err := tbl.StartHand(ctx, StartHandRequest{Deadline: past})
	if err != engine.ErrHandNotActive {
		t.Fatalf("expected expired request to be rejected, got %v", err)
	}

	// The table must still be usable afterwards — expiry is not fatal.
	if _, err := tbl.StartHand(ctx, StartHandRequest{}); err != nil {
		t.Fatalf("expected table to accept a fresh request after an expired one, got %v", err)
	}
}

func TestTable_PersistenceRetriesOnceThenSucceeds(t *testing.T) {
	store := newFakeEventStore()
	store.failN = 1
	snap := newFakeSnapshotStore()
	hub := view.NewHub()
	tbl := newTestTable(t, store, snap, hub)
	ctx := context.Background()

	result, err := tbl.StartHand(ctx, StartHandRequest{})
	if err != nil {
		t.Fatalf("expected the single retry to succeed, got %v", err)
	}
	if result.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", result.Revision)
	}
}

func TestTable_PersistenceFailsTwiceReturnsTransientNotPoisoned(t *testing.T) {
	store := newFakeEventStore()
	store.failN = 2
	snap := newFakeSnapshotStore()
	hub := view.NewHub()
	tbl := newTestTable(t, store, snap, hub)
	ctx := context.Background()

	_, err := tbl.StartHand(ctx, StartHandRequest{})
	engErr, ok := err.(*engine.Error)
	if !ok || engErr.Kind != engine.KindTransient {
		t.Fatalf("expected a Transient error, got %v", err)
	}

	store.failN = 0
	if _, err := tbl.StartHand(ctx, StartHandRequest{}); err != nil {
		t.Fatalf("expected table to recover after persistence succeeds, got %v", err)
	}
}

func TestTable_ChipConservationViolationPoisonsTable(t *testing.T) {
	store := newFakeEventStore()
	snap := newFakeSnapshotStore()
	hub := view.NewHub()
	tbl := newTestTable(t, store, snap, hub)
	ctx := context.Background()

	started, err := tbl.StartHand(ctx, StartHandRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	actorIdx := *started.Hand.CurrentPlayer
	actorID := started.Hand.Seats[actorIdx].ID

	// Conjure chips out of nowhere directly on the live hand, bypassing the
	// engine's own bookkeeping, to simulate the defect the conservation
	// check exists to catch.
	started.Hand.Seats[0].Chips += 500

	_, err = tbl.SubmitAction(ctx, PlayerActionRequest{SeatID: actorID, Action: engine.ActionFold})
	engErr, ok := err.(*engine.Error)
	if !ok || engErr.Kind != engine.KindFatal {
		t.Fatalf("expected a Fatal chip-conservation error, got %v", err)
	}

	_, err = tbl.SubmitAction(ctx, PlayerActionRequest{SeatID: actorID, Action: engine.ActionFold})
	if err != engine.ErrTableFatallyPoisoned {
		t.Fatalf("expected the table to stay poisoned for subsequent requests, got %v", err)
	}
}

func TestTable_JoinSeatBetweenHands(t *testing.T) {
	store := newFakeEventStore()
	snap := newFakeSnapshotStore()
	hub := view.NewHub()
	tbl := newTestTable(t, store, snap, hub)
	ctx := context.Background()

	_, err := tbl.JoinSeat(ctx, JoinSeatRequest{SeatID: "carol", Name: "Carol", Chips: 500, Position: -1})
	if err != nil {
		t.Fatalf("unexpected error joining seat: %v", err)
	}

	_, err = tbl.JoinSeat(ctx, JoinSeatRequest{SeatID: "carol", Name: "Carol", Chips: 500, Position: -1})
	if err != engine.ErrIllegalAction {
		t.Fatalf("expected duplicate join to be rejected, got %v", err)
	}

	if len(snap.seats["table-1"]) != 3 {
		t.Fatalf("expected 3 seats persisted after join, got %d", len(snap.seats["table-1"]))
	}
}

func TestTable_SubscribeDeliversCurrentProjection(t *testing.T) {
	store := newFakeEventStore()
	snap := newFakeSnapshotStore()
	hub := view.NewHub()
	tbl := newTestTable(t, store, snap, hub)
	ctx := context.Background()

	if _, err := tbl.StartHand(ctx, StartHandRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sub := tbl.Subscribe(view.StreamTable, "")
	if sub == nil {
		t.Fatal("expected a non-nil subscription")
	}
	defer sub.Unsubscribe()

	select {
	case rev := <-sub.Revisions():
		tv, ok := rev.View.(view.TableView)
		if !ok {
			t.Fatalf("expected a TableView, got %T", rev.View)
		}
		if len(tv.Seats) != 2 {
			t.Fatalf("expected 2 seats in the projection, got %d", len(tv.Seats))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial projection")
	}
}
