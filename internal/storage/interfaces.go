// Package storage defines the persistence seams the table serializer writes
// through. The event log is canonical; snapshots are a cache derived from it
// and may be rebuilt by replaying events at any time.
package storage

import (
	"context"
	"time"

	"holdem-core/internal/engine"
	"holdem-core/pkg/poker"
)

// HandRecord is the persisted, semantic shape of a completed or in-progress
// hand, matching the persistent state layout: handNumber, dealerPos,
// deckSeed, blinds, starting/ending stacks, hole cards by seat, community
// cards, pots, winners, pot amount, and completion time.
type HandRecord struct {
	TableID        string
	HandNumber     int
	DealerPosition int
	DeckSeed       []byte
	SmallBlind     int
	BigBlind       int
	StacksStart     map[string]int
	HoleCardsBySeat map[string][]poker.Card
	CommunityCards  []poker.Card
	Pots            []engine.Pot
	Winners        []string
	StacksEnd      map[string]int
	PotAmount      int
	CompletedAt    *time.Time
}

// TableRecord is the persisted shape of a table's configuration and status.
type TableRecord struct {
	TableID       string
	RoomCode      string
	SmallBlind    int
	BigBlind      int
	StartingChips int
	Status        string
	CurrentHand   int
}

// SeatRecord is a table membership row: chip stack and credential
// fingerprint survive across hands even though the engine's per-hand Seat
// value is reset every deal.
type SeatRecord struct {
	TableID           string
	SeatID            string
	Name              string
	CredentialHash    string
	Chips             int
	Position          int
}

// EventStore persists a hand's append-only event log and reads it back for
// replay. Writes are only ever made by a table's serializer; readers
// (diagnostics, replay tooling) are external collaborators that only read.
type EventStore interface {
	AppendEvents(ctx context.Context, tableID string, handNumber int, events []engine.Event) error
	LoadEvents(ctx context.Context, tableID string, handNumber int) ([]engine.Event, error)
	LoadHandRecord(ctx context.Context, tableID string, handNumber int) (*HandRecord, error)
	SaveHandRecord(ctx context.Context, record *HandRecord) error
}

// SnapshotStore persists the derived, rebuildable cache of table/seat state
// used to resume a table without replaying its full history.
type SnapshotStore interface {
	SaveTable(ctx context.Context, record *TableRecord) error
	LoadTable(ctx context.Context, tableID string) (*TableRecord, error)
	SaveSeats(ctx context.Context, tableID string, seats []SeatRecord) error
	LoadSeats(ctx context.Context, tableID string) ([]SeatRecord, error)
}
