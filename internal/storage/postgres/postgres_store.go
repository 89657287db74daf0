// Package postgres implements the canonical table/hand/event store on top
// of database/sql and lib/pq, in the query style of the teacher's
// postgres_sessions.go and postgres_alerts.go.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"holdem-core/internal/engine"
	"holdem-core/internal/storage"
)

// Store implements storage.EventStore and storage.SnapshotStore for
// PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new PostgreSQL-backed store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AppendEvents inserts one row per event, in the order given, tagged with
// the hand's sequenceNumber so LoadEvents can reconstruct order exactly.
func (s *Store) AppendEvents(ctx context.Context, tableID string, handNumber int, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO hand_events (table_id, hand_number, sequence_number, kind, actor_seat_id, amount, round_at_apply, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			tableID, handNumber, e.SequenceNumber, e.Kind, e.ActorSeatID, e.Amount, string(e.RoundAtApply), payload, e.Timestamp,
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}

// LoadEvents returns a hand's events ordered by sequenceNumber.
func (s *Store) LoadEvents(ctx context.Context, tableID string, handNumber int) ([]engine.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM hand_events
		WHERE table_id = $1 AND hand_number = $2
		ORDER BY sequence_number ASC
	`, tableID, handNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []engine.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e engine.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveHandRecord upserts the derived hand-summary row used for history
// queries; the event log above remains the source of truth.
func (s *Store) SaveHandRecord(ctx context.Context, record *storage.HandRecord) error {
	stacksStart, err := json.Marshal(record.StacksStart)
	if err != nil {
		return fmt.Errorf("marshal stacksStart: %w", err)
	}
	stacksEnd, err := json.Marshal(record.StacksEnd)
	if err != nil {
		return fmt.Errorf("marshal stacksEnd: %w", err)
	}
	holeCards, err := json.Marshal(record.HoleCardsBySeat)
	if err != nil {
		return fmt.Errorf("marshal holeCardsBySeat: %w", err)
	}
	community, err := json.Marshal(record.CommunityCards)
	if err != nil {
		return fmt.Errorf("marshal communityCards: %w", err)
	}
	pots, err := json.Marshal(record.Pots)
	if err != nil {
		return fmt.Errorf("marshal pots: %w", err)
	}
	winners, err := json.Marshal(record.Winners)
	if err != nil {
		return fmt.Errorf("marshal winners: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hands (
			table_id, hand_number, dealer_position, deck_seed,
			small_blind, big_blind, stacks_start, hole_cards_by_seat,
			community_cards, pots, winners, stacks_end, pot_amount, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (table_id, hand_number) DO UPDATE SET
			community_cards = EXCLUDED.community_cards,
			pots = EXCLUDED.pots,
			winners = EXCLUDED.winners,
			stacks_end = EXCLUDED.stacks_end,
			pot_amount = EXCLUDED.pot_amount,
			completed_at = EXCLUDED.completed_at
	`,
		record.TableID, record.HandNumber, record.DealerPosition, record.DeckSeed,
		record.SmallBlind, record.BigBlind, stacksStart, holeCards,
		community, pots, winners, stacksEnd, record.PotAmount, record.CompletedAt,
	)
	return err
}

// LoadHandRecord retrieves the derived hand-summary row for display or
// audit purposes; full reconstruction should use LoadEvents + ReplayHand.
func (s *Store) LoadHandRecord(ctx context.Context, tableID string, handNumber int) (*storage.HandRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT table_id, hand_number, dealer_position, deck_seed,
			   small_blind, big_blind, stacks_start, hole_cards_by_seat,
			   community_cards, pots, winners, stacks_end, pot_amount, completed_at
		FROM hands WHERE table_id = $1 AND hand_number = $2
	`, tableID, handNumber)

	record := &storage.HandRecord{}
	var stacksStart, stacksEnd, holeCards, community, pots, winners []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&record.TableID, &record.HandNumber, &record.DealerPosition, &record.DeckSeed,
		&record.SmallBlind, &record.BigBlind, &stacksStart, &holeCards,
		&community, &pots, &winners, &stacksEnd, &record.PotAmount, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stacksStart, &record.StacksStart); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stacksEnd, &record.StacksEnd); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(holeCards, &record.HoleCardsBySeat); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(community, &record.CommunityCards); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pots, &record.Pots); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(winners, &record.Winners); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}

	return record, nil
}

// SaveTable upserts a table's configuration/status snapshot row.
func (s *Store) SaveTable(ctx context.Context, record *storage.TableRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tables (table_id, room_code, small_blind, big_blind, starting_chips, status, current_hand)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (table_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_hand = EXCLUDED.current_hand
	`, record.TableID, record.RoomCode, record.SmallBlind, record.BigBlind, record.StartingChips, record.Status, record.CurrentHand)
	return err
}

// LoadTable retrieves a table's configuration/status snapshot row.
func (s *Store) LoadTable(ctx context.Context, tableID string) (*storage.TableRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT table_id, room_code, small_blind, big_blind, starting_chips, status, current_hand
		FROM tables WHERE table_id = $1
	`, tableID)

	record := &storage.TableRecord{}
	err := row.Scan(&record.TableID, &record.RoomCode, &record.SmallBlind, &record.BigBlind, &record.StartingChips, &record.Status, &record.CurrentHand)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SaveSeats replaces a table's seat membership snapshot wholesale — seats
// are few and rewritten on every revision, so a delete+insert inside a
// transaction is simpler than a diff.
func (s *Store) SaveSeats(ctx context.Context, tableID string, seats []storage.SeatRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seats WHERE table_id = $1`, tableID); err != nil {
		return fmt.Errorf("clear seats: %w", err)
	}

	query := `
		INSERT INTO seats (table_id, seat_id, name, credential_hash, chips, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, seat := range seats {
		if _, err := tx.ExecContext(ctx, query, tableID, seat.SeatID, seat.Name, seat.CredentialHash, seat.Chips, seat.Position); err != nil {
			return fmt.Errorf("insert seat: %w", err)
		}
	}

	return tx.Commit()
}

// LoadSeats retrieves a table's seat membership snapshot, ordered by
// position so callers can rebuild table order without re-sorting.
func (s *Store) LoadSeats(ctx context.Context, tableID string) ([]storage.SeatRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_id, seat_id, name, credential_hash, chips, position
		FROM seats WHERE table_id = $1 ORDER BY position ASC
	`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []storage.SeatRecord
	for rows.Next() {
		var seat storage.SeatRecord
		if err := rows.Scan(&seat.TableID, &seat.SeatID, &seat.Name, &seat.CredentialHash, &seat.Chips, &seat.Position); err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

// CreateSchema creates the tables/seats/hands/hand_events tables if they
// don't already exist, matching the teacher's CreateSessionTable pattern of
// shipping DDL alongside the store rather than a separate migration tool.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tables (
			table_id VARCHAR(64) PRIMARY KEY,
			room_code VARCHAR(6) NOT NULL,
			small_blind INTEGER NOT NULL,
			big_blind INTEGER NOT NULL,
			starting_chips INTEGER NOT NULL,
			status VARCHAR(32) NOT NULL,
			current_hand INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS seats (
			table_id VARCHAR(64) NOT NULL,
			seat_id VARCHAR(64) NOT NULL,
			name VARCHAR(64) NOT NULL,
			credential_hash VARCHAR(128) NOT NULL,
			chips INTEGER NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (table_id, seat_id)
		);

		CREATE TABLE IF NOT EXISTS hands (
			table_id VARCHAR(64) NOT NULL,
			hand_number INTEGER NOT NULL,
			dealer_position INTEGER NOT NULL,
			deck_seed BYTEA,
			small_blind INTEGER NOT NULL,
			big_blind INTEGER NOT NULL,
			stacks_start JSONB NOT NULL,
			hole_cards_by_seat JSONB NOT NULL,
			community_cards JSONB NOT NULL,
			pots JSONB NOT NULL,
			winners JSONB NOT NULL,
			stacks_end JSONB NOT NULL,
			pot_amount INTEGER NOT NULL,
			completed_at TIMESTAMP,
			PRIMARY KEY (table_id, hand_number)
		);

		CREATE TABLE IF NOT EXISTS hand_events (
			table_id VARCHAR(64) NOT NULL,
			hand_number INTEGER NOT NULL,
			sequence_number INTEGER NOT NULL,
			kind VARCHAR(32) NOT NULL,
			actor_seat_id VARCHAR(64),
			amount INTEGER,
			round_at_apply VARCHAR(16),
			payload JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (table_id, hand_number, sequence_number)
		);

		CREATE INDEX IF NOT EXISTS idx_hand_events_table ON hand_events(table_id, hand_number);
	`)
	return err
}
