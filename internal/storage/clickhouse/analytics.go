// Package clickhouse is an append-only analytics sink for completed hands:
// hands/sec, pot-size distribution, and street-reach counts. This is table
// and pot operational analytics, not the player-statistics surface the spec
// excludes — no player-level aggregates are recorded here.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"holdem-core/internal/engine"
)

// Config holds ClickHouse connection configuration, matching the teacher's
// storage.ClickHouseConfig field set.
type Config struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	Secure       bool
	MaxOpenConns int
	MaxIdleConns int
	ConnTimeout  time.Duration
}

// HandCompletionEvent is one row recorded per completed hand.
type HandCompletionEvent struct {
	TableID       string
	HandNumber    int
	NumPlayers    int
	PotAmount     int
	StreetReached string
	DurationMs    int64
	CompletedAt   time.Time
}

// Analytics is the ClickHouse-backed operational analytics sink.
type Analytics struct {
	conn clickhouse.Conn
}

// NewAnalytics opens and pings a ClickHouse connection.
func NewAnalytics(ctx context.Context, cfg Config) (*Analytics, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return &Analytics{conn: conn}, nil
}

// CreateTables creates the hand-completion analytics table if missing.
func (a *Analytics) CreateTables(ctx context.Context) error {
	return a.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS hand_completion_analytics (
			table_id String,
			hand_number UInt32,
			num_players UInt8,
			pot_amount Int64,
			street_reached String,
			duration_ms Int64,
			completed_at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (table_id, hand_number)
	`)
}

// RecordHandCompletion appends one row for a completed hand.
func (a *Analytics) RecordHandCompletion(ctx context.Context, event HandCompletionEvent) error {
	return a.conn.Exec(ctx, `
		INSERT INTO hand_completion_analytics
			(table_id, hand_number, num_players, pot_amount, street_reached, duration_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.TableID, event.HandNumber, event.NumPlayers, event.PotAmount, event.StreetReached, event.DurationMs, event.CompletedAt)
}

// streetReached derives the furthest street a hand's community cards show,
// used to populate HandCompletionEvent.StreetReached from a finished Hand.
func streetReached(h *engine.Hand) string {
	switch len(h.CommunityCards) {
	case 0:
		return "preflop"
	case 3:
		return "flop"
	case 4:
		return "turn"
	default:
		return "river"
	}
}

// HandCompletionEventFromHand builds the analytics row for a hand that has
// just reached HandComplete or a post-showdown state.
func HandCompletionEventFromHand(tableID string, h *engine.Hand, durationMs int64, completedAt time.Time) HandCompletionEvent {
	// Every chip committed this hand, so fold wins (whose pot was already
	// awarded and zeroed) report their real size too.
	potAmount := 0
	for _, s := range h.Seats {
		potAmount += s.TotalBet
	}
	return HandCompletionEvent{
		TableID:       tableID,
		HandNumber:    h.HandNumber,
		NumPlayers:    h.ActiveSeatCount(),
		PotAmount:     potAmount,
		StreetReached: streetReached(h),
		DurationMs:    durationMs,
		CompletedAt:   completedAt,
	}
}

// Close closes the underlying connection.
func (a *Analytics) Close() error {
	return a.conn.Close()
}
