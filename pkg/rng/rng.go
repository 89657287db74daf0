// Package rng provides the cryptographic random sources used to generate
// per-hand seeds and the audit trail recording how a seed produced a given
// deck order. Deterministic replay of the deck itself lives in shuffle.go.
package rng

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"
)

// System provides cryptographically secure random numbers for live
// randomness: room codes, seat tokens, and the per-hand seed itself. It is
// never used to drive the shuffle directly — Shuffle takes a recorded seed
// so the same seed always reproduces the same deck order.
type System struct {
	cipher  cipher.Block
	nonce   []byte
	counter uint64
	mu      sync.Mutex
	audit   *AuditLogger
}

// NewSystem creates a new RNG system seeded from the OS CSPRNG.
func NewSystem(audit *AuditLogger) (*System, error) {
	seed, err := getHardwareSeed(32)
	if err != nil {
		return nil, fmt.Errorf("failed to get hardware seed: %w", err)
	}

	block, err := aes.NewCipher(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	nonce := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &System{
		cipher: block,
		nonce:  nonce,
		audit:  audit,
	}, nil
}

func getHardwareSeed(n int) ([]byte, error) {
	seed := make([]byte, n)
	nRead, err := io.ReadFull(rand.Reader, seed)
	if err != nil {
		return nil, err
	}
	if nRead != n {
		return nil, fmt.Errorf("short read from CSPRNG: %d/%d", nRead, n)
	}
	return seed, nil
}

// RandomUint64 returns a cryptographically secure random uint64.
func (s *System) RandomUint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	counterBytes := make([]byte, 16)
	binary.BigEndian.PutUint64(counterBytes[:8], s.counter)
	binary.BigEndian.PutUint64(counterBytes[8:], uint64(time.Now().UnixNano()))

	output := make([]byte, 16)
	s.cipher.Encrypt(output, counterBytes)

	s.counter++

	return binary.BigEndian.Uint64(output[:8])
}

// RandomInt returns a random int in [0, max).
func (s *System) RandomInt(max int) int {
	if max <= 0 {
		return 0
	}
	return int(s.RandomUint64() % uint64(max))
}

// RandomBytes returns n cryptographically secure random bytes. The result is
// suitable for use as a hand seed: record it against the hand, then call
// Shuffle to obtain the reproducible deck order the hand actually dealt.
func (s *System) RandomBytes(n int) ([]byte, error) {
	result := make([]byte, n)
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < n; i += 16 {
		chunk := make([]byte, 16)
		counterBytes := make([]byte, 16)
		binary.BigEndian.PutUint64(counterBytes[:8], s.counter)
		binary.BigEndian.PutUint64(counterBytes[8:], uint64(time.Now().UnixNano()))

		s.cipher.Encrypt(chunk, counterBytes)
		s.counter++

		copyLen := 16
		if i+copyLen > n {
			copyLen = n - i
		}
		copy(result[i:i+copyLen], chunk[:copyLen])
	}

	return result, nil
}

// LogShuffle builds and records the audit entry for a completed shuffle,
// using the seed that actually produced the dealt deck rather than minting a
// fresh one: an entry keyed to the wrong seed could never be used to verify
// the deal. A System built with a nil AuditLogger is a silent no-op, so
// callers that don't care about the audit trail don't have to guard calls.
func (s *System) LogShuffle(tableID, handID, dealerID, serverID string, seed []byte, deckBefore, deckAfter []int) error {
	if s.audit == nil {
		return nil
	}
	event := NewShuffleAuditEvent(tableID, handID, dealerID, serverID, seed, deckBefore, deckAfter)
	return s.audit.LogShuffleEvent(event)
}

// AuditLogger records shuffle events for compliance review.
type AuditLogger struct {
	enabled bool
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{enabled: true}
}

// LogShuffleEvent records a shuffle operation for audit.
func (a *AuditLogger) LogShuffleEvent(event *ShuffleAuditEvent) error {
	if !a.enabled {
		return nil
	}
	// A production deployment appends this to the event store alongside
	// the hand's domain events; stdout is the development fallback.
	fmt.Printf("RNG_AUDIT: %+v\n", event)
	return nil
}

// ShuffleAuditEvent represents a single shuffle operation for audit.
type ShuffleAuditEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	TableID    string    `json:"table_id"`
	HandID     string    `json:"hand_id"`
	Seed       string    `json:"seed"`      // hex encoded
	SeedHash   string    `json:"seed_hash"` // SHA-256 of seed
	DeckBefore []int     `json:"deck_before"`
	DeckAfter  []int     `json:"deck_after"`
	Algorithm  string    `json:"algorithm"` // "Fisher-Yates"
	PRNG       string    `json:"prng"`      // "AES-CTR-256"
	DealerID   string    `json:"dealer_id"`
	ServerID   string    `json:"server_id"`
}

// NewShuffleAuditEvent builds the audit record for a completed shuffle. seed
// is the exact value recorded against the hand, so DeckAfter can be
// reproduced from DeckBefore and seed at any later time.
func NewShuffleAuditEvent(tableID, handID, dealerID, serverID string, seed []byte, deckBefore, deckAfter []int) *ShuffleAuditEvent {
	hash := sha256.Sum256(seed)
	return &ShuffleAuditEvent{
		Timestamp:  time.Now().UTC(),
		TableID:    tableID,
		HandID:     handID,
		Seed:       fmt.Sprintf("%x", seed),
		SeedHash:   fmt.Sprintf("%x", hash[:]),
		DeckBefore: deckBefore,
		DeckAfter:  deckAfter,
		Algorithm:  "Fisher-Yates",
		PRNG:       "AES-CTR-256",
		DealerID:   dealerID,
		ServerID:   serverID,
	}
}
