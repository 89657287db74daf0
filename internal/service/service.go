// Package service implements the external operations table spec.md §6
// describes: table creation, seat membership, authentication, and the hand
// operations, each translated into a call against one table's
// internal/table serializer. It is the seam a transport shell (HTTP,
// WebSocket) is built against, the way the teacher's cmd/game-server wires
// gin handlers directly to *game.Table methods.
package service

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"holdem-core/internal/engine"
	"holdem-core/internal/storage"
	"holdem-core/internal/storage/clickhouse"
	"holdem-core/internal/table"
	"holdem-core/internal/view"
	"holdem-core/pkg/rng"
)

const (
	// defaultMaxSeats mirrors the teacher's table_test.go convention of a
	// 9-max table when the caller doesn't specify one.
	defaultMaxSeats = 9
	// minCredentialLength is the WeakCredential threshold spec.md §6 names
	// without specifying a value.
	minCredentialLength = 8

	roomCodeLength   = 6
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // excludes 0/O/1/I
)

// eventPublisher is the subset of *eventstream.EventProducer every table
// needs, re-declared locally the way internal/table does, so tests can
// substitute a recording stub.
type eventPublisher interface {
	PublishBatch(tableID string, handNumber int, events []engine.Event) error
}

// analyticsSink is the subset of *clickhouse.Analytics every table needs,
// re-declared locally the way internal/table does.
type analyticsSink interface {
	RecordHandCompletion(ctx context.Context, event clickhouse.HandCompletionEvent) error
}

// Config wires the service to its storage, event stream, analytics, and RNG
// dependencies; one Service owns every table the process serves.
type Config struct {
	Store     storage.EventStore
	Snapshot  storage.SnapshotStore
	Events    eventPublisher
	Analytics analyticsSink
	RNG       *rng.System
}

// tableEntry is everything the service tracks about one table beyond what
// the serializer itself owns: its room code, seat-name registry, and
// credential fingerprints.
type tableEntry struct {
	id     string
	room   string
	config engine.TableConfig
	tbl    *table.Table

	mu    sync.Mutex
	names map[string]string // lowercased seat name -> seat ID
	creds map[string]string // seat ID -> bcrypt hash
}

// Service is the process-wide registry of tables, grounded in the teacher's
// in-memory table map (cmd/game-server/main.go held one *game.Table per
// table ID behind a mutex) generalized with a room-code index and a session
// layer the teacher didn't need, since its tables were created out of band.
type Service struct {
	store     storage.EventStore
	snapshot  storage.SnapshotStore
	events    eventPublisher
	analytics analyticsSink
	hub       *view.Hub
	rngSys    *rng.System
	sessions  *sessionStore

	mu     sync.RWMutex
	tables map[string]*tableEntry
	rooms  map[string]string // room code -> table ID
}

// New constructs a Service with no tables registered yet.
func New(cfg Config) *Service {
	return &Service{
		store:     cfg.Store,
		snapshot:  cfg.Snapshot,
		events:    cfg.Events,
		analytics: cfg.Analytics,
		hub:       view.NewHub(),
		rngSys:    cfg.RNG,
		sessions:  newSessionStore(),
		tables:    make(map[string]*tableEntry),
		rooms:     make(map[string]string),
	}
}

// CreateTableRequest is CreateTable's input (spec.md §6).
type CreateTableRequest struct {
	SmallBlind    int `json:"smallBlind"`
	BigBlind      int `json:"bigBlind"`
	StartingChips int `json:"startingChips"`
	MaxSeats      int `json:"maxSeats"` // 0 uses the default
}

// CreateTableResult is CreateTable's output.
type CreateTableResult struct {
	TableID  string `json:"tableId"`
	RoomCode string `json:"roomCode"`
}

// CreateTable validates a table's rules and registers a fresh, empty table
// under a new room code.
func (s *Service) CreateTable(ctx context.Context, req CreateTableRequest) (CreateTableResult, error) {
	if req.SmallBlind <= 0 || req.BigBlind <= req.SmallBlind || req.StartingChips <= 0 {
		return CreateTableResult{}, ErrInvalidConfig
	}
	maxSeats := req.MaxSeats
	if maxSeats <= 0 {
		maxSeats = defaultMaxSeats
	}

	tableID, err := s.randomID()
	if err != nil {
		return CreateTableResult{}, engine.TransientError(err)
	}
	roomCode, err := s.newRoomCode()
	if err != nil {
		return CreateTableResult{}, engine.TransientError(err)
	}

	config := engine.TableConfig{
		SmallBlind:    req.SmallBlind,
		BigBlind:      req.BigBlind,
		StartingChips: req.StartingChips,
		RoomCode:      roomCode,
		MaxSeats:      maxSeats,
	}

	tbl := table.New(table.Config{
		TableID:   tableID,
		RoomCode:  roomCode,
		Rules:     config,
		Store:     s.store,
		Snapshot:  s.snapshot,
		Events:    s.events,
		Hub:       s.hub,
		Analytics: s.analytics,
		RNG:       s.rngSys,
	})

	entry := &tableEntry{
		id:     tableID,
		room:   roomCode,
		config: config,
		tbl:    tbl,
		names:  make(map[string]string),
		creds:  make(map[string]string),
	}

	s.mu.Lock()
	s.tables[tableID] = entry
	s.rooms[roomCode] = tableID
	s.mu.Unlock()

	return CreateTableResult{TableID: tableID, RoomCode: roomCode}, nil
}

func (s *Service) entryByRoom(roomCode string) (*tableEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tableID, ok := s.rooms[roomCode]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s.tables[tableID], nil
}

func (s *Service) entryByID(tableID string) (*tableEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.tables[tableID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return entry, nil
}

// JoinSeatRequest is JoinSeat's input.
type JoinSeatRequest struct {
	RoomCode   string `json:"roomCode"`
	Name       string `json:"name"`
	Credential string `json:"credential"`
}

// JoinSeatResult is JoinSeat's output.
type JoinSeatResult struct {
	SeatID       string `json:"seatId"`
	SessionToken string `json:"sessionToken"`
}

// JoinSeat seats a new player at a table identified by its public room
// code, fingerprinting the credential the way the teacher's
// fraud.DeviceFingerprint concept inspired (spec.md §6 / SPEC_FULL.md §14)
// but without any of the collusion-detection machinery that fed from it.
func (s *Service) JoinSeat(ctx context.Context, req JoinSeatRequest) (JoinSeatResult, error) {
	entry, err := s.entryByRoom(req.RoomCode)
	if err != nil {
		return JoinSeatResult{}, err
	}
	if len(req.Credential) < minCredentialLength {
		return JoinSeatResult{}, ErrWeakCredential
	}

	entry.mu.Lock()
	if _, taken := entry.names[strings.ToLower(req.Name)]; taken {
		entry.mu.Unlock()
		return JoinSeatResult{}, engine.ErrNameTaken
	}
	entry.mu.Unlock()

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Credential), bcrypt.DefaultCost)
	if err != nil {
		return JoinSeatResult{}, engine.TransientError(err)
	}

	seatID, err := s.randomID()
	if err != nil {
		return JoinSeatResult{}, engine.TransientError(err)
	}

	_, err = entry.tbl.JoinSeat(ctx, table.JoinSeatRequest{
		SeatID:         seatID,
		Name:           req.Name,
		CredentialHash: string(hash),
		Chips:          entry.config.StartingChips,
		Position:       -1,
	})
	if err != nil {
		return JoinSeatResult{}, err
	}

	entry.mu.Lock()
	entry.names[strings.ToLower(req.Name)] = seatID
	entry.creds[seatID] = string(hash)
	entry.mu.Unlock()

	token, err := s.randomToken()
	if err != nil {
		return JoinSeatResult{}, engine.TransientError(err)
	}
	s.sessions.issue(token, entry.id, seatID)

	return JoinSeatResult{SeatID: seatID, SessionToken: token}, nil
}

// AuthenticateSeatRequest is AuthenticateSeat's input: a returning player
// reconnecting to a seat it already holds.
type AuthenticateSeatRequest struct {
	RoomCode   string `json:"roomCode"`
	Name       string `json:"name"`
	Credential string `json:"credential"`
}

// AuthenticateSeatResult is AuthenticateSeat's output.
type AuthenticateSeatResult struct {
	SessionToken string          `json:"sessionToken"`
	Seat         view.PlayerView `json:"seat"`
}

// AuthenticateSeat re-issues a session token for a seat whose credential
// matches the fingerprint recorded at JoinSeat time.
func (s *Service) AuthenticateSeat(ctx context.Context, req AuthenticateSeatRequest) (AuthenticateSeatResult, error) {
	entry, err := s.entryByRoom(req.RoomCode)
	if err != nil {
		return AuthenticateSeatResult{}, err
	}

	entry.mu.Lock()
	seatID, ok := entry.names[strings.ToLower(req.Name)]
	var hash string
	if ok {
		hash = entry.creds[seatID]
	}
	entry.mu.Unlock()
	if !ok {
		return AuthenticateSeatResult{}, ErrSeatNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Credential)); err != nil {
		return AuthenticateSeatResult{}, ErrInvalidCredential
	}

	token, err := s.randomToken()
	if err != nil {
		return AuthenticateSeatResult{}, engine.TransientError(err)
	}
	s.sessions.issue(token, entry.id, seatID)

	return AuthenticateSeatResult{SessionToken: token, Seat: currentPlayerView(entry.tbl, seatID)}, nil
}

// Authorize resolves a session token to the table/seat it grants access to,
// for transport handlers that need to check a caller owns the seat it is
// acting on before forwarding a request.
func (s *Service) Authorize(token string) (tableID, seatID string, err error) {
	return s.sessions.resolve(token)
}

// StartHandRequest is StartHand's input.
type StartHandRequest struct {
	TableID string
}

// StartHand deals a table's first hand.
func (s *Service) StartHand(ctx context.Context, req StartHandRequest) (table.Result, error) {
	entry, err := s.entryByID(req.TableID)
	if err != nil {
		return table.Result{}, err
	}
	return entry.tbl.StartHand(ctx, table.StartHandRequest{})
}

// StartNextHandRequest is StartNextHand's input.
type StartNextHandRequest struct {
	TableID string
}

// StartNextHand deals the next hand once the current one has completed.
func (s *Service) StartNextHand(ctx context.Context, req StartNextHandRequest) (table.Result, error) {
	entry, err := s.entryByID(req.TableID)
	if err != nil {
		return table.Result{}, err
	}
	return entry.tbl.StartNextHand(ctx, table.StartNextHandRequest{})
}

// SubmitActionRequest is SubmitAction's input.
type SubmitActionRequest struct {
	TableID string
	SeatID  string
	Action  engine.ActionKind
	Amount  int
}

// SubmitAction applies one seat's betting decision.
func (s *Service) SubmitAction(ctx context.Context, req SubmitActionRequest) (table.Result, error) {
	entry, err := s.entryByID(req.TableID)
	if err != nil {
		return table.Result{}, err
	}
	return entry.tbl.SubmitAction(ctx, table.PlayerActionRequest{
		SeatID: req.SeatID,
		Action: req.Action,
		Amount: req.Amount,
	})
}

// AdvanceRoundRequest is AdvanceRound's input.
type AdvanceRoundRequest struct {
	TableID string
}

// AdvanceRound moves the hand to the next street once betting is complete.
func (s *Service) AdvanceRound(ctx context.Context, req AdvanceRoundRequest) (table.Result, error) {
	entry, err := s.entryByID(req.TableID)
	if err != nil {
		return table.Result{}, err
	}
	return entry.tbl.AdvanceRound(ctx, table.AdvanceRoundRequest{})
}

// RevealCardRequest is RevealCard's input.
type RevealCardRequest struct {
	TableID string
}

// RevealCard deals the next community card during an all-in runout.
func (s *Service) RevealCard(ctx context.Context, req RevealCardRequest) (table.Result, error) {
	entry, err := s.entryByID(req.TableID)
	if err != nil {
		return table.Result{}, err
	}
	return entry.tbl.RevealCard(ctx, table.RevealCardRequest{})
}

// LeaveSeatRequest is LeaveSeat's input. Not part of spec.md §6's
// operations table, but a natural counterpart to JoinSeat: a disconnecting
// WebSocket client needs a way to vacate or mark its seat disconnected.
type LeaveSeatRequest struct {
	TableID string
	SeatID  string
}

// LeaveSeat removes a seat between hands, or marks it disconnected if a
// hand is in progress. The seat's name is freed immediately either way —
// the table serializer's own name check compares against the seats still
// physically present, so freeing the name here can never let two seated
// players collide on one name.
func (s *Service) LeaveSeat(ctx context.Context, req LeaveSeatRequest) (table.Result, error) {
	entry, err := s.entryByID(req.TableID)
	if err != nil {
		return table.Result{}, err
	}
	result, err := entry.tbl.LeaveSeat(ctx, table.LeaveSeatRequest{SeatID: req.SeatID})
	if err != nil {
		return table.Result{}, err
	}

	entry.mu.Lock()
	for name, seatID := range entry.names {
		if seatID == req.SeatID {
			delete(entry.names, name)
			break
		}
	}
	delete(entry.creds, req.SeatID)
	entry.mu.Unlock()

	return result, nil
}

// SubscribeRequest is Subscribe's input. ViewerSeatID is required when
// Stream is view.StreamPlayer and ignored otherwise.
type SubscribeRequest struct {
	RoomCode     string
	Stream       view.Stream
	ViewerSeatID string
}

// Subscribe attaches a caller to a table or player projection stream,
// delivering the current snapshot immediately, grounded in spec.md §6's
// Subscribe operation and internal/view's hub.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) (*view.Subscription, error) {
	entry, err := s.entryByRoom(req.RoomCode)
	if err != nil {
		return nil, err
	}
	sub := entry.tbl.Subscribe(req.Stream, req.ViewerSeatID)
	if sub == nil {
		return nil, ErrUnauthorized
	}
	return sub, nil
}

// currentPlayerView pulls the projection a fresh subscription is seeded
// with, then tears the subscription down — a synchronous snapshot read
// built on the same hub Subscribe itself uses to deliver one.
func currentPlayerView(tbl *table.Table, seatID string) view.PlayerView {
	sub := tbl.Subscribe(view.StreamPlayer, seatID)
	if sub == nil {
		return view.PlayerView{}
	}
	defer sub.Unsubscribe()
	select {
	case rev := <-sub.Revisions():
		if pv, ok := rev.View.(view.PlayerView); ok {
			return pv
		}
	default:
	}
	return view.PlayerView{}
}

func (s *Service) randomID() (string, error) {
	raw, err := s.rngSys.RandomBytes(16)
	if err != nil {
		return "", err
	}
	return hexToken(raw), nil
}

func (s *Service) randomToken() (string, error) {
	raw, err := s.rngSys.RandomBytes(sessionTokenBytes)
	if err != nil {
		return "", err
	}
	return hexToken(raw), nil
}

// newRoomCode generates a 6-character public table handle from an alphabet
// with no visually ambiguous characters, retrying on an (extremely
// unlikely) collision with an already-registered room.
func (s *Service) newRoomCode() (string, error) {
	for {
		buf := make([]byte, roomCodeLength)
		for i := range buf {
			buf[i] = roomCodeAlphabet[s.rngSys.RandomInt(len(roomCodeAlphabet))]
		}
		code := string(buf)

		s.mu.RLock()
		_, taken := s.rooms[code]
		s.mu.RUnlock()
		if !taken {
			return code, nil
		}
	}
}
