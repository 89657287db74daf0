package view

import (
	"sync"

	"holdem-core/internal/metrics"
)

// Stream distinguishes the table-wide projection from a specific player's
// projection.
type Stream string

const (
	StreamTable  Stream = "table"
	StreamPlayer Stream = "player"
)

// subscriberBuffer is large enough to absorb a burst of revisions between a
// slow consumer's reads without blocking the publishing goroutine; once
// full, the hub drops the oldest queued revision rather than the newest.
const subscriberBuffer = 8

// Revision wraps a projection with the revision number it was built from, so
// a subscriber can tell whether a queued delivery is already stale.
type Revision struct {
	Number int         `json:"revision"`
	View   interface{} `json:"view"`
}

type subscriber struct {
	tableID string
	stream  Stream
	viewer  string // seat ID, only set for StreamPlayer
	ch      chan Revision
}

// Hub fans out table and player view revisions to subscribers, grounded in
// the teacher's per-connection send-loop model: each subscriber gets its own
// buffered channel and a dedicated goroutine never blocks on a slow peer.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{} // keyed by tableID
}

// NewHub creates an empty subscription hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscription is the handle returned to a caller that subscribed; Revisions
// delivers projections in order, dropping stale ones under backpressure.
// Unsubscribe must be called exactly once to release the subscriber slot.
type Subscription struct {
	hub  *Hub
	sub  *subscriber
	once sync.Once
}

// Revisions returns the channel the subscriber should range over.
func (s *Subscription) Revisions() <-chan Revision {
	return s.sub.ch
}

// Unsubscribe removes the subscriber from the hub and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.sub)
	})
}

// Subscribe registers a new subscriber for a table's stream and immediately
// enqueues the current projection so the subscriber never waits for the next
// revision to see where the table stands. viewerSeatID is ignored for
// StreamTable.
func (h *Hub) Subscribe(tableID string, stream Stream, viewerSeatID string, current Revision) *Subscription {
	sub := &subscriber{
		tableID: tableID,
		stream:  stream,
		viewer:  viewerSeatID,
		ch:      make(chan Revision, subscriberBuffer),
	}

	h.mu.Lock()
	if h.subs[tableID] == nil {
		h.subs[tableID] = make(map[*subscriber]struct{})
	}
	h.subs[tableID][sub] = struct{}{}
	count := len(h.subs[tableID])
	h.mu.Unlock()

	metrics.SetHubSubscribers(tableID, string(stream), count)

	sub.ch <- current

	return &Subscription{hub: h, sub: sub}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if subs, ok := h.subs[sub.tableID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subs, sub.tableID)
		}
	}
	count := len(h.subs[sub.tableID])
	h.mu.Unlock()
	close(sub.ch)
	metrics.SetHubSubscribers(sub.tableID, string(sub.stream), count)
}

// PublishTable delivers a new table-view revision to every StreamTable
// subscriber of a table.
func (h *Hub) PublishTable(tableID string, number int, tableView TableView) {
	h.publish(tableID, StreamTable, "", Revision{Number: number, View: tableView})
}

// PublishPlayer delivers a new player-view revision to the StreamPlayer
// subscriber for one specific viewer seat, if subscribed.
func (h *Hub) PublishPlayer(tableID, viewerSeatID string, number int, playerView PlayerView) {
	h.publish(tableID, StreamPlayer, viewerSeatID, Revision{Number: number, View: playerView})
}

// publish is best-effort: a subscriber whose buffer is full has its oldest
// queued revision dropped to make room for the new one, so a slow consumer
// never blocks the table's serializer and always eventually catches up to
// the latest state rather than an arbitrarily stale one.
func (h *Hub) publish(tableID string, stream Stream, viewerSeatID string, rev Revision) {
	h.mu.Lock()
	subs := h.subs[tableID]
	targets := make([]*subscriber, 0, len(subs))
	for sub := range subs {
		if sub.stream != stream {
			continue
		}
		if stream == StreamPlayer && sub.viewer != viewerSeatID {
			continue
		}
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- rev:
		default:
			select {
			case <-sub.ch:
				metrics.RecordHubDroppedRevision(tableID, string(stream))
			default:
			}
			select {
			case sub.ch <- rev:
			default:
			}
		}
	}
}
