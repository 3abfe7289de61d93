// Package feed delivers immutable snapshots of a workspace's list and purchase
// history to subscribers whenever either changes.
package feed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/cartwise/internal/model"
)

type Collection string

const (
	CollectionList    Collection = "list"
	CollectionHistory Collection = "history"
)

// Valid reports whether c names a known collection.
func (c Collection) Valid() bool {
	return c == CollectionList || c == CollectionHistory
}

// Snapshot is the full contents of one collection at a point in time.
// Receivers must treat it as read-only.
type Snapshot struct {
	WorkspaceID int64            `json:"workspace_id"`
	Collection  Collection       `json:"collection"`
	Version     int64            `json:"version"`
	At          time.Time        `json:"at"`
	List        *model.List      `json:"list,omitempty"`
	History     []model.Purchase `json:"history,omitempty"`
}

const subscriptionBuffer = 4

type topic struct {
	workspaceID int64
	collection  Collection
}

// Subscription receives snapshots on C until it is closed.
type Subscription struct {
	C     <-chan Snapshot
	ch    chan Snapshot
	hub   *Hub
	topic topic
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub fans snapshots out to subscribers of a workspace collection.
type Hub struct {
	mu     sync.Mutex
	subs   map[topic]map[*Subscription]struct{}
	logger *slog.Logger
	onDrop func(Snapshot)
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[topic]map[*Subscription]struct{}),
		logger: logger,
	}
}

// OnDrop registers fn to be called whenever a snapshot could not be queued
// for a subscriber. It must be set before the hub is used.
func (h *Hub) OnDrop(fn func(Snapshot)) {
	h.onDrop = fn
}

// Subscribe registers interest in one collection of a workspace.
func (h *Hub) Subscribe(workspaceID int64, c Collection) *Subscription {
	ch := make(chan Snapshot, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, hub: h, topic: topic{workspaceID, c}}

	h.mu.Lock()
	set, ok := h.subs[sub.topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[sub.topic] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[s.topic]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.ch)
	if len(set) == 0 {
		delete(h.subs, s.topic)
	}
}

// Publish delivers snap to every subscriber of its topic without blocking.
// A subscriber that has fallen behind loses its oldest queued snapshot; since
// each snapshot is complete, only the newest one matters.
func (h *Hub) Publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs[topic{snap.WorkspaceID, snap.Collection}] {
		select {
		case s.ch <- snap:
			continue
		default:
		}
		select {
		case stale := <-s.ch:
			h.logger.Debug("stale snapshot dropped", "workspace_id", stale.WorkspaceID, "collection", stale.Collection, "version", stale.Version)
			if h.onDrop != nil {
				h.onDrop(stale)
			}
		default:
		}
		select {
		case s.ch <- snap:
		default:
			h.logger.Warn("snapshot dropped", "workspace_id", snap.WorkspaceID, "collection", snap.Collection)
		}
	}
}

// SubscriberCount returns the number of subscribers to a workspace collection.
func (h *Hub) SubscriberCount(workspaceID int64, c Collection) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic{workspaceID, c}])
}
