// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package notifier

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/element-hq/roomsync/types"
)

// RoomUpdate tells a subscriber that a room's timeline gained events.
// Position is a monotonic counter across all rooms, so a subscriber
// can tell whether it has missed updates.
type RoomUpdate struct {
	RoomID   string
	EventIDs []string
	Position int64
}

// Notifier fans timeline notifications out to in-process subscribers.
// It implements the engine's live event sink; notifications arrive
// after the originating transaction has committed. Delivery is
// best-effort: a subscriber that stops draining its channel misses
// updates rather than stalling the sync loop.
type Notifier struct {
	mu        sync.Mutex
	streams   map[int64]chan RoomUpdate
	nextID    atomic.Int64
	position  atomic.Int64
	liveCount atomic.Int64
}

func NewNotifier() *Notifier {
	return &Notifier{
		streams: make(map[int64]chan RoomUpdate),
	}
}

// Subscribe registers a listener. The returned cancel func must be
// called to release it.
func (n *Notifier) Subscribe() (<-chan RoomUpdate, func()) {
	id := n.nextID.Inc()
	ch := make(chan RoomUpdate, 64)
	n.mu.Lock()
	n.streams[id] = ch
	n.mu.Unlock()
	cancel := func() {
		n.mu.Lock()
		delete(n.streams, id)
		n.mu.Unlock()
	}
	return ch, cancel
}

// CurrentPosition returns the position of the most recent update.
func (n *Notifier) CurrentPosition() int64 {
	return n.position.Load()
}

// LiveEventCount returns how many live events have passed through the
// engine since startup.
func (n *Notifier) LiveEventCount() int64 {
	return n.liveCount.Load()
}

func (n *Notifier) OnLiveEventReceived(_ *types.Event, _ string, _ bool) {
	n.liveCount.Inc()
}

func (n *Notifier) OnNewTimelineEvents(roomID string, eventIDs []string) {
	update := RoomUpdate{
		RoomID:   roomID,
		EventIDs: eventIDs,
		Position: n.position.Inc(),
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.streams {
		select {
		case ch <- update:
		default:
		}
	}
}
