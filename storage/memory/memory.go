// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

// Package memory is an in-process storage backend. Entities live in an
// arena of maps keyed by ID; chunk deletion is an explicit detach-and-
// collect walk over the chunk graph rather than a storage-engine
// cascade. Transactions copy the arena on begin and swap it back on
// commit, which keeps rollback trivial and guarantees readers never see
// a partially reconciled room.
package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/element-hq/roomsync/storage"
	"github.com/element-hq/roomsync/types"
)

type arena struct {
	rooms           map[string]*types.Room
	events          map[string]*types.Event
	chunks          map[string]*types.Chunk
	timeline        map[string][]types.TimelineEvent   // chunk ID -> ordered events
	currentState    map[string]types.CurrentStateEntry // stateKeyOf(...) -> entry
	pendingSends    map[string]*types.PendingSend      // pendingKeyOf(...) -> record
	threadSummaries map[string]*types.ThreadSummary    // threadKeyOf(...) -> summary
}

func newArena() *arena {
	return &arena{
		rooms:           make(map[string]*types.Room),
		events:          make(map[string]*types.Event),
		chunks:          make(map[string]*types.Chunk),
		timeline:        make(map[string][]types.TimelineEvent),
		currentState:    make(map[string]types.CurrentStateEntry),
		pendingSends:    make(map[string]*types.PendingSend),
		threadSummaries: make(map[string]*types.ThreadSummary),
	}
}

func (a *arena) clone() *arena {
	c := newArena()
	for k, v := range a.rooms {
		room := *v
		c.rooms[k] = &room
	}
	for k, v := range a.events {
		ev := *v
		c.events[k] = &ev
	}
	for k, v := range a.chunks {
		chunk := *v
		c.chunks[k] = &chunk
	}
	for k, v := range a.timeline {
		c.timeline[k] = append([]types.TimelineEvent(nil), v...)
	}
	for k, v := range a.currentState {
		c.currentState[k] = v
	}
	for k, v := range a.pendingSends {
		ps := *v
		if v.Event != nil {
			ev := *v.Event
			ps.Event = &ev
		}
		c.pendingSends[k] = &ps
	}
	for k, v := range a.threadSummaries {
		ts := *v
		ts.ParticipantIDs = append([]string(nil), v.ParticipantIDs...)
		c.threadSummaries[k] = &ts
	}
	return c
}

func stateKeyOf(roomID, eventType, stateKey string) string {
	return roomID + "\x1f" + eventType + "\x1f" + stateKey
}

func pendingKeyOf(roomID, transactionID string) string {
	return roomID + "\x1f" + transactionID
}

func threadKeyOf(roomID, rootEventID string) string {
	return roomID + "\x1f" + rootEventID
}

// Database is the in-memory store. The mutex held for the lifetime of
// a transaction enforces the single-writer discipline.
type Database struct {
	mu    sync.Mutex
	arena *arena
}

func NewDatabase() *Database {
	return &Database{arena: newArena()}
}

func (d *Database) NewTransaction(ctx context.Context) (storage.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	return &transaction{db: d, arena: d.arena.clone()}, nil
}

type transaction struct {
	db    *Database
	arena *arena
	done  bool
}

var errTransactionDone = errors.New("memory: transaction already finished")

func (t *transaction) Commit() error {
	if t.done {
		return errTransactionDone
	}
	t.done = true
	t.db.arena = t.arena
	t.db.mu.Unlock()
	return nil
}

func (t *transaction) Rollback() error {
	if t.done {
		// Mirrors database/sql: rollback after commit is a no-op error
		// the caller may ignore in a deferred cleanup.
		return errTransactionDone
	}
	t.done = true
	t.db.mu.Unlock()
	return nil
}

func (t *transaction) SelectRoom(_ context.Context, roomID string) (*types.Room, error) {
	room, ok := t.arena.rooms[roomID]
	if !ok {
		return nil, nil
	}
	r := *room
	return &r, nil
}

func (t *transaction) UpsertRoom(_ context.Context, room *types.Room) error {
	r := *room
	t.arena.rooms[room.RoomID] = &r
	return nil
}

func (t *transaction) SelectEvent(_ context.Context, eventID string) (*types.Event, error) {
	ev, ok := t.arena.events[eventID]
	if !ok {
		return nil, nil
	}
	e := *ev
	return &e, nil
}

func (t *transaction) UpsertEvent(_ context.Context, event *types.Event) error {
	e := *event
	t.arena.events[event.EventID] = &e
	return nil
}

func (t *transaction) SelectRoomEventIDs(_ context.Context, roomID string) ([]string, error) {
	var ids []string
	for id, ev := range t.arena.events {
		if ev.RoomID == roomID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *transaction) UpsertCurrentState(_ context.Context, entry types.CurrentStateEntry) error {
	t.arena.currentState[stateKeyOf(entry.RoomID, entry.Type, entry.StateKey)] = entry
	return nil
}

func (t *transaction) SelectCurrentStateEvent(ctx context.Context, roomID, eventType, stateKey string) (*types.Event, error) {
	entry, ok := t.arena.currentState[stateKeyOf(roomID, eventType, stateKey)]
	if !ok {
		return nil, nil
	}
	return t.SelectEvent(ctx, entry.EventID)
}

func (t *transaction) SelectCurrentStateEntries(_ context.Context, roomID string) ([]types.CurrentStateEntry, error) {
	var entries []types.CurrentStateEntry
	for _, entry := range t.arena.currentState {
		if entry.RoomID == roomID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (t *transaction) SelectChunks(_ context.Context, roomID string) ([]*types.Chunk, error) {
	var chunks []*types.Chunk
	for _, chunk := range t.arena.chunks {
		if chunk.RoomID == roomID {
			c := *chunk
			chunks = append(chunks, &c)
		}
	}
	return chunks, nil
}

func (t *transaction) SelectLastForwardChunk(_ context.Context, roomID string) (*types.Chunk, error) {
	for _, chunk := range t.arena.chunks {
		if chunk.RoomID == roomID && chunk.IsLastForward {
			c := *chunk
			return &c, nil
		}
	}
	return nil, nil
}

func (t *transaction) SelectThreadChunk(_ context.Context, roomID, threadRootID string) (*types.Chunk, error) {
	for _, chunk := range t.arena.chunks {
		if chunk.RoomID == roomID && chunk.ThreadRootID == threadRootID {
			c := *chunk
			return &c, nil
		}
	}
	return nil, nil
}

func (t *transaction) InsertChunk(_ context.Context, chunk *types.Chunk) error {
	if _, exists := t.arena.chunks[chunk.ChunkID]; exists {
		return errors.Errorf("memory: chunk %q already exists", chunk.ChunkID)
	}
	c := *chunk
	t.arena.chunks[chunk.ChunkID] = &c
	return nil
}

// DeleteRoomChunks detaches every chunk of the room and collects the
// set of event IDs left unreachable: events referenced only by the
// detached timeline links are purged, events still pointed at by a
// current state entry survive.
func (t *transaction) DeleteRoomChunks(_ context.Context, roomID string) ([]string, error) {
	retained := make(map[string]bool)
	for _, entry := range t.arena.currentState {
		if entry.RoomID == roomID {
			retained[entry.EventID] = true
		}
	}

	var purged []string
	for chunkID, chunk := range t.arena.chunks {
		if chunk.RoomID != roomID {
			continue
		}
		for _, te := range t.arena.timeline[chunkID] {
			if retained[te.EventID] {
				continue
			}
			if _, ok := t.arena.events[te.EventID]; ok {
				delete(t.arena.events, te.EventID)
				purged = append(purged, te.EventID)
			}
		}
		delete(t.arena.timeline, chunkID)
		delete(t.arena.chunks, chunkID)
	}
	return purged, nil
}

func (t *transaction) AppendTimelineEvent(_ context.Context, te *types.TimelineEvent) error {
	if _, ok := t.arena.chunks[te.ChunkID]; !ok {
		return errors.Errorf("memory: append to unknown chunk %q", te.ChunkID)
	}
	entry := *te
	entry.Position = len(t.arena.timeline[te.ChunkID])
	t.arena.timeline[te.ChunkID] = append(t.arena.timeline[te.ChunkID], entry)
	te.Position = entry.Position
	return nil
}

func (t *transaction) HasTimelineEvent(_ context.Context, chunkID, eventID string) (bool, error) {
	for _, te := range t.arena.timeline[chunkID] {
		if te.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (t *transaction) SelectTimelineEvents(_ context.Context, chunkID string) ([]types.TimelineEvent, error) {
	return append([]types.TimelineEvent(nil), t.arena.timeline[chunkID]...), nil
}

func (t *transaction) SelectPendingSend(_ context.Context, roomID, transactionID string) (*types.PendingSend, error) {
	ps, ok := t.arena.pendingSends[pendingKeyOf(roomID, transactionID)]
	if !ok {
		return nil, nil
	}
	p := *ps
	return &p, nil
}

func (t *transaction) SelectPendingSends(_ context.Context, roomID string) ([]*types.PendingSend, error) {
	var out []*types.PendingSend
	for _, ps := range t.arena.pendingSends {
		if ps.RoomID == roomID {
			p := *ps
			out = append(out, &p)
		}
	}
	return out, nil
}

func (t *transaction) UpsertPendingSend(_ context.Context, ps *types.PendingSend) error {
	p := *ps
	t.arena.pendingSends[pendingKeyOf(ps.RoomID, ps.TransactionID)] = &p
	return nil
}

func (t *transaction) DeletePendingSend(_ context.Context, roomID, transactionID string) error {
	delete(t.arena.pendingSends, pendingKeyOf(roomID, transactionID))
	return nil
}

func (t *transaction) SelectThreadSummary(_ context.Context, roomID, rootEventID string) (*types.ThreadSummary, error) {
	ts, ok := t.arena.threadSummaries[threadKeyOf(roomID, rootEventID)]
	if !ok {
		return nil, nil
	}
	s := *ts
	s.ParticipantIDs = append([]string(nil), ts.ParticipantIDs...)
	return &s, nil
}

func (t *transaction) UpsertThreadSummary(_ context.Context, summary *types.ThreadSummary) error {
	s := *summary
	s.ParticipantIDs = append([]string(nil), summary.ParticipantIDs...)
	t.arena.threadSummaries[threadKeyOf(summary.RoomID, summary.RootEventID)] = &s
	return nil
}

var _ storage.Database = &Database{}
var _ storage.Transaction = &transaction{}
