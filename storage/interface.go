// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package storage

import (
	"context"

	"github.com/element-hq/roomsync/types"
)

// Database opens write transactions over the room model. The store
// enforces at most one concurrent write transaction: NewTransaction
// blocks until the previous writer commits or rolls back.
type Database interface {
	NewTransaction(ctx context.Context) (Transaction, error)
}

// Transaction is an atomic, ordered view over Room, Chunk, Event,
// CurrentStateEntry and PendingSend records. Lookups return (nil, nil)
// when the record does not exist. External readers only ever see
// committed, fully reconciled snapshots.
type Transaction interface {
	// Rooms.
	SelectRoom(ctx context.Context, roomID string) (*types.Room, error)
	UpsertRoom(ctx context.Context, room *types.Room) error

	// Events, keyed globally by event ID.
	SelectEvent(ctx context.Context, eventID string) (*types.Event, error)
	UpsertEvent(ctx context.Context, event *types.Event) error
	SelectRoomEventIDs(ctx context.Context, roomID string) ([]string, error)

	// Current state index, keyed by (room ID, type, state key).
	UpsertCurrentState(ctx context.Context, entry types.CurrentStateEntry) error
	SelectCurrentStateEvent(ctx context.Context, roomID, eventType, stateKey string) (*types.Event, error)
	SelectCurrentStateEntries(ctx context.Context, roomID string) ([]types.CurrentStateEntry, error)

	// Chunks. DeleteRoomChunks cascade-deletes every chunk of the room
	// together with its timeline links, purging events that are no
	// longer reachable (events still referenced by the current state
	// index survive). It returns the IDs of the purged events.
	SelectChunks(ctx context.Context, roomID string) ([]*types.Chunk, error)
	SelectLastForwardChunk(ctx context.Context, roomID string) (*types.Chunk, error)
	SelectThreadChunk(ctx context.Context, roomID, threadRootID string) (*types.Chunk, error)
	InsertChunk(ctx context.Context, chunk *types.Chunk) error
	DeleteRoomChunks(ctx context.Context, roomID string) ([]string, error)

	// Timeline events within a chunk. AppendTimelineEvent assigns the
	// next forward position in the chunk.
	AppendTimelineEvent(ctx context.Context, te *types.TimelineEvent) error
	HasTimelineEvent(ctx context.Context, chunkID, eventID string) (bool, error)
	SelectTimelineEvents(ctx context.Context, chunkID string) ([]types.TimelineEvent, error)

	// Pending sends (local echoes), keyed by (room ID, transaction ID).
	// DeletePendingSend is a no-op when the record has already gone.
	SelectPendingSend(ctx context.Context, roomID, transactionID string) (*types.PendingSend, error)
	SelectPendingSends(ctx context.Context, roomID string) ([]*types.PendingSend, error)
	UpsertPendingSend(ctx context.Context, ps *types.PendingSend) error
	DeletePendingSend(ctx context.Context, roomID, transactionID string) error

	// Thread summaries, keyed by (room ID, thread root event ID).
	SelectThreadSummary(ctx context.Context, roomID, rootEventID string) (*types.ThreadSummary, error)
	UpsertThreadSummary(ctx context.Context, summary *types.ThreadSummary) error

	Commit() error
	Rollback() error
}
