// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package tables

import (
	"context"
	"database/sql"

	"github.com/element-hq/roomsync/types"
)

// Rooms persists the per-room membership record.
type Rooms interface {
	UpsertRoom(ctx context.Context, txn *sql.Tx, room *types.Room) error
	SelectRoom(ctx context.Context, txn *sql.Tx, roomID string) (*types.Room, error)
}

// Events persists stored events keyed globally by event ID.
type Events interface {
	UpsertEvent(ctx context.Context, txn *sql.Tx, event *types.Event) error
	SelectEvent(ctx context.Context, txn *sql.Tx, eventID string) (*types.Event, error)
	SelectRoomEventIDs(ctx context.Context, txn *sql.Tx, roomID string) ([]string, error)
	DeleteEvent(ctx context.Context, txn *sql.Tx, eventID string) error
}

// CurrentState is the (room ID, type, state key) -> event ID index.
type CurrentState interface {
	UpsertCurrentState(ctx context.Context, txn *sql.Tx, entry types.CurrentStateEntry) error
	SelectCurrentStateEventID(ctx context.Context, txn *sql.Tx, roomID, eventType, stateKey string) (string, error)
	SelectCurrentStateEntries(ctx context.Context, txn *sql.Tx, roomID string) ([]types.CurrentStateEntry, error)
	SelectCurrentStateEventIDs(ctx context.Context, txn *sql.Tx, roomID string) (map[string]bool, error)
}

// Chunks persists timeline chunks and their pagination metadata.
type Chunks interface {
	InsertChunk(ctx context.Context, txn *sql.Tx, chunk *types.Chunk) error
	SelectChunks(ctx context.Context, txn *sql.Tx, roomID string) ([]*types.Chunk, error)
	SelectLastForwardChunk(ctx context.Context, txn *sql.Tx, roomID string) (*types.Chunk, error)
	SelectThreadChunk(ctx context.Context, txn *sql.Tx, roomID, threadRootID string) (*types.Chunk, error)
	DeleteRoomChunks(ctx context.Context, txn *sql.Tx, roomID string) error
}

// Timeline persists the ordered event links inside a chunk.
type Timeline interface {
	InsertTimelineEvent(ctx context.Context, txn *sql.Tx, te *types.TimelineEvent) error
	SelectNextPosition(ctx context.Context, txn *sql.Tx, chunkID string) (int, error)
	SelectHasEvent(ctx context.Context, txn *sql.Tx, chunkID, eventID string) (bool, error)
	SelectTimelineEvents(ctx context.Context, txn *sql.Tx, chunkID string) ([]types.TimelineEvent, error)
	SelectRoomTimelineEventIDs(ctx context.Context, txn *sql.Tx, roomID string) ([]string, error)
	DeleteRoomTimeline(ctx context.Context, txn *sql.Tx, roomID string) error
}

// PendingSends persists local echoes keyed by (room ID, transaction ID).
type PendingSends interface {
	UpsertPendingSend(ctx context.Context, txn *sql.Tx, ps *types.PendingSend) error
	SelectPendingSend(ctx context.Context, txn *sql.Tx, roomID, transactionID string) (*types.PendingSend, error)
	SelectPendingSends(ctx context.Context, txn *sql.Tx, roomID string) ([]*types.PendingSend, error)
	DeletePendingSend(ctx context.Context, txn *sql.Tx, roomID, transactionID string) error
}

// ThreadSummaries persists per-thread aggregates.
type ThreadSummaries interface {
	UpsertThreadSummary(ctx context.Context, txn *sql.Tx, summary *types.ThreadSummary) error
	SelectThreadSummary(ctx context.Context, txn *sql.Tx, roomID, rootEventID string) (*types.ThreadSummary, error)
}
