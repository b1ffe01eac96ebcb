// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

// Package sqlite3 is the persistent storage backend. One file per
// table, const SQL strings, statements prepared up front. SQLite only
// ever admits a single writer, which matches the engine's single-writer
// discipline without any extra locking.
package sqlite3

import (
	"context"
	"database/sql"

	// Import the SQLite database driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/element-hq/roomsync/storage"
	"github.com/element-hq/roomsync/storage/tables"
	"github.com/element-hq/roomsync/types"
)

// Database is an SQLite-backed storage.Database.
type Database struct {
	db              *sql.DB
	rooms           tables.Rooms
	events          tables.Events
	currentState    tables.CurrentState
	chunks          tables.Chunks
	timeline        tables.Timeline
	pendingSends    tables.PendingSends
	threadSummaries tables.ThreadSummaries
}

// NewDatabase opens (creating if necessary) the database at the given
// data source name, e.g. "file:roomsync.db" or ":memory:" for tests.
func NewDatabase(dataSourceName string) (*Database, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}
	// Serialize access at the pool level: a second connection to the
	// same in-memory database would see a different store entirely.
	db.SetMaxOpenConns(1)

	d := &Database{db: db}
	if d.rooms, err = NewSqliteRoomsTable(db); err != nil {
		return nil, err
	}
	if d.events, err = NewSqliteEventsTable(db); err != nil {
		return nil, err
	}
	if d.currentState, err = NewSqliteCurrentStateTable(db); err != nil {
		return nil, err
	}
	if d.chunks, err = NewSqliteChunksTable(db); err != nil {
		return nil, err
	}
	if d.timeline, err = NewSqliteTimelineTable(db); err != nil {
		return nil, err
	}
	if d.pendingSends, err = NewSqlitePendingSendsTable(db); err != nil {
		return nil, err
	}
	if d.threadSummaries, err = NewSqliteThreadSummariesTable(db); err != nil {
		return nil, err
	}
	return d, nil
}

// Close the underlying database handle.
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) NewTransaction(ctx context.Context) (storage.Transaction, error) {
	txn, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	return &transaction{d: d, txn: txn}, nil
}

type transaction struct {
	d   *Database
	txn *sql.Tx
}

func (t *transaction) Commit() error   { return t.txn.Commit() }
func (t *transaction) Rollback() error { return t.txn.Rollback() }

func (t *transaction) SelectRoom(ctx context.Context, roomID string) (*types.Room, error) {
	return t.d.rooms.SelectRoom(ctx, t.txn, roomID)
}

func (t *transaction) UpsertRoom(ctx context.Context, room *types.Room) error {
	return t.d.rooms.UpsertRoom(ctx, t.txn, room)
}

func (t *transaction) SelectEvent(ctx context.Context, eventID string) (*types.Event, error) {
	return t.d.events.SelectEvent(ctx, t.txn, eventID)
}

func (t *transaction) UpsertEvent(ctx context.Context, event *types.Event) error {
	return t.d.events.UpsertEvent(ctx, t.txn, event)
}

func (t *transaction) SelectRoomEventIDs(ctx context.Context, roomID string) ([]string, error) {
	return t.d.events.SelectRoomEventIDs(ctx, t.txn, roomID)
}

func (t *transaction) UpsertCurrentState(ctx context.Context, entry types.CurrentStateEntry) error {
	return t.d.currentState.UpsertCurrentState(ctx, t.txn, entry)
}

func (t *transaction) SelectCurrentStateEvent(ctx context.Context, roomID, eventType, stateKey string) (*types.Event, error) {
	eventID, err := t.d.currentState.SelectCurrentStateEventID(ctx, t.txn, roomID, eventType, stateKey)
	if err != nil || eventID == "" {
		return nil, err
	}
	return t.d.events.SelectEvent(ctx, t.txn, eventID)
}

func (t *transaction) SelectCurrentStateEntries(ctx context.Context, roomID string) ([]types.CurrentStateEntry, error) {
	return t.d.currentState.SelectCurrentStateEntries(ctx, t.txn, roomID)
}

func (t *transaction) SelectChunks(ctx context.Context, roomID string) ([]*types.Chunk, error) {
	return t.d.chunks.SelectChunks(ctx, t.txn, roomID)
}

func (t *transaction) SelectLastForwardChunk(ctx context.Context, roomID string) (*types.Chunk, error) {
	return t.d.chunks.SelectLastForwardChunk(ctx, t.txn, roomID)
}

func (t *transaction) SelectThreadChunk(ctx context.Context, roomID, threadRootID string) (*types.Chunk, error) {
	return t.d.chunks.SelectThreadChunk(ctx, t.txn, roomID, threadRootID)
}

func (t *transaction) InsertChunk(ctx context.Context, chunk *types.Chunk) error {
	return t.d.chunks.InsertChunk(ctx, t.txn, chunk)
}

// DeleteRoomChunks detaches every chunk of the room, collects the event
// IDs its timeline links referenced, and purges those that the current
// state index does not still point at.
func (t *transaction) DeleteRoomChunks(ctx context.Context, roomID string) ([]string, error) {
	linked, err := t.d.timeline.SelectRoomTimelineEventIDs(ctx, t.txn, roomID)
	if err != nil {
		return nil, err
	}
	retained, err := t.d.currentState.SelectCurrentStateEventIDs(ctx, t.txn, roomID)
	if err != nil {
		return nil, err
	}
	if err := t.d.timeline.DeleteRoomTimeline(ctx, t.txn, roomID); err != nil {
		return nil, err
	}
	if err := t.d.chunks.DeleteRoomChunks(ctx, t.txn, roomID); err != nil {
		return nil, err
	}
	var purged []string
	seen := make(map[string]bool, len(linked))
	for _, eventID := range linked {
		if retained[eventID] || seen[eventID] {
			continue
		}
		seen[eventID] = true
		if err := t.d.events.DeleteEvent(ctx, t.txn, eventID); err != nil {
			return nil, err
		}
		purged = append(purged, eventID)
	}
	return purged, nil
}

func (t *transaction) AppendTimelineEvent(ctx context.Context, te *types.TimelineEvent) error {
	position, err := t.d.timeline.SelectNextPosition(ctx, t.txn, te.ChunkID)
	if err != nil {
		return err
	}
	te.Position = position
	return t.d.timeline.InsertTimelineEvent(ctx, t.txn, te)
}

func (t *transaction) HasTimelineEvent(ctx context.Context, chunkID, eventID string) (bool, error) {
	return t.d.timeline.SelectHasEvent(ctx, t.txn, chunkID, eventID)
}

func (t *transaction) SelectTimelineEvents(ctx context.Context, chunkID string) ([]types.TimelineEvent, error) {
	return t.d.timeline.SelectTimelineEvents(ctx, t.txn, chunkID)
}

func (t *transaction) SelectPendingSend(ctx context.Context, roomID, transactionID string) (*types.PendingSend, error) {
	return t.d.pendingSends.SelectPendingSend(ctx, t.txn, roomID, transactionID)
}

func (t *transaction) SelectPendingSends(ctx context.Context, roomID string) ([]*types.PendingSend, error) {
	return t.d.pendingSends.SelectPendingSends(ctx, t.txn, roomID)
}

func (t *transaction) UpsertPendingSend(ctx context.Context, ps *types.PendingSend) error {
	return t.d.pendingSends.UpsertPendingSend(ctx, t.txn, ps)
}

func (t *transaction) DeletePendingSend(ctx context.Context, roomID, transactionID string) error {
	return t.d.pendingSends.DeletePendingSend(ctx, t.txn, roomID, transactionID)
}

func (t *transaction) SelectThreadSummary(ctx context.Context, roomID, rootEventID string) (*types.ThreadSummary, error) {
	return t.d.threadSummaries.SelectThreadSummary(ctx, t.txn, roomID, rootEventID)
}

func (t *transaction) UpsertThreadSummary(ctx context.Context, summary *types.ThreadSummary) error {
	return t.d.threadSummaries.UpsertThreadSummary(ctx, t.txn, summary)
}

var _ storage.Database = &Database{}
var _ storage.Transaction = &transaction{}
