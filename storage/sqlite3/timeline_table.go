// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sqlite3

import (
	"context"
	"database/sql"

	"github.com/element-hq/roomsync/internal/sqlutil"
	"github.com/element-hq/roomsync/storage/tables"
	"github.com/element-hq/roomsync/types"
)

const timelineSchema = `
CREATE TABLE IF NOT EXISTS roomsync_timeline (
	chunk_id TEXT NOT NULL,
	event_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	sender_name TEXT NOT NULL DEFAULT '',
	sender_avatar_url TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (chunk_id, event_id)
);
`

const insertTimelineEventSQL = `
	INSERT INTO roomsync_timeline (chunk_id, event_id, position, sender_name, sender_avatar_url)
	VALUES ($1, $2, $3, $4, $5)
`

const selectNextPositionSQL = `
	SELECT COALESCE(MAX(position) + 1, 0) FROM roomsync_timeline WHERE chunk_id = $1
`

const selectHasEventSQL = `
	SELECT COUNT(1) FROM roomsync_timeline WHERE chunk_id = $1 AND event_id = $2
`

const selectTimelineEventsSQL = `
	SELECT chunk_id, event_id, position, sender_name, sender_avatar_url
	FROM roomsync_timeline WHERE chunk_id = $1 ORDER BY position ASC
`

const selectRoomTimelineEventIDsSQL = `
	SELECT t.event_id FROM roomsync_timeline AS t
	JOIN roomsync_chunks AS c ON c.chunk_id = t.chunk_id
	WHERE c.room_id = $1
`

const deleteRoomTimelineSQL = `
	DELETE FROM roomsync_timeline WHERE chunk_id IN (
		SELECT chunk_id FROM roomsync_chunks WHERE room_id = $1
	)
`

type timelineStatements struct {
	insertTimelineEventStmt        *sql.Stmt
	selectNextPositionStmt         *sql.Stmt
	selectHasEventStmt             *sql.Stmt
	selectTimelineEventsStmt       *sql.Stmt
	selectRoomTimelineEventIDsStmt *sql.Stmt
	deleteRoomTimelineStmt         *sql.Stmt
}

func NewSqliteTimelineTable(db *sql.DB) (tables.Timeline, error) {
	s := &timelineStatements{}
	if _, err := db.Exec(timelineSchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.insertTimelineEventStmt, insertTimelineEventSQL},
		{&s.selectNextPositionStmt, selectNextPositionSQL},
		{&s.selectHasEventStmt, selectHasEventSQL},
		{&s.selectTimelineEventsStmt, selectTimelineEventsSQL},
		{&s.selectRoomTimelineEventIDsStmt, selectRoomTimelineEventIDsSQL},
		{&s.deleteRoomTimelineStmt, deleteRoomTimelineSQL},
	}.Prepare(db)
}

func (s *timelineStatements) InsertTimelineEvent(
	ctx context.Context, txn *sql.Tx, te *types.TimelineEvent,
) error {
	stmt := sqlutil.TxStmt(txn, s.insertTimelineEventStmt)
	_, err := stmt.ExecContext(ctx,
		te.ChunkID, te.EventID, te.Position, te.SenderName, te.SenderAvatarURL,
	)
	return err
}

func (s *timelineStatements) SelectNextPosition(
	ctx context.Context, txn *sql.Tx, chunkID string,
) (int, error) {
	stmt := sqlutil.TxStmt(txn, s.selectNextPositionStmt)
	var position int
	err := stmt.QueryRowContext(ctx, chunkID).Scan(&position)
	return position, err
}

func (s *timelineStatements) SelectHasEvent(
	ctx context.Context, txn *sql.Tx, chunkID, eventID string,
) (bool, error) {
	stmt := sqlutil.TxStmt(txn, s.selectHasEventStmt)
	var count int
	err := stmt.QueryRowContext(ctx, chunkID, eventID).Scan(&count)
	return count > 0, err
}

func (s *timelineStatements) SelectTimelineEvents(
	ctx context.Context, txn *sql.Tx, chunkID string,
) ([]types.TimelineEvent, error) {
	stmt := sqlutil.TxStmt(txn, s.selectTimelineEventsStmt)
	rows, err := stmt.QueryContext(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []types.TimelineEvent
	for rows.Next() {
		var te types.TimelineEvent
		if err := rows.Scan(&te.ChunkID, &te.EventID, &te.Position, &te.SenderName, &te.SenderAvatarURL); err != nil {
			return nil, err
		}
		events = append(events, te)
	}
	return events, rows.Err()
}

func (s *timelineStatements) SelectRoomTimelineEventIDs(
	ctx context.Context, txn *sql.Tx, roomID string,
) ([]string, error) {
	stmt := sqlutil.TxStmt(txn, s.selectRoomTimelineEventIDsStmt)
	rows, err := stmt.QueryContext(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eventIDs []string
	for rows.Next() {
		var eventID string
		if err := rows.Scan(&eventID); err != nil {
			return nil, err
		}
		eventIDs = append(eventIDs, eventID)
	}
	return eventIDs, rows.Err()
}

func (s *timelineStatements) DeleteRoomTimeline(
	ctx context.Context, txn *sql.Tx, roomID string,
) error {
	stmt := sqlutil.TxStmt(txn, s.deleteRoomTimelineStmt)
	_, err := stmt.ExecContext(ctx, roomID)
	return err
}
