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

const roomsSchema = `
CREATE TABLE IF NOT EXISTS roomsync_rooms (
	room_id TEXT NOT NULL PRIMARY KEY,
	membership TEXT NOT NULL
);
`

const upsertRoomSQL = `
	INSERT INTO roomsync_rooms (room_id, membership)
	VALUES ($1, $2)
	ON CONFLICT (room_id) DO UPDATE SET membership = $2
`

const selectRoomSQL = `
	SELECT room_id, membership FROM roomsync_rooms WHERE room_id = $1
`

type roomsStatements struct {
	upsertRoomStmt *sql.Stmt
	selectRoomStmt *sql.Stmt
}

func NewSqliteRoomsTable(db *sql.DB) (tables.Rooms, error) {
	s := &roomsStatements{}
	if _, err := db.Exec(roomsSchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertRoomStmt, upsertRoomSQL},
		{&s.selectRoomStmt, selectRoomSQL},
	}.Prepare(db)
}

func (s *roomsStatements) UpsertRoom(
	ctx context.Context, txn *sql.Tx, room *types.Room,
) error {
	stmt := sqlutil.TxStmt(txn, s.upsertRoomStmt)
	_, err := stmt.ExecContext(ctx, room.RoomID, room.Membership)
	return err
}

func (s *roomsStatements) SelectRoom(
	ctx context.Context, txn *sql.Tx, roomID string,
) (*types.Room, error) {
	stmt := sqlutil.TxStmt(txn, s.selectRoomStmt)
	var room types.Room
	err := stmt.QueryRowContext(ctx, roomID).Scan(&room.RoomID, &room.Membership)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}
