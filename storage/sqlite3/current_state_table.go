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

const currentStateSchema = `
CREATE TABLE IF NOT EXISTS roomsync_current_state (
	room_id TEXT NOT NULL,
	type TEXT NOT NULL,
	state_key TEXT NOT NULL,
	event_id TEXT NOT NULL,
	PRIMARY KEY (room_id, type, state_key)
);
`

const upsertCurrentStateSQL = `
	INSERT INTO roomsync_current_state (room_id, type, state_key, event_id)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (room_id, type, state_key) DO UPDATE SET event_id = $4
`

const selectCurrentStateEventIDSQL = `
	SELECT event_id FROM roomsync_current_state
	WHERE room_id = $1 AND type = $2 AND state_key = $3
`

const selectCurrentStateEntriesSQL = `
	SELECT room_id, type, state_key, event_id FROM roomsync_current_state
	WHERE room_id = $1
`

const selectCurrentStateEventIDsSQL = `
	SELECT event_id FROM roomsync_current_state WHERE room_id = $1
`

type currentStateStatements struct {
	upsertCurrentStateStmt         *sql.Stmt
	selectCurrentStateEventIDStmt  *sql.Stmt
	selectCurrentStateEntriesStmt  *sql.Stmt
	selectCurrentStateEventIDsStmt *sql.Stmt
}

func NewSqliteCurrentStateTable(db *sql.DB) (tables.CurrentState, error) {
	s := &currentStateStatements{}
	if _, err := db.Exec(currentStateSchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertCurrentStateStmt, upsertCurrentStateSQL},
		{&s.selectCurrentStateEventIDStmt, selectCurrentStateEventIDSQL},
		{&s.selectCurrentStateEntriesStmt, selectCurrentStateEntriesSQL},
		{&s.selectCurrentStateEventIDsStmt, selectCurrentStateEventIDsSQL},
	}.Prepare(db)
}

func (s *currentStateStatements) UpsertCurrentState(
	ctx context.Context, txn *sql.Tx, entry types.CurrentStateEntry,
) error {
	stmt := sqlutil.TxStmt(txn, s.upsertCurrentStateStmt)
	_, err := stmt.ExecContext(ctx, entry.RoomID, entry.Type, entry.StateKey, entry.EventID)
	return err
}

func (s *currentStateStatements) SelectCurrentStateEventID(
	ctx context.Context, txn *sql.Tx, roomID, eventType, stateKey string,
) (string, error) {
	stmt := sqlutil.TxStmt(txn, s.selectCurrentStateEventIDStmt)
	var eventID string
	err := stmt.QueryRowContext(ctx, roomID, eventType, stateKey).Scan(&eventID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return eventID, err
}

func (s *currentStateStatements) SelectCurrentStateEntries(
	ctx context.Context, txn *sql.Tx, roomID string,
) ([]types.CurrentStateEntry, error) {
	stmt := sqlutil.TxStmt(txn, s.selectCurrentStateEntriesStmt)
	rows, err := stmt.QueryContext(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.CurrentStateEntry
	for rows.Next() {
		var entry types.CurrentStateEntry
		if err := rows.Scan(&entry.RoomID, &entry.Type, &entry.StateKey, &entry.EventID); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *currentStateStatements) SelectCurrentStateEventIDs(
	ctx context.Context, txn *sql.Tx, roomID string,
) (map[string]bool, error) {
	stmt := sqlutil.TxStmt(txn, s.selectCurrentStateEventIDsStmt)
	rows, err := stmt.QueryContext(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	eventIDs := make(map[string]bool)
	for rows.Next() {
		var eventID string
		if err := rows.Scan(&eventID); err != nil {
			return nil, err
		}
		eventIDs[eventID] = true
	}
	return eventIDs, rows.Err()
}
