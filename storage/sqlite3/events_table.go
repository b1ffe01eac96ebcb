// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sqlite3

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/element-hq/roomsync/internal/sqlutil"
	"github.com/element-hq/roomsync/storage/tables"
	"github.com/element-hq/roomsync/types"
	"github.com/matrix-org/gomatrixserverlib/spec"
)

const eventsSchema = `
CREATE TABLE IF NOT EXISTS roomsync_events (
	event_id TEXT NOT NULL PRIMARY KEY,
	room_id TEXT NOT NULL,
	type TEXT NOT NULL,
	sender TEXT NOT NULL,
	state_key TEXT,
	origin_server_ts BIGINT NOT NULL,
	age_local_ts BIGINT NOT NULL,
	json BLOB NOT NULL,
	decryption_result BLOB,
	decryption_error_code TEXT NOT NULL DEFAULT '',
	decryption_error_reason TEXT NOT NULL DEFAULT '',
	thread_root_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS roomsync_events_room_idx ON roomsync_events(room_id);
`

const upsertEventSQL = `
	INSERT INTO roomsync_events
		(event_id, room_id, type, sender, state_key, origin_server_ts, age_local_ts,
		 json, decryption_result, decryption_error_code, decryption_error_reason, thread_root_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (event_id) DO UPDATE SET
		room_id = $2, type = $3, sender = $4, state_key = $5, origin_server_ts = $6,
		age_local_ts = $7, json = $8, decryption_result = $9,
		decryption_error_code = $10, decryption_error_reason = $11, thread_root_id = $12
`

const selectEventSQL = `
	SELECT event_id, room_id, type, sender, state_key, origin_server_ts, age_local_ts,
		   json, decryption_result, decryption_error_code, decryption_error_reason, thread_root_id
	FROM roomsync_events WHERE event_id = $1
`

const selectRoomEventIDsSQL = `
	SELECT event_id FROM roomsync_events WHERE room_id = $1
`

const deleteEventSQL = `
	DELETE FROM roomsync_events WHERE event_id = $1
`

type eventsStatements struct {
	upsertEventStmt        *sql.Stmt
	selectEventStmt        *sql.Stmt
	selectRoomEventIDsStmt *sql.Stmt
	deleteEventStmt        *sql.Stmt
}

func NewSqliteEventsTable(db *sql.DB) (tables.Events, error) {
	s := &eventsStatements{}
	if _, err := db.Exec(eventsSchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertEventStmt, upsertEventSQL},
		{&s.selectEventStmt, selectEventSQL},
		{&s.selectRoomEventIDsStmt, selectRoomEventIDsSQL},
		{&s.deleteEventStmt, deleteEventSQL},
	}.Prepare(db)
}

func (s *eventsStatements) UpsertEvent(
	ctx context.Context, txn *sql.Tx, event *types.Event,
) error {
	var stateKey interface{}
	if event.StateKey != nil {
		stateKey = *event.StateKey
	}
	var decryption []byte
	if event.Decryption != nil {
		var err error
		if decryption, err = json.Marshal(event.Decryption); err != nil {
			return err
		}
	}
	stmt := sqlutil.TxStmt(txn, s.upsertEventStmt)
	_, err := stmt.ExecContext(ctx,
		event.EventID,
		event.RoomID,
		event.Type,
		event.SenderID,
		stateKey,
		int64(event.OriginServerTS),
		int64(event.AgeLocalTS),
		event.JSON,
		decryption,
		event.DecryptionErrorCode,
		event.DecryptionErrorReason,
		event.ThreadRootID,
	)
	return err
}

func (s *eventsStatements) SelectEvent(
	ctx context.Context, txn *sql.Tx, eventID string,
) (*types.Event, error) {
	stmt := sqlutil.TxStmt(txn, s.selectEventStmt)
	var event types.Event
	var stateKey sql.NullString
	var originTS, ageLocalTS int64
	var decryption []byte
	err := stmt.QueryRowContext(ctx, eventID).Scan(
		&event.EventID,
		&event.RoomID,
		&event.Type,
		&event.SenderID,
		&stateKey,
		&originTS,
		&ageLocalTS,
		&event.JSON,
		&decryption,
		&event.DecryptionErrorCode,
		&event.DecryptionErrorReason,
		&event.ThreadRootID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if stateKey.Valid {
		sk := stateKey.String
		event.StateKey = &sk
	}
	event.OriginServerTS = spec.Timestamp(originTS)
	event.AgeLocalTS = spec.Timestamp(ageLocalTS)
	if len(decryption) > 0 {
		var result types.DecryptionResult
		if err := json.Unmarshal(decryption, &result); err != nil {
			return nil, err
		}
		event.Decryption = &result
	}
	return &event, nil
}

func (s *eventsStatements) SelectRoomEventIDs(
	ctx context.Context, txn *sql.Tx, roomID string,
) ([]string, error) {
	stmt := sqlutil.TxStmt(txn, s.selectRoomEventIDsStmt)
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

func (s *eventsStatements) DeleteEvent(
	ctx context.Context, txn *sql.Tx, eventID string,
) error {
	stmt := sqlutil.TxStmt(txn, s.deleteEventStmt)
	_, err := stmt.ExecContext(ctx, eventID)
	return err
}
