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
)

const pendingSendsSchema = `
CREATE TABLE IF NOT EXISTS roomsync_pending_sends (
	room_id TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	send_state INTEGER NOT NULL,
	event_json BLOB,
	PRIMARY KEY (room_id, transaction_id)
);
`

const upsertPendingSendSQL = `
	INSERT INTO roomsync_pending_sends (room_id, transaction_id, send_state, event_json)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (room_id, transaction_id) DO UPDATE SET send_state = $3, event_json = $4
`

const selectPendingSendSQL = `
	SELECT room_id, transaction_id, send_state, event_json
	FROM roomsync_pending_sends WHERE room_id = $1 AND transaction_id = $2
`

const selectPendingSendsSQL = `
	SELECT room_id, transaction_id, send_state, event_json
	FROM roomsync_pending_sends WHERE room_id = $1
`

const deletePendingSendSQL = `
	DELETE FROM roomsync_pending_sends WHERE room_id = $1 AND transaction_id = $2
`

type pendingSendsStatements struct {
	upsertPendingSendStmt  *sql.Stmt
	selectPendingSendStmt  *sql.Stmt
	selectPendingSendsStmt *sql.Stmt
	deletePendingSendStmt  *sql.Stmt
}

func NewSqlitePendingSendsTable(db *sql.DB) (tables.PendingSends, error) {
	s := &pendingSendsStatements{}
	if _, err := db.Exec(pendingSendsSchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertPendingSendStmt, upsertPendingSendSQL},
		{&s.selectPendingSendStmt, selectPendingSendSQL},
		{&s.selectPendingSendsStmt, selectPendingSendsSQL},
		{&s.deletePendingSendStmt, deletePendingSendSQL},
	}.Prepare(db)
}

// pendingEventJSON is the serialized form of the speculative event,
// including any decryption result computed at send time.
type pendingEventJSON struct {
	Event      *types.Event            `json:"event"`
	Decryption *types.DecryptionResult `json:"decryption,omitempty"`
}

func (s *pendingSendsStatements) UpsertPendingSend(
	ctx context.Context, txn *sql.Tx, ps *types.PendingSend,
) error {
	var eventJSON []byte
	if ps.Event != nil {
		var err error
		if eventJSON, err = json.Marshal(pendingEventJSON{Event: ps.Event, Decryption: ps.Event.Decryption}); err != nil {
			return err
		}
	}
	stmt := sqlutil.TxStmt(txn, s.upsertPendingSendStmt)
	_, err := stmt.ExecContext(ctx, ps.RoomID, ps.TransactionID, int(ps.State), eventJSON)
	return err
}

func scanPendingSend(scan func(dest ...interface{}) error) (*types.PendingSend, error) {
	var ps types.PendingSend
	var sendState int
	var eventJSON []byte
	err := scan(&ps.RoomID, &ps.TransactionID, &sendState, &eventJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ps.State = types.SendState(sendState)
	if len(eventJSON) > 0 {
		var pe pendingEventJSON
		if err := json.Unmarshal(eventJSON, &pe); err != nil {
			return nil, err
		}
		ps.Event = pe.Event
		if ps.Event != nil && ps.Event.Decryption == nil {
			ps.Event.Decryption = pe.Decryption
		}
	}
	return &ps, nil
}

func (s *pendingSendsStatements) SelectPendingSend(
	ctx context.Context, txn *sql.Tx, roomID, transactionID string,
) (*types.PendingSend, error) {
	stmt := sqlutil.TxStmt(txn, s.selectPendingSendStmt)
	return scanPendingSend(stmt.QueryRowContext(ctx, roomID, transactionID).Scan)
}

func (s *pendingSendsStatements) SelectPendingSends(
	ctx context.Context, txn *sql.Tx, roomID string,
) ([]*types.PendingSend, error) {
	stmt := sqlutil.TxStmt(txn, s.selectPendingSendsStmt)
	rows, err := stmt.QueryContext(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.PendingSend
	for rows.Next() {
		ps, err := scanPendingSend(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (s *pendingSendsStatements) DeletePendingSend(
	ctx context.Context, txn *sql.Tx, roomID, transactionID string,
) error {
	stmt := sqlutil.TxStmt(txn, s.deletePendingSendStmt)
	_, err := stmt.ExecContext(ctx, roomID, transactionID)
	return err
}
