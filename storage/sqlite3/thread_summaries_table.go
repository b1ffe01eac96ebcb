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

const threadSummariesSchema = `
CREATE TABLE IF NOT EXISTS roomsync_thread_summaries (
	room_id TEXT NOT NULL,
	root_event_id TEXT NOT NULL,
	latest_reply_id TEXT NOT NULL DEFAULT '',
	latest_reply_ts BIGINT NOT NULL DEFAULT 0,
	participant_ids TEXT NOT NULL DEFAULT '[]',
	reply_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (room_id, root_event_id)
);
`

const upsertThreadSummarySQL = `
	INSERT INTO roomsync_thread_summaries
		(room_id, root_event_id, latest_reply_id, latest_reply_ts, participant_ids, reply_count)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (room_id, root_event_id) DO UPDATE SET
		latest_reply_id = $3, latest_reply_ts = $4, participant_ids = $5, reply_count = $6
`

const selectThreadSummarySQL = `
	SELECT room_id, root_event_id, latest_reply_id, latest_reply_ts, participant_ids, reply_count
	FROM roomsync_thread_summaries WHERE room_id = $1 AND root_event_id = $2
`

type threadSummariesStatements struct {
	upsertThreadSummaryStmt *sql.Stmt
	selectThreadSummaryStmt *sql.Stmt
}

func NewSqliteThreadSummariesTable(db *sql.DB) (tables.ThreadSummaries, error) {
	s := &threadSummariesStatements{}
	if _, err := db.Exec(threadSummariesSchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertThreadSummaryStmt, upsertThreadSummarySQL},
		{&s.selectThreadSummaryStmt, selectThreadSummarySQL},
	}.Prepare(db)
}

func (s *threadSummariesStatements) UpsertThreadSummary(
	ctx context.Context, txn *sql.Tx, summary *types.ThreadSummary,
) error {
	participants, err := json.Marshal(summary.ParticipantIDs)
	if err != nil {
		return err
	}
	stmt := sqlutil.TxStmt(txn, s.upsertThreadSummaryStmt)
	_, err = stmt.ExecContext(ctx,
		summary.RoomID,
		summary.RootEventID,
		summary.LatestReplyID,
		int64(summary.LatestReplyTS),
		string(participants),
		summary.ReplyCount,
	)
	return err
}

func (s *threadSummariesStatements) SelectThreadSummary(
	ctx context.Context, txn *sql.Tx, roomID, rootEventID string,
) (*types.ThreadSummary, error) {
	stmt := sqlutil.TxStmt(txn, s.selectThreadSummaryStmt)
	var summary types.ThreadSummary
	var latestTS int64
	var participants string
	err := stmt.QueryRowContext(ctx, roomID, rootEventID).Scan(
		&summary.RoomID,
		&summary.RootEventID,
		&summary.LatestReplyID,
		&latestTS,
		&participants,
		&summary.ReplyCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	summary.LatestReplyTS = spec.Timestamp(latestTS)
	if err := json.Unmarshal([]byte(participants), &summary.ParticipantIDs); err != nil {
		return nil, err
	}
	return &summary, nil
}
