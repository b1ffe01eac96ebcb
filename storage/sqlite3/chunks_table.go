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

const chunksSchema = `
CREATE TABLE IF NOT EXISTS roomsync_chunks (
	chunk_id TEXT NOT NULL PRIMARY KEY,
	room_id TEXT NOT NULL,
	prev_token TEXT NOT NULL DEFAULT '',
	is_last_forward INTEGER NOT NULL DEFAULT 0,
	thread_root_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS roomsync_chunks_room_idx ON roomsync_chunks(room_id);
`

const insertChunkSQL = `
	INSERT INTO roomsync_chunks (chunk_id, room_id, prev_token, is_last_forward, thread_root_id)
	VALUES ($1, $2, $3, $4, $5)
`

const selectChunksSQL = `
	SELECT chunk_id, room_id, prev_token, is_last_forward, thread_root_id
	FROM roomsync_chunks WHERE room_id = $1
`

const selectLastForwardChunkSQL = `
	SELECT chunk_id, room_id, prev_token, is_last_forward, thread_root_id
	FROM roomsync_chunks WHERE room_id = $1 AND is_last_forward = 1
`

const selectThreadChunkSQL = `
	SELECT chunk_id, room_id, prev_token, is_last_forward, thread_root_id
	FROM roomsync_chunks WHERE room_id = $1 AND thread_root_id = $2
`

const deleteRoomChunksSQL = `
	DELETE FROM roomsync_chunks WHERE room_id = $1
`

type chunksStatements struct {
	insertChunkStmt            *sql.Stmt
	selectChunksStmt           *sql.Stmt
	selectLastForwardChunkStmt *sql.Stmt
	selectThreadChunkStmt      *sql.Stmt
	deleteRoomChunksStmt       *sql.Stmt
}

func NewSqliteChunksTable(db *sql.DB) (tables.Chunks, error) {
	s := &chunksStatements{}
	if _, err := db.Exec(chunksSchema); err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.insertChunkStmt, insertChunkSQL},
		{&s.selectChunksStmt, selectChunksSQL},
		{&s.selectLastForwardChunkStmt, selectLastForwardChunkSQL},
		{&s.selectThreadChunkStmt, selectThreadChunkSQL},
		{&s.deleteRoomChunksStmt, deleteRoomChunksSQL},
	}.Prepare(db)
}

func (s *chunksStatements) InsertChunk(
	ctx context.Context, txn *sql.Tx, chunk *types.Chunk,
) error {
	isLastForward := 0
	if chunk.IsLastForward {
		isLastForward = 1
	}
	stmt := sqlutil.TxStmt(txn, s.insertChunkStmt)
	_, err := stmt.ExecContext(ctx,
		chunk.ChunkID, chunk.RoomID, chunk.PrevToken, isLastForward, chunk.ThreadRootID,
	)
	return err
}

func scanChunk(scan func(dest ...interface{}) error) (*types.Chunk, error) {
	var chunk types.Chunk
	var isLastForward int
	err := scan(&chunk.ChunkID, &chunk.RoomID, &chunk.PrevToken, &isLastForward, &chunk.ThreadRootID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	chunk.IsLastForward = isLastForward != 0
	return &chunk, nil
}

func (s *chunksStatements) SelectChunks(
	ctx context.Context, txn *sql.Tx, roomID string,
) ([]*types.Chunk, error) {
	stmt := sqlutil.TxStmt(txn, s.selectChunksStmt)
	rows, err := stmt.QueryContext(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*types.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *chunksStatements) SelectLastForwardChunk(
	ctx context.Context, txn *sql.Tx, roomID string,
) (*types.Chunk, error) {
	stmt := sqlutil.TxStmt(txn, s.selectLastForwardChunkStmt)
	return scanChunk(stmt.QueryRowContext(ctx, roomID).Scan)
}

func (s *chunksStatements) SelectThreadChunk(
	ctx context.Context, txn *sql.Tx, roomID, threadRootID string,
) (*types.Chunk, error) {
	stmt := sqlutil.TxStmt(txn, s.selectThreadChunkStmt)
	return scanChunk(stmt.QueryRowContext(ctx, roomID, threadRootID).Scan)
}

func (s *chunksStatements) DeleteRoomChunks(
	ctx context.Context, txn *sql.Tx, roomID string,
) error {
	stmt := sqlutil.TxStmt(txn, s.deleteRoomChunksStmt)
	_, err := stmt.ExecContext(ctx, roomID)
	return err
}
