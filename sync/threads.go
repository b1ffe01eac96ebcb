// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"

	"github.com/element-hq/roomsync/storage"
	"github.com/element-hq/roomsync/types"
)

type threadReply struct {
	rootEventID string
	event       *types.Event
}

// flushThreadSummaries folds the batch's queued thread replies into
// their per-root summaries. Summaries are only maintained when the
// homeserver natively supports threading; without that, server-side
// reply counts cannot be trusted and the queue is discarded.
func (e *Engine) flushThreadSummaries(ctx context.Context, txn storage.Transaction, roomID string, replies []threadReply) error {
	if len(replies) == 0 || !e.threads.ServerThreadingCapability() {
		return nil
	}
	summaries := map[string]*types.ThreadSummary{}
	for _, reply := range replies {
		summary, ok := summaries[reply.rootEventID]
		if !ok {
			stored, err := txn.SelectThreadSummary(ctx, roomID, reply.rootEventID)
			if err != nil {
				return err
			}
			if stored == nil {
				stored = &types.ThreadSummary{
					RoomID:      roomID,
					RootEventID: reply.rootEventID,
				}
			}
			summary = stored
			summaries[reply.rootEventID] = summary
		}
		ev := reply.event
		if ev.OriginServerTS >= summary.LatestReplyTS {
			summary.LatestReplyID = ev.EventID
			summary.LatestReplyTS = ev.OriginServerTS
		}
		summary.AddParticipant(ev.SenderID)
		summary.ReplyCount++
	}
	for _, summary := range summaries {
		if err := txn.UpsertThreadSummary(ctx, summary); err != nil {
			return err
		}
	}
	return nil
}
