// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/matrix-org/util"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/roomsync/storage"
	"github.com/element-hq/roomsync/types"
)

type mergeResult struct {
	// newEventIDs lists the events appended to the room timeline in
	// this batch, in timeline order, for post-commit notification.
	newEventIDs   []string
	hasMembership bool
}

// mergeTimeline applies a room's timeline section. The chunk to append
// to is chosen once per batch: the existing last-forward chunk when the
// timeline is contiguous, or a fresh one after dropping all stored
// chunks when the server signalled a gap with the limited flag.
func (e *Engine) mergeTimeline(ctx context.Context, txn storage.Transaction, roomID string, timeline *types.TimelineSync, isInitialSync bool, batch memberBatch, now time.Time) (*mergeResult, error) {
	res := &mergeResult{}
	if len(timeline.Events) == 0 && !timeline.Limited {
		return res, nil
	}

	chunk, err := e.selectForwardChunk(ctx, txn, roomID, timeline)
	if err != nil {
		return nil, err
	}

	var queuedReplies []threadReply
	sawOwnEvent := false
	for i := range timeline.Events {
		se := &timeline.Events[i]
		if se.EventID == "" || se.Type == "" || se.Sender == "" {
			continue
		}
		ev := types.NewEvent(se, roomID, now)
		e.live.OnLiveEventReceived(ev, roomID, isInitialSync)

		if ev.Type == types.MRoomEncrypted && !isInitialSync {
			e.decryptEvent(ctx, ev, roomID)
		}

		if se.StateKey != nil {
			entry := types.CurrentStateEntry{
				RoomID:   roomID,
				Type:     se.Type,
				StateKey: *se.StateKey,
				EventID:  se.EventID,
			}
			if err = txn.UpsertCurrentState(ctx, entry); err != nil {
				return nil, err
			}
			e.crypto.OnStateEvent(roomID, ev)
			if se.Type == types.MRoomMember {
				res.hasMembership = true
				mc := se.MemberContext()
				batch.put(*se.StateKey, mc)
				e.members.StoreMemberContext(roomID, *se.StateKey, mc)
			}
		}

		senderContext, err := e.resolveMemberContext(ctx, txn, roomID, ev.SenderID, batch)
		if err != nil {
			return nil, err
		}

		if e.threads.ThreadMessagingEnabled() {
			ev.ThreadRootID = e.threads.ThreadRootID(se)
		}

		if err = txn.UpsertEvent(ctx, ev); err != nil {
			return nil, err
		}
		inserted, err := e.appendToChunk(ctx, txn, chunk.ChunkID, ev, senderContext)
		if err != nil {
			return nil, err
		}
		if inserted {
			res.newEventIDs = append(res.newEventIDs, ev.EventID)
			eventsInsertedCounter.Inc()
			if ev.ThreadRootID != "" {
				replied, err := e.appendToThreadChunk(ctx, txn, roomID, ev, senderContext)
				if err != nil {
					return nil, err
				}
				if replied {
					queuedReplies = append(queuedReplies, threadReply{
						rootEventID: ev.ThreadRootID,
						event:       ev,
					})
				}
			}
		}

		e.crypto.OnLiveEvent(roomID, ev, isInitialSync)

		if ev.SenderID == e.cfg.UserID {
			sawOwnEvent = true
			if err = e.reconcileLocalEcho(ctx, txn, roomID, se, ev); err != nil {
				return nil, err
			}
		}
	}

	if err = e.purgeSentEchoes(ctx, txn, roomID, sawOwnEvent, isInitialSync); err != nil {
		return nil, err
	}
	if err = e.flushThreadSummaries(ctx, txn, roomID, queuedReplies); err != nil {
		return nil, err
	}
	return res, nil
}

// selectForwardChunk picks the chunk new timeline events append to.
// The limited flag means the server skipped events between our last
// sync and this batch; stitching across that hole would misorder the
// timeline, so every stored chunk is dropped and a fresh last-forward
// chunk opened with the batch's prev_batch token for backfill.
func (e *Engine) selectForwardChunk(ctx context.Context, txn storage.Transaction, roomID string, timeline *types.TimelineSync) (*types.Chunk, error) {
	if !timeline.Limited {
		chunk, err := txn.SelectLastForwardChunk(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if chunk != nil {
			return chunk, nil
		}
	} else {
		purged, err := txn.DeleteRoomChunks(ctx, roomID)
		if err != nil {
			return nil, err
		}
		timelineGapsCounter.Inc()
		util.GetLogger(ctx).WithFields(logrus.Fields{
			"room_id": roomID,
			"purged":  len(purged),
		}).Debug("Timeline gap, dropping stored chunks")
	}
	chunk := &types.Chunk{
		ChunkID:       uuid.NewString(),
		RoomID:        roomID,
		PrevToken:     timeline.PrevBatch,
		IsLastForward: true,
	}
	if err := txn.InsertChunk(ctx, chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

// appendToChunk links the event into the chunk with the sender's
// display context snapshotted at insertion time. Re-delivered events
// are skipped, keeping replay of a non-limited batch idempotent.
func (e *Engine) appendToChunk(ctx context.Context, txn storage.Transaction, chunkID string, ev *types.Event, mc types.MemberContext) (bool, error) {
	exists, err := txn.HasTimelineEvent(ctx, chunkID, ev.EventID)
	if err != nil || exists {
		return false, err
	}
	te := &types.TimelineEvent{
		ChunkID:         chunkID,
		EventID:         ev.EventID,
		SenderName:      mc.DisplayName,
		SenderAvatarURL: mc.AvatarURL,
	}
	if err = txn.AppendTimelineEvent(ctx, te); err != nil {
		return false, err
	}
	return true, nil
}

// appendToThreadChunk mirrors a thread reply into the per-root thread
// chunk, creating it on first reply.
func (e *Engine) appendToThreadChunk(ctx context.Context, txn storage.Transaction, roomID string, ev *types.Event, mc types.MemberContext) (bool, error) {
	chunk, err := txn.SelectThreadChunk(ctx, roomID, ev.ThreadRootID)
	if err != nil {
		return false, err
	}
	if chunk == nil {
		chunk = &types.Chunk{
			ChunkID:      uuid.NewString(),
			RoomID:       roomID,
			ThreadRootID: ev.ThreadRootID,
		}
		if err = txn.InsertChunk(ctx, chunk); err != nil {
			return false, err
		}
	}
	return e.appendToChunk(ctx, txn, chunk.ChunkID, ev, mc)
}

// resolveMemberContext snapshots the sender's display profile for the
// timeline: a membership change applied in this batch wins, then the
// cache, then the stored current state.
func (e *Engine) resolveMemberContext(ctx context.Context, txn storage.Transaction, roomID, userID string, batch memberBatch) (types.MemberContext, error) {
	if mc, ok := batch[userID]; ok {
		return mc, nil
	}
	if mc, ok := e.members.GetMemberContext(roomID, userID); ok {
		return mc, nil
	}
	memberEvent, err := txn.SelectCurrentStateEvent(ctx, roomID, types.MRoomMember, userID)
	if err != nil || memberEvent == nil {
		return types.MemberContext{}, err
	}
	mc := memberContextFromEvent(memberEvent)
	e.members.StoreMemberContext(roomID, userID, mc)
	return mc, nil
}

func memberContextFromEvent(ev *types.Event) types.MemberContext {
	se := types.SyncEvent{Content: ev.Content()}
	return se.MemberContext()
}

// decryptEvent runs the decryptor and decorates the event with the
// outcome. Decryption never fails the batch: typed errors are attached
// to the event, and an interrupted or misbehaving decryptor leaves the
// event stored encrypted for lazy retry.
func (e *Engine) decryptEvent(ctx context.Context, ev *types.Event, roomID string) {
	result, err := e.decryptor.DecryptEvent(ctx, ev, roomID)
	if err == nil {
		ev.Decryption = result
		return
	}
	var derr *types.DecryptionError
	if errors.As(err, &derr) {
		ev.SetDecryptionError(derr)
		decryptionFailuresCounter.Inc()
		return
	}
	util.GetLogger(ctx).WithError(err).WithFields(logrus.Fields{
		"room_id":  roomID,
		"event_id": ev.EventID,
	}).Warn("Decryption interrupted, storing event encrypted")
}
