// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"
	"testing"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-hq/roomsync/storage"
	"github.com/element-hq/roomsync/types"
)

func TestProcessJoinedRoomAppendsAndNotifies(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!r:test"

	h.process(t, joinedResponse(roomID, messageEvent(t, "$e0", "@bob:test", "hello")), false)
	h.process(t, joinedResponse(roomID, messageEvent(t, "$e1", "@bob:test", "again")), false)

	// Both batches were contiguous, so the room has exactly one chunk
	// holding both events in order.
	h.inspect(t, func(txn storage.Transaction) {
		chunks, err := txn.SelectChunks(context.Background(), roomID)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.True(t, chunks[0].IsLastForward)

		timeline, err := txn.SelectTimelineEvents(context.Background(), chunks[0].ChunkID)
		require.NoError(t, err)
		require.Len(t, timeline, 2)
		assert.Equal(t, "$e0", timeline[0].EventID)
		assert.Equal(t, "$e1", timeline[1].EventID)

		room, err := txn.SelectRoom(context.Background(), roomID)
		require.NoError(t, err)
		require.NotNil(t, room)
		assert.Equal(t, spec.Join, room.Membership)
	})

	// One notification per processed batch, carrying only that batch's
	// new events.
	require.Len(t, h.live.notified[roomID], 2)
	assert.Equal(t, []string{"$e0"}, h.live.notified[roomID][0])
	assert.Equal(t, []string{"$e1"}, h.live.notified[roomID][1])
	assert.Equal(t, []string{"$e0", "$e1"}, h.live.received)
}

func TestProcessInvitedRoomRecordsInviter(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!invite:test"

	res := &types.SyncResponse{
		Rooms: types.RoomsSyncResponse{
			Invite: map[string]types.InvitedRoomSync{
				roomID: {
					InviteState: types.StateSync{Events: []types.SyncEvent{
						memberEvent(t, "$inv", "@bob:test", testUserID, "invite", ""),
					}},
				},
			},
		},
	}
	h.process(t, res, false)

	update, ok := h.summary.lastFor(roomID)
	require.True(t, ok)
	assert.Equal(t, spec.Invite, update.Membership)
	assert.Equal(t, "@bob:test", update.InviterID)
	assert.True(t, update.UpdateMembers)

	h.inspect(t, func(txn storage.Transaction) {
		room, err := txn.SelectRoom(context.Background(), roomID)
		require.NoError(t, err)
		require.NotNil(t, room)
		assert.Equal(t, spec.Invite, room.Membership)
	})
}

func TestStrippedInviteStateWithoutEventIDsIsSkipped(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!stripped:test"

	stripped := memberEvent(t, "", "@bob:test", testUserID, "invite", "")
	nameEvent := types.SyncEvent{
		Type:     "m.room.name",
		Sender:   "@bob:test",
		StateKey: strptr(""),
		Content:  rawContent(t, map[string]interface{}{"name": "Secret"}),
	}
	res := &types.SyncResponse{
		Rooms: types.RoomsSyncResponse{
			Invite: map[string]types.InvitedRoomSync{
				roomID: {InviteState: types.StateSync{Events: []types.SyncEvent{stripped, nameEvent}}},
			},
		},
	}
	h.process(t, res, false)

	h.inspect(t, func(txn storage.Transaction) {
		entries, err := txn.SelectCurrentStateEntries(context.Background(), roomID)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestInviteToJoinDiscardsInviteChunks(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!upgrade:test"

	// Seed an invited room with a stored chunk, as if a preview had
	// been paginated while the invite was pending.
	txn, err := h.db.NewTransaction(context.Background())
	require.NoError(t, err)
	require.NoError(t, txn.UpsertRoom(context.Background(), &types.Room{RoomID: roomID, Membership: spec.Invite}))
	require.NoError(t, txn.InsertChunk(context.Background(), &types.Chunk{
		ChunkID: "preview", RoomID: roomID, IsLastForward: true,
	}))
	require.NoError(t, txn.Commit())

	h.process(t, joinedResponse(roomID, messageEvent(t, "$joined", "@bob:test", "welcome")), false)

	h.inspect(t, func(txn storage.Transaction) {
		chunks, err := txn.SelectChunks(context.Background(), roomID)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.NotEqual(t, "preview", chunks[0].ChunkID)

		room, err := txn.SelectRoom(context.Background(), roomID)
		require.NoError(t, err)
		assert.Equal(t, spec.Join, room.Membership)
	})
}

func TestLeftRoomDeletesChunksAndKeepsState(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!bye:test"

	h.process(t, joinedResponse(roomID,
		memberEvent(t, "$m0", testUserID, testUserID, "join", "Alice"),
		messageEvent(t, "$e0", "@bob:test", "hi"),
	), false)

	res := &types.SyncResponse{
		Rooms: types.RoomsSyncResponse{
			Leave: map[string]types.LeftRoomSync{
				roomID: {
					Timeline: types.TimelineSync{Events: []types.SyncEvent{
						memberEvent(t, "$m1", testUserID, testUserID, "leave", ""),
					}},
				},
			},
		},
	}
	h.process(t, res, false)

	h.inspect(t, func(txn storage.Transaction) {
		chunks, err := txn.SelectChunks(context.Background(), roomID)
		require.NoError(t, err)
		assert.Empty(t, chunks)

		// The membership state outlives the timeline.
		entry, err := txn.SelectCurrentStateEvent(context.Background(), roomID, types.MRoomMember, testUserID)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "$m1", entry.EventID)

		room, err := txn.SelectRoom(context.Background(), roomID)
		require.NoError(t, err)
		assert.Equal(t, spec.Leave, room.Membership)
	})
}

func TestLeftRoomBanIsRecorded(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!banned:test"

	res := &types.SyncResponse{
		Rooms: types.RoomsSyncResponse{
			Leave: map[string]types.LeftRoomSync{
				roomID: {
					State: types.StateSync{Events: []types.SyncEvent{
						memberEvent(t, "$ban", "@admin:test", testUserID, "ban", ""),
					}},
				},
			},
		},
	}
	h.process(t, res, false)

	h.inspect(t, func(txn storage.Transaction) {
		room, err := txn.SelectRoom(context.Background(), roomID)
		require.NoError(t, err)
		require.NotNil(t, room)
		assert.Equal(t, "ban", room.Membership)
	})
}

func TestPartitionRoomsOrdersCategories(t *testing.T) {
	res := &types.SyncResponse{
		Rooms: types.RoomsSyncResponse{
			Join:   map[string]types.JoinedRoomSync{"!b:test": {}, "!a:test": {}},
			Invite: map[string]types.InvitedRoomSync{"!c:test": {}},
			Leave:  map[string]types.LeftRoomSync{"!d:test": {}},
		},
	}
	deltas := partitionRooms(res)
	require.Len(t, deltas, 4)
	assert.Equal(t, "!a:test", deltas[0].RoomID)
	assert.Equal(t, "!b:test", deltas[1].RoomID)
	assert.Equal(t, types.RoomCategoryInvited, deltas[2].Category)
	assert.Equal(t, types.RoomCategoryLeft, deltas[3].Category)
}

func TestInitialSyncBatching(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRoomsPerBatch = 2
	h := newTestHarness(t, cfg)

	deltas := make([]types.RoomDelta, 5)
	for i := range deltas {
		deltas[i] = types.RoomDelta{Category: types.RoomCategoryJoined}
	}

	batches := h.engine.batchDeltas(deltas, true)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
	assert.Len(t, batches[2], 1)

	// Incremental syncs are never split.
	batches = h.engine.batchDeltas(deltas, false)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 5)
}

func TestInitialSyncBatchedMatchesUnbatched(t *testing.T) {
	build := func() *types.SyncResponse {
		join := map[string]types.JoinedRoomSync{}
		for _, roomID := range []string{"!one:test", "!two:test", "!three:test"} {
			join[roomID] = types.JoinedRoomSync{
				Timeline: types.TimelineSync{
					Events:    []types.SyncEvent{messageEvent(t, "$first"+roomID, "@bob:test", "hi")},
					Limited:   true,
					PrevBatch: "tok_" + roomID,
				},
			}
		}
		return &types.SyncResponse{NextBatch: "s1", Rooms: types.RoomsSyncResponse{Join: join}}
	}

	cfgBatched := testConfig()
	cfgBatched.MaxRoomsPerBatch = 1
	batched := newTestHarness(t, cfgBatched)
	unbatched := newTestHarness(t, nil)

	batched.process(t, build(), true)
	unbatched.process(t, build(), true)

	for _, h := range []*testHarness{batched, unbatched} {
		h.inspect(t, func(txn storage.Transaction) {
			for _, roomID := range []string{"!one:test", "!two:test", "!three:test"} {
				chunks, err := txn.SelectChunks(context.Background(), roomID)
				require.NoError(t, err)
				require.Len(t, chunks, 1)
				assert.Equal(t, "tok_"+roomID, chunks[0].PrevToken)

				timeline, err := txn.SelectTimelineEvents(context.Background(), chunks[0].ChunkID)
				require.NoError(t, err)
				require.Len(t, timeline, 1)
				assert.Equal(t, "$first"+roomID, timeline[0].EventID)
			}
		})
	}
}

func TestGlobalAndRoomAccountDataForwarded(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!ad:test"

	res := joinedResponse(roomID)
	join := res.Rooms.Join[roomID]
	join.AccountData = types.AccountDataSync{Events: []types.SyncEvent{
		{Type: types.MFullyRead, Content: rawContent(t, map[string]interface{}{"event_id": "$read"})},
	}}
	res.Rooms.Join[roomID] = join
	res.AccountData = types.AccountDataSync{Events: []types.SyncEvent{
		{Type: "m.push_rules", Content: rawContent(t, map[string]interface{}{})},
	}}

	h.process(t, res, false)

	assert.Equal(t, 1, h.accountData.globalEvents)
	assert.Equal(t, 1, h.accountData.roomEvents[roomID])
	assert.Equal(t, []string{roomID + "/$read"}, h.receipts.markers)
}
