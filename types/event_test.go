// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestSyncEventRetainsRawJSON(t *testing.T) {
	wire := []byte(`{"event_id":"$e1","type":"m.room.message","sender":"@bob:test",` +
		`"content":{"body":"hi","custom_field":{"deep":true}},"origin_server_ts":1000}`)

	var ev SyncEvent
	require.NoError(t, json.Unmarshal(wire, &ev))
	assert.Equal(t, "$e1", ev.EventID)
	assert.Equal(t, wire, ev.Raw())

	// Unknown content fields survive untouched.
	assert.True(t, gjson.GetBytes(ev.Raw(), "content.custom_field.deep").Bool())
}

func TestSyncEventUnsignedHelpers(t *testing.T) {
	var ev SyncEvent
	require.NoError(t, json.Unmarshal([]byte(
		`{"event_id":"$e1","type":"m.room.message","sender":"@alice:test",`+
			`"content":{},"unsigned":{"age":5000,"transaction_id":"tx42"}}`,
	), &ev))

	age, ok := ev.Age()
	require.True(t, ok)
	assert.Equal(t, int64(5000), age)
	assert.Equal(t, "tx42", ev.TransactionID())

	var bare SyncEvent
	require.NoError(t, json.Unmarshal([]byte(`{"event_id":"$e2","type":"m.x","content":{}}`), &bare))
	_, ok = bare.Age()
	assert.False(t, ok)
	assert.Empty(t, bare.TransactionID())
}

func TestThreadRootIDRequiresThreadRelation(t *testing.T) {
	threaded := SyncEvent{Content: json.RawMessage(
		`{"m.relates_to":{"rel_type":"m.thread","event_id":"$root"}}`,
	)}
	assert.Equal(t, "$root", threaded.ThreadRootID())

	// A reply relation is not a thread.
	reply := SyncEvent{Content: json.RawMessage(
		`{"m.relates_to":{"rel_type":"m.annotation","event_id":"$other"}}`,
	)}
	assert.Empty(t, reply.ThreadRootID())

	plain := SyncEvent{Content: json.RawMessage(`{"body":"hi"}`)}
	assert.Empty(t, plain.ThreadRootID())
}

func TestNewEventAttachesRoomID(t *testing.T) {
	var se SyncEvent
	require.NoError(t, json.Unmarshal([]byte(
		`{"event_id":"$e1","type":"m.room.message","sender":"@bob:test","content":{"body":"hi"}}`,
	), &se))

	ev := NewEvent(&se, "!r:test", time.Now())
	assert.Equal(t, "!r:test", ev.RoomID)
	assert.Equal(t, "!r:test", gjson.GetBytes(ev.JSON, "room_id").String())
	assert.Equal(t, "hi", gjson.GetBytes(ev.Content(), "body").String())
}

func TestNewEventComputesLocalTimestamp(t *testing.T) {
	arrival := time.Now()
	var se SyncEvent
	require.NoError(t, json.Unmarshal([]byte(
		`{"event_id":"$e1","type":"m.room.message","sender":"@bob:test",`+
			`"content":{},"unsigned":{"age":60000}}`,
	), &se))

	ev := NewEvent(&se, "!r:test", arrival)
	wantMS := arrival.Add(-time.Minute).UnixMilli()
	assert.InDelta(t, wantMS, int64(ev.AgeLocalTS), 1)

	// No age, no local timestamp.
	se.Unsigned = nil
	se.raw = nil
	assert.Zero(t, NewEvent(&se, "!r:test", arrival).AgeLocalTS)
}

func TestMemberContextExtraction(t *testing.T) {
	ev := SyncEvent{Content: json.RawMessage(
		`{"membership":"join","displayname":"Bob","avatar_url":"mxc://test/bob"}`,
	)}
	assert.Equal(t, "join", ev.MembershipValue())
	assert.Equal(t, MemberContext{DisplayName: "Bob", AvatarURL: "mxc://test/bob"}, ev.MemberContext())
}
