// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/stretchr/testify/require"

	"github.com/element-hq/roomsync/setup/config"
	"github.com/element-hq/roomsync/storage"
	"github.com/element-hq/roomsync/storage/memory"
	"github.com/element-hq/roomsync/types"
)

const testUserID = "@alice:test"

func testConfig() *config.RoomSync {
	cfg := &config.RoomSync{}
	cfg.Defaults()
	cfg.UserID = testUserID
	cfg.Threads.ServerCapability = true
	return cfg
}

type testHarness struct {
	engine      *Engine
	db          *memory.Database
	decryptor   *mockDecryptor
	summary     *mockSummaryUpdater
	live        *mockLiveSink
	crypto      *mockCryptoHooks
	receipts    *mockReceiptConsumer
	accountData *mockAccountDataConsumer
}

func newTestHarness(t *testing.T, cfg *config.RoomSync) *testHarness {
	t.Helper()
	h := &testHarness{
		db:          memory.NewDatabase(),
		decryptor:   &mockDecryptor{results: map[string]*types.DecryptionResult{}, errs: map[string]error{}},
		summary:     &mockSummaryUpdater{},
		live:        &mockLiveSink{notified: map[string][][]string{}},
		crypto:      &mockCryptoHooks{},
		receipts:    &mockReceiptConsumer{},
		accountData: &mockAccountDataConsumer{},
	}
	if cfg == nil {
		cfg = testConfig()
	}
	engine, err := NewEngine(h.db, cfg, Collaborators{
		Decryptor:   h.decryptor,
		Summary:     h.summary,
		Live:        h.live,
		Crypto:      h.crypto,
		Receipts:    h.receipts,
		AccountData: h.accountData,
	})
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *testHarness) process(t *testing.T, res *types.SyncResponse, isInitial bool) {
	t.Helper()
	require.NoError(t, h.engine.ProcessSyncResponse(context.Background(), res, isInitial))
}

// inspect runs fn inside a throwaway transaction over committed state.
func (h *testHarness) inspect(t *testing.T, fn func(txn storage.Transaction)) {
	t.Helper()
	txn, err := h.db.NewTransaction(context.Background())
	require.NoError(t, err)
	defer txn.Rollback() // nolint: errcheck
	fn(txn)
}

type mockDecryptor struct {
	results map[string]*types.DecryptionResult
	errs    map[string]error
	calls   []string
}

func (d *mockDecryptor) DecryptEvent(_ context.Context, ev *types.Event, _ string) (*types.DecryptionResult, error) {
	d.calls = append(d.calls, ev.EventID)
	if err, ok := d.errs[ev.EventID]; ok {
		return nil, err
	}
	return d.results[ev.EventID], nil
}

type mockSummaryUpdater struct {
	updates []SummaryUpdate
}

func (s *mockSummaryUpdater) UpdateSummary(_ context.Context, update SummaryUpdate) {
	s.updates = append(s.updates, update)
}

func (s *mockSummaryUpdater) lastFor(roomID string) (SummaryUpdate, bool) {
	for i := len(s.updates) - 1; i >= 0; i-- {
		if s.updates[i].RoomID == roomID {
			return s.updates[i], true
		}
	}
	return SummaryUpdate{}, false
}

type mockLiveSink struct {
	received []string              // event IDs seen live, in order
	notified map[string][][]string // room ID -> notification batches
}

func (s *mockLiveSink) OnLiveEventReceived(ev *types.Event, _ string, _ bool) {
	s.received = append(s.received, ev.EventID)
}

func (s *mockLiveSink) OnNewTimelineEvents(roomID string, eventIDs []string) {
	s.notified[roomID] = append(s.notified[roomID], eventIDs)
}

type mockCryptoHooks struct {
	stateEvents []string
	liveEvents  []string
}

func (c *mockCryptoHooks) OnStateEvent(_ string, ev *types.Event) {
	c.stateEvents = append(c.stateEvents, ev.EventID)
}

func (c *mockCryptoHooks) OnLiveEvent(_ string, ev *types.Event, _ bool) {
	c.liveEvents = append(c.liveEvents, ev.EventID)
}

type mockReceiptConsumer struct {
	receipts []string // event type is always m.receipt; record room IDs
	markers  []string // "roomID/eventID"
}

func (r *mockReceiptConsumer) OnReceiptEvent(roomID string, _ *types.SyncEvent) {
	r.receipts = append(r.receipts, roomID)
}

func (r *mockReceiptConsumer) OnFullyReadMarker(roomID, eventID string) {
	r.markers = append(r.markers, roomID+"/"+eventID)
}

type mockAccountDataConsumer struct {
	roomEvents   map[string]int
	globalEvents int
}

func (a *mockAccountDataConsumer) OnRoomAccountData(roomID string, events []types.SyncEvent) {
	if a.roomEvents == nil {
		a.roomEvents = map[string]int{}
	}
	a.roomEvents[roomID] += len(events)
}

func (a *mockAccountDataConsumer) OnGlobalAccountData(events []types.SyncEvent) {
	a.globalEvents += len(events)
}

// Event builders.

func strptr(s string) *string { return &s }

func rawContent(t *testing.T, content map[string]interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(content)
	require.NoError(t, err)
	return raw
}

func messageEvent(t *testing.T, eventID, sender, body string) types.SyncEvent {
	return types.SyncEvent{
		EventID:        eventID,
		Type:           types.MRoomMessage,
		Sender:         sender,
		Content:        rawContent(t, map[string]interface{}{"msgtype": "m.text", "body": body}),
		OriginServerTS: nextTS(),
	}
}

func threadReplyEvent(t *testing.T, eventID, sender, rootID, body string) types.SyncEvent {
	ev := messageEvent(t, eventID, sender, body)
	ev.Content = rawContent(t, map[string]interface{}{
		"msgtype": "m.text",
		"body":    body,
		"m.relates_to": map[string]interface{}{
			"rel_type": types.MThreadRelation,
			"event_id": rootID,
		},
	})
	return ev
}

func memberEvent(t *testing.T, eventID, sender, target, membership, displayName string) types.SyncEvent {
	content := map[string]interface{}{"membership": membership}
	if displayName != "" {
		content["displayname"] = displayName
	}
	return types.SyncEvent{
		EventID:        eventID,
		Type:           types.MRoomMember,
		Sender:         sender,
		StateKey:       strptr(target),
		Content:        rawContent(t, content),
		OriginServerTS: nextTS(),
	}
}

func encryptedEvent(t *testing.T, eventID, sender string) types.SyncEvent {
	return types.SyncEvent{
		EventID:        eventID,
		Type:           types.MRoomEncrypted,
		Sender:         sender,
		Content:        rawContent(t, map[string]interface{}{"algorithm": types.MegolmAlgorithm, "ciphertext": "opaque"}),
		OriginServerTS: nextTS(),
	}
}

func withTransactionID(t *testing.T, ev types.SyncEvent, txnID string) types.SyncEvent {
	t.Helper()
	ev.Unsigned = rawContent(t, map[string]interface{}{"transaction_id": txnID})
	return ev
}

var tsCounter = spec.Timestamp(1_700_000_000_000)

func nextTS() spec.Timestamp {
	tsCounter++
	return tsCounter
}

// Response builders.

func joinedResponse(roomID string, timeline ...types.SyncEvent) *types.SyncResponse {
	return &types.SyncResponse{
		NextBatch: fmt.Sprintf("batch_%d", tsCounter),
		Rooms: types.RoomsSyncResponse{
			Join: map[string]types.JoinedRoomSync{
				roomID: {
					Timeline: types.TimelineSync{Events: timeline},
				},
			},
		},
	}
}
