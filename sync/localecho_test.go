// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-hq/roomsync/storage"
	"github.com/element-hq/roomsync/types"
)

func seedPendingSend(t *testing.T, h *testHarness, roomID, txnID string, state types.SendState, event *types.Event) {
	t.Helper()
	txn, err := h.db.NewTransaction(context.Background())
	require.NoError(t, err)
	require.NoError(t, txn.UpsertPendingSend(context.Background(), &types.PendingSend{
		RoomID:        roomID,
		TransactionID: txnID,
		State:         state,
		Event:         event,
	}))
	require.NoError(t, txn.Commit())
}

func TestEchoRemovedWhenConfirmationArrives(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!echo:test"

	seedPendingSend(t, h, roomID, "tx9", types.SendStateSent, nil)

	confirmed := withTransactionID(t, messageEvent(t, "$sent", testUserID, "my message"), "tx9")
	h.process(t, joinedResponse(roomID, confirmed), false)

	h.inspect(t, func(txn storage.Transaction) {
		pending, err := txn.SelectPendingSend(context.Background(), roomID, "tx9")
		require.NoError(t, err)
		assert.Nil(t, pending)

		ev, err := txn.SelectEvent(context.Background(), "$sent")
		require.NoError(t, err)
		assert.NotNil(t, ev)
	})
}

func TestMegolmEchoCopiesCleartextFromPendingSend(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!megolm:test"

	cleartext := &types.DecryptionResult{Payload: []byte(`{"body":"secret"}`)}
	seedPendingSend(t, h, roomID, "tx1", types.SendStateSent, &types.Event{
		EventID:    "$local",
		RoomID:     roomID,
		Decryption: cleartext,
	})

	// Our own megolm event comes back down sync. We cannot decrypt our
	// own outbound session history, so no decryptor result is
	// configured; the cleartext must come from the echo.
	confirmed := withTransactionID(t, encryptedEvent(t, "$enc", testUserID), "tx1")
	h.process(t, joinedResponse(roomID, confirmed), false)

	h.inspect(t, func(txn storage.Transaction) {
		ev, err := txn.SelectEvent(context.Background(), "$enc")
		require.NoError(t, err)
		require.NotNil(t, ev)
		require.NotNil(t, ev.Decryption)
		assert.Equal(t, cleartext.Payload, ev.Decryption.Payload)

		pending, err := txn.SelectPendingSend(context.Background(), roomID, "tx1")
		require.NoError(t, err)
		assert.Nil(t, pending)
	})
}

func TestSentEchoesPurgedWhenOwnEventSeen(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!gc:test"

	// tx_lost was acknowledged by the server but its confirmation never
	// came down sync, perhaps because the timeline gapped over it.
	seedPendingSend(t, h, roomID, "tx_lost", types.SendStateSent, nil)
	// tx_flight is still being sent and must survive.
	seedPendingSend(t, h, roomID, "tx_flight", types.SendStateSending, nil)

	h.process(t, joinedResponse(roomID, messageEvent(t, "$mine", testUserID, "later message")), false)

	h.inspect(t, func(txn storage.Transaction) {
		lost, err := txn.SelectPendingSend(context.Background(), roomID, "tx_lost")
		require.NoError(t, err)
		assert.Nil(t, lost)

		flight, err := txn.SelectPendingSend(context.Background(), roomID, "tx_flight")
		require.NoError(t, err)
		assert.NotNil(t, flight)
	})
}

func TestSentEchoesKeptWithoutOwnEvent(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!keep:test"

	seedPendingSend(t, h, roomID, "tx_wait", types.SendStateSent, nil)

	// Somebody else's traffic proves nothing about our writes.
	h.process(t, joinedResponse(roomID, messageEvent(t, "$other", "@bob:test", "unrelated")), false)

	h.inspect(t, func(txn storage.Transaction) {
		pending, err := txn.SelectPendingSend(context.Background(), roomID, "tx_wait")
		require.NoError(t, err)
		assert.NotNil(t, pending)
	})
}

func TestSentEchoesKeptDuringInitialSync(t *testing.T) {
	h := newTestHarness(t, nil)
	roomID := "!initial:test"

	seedPendingSend(t, h, roomID, "tx_old", types.SendStateSent, nil)

	h.process(t, joinedResponse(roomID, messageEvent(t, "$mine", testUserID, "old history")), true)

	h.inspect(t, func(txn storage.Transaction) {
		pending, err := txn.SelectPendingSend(context.Background(), roomID, "tx_old")
		require.NoError(t, err)
		assert.NotNil(t, pending)
	})
}
