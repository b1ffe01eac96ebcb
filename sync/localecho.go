// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"

	"github.com/matrix-org/util"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/roomsync/storage"
	"github.com/element-hq/roomsync/types"
)

// reconcileLocalEcho matches an incoming event against the pending
// send with the same transaction ID. A megolm event we sent ourselves
// carries no session to decrypt it with, so the cleartext captured at
// send time is copied over instead of re-decrypting.
func (e *Engine) reconcileLocalEcho(ctx context.Context, txn storage.Transaction, roomID string, se *types.SyncEvent, ev *types.Event) error {
	txnID := se.TransactionID()
	if txnID == "" {
		return nil
	}
	pending, err := txn.SelectPendingSend(ctx, roomID, txnID)
	if err != nil || pending == nil {
		return err
	}
	if ev.Type == types.MRoomEncrypted && se.Algorithm() == types.MegolmAlgorithm &&
		ev.Decryption == nil && pending.Event != nil && pending.Event.Decryption != nil {
		ev.Decryption = pending.Event.Decryption
		ev.DecryptionErrorCode = ""
		ev.DecryptionErrorReason = ""
		if err = txn.UpsertEvent(ctx, ev); err != nil {
			return err
		}
	}
	return txn.DeletePendingSend(ctx, roomID, txnID)
}

// purgeSentEchoes drops pending sends stuck in the SENT state once a
// non-initial batch has shown one of our own events in the room: the
// server has demonstrably caught up with our writes, so a sent echo
// with no matching event is presumed delivered through another path.
// This can purge an echo whose own confirmation is still in flight;
// the trade is against echoes that linger forever.
func (e *Engine) purgeSentEchoes(ctx context.Context, txn storage.Transaction, roomID string, sawOwnEvent, isInitialSync bool) error {
	if isInitialSync || !sawOwnEvent {
		return nil
	}
	pendings, err := txn.SelectPendingSends(ctx, roomID)
	if err != nil {
		return err
	}
	for _, pending := range pendings {
		if pending.State != types.SendStateSent {
			continue
		}
		if err = txn.DeletePendingSend(ctx, roomID, pending.TransactionID); err != nil {
			return err
		}
		purgedEchoesCounter.Inc()
		util.GetLogger(ctx).WithFields(logrus.Fields{
			"room_id":        roomID,
			"transaction_id": pending.TransactionID,
		}).Debug("Purged stale local echo")
	}
	return nil
}
