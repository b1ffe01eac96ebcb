// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"github.com/element-hq/roomsync/types"
)

// processEphemeral routes a room's ephemeral section. Receipts are
// forwarded to the receipt consumer. Typing notifications replace the
// room's typing set wholesale, last event winning; unknown ephemeral
// types are ignored for forward compatibility. Nothing here touches
// storage.
func (e *Engine) processEphemeral(roomID string, events []types.SyncEvent) {
	var typing []string
	sawTyping := false
	for i := range events {
		se := &events[i]
		switch se.Type {
		case types.MReceipt:
			e.receipts.OnReceiptEvent(roomID, se)
		case types.MTyping:
			typing = se.TypingUserIDs()
			sawTyping = true
		}
	}
	if sawTyping {
		e.typing.SetTypingUsers(roomID, typing)
	}
}
