// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"

	"github.com/element-hq/roomsync/setup/config"
	"github.com/element-hq/roomsync/types"
)

// Decryptor is the decryption service. DecryptEvent returns the
// cleartext for an encrypted event, a *types.DecryptionError for a
// typed failure, or the context error when interrupted. The engine
// never retries: failed events are stored encrypted with the error
// attached and decrypted lazily elsewhere.
type Decryptor interface {
	DecryptEvent(ctx context.Context, event *types.Event, roomID string) (*types.DecryptionResult, error)
}

// ThreadCapabilities gates thread bookkeeping and classifies events.
type ThreadCapabilities interface {
	// ThreadMessagingEnabled is the user-facing feature flag.
	ThreadMessagingEnabled() bool
	// ServerThreadingCapability reports whether the homeserver supports
	// native threading. Summaries are only aggregated when it does.
	ServerThreadingCapability() bool
	// ThreadRootID returns the thread root this event replies to, or
	// empty for thread roots and standalone events.
	ThreadRootID(event *types.SyncEvent) string
}

// SummaryUpdate carries the inputs of a room summary recomputation.
// UpdateMembers is only set when the batch contained a membership
// event, letting the aggregator skip the expensive member list rebuild
// otherwise.
type SummaryUpdate struct {
	RoomID        string
	Membership    string
	SummaryHints  *types.RoomSummaryHints
	UnreadHints   *types.UnreadNotifications
	UpdateMembers bool
	InviterID     string
}

// SummaryUpdater is the room-summary/unread-count aggregator.
type SummaryUpdater interface {
	UpdateSummary(ctx context.Context, update SummaryUpdate)
}

// LiveEventSink receives notifications as the engine works through a
// payload. Notifications fire once a room's writes are applied;
// consumers must not assume the enclosing transaction has committed.
type LiveEventSink interface {
	OnLiveEventReceived(event *types.Event, roomID string, isInitialSync bool)
	OnNewTimelineEvents(roomID string, eventIDs []string)
}

// CryptoStateHooks feed room state and live events to the encryption
// machinery (device tracking, session rotation on membership change).
type CryptoStateHooks interface {
	OnStateEvent(roomID string, event *types.Event)
	OnLiveEvent(roomID string, event *types.Event, isInitialSync bool)
}

// ReceiptConsumer receives read receipts and fully-read markers.
// Receipt events are forwarded whole; their content shape is the
// consumer's concern.
type ReceiptConsumer interface {
	OnReceiptEvent(roomID string, event *types.SyncEvent)
	OnFullyReadMarker(roomID, eventID string)
}

// AccountDataConsumer receives account data as an opaque pass-through.
type AccountDataConsumer interface {
	OnRoomAccountData(roomID string, events []types.SyncEvent)
	OnGlobalAccountData(events []types.SyncEvent)
}

// configThreads derives thread capabilities from static configuration
// and the event's own relation content.
type configThreads struct {
	cfg *config.RoomSync
}

func (t configThreads) ThreadMessagingEnabled() bool {
	return t.cfg.Threads.Enabled
}

func (t configThreads) ServerThreadingCapability() bool {
	return t.cfg.Threads.ServerCapability
}

func (t configThreads) ThreadRootID(event *types.SyncEvent) string {
	return event.ThreadRootID()
}

// No-op collaborator defaults, so the engine runs with only storage
// configured.

type noopDecryptor struct{}

func (noopDecryptor) DecryptEvent(context.Context, *types.Event, string) (*types.DecryptionResult, error) {
	return nil, nil
}

type noopSummaryUpdater struct{}

func (noopSummaryUpdater) UpdateSummary(context.Context, SummaryUpdate) {}

type noopLiveEventSink struct{}

func (noopLiveEventSink) OnLiveEventReceived(*types.Event, string, bool) {}
func (noopLiveEventSink) OnNewTimelineEvents(string, []string)           {}

type noopCryptoStateHooks struct{}

func (noopCryptoStateHooks) OnStateEvent(string, *types.Event)      {}
func (noopCryptoStateHooks) OnLiveEvent(string, *types.Event, bool) {}

type noopReceiptConsumer struct{}

func (noopReceiptConsumer) OnReceiptEvent(string, *types.SyncEvent) {}
func (noopReceiptConsumer) OnFullyReadMarker(string, string)        {}

type noopAccountDataConsumer struct{}

func (noopAccountDataConsumer) OnRoomAccountData(string, []types.SyncEvent) {}
func (noopAccountDataConsumer) OnGlobalAccountData([]types.SyncEvent)       {}
