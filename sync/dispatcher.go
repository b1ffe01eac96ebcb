// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/matrix-org/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/roomsync/internal/caching"
	"github.com/element-hq/roomsync/setup/config"
	"github.com/element-hq/roomsync/storage"
	"github.com/element-hq/roomsync/types"
)

// Collaborators are the optional services the engine reports into while
// reconciling a payload. Nil fields are replaced with no-ops.
type Collaborators struct {
	Decryptor   Decryptor
	Threads     ThreadCapabilities
	Summary     SummaryUpdater
	Live        LiveEventSink
	Crypto      CryptoStateHooks
	Receipts    ReceiptConsumer
	AccountData AccountDataConsumer
}

// Engine reconciles /sync payloads into local storage. All writes for
// a processing cycle happen inside a single storage transaction, so a
// mid-payload failure leaves the previous consistent snapshot intact.
type Engine struct {
	db          storage.Database
	cfg         *config.RoomSync
	decryptor   Decryptor
	threads     ThreadCapabilities
	summary     SummaryUpdater
	live        LiveEventSink
	crypto      CryptoStateHooks
	receipts    ReceiptConsumer
	accountData AccountDataConsumer
	members     *caching.MemberContextCache
	typing      *caching.TypingCache
}

func NewEngine(db storage.Database, cfg *config.RoomSync, collab Collaborators) (*Engine, error) {
	members, err := caching.NewMemberContextCache()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create member context cache")
	}
	e := &Engine{
		db:          db,
		cfg:         cfg,
		decryptor:   collab.Decryptor,
		threads:     collab.Threads,
		summary:     collab.Summary,
		live:        collab.Live,
		crypto:      collab.Crypto,
		receipts:    collab.Receipts,
		accountData: collab.AccountData,
		members:     members,
		typing:      caching.NewTypingCache(cfg.TypingTimeout()),
	}
	if e.decryptor == nil {
		e.decryptor = noopDecryptor{}
	}
	if e.threads == nil {
		e.threads = configThreads{cfg: cfg}
	}
	if e.summary == nil {
		e.summary = noopSummaryUpdater{}
	}
	if e.live == nil {
		e.live = noopLiveEventSink{}
	}
	if e.crypto == nil {
		e.crypto = noopCryptoStateHooks{}
	}
	if e.receipts == nil {
		e.receipts = noopReceiptConsumer{}
	}
	if e.accountData == nil {
		e.accountData = noopAccountDataConsumer{}
	}
	return e, nil
}

// TypingUsers returns the users currently typing in the room, as seen
// by the most recent typing notification.
func (e *Engine) TypingUsers(roomID string) []string {
	return e.typing.GetTypingUsers(roomID)
}

type roomNotification struct {
	roomID   string
	eventIDs []string
}

// ProcessSyncResponse applies one payload. Joined rooms are processed
// first, then invited, then left, so an INVITE to JOIN transition
// observed in the same payload resolves to JOIN. On error the current
// transaction is rolled back and the error returned; previously
// committed batches of the same initial sync stay applied.
func (e *Engine) ProcessSyncResponse(ctx context.Context, res *types.SyncResponse, isInitialSync bool) error {
	start := time.Now()
	logger := util.GetLogger(ctx).WithFields(logrus.Fields{
		"next_batch": res.NextBatch,
		"initial":    isInitialSync,
	})

	if len(res.AccountData.Events) > 0 {
		e.accountData.OnGlobalAccountData(res.AccountData.Events)
	}

	deltas := partitionRooms(res)
	batches := e.batchDeltas(deltas, isInitialSync)

	for _, batch := range batches {
		notifications, err := e.processBatch(ctx, batch, isInitialSync)
		if err != nil {
			sentry.CaptureException(err)
			logger.WithError(err).Error("Failed to process sync payload")
			return err
		}
		for _, n := range notifications {
			e.live.OnNewTimelineEvents(n.roomID, n.eventIDs)
		}
	}

	observeSyncMetrics(time.Since(start), isInitialSync)
	logger.WithFields(logrus.Fields{
		"rooms":    len(deltas),
		"duration": time.Since(start),
	}).Debug("Processed sync payload")
	return nil
}

// processBatch applies a set of room deltas inside one transaction and
// returns the timeline notifications to fire once it has committed.
func (e *Engine) processBatch(ctx context.Context, batch []types.RoomDelta, isInitialSync bool) ([]roomNotification, error) {
	txn, err := e.db.NewTransaction(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin sync transaction")
	}
	succeeded := false
	defer func() {
		if !succeeded {
			txn.Rollback() // nolint: errcheck
		}
	}()

	var notifications []roomNotification
	for _, delta := range batch {
		var newEventIDs []string
		switch delta.Category {
		case types.RoomCategoryJoined:
			newEventIDs, err = e.handleJoinedRoom(ctx, txn, delta.RoomID, delta.Joined, isInitialSync)
		case types.RoomCategoryInvited:
			err = e.handleInvitedRoom(ctx, txn, delta.RoomID, delta.Invited)
		case types.RoomCategoryLeft:
			err = e.handleLeftRoom(ctx, txn, delta.RoomID, delta.Left)
		default:
			panic(fmt.Sprintf("unknown room category %d", delta.Category))
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to process room %q", delta.RoomID)
		}
		roomsProcessedCounter.WithLabelValues(delta.Category.String()).Inc()
		if len(newEventIDs) > 0 {
			notifications = append(notifications, roomNotification{
				roomID:   delta.RoomID,
				eventIDs: newEventIDs,
			})
		}
	}

	if err = txn.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit sync transaction")
	}
	succeeded = true
	return notifications, nil
}

// partitionRooms flattens the payload into an ordered delta list:
// joined rooms first, then invited, then left, each sorted by room ID
// so batching is deterministic.
func partitionRooms(res *types.SyncResponse) []types.RoomDelta {
	deltas := make([]types.RoomDelta, 0, len(res.Rooms.Join)+len(res.Rooms.Invite)+len(res.Rooms.Leave))
	for _, roomID := range sortedKeys(res.Rooms.Join) {
		joined := res.Rooms.Join[roomID]
		deltas = append(deltas, types.RoomDelta{
			RoomID:   roomID,
			Category: types.RoomCategoryJoined,
			Joined:   &joined,
		})
	}
	for _, roomID := range sortedKeys(res.Rooms.Invite) {
		invited := res.Rooms.Invite[roomID]
		deltas = append(deltas, types.RoomDelta{
			RoomID:   roomID,
			Category: types.RoomCategoryInvited,
			Invited:  &invited,
		})
	}
	for _, roomID := range sortedKeys(res.Rooms.Leave) {
		left := res.Rooms.Leave[roomID]
		deltas = append(deltas, types.RoomDelta{
			RoomID:   roomID,
			Category: types.RoomCategoryLeft,
			Left:     &left,
		})
	}
	return deltas
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// batchDeltas splits an initial sync into transactions of at most
// MaxRoomsPerBatch rooms each, so a large account surfaces rooms
// incrementally instead of after one giant commit. Incremental syncs
// always run as a single batch.
func (e *Engine) batchDeltas(deltas []types.RoomDelta, isInitialSync bool) [][]types.RoomDelta {
	max := e.cfg.MaxRoomsPerBatch
	if !isInitialSync || max <= 0 || len(deltas) <= max {
		if len(deltas) == 0 {
			return nil
		}
		return [][]types.RoomDelta{deltas}
	}
	var batches [][]types.RoomDelta
	for len(deltas) > max {
		batches = append(batches, deltas[:max])
		deltas = deltas[max:]
	}
	if len(deltas) > 0 {
		batches = append(batches, deltas)
	}
	return batches
}
