// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/roomsync/storage"
	"github.com/element-hq/roomsync/types"
)

// memberBatch accumulates the member display contexts seen while
// applying a single room delta. Timeline snapshots prefer a context
// from the same batch over anything cached or stored, so a profile
// change and a message in the same payload render consistently.
type memberBatch map[string]types.MemberContext

func (b memberBatch) put(userID string, mc types.MemberContext) {
	b[userID] = mc
}

func (e *Engine) handleJoinedRoom(ctx context.Context, txn storage.Transaction, roomID string, delta *types.JoinedRoomSync, isInitialSync bool) ([]string, error) {
	now := time.Now()

	e.processEphemeral(roomID, delta.Ephemeral.Events)
	if len(delta.AccountData.Events) > 0 {
		e.accountData.OnRoomAccountData(roomID, delta.AccountData.Events)
		e.forwardFullyRead(roomID, delta.AccountData.Events)
	}

	room, prevMembership, err := e.resolveRoom(ctx, txn, roomID, spec.Join)
	if err != nil {
		return nil, err
	}
	if prevMembership == spec.Invite {
		// The preview chunks stored while invited are superseded by the
		// real timeline we are about to receive.
		if _, err = txn.DeleteRoomChunks(ctx, roomID); err != nil {
			return nil, errors.Wrap(err, "failed to discard invite chunks")
		}
	}

	batch := memberBatch{}
	stateHasMembership, err := e.applyStateEvents(ctx, txn, roomID, delta.State.Events, now, batch)
	if err != nil {
		return nil, err
	}

	merged, err := e.mergeTimeline(ctx, txn, roomID, &delta.Timeline, isInitialSync, batch, now)
	if err != nil {
		return nil, err
	}

	e.summary.UpdateSummary(ctx, SummaryUpdate{
		RoomID:        room.RoomID,
		Membership:    spec.Join,
		SummaryHints:  delta.Summary,
		UnreadHints:   delta.UnreadNotifications,
		UpdateMembers: stateHasMembership || merged.hasMembership,
	})
	return merged.newEventIDs, nil
}

func (e *Engine) handleInvitedRoom(ctx context.Context, txn storage.Transaction, roomID string, delta *types.InvitedRoomSync) error {
	now := time.Now()

	room, _, err := e.resolveRoom(ctx, txn, roomID, spec.Invite)
	if err != nil {
		return err
	}

	// Invite state is stripped: events may lack event IDs, and those
	// are skipped by the shared validity check below.
	batch := memberBatch{}
	hasMembership, err := e.applyStateEvents(ctx, txn, roomID, delta.InviteState.Events, now, batch)
	if err != nil {
		return err
	}

	// The sender of the last membership event aimed at us is who
	// invited us.
	inviterID := ""
	for i := range delta.InviteState.Events {
		se := &delta.InviteState.Events[i]
		if se.Type == types.MRoomMember && se.StateKey != nil && *se.StateKey == e.cfg.UserID {
			inviterID = se.Sender
		}
	}

	e.summary.UpdateSummary(ctx, SummaryUpdate{
		RoomID:        room.RoomID,
		Membership:    spec.Invite,
		UpdateMembers: hasMembership,
		InviterID:     inviterID,
	})
	return nil
}

func (e *Engine) handleLeftRoom(ctx context.Context, txn storage.Transaction, roomID string, delta *types.LeftRoomSync) error {
	now := time.Now()

	if len(delta.AccountData.Events) > 0 {
		e.accountData.OnRoomAccountData(roomID, delta.AccountData.Events)
	}

	// The leave section covers both leaving and being banned or
	// kicked. Our own membership event in the payload, if any, tells
	// us which; default to leave.
	membership := spec.Leave
	for _, events := range [][]types.SyncEvent{delta.State.Events, delta.Timeline.Events} {
		for i := range events {
			se := &events[i]
			if se.Type == types.MRoomMember && se.StateKey != nil && *se.StateKey == e.cfg.UserID {
				if m := se.MembershipValue(); m != "" {
					membership = m
				}
			}
		}
	}

	room, _, err := e.resolveRoom(ctx, txn, roomID, membership)
	if err != nil {
		return err
	}

	batch := memberBatch{}
	stateHasMembership, err := e.applyStateEvents(ctx, txn, roomID, delta.State.Events, now, batch)
	if err != nil {
		return err
	}
	// Timeline events of a room we left are persisted for history but
	// never open a chunk: there is no pagination to resume.
	timelineHasMembership, err := e.applyStateEvents(ctx, txn, roomID, delta.Timeline.Events, now, batch)
	if err != nil {
		return err
	}
	if _, err = txn.DeleteRoomChunks(ctx, roomID); err != nil {
		return errors.Wrap(err, "failed to delete chunks for left room")
	}

	e.summary.UpdateSummary(ctx, SummaryUpdate{
		RoomID:        room.RoomID,
		Membership:    membership,
		UpdateMembers: stateHasMembership || timelineHasMembership,
	})
	return nil
}

// resolveRoom loads or creates the room record and moves it to the
// given membership, reporting the membership it held before. An
// unexpected transition is logged but applied anyway, converging on
// what the server told us.
func (e *Engine) resolveRoom(ctx context.Context, txn storage.Transaction, roomID, membership string) (*types.Room, string, error) {
	room, err := txn.SelectRoom(ctx, roomID)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to select room")
	}
	if room == nil {
		room = &types.Room{RoomID: roomID}
	}
	prev := room.Membership
	if !types.MembershipTransitionAllowed(prev, membership) {
		util.GetLogger(ctx).WithFields(logrus.Fields{
			"room_id": roomID,
			"from":    prev,
			"to":      membership,
		}).Warn("Unexpected membership transition")
	}
	room.Membership = membership
	if err = txn.UpsertRoom(ctx, room); err != nil {
		return nil, "", errors.Wrap(err, "failed to upsert room")
	}
	return room, prev, nil
}

// applyStateEvents persists state events and folds them into the
// current state map, last writer winning. Events without an event ID,
// type or state key are skipped without complaint, which is what makes
// stripped invite state safe to feed through here.
func (e *Engine) applyStateEvents(ctx context.Context, txn storage.Transaction, roomID string, events []types.SyncEvent, now time.Time, batch memberBatch) (bool, error) {
	hasMembership := false
	for i := range events {
		se := &events[i]
		if se.EventID == "" || se.Type == "" || se.StateKey == nil {
			continue
		}
		ev := types.NewEvent(se, roomID, now)
		if err := txn.UpsertEvent(ctx, ev); err != nil {
			return false, errors.Wrap(err, "failed to upsert state event")
		}
		entry := types.CurrentStateEntry{
			RoomID:   roomID,
			Type:     se.Type,
			StateKey: *se.StateKey,
			EventID:  se.EventID,
		}
		if err := txn.UpsertCurrentState(ctx, entry); err != nil {
			return false, errors.Wrap(err, "failed to upsert current state")
		}
		e.crypto.OnStateEvent(roomID, ev)
		if se.Type == types.MRoomMember {
			hasMembership = true
			mc := se.MemberContext()
			batch.put(*se.StateKey, mc)
			e.members.StoreMemberContext(roomID, *se.StateKey, mc)
		}
	}
	return hasMembership, nil
}

// forwardFullyRead routes m.fully_read markers out of room account
// data to the receipt consumer.
func (e *Engine) forwardFullyRead(roomID string, events []types.SyncEvent) {
	for i := range events {
		se := &events[i]
		if se.Type != types.MFullyRead {
			continue
		}
		if eventID := se.FullyReadEventID(); eventID != "" {
			e.receipts.OnFullyReadMarker(roomID, eventID)
		}
	}
}
