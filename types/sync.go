// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

// SyncResponse is one decoded incremental update batch from the
// server, describing per-room deltas for every room the user is a
// member of. Transport and long-poll scheduling live elsewhere; the
// engine consumes the already-decoded form.
type SyncResponse struct {
	NextBatch   string            `json:"next_batch"`
	Rooms       RoomsSyncResponse `json:"rooms"`
	AccountData AccountDataSync   `json:"account_data"`
}

// RoomsSyncResponse partitions per-room deltas by membership category.
type RoomsSyncResponse struct {
	Join   map[string]JoinedRoomSync  `json:"join"`
	Invite map[string]InvitedRoomSync `json:"invite"`
	Leave  map[string]LeftRoomSync    `json:"leave"`
}

// JoinedRoomSync is the delta for a room the user is joined to.
type JoinedRoomSync struct {
	State               StateSync            `json:"state"`
	Timeline            TimelineSync         `json:"timeline"`
	Ephemeral           EphemeralSync        `json:"ephemeral"`
	AccountData         AccountDataSync      `json:"account_data"`
	UnreadNotifications *UnreadNotifications `json:"unread_notifications,omitempty"`
	Summary             *RoomSummaryHints    `json:"summary,omitempty"`
}

// InvitedRoomSync is the delta for a room the user was invited to. The
// invite state is a stripped state list: events may lack event IDs.
type InvitedRoomSync struct {
	InviteState StateSync `json:"invite_state"`
}

// LeftRoomSync is the delta for a room the user left or was removed
// from.
type LeftRoomSync struct {
	State       StateSync       `json:"state"`
	Timeline    TimelineSync    `json:"timeline"`
	AccountData AccountDataSync `json:"account_data"`
}

type StateSync struct {
	Events []SyncEvent `json:"events"`
}

// TimelineSync carries new timeline events. Limited signals that the
// server withheld intermediate history: locally cached history is no
// longer contiguous with these events.
type TimelineSync struct {
	Events    []SyncEvent `json:"events"`
	Limited   bool        `json:"limited"`
	PrevBatch string      `json:"prev_batch"`
}

type EphemeralSync struct {
	Events []SyncEvent `json:"events"`
}

type AccountDataSync struct {
	Events []SyncEvent `json:"events"`
}

// UnreadNotifications are the server's unread hints for a joined room.
type UnreadNotifications struct {
	NotificationCount *int64 `json:"notification_count,omitempty"`
	HighlightCount    *int64 `json:"highlight_count,omitempty"`
}

// RoomSummaryHints are the server's membership summary hints.
type RoomSummaryHints struct {
	Heroes             []string `json:"m.heroes,omitempty"`
	JoinedMemberCount  *int     `json:"m.joined_member_count,omitempty"`
	InvitedMemberCount *int     `json:"m.invited_member_count,omitempty"`
}

// RoomCategory is the membership category a room appeared under in a
// sync payload. Handlers switch over it exhaustively; a new category is
// a compile-time touch point everywhere deltas are consumed.
type RoomCategory int

const (
	RoomCategoryJoined RoomCategory = iota + 1
	RoomCategoryInvited
	RoomCategoryLeft
)

func (c RoomCategory) String() string {
	switch c {
	case RoomCategoryJoined:
		return "joined"
	case RoomCategoryInvited:
		return "invited"
	case RoomCategoryLeft:
		return "left"
	}
	return "unknown"
}

// RoomDelta is one room's slice of a sync payload, tagged by category.
// Exactly one of the payload pointers is non-nil, matching Category.
type RoomDelta struct {
	RoomID   string
	Category RoomCategory

	Joined  *JoinedRoomSync
	Invited *InvitedRoomSync
	Left    *LeftRoomSync
}
