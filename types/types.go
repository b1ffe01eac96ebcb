// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

import (
	"fmt"

	"github.com/matrix-org/gomatrixserverlib/spec"
)

// MembershipNone is the membership of a room we have never interacted
// with. The other membership values come from gomatrixserverlib's spec
// package (spec.Join, spec.Invite, spec.Leave).
const MembershipNone = ""

// MembershipTransitionAllowed reports whether a room may move from one
// membership state to another. The legal transitions are:
//
//	NONE   -> INVITE | JOIN
//	INVITE -> JOIN | LEAVE
//	JOIN   -> LEAVE
//
// Setting the same membership again is always allowed (sync payloads
// routinely redeliver the current category).
func MembershipTransitionAllowed(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case MembershipNone:
		return to == spec.Invite || to == spec.Join
	case spec.Invite:
		return to == spec.Join || to == spec.Leave
	case spec.Join:
		return to == spec.Leave
	case spec.Leave:
		// Rejoining a previously left room starts a fresh lifecycle.
		return to == spec.Invite || to == spec.Join
	}
	return false
}

// Room is the long-lived per-room cache entry. Rooms are created lazily
// on first reference and never destroyed.
type Room struct {
	RoomID     string
	Membership string
}

// Chunk is a contiguous, ordered run of timeline events bounded by
// pagination tokens. At most one chunk per room holds IsLastForward,
// which marks the append point for sync-delivered events. A chunk with
// a non-empty ThreadRootID holds the replies of a single thread and is
// never the forward chunk.
type Chunk struct {
	ChunkID       string
	RoomID        string
	PrevToken     string
	IsLastForward bool
	ThreadRootID  string
}

// TimelineEvent places an event inside a chunk together with the
// sender's display context as it was at insertion time. The snapshot is
// deliberately not recomputed when the member later changes their
// profile.
type TimelineEvent struct {
	ChunkID         string
	EventID         string
	Position        int
	SenderName      string
	SenderAvatarURL string
}

// CurrentStateEntry records which event is the current value for a
// (type, state key) pair in a room. At most one entry exists per key
// triple; the last state event applied in payload order wins.
type CurrentStateEntry struct {
	RoomID   string
	Type     string
	StateKey string
	EventID  string
}

// SendState tracks the lifecycle of a locally sent event.
type SendState int

const (
	// SendStateUnsent is a message queued but not yet handed to the server.
	SendStateUnsent SendState = iota
	// SendStateSending is a message with an in-flight send request.
	SendStateSending
	// SendStateSent is a message the server acknowledged but which has
	// not yet come back down the sync stream.
	SendStateSent
	// SendStateSynced is a message observed in a sync response. Pending
	// sends never persist in this state; it exists for callers updating
	// their own send queues.
	SendStateSynced
)

func (s SendState) String() string {
	switch s {
	case SendStateUnsent:
		return "unsent"
	case SendStateSending:
		return "sending"
	case SendStateSent:
		return "sent"
	case SendStateSynced:
		return "synced"
	}
	return fmt.Sprintf("SendState(%d)", int(s))
}

// PendingSend is a speculative local echo of an outgoing message, keyed
// by the client-generated transaction ID carried in the event's
// unsigned metadata. It is removed exactly once: either matched against
// the confirmed event with the same transaction ID, or garbage
// collected once a sync cycle proves the server has seen our writes.
type PendingSend struct {
	RoomID        string
	TransactionID string
	State         SendState
	Event         *Event
}

// ThreadSummary aggregates the latest reply and participant set of a
// thread, keyed by the thread root event ID. It is updated
// incrementally as replies are inserted, never recomputed in full.
type ThreadSummary struct {
	RoomID         string
	RootEventID    string
	LatestReplyID  string
	LatestReplyTS  spec.Timestamp
	ParticipantIDs []string
	ReplyCount     int
}

// AddParticipant records a thread participant, preserving insertion
// order and ignoring duplicates.
func (t *ThreadSummary) AddParticipant(userID string) {
	for _, id := range t.ParticipantIDs {
		if id == userID {
			return
		}
	}
	t.ParticipantIDs = append(t.ParticipantIDs, userID)
}

// DecryptionResult is the cleartext produced by the decryption service
// for an encrypted event, along with the sender key material needed to
// assess trust.
type DecryptionResult struct {
	Payload         []byte            `json:"payload"`
	SenderKey       string            `json:"sender_key,omitempty"`
	ClaimedKeys     map[string]string `json:"claimed_keys,omitempty"`
	ForwardingChain []string          `json:"forwarding_chain,omitempty"`
}

// DecryptionError is a typed decryption failure attached to an event.
// The event stays stored in its encrypted form; decryption is retried
// lazily elsewhere, never by the reconciliation engine.
type DecryptionError struct {
	Code    string
	Message string
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed (%s): %s", e.Code, e.Message)
}

// Well-known decryption error codes.
const (
	DecryptionErrorUnknownSession = "OLM_UNKNOWN_MESSAGE_INDEX"
	DecryptionErrorBadCiphertext  = "OLM_BAD_ENCRYPTED_MESSAGE"
	DecryptionErrorUnavailable    = "DECRYPTION_UNAVAILABLE"
)

// MemberContext is a member's display profile, snapshotted onto
// timeline events at insertion time.
type MemberContext struct {
	DisplayName string
	AvatarURL   string
}
