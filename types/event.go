// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

import (
	"encoding/json"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Event type and content constants used by the engine.
const (
	MRoomMember    = "m.room.member"
	MRoomMessage   = "m.room.message"
	MRoomEncrypted = "m.room.encrypted"
	MReceipt       = "m.receipt"
	MTyping        = "m.typing"
	MFullyRead     = "m.fully_read"

	// MegolmAlgorithm is the group encryption algorithm for room messages.
	MegolmAlgorithm = "m.megolm.v1.aes-sha2"

	// MThreadRelation is the relation type linking a reply to its thread root.
	MThreadRelation = "m.thread"
)

// SyncEvent is a wire event as it appears in a sync payload. The raw
// JSON is retained alongside the parsed identity fields so that opaque
// content travels through the engine without re-marshalling.
type SyncEvent struct {
	EventID        string          `json:"event_id"`
	Type           string          `json:"type"`
	Sender         string          `json:"sender"`
	StateKey       *string         `json:"state_key,omitempty"`
	Content        json.RawMessage `json:"content"`
	OriginServerTS spec.Timestamp  `json:"origin_server_ts"`
	Unsigned       json.RawMessage `json:"unsigned,omitempty"`

	raw []byte
}

func (e *SyncEvent) UnmarshalJSON(data []byte) error {
	type syncEvent SyncEvent
	var ev syncEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	*e = SyncEvent(ev)
	e.raw = data
	return nil
}

// Raw returns the original wire JSON, or a re-marshalled form for
// events constructed in code rather than parsed off the wire.
func (e *SyncEvent) Raw() []byte {
	if e.raw != nil {
		return e.raw
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return raw
}

// Age returns the server-reported age of the event in milliseconds from
// the unsigned metadata, if present.
func (e *SyncEvent) Age() (int64, bool) {
	age := gjson.GetBytes(e.Unsigned, "age")
	if !age.Exists() {
		return 0, false
	}
	return age.Int(), true
}

// TransactionID returns the client transaction ID from the unsigned
// metadata, used to correlate the event with a local echo. Empty when
// the event was not sent by this session.
func (e *SyncEvent) TransactionID() string {
	return gjson.GetBytes(e.Unsigned, "transaction_id").String()
}

// ThreadRootID returns the event ID of the thread root this event
// replies to, or empty if the event is not a thread reply.
func (e *SyncEvent) ThreadRootID() string {
	relates := gjson.GetBytes(e.Content, `m\.relates_to`)
	if relates.Get("rel_type").String() != MThreadRelation {
		return ""
	}
	return relates.Get("event_id").String()
}

// MembershipValue returns the membership field of an m.room.member
// event's content.
func (e *SyncEvent) MembershipValue() string {
	return gjson.GetBytes(e.Content, "membership").String()
}

// MemberContext extracts the display profile carried by an
// m.room.member event's content.
func (e *SyncEvent) MemberContext() MemberContext {
	return MemberContext{
		DisplayName: gjson.GetBytes(e.Content, "displayname").String(),
		AvatarURL:   gjson.GetBytes(e.Content, "avatar_url").String(),
	}
}

// Algorithm returns the encryption algorithm of an m.room.encrypted
// event's content.
func (e *SyncEvent) Algorithm() string {
	return gjson.GetBytes(e.Content, "algorithm").String()
}

// FullyReadEventID returns the event_id of an m.fully_read account
// data entry.
func (e *SyncEvent) FullyReadEventID() string {
	return gjson.GetBytes(e.Content, "event_id").String()
}

// TypingUserIDs returns the user_ids list of an m.typing event.
func (e *SyncEvent) TypingUserIDs() []string {
	ids := gjson.GetBytes(e.Content, "user_ids")
	if !ids.IsArray() {
		return nil
	}
	var users []string
	ids.ForEach(func(_, v gjson.Result) bool {
		users = append(users, v.String())
		return true
	})
	return users
}

// Event is a stored protocol message. Identity fields are immutable;
// the decryption decoration and thread linkage are filled in by the
// reconciliation engine as events flow through it.
type Event struct {
	EventID        string
	RoomID         string
	Type           string
	SenderID       string
	StateKey       *string
	OriginServerTS spec.Timestamp

	// AgeLocalTS is the local receipt timestamp: the sync arrival time
	// minus the server-reported age. Zero when the server reported no age.
	AgeLocalTS spec.Timestamp

	// JSON is the full wire JSON with the room ID attached.
	JSON []byte

	Decryption            *DecryptionResult
	DecryptionErrorCode   string
	DecryptionErrorReason string

	ThreadRootID string
}

// NewEvent builds a stored event from a wire event, attaching the room
// ID (sync payload events omit it) and computing the local receipt
// timestamp from the server-reported age.
func NewEvent(se *SyncEvent, roomID string, arrival time.Time) *Event {
	ev := &Event{
		EventID:        se.EventID,
		RoomID:         roomID,
		Type:           se.Type,
		SenderID:       se.Sender,
		StateKey:       se.StateKey,
		OriginServerTS: se.OriginServerTS,
	}
	if age, ok := se.Age(); ok {
		ev.AgeLocalTS = spec.AsTimestamp(arrival.Add(-time.Duration(age) * time.Millisecond))
	}
	raw, err := sjson.SetBytes(se.Raw(), "room_id", roomID)
	if err != nil {
		raw = se.Raw()
	}
	ev.JSON = raw
	return ev
}

// SetDecryptionError records a typed decryption failure on the event.
func (e *Event) SetDecryptionError(derr *DecryptionError) {
	e.DecryptionErrorCode = derr.Code
	e.DecryptionErrorReason = derr.Message
}

// Content returns the content object of the stored wire JSON.
func (e *Event) Content() []byte {
	content := gjson.GetBytes(e.JSON, "content")
	if !content.Exists() {
		return nil
	}
	return []byte(content.Raw)
}
