// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package notifier

import (
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/roomsync/setup/config"
	"github.com/element-hq/roomsync/types"
)

// Message headers attached to every published event.
const (
	UserID         = "user_id"
	RoomID         = "room_id"
	EventID        = "event_id"
	EventType      = "type"
	OriginServerTS = "origin_server_ts"
)

// JetStreamSink publishes reconciled events onto a NATS JetStream
// subject per room, for consumers living outside the process. Publish
// failures are logged and dropped; the stream is a best-effort mirror
// of storage, not the source of truth.
type JetStreamSink struct {
	js            nats.JetStreamContext
	subjectPrefix string
}

func NewJetStreamSink(cfg *config.RoomSync) (*JetStreamSink, error) {
	nc, err := nats.Connect(strings.Join(cfg.JetStream.Addresses, ","))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to NATS")
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get JetStream context")
	}
	if _, err = js.AddStream(&nats.StreamConfig{
		Name:     strings.ToUpper(cfg.JetStream.SubjectPrefix),
		Subjects: []string{cfg.JetStream.SubjectPrefix + ".>"},
	}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return nil, errors.Wrap(err, "failed to add stream")
	}
	return &JetStreamSink{
		js:            js,
		subjectPrefix: cfg.JetStream.SubjectPrefix,
	}, nil
}

func (s *JetStreamSink) OnLiveEventReceived(ev *types.Event, roomID string, isInitialSync bool) {
	if isInitialSync {
		return
	}
	msg := nats.NewMsg(s.subjectPrefix + ".room." + Tokenise(roomID))
	msg.Header.Set(UserID, ev.SenderID)
	msg.Header.Set(RoomID, roomID)
	msg.Header.Set(EventID, ev.EventID)
	msg.Header.Set(EventType, ev.Type)
	msg.Header.Set(OriginServerTS, strconv.FormatUint(uint64(ev.OriginServerTS), 10))
	msg.Data = ev.JSON
	if _, err := s.js.PublishMsg(msg); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id":  roomID,
			"event_id": ev.EventID,
		}).Error("Failed to publish event to JetStream")
	}
}

func (s *JetStreamSink) OnNewTimelineEvents(roomID string, eventIDs []string) {
	msg := nats.NewMsg(s.subjectPrefix + ".notify." + Tokenise(roomID))
	msg.Header.Set(RoomID, roomID)
	msg.Data = []byte(strings.Join(eventIDs, ","))
	if _, err := s.js.PublishMsg(msg); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).
			Error("Failed to publish notification to JetStream")
	}
}

// Tokenise rewrites an ID into a form valid inside a NATS subject
// token. Subjects split on ".", so everything outside [A-Za-z0-9] is
// mapped to "_".
func Tokenise(str string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, str)
}
