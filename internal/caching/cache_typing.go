// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package caching

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TypingCache holds the per-room typing user list delivered by
// ephemeral sync events. Entries expire on their own: typing is a decay
// signal and a stale list must clear even if no follow-up sync arrives.
type TypingCache struct {
	cache *gocache.Cache
}

const (
	// DefaultTypingTimeout mirrors the server-side typing timeout.
	DefaultTypingTimeout = 30 * time.Second

	typingCleanupInterval = time.Minute
)

func NewTypingCache(timeout time.Duration) *TypingCache {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingCache{
		cache: gocache.New(timeout, typingCleanupInterval),
	}
}

// SetTypingUsers replaces the typing list for a room. An empty list
// clears the entry immediately.
func (c *TypingCache) SetTypingUsers(roomID string, userIDs []string) {
	if len(userIDs) == 0 {
		c.cache.Delete(roomID)
		return
	}
	c.cache.SetDefault(roomID, userIDs)
}

// GetTypingUsers returns the currently typing users of a room, or nil
// when nobody is typing (or the signal has decayed).
func (c *TypingCache) GetTypingUsers(roomID string) []string {
	v, ok := c.cache.Get(roomID)
	if !ok {
		return nil
	}
	userIDs, ok := v.([]string)
	if !ok {
		return nil
	}
	return userIDs
}
