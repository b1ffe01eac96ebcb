// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package caching

import (
	"github.com/dgraph-io/ristretto"

	"github.com/element-hq/roomsync/types"
)

// MemberContextCache caches the display profile resolved from current
// state membership events, so timeline insertion does not hit storage
// for every event of a chatty sender. Entries are invalidated whenever
// a membership event for the member passes through the engine.
type MemberContextCache struct {
	cache *ristretto.Cache
}

const memberContextCacheMaxEntries = 32 * 1024

func NewMemberContextCache() (*MemberContextCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: memberContextCacheMaxEntries * 10,
		MaxCost:     memberContextCacheMaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemberContextCache{cache: cache}, nil
}

func memberKey(roomID, userID string) string {
	return roomID + "\x1f" + userID
}

func (c *MemberContextCache) GetMemberContext(roomID, userID string) (types.MemberContext, bool) {
	v, ok := c.cache.Get(memberKey(roomID, userID))
	if !ok {
		return types.MemberContext{}, false
	}
	mc, ok := v.(types.MemberContext)
	return mc, ok
}

func (c *MemberContextCache) StoreMemberContext(roomID, userID string, mc types.MemberContext) {
	c.cache.Set(memberKey(roomID, userID), mc, 1)
}

func (c *MemberContextCache) InvalidateMemberContext(roomID, userID string) {
	c.cache.Del(memberKey(roomID, userID))
}
