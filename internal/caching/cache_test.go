// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package caching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-hq/roomsync/types"
)

func TestMemberContextCacheRoundTrip(t *testing.T) {
	cache, err := NewMemberContextCache()
	require.NoError(t, err)

	mc := types.MemberContext{DisplayName: "Bob", AvatarURL: "mxc://test/bob"}
	cache.StoreMemberContext("!r:test", "@bob:test", mc)

	// Ristretto admits writes asynchronously.
	require.Eventually(t, func() bool {
		got, ok := cache.GetMemberContext("!r:test", "@bob:test")
		return ok && got == mc
	}, time.Second, 10*time.Millisecond)

	cache.InvalidateMemberContext("!r:test", "@bob:test")
	require.Eventually(t, func() bool {
		_, ok := cache.GetMemberContext("!r:test", "@bob:test")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemberContextCacheKeysByRoom(t *testing.T) {
	cache, err := NewMemberContextCache()
	require.NoError(t, err)

	cache.StoreMemberContext("!a:test", "@bob:test", types.MemberContext{DisplayName: "Bob"})
	require.Eventually(t, func() bool {
		_, ok := cache.GetMemberContext("!a:test", "@bob:test")
		return ok
	}, time.Second, 10*time.Millisecond)

	// The same user in another room is a different profile.
	_, ok := cache.GetMemberContext("!b:test", "@bob:test")
	assert.False(t, ok)
}

func TestTypingCacheSetAndClear(t *testing.T) {
	cache := NewTypingCache(time.Minute)

	cache.SetTypingUsers("!r:test", []string{"@bob:test", "@carol:test"})
	assert.Equal(t, []string{"@bob:test", "@carol:test"}, cache.GetTypingUsers("!r:test"))

	cache.SetTypingUsers("!r:test", nil)
	assert.Nil(t, cache.GetTypingUsers("!r:test"))
}

func TestTypingCacheDecays(t *testing.T) {
	cache := NewTypingCache(50 * time.Millisecond)

	cache.SetTypingUsers("!r:test", []string{"@bob:test"})
	require.Eventually(t, func() bool {
		return cache.GetTypingUsers("!r:test") == nil
	}, time.Second, 10*time.Millisecond)
}

func TestTypingCacheDefaultsTimeout(t *testing.T) {
	cache := NewTypingCache(0)
	cache.SetTypingUsers("!r:test", []string{"@bob:test"})
	assert.NotNil(t, cache.GetTypingUsers("!r:test"))
}
