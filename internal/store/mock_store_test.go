// ABOUTME: Unit tests for MockStore to ensure behavior matches FileStore
// ABOUTME: Focuses on persist-failure injection and rollback

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FaCsaba/SmellyBot/internal/schema"
)

func TestMockStore_FailPersistRollsBack(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertUser(ctx, schema.User{ID: "u1", Count: 1}))
	assert.Equal(t, 1, m.Persists)

	m.FailPersist = true
	err := m.UpsertUser(ctx, schema.User{ID: "u1", Count: 2})
	require.ErrorIs(t, err, ErrPersist)

	_, err = m.RemovePassword(ctx, "m1")
	require.ErrorIs(t, err, ErrPersist)

	u, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.Count)
	assert.Equal(t, 1, m.Persists)
}

func TestMockStore_SeededStateIsCopied(t *testing.T) {
	seed := schema.NewState()
	seed.Channels = []schema.ChannelID{"c1"}

	m := NewMockStoreFrom(seed)
	seed.Channels[0] = "mutated"

	got, err := m.Channels(context.Background(), schema.Increment)
	require.NoError(t, err)
	assert.Equal(t, []schema.ChannelID{"c1"}, got)
}

func TestMockStore_SkippedUpdateDoesNotPersist(t *testing.T) {
	m := NewMockStore()

	_, written, err := m.UpdateUser(context.Background(), "u1", func(current schema.User, exists bool) (schema.User, bool) {
		return current, false
	})
	require.NoError(t, err)
	assert.False(t, written)
	assert.Zero(t, m.Persists)

	_, err = m.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}
