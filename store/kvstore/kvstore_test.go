package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kasuganosora/baycode/cache"
	"github.com/kasuganosora/baycode/community"
	"github.com/kasuganosora/baycode/model"
	"github.com/kasuganosora/baycode/store"
	"github.com/kasuganosora/baycode/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *store.Snapshot {
	exp := time.Date(2024, 2, 1, 11, 0, 0, 0, time.UTC)
	return &store.Snapshot{
		Accounts: []model.Account{{
			ID: "a1", Username: "alice", Email: "a@x.com", PasswordHash: "$argon2id$v=19$m=1,t=1,p=1$c2FsdA$a2V5",
			Guild: "Red Guild", SolvedProblems: []string{"two-sum"}, ResetToken: "tok", ResetTokenExpiry: &exp,
		}},
		Guilds:       []model.Guild{{Name: "Blue Guild", Position: 0}, {Name: "Red Guild", Position: 1, Members: []string{"a1"}}},
		ChatMessages: []model.ChatMessage{{ID: "m1", Seq: 7, Username: "alice", Body: "hi", Guild: "Red Guild"}},
	}
}

func assertSample(t *testing.T, got *store.Snapshot) {
	t.Helper()
	require.NotNil(t, got)
	require.Len(t, got.Accounts, 1)
	a := got.Accounts[0]
	assert.Equal(t, "$argon2id$v=19$m=1,t=1,p=1$c2FsdA$a2V5", a.PasswordHash)
	assert.Equal(t, "tok", a.ResetToken)
	require.NotNil(t, a.ResetTokenExpiry)
	assert.True(t, time.Date(2024, 2, 1, 11, 0, 0, 0, time.UTC).Equal(*a.ResetTokenExpiry))
	assert.Equal(t, []string{"two-sum"}, []string(a.SolvedProblems))
	require.Len(t, got.Guilds, 2)
	assert.Equal(t, 1, got.Guilds[1].Position)
	require.Len(t, got.ChatMessages, 1)
	assert.Equal(t, int64(7), got.ChatMessages[0].Seq)
}

func TestLocalCache_RoundTrip(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	s := New(c, "")
	ctx := context.Background()

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, s.Save(ctx, sample()))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assertSample(t, got)

	raw, err := c.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"users"`)
}

func TestRedis_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewCache(cache.CacheConfig{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	s := New(c, "baycode:test")
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sample()))
	assert.True(t, mr.Exists("baycode:test"))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assertSample(t, got)
}

func TestLoad_CorruptDocument(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	require.NoError(t, c.Set(context.Background(), DefaultKey, "{not json", 0))

	_, err := New(c, "").Load(context.Background())
	assert.ErrorIs(t, err, community.ErrPersistence)
}

func TestSave_CacheDown(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewCache(cache.CacheConfig{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	mr.Close()

	err = New(c, "").Save(context.Background(), sample())
	assert.ErrorIs(t, err, community.ErrPersistence)
}
