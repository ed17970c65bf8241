package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/baycode/community/session"
	"github.com/kasuganosora/baycode/config"
	"github.com/kasuganosora/baycode/store"
	"github.com/kasuganosora/baycode/store/kvstore"
	"github.com/kasuganosora/baycode/store/sqlstore"
	"github.com/kasuganosora/baycode/testutil"
)

func TestNewAdapter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)

	a, err := newAdapter(config.StorageConfig{Mode: storageSQL}, db, c)
	require.NoError(t, err)
	assert.IsType(t, &sqlstore.Store{}, a)

	a, err = newAdapter(config.StorageConfig{Mode: storageCache, CacheKey: "k"}, db, c)
	require.NoError(t, err)
	assert.IsType(t, &kvstore.Store{}, a)

	a, err = newAdapter(config.StorageConfig{Mode: storageMemory}, db, c)
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, a)

	_, err = newAdapter(config.StorageConfig{Mode: "tape"}, db, c)
	assert.Error(t, err)
}

func TestNewSessionStore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)

	assert.IsType(t, &sqlstore.Sessions{}, newSessionStore(config.CacheConfig{}, db, c),
		"without redis sessions must outlive the process")
	assert.IsType(t, &session.CacheStore{}, newSessionStore(config.CacheConfig{RedisAddr: "127.0.0.1:6379"}, db, c))
}

func TestRootCmd(t *testing.T) {
	root := newRootCmd()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate"}, names)
	assert.Equal(t, "config/config.yaml", root.PersistentFlags().Lookup("config").DefValue)
}

func TestRunMigrate_MemoryDB(t *testing.T) {
	t.Setenv("BAYCODE_DATABASE_MODE", "memory")
	assert.NoError(t, runMigrate(t.TempDir()+"/missing.yaml"))
}
