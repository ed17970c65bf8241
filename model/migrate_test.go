package model_test

import (
	"testing"
	"time"

	"github.com/kasuganosora/baycode/model"
	"github.com/kasuganosora/baycode/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	acc := &model.Account{
		ID:             "acc-1",
		Username:       "alice",
		Email:          "alice@x.com",
		PasswordHash:   "hash",
		Guild:          "Blue Guild",
		JoinedAt:       time.Now(),
		SolvedProblems: datatypes.JSONSlice[string]{"1", "5"},
		RespectRank:    "Tier I",
	}
	require.NoError(t, db.Create(acc).Error)

	var found model.Account
	require.NoError(t, db.First(&found, "id = ?", "acc-1").Error)
	assert.Equal(t, "alice", found.Username)
	assert.Equal(t, []string{"1", "5"}, []string(found.SolvedProblems))

	guild := &model.Guild{Name: "Blue Guild", Members: datatypes.JSONSlice[string]{"acc-1"}, RespectRank: "Tier I"}
	require.NoError(t, db.Create(guild).Error)

	var g model.Guild
	require.NoError(t, db.First(&g, "name = ?", "Blue Guild").Error)
	assert.Equal(t, []string{"acc-1"}, []string(g.Members))

	msg := &model.ChatMessage{ID: "m1", Seq: 1, Username: "alice", Body: "hi", Timestamp: time.Now(), Guild: "Blue Guild"}
	require.NoError(t, db.Create(msg).Error)

	al := &model.AuditLog{TraceID: "trace-001", AccountID: "acc-1", Action: "login"}
	require.NoError(t, db.Create(al).Error)
	assert.Greater(t, al.ID, int64(0))
}

func TestAccount_UniqueUsername(t *testing.T) {
	db := testutil.SetupTestDB(t)
	require.NoError(t, db.Create(&model.Account{ID: "a", Username: "bob", Email: "b1@x.com", PasswordHash: "h", Guild: "Red Guild"}).Error)
	err := db.Create(&model.Account{ID: "b", Username: "bob", Email: "b2@x.com", PasswordHash: "h", Guild: "Red Guild"}).Error
	assert.Error(t, err)
}

func TestAccount_CloneIsDeep(t *testing.T) {
	exp := time.Now()
	a := model.Account{SolvedProblems: datatypes.JSONSlice[string]{"1"}, ResetTokenExpiry: &exp}
	c := a.Clone()
	c.SolvedProblems[0] = "changed"
	*c.ResetTokenExpiry = exp.Add(time.Hour)
	assert.Equal(t, "1", a.SolvedProblems[0])
	assert.Equal(t, exp, *a.ResetTokenExpiry)
	assert.True(t, a.HasSolved("1"))
	assert.False(t, a.HasSolved("2"))
}

func TestGuild_CloneNilMembers(t *testing.T) {
	g := model.Guild{Name: "Pink Guild"}.Clone()
	assert.NotNil(t, g.Members)
	assert.Empty(t, g.Members)
}
