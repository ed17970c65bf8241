package account

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kasuganosora/baycode/clock"
	"github.com/kasuganosora/baycode/community"
	"github.com/kasuganosora/baycode/config"
	"github.com/kasuganosora/baycode/hook"
	"github.com/kasuganosora/baycode/mail"
	"github.com/kasuganosora/baycode/model"
	"github.com/kasuganosora/baycode/password"
	"github.com/kasuganosora/baycode/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type failingSender struct{}

func (failingSender) SendPasswordResetLink(context.Context, string, string, time.Duration) error {
	return errors.New("smtp relay down")
}

type fixture struct {
	store  *Store
	clock  *clock.Mock
	rand   *random.Fixed
	mailer *mail.LogSender
	hooks  *hook.Center
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default().Community
	f := &fixture{
		clock:  clock.NewMock(epoch),
		rand:   &random.Fixed{Picks: []int{0}},
		mailer: mail.NewLogSender("noreply@baycode.org", "https://baycode.org/reset-password.html", zap.NewNop()),
		hooks:  hook.NewCenter(),
	}
	f.store = New(cfg, password.Bcrypt{Cost: 4}, f.mailer, f.hooks, f.clock, f.rand, zap.NewNop())
	return f
}

func alice() Registration {
	return Registration{Username: "alice", Email: "alice@x.com", Password: "secret1", FullName: "Alice", School: "Lowell", BayArea: true}
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)
	f.rand.Picks = []int{2}

	acc, err := f.store.Register(context.Background(), alice())
	require.NoError(t, err)
	assert.NotEmpty(t, acc.ID)
	assert.Equal(t, "alice", acc.Username)
	assert.Equal(t, "Green Guild", acc.Guild)
	assert.Equal(t, 0, acc.Points)
	assert.Equal(t, 0, acc.RespectPoints)
	assert.Equal(t, "Tier I", acc.RespectRank)
	assert.Equal(t, epoch, acc.JoinedAt)
	assert.NotNil(t, acc.SolvedProblems)
	assert.Empty(t, acc.SolvedProblems)
	assert.NotEqual(t, "secret1", acc.PasswordHash)
	assert.Equal(t, 1, f.store.Len())
}

func TestRegister_GuildFromFixedSet(t *testing.T) {
	f := newFixture(t)
	f.rand.Picks = []int{0, 1, 2, 3, 4, 5, 6}
	for i := range 7 {
		acc, err := f.store.Register(context.Background(), Registration{
			Username: fmt.Sprintf("u%d", i), Email: fmt.Sprintf("u%d@x.com", i), Password: "secret1",
		})
		require.NoError(t, err)
		assert.Contains(t, config.DefaultGuilds, acc.Guild)
	}
}

func TestRegister_WeakCredential(t *testing.T) {
	f := newFixture(t)
	for _, pw := range []string{"", "a", "12345", "héllo"} {
		reg := alice()
		reg.Password = pw
		_, err := f.store.Register(context.Background(), reg)
		assert.ErrorIs(t, err, community.ErrWeakCredential, pw)
	}
	assert.Equal(t, 0, f.store.Len())

	// Six characters, counted as runes.
	reg := alice()
	reg.Password = "héllo!"
	_, err := f.store.Register(context.Background(), reg)
	require.NoError(t, err)
}

func TestRegister_Duplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Register(ctx, alice())
	require.NoError(t, err)

	_, err = f.store.Register(ctx, Registration{Username: "alice", Email: "other@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, community.ErrDuplicateUsername)

	_, err = f.store.Register(ctx, Registration{Username: "bob", Email: "alice@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, community.ErrDuplicateEmail)

	// Username is checked before email, email before credential strength.
	_, err = f.store.Register(ctx, Registration{Username: "alice", Email: "alice@x.com", Password: "x"})
	assert.ErrorIs(t, err, community.ErrDuplicateUsername)
	_, err = f.store.Register(ctx, Registration{Username: "carol", Email: "alice@x.com", Password: "x"})
	assert.ErrorIs(t, err, community.ErrDuplicateEmail)

	assert.Equal(t, 1, f.store.Len())
}

func TestRegister_MissingFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Register(context.Background(), Registration{Username: " ", Email: "a@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, community.ErrMissingField)
}

func TestRegister_TriggersHook(t *testing.T) {
	f := newFixture(t)
	var got model.Account
	f.hooks.Register(hook.OnAccountRegistered, 0, "test", func(_ context.Context, _ string, data any) (any, error) {
		got = data.(model.Account)
		// Handlers may read the store from inside the hook.
		_, err := f.store.Get(got.ID)
		return data, err
	})

	acc, err := f.store.Register(context.Background(), alice())
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg, err := f.store.Register(ctx, alice())
	require.NoError(t, err)

	var failed []string
	f.hooks.Register(hook.OnLoginFailed, 0, "test", func(_ context.Context, _ string, data any) (any, error) {
		failed = append(failed, data.(string))
		return data, nil
	})

	acc, err := f.store.Authenticate(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, acc.ID)

	_, err = f.store.Authenticate(ctx, "alice", "wrong!!")
	assert.ErrorIs(t, err, community.ErrInvalidCredential)

	_, err = f.store.Authenticate(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, community.ErrUserNotFound)

	assert.Equal(t, []string{"alice", "nobody"}, failed)
}

func TestAuthenticate_PasswordHashedWithOtherAlgorithm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Register(ctx, alice())
	require.NoError(t, err)

	// Switch to argon2id for new hashes; the bcrypt account keeps working.
	f.store.hasher = password.Argon2id{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}
	_, err = f.store.Register(ctx, Registration{Username: "bob", Email: "bob@x.com", Password: "hunter22"})
	require.NoError(t, err)

	_, err = f.store.Authenticate(ctx, "alice", "secret1")
	assert.NoError(t, err)
	_, err = f.store.Authenticate(ctx, "bob", "hunter22")
	assert.NoError(t, err)
}

func TestPasswordReset_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Register(ctx, alice())
	require.NoError(t, err)

	token, err := f.store.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Len(t, token, ResetTokenLen)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@x.com", sent[0].To)
	assert.Contains(t, sent[0].Link, "token="+token)
	assert.Contains(t, sent[0].Body, "expire in 1 hour", "default community.reset_token_ttl")

	acc, err := f.store.ByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, acc.ResetTokenExpiry)
	assert.Equal(t, epoch.Add(time.Hour), *acc.ResetTokenExpiry)

	require.NoError(t, f.store.ResetPassword(ctx, token, "newpass1"))

	_, err = f.store.Authenticate(ctx, "alice", "secret1")
	assert.ErrorIs(t, err, community.ErrInvalidCredential)
	_, err = f.store.Authenticate(ctx, "alice", "newpass1")
	assert.NoError(t, err)

	acc, _ = f.store.ByUsername("alice")
	assert.Empty(t, acc.ResetToken)
	assert.Nil(t, acc.ResetTokenExpiry)

	// The token is single use.
	assert.ErrorIs(t, f.store.ResetPassword(ctx, token, "another1"), community.ErrInvalidToken)
}

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.RequestPasswordReset(context.Background(), "ghost@x.com")
	assert.ErrorIs(t, err, community.ErrUserNotFound)
	assert.Empty(t, f.mailer.Sent())
}

func TestRequestPasswordReset_DeliveryFailed(t *testing.T) {
	f := newFixture(t)
	f.store.mailer = failingSender{}
	ctx := context.Background()
	_, err := f.store.Register(ctx, alice())
	require.NoError(t, err)

	token, err := f.store.RequestPasswordReset(ctx, "alice@x.com")
	assert.ErrorIs(t, err, community.ErrDeliveryFailed)

	// The token stays stored after a failed delivery.
	assert.NoError(t, f.store.ResetPassword(ctx, token, "newpass1"))
}

func TestRequestPasswordReset_ReplacesOldToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Register(ctx, alice())
	require.NoError(t, err)

	f.rand.Token = "first-token"
	first, err := f.store.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)
	f.rand.Token = "second-token"
	second, err := f.store.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)

	assert.ErrorIs(t, f.store.ResetPassword(ctx, first, "newpass1"), community.ErrInvalidToken)
	assert.NoError(t, f.store.ResetPassword(ctx, second, "newpass1"))
}

func TestResetPassword_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Register(ctx, alice())
	require.NoError(t, err)
	token, err := f.store.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)

	f.clock.Advance(time.Hour + time.Second)
	assert.ErrorIs(t, f.store.ResetPassword(ctx, token, "newpass1"), community.ErrTokenExpired)

	_, err = f.store.Authenticate(ctx, "alice", "secret1")
	assert.NoError(t, err, "credential must be unchanged")
}

func TestResetPassword_ExactlyAtExpiryStillValid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Register(ctx, alice())
	require.NoError(t, err)
	token, err := f.store.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	assert.NoError(t, f.store.ResetPassword(ctx, token, "newpass1"))
}

func TestResetPassword_InvalidAndWeak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Register(ctx, alice())
	require.NoError(t, err)
	token, err := f.store.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)

	assert.ErrorIs(t, f.store.ResetPassword(ctx, "", "newpass1"), community.ErrInvalidToken)
	assert.ErrorIs(t, f.store.ResetPassword(ctx, "nope", "newpass1"), community.ErrInvalidToken)
	assert.ErrorIs(t, f.store.ResetPassword(ctx, token, "short"), community.ErrWeakCredential)
}

func TestRecordSolvedProblem_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, err := f.store.Register(ctx, alice())
	require.NoError(t, err)

	ok, err := f.store.RecordSolvedProblem(ctx, acc.ID, "P1", 5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.store.RecordSolvedProblem(ctx, acc.ID, "P1", 5)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := f.store.Get(acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Points)
	assert.Equal(t, 5, got.RespectPoints)
	assert.Equal(t, []string{"P1"}, []string(got.SolvedProblems))
}

func TestRecordSolvedProblem_RankProgression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, err := f.store.Register(ctx, alice())
	require.NoError(t, err)

	ok, err := f.store.RecordSolvedProblem(ctx, acc.ID, "two-sum", 1)
	require.NoError(t, err)
	require.True(t, ok)
	got, _ := f.store.Get(acc.ID)
	assert.Equal(t, 10, got.Points)
	assert.Equal(t, 1, got.RespectPoints)
	assert.Equal(t, "Tier I", got.RespectRank)

	for i := range 9 {
		_, err := f.store.RecordSolvedProblem(ctx, acc.ID, fmt.Sprintf("p-%d", i), 1)
		require.NoError(t, err)
	}
	got, _ = f.store.Get(acc.ID)
	assert.Equal(t, 100, got.Points)
	assert.Equal(t, 10, got.RespectPoints)
	assert.Equal(t, "Tier II", got.RespectRank)
}

func TestRecordSolvedProblem_EventsAndErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, err := f.store.Register(ctx, alice())
	require.NoError(t, err)

	var solved []hook.SolvedEvent
	var changed []int
	f.hooks.Register(hook.OnProblemSolved, 0, "test", func(_ context.Context, _ string, data any) (any, error) {
		solved = append(solved, data.(hook.SolvedEvent))
		return data, nil
	})
	f.hooks.Register(hook.OnRespectChanged, 0, "test", func(_ context.Context, _ string, data any) (any, error) {
		changed = append(changed, data.(model.Account).RespectPoints)
		return data, nil
	})

	_, err = f.store.RecordSolvedProblem(ctx, acc.ID, "P1", -3)
	require.NoError(t, err)
	assert.Equal(t, []hook.SolvedEvent{{AccountID: acc.ID, ProblemID: "P1", Respect: 0}}, solved)
	assert.Equal(t, []int{0}, changed)

	_, err = f.store.RecordSolvedProblem(ctx, "missing", "P1", 1)
	assert.ErrorIs(t, err, community.ErrUserNotFound)
	_, err = f.store.RecordSolvedProblem(ctx, acc.ID, "", 1)
	assert.ErrorIs(t, err, community.ErrUnknownProblem)
}

func TestGet_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, err := f.store.Register(ctx, alice())
	require.NoError(t, err)
	_, err = f.store.RecordSolvedProblem(ctx, acc.ID, "P1", 1)
	require.NoError(t, err)

	got, _ := f.store.Get(acc.ID)
	got.SolvedProblems[0] = "tampered"
	got.Points = 999

	again, _ := f.store.Get(acc.ID)
	assert.Equal(t, "P1", again.SolvedProblems[0])
	assert.Equal(t, 10, again.Points)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	f.store.Restore([]model.Account{
		{ID: "a1", Username: "alice", Email: "a@x.com", Guild: "Red Guild", RespectPoints: 25, RespectRank: "stale",
			SolvedProblems: []string{"p1", "p1", "p2"}},
		{ID: "a2", Username: "alice", Email: "other@x.com", Guild: "Red Guild"},
		{ID: "a3", Username: "bob", Email: "b@x.com", Guild: "Blue Guild", Points: -5},
	})

	all := f.store.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a1", all[0].ID)
	assert.Equal(t, "Tier III", all[0].RespectRank)
	assert.Equal(t, []string{"p1", "p2"}, []string(all[0].SolvedProblems))
	assert.Equal(t, "a3", all[1].ID)
	assert.Equal(t, 0, all[1].Points)

	_, err := f.store.ByUsername("bob")
	assert.NoError(t, err)
}

func TestSweepExpiredResetTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Register(ctx, alice())
	require.NoError(t, err)
	_, err = f.store.Register(ctx, Registration{Username: "bob", Email: "bob@x.com", Password: "secret1"})
	require.NoError(t, err)

	f.rand.Token = "alice-token"
	_, err = f.store.RequestPasswordReset(ctx, "alice@x.com")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)
	f.rand.Token = "bob-token"
	_, err = f.store.RequestPasswordReset(ctx, "bob@x.com")
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.SweepExpiredResetTokens(epoch.Add(61*time.Minute)))
	assert.ErrorIs(t, f.store.ResetPassword(ctx, "alice-token", "newpass1"), community.ErrInvalidToken)
	assert.NoError(t, f.store.ResetPassword(ctx, "bob-token", "newpass1"))
}
