package auth

import (
	"testing"
	"time"

	"github.com/kasuganosora/baycode/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-32bytes-padded!!"

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer(testSecret, time.Hour, nil)
	tok, err := iss.Issue("acc-99")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	claims, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "acc-99", claims.AccountID)
	assert.Equal(t, "acc-99", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestParse_WrongSecret(t *testing.T) {
	tok, err := NewIssuer(testSecret, time.Hour, nil).Issue("acc-1")
	require.NoError(t, err)

	_, err = NewIssuer("wrong-secret", time.Hour, nil).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Expired(t *testing.T) {
	clk := clock.NewMock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	iss := NewIssuer(testSecret, time.Hour, clk)
	tok, err := iss.Issue("acc-1")
	require.NoError(t, err)

	clk.Advance(59 * time.Minute)
	_, err = iss.Parse(tok)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Malformed(t *testing.T) {
	iss := NewIssuer(testSecret, time.Hour, nil)
	for _, in := range []string{"", "not.a.jwt", "abc"} {
		_, err := iss.Parse(in)
		assert.ErrorIs(t, err, ErrInvalidToken, in)
	}
}

func TestIssue_SameAccountDistinctTokens(t *testing.T) {
	clk := clock.NewMock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	iss := NewIssuer(testSecret, time.Hour, clk)
	t1, err := iss.Issue("acc-1")
	require.NoError(t, err)
	t2, err := iss.Issue("acc-1")
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
}

func TestTTL(t *testing.T) {
	assert.Equal(t, 72*time.Hour, NewIssuer(testSecret, 72*time.Hour, nil).TTL())
}
