// Package random provides injectable randomness for guild assignment and
// reset tokens.
package random

import (
	"crypto/rand"
	"math/big"
)

// TokenAlphabet is the character set used for password-reset tokens.
const TokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Random generates random values.
type Random interface {
	// Intn returns a value in [0, n).
	Intn(n int) int
	// String returns length characters drawn from alphabet.
	String(length int, alphabet string) string
}

// Crypto draws from crypto/rand.
type Crypto struct{}

// New returns a crypto/rand backed Random.
func New() Crypto { return Crypto{} }

// Intn returns a uniformly distributed value in [0, n), or 0 when n <= 0.
func (Crypto) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// String returns a random string over alphabet.
func (c Crypto) String(length int, alphabet string) string {
	if length <= 0 || alphabet == "" {
		return ""
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = alphabet[c.Intn(len(alphabet))]
	}
	return string(out)
}

// Fixed is a deterministic Random for tests. Intn cycles through Picks
// (modulo n); String returns Token, or a repeated first alphabet character
// when Token is empty.
type Fixed struct {
	Picks []int
	Token string
	next  int
}

// Intn returns the next pick modulo n.
func (f *Fixed) Intn(n int) int {
	if n <= 0 || len(f.Picks) == 0 {
		return 0
	}
	v := f.Picks[f.next%len(f.Picks)]
	f.next++
	return v % n
}

// String returns the configured token.
func (f *Fixed) String(length int, alphabet string) string {
	if f.Token != "" {
		return f.Token
	}
	if length <= 0 || alphabet == "" {
		return ""
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = alphabet[0]
	}
	return string(out)
}
