// Package password hashes and verifies account credentials.
//
// New hashes use the configured algorithm. Verification picks the algorithm
// from the stored hash, so switching security.password_hasher keeps older
// accounts able to log in.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgArgon2id = "argon2id"
	AlgBcrypt   = "bcrypt"
)

// ErrUnknownHash is returned by Verify for a hash no Hasher produced.
var ErrUnknownHash = errors.New("password: unrecognised hash format")

// Hasher derives and checks credential hashes.
type Hasher interface {
	Hash(plain string) (string, error)
	// Verify reports whether plain matches hash. A mismatch is (false, nil).
	Verify(hash, plain string) (bool, error)
}

// New returns the Hasher named by alg. bcryptCost is only used for bcrypt.
func New(alg string, bcryptCost int) (Hasher, error) {
	switch alg {
	case "", AlgArgon2id:
		return DefaultArgon2id(), nil
	case AlgBcrypt:
		if bcryptCost == 0 {
			bcryptCost = bcrypt.DefaultCost
		}
		if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("password: bcrypt cost %d out of range", bcryptCost)
		}
		return Bcrypt{Cost: bcryptCost}, nil
	default:
		return nil, fmt.Errorf("password: unknown hasher %q", alg)
	}
}

// Verify checks plain against a hash produced by any Hasher in this package.
func Verify(hash, plain string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return Argon2id{}.Verify(hash, plain)
	case strings.HasPrefix(hash, "$2"):
		return Bcrypt{}.Verify(hash, plain)
	default:
		return false, ErrUnknownHash
	}
}

// Bcrypt hashes with golang.org/x/crypto/bcrypt.
type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Hash(plain string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plain), b.Cost)
	if err != nil {
		return "", fmt.Errorf("password: bcrypt: %w", err)
	}
	return string(out), nil
}

func (Bcrypt) Verify(hash, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("password: bcrypt: %w", err)
	}
	return true, nil
}

// Argon2id hashes with golang.org/x/crypto/argon2 and encodes the result in
// the PHC string format: $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>.
type Argon2id struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgon2id uses the RFC 9106 second recommended parameter set.
func DefaultArgon2id() Argon2id {
	return Argon2id{Time: 3, Memory: 64 * 1024, Threads: 4, KeyLen: 32, SaltLen: 16}
}

var b64 = base64.RawStdEncoding

func (a Argon2id) Hash(plain string) (string, error) {
	salt := make([]byte, a.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, a.Time, a.Memory, a.Threads, a.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, a.Memory, a.Time, a.Threads, b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify ignores the receiver's parameters and uses those encoded in hash.
func (Argon2id) Verify(hash, plain string) (bool, error) {
	p, salt, key, err := decodeArgon2id(hash)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

func decodeArgon2id(hash string) (Argon2id, []byte, []byte, error) {
	var p Argon2id
	parts := strings.Split(hash, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	if len(parts) != 6 || parts[1] != AlgArgon2id {
		return p, nil, nil, ErrUnknownHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("password: argon2id version %q: %w", parts[2], ErrUnknownHash)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, fmt.Errorf("password: argon2id params %q: %w", parts[3], ErrUnknownHash)
	}
	// argon2.IDKey panics on zero time or threads.
	if p.Memory == 0 || p.Time == 0 || p.Threads == 0 {
		return p, nil, nil, fmt.Errorf("password: argon2id params %q: %w", parts[3], ErrUnknownHash)
	}
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("password: argon2id salt: %w", ErrUnknownHash)
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("password: argon2id key: %w", ErrUnknownHash)
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))
	return p, salt, key, nil
}
