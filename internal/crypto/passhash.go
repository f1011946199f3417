// Package crypto implements server-side password hashing and verification code generation.
package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	hashVariant = "argon2id"
	hashVersion = "v=19"
)

// Params are the tunable Argon2id parameters.
type Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultParams are tuned for interactive login on a server.
var DefaultParams = Params{
	Time:    3,
	Memory:  64 * 1024, // 64 MB
	Threads: 1,
	SaltLen: 16,
	KeyLen:  32,
}

// Cost bounds accepted by both Validate and Verify. A hash written with
// params outside them could never be verified.
const (
	MaxTime   = 16
	MaxMemory = 1 << 20 // KiB
)

// Validate rejects parameter sets too weak to be useful or too costly to verify.
func (p Params) Validate() error {
	switch {
	case p.Time == 0 || p.Time > MaxTime:
		return fmt.Errorf("argon2: time must be in 1..%d", MaxTime)
	case p.Memory < 8*1024 || p.Memory > MaxMemory:
		return fmt.Errorf("argon2: memory must be in 8192..%d KiB", MaxMemory)
	case p.Threads == 0:
		return errors.New("argon2: threads must be > 0")
	case p.SaltLen < 8:
		return errors.New("argon2: salt must be >= 8 bytes")
	case p.KeyLen < 16:
		return errors.New("argon2: key must be >= 16 bytes")
	}
	return nil
}

// Hasher hashes passwords with a fresh per-call salt embedded in the output.
type Hasher struct {
	p Params
}

// NewHasher constructs a Hasher with validated params.
func NewHasher(p Params) (*Hasher, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{p: p}, nil
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Hash returns the encoded Argon2id hash of password:
// argon2id$v=19$m=<mem>,t=<time>,p=<threads>$<salt>$<key>
func (h *Hasher) Hash(password string) ([]byte, error) {
	salt, err := RandBytes(int(h.p.SaltLen))
	if err != nil {
		return nil, fmt.Errorf("argon2: salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.p.Time, h.p.Memory, h.p.Threads, h.p.KeyLen)

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s$%s$m=%d,t=%d,p=%d$%s$%s",
		hashVariant, hashVersion,
		h.p.Memory, h.p.Time, h.p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return b.Bytes(), nil
}

// Verify recomputes the hash with the parameters and salt embedded in encoded
// and compares in constant time. Malformed input yields false.
func (h *Hasher) Verify(password string, encoded []byte) bool {
	p, salt, want, ok := decode(encoded)
	if !ok {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func decode(encoded []byte) (Params, []byte, []byte, bool) {
	parts := strings.Split(string(encoded), "$")
	if len(parts) != 5 || parts[0] != hashVariant || parts[1] != hashVersion {
		return Params{}, nil, nil, false
	}
	var p Params
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return Params{}, nil, nil, false
	}
	// Bound the cost so a tampered row cannot stall the server.
	if p.Time == 0 || p.Threads == 0 || p.Memory == 0 || p.Time > MaxTime || p.Memory > MaxMemory {
		return Params{}, nil, nil, false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) < 16 {
		return Params{}, nil, nil, false
	}
	return p, salt, key, true
}

// CodeLen is the verification code length.
const CodeLen = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode returns a verification code drawn uniformly from [A-Z0-9].
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, CodeLen)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out), nil
}
