package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argonID = "argon2id"

const (
	minArgonMemoryKB uint32 = 8 * 1024
	minArgonSalt     uint32 = 16
	minArgonKey      uint32 = 16
)

// Argon2Params are the Argon2id cost parameters.
type Argon2Params struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns 64 MiB, 3 iterations, 2 lanes, 16-byte salt and 32-byte key.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{MemoryKB: 64 * 1024, Iterations: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

// Validate rejects parameters below the accepted floor.
func (p Argon2Params) Validate() error {
	switch {
	case p.MemoryKB < minArgonMemoryKB:
		return fmt.Errorf("argon2 memory must be >= %d KB", minArgonMemoryKB)
	case p.Iterations < 1:
		return errors.New("argon2 iterations must be >= 1")
	case p.Parallelism < 1:
		return errors.New("argon2 parallelism must be >= 1")
	case p.SaltLength < minArgonSalt:
		return fmt.Errorf("argon2 salt length must be >= %d", minArgonSalt)
	case p.KeyLength < minArgonKey:
		return fmt.Errorf("argon2 key length must be >= %d", minArgonKey)
	}
	return nil
}

// Argon2 is an Argon2id Hasher.
type Argon2 struct {
	params Argon2Params
}

// NewArgon2 validates p and returns a hasher.
func NewArgon2(p Argon2Params) (*Argon2, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Argon2{params: p}, nil
}

// DefaultArgon2 returns a hasher with DefaultArgon2Params.
func DefaultArgon2() *Argon2 {
	return &Argon2{params: DefaultArgon2Params()}
}

// Hash implements Hasher. Password bytes are used as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, a.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, a.params.Iterations, a.params.MemoryKB, a.params.Parallelism, a.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argonID, argon2.Version,
		a.params.MemoryKB, a.params.Iterations, a.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify implements Hasher.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	stored, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), stored.salt, stored.params.Iterations, stored.params.MemoryKB, stored.params.Parallelism, stored.params.KeyLength)
	return subtle.ConstantTimeCompare(candidate, stored.key) == 1, nil
}

// NeedsRehash implements Hasher.
func (a *Argon2) NeedsRehash(encoded string) (bool, error) {
	stored, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}
	p := stored.params
	return a.params.MemoryKB > p.MemoryKB ||
		a.params.Iterations > p.Iterations ||
		a.params.Parallelism > p.Parallelism ||
		a.params.KeyLength != p.KeyLength, nil
}

type argon2Hash struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func decodeArgon2(encoded string) (*argon2Hash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argonID {
		return nil, errors.New("invalid argon2id encoding")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, errors.New("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var (
		h           argon2Hash
		parallelism uint32
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.MemoryKB, &h.params.Iterations, &parallelism); err != nil {
		return nil, errors.New("invalid argon2 parameters")
	}
	if parallelism == 0 || parallelism > 255 {
		return nil, errors.New("invalid argon2 parallelism")
	}
	h.params.Parallelism = uint8(parallelism)
	if h.params.MemoryKB < minArgonMemoryKB || h.params.Iterations < 1 {
		return nil, errors.New("argon2 parameters below floor")
	}

	var err error
	if h.salt, err = decodeB64(parts[4]); err != nil || len(h.salt) < int(minArgonSalt) {
		return nil, errors.New("invalid argon2 salt")
	}
	if h.key, err = decodeB64(parts[5]); err != nil || len(h.key) == 0 {
		return nil, errors.New("invalid argon2 key")
	}
	h.params.SaltLength = uint32(len(h.salt))
	h.params.KeyLength = uint32(len(h.key))
	return &h, nil
}

// decodeB64 accepts both unpadded (PHC standard) and padded base64.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
