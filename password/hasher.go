package password

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrPasswordTooLong is returned when a password exceeds what the hasher can read.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrUnknownEncoding is returned when a stored hash matches no known format.
	ErrUnknownEncoding = errors.New("unknown password hash encoding")
)

// Hasher turns a password into an opaque encoded hash and checks candidates
// against it. Implementations are safe for concurrent use.
type Hasher interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches encoded. A mismatch is
	// (false, nil); a malformed encoding is an error.
	Verify(password, encoded string) (bool, error)
	// NeedsRehash reports whether encoded was produced with weaker or
	// different parameters than the hasher's current ones.
	NeedsRehash(encoded string) (bool, error)
}

// Dispatcher hashes with a primary Hasher and verifies whichever supported
// encoding it is given.
type Dispatcher struct {
	primary Hasher
	argon   *Argon2
	bcrypt  *Bcrypt
}

// Dispatch returns a Dispatcher that hashes with primary. Verification of the
// other encoding uses default parameters.
func Dispatch(primary Hasher) *Dispatcher {
	d := &Dispatcher{primary: primary, argon: DefaultArgon2(), bcrypt: DefaultBcrypt()}
	switch p := primary.(type) {
	case *Argon2:
		d.argon = p
	case *Bcrypt:
		d.bcrypt = p
	}
	return d
}

// Hash implements Hasher using the primary hasher.
func (d *Dispatcher) Hash(password string) (string, error) {
	return d.primary.Hash(password)
}

// Verify implements Hasher, selecting the verifier from the encoding prefix.
func (d *Dispatcher) Verify(password, encoded string) (bool, error) {
	h, err := d.pick(encoded)
	if err != nil {
		return false, err
	}
	return h.Verify(password, encoded)
}

// NeedsRehash is true for any encoding the primary hasher did not produce.
func (d *Dispatcher) NeedsRehash(encoded string) (bool, error) {
	h, err := d.pick(encoded)
	if err != nil {
		return false, err
	}
	if h != d.primary {
		return true, nil
	}
	return h.NeedsRehash(encoded)
}

func (d *Dispatcher) pick(encoded string) (Hasher, error) {
	switch {
	case strings.HasPrefix(encoded, "$"+argonID+"$"):
		return d.argon, nil
	case isBcrypt(encoded):
		return d.bcrypt, nil
	default:
		return nil, ErrUnknownEncoding
	}
}
