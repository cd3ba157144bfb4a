// Package lock implements the passphrase gate in front of decryption. The
// lock passphrase is hashed independently of the file's symmetric key; it
// never becomes key material itself.
package lock

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor used for lock passphrases, in the range
// normal for password storage.
const Cost = 12

var (
	ErrNoLockConfigured = errors.New("no lock password configured for this file")
	ErrPasswordMismatch = errors.New("lock password does not match")
)

// Set hashes a plaintext lock passphrase for storage.
func Set(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify checks a supplied passphrase against the stored hash. It returns
// ErrNoLockConfigured when no hash is stored, which callers must check before
// attempting any decryption, and ErrPasswordMismatch on a wrong passphrase.
// bcrypt's comparison does not leak timing proportional to matching prefix
// bytes.
func Verify(password, storedHash string) error {
	if storedHash == "" {
		return ErrNoLockConfigured
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}
