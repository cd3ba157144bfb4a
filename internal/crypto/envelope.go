package crypto

import (
	"encoding/hex"
	"fmt"
)

// Envelope bundles everything needed to decrypt one ciphertext: algorithm,
// key, IV and (for AEAD modes) the authentication tag. Created once at
// encryption time and immutable afterwards.
//
// Invariant: Tag is non-empty if and only if Algorithm is an AEAD mode.
type Envelope struct {
	Algorithm Algorithm
	Key       []byte
	IV        []byte
	Tag       []byte
}

// KeyHex returns the key as lowercase hex for persistence.
func (e Envelope) KeyHex() string {
	return hex.EncodeToString(e.Key)
}

// IVHex returns the IV as lowercase hex for persistence.
func (e Envelope) IVHex() string {
	return hex.EncodeToString(e.IV)
}

// TagHex returns the auth tag as lowercase hex, empty for non-AEAD modes.
func (e Envelope) TagHex() string {
	return hex.EncodeToString(e.Tag)
}

// EnvelopeFromHex rebuilds an envelope from its persisted hex form. tagHex
// may be empty for non-AEAD algorithms.
func EnvelopeFromHex(alg Algorithm, keyHex, ivHex, tagHex string) (Envelope, error) {
	if !alg.valid() {
		return Envelope{}, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, alg)
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return Envelope{}, fmt.Errorf("decode key hex: %w", err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return Envelope{}, fmt.Errorf("decode iv hex: %w", err)
	}

	env := Envelope{Algorithm: alg, Key: key, IV: iv}
	if tagHex != "" {
		tag, err := hex.DecodeString(tagHex)
		if err != nil {
			return Envelope{}, fmt.Errorf("decode auth tag hex: %w", err)
		}
		env.Tag = tag
	}
	return env, nil
}
