package crypto

import (
	"fmt"
	"strings"
)

// Algorithm identifies a supported symmetric cipher. Using a closed integer
// type instead of raw strings means adding an algorithm forces every switch
// in this package to be revisited.
type Algorithm int

const (
	AlgorithmNone Algorithm = iota
	AlgorithmAES256CBC
	AlgorithmAES256GCM
	AlgorithmChaCha20Poly1305
)

const (
	nameAES256CBC        = "aes-256-cbc"
	nameAES256GCM        = "aes-256-gcm"
	nameChaCha20Poly1305 = "chacha20-poly1305"
)

const (
	keySize = 32 // 256 bits for all three algorithms
	tagSize = 16 // 128-bit auth tag for both AEAD modes
)

// ParseAlgorithm resolves a case-insensitive algorithm name. Unknown names
// fail with ErrUnsupportedAlgorithm before any cryptographic work happens.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case nameAES256CBC:
		return AlgorithmAES256CBC, nil
	case nameAES256GCM:
		return AlgorithmAES256GCM, nil
	case nameChaCha20Poly1305:
		return AlgorithmChaCha20Poly1305, nil
	default:
		return AlgorithmNone, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

func (a Algorithm) String() string {
	switch a {
	case AlgorithmAES256CBC:
		return nameAES256CBC
	case AlgorithmAES256GCM:
		return nameAES256GCM
	case AlgorithmChaCha20Poly1305:
		return nameChaCha20Poly1305
	default:
		return ""
	}
}

// KeySize returns the symmetric key length in bytes.
func (a Algorithm) KeySize() int {
	return keySize
}

// IVSize returns the IV/nonce length in bytes: 16 for the AES modes,
// 12 for ChaCha20-Poly1305.
func (a Algorithm) IVSize() int {
	if a == AlgorithmChaCha20Poly1305 {
		return 12
	}
	return 16
}

// TagSize returns the authentication tag length in bytes, 0 for non-AEAD modes.
func (a Algorithm) TagSize() int {
	if a.IsAEAD() {
		return tagSize
	}
	return 0
}

// IsAEAD reports whether the algorithm produces an authentication tag.
func (a Algorithm) IsAEAD() bool {
	return a == AlgorithmAES256GCM || a == AlgorithmChaCha20Poly1305
}

func (a Algorithm) valid() bool {
	switch a {
	case AlgorithmAES256CBC, AlgorithmAES256GCM, AlgorithmChaCha20Poly1305:
		return true
	default:
		return false
	}
}
