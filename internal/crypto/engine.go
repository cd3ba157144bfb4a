package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported encryption algorithm")
	ErrMissingAuthTag       = errors.New("missing authentication tag for AEAD algorithm")
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrInvalidEnvelope      = errors.New("invalid encryption envelope")
)

// Encrypt encrypts plaintext under a freshly generated key and IV and returns
// the ciphertext together with the envelope needed to decrypt it later. Key
// and IV are never reused across calls.
func Encrypt(plaintext []byte, alg Algorithm) ([]byte, Envelope, error) {
	if !alg.valid() {
		return nil, Envelope{}, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, alg)
	}

	key := make([]byte, alg.KeySize())
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, Envelope{}, fmt.Errorf("generate key: %w", err)
	}
	iv := make([]byte, alg.IVSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, Envelope{}, fmt.Errorf("generate iv: %w", err)
	}

	env := Envelope{Algorithm: alg, Key: key, IV: iv}

	switch alg {
	case AlgorithmAES256CBC:
		ciphertext, err := encryptCBC(plaintext, key, iv)
		if err != nil {
			return nil, Envelope{}, err
		}
		return ciphertext, env, nil
	case AlgorithmAES256GCM, AlgorithmChaCha20Poly1305:
		aead, err := newAEAD(alg, key)
		if err != nil {
			return nil, Envelope{}, err
		}
		sealed := aead.Seal(nil, iv, plaintext, nil)
		// Seal appends the tag to the ciphertext; split it into the
		// envelope so it is stored as a separate field.
		split := len(sealed) - alg.TagSize()
		env.Tag = sealed[split:]
		return sealed[:split], env, nil
	default:
		return nil, Envelope{}, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, alg)
	}
}

// Decrypt reverses Encrypt using the stored envelope. AEAD tag mismatch fails
// with ErrAuthenticationFailed; CBC padding corruption fails with
// ErrDecryptionFailed. Both are terminal for the request.
func Decrypt(ciphertext []byte, env Envelope) ([]byte, error) {
	if !env.Algorithm.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, env.Algorithm)
	}
	if len(env.Key) != env.Algorithm.KeySize() {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrInvalidEnvelope, len(env.Key), env.Algorithm.KeySize())
	}
	if len(env.IV) != env.Algorithm.IVSize() {
		return nil, fmt.Errorf("%w: iv is %d bytes, want %d", ErrInvalidEnvelope, len(env.IV), env.Algorithm.IVSize())
	}

	switch env.Algorithm {
	case AlgorithmAES256CBC:
		return decryptCBC(ciphertext, env.Key, env.IV)
	case AlgorithmAES256GCM, AlgorithmChaCha20Poly1305:
		if len(env.Tag) == 0 {
			return nil, ErrMissingAuthTag
		}
		if len(env.Tag) != env.Algorithm.TagSize() {
			return nil, fmt.Errorf("%w: auth tag is %d bytes, want %d", ErrInvalidEnvelope, len(env.Tag), env.Algorithm.TagSize())
		}
		aead, err := newAEAD(env.Algorithm, env.Key)
		if err != nil {
			return nil, err
		}
		sealed := make([]byte, 0, len(ciphertext)+len(env.Tag))
		sealed = append(sealed, ciphertext...)
		sealed = append(sealed, env.Tag...)
		plaintext, err := aead.Open(nil, env.IV, sealed, nil)
		if err != nil {
			return nil, ErrAuthenticationFailed
		}
		return plaintext, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, env.Algorithm)
	}
}

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AlgorithmAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("create aes cipher: %w", err)
		}
		// 16-byte nonces match the stored IV length for the AES modes.
		aead, err := cipher.NewGCMWithNonceSize(block, alg.IVSize())
		if err != nil {
			return nil, fmt.Errorf("create gcm: %w", err)
		}
		return aead, nil
	case AlgorithmChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("create chacha20-poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, alg)
	}
}

func encryptCBC(plaintext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create aes cipher: %w", err)
	}

	padded := padPKCS7(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func decryptCBC(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create aes cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", ErrDecryptionFailed, len(ciphertext))
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := unpadPKCS7(padded, block.BlockSize())
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty padded data", ErrDecryptionFailed)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryptionFailed)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecryptionFailed)
		}
	}
	return data[:len(data)-n], nil
}
