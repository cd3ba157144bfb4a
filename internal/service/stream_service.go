package service

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/cryptbin/cryptbin/internal/blob"
	"github.com/cryptbin/cryptbin/internal/crypto"
	"github.com/cryptbin/cryptbin/internal/lock"
	"github.com/cryptbin/cryptbin/internal/repository"
	"github.com/google/uuid"
)

var (
	ErrMalformedID     = errors.New("malformed file identifier")
	ErrEnvelopeCorrupt = errors.New("stored encryption envelope is corrupt")
)

// StreamService composes metadata lookup, the lock gate, the blob store and
// the cipher engine into the retrieval path.
type StreamService struct {
	fileRepo *repository.FileRepository
	blobs    *blob.Store
}

func NewStreamService(fileRepo *repository.FileRepository, blobs *blob.Store) *StreamService {
	return &StreamService{fileRepo: fileRepo, blobs: blobs}
}

// Stream is a single-pass byte sequence plus the framing the handler needs.
type Stream struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	Filename    string
	Decrypted   bool
}

// Fetch resolves a download request. With no password the stored bytes are
// returned as-is, ciphertext included: decryption is opt-in per request, even
// for the owner. With a password the lock gate runs first, then the full
// ciphertext is assembled and decrypted.
//
// Malformed identifiers are rejected before any store access.
func (s *StreamService) Fetch(id string, password *string) (*Stream, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrMalformedID
	}

	record, err := s.fileRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	contentType := record.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if password == nil || !record.IsEncrypted {
		if password != nil && !record.IsEncrypted {
			// A password against an unencrypted file means the caller
			// expects a lock that does not exist.
			return nil, lock.ErrNoLockConfigured
		}

		body, size, err := s.blobs.Open(id)
		if err != nil {
			if errors.Is(err, blob.ErrBlobNotFound) {
				return nil, ErrFileNotFound
			}
			return nil, err
		}
		return &Stream{
			Body:        body,
			Size:        size,
			ContentType: contentType,
			Filename:    record.OriginalFilename,
		}, nil
	}

	// Lock gate runs before any ciphertext is fetched or decrypted.
	var storedHash string
	if record.LockPasswordHash != nil {
		storedHash = *record.LockPasswordHash
	}
	if err := lock.Verify(*password, storedHash); err != nil {
		return nil, err
	}

	alg, err := crypto.ParseAlgorithm(record.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, err)
	}
	env, err := crypto.EnvelopeFromHex(alg, record.KeyHex, record.IVHex, record.AuthTagHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, err)
	}

	// The tag covers the whole message and CBC chains across blocks, so the
	// ciphertext must be complete before decryption starts.
	ciphertext, err := s.blobs.ReadAll(id)
	if err != nil {
		if errors.Is(err, blob.ErrBlobNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	plaintext, err := crypto.Decrypt(ciphertext, env)
	if err != nil {
		// The password already verified, so a cipher failure here means the
		// stored envelope or ciphertext is corrupt, not bad user input.
		return nil, err
	}

	return &Stream{
		Body:        io.NopCloser(bytes.NewReader(plaintext)),
		Size:        int64(len(plaintext)),
		ContentType: contentType,
		Filename:    record.OriginalFilename,
		Decrypted:   true,
	}, nil
}
