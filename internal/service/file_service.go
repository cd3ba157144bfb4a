package service

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cryptbin/cryptbin/internal/blob"
	"github.com/cryptbin/cryptbin/internal/crypto"
	"github.com/cryptbin/cryptbin/internal/lock"
	"github.com/cryptbin/cryptbin/internal/models"
	"github.com/cryptbin/cryptbin/internal/repository"
	"github.com/cryptbin/cryptbin/pkg/logger"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrFileNotFound         = errors.New("file not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrExpiryNotFuture      = errors.New("expires_at must be strictly in the future")
	ErrLockPasswordRequired = errors.New("lock_password is required for encrypted uploads")
	ErrAlgorithmRequired    = errors.New("algorithm is required for encrypted uploads")
)

// sniffSize is the number of leading bytes read for MIME-type detection.
// 3072 bytes is enough for the mimetype library to identify all supported
// formats.
const sniffSize = 3072

type FileService struct {
	fileRepo *repository.FileRepository
	blobs    *blob.Store
}

func NewFileService(fileRepo *repository.FileRepository, blobs *blob.Store) *FileService {
	return &FileService{fileRepo: fileRepo, blobs: blobs}
}

// UploadRequest carries a fully validated upload payload into the service.
// Payload is the plaintext stream (single-shot body or a reassembled chunk
// set).
type UploadRequest struct {
	Title            string
	Description      string
	Category         string
	OriginalFilename string
	ContentTypeHint  string
	IsEncrypted      bool
	AlgorithmName    string
	LockPassword     string
	PlainLength      int64
	ExpiresAt        *time.Time
	OwnerPrincipal   string
	Payload          io.Reader
}

// Upload validates the request, optionally encrypts the payload, writes the
// blob first and the metadata record second. A metadata write failure triggers
// best-effort blob cleanup so no record ever references a missing blob.
func (s *FileService) Upload(req *UploadRequest) (*models.FileRecord, error) {
	// All validation happens before any blob write or key generation.
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return nil, ErrExpiryNotFuture
	}

	var alg crypto.Algorithm
	if req.IsEncrypted {
		if req.AlgorithmName == "" {
			return nil, ErrAlgorithmRequired
		}
		var err error
		alg, err = crypto.ParseAlgorithm(req.AlgorithmName)
		if err != nil {
			return nil, err
		}
		if req.LockPassword == "" {
			return nil, ErrLockPasswordRequired
		}
	}

	sniffed, payload, err := sniffContentType(req.Payload, req.ContentTypeHint)
	if err != nil {
		return nil, err
	}

	record := &models.FileRecord{
		ID:               uuid.New().String(),
		Title:            req.Title,
		Description:      req.Description,
		Category:         req.Category,
		OriginalFilename: req.OriginalFilename,
		ContentType:      sniffed,
		IsEncrypted:      req.IsEncrypted,
		OwnerPrincipal:   req.OwnerPrincipal,
		PlainLength:      req.PlainLength,
		ExpiresAt:        req.ExpiresAt,
		CreatedAt:        time.Now(),
	}

	if req.IsEncrypted {
		plaintext, err := io.ReadAll(payload)
		if err != nil {
			return nil, fmt.Errorf("read upload payload: %w", err)
		}

		ciphertext, env, err := crypto.Encrypt(plaintext, alg)
		if err != nil {
			return nil, err
		}

		hash, err := lock.Set(req.LockPassword)
		if err != nil {
			return nil, fmt.Errorf("hash lock password: %w", err)
		}

		record.Algorithm = alg.String()
		record.KeyHex = env.KeyHex()
		record.IVHex = env.IVHex()
		record.AuthTagHex = env.TagHex()
		record.LockPasswordHash = &hash

		written, err := s.blobs.Write(record.ID, bytes.NewReader(ciphertext))
		if err != nil {
			return nil, err
		}
		record.EncryptedSize = written
	} else {
		written, err := s.blobs.Write(record.ID, payload)
		if err != nil {
			return nil, err
		}
		record.EncryptedSize = written
	}

	if err := s.fileRepo.Create(record); err != nil {
		if cleanupErr := s.blobs.Delete(record.ID); cleanupErr != nil {
			logger.Warn().Err(cleanupErr).Str("file_id", record.ID).Msg("Failed to clean up blob after metadata write failure")
		}
		return nil, fmt.Errorf("persist file metadata: %w", err)
	}

	return record, nil
}

// sniffContentType detects the content type from the payload's leading bytes
// and returns a reader that replays them followed by the rest of the stream.
// The hint wins when detection only yields the generic octet-stream type.
func sniffContentType(payload io.Reader, hint string) (string, io.Reader, error) {
	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(payload, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("read upload header for MIME sniff: %w", err)
	}
	buf = buf[:n]

	detected := mimetype.Detect(buf).String()
	if detected == "application/octet-stream" && hint != "" {
		detected = hint
	}

	return detected, io.MultiReader(bytes.NewReader(buf), payload), nil
}

func (s *FileService) GetByOwner(ownerPrincipal string) ([]*models.FileRecord, error) {
	return s.fileRepo.GetByOwner(ownerPrincipal)
}

// Detail returns the record and bumps its view counter. The counter moves on
// every successful lookup regardless of later download or decryption outcome.
func (s *FileService) Detail(id string) (*models.FileRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrFileNotFound
	}

	record, err := s.fileRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	if _, err := s.fileRepo.IncrementViews(id); err != nil {
		logger.Warn().Err(err).Str("file_id", id).Msg("Failed to increment view counter")
	}
	record.Views++

	return record, nil
}

// EditMetadata applies owner-only edits. A new expiry must still be in the
// future.
func (s *FileService) EditMetadata(id, ownerPrincipal string, edit *models.MetadataEdit) (*models.FileRecord, error) {
	record, err := s.fileRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	if record.OwnerPrincipal != ownerPrincipal {
		return nil, ErrUnauthorized
	}

	if edit.ExpiresAt != nil && !edit.ExpiresAt.After(time.Now()) {
		return nil, ErrExpiryNotFuture
	}

	if err := s.fileRepo.UpdateMetadata(id, edit); err != nil {
		return nil, err
	}
	return s.fileRepo.GetByID(id)
}

// Delete removes a file. The blob goes first; if that fails the whole delete
// fails, so metadata never references a blob that was half-removed. Metadata
// is removed second.
func (s *FileService) Delete(id, ownerPrincipal string) error {
	record, err := s.fileRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrFileNotFound
		}
		return err
	}

	if record.OwnerPrincipal != ownerPrincipal {
		return ErrUnauthorized
	}

	if err := s.blobs.Delete(id); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}

	return s.fileRepo.Delete(id)
}

// DeleteExpired removes expired records and their blobs, blob first for each.
func (s *FileService) DeleteExpired(now time.Time) error {
	expired, err := s.fileRepo.GetExpired(now)
	if err != nil {
		return err
	}

	var cleanupErrors []string
	for _, record := range expired {
		if err := s.blobs.Delete(record.ID); err != nil {
			cleanupErrors = append(cleanupErrors, fmt.Sprintf("delete blob for file %s: %v", record.ID, err))
			continue
		}
		if err := s.fileRepo.Delete(record.ID); err != nil {
			cleanupErrors = append(cleanupErrors, fmt.Sprintf("delete metadata for file %s: %v", record.ID, err))
		}
	}

	if len(cleanupErrors) > 0 {
		return errors.New(strings.Join(cleanupErrors, "; "))
	}
	return nil
}
