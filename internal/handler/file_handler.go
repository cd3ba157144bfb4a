package handler

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/cryptbin/cryptbin/internal/chunk"
	"github.com/cryptbin/cryptbin/internal/crypto"
	"github.com/cryptbin/cryptbin/internal/models"
	"github.com/cryptbin/cryptbin/internal/service"
	"github.com/cryptbin/cryptbin/pkg/logger"
	"github.com/cryptbin/cryptbin/pkg/response"
	"github.com/gofiber/fiber/v2"
)

type FileHandler struct {
	fileSvc     *service.FileService
	reassembler *chunk.Reassembler
}

func NewFileHandler(fileSvc *service.FileService, reassembler *chunk.Reassembler) *FileHandler {
	return &FileHandler{fileSvc: fileSvc, reassembler: reassembler}
}

// uploadFields reads the shared metadata form values for single-shot and
// chunked uploads.
func uploadFields(c *fiber.Ctx, defaultFilename string) (*service.UploadRequest, error) {
	req := &service.UploadRequest{
		Title:            c.FormValue("title"),
		Description:      c.FormValue("description"),
		Category:         c.FormValue("category"),
		OriginalFilename: c.FormValue("filename", defaultFilename),
		ContentTypeHint:  c.FormValue("content_type"),
		AlgorithmName:    c.FormValue("algorithm"),
		LockPassword:     c.FormValue("lock_password"),
	}

	if v := c.FormValue("is_encrypted"); v != "" {
		isEncrypted, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("is_encrypted must be a boolean")
		}
		req.IsEncrypted = isEncrypted
	}

	v := c.FormValue("plain_length")
	if v == "" {
		return nil, errors.New("plain_length is required")
	}
	plainLength, err := strconv.ParseInt(v, 10, 64)
	if err != nil || plainLength < 0 {
		return nil, errors.New("plain_length must be a non-negative integer")
	}
	req.PlainLength = plainLength

	if v := c.FormValue("expires_at"); v != "" {
		expiresAt, err := time.Parse(time.RFC3339, v)
		if err != nil {
			// A bare date means the file lives through that day (UTC).
			day, dayErr := time.Parse("2006-01-02", v)
			if dayErr != nil {
				return nil, errors.New("expires_at must be an RFC 3339 timestamp or a YYYY-MM-DD date")
			}
			expiresAt = day.Add(24 * time.Hour)
		}
		req.ExpiresAt = &expiresAt
	}

	return req, nil
}

func (h *FileHandler) submit(c *fiber.Ctx, req *service.UploadRequest) error {
	record, err := h.fileSvc.Upload(req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExpiryNotFuture),
			errors.Is(err, service.ErrAlgorithmRequired),
			errors.Is(err, service.ErrLockPasswordRequired),
			errors.Is(err, crypto.ErrUnsupportedAlgorithm):
			return response.BadRequest(c, err.Error())
		default:
			logger.Error().Err(err).Str("owner", req.OwnerPrincipal).Msg("Upload failed")
			return response.InternalError(c, "failed to store file")
		}
	}

	RecordFileUpload(record.Algorithm, float64(record.EncryptedSize))
	logger.Audit("file_uploaded", req.OwnerPrincipal, map[string]string{
		"file_id":   record.ID,
		"encrypted": strconv.FormatBool(record.IsEncrypted),
		"algorithm": record.Algorithm,
	})

	return response.Created(c, models.UploadResult{ID: record.ID})
}

// Upload handles a single-shot multipart upload.
func (h *FileHandler) Upload(c *fiber.Ctx) error {
	principal, ok := principalFromLocals(c)
	if !ok {
		return response.Unauthorized(c, "authentication required")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "file is required")
	}

	req, err := uploadFields(c, fileHeader.Filename)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	req.OwnerPrincipal = principal

	file, err := fileHeader.Open()
	if err != nil {
		return response.InternalError(c, "failed to read file")
	}
	defer file.Close()
	req.Payload = file

	return h.submit(c, req)
}

// UploadChunk receives one chunk of a chunked upload. Intermediate chunks are
// acknowledged with progress; the completing chunk runs the full upload path
// on the reassembled payload and returns the new file id.
func (h *FileHandler) UploadChunk(c *fiber.Ctx) error {
	principal, ok := principalFromLocals(c)
	if !ok {
		return response.Unauthorized(c, "authentication required")
	}

	chunkHeader, err := c.FormFile("chunk")
	if err != nil {
		return response.BadRequest(c, "chunk is required")
	}

	uploadName := c.FormValue("filename")
	if uploadName == "" {
		return response.BadRequest(c, "filename is required")
	}

	index, err := strconv.Atoi(c.FormValue("chunk_index", "-1"))
	if err != nil {
		return response.BadRequest(c, "chunk_index must be an integer")
	}
	total, err := strconv.Atoi(c.FormValue("total_chunks", "0"))
	if err != nil {
		return response.BadRequest(c, "total_chunks must be an integer")
	}

	req, err := uploadFields(c, uploadName)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	req.OwnerPrincipal = principal

	file, err := chunkHeader.Open()
	if err != nil {
		return response.InternalError(c, "failed to read chunk")
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		return response.InternalError(c, "failed to read chunk")
	}

	// Scope chunk sets to the uploader so two principals uploading the same
	// filename never interleave.
	scopedName := principal + "/" + uploadName

	status, payload, err := h.reassembler.Receive(scopedName, index, total, data)
	if err != nil {
		if errors.Is(err, chunk.ErrInvalidChunkMetadata) {
			return response.BadRequest(c, err.Error())
		}
		logger.Error().Err(err).Str("upload_name", uploadName).Msg("Chunk storage failed")
		return response.InternalError(c, "failed to store chunk")
	}

	if status != chunk.StatusComplete {
		received, err := h.reassembler.Received(scopedName)
		if err != nil {
			received = index + 1
		}
		return response.Success(c, models.ChunkAck{Received: received, Expected: total})
	}

	RecordChunkedUploadCompleted()
	req.Payload = bytes.NewReader(payload)

	return h.submit(c, req)
}

// List returns the caller's files.
func (h *FileHandler) List(c *fiber.Ctx) error {
	principal, ok := principalFromLocals(c)
	if !ok {
		return response.Unauthorized(c, "authentication required")
	}

	files, err := h.fileSvc.GetByOwner(principal)
	if err != nil {
		return response.InternalError(c, "failed to retrieve files")
	}

	return response.Success(c, files)
}

// Detail returns one file's metadata and counts the view. The route is
// public; secrets never leave the record through its JSON form.
func (h *FileHandler) Detail(c *fiber.Ctx) error {
	record, err := h.fileSvc.Detail(c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrFileNotFound) {
			return response.NotFound(c, "file not found")
		}
		return response.InternalError(c, "failed to retrieve file")
	}

	return response.Success(c, record)
}

// Edit applies owner-only metadata changes.
func (h *FileHandler) Edit(c *fiber.Ctx) error {
	principal, ok := principalFromLocals(c)
	if !ok {
		return response.Unauthorized(c, "authentication required")
	}

	var edit models.MetadataEdit
	if err := c.BodyParser(&edit); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	record, err := h.fileSvc.EditMetadata(c.Params("id"), principal, &edit)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileNotFound):
			return response.NotFound(c, "file not found")
		case errors.Is(err, service.ErrUnauthorized):
			return response.Forbidden(c, "unauthorized")
		case errors.Is(err, service.ErrExpiryNotFuture):
			return response.BadRequest(c, err.Error())
		default:
			return response.InternalError(c, "failed to update file")
		}
	}

	return response.Success(c, record)
}

// Delete removes a file and its blob.
func (h *FileHandler) Delete(c *fiber.Ctx) error {
	principal, ok := principalFromLocals(c)
	if !ok {
		return response.Unauthorized(c, "authentication required")
	}
	fileID := c.Params("id")

	if err := h.fileSvc.Delete(fileID, principal); err != nil {
		switch {
		case errors.Is(err, service.ErrFileNotFound):
			return response.NotFound(c, "file not found")
		case errors.Is(err, service.ErrUnauthorized):
			return response.Forbidden(c, "unauthorized")
		default:
			logger.Error().Err(err).Str("file_id", fileID).Msg("Delete failed")
			return response.InternalError(c, "failed to delete file")
		}
	}

	logger.Audit("file_deleted", principal, map[string]string{
		"file_id": fileID,
	})

	return response.Success(c, map[string]string{"message": "file deleted"})
}
