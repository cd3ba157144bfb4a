package handler

import (
	"errors"
	"strconv"

	"github.com/cryptbin/cryptbin/internal/crypto"
	"github.com/cryptbin/cryptbin/internal/lock"
	"github.com/cryptbin/cryptbin/internal/service"
	"github.com/cryptbin/cryptbin/pkg/logger"
	"github.com/cryptbin/cryptbin/pkg/response"
	"github.com/cryptbin/cryptbin/pkg/sanitize"
	"github.com/gofiber/fiber/v2"
)

// StreamHandler serves file bodies. Without a password the stored bytes go
// out untouched; with one the lock gate runs and the payload is decrypted
// server-side.
type StreamHandler struct {
	streamSvc *service.StreamService
}

func NewStreamHandler(streamSvc *service.StreamService) *StreamHandler {
	return &StreamHandler{streamSvc: streamSvc}
}

func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	// Streaming is public: recipients hold the file id and, for decryption,
	// the lock password, not the uploader's token.
	principal, ok := principalFromLocals(c)
	if !ok {
		principal = "anonymous"
	}

	var password *string
	if c.Context().QueryArgs().Has("password") {
		p := c.Query("password")
		password = &p
	}

	stream, err := h.streamSvc.Fetch(c.Params("id"), password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMalformedID):
			return response.BadRequest(c, "malformed file id")
		case errors.Is(err, service.ErrFileNotFound):
			return response.NotFound(c, "file not found")
		case errors.Is(err, lock.ErrNoLockConfigured):
			return response.BadRequest(c, "file has no lock password")
		case errors.Is(err, lock.ErrPasswordMismatch):
			RecordAuthFailure("lock_password")
			return response.Unauthorized(c, "invalid lock password")
		case errors.Is(err, service.ErrEnvelopeCorrupt),
			errors.Is(err, crypto.ErrMissingAuthTag),
			errors.Is(err, crypto.ErrAuthenticationFailed),
			errors.Is(err, crypto.ErrDecryptionFailed):
			// The password already verified, so a cipher failure here means
			// the stored data is corrupt.
			RecordDecryptFailure()
			logger.Error().Err(err).Str("file_id", c.Params("id")).Msg("Stored data failed decryption")
			return response.InternalError(c, "stored file is corrupt")
		default:
			logger.Error().Err(err).Str("file_id", c.Params("id")).Msg("Stream failed")
			return response.InternalError(c, "failed to read stored file")
		}
	}
	defer stream.Body.Close()

	mode := "passthrough"
	if stream.Decrypted {
		mode = "decrypted"
	}
	RecordFileDownload(mode)
	logger.Audit("file_streamed", principal, map[string]string{
		"file_id": c.Params("id"),
		"mode":    mode,
	})

	safeName := sanitize.Filename(stream.Filename)
	c.Set("Content-Disposition", "attachment; filename*=UTF-8''"+sanitize.PercentEncodeFilename(safeName))
	c.Set("Content-Type", stream.ContentType)
	c.Set("Content-Length", strconv.FormatInt(stream.Size, 10))

	return c.SendStream(stream.Body, int(stream.Size))
}
