package models

import "time"

// FileRecord is the persistent metadata for one stored file. The encryption
// envelope (key/iv/tag as hex) lives in the same record as the rest of the
// metadata; confidentiality therefore rests on the lock-password gate, not on
// hiding the key from readers of the metadata store.
type FileRecord struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	OriginalFilename string     `json:"original_filename"`
	ContentType      string     `json:"content_type"`
	IsEncrypted      bool       `json:"is_encrypted"`
	Algorithm        string     `json:"algorithm,omitempty"`
	KeyHex           string     `json:"-"`
	IVHex            string     `json:"-"`
	AuthTagHex       string     `json:"-"`
	LockPasswordHash *string    `json:"-"`
	OwnerPrincipal   string     `json:"owner_principal"`
	PlainLength      int64      `json:"plain_length_bytes"`
	EncryptedSize    int64      `json:"stored_size_bytes"`
	Views            int64      `json:"views"`
	ExpiresAt        *time.Time `json:"expires_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// MetadataEdit carries the owner-editable fields of a FileRecord.
type MetadataEdit struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Category    *string    `json:"category"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// UploadResult is the response body for a completed upload.
type UploadResult struct {
	ID string `json:"id"`
}

// ChunkAck acknowledges an intermediate chunk of a chunked upload.
type ChunkAck struct {
	Received int `json:"received_chunks"`
	Expected int `json:"expected_chunks"`
}
