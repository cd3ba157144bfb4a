// Package blob persists file payloads on local disk, addressed by the same
// identifier as the metadata record.
package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var ErrBlobNotFound = errors.New("blob not found")

const blobSuffix = ".bin"

// Store writes and reads blobs under a single directory. Writes are
// all-or-nothing from the caller's perspective: a failed write removes the
// partial file before returning.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the on-disk location for an id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+blobSuffix)
}

// Write streams r into the blob for id and returns the byte count.
func (s *Store) Write(id string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return 0, fmt.Errorf("create blob directory: %w", err)
	}

	path := s.Path(id)
	// #nosec G304 -- path is built from the trusted store dir and a server-generated UUID.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("create blob: %w", err)
	}

	written, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		if removeErr := s.Delete(id); removeErr != nil {
			return 0, fmt.Errorf("write blob: %w (cleanup failed: %v)", err, removeErr)
		}
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		if removeErr := s.Delete(id); removeErr != nil {
			return 0, fmt.Errorf("close blob: %w (cleanup failed: %v)", err, removeErr)
		}
		return 0, fmt.Errorf("close blob: %w", err)
	}

	return written, nil
}

// Open returns a single-pass reader over the blob and its size. The caller
// owns the reader and must close it.
func (s *Store) Open(id string) (io.ReadCloser, int64, error) {
	path := s.Path(id)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrBlobNotFound
		}
		return nil, 0, fmt.Errorf("stat blob: %w", err)
	}

	// #nosec G304 -- path is built from the trusted store dir and a server-generated UUID.
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrBlobNotFound
		}
		return nil, 0, fmt.Errorf("open blob: %w", err)
	}
	return f, info.Size(), nil
}

// ReadAll fetches the entire blob into memory. Decryption needs the full
// ciphertext before it can start, so the decrypt path uses this instead of
// streaming.
func (s *Store) ReadAll(id string) ([]byte, error) {
	r, _, err := s.Open(id)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob for id. Deleting a missing blob is not an error.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.Path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// Exists reports whether a blob is present for id.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}
