package blob

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestWriteAndOpen_RoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	payload := []byte("ciphertext bytes here")
	written, err := s.Write("file-1", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if written != int64(len(payload)) {
		t.Fatalf("written = %d, want %d", written, len(payload))
	}

	r, size, err := s.Open("file-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if size != int64(len(payload)) {
		t.Fatalf("size = %d, want %d", size, len(payload))
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("stream = %q, want %q", got, payload)
	}
}

func TestWrite_OverwritesExisting(t *testing.T) {
	s := NewStore(t.TempDir())

	if _, err := s.Write("file-1", strings.NewReader("old contents")); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if _, err := s.Write("file-1", strings.NewReader("new")); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	got, err := s.ReadAll("file-1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("blob = %q, want %q", got, "new")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("transport failure")
}

func TestWrite_FailedSourceLeavesNoPartialBlob(t *testing.T) {
	s := NewStore(t.TempDir())

	if _, err := s.Write("broken", failingReader{}); err == nil {
		t.Fatalf("expected write error from failing source")
	}
	if s.Exists("broken") {
		t.Fatalf("partial blob left readable after failed write")
	}
}

func TestOpen_NotFound(t *testing.T) {
	s := NewStore(t.TempDir())

	if _, _, err := s.Open("missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("Open(missing): error = %v, want ErrBlobNotFound", err)
	}
	if _, err := s.ReadAll("missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("ReadAll(missing): error = %v, want ErrBlobNotFound", err)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	s := NewStore(t.TempDir())

	if _, err := s.Write("file-1", strings.NewReader("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := s.Delete("file-1"); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := s.Delete("file-1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if err := s.Delete("never-existed"); err != nil {
		t.Fatalf("Delete of unknown id: %v", err)
	}
}
