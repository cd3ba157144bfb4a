package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/cryptbin/cryptbin/internal/models"
	"github.com/cryptbin/cryptbin/pkg/testutil"
	"github.com/google/uuid"
)

func newTestRepo(t *testing.T) (*FileRepository, func()) {
	t.Helper()
	db, _, cleanup := testutil.SetupTest(t)
	return NewFileRepository(db), cleanup
}

func sampleRecord(owner string) *models.FileRecord {
	hash := "$2a$12$abcdefghijklmnopqrstuv"
	return &models.FileRecord{
		ID:               uuid.New().String(),
		Title:            "report",
		Description:      "quarterly numbers",
		Category:         "documents",
		OriginalFilename: "report.pdf",
		ContentType:      "application/pdf",
		IsEncrypted:      true,
		Algorithm:        "AES-256-GCM",
		KeyHex:           "00112233",
		IVHex:            "44556677",
		AuthTagHex:       "8899aabb",
		LockPasswordHash: &hash,
		OwnerPrincipal:   owner,
		PlainLength:      1024,
		EncryptedSize:    1040,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
}

func TestFileRepository_CreateAndGet(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	record := sampleRecord("alice")
	if err := repo.Create(record); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(record.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != record.Title || got.Algorithm != record.Algorithm || got.KeyHex != record.KeyHex {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.LockPasswordHash == nil || *got.LockPasswordHash != *record.LockPasswordHash {
		t.Fatal("lock password hash did not round trip")
	}
	if got.OwnerPrincipal != "alice" {
		t.Fatalf("owner = %q", got.OwnerPrincipal)
	}
}

func TestFileRepository_GetByOwner(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		if err := repo.Create(sampleRecord("alice")); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := repo.Create(sampleRecord("bob")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	files, err := repo.GetByOwner("alice")
	if err != nil {
		t.Fatalf("GetByOwner: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("len = %d, want 3", len(files))
	}
	for _, f := range files {
		if f.OwnerPrincipal != "alice" {
			t.Fatalf("wrong owner in listing: %q", f.OwnerPrincipal)
		}
	}
}

func TestFileRepository_IncrementViews(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	record := sampleRecord("alice")
	if err := repo.Create(record); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 1; i <= 3; i++ {
		exists, err := repo.IncrementViews(record.ID)
		if err != nil {
			t.Fatalf("IncrementViews: %v", err)
		}
		if !exists {
			t.Fatal("expected record to exist")
		}
	}

	got, err := repo.GetByID(record.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Views != 3 {
		t.Fatalf("views = %d, want 3", got.Views)
	}

	exists, err := repo.IncrementViews(uuid.New().String())
	if err != nil {
		t.Fatalf("IncrementViews missing: %v", err)
	}
	if exists {
		t.Fatal("missing record should report exists=false")
	}
}

func TestFileRepository_UpdateMetadata_LeavesUnsetFieldsAlone(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	record := sampleRecord("alice")
	if err := repo.Create(record); err != nil {
		t.Fatalf("Create: %v", err)
	}

	newTitle := "renamed"
	if err := repo.UpdateMetadata(record.ID, &models.MetadataEdit{Title: &newTitle}); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	got, err := repo.GetByID(record.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != newTitle {
		t.Fatalf("title = %q, want %q", got.Title, newTitle)
	}
	if got.Description != record.Description || got.Category != record.Category {
		t.Fatal("unset fields must not change")
	}
}

func TestFileRepository_Delete(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	record := sampleRecord("alice")
	if err := repo.Create(record); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Delete(record.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(record.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestFileRepository_GetExpired(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	expired := sampleRecord("alice")
	expired.ExpiresAt = &past
	if err := repo.Create(expired); err != nil {
		t.Fatalf("Create expired: %v", err)
	}

	fresh := sampleRecord("alice")
	fresh.ExpiresAt = &future
	if err := repo.Create(fresh); err != nil {
		t.Fatalf("Create fresh: %v", err)
	}

	forever := sampleRecord("alice")
	if err := repo.Create(forever); err != nil {
		t.Fatalf("Create forever: %v", err)
	}

	got, err := repo.GetExpired(time.Now())
	if err != nil {
		t.Fatalf("GetExpired: %v", err)
	}
	if len(got) != 1 || got[0].ID != expired.ID {
		t.Fatalf("expected only the expired record, got %d records", len(got))
	}
}
