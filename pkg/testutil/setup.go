package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/cryptbin/cryptbin/pkg/database"
	_ "github.com/mattn/go-sqlite3"
)

// TestConfig holds per-test storage locations.
type TestConfig struct {
	DBPath    string
	BlobPath  string
	ChunkPath string
}

// SetupTest creates a test environment with a temporary database, blob
// directory and chunk directory.
func SetupTest(t *testing.T) (*sql.DB, *TestConfig, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "cryptbin-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}

	cfg := &TestConfig{
		DBPath:    filepath.Join(tmpDir, "test.db"),
		BlobPath:  filepath.Join(tmpDir, "blobs"),
		ChunkPath: filepath.Join(tmpDir, "chunks"),
	}
	cleanupTmpDir := func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Logf("Failed to remove temp directory %q: %v", tmpDir, err)
		}
	}

	db, err := database.Initialize(cfg.DBPath)
	if err != nil {
		cleanupTmpDir()
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Initialize schema using the same logic as runtime startup.
	if err := database.InitSchema(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			t.Logf("Failed to close test database after schema init error: %v", closeErr)
		}
		cleanupTmpDir()
		t.Fatalf("Failed to initialize test schema: %v", err)
	}

	for _, dir := range []string{cfg.BlobPath, cfg.ChunkPath} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				t.Logf("Failed to close test database after storage init error: %v", closeErr)
			}
			cleanupTmpDir()
			t.Fatalf("Failed to create storage directory: %v", err)
		}
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
		cleanupTmpDir()
	}

	return db, cfg, cleanup
}
