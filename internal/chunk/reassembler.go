// Package chunk reassembles uploads that arrive as individually transmitted
// byte ranges. Chunks are persisted to a temp directory keyed by upload name
// and sequence index; once all expected chunks are present they are
// concatenated in index order and the temp entries removed.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cryptbin/cryptbin/pkg/logger"
)

// Status reports the outcome of receiving one chunk.
type Status int

const (
	// StatusIncomplete means the chunk was stored but the set is not yet full.
	StatusIncomplete Status = iota
	// StatusComplete means this chunk completed the set and the full payload
	// was assembled.
	StatusComplete
)

var (
	ErrInvalidChunkMetadata = errors.New("invalid chunk metadata")
	ErrChunkStorage         = errors.New("chunk storage failure")
)

const partSuffix = ".part"

// Reassembler stores in-flight chunk sets under dir. Reassembly for a given
// upload name is serialized by a per-name mutex so completeness checks and
// finalization happen at most once even under concurrent chunk arrivals.
type Reassembler struct {
	dir string

	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	sync.Mutex
	refs int
}

func NewReassembler(dir string) *Reassembler {
	return &Reassembler{
		dir:   dir,
		locks: make(map[string]*nameLock),
	}
}

// Receive persists one chunk and, if it completes the set, returns the
// reassembled payload. The index must be in [0, total); a duplicate index
// silently overwrites the earlier chunk.
func (r *Reassembler) Receive(uploadName string, index, total int, data []byte) (Status, []byte, error) {
	if uploadName == "" {
		return StatusIncomplete, nil, fmt.Errorf("%w: upload name is required", ErrInvalidChunkMetadata)
	}
	if total <= 0 {
		return StatusIncomplete, nil, fmt.Errorf("%w: total chunks must be positive, got %d", ErrInvalidChunkMetadata, total)
	}
	if index < 0 || index >= total {
		return StatusIncomplete, nil, fmt.Errorf("%w: chunk index %d outside [0, %d)", ErrInvalidChunkMetadata, index, total)
	}

	unlock := r.lockName(uploadName)
	defer unlock()

	if err := os.MkdirAll(r.dir, 0750); err != nil {
		return StatusIncomplete, nil, fmt.Errorf("%w: %v", ErrChunkStorage, err)
	}

	if err := os.WriteFile(r.partPath(uploadName, index), data, 0600); err != nil {
		return StatusIncomplete, nil, fmt.Errorf("%w: %v", ErrChunkStorage, err)
	}

	indices, err := r.storedIndices(uploadName)
	if err != nil {
		return StatusIncomplete, nil, err
	}
	if len(indices) < total {
		return StatusIncomplete, nil, nil
	}

	payload, err := r.assemble(uploadName, indices)
	if err != nil {
		return StatusIncomplete, nil, err
	}

	// Cleanup after hand-off. A crash between assembly and cleanup only
	// orphans temp files; the sweep reclaims them.
	for _, idx := range indices {
		if err := os.Remove(r.partPath(uploadName, idx)); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("upload_name", uploadName).Int("chunk_index", idx).Msg("Failed to remove chunk after reassembly")
		}
	}

	return StatusComplete, payload, nil
}

// Received reports how many distinct chunks are currently stored for an
// upload name.
func (r *Reassembler) Received(uploadName string) (int, error) {
	unlock := r.lockName(uploadName)
	defer unlock()

	indices, err := r.storedIndices(uploadName)
	if err != nil {
		return 0, err
	}
	return len(indices), nil
}

// lockName acquires the per-upload-name mutex and returns its release func.
func (r *Reassembler) lockName(name string) func() {
	r.mu.Lock()
	nl, ok := r.locks[name]
	if !ok {
		nl = &nameLock{}
		r.locks[name] = nl
	}
	nl.refs++
	r.mu.Unlock()

	nl.Lock()
	return func() {
		nl.Unlock()
		r.mu.Lock()
		nl.refs--
		if nl.refs == 0 {
			delete(r.locks, name)
		}
		r.mu.Unlock()
	}
}

// partPath derives the temp file name deterministically from the upload name
// and index. The name is hashed so client-supplied filenames can never escape
// the chunk directory.
func (r *Reassembler) partPath(uploadName string, index int) string {
	sum := sha256.Sum256([]byte(uploadName))
	return filepath.Join(r.dir, hex.EncodeToString(sum[:])+"."+strconv.Itoa(index)+partSuffix)
}

func (r *Reassembler) storedIndices(uploadName string) ([]int, error) {
	sum := sha256.Sum256([]byte(uploadName))
	prefix := hex.EncodeToString(sum[:]) + "."

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrChunkStorage, err)
	}

	var indices []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, partSuffix) {
			continue
		}
		idxStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), partSuffix)
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}

	sort.Ints(indices)
	return indices, nil
}

func (r *Reassembler) assemble(uploadName string, indices []int) ([]byte, error) {
	var payload []byte
	for _, idx := range indices {
		part, err := os.ReadFile(r.partPath(uploadName, idx))
		if err != nil {
			return nil, fmt.Errorf("%w: read chunk %d: %v", ErrChunkStorage, idx, err)
		}
		payload = append(payload, part...)
	}
	return payload, nil
}

// SweepStale removes chunk files older than maxAge. Abandoned uploads would
// otherwise accumulate forever; this runs from the periodic cleanup job.
func (r *Reassembler) SweepStale(maxAge time.Duration) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrChunkStorage, err)
	}

	cutoff := time.Now().Add(-maxAge)
	var sweepErrs []string
	removed := 0
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), partSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			sweepErrs = append(sweepErrs, fmt.Sprintf("remove %s: %v", entry.Name(), err))
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info().Int("removed", removed).Msg("Swept stale upload chunks")
	}
	if len(sweepErrs) > 0 {
		return fmt.Errorf("%w: %s", ErrChunkStorage, strings.Join(sweepErrs, "; "))
	}
	return nil
}
