package job

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists job metadata next to the input file, following the
// naming convention <input stem>_metadata.json. The mutex serializes
// every write cycle: recorders run concurrently from engine workers,
// and an unguarded load-mutate-rename would drop terminal records.
type Store struct {
	mu     sync.Mutex
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{logger: logger}
}

// MetadataPath derives the metadata file path for an input reference.
func MetadataPath(inputRef string) string {
	if strings.HasSuffix(inputRef, "_metadata.json") {
		return inputRef
	}
	ext := filepath.Ext(inputRef)
	stem := strings.TrimSuffix(filepath.Base(inputRef), ext)
	stem = strings.TrimSuffix(stem, "_metadata")
	return filepath.Join(filepath.Dir(inputRef), stem+"_metadata.json")
}

// Create builds and persists fresh metadata for a new job.
func (s *Store) Create(inputRef string, totalUnits int, cfg map[string]any) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	meta := &Metadata{
		JobID:             uuid.New(),
		InputRef:          inputRef,
		TotalUnits:        totalUnits,
		Completed:         make(map[int]time.Time),
		Failed:            make(map[int]FailureRecord),
		ConfigFingerprint: Fingerprint(cfg),
		Status:            StatusInitialized,
		CreatedAt:         now,
		LastUpdatedAt:     now,
	}
	if err := s.write(inputRef, meta); err != nil {
		return nil, fmt.Errorf("failed to create job metadata: %w", err)
	}
	return meta, nil
}

// Load reads the metadata for inputRef. The second return value is
// false when the file is absent or corrupt; a corrupt record is never
// partially surfaced.
func (s *Store) Load(inputRef string) (*Metadata, bool) {
	path := MetadataPath(inputRef)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		s.logger.Warn("metadata file is corrupt, ignoring",
			"path", path,
			"error", err)
		return nil, false
	}
	if meta.Completed == nil {
		meta.Completed = make(map[int]time.Time)
	}
	if meta.Failed == nil {
		meta.Failed = make(map[int]FailureRecord)
	}
	return &meta, true
}

// RecordSuccess marks a unit completed. A prior failure record for the
// same index is removed: success supersedes it.
func (s *Store) RecordSuccess(inputRef string, index int) error {
	return s.update(inputRef, func(meta *Metadata) {
		meta.Completed[index] = time.Now()
		delete(meta.Failed, index)
		meta.Status = deriveStatus(meta)
	})
}

// RecordFailure marks a unit terminally failed.
func (s *Store) RecordFailure(inputRef string, index int, errMsg string) error {
	return s.update(inputRef, func(meta *Metadata) {
		if _, done := meta.Completed[index]; done {
			// A recorded success is never downgraded.
			return
		}
		meta.Failed[index] = FailureRecord{Time: time.Now(), Error: errMsg}
		meta.Status = deriveStatus(meta)
	})
}

// SetStatus overwrites the job-level status field.
func (s *Store) SetStatus(inputRef, status string) error {
	return s.update(inputRef, func(meta *Metadata) {
		meta.Status = status
	})
}

// update performs a full read-modify-write of the metadata record
// under the store mutex so parallel terminal transitions cannot lose
// each other's writes.
func (s *Store) update(inputRef string, mutate func(*Metadata)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.Load(inputRef)
	if !ok {
		return fmt.Errorf("metadata for %q does not exist", inputRef)
	}
	mutate(meta)
	meta.LastUpdatedAt = time.Now()
	if err := s.write(inputRef, meta); err != nil {
		return fmt.Errorf("failed to update job metadata: %w", err)
	}
	return nil
}

// deriveStatus computes the job-level status from per-unit records.
func deriveStatus(meta *Metadata) string {
	switch {
	case len(meta.Completed) >= meta.TotalUnits:
		return StatusCompleted
	case len(meta.Failed) > 0:
		return StatusInProgressWithErrs
	case len(meta.Completed) > 0:
		return StatusInProgress
	default:
		if meta.Status == "" {
			return StatusInitialized
		}
		return meta.Status
	}
}

// write serializes meta and replaces the metadata file atomically.
func (s *Store) write(inputRef string, meta *Metadata) error {
	path := MetadataPath(inputRef)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return atomicWrite(path, data)
}

// atomicWrite writes data to a temp file in the target directory and
// renames it over path. Rename within one filesystem is atomic, so a
// crash mid-write leaves the previous record intact.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %q: %w", path, err)
	}
	return nil
}
