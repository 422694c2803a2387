package job

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() map[string]any {
	return map[string]any{
		"model_name":  "gemini-2.0-flash",
		"chunk_size":  6000,
		"temperature": 0.4,
	}
}

func TestMetadataPath(t *testing.T) {
	assert.Equal(t, filepath.Join("dir", "novel_metadata.json"), MetadataPath(filepath.Join("dir", "novel.txt")))
	assert.Equal(t, filepath.Join("dir", "novel_metadata.json"), MetadataPath(filepath.Join("dir", "novel_metadata.json")))
}

func TestStore_CreateAndLoad(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	store := NewStore(testLogger())

	meta, err := store.Create(input, 7, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 7, meta.TotalUnits)
	assert.Equal(t, StatusInitialized, meta.Status)
	assert.NotEmpty(t, meta.ConfigFingerprint)

	loaded, ok := store.Load(input)
	require.True(t, ok)
	assert.Equal(t, meta.JobID, loaded.JobID)
	assert.Equal(t, meta.ConfigFingerprint, loaded.ConfigFingerprint)
}

func TestStore_LoadIdempotent(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	store := NewStore(testLogger())

	_, err := store.Create(input, 3, testConfig())
	require.NoError(t, err)

	first, ok := store.Load(input)
	require.True(t, ok)
	second, ok := store.Load(input)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestStore_LoadAbsentOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	store := NewStore(testLogger())

	_, ok := store.Load(input)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(MetadataPath(input), []byte("{not json"), 0o644))
	_, ok = store.Load(input)
	assert.False(t, ok)
}

func TestStore_RecordSuccessAndFailureDisjoint(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	store := NewStore(testLogger())

	_, err := store.Create(input, 3, testConfig())
	require.NoError(t, err)

	require.NoError(t, store.RecordFailure(input, 1, "boom"))
	meta, ok := store.Load(input)
	require.True(t, ok)
	assert.Contains(t, meta.Failed, 1)
	assert.Equal(t, "boom", meta.Failed[1].Error)
	assert.Equal(t, StatusInProgressWithErrs, meta.Status)

	// Success supersedes the prior failure record.
	require.NoError(t, store.RecordSuccess(input, 1))
	meta, ok = store.Load(input)
	require.True(t, ok)
	assert.Contains(t, meta.Completed, 1)
	assert.NotContains(t, meta.Failed, 1)
}

func TestStore_StatusCompletedWhenAllUnitsDone(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	store := NewStore(testLogger())

	_, err := store.Create(input, 2, testConfig())
	require.NoError(t, err)

	require.NoError(t, store.RecordSuccess(input, 0))
	meta, _ := store.Load(input)
	assert.Equal(t, StatusInProgress, meta.Status)

	require.NoError(t, store.RecordSuccess(input, 1))
	meta, _ = store.Load(input)
	assert.Equal(t, StatusCompleted, meta.Status)
	assert.True(t, meta.Terminal())
}

func TestStore_FailureNeverDowngradesSuccess(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	store := NewStore(testLogger())

	_, err := store.Create(input, 2, testConfig())
	require.NoError(t, err)

	require.NoError(t, store.RecordSuccess(input, 0))
	require.NoError(t, store.RecordFailure(input, 0, "late failure"))

	meta, ok := store.Load(input)
	require.True(t, ok)
	assert.Contains(t, meta.Completed, 0)
	assert.NotContains(t, meta.Failed, 0)
}

func TestStore_AtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	store := NewStore(testLogger())

	_, err := store.Create(input, 1, testConfig())
	require.NoError(t, err)
	require.NoError(t, store.RecordSuccess(input, 0))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "input_metadata.json", entries[0].Name())
}

func TestFingerprint_DeterministicAndSecretFree(t *testing.T) {
	a := map[string]any{"model_name": "m", "chunk_size": 100, "api_key": "secret-1"}
	b := map[string]any{"chunk_size": 100, "api_key": "secret-2", "model_name": "m"}

	// Same effective config, different secrets and key order.
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	c := map[string]any{"model_name": "other", "chunk_size": 100}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestStore_ConcurrentRecordsAllPersisted(t *testing.T) {
	const total = 40

	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	store := NewStore(testLogger())
	_, err := store.Create(input, total, testConfig())
	require.NoError(t, err)

	// Engine workers record terminal transitions in parallel; every
	// one of them must survive the whole-file write cycle.
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			if index%5 == 4 {
				assert.NoError(t, store.RecordFailure(input, index, "boom"))
				return
			}
			assert.NoError(t, store.RecordSuccess(input, index))
		}(i)
	}
	wg.Wait()

	meta, ok := store.Load(input)
	require.True(t, ok)
	assert.Len(t, meta.Completed, 32)
	assert.Len(t, meta.Failed, 8)
	for i := 0; i < total; i++ {
		if i%5 == 4 {
			assert.Contains(t, meta.Failed, i)
		} else {
			assert.Contains(t, meta.Completed, i)
		}
	}
	assert.Equal(t, StatusInProgressWithErrs, meta.Status)
}

func TestStore_ConcurrentSuccessesReachCompleted(t *testing.T) {
	const total = 25

	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	store := NewStore(testLogger())
	_, err := store.Create(input, total, testConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			assert.NoError(t, store.RecordSuccess(input, index))
		}(i)
	}
	wg.Wait()

	meta, ok := store.Load(input)
	require.True(t, ok)
	require.Len(t, meta.Completed, total)
	assert.Equal(t, StatusCompleted, meta.Status)
}
