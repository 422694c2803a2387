package job

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutput_AppendAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunked.txt")
	store := NewStore(testLogger())

	require.NoError(t, store.AppendOutput(path, 0, "first result"))
	require.NoError(t, store.AppendOutput(path, 2, "third result\nwith a second line"))

	results, err := store.LoadOutputs(path)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{
		0: "first result",
		2: "third result\nwith a second line",
	}, results)
}

func TestOutput_MissingFileYieldsEmpty(t *testing.T) {
	store := NewStore(testLogger())
	results, err := store.LoadOutputs(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestOutput_TruncatedTrailingBlockDropped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunked.txt")
	store := NewStore(testLogger())

	require.NoError(t, store.AppendOutput(path, 0, "complete"))

	// Simulate a crash mid-append: a block with no terminator.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("##UNIT_INDEX: 1##\npartially writt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	results, err := store.LoadOutputs(path)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "complete"}, results)
}

func TestOutput_SaveMergedSanitizesAndSorts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunked.txt")
	store := NewStore(testLogger())

	require.NoError(t, store.SaveMergedOutputs(path, map[int]string{
		5: "five",
		1: "one",
		3: "three",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Less(t, strings.Index(text, "##UNIT_INDEX: 1##"), strings.Index(text, "##UNIT_INDEX: 3##"))
	assert.Less(t, strings.Index(text, "##UNIT_INDEX: 3##"), strings.Index(text, "##UNIT_INDEX: 5##"))

	results, err := store.LoadOutputs(path)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "three", results[3])
}

func TestOutput_ConcurrentAppendsAllReloadable(t *testing.T) {
	const total = 20

	dir := t.TempDir()
	path := filepath.Join(dir, "chunked.txt")
	store := NewStore(testLogger())

	// Large blocks written from parallel workers must never interleave;
	// an interleaved block would fail to parse on reload.
	payload := strings.Repeat("긴 번역 결과 라인\n", 500)
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			content := fmt.Sprintf("unit %d\n%s", index, payload)
			assert.NoError(t, store.AppendOutput(path, index, strings.TrimSuffix(content, "\n")))
		}(i)
	}
	wg.Wait()

	results, err := store.LoadOutputs(path)
	require.NoError(t, err)
	require.Len(t, results, total)
	for i := 0; i < total; i++ {
		assert.True(t, strings.HasPrefix(results[i], fmt.Sprintf("unit %d\n", i)))
	}
}
