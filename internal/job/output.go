package job

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Output blocks are tagged with the unit index so that a partially
// written file can be reloaded and merged without re-deriving order:
//
//	##UNIT_INDEX: 3##
//	<content>
//	##END_UNIT##
//
// A trailing block missing its ##END_UNIT## terminator (crash mid-
// append) simply fails to match on reload and is dropped.
var blockPattern = regexp.MustCompile(`(?s)##UNIT_INDEX: (\d+)##\n(.*?)\n##END_UNIT##`)

// formatBlock renders one index-tagged output block.
func formatBlock(index int, content string) string {
	return fmt.Sprintf("##UNIT_INDEX: %d##\n%s\n##END_UNIT##\n\n", index, content)
}

// AppendOutput appends one unit's result to the block-format output
// file at path. Appends are serialized under the store mutex: blocks
// can exceed the size for which O_APPEND writes are atomic, and an
// interleaved block fails to match on reload.
func (s *Store) AppendOutput(path string, index int, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open output file %q: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(formatBlock(index, content)); err != nil {
		return fmt.Errorf("failed to append unit %d output: %w", index, err)
	}
	return nil
}

// LoadOutputs parses a block-format output file into index→content.
// A missing file yields an empty map. Blocks with unparseable indices
// and a truncated trailing block are skipped.
func (s *Store) LoadOutputs(path string) (map[int]string, error) {
	results := make(map[int]string)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return results, nil
		}
		return nil, fmt.Errorf("failed to read output file %q: %w", path, err)
	}
	for _, m := range blockPattern.FindAllStringSubmatch(string(data), -1) {
		index, err := strconv.Atoi(m[1])
		if err != nil {
			s.logger.Warn("skipping output block with bad index",
				"path", path,
				"raw_index", m[1])
			continue
		}
		results[index] = m[2]
	}
	return results, nil
}

// SaveMergedOutputs rewrites path with the given results as sorted,
// complete blocks. Used both to sanitize a partial file on resume and
// to persist the merged result set. The write is atomic.
func (s *Store) SaveMergedOutputs(path string, results map[int]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	indices := make([]int, 0, len(results))
	for i := range results {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var b strings.Builder
	for _, i := range indices {
		b.WriteString(formatBlock(i, results[i]))
	}
	if err := atomicWrite(path, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to save merged outputs: %w", err)
	}
	return nil
}
