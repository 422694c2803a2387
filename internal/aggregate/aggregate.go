// Package aggregate merges in-memory and persisted unit results into
// index-ordered output.
package aggregate

// Placeholder fills positional slots whose unit never completed. The
// final output always has one entry per index so downstream consumers
// can locate failures.
const Placeholder = "[처리 실패]"

// Ordered returns results for indices [0, maxIndex] in order, emitting
// Placeholder for any index without a result. No positional slot is
// ever skipped.
func Ordered(results map[int]string, maxIndex int) []string {
	if maxIndex < 0 {
		return nil
	}
	out := make([]string, 0, maxIndex+1)
	for i := 0; i <= maxIndex; i++ {
		if r, ok := results[i]; ok && r != "" {
			out = append(out, r)
		} else {
			out = append(out, Placeholder)
		}
	}
	return out
}

// Merge overlays incoming onto existing and returns existing. Only
// non-empty incoming values overwrite: a failed in-flight retry (empty
// value) never clobbers a previously recorded success.
func Merge(existing, incoming map[int]string) map[int]string {
	if existing == nil {
		existing = make(map[int]string, len(incoming))
	}
	for index, value := range incoming {
		if value == "" {
			continue
		}
		existing[index] = value
	}
	return existing
}

// MaxIndex returns the highest index present in results, or -1 when
// results is empty.
func MaxIndex(results map[int]string) int {
	max := -1
	for i := range results {
		if i > max {
			max = i
		}
	}
	return max
}
