// Package job persists per-unit progress and merged output for a
// dispatch job so that a crashed or interrupted run can be resumed.
// All writes go through temp-file-then-atomic-rename; a crash mid-write
// leaves the previous valid record intact. The guarantees hold only
// within a single process's ownership of the job's files.
package job

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status values for a job as a whole.
const (
	StatusInitialized        = "initialized"
	StatusInProgress         = "in_progress"
	StatusInProgressWithErrs = "in_progress_with_errors"
	StatusCompleted          = "completed"
)

// FailureRecord captures the terminal failure of a single unit.
type FailureRecord struct {
	Time  time.Time `json:"time"`
	Error string    `json:"error"`
}

// Metadata is the persisted record of a job's progress. Completed and
// Failed keysets are disjoint: a unit index appears in exactly one or
// neither.
type Metadata struct {
	JobID             uuid.UUID             `json:"job_id"`
	InputRef          string                `json:"input_ref"`
	TotalUnits        int                   `json:"total_units"`
	Completed         map[int]time.Time     `json:"completed_units"`
	Failed            map[int]FailureRecord `json:"failed_units"`
	ConfigFingerprint string                `json:"config_fingerprint"`
	Status            string                `json:"status"`
	CreatedAt         time.Time             `json:"created_at"`
	LastUpdatedAt     time.Time             `json:"last_updated_at"`
}

// Terminal reports whether every unit has reached a terminal state.
func (m *Metadata) Terminal() bool {
	return len(m.Completed)+len(m.Failed) >= m.TotalUnits
}

// secretConfigKeys are stripped before fingerprinting. The fingerprint
// detects resume/config drift; it is not a security control.
var secretConfigKeys = []string{"api_key", "api_keys"}

// Fingerprint returns a deterministic digest over the sorted-key JSON
// serialization of cfg with secret fields removed. Two runs with the
// same effective configuration produce the same fingerprint.
func Fingerprint(cfg map[string]any) string {
	clean := make(map[string]any, len(cfg))
	for k, v := range cfg {
		clean[k] = v
	}
	for _, k := range secretConfigKeys {
		delete(clean, k)
	}

	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(clean[k])
		h.Write(kb)
		h.Write([]byte{':'})
		h.Write(vb)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
