// Package progress implements the file-based progress channel between the
// job controller and extraction task processes.
//
// One JSON record per job lives at a well-known path derived from the job id.
// The record is overwritten wholesale on every update; there is no lock, so
// readers must tolerate last-writer-wins (a controller cancel-overwrite can be
// clobbered by a task's final write, and vice versa).
package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Status values shared across the process boundary. This is wire format;
// keep it stable.
const (
	StatusStarting  = "starting"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Terminal reports whether status is a terminal state.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Record is the progress/status payload exchanged between task and controller.
type Record struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"` // 0 means "unknown yet"
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Path returns the progress file location for a job within the spool dir.
func Path(dir, jobID string) string {
	return filepath.Join(dir, jobID+".json")
}

// OutputPath returns the CSV output location for a job within the spool dir.
func OutputPath(dir, jobID string) string {
	return filepath.Join(dir, jobID+".csv")
}

// Write overwrites the job's record. The write is not atomic with respect to
// concurrent writers; the design accepts the small cancel/finish race rather
// than adding cross-process locking.
func Write(dir, jobID string, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(dir, jobID), b, 0o644)
}

// Read returns the job's record. When the file does not exist yet (the task
// has not written its first record) it returns a default starting snapshot
// and ok=false.
func Read(dir, jobID string) (Record, bool, error) {
	b, err := os.ReadFile(Path(dir, jobID))
	if os.IsNotExist(err) {
		return Record{Status: StatusStarting}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}
