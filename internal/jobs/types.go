package jobs

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"
)

var (
	ErrJobNotFound  = errors.New("job not running")
	ErrFileNotReady = errors.New("file not ready")
)

// Job is one submitted extraction, tracked in memory for the lifetime of the
// daemon process. Terminal jobs keep their entry; the history is capped, not
// cleared.
type Job struct {
	ID         string     `json:"job_id"`
	ReportType string     `json:"report_type"`
	ReportName string     `json:"report_name"`
	Filename   string     `json:"filename"`
	Status     string     `json:"status"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time"`
	Rows       int        `json:"rows"`
	Error      string     `json:"error,omitempty"`
}

// SubmitRequest carries the job submission surface. Dates are calendar dates
// ("2006-01-02"); EndDate may be empty only when TillNow is set.
type SubmitRequest struct {
	ReportType string
	StartDate  string
	EndDate    string
	Statuses   []string
	TillNow    bool
}

// TaskSpec is the invocation contract for one extraction task process.
// Dates are passed through as received; the task resolves its own window.
type TaskSpec struct {
	ReportType string
	JobID      string
	Output     string
	StartDate  string
	EndDate    string
	Statuses   []string
	TillNow    bool
}

// Args renders the spec as the extract binary's command line. configPath,
// when non-empty, is forwarded as --config.
func (s TaskSpec) Args(configPath string) []string {
	args := []string{
		"--report", s.ReportType,
		"--start-date", s.StartDate,
		"--output", s.Output,
		"--job-id", s.JobID,
	}
	if s.EndDate != "" {
		args = append(args, "--end-date", s.EndDate)
	}
	if s.TillNow {
		args = append(args, "--till-now")
	}
	if len(s.Statuses) > 0 {
		args = append(args, "--statuses", strings.Join(s.Statuses, ","))
	}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}

// Handle is the controller's grip on a spawned task: enough to signal it,
// nothing more. Cancellation is advisory; the controller never waits for the
// child to exit.
type Handle interface {
	Signal(sig os.Signal) error
	Pid() int
}

// Launcher spawns extraction task processes. Start must not block on task
// completion.
type Launcher interface {
	Start(ctx context.Context, spec TaskSpec) (Handle, error)
}
