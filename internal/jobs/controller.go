package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"reportd/internal/progress"
	"reportd/internal/report"
	logx "reportd/pkg/logx"
)

// Config controls the job controller.
type Config struct {
	SpoolDir   string
	Retention  time.Duration // spool sweep window; default 24h
	HistoryCap int           // in-memory job entries kept; default 500
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.SpoolDir) == "" {
		c.SpoolDir = os.TempDir()
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = 500
	}
	return c
}

// Controller owns the in-memory job registries (output filenames, live
// process handles, job history) and the operations over them. It never
// blocks: submissions spawn and return, polls are a single file read, and
// cancels signal without waiting.
type Controller struct {
	mu sync.Mutex

	cfg      Config
	log      logx.Logger
	launcher Launcher

	files   map[string]string // job id -> download filename
	procs   map[string]Handle // job id -> live process handle
	history []*Job            // insertion order; History() returns newest first

	now func() time.Time
}

func New(cfg Config, launcher Launcher, log logx.Logger) *Controller {
	return &Controller{
		cfg:      cfg.withDefaults(),
		log:      log,
		launcher: launcher,
		files:    map[string]string{},
		procs:    map[string]Handle{},
		now:      time.Now,
	}
}

// Submit validates the request, sweeps expired spool files, and launches the
// extraction task as an independent process. It returns the fresh job id
// immediately; the task runs asynchronously to completion.
func (c *Controller) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !req.TillNow && strings.TrimSpace(req.EndDate) == "" {
		return "", report.ErrEndDateRequired
	}
	def, err := report.Lookup(req.ReportType)
	if err != nil {
		return "", err
	}

	c.sweep()

	jobID := uuid.NewString()
	spec := TaskSpec{
		ReportType: def.Key,
		JobID:      jobID,
		Output:     progress.OutputPath(c.cfg.SpoolDir, jobID),
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Statuses:   req.Statuses,
		TillNow:    req.TillNow,
	}

	h, err := c.launcher.Start(ctx, spec)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.files[jobID] = def.Filename
	c.procs[jobID] = h
	c.appendLocked(&Job{
		ID:         jobID,
		ReportType: def.Key,
		ReportName: def.Display,
		Filename:   def.Filename,
		Status:     progress.StatusStarting,
		StartTime:  c.now(),
	})
	c.mu.Unlock()

	c.log.Info("job started",
		logx.String("job_id", jobID),
		logx.String("report", def.Key),
		logx.Int("pid", h.Pid()),
	)
	return jobID, nil
}

// Poll reads the job's progress record and reconciles it into the in-memory
// history. A job whose task has not written its first record yet reports a
// default starting snapshot. Re-polling a terminal job is safe: end time is
// stamped only on the first terminal observation.
func (c *Controller) Poll(jobID string) (progress.Record, error) {
	rec, _, err := progress.Read(c.cfg.SpoolDir, jobID)
	if err != nil {
		return progress.Record{}, err
	}

	c.mu.Lock()
	if j := c.findLocked(jobID); j != nil {
		j.Status = rec.Status
		j.Rows = rec.Completed
		if progress.Terminal(rec.Status) && j.EndTime == nil {
			end := c.now()
			j.EndTime = &end
			j.Error = rec.Error
		}
	}
	if progress.Terminal(rec.Status) {
		// The child is done (or as good as); drop the handle so a late
		// cancel gets ErrJobNotFound instead of signalling a dead pid.
		delete(c.procs, jobID)
	}
	c.mu.Unlock()

	return rec, nil
}

// Cancel requests termination of a running job. The signal is advisory and
// non-blocking: the task is expected to notice it between pages and exit on
// its own. The progress record is overwritten to cancelled unconditionally,
// which can race with (and lose to) a task finishing in the same instant;
// that last-writer-wins ambiguity is accepted.
func (c *Controller) Cancel(jobID string) error {
	c.mu.Lock()
	h, ok := c.procs[jobID]
	if ok {
		delete(c.procs, jobID)
	}
	c.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}

	if err := h.Signal(syscall.SIGTERM); err != nil {
		// Process already gone; the overwrite below still records the intent.
		c.log.Debug("cancel signal failed", logx.String("job_id", jobID), logx.Err(err))
	}

	if err := progress.Write(c.cfg.SpoolDir, jobID, progress.Record{Status: progress.StatusCancelled}); err != nil {
		c.log.Warn("cancel progress write failed", logx.String("job_id", jobID), logx.Err(err))
	}

	c.mu.Lock()
	if j := c.findLocked(jobID); j != nil {
		j.Status = progress.StatusCancelled
		end := c.now()
		j.EndTime = &end
		j.Error = "Cancelled by user"
	}
	c.mu.Unlock()

	c.log.Info("job cancelled", logx.String("job_id", jobID))
	return nil
}

// Download returns the CSV path and the user-facing filename for a finished
// job. ErrFileNotReady covers all absent-file cases: not finished, never
// existed, or already swept.
func (c *Controller) Download(jobID string) (path, filename string, err error) {
	path = progress.OutputPath(c.cfg.SpoolDir, jobID)
	if _, statErr := os.Stat(path); statErr != nil {
		return "", "", ErrFileNotReady
	}

	c.mu.Lock()
	filename = c.files[jobID]
	c.mu.Unlock()
	if filename == "" {
		filename = "report.csv"
	}
	return path, filename, nil
}

// History returns a snapshot of all tracked jobs, most recent first.
func (c *Controller) History() []Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Job, 0, len(c.history))
	for i := len(c.history) - 1; i >= 0; i-- {
		out = append(out, *c.history[i])
	}
	return out
}

func (c *Controller) findLocked(jobID string) *Job {
	for _, j := range c.history {
		if j.ID == jobID {
			return j
		}
	}
	return nil
}

func (c *Controller) appendLocked(j *Job) {
	c.history = append(c.history, j)
	if len(c.history) > c.cfg.HistoryCap {
		drop := c.history[0]
		c.history = c.history[1:]
		delete(c.files, drop.ID)
		delete(c.procs, drop.ID)
	}
}

// sweep deletes spool files older than the retention window by modification
// time. Concurrent deletion is fine; "already gone" races are ignored.
func (c *Controller) sweep() {
	cutoff := c.now().Add(-c.cfg.Retention)

	entries, err := os.ReadDir(c.cfg.SpoolDir)
	if err != nil {
		c.log.Debug("spool sweep skipped", logx.Err(err))
		return
	}
	for _, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".csv" && ext != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(c.cfg.SpoolDir, name)
		if err := os.Remove(path); err == nil {
			c.log.Debug("swept spool file", logx.String("path", path))
		}
	}
}
