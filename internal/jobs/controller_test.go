package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"reportd/internal/progress"
	"reportd/internal/report"
	logx "reportd/pkg/logx"
)

type fakeHandle struct {
	mu   sync.Mutex
	sigs []os.Signal
}

func (h *fakeHandle) Signal(sig os.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sigs = append(h.sigs, sig)
	return nil
}

func (h *fakeHandle) Pid() int { return 4242 }

func (h *fakeHandle) signals() []os.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]os.Signal(nil), h.sigs...)
}

type fakeLauncher struct {
	mu      sync.Mutex
	specs   []TaskSpec
	handles []*fakeHandle
	err     error
}

func (l *fakeLauncher) Start(_ context.Context, spec TaskSpec) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	h := &fakeHandle{}
	l.specs = append(l.specs, spec)
	l.handles = append(l.handles, h)
	return h, nil
}

func newTestController(t *testing.T, cfg Config) (*Controller, *fakeLauncher) {
	t.Helper()
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = t.TempDir()
	}
	l := &fakeLauncher{}
	return New(cfg, l, logx.Nop()), l
}

func TestSubmitSpawnsAndTracks(t *testing.T) {
	t.Parallel()
	c, l := newTestController(t, Config{})

	jobID, err := c.Submit(context.Background(), SubmitRequest{
		ReportType: "jira_ops",
		StartDate:  "2026-01-01",
		EndDate:    "2026-01-31",
		Statuses:   []string{"Open"},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if jobID == "" {
		t.Fatal("empty job id")
	}

	if len(l.specs) != 1 {
		t.Fatalf("launcher called %d times, want 1", len(l.specs))
	}
	spec := l.specs[0]
	if spec.JobID != jobID || spec.ReportType != "jira_ops" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if spec.Output != progress.OutputPath(c.cfg.SpoolDir, jobID) {
		t.Fatalf("Output = %q", spec.Output)
	}

	hist := c.History()
	if len(hist) != 1 {
		t.Fatalf("history has %d entries, want 1", len(hist))
	}
	if hist[0].ID != jobID || hist[0].Status != progress.StatusStarting {
		t.Fatalf("unexpected history entry: %+v", hist[0])
	}
	if hist[0].EndTime != nil {
		t.Fatal("fresh job must not have an end time")
	}
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, Config{})

	_, err := c.Submit(context.Background(), SubmitRequest{
		ReportType: "jira_ops",
		StartDate:  "2026-01-01",
	})
	if !errors.Is(err, report.ErrEndDateRequired) {
		t.Fatalf("err = %v, want ErrEndDateRequired", err)
	}

	// Till-now lifts the end-date requirement.
	if _, err := c.Submit(context.Background(), SubmitRequest{
		ReportType: "jira_ops",
		StartDate:  "2026-01-01",
		TillNow:    true,
	}); err != nil {
		t.Fatalf("till-now submit error: %v", err)
	}

	_, err = c.Submit(context.Background(), SubmitRequest{
		ReportType: "not_a_report",
		StartDate:  "2026-01-01",
		EndDate:    "2026-01-31",
	})
	if !errors.Is(err, report.ErrUnknownReport) {
		t.Fatalf("err = %v, want ErrUnknownReport", err)
	}
}

func TestPollDefaultsAndReconciles(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, Config{})

	jobID, err := c.Submit(context.Background(), SubmitRequest{
		ReportType: "jira_ops", StartDate: "2026-01-01", EndDate: "2026-01-31",
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	// No progress file yet: the task has not started writing.
	rec, err := c.Poll(jobID)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if rec.Status != progress.StatusStarting {
		t.Fatalf("Status = %q, want starting", rec.Status)
	}

	if err := progress.Write(c.cfg.SpoolDir, jobID, progress.Record{
		Completed: 50, Total: 200, Status: progress.StatusRunning,
	}); err != nil {
		t.Fatalf("progress write: %v", err)
	}
	if _, err := c.Poll(jobID); err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	hist := c.History()
	if hist[0].Status != progress.StatusRunning || hist[0].Rows != 50 {
		t.Fatalf("history not reconciled: %+v", hist[0])
	}
}

func TestPollStampsEndTimeOnce(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, Config{})

	jobID, err := c.Submit(context.Background(), SubmitRequest{
		ReportType: "jira_ops", StartDate: "2026-01-01", EndDate: "2026-01-31",
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	if err := progress.Write(c.cfg.SpoolDir, jobID, progress.Record{
		Completed: 200, Total: 200, Status: progress.StatusCompleted,
	}); err != nil {
		t.Fatalf("progress write: %v", err)
	}

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return first }
	if _, err := c.Poll(jobID); err != nil {
		t.Fatalf("Poll error: %v", err)
	}

	// A later re-poll must not move the recorded end time.
	c.now = func() time.Time { return first.Add(time.Hour) }
	if _, err := c.Poll(jobID); err != nil {
		t.Fatalf("Poll error: %v", err)
	}

	hist := c.History()
	if hist[0].EndTime == nil || !hist[0].EndTime.Equal(first) {
		t.Fatalf("EndTime = %v, want %v", hist[0].EndTime, first)
	}
}

func TestCancelRunningJob(t *testing.T) {
	t.Parallel()
	c, l := newTestController(t, Config{})

	jobID, err := c.Submit(context.Background(), SubmitRequest{
		ReportType: "jira_ops", StartDate: "2026-01-01", EndDate: "2026-01-31",
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	if err := c.Cancel(jobID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	sigs := l.handles[0].signals()
	if len(sigs) != 1 || sigs[0] != syscall.SIGTERM {
		t.Fatalf("signals = %v, want one SIGTERM", sigs)
	}

	rec, _, err := progress.Read(c.cfg.SpoolDir, jobID)
	if err != nil {
		t.Fatalf("progress read: %v", err)
	}
	if rec.Status != progress.StatusCancelled {
		t.Fatalf("progress status = %q, want cancelled", rec.Status)
	}

	hist := c.History()
	if hist[0].Status != progress.StatusCancelled || hist[0].Error != "Cancelled by user" {
		t.Fatalf("history entry: %+v", hist[0])
	}
	if hist[0].EndTime == nil {
		t.Fatal("cancelled job must have an end time")
	}

	// The handle is gone: a second cancel has nothing to signal.
	if err := c.Cancel(jobID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("second cancel err = %v, want ErrJobNotFound", err)
	}
}

func TestCancelAfterTerminalPoll(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, Config{})

	jobID, err := c.Submit(context.Background(), SubmitRequest{
		ReportType: "jira_ops", StartDate: "2026-01-01", EndDate: "2026-01-31",
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	if err := progress.Write(c.cfg.SpoolDir, jobID, progress.Record{
		Status: progress.StatusCompleted,
	}); err != nil {
		t.Fatalf("progress write: %v", err)
	}
	if _, err := c.Poll(jobID); err != nil {
		t.Fatalf("Poll error: %v", err)
	}

	if err := c.Cancel(jobID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("cancel after completion err = %v, want ErrJobNotFound", err)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, Config{})
	if err := c.Cancel("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestDownload(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, Config{})

	jobID, err := c.Submit(context.Background(), SubmitRequest{
		ReportType: "jira_ops", StartDate: "2026-01-01", EndDate: "2026-01-31",
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	if _, _, err := c.Download(jobID); !errors.Is(err, ErrFileNotReady) {
		t.Fatalf("err = %v, want ErrFileNotReady", err)
	}

	out := progress.OutputPath(c.cfg.SpoolDir, jobID)
	if err := os.WriteFile(out, []byte("Key\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	path, filename, err := c.Download(jobID)
	if err != nil {
		t.Fatalf("Download error: %v", err)
	}
	if path != out {
		t.Fatalf("path = %q, want %q", path, out)
	}
	if filename != "JIRA-OPS-Task-Bug-Report.csv" {
		t.Fatalf("filename = %q", filename)
	}
}

func TestHistoryNewestFirstAndCapped(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t, Config{HistoryCap: 3})

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := c.Submit(context.Background(), SubmitRequest{
			ReportType: "jira_ops", StartDate: "2026-01-01", EndDate: "2026-01-31",
		})
		if err != nil {
			t.Fatalf("Submit error: %v", err)
		}
		ids = append(ids, id)
	}

	hist := c.History()
	if len(hist) != 3 {
		t.Fatalf("history has %d entries, want cap 3", len(hist))
	}
	// Newest first; the two oldest evicted.
	for i, want := range []string{ids[4], ids[3], ids[2]} {
		if hist[i].ID != want {
			t.Fatalf("hist[%d].ID = %s, want %s", i, hist[i].ID, want)
		}
	}
}

func TestSweepRemovesExpiredSpoolFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c, _ := newTestController(t, Config{SpoolDir: dir, Retention: 24 * time.Hour})

	old := filepath.Join(dir, "stale.csv")
	oldJSON := filepath.Join(dir, "stale.json")
	fresh := filepath.Join(dir, "fresh.csv")
	other := filepath.Join(dir, "keep.txt")
	for _, p := range []string{old, oldJSON, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	stale := time.Now().Add(-48 * time.Hour)
	for _, p := range []string{old, oldJSON, other} {
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatalf("chtimes %s: %v", p, err)
		}
	}

	// Submission is the sweep trigger.
	if _, err := c.Submit(context.Background(), SubmitRequest{
		ReportType: "jira_ops", StartDate: "2026-01-01", EndDate: "2026-01-31",
	}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	for _, p := range []string{old, oldJSON} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s survived the sweep", p)
		}
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("%s should have been kept: %v", p, err)
		}
	}
}
