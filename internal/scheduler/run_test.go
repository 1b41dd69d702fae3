package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reportd/internal/jobs"
	"reportd/internal/schedule"
	logx "reportd/pkg/logx"
)

type fakeStore struct {
	mu     sync.Mutex
	scheds []schedule.Schedule
	err    error
}

func (s *fakeStore) ListEnabled(context.Context) ([]schedule.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]schedule.Schedule(nil), s.scheds...), nil
}

type fakeRunner struct {
	mu    sync.Mutex
	specs []jobs.TaskSpec
	err   error
}

func (r *fakeRunner) Run(_ context.Context, spec jobs.TaskSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = append(r.specs, spec)
	return r.err
}

type sentMail struct {
	to, subject, path, filename string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (s *fakeSender) SendReport(_ context.Context, to, subject, _, path, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{to: to, subject: subject, path: path, filename: filename})
	return s.err
}

func newFireService(t *testing.T, runner *fakeRunner, sender *fakeSender) *Service {
	t.Helper()
	s := New(Config{}, &fakeStore{}, runner, sender, t.TempDir(), logx.Nop())
	s.loc = time.UTC
	s.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestFireResolvesRollingWindowAtFireTime(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	sender := &fakeSender{}
	s := newFireService(t, runner, sender)

	s.fire(context.Background(), schedule.Schedule{
		ID:         "s1",
		ReportType: "jira_ops",
		RangeDays:  7,
		Statuses:   "Open, Closed",
		EmailTo:    "ops@example.com",
	})

	if len(runner.specs) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.specs))
	}
	spec := runner.specs[0]
	if spec.StartDate != "2026-03-03" || spec.EndDate != "2026-03-09" {
		t.Fatalf("window = %s..%s, want 2026-03-03..2026-03-09", spec.StartDate, spec.EndDate)
	}
	if spec.TillNow {
		t.Fatal("rolling window must not be till-now")
	}
	if len(spec.Statuses) != 2 || spec.Statuses[0] != "Open" || spec.Statuses[1] != "Closed" {
		t.Fatalf("statuses = %v", spec.Statuses)
	}
	if spec.JobID == "" || spec.Output == "" {
		t.Fatalf("incomplete spec: %+v", spec)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sender called %d times, want 1", len(sender.sent))
	}
	m := sender.sent[0]
	if m.to != "ops@example.com" {
		t.Fatalf("to = %q", m.to)
	}
	if m.filename != "OPS-Task-Bug_2026-03-03_to_2026-03-09.csv" {
		t.Fatalf("filename = %q", m.filename)
	}
	if m.path != spec.Output {
		t.Fatalf("attached %q, extraction wrote %q", m.path, spec.Output)
	}
}

func TestFireFailedExtractionSkipsEmail(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{err: errors.New("exit status 1")}
	sender := &fakeSender{}
	s := newFireService(t, runner, sender)

	s.fire(context.Background(), schedule.Schedule{
		ID:         "s2",
		ReportType: "jira_ops",
		RangeDays:  1,
		EmailTo:    "ops@example.com",
	})

	if len(runner.specs) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.specs))
	}
	if len(sender.sent) != 0 {
		t.Fatalf("email sent after failed extraction: %+v", sender.sent)
	}
}

func TestFireMailFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	sender := &fakeSender{err: errors.New("smtp down")}
	s := newFireService(t, runner, sender)

	// Must not panic or propagate; the firing already succeeded.
	s.fire(context.Background(), schedule.Schedule{
		ID:         "s3",
		ReportType: "jira_ops",
		RangeDays:  1,
		EmailTo:    "ops@example.com",
	})

	if len(sender.sent) != 1 {
		t.Fatalf("sender called %d times, want 1", len(sender.sent))
	}
}

func TestFireWithoutRecipientSkipsEmail(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	sender := &fakeSender{}
	s := newFireService(t, runner, sender)

	s.fire(context.Background(), schedule.Schedule{
		ID:         "s4",
		ReportType: "jira_ops",
		RangeDays:  1,
	})

	if len(sender.sent) != 0 {
		t.Fatalf("unexpected email: %+v", sender.sent)
	}
}

func TestFireUnknownReportIsSkipped(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	sender := &fakeSender{}
	s := newFireService(t, runner, sender)

	s.fire(context.Background(), schedule.Schedule{
		ID:         "s5",
		ReportType: "gone_report",
		RangeDays:  1,
		EmailTo:    "ops@example.com",
	})

	if len(runner.specs) != 0 || len(sender.sent) != 0 {
		t.Fatal("nothing should run for an unregistered report type")
	}
}

func TestReloadRebuildsFromStore(t *testing.T) {
	t.Parallel()
	store := &fakeStore{scheds: []schedule.Schedule{
		{ID: "a", ReportType: "jira_ops", ScheduleType: schedule.TypeDaily, RunTime: "09:00", Enabled: true},
		{ID: "b", ReportType: "jira_ops", ScheduleType: "bogus", RunTime: "09:00", Enabled: true},
	}}
	s := New(Config{Enabled: true, Workers: 1}, store, &fakeRunner{}, &fakeSender{}, t.TempDir(), logx.Nop())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop(context.Background())

	s.mu.Lock()
	entries := len(s.entries)
	s.mu.Unlock()
	if entries != 1 {
		t.Fatalf("registered %d cron entries, want 1 (bad trigger skipped)", entries)
	}

	// Dropping the enabled set must empty the trigger table.
	store.mu.Lock()
	store.scheds = nil
	store.mu.Unlock()
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload error: %v", err)
	}
	s.mu.Lock()
	entries = len(s.entries)
	s.mu.Unlock()
	if entries != 0 {
		t.Fatalf("registered %d cron entries after reload, want 0", entries)
	}
}
