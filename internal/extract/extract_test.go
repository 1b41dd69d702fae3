package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reportd/internal/progress"
	"reportd/internal/report"
	logx "reportd/pkg/logx"
)

type fakeSearcher struct {
	pageSize int
	issues   []json.RawMessage
	err      error

	calls  int
	cancel context.CancelFunc // when set, fires after the first page
}

func (f *fakeSearcher) PageSize() int { return f.pageSize }

func (f *fakeSearcher) Search(_ context.Context, _ string, _ []string, startAt int) (Page, error) {
	f.calls++
	if f.err != nil {
		return Page{}, f.err
	}
	if f.cancel != nil && f.calls > 1 {
		f.cancel()
		f.cancel = nil
	}
	end := startAt + f.pageSize
	if end > len(f.issues) {
		end = len(f.issues)
	}
	if startAt > end {
		startAt = end
	}
	return Page{Total: len(f.issues), Issues: f.issues[startAt:end]}, nil
}

func makeIssues(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(fmt.Sprintf(
			`{"key":"OPS-%d","fields":{"summary":"issue %d","status":{"name":"Open"}}}`, i+1, i+1))
	}
	return out
}

func newTestTask(t *testing.T, client searcher) *Task {
	t.Helper()
	def, err := report.Lookup("jira_ops")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	spool := t.TempDir()
	return &Task{
		Def: def,
		Range: report.Range{
			Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC),
		},
		JobID:    "job-x",
		Output:   filepath.Join(spool, "job-x.csv"),
		SpoolDir: spool,
		Client:   client,
		Log:      logx.Nop(),
	}
}

func TestRunPaginatesAndWritesCSV(t *testing.T) {
	t.Parallel()
	task := newTestTask(t, &fakeSearcher{pageSize: 2, issues: makeIssues(5)})

	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	rec, ok, err := progress.Read(task.SpoolDir, task.JobID)
	if err != nil || !ok {
		t.Fatalf("progress read: ok=%v err=%v", ok, err)
	}
	if rec.Status != progress.StatusCompleted {
		t.Fatalf("Status = %q, want completed", rec.Status)
	}
	if rec.Completed != 5 || rec.Total != 5 {
		t.Fatalf("counts = %d/%d, want 5/5", rec.Completed, rec.Total)
	}

	raw, err := os.ReadFile(task.Output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(raw, utf8BOM) {
		t.Fatal("output missing UTF-8 BOM")
	}

	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 6 { // header + 5 issues
		t.Fatalf("csv has %d rows, want 6", len(rows))
	}
	if rows[0][0] != "Key" {
		t.Fatalf("header starts with %q", rows[0][0])
	}
	if rows[1][0] != "OPS-1" || rows[5][0] != "OPS-5" {
		t.Fatalf("unexpected row keys: %q, %q", rows[1][0], rows[5][0])
	}
	// Status column resolved through its object.
	statusIdx := -1
	for i, h := range rows[0] {
		if h == "Status" {
			statusIdx = i
		}
	}
	if statusIdx < 0 || rows[1][statusIdx] != "Open" {
		t.Fatalf("status column not extracted: %v", rows[1])
	}
}

func TestRunEmptyResult(t *testing.T) {
	t.Parallel()
	task := newTestTask(t, &fakeSearcher{pageSize: 50})

	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	raw, err := os.ReadFile(task.Output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("empty export should still have a header row, got %d rows", len(rows))
	}
}

func TestRunSearchFailureRecordsFailed(t *testing.T) {
	t.Parallel()
	task := newTestTask(t, &fakeSearcher{pageSize: 50, err: errors.New("search returned 401")})

	if err := task.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	rec, _, err := progress.Read(task.SpoolDir, task.JobID)
	if err != nil {
		t.Fatalf("progress read: %v", err)
	}
	if rec.Status != progress.StatusFailed {
		t.Fatalf("Status = %q, want failed", rec.Status)
	}
	if rec.Error == "" {
		t.Fatal("failed record must carry the error text")
	}

	if _, err := os.Stat(task.Output); !os.IsNotExist(err) {
		t.Fatal("failed run must not leave an output file")
	}
}

func TestRunCancellationBetweenPages(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeSearcher{pageSize: 2, issues: makeIssues(10), cancel: cancel}
	task := newTestTask(t, client)

	err := task.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	rec, _, rerr := progress.Read(task.SpoolDir, task.JobID)
	if rerr != nil {
		t.Fatalf("progress read: %v", rerr)
	}
	if rec.Status != progress.StatusCancelled {
		t.Fatalf("Status = %q, want cancelled", rec.Status)
	}
	if rec.Completed == 0 || rec.Completed >= 10 {
		t.Fatalf("Completed = %d, want partial progress", rec.Completed)
	}

	if _, err := os.Stat(task.Output); !os.IsNotExist(err) {
		t.Fatal("cancelled run must not leave an output file")
	}
}
