// Package extract implements the extraction task: it paginates the issue
// tracker's search API for one report definition, mirrors its progress into
// the shared spool file after every page, and lands the result as a CSV.
//
// The task runs as its own process. It never talks to the daemon directly;
// the progress file and its own exit status are the entire contract.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"reportd/internal/progress"
	"reportd/internal/report"
	logx "reportd/pkg/logx"
)

// searcher is the slice of Client the pagination loop needs.
type searcher interface {
	Search(ctx context.Context, jql string, fields []string, startAt int) (Page, error)
	PageSize() int
}

// Task is one extraction run.
type Task struct {
	Def      report.Definition
	Range    report.Range
	Statuses []string
	JobID    string
	Output   string
	SpoolDir string
	Client   searcher
	Log      logx.Logger

	completed int
	total     int
}

// Run executes the extraction and writes the terminal progress record.
// A context cancellation (the SIGTERM path) records cancelled; any other
// failure records failed with the error text. The caller maps the returned
// error onto the process exit status.
func (t *Task) Run(ctx context.Context) error {
	t.writeProgress(progress.StatusStarting, nil)

	err := t.run(ctx)
	switch {
	case err == nil:
		t.writeProgress(progress.StatusCompleted, nil)
	case errors.Is(err, context.Canceled):
		t.writeProgress(progress.StatusCancelled, nil)
		t.Log.Warn("extraction cancelled", logx.String("job_id", t.JobID),
			logx.Int("completed", t.completed), logx.Int("total", t.total))
	default:
		t.writeProgress(progress.StatusFailed, err)
		t.Log.Error("extraction failed", logx.String("job_id", t.JobID), logx.Err(err))
	}
	return err
}

func (t *Task) run(ctx context.Context) error {
	jql := t.Def.JQL(t.Range, t.Statuses)
	fields := t.Def.Fields()
	t.Log.Info("extraction started",
		logx.String("job_id", t.JobID), logx.String("report", t.Def.Key),
		logx.String("jql", jql))

	header := make([]string, len(t.Def.Columns))
	for i, c := range t.Def.Columns {
		header[i] = c.Header
	}

	var rows [][]string
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := t.Client.Search(ctx, jql, fields, t.completed)
		if err != nil {
			return err
		}
		if first {
			first = false
			t.total = page.Total
			t.writeProgress(progress.StatusRunning, nil)
		}
		if len(page.Issues) == 0 {
			break
		}

		for _, raw := range page.Issues {
			var issue map[string]any
			if err := json.Unmarshal(raw, &issue); err != nil {
				return fmt.Errorf("decode issue at offset %d: %w", t.completed, err)
			}
			row := make([]string, len(t.Def.Columns))
			for i, col := range t.Def.Columns {
				row[i] = fieldValue(issue, col.Path)
			}
			rows = append(rows, row)
		}

		t.completed += len(page.Issues)
		t.writeProgress(progress.StatusRunning, nil)
		t.Log.Debug("page fetched", logx.String("job_id", t.JobID),
			logx.Int("completed", t.completed), logx.Int("total", t.total))

		if t.completed >= t.total || len(page.Issues) < t.Client.PageSize() {
			break
		}
	}

	if err := writeCSV(t.Output, header, rows); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	t.Log.Info("extraction completed", logx.String("job_id", t.JobID),
		logx.Int("rows", len(rows)), logx.String("output", t.Output))
	return nil
}

// writeProgress mirrors the task state into the spool. Failures to write are
// swallowed: losing a progress update degrades polling, not the extraction.
func (t *Task) writeProgress(status string, cause error) {
	rec := progress.Record{Completed: t.completed, Total: t.total, Status: status}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := progress.Write(t.SpoolDir, t.JobID, rec); err != nil {
		t.Log.Warn("progress write failed", logx.String("job_id", t.JobID), logx.Err(err))
	}
}
