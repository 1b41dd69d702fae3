package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"reportd/internal/jobs"
	"reportd/internal/progress"
	"reportd/internal/report"
	"reportd/internal/schedule"
	logx "reportd/pkg/logx"
)

// fire executes one scheduled occurrence. The date window is resolved now,
// not at registration: a rolling-window schedule must cover the days leading
// up to this firing, whenever it happens to run.
func (s *Service) fire(ctx context.Context, sc schedule.Schedule) {
	def, err := report.Lookup(sc.ReportType)
	if err != nil {
		s.log.Error("scheduled firing skipped",
			logx.String("schedule_id", sc.ID), logx.Err(err))
		return
	}

	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	if loc == nil {
		loc = time.Local
	}
	now := s.now().In(loc)

	rng, err := report.Resolve(now, sc.StartDate, sc.EndDate, sc.TillNow, sc.RangeDays)
	if err != nil {
		s.log.Error("scheduled firing skipped",
			logx.String("schedule_id", sc.ID), logx.Err(err))
		return
	}

	jobID := uuid.NewString()
	spec := jobs.TaskSpec{
		ReportType: sc.ReportType,
		JobID:      jobID,
		Output:     progress.OutputPath(s.spoolDir, jobID),
		StartDate:  rng.StartDate(),
		EndDate:    rng.EndDate(),
		Statuses:   sc.StatusList(),
		TillNow:    rng.TillNow,
	}

	start := time.Now()
	s.log.Info("scheduled extraction started",
		logx.String("schedule_id", sc.ID), logx.String("job_id", jobID),
		logx.String("report", sc.ReportType),
		logx.String("from", spec.StartDate), logx.String("to", spec.EndDate))

	if err := s.runner.Run(ctx, spec); err != nil {
		s.log.Error("scheduled extraction failed",
			logx.String("schedule_id", sc.ID), logx.String("job_id", jobID),
			logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Info("scheduled extraction completed",
		logx.String("schedule_id", sc.ID), logx.String("job_id", jobID),
		logx.Duration("took", time.Since(start)))

	if strings.TrimSpace(sc.EmailTo) == "" {
		return
	}

	filename := fmt.Sprintf("%s_%s_to_%s.csv", def.Display, spec.StartDate, spec.EndDate)
	subject := fmt.Sprintf("Scheduled report: %s", def.Display)
	body := fmt.Sprintf("The %s report covering %s to %s is attached.",
		def.Display, spec.StartDate, spec.EndDate)

	// Delivery is best-effort: the file is on disk either way, so a mail
	// outage must not mark the firing as failed.
	if err := s.sender.SendReport(ctx, sc.EmailTo, subject, body, spec.Output, filename); err != nil {
		s.log.Warn("report delivery failed",
			logx.String("schedule_id", sc.ID), logx.String("to", sc.EmailTo), logx.Err(err))
	}
}

// ExecRunner runs the extract binary in the foreground and reports its exit
// status. Scheduled runs do not go through the job controller: nothing polls
// them, so there is no job to track.
type ExecRunner struct {
	Bin    string
	Config string
	Log    logx.Logger
}

func (r *ExecRunner) Run(ctx context.Context, spec jobs.TaskSpec) error {
	cmd := exec.CommandContext(ctx, r.Bin, spec.Args(r.Config)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("extract %s: %w", spec.ReportType, err)
	}
	return nil
}
