// Command extract is the extraction task the daemon spawns per job. It is
// deliberately dumb: arguments in, CSV plus progress records out, SIGTERM to
// stop. Everything the daemon knows about a run it learns from the progress
// file, never from this process directly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"reportd/internal/config"
	"reportd/internal/extract"
	"reportd/internal/report"
	logx "reportd/pkg/logx"
)

func main() {
	var (
		reportType string
		startDate  string
		endDate    string
		output     string
		jobID      string
		statuses   string
		tillNow    bool
		cfgPath    string
	)
	flag.StringVar(&reportType, "report", "", "report type key")
	flag.StringVar(&startDate, "start-date", "", "YYYY-MM-DD")
	flag.StringVar(&endDate, "end-date", "", "YYYY-MM-DD")
	flag.StringVar(&output, "output", "", "output CSV path")
	flag.StringVar(&jobID, "job-id", "", "job id for progress reporting")
	flag.StringVar(&statuses, "statuses", "", "comma-separated status filter")
	flag.BoolVar(&tillNow, "till-now", false, "window ends at the current time")
	flag.StringVar(&cfgPath, "config", "", "optional config file (jira section)")
	flag.Parse()

	// SIGTERM is the cancel protocol; the pagination loop notices the
	// cancelled context between pages.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logx.NewConsole(os.Getenv("EXTRACT_LOG_LEVEL"))

	err := run(ctx, log, args{
		reportType: reportType,
		startDate:  startDate,
		endDate:    endDate,
		output:     output,
		jobID:      jobID,
		statuses:   statuses,
		tillNow:    tillNow,
		cfgPath:    cfgPath,
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		// Cancellation is a clean outcome; the progress record already says so.
	default:
		fmt.Fprintln(os.Stderr, "extract:", err)
		os.Exit(1)
	}
}

type args struct {
	reportType string
	startDate  string
	endDate    string
	output     string
	jobID      string
	statuses   string
	tillNow    bool
	cfgPath    string
}

func run(ctx context.Context, log logx.Logger, a args) error {
	if a.reportType == "" || a.startDate == "" || a.output == "" || a.jobID == "" {
		return errors.New("--report, --start-date, --output and --job-id are required")
	}

	def, err := report.Lookup(a.reportType)
	if err != nil {
		return err
	}

	rng, err := report.Resolve(time.Now(), a.startDate, a.endDate, a.tillNow, 0)
	if err != nil {
		return err
	}

	clientCfg, err := loadClientConfig(a.cfgPath)
	if err != nil {
		return err
	}
	client, err := extract.NewClient(clientCfg, log)
	if err != nil {
		return err
	}

	var statusList []string
	for _, s := range strings.Split(a.statuses, ",") {
		if s = strings.TrimSpace(s); s != "" {
			statusList = append(statusList, s)
		}
	}

	task := &extract.Task{
		Def:      def,
		Range:    rng,
		Statuses: statusList,
		JobID:    a.jobID,
		Output:   a.output,
		SpoolDir: filepath.Dir(a.output),
		Client:   client,
		Log:      log,
	}
	return task.Run(ctx)
}

// loadClientConfig merges the optional config file's jira section with the
// environment. Environment wins, matching how the daemon passes credentials
// down without writing them to disk.
func loadClientConfig(cfgPath string) (extract.ClientConfig, error) {
	var out extract.ClientConfig

	if cfgPath != "" {
		cfg, err := config.NewManager(cfgPath).Load()
		if err != nil {
			return out, fmt.Errorf("load config: %w", err)
		}
		if cfg.Jira != nil {
			timeout, err := config.ParseDurationOrDefault("jira.timeout", cfg.Jira.Timeout, 0)
			if err != nil {
				return out, err
			}
			out = extract.ClientConfig{
				BaseURL:   cfg.Jira.BaseURL,
				Username:  cfg.Jira.Username,
				Password:  cfg.Jira.Password,
				PageSize:  cfg.Jira.PageSize,
				RateLimit: cfg.Jira.RateLimit,
				Timeout:   timeout,
			}
		}
	}

	if v := os.Getenv("JIRA_URL"); v != "" {
		out.BaseURL = v
	}
	if v := os.Getenv("JIRA_USERNAME"); v != "" {
		out.Username = v
	}
	if v := os.Getenv("JIRA_PASSWORD"); v != "" {
		out.Password = v
	}
	return out, nil
}
