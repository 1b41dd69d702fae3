package config

type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`

	// Spool is the shared temp area where extraction tasks drop their CSV
	// output and progress records. The controller and the child processes
	// agree on this directory by configuration, not by IPC.
	Spool SpoolConfig `json:"spool"`

	// Extractor configures how extraction task processes are launched.
	Extractor ExtractorConfig `json:"extractor"`

	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Mail      *MailConfig     `json:"mail,omitempty"`

	// Jira is read by the extract binary only; the daemon passes the config
	// path through so both processes share one file.
	Jira *JiraConfig `json:"jira,omitempty"`
}

type ServerConfig struct {
	Addr string `json:"addr,omitempty"` // default ":8080"
	Mode string `json:"mode,omitempty"` // gin mode: "debug", "release", "test"
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SpoolConfig controls the shared output/progress area.
//
// Retention is a Go duration string (e.g. "24h"); files older than it are
// swept before each job submission.
type SpoolConfig struct {
	Dir       string `json:"dir,omitempty"`       // default: os.TempDir()
	Retention string `json:"retention,omitempty"` // default: "24h"
}

// ExtractorConfig describes the child process that performs extractions.
//
// Bin is the path to the extract binary. Jira settings are passed to the
// child via its own config/env; the daemon only needs to know how to spawn.
type ExtractorConfig struct {
	Bin    string `json:"bin"`
	Config string `json:"config,omitempty"` // optional --config forwarded to the child
}

// SchedulerConfig controls the recurrence scheduler.
//
// Workers is the size of the shared pool executing fired schedules; two
// schedules due at the same instant run concurrently up to this capacity.
type SchedulerConfig struct {
	Enabled    bool   `json:"enabled"`
	Workers    int    `json:"workers,omitempty"`      // default 2
	QueueSize  int    `json:"queue_size,omitempty"`   // default 64
	HistoryCap int    `json:"history_cap,omitempty"`  // job history entries kept in memory, default 500
	Timezone   string `json:"timezone,omitempty"`     // IANA TZ, e.g. "Asia/Kolkata"; default local
}

// StorageConfig locates the schedule database (SQLite).
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// JiraConfig locates the search API. Credentials here are a fallback; the
// JIRA_URL, JIRA_USERNAME and JIRA_PASSWORD environment variables win.
type JiraConfig struct {
	BaseURL   string  `json:"base_url,omitempty"`
	Username  string  `json:"username,omitempty"`
	Password  string  `json:"password,omitempty"`
	PageSize  int     `json:"page_size,omitempty"`  // default 500
	RateLimit float64 `json:"rate_limit,omitempty"` // requests per second, default 2
	Timeout   string  `json:"timeout,omitempty"`    // per-request, Go duration string
}

// MailConfig configures the SMTP notifier. When the section is omitted,
// scheduled runs skip the email step.
type MailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"` // default 587
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from"`
	StartTLS *bool  `json:"starttls,omitempty"` // default true
}
