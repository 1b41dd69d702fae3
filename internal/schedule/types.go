package schedule

import (
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("schedule not found")

// Type is the recurrence kind of a schedule.
const (
	TypeOnce    = "once"
	TypeDaily   = "daily"
	TypeWeekly  = "weekly"
	TypeMonthly = "monthly"
)

// Schedule is a persisted recurring (or one-time) report definition.
//
// Statuses is stored as a comma-separated list, matching the wire form the
// extraction task accepts. ScheduleValue is trigger-specific: a date for
// "once", a day-of-week set ("mon,wed") for "weekly", a day-of-month for
// "monthly", unused for "daily".
type Schedule struct {
	ID            string
	ReportType    string
	Statuses      string
	StartDate     string
	EndDate       string
	TillNow       bool
	ScheduleType  string
	ScheduleValue string
	RunTime       string // "HH:MM"
	RangeDays     int    // >0 switches the fire-time window to rolling
	EmailTo       string
	Enabled       bool
	CreatedAt     time.Time
}

// StatusList splits the stored comma list, dropping empty entries.
func (s Schedule) StatusList() []string {
	if strings.TrimSpace(s.Statuses) == "" {
		return nil
	}
	parts := strings.Split(s.Statuses, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
