package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"reportd/internal/schedule"
)

var ErrUnknownScheduleType = errors.New("unknown schedule type")

// cronParser matches the standard 5-field crontab layout the trigger table
// compiles to. No descriptors, no seconds.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Trigger is a compiled firing rule: either a cron spec (recurring kinds) or
// a single absolute fire time ("once").
type Trigger struct {
	Spec string    // cron spec; empty for one-time triggers
	At   time.Time // one-time fire instant; zero for recurring triggers
}

// Next returns the first fire time strictly after t. One-time triggers
// return their instant only while it is still ahead of t, then zero.
func (tr Trigger) Next(t time.Time) (time.Time, error) {
	if tr.Spec == "" {
		if tr.At.After(t) {
			return tr.At, nil
		}
		return time.Time{}, nil
	}
	sched, err := cronParser.Parse(tr.Spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t), nil
}

// BuildTrigger compiles a schedule's (type, value, run_time) into a Trigger.
//
//	once:    fires exactly once at the literal value date + run_time
//	daily:   every day at run_time
//	weekly:  on the day-of-week set in value ("mon,wed") at run_time
//	monthly: on the day-of-month in value at run_time
func BuildTrigger(scheduleType, scheduleValue, runTime string, loc *time.Location) (Trigger, error) {
	h, m, err := parseHHMM(runTime)
	if err != nil {
		return Trigger{}, err
	}

	switch scheduleType {
	case schedule.TypeOnce:
		day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(scheduleValue), loc)
		if err != nil {
			return Trigger{}, fmt.Errorf("invalid once date %q: %w", scheduleValue, err)
		}
		return Trigger{At: day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)}, nil

	case schedule.TypeDaily:
		return Trigger{Spec: fmt.Sprintf("%d %d * * *", m, h)}, nil

	case schedule.TypeWeekly:
		days, err := normalizeWeekdays(scheduleValue)
		if err != nil {
			return Trigger{}, err
		}
		return Trigger{Spec: fmt.Sprintf("%d %d * * %s", m, h, days)}, nil

	case schedule.TypeMonthly:
		dom, err := strconv.Atoi(strings.TrimSpace(scheduleValue))
		if err != nil || dom < 1 || dom > 31 {
			return Trigger{}, fmt.Errorf("invalid day of month %q", scheduleValue)
		}
		return Trigger{Spec: fmt.Sprintf("%d %d %d * *", m, h, dom)}, nil
	}

	return Trigger{}, fmt.Errorf("%w: %q", ErrUnknownScheduleType, scheduleType)
}

var weekdays = map[string]struct{}{
	"sun": {}, "mon": {}, "tue": {}, "wed": {}, "thu": {}, "fri": {}, "sat": {},
}

// normalizeWeekdays validates a "mon,wed" style day set and returns it in the
// form the cron parser accepts.
func normalizeWeekdays(raw string) (string, error) {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		d := strings.ToLower(strings.TrimSpace(p))
		if d == "" {
			continue
		}
		if _, ok := weekdays[d]; !ok {
			return "", fmt.Errorf("invalid day of week %q", p)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("empty day-of-week set %q", raw)
	}
	return strings.Join(out, ","), nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
