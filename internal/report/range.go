package report

import (
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ErrEndDateRequired is returned when neither an end date nor till-now is given.
var ErrEndDateRequired = errors.New("end date is required unless till-now is set")

// Range is a resolved extraction window. It is computed fresh at submission
// time (ad hoc jobs) or fire time (scheduled jobs), never stored.
type Range struct {
	Start   time.Time
	End     time.Time
	TillNow bool
}

func (r Range) StartDate() string { return r.Start.Format(dateLayout) }
func (r Range) EndDate() string   { return r.End.Format(dateLayout) }

// Resolve computes the extraction window. Exactly one mode applies:
//
//   - Rolling: rangeDays = N > 0 wins over any stored absolute dates and
//     yields the last N complete days, [today-N 00:00, yesterday 23:59].
//   - Absolute: [startDate 00:00, endDate 23:59]. With tillNow set, or when
//     endDate is today's date (implicit till-now), the window ends at now.
//
// now carries the timezone the calendar arithmetic happens in.
func Resolve(now time.Time, startDate, endDate string, tillNow bool, rangeDays int) (Range, error) {
	if rangeDays > 0 {
		today := midnight(now)
		return Range{
			Start:   today.AddDate(0, 0, -rangeDays),
			End:     today.Add(-time.Minute), // yesterday 23:59
			TillNow: false,
		}, nil
	}

	start, err := time.ParseInLocation(dateLayout, startDate, now.Location())
	if err != nil {
		return Range{}, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}

	if !tillNow && endDate == "" {
		return Range{}, ErrEndDateRequired
	}

	if tillNow {
		return Range{Start: start, End: now, TillNow: true}, nil
	}

	end, err := time.ParseInLocation(dateLayout, endDate, now.Location())
	if err != nil {
		return Range{}, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	// An end date that resolves to the current local date is an implicit
	// till-now: the day is not over yet.
	if end.Equal(midnight(now)) {
		return Range{Start: start, End: now, TillNow: true}, nil
	}

	return Range{
		Start:   start,
		End:     end.AddDate(0, 0, 1).Add(-time.Minute), // end_date 23:59
		TillNow: false,
	}, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
