package timer

import "time"

// Every is how often a job repeats.
type Every int

const (
	Once Every = iota
	Daily
	Weekly
)

// String implements fmt.Stringer.
func (e Every) String() string {
	switch e {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	default:
		return "once"
	}
}

func (e Every) days() int {
	switch e {
	case Daily:
		return 1
	case Weekly:
		return 7
	default:
		return 0
	}
}

// NextOccurrence returns the first occurrence strictly after t of a job that
// begins at begin and repeats every e until end (inclusive, nil for unbounded).
// The zero time means there is none.
//
// Occurrences step by calendar days in begin's location, so a daily job keeps
// its wall-clock time across DST changes.
func NextOccurrence(begin time.Time, end *time.Time, e Every, t time.Time) time.Time {
	if begin.After(t) {
		if end != nil && begin.After(*end) {
			return time.Time{}
		}
		return begin
	}
	days := e.days()
	if days == 0 {
		return time.Time{}
	}

	period := time.Duration(days) * 24 * time.Hour
	n := int(t.Sub(begin)/period) - 1
	if n < 0 {
		n = 0
	}
	next := begin.AddDate(0, 0, n*days)
	for !next.After(t) {
		n++
		next = begin.AddDate(0, 0, n*days)
	}
	if end != nil && next.After(*end) {
		return time.Time{}
	}
	return next
}

// occurrences implements cron.Schedule.
type occurrences struct {
	begin time.Time
	end   *time.Time
	every Every
}

func (o *occurrences) Next(t time.Time) time.Time {
	return NextOccurrence(o.begin, o.end, o.every, t)
}
