package manageable

import "time"

const dayLength = 24 * time.Hour

// timeRange is a [start, end) offset within a day.
type timeRange struct {
	start time.Duration
	end   time.Duration
}

var fullDay = timeRange{0, dayLength}

// Conflicts reports whether a and b can ever record at the same time.
//
// First occurrences are compared as plain intervals. When at least one
// schedule recurs and the recurrence windows overlap, each schedule is reduced
// to the time-of-day ranges it occupies on every weekday and those are
// compared day by day. Both are read in the location of a's BeginDate, so
// schedules submitted with different offsets still line up.
func Conflicts(a, b *Schedule) bool {
	aBegin, aEnd := a.FirstWindow()
	bBegin, bEnd := b.FirstWindow()
	if windowsOverlap(aBegin, aEnd, bBegin, bEnd) {
		return true
	}
	if !a.IsRecurrent() && !b.IsRecurrent() {
		return false
	}

	aBegin, aEnd = a.RecurrenceWindow()
	bBegin, bEnd = b.RecurrenceWindow()
	if !windowsOverlap(aBegin, aEnd, bBegin, bEnd) {
		return false
	}

	loc := a.BeginDate.Location()
	aDays, bDays := a.weekRanges(loc), b.weekRanges(loc)
	for day := range 7 {
		for _, ra := range aDays[day] {
			for _, rb := range bDays[day] {
				if rangesOverlap(ra, rb) {
					return true
				}
			}
		}
	}
	return false
}

// weekRanges lists, per weekday (Sunday first), the ranges the schedule
// occupies. Times of day are read in loc.
func (s *Schedule) weekRanges(loc *time.Location) [7][]timeRange {
	var days [7][]timeRange

	begin := s.BeginDate.In(loc)
	end := s.End().In(loc)
	startDay, endDay := int(begin.Weekday()), int(end.Weekday())
	startTime, endTime := timeOfDay(begin), timeOfDay(end)
	daily := s.Recurrent == RecurrenceDaily

	switch {
	case startDay == endDay && end.Sub(begin) < dayLength:
		r := timeRange{startTime, endTime}
		if daily {
			for d := range days {
				days[d] = []timeRange{r}
			}
		} else {
			days[startDay] = []timeRange{r}
		}

	case startDay == endDay:
		days[startDay] = []timeRange{{startTime, dayLength}, {0, endTime}}
		for d := (startDay + 1) % 7; d != startDay; d = (d + 1) % 7 {
			days[d] = []timeRange{fullDay}
		}

	case daily:
		for d := range days {
			days[d] = []timeRange{{startTime, dayLength}, {0, endTime}}
		}

	default:
		days[startDay] = []timeRange{{startTime, dayLength}}
		days[endDay] = []timeRange{{0, endTime}}
		for d := (startDay + 1) % 7; d != endDay; d = (d + 1) % 7 {
			days[d] = []timeRange{fullDay}
		}
	}
	return days
}

func windowsOverlap(aBegin, aEnd, bBegin, bEnd time.Time) bool {
	return aBegin.Before(bEnd) && bBegin.Before(aEnd)
}

func rangesOverlap(a, b timeRange) bool {
	return a.start < b.end && b.start < a.end
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond())
}
