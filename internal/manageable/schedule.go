package manageable

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/manage-core/internal/timer"
)

// Recurrence is how a schedule repeats.
type Recurrence string

const (
	RecurrenceNone   Recurrence = ""
	RecurrenceDaily  Recurrence = "daily"
	RecurrenceWeekly Recurrence = "weekly"
)

// ParseRecurrence accepts "", "none", "daily" and "weekly".
func ParseRecurrence(s string) (Recurrence, error) {
	switch s {
	case "", "none":
		return RecurrenceNone, nil
	case "daily":
		return RecurrenceDaily, nil
	case "weekly":
		return RecurrenceWeekly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRecurrence, s)
	}
}

// Every maps the recurrence onto the timer's repeat interval.
func (r Recurrence) Every() timer.Every {
	switch r {
	case RecurrenceDaily:
		return timer.Daily
	case RecurrenceWeekly:
		return timer.Weekly
	default:
		return timer.Once
	}
}

// Schedule is a recording window on a device or group.
//
// StartJobID and StopJobID are the timer handles of the registered start and
// stop jobs. They are zero until registration and are never persisted.
type Schedule struct {
	ID         string
	Name       string
	BeginDate  time.Time
	Duration   time.Duration
	EndDate    *time.Time
	Recurrent  Recurrence
	Preset     string
	StartJobID timer.JobID
	StopJobID  timer.JobID
}

type scheduleJSON struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	BeginDate time.Time  `json:"beginDate"`
	Duration  int64      `json:"duration"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	Recurrent Recurrence `json:"recurrent,omitempty"`
	Preset    string     `json:"preset"`
}

// MarshalJSON encodes the duration in milliseconds and omits job handles.
func (s *Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(scheduleJSON{
		ID:        s.ID,
		Name:      s.Name,
		BeginDate: s.BeginDate,
		Duration:  s.Duration.Milliseconds(),
		EndDate:   s.EndDate,
		Recurrent: s.Recurrent,
		Preset:    s.Preset,
	})
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var raw scheduleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rec, err := ParseRecurrence(string(raw.Recurrent))
	if err != nil {
		return err
	}
	*s = Schedule{
		ID:        raw.ID,
		Name:      raw.Name,
		BeginDate: raw.BeginDate,
		Duration:  time.Duration(raw.Duration) * time.Millisecond,
		EndDate:   raw.EndDate,
		Recurrent: rec,
		Preset:    raw.Preset,
	}
	return nil
}

// IsRecurrent reports whether the schedule repeats.
func (s *Schedule) IsRecurrent() bool {
	return s.Recurrent == RecurrenceDaily || s.Recurrent == RecurrenceWeekly
}

// End is the end of the first occurrence.
func (s *Schedule) End() time.Time {
	return s.BeginDate.Add(s.Duration)
}

// FirstWindow is [beginDate, beginDate+duration).
func (s *Schedule) FirstWindow() (time.Time, time.Time) {
	return s.BeginDate, s.End()
}

// RecurrenceWindow is [beginDate, endDate] for a recurrent schedule with an
// end date, otherwise the first window.
func (s *Schedule) RecurrenceWindow() (time.Time, time.Time) {
	if s.IsRecurrent() && s.EndDate != nil {
		return s.BeginDate, *s.EndDate
	}
	return s.FirstWindow()
}

// Localize moves BeginDate and EndDate into loc. Weekdays, times of day and
// the end-of-day bound are all read in the location of BeginDate.
func (s *Schedule) Localize(loc *time.Location) {
	s.BeginDate = s.BeginDate.In(loc)
	if s.EndDate != nil {
		end := s.EndDate.In(loc)
		s.EndDate = &end
	}
}

// NormalizeEndDate defaults a recurrent schedule's end date to its begin date
// and moves it to the last instant of that day.
func (s *Schedule) NormalizeEndDate() {
	if !s.IsRecurrent() {
		return
	}
	end := s.BeginDate
	if s.EndDate != nil {
		end = *s.EndDate
	}
	end = endOfDay(end.In(s.BeginDate.Location()))
	s.EndDate = &end
}

// IsExpired reports whether the schedule can no longer fire a start.
func (s *Schedule) IsExpired(now time.Time) bool {
	if s.IsRecurrent() && s.EndDate != nil {
		return s.EndDate.Before(now)
	}
	return now.After(s.End())
}

// IsRunning reports whether now lies inside an occurrence: the first window,
// or, for a recurrent schedule within its recurrence window, one of the time
// ranges it occupies on now's weekday.
func (s *Schedule) IsRunning(now time.Time) bool {
	begin, end := s.FirstWindow()
	if !now.Before(begin) && !now.After(end) {
		return true
	}
	if !s.IsRecurrent() || s.EndDate == nil {
		return false
	}
	if now.Before(s.BeginDate) || now.After(*s.EndDate) {
		return false
	}

	local := now.In(s.BeginDate.Location())
	tod := timeOfDay(local)
	for _, r := range s.weekRanges(s.BeginDate.Location())[local.Weekday()] {
		if tod >= r.start && tod < r.end {
			return true
		}
	}
	return false
}

// HasNextOccurrence reports whether a start would fire again after now.
func (s *Schedule) HasNextOccurrence(now time.Time) bool {
	return !timer.NextOccurrence(s.BeginDate, s.EndDate, s.Recurrent.Every(), now).IsZero()
}

// StopBounds returns the first stop time and the bound of the stop job,
// which trails the start job by the schedule's duration.
func (s *Schedule) StopBounds() (time.Time, *time.Time) {
	if s.EndDate == nil {
		return s.End(), nil
	}
	end := s.EndDate.Add(s.Duration)
	return s.End(), &end
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Millisecond), t.Location())
}
