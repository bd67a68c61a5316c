package manageable

import (
	"fmt"
	"time"
)

// MaxScheduleDuration bounds a single occurrence.
const MaxScheduleDuration = 24 * time.Hour

// ValidateSchedule checks the structure of a schedule received from a
// browser: a future begin date, a positive duration under a day, a preset and,
// when present, an end date after the begin date.
func ValidateSchedule(s *Schedule, now time.Time) error {
	if s == nil {
		return fmt.Errorf("%w: missing schedule", ErrInvalidSchedule)
	}
	if s.BeginDate.IsZero() {
		return fmt.Errorf("%w: beginDate is required", ErrInvalidSchedule)
	}
	if !s.BeginDate.After(now) {
		return ErrScheduleInPast
	}
	if s.Duration <= 0 || s.Duration >= MaxScheduleDuration {
		return fmt.Errorf("%w: duration must be positive and under %s", ErrInvalidSchedule, MaxScheduleDuration)
	}
	if s.Preset == "" {
		return fmt.Errorf("%w: preset is required", ErrInvalidSchedule)
	}
	if s.EndDate != nil && !s.EndDate.After(s.BeginDate) {
		return ErrScheduleEndBeforeBegin
	}
	return nil
}

// CheckSchedule decides whether s may be added to m.
//
// s must begin after now and end after it begins, and must not conflict with
// m's own schedules nor with any schedule of peers. The caller picks the
// peers: a device's group, or a group's member devices.
func CheckSchedule(m Manageable, s *Schedule, now time.Time, peers ...Manageable) error {
	if !s.BeginDate.After(now) {
		return ErrScheduleInPast
	}
	if s.EndDate != nil && !s.BeginDate.Before(*s.EndDate) {
		return ErrScheduleEndBeforeBegin
	}

	owners := append([]Manageable{m}, peers...)
	for _, owner := range owners {
		if owner == nil {
			continue
		}
		for _, existing := range owner.Base().Schedules {
			if existing.ID == s.ID {
				continue
			}
			if Conflicts(s, existing) {
				return fmt.Errorf("%w: %s on %s", ErrScheduleConflict, existing.ID, owner.Base().ID)
			}
		}
	}
	return nil
}
