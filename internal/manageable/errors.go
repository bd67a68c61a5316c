package manageable

import "errors"

// Domain errors for the manageable package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, manageable.ErrScheduleConflict) {
//	    // handle overlapping schedule
//	}
var (
	// ErrInvalidType is returned when a type discriminator is neither DEVICE nor GROUP.
	ErrInvalidType = errors.New("manageable: invalid type")

	// ErrInvalidDeviceState is returned for a device state outside PENDING/ACCEPTED/REFUSED.
	ErrInvalidDeviceState = errors.New("manageable: invalid device state")

	// ErrInvalidSessionStatus is returned for an unrecognised session status.
	ErrInvalidSessionStatus = errors.New("manageable: invalid session status")

	// ErrInvalidRecurrence is returned for a recurrence other than none, daily or weekly.
	ErrInvalidRecurrence = errors.New("manageable: invalid recurrence")

	// ErrInvalidSchedule is returned when a schedule is structurally invalid.
	ErrInvalidSchedule = errors.New("manageable: invalid schedule")

	// ErrScheduleInPast is returned when a new schedule does not begin in the future.
	ErrScheduleInPast = errors.New("manageable: schedule begins in the past")

	// ErrScheduleEndBeforeBegin is returned when endDate is not after beginDate.
	ErrScheduleEndBeforeBegin = errors.New("manageable: schedule ends before it begins")

	// ErrScheduleConflict is returned when a schedule overlaps an existing one.
	ErrScheduleConflict = errors.New("manageable: schedule conflicts with an existing schedule")
)
