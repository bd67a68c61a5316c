package manager

import (
	"errors"

	"github.com/nerrad567/manage-core/internal/pilot"
)

// Orchestrator errors. Each maps onto the error code a browser receives.
var (
	// ErrNotFound is returned when a device, group, schedule or historic is
	// not in the cache.
	ErrNotFound = errors.New("manager: not found")

	// ErrConflict is returned when a schedule overlaps an existing one.
	ErrConflict = errors.New("manager: conflict")

	// ErrRunning is returned when removing a schedule that is executing.
	ErrRunning = errors.New("manager: schedule is running")

	// ErrPersistence is returned when the store rejects a write.
	ErrPersistence = errors.New("manager: persistence failed")

	// ErrTransport is returned when a device round-trip fails.
	ErrTransport = errors.New("manager: device unreachable")

	// ErrValidation is returned for a request the manager cannot act on.
	ErrValidation = errors.New("manager: invalid request")
)

// codeFor maps an error onto a browser error code.
func codeFor(err error) pilot.ErrorCode {
	switch {
	case errors.Is(err, ErrNotFound):
		return pilot.CodeNotFound
	case errors.Is(err, ErrConflict):
		return pilot.CodeConflict
	case errors.Is(err, ErrRunning):
		return pilot.CodeRunning
	case errors.Is(err, ErrPersistence):
		return pilot.CodePersistenceError
	case errors.Is(err, ErrTransport):
		return pilot.CodeTransportError
	case errors.Is(err, ErrValidation):
		return pilot.CodeWrongParameters
	default:
		return pilot.CodeInternalError
	}
}
