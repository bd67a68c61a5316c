package pilot

import (
	"errors"
	"fmt"
)

// ErrorCode is the code a browser or a device reports a failure with.
type ErrorCode string

// Error codes shared by both channels.
const (
	CodeWrongParameters  ErrorCode = "WRONG_PARAMETERS"
	CodeUnknownRequest   ErrorCode = "UNKNOWN_REQUEST"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeRunning          ErrorCode = "RUNNING"
	CodePersistenceError ErrorCode = "PERSISTENCE_ERROR"
	CodeTransportError   ErrorCode = "TRANSPORT_ERROR"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
	CodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// Pilot errors.
var (
	// ErrTimeout is returned when a device does not answer a request in time.
	ErrTimeout = errors.New("pilot: device request timed out")

	// ErrStopped is returned when the pilot is shut down mid-request.
	ErrStopped = errors.New("pilot: stopped")
)

// DeviceError is a failure reported by a device, or on its behalf when the
// request could not be delivered.
type DeviceError struct {
	DeviceID string
	Code     ErrorCode
	Message  string
}

// Error implements error.
func (e *DeviceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pilot: device %s: %s", e.DeviceID, e.Code)
	}
	return fmt.Sprintf("pilot: device %s: %s: %s", e.DeviceID, e.Code, e.Message)
}

// Unwrap maps TIMEOUT onto ErrTimeout.
func (e *DeviceError) Unwrap() error {
	if e.Code == CodeTimeout {
		return ErrTimeout
	}
	return nil
}

// Error is the error part of a browser response.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// Response answers a browser request.
type Response struct {
	Error *Error `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Fail builds an error response.
func Fail(code ErrorCode, message string) Response {
	return Response{Error: &Error{Code: code, Message: message}}
}

// OK builds a success response.
func OK(data any) Response {
	return Response{Data: data}
}
