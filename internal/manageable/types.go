package manageable

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type discriminates the Manageable variants.
type Type string

const (
	TypeDevice Type = "DEVICE"
	TypeGroup  Type = "GROUP"
)

// ParseType validates a type discriminator received from a peer.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeDevice, TypeGroup:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

// DeviceState is the administrative state of a device.
type DeviceState string

const (
	StatePending  DeviceState = "PENDING"
	StateAccepted DeviceState = "ACCEPTED"
	StateRefused  DeviceState = "REFUSED"
)

// ParseDeviceState validates a device state.
func ParseDeviceState(s string) (DeviceState, error) {
	switch st := DeviceState(s); st {
	case StatePending, StateAccepted, StateRefused:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDeviceState, s)
	}
}

// SessionStatus is the recording session state reported by a device.
type SessionStatus string

const (
	StatusDisconnected SessionStatus = "DISCONNECTED"
	StatusStopped      SessionStatus = "STOPPED"
	StatusError        SessionStatus = "ERROR"
	StatusStarted      SessionStatus = "STARTED"
	StatusStarting     SessionStatus = "STARTING"
	StatusStopping     SessionStatus = "STOPPING"
	StatusUnknown      SessionStatus = "UNKNOWN"
)

// ParseSessionStatus validates a session status.
func ParseSessionStatus(s string) (SessionStatus, error) {
	switch st := SessionStatus(s); st {
	case StatusDisconnected, StatusStopped, StatusError, StatusStarted,
		StatusStarting, StatusStopping, StatusUnknown:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionStatus, s)
	}
}

// Startable reports whether a recording can be started from this status.
func (s SessionStatus) Startable() bool {
	return s == StatusError || s == StatusStopped
}

// Transitioning reports whether the device is between two stable states.
func (s SessionStatus) Transitioning() bool {
	return s == StatusStarting || s == StatusStopping
}

// Manageable is a Device or a Group.
type Manageable interface {
	// Base returns the shared entity. Mutations through it are visible to
	// every holder of the Manageable.
	Base() *Entity

	// Property returns a queryable attribute by name.
	Property(key string) (string, bool)
}

// Entity holds what devices and groups have in common.
type Entity struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      Type        `json:"type"`
	History   []*Historic `json:"history"`
	Schedules []*Schedule `json:"schedules"`
}

// Base implements Manageable.
func (e *Entity) Base() *Entity { return e }

// Property implements Manageable for the shared attributes.
func (e *Entity) Property(key string) (string, bool) {
	switch key {
	case "id":
		return e.ID, true
	case "name":
		return e.Name, true
	case "type":
		return string(e.Type), true
	}
	return "", false
}

// Schedule returns the schedule with the given id, or nil.
func (e *Entity) Schedule(id string) *Schedule {
	for _, s := range e.Schedules {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// AddSchedule appends s, replacing any schedule with the same id.
func (e *Entity) AddSchedule(s *Schedule) {
	for i, existing := range e.Schedules {
		if existing.ID == s.ID {
			e.Schedules[i] = s
			return
		}
	}
	e.Schedules = append(e.Schedules, s)
}

// RemoveSchedule drops the schedule with the given id.
func (e *Entity) RemoveSchedule(id string) bool {
	for i, s := range e.Schedules {
		if s.ID == id {
			e.Schedules = append(e.Schedules[:i], e.Schedules[i+1:]...)
			return true
		}
	}
	return false
}

// Historic returns the history entry with the given id, or nil.
func (e *Entity) Historic(id string) *Historic {
	for _, h := range e.History {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// AddHistoric appends h to the history.
func (e *Entity) AddHistoric(h *Historic) {
	e.History = append(e.History, h)
}

// RemoveHistoric drops the history entry with the given id.
func (e *Entity) RemoveHistoric(id string) bool {
	for i, h := range e.History {
		if h.ID == id {
			e.History = append(e.History[:i], e.History[i+1:]...)
			return true
		}
	}
	return false
}

// ClearHistory drops every history entry.
func (e *Entity) ClearHistory() {
	e.History = nil
}

// Message is a translatable history message.
type Message struct {
	Key    string         `json:"key"`
	Params map[string]any `json:"params,omitempty"`
}

// Historic is one audit entry.
type Historic struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   Message   `json:"message"`
}

// NewHistoric builds a history entry with a fresh id.
func NewHistoric(key string, params map[string]any, at time.Time) *Historic {
	return &Historic{
		ID:        GenerateID(),
		Timestamp: at,
		Message:   Message{Key: key, Params: params},
	}
}

// GenerateID returns a new random identifier.
func GenerateID() string {
	return uuid.NewString()
}
