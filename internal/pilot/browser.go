package pilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/manage-core/internal/manageable"
)

// RequestKind names a browser request.
type RequestKind string

const (
	RequestGetDevices            RequestKind = "getDevices"
	RequestGetGroups             RequestKind = "getGroups"
	RequestUpdateName            RequestKind = "updateName"
	RequestRemove                RequestKind = "remove"
	RequestAddSchedule           RequestKind = "addSchedule"
	RequestRemoveSchedule        RequestKind = "removeSchedule"
	RequestRemoveHistoric        RequestKind = "removeHistoric"
	RequestRemoveHistory         RequestKind = "removeHistory"
	RequestStartSession          RequestKind = "startSession"
	RequestStopSession           RequestKind = "stopSession"
	RequestIndexSession          RequestKind = "indexSession"
	RequestUpdateDeviceState     RequestKind = "updateDeviceState"
	RequestCreateGroup           RequestKind = "createGroup"
	RequestAddDeviceToGroup      RequestKind = "addDeviceToGroup"
	RequestRemoveDeviceFromGroup RequestKind = "removeDeviceFromGroup"
)

// Notification names pushed to every browser.
const (
	NotifyConnectDevice         = "connectDevice"
	NotifyRemove                = "remove"
	NotifyUpdate                = "update"
	NotifyAddSchedule           = "addSchedule"
	NotifyRemoveSchedule        = "removeSchedule"
	NotifyAddHistoric           = "addHistoric"
	NotifyRemoveHistoric        = "removeHistoric"
	NotifyRemoveHistory         = "removeHistory"
	NotifyUpdateDeviceState     = "updateDeviceState"
	NotifyCreateGroup           = "createGroup"
	NotifyAddDeviceToGroup      = "addDeviceToGroup"
	NotifyRemoveDeviceFromGroup = "removeDeviceFromGroup"
)

// ErrInvalidRequest is returned for a request payload of the wrong shape.
var ErrInvalidRequest = errors.New("pilot: invalid request")

// Target addresses one manageable.
type Target struct {
	ID   string          `json:"id"`
	Type manageable.Type `json:"type"`
}

func (t Target) validate() error {
	if err := required("id", t.ID); err != nil {
		return err
	}
	if _, err := manageable.ParseType(string(t.Type)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// UpdateNameRequest renames a device or group.
type UpdateNameRequest struct {
	Target
	Name string `json:"name"`
}

// RemoveRequest deletes a device or group.
type RemoveRequest struct {
	Target
}

// AddScheduleRequest adds a schedule to a device or group.
type AddScheduleRequest struct {
	Target
	Schedule *manageable.Schedule `json:"schedule"`
}

// RemoveScheduleRequest removes one schedule.
type RemoveScheduleRequest struct {
	Target
	ScheduleID string `json:"scheduleId"`
}

// RemoveHistoricRequest removes one history entry.
type RemoveHistoricRequest struct {
	Target
	HistoricID string `json:"historicId"`
}

// RemoveHistoryRequest clears a history.
type RemoveHistoryRequest struct {
	Target
}

// SessionRequest starts, stops or indexes recording sessions. PresetID is
// only read when starting.
type SessionRequest struct {
	IDs      []string `json:"ids"`
	PresetID string   `json:"presetId,omitempty"`
	Name     string   `json:"name,omitempty"`
}

// UpdateDeviceStateRequest accepts or refuses a device.
type UpdateDeviceStateRequest struct {
	ID    string                 `json:"id"`
	State manageable.DeviceState `json:"state"`
}

// CreateGroupRequest creates an empty group.
type CreateGroupRequest struct {
	Name string `json:"name,omitempty"`
}

// AddDeviceToGroupRequest moves a device into a group.
type AddDeviceToGroupRequest struct {
	DeviceID string `json:"deviceId"`
	GroupID  string `json:"groupId"`
}

// RemoveDeviceFromGroupRequest detaches a device from its group.
type RemoveDeviceFromGroupRequest struct {
	ID string `json:"id"`
}

// Request is a validated browser request waiting for the manager.
type Request struct {
	Kind     RequestKind
	Payload  any
	ClientID string
	reply    func(Response)
}

// NewRequest builds a request outside of a browser connection.
func NewRequest(kind RequestKind, payload any, reply func(Response)) Request {
	return Request{Kind: kind, Payload: payload, reply: reply}
}

// Reply answers the browser that sent the request.
func (r Request) Reply(resp Response) {
	if r.reply != nil {
		r.reply(resp)
	}
}

// BrowserPilot routes messages between the manager and the browsers.
type BrowserPilot struct {
	hub      *hub
	logger   Logger
	requests chan Request
	queue    *fifo[Request]
	now      func() time.Time
}

// NewBrowserPilot creates a browser pilot. Call Start before serving.
func NewBrowserPilot(cfg HubConfig) *BrowserPilot {
	p := &BrowserPilot{
		hub:      newHub(cfg),
		logger:   noopLogger{},
		requests: make(chan Request),
		queue:    newFIFO[Request](),
		now:      time.Now,
	}
	p.hub.onMessage = p.dispatch
	return p
}

// SetLogger sets the logger for the pilot.
func (p *BrowserPilot) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
		p.hub.logger = logger
	}
}

// Start forwards requests until ctx is cancelled, then disconnects every
// browser.
func (p *BrowserPilot) Start(ctx context.Context) {
	go p.queue.drain(ctx, p.requests)
	go func() {
		<-ctx.Done()
		p.hub.closeAll()
	}()
}

// Requests returns the validated request stream.
func (p *BrowserPilot) Requests() <-chan Request {
	return p.requests
}

// Serve upgrades an authenticated HTTP request to a browser connection.
func (p *BrowserPilot) Serve(w http.ResponseWriter, r *http.Request, subject string) error {
	return p.hub.serve(w, r, subject)
}

// ClientCount returns the number of connected browsers.
func (p *BrowserPilot) ClientCount() int {
	return p.hub.count()
}

func (p *BrowserPilot) dispatch(c *client, msg inbound) {
	kind := RequestKind(msg.Type)
	decode, known := decoders[kind]
	if !known {
		c.respond(msg.ID, Fail(CodeUnknownRequest, "unknown request: "+msg.Type))
		return
	}

	payload, err := decode(msg.Payload, p.now())
	if err != nil {
		p.logger.Debug("rejecting browser request", "client_id", c.id, "kind", kind, "error", err)
		c.respond(msg.ID, Fail(CodeWrongParameters, err.Error()))
		return
	}

	id := msg.ID
	p.queue.push(Request{
		Kind:     kind,
		Payload:  payload,
		ClientID: c.id,
		reply:    func(resp Response) { c.respond(id, resp) },
	})
}

type decoder func(raw json.RawMessage, now time.Time) (any, error)

var decoders = map[RequestKind]decoder{
	RequestGetDevices: noPayload,
	RequestGetGroups:  noPayload,
	RequestUpdateName: decodeAs(func(r UpdateNameRequest, _ time.Time) error {
		if err := r.Target.validate(); err != nil {
			return err
		}
		return required("name", r.Name)
	}),
	RequestRemove: decodeAs(func(r RemoveRequest, _ time.Time) error {
		return r.Target.validate()
	}),
	RequestAddSchedule: decodeAs(func(r AddScheduleRequest, now time.Time) error {
		if err := r.Target.validate(); err != nil {
			return err
		}
		if r.Schedule == nil {
			return fmt.Errorf("%w: schedule is required", ErrInvalidRequest)
		}
		if err := manageable.ValidateSchedule(r.Schedule, now); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return nil
	}),
	RequestRemoveSchedule: decodeAs(func(r RemoveScheduleRequest, _ time.Time) error {
		if err := r.Target.validate(); err != nil {
			return err
		}
		return required("scheduleId", r.ScheduleID)
	}),
	RequestRemoveHistoric: decodeAs(func(r RemoveHistoricRequest, _ time.Time) error {
		if err := r.Target.validate(); err != nil {
			return err
		}
		return required("historicId", r.HistoricID)
	}),
	RequestRemoveHistory: decodeAs(func(r RemoveHistoryRequest, _ time.Time) error {
		return r.Target.validate()
	}),
	RequestStartSession: decodeAs(func(r SessionRequest, _ time.Time) error {
		if err := requireIDs(r.IDs); err != nil {
			return err
		}
		return required("presetId", r.PresetID)
	}),
	RequestStopSession: decodeAs(func(r SessionRequest, _ time.Time) error {
		return requireIDs(r.IDs)
	}),
	RequestIndexSession: decodeAs(func(r SessionRequest, _ time.Time) error {
		return requireIDs(r.IDs)
	}),
	RequestUpdateDeviceState: decodeAs(func(r UpdateDeviceStateRequest, _ time.Time) error {
		if err := required("id", r.ID); err != nil {
			return err
		}
		if _, err := manageable.ParseDeviceState(string(r.State)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return nil
	}),
	RequestCreateGroup: func(raw json.RawMessage, _ time.Time) (any, error) {
		var r CreateGroupRequest
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &r); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
			}
		}
		return r, nil
	},
	RequestAddDeviceToGroup: decodeAs(func(r AddDeviceToGroupRequest, _ time.Time) error {
		if err := required("deviceId", r.DeviceID); err != nil {
			return err
		}
		return required("groupId", r.GroupID)
	}),
	RequestRemoveDeviceFromGroup: decodeAs(func(r RemoveDeviceFromGroupRequest, _ time.Time) error {
		return required("id", r.ID)
	}),
}

// decodeAs unmarshals the payload into T and runs validate on it.
func decodeAs[T any](validate func(T, time.Time) error) decoder {
	return func(raw json.RawMessage, now time.Time) (any, error) {
		var v T
		if len(raw) == 0 || string(raw) == "null" {
			return nil, fmt.Errorf("%w: payload is required", ErrInvalidRequest)
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		if err := validate(v, now); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func noPayload(json.RawMessage, time.Time) (any, error) {
	return nil, nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRequest, field)
	}
	return nil
}

func requireIDs(ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: ids is required", ErrInvalidRequest)
	}
	for _, id := range ids {
		if err := required("ids[]", id); err != nil {
			return err
		}
	}
	return nil
}

// Notifications. Each is encoded immediately, so the payload reflects the
// state at call time, and pushed to every connected browser.

// ConnectDevice announces a device that authenticated.
func (p *BrowserPilot) ConnectDevice(d *manageable.Device) {
	p.notify(NotifyConnectDevice, d)
}

// Remove announces a deleted device or group.
func (p *BrowserPilot) Remove(m manageable.Manageable) {
	p.notify(NotifyRemove, targetOf(m))
}

// Update announces a changed property.
func (p *BrowserPilot) Update(m manageable.Manageable, key string, value any) {
	p.notify(NotifyUpdate, struct {
		Target
		Key   string `json:"key"`
		Value any    `json:"value"`
	}{targetOf(m), key, value})
}

// AddSchedule announces a new schedule.
func (p *BrowserPilot) AddSchedule(m manageable.Manageable, s *manageable.Schedule) {
	p.notify(NotifyAddSchedule, struct {
		Target
		Schedule *manageable.Schedule `json:"schedule"`
	}{targetOf(m), s})
}

// RemoveSchedule announces a removed schedule.
func (p *BrowserPilot) RemoveSchedule(m manageable.Manageable, scheduleID string) {
	p.notify(NotifyRemoveSchedule, RemoveScheduleRequest{Target: targetOf(m), ScheduleID: scheduleID})
}

// AddHistoric announces a new history entry.
func (p *BrowserPilot) AddHistoric(m manageable.Manageable, h *manageable.Historic) {
	p.notify(NotifyAddHistoric, struct {
		Target
		Historic *manageable.Historic `json:"historic"`
	}{targetOf(m), h})
}

// RemoveHistoric announces a removed history entry.
func (p *BrowserPilot) RemoveHistoric(m manageable.Manageable, historicID string) {
	p.notify(NotifyRemoveHistoric, RemoveHistoricRequest{Target: targetOf(m), HistoricID: historicID})
}

// RemoveHistory announces a cleared history.
func (p *BrowserPilot) RemoveHistory(m manageable.Manageable) {
	p.notify(NotifyRemoveHistory, targetOf(m))
}

// UpdateDeviceState announces an accepted or refused device.
func (p *BrowserPilot) UpdateDeviceState(d *manageable.Device) {
	p.notify(NotifyUpdateDeviceState, UpdateDeviceStateRequest{ID: d.ID, State: d.State})
}

// CreateGroup announces a new group.
func (p *BrowserPilot) CreateGroup(g *manageable.Group) {
	p.notify(NotifyCreateGroup, g)
}

// AddDeviceToGroup announces a device joining a group.
func (p *BrowserPilot) AddDeviceToGroup(d *manageable.Device, g *manageable.Group) {
	p.notify(NotifyAddDeviceToGroup, AddDeviceToGroupRequest{DeviceID: d.ID, GroupID: g.ID})
}

// RemoveDeviceFromGroup announces a device leaving groupID.
func (p *BrowserPilot) RemoveDeviceFromGroup(d *manageable.Device, groupID string) {
	p.notify(NotifyRemoveDeviceFromGroup, AddDeviceToGroupRequest{DeviceID: d.ID, GroupID: groupID})
}

func (p *BrowserPilot) notify(event string, payload any) {
	data, err := json.Marshal(Envelope{
		Type:      TypeEvent,
		EventType: event,
		Timestamp: p.now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		p.logger.Error("failed to marshal browser notification", "event", event, "error", err)
		return
	}
	n := p.hub.broadcast(data)
	p.logger.Debug("browser notification sent", "event", event, "recipients", n)
}

func targetOf(m manageable.Manageable) Target {
	base := m.Base()
	return Target{ID: base.ID, Type: base.Type}
}
