package pilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/manage-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/manage-core/internal/manageable"
)

// Device request actions.
const (
	ActionGetName      = "get_name"
	ActionGetSettings  = "get_settings"
	ActionUpdateName   = "update_name"
	ActionStartRecord  = "start_record"
	ActionStopRecord   = "stop_record"
	ActionIndexSession = "index_session"
)

// DefaultRequestTimeout bounds a device round-trip when none is configured.
const DefaultRequestTimeout = 10 * time.Second

// DeviceEventKind names an inbound device message.
type DeviceEventKind string

const (
	DeviceAuthenticated        DeviceEventKind = "authenticated"
	DeviceNameUpdated          DeviceEventKind = "name_updated"
	DeviceSessionStatusUpdated DeviceEventKind = "session_status_updated"
	DeviceDisconnected         DeviceEventKind = "disconnected"
	DeviceErrored              DeviceEventKind = "error"
)

// DeviceEvent is a validated inbound device message. Only the fields of its
// kind are set.
type DeviceEvent struct {
	Kind     DeviceEventKind
	DeviceID string
	IP       string
	Name     string
	Status   manageable.SessionStatus
	Code     string
	Message  string
}

// Result is the outcome of a request for one device.
type Result struct {
	Value string       `json:"value,omitempty"`
	Error *ResultError `json:"error,omitempty"`
}

// ResultError identifies the device that failed and why.
type ResultError struct {
	Code     ErrorCode `json:"code"`
	DeviceID string    `json:"deviceId"`
}

// Transport is the publish/subscribe surface the device pilot needs.
// *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// DeviceConfig tunes the device pilot.
type DeviceConfig struct {
	TopicPrefix    string
	QoS            byte
	RequestTimeout time.Duration
}

type deviceRequest struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	Params    any    `json:"params,omitempty"`
}

type deviceResponse struct {
	Value json.RawMessage `json:"value,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// DevicePilot routes messages between the manager and the devices.
//
// Inbound events are validated and delivered in arrival order on Events().
// Outbound requests are published on the device's request topic and matched
// to their response by request id.
type DevicePilot struct {
	transport Transport
	topics    mqtt.Topics
	cfg       DeviceConfig
	logger    Logger

	events  chan DeviceEvent
	queue   *fifo[DeviceEvent]
	pending map[string]chan deviceResponse
	mu      sync.Mutex
}

// NewDevicePilot creates a device pilot. Call Start to subscribe.
func NewDevicePilot(transport Transport, cfg DeviceConfig) *DevicePilot {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &DevicePilot{
		transport: transport,
		topics:    mqtt.Topics{Prefix: cfg.TopicPrefix},
		cfg:       cfg,
		logger:    noopLogger{},
		events:    make(chan DeviceEvent),
		queue:     newFIFO[DeviceEvent](),
		pending:   make(map[string]chan deviceResponse),
	}
}

// SetLogger sets the logger for the pilot.
func (p *DevicePilot) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Start subscribes to device events and responses and forwards events until
// ctx is cancelled.
func (p *DevicePilot) Start(ctx context.Context) error {
	if err := p.transport.Subscribe(p.topics.AllDeviceResponses(), p.cfg.QoS, p.handleResponse); err != nil {
		return fmt.Errorf("subscribing to device responses: %w", err)
	}
	if err := p.transport.Subscribe(p.topics.AllDeviceEvents(), p.cfg.QoS, p.handleEvent); err != nil {
		return fmt.Errorf("subscribing to device events: %w", err)
	}
	go p.queue.drain(ctx, p.events)
	return nil
}

// Events returns the inbound event stream.
func (p *DevicePilot) Events() <-chan DeviceEvent {
	return p.events
}

// AskForName asks a device for its name.
func (p *DevicePilot) AskForName(ctx context.Context, deviceID string) (string, error) {
	raw, err := p.request(ctx, deviceID, ActionGetName, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &DeviceError{DeviceID: deviceID, Code: CodeWrongParameters, Message: err.Error()}
	}
	return out.Name, nil
}

// AskForSettings asks a device for its storage, inputs and presets.
func (p *DevicePilot) AskForSettings(ctx context.Context, deviceID string) (manageable.Settings, error) {
	var settings manageable.Settings
	raw, err := p.request(ctx, deviceID, ActionGetSettings, nil)
	if err != nil {
		return settings, err
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return settings, &DeviceError{DeviceID: deviceID, Code: CodeWrongParameters, Message: err.Error()}
	}
	return settings, nil
}

// AskForUpdateName asks a device to rename itself.
func (p *DevicePilot) AskForUpdateName(ctx context.Context, deviceID, name string) error {
	_, err := p.request(ctx, deviceID, ActionUpdateName, map[string]string{"name": name})
	return err
}

// AskForStartRecord asks each device to start recording with the given preset.
func (p *DevicePilot) AskForStartRecord(ctx context.Context, deviceIDs []string, presetID, name string) []Result {
	params := map[string]string{"presetId": presetID}
	if name != "" {
		params["name"] = name
	}
	return p.fanOut(ctx, deviceIDs, ActionStartRecord, params)
}

// AskForStopRecord asks each device to stop recording.
func (p *DevicePilot) AskForStopRecord(ctx context.Context, deviceIDs []string) []Result {
	return p.fanOut(ctx, deviceIDs, ActionStopRecord, nil)
}

// AskForSessionIndex asks each device to tag its running session.
func (p *DevicePilot) AskForSessionIndex(ctx context.Context, deviceIDs []string) []Result {
	return p.fanOut(ctx, deviceIDs, ActionIndexSession, nil)
}

// fanOut sends the same request to every device concurrently. A failing
// device never prevents the others from being asked. Results keep the order
// of deviceIDs.
func (p *DevicePilot) fanOut(ctx context.Context, deviceIDs []string, action string, params any) []Result {
	results := make([]Result, len(deviceIDs))
	var wg sync.WaitGroup
	for i, id := range deviceIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			if _, err := p.request(ctx, id, action, params); err != nil {
				results[i] = Result{Error: &ResultError{Code: codeOf(err), DeviceID: id}}
				return
			}
			results[i] = Result{Value: id}
		}(i, id)
	}
	wg.Wait()
	return results
}

// request publishes one request and waits for its response.
func (p *DevicePilot) request(ctx context.Context, deviceID, action string, params any) (json.RawMessage, error) {
	reqID := uuid.NewString()
	payload, err := json.Marshal(deviceRequest{RequestID: reqID, Action: action, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshalling %s request: %w", action, err)
	}

	ch := make(chan deviceResponse, 1)
	p.mu.Lock()
	p.pending[reqID] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, reqID)
		p.mu.Unlock()
	}()

	if err := p.transport.Publish(p.topics.DeviceRequest(deviceID), payload, p.cfg.QoS, false); err != nil {
		return nil, &DeviceError{DeviceID: deviceID, Code: CodeTransportError, Message: err.Error()}
	}

	timer := time.NewTimer(p.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &DeviceError{DeviceID: deviceID, Code: ErrorCode(resp.Error.Code), Message: resp.Error.Message}
		}
		return resp.Value, nil
	case <-timer.C:
		return nil, &DeviceError{DeviceID: deviceID, Code: CodeTimeout}
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrStopped, ctx.Err())
	}
}

func (p *DevicePilot) handleResponse(topic string, payload []byte) error {
	deviceID, channel, reqID, ok := p.topics.ParseDeviceTopic(topic)
	if !ok || channel != mqtt.ChannelResponse {
		return fmt.Errorf("unexpected response topic %q", topic)
	}

	var resp deviceResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding response from %s: %w", deviceID, err)
	}

	p.mu.Lock()
	ch, waiting := p.pending[reqID]
	p.mu.Unlock()
	if !waiting {
		p.logger.Debug("dropping late device response", "device_id", deviceID, "request_id", reqID)
		return nil
	}

	select {
	case ch <- resp:
	default:
	}
	return nil
}

func (p *DevicePilot) handleEvent(topic string, payload []byte) error {
	deviceID, channel, name, ok := p.topics.ParseDeviceTopic(topic)
	if !ok || channel != mqtt.ChannelEvent {
		return fmt.Errorf("unexpected event topic %q", topic)
	}

	ev, err := parseDeviceEvent(deviceID, DeviceEventKind(name), payload)
	if err != nil {
		p.logger.Warn("dropping malformed device event", "device_id", deviceID, "event", name, "error", err)
		return nil
	}
	p.queue.push(ev)
	return nil
}

var errMalformedEvent = errors.New("pilot: malformed device event")

func parseDeviceEvent(deviceID string, kind DeviceEventKind, payload []byte) (DeviceEvent, error) {
	ev := DeviceEvent{Kind: kind, DeviceID: deviceID}

	var body struct {
		IP      string  `json:"ip"`
		Name    *string `json:"name"`
		Status  string  `json:"status"`
		Code    string  `json:"code"`
		Message string  `json:"message"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			return ev, fmt.Errorf("%w: %w", errMalformedEvent, err)
		}
	}

	switch kind {
	case DeviceAuthenticated:
		ev.IP = body.IP
		if body.Status != "" {
			status, err := manageable.ParseSessionStatus(body.Status)
			if err != nil {
				return ev, fmt.Errorf("%w: %w", errMalformedEvent, err)
			}
			ev.Status = status
		}
	case DeviceNameUpdated:
		if body.Name == nil {
			return ev, fmt.Errorf("%w: name is required", errMalformedEvent)
		}
		ev.Name = *body.Name
	case DeviceSessionStatusUpdated:
		status, err := manageable.ParseSessionStatus(body.Status)
		if err != nil {
			return ev, fmt.Errorf("%w: %w", errMalformedEvent, err)
		}
		ev.Status = status
	case DeviceDisconnected:
	case DeviceErrored:
		ev.Code = body.Code
		ev.Message = body.Message
	default:
		return ev, fmt.Errorf("%w: unknown event %q", errMalformedEvent, kind)
	}
	return ev, nil
}

func codeOf(err error) ErrorCode {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeTransportError
}
