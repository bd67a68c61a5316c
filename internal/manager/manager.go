package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/manage-core/internal/cache"
	"github.com/nerrad567/manage-core/internal/manageable"
	"github.com/nerrad567/manage-core/internal/pilot"
	"github.com/nerrad567/manage-core/internal/store"
	"github.com/nerrad567/manage-core/internal/timer"
)

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// OwnedStore persists a manageable and the schedules and history it owns.
type OwnedStore interface {
	UpdateOne(ctx context.Context, id string, fields store.Fields) error
	Remove(ctx context.Context, id string) error
	AddHistoric(ctx context.Context, ownerID string, h *manageable.Historic) error
	RemoveHistoric(ctx context.Context, ownerID, historicID string) error
	RemoveHistory(ctx context.Context, ownerID string) error
	AddSchedule(ctx context.Context, ownerID string, s *manageable.Schedule) error
	RemoveSchedule(ctx context.Context, ownerID, scheduleID string) error
}

// DeviceStore persists devices. *store.DeviceProvider satisfies it.
type DeviceStore interface {
	OwnedStore
	Add(ctx context.Context, d *manageable.Device) error
	Get(ctx context.Context, f store.Filter) ([]*manageable.Device, error)
}

// GroupStore persists groups. *store.GroupProvider satisfies it.
type GroupStore interface {
	OwnedStore
	Add(ctx context.Context, g *manageable.Group) error
	Get(ctx context.Context, f store.Filter) ([]*manageable.Group, error)
}

// DeviceChannel sends requests to devices. *pilot.DevicePilot satisfies it.
type DeviceChannel interface {
	AskForName(ctx context.Context, deviceID string) (string, error)
	AskForSettings(ctx context.Context, deviceID string) (manageable.Settings, error)
	AskForUpdateName(ctx context.Context, deviceID, name string) error
	AskForStartRecord(ctx context.Context, deviceIDs []string, presetID, name string) []pilot.Result
	AskForStopRecord(ctx context.Context, deviceIDs []string) []pilot.Result
	AskForSessionIndex(ctx context.Context, deviceIDs []string) []pilot.Result
}

// Notifier pushes changes to every browser. *pilot.BrowserPilot satisfies it.
type Notifier interface {
	ConnectDevice(d *manageable.Device)
	Remove(m manageable.Manageable)
	Update(m manageable.Manageable, key string, value any)
	AddSchedule(m manageable.Manageable, s *manageable.Schedule)
	RemoveSchedule(m manageable.Manageable, scheduleID string)
	AddHistoric(m manageable.Manageable, h *manageable.Historic)
	RemoveHistoric(m manageable.Manageable, historicID string)
	RemoveHistory(m manageable.Manageable)
	UpdateDeviceState(d *manageable.Device)
	CreateGroup(g *manageable.Group)
	AddDeviceToGroup(d *manageable.Device, g *manageable.Group)
	RemoveDeviceFromGroup(d *manageable.Device, groupID string)
}

// Timer registers schedule jobs. *timer.Service satisfies it.
type Timer interface {
	AddJob(begin time.Time, end *time.Time, e timer.Every, payload any) (timer.JobID, error)
	RemoveJob(id timer.JobID)
}

// Telemetry records device settings as time series. Optional.
type Telemetry interface {
	WriteDeviceSettings(deviceID string, s manageable.Settings)
}

// Metrics observes the manager's activity. Optional.
type Metrics interface {
	BrowserRequest(kind, result string)
	DeviceEvent(kind string)
	TimerFiring(kind, result string)
	CacheSize(t manageable.Type, n int)
}

type noopMetrics struct{}

func (noopMetrics) BrowserRequest(string, string)  {}
func (noopMetrics) DeviceEvent(string)             {}
func (noopMetrics) TimerFiring(string, string)     {}
func (noopMetrics) CacheSize(manageable.Type, int) {}

// Deps holds the manager's collaborators.
type Deps struct {
	Cache    *cache.Cache
	Devices  DeviceStore
	Groups   GroupStore
	Channel  DeviceChannel
	Browsers Notifier
	Timer    Timer

	// Inputs consumed by Run. A nil channel is never selected.
	Events   <-chan pilot.DeviceEvent
	Requests <-chan pilot.Request
	Fired    <-chan timer.Fired

	Telemetry Telemetry
	Metrics   Metrics
	Logger    Logger

	// Location is the scheduler time zone. Schedule dates are moved into it
	// before any weekday or end-of-day arithmetic. Defaults to time.Local,
	// as does the timer.
	Location *time.Location

	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager keeps devices, groups, browsers and storage consistent.
type Manager struct {
	cache     *cache.Cache
	devices   DeviceStore
	groups    GroupStore
	channel   DeviceChannel
	browsers  Notifier
	timer     Timer
	events    <-chan pilot.DeviceEvent
	requests  <-chan pilot.Request
	fired     <-chan timer.Fired
	infos     chan deviceInfo
	telemetry Telemetry
	metrics   Metrics
	logger    Logger
	loc       *time.Location
	now       func() time.Time
}

// New creates a manager. Call Load before Run.
func New(deps Deps) *Manager {
	m := &Manager{
		cache:     deps.Cache,
		devices:   deps.Devices,
		groups:    deps.Groups,
		channel:   deps.Channel,
		browsers:  deps.Browsers,
		timer:     deps.Timer,
		events:    deps.Events,
		requests:  deps.Requests,
		fired:     deps.Fired,
		infos:     make(chan deviceInfo),
		telemetry: deps.Telemetry,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		loc:       deps.Location,
		now:       deps.Now,
	}
	if m.cache == nil {
		m.cache = cache.New()
	}
	if m.metrics == nil {
		m.metrics = noopMetrics{}
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Load fills the cache from storage and re-registers every schedule.
// Schedules found expired are deleted instead.
func (m *Manager) Load(ctx context.Context) error {
	devices, err := m.devices.Get(ctx, store.Filter{})
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	groups, err := m.groups.Get(ctx, store.Filter{})
	if err != nil {
		return fmt.Errorf("loading groups: %w", err)
	}

	for _, g := range groups {
		m.cache.Add(g)
		m.resync(ctx, g)
	}
	for _, d := range devices {
		m.cache.Add(d)
		m.resync(ctx, d)
	}
	m.observeCache()

	m.logger.Info("manager loaded", "devices", len(devices), "groups", len(groups))
	return nil
}

// Run handles device events, browser requests, timer firings and device
// answers fetched in the background until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("manager running")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("manager stopped")
			return nil
		case ev, ok := <-m.events:
			if !ok {
				m.events = nil
				continue
			}
			m.handleDeviceEvent(ctx, ev)
		case req, ok := <-m.requests:
			if !ok {
				m.requests = nil
				continue
			}
			m.handleRequest(ctx, req)
		case f, ok := <-m.fired:
			if !ok {
				m.fired = nil
				continue
			}
			m.handleFired(ctx, f)
		case info := <-m.infos:
			m.applyInfo(ctx, info)
		}
	}
}

// lookup finds a device or group by type and id.
func (m *Manager) lookup(t pilot.Target) (manageable.Manageable, error) {
	switch t.Type {
	case manageable.TypeDevice:
		if d, ok := m.cache.Device(t.ID); ok {
			return d, nil
		}
	case manageable.TypeGroup:
		if g, ok := m.cache.Group(t.ID); ok {
			return g, nil
		}
	default:
		return nil, fmt.Errorf("%w: type %q", ErrValidation, t.Type)
	}
	return nil, fmt.Errorf("%w: %s %s", ErrNotFound, t.Type, t.ID)
}

func (m *Manager) device(id string) (*manageable.Device, error) {
	d, ok := m.cache.Device(id)
	if !ok {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	return d, nil
}

func (m *Manager) group(id string) (*manageable.Group, error) {
	g, ok := m.cache.Group(id)
	if !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, id)
	}
	return g, nil
}

// storeFor returns the store owning t's rows.
func (m *Manager) storeFor(t manageable.Manageable) OwnedStore {
	if t.Base().Type == manageable.TypeGroup {
		return m.groups
	}
	return m.devices
}

// peers returns what a schedule on t is checked against besides t itself:
// a device's group, or a group's members.
func (m *Manager) peers(t manageable.Manageable) []manageable.Manageable {
	switch v := t.(type) {
	case *manageable.Device:
		if g, ok := m.cache.Group(v.Group); ok {
			return []manageable.Manageable{g}
		}
	case *manageable.Group:
		members := m.cache.Members(v.ID)
		out := make([]manageable.Manageable, 0, len(members))
		for _, d := range members {
			out = append(out, d)
		}
		return out
	}
	return nil
}

// targets returns the devices a recording on t drives.
func (m *Manager) targets(t manageable.Manageable) []*manageable.Device {
	switch v := t.(type) {
	case *manageable.Device:
		return []*manageable.Device{v}
	case *manageable.Group:
		return m.cache.Members(v.ID)
	}
	return nil
}

// status is a device's session status, or a group's aggregated one.
func (m *Manager) status(t manageable.Manageable) manageable.SessionStatus {
	switch v := t.(type) {
	case *manageable.Device:
		return v.Status
	case *manageable.Group:
		return manageable.GroupStatus(m.cache.Members(v.ID))
	}
	return manageable.StatusUnknown
}

// record appends a history entry to t: store first, then cache, then
// browsers. A failed write is logged and nothing else happens.
func (m *Manager) record(ctx context.Context, t manageable.Manageable, key string, params map[string]any) {
	base := t.Base()
	h := manageable.NewHistoric(key, params, m.now())
	if err := m.storeFor(t).AddHistoric(ctx, base.ID, h); err != nil {
		m.logger.Error("failed to record history", "owner_id", base.ID, "key", key, "error", err)
		return
	}
	base.AddHistoric(h)
	m.browsers.AddHistoric(t, h)
}

func (m *Manager) observeCache() {
	m.metrics.CacheSize(manageable.TypeDevice, m.cache.Count(manageable.TypeDevice))
	m.metrics.CacheSize(manageable.TypeGroup, m.cache.Count(manageable.TypeGroup))
}

func persistenceError(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
