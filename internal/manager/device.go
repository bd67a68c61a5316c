package manager

import (
	"context"

	"github.com/nerrad567/manage-core/internal/manageable"
	"github.com/nerrad567/manage-core/internal/pilot"
	"github.com/nerrad567/manage-core/internal/store"
)

func (m *Manager) handleDeviceEvent(ctx context.Context, ev pilot.DeviceEvent) {
	m.metrics.DeviceEvent(string(ev.Kind))

	if ev.Kind == pilot.DeviceAuthenticated {
		m.authenticated(ctx, ev)
		return
	}

	d, ok := m.cache.Device(ev.DeviceID)
	if !ok {
		m.logger.Warn("dropping event of unknown device", "device_id", ev.DeviceID, "event", ev.Kind)
		return
	}

	switch ev.Kind {
	case pilot.DeviceNameUpdated:
		if err := m.rename(ctx, d, ev.Name); err != nil {
			m.logger.Error("failed to apply device name", "device_id", d.ID, "error", err)
		}
	case pilot.DeviceSessionStatusUpdated:
		m.setStatus(ctx, d, ev.Status)
	case pilot.DeviceDisconnected:
		m.setStatus(ctx, d, manageable.StatusDisconnected)
	case pilot.DeviceErrored:
		m.logger.Warn("device reported an error", "device_id", d.ID, "code", ev.Code, "message", ev.Message)
		m.record(ctx, d, manageable.HistoryDeviceError, map[string]any{"code": ev.Code, "message": ev.Message})
	}
}

// authenticated registers a device on first contact and refreshes its
// address and status. Settings and name are fetched in the background and
// the device is announced once they arrive. A known id is never re-created.
func (m *Manager) authenticated(ctx context.Context, ev pilot.DeviceEvent) {
	d, known := m.cache.Device(ev.DeviceID)
	if !known {
		d = manageable.NewDevice(ev.DeviceID)
		d.IP = ev.IP
		d.URL = manageable.DeviceURL(ev.IP)
		if err := m.devices.Add(ctx, d); err != nil {
			m.logger.Error("failed to register device", "device_id", ev.DeviceID, "error", err)
			return
		}
		m.cache.Add(d)
		m.observeCache()
		m.logger.Info("device registered", "device_id", d.ID, "ip", d.IP)
	} else if ev.IP != "" && ev.IP != d.IP {
		url := manageable.DeviceURL(ev.IP)
		if err := m.devices.UpdateOne(ctx, d.ID, store.Fields{"ip": ev.IP, "url": url}); err != nil {
			m.logger.Error("failed to store device address", "device_id", d.ID, "error", err)
		} else {
			d.IP, d.URL = ev.IP, url
		}
	}

	status := ev.Status
	if status == "" {
		status = manageable.StatusStopped
	}
	if status != manageable.StatusUnknown {
		d.Status = status
	}

	m.fetchInfo(ctx, d.ID, d.Name == "")
}

// deviceInfo holds a device's answers to the settings and name requests
// sent on authentication.
type deviceInfo struct {
	deviceID    string
	settings    manageable.Settings
	settingsErr error
	askedName   bool
	name        string
	nameErr     error
}

// fetchInfo asks the device for its settings, and its name when askName is
// set, without holding up the loop. The answers come back through m.infos.
func (m *Manager) fetchInfo(ctx context.Context, deviceID string, askName bool) {
	go func() {
		info := deviceInfo{deviceID: deviceID, askedName: askName}
		info.settings, info.settingsErr = m.channel.AskForSettings(ctx, deviceID)
		if askName {
			info.name, info.nameErr = m.channel.AskForName(ctx, deviceID)
		}
		select {
		case m.infos <- info:
		case <-ctx.Done():
		}
	}()
}

// applyInfo stores what the device answered, then announces it. A device
// removed while the requests were in flight is skipped.
func (m *Manager) applyInfo(ctx context.Context, info deviceInfo) {
	d, ok := m.cache.Device(info.deviceID)
	if !ok {
		m.logger.Debug("dropping answers of removed device", "device_id", info.deviceID)
		return
	}

	if info.settingsErr != nil {
		m.logger.Warn("failed to fetch device settings", "device_id", d.ID, "error", info.settingsErr)
	} else {
		m.applySettings(ctx, d, info.settings)
	}

	switch {
	case !info.askedName || d.Name != "":
	case info.nameErr != nil:
		m.logger.Warn("failed to fetch device name", "device_id", d.ID, "error", info.nameErr)
	case info.name != "":
		if err := m.devices.UpdateOne(ctx, d.ID, store.Fields{"name": info.name}); err != nil {
			m.logger.Error("failed to store device name", "device_id", d.ID, "error", err)
		} else {
			d.Name = info.name
		}
	}

	m.browsers.ConnectDevice(d)
	m.notifyGroupStatus(d)
}

// applySettings writes the parts of s the device reported. Missing parts
// keep their stored value.
func (m *Manager) applySettings(ctx context.Context, d *manageable.Device, s manageable.Settings) {
	fields := store.Fields{}
	if s.Storage != nil {
		fields["storage"] = s.Storage
	}
	if s.Inputs != nil {
		fields["inputs"] = s.Inputs
	}
	if s.Presets != nil {
		fields["presets"] = s.Presets
	}
	if len(fields) == 0 {
		return
	}

	if err := m.devices.UpdateOne(ctx, d.ID, fields); err != nil {
		m.logger.Error("failed to store device settings", "device_id", d.ID, "error", err)
		return
	}
	d.ApplySettings(s)
	if m.telemetry != nil {
		m.telemetry.WriteDeviceSettings(d.ID, s)
	}
}

// setStatus applies a session status report. UNKNOWN is ignored. History
// is recorded only when entering ERROR, STARTED or STOPPED from another
// connected status.
func (m *Manager) setStatus(ctx context.Context, d *manageable.Device, status manageable.SessionStatus) {
	if status == manageable.StatusUnknown {
		return
	}
	prev := d.Status
	if prev == status {
		return
	}

	d.Status = status
	m.browsers.Update(d, "status", status)
	m.notifyGroupStatus(d)

	if prev == manageable.StatusDisconnected {
		return
	}
	switch status {
	case manageable.StatusError, manageable.StatusStarted, manageable.StatusStopped:
		m.record(ctx, d, manageable.HistoryStatusChanged, map[string]any{"from": string(prev), "to": string(status)})
	}
}

// notifyGroupStatus announces the aggregated status of d's group.
func (m *Manager) notifyGroupStatus(d *manageable.Device) {
	g, ok := m.cache.Group(d.Group)
	if !ok {
		return
	}
	m.browsers.Update(g, "status", manageable.GroupStatus(m.cache.Members(g.ID)))
}
