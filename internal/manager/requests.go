package manager

import (
	"context"
	"fmt"

	"github.com/nerrad567/manage-core/internal/manageable"
	"github.com/nerrad567/manage-core/internal/pilot"
	"github.com/nerrad567/manage-core/internal/store"
)

func (m *Manager) handleRequest(ctx context.Context, req pilot.Request) {
	data, err := m.serve(ctx, req)
	if err != nil {
		code := codeFor(err)
		m.logger.Warn("browser request failed", "kind", req.Kind, "client_id", req.ClientID, "code", code, "error", err)
		m.metrics.BrowserRequest(string(req.Kind), string(code))
		req.Reply(pilot.Fail(code, err.Error()))
		return
	}
	m.metrics.BrowserRequest(string(req.Kind), "ok")
	req.Reply(pilot.OK(data))
}

//nolint:gocyclo // one case per request kind
func (m *Manager) serve(ctx context.Context, req pilot.Request) (any, error) {
	switch p := req.Payload.(type) {
	case nil:
		switch req.Kind {
		case pilot.RequestGetDevices:
			return m.cache.Devices(), nil
		case pilot.RequestGetGroups:
			return m.cache.Groups(), nil
		}
	case pilot.UpdateNameRequest:
		return nil, m.updateName(ctx, p)
	case pilot.RemoveRequest:
		return nil, m.remove(ctx, p.Target)
	case pilot.AddScheduleRequest:
		return m.addSchedule(ctx, p)
	case pilot.RemoveScheduleRequest:
		return nil, m.removeSchedule(ctx, p)
	case pilot.RemoveHistoricRequest:
		return nil, m.removeHistoric(ctx, p)
	case pilot.RemoveHistoryRequest:
		return nil, m.removeHistory(ctx, p.Target)
	case pilot.SessionRequest:
		switch req.Kind {
		case pilot.RequestStartSession:
			return m.session(ctx, p.IDs, manageable.HistoryStartRecord, manageable.HistoryStartRecordError,
				func(ids []string) []pilot.Result { return m.channel.AskForStartRecord(ctx, ids, p.PresetID, p.Name) }), nil
		case pilot.RequestStopSession:
			return m.session(ctx, p.IDs, manageable.HistoryStopRecord, manageable.HistoryStopRecordError,
				func(ids []string) []pilot.Result { return m.channel.AskForStopRecord(ctx, ids) }), nil
		case pilot.RequestIndexSession:
			return m.session(ctx, p.IDs, manageable.HistoryIndexSession, manageable.HistoryIndexSessionError,
				func(ids []string) []pilot.Result { return m.channel.AskForSessionIndex(ctx, ids) }), nil
		}
	case pilot.UpdateDeviceStateRequest:
		return nil, m.updateDeviceState(ctx, p)
	case pilot.CreateGroupRequest:
		return m.createGroup(ctx, p.Name)
	case pilot.AddDeviceToGroupRequest:
		return nil, m.addDeviceToGroup(ctx, p.DeviceID, p.GroupID)
	case pilot.RemoveDeviceFromGroupRequest:
		return nil, m.removeDeviceFromGroup(ctx, p.ID)
	}
	return nil, fmt.Errorf("%w: unexpected %s payload %T", ErrValidation, req.Kind, req.Payload)
}

// updateName renames a device or group. A device is asked to rename itself
// first. The same name is a no-op. A failed write is kept in the history.
func (m *Manager) updateName(ctx context.Context, req pilot.UpdateNameRequest) error {
	t, err := m.lookup(req.Target)
	if err != nil {
		return err
	}
	if d, ok := t.(*manageable.Device); ok && d.Name != req.Name {
		if err := m.channel.AskForUpdateName(ctx, d.ID, req.Name); err != nil {
			m.record(ctx, d, manageable.HistoryNameUpdateError, map[string]any{"name": req.Name, "error": err.Error()})
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}
	return m.rename(ctx, t, req.Name)
}

// rename stores and announces a new name.
func (m *Manager) rename(ctx context.Context, t manageable.Manageable, name string) error {
	base := t.Base()
	if base.Name == name {
		return nil
	}
	if err := m.storeFor(t).UpdateOne(ctx, base.ID, store.Fields{"name": name}); err != nil {
		m.record(ctx, t, manageable.HistoryNameUpdateError, map[string]any{"name": name, "error": err.Error()})
		return persistenceError(err)
	}
	old := base.Name
	base.Name = name
	m.browsers.Update(t, "name", name)
	m.record(ctx, t, manageable.HistoryNameUpdated, map[string]any{"from": old, "to": name})
	return nil
}

func (m *Manager) remove(ctx context.Context, target pilot.Target) error {
	t, err := m.lookup(target)
	if err != nil {
		return err
	}
	switch v := t.(type) {
	case *manageable.Device:
		return m.removeDevice(ctx, v)
	case *manageable.Group:
		return m.removeGroup(ctx, v)
	}
	return nil
}

// removeDevice deletes a device with its schedules and history. Its group is
// dissolved when that leaves it with fewer than two members.
func (m *Manager) removeDevice(ctx context.Context, d *manageable.Device) error {
	m.deregisterAll(d)
	if err := m.devices.Remove(ctx, d.ID); err != nil {
		m.rearm(d)
		return persistenceError(err)
	}
	m.cache.Remove(d)
	m.observeCache()
	m.browsers.Remove(d)
	m.logger.Info("device removed", "device_id", d.ID)

	if d.Group != "" {
		m.dissolveIfSparse(ctx, d.Group)
	}
	return nil
}

// rearm registers again the jobs of every schedule of t.
func (m *Manager) rearm(t manageable.Manageable) {
	for _, s := range t.Base().Schedules {
		if err := m.register(t, s); err != nil {
			m.logger.Warn("failed to re-register schedule", "owner_id", t.Base().ID, "schedule_id", s.ID, "error", err)
		}
	}
}

func (m *Manager) removeHistoric(ctx context.Context, req pilot.RemoveHistoricRequest) error {
	t, err := m.lookup(req.Target)
	if err != nil {
		return err
	}
	base := t.Base()
	if base.Historic(req.HistoricID) == nil {
		return fmt.Errorf("%w: historic %s", ErrNotFound, req.HistoricID)
	}
	if err := m.storeFor(t).RemoveHistoric(ctx, base.ID, req.HistoricID); err != nil {
		return persistenceError(err)
	}
	base.RemoveHistoric(req.HistoricID)
	m.browsers.RemoveHistoric(t, req.HistoricID)
	return nil
}

func (m *Manager) removeHistory(ctx context.Context, target pilot.Target) error {
	t, err := m.lookup(target)
	if err != nil {
		return err
	}
	base := t.Base()
	if err := m.storeFor(t).RemoveHistory(ctx, base.ID); err != nil {
		return persistenceError(err)
	}
	base.ClearHistory()
	m.browsers.RemoveHistory(t)
	return nil
}

// session resolves ids to devices (a group id stands for its members not in
// transition), sends the request and records the outcome per device. Unknown
// ids are reported as NOT_FOUND results.
func (m *Manager) session(ctx context.Context, ids []string, okKey, errKey string, ask func([]string) []pilot.Result) []pilot.Result {
	var (
		deviceIDs []string
		missing   []pilot.Result
		seen      = make(map[string]struct{})
	)
	add := func(id string) {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			deviceIDs = append(deviceIDs, id)
		}
	}
	for _, id := range ids {
		switch t, ok := m.cache.Get(id); {
		case !ok:
			missing = append(missing, pilot.Result{Error: &pilot.ResultError{Code: pilot.CodeNotFound, DeviceID: id}})
		case t.Base().Type == manageable.TypeGroup:
			for _, d := range m.cache.Members(id) {
				if !d.Status.Transitioning() {
					add(d.ID)
				}
			}
		default:
			add(id)
		}
	}

	var results []pilot.Result
	if len(deviceIDs) > 0 {
		results = ask(deviceIDs)
		m.recordResults(ctx, results, okKey, errKey, nil)
	}
	return append(results, missing...)
}

// recordResults writes one history entry per device result, on the device
// and on its group.
func (m *Manager) recordResults(ctx context.Context, results []pilot.Result, okKey, errKey string, params map[string]any) {
	for _, r := range results {
		id, key := r.Value, okKey
		entry := make(map[string]any, len(params)+2)
		for k, v := range params {
			entry[k] = v
		}
		if r.Error != nil {
			id, key = r.Error.DeviceID, errKey
			entry["code"] = string(r.Error.Code)
			m.logger.Warn("device request failed", "device_id", id, "key", key, "code", r.Error.Code)
		}

		d, ok := m.cache.Device(id)
		if !ok {
			m.logger.Error("dropping result of unknown device", "device_id", id)
			continue
		}
		m.record(ctx, d, key, entry)
		if g, ok := m.cache.Group(d.Group); ok {
			groupEntry := map[string]any{"device": d.ID}
			for k, v := range entry {
				groupEntry[k] = v
			}
			m.record(ctx, g, key, groupEntry)
		}
	}
}

func (m *Manager) updateDeviceState(ctx context.Context, req pilot.UpdateDeviceStateRequest) error {
	d, err := m.device(req.ID)
	if err != nil {
		return err
	}
	if d.State == req.State {
		return nil
	}
	if err := m.devices.UpdateOne(ctx, d.ID, store.Fields{"state": string(req.State)}); err != nil {
		return persistenceError(err)
	}
	d.State = req.State
	m.browsers.UpdateDeviceState(d)
	return nil
}
