package manager

import (
	"context"
	"fmt"

	"github.com/nerrad567/manage-core/internal/manageable"
	"github.com/nerrad567/manage-core/internal/store"
)

func (m *Manager) createGroup(ctx context.Context, name string) (*manageable.Group, error) {
	g := manageable.NewGroup(manageable.GenerateID(), name)
	if err := m.groups.Add(ctx, g); err != nil {
		return nil, persistenceError(err)
	}
	m.cache.Add(g)
	m.observeCache()
	m.browsers.CreateGroup(g)
	m.logger.Info("group created", "group_id", g.ID, "name", name)
	return g, nil
}

// addDeviceToGroup moves a device into a group. The move is refused when a
// schedule of the device overlaps one of the group or of its other members.
// The group the device leaves is dissolved when it keeps fewer than two
// members.
func (m *Manager) addDeviceToGroup(ctx context.Context, deviceID, groupID string) error {
	d, err := m.device(deviceID)
	if err != nil {
		return err
	}
	g, err := m.group(groupID)
	if err != nil {
		return err
	}
	if d.Group == g.ID {
		return nil
	}
	if err := m.checkJoin(d, g); err != nil {
		return err
	}

	if err := m.devices.UpdateOne(ctx, d.ID, store.Fields{"group": g.ID}); err != nil {
		return persistenceError(err)
	}
	old := d.Group
	d.Group = g.ID
	if old != "" {
		m.browsers.RemoveDeviceFromGroup(d, old)
	}
	m.browsers.AddDeviceToGroup(d, g)
	m.record(ctx, d, manageable.HistoryGroupJoined, map[string]any{"group": g.ID})

	if old != "" {
		m.dissolveIfSparse(ctx, old)
	}
	return nil
}

func (m *Manager) checkJoin(d *manageable.Device, g *manageable.Group) error {
	others := []manageable.Manageable{g}
	for _, member := range m.cache.Members(g.ID) {
		if member.ID != d.ID {
			others = append(others, member)
		}
	}
	for _, s := range d.Schedules {
		for _, other := range others {
			for _, existing := range other.Base().Schedules {
				if manageable.Conflicts(s, existing) {
					return fmt.Errorf("%w: schedule %s of %s overlaps %s of %s",
						ErrConflict, s.ID, d.ID, existing.ID, other.Base().ID)
				}
			}
		}
	}
	return nil
}

func (m *Manager) removeDeviceFromGroup(ctx context.Context, deviceID string) error {
	d, err := m.device(deviceID)
	if err != nil {
		return err
	}
	if d.Group == "" {
		return fmt.Errorf("%w: device %s has no group", ErrNotFound, d.ID)
	}
	old := d.Group
	if err := m.detach(ctx, d); err != nil {
		return err
	}
	m.dissolveIfSparse(ctx, old)
	return nil
}

// detach clears a device's group.
func (m *Manager) detach(ctx context.Context, d *manageable.Device) error {
	old := d.Group
	if err := m.devices.UpdateOne(ctx, d.ID, store.Fields{"group": ""}); err != nil {
		return persistenceError(err)
	}
	d.Group = ""
	m.browsers.RemoveDeviceFromGroup(d, old)
	m.record(ctx, d, manageable.HistoryGroupLeft, map[string]any{"group": old})
	return nil
}

// dissolveIfSparse removes a group left with fewer than two members.
func (m *Manager) dissolveIfSparse(ctx context.Context, groupID string) {
	g, ok := m.cache.Group(groupID)
	if !ok || len(m.cache.Members(groupID)) > 1 {
		return
	}
	if err := m.removeGroup(ctx, g); err != nil {
		m.logger.Error("failed to dissolve group", "group_id", groupID, "error", err)
		return
	}
	m.logger.Info("group dissolved", "group_id", groupID)
}

// removeGroup deletes the group with its schedules and history, then
// detaches its members. When the delete fails nothing has changed. A member
// whose detach fails keeps the stale group id, which no longer resolves.
func (m *Manager) removeGroup(ctx context.Context, g *manageable.Group) error {
	m.deregisterAll(g)
	if err := m.groups.Remove(ctx, g.ID); err != nil {
		m.rearm(g)
		return persistenceError(err)
	}
	m.cache.Remove(g)
	m.observeCache()

	for _, d := range m.cache.Members(g.ID) {
		if err := m.detach(ctx, d); err != nil {
			m.logger.Error("failed to detach member of removed group", "group_id", g.ID, "device_id", d.ID, "error", err)
		}
	}
	m.browsers.Remove(g)
	m.logger.Info("group removed", "group_id", g.ID)
	return nil
}
