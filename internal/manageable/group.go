package manageable

// Group is a set of devices scheduled together. Its members are the devices
// whose Group field equals the group id; the group holds no member list.
type Group struct {
	Entity
}

// NewGroup returns an empty group.
func NewGroup(id, name string) *Group {
	return &Group{Entity: Entity{
		ID:        id,
		Name:      name,
		Type:      TypeGroup,
		History:   []*Historic{},
		Schedules: []*Schedule{},
	}}
}

// GroupStatus aggregates member statuses into one.
//
// A running session wins, then an error, then an idle member. Members
// mid-transition only decide the status when no other member is connected,
// so a group with one STARTING device and idle others stays startable and
// the start skips the transitioning one. A group with no connected member
// is DISCONNECTED.
func GroupStatus(members []*Device) SessionStatus {
	seen := make(map[SessionStatus]bool, len(members))
	for _, d := range members {
		seen[d.Status] = true
	}
	for _, s := range []SessionStatus{StatusStarted, StatusError, StatusStopped, StatusStarting, StatusStopping} {
		if seen[s] {
			return s
		}
	}
	return StatusDisconnected
}
