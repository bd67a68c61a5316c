package manageable

import (
	"errors"
	"testing"
	"time"
)

func TestDeviceURL(t *testing.T) {
	tests := []struct {
		ip   string
		want string
	}{
		{"", ""},
		{"192.168.1.20", "http://192.168.1.20"},
		{"::ffff:192.168.1.20", "http://192.168.1.20"},
		{"fe80::1", "http://[fe80::1]"},
		{"fe80::1%eth0", "http://[fe80::1]"},
		{"recorder.local", "http://recorder.local"},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := DeviceURL(tt.ip); got != tt.want {
				t.Errorf("DeviceURL(%q) = %q, want %q", tt.ip, got, tt.want)
			}
		})
	}
}

func TestGroupStatus(t *testing.T) {
	devices := func(statuses ...SessionStatus) []*Device {
		out := make([]*Device, 0, len(statuses))
		for i, s := range statuses {
			d := NewDevice(string(rune('a' + i)))
			d.Status = s
			out = append(out, d)
		}
		return out
	}

	tests := []struct {
		name    string
		members []*Device
		want    SessionStatus
	}{
		{"empty", nil, StatusDisconnected},
		{"all disconnected", devices(StatusDisconnected, StatusDisconnected), StatusDisconnected},
		{"stopped", devices(StatusStopped, StatusDisconnected), StatusStopped},
		{"error beats stopped", devices(StatusStopped, StatusError), StatusError},
		{"started beats error", devices(StatusError, StatusStarted), StatusStarted},
		{"started beats starting", devices(StatusStarted, StatusStarting), StatusStarted},
		{"idle member beats transition", devices(StatusStarting, StatusStopped), StatusStopped},
		{"error beats transition", devices(StatusStopping, StatusError), StatusError},
		{"only transitioning", devices(StatusStopping, StatusStarting, StatusDisconnected), StatusStarting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GroupStatus(tt.members); got != tt.want {
				t.Errorf("GroupStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSessionStatusPredicates(t *testing.T) {
	for _, s := range []SessionStatus{StatusStopped, StatusError} {
		if !s.Startable() {
			t.Errorf("%s.Startable() = false", s)
		}
	}
	for _, s := range []SessionStatus{StatusStarted, StatusStarting, StatusStopping, StatusDisconnected} {
		if s.Startable() {
			t.Errorf("%s.Startable() = true", s)
		}
	}
	if !StatusStarting.Transitioning() || !StatusStopping.Transitioning() || StatusStarted.Transitioning() {
		t.Error("Transitioning() mismatch")
	}
}

func TestParse(t *testing.T) {
	if _, err := ParseType("DEVICE"); err != nil {
		t.Errorf("ParseType(DEVICE) error = %v", err)
	}
	if _, err := ParseType("device"); !errors.Is(err, ErrInvalidType) {
		t.Errorf("ParseType(device) error = %v, want ErrInvalidType", err)
	}
	if _, err := ParseDeviceState("ACCEPTED"); err != nil {
		t.Errorf("ParseDeviceState(ACCEPTED) error = %v", err)
	}
	if _, err := ParseDeviceState("BANNED"); !errors.Is(err, ErrInvalidDeviceState) {
		t.Errorf("ParseDeviceState(BANNED) error = %v", err)
	}
	if _, err := ParseSessionStatus("PAUSED"); !errors.Is(err, ErrInvalidSessionStatus) {
		t.Errorf("ParseSessionStatus(PAUSED) error = %v", err)
	}
}

func TestEntitySchedulesAndHistory(t *testing.T) {
	d := NewDevice("d1")
	s := &Schedule{ID: "s1", BeginDate: time.Now(), Duration: time.Hour}

	d.AddSchedule(s)
	d.AddSchedule(&Schedule{ID: "s1", BeginDate: time.Now(), Duration: 2 * time.Hour})
	if len(d.Schedules) != 1 {
		t.Fatalf("len(Schedules) = %d, want 1", len(d.Schedules))
	}
	if d.Schedule("s1").Duration != 2*time.Hour {
		t.Error("AddSchedule() did not replace schedule with same id")
	}
	if !d.RemoveSchedule("s1") || d.RemoveSchedule("s1") {
		t.Error("RemoveSchedule() should succeed once")
	}

	h1 := NewHistoric(HistoryNameUpdated, map[string]any{"name": "a"}, time.Now())
	h2 := NewHistoric(HistoryNameUpdated, map[string]any{"name": "b"}, time.Now())
	d.AddHistoric(h1)
	d.AddHistoric(h2)
	if h1.ID == h2.ID {
		t.Fatal("historic ids collide")
	}
	if !d.RemoveHistoric(h1.ID) {
		t.Error("RemoveHistoric() = false")
	}
	if d.Historic(h2.ID) != h2 {
		t.Error("Historic() did not return remaining entry")
	}
	d.ClearHistory()
	if len(d.History) != 0 {
		t.Errorf("len(History) = %d after ClearHistory", len(d.History))
	}
}

func TestProperty(t *testing.T) {
	d := NewDevice("d1")
	d.Group = "g1"
	var m Manageable = d

	if v, ok := m.Property("group"); !ok || v != "g1" {
		t.Errorf("Property(group) = %q, %v", v, ok)
	}
	if v, ok := m.Property("type"); !ok || v != string(TypeDevice) {
		t.Errorf("Property(type) = %q, %v", v, ok)
	}
	if _, ok := m.Property("unknown"); ok {
		t.Error("Property(unknown) ok = true")
	}

	var g Manageable = NewGroup("g1", "room")
	if _, ok := g.Property("group"); ok {
		t.Error("group exposes a group property")
	}
	if g.Base() != &g.(*Group).Entity {
		t.Error("Base() does not return embedded entity")
	}
}
