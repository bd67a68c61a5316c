package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/manage-core/internal/cache"
	"github.com/nerrad567/manage-core/internal/manageable"
	"github.com/nerrad567/manage-core/internal/pilot"
	"github.com/nerrad567/manage-core/internal/store"
	"github.com/nerrad567/manage-core/internal/timer"
)

// fakeOwned records calls and fails the methods named in fail. UpdateOne
// also keeps the fields it was given.
type fakeOwned struct {
	fail   map[string]error
	calls  []string
	fields []store.Fields
}

func (f *fakeOwned) call(method string) error {
	f.calls = append(f.calls, method)
	return f.fail[method]
}

func (f *fakeOwned) count(method string) int {
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeOwned) UpdateOne(_ context.Context, _ string, fields store.Fields) error {
	f.fields = append(f.fields, fields)
	return f.call("UpdateOne")
}

func (f *fakeOwned) Remove(context.Context, string) error {
	return f.call("Remove")
}

func (f *fakeOwned) AddHistoric(context.Context, string, *manageable.Historic) error {
	return f.call("AddHistoric")
}

func (f *fakeOwned) RemoveHistoric(context.Context, string, string) error {
	return f.call("RemoveHistoric")
}

func (f *fakeOwned) RemoveHistory(context.Context, string) error {
	return f.call("RemoveHistory")
}

func (f *fakeOwned) AddSchedule(context.Context, string, *manageable.Schedule) error {
	return f.call("AddSchedule")
}

func (f *fakeOwned) RemoveSchedule(context.Context, string, string) error {
	return f.call("RemoveSchedule")
}

type fakeDevices struct {
	fakeOwned
	loaded []*manageable.Device
}

func (f *fakeDevices) Add(context.Context, *manageable.Device) error {
	return f.call("Add")
}

func (f *fakeDevices) Get(context.Context, store.Filter) ([]*manageable.Device, error) {
	return f.loaded, f.call("Get")
}

type fakeGroups struct {
	fakeOwned
	loaded []*manageable.Group
}

func (f *fakeGroups) Add(context.Context, *manageable.Group) error {
	return f.call("Add")
}

func (f *fakeGroups) Get(context.Context, store.Filter) ([]*manageable.Group, error) {
	return f.loaded, f.call("Get")
}

// fakeChannel answers device requests. Devices listed in failing report
// that error code.
type fakeChannel struct {
	name          string
	settings      manageable.Settings
	settingsErr   error
	updateNameErr error
	failing       map[string]pilot.ErrorCode

	asked   []string
	started [][]string
	stopped [][]string
	indexed [][]string
	presets []string
}

func (f *fakeChannel) AskForName(_ context.Context, id string) (string, error) {
	f.asked = append(f.asked, "name:"+id)
	return f.name, nil
}

func (f *fakeChannel) AskForSettings(_ context.Context, id string) (manageable.Settings, error) {
	f.asked = append(f.asked, "settings:"+id)
	return f.settings, f.settingsErr
}

func (f *fakeChannel) AskForUpdateName(_ context.Context, id, _ string) error {
	f.asked = append(f.asked, "updateName:"+id)
	return f.updateNameErr
}

func (f *fakeChannel) AskForStartRecord(_ context.Context, ids []string, presetID, _ string) []pilot.Result {
	f.started = append(f.started, ids)
	f.presets = append(f.presets, presetID)
	return f.results(ids)
}

func (f *fakeChannel) AskForStopRecord(_ context.Context, ids []string) []pilot.Result {
	f.stopped = append(f.stopped, ids)
	return f.results(ids)
}

func (f *fakeChannel) AskForSessionIndex(_ context.Context, ids []string) []pilot.Result {
	f.indexed = append(f.indexed, ids)
	return f.results(ids)
}

func (f *fakeChannel) results(ids []string) []pilot.Result {
	out := make([]pilot.Result, len(ids))
	for i, id := range ids {
		if code, bad := f.failing[id]; bad {
			out[i] = pilot.Result{Error: &pilot.ResultError{Code: code, DeviceID: id}}
			continue
		}
		out[i] = pilot.Result{Value: id}
	}
	return out
}

// recordingNotifier keeps every notification as "name target".
type recordingNotifier struct {
	events []string
}

func (r *recordingNotifier) add(name string, m manageable.Manageable, extra ...string) {
	e := name + " " + m.Base().ID
	for _, x := range extra {
		e += " " + x
	}
	r.events = append(r.events, e)
}

func (r *recordingNotifier) has(event string) bool {
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func (r *recordingNotifier) ConnectDevice(d *manageable.Device) {
	r.add("connectDevice", d)
}

func (r *recordingNotifier) Remove(m manageable.Manageable) {
	r.add("remove", m)
}

func (r *recordingNotifier) Update(m manageable.Manageable, key string, value any) {
	r.add("update", m, key, fmt.Sprint(value))
}

func (r *recordingNotifier) AddSchedule(m manageable.Manageable, s *manageable.Schedule) {
	r.add("addSchedule", m, s.ID)
}

func (r *recordingNotifier) RemoveSchedule(m manageable.Manageable, id string) {
	r.add("removeSchedule", m, id)
}

func (r *recordingNotifier) AddHistoric(m manageable.Manageable, h *manageable.Historic) {
	r.add("addHistoric", m, h.Message.Key)
}

func (r *recordingNotifier) RemoveHistoric(m manageable.Manageable, id string) {
	r.add("removeHistoric", m, id)
}

func (r *recordingNotifier) RemoveHistory(m manageable.Manageable) {
	r.add("removeHistory", m)
}

func (r *recordingNotifier) UpdateDeviceState(d *manageable.Device) {
	r.add("updateDeviceState", d)
}

func (r *recordingNotifier) CreateGroup(g *manageable.Group) {
	r.add("createGroup", g)
}

func (r *recordingNotifier) AddDeviceToGroup(d *manageable.Device, g *manageable.Group) {
	r.add("addDeviceToGroup", d, g.ID)
}

func (r *recordingNotifier) RemoveDeviceFromGroup(d *manageable.Device, groupID string) {
	r.add("removeDeviceFromGroup", d, groupID)
}

// manualTimer registers jobs without running them. Tests fire them.
type manualTimer struct {
	now  func() time.Time
	next timer.JobID
	jobs map[timer.JobID]jobRef
}

func (t *manualTimer) AddJob(begin time.Time, end *time.Time, e timer.Every, payload any) (timer.JobID, error) {
	if timer.NextOccurrence(begin, end, e, t.now()).IsZero() {
		return 0, timer.ErrNoOccurrence
	}
	t.next++
	t.jobs[t.next] = payload.(jobRef)
	return t.next, nil
}

func (t *manualTimer) RemoveJob(id timer.JobID) {
	delete(t.jobs, id)
}

func (t *manualTimer) fired(id timer.JobID) timer.Fired {
	return timer.Fired{ID: id, Payload: t.jobs[id], At: t.now()}
}

type harness struct {
	m        *Manager
	cache    *cache.Cache
	devices  *fakeDevices
	groups   *fakeGroups
	channel  *fakeChannel
	notifier *recordingNotifier
	timer    *manualTimer
	now      time.Time
}

var baseTime = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cache:    cache.New(),
		devices:  &fakeDevices{},
		groups:   &fakeGroups{},
		channel:  &fakeChannel{},
		notifier: &recordingNotifier{},
		now:      baseTime,
	}
	now := func() time.Time { return h.now }
	h.timer = &manualTimer{now: now, jobs: make(map[timer.JobID]jobRef)}
	h.m = New(Deps{
		Cache:    h.cache,
		Devices:  h.devices,
		Groups:   h.groups,
		Channel:  h.channel,
		Browsers: h.notifier,
		Timer:    h.timer,
		Location: time.UTC,
		Now:      now,
	})
	return h
}

func (h *harness) device(id, group string, status manageable.SessionStatus) *manageable.Device {
	d := manageable.NewDevice(id)
	d.Name = id
	d.Group = group
	d.Status = status
	h.cache.Add(d)
	return d
}

func (h *harness) group(id string) *manageable.Group {
	g := manageable.NewGroup(id, id)
	h.cache.Add(g)
	return g
}

// settle applies the answers fetched in the background after an
// authentication, as Run would.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	select {
	case info := <-h.m.infos:
		h.m.applyInfo(context.Background(), info)
	case <-time.After(time.Second):
		t.Fatal("no device answers posted")
	}
}

func (h *harness) request(kind pilot.RequestKind, payload any) pilot.Response {
	var resp pilot.Response
	h.m.handleRequest(context.Background(), pilot.NewRequest(kind, payload, func(r pilot.Response) { resp = r }))
	return resp
}

func code(resp pilot.Response) pilot.ErrorCode {
	if resp.Error == nil {
		return ""
	}
	return resp.Error.Code
}
