package pilot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/manage-core/internal/manageable"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func TestDecoders(t *testing.T) {
	begin := testNow.Add(24 * time.Hour).Format(time.RFC3339)
	past := testNow.Add(-time.Hour).Format(time.RFC3339)

	tests := []struct {
		name    string
		kind    RequestKind
		payload string
		wantErr bool
	}{
		{"getDevices without payload", RequestGetDevices, ``, false},
		{"updateName", RequestUpdateName, `{"id":"d1","type":"DEVICE","name":"Amphi"}`, false},
		{"updateName missing name", RequestUpdateName, `{"id":"d1","type":"DEVICE"}`, true},
		{"updateName bad type", RequestUpdateName, `{"id":"d1","type":"ROOM","name":"x"}`, true},
		{"remove missing id", RequestRemove, `{"type":"GROUP"}`, true},
		{"remove no payload", RequestRemove, ``, true},
		{"addSchedule", RequestAddSchedule,
			`{"id":"d1","type":"DEVICE","schedule":{"beginDate":"` + begin + `","duration":3600000,"preset":"p1"}}`, false},
		{"addSchedule in the past", RequestAddSchedule,
			`{"id":"d1","type":"DEVICE","schedule":{"beginDate":"` + past + `","duration":3600000,"preset":"p1"}}`, true},
		{"addSchedule too long", RequestAddSchedule,
			`{"id":"d1","type":"DEVICE","schedule":{"beginDate":"` + begin + `","duration":86400000,"preset":"p1"}}`, true},
		{"addSchedule no preset", RequestAddSchedule,
			`{"id":"d1","type":"DEVICE","schedule":{"beginDate":"` + begin + `","duration":60000}}`, true},
		{"addSchedule bad recurrence", RequestAddSchedule,
			`{"id":"d1","type":"DEVICE","schedule":{"beginDate":"` + begin + `","duration":60000,"preset":"p1","recurrent":"monthly"}}`, true},
		{"addSchedule missing schedule", RequestAddSchedule, `{"id":"d1","type":"DEVICE"}`, true},
		{"removeSchedule", RequestRemoveSchedule, `{"id":"g1","type":"GROUP","scheduleId":"s1"}`, false},
		{"removeSchedule missing id", RequestRemoveSchedule, `{"id":"g1","type":"GROUP"}`, true},
		{"removeHistoric", RequestRemoveHistoric, `{"id":"d1","type":"DEVICE","historicId":"h1"}`, false},
		{"removeHistory", RequestRemoveHistory, `{"id":"d1","type":"DEVICE"}`, false},
		{"startSession", RequestStartSession, `{"ids":["d1","d2"],"presetId":"p1"}`, false},
		{"startSession no preset", RequestStartSession, `{"ids":["d1"]}`, true},
		{"startSession empty ids", RequestStartSession, `{"ids":[],"presetId":"p1"}`, true},
		{"stopSession blank id", RequestStopSession, `{"ids":[""]}`, true},
		{"indexSession", RequestIndexSession, `{"ids":["d1"]}`, false},
		{"ids wrong type", RequestStopSession, `{"ids":"d1"}`, true},
		{"updateDeviceState", RequestUpdateDeviceState, `{"id":"d1","state":"ACCEPTED"}`, false},
		{"updateDeviceState bad state", RequestUpdateDeviceState, `{"id":"d1","state":"MAYBE"}`, true},
		{"createGroup without name", RequestCreateGroup, ``, false},
		{"createGroup with name", RequestCreateGroup, `{"name":"Hall"}`, false},
		{"addDeviceToGroup", RequestAddDeviceToGroup, `{"deviceId":"d1","groupId":"g1"}`, false},
		{"addDeviceToGroup missing group", RequestAddDeviceToGroup, `{"deviceId":"d1"}`, true},
		{"removeDeviceFromGroup", RequestRemoveDeviceFromGroup, `{"id":"d1"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decoders[tt.kind](json.RawMessage(tt.payload), testNow)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decode error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error %v does not wrap ErrInvalidRequest", err)
			}
		})
	}
}

func TestDecoders_TypedPayload(t *testing.T) {
	v, err := decoders[RequestStartSession](json.RawMessage(`{"ids":["d1"],"presetId":"p1","name":"Lecture"}`), testNow)
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	req, ok := v.(SessionRequest)
	if !ok {
		t.Fatalf("payload type = %T, want SessionRequest", v)
	}
	if req.PresetID != "p1" || req.Name != "Lecture" || len(req.IDs) != 1 {
		t.Errorf("payload = %+v", req)
	}
}

// browserHarness serves a BrowserPilot over httptest and dials it.
type browserHarness struct {
	pilot *BrowserPilot
	conn  *websocket.Conn
}

func newBrowserHarness(t *testing.T, cfg HubConfig) *browserHarness {
	t.Helper()

	p := NewBrowserPilot(cfg)
	p.now = func() time.Time { return testNow }
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := p.Serve(w, r, "tester"); err != nil {
			t.Logf("serve: %v", err)
		}
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		srv.Close()
	})

	deadline := time.Now().Add(time.Second)
	for p.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return &browserHarness{pilot: p, conn: conn}
}

func (h *browserHarness) send(t *testing.T, msg map[string]any) {
	t.Helper()
	if err := h.conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (h *browserHarness) read(t *testing.T) map[string]any {
	t.Helper()
	//nolint:errcheck // test deadline
	h.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := h.conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func errorCode(msg map[string]any) string {
	payload, _ := msg["payload"].(map[string]any)
	e, _ := payload["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestBrowserPilot_PingPong(t *testing.T) {
	h := newBrowserHarness(t, HubConfig{})
	h.send(t, map[string]any{"type": "ping", "id": "1"})

	msg := h.read(t)
	if msg["type"] != TypePong || msg["id"] != "1" {
		t.Errorf("reply = %v", msg)
	}
}

func TestBrowserPilot_RejectsWithoutReachingManager(t *testing.T) {
	h := newBrowserHarness(t, HubConfig{})

	h.send(t, map[string]any{"type": "fly", "id": "1"})
	if code := errorCode(h.read(t)); code != string(CodeUnknownRequest) {
		t.Errorf("unknown request code = %q", code)
	}

	h.send(t, map[string]any{"type": "updateName", "id": "2", "payload": map[string]any{"id": "d1"}})
	msg := h.read(t)
	if msg["id"] != "2" || errorCode(msg) != string(CodeWrongParameters) {
		t.Errorf("invalid payload reply = %v", msg)
	}

	select {
	case req := <-h.pilot.Requests():
		t.Errorf("request reached the manager: %+v", req)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrowserPilot_RequestAndReply(t *testing.T) {
	h := newBrowserHarness(t, HubConfig{})
	h.send(t, map[string]any{
		"type":    "updateName",
		"id":      "42",
		"payload": map[string]any{"id": "d1", "type": "DEVICE", "name": "Amphi"},
	})

	var req Request
	select {
	case req = <-h.pilot.Requests():
	case <-time.After(2 * time.Second):
		t.Fatal("request not delivered")
	}
	payload, ok := req.Payload.(UpdateNameRequest)
	if req.Kind != RequestUpdateName || !ok || payload.Name != "Amphi" || payload.Type != manageable.TypeDevice {
		t.Fatalf("request = %+v", req)
	}

	req.Reply(OK(map[string]string{"id": "d1"}))
	msg := h.read(t)
	if msg["type"] != TypeResponse || msg["id"] != "42" || errorCode(msg) != "" {
		t.Errorf("reply = %v", msg)
	}
}

func TestBrowserPilot_Notify(t *testing.T) {
	h := newBrowserHarness(t, HubConfig{})
	d := manageable.NewDevice("d1")

	h.pilot.Update(d, "name", "Amphi")
	msg := h.read(t)
	if msg["type"] != TypeEvent || msg["event_type"] != NotifyUpdate {
		t.Fatalf("notification = %v", msg)
	}
	payload, _ := msg["payload"].(map[string]any)
	if payload["id"] != "d1" || payload["type"] != "DEVICE" || payload["key"] != "name" || payload["value"] != "Amphi" {
		t.Errorf("payload = %v", payload)
	}
}

func TestBrowserPilot_RateLimit(t *testing.T) {
	h := newBrowserHarness(t, HubConfig{RateLimit: 0.001, RateBurst: 1})

	h.send(t, map[string]any{"type": "ping", "id": "1"})
	if msg := h.read(t); msg["type"] != TypePong {
		t.Fatalf("first message = %v", msg)
	}
	h.send(t, map[string]any{"type": "ping", "id": "2"})
	if code := errorCode(h.read(t)); code != string(CodeRateLimited) {
		t.Errorf("second message code = %q, want RATE_LIMITED", code)
	}
}

func TestRequestReplyWithoutConnection(t *testing.T) {
	var got Response
	req := NewRequest(RequestGetDevices, nil, func(r Response) { got = r })
	req.Reply(Fail(CodeNotFound, "gone"))
	if got.Error == nil || got.Error.Code != CodeNotFound {
		t.Errorf("reply = %+v", got)
	}

	NewRequest(RequestGetDevices, nil, nil).Reply(OK(nil))
}
