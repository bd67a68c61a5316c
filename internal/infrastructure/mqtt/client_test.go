package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/manage-core/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a local broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "manage-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestBuildClientOptions(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.MQTTConfig)
		wantURL  string
		wantUser string
		wantTLS  bool
	}{
		{"plain", func(*config.MQTTConfig) {}, "tcp://127.0.0.1:1883", "", false},
		{"tls", func(c *config.MQTTConfig) { c.Broker.TLS = true; c.Broker.Port = 8883 }, "ssl://127.0.0.1:8883", "", true},
		{"credentials", func(c *config.MQTTConfig) { c.Auth.Username = "manager"; c.Auth.Password = "pw" }, "tcp://127.0.0.1:1883", "manager", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			opts := buildClientOptions(cfg)

			if len(opts.Servers) != 1 || opts.Servers[0].String() != tt.wantURL {
				t.Errorf("Servers = %v, want %s", opts.Servers, tt.wantURL)
			}
			if opts.ClientID != "manage-test" {
				t.Errorf("ClientID = %q", opts.ClientID)
			}
			if opts.Username != tt.wantUser {
				t.Errorf("Username = %q, want %q", opts.Username, tt.wantUser)
			}
			if got := opts.TLSConfig != nil; got != tt.wantTLS {
				t.Errorf("TLS configured = %v, want %v", got, tt.wantTLS)
			}
			if !opts.AutoReconnect || !opts.CleanSession {
				t.Error("auto-reconnect and clean session must be on")
			}
		})
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, Topics{Prefix: "campus"}, "manage-test")

	if !opts.WillEnabled || !opts.WillRetained || opts.WillQos != 1 {
		t.Fatalf("will = enabled %v retained %v qos %d", opts.WillEnabled, opts.WillRetained, opts.WillQos)
	}
	if opts.WillTopic != "campus/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	var s status
	if err := json.Unmarshal(opts.WillPayload, &s); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if s.Status != statusOffline || s.Reason != reasonUnexpected || s.ClientID != "manage-test" {
		t.Errorf("will = %+v", s)
	}
}

func TestStatusPayload(t *testing.T) {
	var s map[string]any
	if err := json.Unmarshal(statusPayload(statusOnline, "", "c1"), &s); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if s["status"] != "online" || s["client_id"] != "c1" || s["timestamp"] == "" {
		t.Errorf("payload = %v", s)
	}
	if _, ok := s["reason"]; ok {
		t.Error("online status carries a reason")
	}
}

func TestPublishSubscribe_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish oversize", c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", []byte("{}"), 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("t", 3, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 1, noop), ErrNotConnected},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, tt.err, tt.want)
		}
	}
	if c.SubscriptionCount() != 0 {
		t.Error("failed subscription was tracked")
	}
}

// fakeMessage implements paho's Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Info(msg string, _ ...any)  { l.lines = append(l.lines, "info: "+msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.lines = append(l.lines, "warn: "+msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.lines = append(l.lines, "error: "+msg) }

func TestWrapHandler(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	var got string
	c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + " " + string(payload)
		return nil
	})(nil, fakeMessage{"manage/device/rec-01/event/disconnected", []byte("{}")})
	if got != "manage/device/rec-01/event/disconnected {}" {
		t.Errorf("handler saw %q", got)
	}

	c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })(nil, fakeMessage{topic: "t"})
	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, fakeMessage{topic: "t"})

	joined := strings.Join(logger.lines, "\n")
	if !strings.Contains(joined, "warn: MQTT handler returned error") || !strings.Contains(joined, "error: MQTT handler panic recovered") {
		t.Errorf("log = %q", joined)
	}
}

func TestClose_NeverConnected(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", Topics{}.SystemStatus(), "manage/system/status"},
		{"device event", Topics{}.DeviceEvent("rec-01", "authenticated"), "manage/device/rec-01/event/authenticated"},
		{"all events", Topics{}.AllDeviceEvents(), "manage/device/+/event/+"},
		{"device request", Topics{}.DeviceRequest("rec-01"), "manage/device/rec-01/request"},
		{"device response", Topics{}.DeviceResponse("rec-01", "r1"), "manage/device/rec-01/response/r1"},
		{"all responses", Topics{}.AllDeviceResponses(), "manage/device/+/response/+"},
		{"custom prefix", Topics{Prefix: "campus/"}.DeviceRequest("rec-01"), "campus/device/rec-01/request"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestParseDeviceTopic(t *testing.T) {
	tests := []struct {
		topic  string
		wantID string
		wantCh string
		wantNm string
		wantOK bool
	}{
		{"manage/device/rec-01/event/name_updated", "rec-01", ChannelEvent, "name_updated", true},
		{"manage/device/rec-01/response/abc", "rec-01", ChannelResponse, "abc", true},
		{"manage/device/rec-01/request", "", "", "", false},
		{"manage/device//event/x", "", "", "", false},
		{"other/device/rec-01/event/x", "", "", "", false},
		{"manage/device/rec-01/event/x/extra", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ch, name, ok := Topics{}.ParseDeviceTopic(tt.topic)
			if ok != tt.wantOK || id != tt.wantID || ch != tt.wantCh || name != tt.wantNm {
				t.Errorf("got (%q, %q, %q, %v)", id, ch, name, ok)
			}
		})
	}
}
