package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every topic when Topics.Prefix is empty.
const DefaultTopicPrefix = "manage"

// Device topic channels.
const (
	ChannelEvent    = "event"
	ChannelRequest  = "request"
	ChannelResponse = "response"
)

// Topics provides builders for manage MQTT topics.
// Using these helpers keeps topic naming consistent between publishers and
// subscribers:
//
//	topics := mqtt.Topics{}
//	topics.DeviceEvent("rec-01", "authenticated")
//	// Returns: "manage/device/rec-01/event/authenticated"
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// SystemStatus returns the retained online/offline topic of this service.
//
// Example: manage/system/status
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// DeviceEvent returns the topic a device publishes an event on.
//
// Example: manage/device/rec-01/event/session_status_updated
func (t Topics) DeviceEvent(deviceID, event string) string {
	return fmt.Sprintf("%s/device/%s/%s/%s", t.root(), deviceID, ChannelEvent, event)
}

// AllDeviceEvents returns the wildcard for every event of every device.
func (t Topics) AllDeviceEvents() string {
	return t.root() + "/device/+/" + ChannelEvent + "/+"
}

// DeviceRequest returns the topic a device listens on for requests.
//
// Example: manage/device/rec-01/request
func (t Topics) DeviceRequest(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/%s", t.root(), deviceID, ChannelRequest)
}

// DeviceResponse returns the topic a device answers a request on.
//
// Example: manage/device/rec-01/response/6f1c...
func (t Topics) DeviceResponse(deviceID, requestID string) string {
	return fmt.Sprintf("%s/device/%s/%s/%s", t.root(), deviceID, ChannelResponse, requestID)
}

// AllDeviceResponses returns the wildcard for every device response.
func (t Topics) AllDeviceResponses() string {
	return t.root() + "/device/+/" + ChannelResponse + "/+"
}

// ParseDeviceTopic splits {prefix}/device/{id}/{channel}/{name}.
// ok is false for any other shape.
func (t Topics) ParseDeviceTopic(topic string) (deviceID, channel, name string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/device/")
	if !found {
		return "", "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
