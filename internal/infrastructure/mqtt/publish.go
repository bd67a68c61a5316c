package mqtt

import "fmt"

// maxPayloadSize bounds a message at 1MB, in line with common broker limits.
const maxPayloadSize = 1 << 20

// Publish sends payload on topic and waits for the broker's acknowledgement
// at the given QoS.
//
// Device requests are published with retained=false: a request must not be
// replayed to a device that connects later.
//
//	topic := mqtt.Topics{}.DeviceRequest("rec-01")
//	err := client.Publish(topic, []byte(`{"request_id":"r1","action":"get_name"}`), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}
