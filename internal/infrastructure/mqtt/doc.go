// Package mqtt connects the manager to the broker its recording devices use.
//
// Devices publish events and answer requests over MQTT; the device pilot
// sits on top of this client. The package manages:
//   - Connection with auto-reconnect and restored subscriptions
//   - Publishing with QoS acknowledgement
//   - Wildcard subscriptions with panic-safe handlers
//   - A retained online/offline status with a Last Will
//
// # Topics
//
//	{prefix}/system/status                      service online/offline (retained)
//	{prefix}/device/{id}/event/{name}           device → manager
//	{prefix}/device/{id}/request                manager → device
//	{prefix}/device/{id}/response/{requestId}   device → manager
//
// # Usage
//
//	topics := mqtt.Topics{Prefix: cfg.Devices.TopicPrefix}
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// TLS should be enabled whenever devices reach the broker over a network
// the operator does not control.
package mqtt
