package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/manage-core/internal/manageable"
)

// Measurement names.
const (
	measurementStorage  = "device_storage"
	measurementSettings = "device_settings"
)

// WriteDeviceSettings records what a device reported after authenticating:
// its disk usage, when known, and how many inputs and presets it offers.
func (c *Client) WriteDeviceSettings(deviceID string, s manageable.Settings) {
	if !c.IsConnected() {
		return
	}
	for _, p := range settingsPoints(deviceID, s, c.now()) {
		c.writeAPI.WritePoint(p)
	}
}

func settingsPoints(deviceID string, s manageable.Settings, at time.Time) []*write.Point {
	tags := map[string]string{"device_id": deviceID}
	points := []*write.Point{
		write.NewPoint(measurementSettings, tags, map[string]any{
			"inputs":  len(s.Inputs),
			"presets": len(s.Presets),
		}, at),
	}
	if s.Storage != nil {
		points = append(points, write.NewPoint(measurementStorage, tags, map[string]any{
			"free_bytes": s.Storage.Free,
			"used_bytes": s.Storage.Used,
		}, at))
	}
	return points
}
