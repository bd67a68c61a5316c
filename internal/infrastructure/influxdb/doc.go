// Package influxdb is the optional telemetry sink of the manage service.
//
// When enabled, the settings a device reports after authenticating are
// written as time series:
//
//	device_storage,device_id=<id>  free_bytes=<n>i,used_bytes=<n>i
//	device_settings,device_id=<id> inputs=<n>i,presets=<n>i
//
// Writes go through the non-blocking batched write API of
// influxdb-client-go v2 and never hold up the manager. Batch failures are
// reported through SetOnError.
package influxdb
