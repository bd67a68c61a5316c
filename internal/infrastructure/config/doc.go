// Package config loads and validates the manage service configuration.
//
// Values come from hardcoded defaults, then a YAML file, then MANAGE_*
// environment variables. Secrets (MQTT password, JWT secret, InfluxDB
// token) belong in the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loc := cfg.Location()
package config
