// Package api is the HTTP surface of the manage service.
//
// Routes, all under /api/v1:
//
//	GET /health   component health (database, broker, telemetry sink)
//	GET /metrics  Prometheus scrape endpoint
//	GET /ws       browser channel; ?token=<HS256 JWT signed with security.jwt.secret>
//
// The WebSocket handler only authenticates. Once upgraded, the connection
// belongs to the browser pilot, which decodes requests and pushes
// notifications.
//
// Tokens are issued elsewhere. The subject claim names the browser user in
// logs.
package api
