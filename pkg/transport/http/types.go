package http

import "github.com/rhuss/datasci/pkg/api"

// SessionList is returned by GET /sessions.
type SessionList struct {
	Object string            `json:"object"`
	Data   []api.SessionInfo `json:"data"`
}

// GlobalsResponse is returned by GET /globals.
type GlobalsResponse struct {
	Globals map[string]string `json:"globals"`
}

// HealthResponse is returned by GET /health. Sessions is -1 when the
// backend cannot count its sessions.
type HealthResponse struct {
	Status        string `json:"status"`
	Sessions      int    `json:"sessions"`
	InFlight      int    `json:"in_flight"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Version       string `json:"version"`
	Error         string `json:"error,omitempty"`
}
