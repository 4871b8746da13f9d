package grpcclient

import "time"

// Client configuration defaults
const (
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Checks run ffmpeg three times on the remote side
	DefaultCallTimeout = 2 * time.Minute
	HealthCheckTimeout = 2 * time.Second
)
