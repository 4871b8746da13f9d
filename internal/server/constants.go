// Package server provides the HTTP API and WebSocket feed
package server

import "time"

// Server configuration constants
const (
	// Per-connection WebSocket rate limit
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Verdicts kept for GET /api/verdicts
	VerdictHistorySize = 100

	// Queued broadcasts per client before new verdicts are dropped for it
	ClientSendBuffer = 32
	WriteTimeout     = 5 * time.Second

	// Upper bound on a POST /api/check body
	MaxRequestBytes = 4 << 10
)

// WebSocket message types
const (
	TypeCheck   = "check"
	TypeVerdict = "verdict"
	TypeError   = "error"
)
