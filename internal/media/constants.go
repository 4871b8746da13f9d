// Package media wraps the ffmpeg and ffprobe binaries used to probe and sample videos.
package media

import "time"

// Tool defaults
const (
	DefaultFFmpeg  = "ffmpeg"
	DefaultFFprobe = "ffprobe"

	// Bytes of tool stderr kept in error metadata
	MaxToolOutput = 512

	// How long to wait for a killed tool's pipes to drain
	KillWaitDelay = 2 * time.Second
)
