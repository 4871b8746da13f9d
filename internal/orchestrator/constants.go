// Package orchestrator answers whether a video is a known fake.
package orchestrator

// Check stage labels for metrics.CheckDuration
const (
	StageIndex  = "index"
	StageSample = "sample"
	StageMatch  = "match"
	StageTotal  = "total"
)
