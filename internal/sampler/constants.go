// Package sampler extracts a fixed set of still frames from a video.
package sampler

// Fractions of the total duration that are sampled. The first and last frames are
// skipped since they are usually title cards or credits.
var sampleFractions = [...]float64{0.25, 0.5, 0.75}

// Extension of extracted frames
const FrameFormat = "png"
