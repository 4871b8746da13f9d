// Package sampler extracts a fixed set of still frames from a video.
package sampler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/metrics"
)

// DurationProber reports a video's length in seconds.
type DurationProber interface {
	ProbeDuration(ctx context.Context, videoPath string) (float64, error)
}

// FrameExtractor writes the still at timestamp seconds to outputPath.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, videoPath string, timestamp float64, outputPath string) error
}

// Sample is one extracted frame.
type Sample struct {
	Index     int
	Timestamp float64 // seconds
	Path      string
}

// Sampler picks frames at 1/4, 1/2 and 3/4 of a video's duration.
type Sampler struct {
	prober     DurationProber
	extractor  FrameExtractor
	workingDir string
}

// New creates a sampler writing frames into workingDir.
func New(prober DurationProber, extractor FrameExtractor, workingDir string) *Sampler {
	return &Sampler{prober: prober, extractor: extractor, workingDir: workingDir}
}

// Timestamps returns the sample points for a video of the given duration.
func Timestamps(duration float64) []float64 {
	ts := make([]float64, len(sampleFractions))
	for i, f := range sampleFractions {
		ts[i] = duration * f
	}
	return ts
}

// Namespace derives the temp-file prefix for videoPath. Distinct paths get distinct
// prefixes with the collision resistance of SHA-256.
func Namespace(videoPath string) string {
	sum := sha256.Sum256([]byte(videoPath))
	return hex.EncodeToString(sum[:])
}

// FramePath returns where sample index of videoPath is written.
func (s *Sampler) FramePath(videoPath string, index int) string {
	return filepath.Join(s.workingDir, fmt.Sprintf("%s_%d.%s", Namespace(videoPath), index, FrameFormat))
}

// Sample probes videoPath and extracts its frames concurrently, in timestamp order.
// On error the samples that were written are still returned so the caller can remove them.
func (s *Sampler) Sample(ctx context.Context, videoPath string) ([]Sample, error) {
	duration, err := s.prober.ProbeDuration(ctx, videoPath)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeDurationProbeFailed) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDurationProbeFailed, "probe duration").WithMetadata("video", videoPath)
	}

	timestamps := Timestamps(duration)
	written := make([]bool, len(timestamps))
	samples := make([]Sample, len(timestamps))

	var mu sync.Mutex
	// Siblings keep running on failure so every started frame is accounted for
	var g errgroup.Group
	for i, ts := range timestamps {
		samples[i] = Sample{Index: i, Timestamp: ts, Path: s.FramePath(videoPath, i)}
		g.Go(func() error {
			if err := s.extractor.ExtractFrame(ctx, videoPath, ts, samples[i].Path); err != nil {
				// A failed tool may still leave a partial file behind
				_ = os.Remove(samples[i].Path)
				if apperrors.IsCode(err, apperrors.CodeFrameExtractionFailed) {
					return err
				}
				return apperrors.Wrap(err, apperrors.CodeFrameExtractionFailed, "extract frame").
					WithMetadata("video", videoPath).
					WithMetadata("timestamp", fmt.Sprintf("%.3f", ts))
			}
			mu.Lock()
			written[i] = true
			mu.Unlock()
			metrics.FramesExtractedTotal.Inc()
			return nil
		})
	}
	err = g.Wait()

	result := make([]Sample, 0, len(samples))
	for i, ok := range written {
		if ok {
			result = append(result, samples[i])
		}
	}
	return result, err
}
