// Package media wraps the ffmpeg and ffprobe binaries used to probe and sample videos.
package media

import (
	"bytes"
	"context"
	stderrors "errors"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
)

// FFmpeg probes durations with ffprobe and extracts stills with ffmpeg.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// New creates an adapter. A zero timeout leaves invocations unbounded.
func New(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = DefaultFFmpeg
	}
	if ffprobePath == "" {
		ffprobePath = DefaultFFprobe
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, timeout: timeout}
}

// ProbeDuration returns the container duration of videoPath in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, videoPath string) (float64, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	cmd.WaitDelay = KillWaitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return 0, toolError(ctx, err, apperrors.CodeDurationProbeFailed, "ffprobe failed", stderr.String()).
			WithMetadata("video", videoPath)
	}

	duration, err := ParseDuration(string(output))
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeDurationProbeFailed, "parse duration").WithMetadata("video", videoPath)
	}
	return duration, nil
}

// ExtractFrame writes the single frame at timestamp seconds into outputPath.
func (f *FFmpeg) ExtractFrame(ctx context.Context, videoPath string, timestamp float64, outputPath string) error {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	// -ss before -i seeks the input, which is fast and frame accurate enough for stills
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-v", "error",
		"-ss", strconv.FormatFloat(timestamp, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-y",
		outputPath,
	)
	cmd.WaitDelay = KillWaitDelay
	output, err := cmd.CombinedOutput()
	if err != nil {
		return toolError(ctx, err, apperrors.CodeFrameExtractionFailed, "ffmpeg failed", string(output)).
			WithMetadata("video", videoPath).
			WithMetadata("output", outputPath)
	}

	// ffmpeg exits 0 without writing when seeking past the last frame
	if _, err := os.Stat(outputPath); err != nil {
		return apperrors.Wrap(err, apperrors.CodeFrameExtractionFailed, "ffmpeg produced no frame").
			WithMetadata("video", videoPath).
			WithMetadata("output", outputPath)
	}
	return nil
}

// ParseDuration parses ffprobe's duration output, rejecting non-positive values.
func ParseDuration(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "N/A" {
		return 0, apperrors.New(apperrors.CodeDurationProbeFailed, "duration not reported")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.CodeDurationProbeFailed, "invalid duration %q", s)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return 0, apperrors.Newf(apperrors.CodeDurationProbeFailed, "unusable duration %v", d)
	}
	return d, nil
}

func (f *FFmpeg) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

// toolError classifies a failed invocation, keeping the tool's stderr for diagnosis.
func toolError(ctx context.Context, err error, code apperrors.Code, msg, output string) *apperrors.AppError {
	cause := err
	switch {
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		cause = apperrors.Wrap(err, apperrors.CodeTimeout, "external tool timed out")
	case stderrors.Is(ctx.Err(), context.Canceled):
		cause = apperrors.Wrap(err, apperrors.CodeCancelled, "external tool cancelled")
	}
	appErr := apperrors.Wrap(cause, code, msg)
	if out := strings.TrimSpace(output); out != "" {
		appErr.WithMetadata("stderr", truncate(out, MaxToolOutput))
	}
	return appErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
