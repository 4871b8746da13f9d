// Package orchestrator answers whether a video is a known fake.
package orchestrator

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/fake-detector/internal/config"
	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/fingerprint"
	"github.com/GriffinCanCode/fake-detector/internal/match"
	"github.com/GriffinCanCode/fake-detector/internal/media"
	"github.com/GriffinCanCode/fake-detector/internal/metrics"
	"github.com/GriffinCanCode/fake-detector/internal/reference"
	"github.com/GriffinCanCode/fake-detector/internal/sampler"
	"github.com/GriffinCanCode/fake-detector/internal/trace"
	pb "github.com/GriffinCanCode/fake-detector/pkg/pb"
)

// Indexer is the lazily built reference set.
type Indexer interface {
	EnsureInitialized(ctx context.Context) error
	Status() reference.Status
}

// FrameSampler turns a video into temporary frame files.
type FrameSampler interface {
	Sample(ctx context.Context, videoPath string) ([]sampler.Sample, error)
}

// Matcher finds references similar to a set of frames.
type Matcher interface {
	CheckForFakes(ctx context.Context, framePaths []string) ([]string, error)
}

// Verdict is the outcome of one check.
type Verdict struct {
	Path      string
	Fake      bool
	Matches   []string
	Elapsed   time.Duration
	CheckedAt time.Time
}

// Wire converts v to its transport form.
func (v Verdict) Wire() pb.Verdict {
	matches := v.Matches
	if matches == nil {
		matches = []string{}
	}
	return pb.Verdict{
		Path:      v.Path,
		Fake:      v.Fake,
		Matches:   matches,
		ElapsedMs: v.Elapsed.Milliseconds(),
		CheckedAt: v.CheckedAt,
	}
}

// WireStatus converts an index status to its transport form.
func WireStatus(s reference.Status) pb.IndexStatus {
	return pb.IndexStatus{State: s.State.String(), Dir: s.Dir, Entries: s.Entries, Paths: s.Paths}
}

// Comparer checks videos against the reference index. It is safe for concurrent use;
// checks of the same path already in flight are shared rather than repeated.
type Comparer struct {
	index   Indexer
	sampler FrameSampler
	matcher Matcher

	flight singleflight.Group

	hooksMu sync.RWMutex
	hooks   []func(Verdict)
}

// New assembles a comparer from its stages.
func New(index Indexer, s FrameSampler, m Matcher) *Comparer {
	return &Comparer{index: index, sampler: s, matcher: m}
}

// NewFromConfig wires the goimagehash hasher, ffmpeg tooling and reference index from cfg.
// The index and the matcher share one hasher so their fingerprints always compare.
func NewFromConfig(cfg *config.Config) (*Comparer, *reference.Index, error) {
	alg, err := fingerprint.ParseAlgorithm(cfg.HashAlgorithm)
	if err != nil {
		return nil, nil, err
	}
	hasher, err := fingerprint.NewImageHasher(alg, cfg.HashSize)
	if err != nil {
		return nil, nil, err
	}
	index := reference.New(cfg.ExamplesDir, cfg.ExampleExtensions, hasher, cfg.HashWorkers)
	engine, err := match.New(index, hasher, cfg.Threshold)
	if err != nil {
		return nil, nil, err
	}
	tools := media.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.ToolTimeout)
	return New(index, sampler.New(tools, tools, cfg.WorkingDir), engine), index, nil
}

// OnVerdict registers fn to receive every successful verdict once its frames are removed.
// fn runs on the checking goroutine and must not block.
func (c *Comparer) OnVerdict(fn func(Verdict)) {
	c.hooksMu.Lock()
	c.hooks = append(c.hooks, fn)
	c.hooksMu.Unlock()
}

// IndexStatus reports the reference index state.
func (c *Comparer) IndexStatus() reference.Status {
	return c.index.Status()
}

// IsFake reports whether videoPath matches any reference example.
// The shared check runs detached from any one caller; a cancelled caller stops
// waiting with CANCELLED and the check still finishes, frames removed, for the rest.
func (c *Comparer) IsFake(ctx context.Context, videoPath string) (*Verdict, error) {
	ch := c.flight.DoChan(videoPath, func() (any, error) {
		return c.check(context.WithoutCancel(ctx), videoPath)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "waiting for check").WithMetadata("video", videoPath)
	}
	if res.Err != nil {
		return nil, res.Err
	}
	// Shared callers each get their own copy
	verdict := *res.Val.(*Verdict)
	verdict.Matches = append([]string(nil), verdict.Matches...)
	return &verdict, nil
}

func (c *Comparer) check(ctx context.Context, videoPath string) (*Verdict, error) {
	ctx, span := trace.StartSpan(ctx, "is_fake")
	defer span.End()
	span.SetAttr("file", videoPath)

	metrics.ActiveChecks.Inc()
	defer metrics.ActiveChecks.Dec()

	log := trace.Logger(ctx)
	log.Info("checking video", "file", videoPath)
	start := time.Now()

	stage := time.Now()
	if err := c.index.EnsureInitialized(ctx); err != nil {
		span.SetAttr("error", err.Error())
		metrics.ChecksTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}
	metrics.CheckDuration.WithLabelValues(StageIndex).Observe(time.Since(stage).Seconds())

	matches, err := c.compare(ctx, videoPath)
	if err != nil {
		span.SetAttr("error", err.Error())
		metrics.ChecksTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}

	v := &Verdict{
		Path:      videoPath,
		Fake:      len(matches) > 0,
		Matches:   matches,
		Elapsed:   time.Since(start),
		CheckedAt: time.Now(),
	}
	metrics.CheckDuration.WithLabelValues(StageTotal).Observe(v.Elapsed.Seconds())
	span.SetAttr("fake", v.Fake)

	if v.Fake {
		metrics.ChecksTotal.WithLabelValues(metrics.ResultFake).Inc()
		log.Error("fake found", "file", videoPath, "matches", matches)
	} else {
		metrics.ChecksTotal.WithLabelValues(metrics.ResultClean).Inc()
		log.Debug("video is not a fake", "file", videoPath)
	}

	c.hooksMu.RLock()
	hooks := c.hooks
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(*v)
	}
	return v, nil
}

// compare samples the video, matches its frames, and removes every frame it created
// before returning, whatever the outcome.
func (c *Comparer) compare(ctx context.Context, videoPath string) ([]string, error) {
	stage := time.Now()
	samples, err := c.sampler.Sample(ctx, videoPath)
	defer c.cleanup(ctx, samples)
	if err != nil {
		return nil, err
	}
	metrics.CheckDuration.WithLabelValues(StageSample).Observe(time.Since(stage).Seconds())

	frames := make([]string, len(samples))
	for i, s := range samples {
		frames[i] = s.Path
	}

	stage = time.Now()
	matches, err := c.matcher.CheckForFakes(ctx, frames)
	if err != nil {
		return nil, err
	}
	metrics.CheckDuration.WithLabelValues(StageMatch).Observe(time.Since(stage).Seconds())
	return matches, nil
}

// cleanup removes sample frames. Failures are logged and counted only.
func (c *Comparer) cleanup(ctx context.Context, samples []sampler.Sample) {
	log := trace.Logger(ctx)
	for _, s := range samples {
		err := os.Remove(s.Path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		metrics.CleanupFailuresTotal.Inc()
		log.Warn("failed to remove sample frame", "path", s.Path, "error", err)
	}
}
