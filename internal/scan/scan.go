// Package scan runs the detector over a directory tree.
package scan

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/fake-detector/internal/config"
	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/orchestrator"
	"github.com/GriffinCanCode/fake-detector/internal/trace"
)

// Walk lists regular files under root recursively, keeping those with one of exts.
// It also returns how many files were seen before filtering.
func Walk(root string, exts []string) ([]string, int, error) {
	exts = config.NormalizeExtensions(exts)
	var files []string
	seen := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		seen++
		if config.HasExtension(path, exts) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "walk directory").WithMetadata("root", root)
	}
	sort.Strings(files)
	return files, seen, nil
}

// Checker is the single-video check a Runner drives.
type Checker interface {
	IsFake(ctx context.Context, videoPath string) (*orchestrator.Verdict, error)
}

// Summary counts the outcome of a batch.
type Summary struct {
	Total  int
	Fakes  int
	Clean  int
	Failed int
}

// Result pairs a video with its verdict or error.
type Result struct {
	Path    string
	Verdict *orchestrator.Verdict
	Err     error
}

// Runner checks a list of videos. Errors are recorded per video and never stop the batch.
type Runner struct {
	checker  Checker
	workers  int
	onResult func(Result)
}

// NewRunner creates a runner. workers <= 1 checks videos one at a time, in order.
func NewRunner(checker Checker, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{checker: checker, workers: workers}
}

// OnResult registers fn to observe each video's result.
func (r *Runner) OnResult(fn func(Result)) {
	r.onResult = fn
}

// Run checks every path and returns the tally. A cancelled ctx stops scheduling new videos.
func (r *Runner) Run(ctx context.Context, paths []string) (Summary, error) {
	log := trace.Logger(ctx)

	var (
		mu  sync.Mutex
		sum = Summary{Total: len(paths)}
	)
	g := new(errgroup.Group)
	g.SetLimit(r.workers)

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			v, err := r.checker.IsFake(ctx, path)
			mu.Lock()
			switch {
			case err != nil:
				sum.Failed++
			case v.Fake:
				sum.Fakes++
			default:
				sum.Clean++
			}
			if r.onResult != nil {
				r.onResult(Result{Path: path, Verdict: v, Err: err})
			}
			mu.Unlock()
			if err != nil {
				log.Error("check failed", "file", path, "code", apperrors.CodeOf(err), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return sum, apperrors.Wrap(err, apperrors.CodeCancelled, "batch interrupted")
	}
	return sum, nil
}
