// Package reference builds the in-memory index of example fingerprints.
package reference

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/fake-detector/internal/config"
	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/fingerprint"
	"github.com/GriffinCanCode/fake-detector/internal/metrics"
)

// State is the lifecycle of an Index.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
)

func (s State) String() string {
	return [...]string{"uninitialized", "initializing", "ready", "failed"}[s]
}

// Entry is one distinct fingerprint and every example file that produced it.
type Entry struct {
	Fingerprint fingerprint.Fingerprint
	Paths       []string
}

// Status summarizes an Index for reporting.
type Status struct {
	State   State
	Dir     string
	Entries int
	Paths   int
}

// Index maps example fingerprints to their source files. It is built once, on first use,
// and is read-only afterward.
type Index struct {
	dir     string
	exts    []string
	hasher  fingerprint.Hasher
	workers int

	mu       sync.Mutex
	state    State
	inflight *attempt
	entries  []Entry
	paths    int
}

// attempt is one build; done is closed once err is set.
type attempt struct {
	done chan struct{}
	err  error
}

// New creates an uninitialized index over dir, accepting files whose extension is in exts.
func New(dir string, exts []string, hasher fingerprint.Hasher, workers int) *Index {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Index{
		dir:     dir,
		exts:    config.NormalizeExtensions(exts),
		hasher:  hasher,
		workers: workers,
	}
}

// EnsureInitialized builds the index on first call; later calls are no-ops.
// Callers arriving during a build wait for its outcome instead of starting another.
// The build runs detached from the caller that started it, so a cancelled caller
// returns CANCELLED while the others still get the result.
// A failed build leaves nothing exposed and the next call tries again.
func (x *Index) EnsureInitialized(ctx context.Context) error {
	x.mu.Lock()
	switch x.state {
	case Ready:
		x.mu.Unlock()
		return nil
	case Uninitialized, Failed:
		x.state = Initializing
		x.inflight = &attempt{done: make(chan struct{})}
		go x.run(context.WithoutCancel(ctx), x.inflight)
	}
	a := x.inflight
	x.mu.Unlock()

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "waiting for reference index")
	}
}

// run performs one build attempt and publishes its outcome.
func (x *Index) run(ctx context.Context, a *attempt) {
	entries, paths, err := x.build(ctx)

	x.mu.Lock()
	if err != nil {
		x.state = Failed
		metrics.IndexBuildsTotal.WithLabelValues("failed").Inc()
	} else {
		x.state = Ready
		x.entries, x.paths = entries, paths
		metrics.IndexBuildsTotal.WithLabelValues("ready").Inc()
		metrics.ReferenceEntries.Set(float64(len(entries)))
	}
	a.err = err
	close(a.done)
	x.mu.Unlock()
}

// Entries returns the indexed fingerprints, or nil before the index is ready.
// The returned slice is shared and must not be modified.
func (x *Index) Entries() []Entry {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state != Ready {
		return nil
	}
	return x.entries
}

// Status reports the current state and size.
func (x *Index) Status() Status {
	x.mu.Lock()
	defer x.mu.Unlock()
	return Status{State: x.state, Dir: x.dir, Entries: len(x.entries), Paths: x.paths}
}

func (x *Index) build(ctx context.Context) ([]Entry, int, error) {
	slog.Debug("initialising example hashes", "dir", x.dir)

	files, err := x.listExamples()
	if err != nil {
		return nil, 0, err
	}

	hashes := make([]fingerprint.Fingerprint, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)
	for i, file := range files {
		g.Go(func() error {
			fp, err := x.hasher.Hash(gctx, file)
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeIndexBuildFailed, "fingerprint example").WithMetadata("path", file)
			}
			hashes[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	// Exact collisions keep every path rather than the last one written
	byKey := make(map[string]int, len(files))
	entries := make([]Entry, 0, len(files))
	for i, fp := range hashes {
		key := fingerprint.Key(fp)
		if idx, ok := byKey[key]; ok {
			entries[idx].Paths = append(entries[idx].Paths, files[i])
			slog.Debug("examples share a fingerprint", "paths", entries[idx].Paths)
			continue
		}
		byKey[key] = len(entries)
		entries = append(entries, Entry{Fingerprint: fp, Paths: []string{files[i]}})
	}

	slog.Debug("example hash initialisation complete", "files", len(files), "entries", len(entries))
	return entries, len(files), nil
}

// listExamples returns accepted example files in directory order.
func (x *Index) listExamples() ([]string, error) {
	dirEntries, err := os.ReadDir(x.dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeIndexBuildFailed, "read examples directory").WithMetadata("dir", x.dir)
	}
	files := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !config.HasExtension(de.Name(), x.exts) {
			continue
		}
		files = append(files, filepath.Join(x.dir, de.Name()))
	}
	return files, nil
}
