// Package match compares sampled frames against the reference index.
package match

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/fingerprint"
	"github.com/GriffinCanCode/fake-detector/internal/reference"
)

// Source provides the reference entries to compare against.
type Source interface {
	Entries() []reference.Entry
}

// Engine fingerprints frames and finds references within the distance budget.
type Engine struct {
	source    Source
	hasher    fingerprint.Hasher
	threshold int
}

// New creates an engine. The hasher must be configured like the one that built source.
func New(source Source, hasher fingerprint.Hasher, threshold int) (*Engine, error) {
	if threshold < 0 {
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "threshold must be non-negative, got %d", threshold)
	}
	return &Engine{source: source, hasher: hasher, threshold: threshold}, nil
}

// Threshold returns the dissimilarity budget.
func (e *Engine) Threshold() int { return e.threshold }

// Matches reports whether a and b differ in fewer than threshold positions.
func Matches(a, b fingerprint.Fingerprint, threshold int) (bool, error) {
	dist, err := fingerprint.Distance(a, b)
	if err != nil {
		return false, err
	}
	return dist < threshold, nil
}

// CheckForFakes returns the distinct reference paths similar to any of framePaths, sorted.
func (e *Engine) CheckForFakes(ctx context.Context, framePaths []string) ([]string, error) {
	entries := e.source.Entries()
	if len(entries) == 0 || len(framePaths) == 0 {
		return []string{}, nil
	}

	hashes := make([]fingerprint.Fingerprint, len(framePaths))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range framePaths {
		g.Go(func() error {
			fp, err := e.hasher.Hash(gctx, p)
			if err != nil {
				if apperrors.CodeOf(err) != apperrors.CodeUnknown {
					return err
				}
				return apperrors.Wrap(err, apperrors.CodeFingerprintFailed, "fingerprint frame").WithMetadata("path", p)
			}
			hashes[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, fp := range hashes {
		for _, entry := range entries {
			ok, err := Matches(fp, entry.Fingerprint, e.threshold)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			for _, path := range entry.Paths {
				seen[path] = struct{}{}
			}
		}
	}

	matches := make([]string, 0, len(seen))
	for path := range seen {
		matches = append(matches, path)
	}
	sort.Strings(matches)
	return matches, nil
}
