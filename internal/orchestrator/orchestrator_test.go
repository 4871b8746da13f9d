package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corona10/goimagehash"

	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/fingerprint"
	"github.com/GriffinCanCode/fake-detector/internal/match"
	"github.com/GriffinCanCode/fake-detector/internal/reference"
	"github.com/GriffinCanCode/fake-detector/internal/sampler"
)

const alternating = 0x5555555555555555

func withDistance(n int) fingerprint.Fingerprint {
	words := []uint64{alternating, alternating, alternating, alternating}
	for i := 0; i < n; i++ {
		words[i/64] ^= 1 << (i % 64)
	}
	return goimagehash.NewExtImageHash(words, goimagehash.PHash, 256)
}

// frameHasher hashes reference images to the alternating fingerprint and sample frame i
// to a fingerprint distances[i] bits away.
type frameHasher struct {
	distances []int
	failFrame int // -1 for none
	refCalls  atomic.Int32
}

func (h *frameHasher) Hash(_ context.Context, path string) (fingerprint.Fingerprint, error) {
	base := filepath.Base(path)
	if !strings.Contains(base, "_") {
		h.refCalls.Add(1)
		return withDistance(0), nil
	}
	var index int
	if _, err := fmt.Sscanf(base[strings.LastIndex(base, "_")+1:], "%d.png", &index); err != nil {
		return nil, err
	}
	if index == h.failFrame {
		return nil, errors.New("corrupt frame")
	}
	return withDistance(h.distances[index]), nil
}

type fixedProber float64

func (p fixedProber) ProbeDuration(context.Context, string) (float64, error) { return float64(p), nil }

// fileExtractor writes a placeholder for every frame and fails on failIndex.
type fileExtractor struct {
	failAt  float64
	asDir   bool // write each frame as a non-empty directory so removal fails
	created atomic.Int32
}

func (e *fileExtractor) ExtractFrame(_ context.Context, _ string, ts float64, out string) error {
	if ts == e.failAt {
		return errors.New("ffmpeg exited 1")
	}
	e.created.Add(1)
	if e.asDir {
		if err := os.Mkdir(out, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(out, "keep"), nil, 0o644)
	}
	return os.WriteFile(out, []byte("frame"), 0o644)
}

// gatedSampler holds every Sample call until release is closed.
type gatedSampler struct {
	FrameSampler
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedSampler) Sample(ctx context.Context, videoPath string) ([]sampler.Sample, error) {
	g.calls.Add(1)
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.FrameSampler.Sample(ctx, videoPath)
}

type fixture struct {
	examples string
	work     string
	hasher   *frameHasher
	ext      *fileExtractor
	index    *reference.Index
	comparer *Comparer
}

func newFixture(t *testing.T, refs int, distances ...int) *fixture {
	t.Helper()
	f := &fixture{
		examples: t.TempDir(),
		work:     t.TempDir(),
		hasher:   &frameHasher{distances: distances, failFrame: -1},
		ext:      &fileExtractor{failAt: -1},
	}
	for i := 0; i < refs; i++ {
		if err := os.WriteFile(filepath.Join(f.examples, fmt.Sprintf("ref%d.png", i)), []byte("img"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	f.index = reference.New(f.examples, []string{".png"}, f.hasher, 2)
	engine, err := match.New(f.index, f.hasher, 5)
	if err != nil {
		t.Fatal(err)
	}
	f.comparer = New(f.index, sampler.New(fixedProber(120), f.ext, f.work), engine)
	return f
}

func (f *fixture) assertWorkEmpty(t *testing.T) {
	t.Helper()
	left, err := os.ReadDir(f.work)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("working directory still holds %d frame(s)", len(left))
	}
}

func TestIsFakeMatch(t *testing.T) {
	f := newFixture(t, 1, 2, 40, 3)

	v, err := f.comparer.IsFake(context.Background(), "/videos/clip.mp4")
	if err != nil {
		t.Fatalf("IsFake: %v", err)
	}
	if !v.Fake {
		t.Error("verdict should be fake")
	}
	want := filepath.Join(f.examples, "ref0.png")
	if len(v.Matches) != 1 || v.Matches[0] != want {
		t.Errorf("matches = %v, want [%s]", v.Matches, want)
	}
	if v.Path != "/videos/clip.mp4" {
		t.Errorf("path = %q", v.Path)
	}
	f.assertWorkEmpty(t)
}

func TestIsFakeNoMatch(t *testing.T) {
	f := newFixture(t, 1, 5, 40, 12)

	v, err := f.comparer.IsFake(context.Background(), "/videos/clip.mp4")
	if err != nil {
		t.Fatalf("IsFake: %v", err)
	}
	if v.Fake || len(v.Matches) != 0 {
		t.Errorf("verdict = %+v, want not fake with no matches", v)
	}
	f.assertWorkEmpty(t)
}

func TestIsFakeEmptyReferenceDirectory(t *testing.T) {
	f := newFixture(t, 0, 0, 0, 0)

	v, err := f.comparer.IsFake(context.Background(), "/videos/clip.mp4")
	if err != nil {
		t.Fatalf("empty examples must not fail: %v", err)
	}
	if v.Fake {
		t.Error("nothing can match an empty index")
	}
	f.assertWorkEmpty(t)
}

func TestIsFakeBuildsIndexOnce(t *testing.T) {
	f := newFixture(t, 3, 50, 50, 50)

	for i := 0; i < 4; i++ {
		if _, err := f.comparer.IsFake(context.Background(), fmt.Sprintf("/videos/%d.mp4", i)); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.hasher.refCalls.Load(); got != 3 {
		t.Errorf("reference hashes = %d, want 3", got)
	}
	if st := f.comparer.IndexStatus(); st.State != reference.Ready || st.Paths != 3 {
		t.Errorf("status = %+v", st)
	}
}

func TestIsFakeCleansUpAfterMatchError(t *testing.T) {
	f := newFixture(t, 1, 2, 2, 2)
	f.hasher.failFrame = 1

	if _, err := f.comparer.IsFake(context.Background(), "/videos/clip.mp4"); err == nil {
		t.Fatal("expected a fingerprint error")
	}
	if f.ext.created.Load() != 3 {
		t.Fatalf("created = %d, want 3", f.ext.created.Load())
	}
	f.assertWorkEmpty(t)
}

func TestIsFakeCleansUpAfterExtractionError(t *testing.T) {
	f := newFixture(t, 1, 2, 2, 2)
	f.ext.failAt = 90 // third sample of a 120s video

	_, err := f.comparer.IsFake(context.Background(), "/videos/clip.mp4")
	if !apperrors.IsCode(err, apperrors.CodeFrameExtractionFailed) {
		t.Fatalf("error = %v, want FRAME_EXTRACTION_FAILED", err)
	}
	f.assertWorkEmpty(t)

	// One failed video leaves the comparer usable
	f.ext.failAt = -1
	v, err := f.comparer.IsFake(context.Background(), "/videos/other.mp4")
	if err != nil || !v.Fake {
		t.Errorf("next check = %+v, %v; want fake", v, err)
	}
}

func TestIsFakeIndexFailure(t *testing.T) {
	f := newFixture(t, 1, 2, 2, 2)
	if err := os.RemoveAll(f.examples); err != nil {
		t.Fatal(err)
	}

	_, err := f.comparer.IsFake(context.Background(), "/videos/clip.mp4")
	if !apperrors.IsCode(err, apperrors.CodeIndexBuildFailed) {
		t.Errorf("error = %v, want INDEX_BUILD_FAILED", err)
	}
	if f.ext.created.Load() != 0 {
		t.Error("no frames should be sampled without an index")
	}
}

func TestCleanupFailureDoesNotMaskVerdict(t *testing.T) {
	f := newFixture(t, 1, 1, 50, 50)
	f.ext.asDir = true

	v, err := f.comparer.IsFake(context.Background(), "/videos/clip.mp4")
	if err != nil {
		t.Fatalf("cleanup failure leaked into the result: %v", err)
	}
	if !v.Fake {
		t.Error("verdict should still be fake")
	}
}

func TestOnVerdict(t *testing.T) {
	f := newFixture(t, 1, 2, 40, 3)
	var got []Verdict
	f.comparer.OnVerdict(func(v Verdict) {
		// Frames are gone before hooks run
		left, _ := os.ReadDir(f.work)
		if len(left) != 0 {
			t.Error("hook ran before cleanup")
		}
		got = append(got, v)
	})

	if _, err := f.comparer.IsFake(context.Background(), "/videos/clip.mp4"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Fake || got[0].Path != "/videos/clip.mp4" {
		t.Errorf("hook verdicts = %+v", got)
	}
}

func TestConcurrentChecksOfDistinctVideos(t *testing.T) {
	f := newFixture(t, 1, 2, 40, 3)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.comparer.IsFake(context.Background(), fmt.Sprintf("/videos/%d.mp4", i))
			if err == nil && !v.Fake {
				err = fmt.Errorf("video %d not flagged", i)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	f.assertWorkEmpty(t)
}

func TestCancelledCallerDoesNotFailSharedCheck(t *testing.T) {
	f := newFixture(t, 1, 2, 40, 3)
	gs := &gatedSampler{
		FrameSampler: f.comparer.sampler,
		entered:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
	c := New(f.index, gs, f.comparer.matcher)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.IsFake(ctxA, "/videos/clip.mp4")
		errA <- err
	}()
	<-gs.entered

	type result struct {
		v   *Verdict
		err error
	}
	resB := make(chan result, 1)
	go func() {
		v, err := c.IsFake(context.Background(), "/videos/clip.mp4")
		resB <- result{v, err}
	}()
	// Let the second caller join the in-flight check
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if err := <-errA; !apperrors.IsCode(err, apperrors.CodeCancelled) {
		t.Errorf("cancelled caller error = %v, want CANCELLED", err)
	}

	close(gs.release)
	r := <-resB
	if r.err != nil {
		t.Fatalf("live caller should get the verdict, got %v", r.err)
	}
	if !r.v.Fake || len(r.v.Matches) != 1 {
		t.Errorf("verdict = %+v, want fake with one match", r.v)
	}
	if got := gs.calls.Load(); got != 1 {
		t.Errorf("sample calls = %d, want 1 (shared check)", got)
	}
	f.assertWorkEmpty(t)
}
