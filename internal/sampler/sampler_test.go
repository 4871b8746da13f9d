package sampler

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
)

type fakeProber struct {
	duration float64
	err      error
}

func (f *fakeProber) ProbeDuration(context.Context, string) (float64, error) {
	return f.duration, f.err
}

// fakeExtractor writes a placeholder file per frame, failing at chosen timestamps.
type fakeExtractor struct {
	mu      sync.Mutex
	calls   []float64
	failAt  map[float64]bool
	partial bool // write the file even when failing
}

func (f *fakeExtractor) ExtractFrame(_ context.Context, _ string, ts float64, out string) error {
	f.mu.Lock()
	f.calls = append(f.calls, ts)
	f.mu.Unlock()
	if f.failAt[ts] {
		if f.partial {
			_ = os.WriteFile(out, []byte("half"), 0o644)
		}
		return errors.New("ffmpeg exited 1")
	}
	return os.WriteFile(out, []byte("frame"), 0o644)
}

func TestTimestamps(t *testing.T) {
	for _, d := range []float64{1, 60, 7263.5, 1e-3, 1e9} {
		ts := Timestamps(d)
		want := []float64{d / 4, d / 2, 3 * d / 4}
		if len(ts) != 3 {
			t.Fatalf("Timestamps(%v) len = %d, want 3", d, len(ts))
		}
		for i := range want {
			if math.Abs(ts[i]-want[i]) > 1e-9*math.Max(1, d) {
				t.Errorf("Timestamps(%v)[%d] = %v, want %v", d, i, ts[i], want[i])
			}
		}
	}
}

func TestNamespace(t *testing.T) {
	a := Namespace("/videos/a.mp4")
	if a != Namespace("/videos/a.mp4") {
		t.Error("namespace should be deterministic")
	}
	if a == Namespace("/videos/b.mp4") {
		t.Error("distinct paths should get distinct namespaces")
	}
	if len(a) != 64 {
		t.Errorf("namespace length = %d, want 64 hex chars", len(a))
	}
}

func TestFramePath(t *testing.T) {
	s := New(nil, nil, "/work")
	got := s.FramePath("/videos/a.mp4", 2)
	want := filepath.Join("/work", Namespace("/videos/a.mp4")+"_2.png")
	if got != want {
		t.Errorf("FramePath = %q, want %q", got, want)
	}
}

func TestSample(t *testing.T) {
	dir := t.TempDir()
	ext := &fakeExtractor{}
	s := New(&fakeProber{duration: 100}, ext, dir)

	samples, err := s.Sample(context.Background(), "/videos/a.mp4")
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(samples))
	}

	wantTS := []float64{25, 50, 75}
	for i, sm := range samples {
		if sm.Index != i || sm.Timestamp != wantTS[i] {
			t.Errorf("sample %d = %+v, want index %d at %v", i, sm, i, wantTS[i])
		}
		if !strings.HasPrefix(filepath.Base(sm.Path), Namespace("/videos/a.mp4")) {
			t.Errorf("sample path %q not namespaced", sm.Path)
		}
		if _, err := os.Stat(sm.Path); err != nil {
			t.Errorf("sample %d not written: %v", i, err)
		}
	}
}

func TestSampleProbeFailure(t *testing.T) {
	ext := &fakeExtractor{}
	s := New(&fakeProber{err: errors.New("no such file")}, ext, t.TempDir())

	samples, err := s.Sample(context.Background(), "/videos/missing.mp4")
	if !apperrors.IsCode(err, apperrors.CodeDurationProbeFailed) {
		t.Errorf("error = %v, want DURATION_PROBE_FAILED", err)
	}
	if len(samples) != 0 || len(ext.calls) != 0 {
		t.Error("no frames should be extracted when probing fails")
	}
}

func TestSampleExtractionFailureReturnsWrittenFrames(t *testing.T) {
	dir := t.TempDir()
	ext := &fakeExtractor{failAt: map[float64]bool{50: true}, partial: true}
	s := New(&fakeProber{duration: 100}, ext, dir)

	samples, err := s.Sample(context.Background(), "/videos/a.mp4")
	if !apperrors.IsCode(err, apperrors.CodeFrameExtractionFailed) {
		t.Fatalf("error = %v, want FRAME_EXTRACTION_FAILED", err)
	}
	if len(samples) != 2 {
		t.Fatalf("written samples = %d, want 2", len(samples))
	}
	if samples[0].Index != 0 || samples[1].Index != 2 {
		t.Errorf("written indexes = %d,%d, want 0,2", samples[0].Index, samples[1].Index)
	}
	if len(ext.calls) != 3 {
		t.Errorf("extract calls = %d, want 3 (siblings still run)", len(ext.calls))
	}
	if _, err := os.Stat(s.FramePath("/videos/a.mp4", 1)); !os.IsNotExist(err) {
		t.Error("partial output of the failed extraction should be removed")
	}
}
