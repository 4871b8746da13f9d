package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/orchestrator"
)

func TestWalk(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.mp4", "b.MKV", "notes.txt", "sub/c.avi", "sub/deeper/d.vob", "sub/e.jpg"} {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, seen, err := Walk(root, []string{".avi", "mp4", ".mkv", ".vob"})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if seen != 6 {
		t.Errorf("seen = %d, want 6", seen)
	}
	want := []string{"a.mp4", "b.MKV", "sub/c.avi", "sub/deeper/d.vob"}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i, w := range want {
		if files[i] != filepath.Join(root, w) {
			t.Errorf("files[%d] = %q, want %q", i, files[i], filepath.Join(root, w))
		}
	}
}

func TestWalkMissingRoot(t *testing.T) {
	_, _, err := Walk(filepath.Join(t.TempDir(), "missing"), []string{".mp4"})
	if err == nil {
		t.Error("expected an error for a missing root")
	}
}

// stubChecker flags paths containing "fake" and fails those containing "broken".
type stubChecker struct {
	mu    sync.Mutex
	order []string
}

func (s *stubChecker) IsFake(_ context.Context, path string) (*orchestrator.Verdict, error) {
	s.mu.Lock()
	s.order = append(s.order, path)
	s.mu.Unlock()
	if strings.Contains(path, "broken") {
		return nil, apperrors.New(apperrors.CodeFrameExtractionFailed, "ffmpeg failed")
	}
	fake := strings.Contains(path, "fake")
	v := &orchestrator.Verdict{Path: path, Fake: fake}
	if fake {
		v.Matches = []string{"/examples/ref.png"}
	}
	return v, nil
}

func TestRunnerContinuesPastErrors(t *testing.T) {
	paths := []string{"/v/fake1.mp4", "/v/broken.mp4", "/v/clean.mp4", "/v/fake2.mp4"}
	checker := &stubChecker{}
	r := NewRunner(checker, 0)

	var results []Result
	r.OnResult(func(res Result) { results = append(results, res) })

	sum, err := r.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := Summary{Total: 4, Fakes: 2, Clean: 1, Failed: 1}
	if sum != want {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}
	for i, p := range paths {
		if checker.order[i] != p {
			t.Errorf("sequential order[%d] = %q, want %q", i, checker.order[i], p)
		}
	}
	if len(results) != 4 || results[1].Err == nil {
		t.Errorf("results = %+v", results)
	}
}

func TestRunnerParallel(t *testing.T) {
	var paths []string
	for i := 0; i < 20; i++ {
		paths = append(paths, "/v/clean.mp4", "/v/fake.mp4")
	}
	sum, err := NewRunner(&stubChecker{}, 4).Run(context.Background(), paths)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Fakes != 20 || sum.Clean != 20 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checker := &stubChecker{}
	_, err := NewRunner(checker, 1).Run(ctx, []string{"/v/a.mp4", "/v/b.mp4"})
	if !apperrors.IsCode(err, apperrors.CodeCancelled) || !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want CANCELLED wrapping context.Canceled", err)
	}
	if len(checker.order) != 0 {
		t.Errorf("checked %d videos after cancellation", len(checker.order))
	}
}
