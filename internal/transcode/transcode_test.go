package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeRunner struct {
	name   string
	args   []string
	output string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.name = name
	f.args = args
	if f.err == nil {
		// ffmpeg writes the destination file, which is always the last arg.
		if err := os.WriteFile(args[len(args)-1], []byte("mp3"), 0o644); err != nil {
			return "", err
		}
	}
	return f.output, f.err
}

func TestExtractWritesMP3AndBuildsArgs(t *testing.T) {
	runner := &fakeRunner{}
	tr := New("ffmpeg", 2, time.Minute, withRunner(runner))

	destDir := filepath.Join(t.TempDir(), "scratch")
	mp3Path, err := tr.Extract(context.Background(), "/in/lecture.mp4", destDir, "1724-lecture")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if mp3Path != filepath.Join(destDir, "1724-lecture.mp3") {
		t.Fatalf("unexpected mp3 path: %q", mp3Path)
	}
	if _, err := os.Stat(mp3Path); err != nil {
		t.Fatalf("mp3 file missing: %v", err)
	}
	if runner.name != "ffmpeg" {
		t.Fatalf("unexpected binary: %q", runner.name)
	}

	joined := strings.Join(runner.args, " ")
	for _, want := range []string{"-i /in/lecture.mp4", "-vn", "-c:a libmp3lame"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %v", want, runner.args)
		}
	}
	if runner.args[len(runner.args)-1] != mp3Path {
		t.Fatalf("destination must be the last arg: %v", runner.args)
	}
}

func TestExtractPreservesToolOutputOnFailure(t *testing.T) {
	runner := &fakeRunner{output: "moov atom not found", err: errors.New("exit status 1")}
	tr := New("ffmpeg", 1, time.Minute, withRunner(runner))

	_, err := tr.Extract(context.Background(), "/in/broken.mp4", t.TempDir(), "broken")
	if err == nil {
		t.Fatal("expected error")
	}
	var tErr *Error
	if !errors.As(err, &tErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !strings.Contains(tErr.Error(), "moov atom not found") {
		t.Fatalf("tool output not preserved: %q", tErr.Error())
	}
}

func TestExtractReturnsContextErrorWhenCanceled(t *testing.T) {
	runner := &fakeRunner{err: errors.New("signal: killed")}
	tr := New("ffmpeg", 1, time.Minute, withRunner(runner))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Extract(ctx, "/in/slow.mp4", t.TempDir(), "slow")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
