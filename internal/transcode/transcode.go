package transcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

type Error struct {
	Output string
	Err    error
}

func (e *Error) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("ffmpeg audio extraction failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg audio extraction failed: %s", e.Output)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ObserverFunc func(success bool, duration time.Duration)

type Option func(*Transcoder)

type runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(output)), err
}

type Transcoder struct {
	ffmpegPath string
	runner     runner
	sem        *semaphore.Weighted
	timeout    time.Duration
	observer   ObserverFunc
}

func WithObserver(observer ObserverFunc) Option {
	return func(t *Transcoder) {
		t.observer = observer
	}
}

func withRunner(r runner) Option {
	return func(t *Transcoder) {
		t.runner = r
	}
}

func New(ffmpegPath string, maxConcurrent int64, timeout time.Duration, opts ...Option) *Transcoder {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	t := &Transcoder{
		ffmpegPath: ffmpegPath,
		runner:     execRunner{},
		sem:        semaphore.NewWeighted(maxConcurrent),
		timeout:    timeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Extract strips the video stream from sourcePath and writes an MP3 file named
// destBaseName.mp3 under destDir, creating destDir if needed. Concurrent
// extractions are bounded; waiting for a slot respects ctx cancellation.
func (t *Transcoder) Extract(ctx context.Context, sourcePath, destDir, destBaseName string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	mp3Path := filepath.Join(destDir, destBaseName+".mp3")

	if err := t.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer t.sem.Release(1)

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	started := time.Now()
	output, err := t.runner.Run(ctx, t.ffmpegPath, buildExtractArgs(sourcePath, mp3Path)...)
	if t.observer != nil {
		t.observer(err == nil, time.Since(started))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &Error{Output: output, Err: err}
	}

	if _, err := os.Stat(mp3Path); err != nil {
		return "", &Error{Output: "ffmpeg completed but output file is missing", Err: err}
	}
	return mp3Path, nil
}

func buildExtractArgs(sourcePath, mp3Path string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-loglevel", "error",
		"-i", sourcePath,
		"-vn",
		"-c:a", "libmp3lame",
		mp3Path,
	}
}
