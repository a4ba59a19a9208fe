package pipeline

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"subrelay/internal/media"
)

const scratchDirName = "temp_converted_audio"

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type Transcoder interface {
	Extract(ctx context.Context, sourcePath, destDir, destBaseName string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, fileName, modelName, language string) (string, error)
}

type ArtifactStore interface {
	Save(baseName, text string) (string, error)
}

type Job struct {
	UploadPath   string
	OriginalName string
	ModelName    string
	Language     string
}

type Option func(*Service)

type Service struct {
	transcoder       Transcoder
	transcriber      Transcriber
	store            ArtifactStore
	uploadRoot       string
	logger           *slog.Logger
	onCleanupFailure func()
}

func WithCleanupObserver(fn func()) Option {
	return func(s *Service) {
		s.onCleanupFailure = fn
	}
}

func New(transcoder Transcoder, transcriber Transcriber, store ArtifactStore, uploadRoot string, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		transcoder:  transcoder,
		transcriber: transcriber,
		store:       store,
		uploadRoot:  uploadRoot,
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Process runs one upload through classification, optional transcoding,
// transcription, and persistence, and returns the retrieval handle. Temporary
// artifacts are cleaned up on every path; cleanup failures are logged and
// counted, never surfaced.
func (s *Service) Process(ctx context.Context, job Job) (string, error) {
	var mp3Path string
	defer func() {
		s.cleanup(mp3Path, job.UploadPath)
	}()

	if strings.TrimSpace(job.ModelName) == "" || strings.TrimSpace(job.Language) == "" {
		return "", &ValidationError{Message: "Missing model name or language"}
	}

	cls := media.Classify(job.OriginalName)
	if !cls.IsAccepted {
		return "", &ValidationError{Message: "Unsupported file extension: " + filepath.Ext(job.OriginalName)}
	}

	audioPath := job.UploadPath
	if cls.IsVideo {
		// The staged name carries the per-request timestamp prefix, so the
		// derived MP3 cannot collide with a concurrent upload's.
		scratchDir := filepath.Join(s.uploadRoot, scratchDirName)
		converted, err := s.transcoder.Extract(ctx, job.UploadPath, scratchDir, media.BaseName(job.UploadPath))
		if err != nil {
			return "", err
		}
		mp3Path = converted
		audioPath = converted
	}

	audio, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	text, err := s.transcriber.Transcribe(ctx, audio, filepath.Base(audioPath), job.ModelName, job.Language)
	_ = audio.Close()
	if err != nil {
		return "", err
	}

	handle, err := s.store.Save(media.BaseName(job.OriginalName), text)
	if err != nil {
		return "", err
	}
	return handle, nil
}

func (s *Service) cleanup(mp3Path, uploadPath string) {
	if mp3Path != "" {
		s.removeFile(mp3Path)
		s.removeDirIfEmpty(filepath.Dir(mp3Path))
	}
	if uploadPath != "" {
		s.removeFile(uploadPath)
	}
}

func (s *Service) removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.reportCleanupFailure(path, err)
	}
}

func (s *Service) removeDirIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.reportCleanupFailure(dir, err)
		}
		return
	}
	if len(entries) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil {
		s.reportCleanupFailure(dir, err)
	}
}

func (s *Service) reportCleanupFailure(path string, err error) {
	s.logger.Warn("cleanup failed", "path", path, "error", err)
	if s.onCleanupFailure != nil {
		s.onCleanupFailure()
	}
}
