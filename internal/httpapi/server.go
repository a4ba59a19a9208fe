package httpapi

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"subrelay/internal/config"
	"subrelay/internal/model"
	"subrelay/internal/pipeline"
	"subrelay/internal/subtitles"
	"subrelay/internal/transcode"
	"subrelay/internal/upstream/whisper"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

//go:embed static/index.html
var staticFS embed.FS

type PipelineService interface {
	Process(ctx context.Context, job pipeline.Job) (string, error)
}

type ArtifactStore interface {
	Open(handle string) (io.ReadCloser, int64, error)
	Remove(handle string) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
}

type Dependencies struct {
	Pipeline       PipelineService
	Store          ArtifactStore
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	pipeline     PipelineService
	store        ArtifactStore
	metrics      MetricsObserver
	metricsRoute http.Handler
	now          func() time.Time
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
	maxFieldBytes    = 4 << 10
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Pipeline == nil || deps.Store == nil {
		panic("httpapi: pipeline and store dependencies are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		pipeline:     deps.Pipeline,
		store:        deps.Store,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
		now:          time.Now,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealthz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Post("/process_audio", s.handleProcessAudio)
	r.Get("/download_file/{folder}/{filename}", s.handleDownloadFile)

	return r
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "index page unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	form, err := s.readProcessForm(r)
	if err != nil {
		s.handleUploadReadError(w, r, err)
		return
	}
	if form.uploadPath == "" {
		s.writeError(w, r, http.StatusBadRequest, "No audioFile part in the request")
		return
	}

	handle, err := s.pipeline.Process(r.Context(), pipeline.Job{
		UploadPath:   form.uploadPath,
		OriginalName: form.originalName,
		ModelName:    form.modelName,
		Language:     form.language,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ProcessResponse{
		Message:      "File processed successfully",
		DownloadPath: "/download_file/" + handle,
	})
}

type processForm struct {
	uploadPath   string
	originalName string
	modelName    string
	language     string
}

// readProcessForm streams the multipart body part by part so the upload goes
// straight to the staging directory without being buffered whole. The staged
// name is prefixed with the request's unix-millisecond timestamp, keeping
// concurrent uploads of distinct files apart on disk.
func (s *server) readProcessForm(r *http.Request) (processForm, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return processForm{}, err
	}

	var form processForm
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			s.discardStagedUpload(form.uploadPath)
			return processForm{}, err
		}

		switch part.FormName() {
		case "audioFile":
			name := filepath.Base(strings.TrimSpace(part.FileName()))
			if name == "" || name == "." || form.uploadPath != "" {
				_ = part.Close()
				continue
			}
			staged := filepath.Join(s.cfg.UploadDir, fmt.Sprintf("%d-%s", s.now().UnixMilli(), name))
			if err := saveUploadPart(staged, part); err != nil {
				_ = part.Close()
				s.discardStagedUpload(staged)
				return processForm{}, err
			}
			form.uploadPath = staged
			form.originalName = name
		case "modelName":
			form.modelName = readFieldValue(part)
		case "language":
			form.language = readFieldValue(part)
		}
		_ = part.Close()
	}
}

func saveUploadPart(dest string, part *multipart.Part) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, part); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readFieldValue(part *multipart.Part) string {
	value, _ := io.ReadAll(io.LimitReader(part, maxFieldBytes))
	return strings.TrimSpace(string(value))
}

func (s *server) discardStagedUpload(staged string) {
	if staged == "" {
		return
	}
	if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("cleanup failed", "path", staged, "error", err)
	}
}

func (s *server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	filename := chi.URLParam(r, "filename")
	handle := path.Join(folder, filename)

	rc, size, err := s.store.Open(handle)
	if err != nil {
		if errors.Is(err, subtitles.ErrNotFound) {
			s.writeError(w, r, http.StatusNotFound, "File not found.")
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, "Error downloading file.")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/x-subrip")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	written, err := io.Copy(w, rc)
	if err != nil || written != size {
		// Keep the artifact so the client can retry the download.
		s.logger.Warn("download transfer incomplete", "handle", handle, "written", written, "error", err)
		return
	}

	if err := s.store.Remove(handle); err != nil {
		s.logger.Warn("cleanup failed", "path", handle, "error", err)
	}
}

func (s *server) handleUploadReadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("request exceeds %d bytes", s.cfg.MaxUploadBytes))
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid multipart form data")
}

func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var validationErr *pipeline.ValidationError
	var backendErr *whisper.Error
	var contractErr *whisper.ContractError
	var transcodeErr *transcode.Error
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &backendErr), errors.As(err, &contractErr):
		status = http.StatusBadGateway
	case errors.As(err, &transcodeErr), errors.Is(err, whisper.ErrNotConfigured):
		status = http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = 499
	}

	s.writeError(w, r, status, err.Error())
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{Error: message})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func newRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
