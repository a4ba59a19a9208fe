package whisper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTranscribeSendsMultipartAndParsesSRT(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		if r.FormValue("modelName") != "small" {
			t.Fatalf("unexpected modelName: %q", r.FormValue("modelName"))
		}
		if r.FormValue("language") != "en" {
			t.Fatalf("unexpected language: %q", r.FormValue("language"))
		}
		file, header, err := r.FormFile("audioFile")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer file.Close()
		if header.Filename != "lecture.mp3" {
			t.Fatalf("unexpected file name: %q", header.Filename)
		}
		body, _ := io.ReadAll(file)
		if string(body) != "audio-bytes" {
			t.Fatalf("unexpected file body: %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"srtContent":"1\n00:00:00,000 --> 00:00:02,000\nHello\n"}`)
	}))
	defer ts.Close()

	c := New(ts.URL, ts.Client(), time.Minute)
	text, err := c.Transcribe(context.Background(), strings.NewReader("audio-bytes"), "lecture.mp3", "small", "en")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if !strings.Contains(text, "Hello") {
		t.Fatalf("unexpected subtitle text: %q", text)
	}
}

func TestTranscribeMissingSRTContentIsContractError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer ts.Close()

	c := New(ts.URL, ts.Client(), time.Minute)
	_, err := c.Transcribe(context.Background(), strings.NewReader("audio"), "a.mp3", "small", "en")
	var contractErr *ContractError
	if !errors.As(err, &contractErr) {
		t.Fatalf("expected *ContractError, got %v", err)
	}
}

func TestTranscribeReturnsBackendError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := New(ts.URL, ts.Client(), time.Minute)
	_, err := c.Transcribe(context.Background(), strings.NewReader("audio"), "a.mp3", "small", "en")
	var backendErr *Error
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if backendErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", backendErr.StatusCode)
	}
	if backendErr.Body != "model not loaded" {
		t.Fatalf("unexpected body: %q", backendErr.Body)
	}
}

func TestTranscribeFailsFastWhenUnconfigured(t *testing.T) {
	c := New("", nil, time.Minute)
	_, err := c.Transcribe(context.Background(), strings.NewReader("audio"), "a.mp3", "small", "en")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
