package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned before any I/O when no backend URL is set.
var ErrNotConfigured = errors.New("whisper backend URL is not configured (set WHISPER_API_URL)")

type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("whisper backend request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("whisper backend request failed with status %d: %s", e.StatusCode, e.Body)
}

// ContractError reports a 200 response that does not carry subtitle content.
type ContractError struct {
	Body string
}

func (e *ContractError) Error() string {
	return "whisper backend response did not include srtContent"
}

type ObserverFunc func(status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	observer   ObserverFunc
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func New(baseURL string, httpClient *http.Client, timeout time.Duration, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
		timeout:    timeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Transcribe uploads the audio stream together with the model name and language
// and returns the subtitle text. The multipart body is streamed through a pipe so
// large files are never buffered in memory. A single attempt, no retries.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, fileName, modelName, language string) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	statusCode := 0
	defer func() { c.observe(statusCode, time.Since(started)) }()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeTranscribeBody(writer, audio, fileName, modelName, language))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(respBody))}
	}

	var parsed struct {
		SRTContent string `json:"srtContent"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.SRTContent == "" {
		return "", &ContractError{Body: truncateBody(string(respBody))}
	}
	return parsed.SRTContent, nil
}

func writeTranscribeBody(writer *multipart.Writer, audio io.Reader, fileName, modelName, language string) error {
	if err := writer.WriteField("modelName", modelName); err != nil {
		return err
	}
	if err := writer.WriteField("language", language); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("audioFile", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return err
	}
	return writer.Close()
}

func (c *Client) observe(status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(status, duration)
	}
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
