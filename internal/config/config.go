package config

import (
	"errors"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
)

type Config struct {
	ListenAddr              string
	WhisperAPIURL           string
	FFmpegPath              string
	UploadDir               string
	OutputDir               string
	MaxUploadBytes          int64
	TranscodeTimeout        time.Duration
	TranscribeTimeout       time.Duration
	MaxConcurrentTranscodes int
	LogLevel                string
}

type envConfig struct {
	ListenAddr               string `env:"LISTEN_ADDR" envDefault:":5000"`
	WhisperAPIURL            string `env:"WHISPER_API_URL"`
	FFmpegPath               string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	UploadDir                string `env:"UPLOAD_DIR" envDefault:"uploads"`
	OutputDir                string `env:"OUTPUT_DIR" envDefault:"output"`
	MaxUploadBytes           int64  `env:"MAX_UPLOAD_BYTES" envDefault:"0"`
	TranscodeTimeoutSeconds  int    `env:"TRANSCODE_TIMEOUT_SECONDS" envDefault:"600"`
	TranscribeTimeoutSeconds int    `env:"TRANSCRIBE_TIMEOUT_SECONDS" envDefault:"900"`
	MaxConcurrentTranscodes  int    `env:"MAX_CONCURRENT_TRANSCODES" envDefault:"2"`
	LogLevel                 string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:              strings.TrimSpace(raw.ListenAddr),
		WhisperAPIURL:           strings.TrimRight(strings.TrimSpace(raw.WhisperAPIURL), "/"),
		FFmpegPath:              strings.TrimSpace(raw.FFmpegPath),
		UploadDir:               strings.TrimSpace(raw.UploadDir),
		OutputDir:               strings.TrimSpace(raw.OutputDir),
		MaxUploadBytes:          raw.MaxUploadBytes,
		TranscodeTimeout:        time.Duration(raw.TranscodeTimeoutSeconds) * time.Second,
		TranscribeTimeout:       time.Duration(raw.TranscribeTimeoutSeconds) * time.Second,
		MaxConcurrentTranscodes: raw.MaxConcurrentTranscodes,
		LogLevel:                strings.ToLower(strings.TrimSpace(raw.LogLevel)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks everything except WHISPER_API_URL, which may stay unset: the
// transcription client reports the missing endpoint per request instead.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.FFmpegPath == "" {
		return errors.New("FFMPEG_PATH must not be empty")
	}
	if c.UploadDir == "" {
		return errors.New("UPLOAD_DIR must not be empty")
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR must not be empty")
	}
	if c.MaxUploadBytes < 0 {
		return errors.New("MAX_UPLOAD_BYTES must be >= 0")
	}
	if c.TranscodeTimeout <= 0 {
		return errors.New("TRANSCODE_TIMEOUT_SECONDS must be > 0")
	}
	if c.TranscribeTimeout <= 0 {
		return errors.New("TRANSCRIBE_TIMEOUT_SECONDS must be > 0")
	}
	if c.MaxConcurrentTranscodes <= 0 {
		return errors.New("MAX_CONCURRENT_TRANSCODES must be > 0")
	}
	return nil
}
