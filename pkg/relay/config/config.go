// Package config loads relay server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Absolute wss:// URL advertised in generated TwiML. Must be reachable
	// from Twilio, so it is usually the public address of this server.
	PublicWSURL string

	// Session defaults applied to every call.
	Interruptible bool
	DTMFDetection bool

	// TTS / STT settings forwarded into TwiML.
	TTSProvider           string
	Voice                 string
	TTSLanguage           string
	TranscriptionProvider string
	TranscriptionLanguage string
	SpeechModel           string
	WelcomeGreeting       string

	// WebSocket and shutdown tuning.
	HandshakeTimeout    time.Duration
	WriteTimeout        time.Duration
	ShutdownGracePeriod time.Duration
	MaxJSONMessageBytes int64

	// HTTP server defaults.
	ReadHeaderTimeout time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                  envOr("RELAY_ADDR", ":8080"),
		PublicWSURL:           envOr("RELAY_PUBLIC_WS_URL", ""),
		Interruptible:         envBoolOr("RELAY_INTERRUPTIBLE", true),
		DTMFDetection:         envBoolOr("RELAY_DTMF_DETECTION", false),
		TTSProvider:           envOr("RELAY_TTS_PROVIDER", "google"),
		Voice:                 envOr("RELAY_TTS_VOICE", "Google.en-US-Neural2-A"),
		TTSLanguage:           envOr("RELAY_TTS_LANGUAGE", ""),
		TranscriptionProvider: envOr("RELAY_TRANSCRIPTION_PROVIDER", "deepgram"),
		TranscriptionLanguage: envOr("RELAY_TRANSCRIPTION_LANGUAGE", "en-US"),
		SpeechModel:           envOr("RELAY_SPEECH_MODEL", ""),
		WelcomeGreeting:       envOr("RELAY_WELCOME_GREETING", ""),
		HandshakeTimeout:      envDurationOr("RELAY_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		WriteTimeout:          envDurationOr("RELAY_WS_WRITE_TIMEOUT", 5*time.Second),
		ShutdownGracePeriod:   envDurationOr("RELAY_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		MaxJSONMessageBytes:   envInt64Or("RELAY_MAX_JSON_MESSAGE_BYTES", 64*1024),
		ReadHeaderTimeout:     envDurationOr("RELAY_READ_HEADER_TIMEOUT", 10*time.Second),
	}

	if cfg.PublicWSURL != "" && !strings.HasPrefix(cfg.PublicWSURL, "wss://") && !strings.HasPrefix(cfg.PublicWSURL, "ws://") {
		return Config{}, fmt.Errorf("RELAY_PUBLIC_WS_URL must start with ws:// or wss://")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.WriteTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("RELAY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.MaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("RELAY_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_READ_HEADER_TIMEOUT must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
