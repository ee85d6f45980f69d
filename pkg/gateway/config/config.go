// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// Upstream model provider.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	AssistantID   string

	// Hosted toolset service; empty base URL disables it.
	ToolsetBaseURL string
	ToolsetAPIKey  string

	// MCP server subprocess; empty command disables it.
	MCPCommand       string
	MCPArgs          []string
	MCPCallTimeout   time.Duration
	MCPFireAndForget []string

	// Voice output.
	TTSAPIKey      string
	TTSVoice       string
	TTSModel       string
	MinSentenceLen int

	MaxBodyBytes int64

	// In-memory limits, per remote client.
	LimitRPS   float64
	LimitBurst int

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	WSWriteTimeout      time.Duration
	RunCancelTimeout    time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOXRELAY_ADDR", ":8080"),
		AuthMode:            AuthMode(envOr("VOXRELAY_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:             make(map[string]struct{}),
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:       envOr("VOXRELAY_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AssistantID:         strings.TrimSpace(os.Getenv("VOXRELAY_ASSISTANT_ID")),
		ToolsetBaseURL:      strings.TrimSpace(os.Getenv("VOXRELAY_TOOLSET_BASE_URL")),
		ToolsetAPIKey:       strings.TrimSpace(os.Getenv("VOXRELAY_TOOLSET_API_KEY")),
		MCPCommand:          strings.TrimSpace(os.Getenv("VOXRELAY_MCP_COMMAND")),
		MCPArgs:             splitCSV(os.Getenv("VOXRELAY_MCP_ARGS")),
		MCPCallTimeout:      envDurationOr("VOXRELAY_MCP_CALL_TIMEOUT", 30*time.Second),
		MCPFireAndForget:    splitCSV(os.Getenv("VOXRELAY_MCP_FIRE_AND_FORGET")),
		TTSAPIKey:           strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		TTSVoice:            strings.TrimSpace(os.Getenv("VOXRELAY_TTS_VOICE")),
		TTSModel:            envOr("VOXRELAY_TTS_MODEL", "eleven_flash_v2_5"),
		MinSentenceLen:      envIntOr("VOXRELAY_MIN_SENTENCE_LEN", 30),
		MaxBodyBytes:        envInt64Or("VOXRELAY_MAX_BODY_BYTES", 1<<20), // 1 MiB
		LimitRPS:            envFloat64Or("VOXRELAY_RATE_LIMIT_RPS", 2.0),
		LimitBurst:          envIntOr("VOXRELAY_RATE_LIMIT_BURST", 4),
		ReadHeaderTimeout:   envDurationOr("VOXRELAY_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("VOXRELAY_READ_TIMEOUT", 30*time.Second),
		WSWriteTimeout:      envDurationOr("VOXRELAY_WS_WRITE_TIMEOUT", 5*time.Second),
		RunCancelTimeout:    envDurationOr("VOXRELAY_RUN_CANCEL_TIMEOUT", 5*time.Second),
		ShutdownGracePeriod: envDurationOr("VOXRELAY_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("VOXRELAY_AUTH_MODE must be one of required|disabled")
	}

	for _, key := range splitCSV(os.Getenv("VOXRELAY_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if cfg.AssistantID == "" {
		return Config{}, fmt.Errorf("VOXRELAY_ASSISTANT_ID must be set")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("VOXRELAY_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MinSentenceLen <= 0 {
		return Config{}, fmt.Errorf("VOXRELAY_MIN_SENTENCE_LEN must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("VOXRELAY_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("VOXRELAY_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.MCPCallTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXRELAY_MCP_CALL_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXRELAY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXRELAY_READ_TIMEOUT must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXRELAY_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.RunCancelTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXRELAY_RUN_CANCEL_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOXRELAY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.TTSAPIKey != "" && cfg.TTSVoice == "" {
		return Config{}, fmt.Errorf("VOXRELAY_TTS_VOICE must be set when ELEVENLABS_API_KEY is set")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("VOXRELAY_API_KEYS must be set when VOXRELAY_AUTH_MODE=required")
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

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
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

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
