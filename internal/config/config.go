// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names an oracle backend.
type Provider string

const (
	ProviderNone      Provider = "none"
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderGRPC      Provider = "grpc"
)

// Transport names a serving mode.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable-http"
	TransportREST           Transport = "rest"
)

// Config holds all application configuration.
type Config struct {
	DBPath     string
	Transport  Transport
	Host       string
	Port       int
	SessionTTL time.Duration // 0 disables idle retention
	RateLimit  int           // requests per minute per client
	LogLevel   slog.Level
	// AllowedOrigins lists browser origins for CORS and the tool socket.
	// Empty means CORS "*" and same-origin websockets only.
	AllowedOrigins []string
	Oracle         OracleConfig
	Triggers       TriggerConfig
}

// OracleConfig selects and configures the scoring oracle.
type OracleConfig struct {
	Provider   Provider
	Model      string
	EmbedModel string
	APIKey     string
	APIBase    string
	GRPCAddr   string
	Timeout    time.Duration
}

// TriggerConfig holds extra tier trigger phrases appended to the built-in lists.
type TriggerConfig struct {
	Consequential []string `yaml:"consequential"`
	Standard      []string `yaml:"standard"`
}

// fileConfig is the YAML overlay named by DRAFT_CONFIG. Empty values leave env settings alone.
type fileConfig struct {
	DBPath         string   `yaml:"db_path"`
	Transport      string   `yaml:"transport"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	SessionTTL     string   `yaml:"session_ttl"`
	RateLimit      int      `yaml:"rate_limit"`
	LogLevel       string   `yaml:"log_level"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Oracle         struct {
		Provider   string `yaml:"provider"`
		Model      string `yaml:"model"`
		EmbedModel string `yaml:"embed_model"`
		APIBase    string `yaml:"api_base"`
		GRPCAddr   string `yaml:"grpc_addr"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"oracle"`
	Triggers TriggerConfig `yaml:"triggers"`
}

// Load reads configuration from environment variables and the optional YAML overlay.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:         expandHome(getEnv("DRAFT_DB_PATH", defaultDBPath())),
		Transport:      Transport(strings.ToLower(getEnv("DRAFT_TRANSPORT", string(TransportStdio)))),
		Host:           getEnv("DRAFT_HOST", "127.0.0.1"),
		Port:           getEnvInt("DRAFT_PORT", 8420),
		SessionTTL:     getEnvDuration("DRAFT_SESSION_TTL", 0),
		RateLimit:      getEnvInt("DRAFT_RATE_LIMIT", 120),
		LogLevel:       parseLevel(getEnv("DRAFT_LOG_LEVEL", "info")),
		AllowedOrigins: splitList(getEnv("DRAFT_ALLOWED_ORIGINS", "")),
		Oracle: OracleConfig{
			Provider:   Provider(strings.ToLower(getEnv("DRAFT_LLM_PROVIDER", string(ProviderNone)))),
			Model:      getEnv("DRAFT_LLM_MODEL", ""),
			EmbedModel: getEnv("DRAFT_EMBED_MODEL", ""),
			APIKey:     getEnv("DRAFT_API_KEY", ""),
			APIBase:    getEnv("DRAFT_API_BASE", getEnv("DRAFT_OLLAMA_URL", "")),
			GRPCAddr:   getEnv("DRAFT_GRPC_ADDR", ""),
			Timeout:    getEnvDuration("DRAFT_ORACLE_TIMEOUT", 30*time.Second),
		},
	}

	if path := getEnv("DRAFT_CONFIG", ""); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Oracle.Provider = cfg.Oracle.ResolveProvider()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.DBPath != "" {
		c.DBPath = expandHome(fc.DBPath)
	}
	if fc.Transport != "" {
		c.Transport = Transport(strings.ToLower(fc.Transport))
	}
	if fc.Host != "" {
		c.Host = fc.Host
	}
	if fc.Port != 0 {
		c.Port = fc.Port
	}
	if fc.SessionTTL != "" {
		d, err := time.ParseDuration(fc.SessionTTL)
		if err != nil {
			return fmt.Errorf("parse session_ttl: %w", err)
		}
		c.SessionTTL = d
	}
	if fc.RateLimit != 0 {
		c.RateLimit = fc.RateLimit
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLevel(fc.LogLevel)
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.Oracle.Provider != "" {
		c.Oracle.Provider = Provider(strings.ToLower(fc.Oracle.Provider))
	}
	if fc.Oracle.Model != "" {
		c.Oracle.Model = fc.Oracle.Model
	}
	if fc.Oracle.EmbedModel != "" {
		c.Oracle.EmbedModel = fc.Oracle.EmbedModel
	}
	if fc.Oracle.APIBase != "" {
		c.Oracle.APIBase = fc.Oracle.APIBase
	}
	if fc.Oracle.GRPCAddr != "" {
		c.Oracle.GRPCAddr = fc.Oracle.GRPCAddr
	}
	if fc.Oracle.Timeout != "" {
		d, err := time.ParseDuration(fc.Oracle.Timeout)
		if err != nil {
			return fmt.Errorf("parse oracle timeout: %w", err)
		}
		c.Oracle.Timeout = d
	}
	c.Triggers.Consequential = append(c.Triggers.Consequential, fc.Triggers.Consequential...)
	c.Triggers.Standard = append(c.Triggers.Standard, fc.Triggers.Standard...)
	return nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DRAFT_DB_PATH cannot be empty")
	}
	switch c.Transport {
	case TransportStdio, TransportSSE, TransportStreamableHTTP, TransportREST:
	default:
		return fmt.Errorf("DRAFT_TRANSPORT must be one of stdio, sse, streamable-http, rest (got %q)", c.Transport)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("DRAFT_PORT must be in 1..65535")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("DRAFT_SESSION_TTL must be >= 0")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("DRAFT_RATE_LIMIT must be > 0")
	}
	return c.Oracle.Validate()
}

// Validate checks the oracle settings for the selected provider.
func (o OracleConfig) Validate() error {
	switch o.Provider {
	case ProviderNone, ProviderOllama:
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		if o.APIKey == "" {
			return fmt.Errorf("DRAFT_API_KEY is required for provider %s", o.Provider)
		}
	case ProviderGRPC:
		if o.GRPCAddr == "" {
			return fmt.Errorf("DRAFT_GRPC_ADDR is required for provider grpc")
		}
	default:
		return fmt.Errorf("unknown DRAFT_LLM_PROVIDER %q", o.Provider)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("DRAFT_ORACLE_TIMEOUT must be > 0")
	}
	return nil
}

// ResolveProvider auto-detects the provider from the model name when none is set.
func (o OracleConfig) ResolveProvider() Provider {
	if o.Provider != "" && o.Provider != ProviderNone {
		return o.Provider
	}
	if o.Model == "" {
		return ProviderNone
	}
	m := strings.ToLower(o.Model)
	switch {
	case strings.Contains(m, "gpt") || strings.Contains(m, "o1") || strings.Contains(m, "o3"):
		return ProviderOpenAI
	case strings.Contains(m, "claude"):
		return ProviderAnthropic
	case strings.Contains(m, "gemini"):
		return ProviderGemini
	default:
		return ProviderOllama
	}
}

// Addr returns the listen address for network transports.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".draft_protocol", "draft.db")
	}
	return filepath.Join(home, ".draft_protocol", "draft.db")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
