package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oriane-labs/hearth/internal/memory"
)

// Config is the main configuration structure for the agent kernel.
type Config struct {
	Server       ServerConfig      `yaml:"server"`
	Database     DatabaseConfig    `yaml:"database"`
	Auth         AuthConfig        `yaml:"auth"`
	Session      SessionConfig     `yaml:"session"`
	Workspace    WorkspaceConfig   `yaml:"workspace"`
	Preferences  PreferencesConfig `yaml:"preferences"`
	VectorMemory memory.Config     `yaml:"vector_memory"`
	RAG          RAGConfig         `yaml:"rag"`
	LLM          LLMConfig         `yaml:"llm"`
	Tools        ToolsConfig       `yaml:"tools"`
	Scheduler    SchedulerConfig   `yaml:"scheduler"`
	Logging      LoggingConfig     `yaml:"logging"`
	Tracing      TracingConfig     `yaml:"tracing"`
	Artifact     ArtifactConfig    `yaml:"artifact"`
	Version      int               `yaml:"version"`
}

// ServerConfig controls the HTTP/WebSocket listener and metrics port.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig describes the session/RAG/memory store connection.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig controls bearer-token and API-key authentication for the
// WebSocket control plane.
type AuthConfig struct {
	JWTSecret   string         `yaml:"jwt_secret"`
	TokenExpiry time.Duration  `yaml:"token_expiry"`
	APIKeys     []APIKeyConfig `yaml:"api_keys"`
}

type APIKeyConfig struct {
	Key    string `yaml:"key"`
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
	Name   string `yaml:"name"`
}

// SessionConfig controls session lifecycle and scoping.
type SessionConfig struct {
	DefaultAgentID string             `yaml:"default_agent_id"`
	ContextPruning ContextPruningConfig `yaml:"context_pruning"`
	Scoping        SessionScopeConfig `yaml:"scoping"`
}

// SessionScopeConfig controls automatic session reset behavior.
type SessionScopeConfig struct {
	Reset ResetConfig `yaml:"reset"`
}

// ResetConfig controls when sessions are automatically reset.
type ResetConfig struct {
	// Mode is the reset mode: "daily", "idle", "daily+idle", or "never" (default).
	Mode string `yaml:"mode"`
	// AtHour is the hour (0-23) to reset sessions when mode includes "daily".
	AtHour int `yaml:"at_hour"`
	// IdleMinutes is the number of minutes of inactivity before reset when mode includes "idle".
	IdleMinutes int `yaml:"idle_minutes"`
}

// WorkspaceConfig locates the files the agent reads for its grounding context.
type WorkspaceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	MaxChars     int    `yaml:"max_chars"`
	IdentityFile string `yaml:"identity_file"`
	UserFile     string `yaml:"user_file"`
	ToolsFile    string `yaml:"tools_file"`
	MemoryFile   string `yaml:"memory_file"`
}

// PreferencesConfig holds the mutable agent/user identity shown in the UI
// and used to seed the system prompt. It mirrors pkg/models.Preferences
// and is the file-backed default loaded before any stored override.
type PreferencesConfig struct {
	AgentName           string `yaml:"agent_name"`
	AgentPersonality    string `yaml:"agent_personality"`
	AgentEmoji          string `yaml:"agent_emoji"`
	UserName            string `yaml:"user_name"`
	UserInfo            string `yaml:"user_info"`
	Language            string `yaml:"language"`
	OnboardingCompleted bool   `yaml:"onboarding_completed"`
	DefaultProvider     string `yaml:"default_provider"`
	DefaultModel        string `yaml:"default_model"`
	RAGOptimizerProvider string `yaml:"rag_optimizer_provider"`
	RAGOptimizerModel   string `yaml:"rag_optimizer_model"`
	Theme               string `yaml:"theme"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// ArtifactConfig controls where dashboard/automation artifacts produced by
// tool calls are persisted.
type ArtifactConfig struct {
	Backend         string        `yaml:"backend"` // "local" or "s3"
	LocalPath       string        `yaml:"local_path"`
	S3Bucket        string        `yaml:"s3_bucket"`
	S3Endpoint      string        `yaml:"s3_endpoint"`
	S3Region        string        `yaml:"s3_region"`
	S3Prefix        string        `yaml:"s3_prefix"`
	PruneInterval   time.Duration `yaml:"prune_interval"`
	MaxStorageSize  int64         `yaml:"max_storage_size"`
}

// Load reads and validates a configuration file, resolving $include
// directives and environment variable interpolation.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Auth.TokenExpiry == 0 {
		c.Auth.TokenExpiry = 24 * time.Hour
	}
	if c.Tools.Execution.MaxIterations == 0 {
		c.Tools.Execution.MaxIterations = 10
	}
	if c.Tools.Execution.Timeout == 0 {
		c.Tools.Execution.Timeout = 30 * time.Second
	}
	if c.Tools.Execution.Parallelism == 0 {
		c.Tools.Execution.Parallelism = 4
	}
	if c.Artifact.Backend == "" {
		c.Artifact.Backend = "local"
	}
	if c.Artifact.LocalPath == "" {
		c.Artifact.LocalPath = "./data/artifacts"
	}
}

// Validate checks the config for internally-inconsistent values.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Artifact.Backend == "s3" && c.Artifact.S3Bucket == "" {
		return fmt.Errorf("artifact.s3_bucket is required when artifact.backend is \"s3\"")
	}
	if provider := c.LLM.DefaultProvider; provider != "" {
		if _, ok := c.LLM.Providers[provider]; !ok {
			return fmt.Errorf("llm.default_provider %q has no matching entry under llm.providers", provider)
		}
	}
	return nil
}

// ExpandEnvInt parses an environment-variable-expanded integer, returning
// the fallback on empty input or parse failure.
func ExpandEnvInt(value string, fallback int) int {
	value = strings.TrimSpace(os.ExpandEnv(value))
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

// ResolvePath joins a path relative to the config file's directory when it
// is not already absolute.
func ResolvePath(configPath, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(configPath), path)
}
