// Package config provides the layered configuration shared by the
// interpreter service and the agent CLI.
//
// Configuration is loaded in this order, later layers winning:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (DATASCI_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all datasci configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Interpreter   InterpreterConfig   `yaml:"interpreter"`
	Executor      ExecutorConfig      `yaml:"executor"`
	Agent         AgentConfig         `yaml:"agent"`
	Model         ModelConfig         `yaml:"model"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds interpreter service HTTP settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 15m
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MiB
	MCP             bool          `yaml:"mcp"`              // serve /mcp, default: true
}

// InterpreterConfig holds execution limits of the in-process backend.
type InterpreterConfig struct {
	DefaultTimeout  time.Duration `yaml:"default_timeout"`  // default: 30s
	MaxTimeout      time.Duration `yaml:"max_timeout"`      // default: 5m
	MaxOutputBytes  int           `yaml:"max_output_bytes"` // per stream, default: 64 KiB
	SessionTTL      time.Duration `yaml:"session_ttl"`      // idle eviction, 0 disables, default: 1h
	JanitorInterval time.Duration `yaml:"janitor_interval"` // default: 1m
	MaxConcurrent   int           `yaml:"max_concurrent"`   // default: 8
	OutputRoot      string        `yaml:"output_root"`      // default: system temp dir
	DrainGrace      time.Duration `yaml:"drain_grace"`      // wait for timed out code to stop, default: 2s
}

// ExecutorConfig selects the code execution backend.
type ExecutorConfig struct {
	Backend    string        `yaml:"backend"` // "local" or "remote", default: "local"
	URL        string        `yaml:"url"`     // interpreter service for "remote"
	APIKey     string        `yaml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file"`
	Sandbox    SandboxConfig `yaml:"sandbox"`
}

// SandboxConfig enables SandboxClaim acquisition for the remote backend.
// When Template is empty, URL is used for every session.
type SandboxConfig struct {
	Template     string        `yaml:"template"`
	Namespace    string        `yaml:"namespace"`     // default: "default"
	ClaimTimeout time.Duration `yaml:"claim_timeout"` // default: 2m
	Port         int           `yaml:"port"`          // default: 8080
}

// AgentConfig holds ReAct loop settings.
type AgentConfig struct {
	MaxIterations          int           `yaml:"max_iterations"`            // default: 20
	MaxModelErrors         int           `yaml:"max_model_errors"`          // default: 3
	ExecTimeout            time.Duration `yaml:"exec_timeout"`              // default: interpreter default
	MaxObservationChars    int           `yaml:"max_observation_chars"`     // default: 10000
	ExecuteFinalAnswerCode bool          `yaml:"execute_final_answer_code"` // default: false
	SystemPromptFile       string        `yaml:"system_prompt_file"`
}

// ModelConfig holds the OpenAI-compatible model backend.
type ModelConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	APIKeyFile  string        `yaml:"api_key_file"`
	Name        string        `yaml:"name"`
	Temperature *float64      `yaml:"temperature"`
	MaxTokens   *int          `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"` // default: 120s
}

// StorageConfig holds persistence of finished runs.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // memory store, default: 1000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`
	MaxConns       int32  `yaml:"max_conns"` // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// AuthConfig holds interpreter service authentication.
type AuthConfig struct {
	Type      string          `yaml:"type"` // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string   `yaml:"key" json:"key"`
	KeyFile     string   `yaml:"key_file" json:"key_file"`
	Subject     string   `yaml:"subject" json:"subject"`
	ServiceTier string   `yaml:"service_tier" json:"service_tier"`
	Scopes      []string `yaml:"scopes" json:"scopes"` // default: all
}

// JWTConfig configures bearer JWT validation.
type JWTConfig struct {
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	JWKSURL       string   `yaml:"jwks_url"`
	SubjectClaim  string   `yaml:"subject_claim"`
	TierClaim     string   `yaml:"tier_claim"`
	ScopesClaim   string   `yaml:"scopes_claim"`
	DefaultScopes []string `yaml:"default_scopes"`
}

// RateLimitConfig limits requests per subject. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int            `yaml:"requests_per_minute"`
	Tiers             map[string]int `yaml:"tiers"`
}

// LoggingConfig configures slog and debug categories.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "INFO"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma separated debug categories
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    15 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     10 << 20,
			MCP:             true,
		},
		Interpreter: InterpreterConfig{
			DefaultTimeout:  30 * time.Second,
			MaxTimeout:      5 * time.Minute,
			MaxOutputBytes:  64 << 10,
			SessionTTL:      time.Hour,
			JanitorInterval: time.Minute,
			MaxConcurrent:   8,
			DrainGrace:      2 * time.Second,
		},
		Executor: ExecutorConfig{
			Backend: "local",
			Sandbox: SandboxConfig{
				Namespace:    "default",
				ClaimTimeout: 2 * time.Minute,
				Port:         8080,
			},
		},
		Agent: AgentConfig{
			MaxIterations:       20,
			MaxModelErrors:      3,
			MaxObservationChars: 10000,
		},
		Model: ModelConfig{
			Timeout: 120 * time.Second,
		},
		Storage: StorageConfig{
			Type:     "memory",
			MaxSize:  1000,
			Postgres: PostgresConfig{MaxConns: 10},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}
}
