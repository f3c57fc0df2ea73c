// Package config provides configuration types for the bridge gateway.
//
// Configuration is intentionally small: the gateway keeps no persisted
// state (§6 "Persisted state: None" of the design), so there is no
// database, audit store, or multi-tenant section here — only the
// listener, the agent subprocess, the demo credential pair, rate
// limiting, and CORS.
package config

import (
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for acpgate.
type Config struct {
	// Server configures the WebSocket/HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Agent configures how the ACP agent subprocess is discovered and spawned.
	Agent AgentConfig `yaml:"agent" mapstructure:"agent"`

	// Auth configures the static demo credential pair and bridge token signing.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// RateLimit configures per-IP connection-attempt rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// CORS configures the allowed origin for the WebSocket upgrade and auth endpoints.
	CORS CORSConfig `yaml:"cors" mapstructure:"cors"`

	// Policy configures the permission-bridge rule list consulted when an
	// agent's session/request_permission omits its own option list.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// DevMode relaxes validation so the gateway can run with a minimal config.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP/WebSocket server.
type ServerConfig struct {
	// Host is the interface to bind to. Defaults to "127.0.0.1".
	Host string `yaml:"host" mapstructure:"host" validate:"omitempty,hostname|ip"`

	// Port is the TCP port to listen on. Defaults to 8787.
	Port int `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`

	// LogLevel sets the minimum slog level. Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// HeartbeatInterval is the frame-level liveness ping interval. Defaults to 25s.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" mapstructure:"heartbeat_interval"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	host := s.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := s.Port
	if port == 0 {
		port = 8787
	}
	return host + ":" + strconv.Itoa(port)
}

// AgentConfig configures the ACP agent subprocess.
type AgentConfig struct {
	// Binary is an explicit path to the agent executable. When empty, BinaryProbePaths
	// is searched, falling back to the bare name "acp" on PATH.
	Binary string `yaml:"binary" mapstructure:"binary"`

	// BinaryProbePaths is a fixed list of filesystem paths to probe before falling
	// back to PATH resolution.
	BinaryProbePaths []string `yaml:"binary_probe_paths" mapstructure:"binary_probe_paths"`

	// ExtraArgs are appended after the fixed "acp --print-logs" argument vector.
	ExtraArgs []string `yaml:"extra_args" mapstructure:"extra_args"`

	// DefaultModel is used when session/new omits a model hint.
	DefaultModel string `yaml:"default_model" mapstructure:"default_model"`

	// SpawnTimeout bounds the initialize+session/new handshake. Defaults to 30s.
	SpawnTimeout time.Duration `yaml:"spawn_timeout" mapstructure:"spawn_timeout"`

	// KillGrace is the delay between SIGTERM and SIGKILL on teardown. Defaults to 5s.
	KillGrace time.Duration `yaml:"kill_grace" mapstructure:"kill_grace"`
}

// AuthConfig configures the static demo identity and bridge token signing.
type AuthConfig struct {
	// Username is the single demo identity's login name.
	Username string `yaml:"username" mapstructure:"username"`

	// PasswordHash is the argon2id hash of the demo password (see `acpgate hash-token`).
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash"`

	// JWTSecret signs bridge bearer tokens. Required outside DevMode.
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret" validate:"omitempty,min=16"`

	// JWTExpiresIn is the bridge token lifetime. Defaults to 1h.
	JWTExpiresIn time.Duration `yaml:"jwt_expires_in" mapstructure:"jwt_expires_in"`

	// RefreshGrace is how long past expiry a token may still be refreshed.
	// Defaults to 24h.
	RefreshGrace time.Duration `yaml:"refresh_grace" mapstructure:"refresh_grace"`
}

// RateLimitConfig configures connection-attempt rate limiting.
type RateLimitConfig struct {
	// Max is the maximum number of connection attempts per window. Defaults to 100.
	Max int `yaml:"max" mapstructure:"max" validate:"omitempty,min=1"`

	// WindowMS is the rate limit window in milliseconds. Defaults to 60000.
	WindowMS int `yaml:"window_ms" mapstructure:"window_ms" validate:"omitempty,min=1"`
}

// CORSConfig configures the allowed origin for cross-origin requests.
type CORSConfig struct {
	// Origin is the allowed Origin header value, or "*" for any origin. Defaults to "*".
	Origin string `yaml:"origin" mapstructure:"origin"`
}

// PolicyRuleConfig is one ordered rule entry, loaded into a policy.Rule.
type PolicyRuleConfig struct {
	// Name identifies the rule in logs and decisions.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Priority orders evaluation; lower runs first.
	Priority int `yaml:"priority" mapstructure:"priority"`

	// ToolMatch is a glob (path/filepath.Match syntax) against the tool call's
	// name. Empty matches every tool.
	ToolMatch string `yaml:"tool_match" mapstructure:"tool_match"`

	// Condition is a CEL expression over tool_call.name, tool_call.arguments,
	// and session.roles. Empty means the rule matches unconditionally once
	// ToolMatch matches.
	Condition string `yaml:"condition" mapstructure:"condition"`

	// Action is "allow" or "deny".
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=allow deny"`
}

// PolicyConfig configures the permission-bridge's CEL rule list.
type PolicyConfig struct {
	// Rules is the ordered rule list. An empty list disables auto-decisions:
	// session/request_permission always falls back to the agent's own
	// options, or the gateway's default set when the agent sent none.
	Rules []PolicyRuleConfig `yaml:"rules" mapstructure:"rules" validate:"dive"`
}

// SetDefaults applies sensible zero-value defaults.
// Must run before Validate so omitted-but-required fields are satisfied.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8787
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.HeartbeatInterval == 0 {
		c.Server.HeartbeatInterval = 25 * time.Second
	}

	if c.Agent.DefaultModel == "" {
		c.Agent.DefaultModel = "default"
	}
	if c.Agent.SpawnTimeout == 0 {
		c.Agent.SpawnTimeout = 30 * time.Second
	}
	if c.Agent.KillGrace == 0 {
		c.Agent.KillGrace = 5 * time.Second
	}
	if len(c.Agent.BinaryProbePaths) == 0 {
		c.Agent.BinaryProbePaths = []string{
			"/usr/local/bin/acp",
			"/usr/bin/acp",
			"/opt/acp/bin/acp",
		}
	}

	if c.Auth.JWTExpiresIn == 0 {
		c.Auth.JWTExpiresIn = time.Hour
	}
	if c.Auth.RefreshGrace == 0 {
		c.Auth.RefreshGrace = 24 * time.Hour
	}

	if !viper.IsSet("rate_limit.max") && c.RateLimit.Max == 0 {
		c.RateLimit.Max = 100
	}
	if !viper.IsSet("rate_limit.window_ms") && c.RateLimit.WindowMS == 0 {
		c.RateLimit.WindowMS = 60_000
	}

	if c.CORS.Origin == "" {
		c.CORS.Origin = "*"
	}
}

// SetDevDefaults fills in a runnable demo identity and signing secret when
// DevMode is set and the operator has not supplied their own.
// Applied before validation so a bare `acpgate serve --dev` works.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Auth.Username == "" {
		c.Auth.Username = "demo"
	}
	if c.Auth.PasswordHash == "" {
		// argon2id hash of "demo-password", generated with `acpgate hash-token`.
		c.Auth.PasswordHash = "$argon2id$v=19$m=47104,t=1,p=1$c2FsdHNhbHRzYWx0$Z2l2ZW5oYXNoZGV2bW9kZQ"
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "dev-mode-insecure-signing-secret-change-me"
	}
}
