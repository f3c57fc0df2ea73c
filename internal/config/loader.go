// Package config provides configuration loading for the bridge gateway.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for acpgate.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself,
// which Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("acpgate")
		viper.SetConfigType("yaml")
	}

	// Nested override support: ACPGATE_AGENT_DEFAULT_MODEL overrides agent.default_model
	viper.SetEnvPrefix("ACPGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an acpgate config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "acpgate" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".acpgate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "acpgate"))
		}
	} else {
		paths = append(paths, "/etc/acpgate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for acpgate.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "acpgate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the nested config keys for ACPGATE_-prefixed override support,
// plus the exact environment variable names the external interface names: PORT, HOST,
// JWT_SECRET, JWT_EXPIRES_IN, CORS_ORIGIN, LOG_LEVEL, RATE_LIMIT_MAX, RATE_LIMIT_WINDOW_MS.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.host")
	_ = viper.BindEnv("server.port")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.heartbeat_interval")

	_ = viper.BindEnv("agent.binary")
	_ = viper.BindEnv("agent.default_model")
	_ = viper.BindEnv("agent.spawn_timeout")
	_ = viper.BindEnv("agent.kill_grace")

	_ = viper.BindEnv("auth.username")
	_ = viper.BindEnv("auth.password_hash")
	_ = viper.BindEnv("auth.jwt_secret")
	_ = viper.BindEnv("auth.jwt_expires_in")
	_ = viper.BindEnv("auth.refresh_grace")

	_ = viper.BindEnv("rate_limit.max")
	_ = viper.BindEnv("rate_limit.window_ms")

	_ = viper.BindEnv("cors.origin")

	_ = viper.BindEnv("dev_mode")

	// Bare, unprefixed names from the external-interface environment surface.
	_ = viper.BindEnv("server.host", "HOST")
	_ = viper.BindEnv("server.port", "PORT")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("auth.jwt_expires_in", "JWT_EXPIRES_IN")
	_ = viper.BindEnv("cors.origin", "CORS_ORIGIN")
	_ = viper.BindEnv("rate_limit.max", "RATE_LIMIT_MAX")
	_ = viper.BindEnv("rate_limit.window_ms", "RATE_LIMIT_WINDOW_MS")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the validated Config.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate. Use this when a CLI flag (e.g. --dev)
// may still flip DevMode before validation runs.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found: continue with env vars and defaults only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
