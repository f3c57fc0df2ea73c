package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.Addr() != "127.0.0.1:8787" {
		t.Errorf("Addr() = %q, want %q", cfg.Server.Addr(), "127.0.0.1:8787")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Server.HeartbeatInterval != 25*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 25s", cfg.Server.HeartbeatInterval)
	}
	if cfg.RateLimit.Max != 100 {
		t.Errorf("RateLimit.Max = %d, want 100", cfg.RateLimit.Max)
	}
	if cfg.RateLimit.WindowMS != 60_000 {
		t.Errorf("RateLimit.WindowMS = %d, want 60000", cfg.RateLimit.WindowMS)
	}
	if cfg.Auth.RefreshGrace != 24*time.Hour {
		t.Errorf("RefreshGrace = %v, want 24h", cfg.Auth.RefreshGrace)
	}
	if cfg.CORS.Origin != "*" {
		t.Errorf("CORS.Origin = %q, want %q", cfg.CORS.Origin, "*")
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 9090},
		RateLimit: RateLimitConfig{
			Max:      50,
			WindowMS: 5000,
		},
	}
	cfg.SetDefaults()

	if cfg.Server.Addr() != "0.0.0.0:9090" {
		t.Errorf("Addr() was overwritten: got %q", cfg.Server.Addr())
	}
	if cfg.RateLimit.Max != 50 {
		t.Errorf("RateLimit.Max was overwritten: got %d, want 50", cfg.RateLimit.Max)
	}
	if cfg.RateLimit.WindowMS != 5000 {
		t.Errorf("RateLimit.WindowMS was overwritten: got %d, want 5000", cfg.RateLimit.WindowMS)
	}
}

func TestConfig_SetDevDefaults_NoopOutsideDevMode(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDevDefaults()

	if cfg.Auth.Username != "" {
		t.Errorf("Auth.Username set outside dev mode: %q", cfg.Auth.Username)
	}
}

func TestConfig_SetDevDefaults_FillsDemoIdentity(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDevDefaults()

	if cfg.Auth.Username == "" || cfg.Auth.PasswordHash == "" || cfg.Auth.JWTSecret == "" {
		t.Errorf("dev defaults incomplete: %+v", cfg.Auth)
	}
}

func TestConfig_Validate_RequiresAuthOutsideDevMode(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error with no auth configured outside dev mode")
	}
}

func TestConfig_Validate_DevModePasses(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error in dev mode: %v", err)
	}
}

func TestConfig_Validate_RejectsShortJWTSecret(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()
	cfg.Auth.JWTSecret = "short"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for short jwt secret")
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "acpgate.yaml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  port: 9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "acpgate.yml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  port: 9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "acpgate" with no extension.
	_ = os.WriteFile(filepath.Join(dir, "acpgate"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "acpgate.yaml")
	ymlPath := filepath.Join(dir, "acpgate.yml")
	_ = os.WriteFile(yamlPath, []byte("server:\n  port: 8080\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("server:\n  port: 9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
