package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/sentineldock/acpgate/internal/adapter/inbound/httpauth"
	"github.com/sentineldock/acpgate/internal/adapter/inbound/httpobs"
	"github.com/sentineldock/acpgate/internal/adapter/inbound/ws"
	"github.com/sentineldock/acpgate/internal/adapter/outbound/agentproc"
	"github.com/sentineldock/acpgate/internal/adapter/outbound/cel"
	"github.com/sentineldock/acpgate/internal/adapter/outbound/memory"
	"github.com/sentineldock/acpgate/internal/config"
	"github.com/sentineldock/acpgate/internal/domain/auth"
	"github.com/sentineldock/acpgate/internal/domain/policy"
	"github.com/sentineldock/acpgate/internal/domain/ratelimit"
	"github.com/sentineldock/acpgate/internal/service"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge gateway",
	Long: `Start the acpgate bridge gateway.

Terminates the browser's WebSocket connection, authenticates it with a
bridge bearer token, spawns and supervises one ACP agent subprocess per
session, and translates between the two until the connection closes.

Examples:
  # Start with config file settings
  acpgate serve

  # Start with relaxed validation and a built-in demo login
  acpgate serve --dev

  # Start with a specific config file
  acpgate --config /path/to/acpgate.yaml serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "enable development mode (debug logging, relaxed validation, demo login)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// Restore default signal handling on first Ctrl+C so a second one hard-kills.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("acpgate stopped")
	return nil
}

// run wires every component and blocks until ctx is cancelled or the
// listener fails.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := setupTracing(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := httpobs.NewMetrics(reg)

	sessionStore := memory.NewSessionStore()
	rateLimiter := memory.NewRateLimiter()
	supervisor := agentproc.NewSupervisor(cfg.Agent, logger)

	credentials := &auth.StaticCredentialStore{
		Username:     cfg.Auth.Username,
		PasswordHash: cfg.Auth.PasswordHash,
		Roles:        []auth.Role{auth.RoleUser},
	}
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiresIn, cfg.Auth.RefreshGrace)

	policyEngine, err := buildPolicyEngine(cfg.Policy, logger)
	if err != nil {
		return fmt.Errorf("failed to build policy engine: %w", err)
	}

	dispatcher := service.NewDispatcher(sessionStore, supervisor, cfg.Agent, metrics, logger, policyEngine)

	rateLimitCfg := ratelimit.RateLimitConfig{
		Rate:   cfg.RateLimit.Max,
		Burst:  cfg.RateLimit.Max,
		Period: time.Duration(cfg.RateLimit.WindowMS) * time.Millisecond,
	}
	wsServer := ws.NewServer(dispatcher, tokens, cfg.Server.HeartbeatInterval, metrics, logger,
		ws.WithRateLimiter(rateLimiter, rateLimitCfg))
	dispatcher.SetConnections(wsServer)

	authHandler := httpauth.NewHandler(credentials, tokens, logger)
	healthChecker := httpobs.NewHealthChecker(sessionStore, rateLimiter, supervisor, Version)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	mux.HandleFunc("/auth/login", authHandler.Login)
	mux.HandleFunc("/auth/verify", authHandler.Verify)
	mux.HandleFunc("/auth/refresh", authHandler.Refresh)
	mux.Handle("/health", healthChecker.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	var handler http.Handler = mux
	handler = httpobs.OriginAllowlist([]string{cfg.CORS.Origin})(handler)
	handler = httpobs.RealIPMiddleware(handler)
	handler = httpobs.RequestIDMiddleware(logger)(handler)
	handler = httpobs.MetricsMiddleware(metrics)(handler)

	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting gateway", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
		return err
	}
	return nil
}

// buildPolicyEngine compiles cfg's rule list into a cel.Engine. A nil,
// nil return means no rules are configured: the dispatcher falls back to
// the agent's own option list, or the gateway's default set, unconditionally.
func buildPolicyEngine(cfg config.PolicyConfig, logger *slog.Logger) (policy.Engine, error) {
	if len(cfg.Rules) == 0 {
		return nil, nil
	}
	rules := make([]policy.Rule, len(cfg.Rules))
	for i, r := range cfg.Rules {
		action := policy.ActionAllow
		if r.Action == "deny" {
			action = policy.ActionDeny
		}
		rules[i] = policy.Rule{
			Name:      r.Name,
			Priority:  r.Priority,
			ToolMatch: r.ToolMatch,
			Condition: r.Condition,
			Action:    action,
			CreatedAt: time.Now(),
		}
	}
	engine, err := cel.NewEngine(rules)
	if err != nil {
		return nil, err
	}
	logger.Info("policy engine loaded", "rules", len(rules))
	return engine, nil
}

// setupTracing installs stdout trace/metric exporters as the global
// OpenTelemetry providers in dev mode. Outside dev mode it installs
// nothing, leaving otel's default no-op providers in place, so dispatcher
// spans are free but discarded. Returns a shutdown func safe to call
// unconditionally.
func setupTracing(cfg *config.Config, logger *slog.Logger) (func(context.Context) error, error) {
	if !cfg.DevMode {
		return func(context.Context) error { return nil }, nil
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(60*time.Second))),
	)
	otel.SetMeterProvider(meterProvider)

	logger.Info("dev-mode tracing enabled: stdout trace/metric exporters installed")

	return func(ctx context.Context) error {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
		return meterProvider.Shutdown(ctx)
	}, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
