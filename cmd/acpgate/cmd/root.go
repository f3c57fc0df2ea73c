// Package cmd provides the CLI commands for acpgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentineldock/acpgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "acpgate",
	Short: "acpgate - browser-to-agent bridge gateway",
	Long: `acpgate bridges a browser chat client to a local ACP-speaking coding
agent: it terminates a framed WebSocket connection from the browser and
drives the agent subprocess over newline-delimited JSON-RPC 2.0, translating
between the two on every session/prompt/tool-call turn.

Quick start:
  1. Create a config file: acpgate.yaml
  2. Generate a password hash: acpgate hash-token "my-password"
  3. Run: acpgate serve

Configuration:
  Config is loaded from acpgate.yaml in the current directory, $HOME/.acpgate/,
  or /etc/acpgate/.

  Environment variables can override config values with the ACPGATE_ prefix,
  e.g. ACPGATE_AGENT_DEFAULT_MODEL, plus the bare names PORT, HOST, JWT_SECRET,
  JWT_EXPIRES_IN, CORS_ORIGIN, LOG_LEVEL, RATE_LIMIT_MAX, RATE_LIMIT_WINDOW_MS.

Commands:
  serve       Start the bridge gateway
  hash-token  Generate an argon2id password hash for auth.password_hash
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./acpgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
