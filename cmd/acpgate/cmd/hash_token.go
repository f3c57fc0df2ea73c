package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentineldock/acpgate/internal/domain/auth"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [password]",
	Short: "Generate an argon2id hash for the bridge's demo password",
	Long: `Generate an argon2id hash of a password for use in config.

The output is a PHC-format string that can be used directly in the
auth.password_hash field.

Example:
  acpgate hash-token "my-secret-password"
  # Output: $argon2id$v=19$m=48128,t=1,p=1$...

Security note: the password will appear in shell history.
Consider clearing history after use or using an environment variable:
  acpgate hash-token "$ACPGATE_PASSWORD"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashTokenCmd)
}
