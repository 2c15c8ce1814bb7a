package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/scanpipe/internal/config"
)

// NewEncryptCmd creates the encrypt command.
func NewEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt a secret for the configuration file",
		Long: `Encrypt seals a secret with the passphrase in ` + config.SecretKeyEnv + `.

The output starts with "enc:" and can be used for database.url,
database.password, storage.accessKey and storage.secretKey. The value is
read from standard input when no argument is given.

Examples:
  SCANPIPE_SECRET_KEY=... scanpipe encrypt 's3cr3t'
  echo -n 's3cr3t' | SCANPIPE_SECRET_KEY=... scanpipe encrypt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read secret from stdin: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			}
			if value == "" {
				return fmt.Errorf("empty secret")
			}

			sealed, err := config.EncryptSecret(value, os.Getenv(config.SecretKeyEnv))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}
