// Package cmd implements the keyward command line interface.
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/cmd/cliopts"
	"github.com/keyward/keyward/internal/logging"
)

// Run the main CLI command with the given args.
func Run(ctx context.Context, args ...string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "keyward",
		Short:             "Manage and validate provider API keys",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := cliopts.DefaultsFromEnv("KEYWARD", cmd.Flags()); err != nil {
				return err
			}
			logLevel, err := cmd.Flags().GetString("log-level")
			if err != nil {
				return err
			}
			return logging.SetLevel(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().String("log-level", "info", "Show logs when running the command [error, warn, info, debug]")

	rootCmd.AddCommand(
		newServerCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// parseOptions loads the configuration for a command into options. Values
// are loaded from the config file named by the config-file flag, then from
// environment variables that start with envPrefix, then from command line
// flags.
func parseOptions(cmd *cobra.Command, options interface{}, envPrefix string) error {
	filename, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	return cliopts.Load(options, cliopts.Options{
		Filename:  filename,
		EnvPrefix: envPrefix,
		Flags:     cmd.Flags(),
	})
}

// canonicalPath resolves references to the home directory and returns an
// absolute path.
func canonicalPath(path string) (string, error) {
	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	return filepath.Abs(path)
}
