package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/server"
)

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the keyward server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.UseServerLogger()

			options := defaultServerOptions()
			if err := parseOptions(cmd, &options, "KEYWARD_SERVER"); err != nil {
				return err
			}

			if options.DBDriver != "postgres" {
				dbFile, err := canonicalPath(options.DBConnectionString)
				if err != nil {
					return err
				}
				options.DBConnectionString = dbFile
			}

			srv, err := server.New(options)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			return runServer(cmd.Context(), srv)
		},
	}

	cmd.Flags().StringP("config-file", "f", "", "Server configuration file")
	cmd.Flags().String("db-driver", "sqlite", `Database driver ("sqlite" or "postgres")`)
	cmd.Flags().String("db-connection-string", "$HOME/.keyward/keyward.db", "Database file path or postgres DSN")
	cmd.Flags().String("db-encryption-key", "keyward-x/__root_key", "Database encryption root key name")
	cmd.Flags().String("db-encryption-key-provider", "native", "Database encryption key provider")
	cmd.Flags().String("sentry-dsn", "", "Sentry DSN for error tracking (secret)")
	cmd.Flags().Duration("validate-interval", time.Hour, "Interval between key revalidation passes")
	cmd.Flags().Int("validate-workers", 0, "Concurrent provider calls per revalidation pass")
	cmd.Flags().Bool("enable-log-sampling", true, "Sample HTTP access logs")

	return cmd
}

// defaultServerOptions sets the defaults for options that have no command
// line flag. Defaults for options with a flag are set on the flag, and are
// applied on every load.
func defaultServerOptions() server.Options {
	return server.Options{
		Addr: server.ListenerOptions{
			HTTP:    ":8080",
			Metrics: ":9090",
		},
		API: server.APIOptions{
			RequestTimeout: time.Minute,
		},
	}
}

// shim for testing
var runServer = func(ctx context.Context, srv *server.Server) error {
	return srv.Run(ctx)
}
