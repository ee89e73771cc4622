/*
main.go - Application entry point

PURPOSE:
  The checkboard CLI. One binary serves the HTTP API and runs the
  operational commands against the same database.

COMMANDS:
  serve     Run migrations, then serve the API until SIGINT/SIGTERM
  migrate   Apply pending migrations and exit
  seed      Import the roster (drivers + standard columns) into empty tables
  changes   Print the recent audit trail

CONFIGURATION:
  Environment variables (see config/config.go), optionally from .env.
  --db-driver and --db-dsn override DB_DRIVER and DB_DSN for one run.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Flush traces and close the database

EXAMPLES:
  checkboard serve
  checkboard seed --roster ./roster.yaml
  checkboard changes --days 3
  checkboard migrate --db-driver postgres --db-dsn postgres://localhost/checkboard

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqldb/sqldb.go: Database implementation
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "checkboard",
		Short:         "Dispatcher daily checklist service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.dbDriver, "db-driver", "", "database driver: sqlite3 or postgres (overrides DB_DRIVER)")
	root.PersistentFlags().StringVar(&flags.dbDSN, "db-dsn", "", "database DSN (overrides DB_DSN)")

	root.AddCommand(serveCmd(&flags))
	root.AddCommand(migrateCmd(&flags))
	root.AddCommand(seedCmd(&flags))
	root.AddCommand(changesCmd(&flags))
	return root
}
