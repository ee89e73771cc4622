package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/warp/checkboard/api"
	"github.com/warp/checkboard/config"
	"github.com/warp/checkboard/lifecycle"
	"github.com/warp/checkboard/roster"
	"github.com/warp/checkboard/telemetry"
)

// =============================================================================
// SERVE
// =============================================================================

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		addr    string
		migrate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics := telemetry.NewMetrics()
			a, err := newApp(ctx, flags, func(cfg config.Config) (zerolog.Logger, error) {
				return telemetry.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			}, lifecycle.WithObserver(metrics))
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.cfg.Addr = addr
			}
			if migrate {
				if err := a.store.Migrate(ctx); err != nil {
					return err
				}
			}
			if err := metrics.RegisterDB(a.store.DB(), "checkboard"); err != nil {
				return fmt.Errorf("failed to register db metrics: %w", err)
			}

			shutdownTracing, err := telemetry.InitTracing(ctx, a.cfg.ServiceName, a.cfg.OTLPEndpoint)
			if err != nil {
				return err
			}
			defer func() {
				tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(tctx); err != nil {
					a.log.Warn().Err(err).Msg("failed to flush traces")
				}
			}()

			handler := api.NewHandler(a.engine, a.cfg.ActorHeader, a.store.Ping)
			server := &http.Server{
				Addr: a.cfg.Addr,
				Handler: api.NewRouter(handler, api.RouterOptions{
					Logger:             a.log,
					AllowedOrigins:     a.cfg.AllowedOrigins,
					RateLimitPerMinute: a.cfg.RateLimitPerMinute,
					Metrics:            metrics.Handler(),
					ServiceName:        a.cfg.ServiceName,
				}),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", a.cfg.Addr).Msg("server starting")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			a.log.Info().Msg("shutting down server")
			sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(sctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			a.log.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

// =============================================================================
// MIGRATE
// =============================================================================

func migrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, quietLogger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.New(color.FgGreen).Sprint("✓"), "database is up to date")
			return nil
		},
	}
}

// =============================================================================
// SEED
// =============================================================================

func seedCmd(flags *globalFlags) *cobra.Command {
	var (
		rosterPath string
		actor      string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import the roster into empty driver and column tables",
		Long: `Import drivers and standard check columns from a YAML roster.
Each table is filled only when it is empty, so running seed twice is safe.
Without --roster or ROSTER_FILE the built-in roster is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, quietLogger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Migrate(ctx); err != nil {
				return err
			}
			if rosterPath == "" {
				rosterPath = a.cfg.RosterFile
			}
			f, err := roster.Load(rosterPath)
			if err != nil {
				return err
			}

			res, err := a.engine.Import(ctx, f.ImportSet(), actor)
			if err != nil {
				return err
			}
			printImportResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&rosterPath, "roster", "", "roster YAML file (overrides ROSTER_FILE)")
	cmd.Flags().StringVar(&actor, "actor", "system", "actor id recorded in the audit trail")
	return cmd
}

func printImportResult(w io.Writer, res lifecycle.ImportResult) {
	line := func(kind string, created int, skipped bool) {
		if skipped {
			fmt.Fprintf(w, "%s %s: table not empty, skipped\n", color.New(color.FgYellow).Sprint("!"), kind)
			return
		}
		fmt.Fprintf(w, "%s %s: %d created\n", color.New(color.FgGreen).Sprint("+"), kind, created)
	}
	line("drivers", res.DriversCreated, res.DriversSkipped)
	line("columns", res.ColumnsCreated, res.ColumnsSkipped)
}

// =============================================================================
// CHANGES
// =============================================================================

func changesCmd(flags *globalFlags) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Show recent changes from the audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, quietLogger)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.engine.ListRecentAudit(cmd.Context(), days)
			if err != nil {
				return err
			}
			printChanges(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "window in days (0 uses AUDIT_WINDOW_DAYS)")
	return cmd
}

// Format: timestamp | actor | icon action | entity_type/entity_id | summary
func printChanges(w io.Writer, entries []lifecycle.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No changes in window.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s | %-14s | %s | %s/%s | %s\n",
			e.OccurredAt.Local().Format("2006-01-02 15:04"),
			e.UserID,
			actionLabel(e.Action),
			e.EntityType,
			e.EntityID,
			e.Summary,
		)
	}
}

func actionLabel(a lifecycle.Action) string {
	label := fmt.Sprintf("%s %-14s", actionIcon(a), a)
	switch a {
	case lifecycle.ActionCreate, lifecycle.ActionReactivate:
		return color.New(color.FgGreen).Sprint(label)
	case lifecycle.ActionDeactivate:
		return color.New(color.FgRed).Sprint(label)
	case lifecycle.ActionReorder, lifecycle.ActionMoveTimeBlock:
		return color.New(color.FgBlue).Sprint(label)
	default:
		return color.New(color.FgYellow).Sprint(label)
	}
}

func actionIcon(a lifecycle.Action) string {
	switch a {
	case lifecycle.ActionCreate:
		return "+"
	case lifecycle.ActionDeactivate:
		return "-"
	case lifecycle.ActionReactivate:
		return "↺"
	case lifecycle.ActionReorder, lifecycle.ActionMoveTimeBlock:
		return "↕"
	default:
		return "~"
	}
}
