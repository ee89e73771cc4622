package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/warp/checkboard/config"
	"github.com/warp/checkboard/lifecycle"
	"github.com/warp/checkboard/store/sqldb"
)

type globalFlags struct {
	dbDriver string
	dbDSN    string
}

// app is the wired dependency graph shared by every command.
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	store  *sqldb.Store
	engine *lifecycle.Engine
}

func newApp(ctx context.Context, flags *globalFlags, logger func(config.Config) (zerolog.Logger, error), opts ...lifecycle.Option) (*app, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.dbDriver != "" {
		cfg.DBDriver = flags.dbDriver
	}
	if flags.dbDSN != "" {
		cfg.DBDSN = flags.dbDSN
	}

	log, err := logger(cfg)
	if err != nil {
		return nil, err
	}

	dialect, err := sqldb.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	st, err := sqldb.Open(ctx, sqldb.Config{
		Dialect:         dialect,
		DSN:             cfg.DBDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	opts = append([]lifecycle.Option{
		lifecycle.WithLogger(log),
		lifecycle.WithTemporaryTTL(cfg.TemporaryColumnTTL),
		lifecycle.WithAuditWindow(cfg.AuditWindowDays),
	}, opts...)

	return &app{
		cfg:    cfg,
		log:    log,
		store:  st,
		engine: lifecycle.NewEngine(st, opts...),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// quietLogger keeps one-shot commands to warnings so their output stays readable.
func quietLogger(_ config.Config) (zerolog.Logger, error) {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger(), nil
}
