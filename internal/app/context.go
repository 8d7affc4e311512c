package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"cisline/internal/audit"
	"cisline/internal/blob"
	"cisline/internal/config"
	"cisline/internal/db"
	"cisline/internal/engine"
	"cisline/internal/migrate"
	"cisline/internal/telemetry"
)

// Context is everything a running cisline workspace needs: the migrated
// database, the engine wired to its audit outbox and blob store, metrics and
// tracing.
type Context struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Outbox    *audit.Outbox
	Metrics   *telemetry.Metrics
	Log       zerolog.Logger

	stopTracing func(context.Context) error
}

// Open migrates the workspace database and builds the engine. Close releases
// everything Open acquired.
func Open(ctx context.Context, workspace string, cfg *config.Config, log zerolog.Logger) (*Context, error) {
	if cfg == nil {
		cfg = config.Default(workspace)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug().Int("schema_version", version).Str("db", db.Path(workspace)).Msg("database ready")

	store, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	stopTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("tracing: %w", err)
	}

	metrics := telemetry.NewMetrics()
	eng := engine.New(conn)
	eng.Blobs = store
	eng.Log = log.With().Str("component", "engine").Logger()
	eng.AuditWait = cfg.Audit.Wait
	outbox := audit.NewOutbox(eng.Events, audit.OutboxOptions{
		Buffer:          cfg.Audit.Buffer,
		MaxTries:        cfg.Audit.MaxTries,
		InitialInterval: cfg.Audit.InitialInterval,
		MaxInterval:     cfg.Audit.MaxInterval,
		Logger:          log,
		Registerer:      metrics.Registry,
	})
	eng.Audit = outbox

	return &Context{
		Workspace:   workspace,
		Config:      cfg,
		DB:          conn,
		Engine:      eng,
		Outbox:      outbox,
		Metrics:     metrics,
		Log:         log,
		stopTracing: stopTracing,
	}, nil
}

// Close drains pending audit events before closing the database.
func (c *Context) Close(ctx context.Context) error {
	var errs []error
	if err := c.Outbox.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain audit outbox: %w", err))
	}
	if c.stopTracing != nil {
		if err := c.stopTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop tracing: %w", err))
		}
	}
	if err := c.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
