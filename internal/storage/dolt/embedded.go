//go:build cgo

package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"
)

const embeddedOpenMaxElapsed = 30 * time.Second

func newEmbeddedOpenBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = embeddedOpenMaxElapsed
	return bo
}

// newEmbeddedMode opens the local Dolt engine in-process.
func newEmbeddedMode(ctx context.Context, cfg *Config) (*DoltStore, error) {
	// An existing regular file at Path means the caller pointed us at
	// something else's data; MkdirAll would fail confusingly.
	if info, statErr := os.Stat(cfg.Path); statErr == nil && !info.IsDir() {
		return nil, fmt.Errorf("database path %q is a file, not a directory", cfg.Path)
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// The embedded driver treats the DSN directory as its filesystem
	// working directory and passes it through to lower layers; relative
	// paths get stacked twice. Always hand it an absolute path.
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// Advisory flock so a second process fails with a clear error
	// instead of fighting over the engine's internal LOCK file.
	var accessLock *AccessLock
	if cfg.OpenTimeout > 0 {
		exclusive := !cfg.ReadOnly
		accessLock, err = AcquireAccessLock(absPath, exclusive, cfg.OpenTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire dolt access lock: %w", err)
		}
	}

	initDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s",
		absPath, cfg.CommitterName, cfg.CommitterEmail)
	dbDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s&database=%s",
		absPath, cfg.CommitterName, cfg.CommitterEmail, cfg.Database)

	configureRetries := func(c *embedded.Config) {
		c.BackOff = newEmbeddedOpenBackoff()
	}

	// Initialization runs as explicit units of work, each with its own
	// connector, so the store's connector starts from a clean engine.
	if !cfg.ReadOnly {
		if err := withEmbeddedDolt(ctx, initDSN, configureRetries, func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
			return err
		}); err != nil {
			accessLock.Release()
			return nil, fmt.Errorf("failed to create dolt database: %w", err)
		}

		if err := withEmbeddedDolt(ctx, dbDSN, configureRetries, func(ctx context.Context, db *sql.DB) error {
			return initSchemaOnDB(ctx, db)
		}); err != nil {
			accessLock.Release()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	db, connector, err := openEmbeddedConnection(dbDSN)
	if err != nil {
		accessLock.Release()
		return nil, err
	}

	// Do not ping with the caller's ctx: the embedded driver derives a
	// session context from Connect(ctx) and reuses it across statements,
	// so a short-lived ctx would poison the single pooled connection.
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		_ = connector.Close()
		accessLock.Release()
		return nil, fmt.Errorf("failed to ping dolt database: %w", err)
	}

	return &DoltStore{
		db:             db,
		dbPath:         absPath,
		connStr:        dbDSN,
		embeddedConn:   connector,
		committerName:  cfg.CommitterName,
		committerEmail: cfg.CommitterEmail,
		remote:         cfg.Remote,
		branch:         "main",
		remoteUser:     cfg.RemoteUser,
		remotePassword: cfg.RemotePassword,
		readOnly:       cfg.ReadOnly,
		cycleDepth:     cfg.CycleCheckDepth,
		accessLock:     accessLock,
	}, nil
}

// withEmbeddedDolt opens a short-lived embedded connector, runs fn, and
// tears the connector down so engine locks are released. fn receives ctx
// unmodified; the embedded driver derives its session context from
// Connect(ctx) and reuses it across statements.
func withEmbeddedDolt(
	ctx context.Context,
	dsn string,
	configure func(*embedded.Config),
	fn func(context.Context, *sql.DB) error,
) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return err
	}
	if configure != nil {
		configure(&cfg)
	}

	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return err
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	defer func() {
		// Close the DB first (stops pool activity), then the connector
		// to release engine locks.
		cerr := errors.Join(ignoreCanceled(db.Close()), ignoreCanceled(connector.Close()))
		err = errors.Join(err, cerr)
	}()

	if perr := db.PingContext(ctx); perr != nil {
		return perr
	}
	return fn(ctx, db)
}

// openEmbeddedConnection opens the store's long-lived embedded
// connection. The caller owns the connector and must close it to
// release filesystem locks.
func openEmbeddedConnection(dsn string) (*sql.DB, *embedded.Connector, error) {
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse dolt DSN: %w", err)
	}
	cfg.BackOff = newEmbeddedOpenBackoff()

	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create dolt connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// The embedded engine is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, connector, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
