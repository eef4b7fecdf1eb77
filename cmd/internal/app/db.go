package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vidshare/cmd/catalog"
	"vidshare/cmd/identity"
)

const (
	backendPostgres = "postgres"
	backendSQLite   = "sqlite"
)

// stores groups the persistence adapters of one backend and owns its handle.
type stores struct {
	backend string
	users   identity.UserStore
	catalog catalog.Store

	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

// parseDatabaseURL picks the backend for raw and returns the driver DSN.
func parseDatabaseURL(raw, sqlitePath string) (backend, dsn string, err error) {
	u := strings.TrimSpace(raw)
	u = strings.TrimPrefix(u, "jdbc:")
	lower := strings.ToLower(u)

	switch {
	case u == "":
		return backendSQLite, sqlitePath, nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return backendPostgres, u, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return backendSQLite, u[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "sqlite:"):
		return backendSQLite, u[len("sqlite:"):], nil
	case strings.HasPrefix(lower, "file:"):
		return backendSQLite, u, nil
	default:
		return "", "", fmt.Errorf("unsupported database url scheme in %q", redactURL(u))
	}
}

// redactURL drops everything before '@' so credentials never reach logs.
func redactURL(u string) string {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return u
	}
	if _, host, found := strings.Cut(rest, "@"); found {
		return scheme + "://***@" + host
	}
	return u
}

func openStores(ctx context.Context, cfg Config, log *slog.Logger) (*stores, error) {
	backend, dsn, err := parseDatabaseURL(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	switch backend {
	case backendPostgres:
		pool, err := NewDBPool(ctx, cfg, dsn)
		if err != nil {
			return nil, err
		}
		users, err := identity.NewPostgresStore(pool,
			identity.WithSchema(cfg.DBSchema),
			identity.WithCallTimeout(cfg.StoreCallTimeout),
		)
		if err != nil {
			pool.Close()
			return nil, err
		}
		cat, err := catalog.NewPostgresStore(pool,
			catalog.WithSchema(cfg.DBSchema),
			catalog.WithCallTimeout(cfg.StoreCallTimeout),
		)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("db.enabled", "backend", backendPostgres, "url", redactURL(dsn), "schema", cfg.DBSchema)
		return &stores{backend: backendPostgres, users: users, catalog: cat, pool: pool}, nil

	default:
		db, err := identity.OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		users, err := identity.NewSQLiteStore(ctx, db, cfg.StoreCallTimeout)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		cat, err := catalog.NewSQLiteStore(ctx, db, cfg.StoreCallTimeout)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("db.enabled", "backend", backendSQLite, "path", dsn)
		return &stores{backend: backendSQLite, users: users, catalog: cat, sqlDB: db}, nil
	}
}

// Ping reports whether the backend answers within timeout.
func (s *stores) Ping(ctx context.Context, timeout time.Duration) error {
	switch {
	case s.pool != nil:
		return PingDB(ctx, s.pool, timeout)
	case s.sqlDB != nil:
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return s.sqlDB.PingContext(ctx)
	default:
		return errors.New("no database")
	}
}

func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlDB != nil {
		_ = s.sqlDB.Close()
	}
}

// NewDBPool builds a pgxpool with sane defaults and validates connectivity.
// DBUsername and DBPassword, when set, override the credentials in dsn.
// It does NOT run migrations; schema/postgres.sql is applied out of band.
func NewDBPool(ctx context.Context, cfg Config, dsn string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.DBUsername != "" {
		pcfg.ConnConfig.User = cfg.DBUsername
	}
	if cfg.DBPassword != "" {
		pcfg.ConnConfig.Password = cfg.DBPassword
	}
	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Ping(ctx)
}
