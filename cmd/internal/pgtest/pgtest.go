// Package pgtest holds the opt-in Postgres integration test harness shared by the store packages.
//
// Tests require VIDSHARE_DATABASE_URL. Outside CI an unreachable server skips the test
// instead of failing it.
package pgtest

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vidshare/cmd/identity/ids"
)

// EnvURL names the variable holding the integration database URL.
const EnvURL = "VIDSHARE_DATABASE_URL"

// OpenPool connects to the integration database or skips the test.
// The pool is closed on test cleanup.
func OpenPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(EnvURL))
	if raw == "" {
		t.Skipf("integration test skipped: %s is not set", EnvURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", EnvURL, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if ShouldSkip(err) {
			t.Skipf("integration test skipped: Postgres unreachable (%s set): %v", EnvURL, err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	t.Cleanup(pool.Close)
	return pool
}

// FreshSchema creates a uniquely named schema with the users, channels and videos
// tables, and drops it on cleanup.
func FreshSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "vidshare_it_" + strings.ToLower(id)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+Ident(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+Ident(schema)+` CASCADE`)
	})

	// search_path scoping keeps the DDL identical to schema/postgres.sql.
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SET LOCAL search_path TO `+Ident(schema)); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if _, err := tx.Exec(ctx, DDL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit schema: %v", err)
	}
	return schema
}

// ShouldSkip reports connectivity failures that should skip rather than fail a local run.
func ShouldSkip(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}

// Ident quotes a single identifier.
func Ident(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

// DDL mirrors schema/postgres.sql.
const DDL = `
CREATE TABLE users (
  id BIGSERIAL PRIMARY KEY,
  username VARCHAR(50) NOT NULL,
  email VARCHAR(255) NOT NULL,
  password TEXT NOT NULL,
  display_name VARCHAR(100) NULL,
  profile_image_url TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT uq_users_username UNIQUE (username),
  CONSTRAINT uq_users_email UNIQUE (email)
);

CREATE TABLE channels (
  id BIGSERIAL PRIMARY KEY,
  name VARCHAR(100) NOT NULL,
  description TEXT NULL,
  banner_image_url TEXT NULL,
  subscriber_count BIGINT NOT NULL DEFAULT 0,
  total_views BIGINT NOT NULL DEFAULT 0,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT uq_channels_name UNIQUE (name),
  CONSTRAINT uq_channels_user_id UNIQUE (user_id),
  CONSTRAINT chk_channels_counters CHECK (subscriber_count >= 0 AND total_views >= 0)
);

CREATE TABLE videos (
  id BIGSERIAL PRIMARY KEY,
  title VARCHAR(255) NOT NULL,
  description TEXT NULL,
  file_path TEXT NOT NULL,
  thumbnail_url TEXT NULL,
  duration_seconds INTEGER NULL,
  file_size BIGINT NULL,
  view_count BIGINT NOT NULL DEFAULT 0,
  like_count BIGINT NOT NULL DEFAULT 0,
  dislike_count BIGINT NOT NULL DEFAULT 0,
  status VARCHAR(16) NOT NULL DEFAULT 'PROCESSING',
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  channel_id BIGINT NULL REFERENCES channels(id) ON DELETE SET NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT chk_videos_status CHECK (status IN ('PROCESSING', 'READY', 'FAILED', 'DELETED')),
  CONSTRAINT chk_videos_counters CHECK (view_count >= 0 AND like_count >= 0 AND dislike_count >= 0)
);

CREATE INDEX idx_videos_user_id ON videos (user_id, created_at DESC);
CREATE INDEX idx_videos_status ON videos (status, created_at DESC);
CREATE INDEX idx_videos_channel_id ON videos (channel_id);
`
