package identity

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"vidshare/cmd/security/password"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st, err := NewSQLiteStore(ctx, db, 5*time.Second)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	return st
}

// testHasher keeps argon2 cheap so the suite stays fast.
func testHasher() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, store UserStore, opts ...ServiceOption) *Service {
	t.Helper()

	opts = append([]ServiceOption{WithLogger(discardLogger())}, opts...)
	svc, err := NewService(store, testHasher(), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func mustRegister(t *testing.T, svc *Service, username, email, pw string) User {
	t.Helper()

	u, err := svc.Register(context.Background(), RegisterInput{Username: username, Email: email, Password: pw})
	if err != nil {
		t.Fatalf("register %q: %v", username, err)
	}
	return u
}
