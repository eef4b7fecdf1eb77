package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements UserStore over an embedded SQLite database.
// It backs local runs without Postgres and the package tests.
//
// The *sql.DB is owned by the caller. SQLite has a single writer, so callers
// should open it with SetMaxOpenConns(1) (see OpenSQLite).
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

var _ UserStore = (*SQLiteStore)(nil)

const sqliteUsersDDL = `
CREATE TABLE IF NOT EXISTS users (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	username          TEXT    NOT NULL,
	email             TEXT    NOT NULL,
	password          TEXT    NOT NULL,
	display_name      TEXT,
	profile_image_url TEXT,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL,
	CONSTRAINT uq_users_username UNIQUE (username),
	CONSTRAINT uq_users_email UNIQUE (email)
)`

// OpenSQLite opens a SQLite database at path (":memory:" for a private in-memory db)
// with foreign keys enabled and a busy timeout.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}
	return db, nil
}

// NewSQLiteStore creates the users table when missing and returns the store.
func NewSQLiteStore(ctx context.Context, db *sql.DB, callTimeout time.Duration) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil db")
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	if _, err := db.ExecContext(ctx, sqliteUsersDDL); err != nil {
		return nil, fmt.Errorf("identity: create users table: %w", err)
	}
	return &SQLiteStore{db: db, timeout: callTimeout}, nil
}

const sqliteUserColumns = `id, username, email, password, display_name, profile_image_url, created_at, updated_at`

// withConn pins one pooled connection for the duration of fn and releases it on every path.
func (s *SQLiteStore) withConn(ctx context.Context, op string, fn func(ctx context.Context, conn *sql.Conn) error) error {
	if s == nil || s.db == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return storeErr(op, err)
	}
	defer func() { _ = conn.Close() }()

	return fn(ctx, conn)
}

// FindByID implements UserStore.
func (s *SQLiteStore) FindByID(ctx context.Context, id int64) (User, bool, error) {
	return s.findOne(ctx, "identity.FindByID", "id", id)
}

// FindByUsername implements UserStore.
func (s *SQLiteStore) FindByUsername(ctx context.Context, username string) (User, bool, error) {
	return s.findOne(ctx, "identity.FindByUsername", "username", username)
}

// FindByEmail implements UserStore.
func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (User, bool, error) {
	return s.findOne(ctx, "identity.FindByEmail", "email", email)
}

func (s *SQLiteStore) findOne(ctx context.Context, op, column string, arg any) (User, bool, error) {
	var (
		u     User
		found bool
	)
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT `+sqliteUserColumns+` FROM users WHERE `+column+` = ?`,
			arg,
		)
		var err error
		u, err = sqliteScanUser(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return storeErr(op, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return User{}, false, err
	}
	return u, found, nil
}

// ExistsByUsername implements UserStore.
func (s *SQLiteStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, "identity.ExistsByUsername", "username", username)
}

// ExistsByEmail implements UserStore.
func (s *SQLiteStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, "identity.ExistsByEmail", "email", email)
}

func (s *SQLiteStore) exists(ctx context.Context, op, column, value string) (bool, error) {
	var ok bool
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		err := conn.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE `+column+` = ?)`,
			value,
		).Scan(&ok)
		return storeErr(op, err)
	})
	return ok, err
}

// Insert implements UserStore.
func (s *SQLiteStore) Insert(ctx context.Context, in NewUser) (User, error) {
	const op = "identity.Insert"

	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Email) == "" || in.PasswordHash == "" {
		return User{}, invalid(op, "username, email and password hash are required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC().Truncate(time.Millisecond)
	display := in.DisplayName
	if strings.TrimSpace(display) == "" {
		display = in.Username
	}
	image := trimPtr(in.ProfileImageURL)

	var out User
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx,
			`INSERT INTO users (username, email, password, display_name, profile_image_url, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			in.Username, in.Email, in.PasswordHash, display, image, now.UnixMilli(), now.UnixMilli(),
		)
		if err != nil {
			if field, ok := sqliteClassifyUniqueViolation(err); ok {
				return ConflictError{Op: op, Field: field}
			}
			return storeErr(op, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return storeErr(op, err)
		}
		out = User{
			ID:              id,
			Username:        in.Username,
			Email:           in.Email,
			PasswordHash:    in.PasswordHash,
			DisplayName:     display,
			ProfileImageURL: image,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

// UpdatePartial implements UserStore.
func (s *SQLiteStore) UpdatePartial(ctx context.Context, id int64, patch ProfilePatch, now time.Time) (User, error) {
	const op = "identity.UpdatePartial"

	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC().Truncate(time.Millisecond)

	sets := []string{"updated_at = ?"}
	args := []any{now.UnixMilli()}
	if patch.DisplayName.Present {
		sets = append(sets, "display_name = COALESCE(?, username)")
		args = append(args, trimPtr(patch.DisplayName.Value))
	}
	if patch.ProfileImageURL.Present {
		sets = append(sets, "profile_image_url = ?")
		args = append(args, trimPtr(patch.ProfileImageURL.Value))
	}
	args = append(args, id)

	var out User
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING `+sqliteUserColumns,
			args...,
		)
		var err error
		out, err = sqliteScanUser(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundError{Op: op, Resource: "user"}
			}
			return storeErr(op, err)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

// UpdatePasswordHash implements UserStore.
func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, id int64, hash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if hash == "" {
		return invalid(op, "empty password hash")
	}
	if now.IsZero() {
		now = time.Now()
	}

	return s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx,
			`UPDATE users SET password = ?, updated_at = ? WHERE id = ?`,
			hash, now.UTC().UnixMilli(), id,
		)
		if err != nil {
			return storeErr(op, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storeErr(op, err)
		}
		if n == 0 {
			return NotFoundError{Op: op, Resource: "user"}
		}
		return nil
	})
}

func sqliteScanUser(row *sql.Row) (User, error) {
	var (
		u                  User
		display            sql.NullString
		image              sql.NullString
		created, updatedMS int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &display, &image, &created, &updatedMS); err != nil {
		return User{}, err
	}
	u.DisplayName = u.Username
	if display.Valid && display.String != "" {
		u.DisplayName = display.String
	}
	if image.Valid {
		v := image.String
		u.ProfileImageURL = &v
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	u.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	return u, nil
}

// SQLiteIsUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure and returns the
// engine message ("UNIQUE constraint failed: users.username").
func SQLiteIsUniqueViolation(err error) (string, bool) {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return "", false
	}
	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return liteErr.Error(), true
	default:
		return "", false
	}
}

// SQLiteIsForeignKeyViolation reports a FOREIGN KEY constraint failure.
func SQLiteIsForeignKeyViolation(err error) bool {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return false
	}
	return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

func sqliteClassifyUniqueViolation(err error) (string, bool) {
	msg, ok := SQLiteIsUniqueViolation(err)
	if !ok {
		return "", false
	}
	switch {
	case strings.Contains(msg, "users.username"):
		return "username", true
	case strings.Contains(msg, "users.email"):
		return "email", true
	default:
		return "unique", true
	}
}
