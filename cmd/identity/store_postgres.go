package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultCallTimeout bounds every store call that arrives without a tighter deadline.
const DefaultCallTimeout = 5 * time.Second

// PostgresStore implements UserStore over PostgreSQL.
//
// Design notes:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Every call checks a connection out of the pool under a per-call timeout and
//     releases it on every exit path (see withConn).
//   - Schema/table identifiers are quoted to avoid SQL injection via identifiers.
type PostgresStore struct {
	pool    *pgxpool.Pool
	schema  string
	timeout time.Duration
}

var _ UserStore = (*PostgresStore)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding the users table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithCallTimeout sets the per-call timeout. Non-positive values keep the default.
func WithCallTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) error {
		if d > 0 {
			s.timeout = d
		}
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:    pool,
		schema:  "public",
		timeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const pgUserColumns = `id, username, email, password, display_name, profile_image_url, created_at, updated_at`

// withConn is the scoped acquisition used by every operation: the connection
// is released on success, on error and on panic.
func (s *PostgresStore) withConn(ctx context.Context, op string, fn func(ctx context.Context, conn *pgxpool.Conn) error) error {
	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return storeErr(op, err)
	}
	defer conn.Release()

	return fn(ctx, conn)
}

// FindByID implements UserStore.
func (s *PostgresStore) FindByID(ctx context.Context, id int64) (User, bool, error) {
	return s.findOne(ctx, "identity.FindByID", "id", id)
}

// FindByUsername implements UserStore.
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (User, bool, error) {
	return s.findOne(ctx, "identity.FindByUsername", "username", username)
}

// FindByEmail implements UserStore.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (User, bool, error) {
	return s.findOne(ctx, "identity.FindByEmail", "email", email)
}

// column is always one of the fixed names above, never caller input.
func (s *PostgresStore) findOne(ctx context.Context, op, column string, arg any) (User, bool, error) {
	var (
		u     User
		found bool
	)
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx,
			`SELECT `+pgUserColumns+` FROM `+s.users()+` WHERE `+column+` = $1`,
			arg,
		)
		var err error
		u, err = pgScanUser(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, "identity.ExistsByUsername", "username", username)
}

// ExistsByEmail implements UserStore.
func (s *PostgresStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, "identity.ExistsByEmail", "email", email)
}

func (s *PostgresStore) exists(ctx context.Context, op, column, value string) (bool, error) {
	var ok bool
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM `+s.users()+` WHERE `+column+` = $1)`,
			value,
		).Scan(&ok)
		return storeErr(op, err)
	})
	return ok, err
}

// Insert implements UserStore. A unique violation becomes ConflictError{Field}.
func (s *PostgresStore) Insert(ctx context.Context, in NewUser) (User, error) {
	const op = "identity.Insert"

	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Email) == "" || in.PasswordHash == "" {
		return User{}, invalid(op, "username, email and password hash are required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	display := in.DisplayName
	if strings.TrimSpace(display) == "" {
		display = in.Username
	}

	var out User
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx,
			`INSERT INTO `+s.users()+` (
			     username, email, password, display_name, profile_image_url, created_at, updated_at
			   ) VALUES ($1, $2, $3, $4, $5, $6, $6)
			   RETURNING `+pgUserColumns,
			in.Username,
			in.Email,
			in.PasswordHash,
			display,
			trimPtr(in.ProfileImageURL),
			now,
		)
		var err error
		out, err = pgScanUser(row)
		if err != nil {
			if field, ok := pgClassifyUniqueViolation(err); ok {
				return ConflictError{Op: op, Field: field}
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

// UpdatePartial implements UserStore. A cleared display name falls back to the username
// inside the same statement, so no read-modify-write window exists.
func (s *PostgresStore) UpdatePartial(ctx context.Context, id int64, patch ProfilePatch, now time.Time) (User, error) {
	const op = "identity.UpdatePartial"

	if now.IsZero() {
		now = time.Now().UTC()
	}

	sets := []string{"updated_at = $1"}
	args := []any{now}
	if patch.DisplayName.Present {
		args = append(args, trimPtr(patch.DisplayName.Value))
		sets = append(sets, "display_name = COALESCE($"+strconv.Itoa(len(args))+"::text, username)")
	}
	if patch.ProfileImageURL.Present {
		args = append(args, trimPtr(patch.ProfileImageURL.Value))
		sets = append(sets, "profile_image_url = $"+strconv.Itoa(len(args)))
	}
	args = append(args, id)

	var out User
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx,
			`UPDATE `+s.users()+`
			    SET `+strings.Join(sets, ", ")+`
			  WHERE id = $`+strconv.Itoa(len(args))+`
			  RETURNING `+pgUserColumns,
			args...,
		)
		var err error
		out, err = pgScanUser(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id int64, hash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if hash == "" {
		return invalid(op, "empty password hash")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		ct, err := conn.Exec(ctx,
			`UPDATE `+s.users()+` SET password = $1, updated_at = $2 WHERE id = $3`,
			hash, now, id,
		)
		if err != nil {
			return storeErr(op, err)
		}
		if ct.RowsAffected() == 0 {
			return NotFoundError{Op: op, Resource: "user"}
		}
		return nil
	})
}

func (s *PostgresStore) users() string { return pgIdent(s.schema, "users") }

// ---- helpers ----

func pgScanUser(row pgx.Row) (User, error) {
	var (
		u       User
		display *string
	)
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&display,
		&u.ProfileImageURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return User{}, err
	}
	u.DisplayName = u.Username
	if display != nil && *display != "" {
		u.DisplayName = *display
	}
	return u, nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// PgIsForeignKeyViolation reports a Postgres foreign_key_violation.
func PgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503"
}

// PgUniqueViolationConstraint returns the constraint name of a Postgres unique_violation.
func PgUniqueViolationConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(pgErr.ConstraintName)), true
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	c, ok := PgUniqueViolationConstraint(err)
	if !ok {
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to substring matching.
	switch c {
	case "uq_users_username":
		return "username", true
	case "uq_users_email":
		return "email", true
	}
	switch {
	case strings.Contains(c, "username"):
		return "username", true
	case strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
