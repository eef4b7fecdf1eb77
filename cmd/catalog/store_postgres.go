package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vidshare/cmd/identity"
)

// PostgresStore implements Store over PostgreSQL. The pool is owned by the caller.
type PostgresStore struct {
	pool    *pgxpool.Pool
	schema  string
	timeout time.Duration
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the channels and videos tables (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("catalog: invalid schema identifier %q", schema)
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
	st := &PostgresStore{pool: pool, schema: "public", timeout: identity.DefaultCallTimeout}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("catalog: nil pool")
	}
	return st, nil
}

const (
	pgChannelColumns = `id, name, description, banner_image_url, subscriber_count, total_views, user_id, created_at, updated_at`
	pgVideoColumns   = `id, title, description, file_path, thumbnail_url, duration_seconds, file_size,
	                    view_count, like_count, dislike_count, status, user_id, channel_id, created_at, updated_at`
)

func (s *PostgresStore) withConn(ctx context.Context, op string, fn func(ctx context.Context, conn *pgxpool.Conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return storeErr(op, err)
	}
	defer conn.Release()

	return fn(ctx, conn)
}

func (s *PostgresStore) channels() string { return pgx.Identifier{s.schema, "channels"}.Sanitize() }
func (s *PostgresStore) videos() string   { return pgx.Identifier{s.schema, "videos"}.Sanitize() }

// InsertChannel implements Store.
func (s *PostgresStore) InsertChannel(ctx context.Context, in NewChannel) (Channel, error) {
	const op = "catalog.InsertChannel"

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var out Channel
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx,
			`INSERT INTO `+s.channels()+` (name, description, banner_image_url, user_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $5)
			 RETURNING `+pgChannelColumns,
			in.Name, in.Description, in.BannerImageURL, in.OwnerID, now,
		)
		var err error
		out, err = pgScanChannel(row)
		if err != nil {
			if field, ok := pgClassifyChannelConflict(err); ok {
				return identity.ConflictError{Op: op, Field: field}
			}
			if identity.PgIsForeignKeyViolation(err) {
				return identity.NotFoundError{Op: op, Resource: "user"}
			}
			return storeErr(op, err)
		}
		return nil
	})
	return out, err
}

// FindChannelByName implements Store.
func (s *PostgresStore) FindChannelByName(ctx context.Context, name string) (Channel, bool, error) {
	return s.findChannel(ctx, "catalog.FindChannelByName", "name", name)
}

// FindChannelByOwner implements Store.
func (s *PostgresStore) FindChannelByOwner(ctx context.Context, ownerID int64) (Channel, bool, error) {
	return s.findChannel(ctx, "catalog.FindChannelByOwner", "user_id", ownerID)
}

func (s *PostgresStore) findChannel(ctx context.Context, op, column string, arg any) (Channel, bool, error) {
	var (
		c     Channel
		found bool
	)
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		var err error
		c, err = pgScanChannel(conn.QueryRow(ctx,
			`SELECT `+pgChannelColumns+` FROM `+s.channels()+` WHERE `+column+` = $1`, arg))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return storeErr(op, err)
		}
		found = true
		return nil
	})
	return c, found, err
}

// DeleteChannelCascade implements Store.
func (s *PostgresStore) DeleteChannelCascade(ctx context.Context, channelID int64, now time.Time) ([]Video, error) {
	const op = "catalog.DeleteChannelCascade"

	if now.IsZero() {
		now = time.Now().UTC()
	}

	marked := []Video{}
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
		if err != nil {
			return storeErr(op, err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		rows, err := tx.Query(ctx,
			`UPDATE `+s.videos()+`
			    SET status = $1, channel_id = NULL, updated_at = $2
			  WHERE channel_id = $3 AND status <> $1
			  RETURNING `+pgVideoColumns,
			string(StatusDeleted), now, channelID,
		)
		if err != nil {
			return storeErr(op, err)
		}
		for rows.Next() {
			v, err := pgScanVideo(rows)
			if err != nil {
				rows.Close()
				return storeErr(op, err)
			}
			marked = append(marked, v)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return storeErr(op, err)
		}

		ct, err := tx.Exec(ctx, `DELETE FROM `+s.channels()+` WHERE id = $1`, channelID)
		if err != nil {
			return storeErr(op, err)
		}
		if ct.RowsAffected() == 0 {
			return identity.NotFoundError{Op: op, Resource: "channel"}
		}
		return storeErr(op, tx.Commit(ctx))
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

// InsertVideo implements Store.
func (s *PostgresStore) InsertVideo(ctx context.Context, in NewVideo) (Video, error) {
	const op = "catalog.InsertVideo"

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var out Video
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx,
			`INSERT INTO `+s.videos()+` (title, description, file_path, file_size, status, user_id, channel_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			 RETURNING `+pgVideoColumns,
			in.Title, in.Description, in.FilePath, in.FileSize, string(StatusProcessing), in.UploaderID, in.ChannelID, now,
		)
		var err error
		out, err = pgScanVideo(row)
		if err != nil {
			if identity.PgIsForeignKeyViolation(err) {
				return identity.NotFoundError{Op: op, Resource: "user or channel"}
			}
			return storeErr(op, err)
		}
		return nil
	})
	return out, err
}

// FindVideo implements Store.
func (s *PostgresStore) FindVideo(ctx context.Context, id int64) (Video, bool, error) {
	const op = "catalog.FindVideo"

	var (
		v     Video
		found bool
	)
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		var err error
		v, err = pgScanVideo(conn.QueryRow(ctx, `SELECT `+pgVideoColumns+` FROM `+s.videos()+` WHERE id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return storeErr(op, err)
		}
		found = true
		return nil
	})
	return v, found, err
}

// UpdateVideoStatus implements Store.
func (s *PostgresStore) UpdateVideoStatus(ctx context.Context, id int64, from []VideoStatus, to VideoStatus, res EncodingResult, now time.Time) (Video, error) {
	const op = "catalog.UpdateVideoStatus"

	if now.IsZero() {
		now = time.Now().UTC()
	}

	var out Video
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		var err error
		out, err = pgScanVideo(conn.QueryRow(ctx,
			`UPDATE `+s.videos()+`
			    SET status = $1,
			        duration_seconds = COALESCE($2, duration_seconds),
			        thumbnail_url = COALESCE($3, thumbnail_url),
			        updated_at = $4
			  WHERE id = $5 AND status = ANY($6)
			  RETURNING `+pgVideoColumns,
			string(to), res.DurationSeconds, res.ThumbnailURL, now, id, statusStrings(from),
		))
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return storeErr(op, err)
		}

		var current string
		err = conn.QueryRow(ctx, `SELECT status FROM `+s.videos()+` WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.NotFoundError{Op: op, Resource: "video"}
		}
		if err != nil {
			return storeErr(op, err)
		}
		return transitionConflict(op, VideoStatus(current), to)
	})
	return out, err
}

// ListByUploader implements Store. Deleted videos are excluded.
func (s *PostgresStore) ListByUploader(ctx context.Context, uploaderID int64, page Page) ([]Video, error) {
	page = page.Normalize()
	return s.listVideos(ctx, "catalog.ListByUploader",
		`WHERE user_id = $1 AND status <> $2 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`,
		uploaderID, string(StatusDeleted), page.Limit, page.Offset,
	)
}

// ListByStatus implements Store.
func (s *PostgresStore) ListByStatus(ctx context.Context, status VideoStatus, page Page) ([]Video, error) {
	page = page.Normalize()
	return s.listVideos(ctx, "catalog.ListByStatus",
		`WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		string(status), page.Limit, page.Offset,
	)
}

// Search implements Store. Only READY videos match.
func (s *PostgresStore) Search(ctx context.Context, keyword string, page Page) ([]Video, error) {
	page = page.Normalize()
	return s.listVideos(ctx, "catalog.Search",
		`WHERE status = $1 AND (title ILIKE $2 ESCAPE '\' OR description ILIKE $2 ESCAPE '\')
		 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`,
		string(StatusReady), likePattern(keyword), page.Limit, page.Offset,
	)
}

// MostViewed implements Store.
func (s *PostgresStore) MostViewed(ctx context.Context, limit int) ([]Video, error) {
	page := Page{Limit: limit}.Normalize()
	return s.listVideos(ctx, "catalog.MostViewed",
		`WHERE status = $1 ORDER BY view_count DESC, id DESC LIMIT $2`,
		string(StatusReady), page.Limit,
	)
}

// CountByUploader implements Store. Deleted videos are excluded.
func (s *PostgresStore) CountByUploader(ctx context.Context, uploaderID int64) (int64, error) {
	const op = "catalog.CountByUploader"

	var n int64
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		return storeErr(op, conn.QueryRow(ctx,
			`SELECT count(*) FROM `+s.videos()+` WHERE user_id = $1 AND status <> $2`,
			uploaderID, string(StatusDeleted),
		).Scan(&n))
	})
	return n, err
}

// tail is a fixed clause chosen by the caller, never request input.
func (s *PostgresStore) listVideos(ctx context.Context, op, tail string, args ...any) ([]Video, error) {
	var out []Video
	err := s.withConn(ctx, op, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+pgVideoColumns+` FROM `+s.videos()+` `+tail, args...)
		if err != nil {
			return storeErr(op, err)
		}
		defer rows.Close()

		for rows.Next() {
			v, err := pgScanVideo(rows)
			if err != nil {
				return storeErr(op, err)
			}
			out = append(out, v)
		}
		return storeErr(op, rows.Err())
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Video{}
	}
	return out, nil
}

func pgScanChannel(row pgx.Row) (Channel, error) {
	var c Channel
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.BannerImageURL, &c.SubscriberCount, &c.TotalViews,
		&c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func pgScanVideo(row pgx.Row) (Video, error) {
	var (
		v      Video
		status string
	)
	err := row.Scan(&v.ID, &v.Title, &v.Description, &v.FilePath, &v.ThumbnailURL, &v.DurationSeconds, &v.FileSize,
		&v.ViewCount, &v.LikeCount, &v.DislikeCount, &status, &v.UploaderID, &v.ChannelID, &v.CreatedAt, &v.UpdatedAt)
	v.Status = VideoStatus(status)
	return v, err
}

func pgClassifyChannelConflict(err error) (string, bool) {
	c, ok := identity.PgUniqueViolationConstraint(err)
	if !ok {
		return "", false
	}
	switch {
	case c == "uq_channels_user_id" || strings.Contains(c, "user_id"):
		return "owner", true
	case c == "uq_channels_name" || strings.Contains(c, "name"):
		return "name", true
	default:
		return "unique", true
	}
}

// likePattern wraps keyword in % after escaping LIKE metacharacters with '\'.
func likePattern(keyword string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(keyword)) + "%"
}
