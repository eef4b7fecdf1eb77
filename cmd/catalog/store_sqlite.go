package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"vidshare/cmd/identity"
)

// SQLiteStore implements Store over the SQLite database shared with identity.SQLiteStore.
// The users table must exist before NewSQLiteStore runs.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

var _ Store = (*SQLiteStore)(nil)

const sqliteCatalogDDL = `
CREATE TABLE IF NOT EXISTS channels (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT    NOT NULL,
	description      TEXT,
	banner_image_url TEXT,
	subscriber_count INTEGER NOT NULL DEFAULT 0 CHECK (subscriber_count >= 0),
	total_views      INTEGER NOT NULL DEFAULT 0 CHECK (total_views >= 0),
	user_id          INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	CONSTRAINT uq_channels_name UNIQUE (name),
	CONSTRAINT uq_channels_user_id UNIQUE (user_id)
);

CREATE TABLE IF NOT EXISTS videos (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	title            TEXT    NOT NULL,
	description      TEXT,
	file_path        TEXT    NOT NULL,
	thumbnail_url    TEXT,
	duration_seconds INTEGER,
	file_size        INTEGER,
	view_count       INTEGER NOT NULL DEFAULT 0 CHECK (view_count >= 0),
	like_count       INTEGER NOT NULL DEFAULT 0 CHECK (like_count >= 0),
	dislike_count    INTEGER NOT NULL DEFAULT 0 CHECK (dislike_count >= 0),
	status           TEXT    NOT NULL DEFAULT 'PROCESSING'
	                 CHECK (status IN ('PROCESSING', 'READY', 'FAILED', 'DELETED')),
	user_id          INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	channel_id       INTEGER REFERENCES channels(id) ON DELETE SET NULL,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_videos_user_id ON videos (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_videos_status ON videos (status, created_at);
CREATE INDEX IF NOT EXISTS idx_videos_channel_id ON videos (channel_id);
`

const (
	sqliteChannelColumns = `id, name, description, banner_image_url, subscriber_count, total_views, user_id, created_at, updated_at`
	sqliteVideoColumns   = `id, title, description, file_path, thumbnail_url, duration_seconds, file_size,
	                        view_count, like_count, dislike_count, status, user_id, channel_id, created_at, updated_at`
)

// NewSQLiteStore creates the channels and videos tables when missing.
func NewSQLiteStore(ctx context.Context, db *sql.DB, callTimeout time.Duration) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("catalog: nil db")
	}
	if callTimeout <= 0 {
		callTimeout = identity.DefaultCallTimeout
	}
	if _, err := db.ExecContext(ctx, sqliteCatalogDDL); err != nil {
		return nil, storeErr("catalog.NewSQLiteStore", err)
	}
	return &SQLiteStore{db: db, timeout: callTimeout}, nil
}

func (s *SQLiteStore) withConn(ctx context.Context, op string, fn func(ctx context.Context, conn *sql.Conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return storeErr(op, err)
	}
	defer func() { _ = conn.Close() }()

	return fn(ctx, conn)
}

// InsertChannel implements Store.
func (s *SQLiteStore) InsertChannel(ctx context.Context, in NewChannel) (Channel, error) {
	const op = "catalog.InsertChannel"

	now := ms(in.Now)

	var out Channel
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		out, err = sqliteScanChannel(conn.QueryRowContext(ctx,
			`INSERT INTO channels (name, description, banner_image_url, user_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 RETURNING `+sqliteChannelColumns,
			in.Name, in.Description, in.BannerImageURL, in.OwnerID, now, now,
		))
		if err != nil {
			if msg, ok := identity.SQLiteIsUniqueViolation(err); ok {
				field := "name"
				if strings.Contains(msg, "channels.user_id") {
					field = "owner"
				}
				return identity.ConflictError{Op: op, Field: field}
			}
			if identity.SQLiteIsForeignKeyViolation(err) {
				return identity.NotFoundError{Op: op, Resource: "user"}
			}
			return storeErr(op, err)
		}
		return nil
	})
	return out, err
}

// FindChannelByName implements Store.
func (s *SQLiteStore) FindChannelByName(ctx context.Context, name string) (Channel, bool, error) {
	return s.findChannel(ctx, "catalog.FindChannelByName", "name", name)
}

// FindChannelByOwner implements Store.
func (s *SQLiteStore) FindChannelByOwner(ctx context.Context, ownerID int64) (Channel, bool, error) {
	return s.findChannel(ctx, "catalog.FindChannelByOwner", "user_id", ownerID)
}

func (s *SQLiteStore) findChannel(ctx context.Context, op, column string, arg any) (Channel, bool, error) {
	var (
		c     Channel
		found bool
	)
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		c, err = sqliteScanChannel(conn.QueryRowContext(ctx,
			`SELECT `+sqliteChannelColumns+` FROM channels WHERE `+column+` = ?`, arg))
		if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) DeleteChannelCascade(ctx context.Context, channelID int64, now time.Time) ([]Video, error) {
	const op = "catalog.DeleteChannelCascade"

	marked := []Video{}
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return storeErr(op, err)
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx,
			`UPDATE videos SET status = ?, channel_id = NULL, updated_at = ?
			  WHERE channel_id = ? AND status <> ?
			  RETURNING `+sqliteVideoColumns,
			string(StatusDeleted), ms(now), channelID, string(StatusDeleted),
		)
		if err != nil {
			return storeErr(op, err)
		}
		for rows.Next() {
			v, err := sqliteScanVideo(rows)
			if err != nil {
				_ = rows.Close()
				return storeErr(op, err)
			}
			marked = append(marked, v)
		}
		if err := rows.Close(); err != nil {
			return storeErr(op, err)
		}
		if err := rows.Err(); err != nil {
			return storeErr(op, err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, channelID)
		if err != nil {
			return storeErr(op, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storeErr(op, err)
		}
		if n == 0 {
			return identity.NotFoundError{Op: op, Resource: "channel"}
		}
		return storeErr(op, tx.Commit())
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

// InsertVideo implements Store.
func (s *SQLiteStore) InsertVideo(ctx context.Context, in NewVideo) (Video, error) {
	const op = "catalog.InsertVideo"

	now := ms(in.Now)

	var out Video
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		out, err = sqliteScanVideo(conn.QueryRowContext(ctx,
			`INSERT INTO videos (title, description, file_path, file_size, status, user_id, channel_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 RETURNING `+sqliteVideoColumns,
			in.Title, in.Description, in.FilePath, in.FileSize, string(StatusProcessing), in.UploaderID, in.ChannelID, now, now,
		))
		if err != nil {
			if identity.SQLiteIsForeignKeyViolation(err) {
				return identity.NotFoundError{Op: op, Resource: "user or channel"}
			}
			return storeErr(op, err)
		}
		return nil
	})
	return out, err
}

// FindVideo implements Store.
func (s *SQLiteStore) FindVideo(ctx context.Context, id int64) (Video, bool, error) {
	const op = "catalog.FindVideo"

	var (
		v     Video
		found bool
	)
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		v, err = sqliteScanVideo(conn.QueryRowContext(ctx, `SELECT `+sqliteVideoColumns+` FROM videos WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) UpdateVideoStatus(ctx context.Context, id int64, from []VideoStatus, to VideoStatus, res EncodingResult, now time.Time) (Video, error) {
	const op = "catalog.UpdateVideoStatus"

	if len(from) == 0 {
		return Video{}, invalid(op, "no source status")
	}

	args := []any{string(to), res.DurationSeconds, res.ThumbnailURL, ms(now), id}
	for _, st := range from {
		args = append(args, string(st))
	}
	in := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")

	var out Video
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		out, err = sqliteScanVideo(conn.QueryRowContext(ctx,
			`UPDATE videos
			    SET status = ?,
			        duration_seconds = COALESCE(?, duration_seconds),
			        thumbnail_url = COALESCE(?, thumbnail_url),
			        updated_at = ?
			  WHERE id = ? AND status IN (`+in+`)
			  RETURNING `+sqliteVideoColumns,
			args...,
		))
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return storeErr(op, err)
		}

		var current string
		err = conn.QueryRowContext(ctx, `SELECT status FROM videos WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) ListByUploader(ctx context.Context, uploaderID int64, page Page) ([]Video, error) {
	page = page.Normalize()
	return s.listVideos(ctx, "catalog.ListByUploader",
		`WHERE user_id = ? AND status <> ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		uploaderID, string(StatusDeleted), page.Limit, page.Offset,
	)
}

// ListByStatus implements Store.
func (s *SQLiteStore) ListByStatus(ctx context.Context, status VideoStatus, page Page) ([]Video, error) {
	page = page.Normalize()
	return s.listVideos(ctx, "catalog.ListByStatus",
		`WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		string(status), page.Limit, page.Offset,
	)
}

// Search implements Store. SQLite LIKE is case-insensitive for ASCII.
func (s *SQLiteStore) Search(ctx context.Context, keyword string, page Page) ([]Video, error) {
	page = page.Normalize()
	pattern := likePattern(keyword)
	return s.listVideos(ctx, "catalog.Search",
		`WHERE status = ? AND (title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		string(StatusReady), pattern, pattern, page.Limit, page.Offset,
	)
}

// MostViewed implements Store.
func (s *SQLiteStore) MostViewed(ctx context.Context, limit int) ([]Video, error) {
	page := Page{Limit: limit}.Normalize()
	return s.listVideos(ctx, "catalog.MostViewed",
		`WHERE status = ? ORDER BY view_count DESC, id DESC LIMIT ?`,
		string(StatusReady), page.Limit,
	)
}

// CountByUploader implements Store. Deleted videos are excluded.
func (s *SQLiteStore) CountByUploader(ctx context.Context, uploaderID int64) (int64, error) {
	const op = "catalog.CountByUploader"

	var n int64
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		return storeErr(op, conn.QueryRowContext(ctx,
			`SELECT count(*) FROM videos WHERE user_id = ? AND status <> ?`,
			uploaderID, string(StatusDeleted),
		).Scan(&n))
	})
	return n, err
}

func (s *SQLiteStore) listVideos(ctx context.Context, op, tail string, args ...any) ([]Video, error) {
	out := []Video{}
	err := s.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT `+sqliteVideoColumns+` FROM videos `+tail, args...)
		if err != nil {
			return storeErr(op, err)
		}
		defer rows.Close()

		for rows.Next() {
			v, err := sqliteScanVideo(rows)
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
	return out, nil
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func sqliteScanChannel(row sqliteScanner) (Channel, error) {
	var (
		c                Channel
		desc, banner     sql.NullString
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.Name, &desc, &banner, &c.SubscriberCount, &c.TotalViews, &c.OwnerID, &created, &updated); err != nil {
		return Channel{}, err
	}
	c.Description = nullString(desc)
	c.BannerImageURL = nullString(banner)
	c.CreatedAt = time.UnixMilli(created).UTC()
	c.UpdatedAt = time.UnixMilli(updated).UTC()
	return c, nil
}

func sqliteScanVideo(row sqliteScanner) (Video, error) {
	var (
		v                Video
		desc, thumb      sql.NullString
		duration         sql.NullInt32
		size, channel    sql.NullInt64
		status           string
		created, updated int64
	)
	if err := row.Scan(&v.ID, &v.Title, &desc, &v.FilePath, &thumb, &duration, &size,
		&v.ViewCount, &v.LikeCount, &v.DislikeCount, &status, &v.UploaderID, &channel, &created, &updated); err != nil {
		return Video{}, err
	}
	v.Description = nullString(desc)
	v.ThumbnailURL = nullString(thumb)
	if duration.Valid {
		d := duration.Int32
		v.DurationSeconds = &d
	}
	if size.Valid {
		n := size.Int64
		v.FileSize = &n
	}
	if channel.Valid {
		id := channel.Int64
		v.ChannelID = &id
	}
	v.Status = VideoStatus(status)
	v.CreatedAt = time.UnixMilli(created).UTC()
	v.UpdatedAt = time.UnixMilli(updated).UTC()
	return v, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func ms(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().UnixMilli()
}
