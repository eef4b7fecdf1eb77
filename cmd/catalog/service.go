package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"vidshare/cmd/identity"
)

const (
	channelNameMin    = 3
	channelNameMax    = 100
	channelDescMax    = 1000
	videoTitleMax     = 255
	videoDescMax      = 2000
	defaultPopularCap = 10
)

// Service applies the channel and video rules on top of a Store.
type Service struct {
	store    Store
	log      *slog.Logger
	now      func() time.Time
	listener StatusListener
}

// StatusListener is told about every applied status change.
// It runs on the caller's goroutine and must not block.
type StatusListener interface {
	VideoStatusChanged(ctx context.Context, v Video)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStatusListener registers l for status changes.
func WithStatusListener(l StatusListener) Option {
	return func(s *Service) {
		s.listener = l
	}
}

// NewService wires a Service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("catalog: nil store")
	}
	s := &Service{store: store, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateChannelInput is the channel creation request.
type CreateChannelInput struct {
	Name           string
	Description    *string
	BannerImageURL *string
}

// CreateChannel creates the owner's channel. A second channel for the same owner,
// or a taken name, is a ConflictError ("owner" / "name").
func (s *Service) CreateChannel(ctx context.Context, ownerID int64, in CreateChannelInput) (Channel, error) {
	const op = "catalog.CreateChannel"

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Channel{}, invalid(op, MsgChannelNameRequired)
	}
	if n := utf8.RuneCountInString(name); n < channelNameMin || n > channelNameMax {
		return Channel{}, invalid(op, MsgChannelNameLength)
	}
	desc := trimmed(in.Description)
	if desc != nil && utf8.RuneCountInString(*desc) > channelDescMax {
		return Channel{}, invalid(op, MsgChannelDescTooLong)
	}

	c, err := s.store.InsertChannel(ctx, NewChannel{
		Name:           name,
		Description:    desc,
		BannerImageURL: trimmed(in.BannerImageURL),
		OwnerID:        ownerID,
		Now:            s.now(),
	})
	if err != nil {
		return Channel{}, err
	}
	s.log.InfoContext(ctx, "channel.create.ok", "channel_id", c.ID, "owner_id", ownerID)
	return c, nil
}

// GetChannelByName returns a channel by its exact name.
func (s *Service) GetChannelByName(ctx context.Context, name string) (Channel, error) {
	const op = "catalog.GetChannelByName"

	name = strings.TrimSpace(name)
	if name == "" {
		return Channel{}, invalid(op, MsgChannelNameRequired)
	}
	c, ok, err := s.store.FindChannelByName(ctx, name)
	if err != nil {
		return Channel{}, err
	}
	if !ok {
		return Channel{}, identity.NotFoundError{Op: op, Resource: "channel"}
	}
	return c, nil
}

// GetChannelByOwner returns the owner's channel.
func (s *Service) GetChannelByOwner(ctx context.Context, ownerID int64) (Channel, error) {
	const op = "catalog.GetChannelByOwner"

	c, ok, err := s.store.FindChannelByOwner(ctx, ownerID)
	if err != nil {
		return Channel{}, err
	}
	if !ok {
		return Channel{}, identity.NotFoundError{Op: op, Resource: "channel"}
	}
	return c, nil
}

// DeleteChannel removes the owner's channel. Its videos are marked DELETED and
// detached in the same transaction; uploader history is kept.
func (s *Service) DeleteChannel(ctx context.Context, ownerID int64) (int64, error) {
	c, err := s.GetChannelByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	marked, err := s.store.DeleteChannelCascade(ctx, c.ID, s.now())
	if err != nil {
		return 0, err
	}
	s.log.InfoContext(ctx, "channel.delete.ok", "channel_id", c.ID, "owner_id", ownerID, "videos_deleted", len(marked))
	if s.listener != nil {
		for _, v := range marked {
			s.listener.VideoStatusChanged(ctx, v)
		}
	}
	return int64(len(marked)), nil
}

// UploadInput describes an uploaded file the storage layer has already accepted.
type UploadInput struct {
	Title       string
	Description *string
	FilePath    string
	FileSize    *int64
	ChannelID   *int64
}

// RegisterUpload records a new video in PROCESSING state. Without an explicit
// channel the video joins the uploader's channel, if any.
func (s *Service) RegisterUpload(ctx context.Context, uploaderID int64, in UploadInput) (Video, error) {
	const op = "catalog.RegisterUpload"

	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return Video{}, invalid(op, MsgVideoTitleRequired)
	case utf8.RuneCountInString(title) > videoTitleMax:
		return Video{}, invalid(op, MsgVideoTitleTooLong)
	}
	desc := trimmed(in.Description)
	if desc != nil && utf8.RuneCountInString(*desc) > videoDescMax {
		return Video{}, invalid(op, MsgVideoDescTooLong)
	}
	path := strings.TrimSpace(in.FilePath)
	if path == "" {
		return Video{}, invalid(op, MsgVideoFilePathMissing)
	}

	own, hasChannel, err := s.store.FindChannelByOwner(ctx, uploaderID)
	if err != nil {
		return Video{}, err
	}
	channelID := in.ChannelID
	switch {
	case channelID != nil && (!hasChannel || own.ID != *channelID):
		return Video{}, invalid(op, MsgChannelNotOwned)
	case channelID == nil && hasChannel:
		channelID = &own.ID
	}

	v, err := s.store.InsertVideo(ctx, NewVideo{
		Title:       title,
		Description: desc,
		FilePath:    path,
		FileSize:    in.FileSize,
		UploaderID:  uploaderID,
		ChannelID:   channelID,
		Now:         s.now(),
	})
	if err != nil {
		return Video{}, err
	}
	s.log.InfoContext(ctx, "video.upload.ok", "video_id", v.ID, "uploader_id", uploaderID)
	return v, nil
}

// GetVideo returns a non-deleted video.
func (s *Service) GetVideo(ctx context.Context, id int64) (Video, error) {
	const op = "catalog.GetVideo"

	v, ok, err := s.store.FindVideo(ctx, id)
	if err != nil {
		return Video{}, err
	}
	if !ok || v.Status == StatusDeleted {
		return Video{}, identity.NotFoundError{Op: op, Resource: "video"}
	}
	return v, nil
}

// MarkReady applies a successful encoding result.
func (s *Service) MarkReady(ctx context.Context, id int64, res EncodingResult) (Video, error) {
	return s.transition(ctx, "catalog.MarkReady", id, StatusReady, res)
}

// MarkFailed records a failed encoding.
func (s *Service) MarkFailed(ctx context.Context, id int64) (Video, error) {
	return s.transition(ctx, "catalog.MarkFailed", id, StatusFailed, EncodingResult{})
}

// DeleteVideo soft-deletes a video owned by userID.
func (s *Service) DeleteVideo(ctx context.Context, userID, id int64) error {
	const op = "catalog.DeleteVideo"

	v, err := s.GetVideo(ctx, id)
	if err != nil {
		return err
	}
	// Someone else's video is reported as missing.
	if v.UploaderID != userID {
		return identity.NotFoundError{Op: op, Resource: "video"}
	}
	_, err = s.transition(ctx, op, id, StatusDeleted, EncodingResult{})
	return err
}

func (s *Service) transition(ctx context.Context, op string, id int64, to VideoStatus, res EncodingResult) (Video, error) {
	v, err := s.store.UpdateVideoStatus(ctx, id, sourcesFor(to), to, res, s.now())
	if err != nil {
		if identity.IsConflict(err) {
			s.log.WarnContext(ctx, "video.status.rejected", "op", op, "video_id", id, "to", to, "err", err)
		}
		return Video{}, err
	}
	s.log.InfoContext(ctx, "video.status.ok", "op", op, "video_id", id, "status", v.Status)
	if s.listener != nil {
		s.listener.VideoStatusChanged(ctx, v)
	}
	return v, nil
}

// ListByUploader lists an uploader's non-deleted videos, newest first.
func (s *Service) ListByUploader(ctx context.Context, uploaderID int64, page Page) ([]Video, error) {
	return s.store.ListByUploader(ctx, uploaderID, page)
}

// ListByStatus lists videos in status, newest first.
func (s *Service) ListByStatus(ctx context.Context, status VideoStatus, page Page) ([]Video, error) {
	const op = "catalog.ListByStatus"

	if _, ok := ParseStatus(string(status)); !ok {
		return nil, invalid(op, MsgStatusInvalid)
	}
	return s.store.ListByStatus(ctx, status, page)
}

// Search matches keyword case-insensitively against READY video titles and descriptions.
func (s *Service) Search(ctx context.Context, keyword string, page Page) ([]Video, error) {
	const op = "catalog.Search"

	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, invalid(op, MsgSearchKeyword)
	}
	return s.store.Search(ctx, keyword, page)
}

// MostViewed returns the most viewed READY videos.
func (s *Service) MostViewed(ctx context.Context, limit int) ([]Video, error) {
	if limit <= 0 {
		limit = defaultPopularCap
	}
	return s.store.MostViewed(ctx, limit)
}

// CountByUploader counts an uploader's non-deleted videos.
func (s *Service) CountByUploader(ctx context.Context, uploaderID int64) (int64, error) {
	return s.store.CountByUploader(ctx, uploaderID)
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
