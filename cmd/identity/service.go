package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vidshare/cmd/security/password"
	"vidshare/cmd/security/token"
)

// Client-facing messages. The router copies them verbatim into error bodies.
const (
	MsgUsernameRequired      = "Username is required"
	MsgEmailRequired         = "Email is required"
	MsgPasswordRequired      = "Password is required"
	MsgInvalidCredentials    = "Invalid username or password"
	MsgUsernameParamRequired = "Username parameter is required"
	MsgPasswordTooWeak       = "Password is too weak"
)

// dummyPassword is hashed once and verified against when a login names an unknown
// user, so both failure paths spend the same hashing time.
const dummyPassword = "timing-equalizer-not-a-real-password"

// Service applies the identity business rules on top of a UserStore and a PasswordHasher.
// It is safe for concurrent use; it holds no per-request state.
type Service struct {
	store  UserStore
	hasher PasswordHasher
	log    *slog.Logger
	cache  ProfileCache
	events EventPublisher
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithProfileCache enables read-through caching of public profiles.
func WithProfileCache(c ProfileCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithEventPublisher enables domain events.
func WithEventPublisher(p EventPublisher) ServiceOption {
	return func(s *Service) { s.events = p }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service.
func NewService(store UserStore, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: nil store")
	}
	if hasher == nil {
		return nil, errors.New("identity: nil password hasher")
	}
	s := &Service{
		store:  store,
		hasher: hasher,
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register validates input, checks uniqueness, hashes the password and inserts the user.
//
// Validation reports the first violated rule in the order username, email, password.
// The Exists* pre-checks are a fast path only: a concurrent registration that wins the
// race surfaces as the store's ConflictError, which is the same outcome.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	const op = "identity.Register"

	username := NormalizeUsername(in.Username)
	email := NormalizeEmail(in.Email)
	if username == "" {
		return User{}, invalid(op, MsgUsernameRequired)
	}
	if email == "" {
		return User{}, invalid(op, MsgEmailRequired)
	}
	if err := s.hasher.Validate(in.Password); err != nil {
		return User{}, invalid(op, passwordPolicyMessage(err))
	}

	taken, err := s.store.ExistsByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	taken, err = s.store.ExistsByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("%s: hash: %w", op, err)
	}

	u, err := s.store.Insert(ctx, NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  username,
		Now:          s.now(),
	})
	if err != nil {
		if IsConflict(err) {
			s.log.InfoContext(ctx, "auth.register.race_conflict", "op", op)
		}
		return User{}, err
	}

	s.log.InfoContext(ctx, "auth.register.ok", "user_id", u.ID)

	if s.events != nil {
		if err := s.events.UserRegistered(ctx, u); err != nil {
			s.log.WarnContext(ctx, "auth.register.event.fail", "user_id", u.ID, "err", err)
		}
	}
	return u, nil
}

// Login verifies credentials. Unknown user and wrong password fail with the identical
// InvalidCredentials error, after the same amount of hashing work.
func (s *Service) Login(ctx context.Context, username, plain string) (User, error) {
	const op = "identity.Login"

	username = NormalizeUsername(username)
	if username == "" {
		return User{}, invalid(op, MsgUsernameRequired)
	}
	if strings.TrimSpace(plain) == "" {
		return User{}, invalid(op, MsgPasswordRequired)
	}

	fail := OpError{Op: op, Kind: ErrInvalidCredentials, Msg: MsgInvalidCredentials}

	u, found, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if !found {
		if h := s.timingHash(); h != "" {
			_, _ = s.hasher.Verify(h, plain)
		}
		s.log.InfoContext(ctx, "auth.login.fail", "reason", "unknown_user", "username_fp", token.Fingerprint(username))
		return User{}, fail
	}

	ok, err := s.hasher.Verify(u.PasswordHash, plain)
	if err != nil {
		s.log.ErrorContext(ctx, "auth.login.verify.fail", "user_id", u.ID, "err", err)
		return User{}, fail
	}
	if !ok {
		s.log.InfoContext(ctx, "auth.login.fail", "reason", "bad_password", "user_id", u.ID)
		return User{}, fail
	}

	if s.hasher.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u, plain)
	}

	s.log.InfoContext(ctx, "auth.login.ok", "user_id", u.ID)
	return u, nil
}

// rehash upgrades a legacy or weak stored hash. Failure never fails the login.
func (s *Service) rehash(ctx context.Context, u User, plain string) {
	fresh, err := s.hasher.Hash(plain)
	if err != nil {
		// Legacy passwords may predate the current policy; keep the old hash.
		s.log.InfoContext(ctx, "auth.login.rehash.skip", "user_id", u.ID, "err", err)
		return
	}
	if err := s.store.UpdatePasswordHash(ctx, u.ID, fresh, s.now()); err != nil {
		s.log.WarnContext(ctx, "auth.login.rehash.fail", "user_id", u.ID, "err", err)
		return
	}
	s.log.InfoContext(ctx, "auth.login.rehash.ok", "user_id", u.ID)
}

func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.log.Warn("auth.login.dummy_hash.fail", "err", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// CheckUsernameAvailable is a pure read.
func (s *Service) CheckUsernameAvailable(ctx context.Context, username string) (Availability, error) {
	const op = "identity.CheckUsernameAvailable"

	username = NormalizeUsername(username)
	if username == "" {
		return Availability{}, invalid(op, MsgUsernameParamRequired)
	}
	exists, err := s.store.ExistsByUsername(ctx, username)
	if err != nil {
		return Availability{}, err
	}
	return Availability{Exists: exists, Available: !exists}, nil
}

// GetOwnProfile returns the full record of the authenticated principal.
// Callers must render it without PasswordHash.
func (s *Service) GetOwnProfile(ctx context.Context, id int64) (User, error) {
	const op = "identity.GetOwnProfile"

	u, found, err := s.store.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !found {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, nil
}

// GetPublicProfile returns another user's public view, reading through the profile cache.
func (s *Service) GetPublicProfile(ctx context.Context, username string) (PublicProfile, error) {
	const op = "identity.GetPublicProfile"

	username = NormalizeUsername(username)
	if username == "" {
		return PublicProfile{}, invalid(op, MsgUsernameRequired)
	}

	if s.cache != nil {
		p, ok, err := s.cache.Get(ctx, username)
		switch {
		case err != nil:
			s.log.WarnContext(ctx, "profile.cache.get.fail", "err", err)
		case ok:
			return p, nil
		}
	}

	u, found, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return PublicProfile{}, err
	}
	if !found {
		return PublicProfile{}, NotFoundError{Op: op, Resource: "user"}
	}

	p := u.Public()
	if s.cache != nil {
		if err := s.cache.Set(ctx, p); err != nil {
			s.log.WarnContext(ctx, "profile.cache.set.fail", "err", err)
		}
	}
	return p, nil
}

// UpdateProfile applies the whitelisted fields of patch to the principal's record.
// Fields outside ProfilePatch cannot be expressed and are therefore never changed.
func (s *Service) UpdateProfile(ctx context.Context, id int64, patch ProfilePatch) (User, error) {
	u, err := s.store.UpdatePartial(ctx, id, patch, s.now())
	if err != nil {
		return User{}, err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, u.Username); err != nil {
			s.log.WarnContext(ctx, "profile.cache.invalidate.fail", "user_id", u.ID, "err", err)
		}
	}
	s.log.InfoContext(ctx, "profile.update.ok", "user_id", u.ID)
	return u, nil
}

// ResolveUsername maps a username to its user id.
func (s *Service) ResolveUsername(ctx context.Context, username string) (int64, error) {
	p, err := s.GetPublicProfile(ctx, username)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

func passwordPolicyMessage(err error) string {
	var le password.LengthError
	if errors.As(err, &le) {
		if errors.Is(le.Kind, password.ErrPasswordTooLong) {
			return fmt.Sprintf("Password must be at most %d characters", le.Limit)
		}
		return fmt.Sprintf("Password must be at least %d characters", le.Limit)
	}
	if errors.Is(err, password.ErrWeakPassword) {
		return MsgPasswordTooWeak
	}
	return "Invalid password"
}
