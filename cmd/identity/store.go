package identity

import (
	"context"
	"time"
)

// UserStore is the persistence boundary for users.
//
// Contract:
//   - Lookups are exact, case-sensitive matches. Absence is reported as
//     (zero, false, nil), never as an error.
//   - Insert assigns ID and both timestamps and returns ConflictError{Field}
//     when a unique constraint rejects the row. This is the authoritative
//     race guard; Exists* checks are only a fast path.
//   - UpdatePartial touches display name and profile image only, always
//     refreshes updated_at, and returns NotFoundError for an unknown id.
//   - Engine failures are returned as StoreError.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (User, bool, error)
	FindByUsername(ctx context.Context, username string) (User, bool, error)
	FindByEmail(ctx context.Context, email string) (User, bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, in NewUser) (User, error)
	UpdatePartial(ctx context.Context, id int64, patch ProfilePatch, now time.Time) (User, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string, now time.Time) error
}

// PasswordHasher is the Password Verifier. security/password.Config satisfies it.
type PasswordHasher interface {
	Validate(plain string) error
	Hash(plain string) (string, error)
	Verify(encodedHash, plain string) (bool, error)
	NeedsRehash(encodedHash string) bool
}

// ProfileCache caches public profiles by username.
type ProfileCache interface {
	Get(ctx context.Context, username string) (PublicProfile, bool, error)
	Set(ctx context.Context, p PublicProfile) error
	Delete(ctx context.Context, username string) error
}

// EventPublisher receives identity domain events.
type EventPublisher interface {
	UserRegistered(ctx context.Context, u User) error
}
