package identity

import "time"

// User is the platform's identity record.
// PasswordHash is opaque and must never leave the service boundary.
type User struct {
	ID              int64
	Username        string
	Email           string
	PasswordHash    string
	DisplayName     string
	ProfileImageURL *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Public returns the reduced view shown to other users (no email, no hash).
func (u User) Public() PublicProfile {
	return PublicProfile{
		ID:              u.ID,
		Username:        u.Username,
		DisplayName:     u.DisplayName,
		ProfileImageURL: u.ProfileImageURL,
		CreatedAt:       u.CreatedAt,
	}
}

// PublicProfile is the "other user" view of a User.
type PublicProfile struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"displayName"`
	ProfileImageURL *string   `json:"profileImageUrl"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewUser is the insert payload. The store assigns ID and timestamps.
type NewUser struct {
	Username        string
	Email           string
	PasswordHash    string
	DisplayName     string
	ProfileImageURL *string
	Now             time.Time
}

// Patch is an optional field update. Present=false leaves the field untouched;
// Present=true with a nil Value clears it (display name falls back to the username).
type Patch struct {
	Present bool
	Value   *string
}

// Set returns a Patch that assigns v.
func Set(v string) Patch { return Patch{Present: true, Value: &v} }

// Clear returns a Patch that clears the field.
func Clear() Patch { return Patch{Present: true} }

// ProfilePatch lists the only fields a profile update may touch.
// Username, email and password are deliberately absent.
type ProfilePatch struct {
	DisplayName     Patch
	ProfileImageURL Patch
}

// Empty reports whether no field is present.
func (p ProfilePatch) Empty() bool { return !p.DisplayName.Present && !p.ProfileImageURL.Present }

// Availability is the result of a username availability check.
type Availability struct {
	Exists    bool `json:"exists"`
	Available bool `json:"available"`
}
