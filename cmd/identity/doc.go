// Package identity implements user registration, authentication and profile
// management for the video platform.
//
// The package owns the User model, the UserStore persistence contract with its
// Postgres and SQLite implementations, and the Service that applies the
// business rules (uniqueness, credential verification, profile field
// whitelisting). Transport concerns live in internal/auth/api.
package identity
