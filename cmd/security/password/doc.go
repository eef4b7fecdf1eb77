// Package password hashes and verifies user passwords.
//
// New hashes are Argon2id in the PHC string format. Hashes carried over from
// the bcrypt-based predecessor system still verify, and NeedsRehash tells
// callers when a stored hash should be replaced after a successful login.
//
// Hash strings are treated as untrusted input: Verify refuses parameters far
// above the configured cost.
package password
