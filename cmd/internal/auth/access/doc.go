// Package access issues and verifies the bearer access tokens handed out at login.
//
// Two formats are supported: PASETO v4.public (Ed25519, the default) and HS256 JWT.
// Tokens carry only the user id, issuer and validity window; there is no server-side
// session state and no refresh flow.
package access
