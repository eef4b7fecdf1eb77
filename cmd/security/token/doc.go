// Package token holds small secret-handling primitives shared by the auth layers:
// loading HMAC signing secrets from the environment and producing log-safe
// fingerprints of user-supplied identifiers.
package token
