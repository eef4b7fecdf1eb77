// Package authapi is the HTTP surface of vidshare: one chi router shared by the
// long-running server and the serverless entry point.
//
// Handlers decode requests, call the identity and catalog services, and map
// their errors to status codes. This is the only place that mapping happens.
package authapi
