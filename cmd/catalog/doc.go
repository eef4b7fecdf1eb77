// Package catalog owns channels and videos: the one-channel-per-owner rule,
// the video status state machine and the read models served by the router.
//
// Persistence shares the relational database with the identity package;
// errors use the identity error taxonomy so the router maps both the same way.
package catalog
