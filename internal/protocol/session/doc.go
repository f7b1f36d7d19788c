// Package session owns per-connection settings shared by the client and the
// listener.
//
// Ownership boundary:
// - daemon endpoint parsing and transport validation
// - connect retry backoff
// - connection-wide event subscription bookkeeping
package session
