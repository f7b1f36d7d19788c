// Package client drives a single VICI connection to the daemon.
//
// Ownership boundary:
// - command calls, with and without streamed events
// - event registration and unregistration
// - event waiting, with and without a bounded timeout
// - read and write deadlines and the raw handle for external poll loops
//
// A Client serializes its operations. Once a frame has been partially
// consumed the stream offset is unknown and every later operation fails
// with ErrDesynchronized; callers reconnect.
package client
