// Package protocol owns the VICI wire contract and its error kinds.
//
// Ownership boundary:
// - wire: element/message codec
// - packet: packet type table and packet body encoding
// - frame: length-prefixed framing and size ceilings
// - session: connection configuration and subscription bookkeeping
package protocol
