// Package session owns per-device outgoing transport helpers.
//
// Ownership boundary:
// - outgoing message batching under a negotiated maximum size
// - single in-flight transmission bookkeeping
// - reconnect backoff and handshake limits
// - the connection state enum and its legal transitions
//
// Inbound decoding lives in protocol/codec; the handshake gate itself lives in
// device, which drives an Outbox per device.
package session
