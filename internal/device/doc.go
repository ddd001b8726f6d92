// Package device holds the per-device session: connection state, the
// handshake gate, the outgoing batch queue and the decoded state of every
// sub-protocol.
//
// Link lifecycle:
//   - LinkUp moves notConnected -> connecting and requests RequiredTypes.
//   - After every inbound batch the gate re-requests whatever is missing,
//     including follow-ups for advertised capabilities.
//   - The gate opening moves connecting -> connected.
//   - LinkDown passes through disconnecting and clears everything except the
//     device identity.
//
// A handshake that exceeds its check budget or timeout publishes
// HandshakeFailed and disconnects the link.
package device
