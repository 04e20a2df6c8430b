// Package session owns the framed TCP transport shared by both ends of a link.
//
// Ownership boundary:
// - one logical connection per Transport (initiator dials, listener accepts)
// - outbound FIFO, length-prefixed framing, heartbeat and dead-peer detection
// - reset/reconnect with backoff and connected/disconnected notifications
//
// Initiator and Listener differ only in how a connection is obtained; the
// connection loop itself lives in link and is shared by both.
package session
