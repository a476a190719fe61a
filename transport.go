package radiosession

import (
	"context"
	"io"
)

// ControlTransport is the host-supplied control-channel connection: a
// reliable, ordered byte stream (normally TCP) carrying newline-delimited
// protocol lines in both directions. The session never dials a socket
// itself; the host passes in a connected transport (transport.DialControl
// returns a ready-made TCP one). Any io.ReadWriteCloser
// that preserves line ordering (a TCP conn, a TLS conn, an in-process pipe
// for tests) satisfies it.
type ControlTransport interface {
	io.ReadWriteCloser
}

// DataTransport is the host-supplied data-plane connection: an unordered,
// unreliable, datagram-oriented channel (normally UDP multicast) carrying
// whole binary frames. ReadFrame returns one complete datagram per call;
// implementations must not coalesce or split datagrams.
type DataTransport interface {
	// ReadFrame blocks until one datagram is available, ctx is done, or the
	// transport is closed. It returns the raw frame bytes (caller-owned; the
	// transport must not reuse the backing array after returning it).
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}
