// Package radiosession implements the client-side session engine for a
// family of split control/data-plane SDR transceivers: a line-oriented TCP
// control channel (commands, replies, status, notices) and a binary UDP
// data plane (panadapter, waterfall, meter, and audio streams).
//
// The engine owns three things: the control protocol (framing, request/reply
// correlation, keep-alive), a reactive state store that turns status
// messages into typed entity snapshots, and a data-plane demultiplexer that
// assembles and dispatches stream frames. Entity controllers in the control
// subpackage are thin façades over the session's command channel and the
// store's patch methods; the transport itself (TCP/UDP sockets, or a
// WebSocket bridge) is supplied by the host through the Transport
// interfaces, or created with the defaults in the transport subpackage.
package radiosession
