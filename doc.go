// Package rdp implements a reliable, ordered, connection-oriented
// byte-stream transport layered over UDP datagrams, in the style of the
// uTP family described by BEP-29: fixed 20-byte headers, 16-bit
// sequence/ack numbers, selective acknowledgment, RTT-estimated
// retransmission, and windowed congestion control.
//
// A single Endpoint owns one UDP socket and multiplexes many independent
// Conns to different peers. The endpoint is single-threaded and
// non-blocking: callers drive it by invoking ReadPoll until it reports
// Again, then Tick at the returned interval. Nothing in this package
// spawns a goroutine or blocks on I/O.
package rdp
