package rdp

import "github.com/pkg/errors"

// Sentinel error kinds, per spec §7. Callers inspect these with
// errors.Is; internal code wraps lower-level causes onto them with
// errors.Wrap so the cause survives for logging without leaking past
// the public surface's synchronous status contract.
var (
	// ErrInvalidArgument covers a call made in the wrong state for the
	// operation, an empty or oversized vector list, an empty ReadPoll
	// buffer, or an unknown or unavailable endpoint property.
	ErrInvalidArgument = errors.New("rdp: invalid argument")

	// ErrAgain means the send window is full; the caller should retry
	// after observing EventPollout.
	ErrAgain = errors.New("rdp: resource temporarily unavailable")

	// ErrProtocol is reported by ReadPoll when an inbound SYN is refused
	// because the endpoint already tracks maxConnsPerEndpoint
	// connections. Datagrams that violate the wire contract (bad
	// version, stale duplicate, seqnr out of window, truncated extension
	// chain) are dropped without reporting an error.
	ErrProtocol = errors.New("rdp: protocol violation")

	// ErrBufferTooSmall means the caller's ReadPoll buffer can't hold
	// the next in-order payload; the packet is not consumed so the
	// caller can retry with a larger buffer.
	ErrBufferTooSmall = errors.New("rdp: supplied buffer too small")

	// ErrTimeout means a SYN_RECV or FIN_SENT connection aged out
	// without hearing from its peer.
	ErrTimeout = errors.New("rdp: connection timed out")

	// ErrClosed means the operation was attempted on a closed endpoint,
	// or was a write or close on a connection already in FIN_SENT or
	// DESTROY.
	ErrClosed = errors.New("rdp: use of closed connection")
)
