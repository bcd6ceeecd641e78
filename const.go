package rdp

import "time"

// Packet types, as laid out in the high nibble of the header's first byte.
// See http://bittorrent.org/beps/bep_0029.html.
const (
	stData  uint8 = 0
	stFin   uint8 = 1
	stState uint8 = 2
	stReset uint8 = 3
	stSyn   uint8 = 4
)

// protocolVersion is the only version this package speaks.
const protocolVersion uint8 = 1

// headerSize is the fixed base header length, in bytes.
const headerSize = 20

// sackExtension identifies the selective-ack TLV in the extension chain.
const sackExtension uint8 = 1

const (
	// queueSizeMax bounds the number of in-flight records a connection
	// will track, and how far past acknr an inbound packet may land and
	// still be buffered. Selective-ack bitmasks are capped separately in
	// sendAck, so they always fit the extension's one-byte length.
	queueSizeMax = 16 * 1024

	// bufferSizeMax is the default send/recv buffer hint and the base of
	// the window sizes below.
	bufferSizeMax = 16 * 1024 * 1024

	// windowSizeMax is the ceiling on flightWindowLimit.
	windowSizeMax = bufferSizeMax
	// windowSizeDefault is the initial flightWindowLimit, before any
	// retransmit round has resized it.
	windowSizeDefault = bufferSizeMax / 4

	windowShrinkFactor = 2
	windowExpandFactor = 2

	// maxConnsPerEndpoint caps how many live connections one Endpoint
	// will track before refusing new inbound SYNs.
	maxConnsPerEndpoint = 1024

	retransmitTimeoutMin     = 200 * time.Millisecond
	retransmitTimeoutMax     = 1000 * time.Millisecond
	retransmitTimeoutDefault = 500 * time.Millisecond

	keepaliveInterval = 29 * time.Second

	waitSynRecv = 10 * time.Second
	waitFinSent = 10 * time.Second

	// maxVec bounds the number of iovec entries accepted by WriteVec.
	maxVec = 1024

	ackRecvBehindAllowed = 10

	seqNrMask = 0xffff
	ackNrMask = 0xffff
)

// Ethernet/IPv4/UDP MTU folding used to derive the default effective MTU.
// See the WithMTU option to override this for a modern deployment that
// doesn't actually ride over the tunneling overheads folded in here.
const (
	ethernetMTU    = 1500
	ipv4HeaderSize = 20
	udpHeaderSize  = 8
	greHeaderSize  = 24
	pppoeHeaderSz  = 8
	mppeHeaderSize = 2
	fudgeHeaderSz  = 36

	udpIPv4MTU = ethernetMTU - ipv4HeaderSize - udpHeaderSize - greHeaderSize -
		pppoeHeaderSz - mppeHeaderSize - fudgeHeaderSz

	// defaultMaxPacketPayload is the default cap on a single datagram's
	// payload, derived from udpIPv4MTU minus the base header.
	defaultMaxPacketPayload = udpIPv4MTU - headerSize
)

// socketCheckTimeoutMin/Max/Default bound the hint Tick returns; the
// source leaves these implementation-defined and exports them through
// the public API (spec §4.8, §6).
const (
	socketCheckTimeoutMin     = 500 * time.Millisecond
	socketCheckTimeoutMax     = 3000 * time.Millisecond
	socketCheckTimeoutDefault = 1000 * time.Millisecond
)

// idSeedMaxAttempts bounds the number of random draws Endpoint.Connect
// makes before falling back to a deterministic linear scan for a free
// connection id (spec §8 scenario 6, §9 supplemented feature).
const idSeedMaxAttempts = 32

// connState is the connection's state-machine tag (spec §4.5).
type connState uint8

const (
	stateUninitialized connState = iota
	stateSynSent
	stateSynRecv
	stateConnected
	stateConnectedFull
	stateFinSent
	stateDestroy
)

func (s connState) String() string {
	switch s {
	case stateUninitialized:
		return "UNINITIALIZED"
	case stateSynSent:
		return "SYN_SENT"
	case stateSynRecv:
		return "SYN_RECV"
	case stateConnected:
		return "CONNECTED"
	case stateConnectedFull:
		return "CONNECTED_FULL"
	case stateFinSent:
		return "FIN_SENT"
	case stateDestroy:
		return "DESTROY"
	default:
		return "UNKNOWN"
	}
}

// Event is a bitmask of conditions ReadPoll reports back to the caller.
type Event uint32

const (
	// EventContinue means ReadPoll should be called again immediately;
	// there may be more queued work to drain.
	EventContinue Event = 1 << iota
	// EventAgain means there is nothing more to do right now.
	EventAgain
	// EventError means the call violated the caller's contract (bad
	// argument, buffer too small, or similar).
	EventError
	// EventData means bytes were delivered into the caller's buffer.
	EventData
	// EventAccept means a new inbound connection just completed its
	// handshake.
	EventAccept
	// EventConnected means an outbound connection just completed its
	// handshake.
	EventConnected
	// EventPollout means a previously full connection's window freed up.
	EventPollout
)

func (e Event) String() string {
	names := []struct {
		bit  Event
		name string
	}{
		{EventContinue, "CONTINUE"},
		{EventAgain, "AGAIN"},
		{EventError, "ERROR"},
		{EventData, "DATA"},
		{EventAccept, "ACCEPT"},
		{EventConnected, "CONNECTED"},
		{EventPollout, "POLLOUT"},
	}
	out := ""
	for _, n := range names {
		if e&n.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "NONE"
	}
	return out
}

// Prop identifies a gettable/settable endpoint property (spec §6).
type Prop int

const (
	PropFD Prop = iota
	PropSndBuf
	PropRcvBuf
)
