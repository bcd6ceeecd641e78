package rdp

import (
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
)

// connKey demultiplexes inbound datagrams the way the reference
// implementation's conn list lookup does: by peer address plus the
// connection id the *receiver* owns (spec §4.4). A SYN's connId+1
// collides deliberately with the acceptor's recvID, so the same map
// serves both the steady-state STATE/DATA/FIN lookup and SYN-retry
// detection.
type connKey struct {
	addr   string
	recvID uint16
}

// Endpoint owns exactly one UDP socket and every Conn multiplexed over
// it (spec §3 "Endpoint (state)"). It is not safe for concurrent use:
// ReadPoll and Tick are meant to be called from one goroutine's loop,
// never blocking it (spec §5).
type Endpoint struct {
	conn   net.PacketConn
	config endpointConfig

	maxPacketPayload int

	conns []*Conn
	byKey map[connKey]*Conn

	now              time.Time
	lastCheck        time.Time
	nextCheckTimeout time.Duration

	rng     *rand.Rand
	recvBuf []byte

	fdOverride int
	closed     bool
}

// NewEndpoint opens network/address (e.g. "udp", ":0") and returns an
// Endpoint ready for ReadPoll/Tick (spec §6 endpoint_create). The RNG
// backing id_seed generation is private to this Endpoint, seeded from
// wall clock, never the process-global math/rand source (spec §9).
func NewEndpoint(network, address string, opts ...EndpointOption) (*Endpoint, error) {
	cfg := defaultEndpointConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	pc, err := net.ListenPacket(network, address)
	if err != nil {
		return nil, errors.Wrap(err, "rdp: listen")
	}

	now := time.Now()
	e := &Endpoint{
		conn:             pc,
		config:           cfg,
		maxPacketPayload: cfg.maxPacketPayload,
		byKey:            make(map[connKey]*Conn),
		now:              now,
		lastCheck:        now,
		nextCheckTimeout: socketCheckTimeoutDefault,
		rng:              rand.New(rand.NewSource(now.UnixNano())),
		recvBuf:          make([]byte, headerSize+cfg.maxPacketPayload+64),
		fdOverride:       -1,
	}

	e.config.logger.WithField("addr", pc.LocalAddr()).Debug("rdp: endpoint created")
	return e, nil
}

// Close releases the underlying socket (spec §6 endpoint_destroy). It
// does not wait for in-flight connections to drain; callers that care
// should close each Conn first.
func (e *Endpoint) Close() error {
	if e.closed {
		return errors.Wrap(ErrClosed, "rdp: close")
	}
	e.closed = true
	return errors.Wrap(e.conn.Close(), "rdp: close")
}

// LocalAddr returns the socket's bound local address.
func (e *Endpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }

// GetProp reads an informational endpoint property (spec §6).
func (e *Endpoint) GetProp(p Prop) (int, error) {
	if e.closed {
		return 0, errors.Wrap(ErrClosed, "rdp: get prop")
	}
	switch p {
	case PropFD:
		if e.fdOverride >= 0 {
			return e.fdOverride, nil
		}
		fc, ok := e.conn.(interface{ File() (*os.File, error) })
		if !ok {
			return 0, errors.Wrap(ErrInvalidArgument, "rdp: fd not available for this transport")
		}
		f, err := fc.File()
		if err != nil {
			return 0, errors.Wrap(err, "rdp: fd")
		}
		defer f.Close()
		return int(f.Fd()), nil
	case PropSndBuf:
		return e.config.sendBufferHint, nil
	case PropRcvBuf:
		return e.config.recvBufferHint, nil
	default:
		return 0, errors.Wrap(ErrInvalidArgument, "rdp: unknown prop")
	}
}

// SetProp writes an informational endpoint property (spec §6).
func (e *Endpoint) SetProp(p Prop, val int) error {
	if e.closed {
		return errors.Wrap(ErrClosed, "rdp: set prop")
	}
	switch p {
	case PropFD:
		e.fdOverride = val
		return nil
	case PropSndBuf:
		e.config.sendBufferHint = val
		return nil
	case PropRcvBuf:
		e.config.recvBufferHint = val
		return nil
	default:
		return errors.Wrap(ErrInvalidArgument, "rdp: unknown prop")
	}
}

// NewConn allocates an unbound connection (spec §6 connection_create).
// It isn't usable until passed to Connect.
func (e *Endpoint) NewConn() *Conn {
	return newConn(e)
}

// Connect binds c to addr, assigns its connection-id pair, registers
// it with the endpoint, and sends the initial SYN (spec §6 connect;
// §4.4 connection identification; §8 scenario 6's bounded id_seed
// retry).
func (e *Endpoint) Connect(c *Conn, addr net.Addr) error {
	if e.closed {
		return errors.Wrap(ErrClosed, "rdp: connect")
	}
	if c.state != stateUninitialized {
		return errors.Wrapf(ErrInvalidArgument, "connect in state %s", c.state)
	}

	e.now = time.Now()

	seed := e.assignIDSeed(addr)
	c.idSeed = seed
	c.recvID = seed
	c.sendID = seed + 1
	c.peerAddr = addr

	e.registerConn(c)

	return c.connect(addr)
}

// NetConnect resolves address on network and connects a freshly
// created connection to it in one call (spec §6 net_connect; rdp.c's
// rdpNetConnect).
func (e *Endpoint) NetConnect(network, address string) (*Conn, error) {
	addr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, errors.Wrap(err, "rdp: resolve")
	}
	c := e.NewConn()
	if err := e.Connect(c, addr); err != nil {
		return nil, err
	}
	return c, nil
}

// assignIDSeed draws a random 16-bit id_seed that doesn't collide with
// any live connection's recvID for this peer address, retrying up to
// idSeedMaxAttempts times before falling back to a deterministic
// linear scan (spec §9's supplemented bound on the reference
// implementation's unbounded retry loop).
func (e *Endpoint) assignIDSeed(addr net.Addr) uint16 {
	addrStr := addr.String()
	for attempt := 0; attempt < idSeedMaxAttempts; attempt++ {
		seed := uint16(e.rng.Intn(1 << 16))
		if _, exists := e.byKey[connKey{addrStr, seed}]; !exists {
			return seed
		}
	}
	for seed := 0; seed < (1 << 16); seed++ {
		if _, exists := e.byKey[connKey{addrStr, uint16(seed)}]; !exists {
			return uint16(seed)
		}
	}
	// Unreachable except when RDP_MAX_CONNS_PER_RDPSOCKET has somehow
	// been bypassed: every 16-bit id is taken for this peer.
	return 0
}

func (e *Endpoint) registerConn(c *Conn) {
	e.conns = append(e.conns, c)
	e.byKey[connKey{c.peerAddr.String(), c.recvID}] = c
}

func (e *Endpoint) sendTo(addr net.Addr, buf []byte) error {
	_, err := e.conn.WriteTo(buf, addr)
	return errors.Wrap(err, "rdp: write")
}

// flushAcks sends any pending ack across every connection; called when
// a ReadPoll finds nothing queued at the socket (spec §4.7
// endpoint.flush_acks).
func (e *Endpoint) flushAcks() {
	for _, c := range e.conns {
		if c.needSendAck {
			c.sendAck()
		}
	}
}

// ReadPoll services one unit of work without ever blocking (spec §6
// read_poll; §5). Call it in a loop until it reports EventAgain.
func (e *Endpoint) ReadPoll(dst []byte) (int, *Conn, Event, error) {
	if e.closed {
		return 0, nil, EventError, errors.Wrap(ErrClosed, "rdp: read poll")
	}
	if len(dst) == 0 {
		return 0, nil, EventError, errors.Wrap(ErrInvalidArgument, "rdp: empty read buffer")
	}

	for _, c := range e.conns {
		n, event, ok, err := c.drainOneInOrder(dst)
		if ok {
			return n, c, event, err
		}
	}

	// SetReadDeadline with a past instant makes ReadFrom return
	// immediately instead of parking the calling goroutine, the
	// closest stdlib equivalent to the reference implementation's
	// SOCK_NONBLOCK socket.
	if err := e.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, nil, EventError, errors.Wrap(err, "rdp: set deadline")
	}

	n, addr, err := e.conn.ReadFrom(e.recvBuf)
	if err != nil {
		if ne, isNetErr := err.(net.Error); isNetErr && ne.Timeout() {
			e.flushAcks()
			return 0, nil, EventAgain, nil
		}
		return 0, nil, EventError, errors.Wrap(err, "rdp: read")
	}

	if n < headerSize {
		return 0, nil, EventContinue, nil
	}

	h := unmarshalHeader(e.recvBuf[:n])
	if h.version() != protocolVersion {
		return 0, nil, EventContinue, nil
	}

	e.now = time.Now()

	switch h.pktType() {
	case stSyn:
		return e.handleSyn(h, addr)
	case stState, stData, stFin:
		return e.handleEstablished(h, addr, n, dst)
	default:
		return 0, nil, EventContinue, nil
	}
}

func (e *Endpoint) handleSyn(h header, addr net.Addr) (int, *Conn, Event, error) {
	key := connKey{addr.String(), h.connID + 1}
	if c, found := e.byKey[key]; found {
		if c.state != stateSynRecv {
			return 0, nil, EventContinue, nil
		}
		c.lastReceivedPacket = e.now
		c.retransmitTimeout = c.nextRetransmitTimeout
		c.retransmitTicker = e.now.Add(c.retransmitTimeout)
		c.sendAck()
		return 0, c, EventContinue, nil
	}

	if len(e.conns) >= maxConnsPerEndpoint {
		return 0, nil, EventError, errors.Wrap(ErrProtocol, "rdp: too many connections")
	}

	c := newConn(e)
	c.recvID = h.connID + 1
	c.sendID = h.connID
	c.idSeed = h.connID
	c.state = stateSynRecv
	c.peerAddr = addr
	c.ackNr = h.seqNr
	e.registerConn(c)

	c.lastReceivedPacket = e.now
	c.retransmitTimeout = c.nextRetransmitTimeout
	c.retransmitTicker = e.now.Add(c.retransmitTimeout)
	c.sendAck()

	return 0, c, EventContinue, nil
}

func (e *Endpoint) handleEstablished(h header, addr net.Addr, n int, dst []byte) (int, *Conn, Event, error) {
	c, found := e.byKey[connKey{addr.String(), h.connID}]
	if !found || c.state == stateDestroy {
		return 0, nil, EventContinue, nil
	}

	links, payloadOffset, ok := parseExtensions(h.extension, e.recvBuf[headerSize:n])
	if !ok {
		return 0, c, EventContinue, nil
	}
	payload := e.recvBuf[headerSize+payloadOffset : n]

	bytes, event, err := c.handleInbound(h, links, payload, dst)
	if err != nil {
		return 0, c, event, err
	}
	return bytes, c, event, nil
}

// Tick must be invoked at least every returned duration to drive
// retransmission, congestion resizing, keepalives, and idle-connection
// reaping (spec §6 tick; §4.8). Destroyed connections are swept from
// the endpoint here.
func (e *Endpoint) Tick() time.Duration {
	e.now = time.Now()

	if e.now.Sub(e.lastCheck) < e.nextCheckTimeout {
		return e.nextCheckTimeout - e.now.Sub(e.lastCheck)
	}

	e.lastCheck = e.now
	e.nextCheckTimeout = socketCheckTimeoutDefault

	kept := e.conns[:0:0]
	for _, c := range e.conns {
		hint := c.tick()
		if hint < e.nextCheckTimeout {
			e.nextCheckTimeout = hint
		}

		if c.state == stateDestroy {
			delete(e.byKey, connKey{c.peerAddr.String(), c.recvID})
			continue
		}
		kept = append(kept, c)
	}
	e.conns = kept

	return e.nextCheckTimeout
}
