package rdp

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// inboundChunk is a reorder-buffer slot: a received payload that
// arrived ahead of the bytes still needed to deliver it in order (spec
// §4.6, "out-of-order buffering"). A non-nil pointer at a slot means
// "present", independently of whether payload is empty (an out-of-order
// FIN carries none).
type inboundChunk struct {
	payload []byte
}

// Conn is one RDP connection, multiplexed by its owning Endpoint over a
// single UDP socket (spec §3 "Connection (state)"). All of its methods
// assume they are called from the single thread that also drives the
// owning Endpoint's ReadPoll/Tick loop; Conn does no internal locking.
type Conn struct {
	endpoint *Endpoint
	peerAddr net.Addr
	state    connState

	idSeed uint16
	recvID uint16
	sendID uint16

	seqNr           uint16
	ackNr           uint16
	eofSeqNr        uint16
	queue           uint16
	outOfOrderCount uint16

	outbuf *ring[*packetRecord]
	inbuf  *ring[*inboundChunk]

	flightWindow      uint32
	flightWindowLimit uint32
	recvWindowPeer    uint32
	recvWindowSelf    uint32

	rtt                   float64
	rttVar                float64
	retransmitTimeout     time.Duration
	nextRetransmitTimeout time.Duration
	retransmitTicker      time.Time

	// oldestResent tracks the send-queue head at the start of the most
	// recent retransmit round; -1 means no round is in progress (spec
	// §4.8, resize_window).
	oldestResent int32

	lastReceivedPacket time.Time
	lastSentPacket     time.Time

	receivedFin          bool
	receivedFinCompleted bool
	needSendAck          bool

	// closeErr records why tick drove this connection to DESTROY, so a
	// caller that notices the state change can distinguish an idle
	// timeout from a clean close (spec §7).
	closeErr error

	userData any
}

func newConn(e *Endpoint) *Conn {
	return &Conn{
		endpoint:          e,
		state:             stateUninitialized,
		outbuf:            newRing[*packetRecord](),
		inbuf:             newRing[*inboundChunk](),
		flightWindowLimit: limitedWindow(0, e.maxPacketPayload),
		recvWindowPeer:    limitedWindow(windowSizeMax, e.maxPacketPayload),
		recvWindowSelf:    limitedWindow(windowSizeMax, e.maxPacketPayload),
		nextRetransmitTimeout: limitedRetransmitTimeout(0),
		oldestResent:      -1,
	}
}

// limitedWindow clamps t into [maxPacketPayload, windowSizeMax], or
// returns windowSizeDefault when t is zero (spec §4.8; rdp.c's
// limitedWindow).
func limitedWindow(t uint32, maxPacketPayload int) uint32 {
	if t == 0 {
		return windowSizeDefault
	}
	if t < uint32(maxPacketPayload) {
		return uint32(maxPacketPayload)
	}
	if t > windowSizeMax {
		return windowSizeMax
	}
	return t
}

// limitedRetransmitTimeout clamps t into [retransmitTimeoutMin,
// retransmitTimeoutMax], defaulting to retransmitTimeoutDefault when t
// is zero.
func limitedRetransmitTimeout(t time.Duration) time.Duration {
	if t == 0 {
		return retransmitTimeoutDefault
	}
	if t < retransmitTimeoutMin {
		return retransmitTimeoutMin
	}
	if t > retransmitTimeoutMax {
		return retransmitTimeoutMax
	}
	return t
}

func (c *Conn) log() *logrus.Entry {
	return c.endpoint.config.logger.WithFields(logrus.Fields{
		"recvID": c.recvID,
		"state":  c.state,
	})
}

// UserData returns the opaque value last set with SetUserData.
func (c *Conn) UserData() any { return c.userData }

// SetUserData attaches an opaque value to the connection for the
// caller's own bookkeeping.
func (c *Conn) SetUserData(v any) { c.userData = v }

// State reports the connection's current state-machine tag.
func (c *Conn) State() connState { return c.state }

// Err reports why tick drove this connection to DESTROY (ErrTimeout for
// an idle SYN_RECV/FIN_SENT peer), or nil for a clean close or a
// connection that hasn't been destroyed yet.
func (c *Conn) Err() error { return c.closeErr }

// flightWindowFull reports whether the flight window lacks room for one
// more maximum-sized packet (spec §4.8; rdp.c's
// rdpConnFlightWindowFull). "Not full" means there's room for a whole
// MAX_PACKET_PAYLOAD, not merely one byte.
func (c *Conn) flightWindowFull() bool {
	limit := c.flightWindowLimit
	if c.recvWindowPeer < limit {
		limit = c.recvWindowPeer
	}
	return c.flightWindow+uint32(c.endpoint.maxPacketPayload) > limit
}

// sendPacketRecord transmits pr for the first time or retransmits it,
// stamping the current ackNr and send time, and folds its payload into
// flightWindow (spec §4.3, §4.8; rdp.c's sendPacketWrap).
func (c *Conn) sendPacketRecord(pr *packetRecord) error {
	c.flightWindow += uint32(pr.payloadLen)
	pr.needsResend = false

	h := pr.packetHeader()
	h.ackNr = c.ackNr
	pr.setPacketHeader(h)

	pr.lastSentTime = c.endpoint.now
	pr.transmissions++
	c.lastSentPacket = c.endpoint.now

	return c.endpoint.sendTo(c.peerAddr, pr.buf[:headerSize+pr.payloadLen])
}

// flushPackets sends every queued record that hasn't been transmitted
// yet, or that is flagged needsResend, stopping as soon as the flight
// window is full (spec §4.3, §4.8; rdp.c's rdpConnFlushPackets).
func (c *Conn) flushPackets() error {
	for i := c.seqNr - c.queue; i != c.seqNr; i++ {
		pr := c.outbuf.get(i)
		if pr == nil || (pr.transmissions > 0 && !pr.needsResend) {
			continue
		}
		if c.flightWindowFull() {
			return ErrAgain
		}
		if err := c.sendPacketRecord(pr); err != nil {
			return err
		}
	}
	return nil
}

// admitOnePacket tries to fold up to one MAX_PACKET_PAYLOAD worth of
// vecs into the send queue: extending the tail record if it is still
// untransmitted and has room (spec §4.3's coalescing, rdp.c's
// buildSendPacket), or else allocating a fresh record. It returns the
// number of bytes admitted, 0 when vecs are exhausted.
func (c *Conn) admitOnePacket(vecs []vec) int {
	maxPayload := c.endpoint.maxPacketPayload

	if c.queue > 0 {
		tail := c.outbuf.get(c.seqNr - 1)
		if tail != nil && tail.transmissions == 0 && tail.payloadLen < maxPayload {
			room := maxPayload - tail.payloadLen
			n := drainVecs(tail.buf[headerSize+tail.payloadLen:headerSize+tail.payloadLen+room], vecs)
			if n > 0 {
				tail.payloadLen += n
				return n
			}
		}
	}

	remaining := vecsTotal(vecs)
	if remaining == 0 {
		return 0
	}
	chunk := remaining
	if chunk > maxPayload {
		chunk = maxPayload
	}

	pr := newPacketRecord(headerSize, maxPayload)
	n := drainVecs(pr.buf[headerSize:headerSize+chunk], vecs)
	pr.payloadLen = n
	pr.setPacketHeader(header{
		versionAndType: makeVersionAndType(protocolVersion, stData),
		connID:         c.sendID,
		window:         c.recvWindowSelf,
		seqNr:          c.seqNr,
		ackNr:          c.ackNr,
	})

	c.outbuf.ensureSize(c.seqNr, uint32(c.queue))
	c.outbuf.put(c.seqNr, pr)
	c.seqNr++
	c.queue++
	return n
}

// writeVec admits as much of vecs as the flight window currently
// allows, flushes what it can, and returns the number of bytes
// admitted. Unlike the reference implementation (which queues an
// entire write regardless of window state and lets flush_packets sort
// out what actually goes out), admission here is checked before each
// packet so a full window yields a short write rather than silently
// growing an unbounded backlog; see DESIGN.md.
func (c *Conn) writeVec(vecs []vec) (int, error) {
	switch c.state {
	case stateConnected:
	case stateConnectedFull, stateSynSent:
		return 0, errors.Wrap(ErrAgain, "connection window full")
	case stateFinSent, stateDestroy:
		return 0, errors.Wrapf(ErrClosed, "write in state %s", c.state)
	default:
		return 0, errors.Wrapf(ErrInvalidArgument, "write in state %s", c.state)
	}

	local := append([]vec(nil), vecs...)
	total := vecsTotal(local)
	if total == 0 {
		return 0, nil
	}

	// Unlike the reference's single deferred flush at the end of the
	// whole write, each admitted packet is flushed immediately so
	// flightWindow reflects reality before the next admission decision
	// — otherwise a 10 KB write would queue far more than the window
	// allows before fullness is ever observed.
	written := 0
	for written < total && c.queue < queueSizeMax-1 {
		if c.flightWindowFull() {
			c.state = stateConnectedFull
			break
		}
		n := c.admitOnePacket(local)
		if n == 0 {
			break
		}
		written += n

		if err := c.flushPackets(); err != nil {
			c.state = stateConnectedFull
			break
		}
	}

	if written == 0 {
		return 0, ErrAgain
	}
	return written, nil
}

// connect sends the initial SYN for an outbound connection (spec §4.5
// UNINITIALIZED -> SYN_SENT; rdp.c's rdpConnect).
func (c *Conn) connect(addr net.Addr) error {
	if c.state != stateUninitialized {
		return errors.Wrapf(ErrInvalidArgument, "connect in state %s", c.state)
	}

	c.peerAddr = addr
	c.state = stateSynSent
	c.lastReceivedPacket = c.endpoint.now
	c.retransmitTimeout = c.nextRetransmitTimeout
	c.retransmitTicker = c.endpoint.now.Add(c.retransmitTimeout)

	pr := newPacketRecord(headerSize, 0)
	pr.setPacketHeader(header{
		versionAndType: makeVersionAndType(protocolVersion, stSyn),
		connID:         c.recvID,
		window:         c.recvWindowSelf,
		seqNr:          c.seqNr,
	})

	c.outbuf.ensureSize(c.seqNr, uint32(c.queue))
	c.outbuf.put(c.seqNr, pr)
	c.seqNr++
	c.queue++

	return c.sendPacketRecord(pr)
}

// close implements the active-close half of spec §4.5: if the peer has
// already sent its FIN, the connection is done; otherwise a FIN is
// queued behind any outstanding data and the state moves to FIN_SENT.
func (c *Conn) close() error {
	switch c.state {
	case stateConnected, stateConnectedFull:
		if c.receivedFin {
			c.state = stateDestroy
			return nil
		}
		if c.needSendAck {
			c.sendAck()
		}
		pr := newPacketRecord(headerSize, 0)
		pr.setPacketHeader(header{
			versionAndType: makeVersionAndType(protocolVersion, stFin),
			connID:         c.sendID,
			window:         c.recvWindowSelf,
			seqNr:          c.seqNr,
			ackNr:          c.ackNr,
		})
		c.outbuf.ensureSize(c.seqNr, uint32(c.queue))
		c.outbuf.put(c.seqNr, pr)
		c.seqNr++
		c.queue++
		c.flushPackets()
		c.state = stateFinSent
		return nil
	case stateSynSent:
		c.state = stateDestroy
		return nil
	case stateFinSent, stateDestroy:
		return errors.Wrapf(ErrClosed, "close in state %s", c.state)
	default:
		return errors.Wrapf(ErrInvalidArgument, "close in state %s", c.state)
	}
}

// ackPacket retires outbuf slot i: it must already have been
// transmitted at least once. A record acked after exactly one
// transmission seeds or updates the RTT estimator; a retransmitted
// record gives no RTT sample (spec §4.6; rdp.c's ackPacket).
func (c *Conn) ackPacket(i uint16) {
	pr := c.outbuf.get(i)
	if pr == nil || pr.transmissions == 0 {
		return
	}
	c.outbuf.put(i, nil)

	if pr.transmissions == 1 {
		packetRtt := float64(c.endpoint.now.Sub(pr.lastSentTime) / time.Millisecond)
		if c.rtt == 0 {
			c.rtt = packetRtt
			c.rttVar = packetRtt / 2
		} else {
			delta := packetRtt - c.rtt
			if delta < 0 {
				delta = -delta
			}
			c.rttVar += (delta - c.rttVar) / 4
			c.rtt += (packetRtt - c.rtt) / 8
		}
		c.nextRetransmitTimeout = limitedRetransmitTimeout(
			time.Duration(c.rtt+c.rttVar*4) * time.Millisecond)
		c.log().WithFields(logrus.Fields{
			"seqnr": i,
			"rtt":   c.rtt,
			"rto":   c.nextRetransmitTimeout,
		}).Debug("rdp: rtt sample")
	}

	if !pr.needsResend {
		c.flightWindow -= uint32(pr.payloadLen)
	}
}

// selectiveAck applies a SACK bitmask received from the peer, acking
// every set bit that falls within the live send window (spec §4.6;
// rdp.c's selectiveAck). startSeqnr is acknr+2 (the slot right after
// the one acknr+1 already implicitly covers).
func (c *Conn) selectiveAck(startSeqnr uint16, mask []byte) {
	acked := 0
	for offset := len(mask)*8 - 1; offset >= -1; offset-- {
		v := startSeqnr + uint16(offset)
		if (c.seqNr - v - 1) >= (c.queue - 1) {
			continue
		}
		if offset < 0 {
			continue
		}
		if mask[offset>>3]&(1<<(uint(offset)&7)) == 0 {
			continue
		}
		if c.outbuf.get(v) != nil {
			c.ackPacket(v)
			acked++
		}
	}
	c.log().WithFields(logrus.Fields{
		"startSeqnr": startSeqnr,
		"maskBytes":  len(mask),
		"acked":      acked,
	}).Debug("rdp: applied selective ack")
}

// sendAck transmits a pure STATE packet, or a STATE carrying a
// selective-ack extension when there is out-of-order data to describe
// (spec §4.7; rdp.c's sendAck).
func (c *Conn) sendAck() error {
	h := header{
		versionAndType: makeVersionAndType(protocolVersion, stState),
		connID:         c.sendID,
		window:         c.recvWindowSelf,
		seqNr:          c.seqNr,
		ackNr:          c.ackNr,
	}

	var buf []byte
	if c.outOfOrderCount != 0 && c.state != stateSynRecv && !c.receivedFinCompleted {
		sackSize := c.outOfOrderCount/8 + 1 + 3
		sackSize -= sackSize % 4
		// The extension's length field is one byte: cap the mask at the
		// largest multiple of 4 it can carry.
		if sackSize > 252 {
			sackSize = 252
		}

		mask := make([]byte, sackSize)
		span := uint32(sackSize) * 8
		if span > c.inbuf.mask {
			span = c.inbuf.mask
		}
		for i := uint32(0); i < span; i++ {
			if c.inbuf.get(c.ackNr+uint16(i)+2) != nil {
				mask[i/8] |= 1 << (i % 8)
			}
		}

		h.extension = sackExtension
		buf = make([]byte, headerSize)
		h.marshal(buf)
		buf = appendSackExtension(buf, 0, mask)
		c.log().WithFields(logrus.Fields{
			"acknr":     c.ackNr,
			"maskBytes": len(mask),
		}).Debug("rdp: sending ack with sack extension")
	} else {
		buf = make([]byte, headerSize)
		h.marshal(buf)
	}

	c.needSendAck = false
	return c.endpoint.sendTo(c.peerAddr, buf)
}

// keepAlive sends a probe disguised as an ack for the previous
// sequence number, restoring ackNr immediately afterward (spec §4.8;
// rdp.c's rdpConnKeepAlive).
func (c *Conn) keepAlive() {
	c.ackNr--
	c.sendAck()
	c.ackNr++
}

// resizeWindow implements the multiplicative congestion control rule
// (spec §4.8; rdp.c's resizeWindow). The default branch mirrors the
// source's unreachable final else: the three cases above it (no round
// in progress, queue head unchanged, queue head moved) cover every value
// of oldestResent, so it cannot be taken; it panics in place of the
// source's assertion (spec §9).
func (c *Conn) resizeWindow() {
	head := c.seqNr - c.queue
	switch {
	case c.oldestResent == -1:
		c.oldestResent = int32(head)
	case c.oldestResent == int32(head):
		c.flightWindowLimit = limitedWindow(c.flightWindowLimit/windowShrinkFactor, c.endpoint.maxPacketPayload)
		c.log().WithFields(logrus.Fields{
			"flightWindowLimit": c.flightWindowLimit,
		}).Debug("rdp: shrinking flight window")
	case c.oldestResent != int32(head):
		c.flightWindowLimit = limitedWindow(c.flightWindowLimit*windowExpandFactor, c.endpoint.maxPacketPayload)
		c.oldestResent = int32(head)
		c.log().WithFields(logrus.Fields{
			"flightWindowLimit": c.flightWindowLimit,
		}).Debug("rdp: expanding flight window")
	default:
		panic("rdp: resizeWindow: unreachable branch")
	}
}

// updateRetransmitTimeout recomputes retransmitTimeout and rearms
// retransmitTicker from nextRetransmitTimeout, per spec §4.8 and §9's
// Open Question about the signed delta: afterLastSent is a signed
// duration and the resulting timeout is clamped at 0, matching the source's
// observed behavior rather than guessing at unsigned-wraparound intent.
func (c *Conn) updateRetransmitTimeout() {
	var afterLastSent time.Duration
	if c.queue != 0 {
		pr := c.outbuf.get(c.seqNr - c.queue)
		if pr != nil {
			afterLastSent = c.endpoint.now.Sub(pr.lastSentTime)
		}
	}

	timeout := c.nextRetransmitTimeout - afterLastSent
	if timeout < 0 {
		timeout = 0
	}
	c.retransmitTimeout = timeout
	c.retransmitTicker = c.endpoint.now.Add(c.retransmitTimeout)
}

// tick drives one connection's timers: idle-kill checks for SYN_RECV
// and FIN_SENT, retransmission and congestion resize, and the keepalive
// probe (spec §4.8; rdp.c's rdpConnCheck). It returns the connection's
// own hint for how soon it next needs attention.
func (c *Conn) tick() time.Duration {
	switch c.state {
	case stateSynSent, stateSynRecv, stateConnected, stateConnectedFull, stateFinSent:
		if c.endpoint.now.After(c.retransmitTicker) || c.endpoint.now.Equal(c.retransmitTicker) {
			if c.state == stateFinSent && c.endpoint.now.Sub(c.lastReceivedPacket) >= waitFinSent {
				c.closeErr = ErrTimeout
				c.state = stateDestroy
				c.log().Debug("rdp: fin_sent peer went silent, destroying")
				return socketCheckTimeoutDefault
			}
			if c.state == stateSynRecv && c.endpoint.now.Sub(c.lastReceivedPacket) >= waitSynRecv {
				c.closeErr = ErrTimeout
				c.state = stateDestroy
				c.log().Debug("rdp: syn_recv peer went silent, destroying")
				return socketCheckTimeoutDefault
			}

			if c.queue > 0 {
				for i := c.seqNr - c.queue; i != c.seqNr; i++ {
					pr := c.outbuf.get(i)
					if pr == nil || pr.transmissions == 0 || pr.needsResend ||
						c.endpoint.now.Before(pr.lastSentTime.Add(c.retransmitTimeout)) {
						continue
					}
					pr.needsResend = true
					c.flightWindow -= uint32(pr.payloadLen)
					c.log().WithFields(logrus.Fields{
						"seqnr":         i,
						"transmissions": pr.transmissions,
					}).Debug("rdp: marking packet for retransmission")
				}

				c.resizeWindow()
				c.flushPackets()
			}

			c.updateRetransmitTimeout()
		}

		if c.state == stateConnected || c.state == stateConnectedFull {
			if c.endpoint.now.Sub(c.lastSentPacket) >= keepaliveInterval {
				c.keepAlive()
			}
		}
	case stateUninitialized, stateDestroy:
	}

	hint := c.retransmitTicker.Sub(c.endpoint.now)
	if hint < c.endpoint.config.socketCheckMin {
		hint = c.endpoint.config.socketCheckMin
	}
	if hint > c.endpoint.config.socketCheckMax {
		hint = c.endpoint.config.socketCheckMax
	}
	return hint
}

// handleInbound applies one already-demultiplexed, already
// version-checked STATE/DATA/FIN datagram to this connection (spec
// §4.6). dst is the caller's ReadPoll buffer; payload is the decoded
// packet's body (post base header, post extensions). It returns the
// number of payload bytes copied into dst (0 if none), the resulting
// event bits, and an error only for the buffer-too-small case (in
// which the packet is not consumed).
func (c *Conn) handleInbound(h header, links []extensionView, payload []byte, dst []byte) (int, Event, error) {
	if c.state == stateDestroy {
		return 0, EventContinue, nil
	}

	if seqAfter(c.seqNr-1, h.ackNr) || seqAfter(h.ackNr, c.seqNr-1-c.queue-ackRecvBehindAllowed) {
		return 0, EventContinue, nil
	}

	if c.state == stateSynSent {
		c.ackNr = h.seqNr - 1
	}

	seqCnt := h.seqNr - c.ackNr - 1
	if seqCnt >= queueSizeMax {
		if seqCnt >= seqNrMask+1-queueSizeMax && h.pktType() != stState {
			c.needSendAck = true
		}
		return 0, EventContinue, nil
	}

	c.lastReceivedPacket = c.endpoint.now

	ackCnt := h.ackNr - (c.seqNr - c.queue) + 1
	if ackCnt > c.queue {
		ackCnt = 0
	}

	c.recvWindowPeer = h.window

	event := EventContinue

	if h.pktType() == stData && c.state == stateSynRecv {
		c.state = stateConnected
		event = EventAccept
	}
	if h.pktType() == stState && c.state == stateSynSent {
		c.state = stateConnected
		event = EventConnected
	}

	if c.state == stateFinSent && c.queue == ackCnt {
		c.state = stateDestroy
	}

	for i := uint16(0); i < ackCnt; i++ {
		c.ackPacket(c.seqNr - c.queue)
		c.queue--
	}

	if c.queue > 0 {
		if mask := findSackMask(links); mask != nil {
			c.selectiveAck(h.ackNr+2, mask)
		}
	}

	if c.state == stateConnectedFull && !c.flightWindowFull() {
		c.state = stateConnected
		event |= EventPollout
	}

	if h.pktType() == stState {
		return 0, event, nil
	}

	if c.state != stateConnected && c.state != stateConnectedFull && c.state != stateFinSent {
		return 0, event, nil
	}

	if h.pktType() == stFin {
		if c.state == stateFinSent {
			c.state = stateDestroy
			return 0, event, nil
		}
		if !c.receivedFin {
			c.receivedFin = true
			c.eofSeqNr = h.seqNr
		}
	}

	if c.state == stateFinSent {
		return 0, event, nil
	}

	if seqCnt == 0 {
		if len(payload) > 0 {
			if len(payload) > len(dst) {
				return 0, EventError, ErrBufferTooSmall
			}
			copy(dst, payload)
			event |= EventData
		}
		c.ackNr++
		c.needSendAck = true
		return len(payload), event, nil
	}

	if c.receivedFin && seqAfter(c.eofSeqNr, h.seqNr) {
		return 0, event, nil
	}

	c.inbuf.ensureSize(h.seqNr+1, uint32(seqCnt)+1)

	if c.inbuf.get(h.seqNr) != nil {
		c.needSendAck = true
		return 0, event, nil
	}

	stored := append([]byte(nil), payload...)
	c.inbuf.put(h.seqNr, &inboundChunk{payload: stored})
	c.outOfOrderCount++
	c.needSendAck = true

	return 0, event, nil
}

// drainOneInOrder attempts to deliver exactly one already-buffered
// out-of-order chunk, or to surface the one-time EOF signal, for this
// connection (spec §4.6, ReadPoll's per-connection sweep; rdp.c's
// rdpReadPoll prologue). ok is false when there's nothing to do for
// this connection right now.
func (c *Conn) drainOneInOrder(dst []byte) (n int, event Event, ok bool, err error) {
	if c.state != stateConnected && c.state != stateConnectedFull {
		return 0, EventContinue, false, nil
	}

	if !c.receivedFinCompleted && c.receivedFin && c.eofSeqNr == c.ackNr {
		c.receivedFinCompleted = true
		c.sendAck()
		c.outOfOrderCount = 0
		return 0, EventData, true, nil
	}

	if c.outOfOrderCount == 0 {
		return 0, EventContinue, false, nil
	}

	chunk := c.inbuf.get(c.ackNr + 1)
	if chunk == nil {
		return 0, EventContinue, false, nil
	}

	event = EventContinue
	if len(chunk.payload) > 0 {
		if len(chunk.payload) > len(dst) {
			return 0, EventError, true, ErrBufferTooSmall
		}
		copy(dst, chunk.payload)
		event = EventData
	}

	c.inbuf.put(c.ackNr+1, nil)
	c.ackNr++
	c.needSendAck = true
	c.outOfOrderCount--

	return len(chunk.payload), event, true, nil
}
