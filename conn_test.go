package rdp

import (
	"time"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEndpoint(t *testing.T, opts ...EndpointOption) *Endpoint {
	e, err := NewEndpoint("udp", "127.0.0.1:0", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestConnFlightWindowFull(t *testing.T) {
	e := newTestEndpoint(t, WithMTU(500))
	c := e.NewConn()
	c.flightWindowLimit = 1000
	c.recvWindowPeer = 2000

	c.flightWindow = 400
	assert.False(t, c.flightWindowFull())

	c.flightWindow = 600
	assert.True(t, c.flightWindowFull())
}

func TestConnAckPacketSeedsRTT(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.endpoint.now = time.Now()

	pr := newPacketRecord(headerSize, 100)
	pr.payloadLen = 100
	pr.transmissions = 1
	pr.lastSentTime = c.endpoint.now.Add(-300 * time.Millisecond)
	c.outbuf.put(5, pr)
	c.flightWindow = 100

	c.ackPacket(5)

	assert.Nil(t, c.outbuf.get(5))
	assert.Equal(t, 300.0, c.rtt)
	assert.Equal(t, 150.0, c.rttVar)
	assert.Equal(t, 900*time.Millisecond, c.nextRetransmitTimeout)
	assert.Equal(t, uint32(0), c.flightWindow)
}

func TestConnAckPacketEWMAUpdate(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.endpoint.now = time.Now()
	c.rtt = 300
	c.rttVar = 150

	pr := newPacketRecord(headerSize, 50)
	pr.payloadLen = 50
	pr.transmissions = 1
	pr.lastSentTime = c.endpoint.now.Add(-340 * time.Millisecond)
	c.outbuf.put(7, pr)
	c.flightWindow = 50

	c.ackPacket(7)

	assert.Equal(t, 305.0, c.rtt)
	assert.Equal(t, 122.5, c.rttVar)
	assert.Equal(t, 795*time.Millisecond, c.nextRetransmitTimeout)
}

func TestConnAckPacketResendDoesNotShrinkFlightWindow(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.endpoint.now = time.Now()

	pr := newPacketRecord(headerSize, 50)
	pr.payloadLen = 50
	pr.transmissions = 2
	pr.needsResend = true
	pr.lastSentTime = c.endpoint.now.Add(-10 * time.Millisecond)
	c.outbuf.put(3, pr)
	c.flightWindow = 0

	c.ackPacket(3)
	assert.Equal(t, uint32(0), c.flightWindow)
}

func TestConnAckPacketUntransmittedIsNoop(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	pr := newPacketRecord(headerSize, 0)
	c.outbuf.put(1, pr)
	c.ackPacket(1)
	assert.Same(t, pr, c.outbuf.get(1))
}

func TestConnResizeWindowBranches(t *testing.T) {
	e := newTestEndpoint(t, WithMTU(500))
	c := e.NewConn()
	c.flightWindowLimit = 2000
	c.seqNr = 10
	c.queue = 3 // head = 7
	require.Equal(t, int32(-1), c.oldestResent)

	c.resizeWindow()
	assert.Equal(t, int32(7), c.oldestResent)
	assert.Equal(t, uint32(2000), c.flightWindowLimit)

	c.resizeWindow() // same head -> shrink
	assert.Equal(t, int32(7), c.oldestResent)
	assert.Equal(t, uint32(1000), c.flightWindowLimit)

	c.queue = 2 // head = 8, differs -> expand and reset
	c.resizeWindow()
	assert.Equal(t, int32(8), c.oldestResent)
	assert.Equal(t, uint32(2000), c.flightWindowLimit)
}

func TestConnSelectiveAckRetiresFlaggedSlots(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.endpoint.now = time.Now()
	c.seqNr = 110
	c.queue = 10 // outbuf covers 100..109

	for i := uint16(100); i < 110; i++ {
		pr := newPacketRecord(headerSize, 50)
		pr.payloadLen = 50
		pr.transmissions = 1
		pr.lastSentTime = c.endpoint.now
		c.outbuf.put(i, pr)
	}
	c.flightWindow = 500

	mask := []byte{0x15} // bits 0,2,4 set -> seq 101, 103, 105
	c.selectiveAck(101, mask)

	assert.Nil(t, c.outbuf.get(101))
	assert.Nil(t, c.outbuf.get(103))
	assert.Nil(t, c.outbuf.get(105))
	assert.NotNil(t, c.outbuf.get(100))
	assert.NotNil(t, c.outbuf.get(102))
	assert.NotNil(t, c.outbuf.get(104))
	assert.Equal(t, uint32(350), c.flightWindow)
}

func TestConnSelectiveAckSkipsOutOfWindowBits(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.endpoint.now = time.Now()
	c.seqNr = 110
	c.queue = 10

	pr := newPacketRecord(headerSize, 10)
	pr.transmissions = 1
	pr.lastSentTime = c.endpoint.now
	c.outbuf.put(100, pr)
	c.flightWindow = 10

	mask := []byte{0xff}
	// startSeqnr 101 means offset covers 101..108, seq 100 never touched.
	c.selectiveAck(101, mask)
	assert.NotNil(t, c.outbuf.get(100))
	assert.Equal(t, uint32(10), c.flightWindow)
}

func TestConnHandleInboundBuffersOutOfOrderThenDeliversInOrder(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.endpoint.now = time.Now()
	c.state = stateConnected
	c.ackNr = 100
	c.seqNr = 1
	c.queue = 0

	outOfOrder := header{
		versionAndType: makeVersionAndType(protocolVersion, stData),
		seqNr:          102,
		ackNr:          0,
	}
	dst := make([]byte, 64)
	n, event, err := c.handleInbound(outOfOrder, nil, []byte("B"), dst)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, EventContinue, event)
	assert.Equal(t, uint16(1), c.outOfOrderCount)
	assert.True(t, c.needSendAck)
	require.NotNil(t, c.inbuf.get(102))
	assert.Equal(t, []byte("B"), c.inbuf.get(102).payload)

	inOrder := header{
		versionAndType: makeVersionAndType(protocolVersion, stData),
		seqNr:          101,
		ackNr:          0,
	}
	n, event, err = c.handleInbound(inOrder, nil, []byte("A"), dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []byte("A"), dst[:1])
	assert.True(t, event&EventData != 0)
	assert.Equal(t, uint16(101), c.ackNr)

	chunkN, chunkEvent, ok, err := c.drainOneInOrder(dst)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, chunkN)
	assert.Equal(t, []byte("B"), dst[:1])
	assert.Equal(t, EventData, chunkEvent)
	assert.Equal(t, uint16(102), c.ackNr)
	assert.Equal(t, uint16(0), c.outOfOrderCount)
	assert.Nil(t, c.inbuf.get(102))
}

func TestConnSendAckEmitsSackExtension(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.endpoint.now = time.Now()
	c.state = stateConnected
	c.peerAddr = e.LocalAddr()
	c.sendID = 1
	c.ackNr = 100
	c.outOfOrderCount = 1
	c.inbuf.put(102, &inboundChunk{payload: []byte("B")})

	require.NoError(t, c.sendAck())

	require.NoError(t, e.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := e.conn.ReadFrom(buf)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, headerSize)

	h := unmarshalHeader(buf[:headerSize])
	assert.Equal(t, stState, h.pktType())
	assert.Equal(t, sackExtension, h.extension)

	links, _, ok := parseExtensions(h.extension, buf[headerSize:n])
	require.True(t, ok)
	mask := findSackMask(links)
	require.NotNil(t, mask)
	assert.Equal(t, 4, len(mask))
	assert.NotZero(t, mask[0]&0x01)
}

func TestConnWriteVecShortWriteThenEagerAfterAck(t *testing.T) {
	e := newTestEndpoint(t, WithMTU(100))
	c := e.NewConn()
	c.endpoint.now = time.Now()
	c.state = stateConnected
	c.peerAddr = e.LocalAddr()
	c.sendID = 1
	c.flightWindowLimit = 100
	c.recvWindowPeer = 100

	payload := make([]byte, 250)
	for i := range payload {
		payload[i] = byte(i)
	}

	n1, err1 := c.Write(payload)
	require.NoError(t, err1)
	assert.Equal(t, 100, n1)
	assert.Equal(t, stateConnectedFull, c.state)

	n2, err2 := c.Write(payload[100:])
	assert.Equal(t, 0, n2)
	assert.ErrorIs(t, err2, ErrAgain)

	c.ackPacket(0)
	assert.Equal(t, uint32(0), c.flightWindow)
	c.state = stateConnected

	n3, err3 := c.Write(payload[100:])
	require.NoError(t, err3)
	assert.Equal(t, 100, n3)
	assert.Equal(t, stateConnectedFull, c.state)
}

func TestConnConnectSendsSyn(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()

	require.NoError(t, e.Connect(c, e.LocalAddr()))
	assert.Equal(t, stateSynSent, c.state)

	require.NoError(t, e.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, _, err := e.conn.ReadFrom(buf)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, headerSize)

	h := unmarshalHeader(buf[:headerSize])
	assert.Equal(t, stSyn, h.pktType())
	assert.Equal(t, c.recvID, h.connID)
	assert.Equal(t, uint16(0), h.seqNr)
}

func TestConnCloseFromConnectedQueuesFin(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.endpoint.now = time.Now()
	c.state = stateConnected
	c.peerAddr = e.LocalAddr()
	c.sendID = 1
	c.seqNr = 5
	c.queue = 0

	require.NoError(t, c.close())
	assert.Equal(t, stateFinSent, c.state)
	assert.Equal(t, uint16(1), c.queue)
	require.NotNil(t, c.outbuf.get(5))
	assert.Equal(t, stFin, c.outbuf.get(5).packetHeader().pktType())
}

func TestConnCloseAfterReceivedFinDestroysImmediately(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.state = stateConnected
	c.receivedFin = true

	require.NoError(t, c.close())
	assert.Equal(t, stateDestroy, c.state)
}

func TestConnCloseFromSynSentDestroysImmediately(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.state = stateSynSent

	require.NoError(t, c.close())
	assert.Equal(t, stateDestroy, c.state)
}

func TestConnCloseFromInvalidStateErrors(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.state = stateUninitialized

	err := c.close()
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConnCloseAndWriteAfterFinSentReportErrClosed(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.state = stateFinSent

	_, err := c.writeVec([]vec{{base: []byte("x")}})
	assert.ErrorIs(t, err, ErrClosed)

	err = c.close()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConnTimeoutSetsCloseErr(t *testing.T) {
	e := newTestEndpoint(t)
	c := e.NewConn()
	c.endpoint.now = time.Now()
	c.state = stateSynRecv
	c.lastReceivedPacket = c.endpoint.now.Add(-waitSynRecv - time.Second)
	c.retransmitTicker = c.endpoint.now.Add(-time.Second)

	c.tick()

	assert.Equal(t, stateDestroy, c.state)
	assert.ErrorIs(t, c.Err(), ErrTimeout)
}
