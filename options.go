package rdp

import (
	"time"

	"github.com/sirupsen/logrus"
)

// endpointConfig holds the tunables an EndpointOption can adjust. It is
// built up before the socket is created and then copied into the
// Endpoint.
type endpointConfig struct {
	logger             *logrus.Logger
	sendBufferHint     int
	recvBufferHint     int
	maxPacketPayload   int
	socketCheckMin     time.Duration
	socketCheckMax     time.Duration
}

func defaultEndpointConfig() endpointConfig {
	return endpointConfig{
		logger:           logrus.StandardLogger(),
		sendBufferHint:   bufferSizeMax,
		recvBufferHint:   bufferSizeMax,
		maxPacketPayload: defaultMaxPacketPayload,
		socketCheckMin:   socketCheckTimeoutMin,
		socketCheckMax:   socketCheckTimeoutMax,
	}
}

// EndpointOption configures an Endpoint at construction time.
type EndpointOption func(*endpointConfig)

// WithLogger sets the logger the endpoint and its connections trace
// through. Defaults to logrus.StandardLogger().
func WithLogger(l *logrus.Logger) EndpointOption {
	return func(c *endpointConfig) { c.logger = l }
}

// WithVerbosity maps the source's rdpSocket.verbosity field onto a
// logrus level.
func WithVerbosity(level logrus.Level) EndpointOption {
	return func(c *endpointConfig) { c.logger.SetLevel(level) }
}

// WithSendBufferHint sets the informational SNDBUF hint (spec §6).
func WithSendBufferHint(bytes int) EndpointOption {
	return func(c *endpointConfig) { c.sendBufferHint = bytes }
}

// WithRecvBufferHint sets the informational RCVBUF hint (spec §6).
func WithRecvBufferHint(bytes int) EndpointOption {
	return func(c *endpointConfig) { c.recvBufferHint = bytes }
}

// WithMTU overrides the effective maximum datagram payload, addressing
// the Open Question flagged in spec §9 about the default folding in
// tunneling overheads that aren't generally present.
func WithMTU(maxPacketPayload int) EndpointOption {
	return func(c *endpointConfig) { c.maxPacketPayload = maxPacketPayload }
}

// WithSocketCheckBounds overrides the [min, max] clamp applied to the
// Tick hint (spec §4.8).
func WithSocketCheckBounds(min, max time.Duration) EndpointOption {
	return func(c *endpointConfig) {
		c.socketCheckMin = min
		c.socketCheckMax = max
	}
}
