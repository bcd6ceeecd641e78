package rdp

import "github.com/pkg/errors"

// Write admits p into the send queue and flushes what the window
// allows (spec §6 write). It returns a short count rather than
// blocking when the window is full; see WriteVec.
func (c *Conn) Write(p []byte) (int, error) {
	return c.writeVec([]vec{{base: p}})
}

// WriteVec is the scatter/gather form of Write (spec §6 write_vec,
// RDP_MAX_VEC). bufs beyond maxVec entries are rejected outright.
func (c *Conn) WriteVec(bufs [][]byte) (int, error) {
	if len(bufs) == 0 {
		return 0, errors.Wrap(ErrInvalidArgument, "rdp: empty vec")
	}
	if len(bufs) > maxVec {
		return 0, errors.Wrap(ErrInvalidArgument, "rdp: vec count exceeds maximum")
	}
	vecs := make([]vec, len(bufs))
	for i, b := range bufs {
		vecs[i] = vec{base: b}
	}
	return c.writeVec(vecs)
}

// Close half-closes the connection, per spec §4.5's CONNECTED(_FULL)
// -> FIN_SENT / DESTROY transitions.
func (c *Conn) Close() error {
	return c.close()
}
