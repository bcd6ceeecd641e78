package rdp

import (
	"encoding/binary"
)

// header is the 20-byte base wire header (spec §3 "Packet (wire)"),
// laid out the way BEP-29 lays out a uTP header: version/type nibble,
// extension id, connection id, a timestamp pair carried for wire
// fidelity, advertised window, and the sequence/ack numbers. This
// engine's RTT estimator never reads timestamp/timestampDiff back off
// the wire (spec §4.6's ackPacket samples locally, comparing a
// packetRecord's own send time against "now"); they are carried only so
// the header matches the documented 20-byte size and so a future peer
// expecting them on the wire isn't confused by their absence.
//
// Per DESIGN.md's Open Question decision, multi-byte fields are sent in
// network byte order rather than the reference implementation's native
// order, since there is no pre-existing native-order peer to
// interoperate with here.
type header struct {
	versionAndType uint8
	extension      uint8
	connID         uint16
	timestamp      uint32
	timestampDiff  uint32
	window         uint32
	seqNr          uint16
	ackNr          uint16
}

func (h header) version() uint8 { return h.versionAndType & 0x0f }
func (h header) pktType() uint8 { return h.versionAndType >> 4 }

func makeVersionAndType(version, typ uint8) uint8 {
	return (typ << 4) | (version & 0x0f)
}

// marshal encodes the header into the front of dst, which must be at
// least headerSize bytes.
func (h header) marshal(dst []byte) {
	dst[0] = h.versionAndType
	dst[1] = h.extension
	binary.BigEndian.PutUint16(dst[2:4], h.connID)
	binary.BigEndian.PutUint32(dst[4:8], h.timestamp)
	binary.BigEndian.PutUint32(dst[8:12], h.timestampDiff)
	binary.BigEndian.PutUint32(dst[12:16], h.window)
	binary.BigEndian.PutUint16(dst[16:18], h.seqNr)
	binary.BigEndian.PutUint16(dst[18:20], h.ackNr)
}

// unmarshalHeader decodes a header from the front of src, which must be
// at least headerSize bytes.
func unmarshalHeader(src []byte) header {
	return header{
		versionAndType: src[0],
		extension:      src[1],
		connID:         binary.BigEndian.Uint16(src[2:4]),
		timestamp:      binary.BigEndian.Uint32(src[4:8]),
		timestampDiff:  binary.BigEndian.Uint32(src[8:12]),
		window:         binary.BigEndian.Uint32(src[12:16]),
		seqNr:          binary.BigEndian.Uint16(src[16:18]),
		ackNr:          binary.BigEndian.Uint16(src[18:20]),
	}
}

// extensionView is a parsed TLV link in the extension chain rooted at
// header.extension: (next_ext_id, length, payload...), per spec §3 and
// §4.6.
type extensionView struct {
	id      uint8
	payload []byte
}

// parseExtensions walks the TLV chain starting right after the base
// header, returning every link in the chain plus the offset (relative to
// buf) where the user payload begins. An unrecognized extension id is
// not rejected: its link is returned like any other and findSackMask
// ignores it (spec §4.6 step 2; §7 "protocol violation: unknown
// extension"). ok is false only for a truncated chain.
func parseExtensions(firstExt uint8, buf []byte) (links []extensionView, payloadOffset int, ok bool) {
	ext := firstExt
	off := 0
	for ext != 0 {
		if off+2 > len(buf) {
			return nil, 0, false
		}
		next := buf[off]
		length := int(buf[off+1])
		off += 2
		if off+length > len(buf) {
			return nil, 0, false
		}
		links = append(links, extensionView{id: ext, payload: buf[off : off+length]})
		off += length
		ext = next
	}
	return links, off, true
}

// appendSackExtension appends a selective-ack TLV link carrying mask to
// dst, chaining it after whatever extension id was already pending
// (next, always 0 here since SACK is always the last/only link this
// engine emits). It returns the updated slice.
func appendSackExtension(dst []byte, next uint8, mask []byte) []byte {
	dst = append(dst, next, uint8(len(mask)))
	return append(dst, mask...)
}

// findSackMask returns the payload of the first recognized SACK link
// in links, if any.
func findSackMask(links []extensionView) []byte {
	for _, l := range links {
		if l.id == sackExtension {
			return l.payload
		}
	}
	return nil
}
