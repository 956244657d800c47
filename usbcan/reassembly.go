package usbcan

import (
	"bytes"
	log "github.com/sirupsen/logrus"
)

// rawBufferCap bounds how long the scanner waits on a stalled packet
// before it starts shifting bytes to resynchronize.
const rawBufferCap = 200

// scanner reassembles adapter packets from an arbitrarily chunked byte
// stream. Serial reads can split a packet anywhere, so partial input is
// buffered until a complete packet, or evidence of corruption, arrives.
type scanner struct {
	variable bool
	buf      []byte
}

// push appends freshly read bytes and returns every complete packet now
// available.
func (s *scanner) push(b []byte) []packet {
	s.buf = append(s.buf, b...)
	if s.variable {
		return s.scanVariable()
	}
	return s.scanFixed()
}

func (s *scanner) discard(n int) {
	s.buf = append(s.buf[:0], s.buf[n:]...)
}

// scanFixed carves fixed 20 byte packets. The next AA 55 header acts as a
// delimiter: a valid packet ends exactly where the next one starts, so a
// header at any other offset marks the bytes before it as garbage.
func (s *scanner) scanFixed() []packet {
	var out []packet
	for {
		if !s.alignFixed() {
			return out
		}
		next := bytes.Index(s.buf[2:], []byte{headerFirst, headerSecond})
		if next >= 0 {
			pos := next + 2
			if pos == fixedPacketLen && verifyChecksum(s.buf) {
				if pkt, err := parseFixedPacket(s.buf); err != nil {
					log.WithField("err", err).Warn("dropping malformed adapter packet")
				} else {
					out = append(out, pkt)
				}
			} else {
				log.WithField("length", pos).Debug("discarding bytes up to next packet header")
			}
			s.discard(pos)
			continue
		}
		if len(s.buf) < fixedPacketLen {
			return out
		}
		if verifyChecksum(s.buf) {
			if pkt, err := parseFixedPacket(s.buf); err != nil {
				log.WithField("err", err).Warn("dropping malformed adapter packet")
			} else {
				out = append(out, pkt)
			}
			s.discard(fixedPacketLen)
			continue
		}
		// checksum failed and no later header yet: either bytes are still
		// in flight or the packet is corrupt, so wait bounded by the cap
		if len(s.buf) > rawBufferCap {
			s.discard(1)
			continue
		}
		return out
	}
}

// alignFixed drops leading bytes until the buffer starts with AA 55.
// A trailing AA is kept, its 55 may be in the next read.
func (s *scanner) alignFixed() bool {
	if i := bytes.Index(s.buf, []byte{headerFirst, headerSecond}); i >= 0 {
		if i > 0 {
			log.WithField("discarded", i).Debug("skipping bytes before packet header")
			s.discard(i)
		}
		return true
	}
	if n := len(s.buf); n > 0 && s.buf[n-1] == headerFirst {
		s.discard(n - 1)
	} else {
		s.buf = s.buf[:0]
	}
	return false
}

// scanVariable carves variable length packets: AA, a control byte with the
// top two bits set, a 2 or 4 byte little endian id, the data, then 55.
func (s *scanner) scanVariable() []packet {
	var out []packet
	for {
		if !s.alignVariable() {
			return out
		}
		control := s.buf[1]
		dataLen := int(control & 0x0F)
		if dataLen > maxDataLen {
			s.discard(1)
			continue
		}
		extended := control&0x20 != 0
		idLen := 2
		if extended {
			idLen = 4
		}
		total := 2 + idLen + dataLen + 1
		if len(s.buf) < total {
			return out
		}
		if s.buf[total-1] != endMarker {
			log.WithField("control", control).Warn("variable packet missing end marker")
			s.discard(1)
			continue
		}
		var id uint32
		if extended {
			id = uint32(s.buf[2]) | uint32(s.buf[3])<<8 | uint32(s.buf[4])<<16 | uint32(s.buf[5])<<24
		} else {
			id = uint32(s.buf[2]) | uint32(s.buf[3])<<8
		}
		data := make([]byte, dataLen)
		copy(data, s.buf[2+idLen:2+idLen+dataLen])
		out = append(out, packet{id: id, data: data, extended: extended})
		s.discard(total)
	}
}

// alignVariable drops bytes until the buffer starts with AA followed by a
// control byte whose top two bits are set.
func (s *scanner) alignVariable() bool {
	for i := 0; i+1 < len(s.buf); i++ {
		if s.buf[i] == headerFirst && s.buf[i+1]&0xC0 == 0xC0 {
			if i > 0 {
				log.WithField("discarded", i).Debug("skipping bytes before packet header")
				s.discard(i)
			}
			return true
		}
	}
	if n := len(s.buf); n > 0 && s.buf[n-1] == headerFirst {
		s.discard(n - 1)
	} else {
		s.buf = s.buf[:0]
	}
	return false
}
