package usbcan

import (
	"encoding/binary"
	"github.com/cgl/minidrive"
	"github.com/pkg/errors"
)

const (
	headerFirst  = 0xAA
	headerSecond = 0x55
	endMarker    = 0x55

	fixedPacketLen = 20
	maxDataLen     = 8
	maxStandardID  = 0x7FF
	maxExtendedID  = 0x1FFFFFFF
)

// packet is one CAN frame as carried by the adapter framing.
type packet struct {
	id       uint32
	data     []byte
	extended bool
}

// additiveChecksum is the low byte of the sum of the covered bytes. The
// adapter covers everything after the two header bytes.
func additiveChecksum(b []byte) byte {
	var sum uint32
	for _, v := range b {
		sum += uint32(v)
	}
	return byte(sum)
}

// configPacket builds the 20 byte settings command the adapter expects
// once per connection.
//
//	off   field
//	0-1   header AA 55
//	2     protocol length, 02 fixed or 12 variable
//	3     CAN bit rate code
//	4     frame type, 01 standard or 02 extended
//	5-8   filter id
//	9-12  mask id
//	13    CAN mode
//	14    automatic resend
//	15-18 spare
//	19    additive checksum over bytes 2-18
func configPacket(c Config) []byte {
	p := make([]byte, 0, fixedPacketLen)
	p = append(p, headerFirst, headerSecond)
	if c.Protocol == minidrive.ProtocolVariable {
		p = append(p, 0x12)
	} else {
		p = append(p, 0x02)
	}
	p = append(p, c.bitRateCode())
	if c.FrameType == minidrive.FrameExtended {
		p = append(p, 0x02)
	} else {
		p = append(p, 0x01)
	}
	p = append(p, 0x00, 0x00, 0x00, 0x00) // filter
	p = append(p, 0x00, 0x00, 0x00, 0x00) // mask
	p = append(p, c.modeCode())
	p = append(p, 0x00)                   // automatic resend
	p = append(p, 0x00, 0x00, 0x00, 0x00) // spare
	p = append(p, additiveChecksum(p[2:]))
	return p
}

func validateFrame(id uint32, data []byte, extended bool) error {
	if len(data) > maxDataLen {
		return errors.Errorf("CAN data length %d exceeds %d bytes", len(data), maxDataLen)
	}
	if !extended && id > maxStandardID {
		return errors.Errorf("CAN id 0x%X too large for a standard frame", id)
	}
	if extended && id > maxExtendedID {
		return errors.Errorf("CAN id 0x%X too large for an extended frame", id)
	}
	return nil
}

// fixedPacket frames one CAN send in the 20 byte protocol. Data shorter
// than 8 bytes is zero padded.
func fixedPacket(id uint32, data []byte, extended bool) ([]byte, error) {
	if err := validateFrame(id, data, extended); err != nil {
		return nil, err
	}
	p := make([]byte, 0, fixedPacketLen)
	p = append(p, headerFirst, headerSecond, 0x01)
	if extended {
		p = append(p, 0x02)
	} else {
		p = append(p, 0x01)
	}
	p = append(p, 0x01)
	p = binary.LittleEndian.AppendUint32(p, id)
	p = append(p, maxDataLen)
	p = append(p, data...)
	for len(p) < 18 {
		p = append(p, 0x00)
	}
	p = append(p, 0x00) // reserved
	p = append(p, additiveChecksum(p[2:]))
	return p, nil
}

// variablePacket frames one CAN send in the variable length protocol:
// AA, control byte, little endian id, data, 55. The control byte carries
// the extended bit (0x20) and the data length in its low nibble.
func variablePacket(id uint32, data []byte, extended bool) ([]byte, error) {
	if err := validateFrame(id, data, extended); err != nil {
		return nil, err
	}
	control := byte(0xC0 | len(data))
	idLen := 2
	if extended {
		control |= 0x20
		idLen = 4
	}
	p := make([]byte, 0, 2+idLen+len(data)+1)
	p = append(p, headerFirst, control)
	if extended {
		p = binary.LittleEndian.AppendUint32(p, id)
	} else {
		p = binary.LittleEndian.AppendUint16(p, uint16(id))
	}
	p = append(p, data...)
	p = append(p, endMarker)
	return p, nil
}

// verifyChecksum reports whether a fixed 20 byte packet carries a valid
// checksum in its final byte.
func verifyChecksum(b []byte) bool {
	if len(b) < fixedPacketLen {
		return false
	}
	return b[fixedPacketLen-1] == additiveChecksum(b[2:fixedPacketLen-1])
}

// parseFixedPacket decodes an inbound fixed 20 byte packet. The caller is
// expected to have verified the checksum already; this only checks the
// structural fields.
//
//	off    field
//	0-1    header AA 55
//	2      type
//	3      frame type, 01 standard or 02 extended
//	4      frame mode
//	5-8    CAN id, little endian
//	9      data length, at most 8
//	10-17  data
//	18     reserved
//	19     checksum
func parseFixedPacket(b []byte) (packet, error) {
	if len(b) < fixedPacketLen {
		return packet{}, errors.Errorf("packet too short: %d bytes", len(b))
	}
	if b[0] != headerFirst || b[1] != headerSecond {
		return packet{}, errors.Errorf("invalid packet header: %02X %02X", b[0], b[1])
	}
	dataLen := int(b[9])
	if dataLen > maxDataLen {
		return packet{}, errors.Errorf("invalid data length %d", dataLen)
	}
	data := make([]byte, dataLen)
	copy(data, b[10:10+dataLen])
	return packet{
		id:       binary.LittleEndian.Uint32(b[5:9]),
		data:     data,
		extended: b[3] == 0x02,
	}, nil
}
