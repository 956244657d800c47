package minican

import (
	"encoding/binary"
	"fmt"
	"github.com/pkg/errors"
	"math"
)

const (
	VehicleControlID uint32 = 0x200
	LegacyDriveID    uint32 = 0x18C4D2D0
	VehicleStatusID  uint32 = 0x123
	RadarFirstID     uint32 = 0x521
	RadarLastID      uint32 = 0x524
)

var ErrChecksum = errors.New("checksum mismatch")

type Gear uint8

const (
	GearDisable Gear = 0
	GearPark    Gear = 1
	GearReverse Gear = 2
	GearNeutral Gear = 3
	GearDrive   Gear = 4
	GearSport   Gear = 5
)

func (g Gear) Valid() bool {
	return g <= GearSport
}

func (g Gear) String() string {
	switch g {
	case GearDisable:
		return "disable"
	case GearPark:
		return "P"
	case GearReverse:
		return "R"
	case GearNeutral:
		return "N"
	case GearDrive:
		return "D"
	case GearSport:
		return "S"
	}
	return fmt.Sprintf("gear(%d)", uint8(g))
}

// Layout describes one variant of the 8-byte control payload. The two
// variants differ only at byte 6: the vehicle-control frame keeps it zero
// while the legacy drive frame carries the alive counter there.
type Layout struct {
	Name      string
	CANID     uint32
	Extended  bool
	aliveByte bool
}

var (
	VehicleControl = Layout{Name: "vehicle-control", CANID: VehicleControlID}
	LegacyDrive    = Layout{Name: "legacy-drive", CANID: LegacyDriveID, Extended: true, aliveByte: true}
)

// LayoutForID maps a CAN id to the control layout transmitted on it.
func LayoutForID(id uint32) (Layout, bool) {
	switch id {
	case VehicleControlID:
		return VehicleControl, true
	case LegacyDriveID:
		return LegacyDrive, true
	}
	return Layout{}, false
}

// Control is a decoded control payload.
type Control struct {
	SpeedMms int
	AngleDeg float64
	Gear     Gear
	Alive    uint8
}

// Encode packs speed, steering angle and gear into the layout's payload:
//
//	byte 0  bits 0-7 of speed<<4|gear (low nibble = gear)
//	byte 1  bits 8-15 of speed<<4|gear
//	byte 2  low nibble: bits 16-19 of speed<<4|gear, high nibble: angle low byte bits 0-3
//	byte 3  high nibble: angle high byte bits 0-3, low nibble: angle low byte bits 4-7
//	byte 4  low nibble: angle high byte bits 4-7
//	byte 5  braking, unused
//	byte 6  alive counter on the legacy drive layout, otherwise zero
//	byte 7  XOR of bytes 0-6
//
// Speed is a signed 16-bit value in mm/s. The angle is carried as a
// big-endian int16 in hundredths of a degree. Values outside the
// representable range are an error, never clamped.
func (l Layout) Encode(speedMms int, angleDeg float64, gear Gear, alive uint8) ([8]byte, error) {
	var p [8]byte
	if speedMms < math.MinInt16 || speedMms > math.MaxInt16 {
		return p, errors.Errorf("speed %d mm/s not representable", speedMms)
	}
	angleRaw := math.Round(angleDeg * 100)
	if angleRaw < math.MinInt16 || angleRaw > math.MaxInt16 {
		return p, errors.Errorf("steering angle %.2f deg not representable", angleDeg)
	}
	if !gear.Valid() {
		return p, errors.Errorf("invalid gear %d", uint8(gear))
	}

	sg := uint32(uint16(int16(speedMms)))<<4 | uint32(gear)
	a := uint16(int16(angleRaw))
	ah := byte(a >> 8)
	al := byte(a)

	p[0] = byte(sg)
	p[1] = byte(sg >> 8)
	p[2] = byte(sg>>16)&0x0F | al<<4
	p[3] = ah<<4 | al>>4
	p[4] = ah >> 4
	if l.aliveByte {
		p[6] = alive
	}
	p[7] = bcc(p)
	return p, nil
}

// Decode unpacks a payload produced by Encode. The trailing checksum is
// verified first; a mismatch returns ErrChecksum so the caller can discard
// the frame.
func (l Layout) Decode(p [8]byte) (Control, error) {
	if bcc(p) != p[7] {
		return Control{}, ErrChecksum
	}
	sg := uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2]&0x0F)<<16
	gear := Gear(sg & 0x0F)
	if !gear.Valid() {
		return Control{}, errors.Errorf("invalid gear nibble %#x", uint8(gear))
	}
	al := p[2]>>4 | p[3]<<4
	ah := p[3]>>4 | p[4]<<4
	c := Control{
		SpeedMms: int(int16(sg >> 4)),
		AngleDeg: float64(int16(uint16(ah)<<8|uint16(al))) / 100,
		Gear:     gear,
	}
	if l.aliveByte {
		c.Alive = p[6]
	}
	return c, nil
}

func bcc(p [8]byte) byte {
	var x byte
	for _, b := range p[:7] {
		x ^= b
	}
	return x
}

// Status is the state the vehicle reports about itself on the status frame.
type Status struct {
	Gear     Gear
	SpeedMms int
	AngleDeg float64
}

// ParseStatus unpacks a vehicle status payload: gear in the low nibble of
// byte 0, an unsigned 12-bit speed across byte 0's high nibble and byte 1,
// and a little-endian int16 centidegree steering angle at bytes 2-3.
func ParseStatus(data []byte) (Status, error) {
	if len(data) < 4 {
		return Status{}, errors.Errorf("status payload too short: %v bytes", len(data))
	}
	gear := Gear(data[0] & 0x0F)
	if !gear.Valid() {
		return Status{}, errors.Errorf("invalid gear nibble %#x", data[0]&0x0F)
	}
	return Status{
		Gear:     gear,
		SpeedMms: int(data[1])<<4 | int(data[0])>>4,
		AngleDeg: float64(int16(binary.LittleEndian.Uint16(data[2:4]))) / 100,
	}, nil
}

// RadarDistance extracts the millimeter range from a radar frame, carried in
// the last two data bytes big-endian.
func RadarDistance(data []byte) (int, error) {
	if len(data) < 2 {
		return 0, errors.Errorf("radar payload too short: %v bytes", len(data))
	}
	return int(data[len(data)-2])<<8 | int(data[len(data)-1]), nil
}

func IsRadarID(id uint32) bool {
	return id >= RadarFirstID && id <= RadarLastID
}
