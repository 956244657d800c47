package minican

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestEncodeVehicleControl(t *testing.T) {
	p, err := VehicleControl.Encode(3000, 12.34, GearDrive, 0x30)
	assert.NoError(t, err)
	// alive counter is not part of this layout
	assert.Equal(t, [8]byte{0x84, 0xBB, 0x20, 0x4D, 0x00, 0x00, 0x00, 0x52}, p)
}

func TestEncodeLegacyDrive(t *testing.T) {
	p, err := LegacyDrive.Encode(3000, 12.34, GearDrive, 0x30)
	assert.NoError(t, err)
	assert.Equal(t, [8]byte{0x84, 0xBB, 0x20, 0x4D, 0x00, 0x00, 0x30, 0x62}, p)
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	_, err := VehicleControl.Encode(40000, 0, GearDrive, 0)
	assert.Error(t, err)
	_, err = VehicleControl.Encode(-40000, 0, GearReverse, 0)
	assert.Error(t, err)
	_, err = VehicleControl.Encode(0, 400, GearDrive, 0)
	assert.Error(t, err)
	_, err = VehicleControl.Encode(0, -328.0, GearDrive, 0)
	assert.Error(t, err)
	_, err = VehicleControl.Encode(0, 0, Gear(9), 0)
	assert.Error(t, err)

	// extremes of the representable range are fine
	_, err = VehicleControl.Encode(-32768, 327.67, GearReverse, 0)
	assert.NoError(t, err)
	_, err = VehicleControl.Encode(32767, -327.68, GearDrive, 0)
	assert.NoError(t, err)
}

func TestRoundTrip(t *testing.T) {
	vectors := []struct {
		speed int
		angle float64
		gear  Gear
		alive uint8
	}{
		{0, 0, GearPark, 0x00},
		{500, 0, GearDrive, 0x10},
		{3000, 12.34, GearDrive, 0x20},
		{-500, -12.34, GearReverse, 0xF0},
		{5000, 18, GearDrive, 0x40},
		{125, -0.05, GearSport, 0x50},
	}

	for _, layout := range []Layout{VehicleControl, LegacyDrive} {
		for _, v := range vectors {
			p, err := layout.Encode(v.speed, v.angle, v.gear, v.alive)
			assert.NoError(t, err)
			c, err := layout.Decode(p)
			assert.NoError(t, err)
			assert.Equal(t, v.speed, c.SpeedMms)
			assert.Equal(t, v.gear, c.Gear)
			assert.InDelta(t, v.angle, c.AngleDeg, 0.001)
			if layout.aliveByte {
				assert.Equal(t, v.alive, c.Alive)
			} else {
				assert.Equal(t, uint8(0), c.Alive)
			}
		}
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	p, err := VehicleControl.Encode(3000, 12.34, GearDrive, 0)
	assert.NoError(t, err)
	p[1] ^= 0x01
	_, err = VehicleControl.Decode(p)
	assert.Equal(t, ErrChecksum, err)
}

func TestDecodeInvalidGear(t *testing.T) {
	p, err := VehicleControl.Encode(3000, 12.34, GearDrive, 0)
	assert.NoError(t, err)
	// rewrite the gear nibble and fix up the checksum
	p[0] = p[0]&0xF0 | 0x09
	p[7] = p[0] ^ p[1] ^ p[2] ^ p[3] ^ p[4] ^ p[5] ^ p[6]
	_, err = VehicleControl.Decode(p)
	assert.Error(t, err)
	assert.NotEqual(t, ErrChecksum, err)
}

func TestLayoutForID(t *testing.T) {
	l, ok := LayoutForID(0x200)
	assert.True(t, ok)
	assert.Equal(t, VehicleControl, l)

	l, ok = LayoutForID(0x18C4D2D0)
	assert.True(t, ok)
	assert.Equal(t, LegacyDrive, l)

	_, ok = LayoutForID(0x123)
	assert.False(t, ok)
}

func TestParseStatus(t *testing.T) {
	// 1500 mm/s in drive at -5.25 deg
	s, err := ParseStatus([]byte{0xC4, 0x5D, 0xF3, 0xFD, 0x00, 0x00, 0x00, 0x00})
	assert.NoError(t, err)
	assert.Equal(t, GearDrive, s.Gear)
	assert.Equal(t, 1500, s.SpeedMms)
	assert.InDelta(t, -5.25, s.AngleDeg, 0.001)

	_, err = ParseStatus([]byte{0x04, 0x00})
	assert.Error(t, err)

	_, err = ParseStatus([]byte{0x0F, 0x00, 0x00, 0x00})
	assert.Error(t, err)
}

func TestRadarDistance(t *testing.T) {
	d, err := RadarDistance([]byte{0, 0, 0, 0, 0, 0, 0x01, 0x2C})
	assert.NoError(t, err)
	assert.Equal(t, 300, d)

	d, err = RadarDistance([]byte{0x02, 0x58})
	assert.NoError(t, err)
	assert.Equal(t, 600, d)

	_, err = RadarDistance([]byte{0x01})
	assert.Error(t, err)
}

func TestIsRadarID(t *testing.T) {
	assert.True(t, IsRadarID(0x521))
	assert.True(t, IsRadarID(0x524))
	assert.False(t, IsRadarID(0x520))
	assert.False(t, IsRadarID(0x525))
}

func TestGearString(t *testing.T) {
	assert.Equal(t, "P", GearPark.String())
	assert.Equal(t, "D", GearDrive.String())
	assert.Equal(t, "disable", GearDisable.String())
	assert.Equal(t, "gear(9)", Gear(9).String())
}
