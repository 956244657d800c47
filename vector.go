package minidrive

import (
	"fmt"
	"github.com/cgl/minidrive/minican"
)

// ControlVector is the full command the vehicle is steered by. It is what
// the drive loop encodes onto the bus and what animation consumers render.
type ControlVector struct {
	SpeedMms int
	AngleDeg float64
	Gear     minican.Gear
}

func (v ControlVector) String() string {
	return fmt.Sprintf("%dmm/s %.2fdeg %v", v.SpeedMms, v.AngleDeg, v.Gear)
}

// PedalState is the raw position of both pedals. At most one of them drives
// the ramp at a time; the brake dominates.
type PedalState struct {
	Accelerating bool
	Braking      bool
}

// AliveCounter is the rolling counter carried at byte 6 of the legacy drive
// frame. The receiver firmware expects steps of 0x10, wrapping at 0x100.
type AliveCounter uint8

const aliveStep = 0x10

func (a AliveCounter) Next() AliveCounter {
	return a + aliveStep
}
