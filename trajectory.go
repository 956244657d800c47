package minidrive

import (
	"github.com/cgl/minidrive/minican"
	"github.com/pkg/errors"
	"math"
	"time"
)

// Keyframe anchors the scripted drive at a point in its cycle.
type Keyframe struct {
	At       time.Duration
	AngleDeg float64
	SpeedMms int
}

// Trajectory generates an endless scripted drive by easing between
// keyframes with a half-cosine, so speed and steering glide instead of
// jumping.
type Trajectory struct {
	frames []Keyframe
	cycle  time.Duration
}

func NewTrajectory(frames []Keyframe) (*Trajectory, error) {
	if len(frames) < 2 {
		return nil, errors.New("trajectory needs at least two keyframes")
	}
	if frames[0].At != 0 {
		return nil, errors.New("first keyframe must be at time zero")
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].At <= frames[i-1].At {
			return nil, errors.Errorf("keyframe %v is not after its predecessor", i)
		}
	}
	return &Trajectory{frames: frames, cycle: frames[len(frames)-1].At}, nil
}

var defaultFrames = []Keyframe{
	{0, 0, 1500},
	{5 * time.Second, 0, 3000},
	{12 * time.Second, 10, 2000},
	{22 * time.Second, 18, 2000},
	{24 * time.Second, 12, 1800},
	{29 * time.Second, 5, 1600},
	{31 * time.Second, 0, 1500},
	{36 * time.Second, 0, 2000},
	{39 * time.Second, -5, 2500},
	{49 * time.Second, -2, 3000},
	{52 * time.Second, 0, 1400},
	{62 * time.Second, 5, 1600},
	{70 * time.Second, 15, 2500},
	{84 * time.Second, 10, 2500},
	{86 * time.Second, 5, 2000},
	{100 * time.Second, 0, 1500},
	{110 * time.Second, 0, 1500},
}

// DefaultTrajectory is the built-in demonstration circuit: a 110 second lap
// of sweeping turns in both directions.
func DefaultTrajectory() *Trajectory {
	t, err := NewTrajectory(defaultFrames)
	if err != nil {
		panic(err) // the table is static
	}
	return t
}

// Sample returns the vector at the given time into the drive. The script
// wraps around at the end of its cycle.
func (t *Trajectory) Sample(elapsed time.Duration) ControlVector {
	e := elapsed % t.cycle
	if e < 0 {
		e += t.cycle
	}

	i := 1
	for t.frames[i].At < e {
		i++
	}
	prev, next := t.frames[i-1], t.frames[i]

	progress := float64(e-prev.At) / float64(next.At-prev.At)
	ease := 0.5 * (1 - math.Cos(progress*math.Pi))
	speed := float64(prev.SpeedMms) + float64(next.SpeedMms-prev.SpeedMms)*ease
	angle := prev.AngleDeg + (next.AngleDeg-prev.AngleDeg)*ease

	return ControlVector{
		SpeedMms: int(math.Round(speed)),
		AngleDeg: angle,
		Gear:     minican.GearDrive,
	}
}

// Cycle is the length of one full lap.
func (t *Trajectory) Cycle() time.Duration {
	return t.cycle
}
