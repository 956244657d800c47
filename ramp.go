package minidrive

import (
	"github.com/benbjohnson/clock"
	"github.com/cgl/minidrive/minican"
	log "github.com/sirupsen/logrus"
	"sync"
	"time"
)

const (
	tickInterval = 100 * time.Millisecond

	// speed constants in mm/s, steps per tick
	accelStep  = 100
	maxSpeed   = 5000
	creepSpeed = 500
	decayStep  = 50
	brakeStep  = 300
)

type RampState int

const (
	RampIdle RampState = iota
	RampAccelerating
	RampBraking
	RampDecaying
)

func (s RampState) String() string {
	switch s {
	case RampIdle:
		return "idle"
	case RampAccelerating:
		return "accelerating"
	case RampBraking:
		return "braking"
	case RampDecaying:
		return "decaying"
	}
	return "unknown"
}

// PedalRamp turns pedal edges into a smooth speed profile. Each active
// state runs on its own ticker; entering a state cancels the previous
// ticker completely before the next one starts, so a stale tick can never
// step the wrong state.
type PedalRamp struct {
	mu      sync.Mutex
	clk     clock.Clock
	angle   func() float64      // live steering angle, read every tick
	publish func(ControlVector) // called outside the lock

	state  RampState
	pedals PedalState
	speed  int
	gear   minican.Gear

	ticker *clock.Ticker
	cancel chan struct{}
	gen    uint64
}

func NewPedalRamp(clk clock.Clock, angle func() float64, publish func(ControlVector)) *PedalRamp {
	if clk == nil {
		clk = clock.New()
	}
	return &PedalRamp{
		clk:     clk,
		angle:   angle,
		publish: publish,
		gear:    minican.GearPark,
	}
}

// AccelerateDown handles the accelerator pedal being pressed. The brake
// dominates: while braking only the pedal position is recorded.
func (r *PedalRamp) AccelerateDown() {
	r.mu.Lock()
	r.pedals.Accelerating = true
	if r.state == RampBraking || r.state == RampAccelerating {
		r.mu.Unlock()
		return
	}
	r.enterStateLocked(RampAccelerating)
	r.mu.Unlock()
}

func (r *PedalRamp) AccelerateUp() {
	r.mu.Lock()
	r.pedals.Accelerating = false
	if r.state != RampAccelerating {
		r.mu.Unlock()
		return
	}
	r.enterStateLocked(RampDecaying)
	r.mu.Unlock()
}

func (r *PedalRamp) BrakeDown() {
	r.mu.Lock()
	r.pedals.Braking = true
	if r.state != RampBraking {
		r.enterStateLocked(RampBraking)
	}
	r.mu.Unlock()
}

func (r *PedalRamp) BrakeUp() {
	r.mu.Lock()
	r.pedals.Braking = false
	if r.state != RampBraking {
		r.mu.Unlock()
		return
	}
	if r.speed == 0 {
		r.enterStateLocked(RampIdle)
	} else {
		r.enterStateLocked(RampDecaying)
	}
	r.mu.Unlock()
}

// Reset cancels any ramp activity and returns to idle.
func (r *PedalRamp) Reset() {
	r.mu.Lock()
	r.pedals = PedalState{}
	r.enterStateLocked(RampIdle)
	r.mu.Unlock()
}

func (r *PedalRamp) State() RampState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *PedalRamp) Speed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speed
}

func (r *PedalRamp) Pedals() PedalState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pedals
}

func (r *PedalRamp) enterStateLocked(s RampState) {
	r.stopTickerLocked()
	log.WithField("from", r.state).WithField("to", s).Debug("pedal ramp state change")
	r.state = s
	switch s {
	case RampIdle:
		r.speed = 0
		r.gear = minican.GearPark
	default:
		r.startTickerLocked()
	}
}

func (r *PedalRamp) stopTickerLocked() {
	r.gen++
	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	close(r.cancel)
	r.ticker = nil
	r.cancel = nil
}

func (r *PedalRamp) startTickerLocked() {
	gen := r.gen
	ticker := r.clk.Ticker(tickInterval)
	cancel := make(chan struct{})
	r.ticker = ticker
	r.cancel = cancel
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				r.tick(gen)
			}
		}
	}()
}

func (r *PedalRamp) tick(gen uint64) {
	r.mu.Lock()
	if gen != r.gen {
		// cancelled while this tick was in flight
		r.mu.Unlock()
		return
	}
	v, ok := r.stepLocked()
	r.mu.Unlock()
	if ok {
		r.publish(v)
	}
}

// Tick advances the ramp one step in its current state and publishes the
// result.
func (r *PedalRamp) Tick() {
	r.mu.Lock()
	v, ok := r.stepLocked()
	r.mu.Unlock()
	if ok {
		r.publish(v)
	}
}

func (r *PedalRamp) stepLocked() (ControlVector, bool) {
	switch r.state {
	case RampAccelerating:
		r.speed += accelStep
		if r.speed > maxSpeed {
			r.speed = maxSpeed
		}
		r.gear = minican.GearDrive
	case RampBraking:
		r.speed -= brakeStep
		if r.speed <= 0 {
			r.speed = 0
			r.gear = minican.GearPark
			// hold here until the brake is released
			r.stopTickerLocked()
		} else {
			r.gear = minican.GearDrive
		}
	case RampDecaying:
		switch {
		case r.speed > creepSpeed:
			r.speed -= decayStep
			if r.speed < creepSpeed {
				r.speed = creepSpeed
			}
		case r.speed < creepSpeed:
			r.speed += decayStep
			if r.speed > creepSpeed {
				r.speed = creepSpeed
			}
		}
		r.gear = minican.GearDrive
		if r.speed == creepSpeed {
			// hold creep until the next pedal event
			r.stopTickerLocked()
		}
	default:
		return ControlVector{}, false
	}
	return ControlVector{SpeedMms: r.speed, AngleDeg: r.angle(), Gear: r.gear}, true
}
