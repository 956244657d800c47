package minidrive

import (
	"github.com/benbjohnson/clock"
	"github.com/cgl/minidrive/minican"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sync"
	"time"
)

// DriveSupervisor owns the control vector and is the only writer of drive
// frames: a fixed-period loop reads the vector, asks the throttle whether
// the bus needs it, and encodes at most one frame per tick. Pedal input,
// steering, replay sources and operator commands all converge here.
type DriveSupervisor struct {
	mu        sync.Mutex
	clk       clock.Clock
	transport Transport
	layout    minican.Layout
	protocol  ProtocolLength

	vector   ControlVector
	steering float64
	alive    AliveCounter
	throttle TransmissionThrottle
	driving  bool

	ramp     *PedalRamp
	commands *TimedCommandHandler

	consumers []Consumer

	loopCancel chan struct{}
	loopDone   chan struct{}
	replay     *replayRun
}

func NewDriveSupervisor(clk clock.Clock, transport Transport, layout minican.Layout, protocol ProtocolLength) *DriveSupervisor {
	if clk == nil {
		clk = clock.New()
	}
	s := &DriveSupervisor{
		clk:       clk,
		transport: transport,
		layout:    layout,
		protocol:  protocol,
		vector:    ControlVector{Gear: minican.GearPark},
	}
	s.ramp = NewPedalRamp(clk, s.SteeringAngle, s.setVector)
	s.commands = NewTimedCommandHandler(clk, transport)
	return s
}

// AddConsumer registers an animation consumer. Every tick's vector is
// forwarded to it, sent on the bus or not.
func (s *DriveSupervisor) AddConsumer(c Consumer) {
	s.mu.Lock()
	s.consumers = append(s.consumers, c)
	s.mu.Unlock()
}

// Vector returns the current control vector.
func (s *DriveSupervisor) Vector() ControlVector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vector
}

func (s *DriveSupervisor) Driving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driving
}

// SteeringAngle returns the operator's steering input in degrees.
func (s *DriveSupervisor) SteeringAngle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steering
}

// SetSteering records the operator's steering input. Outside a replay it
// takes effect on the very next tick; a replay's recorded angles win while
// it runs.
func (s *DriveSupervisor) SetSteering(angleDeg float64) {
	s.mu.Lock()
	s.steering = angleDeg
	if s.replay == nil {
		s.vector.AngleDeg = angleDeg
	}
	s.mu.Unlock()
}

// AccelerateDown forwards the accelerator press to the pedal ramp. Pedals
// only act while driving and outside a replay.
func (s *DriveSupervisor) AccelerateDown() {
	if !s.pedalsLive() {
		return
	}
	s.ramp.AccelerateDown()
}

func (s *DriveSupervisor) AccelerateUp() {
	if !s.pedalsLive() {
		return
	}
	s.ramp.AccelerateUp()
}

func (s *DriveSupervisor) BrakeDown() {
	if !s.pedalsLive() {
		return
	}
	s.ramp.BrakeDown()
}

func (s *DriveSupervisor) BrakeUp() {
	if !s.pedalsLive() {
		return
	}
	s.ramp.BrakeUp()
}

func (s *DriveSupervisor) pedalsLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.driving || s.replay != nil {
		log.Debug("pedal event ignored: not driving or replay active")
		return false
	}
	return true
}

// Ramp exposes the pedal ramp, mainly for state display.
func (s *DriveSupervisor) Ramp() *PedalRamp {
	return s.ramp
}

// setVector is where the ramp and replay publish into the supervisor.
func (s *DriveSupervisor) setVector(v ControlVector) {
	if v.SpeedMms > 0 && v.Gear != minican.GearDrive && v.Gear != minican.GearReverse {
		log.WithField("vector", v.String()).Warn("moving vector without a motion gear")
	}
	s.mu.Lock()
	s.vector = v
	s.mu.Unlock()
}

// StartDriving begins the periodic send loop from a parked baseline. It is
// idempotent.
func (s *DriveSupervisor) StartDriving() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLoopLocked()
	return nil
}

func (s *DriveSupervisor) startLoopLocked() {
	if s.driving {
		return
	}
	s.driving = true
	s.vector = ControlVector{AngleDeg: s.steering, Gear: minican.GearPark}

	cancel := make(chan struct{})
	done := make(chan struct{})
	s.loopCancel = cancel
	s.loopDone = done
	ticker := s.clk.Ticker(tickInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
	log.Info("drive loop started")
}

// Tick runs one iteration of the drive loop: decide, encode, send, fan out.
func (s *DriveSupervisor) Tick() {
	s.mu.Lock()
	v := s.vector
	now := s.clk.Now()
	send := s.throttle.ShouldSend(v.SpeedMms, v.AngleDeg, now)
	var msg Message
	var encErr error
	if send {
		var p [8]byte
		p, encErr = s.layout.Encode(v.SpeedMms, v.AngleDeg, v.Gear, uint8(s.alive))
		if encErr == nil {
			s.alive = s.alive.Next()
			msg = s.driveMessage(p)
		}
	}
	consumers := s.consumers
	s.mu.Unlock()

	if send {
		switch {
		case encErr != nil:
			log.WithField("err", encErr).Error("unable to encode drive frame")
		default:
			if err := s.transport.Send(msg); err != nil {
				// local state stays optimistic, the next tick retries
				log.WithField("err", err).Error("unable to send drive frame")
			} else {
				s.mu.Lock()
				s.throttle.MarkSent(v.SpeedMms, v.AngleDeg, now)
				s.mu.Unlock()
			}
		}
	}

	s.fanOut(consumers, v)
}

func (s *DriveSupervisor) fanOut(consumers []Consumer, v ControlVector) {
	for _, c := range consumers {
		if err := c.ControlUpdate(v); err != nil {
			log.WithField("err", err).Warn("consumer rejected control update")
		}
	}
}

func (s *DriveSupervisor) driveMessage(p [8]byte) Message {
	t := FrameStandard
	if s.layout.Extended {
		t = FrameExtended
	}
	return Message{
		ID:       FormatID(s.layout.CANID),
		Data:     FormatData(p[:]),
		Type:     t,
		Protocol: s.protocol,
	}
}

// StopDriving halts the loop, cancels pedal and replay activity, and tells
// the vehicle to hold parked with one forced frame. Stopping while already
// stopped is harmless.
func (s *DriveSupervisor) StopDriving() error {
	s.ramp.Reset()

	s.mu.Lock()
	replay := s.replay
	s.replay = nil
	cancel, done := s.loopCancel, s.loopDone
	s.loopCancel, s.loopDone = nil, nil
	wasDriving := s.driving
	s.driving = false
	s.mu.Unlock()

	if replay != nil {
		replay.end()
		<-replay.completed
	}
	if cancel != nil {
		close(cancel)
		<-done
	}
	if !wasDriving {
		return nil
	}
	log.Info("drive loop stopped")
	return s.sendStopFrame()
}

// sendStopFrame forces the parked vector onto the bus, bypassing the
// throttle: a gear change alone would never pass its change detection.
func (s *DriveSupervisor) sendStopFrame() error {
	s.mu.Lock()
	s.vector = ControlVector{AngleDeg: s.steering, Gear: minican.GearPark}
	v := s.vector
	now := s.clk.Now()
	p, err := s.layout.Encode(v.SpeedMms, v.AngleDeg, v.Gear, uint8(s.alive))
	if err == nil {
		s.alive = s.alive.Next()
	}
	consumers := s.consumers
	s.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, "unable to encode stop frame")
	}
	sendErr := s.transport.Send(s.driveMessage(p))
	if sendErr == nil {
		s.mu.Lock()
		s.throttle.MarkSent(v.SpeedMms, v.AngleDeg, now)
		s.mu.Unlock()
	}
	s.fanOut(consumers, v)
	if sendErr != nil {
		return errors.Wrap(sendErr, "unable to send stop frame")
	}
	return nil
}

// Execute dispatches an operator command by table name. Actuator motion
// routes through the auto-stop handler; everything else is a single frame.
func (s *DriveSupervisor) Execute(name string) error {
	cmd, ok := LookupCommand(name)
	if !ok {
		return errors.Errorf("unknown command %q", name)
	}
	switch {
	case cmd.Class != "" && cmd.Stop:
		return s.commands.Stop(cmd.Class, s.commandMessage(cmd))
	case cmd.Class != "":
		stopCmd, ok := classStop(cmd.Class)
		if !ok {
			return errors.Errorf("command class %q has no stop entry", cmd.Class)
		}
		return s.commands.Issue(cmd.Class, s.commandMessage(cmd), s.commandMessage(stopCmd))
	default:
		log.WithField("command", cmd.Name).WithField("canID", cmd.CANID).
			Debug("sending single-shot command")
		return s.transport.Send(s.commandMessage(cmd))
	}
}

func (s *DriveSupervisor) commandMessage(c Command) Message {
	return Message{ID: c.CANID, Data: c.Data, Type: c.Type, Protocol: s.protocol}
}

// Shutdown stops driving and flushes pending actuator stops.
func (s *DriveSupervisor) Shutdown() error {
	err := s.StopDriving()
	if stopErr := s.commands.StopAll(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

type replayRun struct {
	stop      chan struct{}
	completed chan struct{}
	once      sync.Once
}

func (r *replayRun) end() {
	r.once.Do(func() {
		close(r.stop)
	})
}

// StartReplay drives the vehicle from a recorded vector sequence, feeding
// it through the same throttle and codec as live pedal input. The returned
// channel closes when the replay ends. An interval of zero or less uses the
// drive tick period.
func (s *DriveSupervisor) StartReplay(vectors []ControlVector, interval time.Duration) (<-chan struct{}, error) {
	if len(vectors) == 0 {
		return nil, errors.New("empty recording")
	}
	return s.startFeed(func(step int) (ControlVector, bool) {
		if step >= len(vectors) {
			return ControlVector{}, false
		}
		return vectors[step], true
	}, interval)
}

// StartAutoDrive runs the endless scripted trajectory through the drive
// pipeline. It only ends on StopReplay or StopDriving.
func (s *DriveSupervisor) StartAutoDrive(tr *Trajectory, interval time.Duration) (<-chan struct{}, error) {
	if interval <= 0 {
		interval = tickInterval
	}
	step := interval
	return s.startFeed(func(n int) (ControlVector, bool) {
		return tr.Sample(time.Duration(n) * step), true
	}, interval)
}

func (s *DriveSupervisor) startFeed(next func(int) (ControlVector, bool), interval time.Duration) (<-chan struct{}, error) {
	if interval <= 0 {
		interval = tickInterval
	}
	s.ramp.Reset()

	s.mu.Lock()
	if s.replay != nil {
		s.mu.Unlock()
		return nil, errors.New("replay already running")
	}
	s.startLoopLocked()
	run := &replayRun{
		stop:      make(chan struct{}),
		completed: make(chan struct{}),
	}
	s.replay = run
	s.mu.Unlock()

	ticker := s.clk.Ticker(interval)
	go func() {
		defer close(run.completed)
		defer ticker.Stop()
		for step := 0; ; step++ {
			v, ok := next(step)
			if !ok {
				log.WithField("steps", step).Info("replay complete")
				s.replayEnded(run)
				return
			}
			s.setVector(v)
			select {
			case <-run.stop:
				return
			case <-ticker.C:
			}
		}
	}()
	log.Info("replay started")
	return run.completed, nil
}

// replayEnded handles natural completion: the system must not stay driving
// without a live update source.
func (s *DriveSupervisor) replayEnded(run *replayRun) {
	s.mu.Lock()
	if s.replay != run {
		// explicitly stopped, that path owns the transition
		s.mu.Unlock()
		return
	}
	s.replay = nil
	s.mu.Unlock()

	if err := s.StopDriving(); err != nil {
		log.WithField("err", err).Error("unable to stop after replay")
	}
}

// StopReplay ends a running replay and brings the vehicle to the parked
// state.
func (s *DriveSupervisor) StopReplay() error {
	s.mu.Lock()
	running := s.replay != nil
	s.mu.Unlock()
	if !running {
		return errors.New("no replay running")
	}
	return s.StopDriving()
}
