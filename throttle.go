package minidrive

import (
	"math"
	"time"
)

const (
	heartbeatInterval = time.Second
	angleEpsilon      = 0.001
)

// TransmissionThrottle suppresses frames that would tell the vehicle
// nothing new, while guaranteeing a heartbeat frame at least once a second.
type TransmissionThrottle struct {
	sentOnce  bool
	lastSpeed int
	lastAngle float64
	lastSent  time.Time
}

// ShouldSend reports whether a frame carrying speed and angle must go out
// now.
func (t *TransmissionThrottle) ShouldSend(speedMms int, angleDeg float64, now time.Time) bool {
	if !t.sentOnce {
		return true
	}
	if speedMms != t.lastSpeed {
		return true
	}
	if math.Abs(angleDeg-t.lastAngle) > angleEpsilon {
		return true
	}
	return now.Sub(t.lastSent) >= heartbeatInterval
}

// MarkSent records a confirmed transmission. It must not be called for
// frames the transport rejected.
func (t *TransmissionThrottle) MarkSent(speedMms int, angleDeg float64, now time.Time) {
	t.sentOnce = true
	t.lastSpeed = speedMms
	t.lastAngle = angleDeg
	t.lastSent = now
}
