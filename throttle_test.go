package minidrive

import (
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestThrottleFirstSend(t *testing.T) {
	th := TransmissionThrottle{}
	assert.True(t, th.ShouldSend(0, 0, time.Unix(0, 0)))
}

func TestThrottleHeartbeat(t *testing.T) {
	th := TransmissionThrottle{}
	base := time.Unix(100, 0)
	th.MarkSent(1000, 5, base)

	assert.False(t, th.ShouldSend(1000, 5, base))
	assert.False(t, th.ShouldSend(1000, 5, base.Add(500*time.Millisecond)))
	assert.False(t, th.ShouldSend(1000, 5, base.Add(999*time.Millisecond)))
	assert.True(t, th.ShouldSend(1000, 5, base.Add(time.Second)))
	assert.True(t, th.ShouldSend(1000, 5, base.Add(90*time.Second)))
}

func TestThrottleSpeedChange(t *testing.T) {
	th := TransmissionThrottle{}
	base := time.Unix(100, 0)
	th.MarkSent(1000, 5, base)

	assert.True(t, th.ShouldSend(1100, 5, base.Add(time.Millisecond)))
	assert.True(t, th.ShouldSend(900, 5, base.Add(time.Millisecond)))
	assert.False(t, th.ShouldSend(1000, 5, base.Add(time.Millisecond)))
}

func TestThrottleAngleChange(t *testing.T) {
	th := TransmissionThrottle{}
	base := time.Unix(100, 0)
	th.MarkSent(1000, 5, base)

	// within epsilon
	assert.False(t, th.ShouldSend(1000, 5.0005, base.Add(time.Millisecond)))
	assert.False(t, th.ShouldSend(1000, 4.9995, base.Add(time.Millisecond)))
	// beyond epsilon
	assert.True(t, th.ShouldSend(1000, 5.002, base.Add(time.Millisecond)))
	assert.True(t, th.ShouldSend(1000, 4.998, base.Add(time.Millisecond)))
}

func TestThrottleMarkSentRearms(t *testing.T) {
	th := TransmissionThrottle{}
	base := time.Unix(100, 0)
	th.MarkSent(1000, 5, base)
	th.MarkSent(1000, 5, base.Add(time.Second))

	assert.False(t, th.ShouldSend(1000, 5, base.Add(1900*time.Millisecond)))
	assert.True(t, th.ShouldSend(1000, 5, base.Add(2*time.Second)))
}
