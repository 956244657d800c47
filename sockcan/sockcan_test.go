package sockcan

import (
	"context"
	"github.com/brutella/can"
	"github.com/cgl/minidrive"
	"github.com/cgl/minidrive/minican"
	"github.com/stretchr/testify/assert"
	"sync"
	"testing"
)

type busStub struct {
	disconnected bool
	subscribed   can.HandlerFunc
	stopChan     chan struct{}
	startedChan  chan struct{}
	publishChan  chan *can.Frame
}

func (bus *busStub) SubscribeFunc(fn can.HandlerFunc) {
	bus.subscribed = fn
}

func (bus *busStub) ConnectAndPublish() error {
	bus.startedChan <- struct{}{}
	<-bus.stopChan
	return nil
}

func (bus *busStub) Disconnect() error {
	bus.disconnected = true
	bus.stopChan <- struct{}{}
	return nil
}

func (bus *busStub) Publish(f can.Frame) error {
	bus.publishChan <- &f
	return nil
}

func TestOpenBindsInterface(t *testing.T) {
	origNewBus := newBus
	bus := &busStub{
		stopChan: make(chan struct{}, 1),
	}
	newBus = func(string) (CANBus, error) {
		return bus, nil
	}
	defer func() {
		newBus = origNewBus
	}()

	c := New("can0", minidrive.Inbound{})
	assert.Equal(t, "can0", c.Name())
	assert.NoError(t, c.Open())
	assert.IsType(t, &busStub{}, c.bus)

	assert.NoError(t, c.Close())
	assert.True(t, bus.disconnected)
	assert.NoError(t, c.Close())
}

func TestStartStopsWithContext(t *testing.T) {
	bus := &busStub{
		stopChan:    make(chan struct{}),
		startedChan: make(chan struct{}),
	}
	c := New("can0", minidrive.Inbound{})
	c.bus = bus

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		assert.Equal(t, context.Canceled, c.Start(ctx))
		wg.Done()
	}()
	<-bus.startedChan
	assert.NotNil(t, bus.subscribed)
	cancel()
	wg.Wait()
	assert.True(t, bus.disconnected)
}

func TestStartRequiresOpen(t *testing.T) {
	c := New("can0", minidrive.Inbound{})
	assert.Error(t, c.Start(context.Background()))
}

func TestSendPublishesFrame(t *testing.T) {
	bus := &busStub{
		publishChan: make(chan *can.Frame, 1),
	}
	c := New("can0", minidrive.Inbound{})
	c.bus = bus

	assert.NoError(t, c.Send(minidrive.Message{
		ID:   "0x200",
		Data: "01 00 00 00 00 00 00 01",
		Type: minidrive.FrameStandard,
	}))
	f := <-bus.publishChan
	assert.Equal(t, uint32(0x200), f.ID)
	assert.Equal(t, uint8(8), f.Length)
	assert.Equal(t, [8]uint8{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}, f.Data)
}

func TestSendExtendedSetsFlag(t *testing.T) {
	bus := &busStub{
		publishChan: make(chan *can.Frame, 1),
	}
	c := New("can0", minidrive.Inbound{})
	c.bus = bus

	assert.NoError(t, c.Send(minidrive.Message{
		ID:   "0x18C4D2D0",
		Data: "84 BB 20 4D 00 00 00 52",
		Type: minidrive.FrameExtended,
	}))
	f := <-bus.publishChan
	assert.Equal(t, extendedFlag|uint32(0x18C4D2D0), f.ID)
	assert.Equal(t, uint8(8), f.Length)
}

func TestSendValidation(t *testing.T) {
	c := New("can0", minidrive.Inbound{})
	assert.Error(t, c.Send(minidrive.Message{ID: "0x200", Data: "01"}))

	c.bus = &busStub{publishChan: make(chan *can.Frame, 1)}
	assert.Error(t, c.Send(minidrive.Message{ID: "xyz", Data: "01"}))
	assert.Error(t, c.Send(minidrive.Message{ID: "0x800", Data: "01", Type: minidrive.FrameStandard}))
	assert.Error(t, c.Send(minidrive.Message{
		ID:   "0x123",
		Data: "01 02 03 04 05 06 07 08 09",
		Type: minidrive.FrameStandard,
	}))
}

func TestHandleFrameDispatches(t *testing.T) {
	statusChan := make(chan minican.Status, 1)
	radarChan := make(chan int, 1)
	frameChan := make(chan minidrive.Message, 1)

	c := New("can0", minidrive.Inbound{
		VehicleStatus: func(s minican.Status) { statusChan <- s },
		Radar:         func(canID uint32, distanceMm int) { radarChan <- distanceMm },
		Frame:         func(m minidrive.Message) { frameChan <- m },
	})

	c.handleFrame(can.Frame{
		ID:     minican.VehicleStatusID,
		Length: 4,
		Data:   [8]uint8{0xC4, 0x5D, 0xF3, 0xFD},
	})
	status := <-statusChan
	assert.Equal(t, minican.GearDrive, status.Gear)
	assert.Equal(t, 1500, status.SpeedMms)
	assert.InDelta(t, -5.25, status.AngleDeg, 0.001)

	c.handleFrame(can.Frame{
		ID:     minican.RadarLastID,
		Length: 2,
		Data:   [8]uint8{0x01, 0x2C},
	})
	assert.Equal(t, 300, <-radarChan)

	c.handleFrame(can.Frame{
		ID:     extendedFlag | 0x18C4D2D1,
		Length: 1,
		Data:   [8]uint8{0x2A},
	})
	frame := <-frameChan
	assert.Equal(t, "0x18C4D2D1", frame.ID)
	assert.Equal(t, "2A", frame.Data)
	assert.Equal(t, minidrive.FrameExtended, frame.Type)
}
