// Package sockcan runs the vehicle transport over a Linux SocketCAN
// interface.
package sockcan

import (
	"context"
	"github.com/brutella/can"
	"github.com/cgl/minidrive"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sync"
)

// SocketCAN carries frame flags in the top bits of the id word.
const (
	extendedFlag uint32 = 0x80000000
	extendedMask uint32 = 0x1FFFFFFF
	maxStandard  uint32 = 0x7FF
)

// CANBus is the part of the brutella bus a Connection uses.
type CANBus interface {
	SubscribeFunc(can.HandlerFunc)
	ConnectAndPublish() error
	Disconnect() error
	Publish(can.Frame) error
}

var newBus = func(name string) (CANBus, error) {
	return can.NewBusForInterfaceWithName(name)
}

// Connection owns one SocketCAN socket. It carries outbound frames on the
// send side and hands inbound ones to the dispatcher, and is built to run
// under Retry: Open binds the interface, Start pumps frames until the
// context ends or the socket fails.
type Connection struct {
	name    string
	inbound minidrive.Inbound

	mu  sync.Mutex
	bus CANBus
}

func New(name string, inbound minidrive.Inbound) *Connection {
	return &Connection{name: name, inbound: inbound}
}

func (c *Connection) Name() string {
	return c.name
}

func (c *Connection) Open() error {
	bus, err := newBus(c.name)
	if err != nil {
		return errors.Wrapf(err, "%s: unable to open CAN interface", c.name)
	}
	c.mu.Lock()
	c.bus = bus
	c.mu.Unlock()
	return nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	bus := c.bus
	c.bus = nil
	c.mu.Unlock()
	if bus == nil {
		return nil
	}
	return bus.Disconnect()
}

// Send publishes one frame. Extended ids get the SocketCAN EFF flag,
// standard ids must fit in 11 bits.
func (c *Connection) Send(m minidrive.Message) error {
	c.mu.Lock()
	bus := c.bus
	c.mu.Unlock()
	if bus == nil {
		return errors.Errorf("%s: CAN interface not open", c.name)
	}

	id, err := minidrive.ParseID(m.ID)
	if err != nil {
		return err
	}
	data, err := minidrive.ParseData(m.Data)
	if err != nil {
		return err
	}
	if len(data) > 8 {
		return errors.Errorf("CAN payload too long: %d bytes", len(data))
	}
	if m.Type == minidrive.FrameExtended {
		id = id&extendedMask | extendedFlag
	} else if id > maxStandard {
		return errors.Errorf("standard frame id %#x exceeds 11 bits", id)
	}

	frame := can.Frame{ID: id, Length: uint8(len(data))}
	copy(frame.Data[:], data)
	return bus.Publish(frame)
}

// Start subscribes for inbound frames and blocks on the bus until the
// context ends or the socket fails.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	bus := c.bus
	c.mu.Unlock()
	if bus == nil {
		return errors.Errorf("%s: CAN interface not open", c.name)
	}
	bus.SubscribeFunc(c.handleFrame)
	log.WithField("interface", c.name).Info("CAN bus opened and subscribed")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			log.WithField("interface", c.name).Info("stopping CAN bus")
			if err := c.Close(); err != nil {
				log.WithField("err", err).Warn("unable to disconnect CAN bus after context")
			}
		case <-done:
		}
	}()

	err := bus.ConnectAndPublish()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Connection) handleFrame(frame can.Frame) {
	id := frame.ID
	t := minidrive.FrameStandard
	if id&extendedFlag != 0 {
		id &= extendedMask
		t = minidrive.FrameExtended
	}
	length := int(frame.Length)
	if length > len(frame.Data) {
		length = len(frame.Data)
	}
	c.inbound.Dispatch(minidrive.Message{
		ID:   minidrive.FormatID(id),
		Data: minidrive.FormatData(frame.Data[:length]),
		Type: t,
	})
}
