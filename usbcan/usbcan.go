// Package usbcan drives a USB to CAN serial adapter. The adapter speaks
// two wire framings, a fixed 20 byte packet with an additive checksum and
// a variable length packet bracketed by AA and 55, selected by the config
// command sent when the connection opens.
package usbcan

import (
	"context"
	"github.com/cgl/minidrive"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"io"
	"sync"
)

const sendQueueLen = 32

// Dialer opens the byte stream the adapter sits behind: a local serial
// device, or a TCP bridge to a remote one.
type Dialer func() (io.ReadWriteCloser, error)

// Serial returns a Dialer for the adapter's USB serial device.
func Serial(device string, baudRate int) Dialer {
	return func() (io.ReadWriteCloser, error) {
		return serial.Open(device, &serial.Mode{BaudRate: baudRate})
	}
}

// Adapter owns one adapter connection. It implements the drive transport
// on the send side and dispatches inbound frames on the receive side, and
// is built to run under Retry: Open dials and configures, Start pumps
// bytes until the context ends or the link fails.
type Adapter struct {
	name    string
	dial    Dialer
	config  Config
	inbound minidrive.Inbound

	sendChan chan []byte

	mu   sync.Mutex
	port io.ReadWriteCloser
}

func New(name string, dial Dialer, config Config, inbound minidrive.Inbound) *Adapter {
	return &Adapter{
		name:     name,
		dial:     dial,
		config:   config,
		inbound:  inbound,
		sendChan: make(chan []byte, sendQueueLen),
	}
}

func (a *Adapter) Name() string {
	return a.name
}

// Open dials the adapter and pushes the CAN settings command.
func (a *Adapter) Open() error {
	port, err := a.dial()
	if err != nil {
		return errors.Wrapf(err, "%s: unable to open adapter", a.name)
	}
	if _, err := port.Write(configPacket(a.config)); err != nil {
		port.Close()
		return errors.Wrapf(err, "%s: unable to configure adapter", a.name)
	}
	a.mu.Lock()
	a.port = port
	a.mu.Unlock()
	log.WithField("bitRate", a.config.BitRate).
		WithField("protocol", a.config.Protocol).
		Info("adapter configured")
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	port := a.port
	a.port = nil
	a.mu.Unlock()
	if port == nil {
		return nil
	}
	return port.Close()
}

// Send frames the message for the adapter and queues it for the writer.
// A full queue surfaces as an error rather than a silent drop, the caller
// decides whether to retry.
func (a *Adapter) Send(m minidrive.Message) error {
	id, err := minidrive.ParseID(m.ID)
	if err != nil {
		return err
	}
	data, err := minidrive.ParseData(m.Data)
	if err != nil {
		return err
	}
	extended := m.Type == minidrive.FrameExtended

	var pkt []byte
	if m.Protocol == minidrive.ProtocolVariable {
		pkt, err = variablePacket(id, data, extended)
	} else {
		pkt, err = fixedPacket(id, data, extended)
	}
	if err != nil {
		return err
	}
	select {
	case a.sendChan <- pkt:
		return nil
	default:
		return errors.Errorf("%s: send queue full", a.name)
	}
}

// Start pumps the connection: a writer goroutine drains the send queue
// while the caller's goroutine reads, reassembles and dispatches inbound
// packets. It returns when the context ends or the port fails.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	port := a.port
	a.mu.Unlock()
	if port == nil {
		return errors.Errorf("%s: adapter not open", a.name)
	}

	readerDone := make(chan struct{})
	defer close(readerDone)

	go func() {
		select {
		case <-ctx.Done():
			log.WithField("name", a.name).Info("stopping adapter")
			if err := a.Close(); err != nil {
				log.WithField("err", err).Warn("unable to close adapter after context")
			}
		case <-readerDone:
		}
	}()

	go func() {
		for {
			select {
			case <-readerDone:
				return
			case pkt := <-a.sendChan:
				if _, err := port.Write(pkt); err != nil {
					log.WithField("err", err).Error("adapter write failed")
				}
			}
		}
	}()

	sc := scanner{variable: a.config.Protocol == minidrive.ProtocolVariable}
	buf := make([]byte, 1024)
	for {
		n, err := port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrapf(err, "%s: adapter read", a.name)
		}
		if n == 0 {
			continue
		}
		for _, pkt := range sc.push(buf[:n]) {
			a.dispatch(pkt)
		}
	}
}

func (a *Adapter) dispatch(pkt packet) {
	t := minidrive.FrameStandard
	if pkt.extended {
		t = minidrive.FrameExtended
	}
	a.inbound.Dispatch(minidrive.Message{
		ID:       minidrive.FormatID(pkt.id),
		Data:     minidrive.FormatData(pkt.data),
		Type:     t,
		Protocol: a.config.Protocol,
	})
}
