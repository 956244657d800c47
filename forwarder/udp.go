// Package forwarder streams the live control vector to a remote monitor
// over UDP.
package forwarder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"github.com/BurntSushi/toml"
	"github.com/cgl/minidrive"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"io"
	"math"
	"net"
	"os"
	"path/filepath"
	"time"
	"unsafe"
)

type Header struct {
	Type uint8
}

// ControlPacket is the wire form of one control vector, little endian with
// the steering angle in centidegrees.
type ControlPacket struct {
	SpeedMms      int32
	AngleCentideg int32
	Gear          uint8
}

var maxPacketSize = int(unsafe.Sizeof(Header{}) + unsafe.Sizeof(ControlPacket{}))

const (
	TypeControl = 1
)

type UDPConfig struct {
	Server string
	Port   int
}

type UDPForwarder struct {
	Config *UDPConfig

	conn    net.Conn
	fwdChan chan minidrive.ControlVector
}

func NewUDPForwarder(fileName string) (*UDPForwarder, error) {
	dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to determine binary location")
	}
	file, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open file %s", fileName)
	}
	defer file.Close()
	return NewUDPForwarderFromReader(file)
}

func NewUDPForwarderFromReader(configReader io.Reader) (*UDPForwarder, error) {
	configData, err := io.ReadAll(configReader)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config reader")
	}
	config := UDPConfig{}
	if _, err := toml.Decode(string(configData), &config); err != nil {
		return nil, errors.Wrapf(err, "unable to load udp forwarder configuration")
	}
	udp := &UDPForwarder{
		Config:  &config,
		fwdChan: make(chan minidrive.ControlVector, 1),
	}
	if err = udp.connect(); err != nil {
		return nil, err
	}
	return udp, nil
}

func (udp *UDPForwarder) Close() error {
	return udp.conn.Close()
}

// ControlUpdate queues the vector for forwarding. The drive loop must never
// wait on the network, so a full channel drops the update; the next tick
// brings a fresher one.
func (udp *UDPForwarder) ControlUpdate(v minidrive.ControlVector) error {
	select {
	case udp.fwdChan <- v:
	default:
		// if channel is full, skip
	}
	return nil
}

func (udp *UDPForwarder) Start(ctx context.Context) error {
	limiter := time.Tick(100 * time.Millisecond)
	for {
		<-limiter
		select {
		case v := <-udp.fwdChan:
			if err := udp.forward(v); err != nil {
				log.Error("unable to forward control vector to server ", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (udp *UDPForwarder) forward(v minidrive.ControlVector) error {
	buf := bytes.NewBuffer([]byte{})
	hdr := Header{
		Type: TypeControl,
	}
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "unable to write udp packet header")
	}
	pkt := ControlPacket{
		SpeedMms:      int32(v.SpeedMms),
		AngleCentideg: int32(math.Round(v.AngleDeg * 100)),
		Gear:          uint8(v.Gear),
	}
	if err := binary.Write(buf, binary.LittleEndian, &pkt); err != nil {
		return errors.Wrap(err, "unable to write control vector udp packet")
	}
	return binary.Write(udp.conn, binary.LittleEndian, buf.Bytes())
}

func (udp *UDPForwarder) connect() error {
	writeBufSize := maxPacketSize * 2

	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d",
		udp.Config.Server,
		udp.Config.Port))
	if err != nil {
		return err
	}
	udpConn := conn.(*net.UDPConn)
	if err = udpConn.SetWriteBuffer(writeBufSize); err != nil {
		return errors.Wrapf(err, "unable to set OS write buffer to %v", writeBufSize)
	}

	udp.conn = conn
	return nil
}
