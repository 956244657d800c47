package forwarder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"github.com/cgl/minidrive"
	"github.com/cgl/minidrive/minican"
	"github.com/stretchr/testify/assert"
	"net"
	"testing"
	"time"
)

func TestUDPForwarder(t *testing.T) {
	pc, err := net.ListenPacket("udp", "localhost:0")
	assert.NoError(t, err)
	defer pc.Close()
	udpAddr := pc.LocalAddr().(*net.UDPAddr)
	config := fmt.Sprintf(`
Server = "127.0.0.1"
Port = %d
`, udpAddr.Port)

	recvData := struct {
		data []byte
		len  int
	}{}

	dataChan := make(chan struct{}, 1)
	go func() {
		buffer := make([]byte, 1024)
		assert.NoError(t, pc.SetReadDeadline(time.Now().Add(time.Second*3)))
		n, _, err := pc.ReadFrom(buffer)
		assert.NoError(t, err)
		recvData.data = buffer
		recvData.len = n
		dataChan <- struct{}{}
	}()

	udp, err := NewUDPForwarderFromReader(bytes.NewBufferString(config))
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = udp.Start(ctx)
	}()

	vector := minidrive.ControlVector{
		SpeedMms: 1500,
		AngleDeg: -5.25,
		Gear:     minican.GearDrive,
	}
	assert.NoError(t, udp.ControlUpdate(vector))

	<-dataChan
	assert.Equal(t, 10, recvData.len)

	hdr := Header{}
	pkt := ControlPacket{}
	rdr := bytes.NewReader(recvData.data)
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &hdr))
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &pkt))
	assert.Equal(t, uint8(TypeControl), hdr.Type)
	assert.Equal(t, ControlPacket{
		SpeedMms:      1500,
		AngleCentideg: -525,
		Gear:          uint8(minican.GearDrive),
	}, pkt)
}

func TestUDPForwarderDropsWhenBusy(t *testing.T) {
	udp := &UDPForwarder{
		fwdChan: make(chan minidrive.ControlVector, 1),
	}

	assert.NoError(t, udp.ControlUpdate(minidrive.ControlVector{SpeedMms: 100}))
	assert.NoError(t, udp.ControlUpdate(minidrive.ControlVector{SpeedMms: 200}))

	v := <-udp.fwdChan
	assert.Equal(t, 100, v.SpeedMms)
	select {
	case <-udp.fwdChan:
		t.Fatal("expected second update to be dropped")
	default:
	}
}
