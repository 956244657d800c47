package minidrive

import (
	"encoding/hex"
	"fmt"
	"github.com/cgl/minidrive/minican"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"strconv"
	"strings"
)

type FrameType string

const (
	FrameStandard FrameType = "standard"
	FrameExtended FrameType = "extended"
)

type ProtocolLength string

const (
	ProtocolFixed    ProtocolLength = "fixed"
	ProtocolVariable ProtocolLength = "variable"
)

// Message is one CAN frame on its way to or from the bus transport. The id
// is hex text and the data is hex bytes, space separated or continuous.
type Message struct {
	ID       string
	Data     string
	Type     FrameType
	Protocol ProtocolLength
}

// Transport sends frames to the vehicle. Implementations must not block the
// caller on bus completion.
type Transport interface {
	Send(Message) error
}

// Consumer receives the control vector on every drive tick, whether or not
// a frame went out on the bus.
type Consumer interface {
	ControlUpdate(ControlVector) error
}

// Inbound routes frames arriving from the bus to typed callbacks. Frames
// with no matching typed callback fall through to Frame; a nil Frame drops
// them.
type Inbound struct {
	VehicleStatus func(minican.Status)
	Radar         func(canID uint32, distanceMm int)
	Frame         func(Message)
}

func (in Inbound) Dispatch(msg Message) {
	id, err := ParseID(msg.ID)
	if err != nil {
		log.WithField("canID", msg.ID).Warn("dropping frame with unparseable id")
		return
	}
	data, err := ParseData(msg.Data)
	if err != nil {
		log.WithField("canID", msg.ID).Warnf("dropping frame: %v", err)
		return
	}

	switch {
	case id == minican.VehicleStatusID && in.VehicleStatus != nil:
		status, err := minican.ParseStatus(data)
		if err != nil {
			log.WithField("canID", msg.ID).Warnf("dropping vehicle status: %v", err)
			return
		}
		in.VehicleStatus(status)
	case minican.IsRadarID(id) && in.Radar != nil:
		distance, err := minican.RadarDistance(data)
		if err != nil {
			log.WithField("canID", msg.ID).Warnf("dropping radar frame: %v", err)
			return
		}
		in.Radar(id, distance)
	default:
		if in.Frame == nil {
			log.WithField("canID", msg.ID).Debug("no callback for frame")
			return
		}
		in.Frame(msg)
	}
}

// ParseID parses a CAN id written as hex text, with or without a 0x prefix.
func ParseID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, errors.Errorf("invalid CAN id %q", s)
	}
	return uint32(v), nil
}

func FormatID(id uint32) string {
	return fmt.Sprintf("0x%X", id)
}

// ParseData parses payload hex text. Bytes are space separated, each one or
// two digits, or one continuous string of digit pairs.
func ParseData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.ContainsAny(s, " \t") {
		fields := strings.Fields(s)
		data := make([]byte, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseUint(f, 16, 8)
			if err != nil {
				return nil, errors.Errorf("invalid hex byte %q", f)
			}
			data = append(data, byte(v))
		}
		return data, nil
	}
	if len(s)%2 != 0 {
		return nil, errors.Errorf("continuous hex data must have even length, got %v", len(s))
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Errorf("invalid hex data %q", s)
	}
	return data, nil
}

// FormatData renders payload bytes as the space-separated uppercase hex
// text transports accept.
func FormatData(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
