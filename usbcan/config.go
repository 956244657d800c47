package usbcan

import (
	"github.com/BurntSushi/toml"
	"github.com/cgl/minidrive"
	"github.com/pkg/errors"
	"io"
	"os"
)

// Config mirrors the adapter settings command. Device and BaudRate describe
// the serial link to the adapter itself; the remaining fields are pushed to
// the CAN side when the adapter is opened.
type Config struct {
	Device    string                   `toml:"device"`
	BaudRate  int                      `toml:"baud_rate"`
	BitRate   int                      `toml:"bit_rate"`
	FrameType minidrive.FrameType      `toml:"frame_type"`
	Mode      string                   `toml:"mode"`
	Protocol  minidrive.ProtocolLength `toml:"protocol"`
}

func DefaultConfig() Config {
	return Config{
		Device:    "/dev/ttyUSB0",
		BaudRate:  2000000,
		BitRate:   500000,
		FrameType: minidrive.FrameStandard,
		Mode:      "normal",
		Protocol:  minidrive.ProtocolFixed,
	}
}

func LoadConfig(fileName string) (Config, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return Config{}, errors.Wrapf(err, "unable to open file %s", fileName)
	}
	defer file.Close()
	return ConfigFromReader(file)
}

func ConfigFromReader(configReader io.Reader) (Config, error) {
	configData, err := io.ReadAll(configReader)
	if err != nil {
		return Config{}, errors.Wrap(err, "unable to read config reader")
	}
	config := DefaultConfig()
	if _, err := toml.Decode(string(configData), &config); err != nil {
		return Config{}, errors.Wrapf(err, "unable to load adapter configuration")
	}
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

var bitRateCodes = map[int]byte{
	1000000: 0x01,
	800000:  0x02,
	500000:  0x03,
	400000:  0x04,
	250000:  0x05,
	200000:  0x06,
	125000:  0x07,
	100000:  0x08,
	50000:   0x09,
	20000:   0x0A,
	10000:   0x0B,
	5000:    0x0C,
}

var modeCodes = map[string]byte{
	"normal":          0x00,
	"silent":          0x01,
	"loopback":        0x02,
	"loopback_silent": 0x03,
}

func (c Config) validate() error {
	if _, ok := bitRateCodes[c.BitRate]; !ok {
		return errors.Errorf("unsupported CAN bit rate %d", c.BitRate)
	}
	if _, ok := modeCodes[c.Mode]; !ok {
		return errors.Errorf("unknown CAN mode %q", c.Mode)
	}
	switch c.FrameType {
	case minidrive.FrameStandard, minidrive.FrameExtended:
	default:
		return errors.Errorf("unknown frame type %q", c.FrameType)
	}
	switch c.Protocol {
	case minidrive.ProtocolFixed, minidrive.ProtocolVariable:
	default:
		return errors.Errorf("unknown protocol length %q", c.Protocol)
	}
	return nil
}

func (c Config) bitRateCode() byte {
	if code, ok := bitRateCodes[c.BitRate]; ok {
		return code
	}
	return 0x03
}

func (c Config) modeCode() byte {
	return modeCodes[c.Mode]
}
