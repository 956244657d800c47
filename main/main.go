package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/benbjohnson/clock"
	"github.com/cgl/minidrive"
	"github.com/cgl/minidrive/forwarder"
	"github.com/cgl/minidrive/minican"
	"github.com/cgl/minidrive/sockcan"
	"github.com/cgl/minidrive/usbcan"
	log "github.com/sirupsen/logrus"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var socketCAN = flag.String("socketcan", "", "SocketCAN interface to drive through, e.g. can0")
var bridge = flag.String("bridge", "", "TCP address of a remote serial adapter, host:port")
var adapterConfig = flag.String("adapter-config", "", "USB adapter configuration file")
var forwardConfig = flag.String("forward", "", "UDP forwarder configuration file")
var legacyLayout = flag.Bool("legacy", false, "drive with the legacy extended frame")
var execCommand = flag.String("exec", "", "issue a named command, wait for its auto-stop and exit")
var listCommands = flag.Bool("commands", false, "list operator commands and exit")
var replayFile = flag.String("replay", "", "CSV recording to replay")
var replayIDCol = flag.Int("replay-id-col", 1, "zero-based CSV column carrying the CAN id")
var replayDataCol = flag.Int("replay-data-col", 2, "zero-based CSV column carrying the frame data")
var replayStartRow = flag.Int("replay-start-row", 1, "first CSV row of the recording")
var replayInterval = flag.Duration("replay-interval", 100*time.Millisecond, "delay between replayed vectors")
var autoDrive = flag.Bool("autodrive", false, "run the built-in demonstration trajectory")
var printVector = flag.Bool("print-vector", false, "print the control vector on every update")
var debug = flag.Bool("debug", false, "enable debug logging")

type consumerFunc func(minidrive.ControlVector) error

func (f consumerFunc) ControlUpdate(v minidrive.ControlVector) error {
	return f(v)
}

type busLink interface {
	minidrive.Transport
	minidrive.Retryable
}

func main() {
	log.SetLevel(log.InfoLevel)
	flag.Parse()
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	if *listCommands {
		for _, c := range minidrive.Commands() {
			fmt.Printf("%-16s %s\n", c.Name, c.Description)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound := minidrive.Inbound{
		VehicleStatus: func(st minican.Status) {
			log.WithField("gear", st.Gear).
				WithField("speedMms", st.SpeedMms).
				WithField("angleDeg", st.AngleDeg).
				Debug("vehicle status")
		},
		Radar: func(canID uint32, distanceMm int) {
			log.WithField("canID", minidrive.FormatID(canID)).
				WithField("distanceMm", distanceMm).
				Debug("radar distance")
		},
	}

	var link busLink
	protocol := minidrive.ProtocolFixed
	if *socketCAN != "" {
		link = sockcan.New(*socketCAN, inbound)
	} else {
		cfg := usbcan.DefaultConfig()
		if *adapterConfig != "" {
			var err error
			cfg, err = usbcan.LoadConfig(*adapterConfig)
			if err != nil {
				log.Fatal("unable to load adapter configuration: ", err)
			}
		}
		name := cfg.Device
		dial := usbcan.Serial(cfg.Device, cfg.BaudRate)
		if *bridge != "" {
			addr := *bridge
			name = addr
			dial = func() (io.ReadWriteCloser, error) {
				return net.Dial("tcp", addr)
			}
		}
		protocol = cfg.Protocol
		link = usbcan.New(name, dial, cfg, inbound)
	}

	layout := minican.VehicleControl
	if *legacyLayout {
		layout = minican.LegacyDrive
	}
	sup := minidrive.NewDriveSupervisor(clock.New(), link, layout, protocol)

	if *printVector {
		sup.AddConsumer(consumerFunc(func(v minidrive.ControlVector) error {
			fmt.Println(v)
			return nil
		}))
	}
	if *forwardConfig != "" {
		fwder, err := forwarder.NewUDPForwarder(*forwardConfig)
		if err != nil {
			log.Fatal("unable to load UDP forwarder: ", err)
		}
		go fwder.Start(ctx)
		sup.AddConsumer(fwder)
	}

	go minidrive.Retry(ctx, nil, link)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	switch {
	case *execCommand != "":
		cmd, ok := minidrive.LookupCommand(*execCommand)
		if !ok {
			log.Fatal("unknown command: ", *execCommand)
		}
		if err := sup.Execute(cmd.Name); err != nil {
			log.Fatal("unable to issue command: ", err)
		}
		if cmd.Class != "" && !cmd.Stop {
			// hold the process open until the automatic stop has gone out
			select {
			case <-time.After(5 * time.Second):
			case <-sigChan:
			}
		}
	case *replayFile != "":
		file, err := os.Open(*replayFile)
		if err != nil {
			log.Fatal("unable to open recording: ", err)
		}
		vectors, err := minidrive.LoadRecording(file, *replayIDCol, *replayDataCol, *replayStartRow)
		file.Close()
		if err != nil {
			log.Fatal("unable to load recording: ", err)
		}
		log.WithField("vectors", len(vectors)).Info("replaying recording")
		done, err := sup.StartReplay(vectors, *replayInterval)
		if err != nil {
			log.Fatal("unable to start replay: ", err)
		}
		select {
		case <-done:
			log.Info("replay complete")
		case <-sigChan:
		}
	case *autoDrive:
		done, err := sup.StartAutoDrive(minidrive.DefaultTrajectory(), *replayInterval)
		if err != nil {
			log.Fatal("unable to start auto drive: ", err)
		}
		select {
		case <-done:
		case <-sigChan:
		}
	default:
		<-sigChan
	}

	log.Info("shutting down")
	if err := sup.Shutdown(); err != nil {
		log.WithField("err", err).Warn("unable to flush actuators on shutdown")
	}
}
