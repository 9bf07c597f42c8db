// Copyright 2026 The Tsilna Nav Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Command imu-monitor connects to an IMU streaming IDTP frames and prints
// every sample it receives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/detection"
	_ "github.com/tsilna-nav/tsilna-go/detection/i2c"
	_ "github.com/tsilna-nav/tsilna-go/detection/spi"
	_ "github.com/tsilna-nav/tsilna-go/detection/uart"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
	"github.com/tsilna-nav/tsilna-go/stream"
	"github.com/tsilna-nav/tsilna-go/transport/i2c"
	"github.com/tsilna-nav/tsilna-go/transport/spi"
	"github.com/tsilna-nav/tsilna-go/transport/uart"
	"github.com/tsilna-nav/tsilna-go/transport/udp"
)

const udpScheme = "udp://"

type config struct {
	devicePath string
	logDir     string
	payload    idtp.PayloadType
	baud       int
	count      int
	mode       idtp.Mode
	list       bool
	simulate   bool
	jitter     bool
	debug      bool
	log        bool
}

// Package-level flag variables
var (
	flagDevicePath string
	flagMode       string
	flagPayload    string
	flagLogDir     string
	flagBaud       int
	flagCount      int
	flagList       bool
	flagSimulate   bool
	flagJitter     bool
	flagDebug      bool
	flagLog        bool
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "",
		"Device path: serial port, /dev/i2c-1:0x68, SPI port or udp://:7447 (auto-detect if empty)")
	flag.IntVar(&flagBaud, "baud", uart.DefaultBaudRate, "Serial baud rate")
	flag.StringVar(&flagMode, "mode", "normal", "Frame integrity mode: normal or safety")
	flag.BoolVar(&flagList, "list", false, "List serial ports and detected IMUs, then exit")
	flag.BoolVar(&flagSimulate, "simulate", false, "Read from a built-in virtual IMU instead of hardware")
	flag.StringVar(&flagPayload, "payload", "imu6", "Simulated payload: imu6, imu9, imu10 or attitude")
	flag.BoolVar(&flagJitter, "jitter", false, "Fragment and corrupt the simulated stream")
	flag.IntVar(&flagCount, "count", 0, "Exit after this many frames (0 = run until interrupted)")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagLog, "log", false, "Write debug output to a session log file")
	flag.StringVar(&flagLogDir, "logdir", "", "Directory for the session log (current directory if empty)")
}

func parsePayloadType(s string) (idtp.PayloadType, error) {
	for _, t := range []idtp.PayloadType{
		idtp.PayloadIMU6, idtp.PayloadIMU9, idtp.PayloadIMU10, idtp.PayloadAttitude,
	} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown payload type %q", s)
}

func parseConfig() (*config, error) {
	mode, err := idtp.ParseMode(strings.ToLower(flagMode))
	if err != nil {
		return nil, fmt.Errorf("invalid -mode %q: %w", flagMode, err)
	}
	payload, err := parsePayloadType(flagPayload)
	if err != nil {
		return nil, fmt.Errorf("invalid -payload: %w", err)
	}
	if flagCount < 0 {
		return nil, fmt.Errorf("invalid -count %d", flagCount)
	}

	cfg := &config{
		devicePath: flagDevicePath,
		logDir:     flagLogDir,
		payload:    payload,
		baud:       flagBaud,
		count:      flagCount,
		mode:       mode,
		list:       flagList,
		simulate:   flagSimulate,
		jitter:     flagJitter,
		debug:      flagDebug,
		log:        flagLog,
	}

	// Enable debug output if --debug flag is set
	if cfg.debug {
		tsilna.SetDebugEnabled(true)
	}

	return cfg, nil
}

// newTransportFromDevice creates a new transport from a detected device.
func newTransportFromDevice(ctx context.Context, device detection.DeviceInfo, baud int) (tsilna.Transport, error) {
	switch strings.ToLower(device.Transport) {
	case "uart":
		return newUARTTransport(device.Path, baud)
	case "i2c":
		transport, err := i2c.New(device.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return transport, nil
	case "spi":
		transport, err := spi.New(device.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		return transport, nil
	case "udp":
		return newTransport(ctx, device.Path, baud)
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}
}

// newTransport creates a new transport from a device path by trying different transports.
func newTransport(ctx context.Context, path string, baud int) (tsilna.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}

	pathLower := strings.ToLower(path)

	if strings.HasPrefix(pathLower, udpScheme) {
		udpConfig := udp.DefaultConfig()
		if addr := path[len(udpScheme):]; addr != "" {
			udpConfig.ListenAddr = addr
		}
		transport, err := udp.New(ctx, udpConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create UDP transport for %s: %w", path, err)
		}
		return transport, nil
	}

	// Check for I2C pattern
	if strings.Contains(pathLower, "i2c") {
		transport, err := i2c.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport for %s: %w", path, err)
		}
		return transport, nil
	}

	// Check for SPI pattern
	if strings.Contains(pathLower, "spi") {
		transport, err := spi.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
		}
		return transport, nil
	}

	// Default to UART for serial ports
	return newUARTTransport(path, baud)
}

func newUARTTransport(path string, baud int) (tsilna.Transport, error) {
	uartConfig := uart.DefaultConfig()
	if baud > 0 {
		uartConfig.BaudRate = baud
	}
	transport, err := uart.New(path, uartConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

// openFunc opens the transport the monitor reads from. It is called again
// when the stream reader recovers a failed link.
type openFunc func(ctx context.Context) (tsilna.Transport, error)

// resolveOpener picks the transport source: a fixed path, or the best device
// found by auto-detection.
func resolveOpener(ctx context.Context, cfg *config, out io.Writer) (openFunc, error) {
	if cfg.devicePath != "" {
		if cfg.debug {
			_, _ = fmt.Fprintf(out, "Opening device: %s\n", cfg.devicePath)
		}
		return func(ctx context.Context) (tsilna.Transport, error) {
			return newTransport(ctx, cfg.devicePath, cfg.baud)
		}, nil
	}

	if cfg.debug {
		_, _ = fmt.Fprintln(out, "Auto-detecting IMU devices...")
	}
	devices, err := detection.DetectAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("auto-detection failed: %w", err)
	}
	device := devices[0]
	_, _ = fmt.Fprintf(out, "Using %s\n", device)
	return func(ctx context.Context) (tsilna.Transport, error) {
		return newTransportFromDevice(ctx, device, cfg.baud)
	}, nil
}

func openLink(ctx context.Context, open openFunc, mode idtp.Mode) (*tsilna.Link, error) {
	transport, err := open(ctx)
	if err != nil {
		return nil, err
	}
	link, err := tsilna.NewLink(transport, tsilna.WithMode(mode))
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create link: %w", err)
	}
	return link, nil
}

// formatFrame renders one frame as a single line. Attitude payloads are
// shown as Euler angles in degrees.
func formatFrame(f *idtp.Frame) string {
	prefix := fmt.Sprintf("dev=0x%04X seq=%d t=%dus", f.Header.DeviceID, f.Header.Sequence, f.Header.Timestamp)

	payload, err := f.Decoded()
	if err != nil {
		return fmt.Sprintf("%s %s undecodable: %v", prefix, f.Header.PayloadType, err)
	}

	switch p := payload.(type) {
	case idtp.IMU6:
		return fmt.Sprintf("%s acc=%s gyr=%s", prefix, formatVec(p.Accel), formatVec(p.Gyro))
	case idtp.IMU9:
		return fmt.Sprintf("%s acc=%s gyr=%s mag=%s",
			prefix, formatVec(p.Accel), formatVec(p.Gyro), formatVec(p.Mag))
	case idtp.IMU10:
		return fmt.Sprintf("%s acc=%s gyr=%s mag=%s baro=%.1f",
			prefix, formatVec(p.Accel), formatVec(p.Gyro), formatVec(p.Mag), p.Pressure)
	case idtp.Attitude:
		roll, pitch, yaw := p.Euler().Degrees()
		return fmt.Sprintf("%s roll=%.2f pitch=%.2f yaw=%.2f", prefix, roll, pitch, yaw)
	case idtp.Raw:
		return fmt.Sprintf("%s %s %d bytes % X", prefix, p.Kind, len(p.Data), p.Data)
	default:
		return fmt.Sprintf("%s %s", prefix, payload.Type())
	}
}

func formatVec(v idtp.Vec3) string {
	return fmt.Sprintf("[%.3f %.3f %.3f]", v[0], v[1], v[2])
}

func printSummary(out io.Writer, m stream.Metrics) {
	_, _ = fmt.Fprintf(out,
		"frames=%d lost=%d dropped=%d checksum_errors=%d crc_errors=%d read_errors=%d recoveries=%d\n",
		m.Frames, m.Link.LostFrames, m.Link.Dropped, m.Link.ChecksumErrors, m.Link.CRCErrors,
		m.ReadErrors, m.Recoveries)
}

func listDevices(ctx context.Context, out io.Writer) error {
	ports, err := uart.ListPorts()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Serial ports (%d):\n", len(ports))
	for _, port := range ports {
		_, _ = fmt.Fprintf(out, "  %s\n", port)
	}

	opts := detection.DefaultOptions()
	opts.Mode = detection.Passive
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil && !errors.Is(err, detection.ErrNoDevicesFound) {
		return fmt.Errorf("detection failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Likely IMUs (%d):\n", len(devices))
	for _, device := range devices {
		_, _ = fmt.Fprintf(out, "  %s\n", device)
	}
	return nil
}

// monitor streams frames from link to out until ctx ends, the reader fails,
// or cfg.count frames have been printed.
func monitor(ctx context.Context, link *tsilna.Link, open openFunc, cfg *config, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var printed atomic.Int64
	reader, err := stream.NewReader(link, stream.DefaultConfig(), stream.Callbacks{
		OnFrame: func(f *idtp.Frame) error {
			_, _ = fmt.Fprintln(out, formatFrame(f))
			if cfg.count > 0 && printed.Add(1) >= int64(cfg.count) {
				cancel()
			}
			return nil
		},
		OnError: func(err error) {
			tsilna.Debugf("monitor: %v", err)
		},
		OnStall: func(since time.Duration) {
			_, _ = fmt.Fprintf(os.Stderr, "No frames for %v\n", since.Round(time.Millisecond))
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create reader: %w", err)
	}
	if open != nil {
		reader.SetReopenFunc(func(ctx context.Context) (*tsilna.Link, error) {
			return openLink(ctx, open, cfg.mode)
		})
	}

	if err := reader.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reader: %w", err)
	}
	<-reader.Done()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer closeCancel()
	if err := reader.Close(closeCtx); err != nil && cfg.debug {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to close reader: %v\n", err)
	}

	printSummary(out, reader.Metrics())
	return reader.Err()
}

func run(ctx context.Context, cfg *config, out io.Writer) error {
	if cfg.log {
		path, err := tsilna.InitSessionLog(cfg.logDir)
		if err != nil {
			return err
		}
		defer func() { _ = tsilna.CloseSessionLog() }()
		_, _ = fmt.Fprintf(out, "Session log: %s\n", path)
	}

	if cfg.list {
		return listDevices(ctx, out)
	}

	if cfg.simulate {
		sim := newSimulator(cfg)
		defer sim.stop()
		link, err := tsilna.NewLink(sim.transport, tsilna.WithMode(cfg.mode))
		if err != nil {
			return fmt.Errorf("failed to create link: %w", err)
		}
		go sim.run(ctx)
		return monitor(ctx, link, nil, cfg, out)
	}

	open, err := resolveOpener(ctx, cfg, out)
	if err != nil {
		return err
	}
	link, err := openLink(ctx, open, cfg.mode)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Streaming frames. Press Ctrl+C to stop...")
	return monitor(ctx, link, open, cfg, out)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// Parse command-line flags
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	// Run the main application logic
	if err := run(ctx, cfg, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
