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

// Package testing provides test utilities including a wire-level IMU
// simulator.
//
// VirtualIMU implements io.ReadWriter. Reads return a continuous IDTP byte
// stream of synthetic samples; writes are decoded as frames sent by the host.
// Every sample is derived from a Xorshift generator, so a seed reproduces a
// stream exactly.
package testing

import (
	"errors"
	"math"

	"github.com/tsilna-nav/tsilna-go/internal/syncutil"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
	"github.com/tsilna-nav/tsilna-go/pkg/navmath"
)

const gravity = 9.80665

// historySize bounds the payloads kept for Emitted so a long simulation does
// not grow without limit.
const historySize = 4096

// ErrIMUStopped is returned by reads after Stop.
var ErrIMUStopped = errors.New("virtual IMU stopped")

// IMUConfig configures a VirtualIMU.
type IMUConfig struct {
	// YawRate is the constant rotation about Z in rad/s.
	YawRate float64
	// AccelNoise and GyroNoise are the half-widths of uniform sensor noise.
	AccelNoise float64
	GyroNoise  float64
	// IntervalMicros is the sample period stamped into frame timestamps.
	IntervalMicros uint32
	Seed           uint32
	DeviceID       uint16
	Mode           idtp.Mode
	// Payload selects what each frame carries: IMU6, IMU9, IMU10 or Attitude.
	Payload idtp.PayloadType
}

// DefaultIMUConfig returns a 1 kHz IMU6 device turning slowly about Z.
func DefaultIMUConfig() IMUConfig {
	return IMUConfig{
		DeviceID:       0x0001,
		Mode:           idtp.ModeNormal,
		Payload:        idtp.PayloadIMU6,
		IntervalMicros: 1000,
		YawRate:        0.5,
		AccelNoise:     0.02,
		GyroNoise:      0.001,
		Seed:           1,
	}
}

// VirtualIMU simulates an IMU that streams IDTP frames.
type VirtualIMU struct {
	rng      *navmath.Xorshift
	encoder  *idtp.Encoder
	decoder  *idtp.Decoder
	out      []byte
	emitted  []idtp.Payload
	received []*idtp.Frame
	attitude navmath.Quaternion
	config   IMUConfig
	clock    uint32
	mu       syncutil.Mutex
	stopped  bool
	// When false, Read returns only frames queued with Emit.
	autoStream bool
}

// NewVirtualIMU creates a simulator that emits a new frame whenever its
// output runs dry.
func NewVirtualIMU(config IMUConfig) *VirtualIMU {
	if config.Payload == idtp.PayloadRaw {
		config.Payload = idtp.PayloadIMU6
	}
	if config.IntervalMicros == 0 {
		config.IntervalMicros = 1000
	}
	return &VirtualIMU{
		config:     config,
		rng:        navmath.NewXorshift(config.Seed),
		encoder:    idtp.NewEncoder(config.DeviceID, config.Mode),
		decoder:    idtp.NewDecoder(),
		attitude:   navmath.Identity(),
		autoStream: true,
	}
}

// SetAutoStream turns continuous streaming on or off.
func (v *VirtualIMU) SetAutoStream(on bool) {
	v.mu.Lock()
	v.autoStream = on
	v.mu.Unlock()
}

// Emit appends n frames to the output stream.
func (v *VirtualIMU) Emit(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for range n {
		v.emitLocked()
	}
}

// EmitBytes appends raw bytes, such as line noise, to the output stream.
func (v *VirtualIMU) EmitBytes(b []byte) {
	v.mu.Lock()
	v.out = append(v.out, b...)
	v.mu.Unlock()
}

// NextFrame generates one frame and returns it without queuing it.
func (v *VirtualIMU) NextFrame() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	start := len(v.out)
	v.emitLocked()
	data := append([]byte(nil), v.out[start:]...)
	v.out = v.out[:start]
	return data
}

func (v *VirtualIMU) emitLocked() {
	p := v.sampleLocked()
	data, err := v.encoder.Encode(v.clock, p)
	if err != nil {
		// Generated payloads are fixed-size and always encode.
		panic(err)
	}
	v.out = append(v.out, data...)
	if len(v.emitted) == historySize {
		v.emitted = append(v.emitted[:0], v.emitted[1:]...)
	}
	v.emitted = append(v.emitted, p)
	v.clock += v.config.IntervalMicros
}

func (v *VirtualIMU) sampleLocked() idtp.Payload {
	dt := float64(v.config.IntervalMicros) / 1e6
	step := navmath.EulerFromRadians(0, 0, v.config.YawRate*dt).Quaternion()
	v.attitude = v.attitude.Mul(step).Normalize()

	if v.config.Payload == idtp.PayloadAttitude {
		return idtp.AttitudeFromQuaternion(v.attitude)
	}

	// Gravity seen from the body frame.
	g := v.attitude.Conj().Rotate([3]float64{0, 0, gravity})
	accel := idtp.Vec3{
		v.noisy(g[0], v.config.AccelNoise),
		v.noisy(g[1], v.config.AccelNoise),
		v.noisy(g[2], v.config.AccelNoise),
	}
	gyro := idtp.Vec3{
		v.noisy(0, v.config.GyroNoise),
		v.noisy(0, v.config.GyroNoise),
		v.noisy(v.config.YawRate, v.config.GyroNoise),
	}

	switch v.config.Payload {
	case idtp.PayloadIMU9, idtp.PayloadIMU10:
		yaw := v.attitude.Euler().Yaw
		mag := idtp.Vec3{
			float32(22 * math.Cos(-yaw)),
			float32(22 * math.Sin(-yaw)),
			-42,
		}
		if v.config.Payload == idtp.PayloadIMU9 {
			return idtp.IMU9{Accel: accel, Gyro: gyro, Mag: mag}
		}
		return idtp.IMU10{Accel: accel, Gyro: gyro, Mag: mag, Pressure: v.noisy(101325, 2)}
	default:
		return idtp.IMU6{Accel: accel, Gyro: gyro}
	}
}

func (v *VirtualIMU) noisy(value, halfWidth float64) float32 {
	if halfWidth == 0 {
		return float32(value)
	}
	return float32(value + v.rng.Float64(-halfWidth, halfWidth))
}

// Read returns stream bytes, generating a frame first when the output is
// empty and streaming is on. It returns 0, nil when there is nothing to send.
func (v *VirtualIMU) Read(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.stopped {
		return 0, ErrIMUStopped
	}
	if len(v.out) == 0 && v.autoStream {
		v.emitLocked()
	}
	n := copy(p, v.out)
	v.out = v.out[n:]
	return n, nil
}

// Available returns the number of bytes ready to read, generating a frame
// first when streaming is on. It is what a FIFO count register reports.
func (v *VirtualIMU) Available() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.out) == 0 && v.autoStream && !v.stopped {
		v.emitLocked()
	}
	return len(v.out)
}

// Write accepts host bytes. Complete frames are decoded and recorded;
// corrupted ones are dropped as the device would.
func (v *VirtualIMU) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.stopped {
		return 0, ErrIMUStopped
	}
	_, _ = v.decoder.Write(p)
	for {
		f, err := v.decoder.Next()
		if errors.Is(err, idtp.ErrIncomplete) {
			break
		}
		if err == nil {
			v.received = append(v.received, f)
		}
	}
	return len(p), nil
}

// Stop makes every later Read and Write fail, as an unplugged device would.
func (v *VirtualIMU) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
}

// Emitted returns the payloads of the most recent frames generated, oldest
// first. At most historySize are kept.
func (v *VirtualIMU) Emitted() []idtp.Payload {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]idtp.Payload(nil), v.emitted...)
}

// Received returns the frames decoded from host writes.
func (v *VirtualIMU) Received() []*idtp.Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]*idtp.Frame(nil), v.received...)
}

// Attitude returns the simulated orientation after the last sample.
func (v *VirtualIMU) Attitude() navmath.Quaternion {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.attitude
}
