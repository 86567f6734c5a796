// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/mpu_datalogger/internal/fault"
	"github.com/relabs-tech/mpu_datalogger/internal/imu"
)

// RawReader defines the interface for reading one raw sensor burst.
type RawReader interface {
	ReadRaw() (imu.Raw, error)
}

// Conn is the register transport. *i2c.Dev satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// MPU6050 reads accelerometer, gyroscope and temperature registers.
type MPU6050 struct {
	conn  Conn
	sleep func(time.Duration)
}

// NewMPU6050 wraps an already-addressed register transport.
func NewMPU6050(conn Conn) *MPU6050 {
	return &MPU6050{conn: conn, sleep: time.Sleep}
}

// OpenMPU6050 opens the named I2C bus and addresses the sensor on it.
// The returned closer releases the bus.
func OpenMPU6050(busName string, addr uint16) (*MPU6050, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("mpu6050: periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("mpu6050: I2C open (%q): %w", busName, err)
	}
	if addr == 0 {
		addr = DefaultAddr
	}
	log.Printf("mpu6050: using I2C bus %q at 0x%02X", busName, addr)
	return NewMPU6050(&i2c.Dev{Bus: bus, Addr: addr}), bus, nil
}

// Reset performs the power-on handshake: device reset, then wake.
func (m *MPU6050) Reset() error {
	if err := m.writeRegister(RegPwrMgmt1, PwrMgmt1Reset); err != nil {
		return err
	}
	m.sleep(100 * time.Millisecond)
	if err := m.writeRegister(RegPwrMgmt1, PwrMgmt1Wake); err != nil {
		return err
	}
	m.sleep(10 * time.Millisecond)
	return nil
}

// WhoAmI returns the identity register.
func (m *MPU6050) WhoAmI() (byte, error) {
	b, err := m.ReadRegisters(RegWhoAmI, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadRegisters writes the start address and reads n consecutive bytes.
func (m *MPU6050) ReadRegisters(reg byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := m.conn.Tx([]byte{reg}, buf); err != nil {
		return nil, fault.New(fault.BusFailure, "read "+RegisterName(reg), err)
	}
	return buf, nil
}

func (m *MPU6050) writeRegister(reg, val byte) error {
	if err := m.conn.Tx([]byte{reg, val}, nil); err != nil {
		return fault.New(fault.BusFailure, "write "+RegisterName(reg), err)
	}
	return nil
}

// ReadRaw reads accelerometer, gyroscope and temperature in three
// transactions, in that order.
func (m *MPU6050) ReadRaw() (imu.Raw, error) {
	var raw imu.Raw

	b, err := m.ReadRegisters(RegAccelXoutH, 6)
	if err != nil {
		return imu.Raw{}, err
	}
	for i := 0; i < 3; i++ {
		raw.Accel[i] = int16(binary.BigEndian.Uint16(b[i*2:]))
	}

	b, err = m.ReadRegisters(RegGyroXoutH, 6)
	if err != nil {
		return imu.Raw{}, err
	}
	for i := 0; i < 3; i++ {
		raw.Gyro[i] = int16(binary.BigEndian.Uint16(b[i*2:]))
	}

	b, err = m.ReadRegisters(RegTempOutH, 2)
	if err != nil {
		return imu.Raw{}, err
	}
	raw.Temp = int16(binary.BigEndian.Uint16(b))

	return raw, nil
}
