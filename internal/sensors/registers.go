// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import "fmt"

// MPU-6050 register addresses used by the logger.
const (
	RegAccelXoutH byte = 0x3B
	RegTempOutH   byte = 0x41
	RegGyroXoutH  byte = 0x43
	RegPwrMgmt1   byte = 0x6B
	RegWhoAmI     byte = 0x75

	// PwrMgmt1Reset sets H_RESET; writing 0x00 afterwards wakes the device
	// on the internal oscillator.
	PwrMgmt1Reset byte = 0x80
	PwrMgmt1Wake  byte = 0x00

	// WhoAmIValue is the identity reported by a genuine MPU-6050.
	WhoAmIValue byte = 0x68

	// DefaultAddr is the I2C address with AD0 tied low.
	DefaultAddr uint16 = 0x68
)

// RegisterInfo describes one register for logs and the probe tool.
type RegisterInfo struct {
	Address     byte
	Name        string
	Description string
	Access      string // "R", "W", "RW"
}

// registerMap returns metadata for the registers this package touches.
func registerMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: 0x3B, Name: "ACCEL_XOUT_H", Description: "Accelerometer X/Y/Z, 6 bytes big-endian", Access: "R"},
		{Address: 0x41, Name: "TEMP_OUT_H", Description: "Die temperature, 2 bytes big-endian", Access: "R"},
		{Address: 0x43, Name: "GYRO_XOUT_H", Description: "Gyroscope X/Y/Z, 6 bytes big-endian", Access: "R"},
		{Address: 0x6B, Name: "PWR_MGMT_1", Description: "Power Management 1 (H_RESET, SLEEP, CLKSEL)", Access: "RW"},
		{Address: 0x75, Name: "WHO_AM_I", Description: "Device ID (should be 0x68)", Access: "R"},
	}
}

// RegisterName returns the datasheet name of addr, or its hex form.
func RegisterName(addr byte) string {
	for _, r := range registerMap() {
		if r.Address == addr {
			return r.Name
		}
	}
	return fmt.Sprintf("0x%02X", addr)
}

// Registers returns a copy of the register metadata.
func Registers() []RegisterInfo { return registerMap() }
