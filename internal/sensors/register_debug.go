// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/relabs-tech/navkf/internal/config"
)

// RegisterInfo describes one MPU9250/AK8963 register for the register
// debug UI: address, name, access mode and its bit-field breakdown.
type RegisterInfo struct {
	Address     string
	Name        string
	Description string
	Access      string // "R", "W", "RW"
	Default     string
	BitFields   []BitField
}

// BitField describes one bit or bit range within a register.
type BitField struct {
	Bits        string
	Name        string
	Description string
	Values      string
}

// GetRegisterMap returns the MPU9250 register map for the debug UI.
func (m *IMUManager) GetRegisterMap() []RegisterInfo {
	return getMPU9250RegisterMap()
}

// GetAK8963RegisterMap returns the AK8963 magnetometer register map.
func (m *IMUManager) GetAK8963RegisterMap() []RegisterInfo {
	return getAK8963RegisterMap()
}

// sourceFor resolves the named IMU ("left" or "right") to its concrete
// imuSource, which carries the register-level SPI/I2C-master methods the
// IMURawReader interface doesn't expose.
func (m *IMUManager) sourceFor(imu string) (*imuSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var reader IMURawReader
	switch imu {
	case "left":
		reader = m.leftIMU
	case "right":
		reader = m.rightIMU
	default:
		return nil, fmt.Errorf("unknown IMU %q", imu)
	}
	if reader == nil {
		return nil, fmt.Errorf("%s IMU not available", imu)
	}
	src, ok := reader.(*imuSource)
	if !ok {
		return nil, fmt.Errorf("%s IMU does not support register access", imu)
	}
	return src, nil
}

// ReadRegister reads a single MPU9250 register from the named IMU.
func (m *IMUManager) ReadRegister(imu string, addr byte) (byte, error) {
	src, err := m.sourceFor(imu)
	if err != nil {
		return 0, err
	}
	return src.ReadRegister(addr)
}

// WriteRegister writes a single MPU9250 register on the named IMU.
func (m *IMUManager) WriteRegister(imu string, addr, value byte) error {
	src, err := m.sourceFor(imu)
	if err != nil {
		return err
	}
	return src.WriteRegister(addr, value)
}

// ReadAllRegisters reads every MPU9250 register on the named IMU.
func (m *IMUManager) ReadAllRegisters(imu string) (map[byte]byte, error) {
	src, err := m.sourceFor(imu)
	if err != nil {
		return nil, err
	}
	return src.ReadAllRegisters()
}

// ReadAK8963Register reads a single AK8963 register via the named IMU's
// I2C master passthrough.
func (m *IMUManager) ReadAK8963Register(imu string, addr byte) (byte, error) {
	src, err := m.sourceFor(imu)
	if err != nil {
		return 0, err
	}
	return src.ReadAK8963Register(addr)
}

// WriteAK8963Register writes a single AK8963 register via the named IMU's
// I2C master passthrough.
func (m *IMUManager) WriteAK8963Register(imu string, addr, value byte) error {
	src, err := m.sourceFor(imu)
	if err != nil {
		return err
	}
	return src.WriteAK8963Register(addr, value)
}

// ReadAllAK8963Registers reads every accessible AK8963 register via the
// named IMU's I2C master passthrough.
func (m *IMUManager) ReadAllAK8963Registers(imu string) (map[byte]byte, error) {
	src, err := m.sourceFor(imu)
	if err != nil {
		return nil, err
	}
	return src.ReadAllAK8963Registers()
}

// ExportRegisterConfig reads every MPU9250 register on the named IMU, for
// saving a register snapshot to disk.
func (m *IMUManager) ExportRegisterConfig(imu string) (map[byte]byte, error) {
	return m.ReadAllRegisters(imu)
}

// ReinitializeIMU tears down and re-creates the named IMU's SPI connection
// and device state, picking up any register writes the debug UI made that
// require a fresh init sequence (e.g. range or DLPF changes).
func (m *IMUManager) ReinitializeIMU(imu string) error {
	cfg := config.Get()

	var (
		newSrc IMURawReader
		err    error
	)
	switch imu {
	case "left":
		newSrc, err = newIMUSource("left", cfg.IMULeftSPIDevice, cfg.IMULeftCSPin)
	case "right":
		newSrc, err = newIMUSource("right", cfg.IMURightSPIDevice, cfg.IMURightCSPin)
	default:
		return fmt.Errorf("unknown IMU %q", imu)
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch imu {
	case "left":
		m.leftIMU = newSrc
	case "right":
		m.rightIMU = newSrc
	}
	return nil
}

// GetSPISpeed returns the configured read/write SPI clock rates (Hz) for
// the named IMU. The register debug tool tracks these independently of
// the periph.io transport, which fixes its clock at device-open time;
// SetSPISpeed only updates these stored values, and ReinitializeIMU does
// not apply them to the transport.
func (m *IMUManager) GetSPISpeed(imu string) (readSpeed, writeSpeed int64, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch imu {
	case "left":
		return m.leftReadSpeed, m.leftWriteSpeed, nil
	case "right":
		return m.rightReadSpeed, m.rightWriteSpeed, nil
	default:
		return 0, 0, fmt.Errorf("unknown IMU %q", imu)
	}
}

// SetSPISpeed stages read/write SPI clock rates (Hz) for the named IMU.
func (m *IMUManager) SetSPISpeed(imu string, readSpeed, writeSpeed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch imu {
	case "left":
		m.leftReadSpeed, m.leftWriteSpeed = readSpeed, writeSpeed
	case "right":
		m.rightReadSpeed, m.rightWriteSpeed = readSpeed, writeSpeed
	default:
		return fmt.Errorf("unknown IMU %q", imu)
	}
	return nil
}
