// Package mpu6050 is the tap register model for an MPU-6050 6-axis accelerometer. A description
// of the I2C registers is at
// https://download.datasheets.com/pdfs/2015/3/19/8/3/59/59/invse_/manual/5rm-mpu-6000a-00v4.2.pdf
//
// The chip has no tap engine of its own. Taps are reported through the motion detection
// interrupt, and the direction comes from comparing the accelerometer against the reading taken
// at rest when the interrupt was armed. The double tap window is kept in software.
//
// The chip has two possible I2C addresses, which can be selected by wiring the AD0 pin to either
// hot or ground:
//   - if AD0 is wired to ground, it uses the default I2C address of 0x68
//   - if AD0 is wired to hot, it uses the alternate I2C address of 0x69
//
// If you use the alternate address, set "use_alt_i2c_address" in the sensor's attributes.
package mpu6050

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/tapsense/components/board"
	"go.viam.com/tapsense/logging"
	"go.viam.com/tapsense/tap"
)

// ModelName is how configs refer to this chip.
const ModelName = "mpu6050"

// Registers used for tap detection.
const (
	RegAccelConfig     byte = 0x1C
	RegMotionThreshold byte = 0x1F
	RegMotionDuration  byte = 0x20
	RegIntPinConfig    byte = 0x37
	RegIntEnable       byte = 0x38
	RegIntStatus       byte = 0x3A
	RegAccelXOutH      byte = 0x3B
	RegPowerMgmt1      byte = 0x6B
	RegWhoAmI          byte = 0x75
)

const (
	defaultAddress   byte = 0x68
	alternateAddress byte = 0x69

	// Accelerometer at +/- 2g.
	accelRange2g byte = 0x00
	// Active low, latched until INT_STATUS is read.
	intPinActiveLowLatched byte = 0xA0
	motionInterrupt        byte = 1 << 6
	sleepBit               byte = 1 << 6
)

// Defaults for the thresholds when a config leaves them out.
const (
	DefaultSensitivity byte = 0x40
	DefaultDuration    byte = 0x01
)

// Config holds the attributes specific to this chip.
type Config struct {
	UseAlternateI2CAddress bool `json:"use_alt_i2c_address,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	return nil
}

// Chip is an MPU-6050 on an I2C bus.
type Chip struct {
	bus        board.I2C
	i2cAddress byte
	logger     logging.Logger

	mu       sync.Mutex
	baseline tap.AxisReading
}

// New returns a chip on bus. Nothing is written until setup.
func New(bus board.I2C, cfg Config, logger logging.Logger) *Chip {
	address := defaultAddress
	if cfg.UseAlternateI2CAddress {
		address = alternateAddress
	}
	logger.Debugf("Using address 0x%02X for MPU6050 sensor", address)
	return &Chip{bus: bus, i2cAddress: address, logger: logger}
}

// Name returns the model name.
func (mpu *Chip) Name() string {
	return ModelName
}

// Address returns the I2C address in use.
func (mpu *Chip) Address() byte {
	return mpu.i2cAddress
}

// Probe checks that WHO_AM_I reads back the device's non-alternative address (0x68) whichever
// address it is wired to.
func (mpu *Chip) Probe(ctx context.Context) error {
	whoAmI, err := mpu.readByte(ctx, RegWhoAmI)
	if err != nil {
		return errors.Wrapf(err, "can't read from I2C address 0x%02X", mpu.i2cAddress)
	}
	if whoAmI != defaultAddress {
		return errors.Errorf("unexpected non-MPU6050 device at address 0x%02X: response 0x%02X",
			mpu.i2cAddress, whoAmI)
	}
	return nil
}

// ApplyThresholds wakes the chip and loads the motion detection registers: sensitivity into
// MOT_THR (2mg per LSB) and duration into MOT_DUR (1ms per LSB).
func (mpu *Chip) ApplyThresholds(ctx context.Context, sensitivity, duration byte) error {
	return mpu.writeRegisters(ctx,
		board.RegisterWrite{Name: "PWR_MGMT_1", Register: RegPowerMgmt1, Value: 0x00},
		board.RegisterWrite{Name: "ACCEL_CONFIG", Register: RegAccelConfig, Value: accelRange2g},
		board.RegisterWrite{Name: "MOT_THR", Register: RegMotionThreshold, Value: sensitivity},
		board.RegisterWrite{Name: "MOT_DUR", Register: RegMotionDuration, Value: duration},
	)
}

// ApplyWindow reports that the window is not hardware backed. Nothing is written.
func (mpu *Chip) ApplyWindow(ctx context.Context, window time.Duration) (bool, error) {
	return false, nil
}

// ArmInterrupt records the resting acceleration and enables the motion interrupt.
func (mpu *Chip) ArmInterrupt(ctx context.Context) error {
	rest, err := mpu.readAccel(ctx)
	if err != nil {
		return errors.Wrap(err, "reading resting acceleration")
	}
	mpu.mu.Lock()
	mpu.baseline = rest
	mpu.mu.Unlock()

	if err := mpu.writeRegisters(ctx,
		board.RegisterWrite{Name: "INT_PIN_CFG", Register: RegIntPinConfig, Value: intPinActiveLowLatched},
		board.RegisterWrite{Name: "INT_ENABLE", Register: RegIntEnable, Value: motionInterrupt},
	); err != nil {
		return err
	}
	// Anything latched before now is not a tap we were armed for.
	_, err = mpu.readByte(ctx, RegIntStatus)
	return err
}

// InterruptActiveHigh is false: the pin is configured active low.
func (mpu *Chip) InterruptActiveHigh() bool {
	return false
}

// ReadTapStatus reads INT_STATUS, which clears it, and on a motion interrupt the acceleration
// change against rest.
func (mpu *Chip) ReadTapStatus(ctx context.Context) (tap.Sample, error) {
	status, err := mpu.readByte(ctx, RegIntStatus)
	if err != nil {
		return tap.Sample{}, err
	}
	if status&motionInterrupt == 0 {
		return tap.Sample{}, nil
	}
	accel, err := mpu.readAccel(ctx)
	if err != nil {
		return tap.Sample{}, err
	}
	mpu.mu.Lock()
	delta := accel.Sub(mpu.baseline)
	mpu.mu.Unlock()
	return tap.Sample{Detected: true, Axes: delta}, nil
}

// Close disables the interrupt and puts the chip back to sleep.
func (mpu *Chip) Close(ctx context.Context) error {
	return multierr.Combine(
		mpu.writeRegisters(ctx, board.RegisterWrite{Name: "INT_ENABLE", Register: RegIntEnable, Value: 0}),
		mpu.writeRegisters(ctx, board.RegisterWrite{Name: "PWR_MGMT_1", Register: RegPowerMgmt1, Value: sleepBit}),
	)
}

func (mpu *Chip) readAccel(ctx context.Context) (tap.AxisReading, error) {
	raw, err := mpu.readBlock(ctx, RegAccelXOutH, 6)
	if err != nil {
		return tap.AxisReading{}, err
	}
	return toAxisReading(raw), nil
}

// toAxisReading takes the 6 big endian bytes starting at ACCEL_XOUT_H.
func toAxisReading(data []byte) tap.AxisReading {
	return tap.AxisReading{
		X: int32(int16(binary.BigEndian.Uint16(data[0:2]))),
		Y: int32(int16(binary.BigEndian.Uint16(data[2:4]))),
		Z: int32(int16(binary.BigEndian.Uint16(data[4:6]))),
	}
}

func (mpu *Chip) readByte(ctx context.Context, register byte) (byte, error) {
	result, err := mpu.readBlock(ctx, register, 1)
	if err != nil {
		return 0, err
	}
	return result[0], nil
}

func (mpu *Chip) readBlock(ctx context.Context, register byte, length uint8) ([]byte, error) {
	handle, err := mpu.bus.OpenHandle(mpu.i2cAddress)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			mpu.logger.Error(err)
		}
	}()

	results, err := handle.ReadBlockData(ctx, register, length)
	if err != nil {
		return nil, errors.Wrapf(err, "reading 0x%02X", register)
	}
	if len(results) != int(length) {
		return nil, errors.Errorf("short read of 0x%02X: wanted %d bytes, got %d", register, length, len(results))
	}
	return results, nil
}

func (mpu *Chip) writeRegisters(ctx context.Context, writes ...board.RegisterWrite) error {
	handle, err := mpu.bus.OpenHandle(mpu.i2cAddress)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			mpu.logger.Error(err)
		}
	}()
	return board.WriteRegisters(ctx, handle, writes...)
}
