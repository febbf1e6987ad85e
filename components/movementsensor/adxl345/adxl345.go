// Package adxl345 is the tap register model for an ADXL345 accelerometer. The chip detects single
// and double taps itself; the double tap window and latency are loaded into its registers, and
// the DOUBLE_TAP flag is passed on so a hardware-confirmed second tap closes the gesture.
//
// The chip has two possible I2C addresses: 0x53 with SDO grounded and 0x1D with SDO high.
package adxl345

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/tapsense/components/board"
	"go.viam.com/tapsense/logging"
	"go.viam.com/tapsense/tap"
)

// ModelName is how configs refer to this chip.
const ModelName = "adxl345"

const (
	defaultAddress   byte = 0x53
	alternateAddress byte = 0x1D

	expectedDeviceID byte = 0xE5
	measureMode      byte = 0x08

	// Window and Latent count in 1.25ms steps.
	windowUnit = 1250 * time.Microsecond
)

// Defaults for the thresholds when a config leaves them out. The data sheet suggests starting
// with ThreshTap above 0x30 (3 g) and Dur above 0x10 (10 ms).
const (
	DefaultSensitivity byte = 0x30
	DefaultDuration    byte = 0x10
	defaultLatent           = 20 * time.Millisecond
)

// Interrupt pin names.
const (
	Int1 = "int1"
	Int2 = "int2"
)

// Config holds the attributes specific to this chip.
type Config struct {
	UseAlternateI2CAddress bool `json:"use_alt_i2c_address,omitempty"`
	// InterruptLine is the chip pin wired to the board, "int1" (default) or "int2".
	InterruptLine string `json:"interrupt_line,omitempty"`
	ExcludeX      bool   `json:"exclude_x,omitempty"`
	ExcludeY      bool   `json:"exclude_y,omitempty"`
	ExcludeZ      bool   `json:"exclude_z,omitempty"`
	// Latent is the quiet time after the first tap before the window opens. Defaults to 20ms.
	Latent time.Duration `json:"latent,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	switch cfg.InterruptLine {
	case "", Int1, Int2:
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("interrupt_line must be %q or %q, got %q", Int1, Int2, cfg.InterruptLine))
	}
	if cfg.ExcludeX && cfg.ExcludeY && cfg.ExcludeZ {
		return utils.NewConfigValidationError(path, errors.New("at least one axis must take part in tap detection"))
	}
	if cfg.Latent < 0 || cfg.Latent > 255*windowUnit {
		return utils.NewConfigValidationError(path,
			errors.Errorf("latent must be between 0 and %s, got %s", 255*windowUnit, cfg.Latent))
	}
	return nil
}

// ValidateWindow ensures the latent period leaves room for a second tap in window.
func (cfg *Config) ValidateWindow(window time.Duration, path string) error {
	if _, _, err := windowRegisters(cfg.latent(), window); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

func (cfg *Config) latent() time.Duration {
	if cfg.Latent == 0 {
		return defaultLatent
	}
	return cfg.Latent
}

// Chip is an ADXL345 on an I2C bus.
type Chip struct {
	bus        board.I2C
	i2cAddress byte
	cfg        Config
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
	cfg.Latent = cfg.latent()
	logger.Debugf("Using address 0x%02X for ADXL345 sensor", address)
	return &Chip{bus: bus, i2cAddress: address, cfg: cfg, logger: logger}
}

// Name returns the model name.
func (adxl *Chip) Name() string {
	return ModelName
}

// Address returns the I2C address in use.
func (adxl *Chip) Address() byte {
	return adxl.i2cAddress
}

// Probe checks the device id register.
func (adxl *Chip) Probe(ctx context.Context) error {
	deviceID, err := adxl.readByte(ctx, DevID)
	if err != nil {
		return errors.Wrapf(err, "can't read from I2C address 0x%02X", adxl.i2cAddress)
	}
	if deviceID != expectedDeviceID {
		return errors.Errorf("unexpected non-ADXL345 device at address 0x%02X: expected response 0x%02X, got 0x%02X",
			adxl.i2cAddress, expectedDeviceID, deviceID)
	}
	return nil
}

// ApplyThresholds loads THRESH_TAP (62.5mg per LSB), DUR (625us per LSB) and the axes taking
// part in detection.
func (adxl *Chip) ApplyThresholds(ctx context.Context, sensitivity, duration byte) error {
	return adxl.writeRegisters(ctx,
		board.RegisterWrite{Name: "THRESH_TAP", Register: ThreshTap, Value: sensitivity},
		board.RegisterWrite{Name: "DUR", Register: Dur, Value: duration},
		board.RegisterWrite{Name: "TAP_AXES", Register: TapAxes, Value: adxl.tapAxes()},
	)
}

// ApplyWindow loads LATENT and WINDOW so that latent plus window, the span in which the chip
// accepts a second tap, fits inside the double tap window. The window is hardware backed.
func (adxl *Chip) ApplyWindow(ctx context.Context, window time.Duration) (bool, error) {
	latentUnits, windowUnits, err := windowRegisters(adxl.cfg.Latent, window)
	if err != nil {
		return false, err
	}
	if err := adxl.writeRegisters(ctx,
		board.RegisterWrite{Name: "LATENT", Register: Latent, Value: latentUnits},
		board.RegisterWrite{Name: "WINDOW", Register: Window, Value: windowUnits},
	); err != nil {
		return false, err
	}
	return true, nil
}

// ArmInterrupt starts measuring, records the resting acceleration and enables the single and
// double tap interrupts on the configured pin.
func (adxl *Chip) ArmInterrupt(ctx context.Context) error {
	var intMap byte
	if adxl.cfg.InterruptLine == Int2 {
		intMap = interruptBitPosition[SingleTap] | interruptBitPosition[DoubleTap]
	}
	if err := adxl.writeRegisters(ctx,
		board.RegisterWrite{Name: "INT_MAP", Register: IntMap, Value: intMap},
		board.RegisterWrite{Name: "POWER_CTL", Register: PowerCtl, Value: measureMode},
	); err != nil {
		return err
	}

	rest, err := adxl.readAccel(ctx)
	if err != nil {
		return errors.Wrap(err, "reading resting acceleration")
	}
	adxl.mu.Lock()
	adxl.baseline = rest
	adxl.mu.Unlock()

	// Drop anything latched before now.
	if _, err := adxl.readByte(ctx, IntSource); err != nil {
		return err
	}
	return adxl.writeRegisters(ctx, board.RegisterWrite{
		Name:     "INT_ENABLE",
		Register: IntEnable,
		Value:    interruptBitPosition[SingleTap] | interruptBitPosition[DoubleTap],
	})
}

// InterruptActiveHigh is true: INT_INVERT is left at its reset value.
func (adxl *Chip) InterruptActiveHigh() bool {
	return true
}

// ReadTapStatus reads INT_SOURCE, which clears it. On a tap the axes not flagged in
// ACT_TAP_STATUS are zeroed so the direction comes from the axis that tripped the detector.
func (adxl *Chip) ReadTapStatus(ctx context.Context) (tap.Sample, error) {
	source, err := adxl.readByte(ctx, IntSource)
	if err != nil {
		return tap.Sample{}, err
	}
	tapBits := source & (interruptBitPosition[SingleTap] | interruptBitPosition[DoubleTap])
	if tapBits == 0 {
		return tap.Sample{}, nil
	}

	status, err := adxl.readByte(ctx, ActTapStatus)
	if err != nil {
		return tap.Sample{}, err
	}
	accel, err := adxl.readAccel(ctx)
	if err != nil {
		return tap.Sample{}, err
	}
	adxl.mu.Lock()
	delta := accel.Sub(adxl.baseline)
	adxl.mu.Unlock()

	if status&(tapSourceX|tapSourceY|tapSourceZ) != 0 {
		if status&tapSourceX == 0 {
			delta.X = 0
		}
		if status&tapSourceY == 0 {
			delta.Y = 0
		}
		if status&tapSourceZ == 0 {
			delta.Z = 0
		}
	}
	return tap.Sample{
		Detected:  true,
		SecondTap: tapBits&interruptBitPosition[DoubleTap] != 0,
		Axes:      delta,
	}, nil
}

// Close disables the interrupts and returns the chip to standby.
func (adxl *Chip) Close(ctx context.Context) error {
	return multierr.Combine(
		adxl.writeRegisters(ctx, board.RegisterWrite{Name: "INT_ENABLE", Register: IntEnable, Value: 0}),
		adxl.writeRegisters(ctx, board.RegisterWrite{Name: "POWER_CTL", Register: PowerCtl, Value: 0}),
	)
}

func (adxl *Chip) tapAxes() byte {
	var axes byte
	if !adxl.cfg.ExcludeX {
		axes |= tapSourceX
	}
	if !adxl.cfg.ExcludeY {
		axes |= tapSourceY
	}
	if !adxl.cfg.ExcludeZ {
		axes |= tapSourceZ
	}
	return axes
}

// windowRegisters rounds latent up and the rest of window down, so the hardware window never
// outlasts the software one.
func windowRegisters(latent, window time.Duration) (latentUnits, windowUnits byte, err error) {
	latentUnits = toWindowUnits(latent)
	remaining := (window - time.Duration(latentUnits)*windowUnit) / windowUnit
	if remaining < 1 {
		return 0, 0, errors.Errorf("latent %s leaves no room for a second tap in a %s double tap window", latent, window)
	}
	if remaining > 0xFF {
		remaining = 0xFF
	}
	return latentUnits, byte(remaining), nil
}

// HardwareWindow is how long after a first tap the chip accepts a second one, given the
// LATENT and WINDOW register values.
func HardwareWindow(latentUnits, windowUnits byte) time.Duration {
	return time.Duration(int(latentUnits)+int(windowUnits)) * windowUnit
}

func toWindowUnits(d time.Duration) byte {
	units := (d + windowUnit - 1) / windowUnit
	switch {
	case units < 1:
		return 1
	case units > 0xFF:
		return 0xFF
	default:
		return byte(units)
	}
}

func (adxl *Chip) readAccel(ctx context.Context) (tap.AxisReading, error) {
	raw, err := adxl.readBlock(ctx, DataX0, 6)
	if err != nil {
		return tap.AxisReading{}, err
	}
	return toAxisReading(raw), nil
}

// toAxisReading takes the 6 little endian bytes starting at DATAX0.
func toAxisReading(data []byte) tap.AxisReading {
	return tap.AxisReading{
		X: int32(int16(binary.LittleEndian.Uint16(data[0:2]))),
		Y: int32(int16(binary.LittleEndian.Uint16(data[2:4]))),
		Z: int32(int16(binary.LittleEndian.Uint16(data[4:6]))),
	}
}

func (adxl *Chip) readByte(ctx context.Context, register byte) (byte, error) {
	result, err := adxl.readBlock(ctx, register, 1)
	if err != nil {
		return 0, err
	}
	return result[0], nil
}

func (adxl *Chip) readBlock(ctx context.Context, register byte, length uint8) ([]byte, error) {
	handle, err := adxl.bus.OpenHandle(adxl.i2cAddress)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			adxl.logger.Error(err)
		}
	}()

	results, err := handle.ReadBlockData(ctx, register, length)
	if err != nil {
		return nil, errors.Wrapf(err, "reading 0x%02X", register)
	}
	if len(results) < int(length) {
		return nil, errors.Errorf("short read of 0x%02X: wanted %d bytes, got %d", register, length, len(results))
	}
	return results[:length], nil
}

func (adxl *Chip) writeRegisters(ctx context.Context, writes ...board.RegisterWrite) error {
	handle, err := adxl.bus.OpenHandle(adxl.i2cAddress)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			adxl.logger.Error(err)
		}
	}()
	return board.WriteRegisters(ctx, handle, writes...)
}
