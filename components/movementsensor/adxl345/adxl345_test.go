package adxl345

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/tapsense/components/board"
	"go.viam.com/tapsense/components/board/fake"
	"go.viam.com/tapsense/logging"
	"go.viam.com/tapsense/tap"
	"go.viam.com/tapsense/testutils/inject"
)

func setupChip(t *testing.T, cfg Config) (*Chip, *fake.Device) {
	t.Helper()
	bus := fake.NewI2C()
	dev := NewSimulatedDevice()
	addr := defaultAddress
	if cfg.UseAlternateI2CAddress {
		addr = alternateAddress
	}
	bus.AddDevice(addr, dev)
	return New(bus, cfg, logging.NewTestLogger(t)), dev
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	test.That(t, cfg.Validate("path"), test.ShouldBeNil)

	cfg.InterruptLine = "int3"
	err := cfg.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "interrupt_line")

	cfg = Config{ExcludeX: true, ExcludeY: true, ExcludeZ: true}
	test.That(t, cfg.Validate("path"), test.ShouldNotBeNil)

	cfg = Config{Latent: time.Second}
	test.That(t, cfg.Validate("path"), test.ShouldNotBeNil)
}

func TestSetupSequence(t *testing.T) {
	ctx := context.Background()
	chip, dev := setupChip(t, Config{InterruptLine: Int2, ExcludeZ: true})
	test.That(t, chip.Name(), test.ShouldEqual, ModelName)
	test.That(t, chip.Address(), test.ShouldEqual, 0x53)

	test.That(t, chip.Probe(ctx), test.ShouldBeNil)
	test.That(t, chip.ApplyThresholds(ctx, 0x30, 0x10), test.ShouldBeNil)
	hardware, err := chip.ApplyWindow(ctx, 200*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, hardware, test.ShouldBeTrue)
	test.That(t, chip.ArmInterrupt(ctx), test.ShouldBeNil)

	test.That(t, dev.Writes(), test.ShouldResemble, []fake.RegisterWrite{
		{Register: ThreshTap, Value: 0x30},
		{Register: Dur, Value: 0x10},
		{Register: TapAxes, Value: tapSourceX | tapSourceY},
		{Register: Latent, Value: 16},
		{Register: Window, Value: 144},
		{Register: IntMap, Value: 0x60},
		{Register: PowerCtl, Value: 0x08},
		{Register: IntEnable, Value: 0x60},
	})
	test.That(t, chip.InterruptActiveHigh(), test.ShouldBeTrue)

	test.That(t, chip.Close(ctx), test.ShouldBeNil)
	test.That(t, dev.Register(IntEnable), test.ShouldEqual, 0)
	test.That(t, dev.Register(PowerCtl), test.ShouldEqual, 0)
}

func TestHardwareWindowFitsDoubleTapWindow(t *testing.T) {
	for _, tc := range []struct {
		latent, window time.Duration
	}{
		{20 * time.Millisecond, 200 * time.Millisecond},
		{20 * time.Millisecond, 201 * time.Millisecond},
		{21 * time.Millisecond, 100 * time.Millisecond},
		{time.Millisecond, 5 * time.Millisecond},
		{300 * time.Millisecond, time.Second},
	} {
		latentUnits, windowUnits, err := windowRegisters(tc.latent, tc.window)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, windowUnits, test.ShouldBeGreaterThanOrEqualTo, byte(1))
		test.That(t, HardwareWindow(latentUnits, windowUnits), test.ShouldBeLessThanOrEqualTo, tc.window)
		test.That(t, time.Duration(latentUnits)*windowUnit, test.ShouldBeGreaterThanOrEqualTo, tc.latent)
	}

	latentUnits, windowUnits, err := windowRegisters(20*time.Millisecond, 200*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, HardwareWindow(latentUnits, windowUnits), test.ShouldEqual, 200*time.Millisecond)

	_, _, err = windowRegisters(20*time.Millisecond, 20*time.Millisecond)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "leaves no room")

	cfg := Config{Latent: 100 * time.Millisecond}
	test.That(t, cfg.ValidateWindow(200*time.Millisecond, "path"), test.ShouldBeNil)
	test.That(t, cfg.ValidateWindow(100*time.Millisecond, "path"), test.ShouldNotBeNil)
	cfg = Config{}
	test.That(t, cfg.ValidateWindow(20*time.Millisecond, "path"), test.ShouldNotBeNil)

	chip, dev := setupChip(t, Config{Latent: 50 * time.Millisecond})
	_, err = chip.ApplyWindow(context.Background(), 50*time.Millisecond)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, dev.Writes(), test.ShouldBeEmpty)
}

func TestWindowUnits(t *testing.T) {
	test.That(t, toWindowUnits(0), test.ShouldEqual, 1)
	test.That(t, toWindowUnits(80*time.Millisecond), test.ShouldEqual, 0x40)
	test.That(t, toWindowUnits(81*time.Millisecond), test.ShouldEqual, 0x41)
	test.That(t, toWindowUnits(time.Second), test.ShouldEqual, 0xFF)
}

func TestProbeRejectsOtherDevices(t *testing.T) {
	chip, dev := setupChip(t, Config{UseAlternateI2CAddress: true})
	test.That(t, chip.Address(), test.ShouldEqual, 0x1D)
	dev.SetRegister(DevID, 0x00)
	err := chip.Probe(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unexpected non-ADXL345 device")
}

func TestReadTapStatus(t *testing.T) {
	ctx := context.Background()
	chip, dev := setupChip(t, Config{})
	test.That(t, chip.ArmInterrupt(ctx), test.ShouldBeNil)

	t.Run("no tap bits is spurious", func(t *testing.T) {
		dev.SetRegister(IntSource, interruptBitPosition[DataReady])
		sample, err := chip.ReadTapStatus(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, sample.Detected, test.ShouldBeFalse)
	})

	t.Run("single tap", func(t *testing.T) {
		StageTap(dev, tap.Impulse(tap.Up, 40), false)
		sample, err := chip.ReadTapStatus(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, sample.Detected, test.ShouldBeTrue)
		test.That(t, sample.SecondTap, test.ShouldBeFalse)
		dir, _, _ := tap.ResolveDirection(sample.Axes)
		test.That(t, dir, test.ShouldEqual, tap.Up)
		test.That(t, dev.Register(IntSource), test.ShouldEqual, 0)
	})

	t.Run("hardware double tap", func(t *testing.T) {
		StageTap(dev, tap.Impulse(tap.Right, 40), true)
		sample, err := chip.ReadTapStatus(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, sample.SecondTap, test.ShouldBeTrue)
		dir, _, _ := tap.ResolveDirection(sample.Axes)
		test.That(t, dir, test.ShouldEqual, tap.Right)
	})

	t.Run("axes the detector did not flag are ignored", func(t *testing.T) {
		dev.SetBlock(DataX0, accelBytes(tap.AxisReading{X: 90, Y: -30, Z: restingZ}))
		dev.SetRegister(ActTapStatus, tapSourceY)
		dev.SetRegister(IntSource, interruptBitPosition[SingleTap])
		sample, err := chip.ReadTapStatus(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, sample.Axes, test.ShouldResemble, tap.AxisReading{Y: -30})
	})
}

func TestInjectedHandle(t *testing.T) {
	ctx := context.Background()

	i2cHandle := &inject.I2CHandle{}
	i2cHandle.CloseFunc = func() error { return nil }
	i2cHandle.WriteByteDataFunc = func(context.Context, byte, byte) error { return nil }
	// ReadBlockData serves every read. The first byte answers DEVID and INT_SOURCE; the chip
	// trims the block to the length it asked for.
	i2cHandle.ReadBlockDataFunc = func(context.Context, byte, uint8) ([]byte, error) {
		return []byte{byte(0xE5), byte(0x1), byte(0x2), byte(0x3), byte(0x4), byte(0x5), byte(0x6)}, nil
	}

	i2c := &inject.I2C{}
	i2c.OpenHandleFunc = func(addr byte) (board.I2CHandle, error) { return i2cHandle, nil }

	chip := New(i2c, Config{}, logging.NewTestLogger(t))
	test.That(t, chip.Probe(ctx), test.ShouldBeNil)

	// 0xE5 has SINGLE_TAP and DOUBLE_TAP set.
	sample, err := chip.ReadTapStatus(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sample.Detected, test.ShouldBeTrue)
	test.That(t, sample.SecondTap, test.ShouldBeTrue)

	i2cHandle.WriteByteDataFunc = func(context.Context, byte, byte) error { return errors.New("nack") }
	err = chip.ApplyThresholds(ctx, 0x30, 0x10)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "THRESH_TAP")
}
