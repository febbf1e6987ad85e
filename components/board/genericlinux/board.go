// Package genericlinux implements a Linux-based board: I2C through periph.io and interrupt
// lines through either the GPIO character device or sysfs.
package genericlinux

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/tapsense/components/board"
	"go.viam.com/tapsense/logging"
)

type closableInterrupt interface {
	board.DigitalInterrupt
	Close() error
}

// Board hands out the I2C bus and interrupt lines of a Linux host. Each interrupt pin is
// opened once and shared by whoever asks for it.
type Board struct {
	conf   Config
	logger logging.Logger

	mu         sync.Mutex
	i2c        *i2cBus
	interrupts map[int]closableInterrupt
	closed     bool

	// openInterrupt is swapped out in tests.
	openInterrupt func(pin int) (closableInterrupt, error)
}

// NewBoard returns a board for conf. Nothing is opened until it is asked for.
func NewBoard(conf Config, logger logging.Logger) (*Board, error) {
	if err := conf.Validate("board"); err != nil {
		return nil, err
	}
	b := &Board{
		conf:       conf,
		logger:     logger,
		i2c:        newI2CBus(conf.I2CBus),
		interrupts: map[int]closableInterrupt{},
	}
	b.openInterrupt = b.openBackendInterrupt
	return b, nil
}

func (b *Board) openBackendInterrupt(pin int) (closableInterrupt, error) {
	switch b.conf.backend() {
	case BackendSysfs:
		return openSysfsInterrupt(pin, b.logger)
	default:
		return openCDevInterrupt(b.conf.chipPath(), pin, b.logger)
	}
}

// I2C returns the configured bus.
func (b *Board) I2C() board.I2C {
	return b.i2c
}

// DigitalInterrupt returns the interrupt watching pin, opening it on first use.
func (b *Board) DigitalInterrupt(pin int) (board.DigitalInterrupt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("board is closed")
	}
	if di, ok := b.interrupts[pin]; ok {
		return di, nil
	}
	di, err := b.openInterrupt(pin)
	if err != nil {
		return nil, errors.Wrapf(err, "opening interrupt on pin %d", pin)
	}
	b.logger.Debugw("watching interrupt pin", "pin", pin, "backend", b.conf.backend())
	b.interrupts[pin] = di
	return di, nil
}

// Close releases every interrupt line and the I2C bus.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	for pin, di := range b.interrupts {
		err = multierr.Combine(err, errors.Wrapf(di.Close(), "closing interrupt on pin %d", pin))
	}
	b.interrupts = nil
	return multierr.Combine(err, b.i2c.Close())
}

func errInvalidBackend(name string) error {
	return errors.Errorf("unknown interrupt backend %q, expected %q or %q", name, BackendGPIOCDev, BackendSysfs)
}

func errI2CBusPath(name string) error {
	return errors.Errorf("i2c_bus takes a bus name or number such as \"1\", not a device path (%s)", name)
}
