// Package fake implements a fake board with an in-memory I2C bus and interrupts that fire
// when told to.
package fake

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/tapsense/components/board"
)

// A Board hands out fake devices and interrupts. Interrupt pins are created on first use.
type Board struct {
	bus *I2C

	mu         sync.Mutex
	interrupts map[int]*board.BasicDigitalInterrupt
	CloseCount int
}

// NewBoard returns an empty fake board.
func NewBoard() *Board {
	return &Board{
		bus:        NewI2C(),
		interrupts: map[int]*board.BasicDigitalInterrupt{},
	}
}

// I2C returns the fake bus.
func (b *Board) I2C() board.I2C {
	return b.bus
}

// Bus returns the fake bus so devices can be attached to it.
func (b *Board) Bus() *I2C {
	return b.bus
}

// DigitalInterrupt returns the interrupt on pin.
func (b *Board) DigitalInterrupt(pin int) (board.DigitalInterrupt, error) {
	return b.Interrupt(pin)
}

// Interrupt returns the interrupt on pin so tests can fire it.
func (b *Board) Interrupt(pin int) (*board.BasicDigitalInterrupt, error) {
	if pin < 0 {
		return nil, errors.Errorf("invalid interrupt pin %d", pin)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	di, ok := b.interrupts[pin]
	if !ok {
		di = board.NewBasicDigitalInterrupt(pinName(pin))
		b.interrupts[pin] = di
	}
	return di, nil
}

// Pulse delivers one edge on pin, stamped with nanos.
func (b *Board) Pulse(ctx context.Context, pin int, high bool, nanos uint64) error {
	di, err := b.Interrupt(pin)
	if err != nil {
		return err
	}
	return di.Tick(ctx, high, nanos)
}

// Close counts closes.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCount++
	return nil
}

func pinName(pin int) string {
	return "fake-" + strconv.Itoa(pin)
}
