package genericlinux

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"go.viam.com/tapsense/components/board"
)

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return errors.Wrap(err, "initializing periph.io host drivers")
})

// i2cBus lazily opens a periph.io bus the first time a device handle is requested.
type i2cBus struct {
	name string

	mu      sync.Mutex
	bus     i2c.BusCloser
	handles map[byte]struct{}
}

func newI2CBus(name string) *i2cBus {
	return &i2cBus{name: name, handles: map[byte]struct{}{}}
}

// OpenHandle implements board.I2C.
func (bus *i2cBus) OpenHandle(addr byte) (board.I2CHandle, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.bus == nil {
		if err := hostInit(); err != nil {
			return nil, err
		}
		b, err := i2creg.Open(bus.name)
		if err != nil {
			return nil, errors.Wrapf(err, "opening I2C bus %q", bus.name)
		}
		bus.bus = b
	}
	if _, ok := bus.handles[addr]; ok {
		return nil, errors.Errorf("I2C address 0x%02X on bus %q is already open", addr, bus.name)
	}
	bus.handles[addr] = struct{}{}
	return &i2cHandle{
		bus:  bus,
		addr: addr,
		dev:  &i2c.Dev{Bus: bus.bus, Addr: uint16(addr)},
	}, nil
}

func (bus *i2cBus) release(addr byte) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.handles, addr)
}

func (bus *i2cBus) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.bus == nil {
		return nil
	}
	err := bus.bus.Close()
	bus.bus = nil
	return err
}

// i2cHandle implements board.I2CHandle with register reads done as a single write-then-read
// transaction.
type i2cHandle struct {
	bus  *i2cBus
	addr byte
	dev  *i2c.Dev
}

func (h *i2cHandle) tx(ctx context.Context, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Wrapf(h.dev.Tx(w, r), "I2C transaction with 0x%02X on bus %q", h.addr, h.bus.name)
}

func (h *i2cHandle) Write(ctx context.Context, tx []byte) error {
	return h.tx(ctx, tx, nil)
}

func (h *i2cHandle) Read(ctx context.Context, count int) ([]byte, error) {
	buffer := make([]byte, count)
	if err := h.tx(ctx, nil, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

func (h *i2cHandle) ReadByteData(ctx context.Context, register byte) (byte, error) {
	result, err := h.ReadBlockData(ctx, register, 1)
	if err != nil {
		return 0, err
	}
	return result[0], nil
}

func (h *i2cHandle) WriteByteData(ctx context.Context, register, data byte) error {
	return h.tx(ctx, []byte{register, data}, nil)
}

func (h *i2cHandle) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	results := make([]byte, numBytes)
	if err := h.tx(ctx, []byte{register}, results); err != nil {
		return nil, err
	}
	return results, nil
}

func (h *i2cHandle) WriteBlockData(ctx context.Context, register byte, data []byte) error {
	// On devices that use registers this is the register address followed by the bytes.
	rawData := make([]byte, 0, len(data)+1)
	rawData = append(rawData, register)
	rawData = append(rawData, data...)
	return h.tx(ctx, rawData, nil)
}

func (h *i2cHandle) Close() error {
	h.bus.release(h.addr)
	return nil
}
