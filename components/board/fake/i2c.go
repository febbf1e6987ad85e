package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/tapsense/components/board"
)

// A RegisterWrite records one byte written to a Device.
type RegisterWrite struct {
	Register byte
	Value    byte
}

// Device is an in-memory register file standing in for one I2C device. Registers marked
// clear-on-read drop to zero after every read, as interrupt status registers do.
type Device struct {
	mu          sync.Mutex
	regs        [256]byte
	clearOnRead map[byte]bool
	writes      []RegisterWrite
	failWrites  map[byte]error
	failReads   map[byte]error
	reads       map[byte]int
}

// NewDevice returns a device whose registers are all zero.
func NewDevice() *Device {
	return &Device{
		clearOnRead: map[byte]bool{},
		failWrites:  map[byte]error{},
		failReads:   map[byte]error{},
		reads:       map[byte]int{},
	}
}

// SetRegister sets a register without recording a write.
func (d *Device) SetRegister(register, value byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[register] = value
}

// SetBlock sets consecutive registers starting at register.
func (d *Device) SetBlock(register byte, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, v := range data {
		d.regs[register+byte(i)] = v
	}
}

// Register returns the current value of a register.
func (d *Device) Register(register byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[register]
}

// ClearOnRead marks registers that reset to zero once read.
func (d *Device) ClearOnRead(registers ...byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range registers {
		d.clearOnRead[r] = true
	}
}

// FailWrites makes every write to register return err. A nil err removes the failure.
func (d *Device) FailWrites(register byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failWrites, register)
		return
	}
	d.failWrites[register] = err
}

// FailReads makes every read of register return err. A nil err removes the failure.
func (d *Device) FailReads(register byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failReads, register)
		return
	}
	d.failReads[register] = err
}

// Writes returns every successful write so far, in order.
func (d *Device) Writes() []RegisterWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]RegisterWrite(nil), d.writes...)
}

// Reads returns how many times register has been read.
func (d *Device) Reads(register byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads[register]
}

func (d *Device) write(register byte, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, v := range data {
		r := register + byte(i)
		if err := d.failWrites[r]; err != nil {
			return err
		}
		d.regs[r] = v
		d.writes = append(d.writes, RegisterWrite{Register: r, Value: v})
	}
	return nil
}

func (d *Device) read(register byte, count int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, count)
	for i := range out {
		r := register + byte(i)
		if err := d.failReads[r]; err != nil {
			return nil, err
		}
		out[i] = d.regs[r]
		d.reads[r]++
		if d.clearOnRead[r] {
			d.regs[r] = 0
		}
	}
	return out, nil
}

// I2C is a bus of fake devices keyed by address.
type I2C struct {
	mu      sync.Mutex
	devices map[byte]*Device
	open    map[byte]bool
}

// NewI2C returns a bus with nothing attached.
func NewI2C() *I2C {
	return &I2C{devices: map[byte]*Device{}, open: map[byte]bool{}}
}

// AddDevice attaches d at addr.
func (b *I2C) AddDevice(addr byte, d *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[addr] = d
}

// OpenHandle implements board.I2C.
func (b *I2C) OpenHandle(addr byte) (board.I2CHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[addr]
	if !ok {
		return nil, errors.Errorf("no device at I2C address 0x%02X", addr)
	}
	if b.open[addr] {
		return nil, errors.Errorf("I2C address 0x%02X is already open", addr)
	}
	b.open[addr] = true
	return &i2cHandle{bus: b, addr: addr, dev: d}, nil
}

// IsOpen reports whether a handle to addr is open.
func (b *I2C) IsOpen(addr byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open[addr]
}

type i2cHandle struct {
	bus  *I2C
	addr byte
	dev  *Device

	mu      sync.Mutex
	pointer byte
	closed  bool
}

func (h *i2cHandle) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.Errorf("I2C handle for 0x%02X is closed", h.addr)
	}
	return nil
}

// Write treats the first byte as a register pointer and the rest as data for it.
func (h *i2cHandle) Write(ctx context.Context, tx []byte) error {
	if err := h.check(ctx); err != nil {
		return err
	}
	if len(tx) == 0 {
		return nil
	}
	h.mu.Lock()
	h.pointer = tx[0]
	h.mu.Unlock()
	return h.dev.write(tx[0], tx[1:])
}

// Read reads from the last register pointer written.
func (h *i2cHandle) Read(ctx context.Context, count int) ([]byte, error) {
	if err := h.check(ctx); err != nil {
		return nil, err
	}
	h.mu.Lock()
	pointer := h.pointer
	h.mu.Unlock()
	return h.dev.read(pointer, count)
}

func (h *i2cHandle) ReadByteData(ctx context.Context, register byte) (byte, error) {
	data, err := h.ReadBlockData(ctx, register, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (h *i2cHandle) WriteByteData(ctx context.Context, register, data byte) error {
	return h.WriteBlockData(ctx, register, []byte{data})
}

func (h *i2cHandle) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	if err := h.check(ctx); err != nil {
		return nil, err
	}
	return h.dev.read(register, int(numBytes))
}

func (h *i2cHandle) WriteBlockData(ctx context.Context, register byte, data []byte) error {
	if err := h.check(ctx); err != nil {
		return err
	}
	return h.dev.write(register, data)
}

func (h *i2cHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.bus.mu.Lock()
	delete(h.bus.open, h.addr)
	h.bus.mu.Unlock()
	return nil
}
