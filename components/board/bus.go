// Package board defines the bus and interrupt interfaces tap sensor drivers are written
// against, plus the pieces shared by every board implementation.
package board

import (
	"context"

	"github.com/pkg/errors"
)

// I2C represents a shareable I2C bus on the board.
type I2C interface {
	// OpenHandle returns a handle for one device address. It MUST be closed when done, and
	// only one handle per address may be open at a time.
	OpenHandle(addr byte) (I2CHandle, error)
}

// I2CHandle talks to a single device on an I2C bus. It MUST be closed to release the bus.
type I2CHandle interface {
	Write(ctx context.Context, tx []byte) error
	Read(ctx context.Context, count int) ([]byte, error)

	ReadByteData(ctx context.Context, register byte) (byte, error)
	WriteByteData(ctx context.Context, register, data byte) error

	ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error)
	WriteBlockData(ctx context.Context, register byte, data []byte) error

	Close() error
}

// An I2CRegister is a named register on one device.
type I2CRegister struct {
	Handle   I2CHandle
	Register byte
	Name     string
}

// ReadByteData reads the register.
func (reg *I2CRegister) ReadByteData(ctx context.Context) (byte, error) {
	v, err := reg.Handle.ReadByteData(ctx, reg.Register)
	return v, errors.Wrapf(err, "reading %s (0x%02X)", reg.label(), reg.Register)
}

// WriteByteData writes the register.
func (reg *I2CRegister) WriteByteData(ctx context.Context, data byte) error {
	return errors.Wrapf(reg.Handle.WriteByteData(ctx, reg.Register, data),
		"writing 0x%02X to %s (0x%02X)", data, reg.label(), reg.Register)
}

func (reg *I2CRegister) label() string {
	if reg.Name == "" {
		return "register"
	}
	return reg.Name
}

// RegisterWrite is one step of a device configuration sequence.
type RegisterWrite struct {
	Name     string
	Register byte
	Value    byte
}

// WriteRegisters performs writes in order and stops at the first failure. Nothing is retried.
func WriteRegisters(ctx context.Context, handle I2CHandle, writes ...RegisterWrite) error {
	for _, w := range writes {
		reg := I2CRegister{Handle: handle, Register: w.Register, Name: w.Name}
		if err := reg.WriteByteData(ctx, w.Value); err != nil {
			return err
		}
	}
	return nil
}
