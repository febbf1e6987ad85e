package board

// A Board hands out the I2C bus and interrupt lines tap sensors are wired to.
type Board interface {
	I2C() I2C
	// DigitalInterrupt returns the interrupt watching pin. Asking twice for the same pin
	// returns the same interrupt.
	DigitalInterrupt(pin int) (DigitalInterrupt, error)
	Close() error
}
