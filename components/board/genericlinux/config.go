package genericlinux

import (
	"path/filepath"
	"strings"

	"go.viam.com/utils"
)

// Interrupt backends.
const (
	// BackendGPIOCDev watches lines through the GPIO character device.
	BackendGPIOCDev = "gpiocdev"
	// BackendSysfs watches pins through periph.io's sysfs driver.
	BackendSysfs = "sysfs"
)

const defaultGPIOChip = "gpiochip0"

// A Config describes which buses and chips a Linux board uses.
type Config struct {
	// I2CBus is a periph.io bus name or number, e.g. "1" or "I2C1". Empty picks the first bus.
	I2CBus string `json:"i2c_bus,omitempty"`
	// GPIOChip is the character device interrupt lines are requested from.
	GPIOChip         string `json:"gpio_chip,omitempty"`
	InterruptBackend string `json:"interrupt_backend,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	switch conf.InterruptBackend {
	case "", BackendGPIOCDev, BackendSysfs:
	default:
		return utils.NewConfigValidationError(path,
			errInvalidBackend(conf.InterruptBackend))
	}
	if strings.HasPrefix(conf.I2CBus, "/dev/") {
		return utils.NewConfigValidationError(path,
			errI2CBusPath(conf.I2CBus))
	}
	return nil
}

func (conf *Config) backend() string {
	if conf.InterruptBackend == "" {
		return BackendGPIOCDev
	}
	return conf.InterruptBackend
}

func (conf *Config) chipPath() string {
	chip := conf.GPIOChip
	if chip == "" {
		chip = defaultGPIOChip
	}
	if filepath.IsAbs(chip) {
		return chip
	}
	return filepath.Join("/dev", chip)
}
