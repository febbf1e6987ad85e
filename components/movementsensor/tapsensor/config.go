package tapsensor

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/tapsense/tap"
)

// Defaults applied by the config loader when a sensor leaves them out.
const (
	DefaultDoubleTapWindow = 200 * time.Millisecond
	// DefaultLoopInterval is how often the lazy deadline policy looks for expired taps when no
	// poll interval is configured.
	DefaultLoopInterval = 10 * time.Millisecond
	// StatePulse is how long the binary state stays true after a tap.
	StatePulse = 100 * time.Millisecond
)

// NoInterruptPin marks a sensor that is polled instead of interrupt driven.
const NoInterruptPin = -1

// Config is the immutable configuration of one tap sensor, built once at load.
type Config struct {
	Name string
	// InterruptPin is the board pin the chip's interrupt output is wired to, or NoInterruptPin.
	InterruptPin int
	// PollInterval reads the tap status on a timer instead of waiting for the interrupt pin.
	PollInterval    time.Duration
	Sensitivity     byte
	Duration        byte
	DoubleTapWindow time.Duration
	DeadlinePolicy  tap.DeadlinePolicy
	// MaxTriggers caps how many callbacks may be registered. Zero is unbounded.
	MaxTriggers int
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if conf.DoubleTapWindow <= 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("double_tap_window must be positive, got %s", conf.DoubleTapWindow))
	}
	if conf.PollInterval < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("poll_interval must not be negative, got %s", conf.PollInterval))
	}
	if conf.InterruptPin < 0 && conf.InterruptPin != NoInterruptPin {
		return utils.NewConfigValidationError(path,
			errors.Errorf("invalid interrupt_pin %d", conf.InterruptPin))
	}
	if conf.InterruptPin == NoInterruptPin && conf.PollInterval == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "interrupt_pin")
	}
	if conf.DeadlinePolicy != tap.DeadlineTimer && conf.DeadlinePolicy != tap.DeadlineLazy {
		return utils.NewConfigValidationError(path,
			errors.Errorf("invalid deadline policy %d", conf.DeadlinePolicy))
	}
	if conf.MaxTriggers < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("max_triggers must not be negative, got %d", conf.MaxTriggers))
	}
	return nil
}

// Polled reports whether the sensor is sampled on a timer.
func (conf *Config) Polled() bool {
	return conf.PollInterval > 0
}

func (conf *Config) loopInterval() time.Duration {
	if conf.PollInterval > 0 {
		return conf.PollInterval
	}
	return DefaultLoopInterval
}
