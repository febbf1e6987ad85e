package tap

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrSetupFailure matches every error that prevented a sensor from being armed.
	ErrSetupFailure = errors.New("tap sensor setup failed")
	// ErrRegistryOverflow is returned when a fixed capacity registry is full.
	ErrRegistryOverflow = errors.New("trigger registry is full")
	// ErrRegistrySealed is returned when registering after the sensor has been armed.
	ErrRegistrySealed = errors.New("trigger registry is sealed")
	// ErrInvalidDirection is returned for directions that cannot be used where given.
	ErrInvalidDirection = errors.New("invalid tap direction")
)

// SetupError records which setup step failed and why.
type SetupError struct {
	Step string
	Err  error
}

// NewSetupFailure wraps err as a SetupError for the given step.
func NewSetupFailure(step string, err error) error {
	if err == nil {
		return nil
	}
	return &SetupError{Step: step, Err: err}
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSetupFailure, e.Step, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SetupError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSetupFailure) hold for every SetupError.
func (e *SetupError) Is(target error) bool {
	return target == ErrSetupFailure
}
