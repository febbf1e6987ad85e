package tap

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/tapsense/logging"
)

// A Callback is a user action bound to a (Kind, Direction) slot.
type Callback func(Gesture)

// Registry maps (Kind, Direction) slots to ordered callbacks. It is filled during setup and
// sealed when the owning sensor is armed; after that Dispatch reads it without locking.
type Registry struct {
	slots    [numKinds][numDirections][]Callback
	count    int
	capacity int
	sealed   atomic.Bool

	diag   *Diagnostics
	logger logging.Logger
}

// NewRegistry returns an empty registry. A capacity of zero means unbounded.
func NewRegistry(capacity int, diag *Diagnostics, logger logging.Logger) *Registry {
	if diag == nil {
		diag = &Diagnostics{}
	}
	return &Registry{capacity: capacity, diag: diag, logger: logger}
}

// Register appends cb to the (kind, dir) slot. dir must be a planar direction or Any.
func (r *Registry) Register(kind Kind, dir Direction, cb Callback) error {
	if r.sealed.Load() {
		return ErrRegistrySealed
	}
	if kind != Single && kind != Double {
		return errors.Errorf("cannot register for tap kind %d", kind)
	}
	if !dir.IsPlanar() && dir != Any {
		return errors.Wrapf(ErrInvalidDirection, "cannot register for %s taps", dir)
	}
	if cb == nil {
		return errors.New("cannot register a nil callback")
	}
	if r.capacity > 0 && r.count >= r.capacity {
		return NewSetupFailure(
			"register trigger",
			errors.Wrapf(ErrRegistryOverflow, "capacity %d", r.capacity))
	}
	r.slots[kind][dir] = append(r.slots[kind][dir], cb)
	r.count++
	return nil
}

// Seal stops any further registration.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

// Len returns how many callbacks have been registered.
func (r *Registry) Len() int {
	return r.count
}

// Dispatch calls every callback registered for the gesture's exact direction, then every
// callback registered for Any, each group in registration order. It returns how many
// callbacks ran. A gesture nobody subscribed to is dropped.
func (r *Registry) Dispatch(g Gesture) int {
	if g.Kind != Single && g.Kind != Double {
		return 0
	}
	var directional []Callback
	if g.Direction.IsPlanar() {
		directional = r.slots[g.Kind][g.Direction]
	}
	anyDir := r.slots[g.Kind][Any]

	if len(directional) == 0 && len(anyDir) == 0 {
		r.diag.Dropped.Inc()
		if r.logger != nil {
			r.logger.Debugw("no triggers registered, dropping gesture", "gesture", g.String())
		}
		return 0
	}
	for _, cb := range directional {
		r.invoke(cb, g)
	}
	for _, cb := range anyDir {
		r.invoke(cb, g)
	}
	return len(directional) + len(anyDir)
}

func (r *Registry) invoke(cb Callback, g Gesture) {
	defer func() {
		if err := recover(); err != nil {
			r.diag.CallbackPanics.Inc()
			if r.logger != nil {
				r.logger.Errorw("tap trigger panicked", "gesture", g.String(), "error", err)
			}
		}
	}()
	cb(g)
}
