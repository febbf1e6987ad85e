package board

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// Tick represents a signal received by an interrupt pin. This signal is communicated
// via registered channel to the various drivers. Depending on board implementation there may be a
// wraparound in timestamp values past 4294967295000 nanoseconds (~72 minutes) if the value
// was originally in microseconds as a 32-bit integer. The timestamp in nanoseconds of the
// tick SHOULD ONLY BE USED FOR CALCULATING THE TIME ELAPSED BETWEEN CONSECUTIVE TICKS AND NOT
// AS AN ABSOLUTE TIMESTAMP.
type Tick struct {
	Name             string
	High             bool
	TimestampNanosec uint64
}

// A DigitalInterrupt delivers the edges seen on one pin.
type DigitalInterrupt interface {
	Name() string
	// Value returns how many edges have been seen.
	Value(ctx context.Context) (int64, error)
	// AddCallback adds a channel that receives every subsequent Tick.
	AddCallback(ch chan Tick)
	// RemoveCallback stops delivery to ch.
	RemoveCallback(ch chan Tick)
}

// BasicDigitalInterrupt counts edges and fans them out to callbacks. Board implementations
// feed it from whatever watches the pin.
type BasicDigitalInterrupt struct {
	name  string
	count atomic.Int64

	mu        sync.Mutex
	callbacks []chan Tick
}

// NewBasicDigitalInterrupt returns an interrupt with no callbacks.
func NewBasicDigitalInterrupt(name string) *BasicDigitalInterrupt {
	return &BasicDigitalInterrupt{name: name}
}

// Name returns the interrupt's name.
func (i *BasicDigitalInterrupt) Name() string {
	return i.name
}

// Value returns the number of edges seen so far.
func (i *BasicDigitalInterrupt) Value(ctx context.Context) (int64, error) {
	return i.count.Load(), nil
}

// Tick records an edge and hands it to each callback in turn. It blocks until every
// callback has taken the tick or ctx is done.
func (i *BasicDigitalInterrupt) Tick(ctx context.Context, high bool, nanoseconds uint64) error {
	i.count.Inc()

	i.mu.Lock()
	callbacks := append([]chan Tick(nil), i.callbacks...)
	i.mu.Unlock()

	tick := Tick{Name: i.name, High: high, TimestampNanosec: nanoseconds}
	for _, c := range callbacks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c <- tick:
		}
	}
	return nil
}

// AddCallback adds a listener for interrupts.
func (i *BasicDigitalInterrupt) AddCallback(ch chan Tick) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.callbacks = append(i.callbacks, ch)
}

// RemoveCallback removes a listener for interrupts.
func (i *BasicDigitalInterrupt) RemoveCallback(ch chan Tick) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for idx, c := range i.callbacks {
		if c == ch {
			i.callbacks = append(i.callbacks[:idx], i.callbacks[idx+1:]...)
			return
		}
	}
}
