package tap

import "go.uber.org/atomic"

// Diagnostics counts what a sensor has seen. All counters are safe for concurrent use.
type Diagnostics struct {
	Interrupts          atomic.Uint64
	Spurious            atomic.Uint64
	RawTaps             atomic.Uint64
	AmbiguousDirections atomic.Uint64
	Singles             atomic.Uint64
	Doubles             atomic.Uint64
	Dropped             atomic.Uint64
	CallbackPanics      atomic.Uint64
}

// Stats is a point in time copy of Diagnostics.
type Stats struct {
	Interrupts          uint64 `json:"interrupts"`
	Spurious            uint64 `json:"spurious"`
	RawTaps             uint64 `json:"raw_taps"`
	AmbiguousDirections uint64 `json:"ambiguous_directions"`
	Singles             uint64 `json:"singles"`
	Doubles             uint64 `json:"doubles"`
	Dropped             uint64 `json:"dropped"`
	CallbackPanics      uint64 `json:"callback_panics"`
}

// Snapshot returns the current counter values.
func (d *Diagnostics) Snapshot() Stats {
	return Stats{
		Interrupts:          d.Interrupts.Load(),
		Spurious:            d.Spurious.Load(),
		RawTaps:             d.RawTaps.Load(),
		AmbiguousDirections: d.AmbiguousDirections.Load(),
		Singles:             d.Singles.Load(),
		Doubles:             d.Doubles.Load(),
		Dropped:             d.Dropped.Load(),
		CallbackPanics:      d.CallbackPanics.Load(),
	}
}

func (d *Diagnostics) countGesture(k Kind) {
	if d == nil {
		return
	}
	switch k {
	case Single:
		d.Singles.Inc()
	case Double:
		d.Doubles.Inc()
	}
}
