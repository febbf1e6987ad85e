package tap

import (
	"fmt"
	"time"
)

// A RawTapEvent is a single tap as seen by the sampler. It is handed to the Classifier and
// never stored past that call.
type RawTapEvent struct {
	Timestamp time.Time
	Direction Direction
	// Magnitude is the raw reading of the dominant axis.
	Magnitude int32
	// SecondTap is set when the sensor itself flagged this tap as the second of a pair.
	SecondTap bool
}

// A Gesture is a classified tap sequence, ready for dispatch.
type Gesture struct {
	Kind      Kind
	Direction Direction
	// Timestamp is when the gesture was decided: the second tap of a double, or the close of
	// the window for a single.
	Timestamp time.Time
}

func (g Gesture) String() string {
	return fmt.Sprintf("%s tap %s", g.Kind, g.Direction)
}

// A Sample is the content of a sensor's tap status registers after an interrupt.
type Sample struct {
	// Detected is false for spurious interrupts.
	Detected  bool
	SecondTap bool
	// Axes is the change on each axis relative to rest.
	Axes AxisReading
}

// AxisReading holds one signed value per accelerometer axis, in raw sensor units.
type AxisReading struct {
	X, Y, Z int32
}

// Sub returns the per axis difference r - o.
func (r AxisReading) Sub(o AxisReading) AxisReading {
	return AxisReading{X: r.X - o.X, Y: r.Y - o.Y, Z: r.Z - o.Z}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// ResolveDirection picks the axis with the largest absolute change and maps it to a planar
// direction: +X is Right, -X is Left, +Y is Up, -Y is Down. A dominant Z axis has no planar
// direction and yields Unknown, as does a reading with no change at all.
//
// Ties are broken by fixed priority X, then Y, then Z, and are reported as ambiguous so the
// caller can record them.
func ResolveDirection(delta AxisReading) (dir Direction, magnitude int32, ambiguous bool) {
	mags := [3]int32{abs32(delta.X), abs32(delta.Y), abs32(delta.Z)}
	best := 0
	for axis := 1; axis < len(mags); axis++ {
		if mags[axis] > mags[best] {
			best = axis
		}
	}
	if mags[best] == 0 {
		return Unknown, 0, false
	}
	for axis, m := range mags {
		if axis != best && m == mags[best] {
			ambiguous = true
			break
		}
	}

	switch best {
	case 0:
		if delta.X > 0 {
			return Right, delta.X, ambiguous
		}
		return Left, delta.X, ambiguous
	case 1:
		if delta.Y > 0 {
			return Up, delta.Y, ambiguous
		}
		return Down, delta.Y, ambiguous
	default:
		return Unknown, delta.Z, ambiguous
	}
}

// Impulse returns the axis change a tap in dir of the given magnitude produces, such that
// ResolveDirection maps it back to dir. Non-planar directions land on the Z axis.
func Impulse(dir Direction, magnitude int32) AxisReading {
	switch dir {
	case Right:
		return AxisReading{X: magnitude}
	case Left:
		return AxisReading{X: -magnitude}
	case Up:
		return AxisReading{Y: magnitude}
	case Down:
		return AxisReading{Y: -magnitude}
	default:
		return AxisReading{Z: magnitude}
	}
}
