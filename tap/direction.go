// Package tap turns raw tap interrupts from an accelerometer into single and double tap
// gestures, each attributed to one of four planar directions, and dispatches them to
// registered callbacks.
//
// Nothing in this package talks to hardware. A driver samples the sensor, hands every
// qualifying tap to a Classifier as a RawTapEvent, and the Classifier emits at most one
// Gesture per completed tap sequence into a Registry.
package tap

import (
	"strings"

	"github.com/pkg/errors"
)

// Direction is the planar direction attributed to a tap.
type Direction int

// Unknown is only ever reported by the sampler. Any is only ever used as a registration slot
// and matches every direction, Unknown included.
const (
	Unknown Direction = iota
	Up
	Down
	Left
	Right
	Any

	numDirections = int(Any) + 1
)

var directionNames = [numDirections]string{
	Unknown: "unknown",
	Up:      "up",
	Down:    "down",
	Left:    "left",
	Right:   "right",
	Any:     "any",
}

func (d Direction) String() string {
	if d < Unknown || d > Any {
		return "invalid"
	}
	return directionNames[d]
}

// IsPlanar reports whether d is one of Up, Down, Left or Right.
func (d Direction) IsPlanar() bool {
	switch d {
	case Up, Down, Left, Right:
		return true
	case Unknown, Any:
		return false
	default:
		return false
	}
}

// ParseDirection parses the lowercase name of a direction as used in config files.
func ParseDirection(name string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "any":
		return Any, nil
	case "unknown":
		return Unknown, nil
	default:
		return Unknown, errors.Wrapf(ErrInvalidDirection, "%q", name)
	}
}

// Kind distinguishes single taps from double taps.
type Kind int

// The two gesture kinds.
const (
	Single Kind = iota
	Double

	numKinds = int(Double) + 1
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case Double:
		return "double"
	default:
		return "invalid"
	}
}

// ParseKind parses "single" or "double".
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "single":
		return Single, nil
	case "double":
		return Double, nil
	default:
		return Single, errors.Errorf("unknown tap kind %q", name)
	}
}
