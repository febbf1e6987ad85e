package tap

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestResolveDirection(t *testing.T) {
	for _, tc := range []struct {
		name      string
		delta     AxisReading
		dir       Direction
		magnitude int32
		ambiguous bool
	}{
		{"positive x", AxisReading{X: 900, Y: 100, Z: -50}, Right, 900, false},
		{"negative x", AxisReading{X: -900, Y: 100}, Left, -900, false},
		{"positive y", AxisReading{X: 20, Y: 300, Z: 10}, Up, 300, false},
		{"negative y", AxisReading{X: 20, Y: -300, Z: 299}, Down, -300, false},
		{"z dominant", AxisReading{X: 20, Y: -30, Z: 800}, Unknown, 800, false},
		{"no change", AxisReading{}, Unknown, 0, false},
		{"x and y tie goes to x", AxisReading{X: -500, Y: 500}, Left, -500, true},
		{"y and z tie goes to y", AxisReading{X: 1, Y: 70, Z: -70}, Up, 70, true},
		{"three way tie goes to x", AxisReading{X: 40, Y: -40, Z: 40}, Right, 40, true},
		{"tie below the max is not ambiguous", AxisReading{X: 10, Y: 10, Z: 400}, Unknown, 400, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir, magnitude, ambiguous := ResolveDirection(tc.delta)
			test.That(t, dir, test.ShouldEqual, tc.dir)
			test.That(t, magnitude, test.ShouldEqual, tc.magnitude)
			test.That(t, ambiguous, test.ShouldEqual, tc.ambiguous)
		})
	}
}

func TestAxisReadingSub(t *testing.T) {
	got := AxisReading{X: 10, Y: -5, Z: 16384}.Sub(AxisReading{X: 2, Y: 5, Z: 16000})
	test.That(t, got, test.ShouldResemble, AxisReading{X: 8, Y: -10, Z: 384})
}

func TestParseDirection(t *testing.T) {
	for _, d := range []Direction{Unknown, Up, Down, Left, Right, Any} {
		parsed, err := ParseDirection(d.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, d)
	}
	parsed, err := ParseDirection(" UP ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, Up)

	_, err = ParseDirection("sideways")
	test.That(t, errors.Is(err, ErrInvalidDirection), test.ShouldBeTrue)
	test.That(t, Direction(99).String(), test.ShouldEqual, "invalid")

	test.That(t, Up.IsPlanar(), test.ShouldBeTrue)
	test.That(t, Any.IsPlanar(), test.ShouldBeFalse)
	test.That(t, Unknown.IsPlanar(), test.ShouldBeFalse)
}

func TestParseKindAndPolicy(t *testing.T) {
	k, err := ParseKind("Double")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, k, test.ShouldEqual, Double)
	_, err = ParseKind("triple")
	test.That(t, err, test.ShouldNotBeNil)

	p, err := ParseDeadlinePolicy("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldEqual, DeadlineTimer)
	p, err = ParseDeadlinePolicy("lazy")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.String(), test.ShouldEqual, "lazy")
	_, err = ParseDeadlinePolicy("eager")
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, Gesture{Kind: Single, Direction: Left}.String(), test.ShouldEqual, "single tap left")
}

func TestSetupError(t *testing.T) {
	cause := errors.New("i2c nack")
	err := NewSetupFailure("write MOT_THR", cause)
	test.That(t, errors.Is(err, ErrSetupFailure), test.ShouldBeTrue)
	test.That(t, errors.Is(err, cause), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "write MOT_THR")
	test.That(t, NewSetupFailure("noop", nil), test.ShouldBeNil)
}

func TestImpulseRoundTrips(t *testing.T) {
	for _, dir := range []Direction{Up, Down, Left, Right} {
		got, magnitude, ambiguous := ResolveDirection(Impulse(dir, 900))
		test.That(t, got, test.ShouldEqual, dir)
		test.That(t, abs32(magnitude), test.ShouldEqual, 900)
		test.That(t, ambiguous, test.ShouldBeFalse)
	}
	got, _, _ := ResolveDirection(Impulse(Unknown, 900))
	test.That(t, got, test.ShouldEqual, Unknown)
}
