package board

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"
)

func nowNanosecondsTest() uint64 {
	return uint64(time.Now().UnixNano())
}

func TestBasicDigitalInterrupt(t *testing.T) {
	ctx := context.Background()
	i := NewBasicDigitalInterrupt("int1")
	test.That(t, i.Name(), test.ShouldEqual, "int1")

	val, err := i.Value(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, val, test.ShouldEqual, 0)

	test.That(t, i.Tick(ctx, true, nowNanosecondsTest()), test.ShouldBeNil)
	val, err = i.Value(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, val, test.ShouldEqual, 1)

	c := make(chan Tick, 1)
	i.AddCallback(c)

	timeNanoSec := nowNanosecondsTest()
	test.That(t, i.Tick(ctx, false, timeNanoSec), test.ShouldBeNil)
	v := <-c
	test.That(t, v.High, test.ShouldBeFalse)
	test.That(t, v.Name, test.ShouldEqual, "int1")
	test.That(t, v.TimestampNanosec, test.ShouldEqual, timeNanoSec)

	i.RemoveCallback(c)
	test.That(t, i.Tick(ctx, true, nowNanosecondsTest()), test.ShouldBeNil)
	test.That(t, c, test.ShouldBeEmpty)

	val, err = i.Value(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, val, test.ShouldEqual, 3)
}

func TestBasicDigitalInterruptCancelled(t *testing.T) {
	i := NewBasicDigitalInterrupt("int1")
	c := make(chan Tick)
	i.AddCallback(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := i.Tick(ctx, true, nowNanosecondsTest())
	test.That(t, err, test.ShouldBeError, context.Canceled)
}
