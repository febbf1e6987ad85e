package tap

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/tapsense/logging"
)

const testWindow = 200 * time.Millisecond

type gestureRecorder struct {
	mu       sync.Mutex
	gestures []Gesture
	ch       chan Gesture
}

func newGestureRecorder() *gestureRecorder {
	return &gestureRecorder{ch: make(chan Gesture, 16)}
}

func (r *gestureRecorder) emit(g Gesture) {
	r.mu.Lock()
	r.gestures = append(r.gestures, g)
	r.mu.Unlock()
	r.ch <- g
}

func (r *gestureRecorder) all() []Gesture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Gesture(nil), r.gestures...)
}

// next waits for the next gesture. Timer callbacks on the mock clock run on their own
// goroutine, so emissions from a deadline are not visible synchronously.
func (r *gestureRecorder) next(t *testing.T) Gesture {
	t.Helper()
	select {
	case g := <-r.ch:
		return g
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a gesture")
		return Gesture{}
	}
}

func newTestClassifier(t *testing.T, policy DeadlinePolicy) (*Classifier, *clock.Mock, *gestureRecorder, *Diagnostics) {
	t.Helper()
	mock := clock.NewMock()
	rec := newGestureRecorder()
	diag := &Diagnostics{}
	c, err := NewClassifier(ClassifierConfig{
		Window:      testWindow,
		Policy:      policy,
		Clock:       mock,
		Diagnostics: diag,
	}, rec.emit, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return c, mock, rec, diag
}

func tapAt(mock *clock.Mock, dir Direction) RawTapEvent {
	return RawTapEvent{Timestamp: mock.Now(), Direction: dir}
}

func TestNewClassifierValidation(t *testing.T) {
	emit := func(Gesture) {}
	_, err := NewClassifier(ClassifierConfig{Window: 0}, emit, nil)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewClassifier(ClassifierConfig{Window: time.Second, Policy: DeadlinePolicy(7)}, emit, nil)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewClassifier(ClassifierConfig{Window: time.Second}, nil, nil)
	test.That(t, err, test.ShouldNotBeNil)

	c, err := NewClassifier(ClassifierConfig{Window: time.Second}, emit, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Window(), test.ShouldEqual, time.Second)
}

func TestClassifierTimerPolicy(t *testing.T) {
	t.Run("two taps inside the window make one double with the second direction", func(t *testing.T) {
		c, mock, rec, diag := newTestClassifier(t, DeadlineTimer)
		start := mock.Now()

		c.Observe(tapAt(mock, Up))
		mock.Add(150 * time.Millisecond)
		c.Observe(tapAt(mock, Down))

		g := rec.next(t)
		test.That(t, g.Kind, test.ShouldEqual, Double)
		test.That(t, g.Direction, test.ShouldEqual, Down)
		test.That(t, g.Timestamp, test.ShouldEqual, start.Add(150*time.Millisecond))

		// The first tap's deadline must not produce a single afterwards.
		mock.Add(time.Second)
		test.That(t, rec.all(), test.ShouldHaveLength, 1)
		test.That(t, diag.Doubles.Load(), test.ShouldEqual, 1)
		test.That(t, diag.Singles.Load(), test.ShouldEqual, 0)
	})

	t.Run("a lone tap becomes a single once the window closes", func(t *testing.T) {
		c, mock, rec, _ := newTestClassifier(t, DeadlineTimer)
		start := mock.Now()

		c.Observe(tapAt(mock, Left))
		mock.Add(testWindow - time.Millisecond)
		test.That(t, rec.all(), test.ShouldBeEmpty)

		mock.Add(time.Millisecond + DeadlineGranule)
		g := rec.next(t)
		test.That(t, g.Kind, test.ShouldEqual, Single)
		test.That(t, g.Direction, test.ShouldEqual, Left)
		test.That(t, g.Timestamp, test.ShouldEqual, start.Add(testWindow))
	})

	t.Run("a second tap exactly on the boundary is a double", func(t *testing.T) {
		c, mock, rec, _ := newTestClassifier(t, DeadlineTimer)

		c.Observe(tapAt(mock, Right))
		mock.Add(testWindow)
		c.Observe(tapAt(mock, Up))

		g := rec.next(t)
		test.That(t, g.Kind, test.ShouldEqual, Double)
		test.That(t, g.Direction, test.ShouldEqual, Up)
		mock.Add(time.Second)
		test.That(t, rec.all(), test.ShouldHaveLength, 1)
	})

	t.Run("a second tap one millisecond late makes two singles", func(t *testing.T) {
		c, mock, rec, _ := newTestClassifier(t, DeadlineTimer)

		c.Observe(tapAt(mock, Right))
		mock.Add(testWindow + time.Millisecond)
		c.Observe(tapAt(mock, Up))

		first := rec.next(t)
		test.That(t, first.Kind, test.ShouldEqual, Single)
		test.That(t, first.Direction, test.ShouldEqual, Right)

		mock.Add(testWindow + DeadlineGranule)
		second := rec.next(t)
		test.That(t, second.Kind, test.ShouldEqual, Single)
		test.That(t, second.Direction, test.ShouldEqual, Up)
		test.That(t, rec.all(), test.ShouldHaveLength, 2)
	})

	t.Run("a late tap can still start a double", func(t *testing.T) {
		c, mock, rec, _ := newTestClassifier(t, DeadlineTimer)

		c.Observe(tapAt(mock, Left))
		mock.Add(500 * time.Millisecond)
		c.Observe(tapAt(mock, Up))
		mock.Add(100 * time.Millisecond)
		c.Observe(tapAt(mock, Right))

		first := rec.next(t)
		test.That(t, first.Kind, test.ShouldEqual, Single)
		test.That(t, first.Direction, test.ShouldEqual, Left)
		second := rec.next(t)
		test.That(t, second.Kind, test.ShouldEqual, Double)
		test.That(t, second.Direction, test.ShouldEqual, Right)
	})

	t.Run("unknown direction taps still classify", func(t *testing.T) {
		c, mock, rec, _ := newTestClassifier(t, DeadlineTimer)

		c.Observe(tapAt(mock, Unknown))
		mock.Add(50 * time.Millisecond)
		c.Observe(tapAt(mock, Unknown))

		g := rec.next(t)
		test.That(t, g.Kind, test.ShouldEqual, Double)
		test.That(t, g.Direction, test.ShouldEqual, Unknown)
	})
}

func TestClassifierHardwareSecondTap(t *testing.T) {
	for _, policy := range []DeadlinePolicy{DeadlineTimer, DeadlineLazy} {
		t.Run("flagged tap after the window starts a new gesture with "+policy.String(), func(t *testing.T) {
			c, mock, rec, _ := newTestClassifier(t, policy)
			start := mock.Now()

			c.Observe(tapAt(mock, Up))
			mock.Add(testWindow + 10*time.Millisecond)
			ev := tapAt(mock, Right)
			ev.SecondTap = true
			c.Observe(ev)

			g := rec.next(t)
			test.That(t, g.Kind, test.ShouldEqual, Single)
			test.That(t, g.Direction, test.ShouldEqual, Up)
			test.That(t, g.Timestamp, test.ShouldEqual, start.Add(testWindow))

			mock.Add(testWindow + DeadlineGranule)
			c.Poll(mock.Now())
			g = rec.next(t)
			test.That(t, g.Kind, test.ShouldEqual, Single)
			test.That(t, g.Direction, test.ShouldEqual, Right)
			test.That(t, rec.all(), test.ShouldHaveLength, 2)
		})
	}

	t.Run("flagged second tap inside the window is a double", func(t *testing.T) {
		c, mock, rec, _ := newTestClassifier(t, DeadlineTimer)

		c.Observe(tapAt(mock, Up))
		mock.Add(testWindow)
		ev := tapAt(mock, Left)
		ev.SecondTap = true
		c.Observe(ev)

		g := rec.next(t)
		test.That(t, g.Kind, test.ShouldEqual, Double)
		test.That(t, g.Direction, test.ShouldEqual, Left)
		mock.Add(time.Second)
		test.That(t, rec.all(), test.ShouldHaveLength, 1)
	})

	t.Run("flagged second tap with nothing pending is a double", func(t *testing.T) {
		c, mock, rec, _ := newTestClassifier(t, DeadlineTimer)

		ev := tapAt(mock, Down)
		ev.SecondTap = true
		c.Observe(ev)

		g := rec.next(t)
		test.That(t, g.Kind, test.ShouldEqual, Double)
		test.That(t, g.Direction, test.ShouldEqual, Down)
		mock.Add(time.Second)
		test.That(t, rec.all(), test.ShouldHaveLength, 1)
	})
}

func TestClassifierLazyPolicy(t *testing.T) {
	t.Run("nothing happens until the next poll after the deadline", func(t *testing.T) {
		c, mock, rec, _ := newTestClassifier(t, DeadlineLazy)
		start := mock.Now()

		c.Observe(tapAt(mock, Left))
		mock.Add(time.Second)
		test.That(t, rec.all(), test.ShouldBeEmpty)

		c.Poll(start.Add(testWindow))
		test.That(t, rec.all(), test.ShouldBeEmpty)

		c.Poll(mock.Now())
		gestures := rec.all()
		test.That(t, gestures, test.ShouldHaveLength, 1)
		test.That(t, gestures[0].Kind, test.ShouldEqual, Single)
		test.That(t, gestures[0].Direction, test.ShouldEqual, Left)
		test.That(t, gestures[0].Timestamp, test.ShouldEqual, start.Add(testWindow))
	})

	t.Run("the next tap resolves the stale tap before being classified", func(t *testing.T) {
		c, mock, rec, _ := newTestClassifier(t, DeadlineLazy)

		c.Observe(tapAt(mock, Left))
		mock.Add(testWindow + time.Millisecond)
		c.Observe(tapAt(mock, Right))

		gestures := rec.all()
		test.That(t, gestures, test.ShouldHaveLength, 1)
		test.That(t, gestures[0], test.ShouldResemble, Gesture{
			Kind: Single, Direction: Left, Timestamp: gestures[0].Timestamp,
		})

		mock.Add(50 * time.Millisecond)
		c.Observe(tapAt(mock, Up))
		gestures = rec.all()
		test.That(t, gestures, test.ShouldHaveLength, 2)
		test.That(t, gestures[1].Kind, test.ShouldEqual, Double)
		test.That(t, gestures[1].Direction, test.ShouldEqual, Up)
	})

	t.Run("boundary is inclusive", func(t *testing.T) {
		c, mock, rec, _ := newTestClassifier(t, DeadlineLazy)

		c.Observe(tapAt(mock, Left))
		mock.Add(testWindow)
		c.Poll(mock.Now())
		c.Observe(tapAt(mock, Down))

		gestures := rec.all()
		test.That(t, gestures, test.ShouldHaveLength, 1)
		test.That(t, gestures[0].Kind, test.ShouldEqual, Double)
		test.That(t, gestures[0].Direction, test.ShouldEqual, Down)
	})
}

func TestClassifierClose(t *testing.T) {
	c, mock, rec, _ := newTestClassifier(t, DeadlineTimer)

	c.Observe(tapAt(mock, Up))
	c.Close()

	gestures := rec.all()
	test.That(t, gestures, test.ShouldHaveLength, 1)
	test.That(t, gestures[0].Kind, test.ShouldEqual, Single)
	test.That(t, gestures[0].Direction, test.ShouldEqual, Up)

	// Closed classifiers ignore input and their timers stay quiet.
	c.Observe(tapAt(mock, Down))
	mock.Add(time.Second)
	c.Poll(mock.Now())
	c.Close()
	test.That(t, rec.all(), test.ShouldHaveLength, 1)
}

func TestClassifierDeterministicSequence(t *testing.T) {
	run := func() []Gesture {
		c, mock, rec, _ := newTestClassifier(t, DeadlineLazy)
		steps := []struct {
			after time.Duration
			dir   Direction
		}{
			{0, Up},
			{100 * time.Millisecond, Down},
			{500 * time.Millisecond, Left},
			{201 * time.Millisecond, Right},
			{200 * time.Millisecond, Unknown},
		}
		for _, step := range steps {
			mock.Add(step.after)
			c.Observe(tapAt(mock, step.dir))
		}
		mock.Add(time.Second)
		c.Poll(mock.Now())
		return rec.all()
	}

	first := run()
	test.That(t, first, test.ShouldHaveLength, 3)
	test.That(t, first[0].Kind, test.ShouldEqual, Double)
	test.That(t, first[0].Direction, test.ShouldEqual, Down)
	test.That(t, first[1].Kind, test.ShouldEqual, Single)
	test.That(t, first[1].Direction, test.ShouldEqual, Left)
	test.That(t, first[2].Kind, test.ShouldEqual, Double)
	test.That(t, first[2].Direction, test.ShouldEqual, Unknown)
	test.That(t, run(), test.ShouldResemble, first)
}
