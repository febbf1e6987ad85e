package tap

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/tapsense/logging"
)

// DeadlinePolicy selects how an unanswered first tap is turned into a single tap.
type DeadlinePolicy int

const (
	// DeadlineTimer arms a timer when the first tap arrives. The single tap is emitted when
	// it fires, without waiting for any further input.
	DeadlineTimer DeadlinePolicy = iota
	// DeadlineLazy never arms a timer. The pending tap is resolved by the next call to
	// Observe or Poll that happens after the window has closed.
	DeadlineLazy
)

func (p DeadlinePolicy) String() string {
	switch p {
	case DeadlineTimer:
		return "timer"
	case DeadlineLazy:
		return "lazy"
	default:
		return "invalid"
	}
}

// ParseDeadlinePolicy parses "timer" or "lazy". The empty string selects DeadlineTimer.
func ParseDeadlinePolicy(name string) (DeadlinePolicy, error) {
	switch name {
	case "", "timer":
		return DeadlineTimer, nil
	case "lazy":
		return DeadlineLazy, nil
	default:
		return DeadlineTimer, errors.Errorf("unknown deadline policy %q", name)
	}
}

// DeadlineGranule is how far past the window the timer fires. A second tap stamped exactly
// at the end of the window still counts as a double tap.
const DeadlineGranule = time.Millisecond

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	Window time.Duration
	Policy DeadlinePolicy
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Diagnostics may be nil.
	Diagnostics *Diagnostics
}

type pendingGesture struct {
	firstTapTimestamp time.Time
	firstTapDirection Direction
	generation        uint64
}

// Classifier is the single/double tap state machine. It is Idle while pending is nil and
// AwaitingSecondTap otherwise.
//
// Emit is called with the classifier's lock held, so it must not call back into the
// classifier.
type Classifier struct {
	window time.Duration
	policy DeadlinePolicy
	clock  clock.Clock
	diag   *Diagnostics
	emit   func(Gesture)
	logger logging.Logger

	mu         sync.Mutex
	pending    *pendingGesture
	timer      *clock.Timer
	generation uint64
	closed     bool
	// expiredAt is the first tap timestamp of the last gesture that expired into a single,
	// until another tap arrives.
	expiredAt time.Time
}

// NewClassifier returns an idle classifier that sends every gesture to emit.
func NewClassifier(cfg ClassifierConfig, emit func(Gesture), logger logging.Logger) (*Classifier, error) {
	if cfg.Window <= 0 {
		return nil, errors.Errorf("double tap window must be positive, got %s", cfg.Window)
	}
	if cfg.Policy != DeadlineTimer && cfg.Policy != DeadlineLazy {
		return nil, errors.Errorf("unknown deadline policy %d", cfg.Policy)
	}
	if emit == nil {
		return nil, errors.New("classifier needs somewhere to emit gestures")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	diag := cfg.Diagnostics
	if diag == nil {
		diag = &Diagnostics{}
	}
	return &Classifier{
		window: cfg.Window,
		policy: cfg.Policy,
		clock:  clk,
		diag:   diag,
		emit:   emit,
		logger: logger,
	}, nil
}

// Window returns the double tap window.
func (c *Classifier) Window() time.Duration {
	return c.window
}

// Observe feeds one raw tap into the state machine.
func (c *Classifier) Observe(ev RawTapEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.diag.RawTaps.Inc()

	if c.pending != nil {
		if !ev.Timestamp.After(c.pending.firstTapTimestamp.Add(c.window)) {
			c.expiredAt = time.Time{}
			c.resolveLocked(Gesture{Kind: Double, Direction: ev.Direction, Timestamp: ev.Timestamp})
			return
		}
		// The window closed before this tap but nothing has resolved it yet.
		c.expireLocked()
	}

	if ev.SecondTap && !c.partnerExpiredLocked(ev) {
		// The sensor saw both taps but we missed the first interrupt.
		c.expiredAt = time.Time{}
		c.resolveLocked(Gesture{Kind: Double, Direction: ev.Direction, Timestamp: ev.Timestamp})
		return
	}
	c.expiredAt = time.Time{}
	c.armLocked(ev)
}

// partnerExpiredLocked reports whether the tap the sensor paired ev with was already emitted
// as a single. Such a tap came after the window and starts a new gesture.
func (c *Classifier) partnerExpiredLocked(ev RawTapEvent) bool {
	if c.expiredAt.IsZero() {
		return false
	}
	if ev.Timestamp.Sub(c.expiredAt) > 2*c.window {
		return false
	}
	if c.logger != nil {
		c.logger.Debugw("second tap flag arrived after the window closed", "after", ev.Timestamp.Sub(c.expiredAt).String())
	}
	return true
}

// Poll resolves a pending tap whose window closed before now. It is how the lazy policy
// makes progress without new taps, and is harmless under the timer policy.
func (c *Classifier) Poll(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pending == nil {
		return
	}
	if now.Sub(c.pending.firstTapTimestamp) > c.window {
		c.expireLocked()
	}
}

// Close stops the classifier. A tap still waiting for its partner is emitted as a single tap
// first, so an armed deadline never disappears silently.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.pending != nil {
		c.expireLocked()
	}
	c.closed = true
}

func (c *Classifier) armLocked(ev RawTapEvent) {
	c.generation++
	c.pending = &pendingGesture{
		firstTapTimestamp: ev.Timestamp,
		firstTapDirection: ev.Direction,
		generation:        c.generation,
	}
	if c.policy != DeadlineTimer {
		return
	}
	gen := c.generation
	delay := ev.Timestamp.Add(c.window + DeadlineGranule).Sub(c.clock.Now())
	c.timer = c.clock.AfterFunc(delay, func() { c.onDeadline(gen) })
}

func (c *Classifier) onDeadline(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A second tap, a lazy resolution or Close may have beaten the timer here.
	if c.closed || c.pending == nil || c.pending.generation != gen {
		return
	}
	c.expireLocked()
}

func (c *Classifier) expireLocked() {
	p := c.pending
	c.expiredAt = p.firstTapTimestamp
	c.resolveLocked(Gesture{
		Kind:      Single,
		Direction: p.firstTapDirection,
		Timestamp: p.firstTapTimestamp.Add(c.window),
	})
}

func (c *Classifier) resolveLocked(g Gesture) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
	c.diag.countGesture(g.Kind)
	if c.logger != nil {
		c.logger.Debugw("tap gesture", "kind", g.Kind.String(), "direction", g.Direction.String())
	}
	c.emit(g)
}
