// Package tapsensor drives one accelerometer as a tap sensor. It applies the chip's tap
// thresholds, samples the chip whenever its interrupt fires (or on a poll timer), classifies the
// taps into single and double tap gestures, and dispatches those to registered triggers.
package tapsensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/tapsense/components/board"
	"go.viam.com/tapsense/logging"
	"go.viam.com/tapsense/tap"
)

// Chip is the register model of an accelerometer with a tap or motion interrupt.
type Chip interface {
	Name() string
	// Probe checks that the expected device answers on the bus.
	Probe(ctx context.Context) error
	ApplyThresholds(ctx context.Context, sensitivity, duration byte) error
	// ApplyWindow loads the double tap window into the chip if it has one, and reports whether
	// it did.
	ApplyWindow(ctx context.Context, window time.Duration) (bool, error)
	ArmInterrupt(ctx context.Context) error
	// InterruptActiveHigh is the interrupt pin level that means a tap.
	InterruptActiveHigh() bool
	// ReadTapStatus reads the tap status, clearing it on the chip before returning.
	ReadTapStatus(ctx context.Context) (tap.Sample, error)
	Close(ctx context.Context) error
}

// Dependencies are the parts a tap sensor is built from.
type Dependencies struct {
	Chip Chip
	// Interrupt may be nil for polled sensors.
	Interrupt board.DigitalInterrupt
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// TapSensor is one armed or armable tap sensor.
type TapSensor struct {
	conf      Config
	chip      Chip
	interrupt board.DigitalInterrupt
	clock     clock.Clock
	logger    logging.Logger

	diag       *tap.Diagnostics
	registry   *tap.Registry
	classifier *tap.Classifier
	hwWindow   bool

	mu         sync.Mutex
	armed      bool
	closed     bool
	ticks      chan board.Tick
	workers    *utils.StoppableWorkers
	onState    func(bool)
	stateTimer *clock.Timer
}

// NewTapSensor probes the chip and applies its thresholds and window. Any failure is a setup
// failure and leaves the chip as it was at the point of failure; nothing is retried.
func NewTapSensor(ctx context.Context, conf Config, deps Dependencies, logger logging.Logger) (*TapSensor, error) {
	if err := conf.Validate(conf.Name); err != nil {
		return nil, tap.NewSetupFailure("validate config", err)
	}
	if deps.Chip == nil {
		return nil, tap.NewSetupFailure("validate config", errors.New("no chip given"))
	}
	if !conf.Polled() && deps.Interrupt == nil {
		return nil, tap.NewSetupFailure("validate config",
			errors.Errorf("interrupt pin %d has no interrupt", conf.InterruptPin))
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	s := &TapSensor{
		conf:      conf,
		chip:      deps.Chip,
		interrupt: deps.Interrupt,
		clock:     clk,
		logger:    logger,
		diag:      &tap.Diagnostics{},
	}
	s.registry = tap.NewRegistry(conf.MaxTriggers, s.diag, logger)

	classifier, err := tap.NewClassifier(tap.ClassifierConfig{
		Window:      conf.DoubleTapWindow,
		Policy:      conf.DeadlinePolicy,
		Clock:       clk,
		Diagnostics: s.diag,
	}, s.dispatch, logger)
	if err != nil {
		return nil, tap.NewSetupFailure("create classifier", err)
	}
	s.classifier = classifier

	if err := s.chip.Probe(ctx); err != nil {
		return nil, tap.NewSetupFailure("probe "+s.chip.Name(), err)
	}
	if err := s.chip.ApplyThresholds(ctx, conf.Sensitivity, conf.Duration); err != nil {
		return nil, tap.NewSetupFailure("apply thresholds", err)
	}
	s.hwWindow, err = s.chip.ApplyWindow(ctx, conf.DoubleTapWindow)
	if err != nil {
		return nil, tap.NewSetupFailure("apply double tap window", err)
	}

	source := "interrupt pin"
	if conf.Polled() {
		source = "poll " + conf.PollInterval.String()
	}
	logger.Infow("tap sensor configured",
		"chip", s.chip.Name(),
		"source", source,
		"interrupt_pin", conf.InterruptPin,
		"sensitivity", fmt.Sprintf("0x%02X", conf.Sensitivity),
		"duration", fmt.Sprintf("0x%02X", conf.Duration),
		"double_tap_window", conf.DoubleTapWindow.String(),
		"hardware_window", s.hwWindow,
		"deadline_policy", conf.DeadlinePolicy.String(),
	)
	return s, nil
}

// Name returns the configured sensor name.
func (s *TapSensor) Name() string {
	return s.conf.Name
}

// Register binds cb to taps of kind from dir. dir may be Any. Registration is only possible
// before Arm. Callbacks run with the classifier locked, possibly on a timer goroutine, so
// they must not call Close, CheckDeadline, Poll or HandleInterrupt on this sensor.
func (s *TapSensor) Register(kind tap.Kind, dir tap.Direction, cb tap.Callback) error {
	return s.registry.Register(kind, dir, cb)
}

// SetStateListener sets a hook that sees true on every raw tap and false StatePulse later.
// It must be set before Arm.
func (s *TapSensor) SetStateListener(fn func(bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed {
		return tap.ErrRegistrySealed
	}
	s.onState = fn
	return nil
}

// Arm enables the chip's interrupt, seals the trigger registry and starts sampling. If the
// chip cannot be armed, registration stays open and Arm may be called again.
func (s *TapSensor) Arm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("tap sensor is closed")
	}
	if s.armed {
		return nil
	}
	if err := s.chip.ArmInterrupt(ctx); err != nil {
		return tap.NewSetupFailure("arm interrupt", err)
	}
	s.registry.Seal()

	s.workers = utils.NewBackgroundStoppableWorkers()
	// Tickers are created here rather than in the workers so none of their ticks are missed.
	if s.conf.Polled() {
		ticker := s.clock.Ticker(s.conf.PollInterval)
		s.workers.Add(func(ctx context.Context) { s.pollLoop(ctx, ticker) })
	} else {
		s.ticks = make(chan board.Tick, 16)
		s.interrupt.AddCallback(s.ticks)
		s.workers.Add(s.interruptLoop)
		if s.conf.DeadlinePolicy == tap.DeadlineLazy {
			ticker := s.clock.Ticker(s.conf.loopInterval())
			s.workers.Add(func(ctx context.Context) { s.deadlineLoop(ctx, ticker) })
		}
	}
	s.armed = true
	s.logger.Infow("tap sensor armed", "triggers", s.registry.Len())
	return nil
}

func (s *TapSensor) interruptLoop(ctx context.Context) {
	activeHigh := s.chip.InterruptActiveHigh()
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-s.ticks:
			// The pin returning to idle is not an interrupt.
			if tick.High != activeHigh {
				continue
			}
			if err := s.HandleInterrupt(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warnw("failed to sample tap sensor", "error", err)
			}
		}
	}
}

func (s *TapSensor) pollLoop(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warnw("failed to poll tap sensor", "error", err)
			}
		}
	}
}

// deadlineLoop resolves expired taps under the lazy policy when no further interrupt comes.
func (s *TapSensor) deadlineLoop(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckDeadline()
		}
	}
}

// CheckDeadline turns a pending tap whose window has closed into a single tap.
func (s *TapSensor) CheckDeadline() {
	s.classifier.Poll(s.clock.Now())
}

// Stats returns the sensor's diagnostic counters. It says nothing about pending gestures.
func (s *TapSensor) Stats() tap.Stats {
	return s.diag.Snapshot()
}

// HardwareWindow reports whether the chip enforces the double tap window itself.
func (s *TapSensor) HardwareWindow() bool {
	return s.hwWindow
}

func (s *TapSensor) dispatch(g tap.Gesture) {
	s.registry.Dispatch(g)
}

func (s *TapSensor) publishState() {
	s.mu.Lock()
	onState := s.onState
	if onState == nil || s.closed {
		s.mu.Unlock()
		return
	}
	if s.stateTimer != nil {
		s.stateTimer.Stop()
	}
	s.stateTimer = s.clock.AfterFunc(StatePulse, func() { onState(false) })
	s.mu.Unlock()

	onState(true)
}

// drainTicks empties edges that arrived after sampling stopped.
func (s *TapSensor) drainTicks() {
	if s.ticks == nil {
		return
	}
	for {
		select {
		case <-s.ticks:
		default:
			return
		}
	}
}

// Close stops sampling, emits any tap still waiting for its partner as a single tap, and
// disables the chip's interrupt.
func (s *TapSensor) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	workers := s.workers
	if s.ticks != nil {
		s.interrupt.RemoveCallback(s.ticks)
	}
	if s.stateTimer != nil {
		s.stateTimer.Stop()
	}
	s.mu.Unlock()

	if workers != nil {
		workers.Stop()
	}
	s.classifier.Close()

	s.drainTicks()

	err := errors.Wrapf(s.chip.Close(ctx), "closing %s", s.chip.Name())
	s.logger.Infow("tap sensor closed", "stats", s.diag.Snapshot())
	return err
}
