package tapsensor

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/tapsense/tap"
)

// HandleInterrupt samples the chip after its interrupt fired. An interrupt with no tap flag
// set is counted as spurious and otherwise ignored.
func (s *TapSensor) HandleInterrupt(ctx context.Context) error {
	s.diag.Interrupts.Inc()
	return s.sample(ctx, true)
}

// Poll samples the chip without an interrupt, and resolves an expired pending tap when there
// is nothing new.
func (s *TapSensor) Poll(ctx context.Context) error {
	return s.sample(ctx, false)
}

func (s *TapSensor) sample(ctx context.Context, fromInterrupt bool) error {
	now := s.clock.Now()
	sample, err := s.chip.ReadTapStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "reading tap status")
	}
	if !sample.Detected {
		if fromInterrupt {
			s.diag.Spurious.Inc()
			s.logger.Debug("interrupt without a tap flag")
		}
		s.classifier.Poll(now)
		return nil
	}

	ev := rawTapEvent(now, sample)
	if ev.ambiguous {
		s.diag.AmbiguousDirections.Inc()
		s.logger.Debugw("ambiguous tap direction",
			"x", sample.Axes.X, "y", sample.Axes.Y, "z", sample.Axes.Z,
			"chosen", ev.Direction.String())
	}
	s.logger.Debugw("tap",
		"direction", ev.Direction.String(), "magnitude", ev.Magnitude, "second_tap", ev.SecondTap)

	s.publishState()
	s.classifier.Observe(ev.RawTapEvent)
	return nil
}

type sampledTap struct {
	tap.RawTapEvent
	ambiguous bool
}

func rawTapEvent(now time.Time, sample tap.Sample) sampledTap {
	dir, magnitude, ambiguous := tap.ResolveDirection(sample.Axes)
	return sampledTap{
		RawTapEvent: tap.RawTapEvent{
			Timestamp: now,
			Direction: dir,
			Magnitude: magnitude,
			SecondTap: sample.SecondTap,
		},
		ambiguous: ambiguous,
	}
}
