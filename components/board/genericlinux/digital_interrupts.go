//go:build linux

// Package genericlinux is for Linux boards, and this particular file is for digital interrupt pins
// using the ioctl interface, indirectly by way of mkch's gpio package.
package genericlinux

import (
	"context"
	"fmt"

	"github.com/mkch/gpio"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/tapsense/components/board"
	"go.viam.com/tapsense/logging"
)

type cdevInterrupt struct {
	*board.BasicDigitalInterrupt
	line    *gpio.LineWithEvent
	workers *utils.StoppableWorkers
}

func openCDevInterrupt(chipPath string, offset int, logger logging.Logger) (closableInterrupt, error) {
	chip, err := gpio.OpenChip(chipPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening GPIO chip %s", chipPath)
	}
	defer utils.UncheckedErrorFunc(chip.Close)

	line, err := chip.OpenLineWithEvents(uint32(offset), gpio.Input, gpio.BothEdges, "tapsense-interrupt")
	if err != nil {
		return nil, errors.Wrapf(err, "requesting edge events for line %d on %s", offset, chipPath)
	}

	di := &cdevInterrupt{
		BasicDigitalInterrupt: board.NewBasicDigitalInterrupt(fmt.Sprintf("%s:%d", chipPath, offset)),
		line:                  line,
	}
	di.workers = utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-di.line.Events():
				if !ok {
					return
				}
				if err := di.Tick(ctx, event.RisingEdge, uint64(event.Time.UnixNano())); err != nil &&
					!errors.Is(err, context.Canceled) {
					logger.Warnw("dropping interrupt edge", "line", di.Name(), "error", err)
				}
			}
		}
	})
	return di, nil
}

// Close stops the watcher before releasing the line so no edge is delivered afterwards.
func (di *cdevInterrupt) Close() error {
	di.workers.Stop()
	return di.line.Close()
}
