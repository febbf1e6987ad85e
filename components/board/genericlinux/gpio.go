package genericlinux

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"go.viam.com/tapsense/components/board"
	"go.viam.com/tapsense/logging"
)

// edgeWaitTimeout bounds each WaitForEdge call so the watcher notices shutdown.
const edgeWaitTimeout = 100 * time.Millisecond

// sysfsInterrupt watches a periph.io pin for edges. Timestamps are taken when WaitForEdge
// returns, since sysfs does not report the kernel's edge time.
type sysfsInterrupt struct {
	*board.BasicDigitalInterrupt
	pin     gpio.PinIO
	workers *utils.StoppableWorkers
}

func openSysfsInterrupt(pinNumber int, logger logging.Logger) (closableInterrupt, error) {
	if err := hostInit(); err != nil {
		return nil, err
	}
	name := strconv.Itoa(pinNumber)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no GPIO pin named %s", name)
	}
	if err := pin.In(gpio.PullNoChange, gpio.BothEdges); err != nil {
		return nil, errors.Wrapf(err, "enabling edge detection on pin %s", name)
	}

	di := &sysfsInterrupt{
		BasicDigitalInterrupt: board.NewBasicDigitalInterrupt(pin.Name()),
		pin:                   pin,
	}
	di.workers = utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		for ctx.Err() == nil {
			if !di.pin.WaitForEdge(edgeWaitTimeout) {
				continue
			}
			high := di.pin.Read() == gpio.High
			if err := di.Tick(ctx, high, uint64(time.Now().UnixNano())); err != nil &&
				!errors.Is(err, context.Canceled) {
				logger.Warnw("dropping interrupt edge", "pin", di.Name(), "error", err)
			}
		}
	})
	return di, nil
}

func (di *sysfsInterrupt) Close() error {
	di.workers.Stop()
	return di.pin.In(gpio.PullNoChange, gpio.NoEdge)
}
