package cli

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/tapsense/action"
	"go.viam.com/tapsense/components/board"
	"go.viam.com/tapsense/components/board/genericlinux"
	"go.viam.com/tapsense/components/movementsensor/adxl345"
	"go.viam.com/tapsense/components/movementsensor/mpu6050"
	"go.viam.com/tapsense/components/movementsensor/tapsensor"
	"go.viam.com/tapsense/config"
	"go.viam.com/tapsense/logging"
	"go.viam.com/tapsense/tap"
)

// A chip is the register model of a configured sensor, with the bus address it answers on.
type chip interface {
	tapsensor.Chip
	Address() byte
}

// newLogger returns the command's logger and a func that closes its log file, if any.
func newLogger(c *cli.Context) (logging.Logger, func()) {
	logger := logging.NewBlankLogger("tapsense")
	if !c.Bool(flagDebug) {
		logger.SetLevel(logging.INFO)
	}
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if path := c.String(flagLogFile); path != "" {
		file := logging.NewFileAppender(path)
		logger.AddAppender(file)
		return logger, func() { utils.UncheckedErrorFunc(file.Close) }
	}
	return logger, func() {}
}

func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	path := c.String(flagConfig)
	conf, err := config.Read(c.Context, path, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return conf, nil
}

// newBoard opens the configured board. A fake board gets a simulated chip for every sensor.
func newBoard(conf *config.Config, logger logging.Logger) (board.Board, error) {
	switch conf.Board.Type {
	case config.BoardLinux:
		b, err := genericlinux.NewBoard(conf.Board.Config, logger.Sublogger("board"))
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BoardFake:
		b, err := newSimulatedBoard(conf, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, errors.Errorf("unknown board type %q", conf.Board.Type)
	}
}

func newChip(sc *config.SensorConfig, bus board.I2C, logger logging.Logger) (chip, error) {
	switch sc.Model {
	case mpu6050.ModelName:
		var attrs mpu6050.Config
		if err := config.DecodeAttributes(sc.Attributes, &attrs); err != nil {
			return nil, err
		}
		return mpu6050.New(bus, attrs, logger), nil
	case adxl345.ModelName:
		var attrs adxl345.Config
		if err := config.DecodeAttributes(sc.Attributes, &attrs); err != nil {
			return nil, err
		}
		return adxl345.New(bus, attrs, logger), nil
	default:
		return nil, errors.Errorf("unknown model %q", sc.Model)
	}
}

// sensorOptions are the parts of sensor setup that differ between running and simulating.
type sensorOptions struct {
	clock clock.Clock
	// observe, if set, gives the callback registered for every single and double tap of a
	// sensor ahead of its configured triggers.
	observe func(sensor string) tap.Callback
}

// setupSensors brings every configured sensor up concurrently. If any fails, the ones already
// up are closed again.
func setupSensors(
	ctx context.Context,
	conf *config.Config,
	b board.Board,
	runner *action.Runner,
	opts sensorOptions,
	logger logging.Logger,
) ([]*tapsensor.TapSensor, error) {
	sensors := make([]*tapsensor.TapSensor, len(conf.Sensors))
	group, groupCtx := errgroup.WithContext(ctx)
	for idx := range conf.Sensors {
		idx := idx
		sc := &conf.Sensors[idx]
		group.Go(func() error {
			s, err := setupSensor(groupCtx, sc, b, runner, opts, logger.Sublogger(sc.Name))
			if err != nil {
				return errors.Wrapf(err, "setting up sensor %q", sc.Name)
			}
			sensors[idx] = s
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, multierr.Combine(err, closeSensors(ctx, sensors))
	}
	return sensors, nil
}

func setupSensor(
	ctx context.Context,
	sc *config.SensorConfig,
	b board.Board,
	runner *action.Runner,
	opts sensorOptions,
	logger logging.Logger,
) (*tapsensor.TapSensor, error) {
	c, err := newChip(sc, b.I2C(), logger)
	if err != nil {
		return nil, tap.NewSetupFailure("create chip", err)
	}
	conf := sc.TapSensorConfig()
	deps := tapsensor.Dependencies{Chip: c, Clock: opts.clock}
	if !conf.Polled() {
		deps.Interrupt, err = b.DigitalInterrupt(conf.InterruptPin)
		if err != nil {
			return nil, tap.NewSetupFailure("open interrupt", err)
		}
	}

	s, err := tapsensor.NewTapSensor(ctx, conf, deps, logger)
	if err != nil {
		return nil, err
	}
	if err := registerTriggers(s, sc, runner, opts.observe); err != nil {
		return nil, multierr.Combine(err, s.Close(ctx))
	}
	if err := s.SetStateListener(func(active bool) {
		logger.Debugw("tap state", "active", active)
	}); err != nil {
		return nil, multierr.Combine(err, s.Close(ctx))
	}
	if err := s.Arm(ctx); err != nil {
		return nil, multierr.Combine(err, s.Close(ctx))
	}
	return s, nil
}

func registerTriggers(
	s *tapsensor.TapSensor,
	sc *config.SensorConfig,
	runner *action.Runner,
	observe func(sensor string) tap.Callback,
) error {
	if observe != nil {
		cb := observe(sc.Name)
		for _, kind := range []tap.Kind{tap.Single, tap.Double} {
			if err := s.Register(kind, tap.Any, cb); err != nil {
				return err
			}
		}
	}
	triggers, err := sc.Triggers()
	if err != nil {
		return err
	}
	for _, trigger := range triggers {
		if err := s.Register(trigger.Kind, trigger.Direction, runner.Callback(sc.Name, trigger.Action)); err != nil {
			return errors.Wrapf(err, "registering %s tap %s", trigger.Kind, trigger.Direction)
		}
	}
	return nil
}

func closeSensors(ctx context.Context, sensors []*tapsensor.TapSensor) error {
	var err error
	for _, s := range sensors {
		if s == nil {
			continue
		}
		err = multierr.Combine(err, s.Close(ctx))
	}
	return err
}
