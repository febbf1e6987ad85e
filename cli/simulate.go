package cli

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/tapsense/action"
	"go.viam.com/tapsense/components/board/fake"
	"go.viam.com/tapsense/components/movementsensor/adxl345"
	"go.viam.com/tapsense/components/movementsensor/mpu6050"
	"go.viam.com/tapsense/components/movementsensor/tapsensor"
	"go.viam.com/tapsense/config"
	"go.viam.com/tapsense/logging"
	"go.viam.com/tapsense/tap"
)

const sampleTimeout = 5 * time.Second

type simulatedModel struct {
	newDevice func() *fake.Device
	stage     func(dev *fake.Device, dir tap.Direction, second bool)
}

var simulatedModels = map[string]simulatedModel{
	mpu6050.ModelName: {
		newDevice: mpu6050.NewSimulatedDevice,
		stage: func(dev *fake.Device, dir tap.Direction, _ bool) {
			mpu6050.StageTap(dev, tap.Impulse(dir, 4000))
		},
	},
	adxl345.ModelName: {
		newDevice: adxl345.NewSimulatedDevice,
		stage: func(dev *fake.Device, dir tap.Direction, second bool) {
			adxl345.StageTap(dev, tap.Impulse(dir, 60), second)
		},
	},
}

// simulatedBoard is a fake board with a simulated chip answering for every configured sensor.
type simulatedBoard struct {
	*fake.Board
	devices    []*fake.Device
	activeHigh []bool
}

func newSimulatedBoard(conf *config.Config, logger logging.Logger) (*simulatedBoard, error) {
	b := &simulatedBoard{Board: fake.NewBoard()}
	for idx := range conf.Sensors {
		sc := &conf.Sensors[idx]
		model, ok := simulatedModels[sc.Model]
		if !ok {
			return nil, errors.Errorf("cannot simulate model %q", sc.Model)
		}
		c, err := newChip(sc, b.I2C(), logger)
		if err != nil {
			return nil, err
		}
		dev := model.newDevice()
		b.Bus().AddDevice(c.Address(), dev)
		b.devices = append(b.devices, dev)
		b.activeHigh = append(b.activeHigh, c.InterruptActiveHigh())
	}
	return b, nil
}

// A simulatedTap is one --tap flag.
type simulatedTap struct {
	At        time.Duration
	Direction tap.Direction
	Second    bool
}

func parseTap(arg string) (simulatedTap, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return simulatedTap{}, errors.Errorf("tap %q is not MS:DIRECTION[:second]", arg)
	}
	ms, err := strconv.Atoi(parts[0])
	if err != nil || ms < 0 {
		return simulatedTap{}, errors.Errorf("tap %q does not start with a time in milliseconds", arg)
	}
	dir, err := tap.ParseDirection(parts[1])
	if err != nil {
		return simulatedTap{}, errors.Wrapf(err, "tap %q", arg)
	}
	if dir == tap.Any {
		return simulatedTap{}, errors.Errorf("tap %q needs a direction, any only matches", arg)
	}
	st := simulatedTap{At: time.Duration(ms) * time.Millisecond, Direction: dir}
	if len(parts) == 3 {
		if parts[2] != "second" {
			return simulatedTap{}, errors.Errorf("tap %q: unknown flag %q", arg, parts[2])
		}
		st.Second = true
	}
	return st, nil
}

// A simulatedGesture is a gesture as seen by one sensor, timed from the start of the run.
type simulatedGesture struct {
	Sensor  string
	At      time.Duration
	Gesture tap.Gesture
}

func (g simulatedGesture) String() string {
	return fmt.Sprintf("%6dms\t%s\t%s", g.At.Milliseconds(), g.Sensor, g.Gesture)
}

// SimulateAction replays taps against simulated chips on a fake board, driven by a mock
// clock, and prints every gesture the sensors report.
func SimulateAction(c *cli.Context) error {
	logger, closeLog := newLogger(c)
	defer closeLog()
	conf, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	var taps []simulatedTap
	for _, arg := range c.StringSlice(flagTap) {
		st, err := parseTap(arg)
		if err != nil {
			return err
		}
		taps = append(taps, st)
	}
	gestures, err := simulate(c.Context, conf, c.String(flagSensor), taps, c.Duration(flagSettle), logger)
	if err != nil {
		return err
	}
	for _, g := range gestures {
		printf(c.App.Writer, "%s", g)
	}
	return nil
}

// simulate runs the configured sensors on a fake board. Every tap is staged on the target
// sensor's register file and delivered through its interrupt pin, or its poll when it has no
// pin, at its offset on the mock clock.
func simulate(
	ctx context.Context,
	conf *config.Config,
	target string,
	taps []simulatedTap,
	settle time.Duration,
	logger logging.Logger,
) (gestures []simulatedGesture, err error) {
	if target == "" {
		target = conf.Sensors[0].Name
	}
	targetIdx := slices.IndexFunc(conf.Sensors, func(sc config.SensorConfig) bool { return sc.Name == target })
	if targetIdx < 0 {
		return nil, errors.Errorf("no sensor named %q", target)
	}

	b, err := newSimulatedBoard(conf, logger)
	if err != nil {
		return nil, err
	}

	clk := clock.NewMock()
	start := clk.Now()
	var mu sync.Mutex
	observe := func(sensor string) tap.Callback {
		return func(g tap.Gesture) {
			mu.Lock()
			defer mu.Unlock()
			gestures = append(gestures, simulatedGesture{Sensor: sensor, At: g.Timestamp.Sub(start), Gesture: g})
		}
	}

	runner := action.NewRunner(logger.Sublogger("actions"))
	defer runner.Close()
	sensors, err := setupSensors(ctx, conf, b, runner, sensorOptions{clock: clk, observe: observe}, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, closeSensors(ctx, sensors))
		}
	}()

	sc := &conf.Sensors[targetIdx]
	sensorConf := sc.TapSensorConfig()
	s := sensors[targetIdx]
	stage := simulatedModels[sc.Model].stage
	device := b.devices[targetIdx]

	slices.SortStableFunc(taps, func(a, b simulatedTap) int { return cmp.Compare(a.At, b.At) })
	for _, st := range taps {
		clk.Add(start.Add(st.At).Sub(clk.Now()))
		stage(device, st.Direction, st.Second)
		want := s.Stats().RawTaps + 1
		if sensorConf.Polled() {
			if err := s.Poll(ctx); err != nil {
				return nil, err
			}
		} else if err := b.Pulse(ctx, sensorConf.InterruptPin, b.activeHigh[targetIdx], uint64(clk.Now().UnixNano())); err != nil {
			return nil, err
		}
		if err := waitForRawTaps(ctx, s, want); err != nil {
			return nil, errors.Wrapf(err, "tap at %s", st.At)
		}
	}
	clk.Add(settle)

	if err := closeSensors(ctx, sensors); err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	slices.SortStableFunc(gestures, func(a, b simulatedGesture) int { return cmp.Compare(a.At, b.At) })
	return gestures, nil
}

func waitForRawTaps(ctx context.Context, s *tapsensor.TapSensor, want uint64) error {
	ctx, cancel := context.WithTimeout(ctx, sampleTimeout)
	defer cancel()
	for s.Stats().RawTaps < want {
		if !utils.SelectContextOrWait(ctx, time.Millisecond) {
			return errors.New("sensor did not report the tap")
		}
	}
	return nil
}
