package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/tapsense/action"
	"go.viam.com/tapsense/config"
	"go.viam.com/tapsense/logging"
)

// reloadDelay is how long the config file has to stay unchanged before it is read again.
const reloadDelay = 50 * time.Millisecond

// ValidateAction reads and validates the config file and prints a table of its sensors.
func ValidateAction(c *cli.Context) error {
	logger, closeLog := newLogger(c)
	defer closeLog()
	conf, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "config OK: %s board, %d sensor(s)", conf.Board.Type, len(conf.Sensors))
	printSensors(c.App.Writer, conf)
	return nil
}

func printSensors(w io.Writer, conf *config.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Name", "Model", "Source", "Sensitivity", "Duration", "Window", "Policy", "Triggers"})
	for idx := range conf.Sensors {
		sc := &conf.Sensors[idx]
		sensorConf := sc.TapSensorConfig()
		source := fmt.Sprintf("interrupt pin %d", sensorConf.InterruptPin)
		if sensorConf.Polled() {
			source = "polled every " + sensorConf.PollInterval.String()
		}
		triggers, _ := sc.Triggers()
		t.AppendRow(table.Row{
			sc.Name,
			sc.Model,
			source,
			fmt.Sprintf("0x%02X", sensorConf.Sensitivity),
			fmt.Sprintf("0x%02X", sensorConf.Duration),
			sensorConf.DoubleTapWindow.String(),
			sensorConf.DeadlinePolicy.String(),
			len(triggers),
		})
	}
	t.Render()
}

// RunAction sets up every configured sensor and runs its actions until the process is
// interrupted.
func RunAction(c *cli.Context) error {
	logger, closeLog := newLogger(c)
	defer closeLog()
	conf, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.Bool(flagWatch) {
		return runWatching(ctx, c.String(flagConfig), conf, logger)
	}
	return run(ctx, conf, logger)
}

// run blocks until ctx is done, then shuts every sensor down.
func run(ctx context.Context, conf *config.Config, logger logging.Logger) (err error) {
	b, err := newBoard(conf, logger)
	if err != nil {
		return errors.Wrap(err, "opening board")
	}
	defer func() {
		err = multierr.Combine(err, b.Close())
	}()

	runner := action.NewRunner(logger.Sublogger("actions"))
	defer runner.Close()

	sensors, err := setupSensors(ctx, conf, b, runner, sensorOptions{}, logger)
	if err != nil {
		return err
	}
	logger.Infow("tapsense running", "sensors", len(sensors))

	<-ctx.Done()
	logger.Info("shutting down")
	// The run context is already cancelled; closing still has to reach the chips.
	return closeSensors(context.Background(), sensors)
}

// runWatching runs like run, and starts over with the new config whenever the config file
// changes to something valid. An invalid edit is logged and the sensors keep running.
func runWatching(ctx context.Context, path string, conf *config.Config, logger logging.Logger) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "watching config")
	}
	defer utils.UncheckedErrorFunc(watcher.Close)
	// Editors often replace the file rather than write it, so watch its directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "watching %s", path)
	}

	reloads := make(chan *config.Config)
	workers := utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		watchConfig(ctx, watcher, path, reloads, logger)
	})
	defer workers.Stop()

	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- run(runCtx, conf, logger)
		}()

		select {
		case err := <-done:
			cancel()
			return err
		case next := <-reloads:
			cancel()
			if err := <-done; err != nil {
				return err
			}
			logger.Infow("config reloaded", "path", path, "sensors", len(next.Sensors))
			conf = next
		}
	}
}

func watchConfig(
	ctx context.Context,
	watcher *fsnotify.Watcher,
	path string,
	reloads chan<- *config.Config,
	logger logging.Logger,
) {
	debounced := debounce.New(reloadDelay)
	reload := func() {
		if ctx.Err() != nil {
			return
		}
		conf, err := config.Read(ctx, path, logger)
		if err != nil {
			logger.Warnw("ignoring invalid config", "path", path, "error", err)
			return
		}
		select {
		case reloads <- conf:
		case <-ctx.Done():
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				debounced(reload)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("config watcher failed", "error", err)
		}
	}
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}
