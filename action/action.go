// Package action turns the actions bound to taps in a config file into trigger callbacks.
//
// Callbacks run on the sensor's dispatch path, so an exec action only schedules its command;
// the command runs on a background worker and its outcome is logged.
package action

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/atomic"
	"go.viam.com/utils"
	"go.viam.com/utils/pexec"

	"go.viam.com/tapsense/config"
	"go.viam.com/tapsense/logging"
	"go.viam.com/tapsense/tap"
)

// Placeholders replaced in exec arguments.
const (
	PlaceholderSensor    = "{sensor}"
	PlaceholderKind      = "{kind}"
	PlaceholderDirection = "{direction}"
)

// A Runner builds callbacks and owns the commands they start.
type Runner struct {
	logger  logging.Logger
	workers *utils.StoppableWorkers
	runs    atomic.Uint64
	closed  atomic.Bool
}

// NewRunner returns a runner ready to build callbacks.
func NewRunner(logger logging.Logger) *Runner {
	return &Runner{
		logger:  logger,
		workers: utils.NewBackgroundStoppableWorkers(),
	}
}

// Callback returns the callback that performs conf for taps on the named sensor.
func (r *Runner) Callback(sensor string, conf config.ActionConfig) tap.Callback {
	if len(conf.Exec) == 0 {
		message := conf.Log
		return func(g tap.Gesture) {
			r.logger.Infow(message,
				"sensor", sensor,
				"kind", g.Kind.String(),
				"direction", g.Direction.String(),
				"timestamp", g.Timestamp,
			)
		}
	}
	command := append([]string(nil), conf.Exec...)
	return func(g tap.Gesture) {
		if r.closed.Load() {
			return
		}
		args := ExpandArgs(command[1:], sensor, g)
		id := fmt.Sprintf("%s-%d", sensor, r.runs.Inc())
		r.workers.Add(func(ctx context.Context) {
			r.run(ctx, id, command[0], args)
		})
	}
}

func (r *Runner) run(ctx context.Context, id, name string, args []string) {
	proc := pexec.NewManagedProcess(pexec.ProcessConfig{
		ID:      id,
		Name:    name,
		Args:    args,
		OneShot: true,
		Log:     true,
	}, r.logger.AsZap())
	if err := proc.Start(ctx); err != nil {
		if ctx.Err() == nil {
			r.logger.Warnw("tap action failed", "id", id, "command", name, "error", err)
		}
		return
	}
	r.logger.Debugw("tap action done", "id", id, "command", name)
}

// ExpandArgs fills the placeholders in args from the sensor name and the gesture.
func ExpandArgs(args []string, sensor string, g tap.Gesture) []string {
	replacer := strings.NewReplacer(
		PlaceholderSensor, sensor,
		PlaceholderKind, g.Kind.String(),
		PlaceholderDirection, g.Direction.String(),
	)
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = replacer.Replace(arg)
	}
	return out
}

// Close cancels running commands and waits for their workers to return.
func (r *Runner) Close() {
	r.closed.Store(true)
	r.workers.Stop()
}
