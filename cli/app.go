// Package cli contains the tapsense command line application.
package cli

import (
	"io"
	"time"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	flagConfig  = "config"
	flagDebug   = "debug"
	flagTap     = "tap"
	flagSettle  = "settle"
	flagSensor  = "sensor"
	flagLogFile = "log-file"
	flagWatch   = "watch"
)

// commonFlags are accepted by every command, after the command name.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     flagConfig,
			Aliases:  []string{"c"},
			Usage:    "load configuration from `FILE`",
			Required: true,
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  flagLogFile,
			Usage: "also write logs to `FILE`, rotating it as it grows",
		},
	}
}

var app = &cli.App{
	Name:            "tapsense",
	Usage:           "turn taps on an accelerometer into actions",
	HideHelpCommand: true,
	Commands: []*cli.Command{
		{
			Name:   "validate",
			Usage:  "check a config file and print the sensors it describes",
			Flags:  commonFlags(),
			Action: ValidateAction,
		},
		{
			Name:  "run",
			Usage: "set up every sensor and run its actions until interrupted",
			Flags: append([]cli.Flag{
				&cli.BoolFlag{
					Name:  flagWatch,
					Usage: "restart the sensors when the config file changes",
				},
			}, commonFlags()...),
			Action: RunAction,
		},
		{
			Name:      "simulate",
			Usage:     "replay taps against simulated sensors and print the gestures",
			UsageText: "tapsense simulate -c FILE --tap 0:up --tap 150:down [--tap 600:left:second]",
			Flags: append([]cli.Flag{
				&cli.StringSliceFlag{
					Name:     flagTap,
					Usage:    "a tap as `MS:DIRECTION[:second]`, MS after the start; second marks a hardware double tap",
					Required: true,
				},
				&cli.StringFlag{
					Name:  flagSensor,
					Usage: "name of the sensor to tap, defaults to the first one",
				},
				&cli.DurationFlag{
					Name:  flagSettle,
					Usage: "simulated time to run after the last tap",
					Value: time.Second,
				},
			}, commonFlags()...),
			Action: SimulateAction,
		},
		{
			Name:   "schema",
			Usage:  "print the JSON schema of the config file",
			Action: SchemaAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
