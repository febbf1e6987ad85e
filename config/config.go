// Package config defines the structures to configure tapsense and the means to read them from
// a JSON file.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/tapsense/components/board/genericlinux"
	"go.viam.com/tapsense/components/movementsensor/adxl345"
	"go.viam.com/tapsense/components/movementsensor/mpu6050"
	"go.viam.com/tapsense/components/movementsensor/tapsensor"
	"go.viam.com/tapsense/tap"
)

// Board types.
const (
	BoardLinux = "linux"
	BoardFake  = "fake"
)

// Config describes the board and every tap sensor wired to it.
type Config struct {
	Board   BoardConfig    `json:"board"`
	Sensors []SensorConfig `json:"sensors"`
}

// BoardConfig picks the board implementation. The Linux fields are ignored by the fake board.
type BoardConfig struct {
	Type string `json:"type" jsonschema:"enum=linux,enum=fake"`
	genericlinux.Config
}

// SensorConfig is one tap sensor as written in the config file. Fields left out fall back to
// the defaults of the sensor's model.
type SensorConfig struct {
	Name  string `json:"name"`
	Model string `json:"model" jsonschema:"enum=mpu6050,enum=adxl345"`
	// InterruptPin is required unless PollInterval is set.
	InterruptPin    *int           `json:"interrupt_pin,omitempty"`
	PollInterval    time.Duration  `json:"poll_interval,omitempty"`
	Sensitivity     *int           `json:"sensitivity,omitempty"`
	Duration        *int           `json:"duration,omitempty"`
	DoubleTapWindow time.Duration  `json:"double_tap_window,omitempty"`
	DeadlinePolicy  string         `json:"deadline_policy,omitempty" jsonschema:"enum=timer,enum=lazy"`
	MaxTriggers     int            `json:"max_triggers,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"`

	// OnSingleTap and OnDoubleTap map a direction name to the actions run for it.
	OnSingleTap map[string][]ActionConfig `json:"on_single_tap,omitempty"`
	OnDoubleTap map[string][]ActionConfig `json:"on_double_tap,omitempty"`
}

// ActionConfig is one action bound to a gesture. Exactly one of Log and Exec is set.
type ActionConfig struct {
	// Log writes the message at INFO with the gesture attached.
	Log string `json:"log,omitempty"`
	// Exec runs a command without a shell. The first element is the program.
	Exec []string `json:"exec,omitempty"`
}

// Validate ensures all parts of the action are valid.
func (ac *ActionConfig) Validate(path string) error {
	switch {
	case ac.Log != "" && len(ac.Exec) != 0:
		return utils.NewConfigValidationError(path, errors.New("an action has either log or exec, not both"))
	case ac.Log == "" && len(ac.Exec) == 0:
		return utils.NewConfigValidationFieldRequiredError(path, "log")
	case len(ac.Exec) != 0 && ac.Exec[0] == "":
		return utils.NewConfigValidationError(path, errors.New("exec needs a program name"))
	}
	return nil
}

// A Trigger is an action resolved to the registry slot it fills.
type Trigger struct {
	Kind      tap.Kind
	Direction tap.Direction
	Action    ActionConfig
}

type modelDefaults struct {
	sensitivity byte
	duration    byte
	// validate checks the model's attributes against the effective double tap window.
	validate func(attrs map[string]any, window time.Duration, path string) error
}

var models = map[string]modelDefaults{
	mpu6050.ModelName: {
		sensitivity: mpu6050.DefaultSensitivity,
		duration:    mpu6050.DefaultDuration,
		validate: func(attrs map[string]any, _ time.Duration, path string) error {
			var conf mpu6050.Config
			if err := DecodeAttributes(attrs, &conf); err != nil {
				return utils.NewConfigValidationError(path, err)
			}
			return conf.Validate(path)
		},
	},
	adxl345.ModelName: {
		sensitivity: adxl345.DefaultSensitivity,
		duration:    adxl345.DefaultDuration,
		validate: func(attrs map[string]any, window time.Duration, path string) error {
			var conf adxl345.Config
			if err := DecodeAttributes(attrs, &conf); err != nil {
				return utils.NewConfigValidationError(path, err)
			}
			if err := conf.Validate(path); err != nil {
				return err
			}
			return conf.ValidateWindow(window, path)
		},
	},
}

// Models lists the supported sensor models.
func Models() []string {
	names := lo.Keys(models)
	slices.Sort(names)
	return names
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if err := c.Board.Validate("board"); err != nil {
		return err
	}
	if len(c.Sensors) == 0 {
		return utils.NewConfigValidationFieldRequiredError("", "sensors")
	}
	for idx := range c.Sensors {
		if err := c.Sensors[idx].Validate(fmt.Sprintf("sensors.%d", idx)); err != nil {
			return err
		}
	}
	names := lo.Map(c.Sensors, func(sc SensorConfig, _ int) string { return sc.Name })
	if dups := lo.FindDuplicates(names); len(dups) != 0 {
		return utils.NewConfigValidationError("sensors", errors.Errorf("duplicate sensor name %q", dups[0]))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (bc *BoardConfig) Validate(path string) error {
	switch bc.Type {
	case BoardLinux:
		return bc.Config.Validate(path)
	case BoardFake:
		return nil
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("board type must be %q or %q, got %q", BoardLinux, BoardFake, bc.Type))
	}
}

// Validate ensures all parts of the config are valid.
func (sc *SensorConfig) Validate(path string) error {
	if sc.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if sc.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	model, ok := models[sc.Model]
	if !ok {
		return utils.NewConfigValidationError(path,
			errors.Errorf("unknown model %q, expected one of %v", sc.Model, Models()))
	}
	if sc.InterruptPin != nil && *sc.InterruptPin < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("interrupt_pin must not be negative, got %d", *sc.InterruptPin))
	}
	if err := validateRegisterValue(path, "sensitivity", sc.Sensitivity); err != nil {
		return err
	}
	if err := validateRegisterValue(path, "duration", sc.Duration); err != nil {
		return err
	}
	if sc.DoubleTapWindow < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("double_tap_window must be positive, got %s", sc.DoubleTapWindow))
	}
	if _, err := tap.ParseDeadlinePolicy(sc.DeadlinePolicy); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	conf := sc.TapSensorConfig()
	if err := model.validate(sc.Attributes, conf.DoubleTapWindow, path+".attributes"); err != nil {
		return err
	}
	if _, err := sc.triggers(path); err != nil {
		return err
	}
	return conf.Validate(path)
}

func validateRegisterValue(path, field string, v *int) error {
	if v == nil {
		return nil
	}
	if *v < 0 || *v > 0xFF {
		return utils.NewConfigValidationError(path,
			errors.Errorf("%s must be between 0x00 and 0xFF, got %d", field, *v))
	}
	return nil
}

// TapSensorConfig returns the typed sensor config with the model's defaults filled in. The
// sensor config must have been validated.
func (sc *SensorConfig) TapSensorConfig() tapsensor.Config {
	model := models[sc.Model]
	conf := tapsensor.Config{
		Name:            sc.Name,
		InterruptPin:    tapsensor.NoInterruptPin,
		PollInterval:    sc.PollInterval,
		Sensitivity:     model.sensitivity,
		Duration:        model.duration,
		DoubleTapWindow: sc.DoubleTapWindow,
		MaxTriggers:     sc.MaxTriggers,
	}
	if sc.InterruptPin != nil {
		conf.InterruptPin = *sc.InterruptPin
	}
	if sc.Sensitivity != nil {
		conf.Sensitivity = byte(*sc.Sensitivity)
	}
	if sc.Duration != nil {
		conf.Duration = byte(*sc.Duration)
	}
	if conf.DoubleTapWindow == 0 {
		conf.DoubleTapWindow = tapsensor.DefaultDoubleTapWindow
	}
	conf.DeadlinePolicy, _ = tap.ParseDeadlinePolicy(sc.DeadlinePolicy)
	return conf
}

// Triggers returns every configured action in registration order: single taps before double
// taps, then by direction, then in the order written.
func (sc *SensorConfig) Triggers() ([]Trigger, error) {
	return sc.triggers(sc.Name)
}

func (sc *SensorConfig) triggers(path string) ([]Trigger, error) {
	var triggers []Trigger
	for _, bound := range []struct {
		kind    tap.Kind
		field   string
		actions map[string][]ActionConfig
	}{
		{tap.Single, "on_single_tap", sc.OnSingleTap},
		{tap.Double, "on_double_tap", sc.OnDoubleTap},
	} {
		for key, actions := range bound.actions {
			keyPath := fmt.Sprintf("%s.%s.%s", path, bound.field, key)
			dir, err := tap.ParseDirection(key)
			if err != nil || (!dir.IsPlanar() && dir != tap.Any) || dir.String() != key {
				return nil, utils.NewConfigValidationError(keyPath,
					errors.Errorf("direction must be one of up, down, left, right or any, got %q", key))
			}
			for idx, action := range actions {
				if err := action.Validate(fmt.Sprintf("%s.%d", keyPath, idx)); err != nil {
					return nil, err
				}
				triggers = append(triggers, Trigger{Kind: bound.kind, Direction: dir, Action: action})
			}
		}
	}
	slices.SortStableFunc(triggers, func(a, b Trigger) int {
		if a.Kind != b.Kind {
			return int(a.Kind) - int(b.Kind)
		}
		return int(a.Direction) - int(b.Direction)
	})
	return triggers, nil
}
