package config

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/tapsense/logging"
)

// Read reads a config from the given file, substituting ${VAR} references from the
// environment, and validates it.
func Read(
	ctx context.Context,
	filePath string,
	logger logging.Logger,
) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(ctx, filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(
	ctx context.Context,
	originalPath string,
	r io.Reader,
	logger logging.Logger,
) (*Config, error) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from json")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var conf Config
	if err := decode(raw, &conf); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from %q", originalPath)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	logger.Debugw("read config", "path", originalPath, "board", conf.Board.Type, "sensors", len(conf.Sensors))
	return &conf, nil
}

// DecodeAttributes decodes a sensor's model specific attributes into out, which must be a
// pointer to the model's config struct.
func DecodeAttributes(attributes map[string]any, out any) error {
	if len(attributes) == 0 {
		return nil
	}
	return decode(attributes, out)
}

func decode(in map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Squash:      true,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		Result:      out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(in)
}
