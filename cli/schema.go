package cli

import (
	"encoding/json"

	"github.com/urfave/cli/v2"

	"go.viam.com/tapsense/config"
)

// SchemaAction prints the JSON schema of the config file.
func SchemaAction(c *cli.Context) error {
	out, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}
