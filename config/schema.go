package config

import (
	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of the config file, for editors and other tooling.
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}
