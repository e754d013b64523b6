package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/devstream/errors"
)

// configSchema structurally validates the declarative configuration before
// any semantic checks run
const configSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"version": {"type": "string"},
		"device": {
			"type": "object",
			"properties": {
				"host": {"type": "string"},
				"port": {"type": "integer", "minimum": 0, "maximum": 65535},
				"protocol": {"enum": ["", "http", "https"]},
				"username": {"type": "string"},
				"passphrase": {"type": "string"},
				"allowSelfSignedCert": {"type": "boolean"}
			}
		},
		"poll": {
			"type": "object",
			"properties": {
				"interval": {"type": "integer", "minimum": 0},
				"endpoints": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"name": {"type": "string"},
							"path": {"type": "string", "minLength": 1},
							"suffix": {"type": "string"}
						},
						"required": ["path"]
					}
				},
				"properties": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"name": {"type": "string", "minLength": 1},
							"property": {"type": "object"}
						},
						"required": ["name", "property"]
					}
				}
			}
		},
		"listeners": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"properties": {
					"port": {"type": "integer", "minimum": 1, "maximum": 65535},
					"enable": {"type": "boolean"},
					"tags": {"type": "object"}
				},
				"required": ["port"]
			}
		},
		"nats": {
			"type": "object",
			"properties": {
				"url": {"type": "string"},
				"name": {"type": "string"}
			}
		},
		"dispatch": {
			"type": "object",
			"properties": {
				"queueSize": {"type": "integer", "minimum": 0},
				"nats": {"type": "boolean"},
				"http": {"type": "object"}
			}
		},
		"metrics": {
			"type": "object",
			"properties": {
				"enable": {"type": "boolean"},
				"port": {"type": "integer", "minimum": 0, "maximum": 65535}
			}
		}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(configSchema)

// Validate checks a configuration structurally and semantically
func Validate(cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return errors.WrapConfig(err, "config", "Validate", "marshal")
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.WrapConfig(err, "config", "Validate", "schema evaluation")
	}
	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descs = append(descs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return errors.WrapConfig(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(descs, "; ")),
			"config", "Validate", "schema validation")
	}

	return validateSemantics(cfg)
}

// validateSemantics covers the constraints a JSON schema cannot express
func validateSemantics(cfg *Config) error {
	usedPorts := make(map[int]string)
	for name, lc := range cfg.Listeners {
		if !lc.enabled() {
			continue
		}
		if other, taken := usedPorts[lc.Port]; taken {
			return errors.WrapConfig(
				fmt.Errorf("%w: listeners %q and %q share port %d",
					errors.ErrInvalidConfig, other, name, lc.Port),
				"config", "Validate", "listener port uniqueness")
		}
		usedPorts[lc.Port] = name
	}

	endpoints := make(map[string]bool, len(cfg.Poll.Endpoints))
	for _, ep := range cfg.Poll.Endpoints {
		if endpoints[ep.Key()] {
			return errors.WrapConfig(
				fmt.Errorf("%w: endpoint %q declared twice", errors.ErrInvalidConfig, ep.Key()),
				"config", "Validate", "endpoint uniqueness")
		}
		endpoints[ep.Key()] = true
	}

	seen := make(map[string]bool, len(cfg.Poll.Properties))
	for _, prop := range cfg.Poll.Properties {
		if seen[prop.Name] {
			return errors.WrapConfig(
				fmt.Errorf("%w: property %q declared twice", errors.ErrInvalidConfig, prop.Name),
				"config", "Validate", "property uniqueness")
		}
		seen[prop.Name] = true
	}

	if cfg.Dispatch.HTTP != nil {
		if err := cfg.Dispatch.HTTP.Validate(); err != nil {
			return err
		}
	}

	if cfg.Dispatch.NATS && cfg.NATS.URL == "" {
		return errors.WrapConfig(
			fmt.Errorf("%w: nats.url is required for the nats sink", errors.ErrMissingConfig),
			"config", "Validate", "nats wiring")
	}

	return nil
}
