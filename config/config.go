// Package config defines the declarative collector configuration, loads it
// from JSON or YAML files, validates it, and distributes runtime updates to
// subscribed components through a NATS key-value bucket.
package config

import (
	"github.com/c360/devstream/device"
	"github.com/c360/devstream/dispatch"
	"github.com/c360/devstream/ingest"
	"github.com/c360/devstream/normalize"
	"github.com/c360/devstream/resolver"
	"github.com/c360/devstream/tracer"
)

// Config is the full declarative collector configuration
type Config struct {
	Version   string                    `json:"version,omitempty" yaml:"version,omitempty"`
	Device    DeviceConfig              `json:"device" yaml:"device"`
	Poll      PollConfig                `json:"poll" yaml:"poll"`
	Listeners map[string]ListenerConfig `json:"listeners,omitempty" yaml:"listeners,omitempty"`
	NATS      NATSConfig                `json:"nats,omitempty" yaml:"nats,omitempty"`
	Dispatch  DispatchConfig            `json:"dispatch,omitempty" yaml:"dispatch,omitempty"`
	Metrics   MetricsConfig             `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// DeviceConfig identifies the polled device and its credentials
type DeviceConfig struct {
	Host                string `json:"host,omitempty" yaml:"host,omitempty"`
	Port                int    `json:"port,omitempty" yaml:"port,omitempty"`
	Protocol            string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Username            string `json:"username,omitempty" yaml:"username,omitempty"`
	Passphrase          string `json:"passphrase,omitempty" yaml:"passphrase,omitempty"`
	AllowSelfSignedCert bool   `json:"allowSelfSignedCert,omitempty" yaml:"allowSelfSignedCert,omitempty"`
}

// Target converts the configuration into a device target
func (d DeviceConfig) Target() device.Target {
	return device.Target{
		Host:            d.Host,
		Port:            d.Port,
		Protocol:        d.Protocol,
		Username:        d.Username,
		Passphrase:      d.Passphrase,
		AllowSelfSigned: d.AllowSelfSignedCert,
	}
}

// PollConfig declares the periodic collection cycle
type PollConfig struct {
	IntervalSeconds int                     `json:"interval,omitempty" yaml:"interval,omitempty"`
	Endpoints       []device.Endpoint       `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	Context         []resolver.ContextGroup `json:"context,omitempty" yaml:"context,omitempty"`
	Properties      []resolver.Declared     `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Schema returns the resolver schema declared by the poll configuration
func (p PollConfig) Schema() resolver.Schema {
	return resolver.Schema{
		Context:    p.Context,
		Properties: p.Properties,
	}
}

// ListenerConfig declares one event listener
type ListenerConfig struct {
	Port              int                                  `json:"port" yaml:"port"`
	Enable            *bool                                `json:"enable,omitempty" yaml:"enable,omitempty"`
	Tags              map[string]string                    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Trace             tracer.Config                        `json:"trace,omitempty" yaml:"trace,omitempty"`
	DefaultCategories map[string]normalize.EventDefinition `json:"defaultCategories,omitempty" yaml:"defaultCategories,omitempty"`
}

// enabled reports whether the listener should run (default true)
func (l ListenerConfig) enabled() bool {
	return l.Enable == nil || *l.Enable
}

// NATSConfig connects the collector to its NATS server
type NATSConfig struct {
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// DispatchConfig selects and tunes output sinks
type DispatchConfig struct {
	QueueSize int                  `json:"queueSize,omitempty" yaml:"queueSize,omitempty"`
	NATS      bool                 `json:"nats,omitempty" yaml:"nats,omitempty"`
	HTTP      *dispatch.HTTPConfig `json:"http,omitempty" yaml:"http,omitempty"`
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	Enable bool `json:"enable,omitempty" yaml:"enable,omitempty"`
	Port   int  `json:"port,omitempty" yaml:"port,omitempty"`
}

// ListenerSpecs converts enabled listener configurations into the desired
// state consumed by the listener reconciler
func (c *Config) ListenerSpecs() map[string]ingest.ListenerSpec {
	specs := make(map[string]ingest.ListenerSpec, len(c.Listeners))
	for name, lc := range c.Listeners {
		if !lc.enabled() {
			continue
		}
		specs[name] = ingest.ListenerSpec{
			Name:              name,
			Port:              lc.Port,
			Tags:              lc.Tags,
			Trace:             lc.Trace,
			DefaultCategories: lc.DefaultCategories,
		}
	}
	return specs
}
