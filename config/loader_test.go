package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const yamlConfig = `
device:
  host: 192.0.2.10
  username: admin
  passphrase: secret
poll:
  interval: 120
  endpoints:
    - name: sysStats
      path: /mgmt/tmos/stats
  properties:
    - name: cpu
      property:
        key: sysStats/cpu
listeners:
  default:
    port: 6514
    tags:
      tenant: alpha
`

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "192.0.2.10", cfg.Device.Host)
	assert.Equal(t, 120, cfg.Poll.IntervalSeconds)
	require.Len(t, cfg.Poll.Properties, 1)
	assert.Equal(t, "cpu", cfg.Poll.Properties[0].Name)
	assert.Equal(t, "sysStats/cpu", cfg.Poll.Properties[0].Property.Key)
	assert.Equal(t, 6514, cfg.Listeners["default"].Port)
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.json", `{
		"device": {"host": "localhost"},
		"poll": {
			"endpoints": [{"name": "sysStats", "path": "/mgmt/tmos/stats"}],
			"properties": [{"name": "cpu", "property": {"key": "sysStats/cpu"}}]
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Device.Host)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.json", `{"device": {"host": "localhost"}}`))
	require.NoError(t, err)
	assert.Equal(t, defaultPollInterval, cfg.Poll.IntervalSeconds)
	assert.Equal(t, "devstream", cfg.NATS.Name)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(envDeviceUsername, "env-user")
	t.Setenv(envDevicePassphrase, "env-pass")

	cfg, err := Load(writeFile(t, "config.yaml", yamlConfig))
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.Device.Username)
	assert.Equal(t, "env-pass", cfg.Device.Passphrase)
}

func TestLoadUnknownExtension(t *testing.T) {
	_, err := Load(writeFile(t, "config.toml", "x = 1"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestListenerSpecsFiltersDisabled(t *testing.T) {
	off := false
	cfg := &Config{Listeners: map[string]ListenerConfig{
		"on":  {Port: 6514},
		"off": {Port: 6515, Enable: &off},
	}}

	specs := cfg.ListenerSpecs()
	require.Len(t, specs, 1)
	assert.Equal(t, 6514, specs["on"].Port)
}

func TestOrderingPreservedAcrossParse(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"device": {"host": "localhost"},
		"poll": {
			"properties": [
				{"name": "z", "property": {"key": "ep/z"}},
				{"name": "a", "property": {"key": "ep/a"}},
				{"name": "m", "property": {"key": "ep/m"}}
			]
		}
	}`))
	require.NoError(t, err)

	names := make([]string, 0, 3)
	for _, p := range cfg.Poll.Properties {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"z", "a", "m"}, names, "declaration order survives parsing")
}
