package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func TestReadConfig(t *testing.T) {
	file := writeConfig(t, `
mqtt_url: tcp://broker:1883
mqtt_username: mqtt
integrations:
  - domain: iss
    title: ISS
    unique_id: iss
    options:
      show_on_map: true
  - domain: rest
    data:
      resource: http://localhost/api
`)

	c, err := ReadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, "tcp://broker:1883", c.Mqtt.MqttUrl, "MQTT url is wrong.")
	assert.Equal(t, "mqtt", c.Mqtt.Username, "MQTT username is wrong.")
	assert.Equal(t, "integrations", c.Mqtt.TopicPrefix, "MQTT prefix is wrong.")
	assert.Equal(t, "gateway", c.Gateway.TopicPrefix)
	assert.Equal(t, 8099, c.Servers.ApiPort)
	assert.Equal(t, "INFO", c.LogLevel)
	require.Len(t, c.Integrations, 2)
	assert.Equal(t, "iss", c.Integrations[0].Domain)
	assert.Equal(t, true, c.Integrations[0].Options["show_on_map"])
	assert.Equal(t, "http://localhost/api", c.Integrations[1].Data["resource"])
}

func TestReadConfigMissingRequired(t *testing.T) {
	file := writeConfig(t, "mqtt_username: mqtt\n")
	_, err := ReadConfig(file)
	assert.EqualError(t, err, "required field not found in config: mqtt_url")
}

func TestReadConfigIgnoresUnknownFields(t *testing.T) {
	file := writeConfig(t, "mqtt_url: tcp://broker:1883\nmqtt_topic_format: foo\n")
	c, err := ReadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "integrations", c.Mqtt.TopicPrefix)
}

func TestReadConfigIntegrationWithoutDomain(t *testing.T) {
	file := writeConfig(t, "mqtt_url: tcp://broker:1883\nintegrations:\n  - title: nothing\n")
	_, err := ReadConfig(file)
	assert.EqualError(t, err, "integration #0 has no domain")
}

func TestReadConfigEnvOverride(t *testing.T) {
	file := writeConfig(t, "mqtt_url: tcp://broker:1883\n")
	t.Setenv("GATEWAY_TOPIC_PREFIX", "gw")
	c, err := ReadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "gw", c.Gateway.TopicPrefix)
}
