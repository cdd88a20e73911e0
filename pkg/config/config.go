package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type ConfigMqtt struct {
	MqttUrl             string
	Username            string
	Password            string
	TopicPrefix         string
	NormalizeDeviceName bool
	Retain              bool
}
type ConfigGateway struct {
	TopicPrefix string
}
type ConfigHomeAssistant struct {
	DiscoveryEnabled     bool
	DiscoveryTopicPrefix string
	RemoveRegexpFromName string
	Retain               bool
}
type ConfigServers struct {
	ApiPort    int
	HealthPort int
	DebugPort  int
}

// ConfigIntegration is an entry declared in the YAML file and imported on
// start when it is not stored yet.
type ConfigIntegration struct {
	Domain   string                 `mapstructure:"domain"`
	Title    string                 `mapstructure:"title"`
	UniqueId string                 `mapstructure:"unique_id"`
	Data     map[string]interface{} `mapstructure:"data"`
	Options  map[string]interface{} `mapstructure:"options"`
}

type Config struct {
	Mqtt           ConfigMqtt
	Gateway        ConfigGateway
	HomeAssistant  ConfigHomeAssistant
	Servers        ConfigServers
	DatabasePath   string
	CacheDir       string
	RefreshAtStart bool
	LogLevel       string
	Integrations   []ConfigIntegration
}

const (
	undefined                               string = "__undefined__"
	envKeyMqttUrl                           string = "mqtt_url"
	envKeyMqttUsername                      string = "mqtt_username"
	envKeyMqttPassword                      string = "mqtt_password"
	envKeyMqttTopicPrefix                   string = "mqtt_topic_prefix"
	envKeyMqttNormalizeTopicName            string = "mqtt_normalize_device_name"
	envKeyMqttRetain                        string = "mqtt_retain"
	envKeyGatewayTopicPrefix                string = "gateway_topic_prefix"
	envKeyDatabasePath                      string = "database_path"
	envKeyCacheDir                          string = "cache_dir"
	envKeyApiPort                           string = "api_port"
	envKeyHealthPort                        string = "health_port"
	envKeyDebugPort                         string = "debug_port"
	envKeyRefreshAtStart                    string = "refresh_at_start"
	envKeyLogLevel                          string = "log_level"
	envKeyHomeAssistantDiscoveryEnabled     string = "home_assistant_discovery_enabled"
	envKeyHomeAssistantDiscoveryPrefix      string = "home_assistant_discovery_prefix"
	envKeyHomeAssistantRemoveRegexpFromName string = "home_assistant_remove_regexp_from_name"
	keyIntegrations                         string = "integrations"
)

var defaultConfig = map[string]interface{}{
	envKeyMqttUrl:                           undefined,
	envKeyMqttUsername:                      "",
	envKeyMqttPassword:                      "",
	envKeyMqttTopicPrefix:                   "integrations",
	envKeyMqttNormalizeTopicName:            true,
	envKeyMqttRetain:                        false,
	envKeyGatewayTopicPrefix:                "gateway",
	envKeyDatabasePath:                      "integrations.db",
	envKeyCacheDir:                          ".cache",
	envKeyApiPort:                           8099,
	envKeyHealthPort:                        8098,
	envKeyDebugPort:                         6060,
	envKeyRefreshAtStart:                    true,
	envKeyLogLevel:                          "INFO",
	envKeyHomeAssistantDiscoveryEnabled:     true,
	envKeyHomeAssistantDiscoveryPrefix:      "homeassistant",
	envKeyHomeAssistantRemoveRegexpFromName: "",
}

// ReadConfig returns a Config from the config file and env variables. An
// empty configFile looks for config.yaml in the current directory.
func ReadConfig(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Set the current directory where the binary is being run.
		v.AddConfigPath(".")
	}
	v.AutomaticEnv()
	for key, value := range defaultConfig {
		if value != undefined {
			v.SetDefault(key, value)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Env only setups are fine as long as required fields are present.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("ReadInConfig error: %w", err)
		}
	}

	// Check for undefined fields.
	for fieldName, defaultValue := range defaultConfig {
		if defaultValue == undefined && !v.IsSet(fieldName) {
			return nil, fmt.Errorf("required field not found in config: %s", fieldName)
		}
	}

	integrations := []ConfigIntegration{}
	if err := v.UnmarshalKey(keyIntegrations, &integrations); err != nil {
		return nil, fmt.Errorf("error decoding integrations: %w", err)
	}
	for i, integration := range integrations {
		if integration.Domain == "" {
			return nil, fmt.Errorf("integration #%d has no domain", i)
		}
	}

	config := &Config{
		Mqtt: ConfigMqtt{
			MqttUrl:             v.GetString(envKeyMqttUrl),
			Username:            v.GetString(envKeyMqttUsername),
			Password:            v.GetString(envKeyMqttPassword),
			TopicPrefix:         v.GetString(envKeyMqttTopicPrefix),
			NormalizeDeviceName: v.GetBool(envKeyMqttNormalizeTopicName),
			Retain:              v.GetBool(envKeyMqttRetain),
		},
		Gateway: ConfigGateway{
			TopicPrefix: v.GetString(envKeyGatewayTopicPrefix),
		},
		HomeAssistant: ConfigHomeAssistant{
			DiscoveryEnabled:     v.GetBool(envKeyHomeAssistantDiscoveryEnabled),
			DiscoveryTopicPrefix: v.GetString(envKeyHomeAssistantDiscoveryPrefix),
			RemoveRegexpFromName: v.GetString(envKeyHomeAssistantRemoveRegexpFromName),
			Retain:               v.GetBool(envKeyMqttRetain),
		},
		Servers: ConfigServers{
			ApiPort:    v.GetInt(envKeyApiPort),
			HealthPort: v.GetInt(envKeyHealthPort),
			DebugPort:  v.GetInt(envKeyDebugPort),
		},
		DatabasePath:   v.GetString(envKeyDatabasePath),
		CacheDir:       v.GetString(envKeyCacheDir),
		RefreshAtStart: v.GetBool(envKeyRefreshAtStart),
		LogLevel:       strings.ToUpper(v.GetString(envKeyLogLevel)),
		Integrations:   integrations,
	}

	return config, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("mqtt=%s prefix=%s gateway=%s db=%s integrations=%d",
		c.Mqtt.MqttUrl, c.Mqtt.TopicPrefix, c.Gateway.TopicPrefix, c.DatabasePath, len(c.Integrations))
}
