package homeassistant

// Interface to expose the endpoints to update any MQTT config needed by the
// Home Assistant discovery package.
type MqttConfig interface {
	// Returns a pointer to the device object for any modification required.
	GetDevice() *Device
	// Adds a new entry on the list of Availability topics.
	AddAvailability(Availability) MqttConfig
	// Get name of the entity.
	GetName() string
	// Set name for the entity.
	SetName(string) MqttConfig
	// Set retain value.
	SetRetain(bool) MqttConfig
	// Set availability mode.
	SetAvailabilityMode(string) MqttConfig
	// Set the topic carrying the JSON attributes of the entity.
	SetJsonAttributesTopic(string) MqttConfig
}

// Structure that encapsulates the information for the device exposed in
// Home Assistant.
type Device struct {
	ConfigurationUrl string   `json:"configuration_url,omitempty"`
	Identifiers      []string `json:"identifiers"`
	Manufacturer     string   `json:"manufacturer,omitempty"`
	Model            string   `json:"model,omitempty"`
	Name             string   `json:"name"`
	SwVersion        string   `json:"sw_version,omitempty"`
	ViaDevice        string   `json:"via_device,omitempty"`
}

// Structure that encapsulates the information to retrieve availability of
// devices and entities.
type Availability struct {
	Topic               string `json:"topic"`
	PayloadAvailable    string `json:"payload_available,omitempty"`
	PayloadNotAvailable string `json:"payload_not_available,omitempty"`
}

// Base config for all MQTT discovery configs.
type BaseConfig struct {
	Device              Device         `json:"device"`
	Name                string         `json:"name,omitempty"`
	UniqueId            string         `json:"unique_id,omitempty"`
	Retain              bool           `json:"retain"`
	Availability        []Availability `json:"availability,omitempty"`
	AvailabilityMode    string         `json:"availability_mode,omitempty"`
	JsonAttributesTopic string         `json:"json_attributes_topic,omitempty"`
	Icon                string         `json:"icon,omitempty"`
	QoS                 int            `json:"qos"`
}

// Returns a pointer to the device object.
func (c *BaseConfig) GetDevice() *Device {
	return &c.Device
}

// Adds a new entry on the list of Availability topics.
func (c *BaseConfig) AddAvailability(availability Availability) MqttConfig {
	c.Availability = append(c.Availability, availability)
	return c
}

// Get the name of the entity in the configuration.
func (c *BaseConfig) GetName() string {
	return c.Name
}

// Set the name for the entity in the configuration.
func (c *BaseConfig) SetName(name string) MqttConfig {
	c.Name = name
	return c
}

// Set retain value.
func (c *BaseConfig) SetRetain(retain bool) MqttConfig {
	c.Retain = retain
	return c
}

// Set availability mode.
func (c *BaseConfig) SetAvailabilityMode(mode string) MqttConfig {
	c.AvailabilityMode = mode
	return c
}

func (c *BaseConfig) SetJsonAttributesTopic(topic string) MqttConfig {
	c.JsonAttributesTopic = topic
	return c
}

// Light configuration:
// https://www.home-assistant.io/integrations/light.mqtt/
type LightConfig struct {
	BaseConfig
	CommandTopic            string   `json:"command_topic,omitempty"`
	StateTopic              string   `json:"state_topic,omitempty"`
	StateValueTemplate      string   `json:"state_value_template,omitempty"`
	PayloadOn               string   `json:"payload_on,omitempty"`
	PayloadOff              string   `json:"payload_off,omitempty"`
	OnCommandType           string   `json:"on_command_type,omitempty"`
	BrightnessScale         int      `json:"brightness_scale,omitempty"`
	BrightnessStateTopic    string   `json:"brightness_state_topic,omitempty"`
	BrightnessValueTemplate string   `json:"brightness_value_template,omitempty"`
	BrightnessCommandTopic  string   `json:"brightness_command_topic,omitempty"`
	ColorTempStateTopic     string   `json:"color_temp_state_topic,omitempty"`
	ColorTempValueTemplate  string   `json:"color_temp_value_template,omitempty"`
	ColorTempCommandTopic   string   `json:"color_temp_command_topic,omitempty"`
	MinMireds               int      `json:"min_mireds,omitempty"`
	MaxMireds               int      `json:"max_mireds,omitempty"`
	HsStateTopic            string   `json:"hs_state_topic,omitempty"`
	HsValueTemplate         string   `json:"hs_value_template,omitempty"`
	HsCommandTopic          string   `json:"hs_command_topic,omitempty"`
	EffectStateTopic        string   `json:"effect_state_topic,omitempty"`
	EffectValueTemplate     string   `json:"effect_value_template,omitempty"`
	EffectCommandTopic      string   `json:"effect_command_topic,omitempty"`
	EffectList              []string `json:"effect_list,omitempty"`
}

// Cover configuration:
// https://www.home-assistant.io/integrations/cover.mqtt/
type CoverConfig struct {
	BaseConfig
	DeviceClass        string `json:"device_class,omitempty"`
	StateTopic         string `json:"state_topic,omitempty"`
	StateClosed        string `json:"state_closed,omitempty"`
	StateOpen          string `json:"state_open,omitempty"`
	StateOpening       string `json:"state_opening,omitempty"`
	StateClosing       string `json:"state_closing,omitempty"`
	StateStopped       string `json:"state_stopped,omitempty"`
	CommandTopic       string `json:"command_topic,omitempty"`
	PayloadClose       string `json:"payload_close,omitempty"`
	PayloadOpen        string `json:"payload_open,omitempty"`
	PayloadStop        string `json:"payload_stop,omitempty"`
	PositionTopic      string `json:"position_topic,omitempty"`
	SetPositionTopic   string `json:"set_position_topic,omitempty"`
	PositionTemplate   string `json:"position_template,omitempty"`
	TiltStatusTopic    string `json:"tilt_status_topic,omitempty"`
	TiltCommandTopic   string `json:"tilt_command_topic,omitempty"`
	TiltStatusTemplate string `json:"tilt_status_template,omitempty"`
}

// Sensor configuration:
// https://www.home-assistant.io/integrations/sensor.mqtt/
type SensorConfig struct {
	BaseConfig
	StateTopic        string `json:"state_topic,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	ValueTemplate     string `json:"value_template,omitempty"`
}

// Binary sensor configuration:
// https://www.home-assistant.io/integrations/binary_sensor.mqtt/
type BinarySensorConfig struct {
	BaseConfig
	StateTopic  string `json:"state_topic,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`
	PayloadOn   string `json:"payload_on,omitempty"`
	PayloadOff  string `json:"payload_off,omitempty"`
}

// Switch configuration:
// https://www.home-assistant.io/integrations/switch.mqtt/
type SwitchConfig struct {
	BaseConfig
	StateTopic   string `json:"state_topic,omitempty"`
	CommandTopic string `json:"command_topic,omitempty"`
	PayloadOn    string `json:"payload_on,omitempty"`
	PayloadOff   string `json:"payload_off,omitempty"`
	StateOn      string `json:"state_on,omitempty"`
	StateOff     string `json:"state_off,omitempty"`
	DeviceClass  string `json:"device_class,omitempty"`
}

// Fan configuration:
// https://www.home-assistant.io/integrations/fan.mqtt/
type FanConfig struct {
	BaseConfig
	StateTopic              string   `json:"state_topic,omitempty"`
	CommandTopic            string   `json:"command_topic,omitempty"`
	PayloadOn               string   `json:"payload_on,omitempty"`
	PayloadOff              string   `json:"payload_off,omitempty"`
	PercentageStateTopic    string   `json:"percentage_state_topic,omitempty"`
	PercentageValueTemplate string   `json:"percentage_value_template,omitempty"`
	PercentageCommandTopic  string   `json:"percentage_command_topic,omitempty"`
	SpeedRangeMin           int      `json:"speed_range_min,omitempty"`
	SpeedRangeMax           int      `json:"speed_range_max,omitempty"`
	PresetModeStateTopic    string   `json:"preset_mode_state_topic,omitempty"`
	PresetModeValueTemplate string   `json:"preset_mode_value_template,omitempty"`
	PresetModeCommandTopic  string   `json:"preset_mode_command_topic,omitempty"`
	PresetModes             []string `json:"preset_modes,omitempty"`
}

// Button configuration:
// https://www.home-assistant.io/integrations/button.mqtt/
type ButtonConfig struct {
	BaseConfig
	CommandTopic string `json:"command_topic"`
	PayloadPress string `json:"payload_press,omitempty"`
	DeviceClass  string `json:"device_class,omitempty"`
}

// Alarm control panel configuration:
// https://www.home-assistant.io/integrations/alarm_control_panel.mqtt/
type AlarmControlPanelConfig struct {
	BaseConfig
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic"`
	CommandTemplate     string   `json:"command_template,omitempty"`
	Code                string   `json:"code,omitempty"`
	CodeArmRequired     bool     `json:"code_arm_required"`
	CodeDisarmRequired  bool     `json:"code_disarm_required"`
	CodeTriggerRequired bool     `json:"code_trigger_required"`
	SupportedFeatures   []string `json:"supported_features,omitempty"`
}

// Climate configuration:
// https://www.home-assistant.io/integrations/climate.mqtt/
type ClimateConfig struct {
	BaseConfig
	ModeCommandTopic           string   `json:"mode_command_topic,omitempty"`
	ModeStateTopic             string   `json:"mode_state_topic,omitempty"`
	ModeStateTemplate          string   `json:"mode_state_template,omitempty"`
	Modes                      []string `json:"modes,omitempty"`
	FanModeCommandTopic        string   `json:"fan_mode_command_topic,omitempty"`
	FanModeStateTopic          string   `json:"fan_mode_state_topic,omitempty"`
	FanModeStateTemplate       string   `json:"fan_mode_state_template,omitempty"`
	FanModes                   []string `json:"fan_modes,omitempty"`
	SwingModeCommandTopic      string   `json:"swing_mode_command_topic,omitempty"`
	SwingModeStateTopic        string   `json:"swing_mode_state_topic,omitempty"`
	SwingModeStateTemplate     string   `json:"swing_mode_state_template,omitempty"`
	SwingModes                 []string `json:"swing_modes,omitempty"`
	PresetModeCommandTopic     string   `json:"preset_mode_command_topic,omitempty"`
	PresetModeStateTopic       string   `json:"preset_mode_state_topic,omitempty"`
	PresetModeValueTemplate    string   `json:"preset_mode_value_template,omitempty"`
	PresetModes                []string `json:"preset_modes,omitempty"`
	TemperatureCommandTopic    string   `json:"temperature_command_topic,omitempty"`
	TemperatureStateTopic      string   `json:"temperature_state_topic,omitempty"`
	TemperatureStateTemplate   string   `json:"temperature_state_template,omitempty"`
	CurrentTemperatureTopic    string   `json:"current_temperature_topic,omitempty"`
	CurrentTemperatureTemplate string   `json:"current_temperature_template,omitempty"`
	MinTemp                    float64  `json:"min_temp,omitempty"`
	MaxTemp                    float64  `json:"max_temp,omitempty"`
	TempStep                   float64  `json:"temp_step,omitempty"`
	TemperatureUnit            string   `json:"temperature_unit,omitempty"`
}

// Device Trigger configuration:
// https://www.home-assistant.io/integrations/device_trigger.mqtt/
type DeviceTriggerConfig struct {
	BaseConfig
	AutomationType string `json:"automation_type"`
	Payload        string `json:"payload,omitempty"`
	Topic          string `json:"topic"`
	Type           string `json:"type"`
	Subtype        string `json:"subtype"`
}
