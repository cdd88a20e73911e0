package localtuya

import "time"

const (
	Domain    = "localtuya"
	namespace = "tuya"

	confFriendlyName    = "friendly_name"
	confHost            = "host"
	confDeviceId        = "device_id"
	confLocalKey        = "local_key"
	confProtocolVersion = "protocol_version"
	confEntities        = "entities"

	confPlatform = "platform"
	confId       = "id"
	confDone     = "no_additional_entities"

	confCommandsSet       = "commands_set"
	confPositioningMode   = "positioning_mode"
	confCurrentPositionDp = "current_position_dp"
	confSetPositionDp     = "set_position_dp"
	confPositionInverted  = "position_inverted"
	confSpanTime          = "span_time"

	confBrightness       = "brightness"
	confBrightnessLower  = "brightness_lower"
	confBrightnessUpper  = "brightness_upper"
	confColorTemp        = "color_temp"
	confColorTempReverse = "color_temp_reverse"
	confColorMode        = "color_mode"
	confColor            = "color"

	confCurrent            = "current"
	confCurrentConsumption = "current_consumption"
	confVoltage            = "voltage"

	PlatformSwitch = "switch"
	PlatformCover  = "cover"
	PlatformLight  = "light"

	CommandsOnOffStop     = "on_off_stop"
	CommandsOpenCloseStop = "open_close_stop"
	CommandsFzZzStop      = "fz_zz_stop"
	Commands123           = "1_2_3"

	ModeNone     = "none"
	ModePosition = "position"
	ModeTimed    = "timed"

	defaultSpanTime        = 25 * time.Second
	defaultBrightnessLower = 29
	defaultBrightnessUpper = 1000
	defaultProtocolVersion = "3.3"

	// Colour temperature range in mireds (6500K..2700K).
	minMireds = 153
	maxMireds = 370
)

var (
	platforms        = []string{PlatformSwitch, PlatformCover, PlatformLight}
	protocolVersions = []string{"3.1", "3.2", "3.3", "3.4", "3.5"}
	positioningModes = []string{ModeNone, ModePosition, ModeTimed}
	commandSets      = []string{CommandsOnOffStop, CommandsOpenCloseStop, CommandsFzZzStop, Commands123}
)

// coverCommands are the open, close and stop values of a commands set.
func coverCommands(set string) (string, string, string) {
	switch set {
	case CommandsOnOffStop:
		return "on", "off", "stop"
	case CommandsFzZzStop:
		return "fz", "zz", "stop"
	case Commands123:
		return "1", "2", "3"
	}
	return "open", "close", "stop"
}

// EntityConfig describes one entity mapped onto the DPs of a device.
type EntityConfig struct {
	Platform     string `mapstructure:"platform"`
	Id           string `mapstructure:"id"`
	FriendlyName string `mapstructure:"friendly_name"`

	CommandsSet       string  `mapstructure:"commands_set"`
	PositioningMode   string  `mapstructure:"positioning_mode"`
	CurrentPositionDp string  `mapstructure:"current_position_dp"`
	SetPositionDp     string  `mapstructure:"set_position_dp"`
	PositionInverted  bool    `mapstructure:"position_inverted"`
	SpanTime          float64 `mapstructure:"span_time"`

	BrightnessDp     string `mapstructure:"brightness"`
	BrightnessLower  int    `mapstructure:"brightness_lower"`
	BrightnessUpper  int    `mapstructure:"brightness_upper"`
	ColorTempDp      string `mapstructure:"color_temp"`
	ColorTempReverse bool   `mapstructure:"color_temp_reverse"`
	ColorModeDp      string `mapstructure:"color_mode"`
	ColorDp          string `mapstructure:"color"`

	CurrentDp            string `mapstructure:"current"`
	CurrentConsumptionDp string `mapstructure:"current_consumption"`
	VoltageDp            string `mapstructure:"voltage"`
}

type Config struct {
	FriendlyName    string         `mapstructure:"friendly_name"`
	Host            string         `mapstructure:"host"`
	DeviceId        string         `mapstructure:"device_id"`
	LocalKey        string         `mapstructure:"local_key"`
	ProtocolVersion string         `mapstructure:"protocol_version"`
	Entities        []EntityConfig `mapstructure:"entities"`
}
