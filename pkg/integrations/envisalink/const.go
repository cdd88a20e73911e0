package envisalink

const (
	Domain    = "envisalink"
	namespace = "envisalink"

	confHost              = "host"
	confPort              = "port"
	confUserName          = "user_name"
	confPassword          = "password"
	confPanelType         = "panel_type"
	confEvlVersion        = "evl_version"
	confZoneSet           = "zone_set"
	confPartitionSet      = "partition_set"
	confCode              = "code"
	confAlarmName         = "alarm_name"
	confPanicType         = "panic_type"
	confKeepaliveInterval = "keepalive_interval"
	confZoneTypes         = "zone_types"

	PanelHoneywell = "HONEYWELL"
	PanelDsc       = "DSC"

	defaultPort              = 4025
	defaultZoneSet           = "1-8"
	defaultPartitionSet      = "1"
	defaultAlarmName         = "Envisalink"
	defaultPanicType         = "Police"
	defaultKeepaliveInterval = 60
	defaultZoneType          = "opening"

	maxPartitions = 8

	StateDisarmed   = "disarmed"
	StateArmedHome  = "armed_home"
	StateArmedAway  = "armed_away"
	StateArmedNight = "armed_night"
	StateArming     = "arming"
	StatePending    = "pending"
	StateTriggered  = "triggered"
)

var panicTypes = []string{"Police", "Fire", "Ambulance"}

func maxZones(evlVersion int) int {
	if evlVersion >= 4 {
		return 128
	}
	return 64
}

// Config is the decoded entry data and options.
type Config struct {
	Host              string            `mapstructure:"host"`
	Port              int               `mapstructure:"port"`
	UserName          string            `mapstructure:"user_name"`
	Password          string            `mapstructure:"password"`
	PanelType         string            `mapstructure:"panel_type"`
	EvlVersion        int               `mapstructure:"evl_version"`
	ZoneSet           string            `mapstructure:"zone_set"`
	PartitionSet      string            `mapstructure:"partition_set"`
	Code              string            `mapstructure:"code"`
	AlarmName         string            `mapstructure:"alarm_name"`
	PanicType         string            `mapstructure:"panic_type"`
	KeepaliveInterval int               `mapstructure:"keepalive_interval"`
	ZoneTypes         map[string]string `mapstructure:"zone_types"`
}

func defaultConfig() Config {
	return Config{
		Port:              defaultPort,
		PanelType:         PanelHoneywell,
		EvlVersion:        3,
		ZoneSet:           defaultZoneSet,
		PartitionSet:      defaultPartitionSet,
		AlarmName:         defaultAlarmName,
		PanicType:         defaultPanicType,
		KeepaliveInterval: defaultKeepaliveInterval,
	}
}
