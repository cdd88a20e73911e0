package hdmicec

const (
	Domain    = "hdmi_cec"
	namespace = "cec"

	confAdapter = "adapter"
	confOsdName = "osd_name"
	confDevices = "devices"

	defaultAdapter = "cec0"
	defaultOsdName = "HA"
)

// Power status reported by the devices.
const (
	PowerOn         = 0
	PowerStandby    = 1
	PowerTurningOn  = 2
	PowerTurningOff = 3
)

type DeviceType string

const (
	TypeTv       DeviceType = "tv"
	TypeRecorder DeviceType = "recorder"
	TypeTuner    DeviceType = "tuner"
	TypePlayback DeviceType = "playback"
	TypeAudio    DeviceType = "audio"
	TypeOther    DeviceType = "other"
)

// DeviceTypeOf derives the device type from a logical address.
func DeviceTypeOf(logicalAddress int) DeviceType {
	switch logicalAddress {
	case 0:
		return TypeTv
	case 1, 2, 9:
		return TypeRecorder
	case 3, 6, 7, 10:
		return TypeTuner
	case 4, 8, 11:
		return TypePlayback
	case 5:
		return TypeAudio
	}
	return TypeOther
}

// IsMedia reports whether devices of this type get media controls.
func (t DeviceType) IsMedia() bool {
	return t != TypeOther
}

type Config struct {
	Adapter string                 `mapstructure:"adapter"`
	OsdName string                 `mapstructure:"osd_name"`
	Devices map[string]interface{} `mapstructure:"devices"`
}

func defaultConfig() Config {
	return Config{Adapter: defaultAdapter, OsdName: defaultOsdName}
}
