package scrape

const (
	Domain = "scrape"

	confResource          = "resource"
	confHeaders           = "headers"
	confVerifySsl         = "verify_ssl"
	confTimeout           = "timeout"
	confScanInterval      = "scan_interval"
	confUsername          = "username"
	confPassword          = "password"
	confSensors           = "sensors"
	confName              = "name"
	confSelect            = "select"
	confIndex             = "index"
	confAttribute         = "attribute"
	confValueTemplate     = "value_template"
	confUnitOfMeasurement = "unit_of_measurement"
	confDeviceClass       = "device_class"
	confStateClass        = "state_class"
	confUniqueId          = "unique_id"

	defaultName         = "Web scrape"
	defaultTimeout      = 10
	defaultScanInterval = 600
	minScanInterval     = 10
)

type SensorConfig struct {
	Name              string `mapstructure:"name"`
	UniqueId          string `mapstructure:"unique_id"`
	Select            string `mapstructure:"select"`
	Index             int    `mapstructure:"index"`
	Attribute         string `mapstructure:"attribute"`
	ValueTemplate     string `mapstructure:"value_template"`
	UnitOfMeasurement string `mapstructure:"unit_of_measurement"`
	DeviceClass       string `mapstructure:"device_class"`
	StateClass        string `mapstructure:"state_class"`
}

type Config struct {
	Resource  string            `mapstructure:"resource"`
	Headers   map[string]string `mapstructure:"headers"`
	VerifySsl bool              `mapstructure:"verify_ssl"`
	Username  string            `mapstructure:"username"`
	Password  string            `mapstructure:"password"`
	// Seconds.
	Timeout      int            `mapstructure:"timeout"`
	ScanInterval int            `mapstructure:"scan_interval"`
	Sensors      []SensorConfig `mapstructure:"sensors"`
}
