package rest

const (
	Domain = "rest"

	confResource           = "resource"
	confMethod             = "method"
	confName               = "name"
	confValueTemplate      = "value_template"
	confAvailability       = "availability_template"
	confJsonAttributes     = "json_attributes"
	confJsonAttributesPath = "json_attributes_path"
	confUnitOfMeasurement  = "unit_of_measurement"
	confDeviceClass        = "device_class"
	confStateClass         = "state_class"
	confHeaders            = "headers"
	confParams             = "params"
	confPayload            = "payload"
	confUsername           = "username"
	confPassword           = "password"
	confVerifySsl          = "verify_ssl"
	confTimeout            = "timeout"
	confScanInterval       = "scan_interval"

	MethodGet  = "GET"
	MethodPost = "POST"

	defaultName         = "REST Sensor"
	defaultTimeout      = 10
	defaultScanInterval = 30
	minScanInterval     = 5

	maxBodySize = 10 << 20
)

var methods = []string{MethodGet, MethodPost}

type Config struct {
	Resource           string            `mapstructure:"resource"`
	Method             string            `mapstructure:"method"`
	Name               string            `mapstructure:"name"`
	ValueTemplate      string            `mapstructure:"value_template"`
	Availability       string            `mapstructure:"availability_template"`
	JsonAttributes     []string          `mapstructure:"json_attributes"`
	JsonAttributesPath string            `mapstructure:"json_attributes_path"`
	UnitOfMeasurement  string            `mapstructure:"unit_of_measurement"`
	DeviceClass        string            `mapstructure:"device_class"`
	StateClass         string            `mapstructure:"state_class"`
	Headers            map[string]string `mapstructure:"headers"`
	Params             map[string]string `mapstructure:"params"`
	Payload            string            `mapstructure:"payload"`
	Username           string            `mapstructure:"username"`
	Password           string            `mapstructure:"password"`
	VerifySsl          bool              `mapstructure:"verify_ssl"`
	// Seconds.
	Timeout      int `mapstructure:"timeout"`
	ScanInterval int `mapstructure:"scan_interval"`
}

func defaultConfig() Config {
	return Config{
		Method:       MethodGet,
		Name:         defaultName,
		VerifySsl:    true,
		Timeout:      defaultTimeout,
		ScanInterval: defaultScanInterval,
	}
}
