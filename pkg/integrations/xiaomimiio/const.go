package xiaomimiio

import (
	"regexp"
	"strings"
)

const (
	Domain    = "xiaomi_miio"
	namespace = "miio"

	confFlowType       = "flow_type"
	confCloudUsername  = "cloud_username"
	confCloudPassword  = "cloud_password"
	confCloudCountry   = "cloud_country"
	confCloudSubdevice = "cloud_subdevices"
	confManual         = "manual"
	confHost           = "host"
	confToken          = "token"
	confModel          = "model"
	confMac            = "mac"
	confSelectDevice   = "select_device"

	flowTypeGateway = "gateway"
	flowTypeDevice  = "device"

	defaultCloudCountry = "cn"

	stateOn  = "ON"
	stateOff = "OFF"

	commandSet = "set"
)

var (
	cloudCountries = []string{"cn", "de", "i2", "ru", "sg", "us"}
	tokenPattern   = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
)

// Model families with an entity mapping.
var (
	modelsPlugUsb = []string{
		"chuangmi.plug.v1",
		"chuangmi.plug.v3",
		"chuangmi.plug.hmi208",
	}
	modelsPlug = []string{
		"chuangmi.plug.m1",
		"chuangmi.plug.m3",
		"chuangmi.plug.v2",
		"chuangmi.plug.hmi205",
		"chuangmi.plug.hmi206",
	}
	modelsPowerStrip = []string{
		"qmi.powerstrip.v1",
		"zimi.powerstrip.v2",
	}
	modelsLightBulb = []string{
		"philips.light.bulb",
		"philips.light.hbulb",
		"philips.light.downlight",
		"philips.light.candle",
		"philips.light.candle2",
	}
	modelsLightCeiling = []string{
		"philips.light.ceiling",
		"philips.light.zyceiling",
	}
	modelsPurifierMiio = []string{
		"zhimi.airpurifier.m1",
		"zhimi.airpurifier.m2",
		"zhimi.airpurifier.ma1",
		"zhimi.airpurifier.ma2",
		"zhimi.airpurifier.sa1",
		"zhimi.airpurifier.sa2",
		"zhimi.airpurifier.v6",
		"zhimi.airpurifier.v7",
		"zhimi.airpurifier.mc1",
		"zhimi.airpurifier.mc2",
	}
	modelsPurifierMiot = []string{
		"zhimi.airpurifier.ma4",
		"zhimi.airpurifier.mb3",
		"zhimi.airpurifier.va1",
		"zhimi.airpurifier.vb2",
	}
	modelsAirMonitor = []string{
		"zhimi.airmonitor.v1",
	}
)

type family int

const (
	familyUnknown family = iota
	familyPlugUsb
	familyPlug
	familyPowerStrip
	familyLightBulb
	familyLightCeiling
	familyPurifierMiio
	familyPurifierMiot
	familyAirMonitor
)

func modelFamily(model string) family {
	families := []struct {
		models []string
		family family
	}{
		{modelsPlugUsb, familyPlugUsb},
		{modelsPlug, familyPlug},
		{modelsPowerStrip, familyPowerStrip},
		{modelsLightBulb, familyLightBulb},
		{modelsLightCeiling, familyLightCeiling},
		{modelsPurifierMiio, familyPurifierMiio},
		{modelsPurifierMiot, familyPurifierMiot},
		{modelsAirMonitor, familyAirMonitor},
	}
	for _, f := range families {
		for _, m := range f.models {
			if m == model {
				return f.family
			}
		}
	}
	return familyUnknown
}

// isGatewayModel reports the Aqara gateways, whose sub-devices come from the
// cloud.
func isGatewayModel(model string) bool {
	return strings.HasPrefix(model, "lumi.gateway.")
}

// supportedModel reports whether a model is known to the integration.
func supportedModel(model string) bool {
	return modelFamily(model) != familyUnknown || isGatewayModel(model)
}

// Config is the data of a config entry.
type Config struct {
	FlowType        string `mapstructure:"flow_type"`
	CloudUsername   string `mapstructure:"cloud_username"`
	CloudPassword   string `mapstructure:"cloud_password"`
	CloudCountry    string `mapstructure:"cloud_country"`
	CloudSubdevices bool   `mapstructure:"cloud_subdevices"`
	Host            string `mapstructure:"host"`
	Token           string `mapstructure:"token"`
	Model           string `mapstructure:"model"`
	Mac             string `mapstructure:"mac"`
}
