package daikin

import "time"

const (
	Domain = "daikin"

	confDeviceIp   = "device_ip"
	confDeviceName = "device_name"
	confApiKey     = "api_key"
	confHost       = "host"
	confDeviceApn  = "device_apn"
	confDeviceSsid = "device_ssid"

	endpointStatus = "acstatus"
	endpointDevice = "device"

	port = "port1"

	scanInterval = 30 * time.Second

	minTemp         = 10.0
	maxTemp         = 32.0
	minSetpointTemp = 16.0
	maxSetpointTemp = 30.0
)

const (
	HvacOff     = "off"
	HvacFanOnly = "fan_only"
	HvacCool    = "cool"
	HvacDry     = "dry"
	HvacHeat    = "heat"
	HvacAuto    = "auto"

	FanAuto       = "auto"
	FanHigh       = "high"
	FanMediumHigh = "medium_high"
	FanMedium     = "medium"
	FanLowMedium  = "low_medium"
	FanLow        = "low"
	FanQuiet      = "quiet"

	SwingVertical = "vertical"
	SwingOff      = "off"

	PresetEco   = "eco"
	PresetBoost = "boost"
	PresetNone  = "none"
)

var (
	hvacModes = map[int]string{
		0: HvacOff,
		6: HvacFanOnly,
		3: HvacCool,
		2: HvacDry,
		4: HvacHeat,
		1: HvacAuto,
	}
	fanModes = map[int]string{
		17: FanAuto,
		7:  FanHigh,
		6:  FanMediumHigh,
		5:  FanMedium,
		4:  FanLowMedium,
		3:  FanLow,
		18: FanQuiet,
	}
	// Display order of the modes in Home Assistant.
	hvacModeList = []string{HvacOff, HvacAuto, HvacCool, HvacDry, HvacFanOnly, HvacHeat}
	fanModeList  = []string{FanAuto, FanHigh, FanMediumHigh, FanMedium, FanLowMedium, FanLow, FanQuiet}
)

func reverse(m map[int]string) map[string]int {
	r := make(map[string]int, len(m))
	for k, v := range m {
		r[v] = k
	}
	return r
}

var (
	hvacValues = reverse(hvacModes)
	fanValues  = reverse(fanModes)
)

func mapHvacMode(value int) string {
	if mode, ok := hvacModes[value]; ok {
		return mode
	}
	return HvacOff
}

func mapFanSpeed(value int) string {
	if mode, ok := fanModes[value]; ok {
		return mode
	}
	return FanAuto
}
