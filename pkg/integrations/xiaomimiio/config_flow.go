package xiaomimiio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/gaetancollaud/integrations-mqtt/pkg/utils"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

const (
	stepCloud   = "cloud"
	stepManual  = "manual"
	stepConnect = "connect"
	stepSelect  = "select"

	cloudDevice = "cloud"
)

func cloudSchema() core.Schema {
	return core.Schema{
		{Key: confCloudUsername, Type: core.FieldString},
		{Key: confCloudPassword, Type: core.FieldPassword},
		{Key: confCloudCountry, Type: core.FieldSelect, Default: defaultCloudCountry, Options: cloudCountries},
		{Key: confManual, Type: core.FieldBool, Default: false},
	}
}

func manualSchema() core.Schema {
	return core.Schema{
		{Key: confHost, Type: core.FieldString, Required: true},
		{Key: confToken, Type: core.FieldPassword, Required: true},
	}
}

func connectSchema() core.Schema {
	return core.Schema{{Key: confModel, Type: core.FieldString}}
}

func formatMac(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}

// cloudDeviceInfo is one device of the account, as listed by the gateway.
type cloudDeviceInfo struct {
	Name    string `mapstructure:"name"`
	Model   string `mapstructure:"model"`
	Mac     string `mapstructure:"mac"`
	LocalIp string `mapstructure:"localip"`
	Token   string `mapstructure:"token"`
}

func (d cloudDeviceInfo) label() string {
	return fmt.Sprintf("%s - %s", d.Name, d.Model)
}

type configFlow struct {
	flowContext *core.FlowContext

	host  string
	token string
	model string
	mac   string
	name  string

	cloudUsername string
	cloudPassword string
	cloudCountry  string
	cloudDevices  []cloudDeviceInfo
}

func (f *configFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	switch step {
	case string(core.SourceUser), stepCloud:
		return f.cloud(ctx, input)
	case string(core.SourceZeroconf):
		return f.zeroconf(ctx, input)
	case string(core.SourceReconfigure):
		return f.reconfigure(ctx, input)
	case stepManual:
		return f.manual(ctx, input)
	case stepConnect:
		return f.connect(ctx, input)
	case stepSelect:
		return f.selectDevice(ctx, input)
	}
	return core.Abort("not_supported"), nil
}

// zeroconf accepts "_miio._udp" announcements named
// "<model with dashes>_miio<id>".
func (f *configFlow) zeroconf(ctx context.Context, input map[string]interface{}) (*core.FlowResult, error) {
	name := core.InputString(input, "name")
	host := core.InputString(input, "host")
	mac := formatMac(cast.ToString(cast.ToStringMap(input["properties"])["mac"]))
	if name == "" || host == "" || mac == "" {
		return core.Abort("not_xiaomi_miio"), nil
	}
	index := strings.Index(name, "_miio")
	if index <= 0 {
		return core.Abort("not_xiaomi_miio"), nil
	}
	model := strings.ReplaceAll(name[:index], "-", ".")
	if !supportedModel(model) {
		log.Debug().Str("name", name).Msg("Not a supported miio device.")
		return core.Abort("not_xiaomi_miio"), nil
	}

	f.flowContext.SetUniqueId(mac)
	if result, err := f.flowContext.AbortIfUniqueIdConfigured(ctx, map[string]interface{}{confHost: host}); result != nil || err != nil {
		return result, err
	}
	f.host, f.mac, f.model = host, mac, model
	return core.ShowForm(stepCloud, cloudSchema(), nil), nil
}

// reconfigure renews the cloud credentials of an entry.
func (f *configFlow) reconfigure(ctx context.Context, input map[string]interface{}) (*core.FlowResult, error) {
	entry := f.flowContext.Entry
	f.host = cast.ToString(entry.Data[confHost])
	f.mac = cast.ToString(entry.Data[confMac])
	return core.ShowForm(stepCloud, cloudSchema(), nil), nil
}

func (f *configFlow) cloud(ctx context.Context, input map[string]interface{}) (*core.FlowResult, error) {
	schema := cloudSchema()
	if input == nil {
		return core.ShowForm(stepCloud, schema, nil), nil
	}
	if errs := schema.Validate(input); len(errs) > 0 {
		return core.ShowForm(stepCloud, schema, errs), nil
	}
	if core.InputBool(input, confManual, false) {
		return core.ShowForm(stepManual, manualSchema(), nil), nil
	}
	f.cloudUsername = core.InputString(input, confCloudUsername)
	f.cloudPassword = core.InputString(input, confCloudPassword)
	f.cloudCountry = core.InputString(input, confCloudCountry)
	if f.cloudUsername == "" || f.cloudPassword == "" {
		return core.ShowForm(stepCloud, schema, map[string]string{"base": "cloud_credentials_incomplete"}), nil
	}

	reply, err := f.flowContext.Hub.Gateway.Request(ctx, namespace, cloudDevice, map[string]interface{}{
		"command":         "cloud_devices",
		confCloudUsername: f.cloudUsername,
		confCloudPassword: f.cloudPassword,
		confCloudCountry:  f.cloudCountry,
	})
	if err != nil {
		var replyErr *gateway.ReplyError
		if errors.As(err, &replyErr) && replyErr.Code == "login_error" {
			return core.ShowForm(stepCloud, schema, map[string]string{"base": "cloud_login_error"}), nil
		}
		log.Error().Err(err).Msg("Unexpected error listing the Xiaomi cloud devices.")
		return core.Abort("unknown"), nil
	}

	if f.flowContext.Source == core.SourceReconfigure {
		return f.flowContext.UpdateReloadAndAbort(ctx, map[string]interface{}{
			confCloudUsername: f.cloudUsername,
			confCloudPassword: f.cloudPassword,
			confCloudCountry:  f.cloudCountry,
		}, "reauth_successful")
	}

	f.cloudDevices = nil
	for _, raw := range cast.ToSlice(reply["devices"]) {
		var info cloudDeviceInfo
		if err := mapstructure.WeakDecode(raw, &info); err != nil {
			continue
		}
		if f.mac != "" && formatMac(info.Mac) != f.mac {
			continue
		}
		f.cloudDevices = append(f.cloudDevices, info)
	}
	switch len(f.cloudDevices) {
	case 0:
		return core.ShowForm(stepCloud, schema, map[string]string{"base": "cloud_no_devices"}), nil
	case 1:
		return f.fromCloud(ctx, f.cloudDevices[0])
	}
	return f.selectForm(), nil
}

func (f *configFlow) selectSchema() core.Schema {
	labels := make([]string, 0, len(f.cloudDevices))
	for _, d := range f.cloudDevices {
		labels = append(labels, d.label())
	}
	return core.Schema{{Key: confSelectDevice, Type: core.FieldSelect, Required: true, Options: labels}}
}

func (f *configFlow) selectForm() *core.FlowResult {
	return core.ShowForm(stepSelect, f.selectSchema(), nil)
}

func (f *configFlow) selectDevice(ctx context.Context, input map[string]interface{}) (*core.FlowResult, error) {
	schema := f.selectSchema()
	if input == nil {
		return f.selectForm(), nil
	}
	if errs := schema.Validate(input); len(errs) > 0 {
		return core.ShowForm(stepSelect, schema, errs), nil
	}
	label := core.InputString(input, confSelectDevice)
	for _, d := range f.cloudDevices {
		if d.label() == label {
			return f.fromCloud(ctx, d)
		}
	}
	return core.ShowForm(stepSelect, schema, map[string]string{confSelectDevice: "invalid_value"}), nil
}

func (f *configFlow) fromCloud(ctx context.Context, info cloudDeviceInfo) (*core.FlowResult, error) {
	if info.Token == "" || info.LocalIp == "" || info.Model == "" {
		return core.Abort("incomplete_info"), nil
	}
	f.host = info.LocalIp
	f.token = info.Token
	f.model = info.Model
	f.mac = formatMac(info.Mac)
	f.name = info.Name
	return f.createEntry(ctx)
}

func (f *configFlow) manual(ctx context.Context, input map[string]interface{}) (*core.FlowResult, error) {
	schema := manualSchema()
	if input == nil {
		return core.ShowForm(stepManual, schema, nil), nil
	}
	if errs := schema.Validate(input); len(errs) > 0 {
		return core.ShowForm(stepManual, schema, errs), nil
	}
	token := core.InputString(input, confToken)
	if !tokenPattern.MatchString(token) {
		return core.ShowForm(stepManual, schema, map[string]string{confToken: "invalid_token"}), nil
	}
	f.host = core.InputString(input, confHost)
	f.token = token
	return f.connect(ctx, nil)
}

// connect reads the model and mac from the device. A model typed in the
// connect form is used as is when the device does not answer.
func (f *configFlow) connect(ctx context.Context, input map[string]interface{}) (*core.FlowResult, error) {
	schema := connectSchema()
	if input != nil {
		if errs := schema.Validate(input); len(errs) > 0 {
			return core.ShowForm(stepConnect, schema, errs), nil
		}
		if model := core.InputString(input, confModel); model != "" {
			f.model = model
			f.mac = ""
			return f.createEntry(ctx)
		}
	}

	reply, err := f.flowContext.Hub.Gateway.Request(ctx, namespace, utils.NormalizeForTopicName(f.host), map[string]interface{}{
		"command": "info",
		confHost:  f.host,
		confToken: f.token,
	})
	if err != nil {
		log.Warn().Err(err).Str("host", f.host).Msg("Unable to read the miio device info.")
		var replyErr *gateway.ReplyError
		if errors.As(err, &replyErr) && replyErr.Code == "wrong_token" {
			return core.ShowForm(stepConnect, schema, map[string]string{"base": "wrong_token"}), nil
		}
		return core.ShowForm(stepConnect, schema, map[string]string{"base": "cannot_connect"}), nil
	}
	model := cast.ToString(reply[confModel])
	if model == "" {
		return core.ShowForm(stepConnect, schema, map[string]string{"base": "cannot_connect"}), nil
	}
	if !supportedModel(model) {
		log.Warn().Str("model", model).Msg("Unsupported miio model.")
		return core.ShowForm(stepConnect, schema, map[string]string{"base": "unknown_device"}), nil
	}
	f.model = model
	f.mac = formatMac(cast.ToString(reply[confMac]))
	return f.createEntry(ctx)
}

func (f *configFlow) createEntry(ctx context.Context) (*core.FlowResult, error) {
	if f.mac != "" {
		f.flowContext.SetUniqueId(f.mac)
		if result, err := f.flowContext.AbortIfUniqueIdConfigured(ctx, map[string]interface{}{confHost: f.host, confToken: f.token}); result != nil || err != nil {
			return result, err
		}
	}
	flowType := flowTypeDevice
	if isGatewayModel(f.model) {
		flowType = flowTypeGateway
	}
	title := f.name
	if title == "" {
		title = f.model
	}
	data := map[string]interface{}{
		confFlowType:      flowType,
		confCloudUsername: f.cloudUsername,
		confCloudPassword: f.cloudPassword,
		confCloudCountry:  f.cloudCountry,
		confHost:          f.host,
		confToken:         f.token,
		confModel:         f.model,
		confMac:           f.mac,
	}
	return core.CreateEntry(title, data), nil
}

type optionsFlow struct {
	entry *core.ConfigEntry
}

// Step "init" toggles the cloud sub-devices, which need the cloud
// credentials of the entry.
func (f *optionsFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	config := Config{}
	if err := core.DecodeData(f.entry, &config); err != nil {
		return nil, err
	}
	schema := core.Schema{{Key: confCloudSubdevice, Type: core.FieldBool, Default: config.CloudSubdevices}}
	if input == nil {
		return core.ShowForm("init", schema, nil), nil
	}
	if errs := schema.Validate(input); len(errs) > 0 {
		return core.ShowForm("init", schema, errs), nil
	}
	subdevices := core.InputBool(input, confCloudSubdevice, false)
	if subdevices && (config.CloudUsername == "" || config.CloudPassword == "" || config.CloudCountry == "") {
		return core.ShowForm("init", schema, map[string]string{"base": "cloud_credentials_incomplete"}), nil
	}
	return core.CreateEntry("", map[string]interface{}{confCloudSubdevice: subdevices}), nil
}
