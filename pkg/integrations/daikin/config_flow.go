package daikin

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// lookupHostname resolves the network name of the unit, which is its SSID.
var lookupHostname = func(ctx context.Context, ip string) string {
	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ip
	}
	return strings.TrimSuffix(strings.TrimSuffix(names[0], "."), ".local")
}

type discovery struct {
	host     string
	hostName string
	apn      string
}

type configFlow struct {
	flowContext *core.FlowContext
	transport   Transport
	discovery   *discovery
}

func (f *configFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	switch step {
	case string(core.SourceZeroconf):
		return f.zeroconf(ctx, input)
	case string(core.SourceUser):
		if f.discovery == nil {
			return f.manual(ctx, input)
		}
		return f.user(ctx, input)
	case "manual":
		return f.manual(ctx, input)
	case string(core.SourceReconfigure):
		return f.reconfigure(ctx, input)
	}
	return core.Abort("not_supported"), nil
}

func (f *configFlow) findEntry(ctx context.Context, apn string) *core.ConfigEntry {
	for _, entry := range f.flowContext.Entries(ctx) {
		if cast.ToString(entry.Data[confDeviceApn]) == apn {
			return entry
		}
	}
	return nil
}

func (f *configFlow) zeroconf(ctx context.Context, input map[string]interface{}) (*core.FlowResult, error) {
	hostName := core.InputString(input, "hostname")
	hostName = strings.TrimSuffix(strings.TrimSuffix(hostName, "."), ".local")
	if hostName == "" {
		return core.Abort("unknown_device"), nil
	}
	properties := cast.ToStringMap(input["properties"])
	d := &discovery{
		host:     core.InputString(input, "host"),
		hostName: hostName,
		apn:      cast.ToString(properties["apn"]),
	}
	if d.apn == "" {
		return core.Abort("unknown_device"), nil
	}

	if existing := f.findEntry(ctx, d.apn); existing != nil {
		if cast.ToString(existing.Data[confHost]) == d.host {
			return core.Abort("already_configured"), nil
		}
		updated := existing.Clone()
		updated.Data[confHost] = d.host
		if err := f.flowContext.UpdateEntry(ctx, updated); err != nil {
			return nil, err
		}
		log.Info().Str("apn", d.apn).Str("host", d.host).Msg("Daikin unit moved to a new address.")
		return core.Abort("device_ip_updated"), nil
	}

	f.discovery = d
	f.flowContext.SetUniqueId(d.apn)
	return f.userForm(nil), nil
}

func userSchema() core.Schema {
	return core.Schema{
		{Key: confDeviceName, Type: core.FieldString, Required: true},
		{Key: confApiKey, Type: core.FieldPassword, Required: true},
	}
}

func (f *configFlow) userForm(errs map[string]string) *core.FlowResult {
	result := core.ShowForm("user", userSchema(), errs)
	result.Description = map[string]string{
		"host":      f.discovery.host,
		"host_name": f.discovery.hostName,
	}
	return result
}

func (f *configFlow) user(ctx context.Context, input map[string]interface{}) (*core.FlowResult, error) {
	if input == nil {
		return f.userForm(nil), nil
	}
	errs := userSchema().Validate(input)
	if len(errs) > 0 {
		return f.userForm(errs), nil
	}
	key := core.InputString(input, confApiKey)
	if !IsValidBase64(key) {
		return f.userForm(map[string]string{confApiKey: "invalid_key"}), nil
	}
	if _, err := f.transport.GetThingInfo(ctx, f.discovery.host, key, endpointStatus); err != nil {
		log.Warn().Err(err).Str("host", f.discovery.host).Msg("Unable to reach the Daikin unit.")
		return f.userForm(map[string]string{confApiKey: "cannot_connect"}), nil
	}
	if result, err := f.flowContext.AbortIfUniqueIdConfigured(ctx, nil); result != nil || err != nil {
		return result, err
	}

	name := core.InputString(input, confDeviceName)
	return core.CreateEntry(title(name, f.discovery.hostName), map[string]interface{}{
		confDeviceName: name,
		confApiKey:     key,
		confHost:       f.discovery.host,
		confDeviceApn:  f.discovery.apn,
		confDeviceSsid: f.discovery.hostName,
	}), nil
}

func manualSchema() core.Schema {
	return core.Schema{
		{Key: confDeviceIp, Type: core.FieldString, Required: true},
		{Key: confDeviceName, Type: core.FieldString, Required: true},
		{Key: confApiKey, Type: core.FieldPassword, Required: true},
	}
}

func (f *configFlow) manual(ctx context.Context, input map[string]interface{}) (*core.FlowResult, error) {
	schema := manualSchema()
	if input == nil {
		return core.ShowForm("manual", schema, nil), nil
	}
	errs := schema.Validate(input)
	if len(errs) > 0 {
		return core.ShowForm("manual", schema, errs), nil
	}
	ip := core.InputString(input, confDeviceIp)
	key := core.InputString(input, confApiKey)
	if !IsValidBase64(key) {
		return core.ShowForm("manual", schema, map[string]string{confApiKey: "invalid_key"}), nil
	}
	if _, err := f.transport.GetThingInfo(ctx, ip, key, endpointStatus); err != nil {
		log.Warn().Err(err).Str("host", ip).Msg("Unable to reach the Daikin unit.")
		return core.ShowForm("manual", schema, map[string]string{confApiKey: "cannot_connect"}), nil
	}
	info, err := f.transport.GetThingInfo(ctx, ip, key, endpointDevice)
	apn := ""
	if err == nil {
		apn = cast.ToString(info["apn"])
	}
	if apn == "" {
		return core.ShowForm("manual", schema, map[string]string{confDeviceIp: "cannot_connect"}), nil
	}
	if f.findEntry(ctx, apn) != nil {
		return core.Abort("already_configured"), nil
	}
	f.flowContext.SetUniqueId(apn)

	name := core.InputString(input, confDeviceName)
	ssid := lookupHostname(ctx, ip)
	return core.CreateEntry(title(name, ssid), map[string]interface{}{
		confDeviceIp:   ip,
		confDeviceName: name,
		confApiKey:     key,
		confHost:       ip,
		confDeviceApn:  apn,
		confDeviceSsid: ssid,
	}), nil
}

func (f *configFlow) reconfigure(ctx context.Context, input map[string]interface{}) (*core.FlowResult, error) {
	schema := core.Schema{{Key: confApiKey, Type: core.FieldPassword, Required: true}}
	if input == nil {
		return core.ShowForm("reconfigure", schema, nil), nil
	}
	errs := schema.Validate(input)
	if len(errs) > 0 {
		return core.ShowForm("reconfigure", schema, errs), nil
	}
	key := core.InputString(input, confApiKey)
	if !IsValidBase64(key) {
		return core.ShowForm("reconfigure", schema, map[string]string{confApiKey: "invalid_key"}), nil
	}
	host := cast.ToString(f.flowContext.Entry.Data[confHost])
	if _, err := f.transport.GetThingInfo(ctx, host, key, endpointStatus); err != nil {
		log.Warn().Err(err).Str("host", host).Msg("Unable to reach the Daikin unit.")
		return core.ShowForm("reconfigure", schema, map[string]string{confApiKey: "cannot_connect"}), nil
	}
	return f.flowContext.UpdateReloadAndAbort(ctx, map[string]interface{}{confApiKey: key}, "reconfigure_successful")
}

func title(name string, ssid string) string {
	return fmt.Sprintf("%s (SSID: %s)", name, ssid)
}
