package envisalink

import (
	"context"
	"errors"
	"fmt"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/gaetancollaud/integrations-mqtt/pkg/utils"
	"github.com/rs/zerolog/log"
)

func userSchema() core.Schema {
	return core.Schema{
		{Key: confAlarmName, Type: core.FieldString, Default: defaultAlarmName},
		{Key: confHost, Type: core.FieldString, Required: true},
		{Key: confPort, Type: core.FieldInt, Default: defaultPort},
		{Key: confUserName, Type: core.FieldString, Required: true},
		{Key: confPassword, Type: core.FieldPassword, Required: true},
		{Key: confPanelType, Type: core.FieldSelect, Default: PanelHoneywell, Options: []string{PanelHoneywell, PanelDsc}},
		{Key: confEvlVersion, Type: core.FieldSelect, Default: "3", Options: []string{"3", "4"}},
		{Key: confZoneSet, Type: core.FieldString, Default: defaultZoneSet},
		{Key: confPartitionSet, Type: core.FieldString, Default: defaultPartitionSet},
		{Key: confCode, Type: core.FieldPassword},
	}
}

type configFlow struct {
	flowContext *core.FlowContext
}

func (f *configFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	if step != string(core.SourceUser) {
		return core.Abort("not_supported"), nil
	}
	schema := userSchema()
	if input == nil {
		return core.ShowForm("user", schema, nil), nil
	}
	errs := schema.Validate(input)
	if len(errs) > 0 {
		return core.ShowForm("user", schema, errs), nil
	}

	evlVersion := core.InputInt(input, confEvlVersion, 3)
	input[confEvlVersion] = evlVersion
	if _, ok := ParseRangeString(core.InputString(input, confZoneSet), 1, maxZones(evlVersion)); !ok {
		errs[confZoneSet] = "invalid_zone_spec"
	}
	if _, ok := ParseRangeString(core.InputString(input, confPartitionSet), 1, maxPartitions); !ok {
		errs[confPartitionSet] = "invalid_partition_spec"
	}
	if len(errs) > 0 {
		return core.ShowForm("user", schema, errs), nil
	}

	host := core.InputString(input, confHost)
	f.flowContext.SetUniqueId(host)
	if result, err := f.flowContext.AbortIfUniqueIdConfigured(ctx, nil); result != nil || err != nil {
		return result, err
	}

	if code := validateConnection(ctx, f.flowContext.Hub.Gateway, input); code != "" {
		return core.ShowForm("user", schema, map[string]string{"base": code}), nil
	}
	return core.CreateEntry(core.InputString(input, confAlarmName), input), nil
}

// validateConnection checks the panel through the gateway and returns the
// form error code, "" on success.
func validateConnection(ctx context.Context, transport gateway.Transport, input map[string]interface{}) string {
	if transport == nil {
		return "cannot_connect"
	}
	_, err := transport.Request(ctx, namespace, utils.NormalizeForTopicName(core.InputString(input, confHost)), map[string]interface{}{
		"command":    "check",
		"host":       core.InputString(input, confHost),
		"port":       core.InputInt(input, confPort, defaultPort),
		"user_name":  core.InputString(input, confUserName),
		"password":   core.InputString(input, confPassword),
		"panel_type": core.InputString(input, confPanelType),
	})
	if err == nil {
		return ""
	}
	var replyErr *gateway.ReplyError
	if errors.As(err, &replyErr) && replyErr.Code == "invalid_auth" {
		return "invalid_auth"
	}
	log.Warn().Err(err).Msg("Unable to reach the Envisalink.")
	return "cannot_connect"
}

type optionsFlow struct {
	entry *core.ConfigEntry
}

func (f *optionsFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	config := defaultConfig()
	if err := core.DecodeData(f.entry, &config); err != nil {
		return nil, err
	}
	schema := core.Schema{
		{Key: confCode, Type: core.FieldPassword, Default: nilIfEmpty(config.Code)},
		{Key: confPanicType, Type: core.FieldSelect, Default: config.PanicType, Options: panicTypes},
		{Key: confKeepaliveInterval, Type: core.FieldInt, Default: config.KeepaliveInterval},
		{Key: confZoneTypes, Type: core.FieldMapping},
	}
	if input == nil {
		return core.ShowForm("init", schema, nil), nil
	}
	errs := schema.Validate(input)
	if interval, ok := input[confKeepaliveInterval].(int); ok && interval < 0 {
		errs[confKeepaliveInterval] = "invalid_value"
	}
	if zoneTypes, ok := input[confZoneTypes].(map[string]interface{}); ok {
		zones, _ := ParseRangeString(config.ZoneSet, 1, maxZones(config.EvlVersion))
		for zone := range zoneTypes {
			if !containsZone(zones, zone) {
				errs[confZoneTypes] = "invalid_zone_spec"
			}
		}
	}
	if len(errs) > 0 {
		return core.ShowForm("init", schema, errs), nil
	}
	return core.CreateEntry("", input), nil
}

func containsZone(zones []int, zone string) bool {
	for _, z := range zones {
		if fmt.Sprint(z) == zone {
			return true
		}
	}
	return false
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
