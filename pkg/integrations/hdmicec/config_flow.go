package hdmicec

import (
	"context"
	"errors"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

func userSchema() core.Schema {
	return core.Schema{
		{Key: confAdapter, Type: core.FieldString, Default: defaultAdapter},
		{Key: confOsdName, Type: core.FieldString, Default: defaultOsdName},
		{Key: confDevices, Type: core.FieldMapping},
	}
}

type configFlow struct {
	flowContext *core.FlowContext
}

func (f *configFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	if step != string(core.SourceUser) && step != string(core.SourceImport) {
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
	if devices, ok := input[confDevices].(map[string]interface{}); ok {
		if _, err := ParseMapping(devices); err != nil {
			log.Warn().Err(err).Msg("Invalid CEC devices mapping.")
			return core.ShowForm("user", schema, map[string]string{confDevices: "invalid_mapping"}), nil
		}
	}
	adapter := core.InputString(input, confAdapter)
	if len(cast.ToString(input[confOsdName])) > 14 {
		return core.ShowForm("user", schema, map[string]string{confOsdName: "invalid_osd_name"}), nil
	}

	f.flowContext.SetUniqueId(adapter)
	if result, err := f.flowContext.AbortIfUniqueIdConfigured(ctx, nil); result != nil || err != nil {
		return result, err
	}
	if _, err := f.flowContext.Hub.Gateway.Request(ctx, namespace, adapter, map[string]interface{}{"command": "check"}); err != nil {
		log.Warn().Err(err).Str("adapter", adapter).Msg("CEC adapter check failed.")
		var replyErr *gateway.ReplyError
		if errors.As(err, &replyErr) && replyErr.Code == "not_found" {
			return core.ShowForm("user", schema, map[string]string{confAdapter: "adapter_not_found"}), nil
		}
		return core.ShowForm("user", schema, map[string]string{"base": "cannot_connect"}), nil
	}
	return core.CreateEntry("HDMI-CEC "+adapter, input), nil
}
