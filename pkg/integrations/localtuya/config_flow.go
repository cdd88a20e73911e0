package localtuya

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/gateway"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

const (
	stepPickEntityType = "pick_entity_type"
	stepAddEntity      = "add_entity"
)

func userSchema() core.Schema {
	return core.Schema{
		{Key: confFriendlyName, Type: core.FieldString, Required: true},
		{Key: confHost, Type: core.FieldString, Required: true},
		{Key: confDeviceId, Type: core.FieldString, Required: true},
		{Key: confLocalKey, Type: core.FieldPassword, Required: true},
		{Key: confProtocolVersion, Type: core.FieldSelect, Default: defaultProtocolVersion, Options: protocolVersions},
	}
}

func pickSchema() core.Schema {
	return core.Schema{
		{Key: confPlatform, Type: core.FieldSelect, Default: PlatformSwitch, Options: platforms},
		{Key: confDone, Type: core.FieldBool, Default: false},
	}
}

// entitySchema lists the fields of a platform. DP fields are selects over
// the DPs not yet used.
func entitySchema(platform string, dps []string) core.Schema {
	optional := append([]string{""}, dps...)
	schema := core.Schema{
		{Key: confId, Type: core.FieldSelect, Required: true, Options: dps},
		{Key: confFriendlyName, Type: core.FieldString, Required: true},
	}
	switch platform {
	case PlatformCover:
		schema = append(schema,
			core.Field{Key: confCommandsSet, Type: core.FieldSelect, Default: CommandsOnOffStop, Options: commandSets},
			core.Field{Key: confPositioningMode, Type: core.FieldSelect, Default: ModeNone, Options: positioningModes},
			core.Field{Key: confCurrentPositionDp, Type: core.FieldSelect, Options: optional},
			core.Field{Key: confSetPositionDp, Type: core.FieldSelect, Options: optional},
			core.Field{Key: confPositionInverted, Type: core.FieldBool, Default: false},
			core.Field{Key: confSpanTime, Type: core.FieldFloat, Default: defaultSpanTime.Seconds()},
		)
	case PlatformLight:
		schema = append(schema,
			core.Field{Key: confBrightness, Type: core.FieldSelect, Options: optional},
			core.Field{Key: confBrightnessLower, Type: core.FieldInt, Default: defaultBrightnessLower},
			core.Field{Key: confBrightnessUpper, Type: core.FieldInt, Default: defaultBrightnessUpper},
			core.Field{Key: confColorTemp, Type: core.FieldSelect, Options: optional},
			core.Field{Key: confColorTempReverse, Type: core.FieldBool, Default: false},
			core.Field{Key: confColorMode, Type: core.FieldSelect, Options: optional},
			core.Field{Key: confColor, Type: core.FieldSelect, Options: optional},
		)
	case PlatformSwitch:
		schema = append(schema,
			core.Field{Key: confCurrent, Type: core.FieldSelect, Options: optional},
			core.Field{Key: confCurrentConsumption, Type: core.FieldSelect, Options: optional},
			core.Field{Key: confVoltage, Type: core.FieldSelect, Options: optional},
		)
	}
	return schema
}

type configFlow struct {
	flowContext *core.FlowContext
	device      map[string]interface{}
	dps         map[string]interface{}
	entities    []interface{}
	used        map[string]bool
	platform    string
}

func (f *configFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	switch step {
	case string(core.SourceUser):
		return f.user(ctx, input)
	case stepPickEntityType:
		return f.pickEntityType(input)
	case stepAddEntity:
		return f.addEntity(input)
	}
	return core.Abort("not_supported"), nil
}

func (f *configFlow) user(ctx context.Context, input map[string]interface{}) (*core.FlowResult, error) {
	schema := userSchema()
	if input == nil {
		return core.ShowForm("user", schema, nil), nil
	}
	if errs := schema.Validate(input); len(errs) > 0 {
		return core.ShowForm("user", schema, errs), nil
	}
	deviceId := core.InputString(input, confDeviceId)
	f.flowContext.SetUniqueId(deviceId)
	if result, err := f.flowContext.AbortIfUniqueIdConfigured(ctx, map[string]interface{}{confHost: core.InputString(input, confHost)}); result != nil || err != nil {
		return result, err
	}

	reply, err := f.flowContext.Hub.Gateway.Request(ctx, namespace, deviceId, map[string]interface{}{
		"command":          "detect",
		"host":             core.InputString(input, confHost),
		"local_key":        core.InputString(input, confLocalKey),
		"protocol_version": core.InputString(input, confProtocolVersion),
	})
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceId).Msg("Tuya device detection failed.")
		var replyErr *gateway.ReplyError
		if errors.As(err, &replyErr) && replyErr.Code == "invalid_auth" {
			return core.ShowForm("user", schema, map[string]string{"base": "invalid_auth"}), nil
		}
		return core.ShowForm("user", schema, map[string]string{"base": "cannot_connect"}), nil
	}
	dps, err := cast.ToStringMapE(reply["dps"])
	if err != nil || len(dps) == 0 {
		return core.ShowForm("user", schema, map[string]string{"base": "empty_dps"}), nil
	}

	f.device = input
	f.dps = dps
	f.used = map[string]bool{}
	return core.ShowForm(stepPickEntityType, pickSchema(), nil), nil
}

func (f *configFlow) pickEntityType(input map[string]interface{}) (*core.FlowResult, error) {
	schema := pickSchema()
	if input == nil {
		return core.ShowForm(stepPickEntityType, schema, nil), nil
	}
	if errs := schema.Validate(input); len(errs) > 0 {
		return core.ShowForm(stepPickEntityType, schema, errs), nil
	}
	if core.InputBool(input, confDone, false) {
		if len(f.entities) == 0 {
			return core.ShowForm(stepPickEntityType, schema, map[string]string{"base": "no_entities"}), nil
		}
		data := map[string]interface{}{}
		for k, v := range f.device {
			data[k] = v
		}
		data[confEntities] = f.entities
		return core.CreateEntry(core.InputString(f.device, confFriendlyName), data), nil
	}
	if len(f.available()) == 0 {
		return core.ShowForm(stepPickEntityType, schema, map[string]string{"base": "no_more_dps"}), nil
	}
	f.platform = core.InputString(input, confPlatform)
	return f.entityForm(nil), nil
}

// available returns the DPs not yet used, sorted numerically.
func (f *configFlow) available() []string {
	ids := []string{}
	for id := range f.dps {
		if !f.used[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA != nil || errB != nil {
			return ids[i] < ids[j]
		}
		return a < b
	})
	return ids
}

func (f *configFlow) entityForm(errs map[string]string) *core.FlowResult {
	result := core.ShowForm(stepAddEntity, entitySchema(f.platform, f.available()), errs)
	descriptions := []string{}
	for _, id := range f.available() {
		descriptions = append(descriptions, fmt.Sprintf("%s (value: %v)", id, f.dps[id]))
	}
	result.Description = map[string]string{
		"platform": f.platform,
		"dps":      strings.Join(descriptions, ", "),
	}
	return result
}

func (f *configFlow) addEntity(input map[string]interface{}) (*core.FlowResult, error) {
	if input == nil {
		return f.entityForm(nil), nil
	}
	if errs := entitySchema(f.platform, f.available()).Validate(input); len(errs) > 0 {
		return f.entityForm(errs), nil
	}
	if f.platform == PlatformCover {
		mode := core.InputString(input, confPositioningMode)
		if mode == ModePosition && core.InputString(input, confCurrentPositionDp) == "" {
			return f.entityForm(map[string]string{confCurrentPositionDp: "required"}), nil
		}
	}
	if f.platform == PlatformLight {
		lower := core.InputInt(input, confBrightnessLower, defaultBrightnessLower)
		upper := core.InputInt(input, confBrightnessUpper, defaultBrightnessUpper)
		if lower >= upper {
			return f.entityForm(map[string]string{confBrightnessUpper: "invalid_value"}), nil
		}
	}

	entity := map[string]interface{}{confPlatform: f.platform}
	for k, v := range input {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		entity[k] = v
	}
	f.used[core.InputString(input, confId)] = true
	f.entities = append(f.entities, entity)
	return core.ShowForm(stepPickEntityType, pickSchema(), nil), nil
}
