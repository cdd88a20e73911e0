// Package rest exposes any HTTP resource as a sensor.
package rest

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

type integration struct{}

func (integration) Domain() string {
	return Domain
}

func (integration) NewConfigFlow(flowContext *core.FlowContext) core.ConfigFlow {
	return &configFlow{flowContext: flowContext}
}

func (integration) NewOptionsFlow(entry *core.ConfigEntry) core.OptionsFlow {
	return &optionsFlow{entry: entry}
}

func decodeConfig(entry *core.ConfigEntry) (Config, error) {
	config := defaultConfig()
	if err := core.DecodeData(entry, &config); err != nil {
		return config, err
	}
	if config.ScanInterval < minScanInterval {
		config.ScanInterval = defaultScanInterval
	}
	return config, nil
}

func newCoordinator(name string, fetcher *Fetcher, processor *processor, interval time.Duration) *core.Coordinator[Reading] {
	return core.NewCoordinator[Reading](name, interval, func(ctx context.Context) (Reading, error) {
		response, err := fetcher.Fetch(ctx)
		if err != nil {
			return Reading{}, err
		}
		return processor.process(response), nil
	})
}

func (integration) Setup(ctx context.Context, hub *core.Hub, entry *core.ConfigEntry) (core.Runtime, error) {
	config, err := decodeConfig(entry)
	if err != nil {
		return nil, err
	}
	processor, err := newProcessor(config)
	if err != nil {
		return nil, err
	}
	coordinator := newCoordinator(Domain+"_"+entry.EntryId, NewFetcher(hub.HTTP, config), processor, time.Duration(config.ScanInterval)*time.Second)
	if err := coordinator.FirstRefresh(ctx); err != nil {
		return nil, err
	}

	sensor := &Sensor{
		CoordinatorEntity: core.NewCoordinatorEntity(coordinator, core.EntityDescription{
			UniqueId: entry.EntryId,
			Name:     config.Name,
			Domain:   homeassistant.Sensor,
			Device: homeassistant.Device{
				Identifiers:      []string{entry.EntryId},
				Name:             config.Name,
				Manufacturer:     "REST",
				ConfigurationUrl: config.Resource,
			},
		}),
		config: config,
	}
	coordinator.Start(context.Background())
	log.Info().Str("resource", config.Resource).Dur("interval", coordinator.Interval()).Msg("REST sensor started.")
	return &runtime{coordinator: coordinator, entities: []core.Entity{sensor}}, nil
}

type runtime struct {
	coordinator *core.Coordinator[Reading]
	entities    []core.Entity
}

func (r *runtime) Entities() []core.Entity {
	return r.entities
}

func (r *runtime) Unload(ctx context.Context) error {
	r.coordinator.Stop()
	return nil
}

func userSchema() core.Schema {
	return core.Schema{
		{Key: confResource, Type: core.FieldString, Required: true},
		{Key: confMethod, Type: core.FieldSelect, Default: MethodGet, Options: methods},
		{Key: confName, Type: core.FieldString, Default: defaultName},
		{Key: confValueTemplate, Type: core.FieldString},
		{Key: confAvailability, Type: core.FieldString},
		{Key: confJsonAttributes, Type: core.FieldString},
		{Key: confJsonAttributesPath, Type: core.FieldString},
		{Key: confUnitOfMeasurement, Type: core.FieldString},
		{Key: confDeviceClass, Type: core.FieldString},
		{Key: confStateClass, Type: core.FieldString},
		{Key: confHeaders, Type: core.FieldMapping},
		{Key: confParams, Type: core.FieldMapping},
		{Key: confPayload, Type: core.FieldString},
		{Key: confUsername, Type: core.FieldString},
		{Key: confPassword, Type: core.FieldPassword},
		{Key: confVerifySsl, Type: core.FieldBool, Default: true},
		{Key: confTimeout, Type: core.FieldInt, Default: defaultTimeout},
		{Key: confScanInterval, Type: core.FieldInt, Default: defaultScanInterval},
	}
}

// splitList accepts a list or a comma separated string.
func splitList(value interface{}) []string {
	text, ok := value.(string)
	if !ok {
		return cast.ToStringSlice(value)
	}
	items := []string{}
	for _, item := range strings.Split(text, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// validateTemplates checks the template and path fields shared by the user
// and options steps.
func validateTemplates(input map[string]interface{}, errs map[string]string) {
	for _, key := range []string{confValueTemplate, confAvailability} {
		if _, err := ParseTemplate(key, core.InputString(input, key)); err != nil {
			errs[key] = "invalid_template"
		}
	}
	if path := core.InputString(input, confJsonAttributesPath); path != "" && !strings.HasPrefix(path, "$") {
		errs[confJsonAttributesPath] = "invalid_path"
	}
	if interval := core.InputInt(input, confScanInterval, defaultScanInterval); interval < minScanInterval {
		errs[confScanInterval] = "invalid_value"
	}
}

type configFlow struct {
	flowContext *core.FlowContext
}

func (f *configFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	schema := userSchema()
	if input == nil {
		return core.ShowForm("user", schema, nil), nil
	}
	errs := schema.Validate(input)
	if u, err := url.Parse(core.InputString(input, confResource)); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if _, required := errs[confResource]; !required {
			errs[confResource] = "invalid_url"
		}
	}
	validateTemplates(input, errs)
	if len(errs) > 0 {
		return core.ShowForm("user", schema, errs), nil
	}

	data := map[string]interface{}{}
	for k, v := range input {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		data[k] = v
	}
	if _, ok := data[confJsonAttributes]; ok {
		data[confJsonAttributes] = splitList(data[confJsonAttributes])
	}

	config := defaultConfig()
	if err := core.DecodeData(&core.ConfigEntry{Domain: Domain, Data: data}, &config); err != nil {
		return nil, err
	}
	if _, err := NewFetcher(f.flowContext.Hub.HTTP, config).Fetch(ctx); err != nil {
		log.Warn().Err(err).Str("resource", config.Resource).Msg("REST resource check failed.")
		return core.ShowForm("user", schema, map[string]string{"base": "cannot_connect"}), nil
	}
	return core.CreateEntry(config.Name, data), nil
}

type optionsFlow struct {
	entry *core.ConfigEntry
}

func (f *optionsFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	config, err := decodeConfig(f.entry)
	if err != nil {
		return nil, err
	}
	schema := core.Schema{
		{Key: confValueTemplate, Type: core.FieldString, Default: config.ValueTemplate},
		{Key: confJsonAttributes, Type: core.FieldString, Default: strings.Join(config.JsonAttributes, ",")},
		{Key: confJsonAttributesPath, Type: core.FieldString, Default: config.JsonAttributesPath},
		{Key: confScanInterval, Type: core.FieldInt, Default: config.ScanInterval},
	}
	if input == nil {
		return core.ShowForm("init", schema, nil), nil
	}
	errs := schema.Validate(input)
	validateTemplates(input, errs)
	if len(errs) > 0 {
		return core.ShowForm("init", schema, errs), nil
	}
	input[confJsonAttributes] = splitList(input[confJsonAttributes])
	return core.CreateEntry("", input), nil
}

func init() {
	core.Register(integration{})
}
