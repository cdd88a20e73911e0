// Package scrape exposes elements of a web page as sensors.
package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/gaetancollaud/integrations-mqtt/pkg/integrations/rest"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
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
	config := Config{VerifySsl: true, Timeout: defaultTimeout, ScanInterval: defaultScanInterval}
	if err := core.DecodeData(entry, &config); err != nil {
		return config, err
	}
	if config.ScanInterval < minScanInterval {
		config.ScanInterval = defaultScanInterval
	}
	return config, nil
}

func newFetcher(hub *core.Hub, config Config) *rest.Fetcher {
	return rest.NewFetcher(hub.HTTP, rest.Config{
		Resource:  config.Resource,
		Method:    rest.MethodGet,
		Headers:   config.Headers,
		VerifySsl: config.VerifySsl,
		Timeout:   config.Timeout,
		Username:  config.Username,
		Password:  config.Password,
	})
}

func fetchPage(ctx context.Context, fetcher *rest.Fetcher) (Page, error) {
	response, err := fetcher.Fetch(ctx)
	if err != nil {
		return Page{}, err
	}
	document, err := html.Parse(strings.NewReader(response.Body))
	if err != nil {
		return Page{}, core.UpdateFailed(err, "error parsing page")
	}
	return Page{Document: document}, nil
}

func (integration) Setup(ctx context.Context, hub *core.Hub, entry *core.ConfigEntry) (core.Runtime, error) {
	config, err := decodeConfig(entry)
	if err != nil {
		return nil, err
	}
	fetcher := newFetcher(hub, config)
	coordinator := core.NewCoordinator[Page](Domain+"_"+entry.EntryId, time.Duration(config.ScanInterval)*time.Second, func(ctx context.Context) (Page, error) {
		return fetchPage(ctx, fetcher)
	})
	if err := coordinator.FirstRefresh(ctx); err != nil {
		return nil, err
	}

	device := homeassistant.Device{
		Identifiers:      []string{entry.EntryId},
		Name:             entry.Title,
		Manufacturer:     "Scrape",
		ConfigurationUrl: config.Resource,
	}
	r := &runtime{coordinator: coordinator}
	for i, sensorConfig := range config.Sensors {
		if sensorConfig.Name == "" {
			sensorConfig.Name = defaultName
		}
		uniqueId := sensorConfig.UniqueId
		if uniqueId == "" {
			uniqueId = fmt.Sprintf("%s_%d", entry.EntryId, i)
		}
		sensor, err := newSensor(coordinator, core.EntityDescription{
			UniqueId: uniqueId,
			Name:     sensorConfig.Name,
			Domain:   homeassistant.Sensor,
			Device:   device,
		}, sensorConfig)
		if err != nil {
			log.Error().Err(err).Str("entry", entry.EntryId).Str("sensor", sensorConfig.Name).Msg("Skipping invalid scrape sensor.")
			continue
		}
		r.entities = append(r.entities, sensor)
	}
	coordinator.Start(context.Background())
	return r, nil
}

type runtime struct {
	coordinator *core.Coordinator[Page]
	entities    []core.Entity
}

func (r *runtime) Entities() []core.Entity {
	return r.entities
}

func (r *runtime) Unload(ctx context.Context) error {
	r.coordinator.Stop()
	return nil
}

func resourceSchema() core.Schema {
	return core.Schema{
		{Key: confResource, Type: core.FieldString, Required: true},
		{Key: confHeaders, Type: core.FieldMapping},
		{Key: confUsername, Type: core.FieldString},
		{Key: confPassword, Type: core.FieldPassword},
		{Key: confVerifySsl, Type: core.FieldBool, Default: true},
		{Key: confTimeout, Type: core.FieldInt, Default: defaultTimeout},
		{Key: confScanInterval, Type: core.FieldInt, Default: defaultScanInterval},
	}
}

func sensorSchema() core.Schema {
	return core.Schema{
		{Key: confName, Type: core.FieldString, Default: defaultName},
		{Key: confSelect, Type: core.FieldString, Required: true},
		{Key: confIndex, Type: core.FieldInt, Default: 0},
		{Key: confAttribute, Type: core.FieldString},
		{Key: confValueTemplate, Type: core.FieldString},
		{Key: confUnitOfMeasurement, Type: core.FieldString},
		{Key: confDeviceClass, Type: core.FieldString},
		{Key: confStateClass, Type: core.FieldString},
	}
}

// validateSensor checks the sensor fields and returns them without the
// empty values.
func validateSensor(input map[string]interface{}, errs map[string]string) map[string]interface{} {
	for key, message := range sensorSchema().Validate(input) {
		errs[key] = message
	}
	if _, ok := errs[confSelect]; !ok {
		if _, err := ParseSelector(core.InputString(input, confSelect)); err != nil {
			errs[confSelect] = "invalid_select"
		}
	}
	if index := core.InputInt(input, confIndex, 0); index < 0 {
		errs[confIndex] = "invalid_value"
	}
	if _, err := rest.ParseTemplate(confValueTemplate, core.InputString(input, confValueTemplate)); err != nil {
		errs[confValueTemplate] = "invalid_template"
	}
	sensor := map[string]interface{}{}
	for _, field := range sensorSchema() {
		if value, ok := input[field.Key]; ok {
			if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			sensor[field.Key] = value
		}
	}
	return sensor
}

type configFlow struct {
	flowContext *core.FlowContext
}

func (f *configFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	schema := append(resourceSchema(), sensorSchema()...)
	if input == nil {
		return core.ShowForm("user", schema, nil), nil
	}
	errs := resourceSchema().Validate(input)
	if u, err := url.Parse(core.InputString(input, confResource)); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if _, required := errs[confResource]; !required {
			errs[confResource] = "invalid_url"
		}
	}
	sensor := validateSensor(input, errs)
	if len(errs) > 0 {
		return core.ShowForm("user", schema, errs), nil
	}

	data := map[string]interface{}{}
	for _, field := range resourceSchema() {
		if value, ok := input[field.Key]; ok {
			if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			data[field.Key] = value
		}
	}
	data[confSensors] = []interface{}{sensor}

	config, err := decodeConfig(&core.ConfigEntry{Domain: Domain, Data: data})
	if err != nil {
		return nil, err
	}
	if _, err := fetchPage(ctx, newFetcher(f.flowContext.Hub, config)); err != nil {
		log.Warn().Err(err).Str("resource", config.Resource).Msg("Scrape resource check failed.")
		return core.ShowForm("user", schema, map[string]string{"base": "cannot_connect"}), nil
	}
	return core.CreateEntry(core.InputString(sensor, confName), data), nil
}

// optionsFlow adds a sensor to an existing resource.
type optionsFlow struct {
	entry *core.ConfigEntry
}

func (f *optionsFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	config, err := decodeConfig(f.entry)
	if err != nil {
		return nil, err
	}
	schema := append(core.Schema{{Key: confScanInterval, Type: core.FieldInt, Default: config.ScanInterval}}, sensorSchema()...)
	if input == nil {
		return core.ShowForm("init", schema, nil), nil
	}
	errs := core.Schema{schema[0]}.Validate(input)
	if interval := core.InputInt(input, confScanInterval, config.ScanInterval); interval < minScanInterval {
		errs[confScanInterval] = "invalid_value"
	}
	sensor := validateSensor(input, errs)
	if len(errs) > 0 {
		return core.ShowForm("init", schema, errs), nil
	}

	sensors := []interface{}{}
	if existing, ok := f.entry.Options[confSensors].([]interface{}); ok {
		sensors = append(sensors, existing...)
	} else if existing, ok := f.entry.Data[confSensors].([]interface{}); ok {
		sensors = append(sensors, existing...)
	}
	sensors = append(sensors, sensor)
	return core.CreateEntry("", map[string]interface{}{
		confScanInterval: input[confScanInterval],
		confSensors:      sensors,
	}), nil
}

func init() {
	core.Register(integration{})
}
