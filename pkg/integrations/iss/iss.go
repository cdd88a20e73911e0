// Package iss tracks the International Space Station: crew, position and
// orbital elements.
package iss

import (
	"context"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
)

const (
	Domain = "iss"

	confShowOnMap      = "show_on_map"
	confUpdateInterval = "update_interval"

	defaultUpdateInterval = 60
	peopleInterval        = time.Hour
	tleInterval           = 12 * time.Hour
)

// newApi is replaced in tests.
var newApi = func(hub *core.Hub) api {
	return NewClient(hub.HTTP)
}

type Config struct {
	ShowOnMap bool `mapstructure:"show_on_map"`
	// Seconds between two position updates.
	UpdateInterval int `mapstructure:"update_interval"`
}

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

func (integration) Setup(ctx context.Context, hub *core.Hub, entry *core.ConfigEntry) (core.Runtime, error) {
	config := Config{UpdateInterval: defaultUpdateInterval}
	if err := core.DecodeData(entry, &config); err != nil {
		return nil, err
	}
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = defaultUpdateInterval
	}
	client := newApi(hub)

	r := &runtime{
		people:   newPeopleCoordinator(client, peopleInterval),
		position: newPositionCoordinator(client, time.Duration(config.UpdateInterval)*time.Second),
		tle: newTleCoordinator(&tleSource{
			client:   client,
			path:     cachePath(hub.CacheDir, entry.EntryId),
			interval: tleInterval,
		}),
	}
	if err := r.position.FirstRefresh(ctx); err != nil {
		return nil, err
	}
	// Crew and TLE failures only make their own sensors unavailable.
	_ = r.people.Refresh(ctx)
	_ = r.tle.Refresh(ctx)

	device := homeassistant.Device{
		Identifiers:      []string{entry.EntryId},
		Name:             "ISS",
		Manufacturer:     "Open Notify",
		Model:            "International Space Station",
		ConfigurationUrl: "http://open-notify.org/",
	}
	r.entities = []core.Entity{
		&PeopleEntity{core.NewCoordinatorEntity(r.people, core.EntityDescription{
			UniqueId: entry.EntryId + "_people",
			Name:     "People in space",
			Domain:   homeassistant.Sensor,
			Device:   device,
		})},
		&PositionEntity{
			CoordinatorEntity: core.NewCoordinatorEntity(r.position, core.EntityDescription{
				UniqueId: entry.EntryId + "_position",
				Name:     "ISS position",
				Domain:   homeassistant.Sensor,
				Device:   device,
			}),
			showOnMap: config.ShowOnMap,
		},
		&TleEntity{core.NewCoordinatorEntity(r.tle, core.EntityDescription{
			UniqueId: entry.EntryId + "_tle_epoch",
			Name:     "TLE epoch",
			Domain:   homeassistant.Sensor,
			Device:   device,
		})},
	}

	r.people.Start(context.Background())
	r.position.Start(context.Background())
	r.tle.Start(context.Background())
	return r, nil
}

type runtime struct {
	people   *core.Coordinator[People]
	position *core.Coordinator[Position]
	tle      *core.Coordinator[CachedTLE]
	entities []core.Entity
}

func (r *runtime) Entities() []core.Entity {
	return r.entities
}

func (r *runtime) Unload(ctx context.Context) error {
	r.people.Stop()
	r.position.Stop()
	r.tle.Stop()
	return nil
}

type configFlow struct {
	flowContext *core.FlowContext
}

func (f *configFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	if len(f.flowContext.Entries(ctx)) > 0 {
		return core.Abort("single_instance_allowed"), nil
	}
	schema := core.Schema{{Key: confShowOnMap, Type: core.FieldBool, Default: false}}
	if input == nil {
		return core.ShowForm("user", schema, nil), nil
	}
	if errs := schema.Validate(input); len(errs) > 0 {
		return core.ShowForm("user", schema, errs), nil
	}
	f.flowContext.SetUniqueId(Domain)
	return core.CreateEntry("ISS", map[string]interface{}{confShowOnMap: input[confShowOnMap]}), nil
}

type optionsFlow struct {
	entry *core.ConfigEntry
}

func (f *optionsFlow) Step(ctx context.Context, step string, input map[string]interface{}) (*core.FlowResult, error) {
	config := Config{UpdateInterval: defaultUpdateInterval}
	if err := core.DecodeData(f.entry, &config); err != nil {
		return nil, err
	}
	schema := core.Schema{
		{Key: confShowOnMap, Type: core.FieldBool, Default: config.ShowOnMap},
		{Key: confUpdateInterval, Type: core.FieldInt, Default: config.UpdateInterval},
	}
	if input == nil {
		return core.ShowForm("init", schema, nil), nil
	}
	errs := schema.Validate(input)
	if interval, ok := input[confUpdateInterval].(int); ok && interval < 10 {
		errs[confUpdateInterval] = "invalid_value"
	}
	if len(errs) > 0 {
		return core.ShowForm("init", schema, errs), nil
	}
	return core.CreateEntry("", input), nil
}

func init() {
	core.Register(integration{})
}
