// Package daikin controls Daikin Brazil smart air conditioners over their
// local HTTP API.
package daikin

import (
	"context"
	"fmt"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
)

// newTransport is replaced in tests.
var newTransport = func(hub *core.Hub) Transport {
	return NewHttpTransport(hub.HTTP)
}

type Config struct {
	DeviceName string `mapstructure:"device_name"`
	ApiKey     string `mapstructure:"api_key"`
	Host       string `mapstructure:"host"`
	DeviceApn  string `mapstructure:"device_apn"`
	DeviceSsid string `mapstructure:"device_ssid"`
}

type integration struct{}

func (integration) Domain() string {
	return Domain
}

func (integration) NewConfigFlow(flowContext *core.FlowContext) core.ConfigFlow {
	return &configFlow{flowContext: flowContext, transport: newTransport(flowContext.Hub)}
}

func (integration) NewOptionsFlow(entry *core.ConfigEntry) core.OptionsFlow {
	return nil
}

func (integration) Setup(ctx context.Context, hub *core.Hub, entry *core.ConfigEntry) (core.Runtime, error) {
	config := Config{}
	if err := core.DecodeData(entry, &config); err != nil {
		return nil, err
	}
	if config.Host == "" || config.DeviceApn == "" {
		return nil, fmt.Errorf("daikin entry %s is missing host or device_apn", entry.EntryId)
	}
	transport := newTransport(hub)
	coordinator := core.NewCoordinator(fmt.Sprintf("daikin_%s", config.DeviceApn), scanInterval,
		func(ctx context.Context) (map[string]interface{}, error) {
			return transport.GetThingInfo(ctx, config.Host, config.ApiKey, endpointStatus)
		})
	if err := coordinator.FirstRefresh(ctx); err != nil {
		return nil, err
	}
	coordinator.Start(context.Background())
	return &runtime{
		coordinator: coordinator,
		entities:    []core.Entity{newClimateEntity(coordinator, transport, config)},
	}, nil
}

type runtime struct {
	coordinator *core.Coordinator[map[string]interface{}]
	entities    []core.Entity
}

func (r *runtime) Entities() []core.Entity {
	return r.entities
}

func (r *runtime) Unload(ctx context.Context) error {
	r.coordinator.Stop()
	return nil
}

func init() {
	core.Register(integration{})
}
