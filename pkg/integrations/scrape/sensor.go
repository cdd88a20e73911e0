package scrape

import (
	"fmt"
	"sync"
	"text/template"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/homeassistant"
	"github.com/gaetancollaud/integrations-mqtt/pkg/integrations/rest"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// Page is the last parsed document.
type Page struct {
	Document *html.Node
}

type extraction struct {
	value string
	found bool
}

// Sensor publishes the content of one element of the page.
type Sensor struct {
	core.CoordinatorEntity[Page]
	config   SensorConfig
	selector Selector
	template *template.Template

	mu       sync.Mutex
	document *html.Node
	last     extraction
}

func newSensor(coordinator *core.Coordinator[Page], description core.EntityDescription, config SensorConfig) (*Sensor, error) {
	selector, err := ParseSelector(config.Select)
	if err != nil {
		return nil, err
	}
	t, err := rest.ParseTemplate(config.Name, config.ValueTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid value template: %w", err)
	}
	return &Sensor{
		CoordinatorEntity: core.NewCoordinatorEntity(coordinator, description),
		config:            config,
		selector:          selector,
		template:          t,
	}, nil
}

// extract evaluates the sensor once per document.
func (e *Sensor) extract() extraction {
	document := e.Coordinator.Data().Document
	e.mu.Lock()
	defer e.mu.Unlock()
	if document == e.document {
		return e.last
	}
	e.document = document
	e.last = e.evaluate(document)
	return e.last
}

func (e *Sensor) evaluate(document *html.Node) extraction {
	if document == nil {
		return extraction{}
	}
	elements := e.selector.Select(document)
	if e.config.Index < 0 || e.config.Index >= len(elements) {
		log.Warn().Str("sensor", e.Name()).Str("select", e.config.Select).Int("index", e.config.Index).Msg("Index out of range, no element found.")
		return extraction{}
	}
	element := elements[e.config.Index]
	value := Text(element)
	if e.config.Attribute != "" {
		attribute, ok := attr(element, e.config.Attribute)
		if !ok {
			log.Warn().Str("sensor", e.Name()).Str("attribute", e.config.Attribute).Msg("Attribute not found on the selected element.")
			return extraction{}
		}
		value = attribute
	}
	if e.template != nil {
		rendered, err := rest.Render(e.template, value)
		if err != nil {
			log.Warn().Err(err).Str("sensor", e.Name()).Msg("Unable to render the value template.")
			return extraction{}
		}
		value = rendered
	}
	log.Debug().Str("sensor", e.Name()).Str("value", value).Msg("Scraped value.")
	return extraction{value: value, found: true}
}

func (e *Sensor) Available() bool {
	return e.CoordinatorEntity.Available() && e.extract().found
}

func (e *Sensor) State() core.EntityState {
	return core.EntityState{State: e.extract().value}
}

func (e *Sensor) DiscoveryConfig(topics core.EntityTopics) homeassistant.MqttConfig {
	return &homeassistant.SensorConfig{
		BaseConfig:        e.BaseConfig(),
		StateTopic:        topics.State,
		UnitOfMeasurement: e.config.UnitOfMeasurement,
		DeviceClass:       e.config.DeviceClass,
		StateClass:        e.config.StateClass,
	}
}
