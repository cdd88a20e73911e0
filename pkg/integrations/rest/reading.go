package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

const noValue = "<no value>"

var templateFuncs = template.FuncMap{
	"float": func(v interface{}) float64 { return cast.ToFloat64(v) },
	"int":   func(v interface{}) int { return cast.ToInt(v) },
	"round": func(precision int, v interface{}) float64 {
		p := math.Pow(10, float64(precision))
		return math.Round(cast.ToFloat64(v)*p) / p
	},
	"multiply": func(factor float64, v interface{}) float64 { return cast.ToFloat64(v) * factor },
	"lower":    strings.ToLower,
	"upper":    strings.ToUpper,
	"trim":     strings.TrimSpace,
}

// ParseTemplate parses a value template. Templates see the raw body as
// .value and the decoded JSON body as .value_json.
func ParseTemplate(name string, text string) (*template.Template, error) {
	if text == "" {
		return nil, nil
	}
	return template.New(name).Funcs(templateFuncs).Parse(text)
}

func render(t *template.Template, body string, decoded interface{}) (string, error) {
	var out bytes.Buffer
	if err := t.Execute(&out, map[string]interface{}{"value": body, "value_json": decoded}); err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ReplaceAll(out.String(), noValue, "")), nil
}

// Render executes a template parsed with ParseTemplate against a raw value.
func Render(t *template.Template, value string) (string, error) {
	decoded, _ := decodeJson(value)
	return render(t, value, decoded)
}

func decodeJson(body string) (interface{}, error) {
	decoder := json.NewDecoder(strings.NewReader(body))
	decoder.UseNumber()
	var decoded interface{}
	if err := decoder.Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// lookupPath resolves a "$.a.b[0].c" path in a decoded JSON document.
func lookupPath(doc interface{}, path string) (interface{}, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "$")
	current := doc
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}
		key, rest, _ := strings.Cut(segment, "[")
		if key != "" {
			object, ok := current.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("'%s' is not an object", key)
			}
			if current, ok = object[key]; !ok {
				return nil, fmt.Errorf("'%s' not found", key)
			}
		}
		for rest != "" {
			indexText, remaining, found := strings.Cut(rest, "]")
			if !found {
				return nil, fmt.Errorf("unterminated index in '%s'", segment)
			}
			index, err := strconv.Atoi(indexText)
			if err != nil {
				return nil, fmt.Errorf("invalid index in '%s'", segment)
			}
			list, ok := current.([]interface{})
			if !ok || index < 0 || index >= len(list) {
				return nil, fmt.Errorf("index %d out of range in '%s'", index, segment)
			}
			current = list[index]
			rest = strings.TrimPrefix(remaining, "[")
		}
	}
	return current, nil
}

// Reading is the processed state of the sensor for one response.
type Reading struct {
	Value      string
	Attributes map[string]interface{}
	Available  bool
}

// processor turns a response into a reading.
type processor struct {
	name           string
	value          *template.Template
	availability   *template.Template
	jsonAttributes []string
	attributesPath string
}

func newProcessor(config Config) (*processor, error) {
	value, err := ParseTemplate("value", config.ValueTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid value template: %w", err)
	}
	availability, err := ParseTemplate("availability", config.Availability)
	if err != nil {
		return nil, fmt.Errorf("invalid availability template: %w", err)
	}
	return &processor{
		name:           config.Name,
		value:          value,
		availability:   availability,
		jsonAttributes: config.JsonAttributes,
		attributesPath: config.JsonAttributesPath,
	}, nil
}

func (p *processor) process(response Response) Reading {
	reading := Reading{Value: response.Body, Attributes: map[string]interface{}{}, Available: true}
	decoded, jsonErr := decodeJson(response.Body)

	if len(p.jsonAttributes) > 0 {
		p.extractAttributes(response.Body, decoded, jsonErr, reading.Attributes)
	}

	if p.value != nil {
		value, err := render(p.value, response.Body, decoded)
		if err != nil {
			log.Warn().Err(err).Str("sensor", p.name).Msg("Unable to render the value template.")
		}
		reading.Value = value
	}

	if p.availability != nil {
		available, err := render(p.availability, response.Body, decoded)
		if err != nil {
			log.Warn().Err(err).Str("sensor", p.name).Msg("Unable to render the availability template.")
		}
		reading.Available = cast.ToBool(available)
	}
	return reading
}

func (p *processor) extractAttributes(body string, decoded interface{}, jsonErr error, attributes map[string]interface{}) {
	if strings.TrimSpace(body) == "" {
		log.Warn().Str("sensor", p.name).Msg("Empty reply found when expecting JSON data.")
		return
	}
	if jsonErr != nil {
		log.Warn().Err(jsonErr).Str("sensor", p.name).Msgf("Erroneous JSON: %s", body)
		return
	}
	doc := decoded
	if p.attributesPath != "" {
		var err error
		if doc, err = lookupPath(decoded, p.attributesPath); err != nil {
			log.Warn().Err(err).Str("sensor", p.name).Str("path", p.attributesPath).Msg("JSON attributes path not found.")
			return
		}
	}
	if list, ok := doc.([]interface{}); ok && len(list) > 0 {
		doc = list[0]
	}
	object, ok := doc.(map[string]interface{})
	if !ok {
		log.Warn().Str("sensor", p.name).Msgf("JSON result was not a dictionary or list with 0th element a dictionary: %s", body)
		return
	}
	for _, key := range p.jsonAttributes {
		if value, ok := object[key]; ok {
			attributes[key] = value
		}
	}
}
