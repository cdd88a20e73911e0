package rest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, contentType string, body string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func process(t *testing.T, config Config, body string) Reading {
	p, err := newProcessor(config)
	require.NoError(t, err)
	return p.process(Response{StatusCode: http.StatusOK, Body: body})
}

func TestValueTemplate(t *testing.T) {
	reading := process(t, Config{ValueTemplate: "{{ .value_json.key }}"}, `{"key": "123"}`)
	assert.Equal(t, "123", reading.Value)
	assert.True(t, reading.Available)

	reading = process(t, Config{ValueTemplate: "{{ .value_json.missing }}"}, `{"key": "123"}`)
	assert.Equal(t, "", reading.Value)

	reading = process(t, Config{ValueTemplate: "{{ .value | float | round 1 }}"}, "21.46")
	assert.Equal(t, "21.5", reading.Value)

	reading = process(t, Config{ValueTemplate: "{{ .value_json.big }}"}, `{"big": 12345678901}`)
	assert.Equal(t, "12345678901", reading.Value)
}

func TestNoTemplateKeepsBody(t *testing.T) {
	reading := process(t, Config{JsonAttributes: []string{"key"}}, `{"key": "some_json_value"}`)
	assert.Equal(t, `{"key": "some_json_value"}`, reading.Value)
	assert.Equal(t, "some_json_value", reading.Attributes["key"])
}

func TestJsonAttributes(t *testing.T) {
	reading := process(t, Config{
		ValueTemplate:  "{{ .value_json.key }}",
		JsonAttributes: []string{"other_key", "absent"},
	}, `{"key": "123", "other_key": "some_json_value"}`)
	assert.Equal(t, "123", reading.Value)
	assert.Equal(t, map[string]interface{}{"other_key": "some_json_value"}, reading.Attributes)
}

func TestJsonAttributesPath(t *testing.T) {
	body := `{"toplevel": {"master_value": "123", "second_level": {"some_json_key": "some_json_value", "some_json_key2": "some_json_value2"}}}`
	reading := process(t, Config{
		ValueTemplate:      "{{ .value_json.toplevel.master_value }}",
		JsonAttributesPath: "$.toplevel.second_level",
		JsonAttributes:     []string{"some_json_key", "some_json_key2"},
	}, body)
	assert.Equal(t, "123", reading.Value)
	assert.Equal(t, "some_json_value", reading.Attributes["some_json_key"])
	assert.Equal(t, "some_json_value2", reading.Attributes["some_json_key2"])

	reading = process(t, Config{
		JsonAttributesPath: "$.items[1]",
		JsonAttributes:     []string{"name"},
	}, `{"items": [{"name": "a"}, {"name": "b"}]}`)
	assert.Equal(t, "b", reading.Attributes["name"])
}

func TestJsonAttributesFailures(t *testing.T) {
	config := Config{ValueTemplate: "{{ .value_json.key }}", JsonAttributes: []string{"key"}}

	reading := process(t, config, "")
	assert.Equal(t, "", reading.Value)
	assert.Empty(t, reading.Attributes)

	reading = process(t, config, "This is text rather than JSON data.")
	assert.Equal(t, "", reading.Value)
	assert.Empty(t, reading.Attributes)

	reading = process(t, config, `["list", "of", "things"]`)
	assert.Equal(t, "", reading.Value)
	assert.Empty(t, reading.Attributes)

	reading = process(t, config, `[{"key": "first"}]`)
	assert.Equal(t, "first", reading.Attributes["key"])
}

func TestLookupPath(t *testing.T) {
	doc, err := decodeJson(`{"a": {"b": [1, {"c": "x"}]}}`)
	require.NoError(t, err)

	value, err := lookupPath(doc, "$.a.b[1].c")
	require.NoError(t, err)
	assert.Equal(t, "x", value)

	value, err = lookupPath(doc, "$")
	require.NoError(t, err)
	assert.Equal(t, doc, value)

	_, err = lookupPath(doc, "$.a.z")
	assert.Error(t, err)
	_, err = lookupPath(doc, "$.a.b[5]")
	assert.Error(t, err)
	_, err = lookupPath(doc, "$.a.b[x]")
	assert.Error(t, err)
}

func TestAvailabilityTemplate(t *testing.T) {
	reading := process(t, Config{Availability: `{{ eq .value "1" }}`}, "123")
	assert.False(t, reading.Available)
	reading = process(t, Config{Availability: `{{ eq .value "1" }}`}, "1")
	assert.True(t, reading.Available)
}

func TestFetcher(t *testing.T) {
	var got *http.Request
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	fetcher := NewFetcher(nil, Config{
		Resource: server.URL + "/api?existing=1",
		Method:   "post",
		Headers:  map[string]string{"Accept": "application/json"},
		Params:   map[string]string{"start": "-1h"},
		Payload:  `{"query": 1}`,
		Username: "my username",
		Password: "my password",
	})
	response, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", response.Body)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, "1", got.URL.Query().Get("existing"))
	assert.Equal(t, "-1h", got.URL.Query().Get("start"))
	user, password, ok := got.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "my username", user)
	assert.Equal(t, "my password", password)
	assert.Equal(t, `{"query": 1}`, string(body))
}

func TestFetcherErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	_, err := NewFetcher(nil, Config{Resource: server.URL}).Fetch(context.Background())
	assert.Error(t, err)

	server.Close()
	_, err = NewFetcher(nil, Config{Resource: server.URL}).Fetch(context.Background())
	assert.Error(t, err)
}

func TestSetup(t *testing.T) {
	server := serve(t, "application/json", `{"key": "123", "other_key": "some_json_value"}`)
	entry := core.NewConfigEntry(Domain, "foo", "", core.SourceUser, map[string]interface{}{
		confResource:          server.URL,
		confName:              "foo",
		confValueTemplate:     "{{ .value_json.key }}",
		confJsonAttributes:    []interface{}{"other_key"},
		confUnitOfMeasurement: "°C",
		confDeviceClass:       "temperature",
	})
	runtime, err := integration{}.Setup(context.Background(), &core.Hub{}, entry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Unload(context.Background()) })

	entities := runtime.Entities()
	require.Len(t, entities, 1)
	sensor := entities[0].(*Sensor)
	assert.True(t, sensor.Available())
	state := sensor.State()
	assert.Equal(t, "123", state.State)
	assert.Equal(t, "some_json_value", state.Attributes["other_key"])
	assert.Equal(t, "foo", sensor.Name())
	assert.Equal(t, 30, int(sensor.Coordinator.Interval().Seconds()))
}

func TestSetupNotReady(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	entry := core.NewConfigEntry(Domain, "foo", "", core.SourceUser, map[string]interface{}{confResource: server.URL})
	_, err := integration{}.Setup(context.Background(), &core.Hub{}, entry)
	assert.ErrorIs(t, err, core.ErrNotReady)
}

func TestConfigFlow(t *testing.T) {
	server := serve(t, "text/plain", "123")
	store := coretest.NewMemoryStore()
	flow := &configFlow{flowContext: coretest.FlowContext(Domain, core.SourceUser, store, &core.Hub{})}
	ctx := context.Background()

	result, err := flow.Step(ctx, "user", nil)
	require.NoError(t, err)
	assert.Equal(t, core.FlowResultForm, result.Type)

	result, err = flow.Step(ctx, "user", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "required", result.Errors[confResource])

	result, err = flow.Step(ctx, "user", map[string]interface{}{confResource: "ftp://example.org"})
	require.NoError(t, err)
	assert.Equal(t, "invalid_url", result.Errors[confResource])

	result, err = flow.Step(ctx, "user", map[string]interface{}{
		confResource:           server.URL,
		confValueTemplate:      "{{ .value",
		confJsonAttributesPath: "toplevel",
	})
	require.NoError(t, err)
	assert.Equal(t, "invalid_template", result.Errors[confValueTemplate])
	assert.Equal(t, "invalid_path", result.Errors[confJsonAttributesPath])

	result, err = flow.Step(ctx, "user", map[string]interface{}{confResource: "http://127.0.0.1:1/"})
	require.NoError(t, err)
	assert.Equal(t, "cannot_connect", result.Errors["base"])

	result, err = flow.Step(ctx, "user", map[string]interface{}{
		confResource:       server.URL,
		confName:           "Outside",
		confJsonAttributes: "a, b",
	})
	require.NoError(t, err)
	require.Equal(t, core.FlowResultCreateEntry, result.Type)
	assert.Equal(t, "Outside", result.Title)
	assert.Equal(t, []string{"a", "b"}, result.Data[confJsonAttributes])
	assert.Equal(t, MethodGet, result.Data[confMethod])
	assert.NotContains(t, result.Data, confValueTemplate)
}

func TestOptionsFlow(t *testing.T) {
	entry := core.NewConfigEntry(Domain, "foo", "", core.SourceUser, map[string]interface{}{
		confResource:       "http://localhost",
		confJsonAttributes: []interface{}{"a"},
	})
	flow := &optionsFlow{entry: entry}

	result, err := flow.Step(context.Background(), "init", nil)
	require.NoError(t, err)
	assert.Equal(t, "init", result.StepId)

	result, err = flow.Step(context.Background(), "init", map[string]interface{}{confScanInterval: 1})
	require.NoError(t, err)
	assert.Equal(t, "invalid_value", result.Errors[confScanInterval])

	result, err = flow.Step(context.Background(), "init", map[string]interface{}{confJsonAttributes: "a,c", confScanInterval: 60})
	require.NoError(t, err)
	require.Equal(t, core.FlowResultCreateEntry, result.Type)
	assert.Equal(t, []string{"a", "c"}, result.Data[confJsonAttributes])
	assert.Equal(t, 60, result.Data[confScanInterval])
}
