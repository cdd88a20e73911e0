package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gaetancollaud/integrations-mqtt/pkg/mqtt/mqtttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checker struct {
	err error
}

func (c checker) HealthCheck(context.Context) error {
	return c.err
}

func status(t *testing.T, h Health) (int, string) {
	t.Helper()
	recorder := httptest.NewRecorder()
	h.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	body := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return recorder.Code, body["status"].(string)
}

func TestHealthReportsMqttAndDatabase(t *testing.T) {
	mqttClient := mqtttest.NewClient("integrations")
	require.NoError(t, mqttClient.Connect())

	h, err := NewHealth(0, "test", mqttClient, checker{})
	require.NoError(t, err)
	code, state := status(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", state)

	require.NoError(t, mqttClient.Disconnect())
	code, state = status(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "Unavailable", state)
}

func TestHealthDatabaseFailure(t *testing.T) {
	mqttClient := mqtttest.NewClient("integrations")
	require.NoError(t, mqttClient.Connect())

	h, err := NewHealth(0, "test", mqttClient, checker{err: errors.New("disk full")})
	require.NoError(t, err)
	code, _ := status(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
