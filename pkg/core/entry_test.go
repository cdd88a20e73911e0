package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeData(t *testing.T) {
	entry := NewConfigEntry("rest", "Rest", "", SourceUser, map[string]interface{}{
		"resource":      "http://localhost",
		"timeout":       "10",
		"scan_interval": "30s",
		"verify_ssl":    "false",
	})
	entry.Options["timeout"] = 20

	var data struct {
		Resource     string        `mapstructure:"resource"`
		Timeout      int           `mapstructure:"timeout"`
		ScanInterval time.Duration `mapstructure:"scan_interval"`
		VerifySsl    bool          `mapstructure:"verify_ssl"`
	}
	require.NoError(t, DecodeData(entry, &data))
	assert.Equal(t, "http://localhost", data.Resource)
	assert.Equal(t, 20, data.Timeout)
	assert.Equal(t, 30*time.Second, data.ScanInterval)
	assert.False(t, data.VerifySsl)
}

func TestClone(t *testing.T) {
	entry := NewConfigEntry("iss", "ISS", "iss", SourceUser, map[string]interface{}{"a": 1})
	clone := entry.Clone()
	clone.Data["a"] = 2
	assert.Equal(t, 1, entry.Data["a"])
	assert.Equal(t, entry.EntryId, clone.EntryId)
}

func TestSchemaValidate(t *testing.T) {
	schema := Schema{
		{Key: "host", Type: FieldString, Required: true},
		{Key: "port", Type: FieldInt, Default: 4025},
		{Key: "panel_type", Type: FieldSelect, Required: true, Options: []string{"HONEYWELL", "DSC"}},
		{Key: "show", Type: FieldBool},
	}

	input := map[string]interface{}{"host": " ", "panel_type": "OTHER", "show": "true"}
	errors := schema.Validate(input)
	assert.Equal(t, map[string]string{"host": "required", "panel_type": "invalid_value"}, errors)
	assert.Equal(t, 4025, input["port"])
	assert.Equal(t, true, input["show"])

	input = map[string]interface{}{"host": "10.0.0.2", "port": "4026", "panel_type": "DSC"}
	assert.Empty(t, schema.Validate(input))
	assert.Equal(t, 4026, input["port"])
}
