package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

type Source string

const (
	SourceUser        Source = "user"
	SourceZeroconf    Source = "zeroconf"
	SourceImport      Source = "import"
	SourceReconfigure Source = "reconfigure"
)

// ConfigEntry is a persisted, configured instance of an integration.
type ConfigEntry struct {
	EntryId   string                 `json:"entry_id"`
	Domain    string                 `json:"domain"`
	Title     string                 `json:"title"`
	UniqueId  string                 `json:"unique_id,omitempty"`
	Source    Source                 `json:"source"`
	Version   int                    `json:"version"`
	Data      map[string]interface{} `json:"data"`
	Options   map[string]interface{} `json:"options"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func NewConfigEntry(domain string, title string, uniqueId string, source Source, data map[string]interface{}) *ConfigEntry {
	now := time.Now().UTC()
	if data == nil {
		data = map[string]interface{}{}
	}
	return &ConfigEntry{
		EntryId:   uuid.New().String(),
		Domain:    domain,
		Title:     title,
		UniqueId:  uniqueId,
		Source:    source,
		Version:   1,
		Data:      data,
		Options:   map[string]interface{}{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy with its own data and options maps.
func (e *ConfigEntry) Clone() *ConfigEntry {
	c := *e
	c.Data = copyMap(e.Data)
	c.Options = copyMap(e.Options)
	return &c
}

// DecodeData decodes the entry data, overlaid with its options, into out.
func DecodeData(entry *ConfigEntry, out interface{}) error {
	merged := copyMap(entry.Data)
	for k, v := range entry.Options {
		merged[k] = v
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(merged); err != nil {
		return fmt.Errorf("error decoding %s entry '%s': %w", entry.Domain, entry.Title, err)
	}
	return nil
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
